package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/handiism/attachment-downloader/internal/model"
)

// manifestFile is the JSON layout of a manifest:
//
//	{"attachments": [{"parent_key": "ITEM0001", "attachment": {...}}]}
type manifestFile struct {
	Attachments []struct {
		ParentKey  string           `json:"parent_key"`
		Attachment model.Attachment `json:"attachment"`
	} `json:"attachments"`
}

// LoadManifest reads a manifest file and returns records ready for SaveAttachments.
// Imported records keep their location and start as not downloaded unless local.
func LoadManifest(path string) ([]StoredAttachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var mf manifestFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	records := make([]StoredAttachment, 0, len(mf.Attachments))
	for _, entry := range mf.Attachments {
		downloaded := false
		if file, ok := entry.Attachment.File(); ok && file.Location == model.LocationLocal {
			downloaded = true
		}
		records = append(records, StoredAttachment{
			Attachment: entry.Attachment,
			ParentKey:  entry.ParentKey,
			Downloaded: downloaded,
		})
	}
	return records, nil
}
