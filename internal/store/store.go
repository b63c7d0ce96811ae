package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/handiism/attachment-downloader/internal/model"
	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned for attachments the store doesn't know.
var ErrNotFound = errors.New("attachment not found")

var bucketAttachments = []byte("attachments")

// StoredAttachment is an attachment record with its local download state.
type StoredAttachment struct {
	Attachment model.Attachment `json:"attachment"`
	ParentKey  string           `json:"parent_key,omitempty"`
	Downloaded bool             `json:"downloaded"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// ItemStore persists attachments using BoltDB.
//
// Keys have the form "<library>:<key>" (e.g. "L1:ABCD2345"), so a library's
// attachments are a contiguous prefix range.
type ItemStore struct {
	db *bolt.DB
	mu sync.RWMutex // Protects memory cache

	// In-memory cache for hot-path reads (promoted on access).
	// In memory-only mode it holds all records.
	cache map[string][]byte
}

// Open opens the store at path. An empty path gives a memory-only store.
func Open(path string) (*ItemStore, error) {
	if path == "" {
		return &ItemStore{cache: make(map[string][]byte)}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAttachments)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &ItemStore{db: db, cache: make(map[string][]byte)}, nil
}

func (s *ItemStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func recordKey(libraryID model.LibraryIdentifier, key string) string {
	return libraryID.String() + ":" + key
}

// === Generic helpers ===

func (s *ItemStore) get(key string) (*StoredAttachment, bool) {
	s.mu.RLock()
	if data, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return decode(data)
	}
	s.mu.RUnlock()

	if s.db == nil {
		return nil, false
	}

	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketAttachments).Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if data == nil {
		return nil, false
	}

	s.mu.Lock()
	s.cache[key] = data
	s.mu.Unlock()

	return decode(data)
}

func decode(data []byte) (*StoredAttachment, bool) {
	var rec StoredAttachment
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

// update applies fn to the stored record in a single transaction.
func (s *ItemStore) update(key string, fn func(*StoredAttachment) error) error {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()

		data, ok := s.cache[key]
		if !ok {
			return ErrNotFound
		}
		newData, err := applyUpdate(data, fn)
		if err != nil {
			return err
		}
		s.cache[key] = newData
		return nil
	}

	var newData []byte
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttachments)
		data := b.Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		var err error
		newData, err = applyUpdate(data, fn)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), newData)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[key] = newData
	s.mu.Unlock()
	return nil
}

func applyUpdate(data []byte, fn func(*StoredAttachment) error) ([]byte, error) {
	var rec StoredAttachment
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	if err := fn(&rec); err != nil {
		return nil, err
	}
	rec.UpdatedAt = time.Now().UTC()
	return json.Marshal(&rec)
}

// === Attachments ===

// SaveAttachments inserts or replaces attachment records.
func (s *ItemStore) SaveAttachments(records []StoredAttachment) error {
	encoded := make(map[string][]byte, len(records))
	for i := range records {
		rec := records[i]
		if rec.UpdatedAt.IsZero() {
			rec.UpdatedAt = time.Now().UTC()
		}
		data, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("encode %s: %w", rec.Attachment.Key, err)
		}
		encoded[recordKey(rec.Attachment.LibraryID, rec.Attachment.Key)] = data
	}

	if s.db != nil {
		err := s.db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketAttachments)
			for key, data := range encoded {
				if err := b.Put([]byte(key), data); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	for key, data := range encoded {
		s.cache[key] = data
	}
	s.mu.Unlock()
	return nil
}

// GetAttachment returns one attachment record.
func (s *ItemStore) GetAttachment(libraryID model.LibraryIdentifier, key string) (*StoredAttachment, error) {
	rec, ok := s.get(recordKey(libraryID, key))
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// ListAttachments returns all attachments of a library ordered by key.
func (s *ItemStore) ListAttachments(libraryID model.LibraryIdentifier) ([]*StoredAttachment, error) {
	prefix := libraryID.String() + ":"

	if s.db == nil {
		s.mu.RLock()
		keys := make([]string, 0)
		for k := range s.cache {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		records := make([]*StoredAttachment, 0, len(keys))
		for _, k := range keys {
			if rec, ok := decode(s.cache[k]); ok {
				records = append(records, rec)
			}
		}
		s.mu.RUnlock()
		return records, nil
	}

	var records []*StoredAttachment
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAttachments).Cursor()
		prefixBytes := []byte(prefix)
		for k, v := c.Seek(prefixBytes); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			rec, ok := decode(v)
			if !ok {
				return fmt.Errorf("corrupted record %s", k)
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// MarkAttachmentDownloaded records whether the attachment file is available locally.
// A downloaded attachment moves to the local location, otherwise to remote.
func (s *ItemStore) MarkAttachmentDownloaded(key string, libraryID model.LibraryIdentifier, downloaded bool) error {
	return s.update(recordKey(libraryID, key), func(rec *StoredAttachment) error {
		rec.Downloaded = downloaded
		if _, ok := rec.Attachment.File(); ok {
			location := model.LocationRemote
			if downloaded {
				location = model.LocationLocal
			}
			rec.Attachment = rec.Attachment.WithLocation(location)
		}
		return nil
	})
}
