// Package app wires configuration, storage, transfer and the download
// coordinator together for the command line front ends.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/handiism/attachment-downloader/internal/config"
	"github.com/handiism/attachment-downloader/internal/download"
	"github.com/handiism/attachment-downloader/internal/http"
	ioutils "github.com/handiism/attachment-downloader/internal/io"
	"github.com/handiism/attachment-downloader/internal/model"
	"github.com/handiism/attachment-downloader/internal/store"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/sync/errgroup"
)

// App holds the long-lived services of one run.
type App struct {
	Settings    *config.Settings
	Logger      *slog.Logger
	Store       *store.ItemStore
	Client      *http.Client
	Paths       *ioutils.PathResolver
	Coordinator *download.Coordinator

	images *ioutils.ImageService
}

// New opens the store and builds a Coordinator initialized for the configured user.
func New(settings *config.Settings, logger *slog.Logger) (*App, error) {
	st, err := store.Open(settings.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	client := http.NewClient(settings.ToClientConfig())
	paths := ioutils.NewPathResolver(settings.Downloads.Path)

	coordinator := download.NewCoordinator(client, paths, st, ioutils.NewValidator(), download.Options{
		MaxConcurrent: settings.Downloads.MaxConcurrent,
		Retry:         settings.ToRetryPolicy(http.IsTransient),
		Logger:        logger,
	})
	coordinator.Initialize(settings.API.UserID)

	return &App{
		Settings:    settings,
		Logger:      logger,
		Store:       st,
		Client:      client,
		Paths:       paths,
		Coordinator: coordinator,
		images:      ioutils.NewImageService(),
	}, nil
}

// Close stops all downloads and closes the store.
func (a *App) Close() error {
	a.Coordinator.Close()
	return a.Store.Close()
}

// ImportManifest loads a manifest file into the store and returns the number of records.
func (a *App) ImportManifest(path string) (int, error) {
	records, err := store.LoadManifest(path)
	if err != nil {
		return 0, err
	}
	if err := a.Store.SaveAttachments(records); err != nil {
		return 0, fmt.Errorf("failed to save manifest: %w", err)
	}
	a.Logger.Info("manifest imported", "path", path, "count", len(records))
	return len(records), nil
}

// Attachments lists the stored attachments of a library.
// A non-empty keys restricts the result to those keys, in the given order.
func (a *App) Attachments(libraryID model.LibraryIdentifier, keys []string) ([]*store.StoredAttachment, error) {
	if len(keys) == 0 {
		return a.Store.ListAttachments(libraryID)
	}

	records := make([]*store.StoredAttachment, 0, len(keys))
	for _, key := range keys {
		rec, err := a.Store.GetAttachment(libraryID, key)
		if err != nil {
			return nil, fmt.Errorf("attachment %s: %w", key, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// ParseKeys splits a comma-separated key list, dropping blanks.
func ParseKeys(s string) []string {
	var keys []string
	for _, key := range strings.Split(s, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// MatchTitle keeps the records whose title fuzzy matches query, ignoring case.
// An empty query keeps everything.
func MatchTitle(records []*store.StoredAttachment, query string) []*store.StoredAttachment {
	if query == "" {
		return records
	}
	var matched []*store.StoredAttachment
	for _, rec := range records {
		if fuzzy.MatchFold(query, rec.Attachment.Title) {
			matched = append(matched, rec)
		}
	}
	return matched
}

// SizeEstimate is the remote size of one attachment file.
type SizeEstimate struct {
	Key  string
	Size int64
	Err  error
}

// NeedsTransfer reports whether DownloadIfNeeded would fetch the attachment.
func NeedsTransfer(att model.Attachment) bool {
	file, ok := att.File()
	return ok && file.LinkType.IsOwned() && file.Location != model.LocationLocal
}

// EstimateSizes asks the server for the size of every attachment that needs
// a transfer, with at most MaxConcurrent requests in flight.
func (a *App) EstimateSizes(ctx context.Context, records []*store.StoredAttachment) ([]SizeEstimate, int64) {
	var pending []model.Attachment
	for _, rec := range records {
		if NeedsTransfer(rec.Attachment) {
			pending = append(pending, rec.Attachment)
		}
	}

	estimates := make([]SizeEstimate, len(pending))
	var total atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	if limit := a.Settings.Downloads.MaxConcurrent; limit > 0 {
		g.SetLimit(limit)
	}

	for i, att := range pending {
		g.Go(func() error {
			size, err := a.Client.GetFileSize(ctx, a.Settings.API.UserID, att.Download())
			estimates[i] = SizeEstimate{Key: att.Key, Size: size, Err: err}
			if err == nil {
				total.Add(size)
			} else {
				a.Logger.Debug("can't get file size", "download", att.Download().String(), "error", err)
			}
			return nil // Continue with other attachments
		})
	}
	g.Wait()

	return estimates, total.Load()
}

// AfterReady runs post-download work for a ready attachment.
// It writes a thumbnail next to image files when thumbnails are enabled.
func (a *App) AfterReady(u download.Update) {
	if !a.Settings.Downloads.Thumbnails || u.Kind != download.KindReady {
		return
	}

	rec, err := a.Store.GetAttachment(u.LibraryID, u.Key)
	if err != nil {
		return
	}
	file, ok := rec.Attachment.File()
	if !ok || !strings.HasPrefix(file.ContentType, "image/") {
		return
	}

	path, err := a.Paths.AttachmentPath(u.LibraryID, u.Key, file.Filename, file.ContentType)
	if err != nil {
		return
	}

	thumbPath := ioutils.ThumbnailPath(path)
	if err := a.images.Thumbnail(path, thumbPath, a.Settings.Downloads.ThumbnailSize); err != nil {
		a.Logger.Warn("can't create thumbnail", "download", u.Download().String(), "error", err)
		return
	}
	a.Logger.Debug("thumbnail created", "download", u.Download().String(), "path", thumbPath)
}
