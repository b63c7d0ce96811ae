package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/handiism/attachment-downloader/internal/app"
	"github.com/handiism/attachment-downloader/internal/config"
	"github.com/handiism/attachment-downloader/internal/logging"
	"github.com/handiism/attachment-downloader/internal/model"
	"github.com/handiism/attachment-downloader/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFlag   = flag.String("config", "", "Path to config file")
		manifestFlag = flag.String("manifest", "", "Import attachments from a manifest JSON file first")
		libraryFlag  = flag.String("library", "L1", "Library to show (L<id> or G<id>)")
	)
	flag.Parse()

	settings, err := config.Load(*configFlag)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	libraryID, err := model.ParseLibraryIdentifier(*libraryFlag)
	if err != nil {
		return err
	}

	// The TUI owns the terminal, so logs must not go to stderr.
	if settings.Logging.File == "" {
		settings.Logging.File = config.DefaultSettings().Logging.File
	}
	logger, logCloser, err := logging.SetupLogger(&settings.Logging)
	if err != nil {
		logger = logging.NullLogger()
	} else {
		defer logCloser.Close()
	}
	slog.SetDefault(logger)

	a, err := app.New(settings, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if *manifestFlag != "" {
		if _, err := a.ImportManifest(*manifestFlag); err != nil {
			return fmt.Errorf("failed to import manifest: %w", err)
		}
	}

	records, err := a.Attachments(libraryID, nil)
	if err != nil {
		return err
	}
	items := make([]tui.Item, len(records))
	for i, rec := range records {
		items[i] = tui.Item{Attachment: rec.Attachment, ParentKey: rec.ParentKey}
	}

	updates, unsubscribe := a.Coordinator.Subscribe(a.Settings.Downloads.SubscriberBuffer)
	defer unsubscribe()

	logger.Info("starting TUI", "library", libraryID.String(), "attachments", len(items))
	if err := tui.Run(tui.NewModel(libraryID, items, a.Coordinator, updates).WithReadyHook(a.AfterReady)); err != nil {
		logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	logger.Info("shutting down")
	return nil
}
