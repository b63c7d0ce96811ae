package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/handiism/attachment-downloader/internal/app"
	"github.com/handiism/attachment-downloader/internal/config"
	"github.com/handiism/attachment-downloader/internal/download"
	"github.com/handiism/attachment-downloader/internal/logging"
	"github.com/handiism/attachment-downloader/internal/model"
	"github.com/handiism/attachment-downloader/internal/store"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// errInterrupted makes main exit with 130.
var errInterrupted = errors.New("interrupted")

func main() {
	if err := run(); err != nil {
		if errors.Is(err, errInterrupted) {
			fmt.Println("\nDownload cancelled.")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Command line flags
	var (
		configFlag   = flag.String("config", "", "Path to config file (default: search ~/.config/attachment-downloader and .)")
		manifestFlag = flag.String("manifest", "", "Import attachments from a manifest JSON file before downloading")
		libraryFlag  = flag.String("library", "L1", "Library to download from (L<id> for a user library, G<id> for a group)")
		keysFlag     = flag.String("keys", "", "Attachment keys to download (comma-separated, default: all)")
		matchFlag    = flag.String("match", "", "Only attachments whose title fuzzy matches this text")
		outputFlag   = flag.String("output", "", "Storage directory (overrides config)")
		dryRunFlag   = flag.Bool("dry-run", false, "Show what would be downloaded without downloading")
		verboseFlag  = flag.Bool("verbose", false, "Show progress updates and debug logs")
	)
	flag.Parse()

	settings, err := config.Load(*configFlag)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if !settings.IsConfigured() && term.IsTerminal(int(os.Stdin.Fd())) {
		if err := promptCredentials(settings, *configFlag); err != nil {
			return err
		}
	}

	if *outputFlag != "" {
		settings.Downloads.Path = *outputFlag
	}
	if *verboseFlag {
		settings.Logging.Level = "DEBUG"
	}

	libraryID, err := model.ParseLibraryIdentifier(*libraryFlag)
	if err != nil {
		return err
	}

	logger, logCloser, err := logging.SetupLogger(&settings.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger, logCloser = logging.NullLogger(), nil
	}
	if logCloser != nil {
		defer logCloser.Close()
	}
	slog.SetDefault(logger)

	a, err := app.New(settings, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println("Attachment Downloader")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	if *manifestFlag != "" {
		n, err := a.ImportManifest(*manifestFlag)
		if err != nil {
			return fmt.Errorf("failed to import manifest: %w", err)
		}
		fmt.Printf("Imported %d attachment(s) from %s\n", n, *manifestFlag)
	}

	records, err := a.Attachments(libraryID, app.ParseKeys(*keysFlag))
	if err != nil {
		return err
	}
	records = app.MatchTitle(records, *matchFlag)
	if len(records) == 0 {
		fmt.Printf("No attachments in library %s. Import a manifest with -manifest.\n", libraryID)
		return nil
	}

	// Handle interrupts
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\nInterrupted, cancelling...")
			cancel()
			a.Coordinator.Stop()
		case <-ctx.Done():
		}
	}()

	if *dryRunFlag {
		return dryRun(ctx, a, records)
	}

	return downloadAll(ctx, a, records, *verboseFlag)
}

// promptCredentials asks for the user id and API key and saves them to the config file.
func promptCredentials(settings *config.Settings, configPath string) error {
	reader := bufio.NewReader(os.Stdin)

	if settings.API.UserID == 0 {
		fmt.Print("User ID: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read user id: %w", err)
		}
		userID, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
		settings.API.UserID = userID
	}

	if settings.API.Key == "" {
		// Prompt for API key (hidden input)
		fmt.Print("API key: ")
		keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println() // Add newline after hidden input
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		settings.API.Key = strings.TrimSpace(string(keyBytes))
	}

	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	if err := settings.Save(configPath); err != nil {
		return err
	}
	fmt.Printf("✓ Configuration saved to %s\n\n", configPath)
	return nil
}

func dryRun(ctx context.Context, a *app.App, records []*store.StoredAttachment) error {
	estimates, total := a.EstimateSizes(ctx, records)

	fmt.Printf("%d attachment(s), %d need downloading:\n", len(records), len(estimates))
	for _, e := range estimates {
		if e.Err != nil {
			fmt.Printf("  %s  size unknown (%v)\n", e.Key, e.Err)
			continue
		}
		fmt.Printf("  %s  %s\n", e.Key, humanize.Bytes(uint64(e.Size)))
	}
	fmt.Printf("\n[Dry run - not downloading] %s total\n", humanize.Bytes(uint64(total)))

	if ctx.Err() != nil {
		return errInterrupted
	}
	return nil
}

// downloadAll requests every record and prints updates until each reached a terminal state.
func downloadAll(ctx context.Context, a *app.App, records []*store.StoredAttachment, verbose bool) error {
	updates, unsubscribe := a.Coordinator.Subscribe(a.Settings.Downloads.SubscriberBuffer)
	defer unsubscribe()

	titles := make(map[string]string, len(records))
	for _, rec := range records {
		titles[rec.Attachment.Key] = rec.Attachment.Title
	}

	// Requests are submitted from their own goroutine so updates print while the list is queued.
	submitted := make(chan int, 1)
	go func() {
		n := 0
		for _, rec := range records {
			if ctx.Err() != nil {
				break
			}
			a.Coordinator.DownloadIfNeeded(rec.Attachment, rec.ParentKey)
			n++
		}
		if ctx.Err() != nil {
			a.Coordinator.Stop()
		}
		submitted <- n
	}()

	fmt.Println("Starting downloads...")
	fmt.Println()

	// Without -verbose an interactive terminal gets a bar instead of a line per attachment.
	var bar *progressbar.ProgressBar
	if !verbose && term.IsTerminal(int(os.Stdout.Fd())) {
		bar = progressbar.NewOptions(len(records),
			progressbar.OptionSetDescription("Downloading"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	printLine := func(format string, args ...any) {
		if bar != nil {
			bar.Clear()
		}
		fmt.Printf(format, args...)
		if bar != nil {
			bar.RenderBlank()
		}
	}

	var ready, failed, cancelled, terminal int
	expected := -1
	for expected < 0 || terminal < expected {
		select {
		case n := <-submitted:
			expected = n
		case u := <-updates:
			label := u.Key
			if title := titles[u.Key]; title != "" {
				label = fmt.Sprintf("%s (%s)", title, u.Key)
			}

			switch u.Kind {
			case download.KindProgress:
				if verbose {
					fmt.Printf("   %s %d%%\n", label, u.Progress)
				}
				continue
			case download.KindReady:
				ready++
				a.AfterReady(u)
				if bar == nil {
					fmt.Printf("✓ %s\n", label)
				}
			case download.KindFailed:
				failed++
				printLine("✗ %s: %v\n", label, u.Err)
			case download.KindCancelled:
				cancelled++
				printLine("! %s cancelled\n", label)
			}
			terminal++
			if bar != nil {
				bar.Add(1)
			}

			if progress, ok, remaining, total := a.Coordinator.BatchData(); ok && verbose {
				fmt.Printf("   batch %d%% (%d of %d active)\n", progress, remaining, total)
			}
		}
	}

	if bar != nil {
		bar.Finish()
	}

	fmt.Println()
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Complete! %d ready, %d failed, %d cancelled\n", ready, failed, cancelled)

	if ctx.Err() != nil {
		return errInterrupted
	}
	if failed > 0 {
		return fmt.Errorf("%d attachment(s) failed", failed)
	}
	return nil
}
