package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/handiism/attachment-downloader/internal/model"
	"golang.org/x/time/rate"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.example.org".
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// UserAgent defaults to "AttachmentDownloader".
	UserAgent string

	// Timeout bounds a whole request including the body transfer. Zero disables it.
	Timeout time.Duration

	// RateLimit caps the download rate in bytes per second. Zero disables it.
	RateLimit int
}

// Client wraps HTTP operations with API-specific configuration.
//
// Client provides:
//   - Configured User-Agent and Authorization headers
//   - Timeout handling
//   - File download with progress tracking and optional rate limiting
//   - File size retrieval via HEAD requests
//
// Example usage:
//
//	client := NewClient(Config{BaseURL: "https://api.example.org", APIKey: key})
//
//	// Download an attachment with progress
//	err := client.DownloadAttachment(ctx, userID, d, "/path/to/file.pdf", func(written, total int64) {
//	    percent := float64(written) / float64(total) * 100
//	    fmt.Printf("%.1f%%\n", percent)
//	})
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	userAgent  string
	limiter    *rate.Limiter
}

// NewClient creates a new HTTP client.
func NewClient(cfg Config) *Client {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "AttachmentDownloader"
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		userAgent: userAgent,
		limiter:   limiter,
	}
}

// StatusError is returned when the server answers with a non-200 status.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Status)
}

// IsTransient reports whether err is worth retrying: network failures,
// truncated bodies, HTTP 429 and 5xx responses.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= 500
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// ProgressWriter wraps a writer to track download progress.
//
// Example:
//
//	pw := &ProgressWriter{
//	    Writer: file,
//	    Total:  contentLength,
//	    OnUpdate: func(written, total int64) {
//	        fmt.Printf("%d / %d bytes\n", written, total)
//	    },
//	}
//	io.Copy(pw, response.Body)
type ProgressWriter struct {
	// Writer is the underlying writer to write data to.
	Writer io.Writer

	// Total is the expected total bytes (from Content-Length header).
	Total int64

	// Written is the current number of bytes written.
	Written int64

	// OnUpdate is called after each Write with current progress.
	OnUpdate func(written, total int64)
}

// Write implements io.Writer, tracking progress and calling OnUpdate.
func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.Written += int64(n)
	if pw.OnUpdate != nil {
		pw.OnUpdate(pw.Written, pw.Total)
	}
	return n, err
}

// rateLimitedWriter blocks writes until the limiter allows them.
type rateLimitedWriter struct {
	ctx     context.Context
	writer  io.Writer
	limiter *rate.Limiter
}

func (w *rateLimitedWriter) Write(p []byte) (int, error) {
	written := 0
	burst := w.limiter.Burst()
	for written < len(p) {
		n := len(p) - written
		if n > burst {
			n = burst
		}
		if err := w.limiter.WaitN(w.ctx, n); err != nil {
			return written, err
		}
		m, err := w.writer.Write(p[written : written+n])
		written += m
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// AttachmentURL returns the file endpoint of an attachment.
func (c *Client) AttachmentURL(userID int64, d model.Download) string {
	return fmt.Sprintf("%s/%s/items/%s/file", c.baseURL, d.LibraryID.APIPath(userID), url.PathEscape(d.Key))
}

// DownloadAttachment streams the file of an attachment to destPath.
func (c *Client) DownloadAttachment(ctx context.Context, userID int64, d model.Download, destPath string, onProgress func(written, total int64)) error {
	return c.DownloadFile(ctx, c.AttachmentURL(userID, d), destPath, onProgress)
}

// GetFileSize returns the size of an attachment file via HEAD request.
//
// Returns an error if:
//   - The request fails
//   - The server doesn't return a Content-Length header
func (c *Client) GetFileSize(ctx context.Context, userID int64, d model.Download) (int64, error) {
	fileURL := c.AttachmentURL(userID, d)
	req, err := c.newRequest(ctx, http.MethodHead, fileURL)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("no Content-Length header for %s", fileURL)
	}

	return resp.ContentLength, nil
}

// DownloadFile downloads a file to the specified path with optional progress callback.
//
// The file is created (or truncated if it exists) and the content is streamed
// directly to disk. On failure the partially written file is removed.
//
// Parameters:
//   - ctx: Context for cancellation
//   - rawURL: URL to download from
//   - destPath: Local file path to save to
//   - onProgress: Optional callback called with (bytesWritten, totalBytes)
//     Pass nil to disable progress tracking
func (c *Client) DownloadFile(ctx context.Context, rawURL, destPath string, onProgress func(written, total int64)) (err error) {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	file, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(destPath)
		}
	}()

	var writer io.Writer = file
	if c.limiter != nil {
		writer = &rateLimitedWriter{ctx: ctx, writer: writer, limiter: c.limiter}
	}
	if onProgress != nil {
		writer = &ProgressWriter{
			Writer:   writer,
			Total:    resp.ContentLength,
			OnUpdate: onProgress,
		}
	}

	written, err := io.Copy(writer, resp.Body)
	if err != nil {
		return err
	}
	if resp.ContentLength > 0 && written < resp.ContentLength {
		return io.ErrUnexpectedEOF
	}
	return nil
}
