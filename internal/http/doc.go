// Package http provides the authenticated transfer client used to fetch
// attachment files.
//
// The Client in this package handles:
//   - User-Agent and Authorization headers
//   - File downloads with progress tracking
//   - Optional download rate limiting
//   - File size retrieval via HEAD requests
//   - Classification of transient failures for retries
//
// # Basic Usage
//
//	client := http.NewClient(http.Config{BaseURL: baseURL, APIKey: apiKey})
//
//	// Download an attachment with progress callback
//	client.DownloadAttachment(ctx, userID, d, "/path/to/file.pdf", func(written, total int64) {
//	    fmt.Printf("%.1f%%\n", float64(written)/float64(total)*100)
//	})
//
// # Progress Tracking
//
// The ProgressWriter type can be used to wrap any io.Writer for progress tracking:
//
//	pw := &http.ProgressWriter{
//	    Writer:   file,
//	    Total:    contentLength,
//	    OnUpdate: func(written, total int64) { /* update UI */ },
//	}
package http
