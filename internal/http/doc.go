// Package http provides the HTTP client used to download memories.
//
// The Client in this package handles:
//   - User-Agent headers
//   - File downloads with progress tracking
//   - Atomic writes of downloaded files
//   - Classification of failures for the retry policy
//
// # Basic Usage
//
//	client := http.NewClient(0)
//
//	// Download a memory with a progress callback
//	res, err := client.Fetch(ctx, link, "/work/downloads/abc", func(written, total int64) {
//	    fmt.Printf("%d bytes\n", written)
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
