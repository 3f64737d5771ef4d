package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	ioutils "github.com/handiism/snap-memories/internal/io"
	"github.com/handiism/snap-memories/internal/model"
)

// DefaultTimeout bounds a single request, body included.
const DefaultTimeout = 5 * time.Minute

// Client wraps HTTP operations for memory downloads.
//
// Client provides:
//   - A fixed User-Agent header
//   - Timeout handling
//   - Streaming downloads to disk with progress tracking
//   - Classification of failures into retryable and permanent errors
//
// Example usage:
//
//	client := NewClient(0)
//
//	res, err := client.Fetch(ctx, link, "/work/downloads/abc", func(written, total int64) {
//	    fmt.Printf("%d / %d\n", written, total)
//	})
//	if model.IsRetryable(err) {
//	    // try again later
//	}
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a new HTTP client. A non-positive timeout selects
// DefaultTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: "snap-memories",
	}
}

// StatusError is returned for a non-200 response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Status)
}

// Retryable reports whether the server may answer differently later.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout || e.Code >= 500
}

// FetchResult describes a completed download.
type FetchResult struct {
	// ContentType is the response's Content-Type header.
	ContentType string

	// Bytes is the number of bytes written.
	Bytes int64
}

// ProgressWriter wraps a writer to track download progress.
//
// Use this to monitor large downloads by providing an OnUpdate callback
// that receives the current bytes written and total expected bytes.
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

	// Total is the expected total bytes (from Content-Length header), or -1.
	Total int64

	// Written is the current number of bytes written.
	Written int64

	// OnUpdate is called after each Write with current progress.
	// Parameters are (bytesWritten, totalExpected).
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

// Fetch downloads url to dest with a GET request.
//
// The body is streamed to a temporary file next to dest and renamed into
// place once complete, so dest never holds a partial download. onProgress
// may be nil.
//
// Returned errors are *model.Error values: network failures, timeouts,
// 408, 429 and 5xx responses are TransientIO; other statuses are
// ResourceUnavailable. Cancellation returns the context's error.
//
// Example:
//
//	res, err := client.Fetch(ctx, link, dest, nil)
//	format := ioutils.FormatFromContentType(res.ContentType)
func (c *Client) Fetch(ctx context.Context, url, dest string, onProgress func(written, total int64)) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, model.NewError(model.MalformedInput, "request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		serr := &StatusError{Code: resp.StatusCode, Status: resp.Status}
		if serr.Retryable() {
			return nil, model.NewError(model.TransientIO, "fetch", serr)
		}
		return nil, model.NewError(model.ResourceUnavailable, "fetch", serr)
	}

	res := &FetchResult{ContentType: resp.Header.Get("Content-Type")}
	err = ioutils.WriteAtomic(dest, func(w io.Writer) error {
		pw := &ProgressWriter{Writer: w, Total: resp.ContentLength, OnUpdate: onProgress}
		_, err := io.Copy(pw, resp.Body)
		res.Bytes = pw.Written
		return err
	})
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	return res, nil
}

func (c *Client) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}
	return model.NewError(model.TransientIO, "fetch", err)
}
