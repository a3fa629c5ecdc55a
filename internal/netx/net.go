// Package netx contains small HTTP helpers shared by the drive components.
package netx

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
)

// StatusError carries an upstream HTTP status so that callers can surface
// remote 4xx/5xx responses with the matching code.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.StatusCode, e.URL)
}

// DownloadToFile streams the resource at url into the file at dst. Non-2xx
// responses produce a *StatusError and leave dst empty.
func DownloadToFile(ctx context.Context, client *http.Client, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dst)
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}

// ContentDisposition formats a Content-Disposition header value, falling
// back to RFC 5987 encoding for non-ASCII filenames.
func ContentDisposition(dispType, filename string) string {
	return mime.FormatMediaType(dispType, map[string]string{"filename": filename})
}
