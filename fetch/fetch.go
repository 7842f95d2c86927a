package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"time"
)

var ErrFileTooLarge = errors.New("downloaded file exceeds size limit")

// Fetcher downloads documents for URL-based parse requests.
type Fetcher struct {
	client  *http.Client
	maxSize int64
}

func NewFetcher(maxSize int64) *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: 5 * time.Minute},
		maxSize: maxSize,
	}
}

// Fetch downloads the file at rawURL. When filename is empty it is
// inferred from the Content-Disposition header, then the URL path,
// falling back to "document.pdf".
func (f *Fetcher) Fetch(ctx context.Context, rawURL, filename string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid url: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download file: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read download: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, "", fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, f.maxSize)
	}

	if filename == "" {
		filename = inferFilename(resp.Header.Get("Content-Disposition"), rawURL)
	}
	return data, filename, nil
}

func inferFilename(contentDisposition, rawURL string) string {
	if contentDisposition != "" {
		if _, params, err := mime.ParseMediaType(contentDisposition); err == nil {
			if name := params["filename"]; name != "" {
				return path.Base(name)
			}
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		if name := path.Base(u.Path); name != "" && name != "." && name != "/" {
			return name
		}
	}
	return "document.pdf"
}
