package gtfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Fetcher retrieves GTFS archives from URLs or local paths
type Fetcher struct {
	httpClient *http.Client
}

// NewFetcher creates a fetcher whose HTTP requests are bounded by timeout
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{httpClient: &http.Client{Timeout: timeout}}
}

// Load fetches and parses the archive at urlOrPath
func (f *Fetcher) Load(ctx context.Context, urlOrPath string) (*Feed, error) {
	if urlOrPath == "" {
		return nil, fmt.Errorf("no GTFS source configured")
	}
	if !strings.HasPrefix(urlOrPath, "http://") && !strings.HasPrefix(urlOrPath, "https://") {
		return LoadFeedFile(urlOrPath)
	}
	data, err := f.fetch(ctx, urlOrPath)
	if err != nil {
		return nil, err
	}
	feed, err := ParseFeedBytes(data)
	if err != nil {
		return nil, err
	}
	feed.Name = urlOrPath
	return feed, nil
}

func (f *Fetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}
