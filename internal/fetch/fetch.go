// Package fetch streams remote media assets to local temp storage.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"ripley/pkg/logger"
)

var log = logger.Get("Fetcher")

// Fetcher downloads remote assets to disk. The response body is piped
// straight to the file sink, so assets of any size can be fetched without
// buffering them in memory.
type Fetcher struct {
	client *http.Client
}

func NewFetcher() *Fetcher {
	// No client-level timeout: asset downloads are long-running streams and
	// are bounded by the request context instead.
	return &Fetcher{client: &http.Client{}}
}

// Fetch streams the asset at assetURL to destPath. Success is reported only
// once the sink has been flushed and closed; on any failure the partial file
// is removed best-effort before the error is returned.
func (fetcher *Fetcher) Fetch(ctx context.Context, assetURL string, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return fmt.Errorf("asset URL is malformed: %w", err)
	}

	resp, err := fetcher.client.Do(req)
	if err != nil {
		return fmt.Errorf("asset request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("asset request failed: upstream returned HTTP %d", resp.StatusCode)
	}

	sink, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create sink '%s': %w", destPath, err)
	}

	written, err := io.Copy(sink, resp.Body)
	if err != nil {
		sink.Close()
		fetcher.discardPartial(destPath)
		return fmt.Errorf("asset stream interrupted after %d bytes: %w", written, err)
	}

	if err := sink.Sync(); err != nil {
		sink.Close()
		fetcher.discardPartial(destPath)
		return fmt.Errorf("failed to flush sink '%s': %w", destPath, err)
	}

	if err := sink.Close(); err != nil {
		fetcher.discardPartial(destPath)
		return fmt.Errorf("failed to close sink '%s': %w", destPath, err)
	}

	log.Emit(logger.DEBUG, "Fetched %d bytes to %s\n", written, destPath)
	return nil
}

func (fetcher *Fetcher) discardPartial(destPath string) {
	if err := os.Remove(destPath); err != nil {
		log.Emit(logger.WARNING, "Failed to remove partial download %s: %v\n", destPath, err)
	}
}
