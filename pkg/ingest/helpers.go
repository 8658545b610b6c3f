package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// downloadFile downloads url to dest with retries and exponential backoff.
func downloadFile(ctx context.Context, url, dest string) error {
	client := &http.Client{Timeout: 10 * time.Minute}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
			continue
		}

		f, err := os.Create(dest)
		if err != nil {
			resp.Body.Close()
			return fmt.Errorf("create file: %w", err)
		}

		_, copyErr := io.Copy(f, resp.Body)
		resp.Body.Close()
		closeErr := f.Close()

		if copyErr != nil {
			lastErr = copyErr
			continue
		}
		if closeErr != nil {
			return closeErr
		}
		return nil
	}
	return fmt.Errorf("download %s failed after 3 attempts: %w", url, lastErr)
}

// fetchLocal resolves a source URL to a local file path, downloading into
// dir when the URL is remote. file:// and bare paths are used as-is.
func fetchLocal(ctx context.Context, sourceURL, dir, name string) (string, error) {
	switch {
	case len(sourceURL) > 7 && sourceURL[:7] == "file://":
		return sourceURL[7:], nil
	case len(sourceURL) > 4 && sourceURL[:4] == "http":
		dest := dir + "/" + name
		if err := downloadFile(ctx, sourceURL, dest); err != nil {
			return "", err
		}
		return dest, nil
	default:
		return sourceURL, nil
	}
}
