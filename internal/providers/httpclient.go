package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// httpGet issues a GET request and returns the response body. Transport
// errors from client.Do are returned unwrapped, so the retry loop's
// fast-fail classifier sees net/http's own message text; a status of 400
// or above becomes an error carrying the status code and body.
func httpGet(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; market-data-sync/1.0)")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("vendor returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
