package analytics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxSheetBytes = 10 << 20

// ErrSheetTooLarge is returned when the export exceeds maxSheetBytes. The
// newest rows sit at the end of the sheet, so a truncated body is never used.
var ErrSheetTooLarge = errors.New("sheet export too large")

// Fetcher downloads the published CSV export of the metrics sheet.
type Fetcher struct {
	client *http.Client
	limit  int64
}

func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: timeout}, limit: maxSheetBytes}
}

// Fetch GETs url and returns the body. Non-2xx responses are errors.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build sheet request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sheet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch sheet: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.limit+1))
	if err != nil {
		return nil, fmt.Errorf("read sheet body: %w", err)
	}
	if int64(len(body)) > f.limit {
		return nil, fmt.Errorf("fetch sheet: %w (limit %d bytes)", ErrSheetTooLarge, f.limit)
	}
	return body, nil
}
