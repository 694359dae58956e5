package graph

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"
)

// tempAuthParam marks download URLs whose authorization is embedded in the
// query string. Such URLs reject an additional bearer header.
const tempAuthParam = "tempauth"

// Download streams an item's content to w and returns the number of bytes
// written. Only the request/response exchange is retried; a failure while
// streaming the body is returned to the caller, which owns the partial file.
// The download URL is never logged.
func (c *Client) Download(ctx context.Context, item *Item, w io.Writer) (int64, error) {
	if item.DownloadURL == "" {
		c.logger.Warn("item has no download URL",
			slog.String("item_id", item.ID),
			slog.Bool("is_folder", item.IsFolder),
		)

		return 0, ErrNoDownloadURL
	}

	preAuth := hasTempAuth(item.DownloadURL)

	// The attempt gets its own context so a stalled body can be abandoned
	// without canceling the caller.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resp, err := c.doRetry(ctx, "download "+item.ID, func() (*http.Request, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, item.DownloadURL, http.NoBody)
		if reqErr != nil {
			return nil, fmt.Errorf("graph: creating download request: %w", reqErr)
		}

		req.Header.Set("User-Agent", c.userAgent)

		if !preAuth {
			tok, tokErr := c.token.Token()
			if tokErr != nil {
				return nil, fmt.Errorf("graph: obtaining token: %w", tokErr)
			}

			req.Header.Set("Authorization", "Bearer "+tok)
		}

		return req, nil
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body

	if c.dataTimeout > 0 {
		idle := newIdleTimeoutReader(resp.Body, c.dataTimeout, cancel)
		defer idle.stop()

		body = idle
	}

	n, err := io.Copy(w, body)
	if err != nil {
		return n, fmt.Errorf("graph: streaming download content: %w", err)
	}

	return n, nil
}

// hasTempAuth reports whether rawURL carries its own tempauth credential.
func hasTempAuth(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	return u.Query().Has(tempAuthParam)
}

// DataTimeoutError reports that a download body delivered no data for the
// configured data timeout. It is a net.Error whose Timeout is true and it
// unwraps to context.DeadlineExceeded.
type DataTimeoutError struct {
	Idle time.Duration
}

func (e *DataTimeoutError) Error() string {
	return fmt.Sprintf("graph: no data received for %s", e.Idle)
}

func (e *DataTimeoutError) Timeout() bool { return true }
func (e *DataTimeoutError) Temporary() bool { return true }
func (e *DataTimeoutError) Unwrap() error { return context.DeadlineExceeded }

// idleTimeoutReader cancels the download when no bytes arrive within
// timeout. Every successful read restarts the clock.
type idleTimeoutReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

func newIdleTimeoutReader(r io.Reader, timeout time.Duration, cancel context.CancelFunc) *idleTimeoutReader {
	ir := &idleTimeoutReader{r: r, timeout: timeout}
	ir.timer = time.AfterFunc(timeout, func() {
		ir.expired.Store(true)
		cancel()
	})

	return ir
}

func (ir *idleTimeoutReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)

	// Once expired, the cancel error from the transport is reported as a
	// timeout instead.
	if ir.expired.Load() {
		return n, &DataTimeoutError{Idle: ir.timeout}
	}

	if n > 0 {
		ir.timer.Reset(ir.timeout)
	}

	return n, err
}

func (ir *idleTimeoutReader) stop() {
	ir.timer.Stop()
}
