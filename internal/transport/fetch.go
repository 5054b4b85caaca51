// Package transport implements the blocking HTTP fetch-with-retry used by
// the download pipeline (spec.md §4.5). Retry scheduling is built on
// github.com/cenkalti/backoff, the same retry library the reva pack member
// uses for its NATS reconnect loop (pkg/events/stream/stream.go): a
// BackOff implementation plus backoff.Retry, not a hand-rolled
// exception-driven loop (Design Notes §9).
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"

	coreerrors "github.com/zzenonn/ereefs-mirror/internal/errors"
)

// requestTimeout is the 5-minute connect/lease/socket timeout spec.md §4.5
// and §5 require for every HTTP request the core issues.
const requestTimeout = 5 * time.Minute

// maxObjectBytes bounds a single downloaded object to 100 GiB (spec.md
// §4.5). A var, not a const, so tests can shrink it rather than streaming
// a genuine 100 GiB body to trip the cap.
var maxObjectBytes int64 = 100 * 1 << 30

// maxAttempts and the backoff schedule below produce the documented
// 10,20,40,80,160,320,640-second waits before attempts 2..8 (cumulative
// ~21 minutes), per spec.md §4.5.
const maxAttempts = 8

// Fetcher performs a blocking GET streamed to disk, with retry.
type Fetcher struct {
	client *http.Client
	quiet  bool
}

// NewFetcher builds a Fetcher with the transport settings spec.md §4.1/§4.5
// require: self-signed certificates accepted, TLS 1.2/1.3 enabled.
func NewFetcher(quiet bool) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: true,
					MinVersion:         tls.VersionTLS12,
					MaxVersion:         tls.VersionTLS13,
				},
			},
		},
		quiet: quiet,
	}
}

// scheduleBackOff reproduces the exact wait sequence from spec.md §4.5:
// wait before attempt k (k>=2) is 10 * 2^(k-2) seconds. It implements
// backoff.BackOff so it can drive backoff.Retry directly.
type scheduleBackOff struct {
	attempt int
}

func (s *scheduleBackOff) Reset() { s.attempt = 0 }

func (s *scheduleBackOff) NextBackOff() time.Duration {
	s.attempt++
	if s.attempt >= maxAttempts {
		return backoff.Stop
	}
	// attempt 1 -> wait before attempt 2 -> 10 * 2^0
	return time.Duration(10*(1<<uint(s.attempt-1))) * time.Second
}

// FetchWithRetry streams srcURL to destPath, retrying transport failures
// per the schedule above. Any existing content at destPath is truncated.
// On exhaustion, the last error is returned (spec.md §4.5).
func (f *Fetcher) FetchWithRetry(ctx context.Context, srcURL, destPath string, sizeHint int64) error {
	sched := &scheduleBackOff{}
	var lastErr error

	op := func() error {
		err := f.attempt(ctx, srcURL, destPath, sizeHint)
		if err != nil {
			lastErr = err
			log.WithError(err).WithField("url", srcURL).Warn("fetch attempt failed")
		}
		return err
	}

	retryErr := backoff.Retry(op, sched)
	if retryErr != nil {
		if lastErr == nil {
			lastErr = retryErr
		}
		return fmt.Errorf("%w: %v", coreerrors.ErrRetriesExhausted, lastErr)
	}
	return nil
}

// attempt performs one GET and streams the response body to destPath. The
// request is always closed on exit, releasing the connection whether the
// attempt succeeded or failed (spec.md §4.5).
func (f *Fetcher) attempt(ctx context.Context, srcURL, destPath string, sizeHint int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status fetching %s: %s", srcURL, resp.Status)
	}

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	var reader io.Reader = resp.Body
	if !f.quiet {
		bar := progressbar.DefaultBytes(sizeHint, "fetching")
		pbReader := progressbar.NewReader(resp.Body, bar)
		reader = &pbReader
	}

	n, err := io.CopyN(out, reader, maxObjectBytes+1)
	if err != nil && err != io.EOF {
		return err
	}
	if n > maxObjectBytes {
		return coreerrors.ErrSizeCapExceeded
	}
	return nil
}
