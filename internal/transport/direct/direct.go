// Package direct implements the single-URL streaming transport: bytes flow
// into a .part file which is atomically renamed once verified. Retries,
// inactivity policing and fatal classification live here; callers only see
// the final error.
package direct

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/omniget/omniget/internal/errs"
	"github.com/omniget/omniget/internal/logx"
	"github.com/omniget/omniget/internal/types"
)

const (
	maxAttempts = 4

	// dampingBytes shapes the pseudo-percent for unknown-length streams:
	// percent = downloaded / (downloaded + dampingBytes), capped at 95.
	dampingBytes = 500_000
)

// attemptTimeout bounds one whole attempt; swapped in tests.
var attemptTimeout = types.AttemptTimeout

// Download fetches rawurl into dest. Bytes stream into dest+".part" and the
// file is renamed only after the byte count checks out. Returns bytes written.
func Download(ctx context.Context, client *http.Client, rawurl, dest string, headers map[string]string, onProgress types.ProgressFunc) (int64, error) {
	partPath := dest + types.IncompleteSuffix

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := backoff(ctx, retryDelay(errs.KindOf(lastErr), attempt)); err != nil {
				os.Remove(partPath)
				return 0, err
			}
			logx.Warn("retrying download (attempt %d/%d): %s", attempt+1, maxAttempts, logx.ScrubURL(rawurl))
		}

		written, err := downloadOnce(ctx, client, rawurl, partPath, headers, onProgress)
		if err == nil {
			if renameErr := os.Rename(partPath, dest); renameErr != nil {
				return 0, fmt.Errorf("failed to finalize file: %w", renameErr)
			}
			if onProgress != nil {
				onProgress(100, written, written)
			}
			return written, nil
		}

		if errs.IsFatal(err) {
			os.Remove(partPath)
			return 0, err
		}
		lastErr = err
	}

	os.Remove(partPath)
	return 0, fmt.Errorf("download failed after %d attempts: %w", maxAttempts, lastErr)
}

// retryDelay computes the wait before retry attempt k (1-based). Rate-limited
// responses back off 10*2^(k-1) seconds; everything else retryable waits
// 1000*k + U[0,500*k) milliseconds.
func retryDelay(kind errs.Kind, attempt int) time.Duration {
	if kind == errs.KindRateLimited {
		return time.Duration(10<<(attempt-1)) * time.Second
	}
	return time.Duration(1000*attempt)*time.Millisecond +
		time.Duration(rand.Int63n(int64(500*attempt)))*time.Millisecond
}

// backoff sleeps for delay, honoring cancellation.
func backoff(ctx context.Context, delay time.Duration) error {
	select {
	case <-ctx.Done():
		return errs.Wrap(errs.KindCancelled, "cancelled during retry wait", ctx.Err())
	case <-time.After(delay):
		return nil
	}
}

func downloadOnce(ctx context.Context, client *http.Client, rawurl, partPath string, headers map[string]string, onProgress types.ProgressFunc) (int64, error) {
	// Per-attempt context: the inactivity watchdog can abort just this try,
	// and no single attempt may outlive the transfer deadline.
	attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawurl, nil)
	if err != nil {
		return 0, errs.Wrap(errs.KindFatalHTTP, "invalid request", err)
	}
	for key, val := range headers {
		req.Header.Set(key, val)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", types.DefaultUserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, errs.Wrap(errs.KindCancelled, "cancelled", ctx.Err())
		}
		return 0, errs.Wrap(errs.KindRetryable, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return 0, errs.FromStatus(resp.StatusCode)
	}

	// Expired pre-signed URLs most often manifest as an HTML error page with
	// a 200 status.
	if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "text/html") {
		return 0, errs.New(errs.KindHTMLResponse, "server returned HTML in place of media")
	}

	total := resp.ContentLength // -1 when unknown

	out, err := os.Create(partPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create part file: %w", err)
	}

	written, err := streamBody(ctx, attemptCtx, cancel, resp, out, total, onProgress)
	if err != nil {
		out.Close()
		if !errs.IsFatal(err) {
			os.Remove(partPath)
		}
		return 0, err
	}

	if err := out.Sync(); err != nil {
		out.Close()
		return 0, fmt.Errorf("sync error: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("close error: %w", err)
	}

	if total > 0 && written != total {
		os.Remove(partPath)
		return 0, errs.New(errs.KindSizeMismatch,
			fmt.Sprintf("size mismatch: downloaded %d of %d bytes", written, total))
	}

	return written, nil
}

func streamBody(ctx, attemptCtx context.Context, abort context.CancelFunc, resp *http.Response, out *os.File, total int64, onProgress types.ProgressFunc) (int64, error) {
	writer := bufio.NewWriterSize(out, types.StreamBuffer)

	// Inactivity watchdog: every chunk read refreshes lastActivity; if the
	// stream stalls past the timeout the attempt context is cancelled.
	var lastActivity atomic.Int64
	lastActivity.Store(time.Now().UnixNano())
	var timedOut atomic.Bool

	watchdogDone := make(chan struct{})
	go func() {
		defer close(watchdogDone)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-attemptCtx.Done():
				return
			case <-ticker.C:
				idle := time.Since(time.Unix(0, lastActivity.Load()))
				if idle > types.ChunkInactivityTimeout {
					timedOut.Store(true)
					abort()
					return
				}
			}
		}
	}()
	defer func() {
		abort()
		<-watchdogDone
	}()

	buf := make([]byte, 64*types.KB)
	var written int64
	for {
		if ctx.Err() != nil {
			return written, errs.Wrap(errs.KindCancelled, "cancelled", ctx.Err())
		}

		nr, readErr := resp.Body.Read(buf)
		if nr > 0 {
			lastActivity.Store(time.Now().UnixNano())
			if _, writeErr := writer.Write(buf[:nr]); writeErr != nil {
				return written, fmt.Errorf("write error: %w", writeErr)
			}
			written += int64(nr)
			emitProgress(onProgress, written, total)
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			if timedOut.Load() {
				return written, errs.New(errs.KindTimeout,
					fmt.Sprintf("no data received for %s", types.ChunkInactivityTimeout))
			}
			if ctx.Err() != nil {
				return written, errs.Wrap(errs.KindCancelled, "cancelled", ctx.Err())
			}
			return written, errs.Wrap(errs.KindRetryable, "read error", readErr)
		}
	}

	if err := writer.Flush(); err != nil {
		return written, fmt.Errorf("flush error: %w", err)
	}
	return written, nil
}

// emitProgress reports percent against a known total, or a damped
// pseudo-fraction capped at 95 when the length is unknown.
func emitProgress(onProgress types.ProgressFunc, written, total int64) {
	if onProgress == nil {
		return
	}
	if total > 0 {
		percent := float64(written) / float64(total) * 100
		if percent > 100 {
			percent = 100
		}
		onProgress(percent, written, total)
		return
	}
	percent := float64(written) / float64(written+dampingBytes) * 100
	if percent > 95 {
		percent = 95
	}
	onProgress(percent, written, 0)
}
