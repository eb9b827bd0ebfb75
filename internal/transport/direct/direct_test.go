package direct

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/omniget/omniget/internal/errs"
	"github.com/omniget/omniget/internal/testutil"
	"github.com/omniget/omniget/internal/types"
)

func TestDownloadSuccess(t *testing.T) {
	server := testutil.NewMockServer(
		testutil.WithFileSize(256*types.KB),
		testutil.WithRandomData(),
	)
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")

	var lastPercent float64
	written, err := Download(context.Background(), http.DefaultClient, server.URL(), dest, nil,
		func(percent float64, downloaded, total int64) {
			lastPercent = percent
		})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if written != 256*types.KB {
		t.Errorf("written = %d, want %d", written, 256*types.KB)
	}
	if lastPercent != 100 {
		t.Errorf("final percent = %v, want 100", lastPercent)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, server.Data()) {
		t.Error("downloaded bytes do not match served bytes")
	}
	if _, err := os.Stat(dest + types.IncompleteSuffix); !os.IsNotExist(err) {
		t.Error("part file left behind after success")
	}
}

func TestDownloadHTMLIsFatal(t *testing.T) {
	server := testutil.NewMockServer(testutil.WithHandler(testutil.HTMLHandler()))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	_, err := Download(context.Background(), http.DefaultClient, server.URL(), dest, nil, nil)
	if err == nil {
		t.Fatal("expected error for HTML response")
	}
	if errs.KindOf(err) != errs.KindHTMLResponse {
		t.Errorf("kind = %v, want KindHTMLResponse", errs.KindOf(err))
	}
	if !strings.Contains(err.Error(), "HTML") {
		t.Errorf("message should mention HTML, got %q", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("no output file may exist after a fatal error")
	}
	if _, statErr := os.Stat(dest + types.IncompleteSuffix); !os.IsNotExist(statErr) {
		t.Error("part file must be deleted on fatal error")
	}
	// HTML is fatal: one request, no retries.
	if server.RequestCount.Load() != 1 {
		t.Errorf("request count = %d, want 1", server.RequestCount.Load())
	}
}

func TestDownloadFatalStatusNoRetry(t *testing.T) {
	server := testutil.NewMockServer(testutil.WithStatusCode(http.StatusForbidden))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	_, err := Download(context.Background(), http.DefaultClient, server.URL(), dest, nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errs.IsFatal(err) {
		t.Error("403 must classify fatal")
	}
	if server.RequestCount.Load() != 1 {
		t.Errorf("request count = %d, want 1 (no retries on fatal)", server.RequestCount.Load())
	}
}

func TestDownloadRetriesTransientFailures(t *testing.T) {
	server := testutil.NewMockServer(
		testutil.WithFileSize(8*types.KB),
		testutil.WithRandomData(),
		testutil.WithFailFirstN(2),
	)
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	written, err := Download(context.Background(), http.DefaultClient, server.URL(), dest, nil, nil)
	if err != nil {
		t.Fatalf("Download should recover from transient 500s: %v", err)
	}
	if written != 8*types.KB {
		t.Errorf("written = %d", written)
	}
	if server.RequestCount.Load() != 3 {
		t.Errorf("request count = %d, want 3", server.RequestCount.Load())
	}
}

func TestDownloadSizeMismatchRetries(t *testing.T) {
	// Body truncated below the declared Content-Length on every attempt:
	// all retries burn out.
	server := testutil.NewMockServer(
		testutil.WithFileSize(64*types.KB),
		testutil.WithTruncateAt(10*types.KB),
	)
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	_, err := Download(context.Background(), http.DefaultClient, server.URL(), dest, nil, nil)
	if err == nil {
		t.Fatal("expected failure for persistent size mismatch")
	}
	if server.RequestCount.Load() < 2 {
		t.Errorf("size mismatch should be retried, got %d requests", server.RequestCount.Load())
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("no output file may exist after failure")
	}
}

func TestDownloadCancellation(t *testing.T) {
	server := testutil.NewMockServer(
		testutil.WithHandler(testutil.SlowBodyHandler(10*types.MB, 4*types.KB, 20*time.Millisecond)),
	)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	dest := filepath.Join(t.TempDir(), "out.bin")

	errCh := make(chan error, 1)
	go func() {
		_, err := Download(ctx, http.DefaultClient, server.URL(), dest, nil, nil)
		errCh <- err
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errs.IsCancelled(err) {
			t.Errorf("expected cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("download did not stop after cancel")
	}

	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("no output file may exist after cancel")
	}
}

func TestDownloadUnknownLengthDampedProgress(t *testing.T) {
	server := testutil.NewMockServer(
		testutil.WithFileSize(200*types.KB),
		testutil.WithOmitLength(),
	)
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "out.bin")
	var maxNonTerminal float64
	written, err := Download(context.Background(), http.DefaultClient, server.URL(), dest, nil,
		func(percent float64, downloaded, total int64) {
			if percent != 100 && percent > maxNonTerminal {
				maxNonTerminal = percent
			}
			if percent != 100 && total != 0 {
				t.Errorf("unknown-length stream must report total=0, got %d", total)
			}
		})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if written != 200*types.KB {
		t.Errorf("written = %d", written)
	}
	if maxNonTerminal > 95 {
		t.Errorf("non-terminal percent %v exceeded the 95 cap", maxNonTerminal)
	}
}

func TestProbe(t *testing.T) {
	server := testutil.NewMockServer(testutil.WithHandler(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "bytes=0-0" {
			t.Errorf("probe should send Range: bytes=0-0, got %q", r.Header.Get("Range"))
		}
		w.Header().Set("Content-Range", "bytes 0-0/4096")
		w.Header().Set("Content-Disposition", `attachment; filename="movie.mp4"`)
		w.Header().Set("Content-Type", "video/mp4")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte{0})
	}))
	defer server.Close()

	result, err := Probe(context.Background(), http.DefaultClient, server.URL()+"/path/x", nil)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !result.SupportsRange {
		t.Error("SupportsRange should be true for 206")
	}
	if result.FileSize != 4096 {
		t.Errorf("FileSize = %d, want 4096", result.FileSize)
	}
	if result.Filename != "movie.mp4" {
		t.Errorf("Filename = %q, want movie.mp4", result.Filename)
	}
}

func TestProbeEncodedFilename(t *testing.T) {
	// RFC 8187 filename* wins over the plain filename parameter.
	server := testutil.NewMockServer(testutil.WithHandler(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition",
			`attachment; filename="fallback.bin"; filename*=UTF-8''r%C3%A9sum%C3%A9.pdf`)
		w.Header().Set("Content-Length", "1024")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result, err := Probe(context.Background(), http.DefaultClient, server.URL()+"/x", nil)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if result.Filename != "résumé.pdf" {
		t.Errorf("Filename = %q, want résumé.pdf", result.Filename)
	}
}

func TestRetryDelaySchedule(t *testing.T) {
	for attempt, want := range map[int]time.Duration{
		1: 10 * time.Second,
		2: 20 * time.Second,
		3: 40 * time.Second,
	} {
		if got := retryDelay(errs.KindRateLimited, attempt); got != want {
			t.Errorf("rate-limited attempt %d: delay = %v, want %v", attempt, got, want)
		}
	}

	for attempt := 1; attempt <= 3; attempt++ {
		min := time.Duration(1000*attempt) * time.Millisecond
		max := min + time.Duration(500*attempt)*time.Millisecond
		got := retryDelay(errs.KindRetryable, attempt)
		if got < min || got >= max {
			t.Errorf("retryable attempt %d: delay = %v, want [%v, %v)", attempt, got, min, max)
		}
	}
}

func TestDownloadOnceRespectsAttemptDeadline(t *testing.T) {
	// Body arrives steadily, so the inactivity watchdog never fires; only the
	// per-attempt deadline can stop this transfer.
	server := testutil.NewMockServer(
		testutil.WithHandler(testutil.SlowBodyHandler(10*types.MB, 4*types.KB, 20*time.Millisecond)),
	)
	defer server.Close()

	old := attemptTimeout
	attemptTimeout = 100 * time.Millisecond
	defer func() { attemptTimeout = old }()

	partPath := filepath.Join(t.TempDir(), "out.bin.part")
	start := time.Now()
	_, err := downloadOnce(context.Background(), http.DefaultClient, server.URL(), partPath, nil, nil)
	if err == nil {
		t.Fatal("expected the attempt deadline to cut the transfer short")
	}
	if errs.IsFatal(err) {
		t.Errorf("deadline expiry must stay retryable, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("attempt ran %v past a 100ms deadline", elapsed)
	}
}

func TestProbeNoRangeSupport(t *testing.T) {
	server := testutil.NewMockServer(testutil.WithFileSize(2048))
	defer server.Close()

	result, err := Probe(context.Background(), http.DefaultClient, server.URL()+"/file.bin", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.SupportsRange {
		t.Error("plain 200 means no range support")
	}
	if result.FileSize != 2048 {
		t.Errorf("FileSize = %d", result.FileSize)
	}
	if result.Filename != "file.bin" {
		t.Errorf("Filename = %q", result.Filename)
	}
}
