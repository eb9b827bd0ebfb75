package hls

import (
	"bytes"
	"context"
	"crypto/rand"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniget/omniget/internal/errs"
	"github.com/omniget/omniget/internal/testutil"
	"github.com/omniget/omniget/internal/types"
)

func defaultConfig() *types.RuntimeConfig {
	return &types.RuntimeConfig{ConcurrentFragments: 4}
}

func TestDownloadPlainStream(t *testing.T) {
	fixture := testutil.NewHLSFixture(8, 4096, nil, 0)
	defer fixture.Close()

	dest := filepath.Join(t.TempDir(), "video.ts")
	written, err := Download(context.Background(), http.DefaultClient, fixture.PlaylistURL(), dest, nil, defaultConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(8*4096), written)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(got, fixture.Plaintext()), "output must be segments concatenated in playlist order")

	_, err = os.Stat(dest + types.IncompleteSuffix)
	assert.True(t, os.IsNotExist(err), "part file must be renamed away")
	assert.True(t, IsComplete(dest), "completion manifest must validate")
}

func TestDownloadEncryptedDerivedIV(t *testing.T) {
	key := make([]byte, 16)
	rand.Read(key)

	// Nonzero media sequence exercises the derived-IV path: IV for segment i
	// is big-endian (sequence + i).
	fixture := testutil.NewHLSFixture(5, 2048, key, 37)
	defer fixture.Close()

	dest := filepath.Join(t.TempDir(), "video.ts")
	written, err := Download(context.Background(), http.DefaultClient, fixture.PlaylistURL(), dest, nil, defaultConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5*2048), written)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(got, fixture.Plaintext()), "decrypted output must match plaintext")

	assert.Equal(t, int64(1), fixture.KeyRequests.Load(), "key must be fetched exactly once")
}

func TestDownloadEncryptedExplicitIV(t *testing.T) {
	key := make([]byte, 16)
	rand.Read(key)
	iv := make([]byte, 16)
	rand.Read(iv)

	fixture := testutil.NewHLSFixture(3, 1024, key, 0)
	fixture.ExplicitIV = iv
	defer fixture.Close()

	dest := filepath.Join(t.TempDir(), "video.ts")
	_, err := Download(context.Background(), http.DefaultClient, fixture.PlaylistURL(), dest, nil, defaultConfig(), nil)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(got, fixture.Plaintext()))
}

func TestDownloadOrderingUnderConcurrency(t *testing.T) {
	// Per-segment latency plus a wide worker pool scrambles completion
	// order; the file must still come out in playlist order.
	fixture := testutil.NewHLSFixture(16, 512, nil, 0)
	fixture.SegmentDelay = 5 * time.Millisecond
	defer fixture.Close()

	cfg := &types.RuntimeConfig{ConcurrentFragments: 8}

	dest := filepath.Join(t.TempDir(), "video.ts")
	_, err := Download(context.Background(), http.DefaultClient, fixture.PlaylistURL(), dest, nil, cfg, nil)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(got, fixture.Plaintext()))
}

func TestDownloadRetriesFlakySegment(t *testing.T) {
	fixture := testutil.NewHLSFixture(4, 1024, nil, 0)
	fixture.FailSegment = 2
	fixture.FailSegmentTimes = 2 // succeeds on the third try
	defer fixture.Close()

	dest := filepath.Join(t.TempDir(), "video.ts")
	_, err := Download(context.Background(), http.DefaultClient, fixture.PlaylistURL(), dest, nil, defaultConfig(), nil)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(got, fixture.Plaintext()))
}

func TestDownloadFailsWhenSegmentExhaustsRetries(t *testing.T) {
	fixture := testutil.NewHLSFixture(4, 1024, nil, 0)
	fixture.FailSegment = 1
	fixture.FailSegmentTimes = 99
	defer fixture.Close()

	dest := filepath.Join(t.TempDir(), "video.ts")
	_, err := Download(context.Background(), http.DefaultClient, fixture.PlaylistURL(), dest, nil, defaultConfig(), nil)
	require.Error(t, err)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "no output file after failure")
	_, statErr = os.Stat(dest + types.IncompleteSuffix)
	assert.True(t, os.IsNotExist(statErr), "part file removed after failure")
	assert.False(t, IsComplete(dest))
}

func TestDownloadSkipsCompleted(t *testing.T) {
	fixture := testutil.NewHLSFixture(3, 1024, nil, 0)
	defer fixture.Close()

	dest := filepath.Join(t.TempDir(), "video.ts")
	_, err := Download(context.Background(), http.DefaultClient, fixture.PlaylistURL(), dest, nil, defaultConfig(), nil)
	require.NoError(t, err)

	before := fixture.PlaylistRequests.Load() + fixture.SegmentRequests.Load()

	var percents []float64
	written, err := Download(context.Background(), http.DefaultClient, fixture.PlaylistURL(), dest, nil, defaultConfig(),
		func(percent float64, downloaded, total int64) {
			percents = append(percents, percent)
		})
	require.NoError(t, err)
	assert.Equal(t, int64(3*1024), written)
	assert.Equal(t, []float64{100}, percents, "skip reports a single terminal update")

	after := fixture.PlaylistRequests.Load() + fixture.SegmentRequests.Load()
	assert.Equal(t, before, after, "a completed download must not touch the network")
}

func TestDownloadStaleManifestRedownloads(t *testing.T) {
	fixture := testutil.NewHLSFixture(3, 1024, nil, 0)
	defer fixture.Close()

	dest := filepath.Join(t.TempDir(), "video.ts")
	_, err := Download(context.Background(), http.DefaultClient, fixture.PlaylistURL(), dest, nil, defaultConfig(), nil)
	require.NoError(t, err)

	// Truncate the file so it no longer matches the manifest.
	require.NoError(t, os.WriteFile(dest, []byte("short"), 0o644))
	assert.False(t, IsComplete(dest))

	written, err := Download(context.Background(), http.DefaultClient, fixture.PlaylistURL(), dest, nil, defaultConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3*1024), written)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(got, fixture.Plaintext()))
}

func TestDownloadCancellation(t *testing.T) {
	fixture := testutil.NewHLSFixture(20, 1024, nil, 0)
	fixture.SegmentDelay = 30 * time.Millisecond
	defer fixture.Close()

	ctx, cancel := context.WithCancel(context.Background())
	dest := filepath.Join(t.TempDir(), "video.ts")

	errCh := make(chan error, 1)
	go func() {
		_, err := Download(ctx, http.DefaultClient, fixture.PlaylistURL(), dest, nil, defaultConfig(), nil)
		errCh <- err
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("download did not stop after cancel")
	}

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

// slowWriter drains far slower than segments arrive, so every fetch finishes
// while the writer is still on the first few indexes.
type slowWriter struct {
	buf   bytes.Buffer
	delay time.Duration
}

func (w *slowWriter) Write(p []byte) (int, error) {
	time.Sleep(w.delay)
	return w.buf.Write(p)
}

func TestDownloadSegmentsSlowWriterGetsEveryByte(t *testing.T) {
	fixture := testutil.NewHLSFixture(12, 256, nil, 0)
	defer fixture.Close()

	pl, _, err := LoadPlaylist(context.Background(), http.DefaultClient, fixture.PlaylistURL(), nil)
	require.NoError(t, err)

	out := &slowWriter{delay: 5 * time.Millisecond}
	cfg := &types.RuntimeConfig{ConcurrentFragments: 8}
	written, err := downloadSegments(context.Background(), http.DefaultClient, pl, nil, nil, cfg, out, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(12*256), written)
	assert.True(t, bytes.Equal(out.buf.Bytes(), fixture.Plaintext()),
		"writer must drain every segment in order after the fetch pool finishes")
}

func TestSegmentDelaySchedule(t *testing.T) {
	assert.Equal(t, 10*time.Second, segmentDelay(errs.KindRateLimited, 1))
	assert.Equal(t, 20*time.Second, segmentDelay(errs.KindRateLimited, 2))
	assert.Equal(t, 40*time.Second, segmentDelay(errs.KindRateLimited, 3))

	assert.Equal(t, 500*time.Millisecond, segmentDelay(errs.KindRetryable, 1))
	assert.Equal(t, time.Second, segmentDelay(errs.KindRetryable, 2))
}

func TestLoadPlaylistTimesOut(t *testing.T) {
	fixture := testutil.NewHLSFixture(2, 256, nil, 0)
	fixture.PlaylistDelay = 2 * time.Second
	defer fixture.Close()

	old := playlistTimeout
	playlistTimeout = 50 * time.Millisecond
	defer func() { playlistTimeout = old }()

	start := time.Now()
	_, _, err := LoadPlaylist(context.Background(), http.DefaultClient, fixture.PlaylistURL(), nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "playlist fetch must respect its deadline")
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "clip.ts")
	require.NoError(t, os.WriteFile(dest, make([]byte, 777), 0o644))

	require.NoError(t, WriteManifest(dest, 777, 9))
	m, err := ReadManifest(dest)
	require.NoError(t, err)
	assert.Equal(t, dest, m.File)
	assert.Equal(t, int64(777), m.Size)
	assert.Equal(t, 9, m.Segments)
	assert.False(t, m.CompletedAt.IsZero())
	assert.True(t, IsComplete(dest))

	// Missing media file invalidates the manifest.
	require.NoError(t, os.Remove(dest))
	assert.False(t, IsComplete(dest))
}
