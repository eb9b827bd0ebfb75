package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the tracker deterministically.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(minInterval time.Duration) (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	tr := NewTracker(minInterval)
	tr.now = clock.now
	return tr, clock
}

func TestThrottleSpacing(t *testing.T) {
	tr, clock := newTestTracker(200 * time.Millisecond)

	_, emit := tr.Observe(1, 100, 10000)
	assert.True(t, emit, "first update always emits")

	clock.advance(50 * time.Millisecond)
	_, emit = tr.Observe(2, 200, 10000)
	assert.False(t, emit, "update inside the interval is suppressed")

	clock.advance(200 * time.Millisecond)
	_, emit = tr.Observe(3, 300, 10000)
	assert.True(t, emit)
}

func TestTerminalAlwaysEmits(t *testing.T) {
	tr, clock := newTestTracker(time.Hour)

	_, emit := tr.Observe(50, 5000, 10000)
	require.True(t, emit)

	clock.advance(time.Millisecond)
	u, emit := tr.Observe(100, 10000, 10000)
	assert.True(t, emit, "terminal update bypasses the throttle")
	assert.Equal(t, 100.0, u.Percent)
	assert.Equal(t, int64(0), u.ETASeconds)
}

func TestSpeedEMA(t *testing.T) {
	tr, clock := newTestTracker(time.Millisecond)

	tr.Observe(0, 0, 0)

	// 1 MB over 1s: instant 1e6, EMA seeds at the first sample.
	clock.advance(time.Second)
	tr.Observe(10, 1_000_000, 10_000_000)
	u := tr.Snapshot(10)
	assert.InDelta(t, 1_000_000, u.SpeedBPS, 1)

	// Second second moves 2 MB: instant 2e6, EMA = 0.7*1e6 + 0.3*2e6 = 1.3e6.
	clock.advance(time.Second)
	tr.Observe(30, 3_000_000, 10_000_000)
	u = tr.Snapshot(30)
	assert.InDelta(t, 1_300_000, u.SpeedBPS, 1)
}

func TestSpeedSampleFloor(t *testing.T) {
	tr, clock := newTestTracker(time.Millisecond)
	tr.Observe(0, 0, 0)

	// 50ms apart: below the floor, no speed sample taken.
	clock.advance(50 * time.Millisecond)
	tr.Observe(1, 500_000, 0)
	assert.Equal(t, 0.0, tr.Snapshot(1).SpeedBPS)

	// Crossing the floor folds the accumulated bytes in at the true rate.
	clock.advance(60 * time.Millisecond)
	tr.Observe(2, 1_100_000, 0)
	got := tr.Snapshot(2).SpeedBPS
	assert.InDelta(t, 10_000_000, got, 10_000, "1.1 MB over 110ms")
}

func TestETAWarmup(t *testing.T) {
	tr, clock := newTestTracker(time.Millisecond)

	u, _ := tr.Observe(10, 1000, 10000)
	assert.Equal(t, int64(-1), u.ETASeconds, "no ETA before the warmup")

	clock.advance(time.Second)
	u, _ = tr.Observe(25, 2500, 10000)
	assert.Equal(t, int64(-1), u.ETASeconds)

	// 4 seconds in at 25%: remaining = 4 * 75/25 = 12s.
	clock.advance(3 * time.Second)
	u, _ = tr.Observe(25, 2500, 10000)
	assert.Equal(t, int64(12), u.ETASeconds)
}

func TestDeriveBytesFromPercent(t *testing.T) {
	tr, _ := newTestTracker(time.Millisecond)
	tr.SetTotal(8_000_000)

	u, emit := tr.Observe(25, 0, 0)
	require.True(t, emit)
	assert.Equal(t, int64(2_000_000), u.DownloadedBytes)
	assert.Equal(t, int64(8_000_000), u.TotalBytes)
}

func TestObserveBytesFeedsSpeed(t *testing.T) {
	tr, clock := newTestTracker(time.Millisecond)

	tr.ObserveBytes(0)
	clock.advance(time.Second)
	tr.ObserveBytes(500_000)

	u := tr.Snapshot(0)
	assert.InDelta(t, 500_000, u.SpeedBPS, 1)
	assert.Equal(t, int64(500_000), u.DownloadedBytes)
}

func TestPercentClamped(t *testing.T) {
	tr, _ := newTestTracker(time.Millisecond)
	u, _ := tr.Observe(104, 100, 100)
	assert.Equal(t, 100.0, u.Percent)
}
