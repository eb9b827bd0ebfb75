// Package progress turns the raw per-chunk callbacks of the transports into
// throttled, smoothed updates fit for a UI: an EMA over instantaneous speed,
// an ETA once enough wall time has passed, and a rate limit that never
// swallows the terminal update.
package progress

import (
	"sync"
	"time"
)

const (
	// DefaultMinInterval is the minimum spacing between emitted updates.
	DefaultMinInterval = 200 * time.Millisecond

	// speedSampleFloor is the smallest dt a speed sample is computed over;
	// tighter samples are noise.
	speedSampleFloor = 100 * time.Millisecond

	// etaWarmup is how long the tracker waits before publishing an ETA.
	etaWarmup = 2 * time.Second

	// emaWeight is the weight of the previous smoothed speed.
	emaWeight = 0.7
)

// Update is one smoothed progress report.
type Update struct {
	Percent         float64
	DownloadedBytes int64
	TotalBytes      int64 // 0 when unknown
	SpeedBPS        float64
	ETASeconds      int64 // -1 when unknown
}

// Tracker accumulates raw progress for one download.
type Tracker struct {
	mu          sync.Mutex
	minInterval time.Duration
	start       time.Time
	lastEmit    time.Time
	lastSample  time.Time
	lastBytes   int64
	bytes       int64
	total       int64
	emaSpeed    float64
	started     bool

	now func() time.Time
}

// NewTracker creates a tracker emitting at most one update per minInterval.
// Zero uses the default.
func NewTracker(minInterval time.Duration) *Tracker {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	return &Tracker{minInterval: minInterval, now: time.Now}
}

// SetTotal records the expected size when it becomes known after creation.
func (t *Tracker) SetTotal(total int64) {
	t.mu.Lock()
	t.total = total
	t.mu.Unlock()
}

// ObserveBytes feeds byte movement without a percent, for transports that
// count bytes before the total is known. It only updates the speed estimate.
func (t *Tracker) ObserveBytes(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureStarted()
	t.bytes += n
	t.sampleSpeed()
}

// Observe ingests one raw progress callback and reports whether an update
// should be emitted now. Terminal updates (percent >= 100) always pass the
// throttle.
func (t *Tracker) Observe(percent float64, downloaded, total int64) (Update, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureStarted()

	if total > 0 {
		t.total = total
	}
	if downloaded > 0 {
		t.bytes = downloaded
	} else if percent > 0 && t.total > 0 {
		// Percent-only feed: derive bytes from the known total.
		t.bytes = int64(percent / 100 * float64(t.total))
	}
	t.sampleSpeed()

	terminal := percent >= 100
	now := t.now()
	if !terminal && !t.lastEmit.IsZero() && now.Sub(t.lastEmit) < t.minInterval {
		return Update{}, false
	}
	t.lastEmit = now

	return t.snapshot(percent, now), true
}

// Snapshot returns the current state without consulting the throttle.
func (t *Tracker) Snapshot(percent float64) Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureStarted()
	return t.snapshot(percent, t.now())
}

func (t *Tracker) ensureStarted() {
	if !t.started {
		t.started = true
		now := t.now()
		t.start = now
		t.lastSample = now
	}
}

// sampleSpeed folds the bytes moved since the last sample into the EMA.
// Samples tighter than the floor are deferred so a burst of tiny chunks does
// not read as infinite speed.
func (t *Tracker) sampleSpeed() {
	now := t.now()
	dt := now.Sub(t.lastSample)
	if dt < speedSampleFloor {
		return
	}
	instant := float64(t.bytes-t.lastBytes) / dt.Seconds()
	if t.emaSpeed == 0 {
		t.emaSpeed = instant
	} else {
		t.emaSpeed = emaWeight*t.emaSpeed + (1-emaWeight)*instant
	}
	t.lastSample = now
	t.lastBytes = t.bytes
}

func (t *Tracker) snapshot(percent float64, now time.Time) Update {
	if percent > 100 {
		percent = 100
	}
	u := Update{
		Percent:         percent,
		DownloadedBytes: t.bytes,
		TotalBytes:      t.total,
		SpeedBPS:        t.emaSpeed,
		ETASeconds:      -1,
	}
	elapsed := now.Sub(t.start)
	if elapsed >= etaWarmup && percent > 0 && percent < 100 {
		u.ETASeconds = int64(elapsed.Seconds() * (100 - percent) / percent)
	}
	if percent >= 100 {
		u.ETASeconds = 0
	}
	return u
}
