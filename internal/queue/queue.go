// Package queue holds the download queue: per-item lifecycle, cancellation
// tokens and the scheduler that feeds items to adapters under a concurrency
// cap.
package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omniget/omniget/internal/classify"
	"github.com/omniget/omniget/internal/events"
	"github.com/omniget/omniget/internal/types"
)

// Status is an item's lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusActive    Status = "downloading"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status will never change without user action.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Item is one queued download.
type Item struct {
	ID       int64
	URL      string
	Platform string
	Title    string
	Status   Status
	Error    string
	Options  types.DownloadOptions
	AddedAt  time.Time

	Percent    float64
	Downloaded int64
	Total      int64
	SpeedBPS   float64
	ETASeconds int64

	FilePath  string
	FileSize  int64
	FileCount int

	cancel context.CancelFunc
}

// lastID makes IDs unique even when two items arrive in the same
// millisecond.
var lastID atomic.Int64

func nextID() int64 {
	for {
		now := time.Now().UnixMilli()
		last := lastID.Load()
		if now <= last {
			now = last + 1
		}
		if lastID.CompareAndSwap(last, now) {
			return now
		}
	}
}

// Queue is the ordered set of download items. All methods are safe for
// concurrent use.
type Queue struct {
	mu    sync.Mutex
	items []*Item
}

// New creates an empty queue.
func New() *Queue { return &Queue{} }

// Enqueue admits a URL. A URL already present in a non-terminal state is
// rejected so a double paste cannot download twice.
func (q *Queue) Enqueue(rawurl string, opts types.DownloadOptions) (*Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, it := range q.items {
		if it.URL == rawurl && !it.Status.Terminal() {
			return nil, fmt.Errorf("already in queue: %s", rawurl)
		}
	}

	platform, _ := classify.Classify(rawurl)
	item := &Item{
		ID:         nextID(),
		URL:        rawurl,
		Platform:   platform,
		Status:     StatusQueued,
		Options:    opts,
		AddedAt:    time.Now(),
		ETASeconds: -1,
	}
	q.items = append(q.items, item)
	return item, nil
}

// HasURL reports whether rawurl is queued, downloading or paused.
func (q *Queue) HasURL(rawurl string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.URL == rawurl && !it.Status.Terminal() {
			return true
		}
	}
	return false
}

// MarkActive transitions a queued item to downloading and issues it a fresh
// cancellation token. Reactivating an item never reuses a spent token.
func (q *Queue) MarkActive(id int64) (context.Context, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := q.find(id)
	if item == nil {
		return nil, fmt.Errorf("no such item: %d", id)
	}
	if item.Status != StatusQueued {
		return nil, fmt.Errorf("item %d is %s, not queued", id, item.Status)
	}

	ctx, cancel := context.WithCancel(context.Background())
	item.Status = StatusActive
	item.cancel = cancel
	item.Error = ""
	return ctx, nil
}

// Pause stops an item. An active download is cancelled; a queued item just
// steps aside.
func (q *Queue) Pause(id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := q.find(id)
	if item == nil {
		return fmt.Errorf("no such item: %d", id)
	}
	switch item.Status {
	case StatusActive:
		if item.cancel != nil {
			item.cancel()
			item.cancel = nil
		}
		item.Status = StatusPaused
	case StatusQueued:
		item.Status = StatusPaused
	default:
		return fmt.Errorf("cannot pause item in state %s", item.Status)
	}
	return nil
}

// Resume puts a paused item back through the queued state; the scheduler
// picks it up with a fresh token on its next pass.
func (q *Queue) Resume(id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := q.find(id)
	if item == nil {
		return fmt.Errorf("no such item: %d", id)
	}
	if item.Status != StatusPaused {
		return fmt.Errorf("cannot resume item in state %s", item.Status)
	}
	item.Status = StatusQueued
	return nil
}

// Cancel aborts an item for good.
func (q *Queue) Cancel(id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := q.find(id)
	if item == nil {
		return fmt.Errorf("no such item: %d", id)
	}
	if item.Status.Terminal() {
		return fmt.Errorf("item %d already finished", id)
	}
	if item.cancel != nil {
		item.cancel()
		item.cancel = nil
	}
	item.Status = StatusCancelled
	return nil
}

// Retry requeues a failed or cancelled item, clearing progress and error.
func (q *Queue) Retry(id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := q.find(id)
	if item == nil {
		return fmt.Errorf("no such item: %d", id)
	}
	if item.Status != StatusFailed && item.Status != StatusCancelled {
		return fmt.Errorf("cannot retry item in state %s", item.Status)
	}
	item.Status = StatusQueued
	item.Error = ""
	item.Percent = 0
	item.Downloaded = 0
	item.SpeedBPS = 0
	item.ETASeconds = -1
	return nil
}

// Remove drops an item, cancelling it first if running.
func (q *Queue) Remove(id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, it := range q.items {
		if it.ID == id {
			if it.cancel != nil {
				it.cancel()
			}
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no such item: %d", id)
}

// ClearFinished drops every item in a terminal state and returns how many
// were removed.
func (q *Queue) ClearFinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	removed := 0
	for _, it := range q.items {
		if it.Status.Terminal() {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
	return removed
}

// Complete records a successful download.
func (q *Queue) Complete(id int64, result *types.DownloadResult) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := q.find(id)
	if item == nil || item.Status != StatusActive {
		return
	}
	item.Status = StatusCompleted
	item.Percent = 100
	item.cancel = nil
	item.ETASeconds = 0
	if result != nil {
		item.FilePath = result.FilePath
		item.FileSize = result.FileSize
		item.FileCount = result.FileCount
		item.Downloaded = result.FileSize
		if item.Total == 0 {
			item.Total = result.FileSize
		}
	}
}

// Fail records a failed download. Items paused or cancelled mid-flight keep
// their state; the late error from the dying goroutine is ignored.
func (q *Queue) Fail(id int64, msg string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := q.find(id)
	if item == nil || item.Status != StatusActive {
		return
	}
	item.Status = StatusFailed
	item.Error = msg
	item.cancel = nil
}

// UpdateProgress stores smoothed progress on an active item.
func (q *Queue) UpdateProgress(id int64, percent float64, downloaded, total int64, speed float64, eta int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := q.find(id)
	if item == nil || item.Status != StatusActive {
		return
	}
	item.Percent = percent
	item.Downloaded = downloaded
	if total > 0 {
		item.Total = total
	}
	item.SpeedBPS = speed
	item.ETASeconds = eta
}

// SetTitle fills in the title once metadata resolves.
func (q *Queue) SetTitle(id int64, title string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if item := q.find(id); item != nil {
		item.Title = title
	}
}

// Get returns a copy of the item, or nil.
func (q *Queue) Get(id int64) *Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if item := q.find(id); item != nil {
		clone := *item
		clone.cancel = nil
		return &clone
	}
	return nil
}

// Items returns copies of all items in queue order.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.items))
	for i, it := range q.items {
		out[i] = *it
		out[i].cancel = nil
	}
	return out
}

// NextQueued returns the id of the first queued item, or 0.
func (q *Queue) NextQueued() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.Status == StatusQueued {
			return it.ID
		}
	}
	return 0
}

// ActiveCount returns how many items are downloading.
func (q *Queue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, it := range q.items {
		if it.Status == StatusActive {
			n++
		}
	}
	return n
}

func (q *Queue) find(id int64) *Item {
	for _, it := range q.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

// Snapshots renders the queue for the event stream.
func (q *Queue) Snapshots() []events.ItemSnapshot {
	items := q.Items()
	out := make([]events.ItemSnapshot, len(items))
	for i, it := range items {
		out[i] = snapshotOf(it)
	}
	return out
}

func snapshotOf(it Item) events.ItemSnapshot {
	snap := events.ItemSnapshot{
		ID:               it.ID,
		URL:              it.URL,
		Platform:         it.Platform,
		Title:            it.Title,
		Status:           statusTag(it),
		Percent:          it.Percent,
		SpeedBytesPerSec: it.SpeedBPS,
		DownloadedBytes:  it.Downloaded,
		FilePath:         it.FilePath,
		FileSizeBytes:    it.FileSize,
		FileCount:        it.FileCount,
	}
	if it.Total > 0 {
		total := it.Total
		snap.TotalBytes = &total
	}
	if it.ETASeconds >= 0 {
		eta := it.ETASeconds
		snap.ETASeconds = &eta
	}
	return snap
}

// statusTag maps internal lifecycle states onto the closed set the UI
// contract speaks. Cancellation is an Error tag with data "Cancelled".
func statusTag(it Item) events.StatusTag {
	switch it.Status {
	case StatusQueued:
		return events.StatusTag{Type: events.TagQueued}
	case StatusActive:
		return events.StatusTag{Type: events.TagActive}
	case StatusPaused:
		return events.StatusTag{Type: events.TagPaused}
	case StatusCompleted:
		return events.StatusTag{Type: events.TagComplete}
	case StatusCancelled:
		return events.StatusTag{Type: events.TagError, Data: "Cancelled"}
	case StatusFailed:
		return events.StatusTag{Type: events.TagError, Data: it.Error}
	}
	return events.StatusTag{Type: string(it.Status)}
}
