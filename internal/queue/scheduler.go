package queue

import (
	"context"
	"sync"
	"time"

	"github.com/omniget/omniget/internal/errs"
	"github.com/omniget/omniget/internal/events"
	"github.com/omniget/omniget/internal/logx"
	"github.com/omniget/omniget/internal/progress"
	"github.com/omniget/omniget/internal/types"
)

// Runner performs one download. The context is the item's cancellation
// token; onProgress receives the transport's raw callbacks.
type Runner func(ctx context.Context, item Item, onProgress types.ProgressFunc) (*types.DownloadResult, error)

// Scheduler drains the queue, keeping at most the configured number of
// downloads running and staggering starts so a burst of enqueues does not
// slam the network all at once.
type Scheduler struct {
	queue   *Queue
	cfg     *types.RuntimeConfig
	run     Runner
	emitter events.Emitter

	wake chan struct{}
	wg   sync.WaitGroup
}

// NewScheduler wires a scheduler to its queue and runner.
func NewScheduler(q *Queue, cfg *types.RuntimeConfig, run Runner, emitter events.Emitter) *Scheduler {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &Scheduler{
		queue:   q,
		cfg:     cfg,
		run:     run,
		emitter: emitter,
		wake:    make(chan struct{}, 1),
	}
}

// Kick asks the scheduler to look for startable work. Safe to call from any
// goroutine; redundant kicks coalesce.
func (s *Scheduler) Kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run processes the queue until ctx is cancelled, then waits for in-flight
// downloads to wind down.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-s.wake:
			s.dispatch(ctx)
		}
	}
}

// dispatch starts every item that fits under the concurrency cap. Exported
// through Kick for the event loop; called directly by tests.
func (s *Scheduler) dispatch(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if s.queue.ActiveCount() >= s.cfg.GetMaxConcurrentDownloads() {
			return
		}
		id := s.queue.NextQueued()
		if id == 0 {
			return
		}

		itemCtx, err := s.queue.MarkActive(id)
		if err != nil {
			logx.Warn("failed to activate item %d: %v", id, err)
			continue
		}
		s.emitState()

		item := s.queue.Get(id)
		s.wg.Add(1)
		go s.runItem(itemCtx, *item)

		// Stagger before starting the next one.
		if delay := s.cfg.GetStaggerDelay(); delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
}

func (s *Scheduler) runItem(ctx context.Context, item Item) {
	defer s.wg.Done()
	defer s.Kick() // a finished slot may admit the next queued item

	tracker := progress.NewTracker(0)
	if item.Total > 0 {
		tracker.SetTotal(item.Total)
	}

	onProgress := func(percent float64, downloaded, total int64) {
		update, emit := tracker.Observe(percent, downloaded, total)
		if !emit {
			return
		}
		s.queue.UpdateProgress(item.ID, update.Percent, update.DownloadedBytes, update.TotalBytes, update.SpeedBPS, update.ETASeconds)
		s.emitProgress(item, update)
	}

	logx.Info("starting download %d: %s", item.ID, logx.ScrubURL(item.URL))
	result, err := s.run(ctx, item, onProgress)
	if err != nil {
		if errs.IsCancelled(err) || ctx.Err() != nil {
			// Pause and Cancel already set the item's state; the late error
			// from the aborted transport is expected.
			logx.Debug("download %d stopped: %v", item.ID, err)
		} else {
			logx.Error("download %d failed: %v", item.ID, err)
			s.queue.Fail(item.ID, errs.UserMessage(err))
		}
		s.emitState()
		return
	}

	s.queue.Complete(item.ID, result)
	logx.Info("download %d completed: %s", item.ID, result.FilePath)
	s.emitState()
}

func (s *Scheduler) emitState() {
	s.emitter.QueueState(s.queue.Snapshots())
}

func (s *Scheduler) emitProgress(item Item, u progress.Update) {
	p := events.ItemProgress{
		ID:               item.ID,
		Title:            item.Title,
		Platform:         item.Platform,
		Percent:          u.Percent,
		SpeedBytesPerSec: u.SpeedBPS,
		DownloadedBytes:  u.DownloadedBytes,
		Phase:            "downloading",
	}
	if u.TotalBytes > 0 {
		total := u.TotalBytes
		p.TotalBytes = &total
	}
	s.emitter.ItemProgress(p)
}
