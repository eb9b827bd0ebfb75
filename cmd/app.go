package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/omniget/omniget/internal/adapter"
	"github.com/omniget/omniget/internal/config"
	"github.com/omniget/omniget/internal/errs"
	"github.com/omniget/omniget/internal/ffmpeg"
	"github.com/omniget/omniget/internal/logx"
	"github.com/omniget/omniget/internal/queue"
	"github.com/omniget/omniget/internal/store"
	"github.com/omniget/omniget/internal/thumbcache"
	"github.com/omniget/omniget/internal/types"
)

// app owns the wired engine: registry, queue, scheduler and history. It
// implements tui.Controller so the dashboard can drive the queue directly.
type app struct {
	settings  *config.Settings
	cfg       *types.RuntimeConfig
	registry  *adapter.Registry
	queue     *queue.Queue
	scheduler *queue.Scheduler
	history   *store.Store
	thumbs    *thumbcache.Cache
}

// newRegistry registers adapters in routing order: specific before catch-all.
func newRegistry() *adapter.Registry {
	reg := adapter.NewRegistry()
	reg.Register(adapter.NewDirectFile())
	reg.Register(adapter.NewYtDlp())
	return reg
}

// runItem is the scheduler's Runner: resolve metadata, route to the adapter,
// record the outcome in history.
func (a *app) runItem(ctx context.Context, item queue.Item, onProgress types.ProgressFunc) (*types.DownloadResult, error) {
	ad, err := a.registry.Find(item.URL)
	if err != nil {
		a.record(item, "", nil, err)
		return nil, err
	}

	info, err := ad.GetMediaInfo(ctx, item.URL, a.cfg)
	if err != nil {
		a.record(item, "", nil, err)
		return nil, fmt.Errorf("metadata: %w", err)
	}
	a.queue.SetTitle(item.ID, info.Title)

	opts := item.Options
	if opts.OutputDir == "" {
		opts.OutputDir = a.settings.Download.DefaultOutputDir
	}

	result, err := ad.Download(ctx, info, opts, a.cfg, onProgress)
	if err != nil {
		if !errs.IsCancelled(err) && ctx.Err() == nil {
			a.record(item, info.Title, nil, err)
		}
		return nil, err
	}

	if a.cfg.EmbedThumbnail {
		a.embedThumbnail(ctx, info, result)
	}

	a.record(item, info.Title, result, nil)
	return result, nil
}

// embedThumbnail attaches the extractor's thumbnail as cover art. Best
// effort: any failure leaves the downloaded file untouched.
func (a *app) embedThumbnail(ctx context.Context, info *types.MediaInfo, result *types.DownloadResult) {
	if a.thumbs == nil || info.Thumbnail == "" || result == nil || result.FileCount != 1 {
		return
	}

	data, err := a.thumbs.Get(ctx, info.Thumbnail)
	if err != nil {
		logx.Warn("thumbnail fetch failed for %s: %v", logx.ScrubURL(info.Thumbnail), err)
		return
	}

	thumbPath := result.FilePath + ".thumb"
	if err := os.WriteFile(thumbPath, data, 0o644); err != nil {
		logx.Warn("failed to stage thumbnail for %s: %v", result.FilePath, err)
		return
	}
	defer os.Remove(thumbPath)

	// The temporary output keeps the extension so ffmpeg picks the container.
	out := result.FilePath + ".cover" + filepath.Ext(result.FilePath)
	job := ffmpeg.NewJob(ffmpeg.EmbedThumbnailArgs(result.FilePath, thumbPath, out), 0)
	if err := ffmpeg.Run(ctx, job, nil); err != nil {
		logx.Warn("thumbnail embed failed for %s: %v", result.FilePath, err)
		os.Remove(out)
		return
	}
	if err := os.Rename(out, result.FilePath); err != nil {
		logx.Warn("failed to finalize thumbnail embed for %s: %v", result.FilePath, err)
		os.Remove(out)
	}
}

// record writes a history row. History failures are logged, never surfaced:
// the download itself already succeeded or failed on its own terms.
func (a *app) record(item queue.Item, title string, result *types.DownloadResult, cause error) {
	if a.history == nil {
		return
	}

	rec := &store.Record{
		URL:      item.URL,
		Platform: item.Platform,
		Title:    title,
		Status:   "completed",
	}
	if result != nil {
		rec.FilePath = result.FilePath
		rec.FileSize = result.FileSize
		rec.FileCount = result.FileCount
		rec.CompletedAt = time.Now()
	}
	if cause != nil {
		rec.Status = "failed"
		rec.Error = errs.UserMessage(cause)
	}

	if _, err := a.history.Add(rec); err != nil {
		logx.Warn("failed to record history for %s: %v", logx.ScrubURL(item.URL), err)
	}
}

// Controller implementation for the dashboard. Enqueue kicks the scheduler so
// new items start without waiting for another event.

func (a *app) Enqueue(rawurl string, opts types.DownloadOptions) error {
	if _, err := a.queue.Enqueue(rawurl, opts); err != nil {
		return err
	}
	a.scheduler.Kick()
	return nil
}

func (a *app) Pause(id int64) error  { return a.queue.Pause(id) }
func (a *app) Cancel(id int64) error { return a.queue.Cancel(id) }

func (a *app) Resume(id int64) error {
	if err := a.queue.Resume(id); err != nil {
		return err
	}
	a.scheduler.Kick()
	return nil
}

func (a *app) Retry(id int64) error {
	if err := a.queue.Retry(id); err != nil {
		return err
	}
	a.scheduler.Kick()
	return nil
}

func (a *app) Remove(id int64) error { return a.queue.Remove(id) }
func (a *app) ClearFinished() int    { return a.queue.ClearFinished() }
