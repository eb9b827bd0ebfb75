// Package tgfile downloads files addressed by MTProto-style locations in
// fixed 1 MiB parts. The wire client is abstracted behind PartFetcher so the
// part planner, the retry and flood-wait policy, and the parallel WriteAt
// assembly can be tested without a live session.
package tgfile

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omniget/omniget/internal/errs"
	"github.com/omniget/omniget/internal/logx"
	"github.com/omniget/omniget/internal/types"
)

const (
	partAttempts      = 4
	maxFloodWaits     = 3
	maxRefreshes      = 2
	sequentialCeiling = 5 * types.MB
)

// Location addresses a remote file. FileReference goes stale over time; a
// fresh one is obtained through PartFetcher.RefreshLocation.
type Location struct {
	ID            int64
	AccessHash    int64
	FileReference []byte
	Size          int64
	Name          string
	DC            int
}

// PartFetcher is the wire client: it retrieves raw parts and refreshes stale
// locations. Implementations return errors carrying the MTProto error string
// (FLOOD_WAIT_n, FILE_REFERENCE_EXPIRED) so the policy layer can react.
type PartFetcher interface {
	FetchPart(ctx context.Context, loc Location, offset int64, limit int) ([]byte, error)
	RefreshLocation(ctx context.Context, loc Location) (Location, error)
}

// BestThreads picks the parallelism for a file of the given size. Small
// files gain nothing from parallel parts; large ones are capped at max.
func BestThreads(size int64, max int) int {
	if max < 1 {
		max = 1
	}
	var want int
	switch {
	case size < 1*types.MB:
		want = 1
	case size < 5*types.MB:
		want = 2
	case size < 20*types.MB:
		want = 4
	case size < 50*types.MB:
		want = 8
	default:
		want = max
	}
	if want > max {
		want = max
	}
	return want
}

// PartPlan lists the byte ranges of a download, in order.
type PartPlan []partRange

type partRange struct {
	Index  int
	Offset int64
	Length int
}

// PlanParts splits size bytes into fixed 1 MiB parts; the final part carries
// the remainder.
func PlanParts(size int64) PartPlan {
	if size <= 0 {
		return nil
	}
	count := int((size + types.PartSize - 1) / types.PartSize)
	plan := make(PartPlan, 0, count)
	for i := 0; i < count; i++ {
		offset := int64(i) * types.PartSize
		length := int64(types.PartSize)
		if offset+length > size {
			length = size - offset
		}
		plan = append(plan, partRange{Index: i, Offset: offset, Length: int(length)})
	}
	return plan
}

// downloader carries the per-download shared state: the current location
// (swapped on refresh) and the flood-wait and refresh budgets, which are
// global to the download rather than per part.
type downloader struct {
	fetcher PartFetcher

	mu        sync.Mutex
	loc       Location
	refreshes int

	floodWaits atomic.Int32
	downloaded atomic.Int64
}

// Download fetches the file at loc into dest. Bytes land in dest+".part",
// preallocated and written in place, and the file is renamed once every part
// checks out. Returns bytes written.
func Download(ctx context.Context, fetcher PartFetcher, loc Location, dest string, cfg *types.RuntimeConfig, onProgress types.ProgressFunc) (int64, error) {
	if loc.Size <= 0 {
		return 0, errs.New(errs.KindFatalHTTP, "location has no size")
	}

	d := &downloader{fetcher: fetcher, loc: loc}
	plan := PlanParts(loc.Size)
	threads := BestThreads(loc.Size, cfg.GetTelegramConcurrency())
	logx.Debug("part download: %d bytes, %d parts, %d threads", loc.Size, len(plan), threads)

	partPath := dest + types.IncompleteSuffix
	out, err := os.Create(partPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create part file: %w", err)
	}
	if err := out.Truncate(loc.Size); err != nil {
		out.Close()
		os.Remove(partPath)
		return 0, fmt.Errorf("failed to preallocate: %w", err)
	}

	if loc.Size < sequentialCeiling || threads == 1 {
		err = d.runSequential(ctx, plan, out, onProgress)
	} else {
		err = d.runParallel(ctx, plan, threads, out, onProgress)
	}
	if err != nil {
		out.Close()
		os.Remove(partPath)
		if ctx.Err() != nil {
			return 0, errs.Wrap(errs.KindCancelled, "cancelled", ctx.Err())
		}
		return 0, err
	}

	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(partPath)
		return 0, fmt.Errorf("sync error: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(partPath)
		return 0, fmt.Errorf("close error: %w", err)
	}

	written := d.downloaded.Load()
	if written != loc.Size {
		os.Remove(partPath)
		return 0, errs.New(errs.KindSizeMismatch,
			fmt.Sprintf("size mismatch: wrote %d of %d bytes", written, loc.Size))
	}
	if err := os.Rename(partPath, dest); err != nil {
		return 0, fmt.Errorf("failed to finalize file: %w", err)
	}
	if onProgress != nil {
		onProgress(100, written, written)
	}
	return written, nil
}

func (d *downloader) runSequential(ctx context.Context, plan PartPlan, out *os.File, onProgress types.ProgressFunc) error {
	total := plan.totalBytes()
	for _, part := range plan {
		data, err := d.fetchPartWithPolicy(ctx, part)
		if err != nil {
			return err
		}
		if _, err := out.WriteAt(data, part.Offset); err != nil {
			return fmt.Errorf("write error: %w", err)
		}
		d.emitProgress(onProgress, int64(len(data)), total)
	}
	return nil
}

func (d *downloader) runParallel(ctx context.Context, plan PartPlan, threads int, out *os.File, onProgress types.ProgressFunc) error {
	total := plan.totalBytes()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for _, part := range plan {
		part := part
		g.Go(func() error {
			data, err := d.fetchPartWithPolicy(gctx, part)
			if err != nil {
				return err
			}
			if _, err := out.WriteAt(data, part.Offset); err != nil {
				return fmt.Errorf("write error: %w", err)
			}
			d.emitProgress(onProgress, int64(len(data)), total)
			return nil
		})
	}
	return g.Wait()
}

func (p PartPlan) totalBytes() int64 {
	var n int64
	for _, part := range p {
		n += int64(part.Length)
	}
	return n
}

func (d *downloader) emitProgress(onProgress types.ProgressFunc, chunk, total int64) {
	done := d.downloaded.Add(chunk)
	if onProgress == nil {
		return
	}
	percent := float64(done) / float64(total) * 100
	if percent >= 100 {
		percent = 99 // terminal 100 follows the rename
	}
	onProgress(percent, done, total)
}

// fetchPartWithPolicy retrieves one part, applying the shared retry, flood
// wait and file reference refresh policy.
func (d *downloader) fetchPartWithPolicy(ctx context.Context, part partRange) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < partAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1000<<(attempt-1)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, errs.Wrap(errs.KindCancelled, "cancelled", ctx.Err())
			case <-time.After(delay):
			}
		}

		d.mu.Lock()
		loc := d.loc
		d.mu.Unlock()

		data, err := d.fetcher.FetchPart(ctx, loc, part.Offset, part.Length)
		if err == nil {
			if len(data) != part.Length {
				lastErr = errs.New(errs.KindSizeMismatch,
					fmt.Sprintf("part %d: got %d bytes, want %d", part.Index, len(data), part.Length))
				continue
			}
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.KindCancelled, "cancelled", ctx.Err())
		}

		if seconds, ok := errs.FloodWaitSeconds(err); ok {
			if d.floodWaits.Add(1) > maxFloodWaits {
				return nil, errs.Wrap(errs.KindFloodWait, "flood wait budget exhausted", err)
			}
			wait := time.Duration(seconds+1) * time.Second
			logx.Warn("flood wait: sleeping %s", wait)
			select {
			case <-ctx.Done():
				return nil, errs.Wrap(errs.KindCancelled, "cancelled", ctx.Err())
			case <-time.After(wait):
			}
			attempt-- // flood waits do not consume retry attempts
			continue
		}

		if isFileReferenceError(err) {
			if refreshErr := d.refreshLocation(ctx, loc, err); refreshErr != nil {
				return nil, refreshErr
			}
			attempt-- // a successful refresh earns a free retry
			continue
		}

		if errs.IsFatal(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("part %d failed after %d attempts: %w", part.Index, partAttempts, lastErr)
}

// refreshLocation swaps in a fresh location. The check and the refresh run
// under one lock so concurrent workers hitting the same stale reference
// consume the budget once: latecomers see the updated reference and just
// retry.
func (d *downloader) refreshLocation(ctx context.Context, stale Location, cause error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !bytes.Equal(d.loc.FileReference, stale.FileReference) {
		return nil // already refreshed by another worker
	}
	if d.refreshes >= maxRefreshes {
		return errs.Wrap(errs.KindFileReference, "file reference refresh budget exhausted", cause)
	}
	d.refreshes++

	fresh, err := d.fetcher.RefreshLocation(ctx, d.loc)
	if err != nil {
		return errs.Wrap(errs.KindFileReference, "failed to refresh file reference", err)
	}
	d.loc = fresh
	return nil
}

func isFileReferenceError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FILE_REFERENCE")
}
