// Package course downloads multi-lesson curricula: every lesson is one HLS
// stream, finished lessons are skipped via their completion manifests, and a
// failed lesson gets a bounded outer retry with its partial output removed
// between attempts.
package course

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/omniget/omniget/internal/errs"
	"github.com/omniget/omniget/internal/fsutil"
	"github.com/omniget/omniget/internal/logx"
	"github.com/omniget/omniget/internal/transport/hls"
	"github.com/omniget/omniget/internal/types"
)

const (
	lessonAttempts    = 3
	lessonBackoffBase = time.Second
)

// Lesson is one unit of a curriculum.
type Lesson struct {
	Index       int // position within the course, 1-based for filenames
	Section     string
	Title       string
	PlaylistURL string
}

// Curriculum is an ordered course.
type Curriculum struct {
	Title   string
	Lessons []Lesson
}

// Download fetches every lesson of the curriculum into its own file under
// outputDir/<course>/<section>/. Lessons with a valid completion manifest
// are skipped without network traffic, so an interrupted course run resumes
// where it stopped. Returns accumulated totals.
func Download(ctx context.Context, client *http.Client, cur Curriculum, outputDir string, headers map[string]string, cfg *types.RuntimeConfig, onProgress types.ProgressFunc) (*types.DownloadResult, error) {
	if len(cur.Lessons) == 0 {
		return nil, fmt.Errorf("curriculum %q has no lessons", cur.Title)
	}

	courseDir := filepath.Join(outputDir, fsutil.SanitizeFilename(cur.Title))
	var totalBytes int64
	count := len(cur.Lessons)

	for i, lesson := range cur.Lessons {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.KindCancelled, "cancelled", ctx.Err())
		}

		dest := lessonPath(courseDir, lesson)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, err
		}

		lessonProgress := scaleProgress(onProgress, i, count)
		written, err := downloadLesson(ctx, client, lesson, dest, headers, cfg, lessonProgress)
		if err != nil {
			return nil, fmt.Errorf("lesson %d (%s): %w", lesson.Index, lesson.Title, err)
		}
		totalBytes += written
	}

	if onProgress != nil {
		onProgress(100, totalBytes, totalBytes)
	}
	return &types.DownloadResult{
		FilePath:  courseDir,
		FileSize:  totalBytes,
		FileCount: count,
	}, nil
}

// downloadLesson runs the outer retry loop around one HLS download. The
// transport already retries individual segments; this loop catches whole
// attempts dying (expired playlist, mid-stream key rotation) and starts the
// lesson over clean.
func downloadLesson(ctx context.Context, client *http.Client, lesson Lesson, dest string, headers map[string]string, cfg *types.RuntimeConfig, onProgress types.ProgressFunc) (int64, error) {
	var lastErr error
	for attempt := 0; attempt < lessonAttempts; attempt++ {
		if attempt > 0 {
			// Remove the partial output so the retry starts from scratch.
			os.Remove(dest)
			os.Remove(dest + types.IncompleteSuffix)

			delay := lessonBackoffBase << (attempt - 1)
			logx.Warn("retrying lesson %q in %s (attempt %d/%d)", lesson.Title, delay, attempt+1, lessonAttempts)
			select {
			case <-ctx.Done():
				return 0, errs.Wrap(errs.KindCancelled, "cancelled", ctx.Err())
			case <-time.After(delay):
			}
		}

		written, err := hls.Download(ctx, client, lesson.PlaylistURL, dest, headers, cfg, onProgress)
		if err == nil {
			return written, nil
		}
		if errs.IsFatal(err) {
			return 0, err
		}
		lastErr = err
	}
	return 0, fmt.Errorf("failed after %d attempts: %w", lessonAttempts, lastErr)
}

// scaleProgress maps one lesson's 0..100 onto the course-wide range.
func scaleProgress(onProgress types.ProgressFunc, index, count int) types.ProgressFunc {
	if onProgress == nil {
		return nil
	}
	return func(percent float64, downloaded, total int64) {
		overall := (float64(index) + percent/100) / float64(count) * 100
		if overall > 100 {
			overall = 100
		}
		onProgress(overall, downloaded, 0)
	}
}

func lessonPath(courseDir string, lesson Lesson) string {
	name := fmt.Sprintf("%02d - %s.ts", lesson.Index, fsutil.SanitizeFilename(lesson.Title))
	if lesson.Section != "" {
		return filepath.Join(courseDir, fsutil.SanitizeFilename(lesson.Section), name)
	}
	return filepath.Join(courseDir, name)
}
