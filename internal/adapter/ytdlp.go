package adapter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/omniget/omniget/internal/binaries"
	"github.com/omniget/omniget/internal/classify"
	"github.com/omniget/omniget/internal/course"
	"github.com/omniget/omniget/internal/errs"
	"github.com/omniget/omniget/internal/fsutil"
	"github.com/omniget/omniget/internal/logx"
	"github.com/omniget/omniget/internal/netutil"
	"github.com/omniget/omniget/internal/transport/direct"
	"github.com/omniget/omniget/internal/transport/hls"
	"github.com/omniget/omniget/internal/types"
)

// YtDlp is the catch-all adapter: metadata comes from the yt-dlp binary,
// bytes flow through the engine's own transports so retry, progress and
// verification behave identically to every other platform.
type YtDlp struct{}

// NewYtDlp creates the generic extractor-backed adapter.
func NewYtDlp() *YtDlp { return &YtDlp{} }

func (y *YtDlp) Name() string { return "yt-dlp" }

// CanHandle accepts any web URL; register this adapter last.
func (y *YtDlp) CanHandle(rawurl string) bool {
	return strings.HasPrefix(rawurl, "http://") || strings.HasPrefix(rawurl, "https://")
}

func (y *YtDlp) GetMediaInfo(ctx context.Context, rawurl string, cfg *types.RuntimeConfig) (*types.MediaInfo, error) {
	bin, err := binaries.Lookup("yt-dlp")
	if err != nil {
		return nil, err
	}

	mctx, cancel := context.WithTimeout(ctx, types.MetadataTimeout)
	defer cancel()

	// Course and playlist URLs keep their entries; for anything else a list=
	// parameter must not silently expand a single video into a playlist.
	_, kind := classify.Classify(rawurl)
	multi := kind == classify.KindCourse || kind == classify.KindPlaylist

	args := []string{"-J", "--no-warnings"}
	if !multi {
		args = append(args, "--no-playlist")
	}
	if ua := cfg.GetUserAgent(); ua != "" {
		args = append(args, "--user-agent", ua)
	}
	if proxy := netutil.CurrentProxyURL(); proxy != "" {
		args = append(args, "--proxy", proxy)
	}
	args = append(args, rawurl)

	cmd := exec.CommandContext(mctx, bin, args...)
	cmd.Env = binaries.ChildEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logx.Debug("extracting media info: %s", logx.ScrubURL(rawurl))
	if err := cmd.Run(); err != nil {
		if mctx.Err() != nil {
			return nil, errs.Wrap(errs.KindTimeout, "metadata extraction timed out", mctx.Err())
		}
		return nil, fmt.Errorf("metadata extraction failed: %s", extractorError(stderr.String()))
	}

	if multi {
		return parsePlaylistJSON(stdout.Bytes(), rawurl)
	}
	return parseInfoJSON(stdout.Bytes(), rawurl)
}

func (y *YtDlp) Download(ctx context.Context, info *types.MediaInfo, opts types.DownloadOptions, cfg *types.RuntimeConfig, onProgress types.ProgressFunc) (*types.DownloadResult, error) {
	headers := map[string]string{"User-Agent": cfg.GetUserAgent()}
	if opts.Referer != "" {
		headers["Referer"] = opts.Referer
	}

	if len(info.Lessons) > 0 {
		cur := course.Curriculum{Title: info.Title}
		for _, l := range info.Lessons {
			cur.Lessons = append(cur.Lessons, course.Lesson{
				Index:       l.Index,
				Section:     l.Section,
				Title:       l.Title,
				PlaylistURL: l.PlaylistURL,
			})
		}
		return course.Download(ctx, netutil.NewStreamClient(), cur, opts.OutputDir, headers, cfg, onProgress)
	}

	quality := pickQuality(info, opts)
	if quality == nil {
		return nil, fmt.Errorf("no downloadable format for %s", info.Title)
	}

	dest := buildOutputPath(opts.OutputDir, info, quality)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, err
	}

	start := time.Now()
	var written int64
	var err error
	if quality.IsHLS {
		written, err = hls.Download(ctx, netutil.NewStreamClient(), quality.URL, dest, headers, cfg, onProgress)
	} else {
		written, err = direct.Download(ctx, netutil.NewStreamClient(), quality.URL, dest, headers, onProgress)
	}
	if err != nil {
		return nil, err
	}

	if cfg != nil && cfg.TelegramFixExtensions {
		if fixed, fixErr := fsutil.FixExtension(dest); fixErr == nil {
			dest = fixed
		}
	}

	logx.Info("downloaded %s (%d bytes in %s)", dest, written, time.Since(start).Round(time.Millisecond))
	return &types.DownloadResult{
		FilePath:  dest,
		FileSize:  written,
		FileCount: 1,
		Duration:  info.Duration,
	}, nil
}

// pickQuality resolves opts to one concrete rendition.
func pickQuality(info *types.MediaInfo, opts types.DownloadOptions) *types.VideoQuality {
	if opts.FormatID != "" {
		for i := range info.Qualities {
			if info.Qualities[i].FormatID == opts.FormatID {
				return &info.Qualities[i]
			}
		}
	}
	if opts.Mode == types.ModeAudioOnly {
		if audio := bestAudio(info.Qualities); audio != nil {
			return audio
		}
	}
	return bestVideo(info.Qualities, opts.Quality)
}

func buildOutputPath(outputDir string, info *types.MediaInfo, quality *types.VideoQuality) string {
	name := fsutil.SanitizeFilename(info.Title)
	if name == "" {
		name = "download"
	}
	ext := quality.Ext
	if ext == "" {
		if quality.IsHLS {
			ext = "ts"
		} else {
			ext = "bin"
		}
	}
	return filepath.Join(outputDir, name+"."+ext)
}

// extractorError trims yt-dlp stderr down to the line worth surfacing.
func extractorError(stderr string) string {
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
	}
	if s := strings.TrimSpace(stderr); s != "" {
		return s
	}
	return "unknown extractor error"
}
