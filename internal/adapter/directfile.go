package adapter

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/omniget/omniget/internal/classify"
	"github.com/omniget/omniget/internal/fsutil"
	"github.com/omniget/omniget/internal/netutil"
	"github.com/omniget/omniget/internal/transport/direct"
	"github.com/omniget/omniget/internal/types"
)

// fileExtensions are URL suffixes claimed by the direct-file adapter. Links
// to plain files skip the extractor entirely.
var fileExtensions = map[string]types.MediaType{
	".mp4": types.MediaVideo, ".mkv": types.MediaVideo, ".webm": types.MediaVideo,
	".mov": types.MediaVideo, ".avi": types.MediaVideo, ".ts": types.MediaVideo,
	".mp3": types.MediaAudio, ".m4a": types.MediaAudio, ".flac": types.MediaAudio,
	".ogg": types.MediaAudio, ".wav": types.MediaAudio, ".opus": types.MediaAudio,
	".jpg": types.MediaPhoto, ".jpeg": types.MediaPhoto, ".png": types.MediaPhoto,
	".gif": types.MediaGif, ".webp": types.MediaPhoto,
	".zip": types.MediaVideo, ".pdf": types.MediaVideo, ".epub": types.MediaVideo,
}

// DirectFile handles URLs that point straight at a file.
type DirectFile struct{}

// NewDirectFile creates the plain-file adapter.
func NewDirectFile() *DirectFile { return &DirectFile{} }

func (d *DirectFile) Name() string { return "direct-file" }

func (d *DirectFile) CanHandle(rawurl string) bool {
	parsed, err := url.Parse(rawurl)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(parsed.Path))
	_, ok := fileExtensions[ext]
	return ok
}

func (d *DirectFile) GetMediaInfo(ctx context.Context, rawurl string, cfg *types.RuntimeConfig) (*types.MediaInfo, error) {
	headers := map[string]string{"User-Agent": cfg.GetUserAgent()}
	probe, err := direct.Probe(ctx, netutil.NewMetadataClient(), rawurl, headers)
	if err != nil {
		return nil, err
	}

	mediaType := types.MediaVideo
	if t, ok := fileExtensions[strings.ToLower(filepath.Ext(probe.Filename))]; ok {
		mediaType = t
	}

	title := strings.TrimSuffix(probe.Filename, filepath.Ext(probe.Filename))
	return &types.MediaInfo{
		URL:       rawurl,
		Title:     title,
		Platform:  classify.PlatformGeneric,
		Type:      mediaType,
		TotalSize: probe.FileSize,
		Qualities: []types.VideoQuality{{
			Label: "original",
			URL:   rawurl,
			Ext:   strings.TrimPrefix(filepath.Ext(probe.Filename), "."),
			Size:  probe.FileSize,
		}},
	}, nil
}

func (d *DirectFile) Download(ctx context.Context, info *types.MediaInfo, opts types.DownloadOptions, cfg *types.RuntimeConfig, onProgress types.ProgressFunc) (*types.DownloadResult, error) {
	quality := &info.Qualities[0]
	dest := buildOutputPath(opts.OutputDir, info, quality)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, err
	}

	headers := map[string]string{"User-Agent": cfg.GetUserAgent()}
	if opts.Referer != "" {
		headers["Referer"] = opts.Referer
	}

	written, err := direct.Download(ctx, netutil.NewStreamClient(), quality.URL, dest, headers, onProgress)
	if err != nil {
		return nil, err
	}

	if cfg != nil && cfg.TelegramFixExtensions {
		if fixed, fixErr := fsutil.FixExtension(dest); fixErr == nil {
			dest = fixed
		}
	}

	return &types.DownloadResult{FilePath: dest, FileSize: written, FileCount: 1}, nil
}
