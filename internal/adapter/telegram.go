package adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/omniget/omniget/internal/classify"
	"github.com/omniget/omniget/internal/fsutil"
	"github.com/omniget/omniget/internal/transport/tgfile"
	"github.com/omniget/omniget/internal/types"
)

// MessageResolver turns a t.me link into a downloadable location. The MTProto
// session lives behind this interface together with tgfile.PartFetcher.
type MessageResolver interface {
	ResolveMessage(ctx context.Context, rawurl string) (*ResolvedMessage, error)
}

// ResolvedMessage is the media payload of one Telegram message.
type ResolvedMessage struct {
	Location tgfile.Location
	Title    string
	Author   string
	Type     types.MediaType
	MimeType string
}

// Telegram downloads media from t.me links over an MTProto session.
type Telegram struct {
	resolver MessageResolver
	fetcher  tgfile.PartFetcher
}

// NewTelegram wires the adapter to a session. Both collaborators are
// required.
func NewTelegram(resolver MessageResolver, fetcher tgfile.PartFetcher) *Telegram {
	return &Telegram{resolver: resolver, fetcher: fetcher}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) CanHandle(rawurl string) bool {
	platform, _ := classify.Classify(rawurl)
	return platform == classify.PlatformTelegram
}

func (t *Telegram) GetMediaInfo(ctx context.Context, rawurl string, cfg *types.RuntimeConfig) (*types.MediaInfo, error) {
	msg, err := t.resolver.ResolveMessage(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve message: %w", err)
	}

	title := msg.Title
	if title == "" {
		title = msg.Location.Name
	}
	mediaType := msg.Type
	if mediaType == "" {
		mediaType = types.MediaVideo
	}

	return &types.MediaInfo{
		URL:       rawurl,
		Title:     title,
		Author:    msg.Author,
		Platform:  classify.PlatformTelegram,
		Type:      mediaType,
		TotalSize: msg.Location.Size,
		Qualities: []types.VideoQuality{{
			Label: "original",
			Ext:   extFromName(msg.Location.Name),
			Size:  msg.Location.Size,
		}},
	}, nil
}

func (t *Telegram) Download(ctx context.Context, info *types.MediaInfo, opts types.DownloadOptions, cfg *types.RuntimeConfig, onProgress types.ProgressFunc) (*types.DownloadResult, error) {
	msg, err := t.resolver.ResolveMessage(ctx, info.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve message: %w", err)
	}

	name := fsutil.SanitizeFilename(msg.Location.Name)
	if name == "" {
		name = fsutil.SanitizeFilename(info.Title)
	}
	if name == "" {
		name = "telegram-media"
	}
	dest := filepath.Join(opts.OutputDir, name)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, err
	}

	written, err := tgfile.Download(ctx, t.fetcher, msg.Location, dest, cfg, onProgress)
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

func extFromName(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return ""
	}
	return ext[1:]
}
