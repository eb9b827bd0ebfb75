// Package config persists the user settings document as pretty-printed JSON
// and applies JSON-merge-patch updates to it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/omniget/omniget/internal/types"
)

// SchemaVersion is bumped when the settings document shape changes.
const SchemaVersion = 1

// Settings holds all user-configurable application settings organized by group.
type Settings struct {
	SchemaVersion       int                `json:"schema_version"`
	Appearance          AppearanceSettings `json:"appearance"`
	Download            DownloadSettings   `json:"download"`
	Advanced            AdvancedSettings   `json:"advanced"`
	Telegram            TelegramSettings   `json:"telegram"`
	Proxy               ProxySettings      `json:"proxy"`
	OnboardingCompleted bool               `json:"onboarding_completed"`
	StartWithOS         bool               `json:"start_with_os"`
	PortableMode        bool               `json:"portable_mode"`
}

// AppearanceSettings controls theme and language.
type AppearanceSettings struct {
	Theme    string `json:"theme"`
	Language string `json:"language"`
}

// DownloadSettings contains the download behavior group.
type DownloadSettings struct {
	DefaultOutputDir     string `json:"default_output_dir"`
	AlwaysAskPath        bool   `json:"always_ask_path"`
	Quality              string `json:"quality"`
	SkipExisting         bool   `json:"skip_existing"`
	DownloadAttachments  bool   `json:"download_attachments"`
	DownloadDescriptions bool   `json:"download_descriptions"`
	EmbedMetadata        bool   `json:"embed_metadata"`
	EmbedThumbnail       bool   `json:"embed_thumbnail"`
	ClipboardDetection   bool   `json:"clipboard_detection"`
	FilenameTemplate     string `json:"filename_template"`
	OrganizeByPlatform   bool   `json:"organize_by_platform"`
	DownloadSubtitles    bool   `json:"download_subtitles"`
	HotkeyEnabled        bool   `json:"hotkey_enabled"`
	HotkeyBinding        string `json:"hotkey_binding"`
	ExtraExtractorFlags  string `json:"extra_extractor_flags"`
	CopyOnHotkey         bool   `json:"copy_to_clipboard_on_hotkey"`
}

// AdvancedSettings contains engine tuning.
type AdvancedSettings struct {
	MaxConcurrentSegments  int `json:"max_concurrent_segments"`
	MaxRetries             int `json:"max_retries"`
	MaxConcurrentDownloads int `json:"max_concurrent_downloads"`
	ConcurrentFragments    int `json:"concurrent_fragments"`
	StaggerDelayMS         int `json:"stagger_delay_ms"`
}

// TelegramSettings contains the Telegram transport group.
type TelegramSettings struct {
	Concurrency   int  `json:"concurrency"`
	FixExtensions bool `json:"fix_extensions"`
}

// ProxySettings is the process-wide proxy configuration.
type ProxySettings struct {
	Enabled  bool   `json:"enabled"`
	Scheme   string `json:"scheme"` // http, https, socks5
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// DefaultSettings returns a Settings instance with documented defaults.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	defaultDir := filepath.Join(homeDir, "Downloads")

	return &Settings{
		SchemaVersion: SchemaVersion,
		Appearance: AppearanceSettings{
			Theme:    "system",
			Language: "en",
		},
		Download: DownloadSettings{
			DefaultOutputDir: defaultDir,
			Quality:          "720p",
			EmbedMetadata:    true,
			EmbedThumbnail:   true,
			FilenameTemplate: "%(title).200s [%(id)s].%(ext)s",
			HotkeyBinding:    "ctrl+shift+d",
		},
		Advanced: AdvancedSettings{
			MaxConcurrentSegments:  types.DefaultConcurrentFragments,
			MaxRetries:             types.DefaultMaxRetries,
			MaxConcurrentDownloads: types.DefaultMaxConcurrentDownloads,
			ConcurrentFragments:    types.DefaultConcurrentFragments,
			StaggerDelayMS:         150,
		},
		Telegram: TelegramSettings{
			Concurrency:   4,
			FixExtensions: true,
		},
		Proxy: ProxySettings{
			Scheme: "http",
		},
	}
}

// ToRuntimeConfig converts Settings into the engine's RuntimeConfig.
func (s *Settings) ToRuntimeConfig() *types.RuntimeConfig {
	stagger := s.Advanced.StaggerDelayMS
	if stagger < 0 {
		stagger = 0
	}
	return &types.RuntimeConfig{
		ProxyURL:               s.Proxy.URL(),
		MaxConcurrentDownloads: s.Advanced.MaxConcurrentDownloads,
		ConcurrentFragments:    s.Advanced.ConcurrentFragments,
		MaxRetries:             s.Advanced.MaxRetries,
		StaggerDelay:           time.Duration(stagger) * time.Millisecond,
		SkipExisting:           s.Download.SkipExisting,
		EmbedMetadata:          s.Download.EmbedMetadata,
		EmbedThumbnail:         s.Download.EmbedThumbnail,
		FilenameTemplate:       s.Download.FilenameTemplate,
		OrganizeByPlatform:     s.Download.OrganizeByPlatform,
		TelegramConcurrency:    s.Telegram.Concurrency,
		TelegramFixExtensions:  s.Telegram.FixExtensions,
	}
}

// URL renders the proxy settings as a proxy URL, or "" when disabled.
func (p ProxySettings) URL() string {
	if !p.Enabled || p.Host == "" {
		return ""
	}
	auth := ""
	if p.Username != "" {
		auth = p.Username
		if p.Password != "" {
			auth += ":" + p.Password
		}
		auth += "@"
	}
	scheme := p.Scheme
	if scheme == "" {
		scheme = "http"
	}
	port := p.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s://%s%s:%d", scheme, auth, p.Host, port)
}
