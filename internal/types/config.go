package types

import (
	"time"
)

// Size constants
const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB

	// Megabyte as float for display calculations
	Megabyte = 1024.0 * 1024.0

	// IncompleteSuffix is appended to files while downloading
	IncompleteSuffix = ".part"

	// DoneSuffix marks the completion manifest written next to HLS output
	DoneSuffix = ".omniget.done"

	// PartSize is the fixed chunk size for Telegram-style part downloads
	PartSize = 1 * MB

	// StreamBuffer is the buffered-writer size for streaming downloads
	StreamBuffer = 256 * KB
)

// HTTP client tuning
const (
	DefaultMaxIdleConns          = 100
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 15 * time.Second
	DefaultExpectContinueTimeout = 1 * time.Second
	DialTimeout                  = 10 * time.Second
	KeepAliveDuration            = 30 * time.Second
	ProbeTimeout                 = 30 * time.Second
)

// Engine timeouts
const (
	ChunkInactivityTimeout = 30 * time.Second  // per-chunk HTTP inactivity in the direct downloader
	MetadataTimeout        = 60 * time.Second  // metadata extraction
	PlaylistTimeout        = 120 * time.Second // playlist fetches
	AttemptTimeout         = 300 * time.Second // overall per attempt for large transfers
)

// Channel buffer sizes
const (
	// ProgressChannelBuffer bounds progress channels; senders drop when full.
	ProgressChannelBuffer = 32
)

// Scheduling defaults
const (
	DefaultMaxConcurrentDownloads = 2
	DefaultConcurrentFragments    = 8
	DefaultStaggerDelay           = 150 * time.Millisecond
	DefaultMaxRetries             = 3
)

// DefaultUserAgent is a browser-grade UA most CDNs accept.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/120.0.0.0 Safari/537.36"

// RuntimeConfig holds dynamic settings that can override engine defaults.
// A nil receiver is valid everywhere; getters fall back to defaults.
type RuntimeConfig struct {
	UserAgent              string
	ProxyURL               string
	MaxConcurrentDownloads int
	ConcurrentFragments    int
	MaxRetries             int
	StaggerDelay           time.Duration
	SkipExisting           bool
	EmbedMetadata          bool
	EmbedThumbnail         bool
	FilenameTemplate       string
	OrganizeByPlatform     bool
	TelegramConcurrency    int
	TelegramFixExtensions  bool
}

// GetUserAgent returns the configured user agent or the default
func (r *RuntimeConfig) GetUserAgent() string {
	if r == nil || r.UserAgent == "" {
		return DefaultUserAgent
	}
	return r.UserAgent
}

// GetMaxConcurrentDownloads returns configured value or default
func (r *RuntimeConfig) GetMaxConcurrentDownloads() int {
	if r == nil || r.MaxConcurrentDownloads <= 0 {
		return DefaultMaxConcurrentDownloads
	}
	return r.MaxConcurrentDownloads
}

// GetConcurrentFragments returns configured value or default
func (r *RuntimeConfig) GetConcurrentFragments() int {
	if r == nil || r.ConcurrentFragments <= 0 {
		return DefaultConcurrentFragments
	}
	return r.ConcurrentFragments
}

// GetMaxRetries returns configured value or default
func (r *RuntimeConfig) GetMaxRetries() int {
	if r == nil || r.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return r.MaxRetries
}

// GetStaggerDelay returns configured value or default. Zero is a valid
// configured value (no stagger); only a nil config falls back.
func (r *RuntimeConfig) GetStaggerDelay() time.Duration {
	if r == nil || r.StaggerDelay < 0 {
		return DefaultStaggerDelay
	}
	return r.StaggerDelay
}

// GetTelegramConcurrency returns configured value or default
func (r *RuntimeConfig) GetTelegramConcurrency() int {
	if r == nil || r.TelegramConcurrency <= 0 {
		return DefaultConcurrentFragments
	}
	return r.TelegramConcurrency
}
