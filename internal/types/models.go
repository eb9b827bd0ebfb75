package types

// MediaType describes what an adapter will produce for a URL.
type MediaType string

const (
	MediaVideo    MediaType = "video"
	MediaAudio    MediaType = "audio"
	MediaPhoto    MediaType = "photo"
	MediaGif      MediaType = "gif"
	MediaCarousel MediaType = "carousel"
	MediaPlaylist MediaType = "playlist"
	MediaCourse   MediaType = "course"
)

// VideoQuality is one selectable rendition of a media item.
type VideoQuality struct {
	Label    string `json:"label"` // e.g. "720p"
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	URL      string `json:"url"`
	FormatID string `json:"format_id,omitempty"`
	Ext      string `json:"ext,omitempty"`
	IsHLS    bool   `json:"is_hls,omitempty"`
	Size     int64  `json:"size,omitempty"` // bytes, 0 when unknown
	IsAudio  bool   `json:"is_audio,omitempty"`
}

// LessonRef is one entry of a course or playlist as the extractor declares
// it: a stream URL plus enough naming to place the file.
type LessonRef struct {
	Index       int    `json:"index"` // 1-based position within the course
	Section     string `json:"section,omitempty"`
	Title       string `json:"title"`
	PlaylistURL string `json:"playlist_url"`
}

// MediaInfo is the adapter's declaration of what will be fetched.
type MediaInfo struct {
	URL       string         `json:"url"`
	Title     string         `json:"title"`
	Author    string         `json:"author,omitempty"`
	Platform  string         `json:"platform"`
	Duration  float64        `json:"duration,omitempty"` // seconds
	Thumbnail string         `json:"thumbnail,omitempty"`
	Qualities []VideoQuality `json:"qualities,omitempty"`
	Lessons   []LessonRef    `json:"lessons,omitempty"` // course and playlist URLs only
	Type      MediaType      `json:"type"`
	TotalSize int64          `json:"total_size,omitempty"` // 0 when unknown
}

// DownloadMode selects which tracks a download should keep.
type DownloadMode string

const (
	ModeAuto      DownloadMode = "auto"
	ModeAudioOnly DownloadMode = "audio"
	ModeVideoOnly DownloadMode = "video"
)

// DownloadOptions carries per-item knobs from the queue into an adapter.
type DownloadOptions struct {
	OutputDir string
	Mode      DownloadMode
	Quality   string // quality label, e.g. "720p"; empty means engine default
	FormatID  string // pre-bound format id; bypasses variant selection
	Referer   string
}

// DownloadResult is what an adapter reports after a successful download.
type DownloadResult struct {
	FilePath  string
	FileSize  int64
	FileCount int
	Duration  float64 // seconds of media, when known
}

// ProgressFunc receives fine-grained progress from transports and adapters.
// percent is 0..100; downloaded/total are bytes, total 0 when unknown.
type ProgressFunc func(percent float64, downloaded, total int64)
