package adapter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/omniget/omniget/internal/classify"
	"github.com/omniget/omniget/internal/types"
)

// infoJSON mirrors the subset of yt-dlp's -J output the engine consumes.
type infoJSON struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Uploader       string       `json:"uploader"`
	Channel        string       `json:"channel"`
	Duration       float64      `json:"duration"`
	Thumbnail      string       `json:"thumbnail"`
	WebpageURL     string       `json:"webpage_url"`
	ExtractorKey   string       `json:"extractor_key"`
	Type           string       `json:"_type"`
	Chapter        string       `json:"chapter"`
	PlaylistIndex  int          `json:"playlist_index"`
	Formats        []formatJSON `json:"formats"`
	RequestedID    string       `json:"format_id"`
	FilesizeApprox int64        `json:"filesize_approx"`
}

type formatJSON struct {
	FormatID       string  `json:"format_id"`
	URL            string  `json:"url"`
	Ext            string  `json:"ext"`
	Protocol       string  `json:"protocol"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
	TBR            float64 `json:"tbr"`
}

// parseInfoJSON converts a yt-dlp -J document into MediaInfo. Formats with
// no URL are dropped; video formats become qualities sorted by height,
// audio-only formats are kept with IsAudio set.
func parseInfoJSON(data []byte, rawurl string) (*types.MediaInfo, error) {
	var doc infoJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unparseable media info: %w", err)
	}
	if doc.Type == "playlist" {
		return nil, fmt.Errorf("playlist URLs must be expanded before download")
	}
	if doc.Title == "" && doc.ID == "" {
		return nil, fmt.Errorf("media info carries no title or id")
	}

	platform, _ := classify.Classify(rawurl)
	info := &types.MediaInfo{
		URL:       rawurl,
		Title:     firstNonEmpty(doc.Title, doc.ID),
		Author:    firstNonEmpty(doc.Uploader, doc.Channel),
		Platform:  platform,
		Duration:  doc.Duration,
		Thumbnail: doc.Thumbnail,
		Type:      types.MediaVideo,
	}

	info.Qualities = qualitiesOf(doc.Formats)

	if len(info.Qualities) == 0 {
		return nil, fmt.Errorf("no downloadable formats for %s", info.Title)
	}
	if best := bestVideo(info.Qualities, ""); best != nil {
		info.TotalSize = best.Size
	}
	return info, nil
}

// qualitiesOf converts an entry's format list into qualities sorted by
// height. Formats with no URL are dropped.
func qualitiesOf(formats []formatJSON) []types.VideoQuality {
	var out []types.VideoQuality
	for _, f := range formats {
		if f.URL == "" {
			continue
		}
		size := f.Filesize
		if size == 0 {
			size = f.FilesizeApprox
		}
		q := types.VideoQuality{
			FormatID: f.FormatID,
			URL:      f.URL,
			Ext:      f.Ext,
			Width:    f.Width,
			Height:   f.Height,
			IsHLS:    isHLSProtocol(f.Protocol),
			Size:     size,
		}
		switch {
		case f.VCodec == "none" && f.ACodec != "none":
			q.IsAudio = true
			q.Label = "audio"
		case f.Height > 0:
			q.Label = fmt.Sprintf("%dp", f.Height)
		default:
			q.Label = f.FormatID
		}
		out = append(out, q)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Height < out[j].Height })
	return out
}

// playlistJSON mirrors yt-dlp's -J output for playlist and course URLs:
// a thin wrapper around full per-entry info documents.
type playlistJSON struct {
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Type    string     `json:"_type"`
	Entries []infoJSON `json:"entries"`
}

// parsePlaylistJSON converts a yt-dlp playlist document into MediaInfo with
// one LessonRef per entry. Each entry resolves to its best HLS rendition;
// entries without one are skipped, matching how course players serve video.
func parsePlaylistJSON(data []byte, rawurl string) (*types.MediaInfo, error) {
	var doc playlistJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unparseable playlist info: %w", err)
	}
	if doc.Type != "playlist" {
		return nil, fmt.Errorf("expected a playlist document, got %q", doc.Type)
	}
	if len(doc.Entries) == 0 {
		return nil, fmt.Errorf("playlist %q has no entries", firstNonEmpty(doc.Title, doc.ID))
	}

	platform, kind := classify.Classify(rawurl)
	mediaType := types.MediaPlaylist
	if kind == classify.KindCourse {
		mediaType = types.MediaCourse
	}

	info := &types.MediaInfo{
		URL:      rawurl,
		Title:    firstNonEmpty(doc.Title, doc.ID),
		Platform: platform,
		Type:     mediaType,
	}
	for i, entry := range doc.Entries {
		stream := bestHLS(qualitiesOf(entry.Formats))
		if stream == nil {
			continue
		}
		index := entry.PlaylistIndex
		if index == 0 {
			index = i + 1
		}
		info.Lessons = append(info.Lessons, types.LessonRef{
			Index:       index,
			Section:     entry.Chapter,
			Title:       firstNonEmpty(entry.Title, entry.ID),
			PlaylistURL: stream.URL,
		})
	}
	if len(info.Lessons) == 0 {
		return nil, fmt.Errorf("no downloadable entries in %q", info.Title)
	}
	return info, nil
}

// bestHLS picks the best HLS rendition the same way bestVideo does, ignoring
// everything that is not an HLS stream.
func bestHLS(qualities []types.VideoQuality) *types.VideoQuality {
	var streams []types.VideoQuality
	for _, q := range qualities {
		if q.IsHLS && !q.IsAudio {
			streams = append(streams, q)
		}
	}
	if len(streams) == 0 {
		return nil
	}
	return bestVideo(streams, "")
}

func isHLSProtocol(protocol string) bool {
	return strings.Contains(protocol, "m3u8")
}

// bestVideo picks the video quality to download: an exact label match when
// requested, otherwise the highest rendition at or below 720p, otherwise the
// lowest available.
func bestVideo(qualities []types.VideoQuality, wantLabel string) *types.VideoQuality {
	var videos []types.VideoQuality
	for _, q := range qualities {
		if !q.IsAudio {
			videos = append(videos, q)
		}
	}
	if len(videos) == 0 {
		return nil
	}

	if wantLabel != "" {
		for i := range videos {
			if videos[i].Label == wantLabel {
				return &videos[i]
			}
		}
	}

	sort.SliceStable(videos, func(i, j int) bool { return videos[i].Height < videos[j].Height })
	var best *types.VideoQuality
	for i := range videos {
		if videos[i].Height > 0 && videos[i].Height <= 720 {
			best = &videos[i]
		}
	}
	if best == nil {
		best = &videos[0]
	}
	return best
}

// bestAudio returns the audio-only quality, when one exists.
func bestAudio(qualities []types.VideoQuality) *types.VideoQuality {
	var best *types.VideoQuality
	for i := range qualities {
		if qualities[i].IsAudio {
			best = &qualities[i]
		}
	}
	return best
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
