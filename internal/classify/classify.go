// Package classify maps URLs to a platform tag and a content kind. The
// classification is a pure function over host and path; adapters use it to
// decide whether they handle a URL, and the queue stores the tag for the UI.
package classify

import (
	"net/url"
	"strings"
)

// Platform tags. These match adapter names in the registry.
const (
	PlatformYouTube   = "youtube"
	PlatformVimeo     = "vimeo"
	PlatformInstagram = "instagram"
	PlatformTikTok    = "tiktok"
	PlatformTwitter   = "twitter"
	PlatformReddit    = "reddit"
	PlatformBluesky   = "bluesky"
	PlatformPinterest = "pinterest"
	PlatformTwitch    = "twitch"
	PlatformTelegram  = "telegram"
	PlatformHotmart   = "hotmart"
	PlatformUdemy     = "udemy"
	PlatformGeneric   = "generic"
)

// Kind is the content type a URL points at.
type Kind string

const (
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindImage    Kind = "image"
	KindPost     Kind = "post"
	KindProfile  Kind = "profile"
	KindCourse   Kind = "course"
	KindPlaylist Kind = "playlist"
	KindClip     Kind = "clip"
	KindReel     Kind = "reel"
	KindShort    Kind = "short"
	KindUnknown  Kind = "unknown"
)

// Classify parses rawurl and returns (platform, kind). Unrecognized but valid
// http(s) URLs classify as (generic, unknown).
func Classify(rawurl string) (string, Kind) {
	parsed, err := url.Parse(rawurl)
	if err != nil || parsed.Host == "" {
		return PlatformGeneric, KindUnknown
	}

	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	path := strings.Trim(parsed.Path, "/")
	segments := []string{}
	if path != "" {
		segments = strings.Split(path, "/")
	}
	query := parsed.Query()

	switch {
	case host == "youtu.be" || hostMatches(host, "youtube"):
		return PlatformYouTube, youtubeKind(host, segments, query)
	case hostMatches(host, "vimeo"):
		return PlatformVimeo, KindVideo
	case hostMatches(host, "instagram"):
		return PlatformInstagram, instagramKind(segments)
	case hostMatches(host, "tiktok"):
		return PlatformTikTok, tiktokKind(segments)
	case hostMatches(host, "twitter") || host == "x.com" || strings.HasSuffix(host, ".x.com"):
		return PlatformTwitter, twitterKind(segments)
	case hostMatches(host, "reddit") || host == "redd.it":
		return PlatformReddit, KindPost
	case hostMatches(host, "bsky"):
		return PlatformBluesky, blueskyKind(segments)
	case hostMatches(host, "pinterest") || host == "pin.it":
		return PlatformPinterest, pinterestKind(segments)
	case hostMatches(host, "twitch"):
		return PlatformTwitch, twitchKind(host, segments)
	case host == "t.me" || host == "telegram.me" || hostMatches(host, "telegram"):
		return PlatformTelegram, KindPost
	case hostMatches(host, "hotmart"):
		return PlatformHotmart, KindCourse
	case hostMatches(host, "udemy"):
		return PlatformUdemy, KindCourse
	}

	return PlatformGeneric, KindUnknown
}

// hostMatches reports whether host is name under any TLD, including regional
// variants like youtube.co.uk or pinterest.com.mx. Matching is on the
// registered label, so "notyoutube.com" does not match "youtube".
func hostMatches(host, name string) bool {
	if host == name+".com" {
		return true
	}
	if !strings.HasPrefix(host, name+".") && !strings.Contains(host, "."+name+".") {
		return false
	}
	// The label before the TLD chain must be exactly name.
	labels := strings.Split(host, ".")
	for _, l := range labels {
		if l == name {
			return true
		}
	}
	return false
}

func youtubeKind(host string, segments []string, query url.Values) Kind {
	// list= converts a video into a playlist
	if query.Get("list") != "" {
		return KindPlaylist
	}
	// v= wins over path segments
	if query.Get("v") != "" {
		return KindVideo
	}
	if host == "youtu.be" {
		return KindVideo
	}
	if len(segments) > 0 {
		switch segments[0] {
		case "shorts":
			return KindShort
		case "playlist":
			return KindPlaylist
		case "watch", "embed", "v", "live":
			return KindVideo
		case "channel", "c", "user":
			return KindProfile
		}
		if strings.HasPrefix(segments[0], "@") {
			return KindProfile
		}
	}
	return KindUnknown
}

func instagramKind(segments []string) Kind {
	if len(segments) == 0 {
		return KindUnknown
	}
	switch segments[0] {
	case "reel", "reels":
		return KindReel
	case "p":
		return KindPost
	case "stories":
		return KindVideo
	case "tv":
		return KindVideo
	}
	if len(segments) == 1 {
		return KindProfile
	}
	return KindUnknown
}

func tiktokKind(segments []string) Kind {
	for _, s := range segments {
		if s == "video" {
			return KindVideo
		}
		if s == "photo" {
			return KindImage
		}
	}
	if len(segments) == 1 && strings.HasPrefix(segments[0], "@") {
		return KindProfile
	}
	return KindVideo
}

func twitterKind(segments []string) Kind {
	for i, s := range segments {
		if s == "status" && i+1 < len(segments) {
			return KindPost
		}
	}
	if len(segments) == 1 {
		return KindProfile
	}
	return KindUnknown
}

func blueskyKind(segments []string) Kind {
	// bsky.app/profile/<handle>/post/<id>
	for _, s := range segments {
		if s == "post" {
			return KindPost
		}
	}
	if len(segments) > 0 && segments[0] == "profile" {
		return KindProfile
	}
	return KindUnknown
}

func pinterestKind(segments []string) Kind {
	if len(segments) > 0 && segments[0] == "pin" {
		return KindImage
	}
	if len(segments) == 1 {
		return KindProfile
	}
	return KindImage
}

func twitchKind(host string, segments []string) Kind {
	if strings.HasPrefix(host, "clips.") {
		return KindClip
	}
	for _, s := range segments {
		if s == "clip" || s == "clips" {
			return KindClip
		}
		if s == "videos" {
			return KindVideo
		}
	}
	if len(segments) == 1 {
		return KindProfile
	}
	return KindUnknown
}
