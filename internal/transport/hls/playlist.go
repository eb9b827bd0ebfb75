// Package hls downloads HTTP Live Streaming media: playlist parsing, variant
// selection, concurrent segment fetch with AES-128 decryption, and a sidecar
// completion manifest that makes finished downloads idempotent.
package hls

import (
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"

	"github.com/omniget/omniget/internal/errs"
)

// Variant is one stream listed in a master playlist.
type Variant struct {
	URL        string
	Bandwidth  int64
	Width      int
	Height     int
	Codecs     string
	IFrameOnly bool
}

// KeyInfo describes the encryption of a media playlist's segments.
type KeyInfo struct {
	Method string
	URI    string // resolved against the playlist URL
	IV     []byte // nil when the IV must be derived from the media sequence
}

// Segment is one entry of a media playlist.
type Segment struct {
	Index    int
	URL      string
	Duration float64
}

// MediaPlaylist is a parsed media playlist.
type MediaPlaylist struct {
	Segments       []Segment
	MediaSequence  int64
	TargetDuration float64
	Key            *KeyInfo
}

// IsMasterPlaylist reports whether the playlist body lists variants rather
// than segments.
func IsMasterPlaylist(body string) bool {
	return strings.Contains(body, "#EXT-X-STREAM-INF")
}

// ParseMasterPlaylist extracts the variants of a master playlist. Variant
// URIs are resolved against base.
func ParseMasterPlaylist(base *url.URL, body string) ([]Variant, error) {
	if !strings.Contains(body, "#EXTM3U") {
		return nil, errs.New(errs.KindPlaylistParse, "not an m3u8 playlist")
	}

	var variants []Variant
	var pending *Variant

	for _, line := range splitLines(body) {
		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			attrs := parseAttributes(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))
			v := Variant{Codecs: attrs["CODECS"]}
			v.Bandwidth, _ = strconv.ParseInt(attrs["BANDWIDTH"], 10, 64)
			v.Width, v.Height = parseResolution(attrs["RESOLUTION"])
			pending = &v

		case strings.HasPrefix(line, "#EXT-X-I-FRAME-STREAM-INF:"):
			attrs := parseAttributes(strings.TrimPrefix(line, "#EXT-X-I-FRAME-STREAM-INF:"))
			v := Variant{IFrameOnly: true, Codecs: attrs["CODECS"]}
			v.Bandwidth, _ = strconv.ParseInt(attrs["BANDWIDTH"], 10, 64)
			v.Width, v.Height = parseResolution(attrs["RESOLUTION"])
			if uri := attrs["URI"]; uri != "" {
				v.URL = resolveURL(base, uri)
				variants = append(variants, v)
			}

		case line != "" && !strings.HasPrefix(line, "#"):
			if pending != nil {
				pending.URL = resolveURL(base, line)
				variants = append(variants, *pending)
				pending = nil
			}
		}
	}

	if len(variants) == 0 {
		return nil, errs.New(errs.KindPlaylistParse, "master playlist has no variants")
	}
	return variants, nil
}

// ParseMediaPlaylist extracts segments, the media sequence and key info from
// a media playlist. Segment and key URIs are resolved against base; segment
// URIs without a query string inherit the playlist URL's query, since many
// CDNs sign the playlist URL and expect the token on every segment.
func ParseMediaPlaylist(base *url.URL, body string) (*MediaPlaylist, error) {
	if !strings.Contains(body, "#EXTM3U") {
		return nil, errs.New(errs.KindPlaylistParse, "not an m3u8 playlist")
	}
	if IsMasterPlaylist(body) {
		return nil, errs.New(errs.KindPlaylistParse, "expected media playlist, got master")
	}

	pl := &MediaPlaylist{}
	var pendingDuration float64

	for _, line := range splitLines(body) {
		switch {
		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			pl.MediaSequence, _ = strconv.ParseInt(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"), 10, 64)

		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			pl.TargetDuration, _ = strconv.ParseFloat(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"), 64)

		case strings.HasPrefix(line, "#EXT-X-KEY:"):
			key, err := parseKey(base, strings.TrimPrefix(line, "#EXT-X-KEY:"))
			if err != nil {
				return nil, err
			}
			pl.Key = key

		case strings.HasPrefix(line, "#EXTINF:"):
			spec := strings.TrimPrefix(line, "#EXTINF:")
			if idx := strings.Index(spec, ","); idx != -1 {
				spec = spec[:idx]
			}
			pendingDuration, _ = strconv.ParseFloat(spec, 64)

		case line != "" && !strings.HasPrefix(line, "#"):
			pl.Segments = append(pl.Segments, Segment{
				Index:    len(pl.Segments),
				URL:      resolveSegmentURL(base, line),
				Duration: pendingDuration,
			})
			pendingDuration = 0
		}
	}

	if len(pl.Segments) == 0 {
		return nil, errs.New(errs.KindPlaylistParse, "media playlist has no segments")
	}
	return pl, nil
}

func parseKey(base *url.URL, attrSpec string) (*KeyInfo, error) {
	attrs := parseAttributes(attrSpec)
	method := attrs["METHOD"]
	if method == "NONE" {
		return nil, nil
	}
	if method != "AES-128" {
		return nil, errs.New(errs.KindPlaylistParse, "unsupported encryption method: "+method)
	}
	key := &KeyInfo{Method: method, URI: resolveURL(base, attrs["URI"])}
	if iv := attrs["IV"]; iv != "" {
		raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(iv, "0x"), "0X"))
		if err != nil || len(raw) != 16 {
			return nil, errs.New(errs.KindPlaylistParse, "malformed IV attribute: "+iv)
		}
		key.IV = raw
	}
	return key, nil
}

// parseAttributes splits an attribute list like KEY=VAL,KEY="quoted,val"
// into a map, stripping quotes.
func parseAttributes(spec string) map[string]string {
	attrs := make(map[string]string)
	var key strings.Builder
	var val strings.Builder
	inKey := true
	inQuotes := false

	flush := func() {
		if key.Len() > 0 {
			attrs[key.String()] = val.String()
		}
		key.Reset()
		val.Reset()
		inKey = true
	}

	for _, r := range spec {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == '=' && inKey && !inQuotes:
			inKey = false
		case r == ',' && !inQuotes:
			flush()
		case inKey:
			key.WriteRune(r)
		default:
			val.WriteRune(r)
		}
	}
	flush()
	return attrs
}

func parseResolution(spec string) (width, height int) {
	parts := strings.SplitN(strings.ToLower(spec), "x", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	width, _ = strconv.Atoi(parts[0])
	height, _ = strconv.Atoi(parts[1])
	return width, height
}

func resolveURL(base *url.URL, ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

// resolveSegmentURL resolves ref against base and carries the playlist's
// query string over when the segment URI has none of its own.
func resolveSegmentURL(base *url.URL, ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	resolved := base.ResolveReference(parsed)
	if resolved.RawQuery == "" && base.RawQuery != "" {
		resolved.RawQuery = base.RawQuery
	}
	return resolved.String()
}

func splitLines(body string) []string {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return lines
}
