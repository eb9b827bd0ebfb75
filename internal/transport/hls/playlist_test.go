package hls

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestParseMasterPlaylist(t *testing.T) {
	body := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1280000,RESOLUTION=640x360,CODECS="avc1.4d401e,mp4a.40.2"
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2560000,RESOLUTION=1280x720
mid/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=7680000,RESOLUTION=1920x1080
high/index.m3u8
#EXT-X-I-FRAME-STREAM-INF:BANDWIDTH=128000,RESOLUTION=640x360,URI="iframe/index.m3u8"
`
	base := mustURL(t, "https://cdn.example.com/v/master.m3u8")
	variants, err := ParseMasterPlaylist(base, body)
	require.NoError(t, err)
	require.Len(t, variants, 4)

	assert.Equal(t, "https://cdn.example.com/v/low/index.m3u8", variants[0].URL)
	assert.Equal(t, int64(1280000), variants[0].Bandwidth)
	assert.Equal(t, 360, variants[0].Height)
	assert.Equal(t, "avc1.4d401e,mp4a.40.2", variants[0].Codecs)
	assert.False(t, variants[0].IFrameOnly)

	assert.Equal(t, 1080, variants[2].Height)
	assert.True(t, variants[3].IFrameOnly)
	assert.Equal(t, "https://cdn.example.com/v/iframe/index.m3u8", variants[3].URL)
}

func TestParseMasterPlaylistRejectsGarbage(t *testing.T) {
	_, err := ParseMasterPlaylist(mustURL(t, "https://x/y.m3u8"), "<html>nope</html>")
	assert.Error(t, err)
}

func TestParseMediaPlaylist(t *testing.T) {
	body := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:42
#EXT-X-KEY:METHOD=AES-128,URI="keys/k1.bin",IV=0x000102030405060708090a0b0c0d0e0f
#EXTINF:6.006,
seg0.ts
#EXTINF:5.5,
seg1.ts?token=abc
#EXT-X-ENDLIST
`
	base := mustURL(t, "https://cdn.example.com/v/media.m3u8?auth=tok")
	pl, err := ParseMediaPlaylist(base, body)
	require.NoError(t, err)

	assert.Equal(t, int64(42), pl.MediaSequence)
	assert.Equal(t, 6.0, pl.TargetDuration)
	require.Len(t, pl.Segments, 2)

	// Query carry-forward: the auth token propagates to tokenless segments
	// but never clobbers a segment's own query.
	assert.Equal(t, "https://cdn.example.com/v/seg0.ts?auth=tok", pl.Segments[0].URL)
	assert.Equal(t, "https://cdn.example.com/v/seg1.ts?token=abc", pl.Segments[1].URL)
	assert.Equal(t, 6.006, pl.Segments[0].Duration)
	assert.Equal(t, 0, pl.Segments[0].Index)
	assert.Equal(t, 1, pl.Segments[1].Index)

	require.NotNil(t, pl.Key)
	assert.Equal(t, "AES-128", pl.Key.Method)
	assert.Equal(t, "https://cdn.example.com/v/keys/k1.bin", pl.Key.URI)
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, pl.Key.IV)
}

func TestParseMediaPlaylistNoKey(t *testing.T) {
	body := "#EXTM3U\n#EXTINF:4.0,\na.ts\n#EXT-X-ENDLIST\n"
	pl, err := ParseMediaPlaylist(mustURL(t, "https://x/p.m3u8"), body)
	require.NoError(t, err)
	assert.Nil(t, pl.Key)
	assert.Equal(t, int64(0), pl.MediaSequence)
}

func TestParseMediaPlaylistRejectsUnsupportedMethod(t *testing.T) {
	body := "#EXTM3U\n#EXT-X-KEY:METHOD=SAMPLE-AES,URI=\"k\"\n#EXTINF:4,\na.ts\n"
	_, err := ParseMediaPlaylist(mustURL(t, "https://x/p.m3u8"), body)
	assert.Error(t, err)
}

func TestParseAttributesQuotedCommas(t *testing.T) {
	attrs := parseAttributes(`BANDWIDTH=123,CODECS="avc1,mp4a",RESOLUTION=1280x720`)
	assert.Equal(t, "123", attrs["BANDWIDTH"])
	assert.Equal(t, "avc1,mp4a", attrs["CODECS"])
	assert.Equal(t, "1280x720", attrs["RESOLUTION"])
}

func TestSelectVariant(t *testing.T) {
	tests := []struct {
		name     string
		variants []Variant
		wantURL  string
	}{
		{
			name: "highest at or below 720",
			variants: []Variant{
				{URL: "360", Height: 360, Bandwidth: 1},
				{URL: "1080", Height: 1080, Bandwidth: 4},
				{URL: "720", Height: 720, Bandwidth: 3},
				{URL: "480", Height: 480, Bandwidth: 2},
			},
			wantURL: "720",
		},
		{
			name: "iframe streams never selected",
			variants: []Variant{
				{URL: "trick", Height: 720, Bandwidth: 1, IFrameOnly: true},
				{URL: "real", Height: 480, Bandwidth: 2},
			},
			wantURL: "real",
		},
		{
			name: "all above cap falls back to lowest bandwidth",
			variants: []Variant{
				{URL: "1080", Height: 1080, Bandwidth: 5_000_000},
				{URL: "1440", Height: 1440, Bandwidth: 9_000_000},
			},
			wantURL: "1080",
		},
		{
			name: "no resolutions advertised falls back to lowest bandwidth",
			variants: []Variant{
				{URL: "a", Bandwidth: 900_000},
				{URL: "b", Bandwidth: 300_000},
			},
			wantURL: "b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectVariant(tt.variants)
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, got.URL)
		})
	}
}

func TestSelectVariantAllIFrame(t *testing.T) {
	_, err := SelectVariant([]Variant{{URL: "x", IFrameOnly: true}})
	assert.Error(t, err)
}
