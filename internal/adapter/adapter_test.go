package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniget/omniget/internal/types"
)

type stubAdapter struct {
	name   string
	accept func(string) bool
}

func (s *stubAdapter) Name() string                 { return s.name }
func (s *stubAdapter) CanHandle(rawurl string) bool { return s.accept(rawurl) }
func (s *stubAdapter) GetMediaInfo(ctx context.Context, rawurl string, cfg *types.RuntimeConfig) (*types.MediaInfo, error) {
	return nil, nil
}
func (s *stubAdapter) Download(ctx context.Context, info *types.MediaInfo, opts types.DownloadOptions, cfg *types.RuntimeConfig, onProgress types.ProgressFunc) (*types.DownloadResult, error) {
	return nil, nil
}

func TestRegistryFirstMatchWins(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAdapter{name: "specific", accept: func(u string) bool { return u == "https://one.example/x" }})
	r.Register(&stubAdapter{name: "catchall", accept: func(u string) bool { return true }})

	a, err := r.Find("https://one.example/x")
	require.NoError(t, err)
	assert.Equal(t, "specific", a.Name())

	a, err = r.Find("https://other.example/y")
	require.NoError(t, err)
	assert.Equal(t, "catchall", a.Name())

	assert.Equal(t, []string{"specific", "catchall"}, r.Names())
}

func TestRegistryNoMatch(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAdapter{name: "never", accept: func(string) bool { return false }})
	_, err := r.Find("https://example.com")
	assert.Error(t, err)
}

func TestDirectFileCanHandle(t *testing.T) {
	d := NewDirectFile()
	assert.True(t, d.CanHandle("https://cdn.example.com/video.mp4"))
	assert.True(t, d.CanHandle("https://cdn.example.com/a/b/song.mp3?token=x"))
	assert.True(t, d.CanHandle("https://files.example.com/doc.pdf"))
	assert.False(t, d.CanHandle("https://www.youtube.com/watch?v=abc"))
	assert.False(t, d.CanHandle("ftp://cdn.example.com/video.mp4"))
	assert.False(t, d.CanHandle("not a url"))
}

func TestYtDlpCanHandle(t *testing.T) {
	y := NewYtDlp()
	assert.True(t, y.CanHandle("https://www.youtube.com/watch?v=abc"))
	assert.True(t, y.CanHandle("http://example.com/anything"))
	assert.False(t, y.CanHandle("magnet:?xt=urn"))
}
