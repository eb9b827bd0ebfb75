package adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniget/omniget/internal/testutil"
	"github.com/omniget/omniget/internal/types"
)

func TestDownloadCourseFetchesEveryLesson(t *testing.T) {
	first := testutil.NewHLSFixture(3, 512, nil, 0)
	defer first.Close()
	second := testutil.NewHLSFixture(2, 512, nil, 0)
	defer second.Close()

	info := &types.MediaInfo{
		Title: "Widgets",
		Type:  types.MediaCourse,
		Lessons: []types.LessonRef{
			{Index: 1, Section: "Basics", Title: "Intro", PlaylistURL: first.PlaylistURL()},
			{Index: 2, Section: "Basics", Title: "Setup", PlaylistURL: second.PlaylistURL()},
		},
	}

	outDir := t.TempDir()
	cfg := &types.RuntimeConfig{ConcurrentFragments: 2}
	result, err := NewYtDlp().Download(context.Background(), info, types.DownloadOptions{OutputDir: outDir}, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.FileCount)
	assert.Equal(t, int64(5*512), result.FileSize)
	assert.Equal(t, filepath.Join(outDir, "Widgets"), result.FilePath)

	intro, err := os.ReadFile(filepath.Join(outDir, "Widgets", "Basics", "01 - Intro.ts"))
	require.NoError(t, err)
	assert.Equal(t, first.Plaintext(), intro)

	setup, err := os.ReadFile(filepath.Join(outDir, "Widgets", "Basics", "02 - Setup.ts"))
	require.NoError(t, err)
	assert.Equal(t, second.Plaintext(), setup)
}
