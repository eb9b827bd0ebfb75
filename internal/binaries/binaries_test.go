package binaries

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniget/omniget/internal/config"
)

func TestLookupPrefersManagedDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix-only fixture")
	}
	config.SetDataDir(t.TempDir())
	defer config.SetDataDir("")

	dir, err := Dir()
	require.NoError(t, err)

	managed := filepath.Join(dir, "sometool")
	require.NoError(t, os.WriteFile(managed, []byte("#!/bin/sh\n"), 0o755))

	got, err := Lookup("sometool")
	require.NoError(t, err)
	assert.Equal(t, managed, got)
}

func TestLookupFallsBackToPath(t *testing.T) {
	config.SetDataDir(t.TempDir())
	defer config.SetDataDir("")

	// sh is on PATH everywhere we run tests.
	if runtime.GOOS == "windows" {
		t.Skip("posix-only fixture")
	}
	got, err := Lookup("sh")
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}

func TestLookupMissing(t *testing.T) {
	config.SetDataDir(t.TempDir())
	defer config.SetDataDir("")

	_, err := Lookup("definitely-not-a-real-binary-name")
	assert.Error(t, err)
}

func TestChildEnvPrependsManagedDir(t *testing.T) {
	config.SetDataDir(t.TempDir())
	defer config.SetDataDir("")

	dir, err := Dir()
	require.NoError(t, err)

	var pathVar string
	for _, kv := range ChildEnv() {
		if strings.HasPrefix(strings.ToUpper(kv), "PATH=") {
			pathVar = kv
			break
		}
	}
	require.NotEmpty(t, pathVar)
	assert.True(t, strings.HasPrefix(pathVar[5:], dir+string(os.PathListSeparator)) || pathVar[5:] == dir,
		"managed dir must come first in PATH")
}
