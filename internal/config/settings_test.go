package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func useTempDataDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	SetDataDir(dir)
	t.Cleanup(func() { SetDataDir("") })
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	if s == nil {
		t.Fatal("DefaultSettings returned nil")
	}

	t.Run("Download", func(t *testing.T) {
		if !s.Download.EmbedMetadata {
			t.Error("EmbedMetadata should default to true")
		}
		if !s.Download.EmbedThumbnail {
			t.Error("EmbedThumbnail should default to true")
		}
		if s.Download.FilenameTemplate != "%(title).200s [%(id)s].%(ext)s" {
			t.Errorf("unexpected filename template: %s", s.Download.FilenameTemplate)
		}
	})

	t.Run("Advanced", func(t *testing.T) {
		if s.Advanced.MaxConcurrentDownloads != 2 {
			t.Errorf("MaxConcurrentDownloads = %d, want 2", s.Advanced.MaxConcurrentDownloads)
		}
		if s.Advanced.ConcurrentFragments != 8 {
			t.Errorf("ConcurrentFragments = %d, want 8", s.Advanced.ConcurrentFragments)
		}
		if s.Advanced.StaggerDelayMS != 150 {
			t.Errorf("StaggerDelayMS = %d, want 150", s.Advanced.StaggerDelayMS)
		}
	})

	if s.SchemaVersion != SchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", s.SchemaVersion, SchemaVersion)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	useTempDataDir(t)

	s := DefaultSettings()
	s.Download.Quality = "1080p"
	s.Proxy = ProxySettings{Enabled: true, Scheme: "socks5", Host: "127.0.0.1", Port: 1080}

	if err := Save(s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Download.Quality != "1080p" {
		t.Errorf("Quality = %q, want 1080p", loaded.Download.Quality)
	}
	if got := loaded.Proxy.URL(); got != "socks5://127.0.0.1:1080" {
		t.Errorf("Proxy.URL() = %q", got)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	useTempDataDir(t)
	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Advanced.MaxConcurrentDownloads != 2 {
		t.Error("missing file should yield defaults")
	}
}

func TestLoadFillsMissingFields(t *testing.T) {
	useTempDataDir(t)
	partial := `{"schema_version":1,"download":{"quality":"480p"}}`
	if err := os.MkdirAll(DataDir(), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(SettingsPath(), []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if s.Download.Quality != "480p" {
		t.Errorf("Quality = %q, want 480p", s.Download.Quality)
	}
	// Untouched groups keep defaults.
	if s.Advanced.ConcurrentFragments != 8 {
		t.Error("missing advanced group should keep defaults")
	}
}

func TestMergeMaps(t *testing.T) {
	base := map[string]any{
		"a": 1.0,
		"nested": map[string]any{
			"x": "keep",
			"y": "old",
		},
		"list": []any{1.0, 2.0},
	}

	t.Run("EmptyPatchIsIdentity", func(t *testing.T) {
		out := MergeMaps(base, map[string]any{})
		raw1, _ := json.Marshal(base)
		raw2, _ := json.Marshal(out)
		if string(raw1) != string(raw2) {
			t.Errorf("merge(base, {}) != base: %s vs %s", raw1, raw2)
		}
	})

	t.Run("NestedObjectsMerge", func(t *testing.T) {
		out := MergeMaps(base, map[string]any{
			"nested": map[string]any{"y": "new"},
		})
		nested := out["nested"].(map[string]any)
		if nested["x"] != "keep" || nested["y"] != "new" {
			t.Errorf("nested merge wrong: %v", nested)
		}
	})

	t.Run("ScalarsReplace", func(t *testing.T) {
		out := MergeMaps(base, map[string]any{"a": 2.0})
		if out["a"] != 2.0 {
			t.Errorf("a = %v, want 2", out["a"])
		}
	})

	t.Run("ArraysReplace", func(t *testing.T) {
		out := MergeMaps(base, map[string]any{"list": []any{9.0}})
		list := out["list"].([]any)
		if len(list) != 1 || list[0] != 9.0 {
			t.Errorf("list = %v, want [9]", list)
		}
	})

	t.Run("BaseUnmodified", func(t *testing.T) {
		MergeMaps(base, map[string]any{"a": 99.0})
		if base["a"] != 1.0 {
			t.Error("MergeMaps mutated base")
		}
	})
}

func TestPatchPersists(t *testing.T) {
	useTempDataDir(t)
	if err := Save(DefaultSettings()); err != nil {
		t.Fatal(err)
	}

	updated, err := Patch(map[string]any{
		"advanced": map[string]any{"stagger_delay_ms": 300.0},
	})
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if updated.Advanced.StaggerDelayMS != 300 {
		t.Errorf("StaggerDelayMS = %d, want 300", updated.Advanced.StaggerDelayMS)
	}
	// Unrelated fields untouched.
	if updated.Advanced.MaxConcurrentDownloads != 2 {
		t.Error("patch clobbered sibling field")
	}

	reloaded, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Advanced.StaggerDelayMS != 300 {
		t.Error("patch was not persisted")
	}
}

func TestToRuntimeConfig(t *testing.T) {
	s := DefaultSettings()
	s.Advanced.StaggerDelayMS = 200
	rc := s.ToRuntimeConfig()
	if rc.GetStaggerDelay() != 200*time.Millisecond {
		t.Errorf("stagger = %v", rc.GetStaggerDelay())
	}
	if rc.GetMaxConcurrentDownloads() != 2 {
		t.Errorf("max concurrent = %d", rc.GetMaxConcurrentDownloads())
	}
	if rc.GetUserAgent() == "" {
		t.Error("user agent should fall back to default")
	}
}

func TestSettingsPathUnderDataDir(t *testing.T) {
	useTempDataDir(t)
	if filepath.Dir(SettingsPath()) != DataDir() {
		t.Error("settings.json should live in the data dir")
	}
	if filepath.Dir(BinDir()) != DataDir() {
		t.Error("bin dir should live in the data dir")
	}
}
