package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// appDirName is the directory under the user config dir holding all app data.
const appDirName = "omniget"

// dataDirOverride supports tests and portable mode.
var dataDirOverride string

// SetDataDir overrides the data directory (portable mode, tests).
func SetDataDir(dir string) { dataDirOverride = dir }

// DataDir returns the directory holding settings, logs, history and managed
// binaries.
func DataDir() string {
	if dataDirOverride != "" {
		return dataDirOverride
	}
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, appDirName)
}

// BinDir is the managed binary directory prepended to child PATHs.
func BinDir() string { return filepath.Join(DataDir(), "bin") }

// SettingsPath returns the path to the settings JSON file.
func SettingsPath() string { return filepath.Join(DataDir(), "settings.json") }

// Load reads settings from disk. Missing file or missing fields fall back to
// defaults; the schema version is stamped on upgrade.
func Load() (*Settings, error) {
	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}
	if settings.SchemaVersion < SchemaVersion {
		settings.SchemaVersion = SchemaVersion
	}
	return settings, nil
}

// Save writes settings to disk atomically, serialized by a file lock so two
// processes cannot interleave temp-file renames.
func Save(s *Settings) error {
	path := SettingsPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tempPath, path)
}

// Patch applies a JSON-merge patch to the persisted settings and saves the
// result. Objects merge recursively; scalars and arrays replace.
func Patch(patch map[string]any) (*Settings, error) {
	current, err := Load()
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	var base map[string]any
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, err
	}

	merged := MergeMaps(base, patch)

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	updated := DefaultSettings()
	if err := json.Unmarshal(out, updated); err != nil {
		return nil, err
	}
	if err := Save(updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// MergeMaps merges patch into base: nested objects merge recursively, every
// other value (scalars, arrays, nulls) replaces. base is not modified.
func MergeMaps(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		patchObj, patchIsObj := v.(map[string]any)
		baseObj, baseIsObj := out[k].(map[string]any)
		if patchIsObj && baseIsObj {
			out[k] = MergeMaps(baseObj, patchObj)
			continue
		}
		out[k] = v
	}
	return out
}
