// Package binaries locates and manages the external tools the engine shells
// out to (ffmpeg, ffprobe, yt-dlp). A managed directory under the data dir
// takes precedence over PATH so a pinned install wins over whatever the
// system carries.
package binaries

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/omniget/omniget/internal/config"
	"github.com/omniget/omniget/internal/logx"
	"github.com/omniget/omniget/internal/netutil"
	"github.com/omniget/omniget/internal/transport/direct"
)

const validateTimeout = 10 * time.Second

// Dir returns the managed binary directory, creating it if needed.
func Dir() (string, error) {
	dir := config.BinDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create binary dir: %w", err)
	}
	return dir, nil
}

// Lookup resolves name to an executable path: the managed directory first,
// then PATH.
func Lookup(name string) (string, error) {
	if dir, err := Dir(); err == nil {
		candidate := filepath.Join(dir, exeName(name))
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in managed dir or PATH", name)
	}
	return path, nil
}

// ChildEnv returns the environment for child processes with the managed
// directory prepended to PATH, so tools that spawn helpers (yt-dlp calling
// ffmpeg) pick up the managed copies too.
func ChildEnv() []string {
	env := os.Environ()
	dir, err := Dir()
	if err != nil {
		return env
	}
	sep := string(os.PathListSeparator)
	for i, kv := range env {
		if strings.HasPrefix(strings.ToUpper(kv), "PATH=") {
			env[i] = kv[:5] + dir + sep + kv[5:]
			return env
		}
	}
	return append(env, "PATH="+dir)
}

// Install downloads a binary from url into the managed directory and marks
// it executable.
func Install(ctx context.Context, name, url string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	dest := filepath.Join(dir, exeName(name))
	logx.Info("installing %s from %s", name, logx.ScrubURL(url))

	client := netutil.NewStreamClient()
	if _, err := direct.Download(ctx, client, url, dest, nil, nil); err != nil {
		return "", fmt.Errorf("failed to download %s: %w", name, err)
	}
	if err := os.Chmod(dest, 0o755); err != nil {
		return "", fmt.Errorf("failed to mark %s executable: %w", name, err)
	}
	return dest, nil
}

// Validate runs the binary with --version to confirm it executes.
func Validate(ctx context.Context, path string) error {
	vctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	cmd := exec.CommandContext(vctx, path, "--version")
	cmd.Env = ChildEnv()
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed validation: %w", filepath.Base(path), err)
	}
	logx.Debug("validated %s: %s", path, firstLine(string(out)))
	return nil
}

func exeName(name string) string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(name, ".exe") {
		return name + ".exe"
	}
	return name
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}
