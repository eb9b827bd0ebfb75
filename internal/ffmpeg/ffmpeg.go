// Package ffmpeg drives the external ffmpeg binary: conversions, remuxes and
// metadata embedding, with machine-readable progress parsed from
// `-progress pipe:1`.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omniget/omniget/internal/binaries"
	"github.com/omniget/omniget/internal/logx"
)

// Progress is one parsed progress report from a running job.
type Progress struct {
	Percent float64 // 0 when the duration is unknown
	OutTime time.Duration
	Speed   string
	FPS     float64
	Done    bool
}

// ProgressFunc receives progress reports during a job.
type ProgressFunc func(Progress)

// Job is one ffmpeg invocation.
type Job struct {
	ID       string
	Args     []string
	Duration time.Duration // known media duration for percent computation, 0 if unknown
}

// NewJob builds a job with a fresh id. Args exclude the leading binary name
// and the progress flags, which Run adds.
func NewJob(args []string, duration time.Duration) *Job {
	return &Job{ID: uuid.NewString(), Args: args, Duration: duration}
}

// Run executes the job. The process is killed when ctx is cancelled. Stdout
// carries the progress stream; stderr is retained for the error message.
func Run(ctx context.Context, job *Job, onProgress ProgressFunc) error {
	bin, err := binaries.Lookup("ffmpeg")
	if err != nil {
		return err
	}

	args := append([]string{"-hide_banner", "-nostats", "-progress", "pipe:1", "-y"}, job.Args...)
	logx.Debug("ffmpeg job %s: %s %s", job.ID, bin, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = binaries.ChildEnv()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// Both pipes must be drained before Wait, or a chatty job deadlocks on a
	// full pipe buffer.
	var errTail bytes.Buffer
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		tailStderr(stderr, &errTail)
	}()

	scanProgress(stdout, job.Duration, onProgress)
	<-stderrDone

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, lastLines(errTail.String(), 5))
	}
	return nil
}

// scanProgress consumes the key=value stream emitted by -progress pipe:1.
func scanProgress(r io.Reader, duration time.Duration, onProgress ProgressFunc) {
	scanner := bufio.NewScanner(r)
	var current Progress
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil {
				current.OutTime = time.Duration(us) * time.Microsecond
			}
		case "out_time_ms":
			// Despite the name ffmpeg emits microseconds here; only used when
			// out_time_us was absent.
			if current.OutTime == 0 {
				if us, err := strconv.ParseInt(value, 10, 64); err == nil {
					current.OutTime = time.Duration(us) * time.Microsecond
				}
			}
		case "speed":
			current.Speed = strings.TrimSpace(value)
		case "fps":
			current.FPS, _ = strconv.ParseFloat(value, 64)
		case "progress":
			// "progress" terminates one report block.
			current.Done = value == "end"
			if duration > 0 {
				current.Percent = float64(current.OutTime) / float64(duration) * 100
				if current.Percent > 100 {
					current.Percent = 100
				}
			}
			if current.Done {
				current.Percent = 100
			}
			if onProgress != nil {
				onProgress(current)
			}
			current = Progress{OutTime: current.OutTime}
		}
	}
}

// ProbeDuration asks ffprobe for the media duration.
func ProbeDuration(ctx context.Context, input string) (time.Duration, error) {
	bin, err := binaries.Lookup("ffprobe")
	if err != nil {
		return 0, err
	}

	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		input)
	cmd.Env = binaries.ChildEnv()

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable duration %q", strings.TrimSpace(string(out)))
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func tailStderr(r io.Reader, buf *bytes.Buffer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		buf.WriteString(scanner.Text())
		buf.WriteByte('\n')
		// Keep the tail bounded; only the last lines matter for diagnostics.
		if buf.Len() > 16*1024 {
			trimmed := buf.String()
			buf.Reset()
			buf.WriteString(trimmed[len(trimmed)/2:])
		}
	}
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
