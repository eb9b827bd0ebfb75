package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/omniget/omniget/internal/events"
	"github.com/omniget/omniget/internal/logx"
	"github.com/omniget/omniget/internal/queue"
	"github.com/omniget/omniget/internal/tui"
	"github.com/omniget/omniget/internal/types"
)

var getCmd = &cobra.Command{
	Use:   "get [url]...",
	Short: "Download one or more URLs without the dashboard",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outputDir, _ := cmd.Flags().GetString("output")
		quality, _ := cmd.Flags().GetString("quality")
		audioOnly, _ := cmd.Flags().GetBool("audio")
		formatID, _ := cmd.Flags().GetString("format")
		return runGet(args, outputDir, quality, formatID, audioOnly)
	},
}

func init() {
	getCmd.Flags().StringP("quality", "q", "", `quality label, e.g. "720p"`)
	getCmd.Flags().StringP("format", "f", "", "exact format id, bypasses quality selection")
	getCmd.Flags().Bool("audio", false, "download audio only")
	rootCmd.AddCommand(getCmd)
}

func runGet(urls []string, outputDir, quality, formatID string, audioOnly bool) error {
	a, err := initApp()
	if err != nil {
		return err
	}
	if a.history != nil {
		defer a.history.Close()
	}
	defer logx.Close()

	emitter := events.NewChannelEmitter(tui.EventChannelBuffer)
	a.scheduler = queue.NewScheduler(a.queue, a.cfg, a.runItem, emitter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.scheduler.Run(ctx)
	go printProgress(ctx, emitter.Ch)

	opts := types.DownloadOptions{
		OutputDir: outputDir,
		Quality:   quality,
		FormatID:  formatID,
	}
	if audioOnly {
		opts.Mode = types.ModeAudioOnly
	}

	queued := 0
	for _, rawurl := range urls {
		if err := a.Enqueue(strings.TrimSpace(rawurl), opts); err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", rawurl, err)
			continue
		}
		queued++
	}
	if queued == 0 {
		return fmt.Errorf("nothing to download")
	}

	waitForQueue(a.queue)
	cancel()

	failed := 0
	for _, it := range a.queue.Items() {
		switch it.Status {
		case queue.StatusCompleted:
			fmt.Printf("done: %s (%s)\n", it.FilePath, humanize.Bytes(uint64(it.FileSize)))
		case queue.StatusFailed:
			failed++
			fmt.Fprintf(os.Stderr, "failed: %s: %s\n", it.URL, it.Error)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, queued)
	}
	return nil
}

// waitForQueue blocks until every item reaches a terminal state.
func waitForQueue(q *queue.Queue) {
	for {
		done := true
		for _, it := range q.Items() {
			if !it.Status.Terminal() {
				done = false
				break
			}
		}
		if done {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// printProgress renders one-line progress updates to stderr.
func printProgress(ctx context.Context, ch chan any) {
	for {
		var msg any
		select {
		case <-ctx.Done():
			return
		case msg = <-ch:
		}

		p, ok := msg.(events.ItemProgressMsg)
		if !ok {
			continue
		}
		line := fmt.Sprintf("\r%5.1f%%  %s/s", p.Progress.Percent,
			humanize.Bytes(uint64(p.Progress.SpeedBytesPerSec)))
		if p.Progress.TotalBytes != nil {
			line += fmt.Sprintf("  %s / %s",
				humanize.Bytes(uint64(p.Progress.DownloadedBytes)),
				humanize.Bytes(uint64(*p.Progress.TotalBytes)))
		}
		fmt.Fprint(os.Stderr, line+"    ")
		if p.Progress.Percent >= 100 {
			fmt.Fprintln(os.Stderr)
		}
	}
}
