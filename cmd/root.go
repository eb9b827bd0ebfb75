package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gofrs/flock"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/omniget/omniget/internal/config"
	"github.com/omniget/omniget/internal/events"
	"github.com/omniget/omniget/internal/logx"
	"github.com/omniget/omniget/internal/netutil"
	"github.com/omniget/omniget/internal/queue"
	"github.com/omniget/omniget/internal/store"
	"github.com/omniget/omniget/internal/thumbcache"
	"github.com/omniget/omniget/internal/tui"
	"github.com/omniget/omniget/internal/types"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const clipboardPollInterval = 2 * time.Second

var rootCmd = &cobra.Command{
	Use:     "omniget [url]...",
	Short:   "A terminal media downloader",
	Long:    `OmniGet fetches video, audio and files from the web through a queue of platform adapters, with direct, HLS and chunked transports.`,
	Version: Version,
	Args:    cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		outputDir, _ := cmd.Flags().GetString("output")
		return runDashboard(args, outputDir)
	},
}

// Execute runs the root command tree.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("output", "o", "", "output directory (default: configured download dir)")
	rootCmd.SetVersionTemplate("omniget version {{.Version}}\n")
}

// initApp loads settings, configures logging and the proxy, and wires the
// engine. Shared by the dashboard and the headless commands.
func initApp() (*app, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if err := logx.Configure(filepath.Join(config.DataDir(), "omniget.log"), logx.LevelInfo); err != nil {
		fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
	}
	netutil.InitProxy(settings.Proxy)

	a := &app{
		settings: settings,
		cfg:      settings.ToRuntimeConfig(),
		registry: newRegistry(),
		queue:    queue.New(),
		thumbs:   thumbcache.New(netutil.NewMetadataClient(), 0, 0),
	}

	history, err := store.Open(filepath.Join(config.DataDir(), "history.db"))
	if err != nil {
		// The engine works without history; note it and move on.
		logx.Warn("history unavailable: %v", err)
	} else {
		a.history = history
	}
	return a, nil
}

func runDashboard(urls []string, outputDir string) error {
	lock := flock.New(filepath.Join(config.DataDir(), "omniget.lock"))
	locked, err := lock.TryLock()
	if err == nil && !locked {
		return fmt.Errorf("omniget is already running")
	}
	if err != nil {
		return fmt.Errorf("failed to acquire instance lock: %w", err)
	}
	defer lock.Unlock()

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

	opts := types.DownloadOptions{OutputDir: outputDir}
	for _, rawurl := range urls {
		if err := a.Enqueue(strings.TrimSpace(rawurl), opts); err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", rawurl, err)
		}
	}

	if !termenv.HasDarkBackground() {
		tui.AdaptToLightBackground()
	}

	m := tui.NewRootModel(a, emitter.Ch)
	p := tea.NewProgram(m, tea.WithAltScreen())

	if a.settings.Download.ClipboardDetection {
		go watchClipboard(ctx, p, a.queue)
	}

	// Seed the dashboard with the initial queue state.
	emitter.QueueState(a.queue.Snapshots())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run dashboard: %w", err)
	}
	return nil
}

// watchClipboard polls the clipboard and offers newly copied web URLs to the
// dashboard. URLs already queued are ignored.
func watchClipboard(ctx context.Context, p *tea.Program, q *queue.Queue) {
	last, _ := clipboard.ReadAll()

	ticker := time.NewTicker(clipboardPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		text, err := clipboard.ReadAll()
		if err != nil || text == last {
			continue
		}
		last = text

		candidate := strings.TrimSpace(text)
		if !strings.HasPrefix(candidate, "http://") && !strings.HasPrefix(candidate, "https://") {
			continue
		}
		if strings.ContainsAny(candidate, " \n\t") || q.HasURL(candidate) {
			continue
		}
		p.Send(tui.ClipboardURLMsg{URL: candidate})
	}
}
