package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/omniget/omniget/internal/ffmpeg"
	"github.com/omniget/omniget/internal/logx"
)

var convertCmd = &cobra.Command{
	Use:   "convert [input] [output]",
	Short: "Convert a media file with ffmpeg",
	Long: `Convert remuxes input into the container implied by output's extension,
or extracts the audio track when --audio is set.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		audioOnly, _ := cmd.Flags().GetBool("audio")
		bitrate, _ := cmd.Flags().GetInt("bitrate")
		return runConvert(args[0], args[1], audioOnly, bitrate)
	},
}

func init() {
	convertCmd.Flags().Bool("audio", false, "extract audio only")
	convertCmd.Flags().Int("bitrate", 0, "audio bitrate in kbps (0 = encoder default)")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(input, output string, audioOnly bool, bitrateKbps int) error {
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	if filepath.Ext(output) == "" {
		return fmt.Errorf("output needs a file extension to pick a container")
	}
	defer logx.Close()

	ctx := context.Background()

	// Duration makes the progress percentage meaningful; without it ffmpeg
	// still runs, the bar just stays empty.
	duration, err := ffmpeg.ProbeDuration(ctx, input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not probe duration: %v\n", err)
	}

	var args []string
	if audioOnly {
		args = ffmpeg.ExtractAudioArgs(input, output, bitrateKbps)
	} else {
		args = ffmpeg.RemuxArgs(input, output)
	}

	job := ffmpeg.NewJob(args, duration)
	err = ffmpeg.Run(ctx, job, func(p ffmpeg.Progress) {
		line := fmt.Sprintf("\r%5.1f%%  %s", p.Percent, p.OutTime.Truncate(time.Second))
		if p.Speed != "" {
			line += "  " + p.Speed
		}
		fmt.Fprint(os.Stderr, line+"    ")
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}

	fmt.Printf("wrote %s\n", output)
	return nil
}
