package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/omniget/omniget/internal/logx"
)

var infoCmd = &cobra.Command{
	Use:   "info [url]",
	Short: "Resolve media metadata without downloading",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := initApp()
		if err != nil {
			return err
		}
		if a.history != nil {
			defer a.history.Close()
		}
		defer logx.Close()

		ad, err := a.registry.Find(args[0])
		if err != nil {
			return err
		}
		info, err := ad.GetMediaInfo(context.Background(), args[0], a.cfg)
		if err != nil {
			return fmt.Errorf("metadata: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
