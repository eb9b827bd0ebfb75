package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/omniget/omniget/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and change settings",
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the settings document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(settings)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set [group.key] [value]",
	Short: "Set a single setting",
	Long: `Set changes one setting addressed by a dotted path, e.g.

  omniget config set download.skip_existing true
  omniget config set advanced.max_concurrent_downloads 5
  omniget config set download.quality 1080p`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := patchFromPath(args[0], args[1])
		if err != nil {
			return err
		}
		if _, err := config.Patch(patch); err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", args[0], args[1])
		return nil
	},
}

var configPatchCmd = &cobra.Command{
	Use:   "patch [json]",
	Short: "Apply a JSON merge patch to the settings",
	Long: `Patch merges a JSON object into the settings document: nested objects
merge recursively, scalars and arrays replace.

  omniget config patch '{"download": {"quality": "1080p", "skip_existing": true}}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch map[string]any
		if err := json.Unmarshal([]byte(args[0]), &patch); err != nil {
			return fmt.Errorf("invalid patch: %w", err)
		}
		updated, err := config.Patch(patch)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(updated)
	},
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configPatchCmd)
	rootCmd.AddCommand(configCmd)
}

// patchFromPath turns "group.key value" into a nested merge patch, guessing
// the JSON type of value (bool, number, string).
func patchFromPath(path, value string) (map[string]any, error) {
	keys := strings.Split(path, ".")
	for _, k := range keys {
		if k == "" {
			return nil, fmt.Errorf("invalid setting path: %q", path)
		}
	}

	var v any = value
	if b, err := strconv.ParseBool(value); err == nil {
		v = b
	} else if n, err := strconv.ParseFloat(value, 64); err == nil {
		v = n
	}

	patch := map[string]any{keys[len(keys)-1]: v}
	for i := len(keys) - 2; i >= 0; i-- {
		patch = map[string]any{keys[i]: patch}
	}
	return patch, nil
}
