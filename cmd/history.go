package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/omniget/omniget/internal/config"
	"github.com/omniget/omniget/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show download history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		search, _ := cmd.Flags().GetString("search")
		clear, _ := cmd.Flags().GetBool("clear")
		olderThan, _ := cmd.Flags().GetInt("older-than")
		return runHistory(limit, search, clear, olderThan)
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "number of entries to show")
	historyCmd.Flags().StringP("search", "s", "", "filter by title or URL")
	historyCmd.Flags().Bool("clear", false, "delete all history")
	historyCmd.Flags().Int("older-than", 0, "delete entries older than N days")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(limit int, search string, clear bool, olderThanDays int) error {
	s, err := store.Open(filepath.Join(config.DataDir(), "history.db"))
	if err != nil {
		return err
	}
	defer s.Close()

	if clear {
		n, err := s.Clear()
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d entries\n", n)
		return nil
	}
	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		n, err := s.DeleteOlderThan(cutoff)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d entries older than %d days\n", n, olderThanDays)
		return nil
	}

	var records []store.Record
	if search != "" {
		records, err = s.Search(search, limit)
	} else {
		records, err = s.Recent(limit)
	}
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no history")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tSTATUS\tSIZE\tTITLE")
	for _, r := range records {
		title := r.Title
		if title == "" {
			title = r.URL
		}
		size := ""
		if r.FileSize > 0 {
			size = humanize.Bytes(uint64(r.FileSize))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			humanize.Time(r.CreatedAt), r.Status, size, title)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	stats, err := s.Summary()
	if err == nil {
		fmt.Printf("\n%d total, %d completed, %d failed, %s downloaded\n",
			stats.Total, stats.Completed, stats.Failed, humanize.Bytes(uint64(stats.TotalBytes)))
	}
	return nil
}
