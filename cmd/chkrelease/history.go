package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fabacab/chkrelease/pkg/chkrelease/config"
	"github.com/fabacab/chkrelease/pkg/chkrelease/manifest"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View audit run history",
	Long: `View the history of past audit runs.

Each completed run is recorded with its archive, comparison root,
counter totals, and exit status.`,
	RunE: runHistory,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean up old history entries",
	Long:  `Remove history entries older than the retention period.`,
	RunE:  runHistoryClean,
}

var (
	historyLimit int
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")

	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

// getManifest returns a manifest instance with the configured directory.
func getManifest() (*manifest.Manifest, error) {
	cfg, err := config.Load()
	if err != nil {
		cfg = nil
	}

	dir, err := config.HistoryDir(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get history directory: %w", err)
	}
	return manifest.New(dir)
}

// runHistory lists recent audit runs.
func runHistory(cmd *cobra.Command, args []string) error {
	m, err := getManifest()
	if err != nil {
		return fmt.Errorf("failed to initialize history: %w", err)
	}

	entries, err := m.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(entries) == 0 {
		printInfo("No history entries found.")
		printInfo("Run 'chkrelease <archive> [directory]' to audit a release.")
		return nil
	}

	fmt.Printf("\n%-20s  %-30s  %8s  %8s  %6s\n", "WHEN", "ARCHIVE", "AUDITED", "MODIFIED", "EXIT")
	fmt.Println(strings.Repeat("-", 80))

	for _, entry := range entries {
		archiveName := entry.Record.Archive
		if entry.Record.Interrupted {
			archiveName += " (interrupted)"
		}
		fmt.Printf("%-20s  %-30s  %8d  %8d  %6d\n",
			entry.Timestamp.Local().Format("2006-01-02 15:04:05"),
			truncateString(archiveName, 30),
			entry.Record.Counters.Audited,
			entry.Record.Counters.Modified,
			entry.Record.ExitStatus,
		)
	}

	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("\nShowing %d entries. Use --limit to see more.\n", len(entries))

	return nil
}

// runHistoryClean removes old history entries.
func runHistoryClean(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	m, err := getManifest()
	if err != nil {
		return fmt.Errorf("failed to initialize history: %w", err)
	}

	retentionDays := cfg.History.RetentionDays
	if retentionDays <= 0 {
		retentionDays = config.DefaultRetentionDays
	}

	printInfo("Cleaning history entries older than %d days...", retentionDays)

	if err := m.Cleanup(retentionDays); err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}

	printInfo("History cleanup complete.")
	return nil
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
