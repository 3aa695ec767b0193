package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/michaelscutari/dirscan/internal/db"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Display report metadata",
	Long:  `Print metadata about a scan report including timestamps, statistics and sampled errors.`,
	RunE:  runInfo,
}

var (
	infoDB     string
	infoErrors int
)

func init() {
	infoCmd.Flags().StringVarP(&infoDB, "db", "d", "./data/latest.db", "Path to report file")
	infoCmd.Flags().IntVar(&infoErrors, "errors", 10, "Number of sampled errors to print")
}

func runInfo(cmd *cobra.Command, args []string) error {
	r, err := db.Open(infoDB)
	if err != nil {
		return err
	}
	defer r.Close()

	meta, err := r.ScanMeta()
	if err != nil {
		return fmt.Errorf("failed to read scan metadata: %w", err)
	}

	fmt.Printf("Scan Information\n")
	fmt.Printf("================\n\n")
	fmt.Printf("Scan ID:      %s\n", meta.ScanID)
	fmt.Printf("Root Path:    %s\n", meta.RootPath)
	fmt.Printf("Start Time:   %s\n", meta.StartTime.Format(time.RFC3339))
	if !meta.EndTime.IsZero() {
		fmt.Printf("End Time:     %s\n", meta.EndTime.Format(time.RFC3339))
		fmt.Printf("Duration:     %s\n", meta.EndTime.Sub(meta.StartTime))
	}
	fmt.Printf("\nStatistics\n")
	fmt.Printf("----------\n")
	fmt.Printf("Files:         %s\n", humanize.Comma(meta.FileCount))
	fmt.Printf("Directories:   %s\n", humanize.Comma(meta.DirCount))
	fmt.Printf("Total Size:    %s\n", humanize.IBytes(uint64(meta.TotalSize)))
	if meta.UnreadableCount > 0 {
		fmt.Printf("Unreadable:    %s\n", humanize.Comma(meta.UnreadableCount))
	}
	if meta.ErrorCount == 0 {
		return nil
	}

	fmt.Printf("Errors:        %s\n", humanize.Comma(meta.ErrorCount))
	if infoErrors <= 0 {
		return nil
	}
	errs, err := r.Errors(infoErrors)
	if err != nil {
		return fmt.Errorf("failed to read errors: %w", err)
	}
	fmt.Printf("\nSampled Errors\n")
	fmt.Printf("--------------\n")
	for _, e := range errs {
		fmt.Printf("%s %s: %s\n", e.Op, e.Path, e.Message)
	}
	return nil
}
