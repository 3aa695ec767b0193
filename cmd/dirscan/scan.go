package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/michaelscutari/dirscan/internal/progress"
	"github.com/michaelscutari/dirscan/internal/scan"
	"github.com/michaelscutari/dirscan/internal/snapshot"
)

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Scan a directory and print its disk usage",
	Long: heredoc.Doc(`
		Scan a directory tree in two phases. The first phase lists every
		directory concurrently; the second measures every file in batches.

		Sizes are aggregated per directory. Use --out to also save a SQLite
		report that can be read with info, query and tui.
	`),
	Example: heredoc.Doc(`
		dirscan scan /data
		dirscan scan /data --exclude '/\.git(/|$)' --top 20
		dirscan scan /data --out ./reports --retention 10
	`),
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

var (
	scanWorkers     int
	scanStatWorkers int
	scanBatchSize   int
	scanXdev        bool
	scanExclude     []string
	scanVerbose     bool
	scanNoProgress  bool
	scanTop         int
	scanOut         string
	scanRetention   int
	scanIndexMode   string
	scanSQLiteTmp   string
)

func init() {
	defaults := scan.DefaultOptions()
	scanCmd.Flags().IntVarP(&scanWorkers, "workers", "w", defaults.Workers, "Maximum concurrent directory listings")
	scanCmd.Flags().IntVar(&scanStatWorkers, "stat-workers", defaults.StatWorkers, "Number of file measuring workers")
	scanCmd.Flags().IntVar(&scanBatchSize, "batch-size", defaults.BatchSize, "Files per measuring batch")
	scanCmd.Flags().BoolVar(&scanXdev, "xdev", false, "Don't cross filesystem boundaries")
	scanCmd.Flags().StringSliceVarP(&scanExclude, "exclude", "e", nil, "Regex patterns on the full path to exclude (can be repeated)")
	scanCmd.Flags().BoolVarP(&scanVerbose, "verbose", "v", false, "Enable verbose scan logging")
	scanCmd.Flags().BoolVar(&scanNoProgress, "no-progress", false, "Disable progress output")
	scanCmd.Flags().IntVarP(&scanTop, "top", "t", 10, "Number of largest directories to print (0 = none)")
	scanCmd.Flags().StringVarP(&scanOut, "out", "o", "", "Output directory for a SQLite report")
	scanCmd.Flags().IntVar(&scanRetention, "retention", 5, "Number of reports to retain (0 = unlimited)")
	scanCmd.Flags().StringVar(&scanIndexMode, "index-mode", "memory", "Index build mode: memory|disk|skip")
	scanCmd.Flags().StringVar(&scanSQLiteTmp, "sqlite-tmp-dir", "", "Directory for SQLite temp files during index build")
}

func scanOptions() (*scan.Options, error) {
	opts := scan.DefaultOptions().
		WithWorkers(scanWorkers).
		WithStatWorkers(scanStatWorkers).
		WithBatchSize(scanBatchSize).
		WithXdev(scanXdev).
		WithVerbose(scanVerbose)

	for _, pattern := range scanExclude {
		if err := opts.AddExcludePattern(pattern); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}
	return opts, opts.Validate()
}

func runScan(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}

	switch scanIndexMode {
	case "memory", "disk", "skip":
	default:
		return fmt.Errorf("invalid index mode %q (expected memory|disk|skip)", scanIndexMode)
	}

	opts, err := scanOptions()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	showProgress := !scanNoProgress && !scanVerbose && isatty.IsTerminal(os.Stderr.Fd())
	start := time.Now()

	s := scan.NewScanner(opts, nil)
	defer s.Close()

	summary, err := measure(ctx, s, root, showProgress)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Scan canceled.")
		}
		return err
	}

	printSummary(summary)
	fmt.Printf("total took %s\n", time.Since(start).Round(time.Millisecond))

	if scanTop > 0 {
		printLargest(s, scanTop)
	}

	if errs := s.Errors(); len(errs) > 0 {
		fmt.Fprintf(os.Stderr, "\n%d directories could not be read (showing up to 5):\n", summary.Skipped)
		for _, e := range errs[:min(len(errs), 5)] {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", e.Path, e.Message)
		}
	}

	if scanOut == "" {
		return nil
	}
	return saveReport(ctx, s, showProgress)
}

// measure runs both scan phases with a spinner for the walk and a bar for
// the file sizes.
func measure(ctx context.Context, s *scan.Scanner, root string, showProgress bool) (*scan.Summary, error) {
	spinner := progress.New(showProgress, -1, "walking")
	walkDone := make(chan struct{})
	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-walkDone:
				return
			case <-ticker.C:
				dirs, files := s.WalkProgress()
				spinner.Describe(fmt.Sprintf("walking: %s dirs, %s files", humanize.Comma(dirs), humanize.Comma(files)))
			}
		}
	}()

	err := s.Scan(ctx, root)
	close(walkDone)
	<-tickerDone
	if err != nil {
		spinner.Abort("walk failed")
		return nil, err
	}
	dirs, files := s.WalkProgress()
	spinner.Finish(fmt.Sprintf("walked %s dirs, %s files", humanize.Comma(dirs), humanize.Comma(files)))

	bar := progress.New(showProgress, int64(s.Tree().FileCount()), "measuring")
	summary, err := s.ComputeSizes(ctx, func(done, total int64) {
		bar.Set(done)
	})
	if err != nil {
		bar.Abort("measuring failed")
		return nil, err
	}
	bar.Finish(fmt.Sprintf("measured %s files", humanize.Comma(summary.Files)))
	return summary, nil
}

func printSummary(summary *scan.Summary) {
	fmt.Printf("\nScanned %s\n", summary.Root)
	fmt.Printf("  Directories: %s\n", humanize.Comma(summary.Dirs))
	fmt.Printf("  Files:       %s\n", humanize.Comma(summary.Files))
	fmt.Printf("  Total size:  %s (%s bytes)\n", humanize.IBytes(uint64(summary.TotalBytes)), humanize.Comma(summary.TotalBytes))
	if summary.Unreadable > 0 {
		fmt.Printf("  Unreadable:  %s files\n", humanize.Comma(summary.Unreadable))
	}
	if summary.Skipped > 0 {
		fmt.Printf("  Skipped:     %s dirs\n", humanize.Comma(summary.Skipped))
	}
	fmt.Println()
	fmt.Printf("walk took %s\n", summary.WalkDuration.Round(time.Millisecond))
	fmt.Printf("file size calc. took %s\n", summary.StatDuration.Round(time.Millisecond))
	fmt.Printf("rollup took %s\n", summary.RollupDuration.Round(time.Millisecond))
}

func printLargest(s *scan.Scanner, n int) {
	largest := s.Rollups().Largest(n)
	if len(largest) == 0 {
		return
	}

	fmt.Printf("\nLargest directories\n")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SIZE\tFILES\tDIRS\tPATH\n")
	for _, r := range largest {
		rel, err := filepath.Rel(s.Root(), r.Path)
		if err != nil {
			rel = r.Path
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			humanize.IBytes(uint64(r.TotalSize)),
			humanize.Comma(r.TotalFiles),
			humanize.Comma(r.TotalDirs),
			rel,
		)
	}
	w.Flush()
}

func saveReport(ctx context.Context, s *scan.Scanner, showProgress bool) error {
	outDir, err := filepath.Abs(scanOut)
	if err != nil {
		return fmt.Errorf("failed to resolve output path: %w", err)
	}

	total := int64(s.Tree().Len() + s.Tree().FileCount())
	bar := progress.New(showProgress, total, "writing report")

	mgr := snapshot.NewManager(outDir, scanRetention)
	mgr.SetIndexMode(scanIndexMode)
	mgr.SetVerbose(scanVerbose)
	if scanSQLiteTmp != "" {
		mgr.SetSQLiteTmpDir(scanSQLiteTmp)
	}
	mgr.SetProgressFunc(func(written, total int64) {
		bar.Set(written)
	})
	mgr.SetStageFunc(func(stage string) {
		bar.Describe(stage)
	})

	dbPath, err := mgr.Save(ctx, s)
	if err != nil {
		bar.Abort("report not written")
		return fmt.Errorf("save report: %w", err)
	}
	bar.Finish("report written")

	fmt.Printf("\nReport: %s\n", dbPath)
	return nil
}
