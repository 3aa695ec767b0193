// Command dirscanbench measures how the stat batch size affects the file
// measuring phase over a real directory tree.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/michaelscutari/dirscan/internal/scan"
)

type result struct {
	batchSize int
	batches   int64
	files     int64
	walk      time.Duration
	stat      time.Duration
}

func main() {
	dir := pflag.StringP("dir", "d", ".", "Directory to scan")
	workers := pflag.IntP("workers", "w", scan.DefaultOptions().Workers, "Maximum concurrent directory listings")
	statWorkers := pflag.Int("stat-workers", scan.DefaultOptions().StatWorkers, "Number of file measuring workers")
	sizes := pflag.IntSlice("batch-sizes", []int{100, 500, 1000, 5000, 10000}, "Batch sizes to compare")
	runs := pflag.IntP("runs", "n", 1, "Runs per batch size")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var results []result
	for _, bs := range *sizes {
		for i := 0; i < *runs; i++ {
			res, err := run(ctx, *dir, *workers, *statWorkers, bs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "batch-size %d: %v\n", bs, err)
				os.Exit(1)
			}
			results = append(results, res)
		}
	}

	fmt.Printf("dir=%s workers=%d stat-workers=%d runs=%d\n", *dir, *workers, *statWorkers, *runs)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "BATCH\tBATCHES\tFILES\tWALK\tSTAT\tSTATS/SEC\t\n")
	for _, r := range results {
		rate := float64(0)
		if r.stat.Seconds() > 0 {
			rate = float64(r.files) / r.stat.Seconds()
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%v\t%v\t%s\t\n",
			r.batchSize, r.batches, humanize.Comma(r.files),
			r.walk.Round(time.Millisecond), r.stat.Round(time.Millisecond),
			humanize.Comma(int64(rate)))
	}
	w.Flush()
}

// run performs one full scan with its own dispatcher so batch counts are
// per run.
func run(ctx context.Context, dir string, workers, statWorkers, batchSize int) (result, error) {
	opts := scan.DefaultOptions().
		WithWorkers(workers).
		WithStatWorkers(statWorkers).
		WithBatchSize(batchSize)

	d := scan.NewDispatcher(statWorkers, batchSize)
	defer d.Close()

	s := scan.NewScanner(opts, d)
	if err := s.Scan(ctx, dir); err != nil {
		return result{}, err
	}
	summary, err := s.ComputeSizes(ctx, nil)
	if err != nil {
		return result{}, err
	}

	return result{
		batchSize: batchSize,
		batches:   d.Batches(),
		files:     summary.Files,
		walk:      summary.WalkDuration,
		stat:      summary.StatDuration,
	}, nil
}
