package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/michaelscutari/dirscan/internal/db"
	"github.com/michaelscutari/dirscan/internal/entry"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query a report non-interactively",
	Long:  `Query a scan report and output results for scripting.`,
	RunE:  runQuery,
}

var (
	queryDB      string
	queryPath    string
	querySort    string
	queryLimit   int
	queryLargest bool
)

func init() {
	queryCmd.Flags().StringVarP(&queryDB, "db", "d", "./data/latest.db", "Path to report file")
	queryCmd.Flags().StringVarP(&queryPath, "path", "p", "", "Directory path to query (default: scan root)")
	queryCmd.Flags().StringVarP(&querySort, "sort", "s", "size", "Sort by: size, name, files")
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 20, "Maximum number of results")
	queryCmd.Flags().BoolVar(&queryLargest, "largest", false, "List the largest directories of the whole tree")
}

func runQuery(cmd *cobra.Command, args []string) error {
	switch querySort {
	case "size", "name", "files":
	default:
		return fmt.Errorf("invalid sort %q (expected size|name|files)", querySort)
	}

	r, err := db.Open(queryDB)
	if err != nil {
		return err
	}
	defer r.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if queryLargest {
		rollups, err := r.Largest(queryLimit)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "SIZE\tFILES\tDIRS\tPATH\n")
		for _, ru := range rollups {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				humanize.IBytes(uint64(ru.TotalSize)),
				humanize.Comma(ru.TotalFiles),
				humanize.Comma(ru.TotalDirs),
				ru.Path,
			)
		}
		return nil
	}

	if queryPath == "" {
		meta, err := r.ScanMeta()
		if err != nil {
			return fmt.Errorf("failed to get root path: %w", err)
		}
		queryPath = meta.RootPath
	}

	entries, err := r.LoadChildren(queryPath, querySort, queryLimit)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	fmt.Fprintf(w, "SIZE\tFILES\tDIRS\tNAME\n")
	for _, e := range entries {
		size := humanize.IBytes(uint64(e.TotalSize))
		if e.State == entry.SizeUnreadable {
			size = "?"
		}
		name := e.Name
		if e.Kind == entry.KindDir {
			name += "/"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			size,
			humanize.Comma(e.TotalFiles),
			humanize.Comma(e.TotalDirs),
			name,
		)
	}
	return nil
}
