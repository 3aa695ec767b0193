package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/michaelscutari/dirscan/internal/db"
	"github.com/michaelscutari/dirscan/internal/report"
	"github.com/michaelscutari/dirscan/internal/scan"
	"github.com/michaelscutari/dirscan/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Browse disk usage interactively",
	Long: `Open an interactive TUI to browse a saved report, or scan a directory
with --path and browse the result without writing a report.`,
	RunE: runTUI,
}

var (
	tuiDB   string
	tuiPath string
)

func init() {
	tuiCmd.Flags().StringVarP(&tuiDB, "db", "d", "./data/latest.db", "Path to report file")
	tuiCmd.Flags().StringVarP(&tuiPath, "path", "p", "", "Scan this directory instead of opening a report")
	tuiCmd.Flags().IntVarP(&scanWorkers, "workers", "w", scan.DefaultOptions().Workers, "Maximum concurrent directory listings")
	tuiCmd.Flags().StringSliceVarP(&scanExclude, "exclude", "e", nil, "Regex patterns on the full path to exclude (can be repeated)")
	tuiCmd.Flags().BoolVar(&scanXdev, "xdev", false, "Don't cross filesystem boundaries")
}

func runTUI(cmd *cobra.Command, args []string) error {
	var source tui.Source
	if tuiPath != "" {
		src, closeFn, err := liveSource(tuiPath)
		if err != nil {
			return err
		}
		defer closeFn()
		source = src
	} else {
		r, err := db.Open(tuiDB)
		if err != nil {
			return err
		}
		defer r.Close()
		source = r
	}

	p := tea.NewProgram(tui.NewModel(source), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// liveSource scans root and serves the result from memory.
func liveSource(root string) (*report.TreeSource, func(), error) {
	opts, err := scanOptions()
	if err != nil {
		return nil, nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := scan.NewScanner(opts, nil)
	if _, err := measure(ctx, s, root, isatty.IsTerminal(os.Stderr.Fd())); err != nil {
		s.Close()
		return nil, nil, err
	}

	src, err := report.NewTreeSource(s)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return src, s.Close, nil
}
