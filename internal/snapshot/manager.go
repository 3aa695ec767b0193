// Package snapshot writes completed scans to SQLite report files.
package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/michaelscutari/dirscan/internal/db"
	"github.com/michaelscutari/dirscan/internal/scan"

	_ "modernc.org/sqlite"
)

const (
	reportPrefix = "dirscan-"
	reportSuffix = ".db"
	latestName   = "latest.db"
	lockName     = ".dirscan.lock"
)

// ProgressFunc is called after every committed batch of rows.
type ProgressFunc func(written, total int64)

// StageFunc is called when the save stage changes.
type StageFunc func(stage string)

// Manager writes reports into an output directory, keeping a latest.db
// symlink and at most retention reports.
type Manager struct {
	outputDir    string
	retention    int
	lockFile     *os.File
	progressFunc ProgressFunc
	stageFunc    StageFunc
	indexMode    string
	sqliteTmpDir string
	batchSize    int
	verbose      bool
	now          func() time.Time
}

// NewManager creates a new snapshot manager.
func NewManager(outputDir string, retention int) *Manager {
	return &Manager{
		outputDir: outputDir,
		retention: retention,
		batchSize: db.DefaultBatchSize,
		now:       time.Now,
	}
}

// SetProgressFunc sets a callback for write progress.
func (m *Manager) SetProgressFunc(f ProgressFunc) {
	m.progressFunc = f
}

// SetStageFunc sets a callback for save stage updates.
func (m *Manager) SetStageFunc(f StageFunc) {
	m.stageFunc = f
}

// SetIndexMode sets the index build mode: memory|disk|skip.
func (m *Manager) SetIndexMode(mode string) {
	m.indexMode = mode
}

// SetSQLiteTmpDir sets the temp directory for SQLite during index build.
func (m *Manager) SetSQLiteTmpDir(dir string) {
	m.sqliteTmpDir = dir
}

// SetBatchSize sets the number of rows per write transaction.
func (m *Manager) SetBatchSize(n int) {
	m.batchSize = n
}

// SetVerbose toggles writer debug output.
func (m *Manager) SetVerbose(v bool) {
	m.verbose = v
}

func (m *Manager) stage(name string) {
	if m.stageFunc != nil {
		m.stageFunc(name)
	}
}

// Save writes a scanner whose sizes have been computed to a new report and
// returns its path.
func (m *Manager) Save(ctx context.Context, s *scan.Scanner) (string, error) {
	if s.Summary() == nil {
		return "", &scan.StateError{Op: "save report", Have: s.State(), Want: scan.StateScannedFiles}
	}

	// Ensure output directory exists
	if err := os.MkdirAll(m.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := m.acquireLock(); err != nil {
		return "", fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer m.releaseLock()

	tempPath := filepath.Join(m.outputDir, fmt.Sprintf(".dirscan-temp-%d.db", m.now().UnixNano()))
	if err := m.write(ctx, tempPath, s); err != nil {
		os.Remove(tempPath)
		return "", err
	}

	// Atomic rename to final location
	finalName := m.reportName()
	finalPath := filepath.Join(m.outputDir, finalName)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to rename database: %w", err)
	}

	// Update latest.db symlink atomically via temp symlink + rename
	latestPath := filepath.Join(m.outputDir, latestName)
	tempLink := filepath.Join(m.outputDir, ".latest.db.tmp")
	os.Remove(tempLink)
	if err := os.Symlink(finalName, tempLink); err == nil {
		if err := os.Rename(tempLink, latestPath); err != nil {
			os.Remove(tempLink)
			fmt.Fprintf(os.Stderr, "warning: failed to update %s symlink: %v\n", latestName, err)
		}
	} else {
		fmt.Fprintf(os.Stderr, "warning: failed to create %s symlink: %v\n", latestName, err)
	}

	if err := m.pruneOldSnapshots(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to prune old reports: %v\n", err)
	}

	return finalPath, nil
}

// reportName returns a timestamped file name that does not exist yet.
func (m *Manager) reportName() string {
	base := reportPrefix + m.now().Format("20060102-150405")
	name := base + reportSuffix
	for i := 1; ; i++ {
		if _, err := os.Lstat(filepath.Join(m.outputDir, name)); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s_%03d%s", base, i, reportSuffix)
	}
}

func (m *Manager) write(ctx context.Context, path string, s *scan.Scanner) error {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer database.Close()

	if err := db.InitSchema(database); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := db.ApplyWritePragmas(database); err != nil {
		return fmt.Errorf("failed to apply pragmas: %w", err)
	}

	m.stage("write")
	w := db.NewWriter(database, m.batchSize, m.verbose)
	if m.progressFunc != nil {
		w.SetProgressFunc(db.ProgressFunc(m.progressFunc))
	}
	if err := w.WriteTree(ctx, s.Tree(), s.Rollups()); err != nil {
		return fmt.Errorf("failed to write tree: %w", err)
	}
	errs := s.Errors()
	if err := w.WriteErrors(errs); err != nil {
		return err
	}
	if err := w.WriteScanMeta(s.Summary().Meta(int64(len(errs)))); err != nil {
		return err
	}

	if m.indexMode == "" {
		m.indexMode = "memory"
	}
	if m.indexMode != "skip" {
		m.stage("indexes")
		if err := db.ApplyIndexPragmas(database, m.indexMode == "disk", m.sqliteTmpDir); err != nil {
			return fmt.Errorf("failed to apply index pragmas: %w", err)
		}
		if err := db.BuildIndexes(database); err != nil {
			return fmt.Errorf("failed to build indexes: %w", err)
		}
	}

	m.stage("finalize")
	if err := db.Finalize(database); err != nil {
		return fmt.Errorf("failed to finalize database: %w", err)
	}
	return nil
}

func (m *Manager) acquireLock() error {
	lockPath := filepath.Join(m.outputDir, lockName)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("another report is being written")
	}

	m.lockFile = f
	return nil
}

func (m *Manager) releaseLock() {
	if m.lockFile != nil {
		syscall.Flock(int(m.lockFile.Fd()), syscall.LOCK_UN)
		m.lockFile.Close()
		m.lockFile = nil
	}
}

func (m *Manager) pruneOldSnapshots() error {
	if m.retention <= 0 {
		return nil
	}

	snapshots, err := m.ListSnapshots()
	if err != nil {
		return err
	}

	for len(snapshots) > m.retention {
		if err := os.Remove(snapshots[0]); err != nil {
			return fmt.Errorf("failed to remove %s: %w", filepath.Base(snapshots[0]), err)
		}
		snapshots = snapshots[1:]
	}

	return nil
}

// GetLatest returns the path to the latest report.
func (m *Manager) GetLatest() (string, error) {
	latestPath := filepath.Join(m.outputDir, latestName)
	resolved, err := filepath.EvalSymlinks(latestPath)
	if err != nil {
		return "", fmt.Errorf("no latest report found: %w", err)
	}
	return resolved, nil
}

// ListSnapshots returns all reports, oldest first.
func (m *Manager) ListSnapshots() ([]string, error) {
	entries, err := os.ReadDir(m.outputDir)
	if err != nil {
		return nil, err
	}

	var snapshots []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), reportPrefix) && strings.HasSuffix(e.Name(), reportSuffix) {
			snapshots = append(snapshots, filepath.Join(m.outputDir, e.Name()))
		}
	}

	// Names embed the timestamp, so lexical order is chronological.
	sort.Strings(snapshots)
	return snapshots, nil
}
