package db

import (
	"context"
	"testing"
)

func TestBuildIndexes(t *testing.T) {
	database := openMemory(t)
	if err := BuildIndexes(database); err != nil {
		t.Fatalf("build indexes: %v", err)
	}
	// Idempotent.
	if err := BuildIndexes(database); err != nil {
		t.Fatalf("rebuild indexes: %v", err)
	}

	for _, idx := range reportIndexes {
		var name string
		err := database.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?`, idx.name).Scan(&name)
		if err != nil {
			t.Fatalf("index %s missing: %v", idx.name, err)
		}
	}
}

func TestReadPragmasRejectWrites(t *testing.T) {
	database := openMemory(t)
	if err := ApplyReadPragmas(database); err != nil {
		t.Fatalf("read pragmas: %v", err)
	}
	if _, err := database.Exec(`INSERT INTO scan_errors (path, op, message) VALUES ('/x', 'readdir', 'boom')`); err == nil {
		t.Fatalf("expected write to fail on a read-only session")
	}
}

func TestFinalizeAfterLoad(t *testing.T) {
	database := openMemory(t)
	tree, res := buildTree(t)
	if err := NewWriter(database, 0, false).WriteTree(context.Background(), tree, res); err != nil {
		t.Fatalf("write tree: %v", err)
	}
	if err := BuildIndexes(database); err != nil {
		t.Fatalf("build indexes: %v", err)
	}
	if err := Finalize(database); err != nil {
		t.Fatalf("finalize: %v", err)
	}
}
