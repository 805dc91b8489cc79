package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// openTestDB opens a WAL database in a fresh temp dir.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "afmeter.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return db
}

func TestOpen_CreatesNestedFileOwnerOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "nested", "afmeter.db")
	db, err := Open(context.Background(), Config{Path: path, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // test cleanup

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("database file not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != filePermissions {
		t.Errorf("file mode = %o, want %o", perm, filePermissions)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	tests := []struct {
		name        string
		wal         bool
		wantJournal string
	}{
		{"wal", true, "wal"},
		{"rollback journal", false, "delete"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := Open(context.Background(), Config{
				Path:        filepath.Join(t.TempDir(), "afmeter.db"),
				WALMode:     tt.wal,
				BusyTimeout: 3,
			})
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer db.Close() //nolint:errcheck // test cleanup

			var journal string
			if err := db.QueryRow("PRAGMA journal_mode").Scan(&journal); err != nil {
				t.Fatalf("journal_mode: %v", err)
			}
			if strings.ToLower(journal) != tt.wantJournal {
				t.Errorf("journal_mode = %q, want %q", journal, tt.wantJournal)
			}

			var busy, fk int
			if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busy); err != nil {
				t.Fatalf("busy_timeout: %v", err)
			}
			if busy != 3000 {
				t.Errorf("busy_timeout = %d, want 3000", busy)
			}
			if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
				t.Fatalf("foreign_keys: %v", err)
			}
			if fk != 1 {
				t.Errorf("foreign_keys = %d, want 1", fk)
			}
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Error("Open() with empty path should fail")
	}

	// A regular file where the parent directory should be.
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(context.Background(), Config{Path: filepath.Join(blocker, "afmeter.db")}); err == nil {
		t.Error("Open() under a regular file should fail")
	}
}

func TestSingleWriterPool(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // test cleanup

	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
}

func TestHealthCheckAndClose(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := db.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() after Close should fail")
	}

	var zero *DB
	if err := zero.Close(); err != nil {
		t.Errorf("Close() on nil DB error = %v", err)
	}
}

func TestTransactions(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // test cleanup
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, commit := range []bool{true, false} {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("BeginTx() error = %v", err)
		}
		key := "rolled-back"
		if commit {
			key = "committed"
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO kv (k, v) VALUES (?, 'x')", key); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if commit {
			err = tx.Commit()
		} else {
			err = tx.Rollback()
		}
		if err != nil {
			t.Fatalf("finishing tx: %v", err)
		}
	}

	var keys []string
	rows, err := db.QueryContext(ctx, "SELECT k FROM kv")
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			t.Fatal(err)
		}
		keys = append(keys, k)
	}
	if len(keys) != 1 || keys[0] != "committed" {
		t.Errorf("keys = %v, want [committed]", keys)
	}

	if _, err := db.ExecContext(ctx, "INSERT INTO missing VALUES (1)"); err == nil || !strings.Contains(err.Error(), "executing query") {
		t.Errorf("ExecContext() error = %v, want wrapped failure", err)
	}
}
