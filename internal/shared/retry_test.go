package shared

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestRetryOnConflictRetriesBusy(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryOnConflict(context.Background(), 3, time.Millisecond, "test", func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryOnConflictStopsOnOtherErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	want := errors.New("constraint failed")
	err := RetryOnConflict(context.Background(), 5, time.Millisecond, "test", func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestIsSQLiteConflictError(t *testing.T) {
	t.Parallel()

	if !IsSQLiteConflictError(errors.New("SQLITE_BUSY: busy")) {
		t.Fatal("SQLITE_BUSY should be a conflict")
	}
	if !IsSQLiteConflictError(errors.New("database table is locked: passages")) {
		t.Fatal("locked table should be a conflict")
	}
	if IsSQLiteConflictError(errors.New("UNIQUE constraint failed")) {
		t.Fatal("constraint failure is not a conflict")
	}
	if IsSQLiteConflictError(nil) {
		t.Fatal("nil is not a conflict")
	}
}

func TestIsSQLiteConflictErrorFromDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busy.db")
	holder, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open holder: %v", err)
	}
	defer holder.Close()
	other, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(0)")
	if err != nil {
		t.Fatalf("open other: %v", err)
	}
	defer other.Close()

	ctx := context.Background()
	if _, err := holder.ExecContext(ctx, "CREATE TABLE t (v INTEGER)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	conn, err := holder.Conn(ctx)
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, "BEGIN EXCLUSIVE"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer func() { _, _ = conn.ExecContext(ctx, "ROLLBACK") }()

	_, err = other.ExecContext(ctx, "INSERT INTO t (v) VALUES (1)")
	if err == nil {
		t.Fatal("expected write to fail while another connection holds the lock")
	}
	if !IsSQLiteConflictError(fmt.Errorf("insert: %w", err)) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
