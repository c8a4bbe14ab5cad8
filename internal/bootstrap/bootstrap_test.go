package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap/zaptest"
)

// Mock для repository.DB: нужен только Exec
type mockDB struct {
	executed []string
	execErr  error
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("unexpected QueryRow")
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("unexpected Query")
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execErr != nil {
		return pgconn.CommandTag{}, m.execErr
	}
	m.executed = append(m.executed, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func TestRunMigrations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "002_vehicles.sql", "CREATE TABLE vehicles ();")
	writeFile(t, dir, "001_verification_records.sql", "CREATE TABLE verification_records ();")
	writeFile(t, dir, "README.md", "not a migration")
	if err := os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0o755); err != nil {
		t.Fatal(err)
	}

	db := &mockDB{}
	if err := RunMigrations(context.Background(), db, dir, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(db.executed) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(db.executed))
	}
	if !strings.Contains(db.executed[0], "verification_records") || !strings.Contains(db.executed[1], "vehicles") {
		t.Errorf("migrations applied out of order: %v", db.executed)
	}
}

func TestRunMigrationsErrors(t *testing.T) {
	t.Run("missing_dir", func(t *testing.T) {
		err := RunMigrations(context.Background(), &mockDB{}, filepath.Join(t.TempDir(), "nope"), zaptest.NewLogger(t))
		if err == nil {
			t.Error("expected error for missing directory")
		}
	})

	t.Run("exec_failure", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "001_broken.sql", "CREATE TABLE")

		execErr := errors.New("syntax error")
		err := RunMigrations(context.Background(), &mockDB{execErr: execErr}, dir, zaptest.NewLogger(t))
		if !errors.Is(err, execErr) {
			t.Errorf("expected wrapped exec error, got %v", err)
		}
		if err != nil && !strings.Contains(err.Error(), "001_broken.sql") {
			t.Errorf("error should name the file: %v", err)
		}
	})
}

func TestRepositoryMigrationsApply(t *testing.T) {
	db := &mockDB{}
	if err := RunMigrations(context.Background(), db, filepath.Join("..", "..", "migrations"), zaptest.NewLogger(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(db.executed) < 2 {
		t.Errorf("expected the shipped migrations to be found, got %d", len(db.executed))
	}
}
