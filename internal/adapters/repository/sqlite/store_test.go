package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/adapters/repository/sqlite"
	"github.com/okian/arena/internal/adapters/repository/storetest"
)

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Store {
		s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "arena.db"))
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "arena.db")

	s, err := sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	fx, err := storetest.Seed(ctx, s)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	err = s.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := tx.Competition(ctx, fx.Competition.ID)
		if err != nil {
			return err
		}
		if c.Name != "Grand Prix" {
			t.Errorf("unexpected competition %+v", c)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestSQLiteStore_EmptyPath(t *testing.T) {
	if _, err := sqlite.Open(context.Background(), "  "); err == nil {
		t.Errorf("expected error for empty path")
	}
}
