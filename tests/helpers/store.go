package helpers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/xiaot623/improv/internal/domain"
	"github.com/xiaot623/improv/internal/repository"
)

func NewTestSQLiteStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()

	s, err := repository.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// NewTestFileSQLiteStore opens a store on a database file under t.TempDir,
// with the same connection pool a deployed orchestrator gets.
func NewTestFileSQLiteStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "improv.db") + "?mode=rwc"
	s, err := repository.NewSQLiteStore(dsn)
	if err != nil {
		t.Fatalf("failed to create file sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// SeedAccount inserts an account with the given tier and limit.
func SeedAccount(t *testing.T, s repository.Store, accountID string, tier domain.Tier, used, limit int) *domain.Account {
	t.Helper()

	now := time.Now()
	account := &domain.Account{
		AccountID:            accountID,
		Tier:                 tier,
		MeteredSessionsUsed:  used,
		MeteredSessionsLimit: limit,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
	return account
}
