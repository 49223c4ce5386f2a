// Package repository defines the storage interface and its SQLite implementation.
package repository

import (
	"context"
	"time"

	"github.com/xiaot623/improv/internal/domain"
)

var (
	// ErrVersionConflict is returned by SaveSession when the stored version no
	// longer matches the expected one.
	ErrVersionConflict = domain.E(domain.CodeVersionConflict, "session was modified concurrently")

	// ErrAccountNotFound is returned by account mutations on unknown accounts.
	ErrAccountNotFound = domain.E(domain.CodeAccountNotFound, "account not found")
)

// Store defines the interface for data persistence. Getters return (nil, nil)
// when the record does not exist.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	SaveSession(ctx context.Context, session *domain.Session, expectedVersion int64) error
	ListIdleSessions(ctx context.Context, idleSince time.Time, limit int) ([]domain.Session, error)

	// Account operations
	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
	IncrementUsage(ctx context.Context, accountID string) error

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, filter EventFilter) ([]domain.Event, error)

	// Agent operations
	RegisterAgent(ctx context.Context, agent *domain.Agent) error
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)
	ListAgents(ctx context.Context) ([]domain.Agent, error)

	// InTx runs fn against a store bound to a single transaction. fn must use
	// only the store it is given. Nested calls reuse the outer transaction.
	InTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// EventFilter provides filtering options for events.
type EventFilter struct {
	SessionID string
	AfterTs   int64
	Types     []string
	Limit     int
}
