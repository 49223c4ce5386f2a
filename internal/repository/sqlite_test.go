package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/xiaot623/improv/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func seedAccount(t *testing.T, store *SQLiteStore, id string, tier domain.Tier) {
	t.Helper()
	now := time.Now()
	account := &domain.Account{AccountID: id, Tier: tier, MeteredSessionsLimit: 2, CreatedAt: now, UpdatedAt: now}
	if err := store.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
}

func newSession(id, owner string) *domain.Session {
	now := time.Now()
	return &domain.Session{
		SessionID:       id,
		OwnerAccountID:  owner,
		Status:          domain.SessionStatusInitialized,
		Mode:            domain.SessionModeAudio,
		Metered:         true,
		MaxTurns:        15,
		Phase:           domain.PhaseWarmup,
		PhaseBoundaries: []int{4},
		Agents:          []string{"narrator"},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestSQLiteStoreSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()
	seedAccount(t, store, "acc_1", domain.TierFreemium)

	session := newSession("s1", "acc_1")
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.Version != 1 {
		t.Fatalf("expected version 1, got %d", session.Version)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil || got.OwnerAccountID != "acc_1" || got.Mode != domain.SessionModeAudio || !got.Metered {
		t.Fatalf("unexpected session: %+v", got)
	}
	if len(got.PhaseBoundaries) != 1 || got.PhaseBoundaries[0] != 4 {
		t.Fatalf("unexpected boundaries: %v", got.PhaseBoundaries)
	}

	missing, err := store.GetSession(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for missing session, got %+v, %v", missing, err)
	}
}

func TestSQLiteStoreSaveSessionCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()
	seedAccount(t, store, "acc_1", domain.TierFreemium)

	if err := store.CreateSession(ctx, newSession("s1", "acc_1")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	first, _ := store.GetSession(ctx, "s1")
	second, _ := store.GetSession(ctx, "s1")

	first.History = append(first.History, domain.TurnRecord{TurnIndex: 0, Content: "hello"})
	first.CurrentTurn = 1
	first.Status = domain.SessionStatusActive
	if err := store.SaveSession(ctx, first, 1); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if first.Version != 2 {
		t.Fatalf("expected version 2, got %d", first.Version)
	}

	second.History = append(second.History, domain.TurnRecord{TurnIndex: 0, Content: "other"})
	second.CurrentTurn = 1
	err := store.SaveSession(ctx, second, 1)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if !domain.IsCode(err, domain.CodeVersionConflict) {
		t.Fatalf("expected VERSION_CONFLICT code, got %s", domain.CodeOf(err))
	}
	if second.Version != 1 {
		t.Fatalf("loser version must be unchanged, got %d", second.Version)
	}

	got, _ := store.GetSession(ctx, "s1")
	if got.Version != 2 || len(got.History) != 1 || got.History[0].Content != "hello" {
		t.Fatalf("unexpected stored session: %+v", got)
	}
}

func TestSQLiteStoreInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()
	seedAccount(t, store, "acc_1", domain.TierFreemium)
	if err := store.CreateSession(ctx, newSession("s1", "acc_1")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	boom := errors.New("boom")
	err := store.InTx(ctx, func(tx Store) error {
		session, err := tx.GetSession(ctx, "s1")
		if err != nil {
			return err
		}
		session.CurrentTurn = 1
		if err := tx.SaveSession(ctx, session, 1); err != nil {
			return err
		}
		if err := tx.IncrementUsage(ctx, "acc_1"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	session, _ := store.GetSession(ctx, "s1")
	if session.Version != 1 || session.CurrentTurn != 0 {
		t.Fatalf("session write should be rolled back: %+v", session)
	}
	account, _ := store.GetAccount(ctx, "acc_1")
	if account.MeteredSessionsUsed != 0 {
		t.Fatalf("usage increment should be rolled back, got %d", account.MeteredSessionsUsed)
	}

	err = store.InTx(ctx, func(tx Store) error {
		return tx.IncrementUsage(ctx, "acc_1")
	})
	if err != nil {
		t.Fatalf("InTx failed: %v", err)
	}
	account, _ = store.GetAccount(ctx, "acc_1")
	if account.MeteredSessionsUsed != 1 {
		t.Fatalf("expected committed increment, got %d", account.MeteredSessionsUsed)
	}
}

func TestSQLiteStoreIncrementUsageUnknownAccount(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	err := store.IncrementUsage(ctx, "ghost")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if !domain.IsCode(err, domain.CodeAccountNotFound) {
		t.Fatalf("expected ACCOUNT_NOT_FOUND, got %s", domain.CodeOf(err))
	}
}

func TestSQLiteStoreListIdleSessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()
	seedAccount(t, store, "acc_1", domain.TierPremium)

	old := newSession("old", "acc_1")
	old.UpdatedAt = time.Now().Add(-time.Hour)
	fresh := newSession("fresh", "acc_1")
	done := newSession("done", "acc_1")
	done.UpdatedAt = time.Now().Add(-time.Hour)
	done.Status = domain.SessionStatusComplete
	for _, s := range []*domain.Session{old, fresh, done} {
		if err := store.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
	}

	idle, err := store.ListIdleSessions(ctx, time.Now().Add(-time.Minute), 10)
	if err != nil {
		t.Fatalf("ListIdleSessions failed: %v", err)
	}
	if len(idle) != 1 || idle[0].SessionID != "old" {
		t.Fatalf("expected only the stale active session, got %+v", idle)
	}
}

func TestSQLiteStoreEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()
	seedAccount(t, store, "acc_1", domain.TierFree)
	if err := store.CreateSession(ctx, newSession("s1", "acc_1")); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	now := time.Now().UnixMilli()
	events := []*domain.Event{
		{EventID: "e1", SessionID: "s1", TurnIndex: 0, Ts: now, Type: domain.EventTypeTurnStarted},
		{EventID: "e2", SessionID: "s1", TurnIndex: 0, Ts: now + 1, Type: domain.EventTypeTurnCommitted, Payload: json.RawMessage(`{"turn_index":0}`)},
	}
	for _, e := range events {
		if err := store.CreateEvent(ctx, e); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}

	all, err := store.GetEvents(ctx, EventFilter{SessionID: "s1"})
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(all) != 2 || all[0].EventID != "e1" {
		t.Fatalf("unexpected events: %+v", all)
	}

	committed, err := store.GetEvents(ctx, EventFilter{SessionID: "s1", Types: []string{string(domain.EventTypeTurnCommitted)}})
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(committed) != 1 || string(committed[0].Payload) != `{"turn_index":0}` {
		t.Fatalf("unexpected filtered events: %+v", committed)
	}

	after, err := store.GetEvents(ctx, EventFilter{SessionID: "s1", AfterTs: now})
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(after) != 1 || after[0].EventID != "e2" {
		t.Fatalf("unexpected events after ts: %+v", after)
	}
}

func TestSQLiteStoreAgents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	agent := &domain.Agent{
		AgentID:   "a1",
		Name:      "Narrator",
		Kind:      domain.AgentKindHTTP,
		Endpoint:  "http://agent",
		Persona:   "a dry-witted lighthouse keeper",
		Status:    "healthy",
		CreatedAt: time.Now(),
	}
	if err := store.RegisterAgent(ctx, agent); err != nil {
		t.Fatalf("RegisterAgent failed: %v", err)
	}

	gotAgent, err := store.GetAgent(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if gotAgent == nil || gotAgent.Kind != domain.AgentKindHTTP || gotAgent.Persona != agent.Persona {
		t.Fatalf("unexpected agent: %+v", gotAgent)
	}

	agents, err := store.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents failed: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(agents))
	}

	missing, err := store.GetAgent(ctx, "ghost")
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for missing agent, got %+v, %v", missing, err)
	}
}

func TestWithFileDefaults(t *testing.T) {
	cases := []struct {
		dsn  string
		want string
	}{
		{
			dsn:  "improv.db",
			want: "improv.db?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate&_foreign_keys=on",
		},
		{
			dsn:  "file:improv.db?mode=rwc",
			want: "file:improv.db?mode=rwc&_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate&_foreign_keys=on",
		},
		{
			dsn:  "file:improv.db?_timeout=100&_journal=DELETE&_txlock=deferred&_fk=1",
			want: "file:improv.db?_timeout=100&_journal=DELETE&_txlock=deferred&_fk=1",
		},
	}
	for _, tc := range cases {
		if got := withFileDefaults(tc.dsn); got != tc.want {
			t.Fatalf("withFileDefaults(%q) = %q, want %q", tc.dsn, got, tc.want)
		}
	}
	if !isMemoryDSN(":memory:") || !isMemoryDSN("file::memory:?cache=shared") || isMemoryDSN("file:improv.db") {
		t.Fatalf("unexpected memory DSN detection")
	}
}

// Writers on different sessions must wait for each other, not fail.
func TestSQLiteStoreFileParallelSessions(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "improv.db") + "?mode=rwc"
	store, err := NewSQLiteStore(dsn)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()
	seedAccount(t, store, "acc_1", domain.TierFreemium)

	const sessions, turns = 16, 5
	for i := 0; i < sessions; i++ {
		if err := store.CreateSession(ctx, newSession(fmt.Sprintf("s%d", i), "acc_1")); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, sessions*turns)
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for turn := 0; turn < turns; turn++ {
				err := store.InTx(ctx, func(tx Store) error {
					session, err := tx.GetSession(ctx, id)
					if err != nil {
						return err
					}
					session.History = append(session.History, domain.TurnRecord{TurnIndex: turn, Content: "line"})
					session.CurrentTurn++
					if err := tx.SaveSession(ctx, session, session.Version); err != nil {
						return err
					}
					return tx.IncrementUsage(ctx, "acc_1")
				})
				if err == nil {
					err = store.CreateEvent(ctx, &domain.Event{
						EventID:   fmt.Sprintf("%s-%d", id, turn),
						SessionID: id,
						TurnIndex: turn,
						Ts:        time.Now().UnixMilli(),
						Type:      domain.EventTypeTurnCommitted,
					})
				}
				if err != nil {
					errs <- fmt.Errorf("%s turn %d: %w", id, turn, err)
					return
				}
			}
		}(fmt.Sprintf("s%d", i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("parallel write failed: %v", err)
	}

	for i := 0; i < sessions; i++ {
		id := fmt.Sprintf("s%d", i)
		session, err := store.GetSession(ctx, id)
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if session.CurrentTurn != turns || len(session.History) != turns {
			t.Fatalf("session %s at turn %d with %d records", id, session.CurrentTurn, len(session.History))
		}
		events, err := store.GetEvents(ctx, EventFilter{SessionID: id})
		if err != nil {
			t.Fatalf("GetEvents failed: %v", err)
		}
		if len(events) != turns {
			t.Fatalf("session %s has %d events, want %d", id, len(events), turns)
		}
	}
	account, _ := store.GetAccount(ctx, "acc_1")
	if account.MeteredSessionsUsed != sessions*turns {
		t.Fatalf("expected %d increments, got %d", sessions*turns, account.MeteredSessionsUsed)
	}
}
