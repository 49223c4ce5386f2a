package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/improv/internal/domain"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	q    queryer
	inTx bool
}

// NewSQLiteStore creates a new SQLite store. File databases get WAL, a busy
// timeout and immediate transactions unless the DSN sets them.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	memory := isMemoryDSN(dsn)
	if !memory {
		dsn = withFileDefaults(dsn)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	// Shared-cache connections report "table is locked" instead of waiting on
	// the busy timeout, so they are pinned to one connection as well.
	if memory || strings.Contains(dsn, "cache=shared") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db, q: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// fileDefaults are appended to file DSNs that do not set them. Each entry
// lists the driver's aliases for the same option.
var fileDefaults = []struct {
	keys  []string
	value string
}{
	{keys: []string{"_busy_timeout", "_timeout"}, value: "5000"},
	{keys: []string{"_journal_mode", "_journal"}, value: "WAL"},
	{keys: []string{"_txlock"}, value: "immediate"},
	{keys: []string{"_foreign_keys", "_fk"}, value: "on"},
}

func withFileDefaults(dsn string) string {
	query := ""
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		query = dsn[i+1:]
	}
	params, _ := url.ParseQuery(query)

	var extra []string
	for _, d := range fileDefaults {
		set := false
		for _, k := range d.keys {
			if params.Has(k) {
				set = true
				break
			}
		}
		if !set {
			extra = append(extra, d.keys[0]+"="+d.value)
		}
	}
	if len(extra) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(extra, "&")
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			account_id TEXT PRIMARY KEY,
			tier TEXT NOT NULL,
			metered_sessions_used INTEGER NOT NULL DEFAULT 0,
			metered_sessions_limit INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			owner_account_id TEXT NOT NULL,
			status TEXT NOT NULL,
			mode TEXT NOT NULL,
			current_turn INTEGER NOT NULL DEFAULT 0,
			max_turns INTEGER NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			document TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_ms INTEGER NOT NULL,
			FOREIGN KEY (owner_account_id) REFERENCES accounts(account_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status_updated ON sessions(status, updated_ms)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			turn_index INTEGER NOT NULL DEFAULT 0,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, ts)`,
		`CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'http',
			endpoint TEXT,
			model TEXT,
			persona TEXT,
			status TEXT NOT NULL DEFAULT 'healthy',
			last_heartbeat DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Add new columns for existing DBs (SQLite has limited ALTER TABLE support).
	if err := s.ensureColumn("sessions", "usage_recorded", "ALTER TABLE sessions ADD COLUMN usage_recorded INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	if err := s.ensureColumn("sessions", "metered", "ALTER TABLE sessions ADD COLUMN metered INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.inTx {
		return nil
	}
	return s.db.Close()
}

// InTx runs fn inside a single database transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	txStore := &SQLiteStore{db: s.db, q: tx, inTx: true}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateSession inserts a new session at version 1.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	session.Version = 1
	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO sessions (session_id, owner_account_id, status, mode, metered, current_turn, max_turns, version, usage_recorded, document, created_at, updated_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.OwnerAccountID, session.Status, session.Mode, session.Metered,
		session.CurrentTurn, session.MaxTurns, session.Version, session.UsageRecorded,
		string(doc), session.CreatedAt, session.UpdatedAt.UnixMilli())
	return err
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var doc string
	var version int64
	err := s.q.QueryRowContext(ctx,
		`SELECT document, version FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&doc, &version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeSession(doc, version)
}

// SaveSession writes the full session if the stored version still equals
// expectedVersion, and bumps the version on success.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *domain.Session, expectedVersion int64) error {
	session.Version = expectedVersion + 1
	doc, err := json.Marshal(session)
	if err != nil {
		session.Version = expectedVersion
		return fmt.Errorf("failed to encode session: %w", err)
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE sessions
		 SET status = ?, metered = ?, current_turn = ?, max_turns = ?, version = ?, usage_recorded = ?, document = ?, updated_ms = ?
		 WHERE session_id = ? AND version = ?`,
		session.Status, session.Metered, session.CurrentTurn, session.MaxTurns, session.Version,
		session.UsageRecorded, string(doc), session.UpdatedAt.UnixMilli(),
		session.SessionID, expectedVersion)
	if err != nil {
		session.Version = expectedVersion
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		session.Version = expectedVersion
		return err
	}
	if affected == 0 {
		session.Version = expectedVersion
		return fmt.Errorf("%w: session %s at version %d", ErrVersionConflict, session.SessionID, expectedVersion)
	}
	return nil
}

// ListIdleSessions returns non-terminal sessions whose last update is older
// than idleSince, oldest first.
func (s *SQLiteStore) ListIdleSessions(ctx context.Context, idleSince time.Time, limit int) ([]domain.Session, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT document, version
		FROM sessions
		WHERE status IN (?, ?)
		  AND updated_ms < ?
		ORDER BY updated_ms ASC
		LIMIT ?
	`, domain.SessionStatusInitialized, domain.SessionStatusActive, idleSince.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		var doc string
		var version int64
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, err
		}
		session, err := decodeSession(doc, version)
		if err != nil {
			return nil, err
		}
		out = append(out, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeSession(doc string, version int64) (*domain.Session, error) {
	var session domain.Session
	if err := json.Unmarshal([]byte(doc), &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	session.Version = version
	return &session, nil
}

// CreateAccount creates a new account.
func (s *SQLiteStore) CreateAccount(ctx context.Context, account *domain.Account) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO accounts (account_id, tier, metered_sessions_used, metered_sessions_limit, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		account.AccountID, account.Tier, account.MeteredSessionsUsed, account.MeteredSessionsLimit, account.CreatedAt, account.UpdatedAt)
	return err
}

// GetAccount retrieves an account by ID.
func (s *SQLiteStore) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	var account domain.Account
	err := s.q.QueryRowContext(ctx,
		`SELECT account_id, tier, metered_sessions_used, metered_sessions_limit, created_at, updated_at FROM accounts WHERE account_id = ?`,
		accountID).Scan(&account.AccountID, &account.Tier, &account.MeteredSessionsUsed, &account.MeteredSessionsLimit, &account.CreatedAt, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// IncrementUsage adds one metered session to the account counter in a single
// statement.
func (s *SQLiteStore) IncrementUsage(ctx context.Context, accountID string) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE accounts SET metered_sessions_used = metered_sessions_used + 1, updated_at = ? WHERE account_id = ?`,
		time.Now(), accountID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	return nil
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO events (event_id, session_id, turn_index, ts, type, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		event.EventID, event.SessionID, event.TurnIndex, event.Ts, event.Type, nullStringBytes(event.Payload))
	return err
}

// GetEvents retrieves events for a session.
func (s *SQLiteStore) GetEvents(ctx context.Context, filter EventFilter) ([]domain.Event, error) {
	query := `SELECT event_id, session_id, turn_index, ts, type, payload FROM events WHERE session_id = ?`
	args := []any{filter.SessionID}

	if filter.AfterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, filter.AfterTs)
	}

	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ","))
	}

	query += ` ORDER BY ts ASC, rowid ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var event domain.Event
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.SessionID, &event.TurnIndex, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// RegisterAgent registers or updates an agent.
func (s *SQLiteStore) RegisterAgent(ctx context.Context, agent *domain.Agent) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT OR REPLACE INTO agents (agent_id, name, kind, endpoint, model, persona, status, last_heartbeat, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agent.AgentID, agent.Name, agent.Kind, nullString(agent.Endpoint), nullString(agent.Model),
		nullString(agent.Persona), agent.Status, agent.LastHeartbeat, agent.CreatedAt)
	return err
}

const agentColumns = `agent_id, name, kind, endpoint, model, persona, status, last_heartbeat, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*domain.Agent, error) {
	var agent domain.Agent
	var endpoint, model, persona sql.NullString
	var lastHeartbeat sql.NullTime
	if err := row.Scan(&agent.AgentID, &agent.Name, &agent.Kind, &endpoint, &model, &persona, &agent.Status, &lastHeartbeat, &agent.CreatedAt); err != nil {
		return nil, err
	}
	agent.Endpoint = endpoint.String
	agent.Model = model.String
	agent.Persona = persona.String
	if lastHeartbeat.Valid {
		agent.LastHeartbeat = &lastHeartbeat.Time
	}
	return &agent, nil
}

// GetAgent retrieves an agent by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	agent, err := scanAgent(s.q.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE agent_id = ?`, agentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// ListAgents lists all agents.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM agents ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *agent)
	}
	return agents, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
