// Package store persists agent instances and their messages in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"tidgi-agent/internal/domain"
)

var _ domain.MessagePersister = (*SQLiteStore)(nil)

// SQLiteStore implements domain.MessagePersister. Message updates are
// coalesced per message id and written after the debounce window; Flush
// forces pending writes.
type SQLiteStore struct {
	db       *sql.DB
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]pendingMessage
	timer   *time.Timer
	seq     int64
	closed  bool

	flushMu sync.Mutex
}

type pendingMessage struct {
	msg domain.AgentInstanceMessage
	seq int64
}

// New opens (or creates) the database at path and runs migrations. A zero
// debounce writes on the next scheduler tick.
func New(path string, debounce time.Duration, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", domain.ErrMessageStore, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma: %v", domain.ErrMessageStore, err)
		}
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrMessageStore, err)
	}

	s := &SQLiteStore{
		db:       db,
		logger:   logger,
		debounce: debounce,
		pending:  make(map[string]pendingMessage),
	}
	if err := db.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM messages").Scan(&s.seq); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: read sequence: %v", domain.ErrMessageStore, err)
	}
	return s, nil
}

// DebounceUpdateMessage implements domain.MessagePersister. It never blocks
// on I/O; the latest version of each message wins.
func (s *SQLiteStore) DebounceUpdateMessage(msg domain.AgentInstanceMessage, agentID string) {
	if msg.AgentID == "" {
		msg.AgentID = agentID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	p, ok := s.pending[msg.ID]
	if !ok {
		s.seq++
		p.seq = s.seq
	}
	p.msg = msg
	s.pending[msg.ID] = p

	if s.timer == nil {
		s.timer = time.AfterFunc(s.debounce, func() {
			if err := s.Flush(context.Background()); err != nil {
				s.logger.Warn("message store flush failed", "error", err)
			}
		})
	}
}

// Flush writes all pending messages in one transaction. On failure the
// messages stay pending for the next flush.
func (s *SQLiteStore) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	batch := s.pending
	s.pending = make(map[string]pendingMessage)
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := s.write(ctx, batch); err != nil {
		s.requeue(batch)
		return err
	}
	s.logger.Debug("messages flushed", "count", len(batch))
	return nil
}

// requeue puts a batch that failed to write back into pending. Versions
// queued while the write was in flight win, but keep the original sequence.
func (s *SQLiteStore) requeue(batch map[string]pendingMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range batch {
		if newer, ok := s.pending[id]; ok {
			p.msg = newer.msg
		}
		s.pending[id] = p
	}
}

func (s *SQLiteStore) write(ctx context.Context, batch map[string]pendingMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrMessageStore, err)
	}
	defer tx.Rollback()

	const upsert = `
		INSERT INTO messages (id, agent_id, seq, role, content, metadata, modified, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content  = excluded.content,
			metadata = excluded.metadata,
			modified = excluded.modified,
			duration = excluded.duration
	`
	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", domain.ErrMessageStore, err)
	}
	defer stmt.Close()

	for _, p := range batch {
		meta, err := json.Marshal(p.msg.Metadata)
		if err != nil {
			return fmt.Errorf("%w: marshal metadata: %v", domain.ErrMessageStore, err)
		}
		var duration sql.NullInt64
		if p.msg.Duration != nil {
			duration = sql.NullInt64{Int64: int64(*p.msg.Duration), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			p.msg.ID,
			p.msg.AgentID,
			p.seq,
			p.msg.Role,
			p.msg.Content,
			string(meta),
			p.msg.Modified.UTC().Format(time.RFC3339Nano),
			duration,
		); err != nil {
			return fmt.Errorf("%w: upsert %s: %v", domain.ErrMessageStore, p.msg.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrMessageStore, err)
	}
	return nil
}

// SaveAgent upserts the instance row. Messages go through
// DebounceUpdateMessage.
func (s *SQLiteStore) SaveAgent(ctx context.Context, a *domain.AgentInstance) error {
	cfg, err := json.Marshal(a.AIAPIConfig)
	if err != nil {
		return fmt.Errorf("%w: marshal ai config: %v", domain.ErrMessageStore, err)
	}
	modified := a.Status.Modified
	if modified.IsZero() {
		modified = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (id, definition_id, name, state, ai_config, created_at, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name      = excluded.name,
			state     = excluded.state,
			ai_config = excluded.ai_config,
			modified  = excluded.modified
	`,
		a.ID, a.DefinitionID, a.Name, string(a.Status.State), string(cfg),
		a.CreatedAt.UTC().Format(time.RFC3339Nano),
		modified.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: save agent: %v", domain.ErrMessageStore, err)
	}
	return nil
}

// LoadAgent returns the instance with its messages in append order.
// Pending messages are flushed first.
func (s *SQLiteStore) LoadAgent(ctx context.Context, id string) (*domain.AgentInstance, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}

	var (
		a                   domain.AgentInstance
		state, cfg          string
		createdAt, modified string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, definition_id, name, state, ai_config, created_at, modified FROM agents WHERE id = ?", id,
	).Scan(&a.ID, &a.DefinitionID, &a.Name, &state, &cfg, &createdAt, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewDomainError("LoadAgent", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load agent: %v", domain.ErrMessageStore, err)
	}
	if err := json.Unmarshal([]byte(cfg), &a.AIAPIConfig); err != nil {
		return nil, fmt.Errorf("%w: decode ai config: %v", domain.ErrMessageStore, err)
	}
	a.Status.State = domain.AgentState(state)
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	a.Status.Modified, _ = time.Parse(time.RFC3339Nano, modified)

	a.Messages, err = s.LoadMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// LoadMessages returns the stored messages of an agent in append order.
func (s *SQLiteStore) LoadMessages(ctx context.Context, agentID string) ([]*domain.AgentInstanceMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, agent_id, role, content, metadata, modified, duration FROM messages WHERE agent_id = ? ORDER BY seq",
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query messages: %v", domain.ErrMessageStore, err)
	}
	defer rows.Close()

	msgs := make([]*domain.AgentInstanceMessage, 0)
	for rows.Next() {
		var (
			m        domain.AgentInstanceMessage
			meta     string
			modified string
			duration sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.AgentID, &m.Role, &m.Content, &meta, &modified, &duration); err != nil {
			return nil, fmt.Errorf("%w: scan message: %v", domain.ErrMessageStore, err)
		}
		if meta != "" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
				return nil, fmt.Errorf("%w: decode metadata: %v", domain.ErrMessageStore, err)
			}
			restoreErrorDetail(m.Metadata)
		}
		m.Modified, _ = time.Parse(time.RFC3339Nano, modified)
		if duration.Valid {
			d := int(duration.Int64)
			m.Duration = &d
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// restoreErrorDetail turns a decoded errorDetail object back into its type.
func restoreErrorDetail(meta map[string]any) {
	raw, ok := meta[domain.MetaErrorDetail]
	if !ok {
		return
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return
	}
	var d domain.ErrorDetail
	if json.Unmarshal(data, &d) == nil {
		meta[domain.MetaErrorDetail] = d
	}
}

// AgentSummary is a row of ListAgents.
type AgentSummary struct {
	ID           string
	DefinitionID string
	Name         string
	State        domain.AgentState
	Modified     time.Time
}

// ListAgents returns stored instances, most recently modified first.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]AgentSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, definition_id, name, state, modified FROM agents ORDER BY modified DESC")
	if err != nil {
		return nil, fmt.Errorf("%w: list agents: %v", domain.ErrMessageStore, err)
	}
	defer rows.Close()

	var out []AgentSummary
	for rows.Next() {
		var (
			a             AgentSummary
			state, modStr string
		)
		if err := rows.Scan(&a.ID, &a.DefinitionID, &a.Name, &state, &modStr); err != nil {
			return nil, fmt.Errorf("%w: scan agent: %v", domain.ErrMessageStore, err)
		}
		a.State = domain.AgentState(state)
		a.Modified, _ = time.Parse(time.RFC3339Nano, modStr)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close flushes pending writes and closes the database.
func (s *SQLiteStore) Close() error {
	flushErr := s.Flush(context.Background())

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	return errors.Join(flushErr, s.db.Close())
}
