package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the journal in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_sessions (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			agent_name TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			end_reason TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_sessions_user_ended ON conversation_sessions (user_id, ended_at);`,
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			session_id TEXT NOT NULL REFERENCES conversation_sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS voice_clones (
			id TEXT PRIMARY KEY,
			voice_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// SaveSession writes the session and its turns in one transaction.
func (s *PostgresStore) SaveSession(ctx context.Context, record SessionRecord) (err error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.EndedAt.IsZero() {
		record.EndedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save session: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx,
		`INSERT INTO conversation_sessions (id, conversation_id, user_id, agent_id, agent_name, started_at, ended_at, end_reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID,
		record.ConversationID,
		record.UserID,
		record.AgentID,
		record.AgentName,
		record.StartedAt,
		record.EndedAt,
		record.EndReason,
	); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if len(record.Turns) > 0 {
		batch := &pgx.Batch{}
		for i, t := range record.Turns {
			batch.Queue(
				`INSERT INTO conversation_turns (session_id, seq, source, content, pii_redacted, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				record.ID, i, t.Source, t.Text, t.PIIRedacted, t.At,
			)
		}
		if err = tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save session turns: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentSessions(ctx context.Context, userID string, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, user_id, agent_id, agent_name, started_at, ended_at, end_reason
		 FROM conversation_sessions WHERE user_id=$1 ORDER BY ended_at DESC LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SessionRecord, error) {
		var r SessionRecord
		err := row.Scan(&r.ID, &r.ConversationID, &r.UserID, &r.AgentID, &r.AgentName, &r.StartedAt, &r.EndedAt, &r.EndReason)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan session rows: %w", err)
	}

	for i := range items {
		if items[i].Turns, err = s.turns(ctx, items[i].ID); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (s *PostgresStore) turns(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source, content, pii_redacted, created_at
		 FROM conversation_turns WHERE session_id=$1 ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query session turns: %w", err)
	}
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Turn, error) {
		var t Turn
		err := row.Scan(&t.Source, &t.Text, &t.PIIRedacted, &t.At)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan turn rows: %w", err)
	}
	return turns, nil
}

func (s *PostgresStore) SaveVoiceClone(ctx context.Context, record VoiceCloneRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO voice_clones (id, voice_id, name, description, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		record.ID,
		record.VoiceID,
		record.Name,
		record.Description,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save voice clone: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentVoiceClones(ctx context.Context, limit int) ([]VoiceCloneRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, voice_id, name, description, created_at
		 FROM voice_clones ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query voice clones: %w", err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByPos[VoiceCloneRecord])
	if err != nil {
		return nil, fmt.Errorf("scan voice clone rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
