package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/Relay/internal/domain"
	"github.com/Strob0t/Relay/internal/domain/agentcard"
	"github.com/Strob0t/Relay/internal/domain/message"
	"github.com/Strob0t/Relay/internal/port/storage"
)

const messageColumns = `id, from_agent, to_agent, type, priority, status, subject, body,
	created_at, acknowledged_at, resolved_at, related_task_id, related_message_id`

const cardColumns = `agent_id, name, version, capabilities, transports, authentication,
	metadata, created_at, updated_at`

// Store implements storage.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Messages ---

// CreateMessage assigns the next per-date id and inserts the message. The
// id sequence row is bumped inside the same transaction, so concurrent
// creates serialize on it and ids never collide.
func (s *Store) CreateMessage(ctx context.Context, draft message.Draft) (*message.Message, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create message: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if draft.RelatedMessageID != "" {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1)`, draft.RelatedMessageID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check related message: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("related message %s does not exist: %w", draft.RelatedMessageID, domain.ErrValidation)
		}
	}

	now := time.Now().UTC()
	var seq int
	err = tx.QueryRow(ctx,
		`INSERT INTO message_seq (seq_date, counter) VALUES ($1, 1)
		 ON CONFLICT (seq_date) DO UPDATE SET counter = message_seq.counter + 1
		 RETURNING counter`, now.Format(time.DateOnly)).Scan(&seq)
	if err != nil {
		return nil, fmt.Errorf("next message sequence: %w", err)
	}

	m := &message.Message{
		ID:               message.FormatID(now, seq),
		From:             draft.From,
		To:               draft.To,
		Type:             draft.Type,
		Priority:         draft.Priority,
		Status:           message.StatusPending,
		Subject:          draft.Subject,
		Body:             draft.Body,
		CreatedAt:        now,
		RelatedTaskID:    draft.RelatedTaskID,
		RelatedMessageID: draft.RelatedMessageID,
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO messages (`+messageColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		m.ID, m.From, m.To.AgentID(), m.Type, m.Priority, m.Status, m.Subject, m.Body,
		m.CreatedAt, m.AcknowledgedAt, m.ResolvedAt, m.RelatedTaskID, m.RelatedMessageID)
	if err != nil {
		return nil, fmt.Errorf("insert message %s: %w", m.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create message: %w", err)
	}
	return m, nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*message.Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)

	m, err := scanMessage(row)
	if err != nil {
		return nil, notFoundWrap(err, "get message %s", id)
	}
	return m, nil
}

func (s *Store) QueryMessages(ctx context.Context, filter message.Filter, limit int) ([]message.Message, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}

	var (
		where []string
		args  []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if filter.From != "" {
		add("from_agent", filter.From)
	}
	if filter.To != nil {
		want := *filter.To
		switch {
		case want.IsBroadcast():
			add("to_agent", message.Broadcast().AgentID())
		case filter.IncludeBroadcast:
			args = append(args, want.AgentID(), message.Broadcast().AgentID())
			where = append(where, fmt.Sprintf("to_agent IN ($%d, $%d)", len(args)-1, len(args)))
		default:
			add("to_agent", want.AgentID())
		}
	}
	if filter.Type != "" {
		add("type", filter.Type)
	}
	if filter.Priority != "" {
		add("priority", filter.Priority)
	}
	if filter.Status != "" {
		add("status", filter.Status)
	}
	if filter.TaskID != "" {
		add("related_task_id", filter.TaskID)
	}

	query := `SELECT ` + messageColumns + ` FROM messages`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []message.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// UpdateMessageStatus applies a status transition under a row lock so
// concurrent transitions on the same message serialize. The second return
// reports whether the row changed; a re-assertion of the current status is a
// no-op.
func (s *Store) UpdateMessageStatus(ctx context.Context, id string, to message.Status, at time.Time) (*message.Message, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin status update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1 FOR UPDATE`, id)
	m, err := scanMessage(row)
	if err != nil {
		return nil, false, notFoundWrap(err, "get message %s", id)
	}

	changed, err := message.Transition(m, to, at.UTC())
	if err != nil {
		return nil, false, err
	}
	if changed {
		_, err = tx.Exec(ctx,
			`UPDATE messages SET status = $2, acknowledged_at = $3, resolved_at = $4 WHERE id = $1`,
			m.ID, m.Status, m.AcknowledgedAt, m.ResolvedAt)
		if err != nil {
			return nil, false, fmt.Errorf("update message %s: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit status update: %w", err)
	}
	return m, changed, nil
}

// --- Agent cards ---

// UpsertCard inserts or fully replaces a card. created_at survives
// replacement; updated_at always moves forward, even when the replacement
// lands within the clock's resolution of the previous one.
func (s *Store) UpsertCard(ctx context.Context, req agentcard.UpsertRequest) (*agentcard.Card, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	transportsJSON, err := json.Marshal(req.Transports)
	if err != nil {
		return nil, fmt.Errorf("marshal transports: %w", err)
	}
	authJSON, err := json.Marshal(req.Authentication)
	if err != nil {
		return nil, fmt.Errorf("marshal authentication: %w", err)
	}
	var metaJSON []byte
	if req.Metadata != nil {
		if metaJSON, err = json.Marshal(req.Metadata); err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
	}

	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx,
		`INSERT INTO agent_cards (`+cardColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 ON CONFLICT (agent_id) DO UPDATE SET
			name = EXCLUDED.name,
			version = EXCLUDED.version,
			capabilities = EXCLUDED.capabilities,
			transports = EXCLUDED.transports,
			authentication = EXCLUDED.authentication,
			metadata = EXCLUDED.metadata,
			updated_at = GREATEST(EXCLUDED.updated_at, agent_cards.updated_at + interval '1 millisecond')
		 RETURNING `+cardColumns,
		req.AgentID, req.Name, req.Version, pgTextArray(req.Capabilities),
		transportsJSON, authJSON, metaJSON, now)

	card, err := scanCard(row)
	if err != nil {
		return nil, fmt.Errorf("upsert card %s: %w", req.AgentID, err)
	}
	return card, nil
}

func (s *Store) GetCard(ctx context.Context, agentID string) (*agentcard.Card, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+cardColumns+` FROM agent_cards WHERE agent_id = $1`, agentID)

	card, err := scanCard(row)
	if err != nil {
		return nil, notFoundWrap(err, "get card %s", agentID)
	}
	return card, nil
}

func (s *Store) ListCards(ctx context.Context, filter agentcard.Filter) ([]agentcard.Card, error) {
	var (
		where []string
		args  []any
	)
	if filter.Capability != "" {
		args = append(args, filter.Capability)
		where = append(where, fmt.Sprintf("$%d = ANY(capabilities)", len(args)))
	}
	if filter.Specialization != "" {
		args = append(args, filter.Specialization)
		where = append(where, fmt.Sprintf("metadata->>'%s' = $%d", agentcard.MetaSpecialization, len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("metadata->>'%s' = $%d", agentcard.MetaStatus, len(args)))
	}

	query := `SELECT ` + cardColumns + ` FROM agent_cards`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY agent_id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var cards []agentcard.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, *card)
	}
	return cards, rows.Err()
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// --- Scan helpers ---

func scanMessage(row scannable) (*message.Message, error) {
	var (
		m  message.Message
		to string
	)
	err := row.Scan(&m.ID, &m.From, &to, &m.Type, &m.Priority, &m.Status, &m.Subject, &m.Body,
		&m.CreatedAt, &m.AcknowledgedAt, &m.ResolvedAt, &m.RelatedTaskID, &m.RelatedMessageID)
	if err != nil {
		return nil, err
	}
	m.To = message.To(to)
	return &m, nil
}

func scanCard(row scannable) (*agentcard.Card, error) {
	var (
		card           agentcard.Card
		transportsJSON []byte
		authJSON       []byte
		metaJSON       []byte
	)
	err := row.Scan(&card.AgentID, &card.Name, &card.Version, &card.Capabilities,
		&transportsJSON, &authJSON, &metaJSON, &card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(transportsJSON, &card.Transports); err != nil {
		return nil, fmt.Errorf("unmarshal transports: %w", err)
	}
	if err := json.Unmarshal(authJSON, &card.Authentication); err != nil {
		return nil, fmt.Errorf("unmarshal authentication: %w", err)
	}
	if metaJSON != nil {
		if err := json.Unmarshal(metaJSON, &card.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &card, nil
}
