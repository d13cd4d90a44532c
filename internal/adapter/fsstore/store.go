// Package fsstore implements the storage port on the local filesystem.
//
// Layout under the store root:
//
//	messages/<date>/<id>.json   message bodies, one file per message
//	cards/<agent_id>.json       agent cards, one file per agent
//	index/messages.jsonl        secondary index over message routing fields
//
// Bodies are the source of truth. The index is rebuilt from bodies on Open
// whenever it is missing or disagrees with them, which is what makes the
// body-then-index write sequence safe without a transaction.
package fsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Strob0t/Relay/internal/domain"
	"github.com/Strob0t/Relay/internal/domain/agentcard"
	"github.com/Strob0t/Relay/internal/domain/message"
	"github.com/Strob0t/Relay/internal/port/storage"
)

// Store implements storage.Store on the local filesystem.
type Store struct {
	root string

	// mu serializes message writes: sequence allocation, body writes, and
	// index persistence happen under one lock.
	mu    sync.Mutex
	index *index
	seq   *sequencer

	// cardMu guards the per-agent lock table. Upserts to distinct agents
	// proceed in parallel; upserts to one agent are serialized.
	cardMu    sync.Mutex
	cardLocks map[string]*sync.Mutex
}

var _ storage.Store = (*Store)(nil)

// Open initializes the store under root, creating the directory layout and
// recovering the index from message bodies when needed.
func Open(root string) (*Store, error) {
	for _, dir := range []string{messagesDir(root), cardsDir(root), filepath.Dir(indexPath(root))} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	ix := newIndex(indexPath(root))
	if err := ix.load(); err != nil {
		return nil, err
	}

	bodies, err := countBodies(messagesDir(root))
	if err != nil {
		return nil, err
	}
	if bodies != len(ix.entries) {
		if err := ix.rebuild(messagesDir(root)); err != nil {
			return nil, fmt.Errorf("rebuild index: %w", err)
		}
	}

	s := &Store{
		root:      root,
		index:     ix,
		seq:       newSequencer(),
		cardLocks: make(map[string]*sync.Mutex),
	}
	// Entries with ids the store never assigns (hand-placed files picked up
	// by a rebuild) are skipped: they cannot collide with allocated ids, and
	// failing Open over them would brick the store on restart.
	for _, e := range ix.entries {
		date, seq, err := splitID(e.ID)
		if err != nil {
			continue
		}
		s.seq.seed(date, seq)
	}
	return s, nil
}

// CreateMessage validates the draft, allocates the next per-date id, and
// persists body plus index entry as one unit under the store lock.
func (s *Store) CreateMessage(_ context.Context, draft message.Draft) (*message.Message, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	date := now.Format(time.DateOnly)

	s.mu.Lock()
	defer s.mu.Unlock()

	if draft.RelatedMessageID != "" {
		if _, ok := s.index.get(draft.RelatedMessageID); !ok {
			return nil, fmt.Errorf("related_message_id %q references no existing message: %w",
				draft.RelatedMessageID, domain.ErrValidation)
		}
	}

	m := &message.Message{
		ID:               message.FormatID(now, s.seq.next(date)),
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

	if err := s.writeBody(m); err != nil {
		return nil, err
	}
	s.index.put(entryFor(m))
	if err := s.index.persist(); err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage loads a message body by id.
func (s *Store) GetMessage(_ context.Context, id string) (*message.Message, error) {
	s.mu.Lock()
	e, ok := s.index.get(id)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("get message %s: %w", id, domain.ErrNotFound)
	}
	return s.readBody(e.Locator)
}

// QueryMessages filters against the index and loads only matching bodies.
func (s *Store) QueryMessages(_ context.Context, filter message.Filter, limit int) ([]message.Message, error) {
	if limit <= 0 {
		limit = storage.DefaultQueryLimit
	}

	s.mu.Lock()
	entries := s.index.query(filter, limit)
	s.mu.Unlock()

	msgs := make([]message.Message, 0, len(entries))
	for _, e := range entries {
		m, err := s.readBody(e.Locator)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, nil
}

// UpdateMessageStatus applies the state machine to the stored message and
// persists the result. Illegal transitions leave the message untouched. The
// second return reports whether anything changed: re-asserting the current
// status is a no-op and callers skip announcements for it.
func (s *Store) UpdateMessageStatus(_ context.Context, id string, to message.Status, at time.Time) (*message.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.index.get(id)
	if !ok {
		return nil, false, fmt.Errorf("update status %s: %w", id, domain.ErrNotFound)
	}
	m, err := s.readBody(e.Locator)
	if err != nil {
		return nil, false, err
	}

	changed, err := message.Transition(m, to, at.UTC())
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return m, false, nil
	}

	if err := s.writeBody(m); err != nil {
		return nil, false, err
	}
	s.index.put(entryFor(m))
	if err := s.index.persist(); err != nil {
		return nil, false, err
	}
	return m, true, nil
}

// UpsertCard creates or replaces a card, preserving created_at on replace.
func (s *Store) UpsertCard(_ context.Context, req agentcard.UpsertRequest) (*agentcard.Card, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := safeAgentID(req.AgentID); err != nil {
		return nil, err
	}

	lock := s.cardLock(req.AgentID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	card := &agentcard.Card{
		AgentID:        req.AgentID,
		Name:           req.Name,
		Version:        req.Version,
		Capabilities:   req.Capabilities,
		Transports:     req.Transports,
		Authentication: req.Authentication,
		Metadata:       req.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	existing, err := s.readCard(req.AgentID)
	switch {
	case err == nil:
		card.CreatedAt = existing.CreatedAt
		// updated_at must observably change on every upsert, even when the
		// clock has not ticked since the previous one.
		if !now.After(existing.UpdatedAt) {
			card.UpdatedAt = existing.UpdatedAt.Add(time.Millisecond)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read card %s: %w", req.AgentID, err)
	}

	if err := s.writeCard(card); err != nil {
		return nil, err
	}
	return card, nil
}

// GetCard loads a card by agent id.
func (s *Store) GetCard(_ context.Context, agentID string) (*agentcard.Card, error) {
	if err := safeAgentID(agentID); err != nil {
		return nil, err
	}
	card, err := s.readCard(agentID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("get card %s: %w", agentID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("read card %s: %w", agentID, err)
	}
	return card, nil
}

// ListCards returns all cards matching filter, sorted by agent_id. The sort
// is explicit: filename order diverges from agent_id order when one id is a
// prefix of another (the ".json" suffix sorts after "-"), and routing
// tie-breaks depend on the first card being the smallest id.
func (s *Store) ListCards(_ context.Context, filter agentcard.Filter) ([]agentcard.Card, error) {
	files, err := os.ReadDir(cardsDir(s.root))
	if err != nil {
		return nil, fmt.Errorf("scan cards dir: %w", err)
	}

	var cards []agentcard.Card
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		card, err := s.readCard(strings.TrimSuffix(f.Name(), ".json"))
		if err != nil {
			return nil, fmt.Errorf("read card %s: %w", f.Name(), err)
		}
		if filter.Matches(card) {
			cards = append(cards, *card)
		}
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].AgentID < cards[j].AgentID })
	return cards, nil
}

// Close is a no-op; the store holds no open handles between operations.
func (s *Store) Close() error { return nil }

// --- filesystem plumbing ---

func messagesDir(root string) string { return filepath.Join(root, "messages") }
func cardsDir(root string) string    { return filepath.Join(root, "cards") }
func indexPath(root string) string   { return filepath.Join(root, "index", "messages.jsonl") }

// bodyLocator returns the root-relative path of a message body. The date
// directory is carved out of the id itself.
func bodyLocator(id string) string {
	date, _, err := splitID(id)
	if err != nil {
		date = "unknown"
	}
	return filepath.Join("messages", date, id+".json")
}

// splitID extracts the date and sequence number from a message id.
func splitID(id string) (date string, seq int, err error) {
	if !message.IDPattern.MatchString(id) {
		return "", 0, fmt.Errorf("malformed message id %q", id)
	}
	date = id[4:14]
	if _, err := fmt.Sscanf(id[15:], "%d", &seq); err != nil {
		return "", 0, fmt.Errorf("malformed sequence in %q: %w", id, err)
	}
	return date, seq, nil
}

func (s *Store) writeBody(m *message.Message) error {
	path := filepath.Join(s.root, bodyLocator(m.ID))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create date dir: %w", err)
	}
	return writeJSONFile(path, m)
}

func (s *Store) readBody(locator string) (*message.Message, error) {
	data, err := os.ReadFile(filepath.Join(s.root, locator)) //nolint:gosec // G304: locator is store-internal
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", locator, err)
	}
	var m message.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse body %s: %w", locator, err)
	}
	return &m, nil
}

func (s *Store) cardPath(agentID string) string {
	return filepath.Join(cardsDir(s.root), agentID+".json")
}

func (s *Store) readCard(agentID string) (*agentcard.Card, error) {
	data, err := os.ReadFile(s.cardPath(agentID)) //nolint:gosec // G304: agent id is path-checked
	if err != nil {
		return nil, err
	}
	var card agentcard.Card
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("parse card %s: %w", agentID, err)
	}
	return &card, nil
}

func (s *Store) writeCard(card *agentcard.Card) error {
	return writeJSONFile(s.cardPath(card.AgentID), card)
}

func (s *Store) cardLock(agentID string) *sync.Mutex {
	s.cardMu.Lock()
	defer s.cardMu.Unlock()
	lock, ok := s.cardLocks[agentID]
	if !ok {
		lock = &sync.Mutex{}
		s.cardLocks[agentID] = lock
	}
	return lock
}

// writeJSONFile writes v to path via a temp file and rename.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// safeAgentID rejects agent ids that could escape the cards directory.
func safeAgentID(agentID string) error {
	if agentID == "" {
		return fmt.Errorf("agent_id is required: %w", domain.ErrValidation)
	}
	if strings.ContainsAny(agentID, `/\`) || strings.Contains(agentID, "..") || agentID[0] == '.' {
		return fmt.Errorf("agent_id %q contains path characters: %w", agentID, domain.ErrValidation)
	}
	return nil
}

// countBodies counts message body files under dir.
func countBodies(dir string) (int, error) {
	dates, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan messages dir: %w", err)
	}
	total := 0
	for _, dateDir := range dates {
		if !dateDir.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(dir, dateDir.Name()))
		if err != nil {
			return 0, fmt.Errorf("scan %s: %w", dateDir.Name(), err)
		}
		for _, f := range files {
			if filepath.Ext(f.Name()) == ".json" {
				total++
			}
		}
	}
	return total, nil
}
