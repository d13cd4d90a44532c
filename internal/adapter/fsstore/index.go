package fsstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Strob0t/Relay/internal/domain/message"
)

// index is the in-memory secondary index over message routing fields,
// persisted as JSONL. Callers hold the store mutex; the index itself is
// not safe for concurrent use.
type index struct {
	path    string
	entries []message.IndexEntry
	byID    map[string]int // id -> position in entries
}

func newIndex(path string) *index {
	return &index{path: path, byID: make(map[string]int)}
}

// load reads the persisted index. A missing file is not an error; the
// caller decides whether a rebuild is needed.
func (ix *index) load() error {
	f, err := os.Open(ix.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e message.IndexEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("parse index line: %w", err)
		}
		ix.put(e)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	return nil
}

// persist writes the full index to disk via a temp file and rename, so a
// crash never leaves a truncated index behind.
func (ix *index) persist() error {
	tmp := ix.path + ".tmp"
	f, err := os.Create(tmp) //nolint:gosec // G304: path is store-internal
	if err != nil {
		return fmt.Errorf("create index temp: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, e := range ix.entries {
		if err := enc.Encode(e); err != nil {
			_ = f.Close()
			return fmt.Errorf("encode index entry %s: %w", e.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush index: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close index temp: %w", err)
	}
	if err := os.Rename(tmp, ix.path); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

// put inserts or replaces the entry for its id.
func (ix *index) put(e message.IndexEntry) {
	if pos, ok := ix.byID[e.ID]; ok {
		ix.entries[pos] = e
		return
	}
	ix.byID[e.ID] = len(ix.entries)
	ix.entries = append(ix.entries, e)
}

// get returns the entry for id, if present.
func (ix *index) get(id string) (message.IndexEntry, bool) {
	pos, ok := ix.byID[id]
	if !ok {
		return message.IndexEntry{}, false
	}
	return ix.entries[pos], true
}

// query returns up to limit entries matching filter, ordered by created_at
// descending. Message ids break created_at ties so ordering is stable.
func (ix *index) query(filter message.Filter, limit int) []message.IndexEntry {
	var matches []message.IndexEntry
	for _, e := range ix.entries {
		if filter.Matches(e) {
			matches = append(matches, e)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID > matches[j].ID
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// rebuild repopulates the index by scanning message bodies under dir. This
// is the required recovery step when the persisted index is missing or
// disagrees with the bodies on disk.
func (ix *index) rebuild(dir string) error {
	ix.entries = nil
	ix.byID = make(map[string]int)

	dates, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scan messages dir: %w", err)
	}
	for _, dateDir := range dates {
		if !dateDir.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(dir, dateDir.Name()))
		if err != nil {
			return fmt.Errorf("scan %s: %w", dateDir.Name(), err)
		}
		for _, file := range files {
			if filepath.Ext(file.Name()) != ".json" {
				continue
			}
			path := filepath.Join(dir, dateDir.Name(), file.Name())
			data, err := os.ReadFile(path) //nolint:gosec // G304: path is store-internal
			if err != nil {
				return fmt.Errorf("read body %s: %w", file.Name(), err)
			}
			var m message.Message
			if err := json.Unmarshal(data, &m); err != nil {
				return fmt.Errorf("parse body %s: %w", file.Name(), err)
			}
			ix.put(entryFor(&m))
		}
	}
	return ix.persist()
}

// entryFor projects a message into its index entry.
func entryFor(m *message.Message) message.IndexEntry {
	return message.IndexEntry{
		ID:        m.ID,
		From:      m.From,
		To:        m.To,
		Type:      m.Type,
		Priority:  m.Priority,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
		TaskID:    m.RelatedTaskID,
		Locator:   bodyLocator(m.ID),
	}
}
