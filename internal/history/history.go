// Package history keeps the user-visible chat transcript of each
// conversation key. It is independent of the backend's own session state,
// which compaction replaces; the transcript survives compaction and model
// changes.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/deskpilot/deskpilot/internal/storage"
	"github.com/deskpilot/deskpilot/pkg/types"
)

// DefaultMaxEntries caps a transcript; older entries are dropped first.
const DefaultMaxEntries = 500

// Role is the author of an entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
	RoleSystem    Role = "system"
)

// Entry is one transcript line.
type Entry struct {
	ID         string            `json:"id"`
	Role       Role              `json:"role"`
	Content    string            `json:"content"`
	Attachment *types.Attachment `json:"attachment,omitempty"`
	Time       int64             `json:"time"`
}

type transcript struct {
	Entries []Entry `json:"entries"`
}

// Store reads and writes transcripts under "history/<key>".
type Store struct {
	storage    *storage.Storage
	maxEntries int
	now        func() time.Time
}

// New creates a Store with DefaultMaxEntries.
func New(store *storage.Storage) *Store {
	return &Store{storage: store, maxEntries: DefaultMaxEntries, now: time.Now}
}

// WithMaxEntries returns a copy of s that keeps at most n entries per key.
func (s *Store) WithMaxEntries(n int) *Store {
	cp := *s
	cp.maxEntries = n
	return &cp
}

func path(key int) []string {
	return []string{"history", strconv.Itoa(key)}
}

// Append adds entries to key's transcript, filling in IDs and timestamps.
func (s *Store) Append(ctx context.Context, key int, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	var t transcript
	err := s.storage.Update(ctx, path(key), &t, func() error {
		now := s.now()
		for _, e := range entries {
			if e.ID == "" {
				e.ID = ulid.Make().String()
			}
			if e.Time == 0 {
				e.Time = now.UnixMilli()
			}
			t.Entries = append(t.Entries, e)
		}
		if s.maxEntries > 0 && len(t.Entries) > s.maxEntries {
			t.Entries = t.Entries[len(t.Entries)-s.maxEntries:]
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append history %d: %w", key, err)
	}
	return nil
}

// Exchange records a prompt and its reply. A failed chat is recorded as an
// error entry so the transcript shows it.
func (s *Store) Exchange(ctx context.Context, key int, prompt string, attachment *types.Attachment, reply string, chatErr error) error {
	user := Entry{Role: RoleUser, Content: prompt, Attachment: attachment}
	if chatErr != nil {
		return s.Append(ctx, key, user, Entry{Role: RoleError, Content: chatErr.Error()})
	}
	return s.Append(ctx, key, user, Entry{Role: RoleAssistant, Content: reply})
}

// List returns key's transcript, oldest first. A missing transcript is empty.
func (s *Store) List(ctx context.Context, key int) ([]Entry, error) {
	var t transcript
	if err := s.storage.Get(ctx, path(key), &t); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("read history %d: %w", key, err)
	}
	if t.Entries == nil {
		return []Entry{}, nil
	}
	return t.Entries, nil
}

// Clear deletes key's transcript.
func (s *Store) Clear(ctx context.Context, key int) error {
	return s.storage.Delete(ctx, path(key))
}

// Keys lists the keys that have a transcript, ascending.
func (s *Store) Keys(ctx context.Context) ([]int, error) {
	names, err := s.storage.List(ctx, []string{"history"})
	if err != nil {
		return nil, err
	}
	keys := make([]int, 0, len(names))
	for _, name := range names {
		if k, err := strconv.Atoi(name); err == nil {
			keys = append(keys, k)
		}
	}
	sort.Ints(keys)
	return keys, nil
}
