package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/deskpilot/deskpilot/internal/storage"
	"github.com/deskpilot/deskpilot/pkg/types"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s := New(storage.New(t.TempDir()))
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return s
}

func TestListEmpty(t *testing.T) {
	s := newStore(t)

	entries, err := s.List(context.Background(), 1)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", entries)
	}
}

func TestExchange(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	shot := &types.Attachment{Type: types.AttachmentImage, Path: "/tmp/a.png"}

	if err := s.Exchange(ctx, 1, "what's this?", shot, "A terminal.", nil); err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if err := s.Exchange(ctx, 1, "again", nil, "", errors.New("backend down")); err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}

	entries, err := s.List(ctx, 1)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}

	wantRoles := []Role{RoleUser, RoleAssistant, RoleUser, RoleError}
	for i, e := range entries {
		if e.Role != wantRoles[i] {
			t.Errorf("entry %d: role %s, want %s", i, e.Role, wantRoles[i])
		}
		if e.ID == "" {
			t.Errorf("entry %d has no ID", i)
		}
		if e.Time != 1700000000000 {
			t.Errorf("entry %d: time %d", i, e.Time)
		}
	}
	if entries[0].Attachment == nil || entries[0].Attachment.Path != "/tmp/a.png" {
		t.Errorf("attachment not kept: %#v", entries[0].Attachment)
	}
	if entries[3].Content != "backend down" {
		t.Errorf("error entry content %q", entries[3].Content)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_ = s.Append(ctx, 2, Entry{Role: RoleUser, Content: "two"})
	_ = s.Append(ctx, 1, Entry{Role: RoleUser, Content: "one"})
	_ = s.Append(ctx, 10, Entry{Role: RoleUser, Content: "ten"})

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 3 || keys[0] != 1 || keys[1] != 2 || keys[2] != 10 {
		t.Errorf("unexpected keys %v", keys)
	}

	if err := s.Clear(ctx, 2); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	entries, _ := s.List(ctx, 2)
	if len(entries) != 0 {
		t.Errorf("expected cleared transcript, got %d entries", len(entries))
	}
	entries, _ = s.List(ctx, 1)
	if len(entries) != 1 || entries[0].Content != "one" {
		t.Errorf("key 1 affected by clear: %#v", entries)
	}

	if err := s.Clear(ctx, 99); err != nil {
		t.Errorf("clearing a missing transcript should succeed: %v", err)
	}
}

func TestMaxEntries(t *testing.T) {
	s := newStore(t).WithMaxEntries(3)
	ctx := context.Background()

	for _, c := range []string{"a", "b", "c", "d", "e"} {
		if err := s.Append(ctx, 1, Entry{Role: RoleUser, Content: c}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	entries, _ := s.List(ctx, 1)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Content != "c" || entries[2].Content != "e" {
		t.Errorf("oldest entries should be dropped, got %v", entries)
	}
}

func TestConcurrentAppend(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Append(ctx, 1, Entry{Role: RoleUser, Content: "x"}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	entries, _ := s.List(ctx, 1)
	if len(entries) != 20 {
		t.Errorf("expected 20 entries, got %d", len(entries))
	}
}
