package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/deskpilot/deskpilot/internal/storage"
	"github.com/sergi/go-diff/diffmatchpatch"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Note is a stored note.
type Note struct {
	Title   string    `json:"title"`
	Content string    `json:"content"`
	Updated time.Time `json:"updated"`
}

// NotesTool keeps simple notes in storage.
type NotesTool struct {
	storage *storage.Storage
}

// NotesInput is the input for the notes tool.
type NotesInput struct {
	Action  string `json:"action"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
}

func NewNotesTool(store *storage.Storage) *NotesTool {
	return &NotesTool{storage: store}
}

func (t *NotesTool) ID() string { return "notes" }

func (t *NotesTool) Description() string {
	return `Read and edit the user's notes.

Actions:
  - list: list note titles
  - read: return a note's content
  - write: replace a note's content (creates it if missing)
  - append: add a line to a note (creates it if missing)
  - delete: remove a note
Write and append return a patch showing what changed.`
}

func (t *NotesTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["list", "read", "write", "append", "delete"]},
			"title": {"type": "string", "description": "Note title (required except for list)"},
			"content": {"type": "string", "description": "Content for write and append"}
		},
		"required": ["action"]
	}`)
}

func noteSlug(title string) string {
	return strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(title), "-"), "-")
}

func (t *NotesTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params NotesInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if params.Action == "list" {
		return t.list(ctx)
	}

	slug := noteSlug(params.Title)
	if slug == "" {
		return nil, fmt.Errorf("title is required for %q", params.Action)
	}
	path := []string{"notes", slug}

	switch params.Action {
	case "read":
		var note Note
		if err := t.storage.Get(ctx, path, &note); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("note %q not found", params.Title)
			}
			return nil, err
		}
		return &Result{Title: note.Title, Output: note.Content}, nil

	case "write", "append":
		var note Note
		var before string
		err := t.storage.Update(ctx, path, &note, func() error {
			before = note.Content
			if note.Title == "" {
				note.Title = params.Title
			}
			if params.Action == "write" || note.Content == "" {
				note.Content = params.Content
			} else {
				note.Content = strings.TrimRight(note.Content, "\n") + "\n" + params.Content
			}
			note.Updated = time.Now()
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("save note: %w", err)
		}
		return &Result{
			Title:    note.Title,
			Output:   fmt.Sprintf("Saved %q.\n%s", note.Title, notePatch(before, note.Content)),
			Metadata: map[string]any{"slug": slug},
		}, nil

	case "delete":
		if !t.storage.Exists(ctx, path) {
			return nil, fmt.Errorf("note %q not found", params.Title)
		}
		if err := t.storage.Delete(ctx, path); err != nil {
			return nil, err
		}
		return &Result{Title: params.Title, Output: fmt.Sprintf("Deleted %q.", params.Title)}, nil
	}

	return nil, fmt.Errorf("unknown action %q", params.Action)
}

func (t *NotesTool) list(ctx context.Context) (*Result, error) {
	var titles []string
	err := t.storage.Scan(ctx, []string{"notes"}, func(key string, data json.RawMessage) error {
		var note Note
		if json.Unmarshal(data, &note) == nil {
			titles = append(titles, note.Title)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(titles)
	if len(titles) == 0 {
		return &Result{Title: "Notes", Output: "No notes yet."}, nil
	}
	return &Result{Title: "Notes", Output: strings.Join(titles, "\n")}, nil
}

// notePatch renders the change as a unified-style patch.
func notePatch(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, false))
	return dmp.PatchToText(dmp.PatchMake(before, diffs))
}

func (t *NotesTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
