package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/deskpilot/deskpilot/internal/storage"
)

const todoDescription = `Read or replace the user's todo list.

Call without "todos" to read the current list. Pass the complete updated
list in "todos" to replace it; items missing from the list are removed.

Task states: pending, in_progress, completed.
Priorities: high, medium, low.`

var todoPath = []string{"todos", "list"}

// TodoItem is one entry on the todo list.
type TodoItem struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
}

// TodoTool manages the user's todo list.
type TodoTool struct {
	storage *storage.Storage
}

// TodoInput represents the input for the todo tool.
type TodoInput struct {
	Todos *[]TodoItem `json:"todos,omitempty"`
}

func NewTodoTool(store *storage.Storage) *TodoTool {
	return &TodoTool{storage: store}
}

func (t *TodoTool) ID() string          { return "todo" }
func (t *TodoTool) Description() string { return todoDescription }

func (t *TodoTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"todos": {
				"type": "array",
				"description": "The complete updated todo list. Omit to read the list.",
				"items": {
					"type": "object",
					"properties": {
						"id": {"type": "string", "description": "Unique identifier for the todo item"},
						"content": {"type": "string", "description": "Brief description of the task"},
						"status": {"type": "string", "enum": ["pending", "in_progress", "completed"]},
						"priority": {"type": "string", "enum": ["high", "medium", "low"]}
					},
					"required": ["id", "content", "status"]
				}
			}
		}
	}`)
}

func (t *TodoTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var params TodoInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &params); err != nil {
			return nil, fmt.Errorf("invalid input: %w", err)
		}
	}

	var todos []TodoItem
	if params.Todos == nil {
		if err := t.storage.Get(ctx, todoPath, &todos); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to read todos: %w", err)
		}
	} else {
		todos = *params.Todos
		for i := range todos {
			if err := validateTodo(&todos[i]); err != nil {
				return nil, err
			}
		}
		if err := t.storage.Put(ctx, todoPath, todos); err != nil {
			return nil, fmt.Errorf("failed to update todos: %w", err)
		}
	}
	if todos == nil {
		todos = []TodoItem{}
	}

	open := 0
	for _, todo := range todos {
		if todo.Status != "completed" {
			open++
		}
	}

	output, _ := json.MarshalIndent(todos, "", "  ")
	return &Result{
		Title:    fmt.Sprintf("%d todos", open),
		Output:   string(output),
		Metadata: map[string]any{"open": open, "total": len(todos)},
	}, nil
}

func validateTodo(item *TodoItem) error {
	if item.ID == "" || item.Content == "" {
		return fmt.Errorf("todo items need an id and content")
	}
	switch item.Status {
	case "pending", "in_progress", "completed":
	default:
		return fmt.Errorf("todo %s: invalid status %q", item.ID, item.Status)
	}
	if item.Priority == "" {
		item.Priority = "medium"
	}
	return nil
}

func (t *TodoTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
