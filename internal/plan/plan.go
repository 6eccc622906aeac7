// Package plan holds the restated task and its todo list.
package plan

import (
	"fmt"
	"strings"
	"sync"
)

// Status is the state of a todo.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Icon returns a display icon for the status.
func (s Status) Icon() string {
	switch s {
	case StatusPending:
		return "○"
	case StatusCompleted:
		return "●"
	case StatusFailed:
		return "✗"
	default:
		return "?"
	}
}

// Todo is one unit of work.
type Todo struct {
	Title              string   `json:"title"`
	Details            string   `json:"details"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	Status             Status   `json:"status"`
}

// Plan is the task restatement plus ordered todos. Methods are safe for
// concurrent use; readers outside the run should work on Snapshot copies.
type Plan struct {
	mu          sync.RWMutex
	Restatement string `json:"restatement"`
	Todos       []Todo `json:"todos"`
}

// New returns a plan whose todos all start pending.
func New(restatement string, todos []Todo) *Plan {
	p := &Plan{Restatement: restatement}
	for _, t := range todos {
		if !t.Status.Valid() {
			t.Status = StatusPending
		}
		p.Todos = append(p.Todos, t)
	}
	return p
}

// Snapshot returns an independent copy.
func (p *Plan) Snapshot() *Plan {
	p.mu.RLock()
	defer p.mu.RUnlock()
	todos := make([]Todo, len(p.Todos))
	copy(todos, p.Todos)
	return &Plan{Restatement: p.Restatement, Todos: todos}
}

// Len returns the number of todos.
func (p *Plan) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.Todos)
}

// Get returns the todo at index.
func (p *Plan) Get(index int) (Todo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.checkIndex(index); err != nil {
		return Todo{}, err
	}
	return p.Todos[index], nil
}

func (p *Plan) checkIndex(index int) error {
	if index < 0 || index >= len(p.Todos) {
		return fmt.Errorf("todo index %d out of range (plan has %d todos)", index, len(p.Todos))
	}
	return nil
}

// MarkDone marks the todo at index completed.
func (p *Plan) MarkDone(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkIndex(index); err != nil {
		return err
	}
	p.Todos[index].Status = StatusCompleted
	return nil
}

// Complete marks every valid index completed and returns the ones applied.
// Out-of-range indices are skipped.
func (p *Plan) Complete(indices []int) []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var applied []int
	for _, i := range indices {
		if p.checkIndex(i) != nil || p.Todos[i].Status == StatusCompleted {
			continue
		}
		p.Todos[i].Status = StatusCompleted
		applied = append(applied, i)
	}
	return applied
}

// Add appends a pending todo and returns its index.
func (p *Plan) Add(t Todo) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	t.Status = StatusPending
	p.Todos = append(p.Todos, t)
	return len(p.Todos) - 1
}

// Patch holds optional todo field updates.
type Patch struct {
	Title              *string
	Details            *string
	AcceptanceCriteria []string
	Status             *Status
}

// Update applies patch to the todo at index.
func (p *Plan) Update(index int, patch Patch) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkIndex(index); err != nil {
		return err
	}
	t := &p.Todos[index]
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Details != nil {
		t.Details = *patch.Details
	}
	if patch.AcceptanceCriteria != nil {
		t.AcceptanceCriteria = append([]string(nil), patch.AcceptanceCriteria...)
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return fmt.Errorf("unknown todo status %q", *patch.Status)
		}
		t.Status = *patch.Status
	}
	return nil
}

// PendingCount returns the number of todos not completed.
func (p *Plan) PendingCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, t := range p.Todos {
		if t.Status != StatusCompleted {
			n++
		}
	}
	return n
}

// Progress returns the completed fraction in [0, 1].
func (p *Plan) Progress() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.Todos) == 0 {
		return 0
	}
	done := 0
	for _, t := range p.Todos {
		if t.Status == StatusCompleted {
			done++
		}
	}
	return float64(done) / float64(len(p.Todos))
}

// Format renders the plan for prompts. Indices are zero-based and match
// the todo tools.
func (p *Plan) Format() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var sb strings.Builder
	if p.Restatement != "" {
		sb.WriteString("Task: ")
		sb.WriteString(p.Restatement)
		sb.WriteString("\n")
	}
	sb.WriteString("Todos:\n")
	if len(p.Todos) == 0 {
		sb.WriteString("  (none)\n")
	}
	for i, t := range p.Todos {
		fmt.Fprintf(&sb, "  [%d] %s %s (%s)\n", i, t.Status.Icon(), t.Title, t.Status)
		if t.Details != "" {
			fmt.Fprintf(&sb, "      details: %s\n", t.Details)
		}
		for _, c := range t.AcceptanceCriteria {
			fmt.Fprintf(&sb, "      done when: %s\n", c)
		}
	}
	return sb.String()
}

// Markdown renders the plan as a checklist.
func (p *Plan) Markdown() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var sb strings.Builder
	if p.Restatement != "" {
		fmt.Fprintf(&sb, "**%s**\n\n", p.Restatement)
	}
	for _, t := range p.Todos {
		box := " "
		if t.Status == StatusCompleted {
			box = "x"
		}
		fmt.Fprintf(&sb, "- [%s] %s\n", box, t.Title)
	}
	return sb.String()
}
