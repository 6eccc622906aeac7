// Package permission decides whether a shell command may run.
package permission

import (
	"sort"
	"strings"
	"sync"
)

// Decision is a human verdict on a command.
type Decision string

const (
	AllowOnce  Decision = "allow_once"
	AllowType  Decision = "allow_type"
	AllowExact Decision = "allow_exact"
	Reject     Decision = "reject"
	// Allowed is recorded when an allow-list matched and nobody was asked.
	Allowed Decision = "allow_listed"
	// Blocked is recorded when a deterministic or oracle check refused.
	Blocked Decision = "blocked"
)

// CommandType is the command's first whitespace-separated word, the key
// allow_type grants are stored under.
func CommandType(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Request is a command presented for approval.
type Request struct {
	Command     string `json:"command"`
	Cwd         string `json:"cwd"`
	CommandType string `json:"command_type"`
	// Label is the verifier's category for the command (test, build, ...).
	Label string `json:"label,omitempty"`
	// Note carries the verifier's reasoning, if any.
	Note string `json:"note,omitempty"`
}

// Approval is the answer to a Request.
type Approval struct {
	Decision Decision
	// Feedback is the human's reason for a rejection.
	Feedback string
}

// AllowList holds the command types and exact commands that run without
// asking. It only ever grows during a run.
type AllowList struct {
	mu    sync.RWMutex
	types map[string]bool
	exact map[string]bool
}

// NewAllowList seeds an allow-list.
func NewAllowList(types, exact []string) *AllowList {
	a := &AllowList{types: make(map[string]bool), exact: make(map[string]bool)}
	for _, t := range types {
		a.types[t] = true
	}
	for _, c := range exact {
		a.exact[c] = true
	}
	return a
}

// Allows reports whether the command matches either list.
func (a *AllowList) Allows(command, commandType string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.exact[command] || (commandType != "" && a.types[commandType])
}

// AddType allow-lists a command type. It reports whether the list grew.
func (a *AllowList) AddType(t string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t == "" || a.types[t] {
		return false
	}
	a.types[t] = true
	return true
}

// AddExact allow-lists an exact command. It reports whether the list grew.
func (a *AllowList) AddExact(c string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.exact[c] {
		return false
	}
	a.exact[c] = true
	return true
}

// Snapshot returns both lists sorted.
func (a *AllowList) Snapshot() (types, exact []string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for t := range a.types {
		types = append(types, t)
	}
	for c := range a.exact {
		exact = append(exact, c)
	}
	sort.Strings(types)
	sort.Strings(exact)
	return types, exact
}
