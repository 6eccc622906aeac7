package permission

import (
	"context"
	"fmt"
	"strings"

	"lowvibe/internal/chat"
	"lowvibe/internal/oracle"
)

// Verification is the oracle's pre-execution judgement of a command.
type Verification struct {
	Valid            bool   `json:"valid"`
	Reason           string `json:"reason"`
	CommandType      string `json:"command_type"`
	CorrectedCommand string `json:"corrected_command"`
	CorrectedCwd     string `json:"corrected_cwd"`
}

// Verifier judges a command before it runs.
type Verifier interface {
	Verify(ctx context.Context, command, cwd string) (Verification, error)
}

var verificationSchema = oracle.Schema{
	Name: "command_verification",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"valid":             map[string]any{"type": "boolean"},
			"reason":            map[string]any{"type": "string"},
			"command_type":      map[string]any{"type": "string"},
			"corrected_command": map[string]any{"type": "string"},
			"corrected_cwd":     map[string]any{"type": "string"},
		},
		"required": []any{"valid", "reason", "command_type"},
	},
}

const verifierPrompt = `You check shell commands before an autonomous coding agent runs them inside a repository.

Decide whether the command is valid to run from the given working directory (relative to the repository root):
- it must reference files and directories that exist in the tree below, or that the command itself creates
- it must not touch anything outside the repository
- it must not be interactive or run forever (servers, watchers, editors, REPLs)

Classify it with a short lowercase command_type such as test, build, lint, format, install, inspect, git, run, delete.
If it is invalid but an obvious fix exists (wrong directory, typo in a path), set valid=false and give corrected_command and/or corrected_cwd.`

// OracleVerifier asks the oracle to verify commands against the
// repository tree.
type OracleVerifier struct {
	oracle oracle.Oracle
	tree   func() string
}

// NewOracleVerifier returns a verifier; tree renders the current file tree.
func NewOracleVerifier(o oracle.Oracle, tree func() string) *OracleVerifier {
	return &OracleVerifier{oracle: o, tree: tree}
}

// Verify implements Verifier.
func (v *OracleVerifier) Verify(ctx context.Context, command, cwd string) (Verification, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Command: %s\nWorking directory: %s\n", command, cwd)
	if v.tree != nil {
		sb.WriteString("\nRepository tree:\n")
		sb.WriteString(v.tree())
	}

	ctx = oracle.WithLabel(ctx, "verify_command")
	out, _, err := oracle.Decode[Verification](ctx, v.oracle, []chat.Message{
		chat.System(verifierPrompt),
		chat.User(sb.String()),
	}, verificationSchema)
	if err != nil {
		return Verification{}, err
	}
	out.CommandType = strings.ToLower(strings.TrimSpace(out.CommandType))
	return out, nil
}
