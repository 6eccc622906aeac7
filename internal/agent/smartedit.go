package agent

import (
	"context"
	"fmt"
	"os"
	"strings"

	"lowvibe/internal/chat"
	"lowvibe/internal/logging"
	"lowvibe/internal/oracle"
	"lowvibe/internal/security"
	"lowvibe/internal/tools"
)

// MinEditConfidence is the lowest confidence at which a relocated search
// block is trusted.
const MinEditConfidence = 0.6

// SmartEditError aborts the run: once recovery of a failed edit starts it
// must succeed.
type SmartEditError struct {
	Path   string
	Reason string
	Err    error
}

func (e *SmartEditError) Error() string {
	msg := fmt.Sprintf("edit recovery failed for %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SmartEditError) Unwrap() error { return e.Err }

type smartEditReply struct {
	Found           bool    `json:"found"`
	CorrectedSearch string  `json:"corrected_search"`
	Confidence      float64 `json:"confidence"`
	Explanation     string  `json:"explanation"`
}

// SmartEdit recovers a replace_in_file whose search text is not in the
// file: the oracle relocates the intended block verbatim and the edit is
// retried with it.
type SmartEdit struct {
	oracle oracle.Oracle
	scope  *security.Scope
	tools  *tools.Registry
}

// NewSmartEdit builds the recovery helper.
func NewSmartEdit(o oracle.Oracle, scope *security.Scope, reg *tools.Registry) *SmartEdit {
	return &SmartEdit{oracle: o, scope: scope, tools: reg}
}

// Recover returns the corrected arguments and the successful result of the
// retried edit, or a *SmartEditError.
func (s *SmartEdit) Recover(ctx context.Context, st *State, args map[string]any) (map[string]any, tools.Result, error) {
	a := tools.Args(args)
	path := a.String("path")
	fail := func(reason string, err error) (map[string]any, tools.Result, error) {
		logging.Error("edit recovery failed", "path", path, "reason", reason, "error", err)
		return nil, tools.Result{}, &SmartEditError{Path: path, Reason: reason, Err: err}
	}

	abs, err := s.scope.Resolve(path)
	if err != nil {
		return fail("invalid path", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return fail("file unreadable", err)
	}
	content := string(data)

	msgs := []chat.Message{
		chat.System(smartEditPrompt),
		chat.User(fmt.Sprintf("File %s:\n```\n%s\n```\n\nFailed search text:\n```\n%s\n```\n\nIntended replacement:\n```\n%s\n```",
			path, content, a.String("search"), a.String("replace"))),
	}
	reply, usage, err := oracle.Decode[smartEditReply](oracle.WithLabel(ctx, "smart-edit"), s.oracle, msgs, SmartEditSchema())
	st.Usage.Add(usage)
	if err != nil {
		return fail("oracle call failed", err)
	}
	switch {
	case !reply.Found:
		return fail("intended block not found", nil)
	case reply.Confidence < MinEditConfidence:
		return fail(fmt.Sprintf("low confidence %.2f", reply.Confidence), nil)
	case reply.CorrectedSearch == "" || !strings.Contains(content, reply.CorrectedSearch):
		return fail("relocated block does not occur verbatim in the file", nil)
	}

	corrected := make(map[string]any, len(args))
	for k, v := range args {
		corrected[k] = v
	}
	corrected["search"] = reply.CorrectedSearch

	res := s.tools.Dispatch(ctx, "replace_in_file", corrected)
	if !res.OK() {
		return fail("retried edit failed", fmt.Errorf("%s", res.Error))
	}
	logging.Info("edit recovered", "path", path, "confidence", reply.Confidence, "explanation", reply.Explanation)
	return corrected, res, nil
}
