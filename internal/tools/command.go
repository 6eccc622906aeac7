package tools

import (
	"context"
	"fmt"
	"time"

	"lowvibe/internal/permission"
	"lowvibe/internal/security"
	"lowvibe/internal/shell"
)

// CommandGate is the approval step in front of every command.
type CommandGate interface {
	Check(ctx context.Context, command, cwd string) (permission.Outcome, error)
}

// RunCommand returns the run_cmd tool: every command passes the gate,
// then runs under the runner's deadline.
func RunCommand(scope *security.Scope, gate CommandGate, runner *shell.Runner) Spec {
	return Spec{
		Name: "run_cmd",
		Description: "Run a shell command from a directory inside the repository. " +
			"Commands must be non-interactive and finish within the timeout.",
		Params: map[string]any{
			"command": str("the shell command"),
			"cwd":     str("working directory relative to the repository root (default .)"),
		},
		Required: []string{"command"},
		Handler: func(ctx context.Context, args Args) Result {
			command, cwd := args.String("command"), args.String("cwd")
			if cwd == "" {
				cwd = "."
			}
			out, err := gate.Check(ctx, command, cwd)
			if err != nil {
				return Failure("command approval failed: %v", err)
			}
			if !out.Allowed {
				return Result{Error: out.Reason, Data: map[string]any{"command": out.Command}}
			}

			dir, err := scope.Resolve(out.Cwd)
			if err != nil {
				return Failure("%v", err)
			}
			res, err := runner.Run(ctx, out.Command, dir)
			if err != nil {
				return Failure("failed to run command: %v", err)
			}
			return commandResult(out, res, runner.Timeout)
		},
	}
}

func commandResult(out permission.Outcome, res shell.Result, timeout time.Duration) Result {
	data := map[string]any{
		"command":   out.Command,
		"cwd":       out.Cwd,
		"exit_code": res.ExitCode,
	}
	if out.Corrected {
		data["corrected"] = true
	}
	if res.Truncated {
		data["truncated"] = true
	}
	if res.TimedOut {
		data["stall"] = string(res.Stall)
		data["output"] = res.Output
		return Result{
			Error: fmt.Sprintf("command killed after %s. %s", timeout, res.Advice(timeout)),
			Data:  data,
		}
	}
	return Result{Content: res.Output, Data: data}
}
