package app

import (
	"lowvibe/internal/events"
	"lowvibe/internal/plan"
	"lowvibe/internal/shell"
	"lowvibe/internal/team"
	"lowvibe/internal/tools"
)

// singleTools is the single agent's full tool set.
func singleTools(env *tools.Env, gate tools.CommandGate, runner *shell.Runner, p *plan.Plan, sink events.Sink) (*tools.Registry, error) {
	specs := tools.FileTools(env)
	specs = append(specs, tools.RunCommand(env.Scope, gate, runner))
	specs = append(specs, tools.TodoTools(p, sink)...)
	specs = append(specs, tools.ManageTodos(p, sink))
	specs = append(specs, tools.ASTTools(env)...)
	return tools.NewRegistry(specs...)
}

var (
	thinkerTools     = []string{"read_file", "list_files", "run_cmd", "manage_todos"}
	implementerTools = []string{
		"read_file", "write_file", "delete_file",
		"get_file_outline", "read_function", "add_function", "edit_function", "remove_function",
	}
	testerTools = []string{"read_file", "run_cmd", "create_file"}
)

// teamTools cuts each role's registry out of the single agent's. The
// Thinker reads, runs commands and keeps the plan. The Implementer edits.
// The Tester runs commands and may only create files it then owns.
func teamTools(env *tools.Env, gate tools.CommandGate, runner *shell.Runner, p *plan.Plan, sink events.Sink, owned *tools.Owned) (team.Toolsets, error) {
	var ts team.Toolsets
	full, err := singleTools(env, gate, runner, p, sink)
	if err != nil {
		return ts, err
	}

	if ts.Thinker, err = full.Subset(thinkerTools...); err != nil {
		return ts, err
	}
	if ts.Implementer, err = full.Subset(implementerTools...); err != nil {
		return ts, err
	}
	tester, err := full.Subset(testerTools...)
	if err != nil {
		return ts, err
	}
	ts.Tester, err = tester.With(tools.CreateFile(env, owned))
	return ts, err
}
