package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"lowvibe/internal/agent"
	"lowvibe/internal/app"
	"lowvibe/internal/audit"
	"lowvibe/internal/config"
	"lowvibe/internal/logging"
	"lowvibe/internal/security"
	"lowvibe/internal/undo"
)

var version = "0.1.0"

type runFlags struct {
	repo     string
	config   string
	model    string
	backend  string
	multi    bool
	maxSteps int
	allow    []string
	listen   string
	plain    bool
	verbose  bool
	noWatch  bool
}

// exitCode maps a run outcome to the process status.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func main() {
	var f runFlags

	rootCmd := &cobra.Command{
		Use:   "lowvibe",
		Short: "Autonomous coding agent for small local models",
		Long: `lowvibe plans a coding task against a repository and carries it out with
a tool-using agent loop, or with a thinker/implementer/tester team.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&f.repo, "repo", ".", "repository root")
	rootCmd.PersistentFlags().StringVar(&f.config, "config", "", "config file (default is <repo>/.lowvibe/config.yaml)")

	runCmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run a task against the repository",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd.Context(), f, strings.Join(args, " "))
		},
	}
	fl := runCmd.Flags()
	fl.StringVar(&f.model, "model", "", "model name")
	fl.StringVar(&f.backend, "backend", "", "oracle backend: ollama or gemini")
	fl.BoolVar(&f.multi, "multi", false, "use the thinker/implementer/tester team")
	fl.IntVar(&f.maxSteps, "max-steps", 0, "single-agent step budget")
	fl.StringSliceVar(&f.allow, "allow", nil, "command types to run without asking (e.g. go,ls)")
	fl.StringVar(&f.listen, "events", "", "serve the event bridge on this address (e.g. 127.0.0.1:7777)")
	fl.BoolVar(&f.plain, "plain", false, "plain console output")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "show token usage and context events")
	fl.BoolVar(&f.noWatch, "no-watch", false, "do not watch the repository for changes")
	rootCmd.AddCommand(runCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "restore <file>",
		Short: "Restore a file from its newest backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return restore(f, args[0])
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "backups <file>",
		Short: "List the backups kept for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return listBackups(f, args[0])
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recorded runs, or show one run's audit trail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showRuns(f, args)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("lowvibe version %s\n", version)
		},
	})

	err := rootCmd.ExecuteContext(context.Background())
	logging.Close()
	var code exitCode
	switch {
	case errors.As(err, &code):
		os.Exit(int(code))
	case err != nil:
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(f runFlags) (string, *config.Config, error) {
	repo, err := filepath.Abs(f.repo)
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve repository: %w", err)
	}
	cfg, err := config.Load(f.config, repo)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Version = version
	return repo, cfg, nil
}

func runTask(ctx context.Context, f runFlags, task string) error {
	repo, cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	if f.model != "" {
		cfg.Oracle.Model = f.model
	}
	if f.backend != "" {
		cfg.Oracle.Backend = f.backend
	}
	if f.multi {
		cfg.Agent.Multi = true
	}
	if f.maxSteps > 0 {
		cfg.Agent.MaxSteps = f.maxSteps
	}
	if f.listen != "" {
		cfg.Events.Listen = f.listen
	}
	cfg.Commands.AllowedTypes = append(cfg.Commands.AllowedTypes, f.allow...)
	if err := cfg.Validate(); err != nil {
		return err
	}

	b := app.NewBuilder(ctx, cfg, repo).WithPresentation(f.plain, f.verbose)
	if f.noWatch {
		b = b.WithoutWatcher()
	}
	a, err := b.Build()
	if err != nil {
		return err
	}

	ctx, cleanup := a.HandleSignals(ctx)
	defer cleanup()

	res, err := a.Run(ctx, task)
	switch {
	case res.Reason == agent.ReasonCancelled:
		return exitCode(130)
	case err != nil:
		return err
	case !res.Success:
		return exitCode(1)
	}
	return nil
}

func openStore(f runFlags, file string) (*undo.Store, string, error) {
	repo, cfg, err := loadConfig(f)
	if err != nil {
		return nil, "", err
	}
	scope, err := security.NewScope(repo)
	if err != nil {
		return nil, "", err
	}
	abs, err := scope.Resolve(file)
	if err != nil {
		return nil, "", err
	}
	return undo.NewStore(scope.Root(), cfg.Backup.Dir, cfg.Backup.Keep), abs, nil
}

func restore(f runFlags, file string) error {
	store, abs, err := openStore(f, file)
	if err != nil {
		return err
	}
	b, err := store.Restore(abs)
	if err != nil {
		return err
	}
	fmt.Printf("restored %s from %s\n", file, b.Time.Format("2006-01-02 15:04:05"))
	return nil
}

func listBackups(f runFlags, file string) error {
	store, abs, err := openStore(f, file)
	if err != nil {
		return err
	}
	backups, err := store.List(abs)
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		fmt.Println("no backups")
		return nil
	}
	for _, b := range backups {
		fmt.Printf("%s  %8d bytes  %s\n", b.Time.Format("2006-01-02 15:04:05"), b.Size, b.Hash)
	}
	return nil
}

func showRuns(f runFlags, args []string) error {
	repo, cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	dir := app.AuditDir(cfg, repo)
	if len(args) == 1 {
		entries, err := audit.Read(dir, args[0])
		if err != nil {
			return err
		}
		for _, e := range entries {
			status := "ok"
			if !e.Success {
				status = "failed"
			}
			what := e.Tool
			if e.Command != "" {
				what = e.Command
			}
			fmt.Printf("%s  %-18s %-11s %-6s %s\n", e.Timestamp.Format("15:04:05"), e.Event, e.Role, status, what)
		}
		return nil
	}
	runs, err := audit.Runs(dir)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  %d bytes\n", r.Modified.Format("2006-01-02 15:04:05"), r.RunID, r.Size)
	}
	return nil
}
