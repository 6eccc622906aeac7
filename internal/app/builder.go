// Package app assembles a run from configuration and drives it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"lowvibe/internal/agent"
	"lowvibe/internal/audit"
	"lowvibe/internal/config"
	ctxmgr "lowvibe/internal/context"
	"lowvibe/internal/events"
	"lowvibe/internal/interact"
	"lowvibe/internal/logging"
	"lowvibe/internal/oracle"
	"lowvibe/internal/permission"
	"lowvibe/internal/plan"
	"lowvibe/internal/security"
	"lowvibe/internal/shell"
	"lowvibe/internal/tools"
	"lowvibe/internal/ui"
	"lowvibe/internal/undo"
	"lowvibe/internal/workspace"
)

// Builder constructs an App step by step. Errors are collected and
// reported together by Build.
type Builder struct {
	cfg  *config.Config
	repo string
	ctx  context.Context

	in  io.Reader
	out io.Writer

	runID     string
	oracle    oracle.Oracle
	asker     interact.Asker
	extra     []events.Sink
	plain     bool
	verbose   bool
	noWatch   bool
	calls     *logging.CallLog
	scope     *security.Scope
	tree      *workspace.Cache
	env       *tools.Env
	gate      *permission.Gate
	runner    *shell.Runner
	control   *agent.Control
	handoff   *interact.Handoff
	channel   *events.Channel
	bridge    *events.Bridge
	trail     *audit.Trail
	sink      events.Sink
	context   *ctxmgr.Manager
	views     *ctxmgr.ViewBuilder
	presenter *ui.Presenter

	buildErrors []error
}

// NewBuilder starts a build for the repository at repo.
func NewBuilder(ctx context.Context, cfg *config.Config, repo string) *Builder {
	return &Builder{
		cfg:   cfg,
		repo:  repo,
		ctx:   ctx,
		in:    os.Stdin,
		out:   os.Stdout,
		runID: uuid.NewString(),
	}
}

// WithOracle replaces the configured backend.
func (b *Builder) WithOracle(o oracle.Oracle) *Builder {
	b.oracle = o
	return b
}

// WithAsker replaces the console or bridge for human interaction.
func (b *Builder) WithAsker(a interact.Asker) *Builder {
	b.asker = a
	return b
}

// WithSink adds an event sink.
func (b *Builder) WithSink(s events.Sink) *Builder {
	b.extra = append(b.extra, s)
	return b
}

// WithIO sets the console streams.
func (b *Builder) WithIO(in io.Reader, out io.Writer) *Builder {
	b.in, b.out = in, out
	return b
}

// WithPresentation sets console rendering options.
func (b *Builder) WithPresentation(plain, verbose bool) *Builder {
	b.plain, b.verbose = plain, verbose
	return b
}

// WithoutWatcher disables filesystem watching; the tree is still
// invalidated by the agent's own writes.
func (b *Builder) WithoutWatcher() *Builder {
	b.noWatch = true
	return b
}

// Build constructs the App.
func (b *Builder) Build() (*App, error) {
	b.initLogging()
	if err := b.initWorkspace(); err != nil {
		b.addError(err)
		return nil, b.finalizeError()
	}
	if err := b.initOracle(); err != nil {
		b.addError(err)
		return nil, b.finalizeError()
	}
	b.initEvents()
	b.initContext()
	b.initCommands()
	if err := b.validateTools(); err != nil {
		b.addError(err)
	}
	if len(b.buildErrors) > 0 {
		return nil, b.finalizeError()
	}
	return b.assembleApp(), nil
}

func (b *Builder) addError(err error) {
	b.buildErrors = append(b.buildErrors, err)
}

func (b *Builder) finalizeError() error {
	return fmt.Errorf("failed to build app: %w", errors.Join(b.buildErrors...))
}

func (b *Builder) initLogging() {
	lc := b.cfg.Logging
	if lc.ToFile {
		if err := logging.EnableFileLogging(config.Resolve(b.repo, lc.Dir), logging.ParseLevel(lc.Level)); err != nil {
			// The run still works without a log file.
			fmt.Fprintf(os.Stderr, "warning: file logging disabled: %v\n", err)
		}
	}
	if lc.RecordCalls {
		b.calls = logging.NewCallLog(config.Resolve(b.repo, lc.CallsDir))
		b.calls.SetRedactor(security.NewSecretRedactor().Redact)
	}
	logging.Info("building app", "repo", b.repo, "run", b.runID, "version", b.cfg.Version)
}

func (b *Builder) initWorkspace() error {
	scope, err := security.NewScope(b.repo)
	if err != nil {
		return fmt.Errorf("invalid repository root: %w", err)
	}
	scanner, err := workspace.NewScanner(scope.Root())
	if err != nil {
		return fmt.Errorf("failed to load ignore rules: %w", err)
	}
	b.scope = scope
	b.tree = workspace.NewCache(scanner)
	b.env = &tools.Env{
		Scope:   scope,
		Backups: undo.NewStore(scope.Root(), b.cfg.Backup.Dir, b.cfg.Backup.Keep),
		Tree:    b.tree,
		MaxRead: b.cfg.Agent.MaxAttachBytes,
	}
	return nil
}

func (b *Builder) initOracle() error {
	if b.oracle != nil {
		if b.calls.Enabled() {
			b.oracle = oracle.Record(b.oracle, b.calls, "custom", b.cfg.Oracle.Model)
		}
		return nil
	}
	o, err := oracle.New(b.ctx, b.cfg.Oracle, b.calls)
	if err != nil {
		return fmt.Errorf("failed to create oracle: %w", err)
	}
	b.oracle = o
	return nil
}

// initEvents wires the sinks: the console channel, the websocket bridge
// when configured and any extra sinks, all stamped with the run ID.
func (b *Builder) initEvents() {
	b.channel = events.NewChannel(b.cfg.Events.Buffer)
	sinks := []events.Sink{b.channel}

	ctl := &controller{}
	if b.cfg.Events.Listen != "" {
		b.bridge = events.NewBridge(ctl)
		sinks = append(sinks, b.bridge)
	}
	if b.cfg.Logging.ToFile {
		if trail := b.openTrail(); trail != nil {
			b.trail = trail
			sinks = append(sinks, trail)
		}
	}
	sinks = append(sinks, b.extra...)
	b.sink = events.Stamp(events.Multi(sinks...), b.runID)
	b.control = agent.NewControl(b.sink)
	ctl.control = b.control

	switch {
	case b.asker != nil:
	case b.bridge != nil:
		// Questions go to bridge clients, which answer over the socket.
		b.handoff = interact.NewHandoff(func(q interact.Question) {
			data := map[string]any{"query": q.Query, "multiline": q.Options.Multiline}
			if q.Options.Command != nil {
				data["command"] = q.Options.Command
			}
			b.sink.Emit(events.Event{Type: events.Question, Data: data})
		})
		b.asker = b.handoff
		ctl.handoff = b.handoff
	default:
		b.asker = interact.NewConsole(b.in, b.out)
	}
	b.presenter = ui.NewPresenter(b.out, ui.Options{Plain: b.plain, Verbose: b.verbose})
}

// AuditDir is where run trails are kept.
func AuditDir(cfg *config.Config, repo string) string {
	return filepath.Join(config.Resolve(repo, cfg.Logging.Dir), "runs")
}

func (b *Builder) openTrail() *audit.Trail {
	trail, err := audit.NewTrail(AuditDir(b.cfg, b.repo), b.runID, audit.DefaultConfig())
	if err != nil {
		logging.Warn("audit trail disabled", "error", err)
		return nil
	}
	trail.SetRedactor(security.NewSecretRedactor().Redact)
	if n, err := trail.CleanupOldFiles(); err != nil {
		logging.Debug("audit cleanup failed", "error", err)
	} else if n > 0 {
		logging.Debug("old audit trails removed", "count", n)
	}
	return trail
}

func (b *Builder) initContext() {
	cc := b.cfg.Context
	summarizer := ctxmgr.NewSummarizer(b.oracle)
	b.context = ctxmgr.NewManager(ctxmgr.Options{
		Threshold: cc.Threshold,
		Recent:    cc.RecentMessages,
		KeepPairs: cc.KeepToolPairs,
	}, summarizer)
	b.views = ctxmgr.NewViewBuilder(summarizer)
}

func (b *Builder) initCommands() {
	cc := b.cfg.Commands
	var verifier permission.Verifier
	if !cc.SkipVerification {
		verifier = permission.NewOracleVerifier(b.oracle, b.tree.Render)
	}
	b.gate = permission.NewGate(
		b.scope,
		verifier,
		permission.NewAskApprover(b.control.Asker(b.asker)),
		permission.NewAllowList(cc.AllowedTypes, cc.AllowedExact),
		b.sink,
	)
	b.runner = &shell.Runner{
		Timeout:     b.cfg.Agent.CommandTimeout,
		OutputLimit: b.cfg.Agent.OutputLimit,
		UsePTY:      b.cfg.Agent.UsePTY,
	}
}

// validateTools builds every registry once against an empty plan so a
// broken tool definition fails before the run starts.
func (b *Builder) validateTools() error {
	empty := plan.New("", nil)
	if _, err := singleTools(b.env, b.gate, b.runner, empty, events.Discard); err != nil {
		return fmt.Errorf("invalid tool set: %w", err)
	}
	if _, err := teamTools(b.env, b.gate, b.runner, empty, events.Discard, tools.NewOwned()); err != nil {
		return fmt.Errorf("invalid team tool set: %w", err)
	}
	return nil
}

func (b *Builder) assembleApp() *App {
	return &App{
		cfg:       b.cfg,
		runID:     b.runID,
		oracle:    b.oracle,
		scope:     b.scope,
		tree:      b.tree,
		env:       b.env,
		gate:      b.gate,
		runner:    b.runner,
		control:   b.control,
		handoff:   b.handoff,
		asker:     b.asker,
		channel:   b.channel,
		bridge:    b.bridge,
		trail:     b.trail,
		sink:      b.sink,
		context:   b.context,
		views:     b.views,
		presenter: b.presenter,
		watch:     !b.noWatch,
	}
}
