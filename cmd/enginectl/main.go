// Command enginectl is a minimal demonstration binary wiring the Store
// Layer, Tool Runtime, Permission Evaluator, Workflow Executor, CCA
// Workflow, and Adapter together. It is not itself a spec component: CLI
// bootstrap and config-file discovery are out of scope, so this stays
// deliberately thin, following the shape of cmd/hector's CLI struct without
// its provider/zero-config machinery.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/arbiterloop/engine/adapter"
	"github.com/arbiterloop/engine/adapter/httpdebug"
	"github.com/arbiterloop/engine/cca"
	"github.com/arbiterloop/engine/config"
	"github.com/arbiterloop/engine/contextstore"
	"github.com/arbiterloop/engine/feed"
	"github.com/arbiterloop/engine/logger"
	"github.com/arbiterloop/engine/observability"
	"github.com/arbiterloop/engine/permission"
	"github.com/arbiterloop/engine/store"
	"github.com/arbiterloop/engine/toolruntime"
	"github.com/arbiterloop/engine/toolruntime/commandtool"
	"github.com/arbiterloop/engine/toolruntime/filetool"
	"github.com/arbiterloop/engine/validator"
	"github.com/arbiterloop/engine/workflowexec"
)

// CLI is the top-level command set.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Run the engine: HTTP debug surface, optional workflow-dir watcher, demonstration CCA session."`
	Validate ValidateCmd `cmd:"" help:"Validate a workflow definition YAML file."`
	Schema   SchemaCmd   `cmd:"" help:"Print the JSON schema for a built-in tool."`
	Version  VersionCmd  `cmd:"" help:"Print version information."`

	Config   string `short:"c" help:"Path to engine config YAML." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// VersionCmd prints a fixed version string; the demonstration binary has no
// release pipeline to stamp a real one in.
type VersionCmd struct{}

func (VersionCmd) Run() error {
	fmt.Println("enginectl (dev build)")
	return nil
}

// SchemaCmd dumps the JSON schema invopop/jsonschema generates for one of
// the built-in tools, mirroring hector's `schema` subcommand for its
// config builder.
type SchemaCmd struct {
	Tool string `arg:"" help:"Tool name (file-read, file-glob, file-grep, file-write, file-edit, shell-exec)."`
}

func (c SchemaCmd) Run() error {
	handlers := builtinHandlers()
	for _, h := range handlers {
		if h.Name() != c.Tool {
			continue
		}
		data, err := json.MarshalIndent(h.Schema(), "", "  ")
		if err != nil {
			return fmt.Errorf("marshal schema: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}
	return fmt.Errorf("unknown tool %q", c.Tool)
}

// ValidateCmd loads a single workflow definition file and reports whether
// it satisfies the executor's structural invariants (non-empty, every step
// has an id, no dangling edges). Duplicate step ids are not rejected.
type ValidateCmd struct {
	File string `arg:"" help:"Path to a workflow definition YAML file." type:"path"`
}

func (c ValidateCmd) Run() error {
	def, err := workflowexec.LoadDefinitionFile(c.File)
	if err != nil {
		return err
	}
	fmt.Printf("%s: valid (id=%s, %d steps)\n", c.File, def.ID, len(def.Steps))
	return nil
}

// ServeCmd wires every component together and runs until interrupted,
// exposing httpdebug's /healthz, /metrics, /debug/info over HTTP.
type ServeCmd struct {
	Workspace    string `help:"Workspace root the tool runtime operates in." default:"."`
	Port         int    `help:"HTTP debug port." default:"8090"`
	WorkflowsDir string `name:"workflows-dir" help:"Directory of workflow definition YAML files to load and watch."`
	Metrics      bool   `help:"Enable Prometheus metrics." default:"true"`
	Tracing      bool   `help:"Enable OpenTelemetry tracing (no exporter wired; spans are sampled but not shipped)."`
}

func (c ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	log := logger.New(cli.LogLevel, os.Stderr)
	slog.SetDefault(log)

	cfg := &config.EngineConfig{Workspace: c.Workspace}
	cfg.SetDefaults()

	s, err := store.Open(cfg.Database.Driver, cfg.DatabasePath(), log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	metrics := observability.NewMetrics(&observability.MetricsConfig{Enabled: c.Metrics})
	observability.InitGlobalTracer(observability.TracerConfig{
		Enabled:      c.Tracing,
		SamplingRate: 1.0,
		ServiceName:  "enginectl",
	})

	evaluator := permission.New(s, map[string]bool{"file-write": true, "file-edit": true, "shell-exec": true})
	results := contextstore.New(contextstore.DefaultCaps(), cfg.ContextStoreCap)
	runtime := toolruntime.New(evaluator, s, results, s, toolruntime.WithMetrics(metrics))

	tools := make(map[string]toolruntime.Handler)
	for _, h := range builtinHandlers() {
		runtime.Register(h)
		tools[h.Name()] = h
	}

	f := feed.New(cfg.FeedCap, log)
	contextMgr := workflowexec.NewContextManager(s, nil, nil)
	executor := workflowexec.New(nil, nil)
	executor.Metrics = metrics
	executor.RegisterHandler(workflowexec.StepTool, workflowexec.NewToolStepHandler(runtime))
	executor.RegisterHandler(workflowexec.StepCondition, workflowexec.NewConditionStepHandler())
	executor.RegisterHandler(workflowexec.StepEnd, workflowexec.NewEndStepHandler())

	if c.WorkflowsDir != "" {
		watcher := workflowexec.NewDefinitionWatcher(c.WorkflowsDir, executor, log)
		if err := watcher.LoadAll(); err != nil {
			log.Warn("initial workflow definitions load failed", "error", err)
		}
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("start workflow watcher: %w", err)
		}
		defer watcher.Stop()
	}

	pipeline := validator.NewStaticValidator(nil)
	resolver := cca.NewArbiterResolver()
	session := cca.NewCCAWorkflow(s, runtime, tools, pipeline, f, resolver, noopCoder{}, cca.Options{
		MaxIterations:  cfg.CCA.MaxIterations,
		AutoApply:      cfg.CCA.AutoApplyOnConsensus,
		AutoApplyRatio: cfg.CCA.AutoApplyThreshold,
		ArbiterTimeout: cfg.CCA.ArbiterTimeout,
		MaxToolLoops:   cfg.CCA.MaxToolLoops,
	})
	session.Metrics = metrics

	a := adapter.New(s, executor, contextMgr, evaluator, f, func(sessionID string) (*cca.CCAWorkflow, error) {
		return session, nil
	})
	adapter.AttachNotifier(a, executor)
	adapter.AttachToolNotifier(a, runtime)

	mux := httpdebug.New(a, metrics)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", c.Port), Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	log.Info("enginectl serving", "addr", srv.Addr, "workspace", c.Workspace)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http debug server: %w", err)
	}
	return nil
}

func builtinHandlers() []toolruntime.Handler {
	return []toolruntime.Handler{
		filetool.Read{}, filetool.Glob{}, filetool.Grep{}, filetool.Write{}, filetool.Edit{},
		commandtool.Command{},
	}
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("enginectl"),
		kong.Description("Demonstration CLI for the arbiterloop engine."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
