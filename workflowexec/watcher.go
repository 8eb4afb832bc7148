package workflowexec

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// yamlStep is the on-disk shape of one Step in a workflow definition file.
type yamlStep struct {
	ID     string         `yaml:"id"`
	Type   string         `yaml:"type"`
	Edges  []string       `yaml:"edges"`
	Config map[string]any `yaml:"config"`
}

// yamlWorkflowDefinition is the on-disk shape of a WorkflowDefinition,
// loaded from a `*.yaml`/`*.yml` file in a watched directory.
type yamlWorkflowDefinition struct {
	ID            string     `yaml:"id"`
	Name          string     `yaml:"name"`
	Description   string     `yaml:"description"`
	Trigger       string     `yaml:"trigger"`
	Default       bool       `yaml:"default"`
	AgentPool     []string   `yaml:"agent_pool"`
	Steps         []yamlStep `yaml:"steps"`
	MaxIterations int        `yaml:"max_iterations"`
}

func (d yamlWorkflowDefinition) toDefinition() *WorkflowDefinition {
	steps := make([]Step, len(d.Steps))
	for i, s := range d.Steps {
		steps[i] = Step{ID: s.ID, Type: StepType(s.Type), Edges: s.Edges, Config: s.Config}
	}
	return &WorkflowDefinition{
		ID:            d.ID,
		Name:          d.Name,
		Description:   d.Description,
		Trigger:       TriggerType(d.Trigger),
		Default:       d.Default,
		AgentPool:     d.AgentPool,
		Steps:         steps,
		MaxIterations: d.MaxIterations,
	}
}

// DefinitionWatcher watches a directory of workflow-definition YAML files
// and re-registers them with an Executor on create/write, matching the
// teacher's config hot-reload pattern (pkg/config/provider/file.go) applied
// to a directory of definitions instead of a single config file.
type DefinitionWatcher struct {
	dir      string
	executor *Executor
	log      *slog.Logger
	watcher  *fsnotify.Watcher
}

// NewDefinitionWatcher constructs a watcher over dir; log may be nil.
func NewDefinitionWatcher(dir string, executor *Executor, log *slog.Logger) *DefinitionWatcher {
	if log == nil {
		log = slog.Default()
	}
	return &DefinitionWatcher{dir: dir, executor: executor, log: log}
}

// LoadAll reads every *.yaml/*.yml file in the directory once and registers
// it, returning the first registration error encountered (if any definition
// fails to parse or register, the rest are still attempted).
func (w *DefinitionWatcher) LoadAll() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("definition watcher: read dir %s: %w", w.dir, err)
	}

	var firstErr error
	for _, e := range entries {
		if e.IsDir() || !isWorkflowFile(e.Name()) {
			continue
		}
		if err := w.loadFile(filepath.Join(w.dir, e.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (w *DefinitionWatcher) loadFile(path string) error {
	def, err := LoadDefinitionFile(path)
	if err != nil {
		return err
	}
	if err := w.executor.RegisterWorkflow(def); err != nil {
		return fmt.Errorf("definition watcher: register %s: %w", path, err)
	}
	w.log.Info("registered workflow definition", "path", path, "id", def.ID)
	return nil
}

// LoadDefinitionFile reads and parses one workflow definition YAML file,
// returning it unregistered. Useful for one-off validation (the `validate`
// CLI subcommand) without needing a live Executor.
func LoadDefinitionFile(path string) (*WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("definition watcher: read %s: %w", path, err)
	}
	var raw yamlWorkflowDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("definition watcher: parse %s: %w", path, err)
	}
	def := raw.toDefinition()
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("definition watcher: %s: %w", path, err)
	}
	def.SetDefaults()
	return def, nil
}

func isWorkflowFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

// Start begins watching the directory in the background. Stop must be
// called to release the underlying inotify/kqueue handle.
func (w *DefinitionWatcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("definition watcher: create: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("definition watcher: watch %s: %w", w.dir, err)
	}
	w.watcher = watcher

	go w.loop()
	return nil
}

// Stop releases the watcher. Safe to call even if Start was never called.
func (w *DefinitionWatcher) Stop() error {
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}

func (w *DefinitionWatcher) loop() {
	var debounce *time.Timer
	const debounceDelay = 100 * time.Millisecond

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isWorkflowFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			path := event.Name
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() {
				if err := w.loadFile(path); err != nil {
					w.log.Warn("definition watcher: reload failed", "error", err)
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("definition watcher: fsnotify error", "error", err)
		}
	}
}
