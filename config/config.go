// Package config holds the engine's tunable defaults and the database
// connection settings, loaded from YAML plus environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig configures the SQL connection behind the Store Layer.
// Supports sqlite (default deployment target), postgres, and mysql.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Database string `yaml:"database"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	SSLMode  string `yaml:"ssl_mode,omitempty"`
	MaxConns int    `yaml:"max_conns,omitempty"`
	MaxIdle  int    `yaml:"max_idle,omitempty"`
}

// SetDefaults applies default values to the database config.
func (c *DatabaseConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MaxIdle == 0 {
		c.MaxIdle = 5
	}
	if c.Port == 0 {
		switch c.Driver {
		case "postgres":
			c.Port = 5432
		case "mysql":
			c.Port = 3306
		}
	}
	if c.Driver == "postgres" && c.SSLMode == "" {
		c.SSLMode = "disable"
	}
}

// Validate checks the database configuration for obvious mistakes.
func (c *DatabaseConfig) Validate() error {
	if c.Driver == "" {
		return fmt.Errorf("driver is required")
	}
	switch c.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported driver: %s", c.Driver)
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	return nil
}

// ToolCap bounds one tool's result size before it must spill into the
// context store.
type ToolCap struct {
	// Field names the cap's unit of measure (chars, entries, matches) for
	// documentation purposes; enforcement is tool-specific.
	Field string `yaml:"field"`
	Cap   int    `yaml:"cap"`
}

// CCADefaults holds the default CCA loop tunables.
type CCADefaults struct {
	MaxIterations       int           `yaml:"max_iterations"`
	MaxToolLoops        int           `yaml:"max_tool_loops"`
	AutoApplyOnConsensus bool         `yaml:"auto_apply_on_consensus"`
	AutoApplyThreshold  float64       `yaml:"auto_apply_threshold"`
	ValidateAfterCoding bool          `yaml:"validate_after_coding"`
	CoderTimeout        time.Duration `yaml:"coder_timeout"`
	ArbiterTimeout      time.Duration `yaml:"arbiter_timeout"` // 0 = disabled
}

func (c *CCADefaults) SetDefaults() {
	if c.MaxIterations == 0 {
		c.MaxIterations = 5
	}
	if c.MaxToolLoops == 0 {
		c.MaxToolLoops = 50
	}
	if c.AutoApplyThreshold == 0 {
		c.AutoApplyThreshold = 1.0
	}
	if c.CoderTimeout == 0 {
		c.CoderTimeout = 120 * time.Second
	}
}

// WorkflowDefaults holds the default workflow executor tunables.
type WorkflowDefaults struct {
	MaxIterations     int `yaml:"max_iterations"`
	HardIterationCap  int `yaml:"hard_iteration_cap"`
	KeepRecentCount   int `yaml:"keep_recent_count"`
	ContextTokenCap   int `yaml:"context_token_cap"`
}

func (c *WorkflowDefaults) SetDefaults() {
	if c.MaxIterations == 0 {
		c.MaxIterations = 100
	}
	if c.HardIterationCap == 0 {
		c.HardIterationCap = 1000
	}
	if c.KeepRecentCount == 0 {
		c.KeepRecentCount = 10
	}
	if c.ContextTokenCap == 0 {
		c.ContextTokenCap = 128000
	}
}

// ToolTimeouts bounds tool execution.
type ToolTimeouts struct {
	Default time.Duration `yaml:"default"`
}

func (c *ToolTimeouts) SetDefaults() {
	if c.Default == 0 {
		c.Default = 120 * time.Second
	}
}

// EngineConfig is the top-level configuration object. A serialized snapshot
// of this (minus secrets) is stored verbatim on the Session row so a resumed
// session reconstructs the exact tunables it started with.
type EngineConfig struct {
	Workspace    string           `yaml:"workspace"`
	EngineDir    string           `yaml:"engine_dir"`
	LogLevel     string           `yaml:"log_level"`
	Database     DatabaseConfig   `yaml:"database"`
	CCA          CCADefaults      `yaml:"cca"`
	Workflow     WorkflowDefaults `yaml:"workflow"`
	ToolTimeouts ToolTimeouts     `yaml:"tool_timeouts"`

	ContextStoreCap int `yaml:"context_store_cap"` // default 1000
	FeedCap         int `yaml:"feed_cap"`          // default 10000
}

// SetDefaults fills in every zero-valued tunable with its spec-mandated default.
func (c *EngineConfig) SetDefaults() {
	if c.EngineDir == "" {
		c.EngineDir = ".arbiter"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ContextStoreCap == 0 {
		c.ContextStoreCap = 1000
	}
	if c.FeedCap == 0 {
		c.FeedCap = 10000
	}
	c.Database.SetDefaults()
	c.CCA.SetDefaults()
	c.Workflow.SetDefaults()
	c.ToolTimeouts.SetDefaults()
}

// DatabasePath returns the path to the engine's SQLite file, honoring
// fixed layout: <workspace>/<engine-dir>/chat.db.
func (c *EngineConfig) DatabasePath() string {
	if c.Database.Driver != "" && c.Database.Driver != "sqlite" {
		return c.Database.Database
	}
	return c.Workspace + string(os.PathSeparator) + c.EngineDir + string(os.PathSeparator) + "chat.db"
}

// Load reads an EngineConfig from a YAML file, applying .env overrides first
// (teacher pattern: v2/config/dotenv.go loads .env before flags/files are
// parsed so environment variables can reference secrets not checked in).
func Load(path string) (*EngineConfig, error) {
	_ = godotenv.Load() // best effort; absence of .env is not an error

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg EngineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.SetDefaults()
	return &cfg, nil
}

// Snapshot serializes the config to YAML for storage on a Session row.
func (c *EngineConfig) Snapshot() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal config snapshot: %w", err)
	}
	return string(data), nil
}

// FromSnapshot reconstructs an EngineConfig from a stored snapshot string.
func FromSnapshot(snapshot string) (*EngineConfig, error) {
	var cfg EngineConfig
	if err := yaml.Unmarshal([]byte(snapshot), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config snapshot: %w", err)
	}
	cfg.SetDefaults()
	return &cfg, nil
}
