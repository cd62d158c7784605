// Package config handles runtime configuration and the .diagramforge
// directory structure. Every project that uses diagramforge gets a
// .diagramforge/ folder created in its root.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// WorkspaceDir is the name of the directory we create in each project.
const WorkspaceDir = ".diagramforge"

const configFile = "config.yaml"

// Environments supported by the pipeline. Policy rules and generated
// parameters key off these names.
var Environments = []string{"dev", "staging", "prod"}

const defaultConfigYAML = `# diagramforge configuration
version: 1

# Default deployment environment: dev, staging, or prod.
default_environment: dev

pipeline:
  # Stages allowed to run at once within a single pipeline run.
  max_parallel: 2
  # Stage executions allowed at once across concurrent runs.
  worker_limit: 4
  # Compliance check-fix-recheck rounds before giving up.
  compliance_max_iterations: 2

cache:
  # memory | sqlite. sqlite persists results across invocations.
  backend: memory
  # Entries kept before LRU eviction.
  capacity: 128

capability:
  # Command that launches the AI capability server (MCP over stdio).
  command: diagramforge-capabilities
  args: []
  # Per-call timeout and transient-failure retry budget.
  timeout_seconds: 45
  retries: 2

output:
  # Bundles land under .diagramforge/out unless --out overrides it.
  dir: out
`

// PipelineConfig tunes the orchestrator.
type PipelineConfig struct {
	MaxParallel             int `yaml:"max_parallel"`
	WorkerLimit             int `yaml:"worker_limit"`
	ComplianceMaxIterations int `yaml:"compliance_max_iterations"`
}

// CacheConfig selects and sizes the result cache.
type CacheConfig struct {
	Backend  string `yaml:"backend"`
	Capacity int    `yaml:"capacity"`
}

// CapabilityConfig describes how to reach the AI capability server.
type CapabilityConfig struct {
	Command        string   `yaml:"command"`
	Args           []string `yaml:"args,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Retries        int      `yaml:"retries"`
}

// Timeout returns the per-call timeout as a duration.
func (c CapabilityConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// OutputConfig controls where bundles land.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// ProjectConfig models .diagramforge/config.yaml.
type ProjectConfig struct {
	Version            int              `yaml:"version"`
	DefaultEnvironment string           `yaml:"default_environment"`
	Pipeline           PipelineConfig   `yaml:"pipeline"`
	Cache              CacheConfig      `yaml:"cache"`
	Capability         CapabilityConfig `yaml:"capability"`
	Output             OutputConfig     `yaml:"output"`
}

// Config holds the runtime configuration for diagramforge.
type Config struct {
	// ProjectDir is the directory the user ran diagramforge from.
	ProjectDir string

	// WorkspaceDir is ProjectDir/.diagramforge.
	WorkspaceDir string

	Project ProjectConfig
}

// InitWorkspace creates the .diagramforge directory structure in the given
// project directory and seeds config.yaml when missing.
//
// Structure created:
// .diagramforge/
// ├── policies/  <- editable policy rule documents
// ├── cache/     <- persistent result cache (sqlite backend)
// ├── logs/      <- pipeline run logs
// └── out/       <- generated bundles
func InitWorkspace(projectDir string) error {
	workspace := filepath.Join(projectDir, WorkspaceDir)
	dirs := []string{
		filepath.Join(workspace, "policies"),
		filepath.Join(workspace, "cache"),
		filepath.Join(workspace, "logs"),
		filepath.Join(workspace, "out"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return ensureConfigFile(filepath.Join(workspace, configFile))
}

// New loads the configuration for a project directory, falling back to
// defaults where config.yaml is absent or partial.
func New(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:   projectDir,
		WorkspaceDir: filepath.Join(projectDir, WorkspaceDir),
		Project:      defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	if err := cfg.Project.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values for obvious misconfiguration.
func (p ProjectConfig) Validate() error {
	if !ValidEnvironment(p.DefaultEnvironment) {
		return fmt.Errorf("config: unknown default environment %q", p.DefaultEnvironment)
	}
	switch p.Cache.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("config: unknown cache backend %q", p.Cache.Backend)
	}
	if p.Cache.Capacity <= 0 {
		return fmt.Errorf("config: cache capacity must be positive")
	}
	if p.Pipeline.ComplianceMaxIterations <= 0 {
		return fmt.Errorf("config: compliance_max_iterations must be positive")
	}
	return nil
}

// ValidEnvironment reports whether env names a supported environment.
func ValidEnvironment(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	for _, known := range Environments {
		if env == known {
			return true
		}
	}
	return false
}

// PoliciesDir returns the directory holding policy rule documents.
func (c *Config) PoliciesDir() string {
	return filepath.Join(c.WorkspaceDir, "policies")
}

// CacheDir returns the directory backing the sqlite cache.
func (c *Config) CacheDir() string {
	return filepath.Join(c.WorkspaceDir, "cache")
}

// CachePath returns the sqlite database file location.
func (c *Config) CachePath() string {
	return filepath.Join(c.CacheDir(), "results.db")
}

// LogsDir returns the directory holding run logs.
func (c *Config) LogsDir() string {
	return filepath.Join(c.WorkspaceDir, "logs")
}

// OutputDir returns the directory bundles are written to.
func (c *Config) OutputDir() string {
	dir := c.Project.Output.Dir
	if dir == "" {
		dir = "out"
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.WorkspaceDir, dir)
}

// ConfigPath returns the on-disk location of config.yaml.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.WorkspaceDir, configFile)
}

func (c *Config) loadProjectConfig() error {
	path := c.ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c.Project); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyDefaults(&c.Project)
	return nil
}

func defaultProjectConfig() ProjectConfig {
	var cfg ProjectConfig
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), &cfg); err != nil {
		// The embedded document is fixed at build time.
		panic(fmt.Sprintf("config: parse built-in defaults: %v", err))
	}
	return cfg
}

func applyDefaults(p *ProjectConfig) {
	defaults := defaultProjectConfig()
	if p.DefaultEnvironment == "" {
		p.DefaultEnvironment = defaults.DefaultEnvironment
	}
	if p.Pipeline.MaxParallel == 0 {
		p.Pipeline.MaxParallel = defaults.Pipeline.MaxParallel
	}
	if p.Pipeline.WorkerLimit == 0 {
		p.Pipeline.WorkerLimit = defaults.Pipeline.WorkerLimit
	}
	if p.Pipeline.ComplianceMaxIterations == 0 {
		p.Pipeline.ComplianceMaxIterations = defaults.Pipeline.ComplianceMaxIterations
	}
	if p.Cache.Backend == "" {
		p.Cache.Backend = defaults.Cache.Backend
	}
	if p.Cache.Capacity == 0 {
		p.Cache.Capacity = defaults.Cache.Capacity
	}
	if p.Capability.Command == "" {
		p.Capability.Command = defaults.Capability.Command
	}
	if p.Capability.TimeoutSeconds == 0 {
		p.Capability.TimeoutSeconds = defaults.Capability.TimeoutSeconds
	}
	if p.Capability.Retries == 0 {
		p.Capability.Retries = defaults.Capability.Retries
	}
	if p.Output.Dir == "" {
		p.Output.Dir = defaults.Output.Dir
	}
}

func ensureConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
