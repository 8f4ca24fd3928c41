// Package config loads the pipeline configuration from a YAML file, with
// environment overrides and .env support for secrets such as webhook URLs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the variable that overrides the config file location.
const EnvConfigPath = "FM_CONFIG_PATH"

// DefaultPath is used when EnvConfigPath is unset.
const DefaultPath = "config.yaml"

// ErrNotFound is returned when the config file does not exist.
var ErrNotFound = errors.New("config: file not found")

// Config is the top-level pipeline configuration.
type Config struct {
	DataDir       string                  `yaml:"data_dir"`
	Sources       Sources                 `yaml:"sources"`
	ContentChecks map[string]ContentCheck `yaml:"content_checks"`
	HTTP          HTTP                    `yaml:"http"`
	Embeddings    Embeddings              `yaml:"embeddings"`
	Coverage      Coverage                `yaml:"coverage"`
	Report        Report                  `yaml:"report"`
	Dashboard     Dashboard               `yaml:"dashboard"`
	MonthlyReport MonthlyReport           `yaml:"monthly_report"`
	Notifications Notifications           `yaml:"notifications"`
	History       History                 `yaml:"history"`
	Server        Server                  `yaml:"server"`
}

type Sources struct {
	Changelog     Changelog     `yaml:"changelog"`
	Roadmap       Roadmap       `yaml:"roadmap"`
	GraphQLSchema GraphQLSchema `yaml:"graphql_schema"`
}

type Changelog struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	MaxEntries int    `yaml:"max_entries"`
}

// Roadmap.URL is the GitHub issues API endpoint of the roadmap repository.
type Roadmap struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type GraphQLSchema struct {
	Enabled       bool   `yaml:"enabled"`
	DocsURL       string `yaml:"docs_url"`
	SnapshotDir   string `yaml:"snapshot_dir"`
	MaxPatchBytes int    `yaml:"max_patch_bytes"`
}

// ContentCheck watches one URL. Contains, when set, must appear in the body.
type ContentCheck struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"`
	DisplayName string `yaml:"display_name"`
	Contains    string `yaml:"contains"`
}

type HTTP struct {
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries"`
	BackoffMin time.Duration `yaml:"backoff_min"`
	BackoffMax time.Duration `yaml:"backoff_max"`
	UserAgent  string        `yaml:"user_agent"`
}

type Embeddings struct {
	Provider   string `yaml:"provider"`
	Dimensions int    `yaml:"dimensions"`
}

type Coverage struct {
	MinThreshold     float64 `yaml:"min_threshold"`
	WarningThreshold float64 `yaml:"warning_threshold"`
}

type Report struct {
	OutputDir string   `yaml:"output_dir"`
	Formats   []string `yaml:"formats"`
}

type Dashboard struct {
	OutputDir     string `yaml:"output_dir"`
	RetentionDays int    `yaml:"retention_days"`
	DeltaTop      int    `yaml:"delta_top"`
}

type MonthlyReport struct {
	OutputDir string `yaml:"output_dir"`
	TopN      int    `yaml:"top_n"`
}

type Notifications struct {
	Slack Channel `yaml:"slack"`
	Teams Channel `yaml:"teams"`
}

// Channel is a webhook destination. The URL itself is read from the
// environment variable named by WebhookURLEnv.
type Channel struct {
	Enabled       bool   `yaml:"enabled"`
	WebhookURLEnv string `yaml:"webhook_url_env"`
}

type History struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Root string `yaml:"root"`
}

// Path resolves the config file location from the environment.
func Path() string {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return DefaultPath
}

// LoadEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// LoadFile reads and validates a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FM_DATA_DIR"); v != "" {
		c.DataDir = v
	}
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Sources.Changelog.MaxEntries <= 0 {
		c.Sources.Changelog.MaxEntries = 20
	}
	if c.Sources.Roadmap.URL == "" {
		c.Sources.Roadmap.URL = "https://api.github.com/repos/github/roadmap/issues?state=all&per_page=10"
	}
	if c.Sources.GraphQLSchema.SnapshotDir == "" {
		c.Sources.GraphQLSchema.SnapshotDir = filepath.Join(c.DataDir, "graphql")
	}
	if c.Sources.GraphQLSchema.MaxPatchBytes == 0 {
		c.Sources.GraphQLSchema.MaxPatchBytes = 20_000_000
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = 30 * time.Second
	}
	if c.HTTP.Retries <= 0 {
		c.HTTP.Retries = 3
	}
	if c.HTTP.BackoffMin <= 0 {
		c.HTTP.BackoffMin = 500 * time.Millisecond
	}
	if c.HTTP.BackoffMax <= 0 {
		c.HTTP.BackoffMax = 8 * time.Second
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = "feature-monitor/1.0"
	}
	if c.Embeddings.Provider == "" {
		c.Embeddings.Provider = "mock"
	}
	if c.Embeddings.Dimensions <= 0 {
		c.Embeddings.Dimensions = 1536
	}
	if c.Coverage.MinThreshold == 0 {
		c.Coverage.MinThreshold = 0.7
	}
	if c.Coverage.WarningThreshold == 0 {
		c.Coverage.WarningThreshold = 0.85
	}
	if c.Report.OutputDir == "" {
		c.Report.OutputDir = filepath.Join(c.DataDir, "reports")
	}
	if len(c.Report.Formats) == 0 {
		c.Report.Formats = []string{"json", "markdown"}
	}
	if c.Dashboard.OutputDir == "" {
		c.Dashboard.OutputDir = filepath.Join(c.DataDir, "dashboard")
	}
	if c.Dashboard.RetentionDays <= 0 {
		c.Dashboard.RetentionDays = 90
	}
	if c.Dashboard.DeltaTop <= 0 {
		c.Dashboard.DeltaTop = 8
	}
	if c.MonthlyReport.OutputDir == "" {
		c.MonthlyReport.OutputDir = filepath.Join(c.Report.OutputDir, "monthly")
	}
	if c.MonthlyReport.TopN <= 0 {
		c.MonthlyReport.TopN = 10
	}
	if c.Notifications.Slack.WebhookURLEnv == "" {
		c.Notifications.Slack.WebhookURLEnv = "SLACK_WEBHOOK_URL"
	}
	if c.Notifications.Teams.WebhookURLEnv == "" {
		c.Notifications.Teams.WebhookURLEnv = "TEAMS_WEBHOOK_URL"
	}
	if c.History.Path == "" {
		c.History.Path = filepath.Join(c.DataDir, "history.db")
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.Root == "" {
		c.Server.Root = "docs"
	}
}

func (c *Config) validate() error {
	var problems []string
	if c.Coverage.MinThreshold < 0 || c.Coverage.MinThreshold > 1 {
		problems = append(problems, fmt.Sprintf("coverage.min_threshold must be within [0,1], got %v", c.Coverage.MinThreshold))
	}
	if c.Coverage.WarningThreshold < c.Coverage.MinThreshold || c.Coverage.WarningThreshold > 1 {
		problems = append(problems, fmt.Sprintf("coverage.warning_threshold must be within [min_threshold,1], got %v", c.Coverage.WarningThreshold))
	}
	for _, f := range c.Report.Formats {
		if f != "json" && f != "markdown" {
			problems = append(problems, fmt.Sprintf("report.formats: unknown format %q", f))
		}
	}
	if c.Embeddings.Provider != "mock" {
		problems = append(problems, fmt.Sprintf("embeddings.provider: only \"mock\" is supported, got %q", c.Embeddings.Provider))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port out of range: %d", c.Server.Port))
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New("config: " + strings.Join(problems, "; "))
}

// Derived file locations.

func (c *Config) FeaturesPath() string { return filepath.Join(c.DataDir, "features.json") }
func (c *Config) FeaturesArchiveDir() string { return filepath.Join(c.DataDir, "features") }
func (c *Config) EmbeddedFeaturesPath() string { return filepath.Join(c.DataDir, "embeddings", "features_with_embeddings.json") }
func (c *Config) IndexPath() string { return filepath.Join(c.DataDir, "feature_index.json") }
func (c *Config) ContentChecksDir() string { return filepath.Join(c.DataDir, "content_checks") }
func (c *Config) CoveragePath() string { return filepath.Join(c.Report.OutputDir, "coverage.json") }
