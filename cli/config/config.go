// Package config loads the dugout CLI configuration from dugout.yaml,
// overridden by DUGOUT_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default config file name.
const ConfigFileName = "dugout.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DUGOUT_"

// Database drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the CLI configuration.
type Config struct {
	Version  string         `yaml:"version"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DB_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
	Undo     UndoConfig     `yaml:"undo" envPrefix:"UNDO_"`
	HTTP     HTTPConfig     `yaml:"http" envPrefix:"HTTP_"`
	Metrics  MetricsConfig  `yaml:"metrics" envPrefix:"METRICS_"`
	Tracing  TracingConfig  `yaml:"tracing" envPrefix:"TRACING_"`
	Notify   NotifyConfig   `yaml:"notify" envPrefix:"NOTIFY_"`
}

// DatabaseConfig selects and locates the store.
type DatabaseConfig struct {
	// Driver is memory, sqlite or postgres.
	Driver string `yaml:"driver" env:"DRIVER"`

	// URL is the postgres connection string.
	URL string `yaml:"url,omitempty" env:"URL"`

	// Schema is the postgres schema.
	Schema string `yaml:"schema" env:"SCHEMA"`

	// Path is the sqlite database file.
	Path string `yaml:"path" env:"PATH"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// UndoConfig holds the undo policy.
type UndoConfig struct {
	AllowAfterCompletion bool `yaml:"allow_after_completion" env:"ALLOW_AFTER_COMPLETION"`
}

// HTTPConfig configures `dugout serve`.
type HTTPConfig struct {
	Addr           string   `yaml:"addr" env:"ADDR"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// MetricsConfig toggles the Prometheus collectors and /metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

// TracingConfig toggles OpenTelemetry spans, exported as JSON to Output
// (stdout, stderr or a file path).
type TracingConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Output  string `yaml:"output" env:"OUTPUT"`
}

// NotifyConfig configures outcome notifications.
type NotifyConfig struct {
	Routes  []RouteConfig `yaml:"routes,omitempty"`
	Webhook WebhookConfig `yaml:"webhook" envPrefix:"WEBHOOK_"`
	Kafka   KafkaConfig   `yaml:"kafka" envPrefix:"KAFKA_"`
	SNS     SNSConfig     `yaml:"sns" envPrefix:"SNS_"`
}

// RouteConfig sends matching outcomes to Destination, for example
// "webhook:https://host/hook", "kafka:scores" or "sns:arn:...".
type RouteConfig struct {
	Destination string   `yaml:"destination"`
	ScoreOnly   bool     `yaml:"score_only,omitempty"`
	Actions     []string `yaml:"actions,omitempty"`
}

// WebhookConfig configures the webhook publisher.
type WebhookConfig struct {
	Timeout time.Duration     `yaml:"timeout" env:"TIMEOUT"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// KafkaConfig configures the kafka publisher.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers,omitempty" env:"BROKERS" envSeparator:","`
}

// SNSConfig configures the SNS publisher.
type SNSConfig struct {
	Region string `yaml:"region,omitempty" env:"REGION"`
	FIFO   bool   `yaml:"fifo,omitempty" env:"FIFO"`
}

// DefaultConfig returns the defaults: an sqlite file in the working
// directory, info logs and undo disabled after a match completes.
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Schema: "dugout",
			Path:   "dugout.db",
		},
		Log:  LogConfig{Level: "info", Format: "console"},
		HTTP: HTTPConfig{Addr: ":8080"},
		Tracing: TracingConfig{
			Output: "stderr",
		},
		Notify: NotifyConfig{
			Webhook: WebhookConfig{Timeout: 10 * time.Second},
			Kafka:   KafkaConfig{Brokers: []string{"localhost:9092"}},
		},
	}
}

// Load reads dir/dugout.yaml.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads a config file over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve finds dugout.yaml from dir upwards, falling back to the defaults
// when there is none, and applies environment overrides.
func Resolve(dir string) (*Config, string, error) {
	root, cfg, err := FindConfig(dir)
	if os.IsNotExist(err) {
		cfg, root, err = DefaultConfig(), "", nil
	}
	if err != nil {
		return nil, "", err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, "", err
	}
	return cfg, root, nil
}

// ApplyEnv overrides cfg with DUGOUT_* variables. Unset variables leave
// the loaded values alone.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save writes the config to dir/dugout.yaml.
func (c *Config) Save(dir string) error {
	return c.SaveFile(filepath.Join(dir, ConfigFileName))
}

// SaveFile writes the config to path.
func (c *Config) SaveFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Exists reports whether dir holds a config file.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindConfig searches for a config file from dir upwards.
func FindConfig(dir string) (string, *Config, error) {
	current := dir
	for {
		path := filepath.Join(current, ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadFile(path)
			if err != nil {
				return "", nil, err
			}
			return current, cfg, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", nil, os.ErrNotExist
		}
		current = parent
	}
}

// Validate returns every problem found.
func (c *Config) Validate() []string {
	var problems []string

	switch c.Database.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Database.URL == "" {
			problems = append(problems, "database.url is required for postgres driver")
		}
	case "":
		problems = append(problems, "database.driver is required")
	default:
		problems = append(problems, "database.driver must be 'memory', 'sqlite' or 'postgres'")
	}
	if c.Database.Driver == DriverSQLite && strings.TrimSpace(c.Database.Path) == "" {
		problems = append(problems, "database.path is required for sqlite driver")
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, "log.level must be debug, info, warn or error")
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		problems = append(problems, "log.format must be 'json' or 'console'")
	}

	for i, r := range c.Notify.Routes {
		prefix, _, ok := strings.Cut(r.Destination, ":")
		if !ok {
			problems = append(problems, fmt.Sprintf("notify.routes[%d].destination must look like <kind>:<target>", i))
			continue
		}
		switch prefix {
		case "webhook", "kafka":
		case "sns":
			if c.Notify.SNS.Region == "" {
				problems = append(problems, "notify.sns.region is required for sns routes")
			}
		default:
			problems = append(problems, fmt.Sprintf("notify.routes[%d]: unknown destination kind %q", i, prefix))
		}
	}
	return problems
}

// GenerateYAML renders cfg as a commented config file.
func GenerateYAML(cfg *Config) string {
	return `# dugout configuration
# Every value can be overridden with a DUGOUT_* environment variable,
# for example DUGOUT_DB_DRIVER=postgres or DUGOUT_LOG_LEVEL=debug.

version: "1"

database:
  # memory, sqlite or postgres
  driver: "` + cfg.Database.Driver + `"
  # sqlite file
  path: "` + cfg.Database.Path + `"
  # postgres only
  url: "` + databaseURL(cfg) + `"
  schema: "` + cfg.Database.Schema + `"

log:
  level: "` + cfg.Log.Level + `"
  format: "` + cfg.Log.Format + `"

undo:
  # allow undo and redo after a match is completed
  allow_after_completion: ` + fmt.Sprint(cfg.Undo.AllowAfterCompletion) + `

http:
  addr: "` + cfg.HTTP.Addr + `"

metrics:
  enabled: ` + fmt.Sprint(cfg.Metrics.Enabled) + `

tracing:
  enabled: ` + fmt.Sprint(cfg.Tracing.Enabled) + `
  output: "` + cfg.Tracing.Output + `"

notify:
  # routes:
  #   - destination: "webhook:https://example.com/score"
  #     score_only: true
  #   - destination: "kafka:match-events"
  #     actions: [AT_BAT, GAME_END]
  kafka:
    brokers: [` + strings.Join(quoteAll(cfg.Notify.Kafka.Brokers), ", ") + `]
`
}

func databaseURL(cfg *Config) string {
	if cfg.Database.URL != "" {
		return cfg.Database.URL
	}
	return "${DATABASE_URL}"
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
