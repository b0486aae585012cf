// Package config layers the bridge configuration: built-in defaults, then
// an optional bridge.yaml, then environment variables. Later layers win.
package config

import (
	"fmt"
	"time"

	"github.com/graphweave/bridge/pkg/scheduler"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port       int  `yaml:"port"`
	TrustProxy bool `yaml:"trust_proxy"`

	UseHTTPS      bool   `yaml:"use_https"`
	SSLKeyPath    string `yaml:"ssl_key_path"`
	SSLCertPath   string `yaml:"ssl_cert_path"`
	SSLCAPath     string `yaml:"ssl_ca_path"`
	SSLPassphrase string `yaml:"ssl_passphrase"`
}

// GitHubConfig enables the optional OAuth token exchange endpoint. Both
// fields must be set for the endpoint to be registered.
type GitHubConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Defaults holds tunables the pipeline reads at runtime.
type Defaults struct {
	// FuzzyMatchThreshold is the minimum bigram similarity for prototype
	// deduplication. Values are in (0, 1].
	FuzzyMatchThreshold float64 `yaml:"fuzzy_match_threshold"`

	// SemanticSearchEndpoint backs the semantic_search tool. Empty disables
	// the tool with a structured error payload.
	SemanticSearchEndpoint string `yaml:"semantic_search_endpoint"`
}

// QueueConfig holds lease-queue tunables.
type QueueConfig struct {
	// LeaseTimeout bounds how long a pulled record may stay in flight
	// before redelivery.
	LeaseTimeout Duration `yaml:"lease_timeout"`
}

// SchedulerConfig is the YAML shape of the scheduler settings. Build
// converts it to the scheduler's own config type.
type SchedulerConfig struct {
	TickInterval Duration          `yaml:"tick_interval"`
	MaxPerTick   scheduler.Budgets `yaml:"max_per_tick"`
	Stages       scheduler.Enabled `yaml:"stages"`
}

// Build returns the runtime scheduler configuration.
func (c SchedulerConfig) Build() scheduler.Config {
	return scheduler.Config{
		TickInterval: c.TickInterval.Std(),
		MaxPerTick:   c.MaxPerTick,
		Stages:       c.Stages,
	}
}

// Config is the resolved bridge configuration.
type Config struct {
	Server      ServerConfig    `yaml:"server"`
	GitHub      GitHubConfig    `yaml:"github"`
	DatabaseURL string          `yaml:"database_url"`
	Defaults    Defaults        `yaml:"defaults"`
	Queue       QueueConfig     `yaml:"queue"`
	Scheduler   SchedulerConfig `yaml:"scheduler"`
}

// DefaultConfig returns the built-in layer.
func DefaultConfig() *Config {
	sched := scheduler.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Port: 3001,
		},
		Defaults: Defaults{
			FuzzyMatchThreshold: 0.80,
		},
		Queue: QueueConfig{
			LeaseTimeout: Duration(2 * time.Minute),
		},
		Scheduler: SchedulerConfig{
			TickInterval: Duration(sched.TickInterval),
			MaxPerTick:   sched.MaxPerTick,
			Stages:       sched.Stages,
		},
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if t := c.Defaults.FuzzyMatchThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("fuzzy match threshold %v must be in (0, 1]", t)
	}
	if c.Queue.LeaseTimeout.Std() <= 0 {
		return fmt.Errorf("queue lease timeout must be positive, got %v", c.Queue.LeaseTimeout.Std())
	}
	if c.Scheduler.TickInterval.Std() <= 0 {
		return fmt.Errorf("scheduler tick interval must be positive, got %v", c.Scheduler.TickInterval.Std())
	}
	if c.Server.UseHTTPS && (c.Server.SSLKeyPath == "" || c.Server.SSLCertPath == "") {
		return fmt.Errorf("HTTPS enabled but ssl_key_path or ssl_cert_path is empty")
	}
	return nil
}
