package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is consulted when no explicit path is given.
const DefaultConfigPath = "bridge.yaml"

// Load resolves the configuration: built-in defaults, then the YAML file at
// path (skipped when absent), then environment variables. The result is
// validated before being returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		slog.Info("No config file found, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		var overlay Config
		if err := yaml.Unmarshal(ExpandEnv(data), &overlay); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if err := mergo.Merge(cfg, &overlay, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge config file: %w", err)
		}
		slog.Info("Loaded config file", "path", path)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides individual fields from the environment. Env wins over
// both the defaults and the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("BRIDGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		} else {
			slog.Warn("Ignoring non-numeric BRIDGE_PORT", "value", v)
		}
	}
	if v := os.Getenv("TRUST_PROXY"); v != "" {
		cfg.Server.TrustProxy = envBool(v)
	}
	if v := os.Getenv("MCP_USE_HTTPS"); v != "" {
		cfg.Server.UseHTTPS = envBool(v)
	}
	if v := os.Getenv("MCP_SSL_KEY_PATH"); v != "" {
		cfg.Server.SSLKeyPath = v
	}
	if v := os.Getenv("MCP_SSL_CERT_PATH"); v != "" {
		cfg.Server.SSLCertPath = v
	}
	if v := os.Getenv("MCP_SSL_CA_PATH"); v != "" {
		cfg.Server.SSLCAPath = v
	}
	if v := os.Getenv("MCP_SSL_PASSPHRASE"); v != "" {
		cfg.Server.SSLPassphrase = v
	}
	if v := os.Getenv("GITHUB_CLIENT_ID"); v != "" {
		cfg.GitHub.ClientID = v
	}
	if v := os.Getenv("GITHUB_CLIENT_SECRET"); v != "" {
		cfg.GitHub.ClientSecret = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
}

func envBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}
