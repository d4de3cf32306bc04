// Package config loads process configuration from YAML with environment
// overrides for deployment secrets. All components receive their settings
// explicitly from here; nothing reads the environment ambiently.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30m" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped standard-library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig describes the persistence backend. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LoggingConfig mirrors pkg/logger.LoggingConfig.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePrefix string `yaml:"file_prefix"`
}

// EngineConfig describes the external simulation engine.
type EngineConfig struct {
	ExecutablePath  string        `yaml:"executable_path"`
	ModelsDir       string        `yaml:"models_dir"`
	ResultsDir      string        `yaml:"results_dir"`
	ExecTimeout     Duration `yaml:"exec_timeout"`
	Workers         int      `yaml:"workers"`
	QueueSize       int      `yaml:"queue_size"`
	JanitorSchedule string   `yaml:"janitor_schedule"`
	StaleTaskAge    Duration `yaml:"stale_task_age"`
}

// AuthConfig describes token issuance.
type AuthConfig struct {
	JWTSecret string   `yaml:"jwt_secret"`
	TokenTTL  Duration `yaml:"token_ttl"`
}

// LLMConfig describes the conversational-AI providers.
type LLMConfig struct {
	DefaultModel string            `yaml:"default_model"`
	APIKeys      map[string]string `yaml:"api_keys"` // provider name -> key
}

// Config is the root configuration document.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Engine   EngineConfig   `yaml:"engine"`
	Auth     AuthConfig     `yaml:"auth"`
	LLM      LLMConfig      `yaml:"llm"`
}

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			Driver: "postgres",
		},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
		Engine: EngineConfig{
			ExecutablePath:  "/usr/local/bin/skyeye",
			ModelsDir:       "./models",
			ResultsDir:      "./simulation_results",
			ExecTimeout:     Duration(30 * time.Minute),
			Workers:         4,
			QueueSize:       64,
			JanitorSchedule: "@every 5m",
			StaleTaskAge:    Duration(2 * time.Hour),
		},
		Auth: AuthConfig{TokenTTL: Duration(8 * 24 * time.Hour)},
		LLM:  LLMConfig{DefaultModel: "gpt-4o-mini", APIKeys: map[string]string{}},
	}
}

// Load reads the configuration file named by SIMSYN_CONFIG (default
// config/config.yaml), falling back to defaults when the file is absent,
// then applies environment overrides.
func Load() (*Config, error) {
	path := os.Getenv("SIMSYN_CONFIG")
	if path == "" {
		path = "config/config.yaml"
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the configuration from a specific file. A missing file
// is not an error; defaults plus environment overrides are returned.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// fall through to env overrides
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("server port %d out of range", cfg.Server.Port)
	}
	if cfg.Engine.Workers <= 0 {
		cfg.Engine.Workers = 1
	}
	if cfg.Engine.QueueSize <= 0 {
		cfg.Engine.QueueSize = 16
	}
	return cfg, nil
}

// applyEnv overrides secrets and deployment-specific settings from the
// environment so they never have to live in the config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("SKYEYE_PATH"); v != "" {
		cfg.Engine.ExecutablePath = v
	}
	if v := os.Getenv("SKYEYE_MODELS_DIR"); v != "" {
		cfg.Engine.ModelsDir = v
	}
	if v := os.Getenv("SIMULATION_RESULTS_DIR"); v != "" {
		cfg.Engine.ResultsDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	for provider, env := range map[string]string{
		"openai":    "OPENAI_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
		"gemini":    "GOOGLE_API_KEY",
		"qwen":      "QWEN_API_KEY",
		"deepseek":  "DEEPSEEK_API_KEY",
	} {
		if v := os.Getenv(env); v != "" {
			if cfg.LLM.APIKeys == nil {
				cfg.LLM.APIKeys = map[string]string{}
			}
			cfg.LLM.APIKeys[provider] = v
		}
	}
}
