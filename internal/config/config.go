package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultModel           = "gpt-4o-mini"
	DefaultTemperature     = 0.2
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8080
	DefaultMaxIterations   = 20
	DefaultAgentTimeoutSec = 120
	DefaultCanvasTimeout   = 30
)

type Config struct {
	Server ServerConfig `json:"server"`
	LLM    LLMConfig    `json:"llm"`
	Canvas CanvasConfig `json:"canvas"`
	Agent  AgentConfig  `json:"agent"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type LLMConfig struct {
	BaseURL     string  `json:"baseUrl"`
	APIKey      string  `json:"apiKey"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

type CanvasConfig struct {
	BaseURL string `json:"baseUrl"`
}

type AgentConfig struct {
	MaxToolIterations int  `json:"maxToolIterations"`
	TimeoutSeconds    int  `json:"timeoutSeconds"`
	Verbose           bool `json:"verbose"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		LLM: LLMConfig{
			Model:       DefaultModel,
			Temperature: DefaultTemperature,
		},
		Canvas: CanvasConfig{},
		Agent: AgentConfig{
			MaxToolIterations: DefaultMaxIterations,
			TimeoutSeconds:    DefaultAgentTimeoutSec,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".canvas-agent")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// LoadConfig layers configuration: defaults, then config.json if present,
// then a .env file in the working directory, then process environment.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Missing .env is the normal case outside container deployments.
	_ = godotenv.Load()

	if url := os.Getenv("LLM_BASE_URL"); url != "" {
		cfg.LLM.BaseURL = url
	}
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		cfg.LLM.Model = model
	}
	if url := os.Getenv("CANVAS_BASE_URL"); url != "" {
		cfg.Canvas.BaseURL = url
	}
	if v := os.Getenv("AGENT_VERBOSE"); v != "" {
		if parsed, ok := ParseBool(v); ok {
			cfg.Agent.Verbose = parsed
		}
	}
	if host := os.Getenv("CANVAS_AGENT_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("CANVAS_AGENT_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = parsed
		}
	}
	if n := os.Getenv("AGENT_MAX_ITERATIONS"); n != "" {
		if parsed, err := strconv.Atoi(n); err == nil && parsed > 0 {
			cfg.Agent.MaxToolIterations = parsed
		}
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModel
	}
	if cfg.Agent.MaxToolIterations <= 0 {
		cfg.Agent.MaxToolIterations = DefaultMaxIterations
	}
	if cfg.Agent.TimeoutSeconds <= 0 {
		cfg.Agent.TimeoutSeconds = DefaultAgentTimeoutSec
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}

// ParseBool accepts the spellings the frontend and compose files use.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}
