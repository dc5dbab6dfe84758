// Package config loads the application's YAML configuration. A user
// file under ~/.fintalk is overlaid by a project file in the working
// directory; unset fields keep package defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fintalk/fintalk/agentloop"
)

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Model struct {
	Provider    string   `yaml:"provider"`
	Name        string   `yaml:"name"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
}

type Engine struct {
	MaxIterations    int    `yaml:"max_iterations"`
	ContextThreshold int    `yaml:"context_threshold"`
	KeepRecent       int    `yaml:"keep_recent"`
	StallWindow      int    `yaml:"stall_window"`
	HistoryLimit     int    `yaml:"history_limit"`
	Streaming        *bool  `yaml:"streaming"`
	FallbackAnswer   string `yaml:"fallback_answer"`
	TraceDir         string `yaml:"trace_dir"`
	SystemPrompt     string `yaml:"system_prompt"`
	ApprovalTimeout  string `yaml:"approval_timeout"`
}

type Tools struct {
	Trusted      []string       `yaml:"trusted"`
	Budgets      map[string]int `yaml:"budgets"`
	OutputLimits map[string]int `yaml:"output_limits"`
	LineLimits   map[string]int `yaml:"line_limits"`
	MCPServers   []MCPServer    `yaml:"mcp_servers"`
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type MarketData struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type Telegram struct {
	TokenEnv     string   `yaml:"token_env"`
	AllowedChats []string `yaml:"allowed_chats"`
}

type Digest struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"`
	Query    string `yaml:"query"`
	Chat     string `yaml:"chat"`
}

type Config struct {
	Logging     Logging    `yaml:"logging"`
	Model       Model      `yaml:"model"`
	Engine      Engine     `yaml:"engine"`
	Tools       Tools      `yaml:"tools"`
	MarketData  MarketData `yaml:"marketdata"`
	Telegram    Telegram   `yaml:"telegram"`
	Digests     []Digest   `yaml:"digests"`
	SessionsDir string     `yaml:"sessions_dir"`
}

// Default returns the configuration used when no file sets a field.
func Default() *Config {
	return &Config{
		Logging:     Logging{Level: "info", Format: "console"},
		MarketData:  MarketData{APIKeyEnv: "FINTALK_MARKETDATA_KEY"},
		Telegram:    Telegram{TokenEnv: "TELEGRAM_BOT_TOKEN"},
		SessionsDir: defaultSessionsDir(),
	}
}

func defaultSessionsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".fintalk", "sessions")
	}
	return filepath.Join(home, ".fintalk", "sessions")
}

// Load reads configuration from an explicit path, or, when path is
// empty, from ~/.fintalk/config.yaml overlaid by ./fintalk.yaml.
// Missing overlay files are fine.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
		return cfg, cfg.validate()
	}

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, ".fintalk", "config.yaml")
		if _, err := os.Stat(userPath); err == nil {
			if err := loadFromFile(userPath, cfg); err != nil {
				return nil, fmt.Errorf("loading user config: %w", err)
			}
		}
	}
	projectPath := "fintalk.yaml"
	if _, err := os.Stat(projectPath); err == nil {
		if err := loadFromFile(projectPath, cfg); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}
	return cfg, cfg.validate()
}

// loadFromFile overlays one file onto cfg. Unmarshal only overwrites
// fields present in the YAML, which is what gives the project file
// precedence over the user file.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) validate() error {
	if c.Engine.ApprovalTimeout != "" {
		if _, err := time.ParseDuration(c.Engine.ApprovalTimeout); err != nil {
			return fmt.Errorf("engine.approval_timeout: %w", err)
		}
	}
	for _, d := range c.Digests {
		if d.Schedule == "" || d.Query == "" || d.Chat == "" {
			return fmt.Errorf("digest %q needs schedule, query and chat", d.Name)
		}
	}
	return nil
}

// AgentConfig maps the model, engine and tools sections onto the
// engine's defaults. Zero values leave the defaults in place.
func (c *Config) AgentConfig() agentloop.Config {
	out := agentloop.DefaultConfig()
	out.Provider = c.Model.Provider
	out.Model = c.Model.Name
	out.MaxTokens = c.Model.MaxTokens
	out.Temperature = c.Model.Temperature
	out.SystemPrompt = c.Engine.SystemPrompt
	out.TraceDir = c.Engine.TraceDir

	if c.Engine.MaxIterations > 0 {
		out.MaxIterations = c.Engine.MaxIterations
	}
	if c.Engine.ContextThreshold > 0 {
		out.ContextThreshold = c.Engine.ContextThreshold
	}
	if c.Engine.KeepRecent > 0 {
		out.KeepRecent = c.Engine.KeepRecent
	}
	if c.Engine.StallWindow > 0 {
		out.StallWindow = c.Engine.StallWindow
	}
	if c.Engine.HistoryLimit > 0 {
		out.HistoryLimit = c.Engine.HistoryLimit
	}
	if c.Engine.Streaming != nil {
		out.Streaming = *c.Engine.Streaming
	}
	if c.Engine.FallbackAnswer != "" {
		out.FallbackAnswer = c.Engine.FallbackAnswer
	}
	if c.Engine.ApprovalTimeout != "" {
		if d, err := time.ParseDuration(c.Engine.ApprovalTimeout); err == nil {
			out.ApprovalTimeout = d
		}
	}

	out.TrustedTools = c.Tools.Trusted
	out.ToolBudgets = c.Tools.Budgets
	out.ToolOutputLimits = c.Tools.OutputLimits
	out.ToolLineLimits = c.Tools.LineLimits
	return out
}

// APIKey resolves the market data API key from the configured
// environment variable.
func (m MarketData) APIKey() string {
	if m.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(m.APIKeyEnv)
}

// Token resolves the bot token from the configured environment
// variable.
func (t Telegram) Token() string {
	if t.TokenEnv == "" {
		return ""
	}
	return os.Getenv(t.TokenEnv)
}
