// Package config loads and manages phonectl configuration.
// Configuration source priority (highest to lowest):
// 1. CLI flags (applied by cmd)
// 2. Environment variables (LLM_API_KEY, LLM_BASE_URL, LLM_MODEL, PHONE_AGENT_DEVICE_ID, ...)
// 3. .env in the working directory
// 4. Config file path specified via --config flag, or ~/.config/phonectl/config.yaml
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// KnownProviderBaseURLs maps OpenAI-compatible provider names to base URLs.
var KnownProviderBaseURLs = map[string]string{
	"local":      "http://localhost:8000/v1",
	"autoglm":    "https://open.bigmodel.cn/api/paas/v4",
	"modelscope": "https://api-inference.modelscope.cn/v1",
	"openai":     "https://api.openai.com/v1",
	"qwen":       "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"doubao":     "https://ark.cn-beijing.volces.com/api/v3",
}

// KnownProviderModels holds the default model per provider.
var KnownProviderModels = map[string]string{
	"local":      "autoglm-phone-9b",
	"autoglm":    "autoglm-phone",
	"modelscope": "ZhipuAI/AutoGLM-Phone-9B",
	"openai":     "gpt-4o",
	"anthropic":  "claude-sonnet-4-20250514",
}

// ProviderConfig holds configuration for a single provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// SamplingConfig holds model sampling parameters.
type SamplingConfig struct {
	// Temperature 0.0 is deterministic.
	Temperature      float64 `yaml:"temperature"`
	MaxTokens        int     `yaml:"max_tokens"`
	TopP             float64 `yaml:"top_p"`
	FrequencyPenalty float64 `yaml:"frequency_penalty"`
}

// AgentConfig holds session loop settings.
type AgentConfig struct {
	// MaxSteps is the step budget per task.
	MaxSteps int `yaml:"max_steps"`

	// DeviceID selects the adb serial; empty = the single attached device.
	DeviceID string `yaml:"device_id"`

	// Lang selects the built-in system prompt: "cn" or "en".
	Lang string `yaml:"lang"`

	// SystemPrompt replaces the built-in system prompt when set.
	SystemPrompt string `yaml:"system_prompt"`

	Verbose bool `yaml:"verbose"`

	// LoopWarnThreshold / LoopStopThreshold: consecutive identical actions
	// before a hint is injected / the session fails. 0 disables.
	LoopWarnThreshold int `yaml:"loop_warn_threshold"`
	LoopStopThreshold int `yaml:"loop_stop_threshold"`

	// ActionTimeout bounds one device action.
	ActionTimeout time.Duration `yaml:"action_timeout"`
}

// DeviceConfig holds adb transport settings.
type DeviceConfig struct {
	// ADBPath is the adb binary; default "adb" from PATH.
	ADBPath string `yaml:"adb_path"`

	// Settle is the pause after each input event so the UI can react.
	Settle time.Duration `yaml:"settle"`

	// ScreenshotMaxWidth downscales screenshots sent to the model. 0 = no resize.
	ScreenshotMaxWidth int `yaml:"screenshot_max_width"`

	// Apps adds or overrides app name → package mappings.
	Apps map[string]string `yaml:"apps"`
}

// PermissionConfig holds escalation settings.
type PermissionConfig struct {
	// Mode: "interactive" (default) | "auto-approve" | "deny"
	Mode string `yaml:"mode"`

	// SensitiveKeywords mark purchase/payment-like actions that need confirmation.
	SensitiveKeywords []string `yaml:"sensitive_keywords"`

	// DeniedApps are never launched.
	DeniedApps []string `yaml:"denied_apps"`

	// DeniedActions are never applied (e.g. ["Call_API"]).
	DeniedActions []string `yaml:"denied_actions"`

	// TakeoverTimeout fails a manual step that takes longer. 0 = wait forever.
	TakeoverTimeout time.Duration `yaml:"takeover_timeout"`
}

// RetryConfig bounds model backend retries.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// StoreConfig controls session persistence.
type StoreConfig struct {
	// Path of the sqlite database; empty = ~/.local/share/phonectl/sessions.db.
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// EventLogConfig controls the per-session JSONL event log.
type EventLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Config is the complete phonectl configuration.
type Config struct {
	// Provider is the active provider name ("local", "autoglm", "anthropic", ...).
	Provider string `yaml:"provider"`

	// Model overrides the provider default model.
	Model string `yaml:"model"`

	Providers   map[string]*ProviderConfig `yaml:"providers"`
	Sampling    SamplingConfig             `yaml:"sampling"`
	Agent       AgentConfig                `yaml:"agent"`
	Device      DeviceConfig               `yaml:"device"`
	Permissions PermissionConfig           `yaml:"permissions"`
	Retry       RetryConfig                `yaml:"retry"`
	Store       StoreConfig                `yaml:"store"`
	EventLog    EventLogConfig             `yaml:"event_log"`
}

// DefaultSensitiveKeywords covers purchase and payment flows.
var DefaultSensitiveKeywords = []string{
	"pay", "payment", "purchase", "checkout", "place order", "buy now",
	"支付", "付款", "购买", "下单", "结算", "转账",
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:  "local",
		Providers: make(map[string]*ProviderConfig),
		Sampling: SamplingConfig{
			Temperature:      0.0,
			MaxTokens:        3000,
			TopP:             0.85,
			FrequencyPenalty: 0.2,
		},
		Agent: AgentConfig{
			MaxSteps:          100,
			Lang:              "cn",
			Verbose:           true,
			LoopWarnThreshold: 3,
			LoopStopThreshold: 8,
			ActionTimeout:     30 * time.Second,
		},
		Device: DeviceConfig{
			ADBPath:            "adb",
			Settle:             500 * time.Millisecond,
			ScreenshotMaxWidth: 1080,
		},
		Permissions: PermissionConfig{
			Mode:              "interactive",
			SensitiveKeywords: append([]string(nil), DefaultSensitiveKeywords...),
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    30 * time.Second,
		},
	}
}

// DefaultPath returns ~/.config/phonectl/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "phonectl", "config.yaml")
}

// Load reads the config file (missing file = defaults), merges .env and
// environment overrides, and validates the result.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		configPath = DefaultPath()
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}

	if err := LoadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads environment variables from path. Missing files are
// ignored and variables already set in the environment win.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be positive, got %d", c.Agent.MaxSteps)
	}
	if c.Sampling.Temperature < 0 || c.Sampling.Temperature > 2 {
		return fmt.Errorf("sampling.temperature must be within [0, 2], got %v", c.Sampling.Temperature)
	}
	switch c.Permissions.Mode {
	case "", "interactive", "auto-approve", "deny":
	default:
		return fmt.Errorf("unknown permissions.mode %q", c.Permissions.Mode)
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must not be negative")
	}
	return nil
}

// GetProviderConfig returns the named provider config, or an empty one.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok && pc != nil {
		return pc
	}
	return &ProviderConfig{}
}

// ResolveModel returns the model to use: explicit > provider config >
// provider default.
func (c *Config) ResolveModel() string {
	if c.Model != "" {
		return c.Model
	}
	if pc := c.GetProviderConfig(c.Provider); pc.Model != "" {
		return pc.Model
	}
	return KnownProviderModels[c.Provider]
}

// ResolveBaseURL returns the provider base URL or "".
func (c *Config) ResolveBaseURL() string {
	if pc := c.GetProviderConfig(c.Provider); pc.BaseURL != "" {
		return pc.BaseURL
	}
	return KnownProviderBaseURLs[c.Provider]
}

func (c *Config) provider(name string) *ProviderConfig {
	if c.Providers[name] == nil {
		c.Providers[name] = &ProviderConfig{}
	}
	return c.Providers[name]
}

// applyEnvOverrides overlays environment variables onto cfg.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PHONECTL_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.provider(cfg.Provider).APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.provider(cfg.Provider).BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.provider("anthropic").APIKey = v
	}
	if v := os.Getenv("PHONE_AGENT_DEVICE_ID"); v != "" {
		cfg.Agent.DeviceID = v
	}
	if v := os.Getenv("PHONE_AGENT_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Agent.MaxSteps = n
		}
	}
	if v := os.Getenv("PHONECTL_EVENTS_DIR"); v != "" {
		cfg.EventLog.Dir = v
	}
}
