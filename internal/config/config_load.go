package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
)

// ExpandHome expands a leading "~" in path to the current user's home
// directory. Paths without a leading "~" are returned unchanged.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// defaultSystemInstructions seeds the Context Assembler's system message
// when no config file overrides it.
const defaultSystemInstructions = `You are agentd, a local-first autonomous agent. You think step by step, call tools when you need information or side effects, and give a final answer only once the task is actually done.`

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Agents: AgentDefaults{
			Workspace:           "~/.agentd/workspace",
			RestrictToWorkspace: true,
			Provider:            "anthropic",
			Model:               "claude-sonnet-4-5-20250929",
			MaxTokens:           8192,
			Temperature:         0.7,
			MaxIterations:       10,
			ContextWindow:       200000,
			SessionTokenBudget:  32000,
			MaxMessageChars:     32000,
			SystemInstructions:  defaultSystemInstructions,
			SkillsDir:           ".agentd/skills",
			ConductorEnabled:    true,
			ContextBudget: ContextBudgetConfig{
				SystemTokens:   2000,
				ProjectTokens:  2000,
				EpisodicTokens: 3000,
				TotalTokens:    48000,
			},
		},
		Providers: ProvidersConfig{
			SensitivityThreshold: 0.5,
		},
		Tools: ToolsConfig{
			CommandAllowlist:  []string{"git", "ls", "cat", "go", "make"},
			DenyPathSegments:  []string{".ssh", ".gnupg", ".aws", ".config/agentd"},
			CommandTimeoutSec: 60,
			ScreenshotBinary: map[string]string{
				"darwin": "screencapture",
				"linux":  "scrot",
			},
		},
		Risk: RiskConfig{
			MaxAllowedTier: 1,
			DefaultTier:    1,
			ToolTiers: map[string]int{
				"read_file":      0,
				"list_dir":       0,
				"file_exists":    0,
				"write_file":     1,
				"capture_screen": 1,
				"run_command":    2,
			},
		},
		RateLimit: RateLimitConfig{
			DefaultPerMinute: 60,
			ByTier: map[string]int{
				"0": 120,
				"1": 60,
				"2": 20,
			},
		},
		Database: DatabaseConfig{
			Path:         "~/.agentd/agentd.db",
			MaxOpenConns: 5,
		},
		Trust: TrustConfig{
			PublicKeyEnv:      "AGENTD_TEAM_PUBLIC_KEY",
			NonceCacheSize:    10000,
			EnvelopeWindowSec: 30,
		},
		WS: WSClientConfig{
			ReconnectDelaySec: 5,
		},
	}
}

// Load reads config from a JSON5 file, then overlays environment variables.
// A missing file is not an error — defaults plus env overrides apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays secret-bearing env vars onto the config.
// Env vars always take precedence over file values for credentials.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AGENTD_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("AGENTD_WORKSPACE"); v != "" {
		c.Agents.Workspace = v
	}
	if v := os.Getenv("AGENTD_WS_AUTH_TOKEN"); v != "" {
		c.WS.AuthToken = v
	}
	if v := os.Getenv("AGENTD_WS_URL"); v != "" {
		c.WS.URL = v
	}
}
