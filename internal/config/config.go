package config

import (
	"sync"
)

// Config is the root configuration for the agent daemon.
type Config struct {
	Agents    AgentDefaults    `json:"agents"`
	Providers ProvidersConfig  `json:"providers"`
	Tools     ToolsConfig      `json:"tools"`
	Risk      RiskConfig       `json:"risk"`
	RateLimit RateLimitConfig  `json:"rate_limit"`
	Database  DatabaseConfig   `json:"database"`
	Trust     TrustConfig      `json:"trust"`
	WS        WSClientConfig   `json:"ws,omitempty"`
	mu        sync.RWMutex
}

// AgentDefaults configures the Agent Core think/act/observe loop.
type AgentDefaults struct {
	Workspace           string  `json:"workspace"`
	RestrictToWorkspace bool    `json:"restrict_to_workspace"`
	Provider            string  `json:"provider"`
	Model               string  `json:"model"`
	MaxTokens           int     `json:"max_tokens"`
	Temperature         float64 `json:"temperature"`
	MaxIterations       int     `json:"max_iterations"`
	ContextWindow       int     `json:"context_window"`
	SessionTokenBudget  int     `json:"session_token_budget"`
	MaxMessageChars     int     `json:"max_message_chars"`

	// SystemInstructions seeds the Context Assembler's base system message.
	SystemInstructions string `json:"system_instructions,omitempty"`
	// SkillsDir holds user-authored markdown skill files (spec.md §4.7/
	// GLOSSARY "Skill"), relative paths resolved against Workspace.
	SkillsDir string `json:"skills_dir,omitempty"`
	// ConductorEnabled routes tasks through the Conductor's Planner/
	// Executor/Evaluator instead of the single-shot think/act/observe
	// loop. Planning failures fall back to the single-shot loop.
	ConductorEnabled bool `json:"conductor_enabled,omitempty"`

	// ContextBudget partitions the Context Assembler's section budgets
	// (spec.md §4.7 MemoryBudget); SessionTokenBudget above doubles as
	// both WorkingMemory's own eviction budget and the assembler's
	// session-section budget.
	ContextBudget ContextBudgetConfig `json:"context_budget"`
}

// ContextBudgetConfig is the token-budget partition spec.md §4.7's
// MemoryBudget describes, minus the session share (AgentDefaults.
// SessionTokenBudget already covers that for WorkingMemory eviction too).
type ContextBudgetConfig struct {
	SystemTokens   int `json:"system_tokens"`
	ProjectTokens  int `json:"project_tokens"`
	EpisodicTokens int `json:"episodic_tokens"`
	TotalTokens    int `json:"total_tokens"`
}

// ProviderSpec configures one LLM provider endpoint/credential reference.
type ProviderSpec struct {
	Kind           string  `json:"kind"` // "anthropic", "openai", "local"
	BaseURL        string  `json:"base_url,omitempty"`
	Model          string  `json:"model,omitempty"`
	APIKeyRef      string  `json:"api_key_ref,omitempty"` // secret cache key
	CostPer1KInput float64 `json:"cost_per_1k_input,omitempty"`
	TimeoutSec     int     `json:"timeout_sec,omitempty"`
}

// ProvidersConfig lists the registered LLM providers and the router's
// sensitivity threshold for preferring local providers.
type ProvidersConfig struct {
	List                []ProviderSpec `json:"list"`
	SensitivityThreshold float64       `json:"sensitivity_threshold"` // 0..1
}

// ToolsConfig configures the Tool Registry.
type ToolsConfig struct {
	CommandAllowlist  []string          `json:"command_allowlist"`
	DenyPathSegments  []string          `json:"deny_path_segments"`
	CommandTimeoutSec int               `json:"command_timeout_sec"`
	ScreenshotBinary  map[string]string `json:"screenshot_binary,omitempty"` // GOOS -> program name
	MCPServers        []MCPServerSpec   `json:"mcp_servers,omitempty"`
}

// MCPServerSpec describes one MCP tool proxied into the registry over
// stdio (spec.md §9's plugin surface).
type MCPServerSpec struct {
	Command     string            `json:"command"`
	Args        []string          `json:"args,omitempty"`
	Env         []string          `json:"env,omitempty"`
	ToolName    string            `json:"tool_name"`
	Description string            `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// RiskConfig is the configuration-driven risk-tier table (spec.md §9 Open
// Question: tiers are config, not guessed heuristics).
type RiskConfig struct {
	MaxAllowedTier int             `json:"max_allowed_tier"` // 0,1,2
	ToolTiers      map[string]int  `json:"tool_tiers"`       // tool name -> tier
	DefaultTier    int             `json:"default_tier"`
}

// RateLimitConfig configures per-(tool,tier) admission windows.
type RateLimitConfig struct {
	DefaultPerMinute int            `json:"default_per_minute"`
	ByTier           map[string]int `json:"by_tier"` // tier (as string) -> requests per minute
}

// DatabaseConfig configures the SQLite persistence layer.
type DatabaseConfig struct {
	Path            string `json:"path"`
	MaxOpenConns    int    `json:"max_open_conns"`
}

// TrustConfig configures the Trust Chain's embedded public key source.
type TrustConfig struct {
	PublicKeyEnv      string `json:"public_key_env,omitempty"`
	PublicKeyFile     string `json:"public_key_file,omitempty"`
	PublicKeyHexFile  string `json:"public_key_hex_file,omitempty"`
	AllowDevPlaceholder bool `json:"allow_dev_placeholder,omitempty"`
	NonceCacheSize    int    `json:"nonce_cache_size"`
	EnvelopeWindowSec int    `json:"envelope_window_sec"`
}

// WSClientConfig configures the WebSocket client adapter.
type WSClientConfig struct {
	URL             string `json:"url,omitempty"`
	AuthToken       string `json:"-"` // from env only, never persisted
	ReconnectDelaySec int  `json:"reconnect_delay_sec"`
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Agents = src.Agents
	c.Providers = src.Providers
	c.Tools = src.Tools
	c.Risk = src.Risk
	c.RateLimit = src.RateLimit
	c.Database = src.Database
	c.Trust = src.Trust
	c.WS = src.WS
}

// Snapshot returns a copy of the config safe for concurrent reads.
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := *c
	cp.mu = sync.RWMutex{}
	return cp
}
