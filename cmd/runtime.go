package cmd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nlbuilder/agentd/internal/agent"
	"github.com/nlbuilder/agentd/internal/bus"
	"github.com/nlbuilder/agentd/internal/conductor"
	"github.com/nlbuilder/agentd/internal/config"
	"github.com/nlbuilder/agentd/internal/providers"
	"github.com/nlbuilder/agentd/internal/ratelimit"
	"github.com/nlbuilder/agentd/internal/risk"
	"github.com/nlbuilder/agentd/internal/secrets"
	"github.com/nlbuilder/agentd/internal/store"
	"github.com/nlbuilder/agentd/internal/tools"
	"github.com/nlbuilder/agentd/internal/trust"
	"github.com/nlbuilder/agentd/internal/wasmplugin"
)

// runtime bundles every component the composition root wires together, so
// run/doctor can share one construction path.
type daemon struct {
	cfg       *config.Config
	store     *store.Store
	secrets   *secrets.Cache
	trust     *trust.Chain
	router    *providers.Router
	registry  *tools.Registry
	risk      *risk.Assessor
	ratelimit *ratelimit.Limiter
	events    *bus.Broadcaster
	loop      *agent.Loop
}

// buildRuntime wires every package built under spec.md into one running
// instance: store → secrets → trust → providers → tools → agent loop.
func buildRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*daemon, error) {
	workspace := config.ExpandHome(cfg.Agents.Workspace)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", workspace, err)
	}

	dbPath := config.ExpandHome(cfg.Database.Path)
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	st, err := store.Open(dbPath, store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.Init(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	secretCache, err := secrets.NewCache(secrets.NewEnvManager(), st, cacheEncryptionKey(cfg, logger))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("build secret cache: %w", err)
	}

	trustChain, err := trust.NewChain(cfg.Trust, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("build trust chain: %w", err)
	}

	router, err := buildRouter(ctx, cfg, secretCache)
	if err != nil {
		st.Close()
		return nil, err
	}

	registry := buildRegistry(cfg, workspace)
	verifyPluginsAtStartup(ctx, st, trustChain, logger)
	riskAssessor := risk.New(cfg.Risk.ToolTiers, cfg.Risk.DefaultTier, cfg.Risk.MaxAllowedTier)
	limiter := ratelimit.New(cfg.RateLimit.DefaultPerMinute, byTierInts(cfg.RateLimit.ByTier))
	events := bus.NewBroadcaster()

	assembler, scanner, skills, planner := buildConductor(cfg, workspace, router, logger)

	loop := &agent.Loop{
		Router:             router,
		Tools:              registry,
		Risk:               riskAssessor,
		RateLimit:          limiter,
		Store:              st,
		Events:             events,
		Assembler:          assembler,
		ProjectScanner:     scanner,
		Skills:             skills,
		SystemInstructions: cfg.Agents.SystemInstructions,
		Planner:            planner,
		MaxIterations:      cfg.Agents.MaxIterations,
		SessionBudget:      cfg.Agents.SessionTokenBudget,
	}

	return &daemon{
		cfg:       cfg,
		store:     st,
		secrets:   secretCache,
		trust:     trustChain,
		router:    router,
		registry:  registry,
		risk:      riskAssessor,
		ratelimit: limiter,
		events:    events,
		loop:      loop,
	}, nil
}

func agentRunRequest(taskID, input string) agent.RunRequest {
	return agent.RunRequest{TaskID: taskID, Input: input}
}

func (r *daemon) Close() {
	if r.store != nil {
		r.store.Close()
	}
}

// buildRouter constructs one Provider per configured ProviderSpec and ranks
// them through a Router, resolving each spec's API key through the Secret
// Cache by its configured reference key.
func buildRouter(ctx context.Context, cfg *config.Config, secretCache *secrets.Cache) (*providers.Router, error) {
	var built []providers.Provider

	for _, spec := range cfg.Providers.List {
		var apiKey string
		if spec.APIKeyRef != "" {
			s, err := secretCache.Get(ctx, spec.APIKeyRef)
			if err != nil {
				return nil, fmt.Errorf("resolve api key for provider %q: %w", spec.Kind, err)
			}
			apiKey = s.Unsecure()
		}

		switch strings.ToLower(spec.Kind) {
		case "anthropic":
			opts := []providers.AnthropicOption{}
			if spec.Model != "" {
				opts = append(opts, providers.WithAnthropicModel(spec.Model))
			}
			if spec.BaseURL != "" {
				opts = append(opts, providers.WithAnthropicBaseURL(spec.BaseURL))
			}
			if spec.CostPer1KInput > 0 {
				opts = append(opts, providers.WithAnthropicCostPer1K(spec.CostPer1KInput))
			}
			built = append(built, providers.NewAnthropicProvider(apiKey, opts...))

		case "openai":
			p := providers.NewOpenAIProvider("openai", apiKey, spec.BaseURL, spec.Model)
			if spec.CostPer1KInput > 0 {
				p = p.WithCostPer1K(spec.CostPer1KInput)
			}
			built = append(built, p)

		case "local":
			built = append(built, providers.NewLocalProvider(spec.BaseURL, spec.Model))

		default:
			return nil, fmt.Errorf("unknown provider kind %q", spec.Kind)
		}
	}

	return providers.NewRouter(cfg.Providers.SensitivityThreshold, built...), nil
}

// buildRegistry registers every concrete tool the daemon ships with behind
// the risk/rate-limit gate that agent.Loop enforces per call.
func buildRegistry(cfg *config.Config, workspace string) *tools.Registry {
	registry := tools.NewRegistry(tools.NewInjectionDetector())

	guard := tools.NewFilesystemGuard(workspace, cfg.Tools.DenyPathSegments)
	registry.Register(tools.NewReadFileTool(guard))
	registry.Register(tools.NewWriteFileTool(guard))
	registry.Register(tools.NewListDirTool(guard))
	registry.Register(tools.NewFileExistsTool(guard))

	timeout := time.Duration(cfg.Tools.CommandTimeoutSec) * time.Second
	registry.Register(tools.NewCommandExecutor(workspace, cfg.Tools.CommandAllowlist, timeout))

	if len(cfg.Tools.ScreenshotBinary) > 0 {
		registry.Register(tools.NewCaptureScreenTool(guard, cfg.Tools.ScreenshotBinary))
	}

	for _, mcpSpec := range cfg.Tools.MCPServers {
		registry.Register(tools.NewMCPTool(mcpSpec.ToolName, mcpSpec.Description, mcpSpec.Parameters, mcpSpec.Command, mcpSpec.Args, mcpSpec.Env))
	}

	return registry
}

// buildConductor wires the Context Assembler, Project Scanner, loaded
// Skills, and (if enabled) the Planner into the Agent Core, so Loop.Run
// actually consults Conductor instead of running a bare single-shot loop
// (spec.md §4.6/§4.7).
func buildConductor(cfg *config.Config, workspace string, router *providers.Router, logger *slog.Logger) (*conductor.Assembler, *conductor.ProjectScanner, []conductor.Skill, *conductor.Planner) {
	budget := conductor.MemoryBudget{
		SystemTokens:   cfg.Agents.ContextBudget.SystemTokens,
		ProjectTokens:  cfg.Agents.ContextBudget.ProjectTokens,
		EpisodicTokens: cfg.Agents.ContextBudget.EpisodicTokens,
		SessionTokens:  cfg.Agents.SessionTokenBudget,
		TotalLimit:     cfg.Agents.ContextBudget.TotalTokens,
	}
	assembler := conductor.NewAssembler(budget)
	scanner := conductor.NewProjectScanner(workspace)

	skillsDir := config.ExpandHome(cfg.Agents.SkillsDir)
	if !filepath.IsAbs(skillsDir) {
		skillsDir = filepath.Join(workspace, skillsDir)
	}
	skills, err := conductor.LoadSkills(skillsDir)
	if err != nil {
		logger.Warn("load skills failed", "dir", skillsDir, "err", err)
	}

	var planner *conductor.Planner
	if cfg.Agents.ConductorEnabled {
		planner = conductor.NewPlanner(router)
	}

	return assembler, scanner, skills, planner
}

// verifyPluginsAtStartup hash-verifies every enabled WASM plugin record
// before the daemon starts accepting tasks, so a tampered or stale plugin
// file is caught at boot rather than on first dispatch. Host-function
// wiring (and therefore actual tool registration) is left to a future
// plugin subsystem, per spec.md §9.
func verifyPluginsAtStartup(ctx context.Context, st *store.Store, chain *trust.Chain, logger *slog.Logger) {
	plugins, err := st.ListPlugins(ctx)
	if err != nil {
		logger.Warn("list plugins failed", "err", err)
		return
	}

	loader, err := wasmplugin.NewLoader(ctx, chain)
	if err != nil {
		logger.Warn("wasm plugin loader unavailable", "err", err)
		return
	}
	defer loader.Close(ctx)

	for _, p := range plugins {
		if !p.Enabled {
			continue
		}
		if err := loader.Verify(p); err != nil {
			logger.Warn("plugin failed verification", "plugin", p.Name, "err", err)
			continue
		}
		logger.Info("plugin verified", "plugin", p.Name, "version", p.Version, "trust_tier", p.TrustTier)
	}
}

func byTierInts(byTier map[string]int) map[int]int {
	out := make(map[int]int, len(byTier))
	for k, v := range byTier {
		var tier int
		if _, err := fmt.Sscanf(k, "%d", &tier); err == nil {
			out[tier] = v
		}
	}
	return out
}

// cacheEncryptionKey derives the Secret Cache's AES-256-GCM key from
// AGENTD_CACHE_KEY (hex-encoded, 32 bytes) when set. Otherwise it falls
// back to a workspace-derived placeholder key, logging a warning — the
// same explicit dev-placeholder idiom internal/trust uses for its signing
// key, rather than silently generating and losing an ephemeral one.
func cacheEncryptionKey(cfg *config.Config, logger *slog.Logger) []byte {
	if v := os.Getenv("AGENTD_CACHE_KEY"); v != "" {
		if key, err := hex.DecodeString(v); err == nil && len(key) == 32 {
			return key
		}
		logger.Warn("AGENTD_CACHE_KEY is set but is not 64 hex characters; ignoring")
	}

	logger.Warn("AGENTD_CACHE_KEY not set: deriving a non-portable secret cache key from the database path; set AGENTD_CACHE_KEY to survive moving the database file")
	sum := sha256.Sum256([]byte("agentd-secrets-cache:" + cfg.Database.Path))
	return sum[:]
}
