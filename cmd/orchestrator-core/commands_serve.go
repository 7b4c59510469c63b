package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/orchestrator-core/internal/audit"
	"github.com/haasonsaas/orchestrator-core/internal/auth"
	"github.com/haasonsaas/orchestrator-core/internal/cache"
	"github.com/haasonsaas/orchestrator-core/internal/config"
	"github.com/haasonsaas/orchestrator-core/internal/core"
	"github.com/haasonsaas/orchestrator-core/internal/models"
	"github.com/haasonsaas/orchestrator-core/internal/observability"
	"github.com/haasonsaas/orchestrator-core/internal/policy"
	"github.com/haasonsaas/orchestrator-core/internal/providers"
	"github.com/haasonsaas/orchestrator-core/internal/ratelimit"
	"github.com/haasonsaas/orchestrator-core/internal/router"
	"github.com/haasonsaas/orchestrator-core/internal/secrets"
	"github.com/haasonsaas/orchestrator-core/internal/toolexec"
	"github.com/haasonsaas/orchestrator-core/pkg/tool"
)

func buildServeCmd() *cobra.Command {
	var (
		secretsDir string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Wire up the orchestration core and block until shutdown",
		Long: `Load configuration, construct every component (SecretStore, Journal,
ResponseCache, ProviderRegistry, Router, PolicyEngine, RateLimiter,
ToolExecutor, AuthGate), and hold the process open so a host embedding this
core as a Go API can reach it. Graceful shutdown on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), secretsDir, debug)
		},
	}

	cmd.Flags().StringVar(&secretsDir, "secrets-dir", defaultSecretsDir(),
		"Directory for the encrypted local secret-store fallback")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func defaultSecretsDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".orchestrator-core"
	}
	return filepath.Join(dir, "orchestrator-core")
}

func newLogHandler(debug bool) slog.Handler {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
}

// core bundles every constructed component for one process lifetime.
type core struct {
	cfg        *config.Config
	secrets    *secrets.Store
	journal    *audit.Journal
	cache      *cache.Cache
	catalog    *models.Catalog
	registry   *providers.Registry
	router     *router.Router
	policy     *policy.Engine
	limiter    *ratelimit.Limiter
	toolexec   *toolexec.Executor
	auth       *auth.Gate
	diagLogger *audit.Logger
	tracer     *sdktrace.TracerProvider
}

func buildCore(ctx context.Context, logger *slog.Logger, cfg *config.Config, secretsDir string) (*core, error) {
	store, err := secrets.Open(secretsDir)
	if err != nil {
		return nil, fmt.Errorf("open secret store: %w", err)
	}

	auditKey, err := store.GetOrCreate("audit_hmac_key", secrets.RandomBytes(32))
	if err != nil {
		return nil, fmt.Errorf("provision audit key: %w", err)
	}
	jwtKey, err := store.GetOrCreate("auth_jwt_key", secrets.RandomBytes(32))
	if err != nil {
		return nil, fmt.Errorf("provision jwt key: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Audit.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	journal, err := audit.OpenJournal(db, auditKey)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	catalog := models.NewCatalog()
	registry := providers.NewRegistry()
	registerConfiguredProviders(registry, cfg)

	respCache := cache.New(cache.Options{
		MaxEntries: cfg.Cache.MaxEntries,
		MaxBytes:   cfg.Cache.MaxBytes,
		DefaultTTL: cfg.Cache.DefaultTTL,
	})

	secretResolver := func(ctx context.Context, providerID string) (providers.Secret, error) {
		key, err := store.Get(providerID + "_api_key")
		if err != nil {
			return providers.Secret{}, err
		}
		return providers.Secret{Value: string(key)}, nil
	}

	tracerProvider := observability.NewProvider()
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	routerCfg := router.DefaultConfig()
	routerCfg.DeterminismThreshold = cfg.Cache.DeterminismThreshold
	r := router.New(registry, catalog, respCache, journal, secretResolver, routerCfg)
	r.SetMetrics(metrics)

	policyRules, err := loadPolicyRules(cfg.Policy.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("load policy rules: %w", err)
	}
	policyEngine, err := policy.Load(policyRules, cfg.Policy.WorkspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("compile policy rules: %w", err)
	}

	limiter := ratelimit.New()
	execCfg := toolexec.DefaultConfig()
	execCfg.DefaultRatePerMinute = cfg.RateLimit.DefaultPerMinute
	tools := defaultTools(cfg.Policy.WorkspaceRoot)
	executor := toolexec.New(tools, policyEngine, limiter, journal, nil, execCfg)
	executor.SetMetrics(metrics)

	diagLogger, err := audit.NewLogger(audit.Config{
		Enabled: cfg.Audit.DiagnosticLogging,
		Level:   audit.LevelInfo,
		Format:  audit.FormatJSON,
		Output:  cfg.Audit.DiagnosticOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("open diagnostic logger: %w", err)
	}
	executor.SetDiagnosticLogger(diagLogger)

	gate := auth.NewGate(auth.Config{
		JWTSecret:      jwtKey,
		AccessTTL:      cfg.Auth.AccessTTL,
		RefreshTTL:     cfg.Auth.RefreshTTL,
		InactivityTTL:  cfg.Auth.InactivityTTL,
		MaxFailedLogin: cfg.Auth.MaxFailedLogin,
		LockoutWindow:  cfg.Auth.LockoutWindow,
	})

	logger.InfoContext(ctx, "orchestration core constructed",
		slog.Int("provider_count", len(registry.IDs())),
		slog.String("audit_db", cfg.Audit.DatabasePath))

	return &core{
		cfg:        cfg,
		secrets:    store,
		journal:    journal,
		cache:      respCache,
		catalog:    catalog,
		registry:   registry,
		router:     r,
		policy:     policyEngine,
		limiter:    limiter,
		toolexec:   executor,
		auth:       gate,
		diagLogger: diagLogger,
		tracer:     tracerProvider,
	}, nil
}

// defaultTools builds the example tool set an embedding host gets out of
// the box: sandboxed file read/write/edit/apply_patch plus an SSRF-guarded
// web_fetch, all rooted at the policy engine's workspace.
func defaultTools(workspaceRoot string) []core.Tool {
	fileCfg := tool.FileConfig{Workspace: workspaceRoot}
	return []core.Tool{
		tool.NewReadFileTool(fileCfg),
		tool.NewWriteFileTool(fileCfg),
		tool.NewEditFileTool(fileCfg),
		tool.NewApplyPatchTool(fileCfg),
		tool.NewWebFetchTool(tool.WebFetchConfig{}),
	}
}

func registerConfiguredProviders(registry *providers.Registry, cfg *config.Config) {
	for id, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		timeout := pc.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		switch id {
		case "anthropic":
			registry.Register(providers.NewAnthropicAdapter(providers.AnthropicConfig{
				BaseURL: pc.BaseURL, Timeout: timeout, Models: pc.Models,
			}))
		case "openai":
			registry.Register(providers.NewOpenAIAdapter(providers.OpenAIConfig{
				BaseURL: pc.BaseURL, Timeout: timeout, Models: pc.Models,
			}))
		case "google":
			registry.Register(providers.NewGoogleAdapter(providers.GoogleConfig{
				BaseURL: pc.BaseURL, Timeout: timeout, Models: pc.Models,
			}))
		case "ollama":
			registry.Register(providers.NewOllamaAdapter(providers.OllamaConfig{
				BaseURL: pc.BaseURL, Timeout: timeout, Models: pc.Models,
			}))
		}
	}
}

func runServe(ctx context.Context, secretsDir string, debug bool) error {
	logger := slog.New(newLogHandler(debug))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := buildCore(ctx, logger, cfg, secretsDir)
	if err != nil {
		return err
	}
	defer c.secrets.Close()
	defer c.diagLogger.Close()
	defer c.tracer.Shutdown(context.Background())

	logger.InfoContext(ctx, "orchestration core ready", slog.Int("port", cfg.Server.Port))
	<-ctx.Done()
	logger.InfoContext(ctx, "shutdown signal received")
	return nil
}
