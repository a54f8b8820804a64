// Command gateway wires the routing core into a standalone process:
// configuration, state store, telemetry, resilience, scoring, policy,
// decision, admission, and the routing manager. It exposes no HTTP
// surface of its own — that belongs to the separate proxy server; this
// binary's job is to prove the routing core boots end to end and to
// host its Prometheus metrics for scraping.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/arcrelay/gateway/internal/admission"
	"github.com/arcrelay/gateway/internal/config"
	"github.com/arcrelay/gateway/internal/decision"
	"github.com/arcrelay/gateway/internal/manager"
	"github.com/arcrelay/gateway/internal/observability"
	"github.com/arcrelay/gateway/internal/policy"
	"github.com/arcrelay/gateway/internal/provider/httpadapter"
	"github.com/arcrelay/gateway/internal/provider/localadapter"
	"github.com/arcrelay/gateway/internal/registry"
	"github.com/arcrelay/gateway/internal/secret"
	"github.com/arcrelay/gateway/internal/secret/env"
	"github.com/arcrelay/gateway/internal/secret/vault"
	"github.com/arcrelay/gateway/internal/statestore"
	"github.com/arcrelay/gateway/internal/telemetry"
	"github.com/arcrelay/gateway/pkg/gateway"
)

func main() {
	if err := run(); err != nil {
		slog.Error("gateway failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config/gateway.yaml", "path to routing core configuration file")
	policyDir := flag.String("policy-file", "", "optional YAML file overlaying additional routing policies")
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve /metrics on")
	redisAddr := flag.String("redis-addr", "", "Redis address for the shared state store (empty uses the in-memory degraded store)")
	flag.Parse()

	// logger redacts credentials and other sensitive values (API keys,
	// Authorization headers) before they reach stdout; upstream error
	// bodies surfaced through the fallback chain can otherwise carry
	// them verbatim.
	logger := observability.NewLogger(observability.LoggerConfig{
		Level:      slog.LevelInfo,
		JSONFormat: true,
	}, observability.NewRedactor())
	slog.SetDefault(logger.Slog())
	logger.Info("starting routing core", "config", *configPath)

	secrets := secret.NewManager()
	secrets.Register("env", env.New())
	if vaultAddr := os.Getenv("VAULT_ADDR"); vaultAddr != "" {
		vaultProvider, err := vault.New(vault.Config{
			Address:    vaultAddr,
			AuthMethod: os.Getenv("VAULT_AUTH_METHOD"),
			RoleID:     os.Getenv("VAULT_ROLE_ID"),
			SecretID:   os.Getenv("VAULT_SECRET_ID"),
		})
		if err != nil {
			logger.Warn("vault secret provider unavailable, provider credentials must resolve via env://", "error", err)
		} else {
			secrets.Register("vault", secret.NewCachedProvider(vaultProvider, 5*time.Minute))
		}
	}
	defer func() {
		if err := secrets.Close(); err != nil {
			logger.Error("failed to close secret manager", "error", err)
		}
	}()

	gwManager, err := config.NewGatewayManager(*configPath, logger.Slog())
	if err != nil {
		return fmt.Errorf("loading gateway config: %w", err)
	}
	cfg := gwManager.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := gwManager.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}

	store := buildStateStore(ctx, *redisAddr, logger.Slog())

	reg := registry.New()
	if err := loadProviders(ctx, reg, cfg.Providers, secrets); err != nil {
		return fmt.Errorf("loading providers: %w", err)
	}

	tel := telemetry.NewStore()

	policies, err := policy.NewManager(*policyDir, logger.Slog())
	if err != nil {
		return fmt.Errorf("loading policies: %w", err)
	}

	admissionCfg := admission.Config{
		RequestsPerMinute:  cfg.Autoscaling.RequestsPerMinute,
		RequestsPerHour:    cfg.Autoscaling.RequestsPerHour,
		CheapModel:         cfg.Autoscaling.CheapModel,
		SpikeMultiplier:    cfg.Autoscaling.SpikeMultiplier,
		SpikeWindowSeconds: cfg.Autoscaling.SpikeWindowSeconds,
		DailyTokenBudget:   cfg.Autoscaling.DailyTokenBudget,
	}
	if admissionCfg.RequestsPerMinute == 0 {
		admissionCfg = admission.DefaultConfig()
	}
	admissionController := admission.New(store, tel, admissionCfg)

	cache := decision.NewCache(decision.DefaultDecisionTTL)
	engine := decision.New(reg, tel, policies, cache)

	mgr := manager.New(reg, tel, admissionController, engine, policies, store, logger)
	mgr.Start(ctx)

	go serveMetrics(*metricsAddr, logger.Slog())

	logger.Info("routing core ready", "providers", len(reg.AllProviders()))

	<-ctx.Done()
	logger.Info("routing core shutting down")
	return gwManager.Close()
}

func buildStateStore(ctx context.Context, redisAddr string, logger *slog.Logger) statestore.Store {
	if redisAddr == "" {
		logger.Warn("no redis-addr configured, running with in-memory state store only")
		return statestore.NewMemory()
	}

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Error("redis unreachable at startup, running with in-memory state store only", "error", err)
		return statestore.NewMemory()
	}
	// Degraded wraps the live Redis client so circuit breaker, bulkhead,
	// and admission state transparently fall back to local tracking if
	// Redis becomes unreachable mid-run, rather than failing requests.
	return statestore.NewDegraded(statestore.NewRedis(client), logger)
}

func loadProviders(ctx context.Context, reg *registry.Registry, providers []config.GatewayProviderConfig, secrets *secret.Manager) error {
	for _, pc := range providers {
		p := &gateway.Provider{
			ID:           pc.ID,
			Name:         pc.ID,
			Capabilities: pc.Capabilities,
			BaseURL:      pc.BaseURL,
			Priority:     pc.Priority,
			Enabled:      true,
			Status:       gateway.StatusActive,
		}
		for _, m := range pc.Models {
			p.Models = append(p.Models, gateway.ModelSpec{
				Name:            m.Name,
				ContextWindow:   m.MaxTokens,
				CostPerTokenIn:  m.CostPer1KInput / 1000,
				CostPerTokenOut: m.CostPer1KOutput / 1000,
			})
		}

		switch pc.Adapter {
		case "local":
			models := make([]string, 0, len(pc.Models))
			for _, m := range pc.Models {
				models = append(models, m.Name)
			}
			adapter := localadapter.New(localadapter.Config{
				ProviderID: pc.ID,
				BaseURL:    pc.BaseURL,
				Timeout:    pc.Timeout,
				Models:     models,
			})
			reg.Register(p, adapter)
		default:
			apiKey := ""
			if pc.APIKeyEnv != "" {
				ref := pc.APIKeyEnv
				if !strings.Contains(ref, "://") {
					ref = "env://" + ref
				}
				key, err := secrets.Get(ctx, ref)
				if err != nil {
					// An unresolvable credential loads the provider disabled
					// instead of aborting startup.
					slog.Warn("credential unresolved, loading provider disabled", "provider", pc.ID, "error", err)
					p.Status = gateway.StatusDisabled
				} else {
					apiKey = key
				}
			}
			adapter := httpadapter.New(httpadapter.Config{
				ProviderID:   pc.ID,
				BaseURL:      pc.BaseURL,
				APIKey:       apiKey,
				Timeout:      pc.Timeout,
				Models:       p.Models,
				Capabilities: pc.Capabilities,
			})
			reg.Register(p, adapter)
		}
	}
	return nil
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server stopped", "error", err)
	}
}
