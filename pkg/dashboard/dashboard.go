// Package dashboard is the public entry point: it re-exports the orchestrator
// and assembles a ready-to-serve runtime from configuration.
package dashboard

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	core "github.com/goliatone/go-metricsboard/components/dashboard"
	"github.com/goliatone/go-metricsboard/components/dashboard/httpapi"
	"github.com/goliatone/go-metricsboard/pkg/backend"
	"github.com/goliatone/go-metricsboard/pkg/config"
)

// Orchestrator exposes the underlying components/dashboard.Orchestrator type.
type Orchestrator = core.Orchestrator

// Options re-export for convenience.
type Options = core.Options

// NewOrchestrator proxies to the internal constructor.
func NewOrchestrator(opts Options) *Orchestrator {
	return core.NewOrchestrator(opts)
}

// Deps carries process-level collaborators that do not come from config.
type Deps struct {
	Logger *zap.Logger
	// Registerer receives the Prometheus collectors; nil skips registration.
	Registerer prometheus.Registerer
	// Backend overrides the configured backend driver.
	Backend core.Backend
	// Hooks are notified next to the broadcast hook.
	Hooks []core.EventHook
}

// Runtime is an assembled orchestrator with its transports.
type Runtime struct {
	Orchestrator *Orchestrator
	Backend      core.Backend
	Broadcast    *core.BroadcastHook
	Telemetry    *core.PrometheusTelemetry
	Executor     *httpapi.CommandExecutor
	Reader       *httpapi.QueryReader

	redis *redis.Client
}

// Close cancels in-flight fetches and releases the cache connection.
func (r *Runtime) Close() error {
	r.Orchestrator.Close()
	if r.redis != nil {
		return r.redis.Close()
	}
	return nil
}

// Assemble wires backend, reference cache, telemetry and hooks from cfg.
func Assemble(cfg *config.Config, deps Deps) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("dashboard: config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	be := deps.Backend
	if be == nil {
		var err error
		if be, err = newBackend(cfg.Backend); err != nil {
			return nil, err
		}
	}

	rt := &Runtime{
		Backend:   be,
		Broadcast: core.NewBroadcastHook(),
		Telemetry: core.NewPrometheusTelemetry(deps.Registerer),
	}

	var cache core.ReferenceCache
	switch cfg.Cache.Driver {
	case "redis":
		rt.redis = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr, DB: cfg.Cache.RedisDB})
		cache = core.NewRedisReferenceCache(rt.redis, cfg.Cache.Prefix, cfg.Cache.TTL, logger.Named("cache"))
	case "memory", "":
		cache = core.NewMemoryReferenceCache(cfg.Cache.TTL)
	}

	hooks := append(core.Hooks{rt.Broadcast}, deps.Hooks...)

	rt.Orchestrator = core.NewOrchestrator(core.Options{
		Backend:               be,
		References:            core.NewCachedReferenceSource(be, cache),
		Hook:                  hooks,
		Telemetry:             rt.Telemetry,
		Logger:                logger,
		GridColumns:           cfg.Dashboard.GridColumns,
		EnableDragAndDrop:     cfg.Dashboard.EnableDragAndDrop,
		RequestTimeout:        cfg.Dashboard.RequestTimeout,
		FetchConcurrency:      cfg.Dashboard.FetchConcurrency,
		DisableSingleFallback: cfg.Dashboard.DisableSingleFallback,
	})
	rt.Executor = httpapi.NewCommandExecutor(rt.Orchestrator, rt.Telemetry)
	rt.Reader = httpapi.NewQueryReader(rt.Orchestrator)
	return rt, nil
}

func newBackend(cfg config.BackendConfig) (core.Backend, error) {
	switch cfg.Driver {
	case "http":
		return backend.NewHTTPClient(backend.HTTPConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		})
	case "memory", "":
		var seed *backend.Seed
		if cfg.SeedFile != "" {
			var err error
			if seed, err = backend.ReadSeed(cfg.SeedFile); err != nil {
				return nil, err
			}
		}
		return backend.NewMemoryBackend(seed, backend.MemoryOptions{}), nil
	default:
		return nil, fmt.Errorf("dashboard: unsupported backend driver %q", cfg.Driver)
	}
}
