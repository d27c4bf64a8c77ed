package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/goliatone/go-metricsboard/components/dashboard"
	"github.com/goliatone/go-metricsboard/pkg/config"
)

func TestAssembleRequiresConfig(t *testing.T) {
	_, err := Assemble(nil, Deps{})
	require.Error(t, err)
}

func TestAssembleMemoryBackendFromSeed(t *testing.T) {
	cfg := config.Defaults()
	cfg.Backend.SeedFile = "../backend/testdata/seed.yaml"
	reg := prometheus.NewRegistry()

	rt, err := Assemble(cfg, Deps{Registerer: reg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	handle, err := rt.Orchestrator.LoadDashboard(context.Background(), 0)
	require.NoError(t, err)
	select {
	case <-handle.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("dashboard data did not settle")
	}
	state := rt.Orchestrator.Snapshot()
	require.NotNil(t, state.Current)
	assert.Equal(t, "Main", state.Current.Name)
	assert.Len(t, state.Visible, 2)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestAssembleUnknownDriver(t *testing.T) {
	cfg := config.Defaults()
	cfg.Backend.Driver = "postgres"
	_, err := Assemble(cfg, Deps{})
	require.Error(t, err)
}

func TestAssembleRedisReferenceCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Defaults()
	cfg.Backend.SeedFile = "../backend/testdata/seed.yaml"
	cfg.Cache.Driver = "redis"
	cfg.Cache.RedisAddr = mr.Addr()

	rt, err := Assemble(cfg, Deps{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	items, err := rt.Orchestrator.ReferenceList(context.Background(), core.DimensionVideo)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.NotEmpty(t, mr.Keys(), "reference list should be cached in redis")
}
