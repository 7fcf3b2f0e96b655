package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *Registry {
	r := New()
	r.register(Entry{
		Name:         "binance",
		Capabilities: map[Capability]bool{CapOHLC: true, CapLiquidations: true},
		ping:         func(ctx context.Context) error { return nil },
	})
	r.register(Entry{
		Name:         "okx",
		Capabilities: map[Capability]bool{CapLiquidations: true},
		ping:         func(ctx context.Context) error { return errors.New("boom") },
	})
	return r
}

func TestGetIsCaseInsensitive(t *testing.T) {
	r := testRegistry()
	e, ok := r.Get("BINANCE")
	require.True(t, ok)
	assert.Equal(t, "binance", e.Name)
}

func TestWithFiltersByCapability(t *testing.T) {
	r := testRegistry()
	assert.Equal(t, []string{"binance"}, r.With(CapOHLC))
	assert.Equal(t, []string{"binance", "okx"}, r.With(CapLiquidations))
}

func TestHealthCheckAllIsolatesFailures(t *testing.T) {
	r := testRegistry()
	results := r.HealthCheckAll(context.Background())
	require.Len(t, results, 2)
	assert.True(t, results["binance"].OK)
	assert.False(t, results["okx"].OK)
}
