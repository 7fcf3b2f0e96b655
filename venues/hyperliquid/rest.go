package hyperliquid

import (
	"context"
	"time"

	sdk "github.com/sonirico/go-hyperliquid"

	"atrade/metrics"
)

// RESTClient wraps the go-hyperliquid info client for the lightweight
// registry health check; the websocket subscribe frames are implemented by
// hand in ws.go instead of through the SDK, since the SDK's own streaming
// surface is not guaranteed to match Hyperliquid's raw wire shape.
type RESTClient struct {
	info *sdk.Client
}

// NewRESTClient constructs a public (unauthenticated) Hyperliquid info client.
func NewRESTClient() *RESTClient {
	return &RESTClient{info: sdk.NewClient(sdk.MainnetAPIURL)}
}

// Ping performs a minimal metadata fetch to confirm the venue is reachable,
// used by the exchange registry's HealthCheckAll.
func (r *RESTClient) Ping(ctx context.Context) error {
	start := time.Now()
	_, err := r.info.Meta(ctx)
	status := "success"
	if err != nil {
		status = "failed"
	}
	metrics.ExchangeAPIRequestsTotal.WithLabelValues("hyperliquid", "meta", status).Inc()
	metrics.ExchangeAPIRequestDuration.WithLabelValues("hyperliquid", "meta").Observe(time.Since(start).Seconds())
	return err
}
