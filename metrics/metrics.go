package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================================
// HTTP API Metrics
// ============================================================================

var (
	// HTTPRequestsTotal 总请求数
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration 请求延迟
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight 正在处理的请求数
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// ============================================================================
// Market Data / WebSocket Metrics
// ============================================================================

var (
	// WSConnectionsTotal WebSocket连接总数
	WSConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_ws_connections_total",
			Help: "Total number of WebSocket connection attempts",
		},
		[]string{"type", "status"}, // type: "binance.kline", "bybit.publicTrade"...; status: "success", "failed"
	)

	// WSDisconnectsTotal WebSocket断开次数
	WSDisconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_ws_disconnects_total",
			Help: "Total number of WebSocket disconnections",
		},
		[]string{"type", "reason"}, // reason: 上游客户端目前只记录 "closed"
	)

	// WSReconnectsTotal WebSocket重连次数
	WSReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_ws_reconnects_total",
			Help: "Total number of WebSocket reconnection attempts",
		},
		[]string{"type"},
	)

	// WSMessagesTotal WebSocket消息总数
	WSMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_ws_messages_total",
			Help: "Total number of WebSocket messages received",
		},
		[]string{"type"},
	)

	// WSActiveConnections 当前活跃连接数
	WSActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_ws_active_connections",
			Help: "Number of active WebSocket connections",
		},
		[]string{"type"},
	)

	// MarketDataLag 行情数据延迟（秒）
	MarketDataLag = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_market_data_lag_seconds",
			Help: "Market data lag in seconds",
		},
		[]string{"symbol"},
	)

	// SubscribedSymbols 订阅的币种数
	SubscribedSymbols = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_subscribed_symbols",
			Help: "Number of subscribed trading symbols",
		},
	)
)

// ============================================================================
// Event Bus Metrics
// ============================================================================

var (
	// BusDropsTotal 因订阅者队列写满而丢弃的事件数
	BusDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_bus_drops_total",
			Help: "Total number of events dropped due to a full subscriber queue",
		},
		[]string{"topic"},
	)

	// BusSubscribers 当前每个主题的订阅者数量
	BusSubscribers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_bus_subscribers",
			Help: "Number of active subscribers per topic",
		},
		[]string{"topic"},
	)
)

// ============================================================================
// Aggregator Metrics
// ============================================================================

var (
	// AggregatorCycleDuration 聚合服务单轮扫描耗时
	AggregatorCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_aggregator_cycle_duration_seconds",
			Help:    "Duration of one aggregator scan cycle",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"aggregator"},
	)

	// AggregatorEventsTotal 聚合服务发布到总线的事件数
	AggregatorEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_aggregator_events_total",
			Help: "Total number of events published by each aggregator",
		},
		[]string{"aggregator", "exchange"},
	)

	// FeedDegradedTotal 上游连接进入降级状态的次数
	FeedDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_feed_degraded_total",
			Help: "Total number of times an upstream feed entered the degraded state",
		},
		[]string{"exchange", "stream"},
	)
)

// ============================================================================
// Exchange API Metrics
// ============================================================================

var (
	// ExchangeAPIRequestsTotal 交易所API请求总数
	ExchangeAPIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_exchange_api_requests_total",
			Help: "Total number of exchange API requests",
		},
		[]string{"exchange", "endpoint", "status"},
	)

	// ExchangeAPIRequestDuration 交易所API请求延迟
	ExchangeAPIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_exchange_api_request_duration_seconds",
			Help:    "Exchange API request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
		[]string{"exchange", "endpoint"},
	)

	// ExchangeRateLimitHits 限流触发次数
	ExchangeRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_exchange_rate_limit_hits_total",
			Help: "Total number of exchange API rate limit hits",
		},
		[]string{"exchange"},
	)
)

// ============================================================================
// System Metrics（Go runtime metrics are auto-collected by promhttp）
// ============================================================================

var (
	// AppInfo 应用信息
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_app_info",
			Help: "Application information",
		},
		[]string{"version", "go_version"},
	)

	// AppStartTime 应用启动时间
	AppStartTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_app_start_timestamp_seconds",
			Help: "Application start timestamp in seconds",
		},
	)
)

// RecordBusDrop 记录一次因订阅者队列写满导致的事件丢弃。
func RecordBusDrop(topic string) {
	BusDropsTotal.WithLabelValues(topic).Inc()
}

// SetBusSubscribers 设置给定主题当前的订阅者数量。
func SetBusSubscribers(topic string, count int) {
	BusSubscribers.WithLabelValues(topic).Set(float64(count))
}

// RecordFeedDegraded 记录一次上游连接进入降级状态。
func RecordFeedDegraded(exchange, stream string) {
	FeedDegradedTotal.WithLabelValues(exchange, stream).Inc()
}
