// Package registry 实现交易所连接器的中央注册表：按名称查找、按能力过滤、
// 以及 initialize_all/shutdown_all/health_check_all 编排。
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"atrade/logger"
	"atrade/venues/binance"
	"atrade/venues/bybit"
	"atrade/venues/hyperliquid"
)

var log = logger.With("registry")

// Capability 是单个交易所支持的数据能力标签。
type Capability string

const (
	CapOHLC         Capability = "ohlc"
	CapFundingRate  Capability = "funding_rate"
	CapOpenInterest Capability = "open_interest"
	CapLiquidations Capability = "liquidations"
	CapLargeTrades  Capability = "large_trades"
)

// Entry 是注册表中单个交易所的元数据与健康检查函数。
type Entry struct {
	Name         string
	Capabilities map[Capability]bool
	ping         func(ctx context.Context) error
}

// HasCapability 报告该交易所是否支持给定能力。
func (e Entry) HasCapability(c Capability) bool {
	return e.Capabilities[c]
}

// HealthResult 是单个交易所的健康检查结果。
type HealthResult struct {
	OK      bool
	Latency time.Duration
	Err     error
}

// healthTimeout 是每个交易所健康检查调用的上限。
const healthTimeout = 5 * time.Second

// Registry 维护一个按名称索引的交易所连接器注册表。
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New 构造一个空注册表。使用 Build 以默认的四个交易所填充。
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Build 构造本网关支持的四个交易所的注册表：binance、bybit、hyperliquid、okx。
// okx 仅提供强平数据，没有已知的公开REST健康检查端点，因此其健康检查始终报告ok，
// 依赖下游的 WS 连接状态（由 aggregator 的重连退避与日志体现）。
func Build(binanceREST *binance.RESTClient, bybitREST *bybit.RESTClient, hlREST *hyperliquid.RESTClient) *Registry {
	r := New()

	r.register(Entry{
		Name: "binance",
		Capabilities: map[Capability]bool{
			CapOHLC: true, CapFundingRate: true, CapOpenInterest: true,
			CapLiquidations: true, CapLargeTrades: true,
		},
		ping: func(ctx context.Context) error {
			_, err := binanceREST.GetOHLC(ctx, "BTCUSDT", "1m", 1)
			return err
		},
	})

	r.register(Entry{
		Name: "bybit",
		Capabilities: map[Capability]bool{
			CapOHLC: true, CapLiquidations: true, CapLargeTrades: true,
		},
		ping: func(ctx context.Context) error {
			syms, err := bybitREST.ListLinearSymbols(ctx)
			if err != nil {
				return err
			}
			if len(syms) == 0 {
				return fmt.Errorf("bybit: empty instrument list")
			}
			return nil
		},
	})

	r.register(Entry{
		Name: "hyperliquid",
		Capabilities: map[Capability]bool{
			CapOHLC: true, CapLargeTrades: true,
		},
		ping: func(ctx context.Context) error {
			return hlREST.Ping(ctx)
		},
	})

	r.register(Entry{
		Name: "okx",
		Capabilities: map[Capability]bool{
			CapLiquidations: true,
		},
		ping: func(ctx context.Context) error {
			return nil
		},
	})

	return r
}

func (r *Registry) register(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.Name] = e
}

// Get 按名称查找交易所（大小写不敏感）。
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[strings.ToLower(name)]
	return e, ok
}

// List 返回所有已注册交易所名称，按字母序排列。
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// With 返回支持给定能力的交易所名称列表（exchanges_with(feature)）。
func (r *Registry) With(c Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for n, e := range r.entries {
		if e.HasCapability(c) {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// InitializeAll 目前是一个占位 —— 各连接器在聚合服务 Start() 时才建立连接；
// 注册表本身不持有长连接。保留此方法以对齐 initialize_all 的编排语义，
// 便于未来插入每连接器的显式预热逻辑。
func (r *Registry) InitializeAll(ctx context.Context) error {
	for _, name := range r.List() {
		log.Info().Str("exchange", name).Msg("交易所连接器已注册")
	}
	return nil
}

// ShutdownAll 同样是编排占位：各聚合服务通过 ctx 取消自行关闭连接。
func (r *Registry) ShutdownAll() {
	log.Info().Msg("所有交易所连接器已标记关闭")
}

// HealthCheckAll 并发地对每个已注册交易所执行一次有界超时的健康检查。
// 单个交易所检查失败不影响其他交易所的结果。
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]HealthResult {
	names := r.List()
	results := make(map[string]HealthResult, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, name := range names {
		entry, ok := r.Get(name)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(name string, e Entry) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, healthTimeout)
			defer cancel()

			start := time.Now()
			err := e.ping(cctx)
			latency := time.Since(start)

			mu.Lock()
			results[name] = HealthResult{OK: err == nil, Latency: latency, Err: err}
			mu.Unlock()
		}(name, entry)
	}

	wg.Wait()
	return results
}
