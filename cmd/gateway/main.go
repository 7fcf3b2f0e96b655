package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"atrade/aggregator"
	"atrade/bootstrap"
	"atrade/bus"
	"atrade/config"
	"atrade/logger"
	"atrade/metrics"
	"atrade/registry"
	"atrade/venues/binance"
	"atrade/venues/bybit"
	"atrade/venues/hyperliquid"
	"atrade/wsapi"
)

func main() {
	fmt.Println("╔════════════════════════════════════════════════════════════╗")
	fmt.Println("║     📡 多交易所行情网关 - Binance/Bybit/Hyperliquid/OKX      ║")
	fmt.Println("╚════════════════════════════════════════════════════════════╝")
	fmt.Println()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		fmt.Printf("❌ 读取config.json失败: %v\n", err)
		os.Exit(1)
	}

	logLevel, pretty := "info", true
	if cfg.Log != nil {
		logLevel, pretty = cfg.Log.Level, cfg.Log.Pretty
	}
	logger.Init(logLevel, pretty)
	log := logger.With("main")

	metrics.Init()

	bootCtx := bootstrap.NewContext(cfg)

	bootstrap.Register("registry", bootstrap.PriorityCore, func(bc *bootstrap.Context) error {
		binanceREST := binance.NewRESTClient("", "")
		bybitREST := bybit.NewRESTClient(nil)
		hlREST := hyperliquid.NewRESTClient()

		bc.Set("binance.rest", binanceREST)
		bc.Set("bybit.rest", bybitREST)
		bc.Set("hyperliquid.rest", hlREST)
		bc.Set("registry", registry.Build(binanceREST, bybitREST, hlREST))
		return nil
	})

	bootstrap.Register("bus", bootstrap.PriorityCore, func(bc *bootstrap.Context) error {
		bc.Set("bus", bus.New(cfg.BusQueueCapacity))
		return nil
	})

	if err := bootstrap.Run(bootCtx); err != nil {
		log.Error().Err(err).Msg("❌ 初始化失败")
		os.Exit(1)
	}

	eventBus := bootCtx.MustGet("bus").(*bus.Bus)
	reg := bootCtx.MustGet("registry").(*registry.Registry)
	binanceREST := bootCtx.MustGet("binance.rest").(*binance.RESTClient)

	wsapi.SetBus(eventBus)

	if err := reg.InitializeAll(context.Background()); err != nil {
		log.Error().Err(err).Msg("❌ 交易所连接器注册失败")
		os.Exit(1)
	}
	log.Info().Str("connectors", strings.Join(reg.List(), ", ")).Msg("🔄 交易所连接器")

	liqAgg := aggregator.NewLiquidationAggregator(eventBus, aggregator.LiquidationConfig{
		MinValueUSD:       cfg.MinLiquidationValueUSD,
		MaxBackoffSeconds: cfg.WSReconnectMaxSeconds,
	}, http.DefaultClient)

	largeTradeAgg := aggregator.NewLargeTradeAggregator(eventBus, aggregator.LargeTradeConfig{
		ThresholdUSD:      cfg.LargeTradeThresholdUSD,
		MaxBackoffSeconds: cfg.WSReconnectMaxSeconds,
		Symbols:           cfg.SupportedSymbols,
	})

	spikeRules := make(map[string]aggregator.TimeframeRule, len(cfg.Timeframes))
	for tf, rule := range cfg.Timeframes {
		spikeRules[tf] = aggregator.TimeframeRule{
			ZThreshold: rule.ZThreshold,
			MinOIUSD:   rule.MinOIUSD,
			MinVolUSD:  rule.MinVolUSD,
		}
	}
	spikeMonitor := aggregator.NewSpikeMonitor(eventBus, binanceREST, aggregator.SpikeConfig{
		Rules:        spikeRules,
		CycleSeconds: cfg.OIVolCycleSeconds,
		SymbolsLimit: cfg.OIVolSymbolsLimit,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().Msg("🔄 启动强平/大单/异动聚合服务...")
	liqAgg.Start(ctx)
	largeTradeAgg.Start(ctx)
	spikeMonitor.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), metrics.GinMiddleware())
	r.Use(corsMiddleware(cfg.CORSOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		results := reg.HealthCheckAll(c.Request.Context())
		status := http.StatusOK
		body := gin.H{}
		for name, res := range results {
			body[name] = gin.H{"ok": res.OK, "latency_ms": res.Latency.Milliseconds()}
			if !res.OK {
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, body)
	})
	r.GET("/metrics", metrics.Handler())

	wsServer := wsapi.NewServer(reg, cfg.WSReconnectMaxSeconds, cfg.MaxSymbolsPerConnection)
	wsServer.Register(r)

	addr := ":" + strconv.Itoa(cfg.APIServerPort)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		log.Info().Str("addr", addr).Msg("✅ 网关监听中")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("❌ HTTP服务器错误")
		}
	}()

	fmt.Println()
	fmt.Println("按 Ctrl+C 停止运行")
	fmt.Println(strings.Repeat("=", 60))

	<-ctx.Done()
	fmt.Println()
	log.Info().Msg("📛 收到退出信号，正在优雅关闭...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("⚠️ 关闭HTTP服务器时出错")
	} else {
		log.Info().Msg("✅ HTTP服务器已安全关闭")
	}

	reg.ShutdownAll()
	log.Info().Msg("👋 网关已退出")
}

// corsMiddleware 按config.json中的cors_origins白名单放行跨域请求，
// WS握手升级请求也经由此中间件（不影响Upgrade头）。
func corsMiddleware(origins []string) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	if len(origins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	return cors.New(corsConfig)
}
