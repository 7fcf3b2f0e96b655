package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
)

// LogConfig 日志配置
type LogConfig struct {
	Level    string `json:"level"`    // 日志级别: debug, info, warn, error (默认: info)
	Pretty   bool   `json:"pretty"`   // 是否使用控制台友好格式（开发环境建议开启）
}

// TimeframeRule 单个时间窗口的异动检测参数
type TimeframeRule struct {
	ZThreshold float64 `json:"z_threshold"`   // z分数阈值
	MinOIUSD   float64 `json:"min_oi_usd"`    // 最小持仓量（美元），低于此值不做异动判断
	MinVolUSD  float64 `json:"min_vol_usd"`   // 最小成交额（美元），低于此值不做异动判断
}

// Config 网关总配置
type Config struct {
	APIServerPort           int                      `json:"api_server_port"`
	SupportedSymbols        []string                 `json:"supported_symbols"`          // 支持的交易对（如 BTCUSDT,ETHUSDT）
	LargeTradeThresholdUSD  float64                  `json:"large_trade_threshold_usd"`  // 大单阈值（美元）
	MinLiquidationValueUSD  float64                  `json:"min_liquidation_value_usd"`  // 强平事件最小价值（美元）
	MaxSymbolsPerConnection int                      `json:"max_symbols_per_connection"` // 单个多路复用连接最多订阅的交易对数
	WSReconnectMaxSeconds   int                      `json:"ws_reconnect_max_seconds"`   // 上游重连退避上限（秒）
	BusQueueCapacity        int                      `json:"bus_queue_capacity"`         // 事件总线每订阅者队列容量
	OIVolCycleSeconds       int                      `json:"oi_vol_cycle_seconds"`       // 持仓量/成交量异动扫描周期（秒）
	OIVolSymbolsLimit       int                      `json:"oi_vol_symbols_limit"`       // 每轮扫描的交易对数量上限
	Timeframes              map[string]TimeframeRule `json:"timeframes"`                 // 按时间窗口（5m/15m/1h）配置的异动参数
	CORSOrigins             []string                 `json:"cors_origins"`
	Log                     *LogConfig               `json:"log"` // 日志配置
}

// defaults 返回网关在缺省配置文件时使用的安全默认值
func defaults() *Config {
	return &Config{
		APIServerPort:           8080,
		SupportedSymbols:        []string{"BTCUSDT", "ETHUSDT"},
		LargeTradeThresholdUSD:  100_000,
		MinLiquidationValueUSD:  50_000,
		MaxSymbolsPerConnection: 50,
		WSReconnectMaxSeconds:   30,
		BusQueueCapacity:        1000,
		OIVolCycleSeconds:       300,
		OIVolSymbolsLimit:       80,
		Timeframes: map[string]TimeframeRule{
			"5m":  {ZThreshold: 3.0, MinOIUSD: 500_000, MinVolUSD: 100_000},
			"15m": {ZThreshold: 2.5, MinOIUSD: 1_000_000, MinVolUSD: 250_000},
			"1h":  {ZThreshold: 2.0, MinOIUSD: 2_500_000, MinVolUSD: 1_000_000},
		},
		Log: &LogConfig{Level: "info", Pretty: true},
	}
}

// LoadConfig 从文件加载配置；文件不存在时回退到默认配置
func LoadConfig(filename string) (*Config, error) {
	cfg := defaults()

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		log.Printf("📄 %s不存在，使用默认配置", filename)
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("读取%s失败: %w", filename, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析%s失败: %w", filename, err)
	}

	return cfg, nil
}
