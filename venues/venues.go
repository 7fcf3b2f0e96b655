// Package venues 定义上游交易所连接器共享的接口、连接状态机与HTTP重试策略。
package venues

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"time"

	"atrade/schema"
)

// State 是单条上游连接的生命周期状态。
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateSubscribing
	StateStreaming
	StateReconnectBackoff
	StateDegraded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateReconnectBackoff:
		return "reconnect_backoff"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// FeedClient 是一个 (交易所, 流类型, 交易对/主题集合) 的长连接流式客户端。
// 实现必须在取消 ctx 后尽快结束 Stream 返回的 channel。
type FeedClient interface {
	// Stream 建立或复用连接，发送订阅帧，随后产出归一化记录。
	Stream(ctx context.Context) (<-chan schema.Event, error)
	// Close 协作式地终止底层连接。
	Close() error
}

// BackoffSchedule 计算第 attempt 次重连（从1开始）应等待的秒数，
// 公式为 min(2^(attempt-1), maxSeconds)，并叠加 ±25% 抖动以避免惊群重连。
func BackoffSchedule(attempt int, maxSeconds int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := math.Min(math.Pow(2, float64(attempt-1)), float64(maxSeconds))
	jitter := 1 + (rand.Float64()*0.5 - 0.25) // [0.75, 1.25]
	seconds := base * jitter
	if seconds < 0 {
		seconds = 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// SleepBackoff 休眠一次退避周期，若 ctx 被取消则提前返回。
func SleepBackoff(ctx context.Context, attempt int, maxSeconds int) {
	d := BackoffSchedule(attempt, maxSeconds)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// HeartbeatInterval 是上游无心跳时判定失活并主动重连的时限。
const HeartbeatInterval = 30 * time.Second

// NewHTTPClient 构造供 REST 调用使用的 HTTP 客户端（10秒超时）。
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// RetryableStatus 判断HTTP状态码是否属于应重试的限流/服务不可用类。
func RetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, 418, http.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}

// RetryBackoff 返回第 attempt 次（从0开始）线性退避的等待时间，按
// `1.5s * (attempt+1)` 策略。RetryableStatus、RetryBackoff 与 MaxHTTPRetries
// 没有调用方：模块内的 REST 调用（Binance、Bybit、Hyperliquid）失败时都不重试。
func RetryBackoff(attempt int) time.Duration {
	return time.Duration(1.5*float64(attempt+1)*1000) * time.Millisecond
}

// MaxHTTPRetries 是HTTP 429/418/503重试的最大次数。
const MaxHTTPRetries = 3
