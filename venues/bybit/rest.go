package bybit

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"atrade/metrics"
	"atrade/venues"
)

const instrumentsInfoURL = "https://api.bybit.com/v5/market/instruments-info?category=linear"

// RESTClient 是 Bybit 的公共行情REST客户端，目前仅用于交易对发现
// （强平聚合服务在启动及每次重连后拉取交易对列表，注册表健康检查也调用它）。
type RESTClient struct {
	http *http.Client
}

// NewRESTClient 构造一个共享的Bybit公共REST客户端；httpClient 为 nil 时使用 venues.NewHTTPClient()。
func NewRESTClient(httpClient *http.Client) *RESTClient {
	if httpClient == nil {
		httpClient = venues.NewHTTPClient()
	}
	return &RESTClient{http: httpClient}
}

type instrumentsResponse struct {
	Result struct {
		List []struct {
			Symbol string `json:"symbol"`
			Status string `json:"status"`
		} `json:"list"`
	} `json:"result"`
}

// ListLinearSymbols 拉取当前线性永续合约交易对列表；失败或为空时由调用方负责退避重试。
func (r *RESTClient) ListLinearSymbols(ctx context.Context) ([]string, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, instrumentsInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.http.Do(req)
	status := "success"
	if err != nil {
		status = "failed"
		metrics.ExchangeAPIRequestsTotal.WithLabelValues("bybit", "instrumentsInfo", status).Inc()
		metrics.ExchangeAPIRequestDuration.WithLabelValues("bybit", "instrumentsInfo").Observe(time.Since(start).Seconds())
		return nil, err
	}
	defer resp.Body.Close()

	var parsed instrumentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		status = "failed"
	}
	metrics.ExchangeAPIRequestsTotal.WithLabelValues("bybit", "instrumentsInfo", status).Inc()
	metrics.ExchangeAPIRequestDuration.WithLabelValues("bybit", "instrumentsInfo").Observe(time.Since(start).Seconds())
	if err := errFromStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(parsed.Result.List))
	for _, s := range parsed.Result.List {
		if s.Status == "Trading" {
			symbols = append(symbols, s.Symbol)
		}
	}
	return symbols, nil
}

func errFromStatus(code int) error {
	if code >= 200 && code < 300 {
		return nil
	}
	return httpStatusError{code: code}
}

type httpStatusError struct{ code int }

func (e httpStatusError) Error() string {
	return "bybit: unexpected HTTP status " + http.StatusText(e.code)
}
