package aggregator

import "math"

// maxWindow 是每个 (symbol, timeframe) 滚动窗口保留的最大样本数。
const maxWindow = 100

// minWindowForZ 是计算z分数所需的最小样本数；不足时z分数定义为0。
const minWindowForZ = 5

// window 维护一个指标的滚动历史，超过 maxWindow 后从头部裁剪。
type window struct {
	values []float64
}

// append 把 vs 追加进窗口并裁剪到 maxWindow。
func (w *window) append(vs ...float64) {
	w.values = append(w.values, vs...)
	if len(w.values) > maxWindow {
		w.values = w.values[len(w.values)-maxWindow:]
	}
}

// zScore 按 z = (x_last - mean) / stdev 计算最新观测值相对窗口的z分数；
// 样本数不足5个或标准差为0时返回0（与持仓量/成交量异动监控的设计一致）。
func zScore(values []float64) float64 {
	n := len(values)
	if n < minWindowForZ {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	// 样本标准差（分母 n-1），与 Python statistics.stdev 的定义一致。
	variance /= float64(n - 1)
	stdev := math.Sqrt(variance)
	if stdev <= 0 {
		return 0
	}
	return (values[n-1] - mean) / stdev
}
