package aggregator

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZScoreBelowMinimumSamples(t *testing.T) {
	assert.Equal(t, 0.0, zScore([]float64{1, 2, 3}))
}

func TestZScoreConstantSeriesIsZero(t *testing.T) {
	assert.Equal(t, 0.0, zScore([]float64{5, 5, 5, 5, 5}))
}

func TestZScoreSpikeDetected(t *testing.T) {
	// 预加载50个 N(1e6, 1e4) 附近的样本，再追加一个 z≈10 的尖峰。
	r := rand.New(rand.NewSource(1))
	values := make([]float64, 0, 51)
	for i := 0; i < 50; i++ {
		values = append(values, 1_000_000+r.NormFloat64()*10_000)
	}
	values = append(values, 1_000_000+10*10_000)

	z := zScore(values)
	assert.GreaterOrEqual(t, z, 3.0)
}

func TestWindowCapsAtMax(t *testing.T) {
	var w window
	for i := 0; i < maxWindow+20; i++ {
		w.append(float64(i))
	}
	assert.Len(t, w.values, maxWindow)
	assert.Equal(t, float64(maxWindow+19), w.values[len(w.values)-1])
}
