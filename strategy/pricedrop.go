// Package strategy implements the price-drop signal engine.
package strategy

import (
	"errors"
	"sort"
)

// Signal 一次阈值击穿：该阈值与当时的最新价。
type Signal struct {
	Threshold float64
	Price     float64
}

// Engine 纯函数信号引擎。无状态、无副作用，去重是账本的职责。
type Engine struct {
	thresholds []float64 // 升序
}

// NewEngine 创建引擎。阈值必须非空、升序、落在 (0, 1)。
func NewEngine(thresholds []float64) (*Engine, error) {
	if len(thresholds) == 0 {
		return nil, errors.New("at least one drop threshold required")
	}
	sorted := make([]float64, len(thresholds))
	copy(sorted, thresholds)
	sort.Float64s(sorted)
	for i, t := range sorted {
		if t <= 0 || t >= 1 {
			return nil, errors.New("thresholds must lie in (0, 1)")
		}
		if i > 0 && sorted[i] == sorted[i-1] {
			return nil, errors.New("duplicate threshold")
		}
	}
	return &Engine{thresholds: sorted}, nil
}

// Thresholds 返回升序阈值拷贝。
func (e *Engine) Thresholds() []float64 {
	res := make([]float64, len(e.thresholds))
	copy(res, e.thresholds)
	return res
}

// GenerateSignals 返回所有已击穿的阈值（升序），而不仅是新击穿的那个。
// dropPct = (open - current) / open，current 取 closes 最后一个元素。
// dailyOpen == 0 由调用方提前校验，这里不做防护。
func (e *Engine) GenerateSignals(closes []float64, dailyOpen float64) []Signal {
	if len(closes) == 0 {
		return nil
	}
	current := closes[len(closes)-1]
	dropPct := (dailyOpen - current) / dailyOpen

	var signals []Signal
	for _, t := range e.thresholds {
		if dropPct >= t {
			signals = append(signals, Signal{Threshold: t, Price: current})
		}
	}
	return signals
}
