// Package ledger tracks which drop thresholds have already fired per symbol
// within the current trading day.
package ledger

import (
	"sync"

	"go.uber.org/zap"
)

// Store 消耗记录的持久化钩子，可为 nil。
type Store interface {
	SaveConsumed(symbol string, threshold float64) error
	ReplaceConsumed(symbol string, thresholds []float64) error
}

// ThresholdLedger 每个 (symbol, threshold) 本周期最多触发一次。
// 所有访问串行在同一把锁后面。
type ThresholdLedger struct {
	mu       sync.Mutex
	consumed map[string]map[float64]struct{}
	store    Store
	log      *zap.Logger
}

func New(log *zap.Logger) *ThresholdLedger {
	if log == nil {
		log = zap.NewNop()
	}
	return &ThresholdLedger{
		consumed: make(map[string]map[float64]struct{}),
		log:      log,
	}
}

func (l *ThresholdLedger) SetStore(s Store) { l.store = s }

// CanFire 该阈值本周期是否仍可触发。
func (l *ThresholdLedger) CanFire(symbol string, threshold float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.consumed[symbol]
	if !ok {
		return true
	}
	_, used := set[threshold]
	return !used
}

// MarkFired 记录阈值已消耗。幂等。
func (l *ThresholdLedger) MarkFired(symbol string, threshold float64) {
	l.mu.Lock()
	set, ok := l.consumed[symbol]
	if !ok {
		set = make(map[float64]struct{})
		l.consumed[symbol] = set
	}
	_, already := set[threshold]
	set[threshold] = struct{}{}
	l.mu.Unlock()

	if already {
		return
	}
	l.log.Info("threshold marked as consumed",
		zap.String("symbol", symbol), zap.Float64("threshold", threshold))
	if l.store != nil {
		if err := l.store.SaveConsumed(symbol, threshold); err != nil {
			l.log.Warn("persist consumed threshold failed", zap.Error(err))
		}
	}
}

// ResetForNewPeriod 日界重置：消耗集合收缩为仍有在途订单背书的阈值。
// stillOpen 为空时整个集合被清空。
func (l *ThresholdLedger) ResetForNewPeriod(symbol string, stillOpen []float64) {
	l.mu.Lock()
	if len(stillOpen) == 0 {
		delete(l.consumed, symbol)
	} else {
		set := make(map[float64]struct{}, len(stillOpen))
		for _, t := range stillOpen {
			set[t] = struct{}{}
		}
		l.consumed[symbol] = set
	}
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.ReplaceConsumed(symbol, stillOpen); err != nil {
			l.log.Warn("persist ledger reset failed", zap.Error(err))
		}
	}
}

// Restore 开机时从持久层恢复消耗集合，不触发写回。
func (l *ThresholdLedger) Restore(consumed map[string][]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for symbol, thresholds := range consumed {
		set := make(map[float64]struct{}, len(thresholds))
		for _, t := range thresholds {
			set[t] = struct{}{}
		}
		l.consumed[symbol] = set
	}
}

// Consumed 返回某交易对已消耗阈值的拷贝（测试/报表用）。
func (l *ThresholdLedger) Consumed(symbol string) []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	set := l.consumed[symbol]
	res := make([]float64, 0, len(set))
	for t := range set {
		res = append(res, t)
	}
	return res
}
