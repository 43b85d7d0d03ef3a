// Package engine runs the periodic signal-detection driver that ties
// market data, the signal engine, the ledger, the balance gate and the
// order lifecycle manager together.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"dip-buyer-go/balance"
	"dip-buyer-go/config"
	"dip-buyer-go/gateway"
	"dip-buyer-go/ledger"
	"dip-buyer-go/market"
	"dip-buyer-go/metrics"
	"dip-buyer-go/order"
	"dip-buyer-go/strategy"
)

// Engine 信号主循环（≈60s）。任何一次迭代的错误都只记日志，
// 不会终止进程；唯一的致命错误是启动期配置校验失败。
type Engine struct {
	gw      gateway.ExchangeGateway
	market  *market.Service
	ledger  *ledger.ThresholdLedger
	balance *balance.Manager
	orders  *order.Manager
	log     *zap.Logger

	notifier order.Notifier

	// 可热更新参数，单独一把锁
	paramMu       sync.Mutex
	strat         *strategy.Engine
	tradeAmount   float64
	usePercentage bool

	symbols       []string
	orderKind     order.Kind
	maxPerSymbol  int
	cycleInterval time.Duration
	klineInterval string
	klineLimit    int

	nextDailyReset time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// New 组装驱动引擎。
func New(
	cfg config.AppConfig,
	gw gateway.ExchangeGateway,
	mkt *market.Service,
	led *ledger.ThresholdLedger,
	bal *balance.Manager,
	orders *order.Manager,
	strat *strategy.Engine,
	log *zap.Logger,
) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		gw:             gw,
		market:         mkt,
		ledger:         led,
		balance:        bal,
		orders:         orders,
		strat:          strat,
		log:            log,
		tradeAmount:    cfg.Trading.TradeAmount,
		usePercentage:  cfg.Trading.UsePercentage,
		symbols:        cfg.Symbols,
		orderKind:      order.Kind(cfg.Trading.OrderKind),
		maxPerSymbol:   cfg.Trading.MaxOrdersPerSymbol,
		cycleInterval:  time.Duration(cfg.Intervals.SignalSeconds) * time.Second,
		klineInterval:  cfg.Intervals.KlineInterval,
		klineLimit:     cfg.Intervals.KlineLimit,
		nextDailyReset: nextUTCMidnight(time.Now()),
		stopChan:       make(chan struct{}),
	}
}

func (e *Engine) SetNotifier(n order.Notifier) { e.notifier = n }

// ApplyConfig 热更新可调参数。阈值非法时保留旧引擎。
func (e *Engine) ApplyConfig(cfg config.AppConfig) {
	strat, err := strategy.NewEngine(cfg.Thresholds)
	if err != nil {
		e.log.Warn("hot reload kept previous thresholds", zap.Error(err))
		strat = nil
	}
	e.paramMu.Lock()
	defer e.paramMu.Unlock()
	if strat != nil {
		e.strat = strat
	}
	e.tradeAmount = cfg.Trading.TradeAmount
	e.usePercentage = cfg.Trading.UsePercentage
	e.log.Info("trading parameters applied",
		zap.Float64("tradeAmount", cfg.Trading.TradeAmount),
		zap.Bool("usePercentage", cfg.Trading.UsePercentage))
}

// RestoreFromStore 开机恢复：持久化的在途订单与交易所挂单取交集，
// 交易所已不存在的丢弃；交易所有而本地没有的，按保守默认有效期收养。
func (e *Engine) RestoreFromStore(ctx context.Context, st RestoreSource) error {
	persisted, err := st.LoadPending()
	if err != nil {
		return fmt.Errorf("load pending: %w", err)
	}
	consumed, err := st.LoadConsumed()
	if err != nil {
		return fmt.Errorf("load consumed: %w", err)
	}
	open, err := e.gw.GetOpenOrders(ctx, "")
	if err != nil {
		return fmt.Errorf("open orders: %w", err)
	}
	openByID := make(map[int64]gateway.OrderRecord, len(open))
	for _, rec := range open {
		if rec.Side == gateway.SideBuy {
			openByID[rec.ID] = rec
		}
	}

	restore := make([]order.Order, 0, len(persisted))
	for _, o := range persisted {
		if _, stillOpen := openByID[o.ID]; !stillOpen {
			e.log.Info("dropping persisted order no longer open at venue", zap.Int64("orderID", o.ID))
			_ = st.RemovePending(o.ID)
			continue
		}
		restore = append(restore, o)
		delete(openByID, o.ID)
	}
	// 交易所侧存在但本地无记录的挂单：收养并给默认有效期。
	for _, rec := range openByID {
		if !contains(e.symbols, rec.Symbol) {
			continue
		}
		e.log.Info("adopting untracked open order", zap.Int64("orderID", rec.ID),
			zap.String("symbol", rec.Symbol))
		restore = append(restore, order.Order{
			ID:          rec.ID,
			Symbol:      rec.Symbol,
			Side:        gateway.SideBuy,
			Quantity:    rec.OrigQty,
			Price:       rec.Price,
			Kind:        order.KindLimit,
			Status:      order.StatusPending,
			SubmittedAt: rec.SubmittedAt,
		})
	}

	e.orders.RestorePending(restore)
	e.ledger.Restore(consumed)
	e.log.Info("state restored", zap.Int("pending", len(restore)), zap.Int("symbolsWithConsumed", len(consumed)))
	return nil
}

// RestoreSource 开机恢复所需的持久层子集。
type RestoreSource interface {
	LoadPending() ([]order.Order, error)
	LoadConsumed() (map[string][]float64, error)
	RemovePending(orderID int64) error
}

// Start 启动订单生命周期循环与信号主循环。
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("engine already started")
	}
	e.started = true
	e.mu.Unlock()

	if err := e.market.RefreshDailyOpens(ctx); err != nil {
		e.log.Warn("initial daily open refresh incomplete", zap.Error(err))
	}
	if err := e.orders.Start(ctx); err != nil {
		return err
	}

	e.wg.Add(1)
	go e.run(ctx)
	return nil
}

// Stop 按与启动相反的顺序停止。
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	e.mu.Unlock()
	close(e.stopChan)
	e.wg.Wait()
	e.orders.Stop()
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

// runCycle 一次信号周期：日界重置 → 兜底清理 → 信号/下单。
func (e *Engine) runCycle(ctx context.Context) {
	now := time.Now()
	if now.After(e.nextDailyReset) {
		e.handleDailyReset(ctx)
		e.nextDailyReset = nextUTCMidnight(now)
	}

	e.orders.CancelStaleOpenOrders(ctx)
	e.processTrades(ctx)
}

func (e *Engine) processTrades(ctx context.Context) {
	amount, ok := e.resolveTradeAmount(ctx)
	if !ok {
		return
	}
	if !e.balance.HasSufficientBalance(ctx, amount) {
		// 余额门失败只是退避，下个周期自然重试。
		e.log.Warn("insufficient USDT above reserve, skipping cycle",
			zap.Float64("required", amount))
		return
	}

	e.paramMu.Lock()
	strat := e.strat
	kind := e.orderKind
	e.paramMu.Unlock()

	for _, symbol := range e.symbols {
		if e.orders.DailyOrderCount(symbol) >= e.maxPerSymbol {
			continue
		}
		dailyOpen, ok := e.market.DailyOpen(symbol)
		if !ok || dailyOpen <= 0 {
			// 信号引擎不防护零开盘价，这里挡住。
			e.log.Warn("daily open unavailable, skipping symbol", zap.String("symbol", symbol))
			continue
		}
		closes, err := e.market.CloseSeries(ctx, symbol, e.klineInterval, e.klineLimit)
		if err != nil {
			e.log.Warn("close series fetch failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		signals := strat.GenerateSignals(closes, dailyOpen)
		if len(signals) == 0 {
			continue
		}
		metrics.SignalsDetected.Add(float64(len(signals)))

		for _, sig := range signals {
			if !e.ledger.CanFire(symbol, sig.Threshold) {
				continue
			}
			e.log.Info("buy signal",
				zap.String("symbol", symbol),
				zap.Float64("threshold", sig.Threshold),
				zap.Float64("price", sig.Price))
			threshold := sig.Threshold
			qty := amount / sig.Price
			if _, err := e.orders.Submit(ctx, symbol, qty, sig.Price, kind, &threshold); err != nil {
				switch {
				case errors.Is(err, order.ErrDuplicateThreshold):
					// 账本闸门，预期情形，不算错误。
				case errors.Is(err, order.ErrInvalidQuantity), errors.Is(err, order.ErrInvalidPrice):
					e.log.Warn("order rejected by constraints", zap.String("symbol", symbol), zap.Error(err))
				default:
					e.log.Error("order submission failed", zap.String("symbol", symbol), zap.Error(err))
				}
			}
		}
	}
}

// resolveTradeAmount 计算本周期每单的 USDT 金额。
func (e *Engine) resolveTradeAmount(ctx context.Context) (float64, bool) {
	e.paramMu.Lock()
	amount := e.tradeAmount
	usePct := e.usePercentage
	e.paramMu.Unlock()
	if !usePct {
		return amount, true
	}
	free, err := e.balance.FreeQuote(ctx)
	if err != nil {
		e.log.Warn("free balance fetch failed, skipping cycle", zap.Error(err))
		return 0, false
	}
	return free * amount, true
}

func (e *Engine) handleDailyReset(ctx context.Context) {
	e.log.Info("daily reset starting")
	if err := e.market.RefreshDailyOpens(ctx); err != nil {
		e.log.Warn("daily open refresh incomplete during reset", zap.Error(err))
	}
	e.orders.ResetDailyOrderCount(ctx)

	if e.notifier != nil {
		var b strings.Builder
		b.WriteString("🔄 Daily Reset\n")
		for _, symbol := range e.symbols {
			if open, ok := e.market.DailyOpen(symbol); ok {
				fmt.Fprintf(&b, "%s open: $%.2f\n", symbol, open)
			}
		}
		e.notifier.Send(b.String())
	}
	e.log.Info("daily reset completed while preserving open orders")
}

func nextUTCMidnight(now time.Time) time.Time {
	utc := now.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
