// Package balance gates order submission on reserve-adjusted free USDT and
// keeps cumulative trade totals for reporting.
package balance

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"dip-buyer-go/gateway"
	"dip-buyer-go/metrics"
)

const quoteAsset = "USDT"

// Manager 余额门控与成交累计。usdtReserve 是永不动用的底仓。
type Manager struct {
	gw      gateway.ExchangeGateway
	log     *zap.Logger
	symbols []string
	reserve float64

	mu          sync.Mutex
	totalBought map[string]float64
	totalSpent  map[string]float64
	totalTrades int
	snapshot    map[string]gateway.AssetBalance
}

func NewManager(gw gateway.ExchangeGateway, symbols []string, usdtReserve float64, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		gw:          gw,
		log:         log,
		symbols:     symbols,
		reserve:     usdtReserve,
		totalBought: make(map[string]float64),
		totalSpent:  make(map[string]float64),
	}
}

// HasSufficientBalance 可用 USDT 扣除底仓后是否足够。
// 网关故障时宁可错杀（返回 false），由调用方退避重试而非中止。
func (m *Manager) HasSufficientBalance(ctx context.Context, required float64) bool {
	balances, err := m.gw.GetAccountBalances(ctx)
	if err != nil {
		metrics.GatewayErrors.Inc()
		m.log.Error("balance check failed, failing closed", zap.Error(err))
		return false
	}
	free := balances[quoteAsset].Free
	metrics.FreeUSDT.Set(free)
	return free-m.reserve >= required
}

// FreeQuote 当前可用 USDT（未扣底仓）。按比例下单时用。
func (m *Manager) FreeQuote(ctx context.Context) (float64, error) {
	balances, err := m.gw.GetAccountBalances(ctx)
	if err != nil {
		metrics.GatewayErrors.Inc()
		return 0, err
	}
	free := balances[quoteAsset].Free
	metrics.FreeUSDT.Set(free)
	return free, nil
}

// TakeSnapshot 批次首单前抓一次余额，供成交后报表对比。
func (m *Manager) TakeSnapshot(ctx context.Context) {
	report, err := m.report(ctx)
	if err != nil {
		m.log.Warn("balance snapshot failed", zap.Error(err))
		return
	}
	m.mu.Lock()
	m.snapshot = report
	m.mu.Unlock()
}

// Snapshot 返回最近一次快照的拷贝。
func (m *Manager) Snapshot() map[string]gateway.AssetBalance {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make(map[string]gateway.AssetBalance, len(m.snapshot))
	for k, v := range m.snapshot {
		res[k] = v
	}
	return res
}

// RecordFill 成交后累计买入量与花费。
func (m *Manager) RecordFill(symbol string, qty, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalBought[symbol] += qty
	m.totalSpent[symbol] += qty * price
	m.totalTrades++
}

// Profits 以当前价计算各交易对的浮动盈亏。
func (m *Manager) Profits(currentPrices map[string]float64) map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	profits := make(map[string]float64)
	for symbol, bought := range m.totalBought {
		if bought <= 0 {
			continue
		}
		price, ok := currentPrices[symbol]
		if !ok {
			continue
		}
		avg := m.totalSpent[symbol] / bought
		profits[symbol] = (price - avg) * bought
	}
	return profits
}

// TotalTrades 累计成交笔数。
func (m *Manager) TotalTrades() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalTrades
}

// report 只保留 USDT 与所配交易对的 base 资产。
func (m *Manager) report(ctx context.Context) (map[string]gateway.AssetBalance, error) {
	balances, err := m.gw.GetAccountBalances(ctx)
	if err != nil {
		metrics.GatewayErrors.Inc()
		return nil, err
	}
	wanted := map[string]bool{quoteAsset: true}
	for _, symbol := range m.symbols {
		wanted[strings.TrimSuffix(symbol, quoteAsset)] = true
	}
	report := make(map[string]gateway.AssetBalance)
	for asset, b := range balances {
		if wanted[asset] {
			report[asset] = b
		}
	}
	return report, nil
}
