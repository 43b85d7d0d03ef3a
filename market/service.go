// Package market caches daily open prices and live prices for the
// configured trading pairs.
package market

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"dip-buyer-go/gateway"
	"dip-buyer-go/metrics"
)

// Service 行情缓存。日开盘价在日界刷新；最新价由 WS 流喂入，
// 缓存缺失时回退 REST ticker。
type Service struct {
	gw      gateway.ExchangeGateway
	log     *zap.Logger
	symbols []string

	mu        sync.RWMutex
	dailyOpen map[string]float64
	lastPrice map[string]float64
}

func NewService(gw gateway.ExchangeGateway, symbols []string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		gw:        gw,
		log:       log,
		symbols:   symbols,
		dailyOpen: make(map[string]float64),
		lastPrice: make(map[string]float64),
	}
}

// RefreshDailyOpens 取当日 1d K 线的开盘价。单个交易对失败不影响其余。
func (s *Service) RefreshDailyOpens(ctx context.Context) error {
	var firstErr error
	for _, symbol := range s.symbols {
		candles, err := s.gw.GetHistoricalCandles(ctx, symbol, "1d", 1)
		if err != nil || len(candles) == 0 {
			if firstErr == nil {
				firstErr = fmt.Errorf("daily open for %s: %w", symbol, err)
			}
			s.log.Warn("daily open refresh failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		open := candles[len(candles)-1].Open
		s.mu.Lock()
		s.dailyOpen[symbol] = open
		s.mu.Unlock()
		metrics.DailyOpenPrice.WithLabelValues(symbol).Set(open)
		s.log.Info("daily open price", zap.String("symbol", symbol), zap.Float64("open", open))
	}
	return firstErr
}

// DailyOpen 返回缓存的日开盘价。
func (s *Service) DailyOpen(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.dailyOpen[symbol]
	return v, ok
}

// CloseSeries 返回信号周期内按时间升序的收盘价序列。
func (s *Service) CloseSeries(ctx context.Context, symbol, interval string, limit int) ([]float64, error) {
	candles, err := s.gw.GetHistoricalCandles(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	closes := make([]float64, 0, len(candles))
	for _, c := range candles {
		closes = append(closes, c.Close)
	}
	return closes, nil
}

// UpdatePrice WS 流回调：更新最新价缓存。
func (s *Service) UpdatePrice(symbol string, price float64) {
	s.mu.Lock()
	s.lastPrice[symbol] = price
	s.mu.Unlock()
}

// LastPrice 优先用缓存，缓存缺失时回退 REST ticker。
func (s *Service) LastPrice(ctx context.Context, symbol string) (float64, error) {
	s.mu.RLock()
	price, ok := s.lastPrice[symbol]
	s.mu.RUnlock()
	if ok && price > 0 {
		return price, nil
	}
	price, err := s.gw.GetTicker(ctx, symbol)
	if err != nil {
		return 0, err
	}
	s.UpdatePrice(symbol, price)
	return price, nil
}

// CurrentPrices 返回最新价缓存拷贝（盈亏报表用）。
func (s *Service) CurrentPrices() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make(map[string]float64, len(s.lastPrice))
	for k, v := range s.lastPrice {
		res[k] = v
	}
	return res
}
