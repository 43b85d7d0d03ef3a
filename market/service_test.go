package market

import (
	"context"
	"testing"

	"dip-buyer-go/gateway"
)

type stubGateway struct {
	candles   map[string][]gateway.Candle
	candleErr map[string]error
	ticker    float64
	tickerErr error
}

func (s *stubGateway) GetHistoricalCandles(_ context.Context, symbol, _ string, _ int) ([]gateway.Candle, error) {
	if err := s.candleErr[symbol]; err != nil {
		return nil, err
	}
	return s.candles[symbol], nil
}

func (s *stubGateway) GetTicker(context.Context, string) (float64, error) {
	return s.ticker, s.tickerErr
}

func (s *stubGateway) CreateOrder(context.Context, gateway.CreateOrderRequest) (gateway.OrderRecord, error) {
	return gateway.OrderRecord{}, nil
}

func (s *stubGateway) GetOrder(context.Context, string, int64) (gateway.OrderRecord, error) {
	return gateway.OrderRecord{}, nil
}

func (s *stubGateway) CancelOrder(context.Context, string, int64) error { return nil }

func (s *stubGateway) GetOpenOrders(context.Context, string) ([]gateway.OrderRecord, error) {
	return nil, nil
}

func (s *stubGateway) GetSymbolFilters(context.Context, string) (gateway.SymbolFilters, error) {
	return gateway.SymbolFilters{}, nil
}

func (s *stubGateway) GetAccountBalances(context.Context) (map[string]gateway.AssetBalance, error) {
	return nil, nil
}

func TestRefreshDailyOpens(t *testing.T) {
	gw := &stubGateway{candles: map[string][]gateway.Candle{
		"BTCUSDT": {{Open: 100, Close: 98}},
		"ETHUSDT": {{Open: 2000, Close: 1990}},
	}}
	s := NewService(gw, []string{"BTCUSDT", "ETHUSDT"}, nil)
	if err := s.RefreshDailyOpens(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if open, ok := s.DailyOpen("BTCUSDT"); !ok || open != 100 {
		t.Fatalf("BTCUSDT open = %v %v", open, ok)
	}
	if open, ok := s.DailyOpen("ETHUSDT"); !ok || open != 2000 {
		t.Fatalf("ETHUSDT open = %v %v", open, ok)
	}
}

func TestRefreshDailyOpensPartialFailure(t *testing.T) {
	gw := &stubGateway{
		candles:   map[string][]gateway.Candle{"ETHUSDT": {{Open: 2000}}},
		candleErr: map[string]error{"BTCUSDT": gateway.ErrUnavailable},
	}
	s := NewService(gw, []string{"BTCUSDT", "ETHUSDT"}, nil)
	// 单个交易对失败要上报，但不能拖垮其余交易对的刷新
	if err := s.RefreshDailyOpens(context.Background()); err == nil {
		t.Fatal("expected error for the failed symbol")
	}
	if _, ok := s.DailyOpen("BTCUSDT"); ok {
		t.Fatal("failed symbol must have no stale open")
	}
	if open, ok := s.DailyOpen("ETHUSDT"); !ok || open != 2000 {
		t.Fatalf("healthy symbol must refresh, got %v %v", open, ok)
	}
}

func TestCloseSeries(t *testing.T) {
	gw := &stubGateway{candles: map[string][]gateway.Candle{
		"BTCUSDT": {{Close: 99}, {Close: 97}, {Close: 96}},
	}}
	s := NewService(gw, []string{"BTCUSDT"}, nil)
	closes, err := s.CloseSeries(context.Background(), "BTCUSDT", "1h", 24)
	if err != nil {
		t.Fatalf("close series: %v", err)
	}
	if len(closes) != 3 || closes[2] != 96 {
		t.Fatalf("unexpected closes: %v", closes)
	}
}

func TestLastPricePrefersStreamCache(t *testing.T) {
	gw := &stubGateway{ticker: 123}
	s := NewService(gw, []string{"BTCUSDT"}, nil)

	// 缓存缺失时回退 REST
	price, err := s.LastPrice(context.Background(), "BTCUSDT")
	if err != nil || price != 123 {
		t.Fatalf("ticker fallback = %v err %v", price, err)
	}

	s.UpdatePrice("BTCUSDT", 456)
	price, err = s.LastPrice(context.Background(), "BTCUSDT")
	if err != nil || price != 456 {
		t.Fatalf("stream cache = %v err %v", price, err)
	}
}

func TestCurrentPricesCopy(t *testing.T) {
	s := NewService(&stubGateway{}, nil, nil)
	s.UpdatePrice("BTCUSDT", 100)
	prices := s.CurrentPrices()
	prices["BTCUSDT"] = 0
	if got := s.CurrentPrices()["BTCUSDT"]; got != 100 {
		t.Fatalf("internal cache mutated through copy, got %v", got)
	}
}
