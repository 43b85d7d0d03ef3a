package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Binance 错误码：订单不存在（查询竞态时返回）。
const binanceCodeOrderNotExist = -2013

// BinanceGateway 基于 go-binance SDK 的现货网关实现。
// 所有请求先过限流器；symbol filters 在首次访问后缓存。
type BinanceGateway struct {
	client  *binance.Client
	limiter *rate.Limiter

	mu      sync.RWMutex
	filters map[string]SymbolFilters
}

// BinanceConfig 网关配置。
type BinanceConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string // 留空用 SDK 默认
	Testnet   bool
	// REST 限流：每秒请求数与突发上限。
	RequestsPerSecond float64
	Burst             int
}

// NewBinanceGateway 创建网关。
func NewBinanceGateway(cfg BinanceConfig) *BinanceGateway {
	binance.UseTestnet = cfg.Testnet
	client := binance.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	return &BinanceGateway{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		filters: make(map[string]SymbolFilters),
	}
}

// CreateOrder 下单。限价单强制 GTC（除非指定），市价单不带价格。
func (g *BinanceGateway) CreateOrder(ctx context.Context, req CreateOrderRequest) (OrderRecord, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return OrderRecord{}, err
	}
	svc := g.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(binance.SideType(req.Side)).
		Type(binance.OrderType(req.Kind)).
		Quantity(formatAmount(req.Quantity))
	if req.Kind == KindLimit {
		tif := req.TimeInForce
		if tif == "" {
			tif = string(binance.TimeInForceTypeGTC)
		}
		svc = svc.TimeInForce(binance.TimeInForceType(tif)).Price(formatAmount(req.Price))
	}
	res, err := svc.Do(ctx)
	if err != nil {
		return OrderRecord{}, wrapBinanceErr("create order", err)
	}
	return OrderRecord{
		ID:          res.OrderID,
		ClientID:    res.ClientOrderID,
		Symbol:      res.Symbol,
		Side:        string(res.Side),
		Kind:        string(res.Type),
		Status:      string(res.Status),
		Price:       parseFloat(res.Price),
		OrigQty:     parseFloat(res.OrigQuantity),
		ExecutedQty: parseFloat(res.ExecutedQuantity),
		QuoteSpent:  parseFloat(res.CummulativeQuoteQuantity),
		SubmittedAt: time.UnixMilli(res.TransactTime),
	}, nil
}

// GetOrder 查询单笔订单状态。
func (g *BinanceGateway) GetOrder(ctx context.Context, symbol string, orderID int64) (OrderRecord, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return OrderRecord{}, err
	}
	o, err := g.client.NewGetOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return OrderRecord{}, wrapBinanceErr("get order", err)
	}
	return fromSDKOrder(o), nil
}

// CancelOrder 撤单。订单已不存在按 ErrOrderNotFound 返回，调用方可视为已终结。
func (g *BinanceGateway) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := g.client.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return wrapBinanceErr("cancel order", err)
	}
	return nil
}

// GetOpenOrders 查询挂单，symbol 为空时查全账户。
func (g *BinanceGateway) GetOpenOrders(ctx context.Context, symbol string) ([]OrderRecord, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	svc := g.client.NewListOpenOrdersService()
	if symbol != "" {
		svc = svc.Symbol(symbol)
	}
	orders, err := svc.Do(ctx)
	if err != nil {
		return nil, wrapBinanceErr("open orders", err)
	}
	records := make([]OrderRecord, 0, len(orders))
	for _, o := range orders {
		records = append(records, fromSDKOrder(o))
	}
	return records, nil
}

// GetSymbolFilters 返回交易对的 LOT_SIZE/PRICE_FILTER，首次查询后缓存。
func (g *BinanceGateway) GetSymbolFilters(ctx context.Context, symbol string) (SymbolFilters, error) {
	g.mu.RLock()
	if f, ok := g.filters[symbol]; ok {
		g.mu.RUnlock()
		return f, nil
	}
	g.mu.RUnlock()

	if err := g.limiter.Wait(ctx); err != nil {
		return SymbolFilters{}, err
	}
	info, err := g.client.NewExchangeInfoService().Symbols(symbol).Do(ctx)
	if err != nil {
		return SymbolFilters{}, wrapBinanceErr("exchange info", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		var f SymbolFilters
		if lot := s.LotSizeFilter(); lot != nil {
			f.StepSize = parseFloat(lot.StepSize)
			f.MinQty = parseFloat(lot.MinQuantity)
			f.MaxQty = parseFloat(lot.MaxQuantity)
		}
		if pf := s.PriceFilter(); pf != nil {
			f.TickSize = parseFloat(pf.TickSize)
		}
		if nf := s.NotionalFilter(); nf != nil {
			f.MinNotional = parseFloat(nf.MinNotional)
		}
		g.mu.Lock()
		g.filters[symbol] = f
		g.mu.Unlock()
		return f, nil
	}
	return SymbolFilters{}, fmt.Errorf("symbol %s not in exchange info", symbol)
}

// GetTicker 查询最新成交价。
func (g *BinanceGateway) GetTicker(ctx context.Context, symbol string) (float64, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	prices, err := g.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, wrapBinanceErr("ticker", err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no ticker for %s", symbol)
	}
	return parseFloat(prices[0].Price), nil
}

// GetHistoricalCandles 查询最近 limit 根 K 线，按时间升序返回。
func (g *BinanceGateway) GetHistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	klines, err := g.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, wrapBinanceErr("klines", err)
	}
	candles := make([]Candle, 0, len(klines))
	for _, k := range klines {
		candles = append(candles, Candle{
			OpenTime: time.UnixMilli(k.OpenTime),
			Open:     parseFloat(k.Open),
			High:     parseFloat(k.High),
			Low:      parseFloat(k.Low),
			Close:    parseFloat(k.Close),
			Volume:   parseFloat(k.Volume),
		})
	}
	return candles, nil
}

// GetAccountBalances 查询账户余额，只返回非零资产。
func (g *BinanceGateway) GetAccountBalances(ctx context.Context) (map[string]AssetBalance, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	acct, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, wrapBinanceErr("account", err)
	}
	balances := make(map[string]AssetBalance)
	for _, b := range acct.Balances {
		free := parseFloat(b.Free)
		locked := parseFloat(b.Locked)
		if free == 0 && locked == 0 {
			continue
		}
		balances[b.Asset] = AssetBalance{Free: free, Locked: locked}
	}
	return balances, nil
}

func fromSDKOrder(o *binance.Order) OrderRecord {
	return OrderRecord{
		ID:          o.OrderID,
		ClientID:    o.ClientOrderID,
		Symbol:      o.Symbol,
		Side:        string(o.Side),
		Kind:        string(o.Type),
		Status:      string(o.Status),
		Price:       parseFloat(o.Price),
		OrigQty:     parseFloat(o.OrigQuantity),
		ExecutedQty: parseFloat(o.ExecutedQuantity),
		QuoteSpent:  parseFloat(o.CummulativeQuoteQuantity),
		SubmittedAt: time.UnixMilli(o.Time),
	}
}

// wrapBinanceErr 把 SDK 错误映射到网关错误分类。
// -2013 → ErrOrderNotFound；其余 API 错误保留原文，网络错误归为 ErrUnavailable。
func wrapBinanceErr(op string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == binanceCodeOrderNotExist {
			return fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

// formatAmount 输出十进制字符串，极小值不会退化成科学计数法。
func formatAmount(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
