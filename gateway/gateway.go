package gateway

import (
	"context"
	"errors"
	"time"
)

// 订单方向/类型常量，与交易所 REST 字段一致。
const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	KindLimit  = "LIMIT"
	KindMarket = "MARKET"
)

// 交易所侧订单状态。
const (
	StatusNew             = "NEW"
	StatusPartiallyFilled = "PARTIALLY_FILLED"
	StatusFilled          = "FILLED"
	StatusCanceled        = "CANCELED"
	StatusRejected        = "REJECTED"
	StatusExpired         = "EXPIRED"
)

var (
	// ErrUnavailable 网络/5xx 等瞬时故障，下个周期重试。
	ErrUnavailable = errors.New("gateway unavailable")
	// ErrOrderNotFound 查询竞态（订单尚未可见或已归档），按瞬时故障处理。
	ErrOrderNotFound = errors.New("order not found")
)

// OrderRecord 交易所返回的订单视图。
type OrderRecord struct {
	ID          int64
	ClientID    string
	Symbol      string
	Side        string
	Kind        string
	Status      string
	Price       float64
	OrigQty     float64
	ExecutedQty float64
	QuoteSpent  float64 // cummulativeQuoteQty，市价单成交总额
	SubmittedAt time.Time
}

// SymbolFilters 交易对的精度/数量限制（来自 exchangeInfo，变化极少，可缓存）。
type SymbolFilters struct {
	StepSize    float64
	MinQty      float64
	MaxQty      float64
	TickSize    float64
	MinNotional float64
}

// Candle 一根 OHLCV K 线。
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// AssetBalance 单一资产的可用/冻结余额。
type AssetBalance struct {
	Free   float64
	Locked float64
}

// CreateOrderRequest 下单参数。市价单忽略 Price。
type CreateOrderRequest struct {
	Symbol      string
	Side        string
	Kind        string
	Quantity    float64
	Price       float64
	TimeInForce string // 默认 GTC
}

// ExchangeGateway 抽象交易所访问。核心只依赖该接口，便于注入 mock。
type ExchangeGateway interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (OrderRecord, error)
	GetOrder(ctx context.Context, symbol string, orderID int64) (OrderRecord, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	// GetOpenOrders symbol 为空时返回全部交易对的挂单。
	GetOpenOrders(ctx context.Context, symbol string) ([]OrderRecord, error)
	GetSymbolFilters(ctx context.Context, symbol string) (SymbolFilters, error)
	GetTicker(ctx context.Context, symbol string) (float64, error)
	GetHistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	GetAccountBalances(ctx context.Context) (map[string]AssetBalance, error)
}
