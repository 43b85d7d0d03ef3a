package order

import "time"

// Status represents order lifecycle.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusFilled   Status = "FILLED"
	StatusCanceled Status = "CANCELED"
	StatusRejected Status = "REJECTED"
	StatusExpired  Status = "EXPIRED"
)

// IsTerminal 终态不再发生转换。
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// Kind 订单类型。
type Kind string

const (
	KindLimit  Kind = "LIMIT"
	KindMarket Kind = "MARKET"
)

// Order holds one submitted buy order.
// Threshold 为触发该单的跌幅阈值；手动下单时为 nil。
type Order struct {
	ID          int64
	Symbol      string
	Side        string // 恒为 BUY
	Quantity    float64
	Price       float64 // 市价单为 0
	Kind        Kind
	Status      Status
	Threshold   *float64
	SubmittedAt time.Time
	ExpiresAt   time.Time // 仅限价单有效
}
