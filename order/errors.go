package order

import "errors"

var (
	// ErrDuplicateThreshold 该 (symbol, threshold) 本周期已消耗，静默跳过，不算故障。
	ErrDuplicateThreshold = errors.New("threshold already consumed this period")
	// ErrInvalidQuantity 数量向下取整后落在 [minQty, maxQty] 之外。
	ErrInvalidQuantity = errors.New("quantity outside lot size bounds")
	// ErrInvalidPrice 价格无法对齐 tick。
	ErrInvalidPrice = errors.New("price violates tick size")
)
