package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SymbolConstraints 描述交易对的步长与数量限制（来自 exchangeInfo）。
type SymbolConstraints struct {
	TickSize    float64
	StepSize    float64
	MinQty      float64
	MaxQty      float64
	MinNotional float64
}

// NormalizeQuantity 将数量向下取整到 stepSize 的整数倍，并检查 [minQty, maxQty]。
// 只向下取整，绝不向上——宁可少买也不超支。
func (c SymbolConstraints) NormalizeQuantity(qty float64) (float64, error) {
	rounded := qty
	if c.StepSize > 0 {
		d := decimal.NewFromFloat(qty)
		step := decimal.NewFromFloat(c.StepSize)
		rounded, _ = d.Div(step).Floor().Mul(step).Float64()
	}
	if c.MinQty > 0 && rounded < c.MinQty {
		return 0, fmt.Errorf("%w: %.8f < minQty %.8f", ErrInvalidQuantity, rounded, c.MinQty)
	}
	if c.MaxQty > 0 && rounded > c.MaxQty {
		return 0, fmt.Errorf("%w: %.8f > maxQty %.8f", ErrInvalidQuantity, rounded, c.MaxQty)
	}
	return rounded, nil
}

// NormalizePrice 将价格对齐到 tickSize（就近取整）。
func (c SymbolConstraints) NormalizePrice(price float64) (float64, error) {
	if c.TickSize <= 0 {
		return price, nil
	}
	d := decimal.NewFromFloat(price)
	tick := decimal.NewFromFloat(c.TickSize)
	aligned, _ := d.Div(tick).Round(0).Mul(tick).Float64()
	if aligned <= 0 {
		return 0, fmt.Errorf("%w: %.8f with tick %.8f", ErrInvalidPrice, price, c.TickSize)
	}
	return aligned, nil
}

// CheckNotional 校验名义金额下限。市价单以当前价估算。
func (c SymbolConstraints) CheckNotional(price, qty float64) error {
	if c.MinNotional > 0 && price*qty < c.MinNotional {
		return fmt.Errorf("%w: notional %.8f < minNotional %.8f", ErrInvalidQuantity, price*qty, c.MinNotional)
	}
	return nil
}
