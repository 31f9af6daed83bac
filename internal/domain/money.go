package domain

import "github.com/shopspring/decimal"

// Round2 金额统一保留两位小数
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Totals 订单金额汇总，满足 Final = Subtotal + Tax - Discount
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Discount decimal.Decimal `json:"discount"`
	Final    decimal.Decimal `json:"final"`
}

// NewTotals 按税率（百分比）和折扣金额计算
func NewTotals(subtotal, taxRatePercent, discount decimal.Decimal) Totals {
	subtotal = Round2(subtotal)
	tax := Round2(subtotal.Mul(taxRatePercent).Div(decimal.NewFromInt(100)))
	return withFinal(subtotal, tax, Round2(discount))
}

// Rescale 条目变化后重算：税额按原始 税额/小计 比例缩放到新小计，折扣保留
// 折扣超过新的 小计+税额 时截断，保证 Final 不为负
func (t Totals) Rescale(newSubtotal decimal.Decimal) Totals {
	newSubtotal = Round2(newSubtotal)
	tax := decimal.Zero
	if t.Subtotal.IsPositive() {
		tax = Round2(t.Tax.Div(t.Subtotal).Mul(newSubtotal))
	}
	discount := t.Discount
	if ceiling := newSubtotal.Add(tax); discount.GreaterThan(ceiling) {
		discount = ceiling
	}
	return withFinal(newSubtotal, tax, discount)
}

func withFinal(subtotal, tax, discount decimal.Decimal) Totals {
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Discount: discount,
		Final:    subtotal.Add(tax).Sub(discount),
	}
}
