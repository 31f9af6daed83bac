package domain

import "github.com/shopspring/decimal"

// DailySales 按天汇总的已支付营业额
type DailySales struct {
	Day     string          `json:"day"` // YYYY-MM-DD
	Orders  int             `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

// ItemSales 菜品销量
type ItemSales struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}
