package models

import "github.com/shopspring/decimal"

// Monetary amounts are stored as decimal(MoneyPrecision, MoneyScale).
const (
	MoneyPrecision = 18
	MoneyScale     = 2
)

var moneyLimit = decimal.New(1, MoneyPrecision-MoneyScale)

// ValidMoney reports whether d fits the storage column without rounding.
func ValidMoney(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale)) && d.Abs().LessThan(moneyLimit)
}
