package domain

import "github.com/shopspring/decimal"

// MoneyPlaces — количество знаков после запятой для денежных сумм.
const MoneyPlaces = 2

var minorUnitsFactor = decimal.NewFromInt(100)

// RoundMoney приводит сумму к фиксированной точности в 2 знака.
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(MoneyPlaces)
}

// ToMinorUnits переводит сумму в минимальные единицы валюты (центы).
// Округление half away from zero: 0.005 → 1, -0.005 → -1.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorUnitsFactor).Round(0).IntPart()
}

// FromMinorUnits переводит минимальные единицы обратно в сумму с 2 знаками.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -MoneyPlaces)
}
