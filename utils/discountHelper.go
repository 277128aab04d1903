package utils

import "github.com/shopspring/decimal"

var decimalOneHundred = decimal.NewFromInt(100)

// CalculateDiscountAmount returns subTotal×discount/100 for percentage discounts, else the fixed discount.
// Non-positive discounts yield zero.
func CalculateDiscountAmount(subTotal decimal.Decimal, discount decimal.Decimal, isPercentage bool) decimal.Decimal {
	if !discount.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}
	if isPercentage {
		return subTotal.Mul(discount).DivRound(decimalOneHundred, 4)
	}
	return discount
}

// ClampDiscount caps amount at maximum (when set) and at subTotal, so the chargeable amount never
// goes below zero.
func ClampDiscount(amount decimal.Decimal, maximum *decimal.Decimal, subTotal decimal.Decimal) decimal.Decimal {
	if maximum != nil && maximum.GreaterThanOrEqual(decimal.Zero) && amount.GreaterThan(*maximum) {
		amount = *maximum
	}
	if amount.GreaterThan(subTotal) {
		amount = subTotal
	}
	if amount.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	return amount
}
