// Package pricing resolves the amount actually charged for a priced action.
// Pure computation: list price in, discounted amount out, no side effects.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/consultaplus/carteira/internal/apperrors"
	"github.com/consultaplus/carteira/internal/models"
)

// Discount percent per plan tier. Tiers without an entry pay full price.
var tierDiscounts = map[string]decimal.Decimal{
	models.TierStart:  decimal.NewFromInt(5),
	models.TierPro:    decimal.NewFromInt(10),
	models.TierMaster: decimal.NewFromInt(20),
}

var hundred = decimal.NewFromInt(100)

// FinalPrice applies the tier discount to a list price.
// The result is rounded to two decimal places, half up.
// Negative list prices are a caller error, not clamped.
func FinalPrice(listPrice decimal.Decimal, tier string) (decimal.Decimal, decimal.Decimal, error) {
	if listPrice.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("list price %s: %w", listPrice, apperrors.ErrPriceInvalid)
	}

	percent, ok := tierDiscounts[tier]
	if !ok {
		percent = decimal.Zero
	}

	amount := listPrice.Mul(hundred.Sub(percent)).Div(hundred).Round(2)
	return amount, percent, nil
}

// DiscountPercent returns the discount the tier is entitled to
func DiscountPercent(tier string) decimal.Decimal {
	if percent, ok := tierDiscounts[tier]; ok {
		return percent
	}
	return decimal.Zero
}
