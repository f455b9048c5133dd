package pos

import (
	"fmt"
	"math"

	"tokonova/backend/internal/domain"
	"tokonova/backend/internal/store"
)

// computeBaseTotals applies the fixed evaluation order up to and including
// loyalty redemption: subtotal -> discount -> tax -> points. Coupon and tip
// are applied afterwards by finalizeTotals because the coupon discount is
// computed against the post-loyalty running total.
//
// Rounding to whole cents happens at each stage boundary so repeated
// computation is reproducible bit-for-bit for the same inputs.
func computeBaseTotals(req domain.SaleRequest, settings domain.Settings) (domain.Totals, error) {
	if len(req.Items) == 0 {
		return domain.Totals{}, fmt.Errorf("%w: sale requires at least one item", store.ErrInvalidInput)
	}

	subtotal := int64(0)
	for _, item := range req.Items {
		if item.ProductID == "" {
			return domain.Totals{}, fmt.Errorf("%w: item product id is required", store.ErrInvalidInput)
		}
		if item.Qty < 1 {
			return domain.Totals{}, fmt.Errorf("%w: item %s quantity must be positive", store.ErrInvalidInput, item.ProductID)
		}
		if item.UnitPriceCents < 0 {
			return domain.Totals{}, fmt.Errorf("%w: item %s unit price must not be negative", store.ErrInvalidInput, item.ProductID)
		}
		subtotal += item.UnitPriceCents * int64(item.Qty)
	}

	discount, err := discountAmountCents(req, subtotal)
	if err != nil {
		return domain.Totals{}, err
	}
	afterDiscount := subtotal - discount
	if afterDiscount < 0 {
		afterDiscount = 0
	}

	// Tax is always computed on the post-discount, pre-loyalty, pre-coupon
	// amount. Inclusive mode carves the tax out of the running total
	// instead of adding to it.
	taxCents := int64(0)
	total := afterDiscount
	if settings.TaxEnabled && settings.TaxRatePercent > 0 {
		rate := settings.TaxRatePercent
		if settings.TaxInclusive {
			taxCents = roundCents(float64(afterDiscount) - float64(afterDiscount)/(1+rate/100))
		} else {
			taxCents = roundCents(float64(afterDiscount) * rate / 100)
			total = afterDiscount + taxCents
		}
	}

	pointsDiscount := int64(0)
	if settings.LoyaltyEnabled && req.PointsRedeemed > 0 && req.CustomerID != "" {
		pointsDiscount = roundCents(float64(req.PointsRedeemed) / 100 * float64(settings.LoyaltyRedeemValueCents))
		if pointsDiscount > total {
			pointsDiscount = total
		}
		total -= pointsDiscount
	}

	return domain.Totals{
		SubtotalCents:       subtotal,
		DiscountCents:       discount,
		TaxCents:            taxCents,
		PointsDiscountCents: pointsDiscount,
		TotalCents:          total,
	}, nil
}

// finalizeTotals applies the coupon outcome and the tip to a base totals
// record. The coupon discount is capped so the total never goes negative.
func finalizeTotals(base domain.Totals, couponID string, couponDiscountCents int64, tipCents int64) domain.Totals {
	result := base
	if couponID != "" && couponDiscountCents > 0 {
		if couponDiscountCents > result.TotalCents {
			couponDiscountCents = result.TotalCents
		}
		result.CouponID = couponID
		result.CouponDiscountCents = couponDiscountCents
		result.TotalCents -= couponDiscountCents
	}
	if tipCents > 0 {
		result.TipCents = tipCents
		result.TotalCents += tipCents
	}
	return result
}

func discountAmountCents(req domain.SaleRequest, subtotalCents int64) (int64, error) {
	switch req.DiscountType {
	case "", domain.DiscountTypeFixed:
		if req.DiscountCents < 0 {
			return 0, fmt.Errorf("%w: discount must not be negative", store.ErrInvalidInput)
		}
		return req.DiscountCents, nil
	case domain.DiscountTypePercentage:
		if req.DiscountPercent < 0 || req.DiscountPercent > 100 {
			return 0, fmt.Errorf("%w: discount percent must be between 0 and 100", store.ErrInvalidInput)
		}
		return roundCents(float64(subtotalCents) * req.DiscountPercent / 100), nil
	default:
		return 0, fmt.Errorf("%w: unknown discount type %q", store.ErrInvalidInput, req.DiscountType)
	}
}

// earnedPoints computes loyalty earn on the final total: floor of the
// currency amount times the earn rate. Earn happens even on a sale that
// redeemed points, using the post-redemption total.
func earnedPoints(totalCents int64, earnRate float64) int64 {
	if totalCents <= 0 || earnRate <= 0 {
		return 0
	}
	return int64(math.Floor(float64(totalCents) / 100 * earnRate))
}

func roundCents(v float64) int64 {
	return int64(math.Round(v))
}
