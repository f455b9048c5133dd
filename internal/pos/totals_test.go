package pos

import (
	"errors"
	"testing"

	"tokonova/backend/internal/domain"
	"tokonova/backend/internal/store"
)

func TestComputeBaseTotalsExclusiveTax(t *testing.T) {
	req := domain.SaleRequest{
		Items: []domain.SaleItemInput{
			{ProductID: "p1", Qty: 2, UnitPriceCents: 50000},
		},
		DiscountType:  domain.DiscountTypeFixed,
		DiscountCents: 10000,
	}
	settings := domain.Settings{TaxEnabled: true, TaxRatePercent: 14}

	totals, err := computeBaseTotals(req, settings)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if totals.SubtotalCents != 100000 {
		t.Fatalf("expected subtotal 100000, got %d", totals.SubtotalCents)
	}
	if totals.DiscountCents != 10000 {
		t.Fatalf("expected discount 10000, got %d", totals.DiscountCents)
	}
	// tax = round(90000 * 0.14) = 12600, added on top.
	if totals.TaxCents != 12600 {
		t.Fatalf("expected tax 12600, got %d", totals.TaxCents)
	}
	if totals.TotalCents != 102600 {
		t.Fatalf("expected total 102600, got %d", totals.TotalCents)
	}
}

func TestComputeBaseTotalsInclusiveTax(t *testing.T) {
	req := domain.SaleRequest{
		Items: []domain.SaleItemInput{
			{ProductID: "p1", Qty: 1, UnitPriceCents: 114000},
		},
	}
	settings := domain.Settings{TaxEnabled: true, TaxRatePercent: 14, TaxInclusive: true}

	totals, err := computeBaseTotals(req, settings)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// Inclusive tax is carved out of the amount, not added: the total stays
	// 114000 and the tax portion is 114000 - 114000/1.14 = 14000.
	if totals.TaxCents != 14000 {
		t.Fatalf("expected tax 14000, got %d", totals.TaxCents)
	}
	if totals.TotalCents != 114000 {
		t.Fatalf("expected total 114000, got %d", totals.TotalCents)
	}
}

func TestComputeBaseTotalsPercentageDiscount(t *testing.T) {
	req := domain.SaleRequest{
		Items: []domain.SaleItemInput{
			{ProductID: "p1", Qty: 3, UnitPriceCents: 3333},
		},
		DiscountType:    domain.DiscountTypePercentage,
		DiscountPercent: 12.5,
	}

	totals, err := computeBaseTotals(req, domain.Settings{})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// round(9999 * 0.125) = round(1249.875) = 1250
	if totals.DiscountCents != 1250 {
		t.Fatalf("expected discount 1250, got %d", totals.DiscountCents)
	}
	if totals.TotalCents != 8749 {
		t.Fatalf("expected total 8749, got %d", totals.TotalCents)
	}
}

func TestComputeBaseTotalsDiscountCannotGoNegative(t *testing.T) {
	req := domain.SaleRequest{
		Items: []domain.SaleItemInput{
			{ProductID: "p1", Qty: 1, UnitPriceCents: 5000},
		},
		DiscountType:  domain.DiscountTypeFixed,
		DiscountCents: 9000,
	}

	totals, err := computeBaseTotals(req, domain.Settings{})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if totals.TotalCents != 0 {
		t.Fatalf("expected total clamped to 0, got %d", totals.TotalCents)
	}
}

func TestComputeBaseTotalsLoyaltyCapAtTotal(t *testing.T) {
	req := domain.SaleRequest{
		Items: []domain.SaleItemInput{
			{ProductID: "p1", Qty: 1, UnitPriceCents: 1000},
		},
		CustomerID:     "cust-1",
		PointsRedeemed: 1000,
	}
	settings := domain.Settings{LoyaltyEnabled: true, LoyaltyRedeemValueCents: 500}

	totals, err := computeBaseTotals(req, settings)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// 1000 points would be worth 5000, but the redemption never exceeds
	// the running total.
	if totals.PointsDiscountCents != 1000 {
		t.Fatalf("expected points discount capped at 1000, got %d", totals.PointsDiscountCents)
	}
	if totals.TotalCents != 0 {
		t.Fatalf("expected total 0, got %d", totals.TotalCents)
	}
}

func TestComputeBaseTotalsLoyaltyIgnoredWithoutCustomer(t *testing.T) {
	req := domain.SaleRequest{
		Items: []domain.SaleItemInput{
			{ProductID: "p1", Qty: 1, UnitPriceCents: 10000},
		},
		PointsRedeemed: 100,
	}
	settings := domain.Settings{LoyaltyEnabled: true, LoyaltyRedeemValueCents: 500}

	totals, err := computeBaseTotals(req, settings)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if totals.PointsDiscountCents != 0 {
		t.Fatalf("expected no points discount without a customer, got %d", totals.PointsDiscountCents)
	}
}

func TestComputeBaseTotalsRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		req  domain.SaleRequest
	}{
		{"no items", domain.SaleRequest{}},
		{"zero qty", domain.SaleRequest{Items: []domain.SaleItemInput{{ProductID: "p1", Qty: 0, UnitPriceCents: 100}}}},
		{"negative price", domain.SaleRequest{Items: []domain.SaleItemInput{{ProductID: "p1", Qty: 1, UnitPriceCents: -100}}}},
		{"negative discount", domain.SaleRequest{
			Items:         []domain.SaleItemInput{{ProductID: "p1", Qty: 1, UnitPriceCents: 100}},
			DiscountCents: -1,
		}},
		{"percent over 100", domain.SaleRequest{
			Items:           []domain.SaleItemInput{{ProductID: "p1", Qty: 1, UnitPriceCents: 100}},
			DiscountType:    domain.DiscountTypePercentage,
			DiscountPercent: 101,
		}},
		{"unknown discount type", domain.SaleRequest{
			Items:        []domain.SaleItemInput{{ProductID: "p1", Qty: 1, UnitPriceCents: 100}},
			DiscountType: "bogus",
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := computeBaseTotals(tc.req, domain.Settings{})
			if !errors.Is(err, store.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestFinalizeTotalsCouponCapAndTipOrder(t *testing.T) {
	base := domain.Totals{SubtotalCents: 10000, TotalCents: 10000}

	got := finalizeTotals(base, "coup-1", 15000, 2000)
	// Coupon is capped at the running total; the tip is added after the cap.
	if got.CouponDiscountCents != 10000 {
		t.Fatalf("expected coupon capped at 10000, got %d", got.CouponDiscountCents)
	}
	if got.TotalCents != 2000 {
		t.Fatalf("expected total 2000 (tip only), got %d", got.TotalCents)
	}
	if got.TipCents != 2000 {
		t.Fatalf("expected tip 2000, got %d", got.TipCents)
	}
}

func TestFinalizeTotalsWithoutCoupon(t *testing.T) {
	base := domain.Totals{SubtotalCents: 5000, TotalCents: 5000}

	got := finalizeTotals(base, "", 0, 0)
	if got != base {
		t.Fatalf("expected unchanged totals, got %+v", got)
	}
}

func TestEarnedPointsFloors(t *testing.T) {
	if got := earnedPoints(68450, 1); got != 684 {
		t.Fatalf("expected 684 points, got %d", got)
	}
	if got := earnedPoints(68450, 0.5); got != 342 {
		t.Fatalf("expected 342 points, got %d", got)
	}
	if got := earnedPoints(0, 1); got != 0 {
		t.Fatalf("expected 0 points on zero total, got %d", got)
	}
	if got := earnedPoints(10000, 0); got != 0 {
		t.Fatalf("expected 0 points with zero earn rate, got %d", got)
	}
}

func TestComputeBaseTotalsIsDeterministic(t *testing.T) {
	req := domain.SaleRequest{
		Items: []domain.SaleItemInput{
			{ProductID: "p1", Qty: 3, UnitPriceCents: 3599},
			{ProductID: "p2", Qty: 1, UnitPriceCents: 12750},
		},
		DiscountType:    domain.DiscountTypePercentage,
		DiscountPercent: 7.77,
		CustomerID:      "cust-1",
		PointsRedeemed:  33,
	}
	settings := domain.Settings{
		TaxEnabled:              true,
		TaxRatePercent:          11,
		LoyaltyEnabled:          true,
		LoyaltyRedeemValueCents: 500,
	}

	first, err := computeBaseTotals(req, settings)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for i := 0; i < 100; i++ {
		again, err := computeBaseTotals(req, settings)
		if err != nil {
			t.Fatalf("compute %d: %v", i, err)
		}
		if again != first {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
}
