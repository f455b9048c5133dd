package pos

import (
	"context"
	"errors"
	"time"

	"tokonova/backend/internal/domain"
	"tokonova/backend/internal/store"
)

// validateCoupon runs the full gate sequence for a coupon code against the
// pre-coupon running total. It returns the coupon id and discount on success
// and a *store.CouponError with the first failing reason otherwise. A coupon
// is all-or-nothing: no partial discount is ever granted.
func (s *Service) validateCoupon(ctx context.Context, code string, totalCents int64, customerID string, products map[string]domain.Product) (string, int64, error) {
	coupon, err := s.repo.GetCouponByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", 0, &store.CouponError{Code: code, Reason: store.CouponReasonNotFound}
		}
		return "", 0, err
	}

	if coupon.Status != domain.CouponStatusActive {
		return "", 0, &store.CouponError{Code: code, Reason: store.CouponReasonInactive}
	}

	now := time.Now().UTC()
	if !coupon.StartsAt.IsZero() && now.Before(coupon.StartsAt) {
		return "", 0, &store.CouponError{Code: code, Reason: store.CouponReasonNotStarted}
	}
	if !coupon.ExpiresAt.IsZero() && now.After(coupon.ExpiresAt) {
		return "", 0, &store.CouponError{Code: code, Reason: store.CouponReasonExpired}
	}

	if coupon.MaxUses > 0 {
		used, err := s.repo.CountCouponUsage(ctx, coupon.ID)
		if err != nil {
			return "", 0, err
		}
		if used >= coupon.MaxUses {
			return "", 0, &store.CouponError{Code: code, Reason: store.CouponReasonUsageExceeded}
		}
	}
	if coupon.MaxUsesPerCustomer > 0 && customerID != "" {
		used, err := s.repo.CountCouponUsageByCustomer(ctx, coupon.ID, customerID)
		if err != nil {
			return "", 0, err
		}
		if used >= coupon.MaxUsesPerCustomer {
			return "", 0, &store.CouponError{Code: code, Reason: store.CouponReasonCustomerUsageExceeded}
		}
	}

	if coupon.MinPurchaseCents > 0 && totalCents < coupon.MinPurchaseCents {
		return "", 0, &store.CouponError{Code: code, Reason: store.CouponReasonBelowMinimum}
	}

	if !couponScopeMatches(*coupon, products) {
		return "", 0, &store.CouponError{Code: code, Reason: store.CouponReasonScopeMismatch}
	}

	discount := couponDiscountCents(*coupon, totalCents)
	if discount > totalCents {
		discount = totalCents
	}
	return coupon.ID, discount, nil
}

// couponScopeMatches reports whether at least one product in the sale falls
// inside the coupon's scope. An "all" scope always matches.
func couponScopeMatches(coupon domain.Coupon, products map[string]domain.Product) bool {
	switch coupon.Scope {
	case "", domain.CouponScopeAll:
		return true
	case domain.CouponScopeProduct:
		for _, id := range coupon.ScopeIDs {
			if _, ok := products[id]; ok {
				return true
			}
		}
		return false
	case domain.CouponScopeCategory:
		for _, product := range products {
			for _, category := range coupon.ScopeIDs {
				if product.Category == category {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}

func couponDiscountCents(coupon domain.Coupon, totalCents int64) int64 {
	switch coupon.Type {
	case domain.CouponTypePercentage:
		discount := roundCents(float64(totalCents) * coupon.PercentOff / 100)
		if coupon.MaxDiscountCents > 0 && discount > coupon.MaxDiscountCents {
			discount = coupon.MaxDiscountCents
		}
		return discount
	default:
		return coupon.FlatOffCents
	}
}
