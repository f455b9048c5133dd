package store

import (
	"context"
	"errors"
	"time"

	"tokonova/backend/internal/domain"
)

// Sentinel errors are the recoverable failure kinds the POS engine can
// report. Callers distinguish them with errors.Is, never by message text.
var (
	ErrNotFound                  = errors.New("not found")
	ErrInvalidInput              = errors.New("invalid input")
	ErrForbidden                 = errors.New("forbidden")
	ErrInsufficientStock         = errors.New("insufficient stock")
	ErrInsufficientLoyaltyPoints = errors.New("insufficient loyalty points")
	ErrRefundExceedsTotal        = errors.New("refund exceeds sale total")
	ErrLineMismatch              = errors.New("refund line does not match sale")
	ErrSaleFullyRefunded         = errors.New("sale already fully refunded")
	ErrRegisterAlreadyOpen       = errors.New("register session already open")
	ErrNoOpenSession             = errors.New("no open register session")
)

// Coupon rejection sub-reasons. A rejected coupon is always a full
// rejection, never a partial discount.
const (
	CouponReasonNotFound              = "not_found"
	CouponReasonInactive              = "inactive"
	CouponReasonNotStarted            = "not_started"
	CouponReasonExpired               = "expired"
	CouponReasonUsageExceeded         = "usage_exceeded"
	CouponReasonCustomerUsageExceeded = "customer_usage_exceeded"
	CouponReasonBelowMinimum          = "below_minimum"
	CouponReasonScopeMismatch         = "scope_mismatch"
)

// CouponError reports why a coupon code was rejected. The reason is part of
// the contract so clients can show a specific message.
type CouponError struct {
	Code   string
	Reason string
}

func (e *CouponError) Error() string {
	return "coupon " + e.Code + " rejected: " + e.Reason
}

type Repository interface {
	// Settings (tax and loyalty configuration as key/value pairs).
	GetSettingsMap(ctx context.Context) (map[string]string, error)

	// Product reads consumed by totals computation and coupon scoping.
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	GetVariantsByIDs(ctx context.Context, ids []string) (map[string]domain.ProductVariant, error)
	AdjustStock(ctx context.Context, productID string, variantID string, delta int, reason string, userID string) error

	// Customers and the loyalty ledger.
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	ListLoyaltyTransactions(ctx context.Context, customerID string, limit int) ([]domain.LoyaltyTransaction, error)

	// Coupons.
	GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error)
	CountCouponUsage(ctx context.Context, couponID string) (int, error)
	CountCouponUsageByCustomer(ctx context.Context, couponID string, customerID string) (int, error)

	// Sale execution. CreateSale persists the header, items, payments,
	// coupon usage and loyalty ledger entries, and decrements stock, all in
	// one transaction; cost prices are snapshotted from the product or
	// variant row inside that transaction.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)

	// Refund execution. CreateRefund locks the sale, recomputes the
	// cumulative refunded amount, enforces line and amount bounds, and
	// optionally restocks, all in one transaction.
	CreateRefund(ctx context.Context, refund domain.Refund, lines []domain.RefundLine) (*domain.Refund, error)

	// Register session ledger.
	OpenRegisterSession(ctx context.Context, session domain.RegisterSession) (*domain.RegisterSession, error)
	GetOpenRegisterSession(ctx context.Context, cashierID string) (*domain.RegisterSession, error)
	AddRegisterMovement(ctx context.Context, cashierID string, movement domain.RegisterMovement) (*domain.RegisterSession, error)
	CloseRegisterSession(ctx context.Context, cashierID string, countedCashCents *int64, notes string, closedAt time.Time) (*domain.RegisterSession, error)
	ListRegisterSessions(ctx context.Context, cashierID string, limit int) ([]domain.RegisterSession, error)
	ListRegisterMovements(ctx context.Context, sessionID string) ([]domain.RegisterMovement, error)

	// Audit trail, written best-effort after commit.
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error

	// Auth credentials.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
