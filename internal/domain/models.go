package domain

import "time"

// Settings is an immutable snapshot of the tax and loyalty configuration,
// loaded once per calculation. Business logic never reads setting keys ad hoc.
type Settings struct {
	TaxEnabled              bool    `json:"tax_enabled"`
	TaxRatePercent          float64 `json:"tax_rate_percent"`
	TaxInclusive            bool    `json:"tax_inclusive"`
	LoyaltyEnabled          bool    `json:"loyalty_enabled"`
	LoyaltyRedeemValueCents int64   `json:"loyalty_redeem_value_cents"`
	LoyaltyEarnRate         float64 `json:"loyalty_earn_rate"`
}

type Product struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	PriceCents     int64  `json:"price_cents"`
	CostPriceCents int64  `json:"cost_price_cents"`
	Stock          int    `json:"stock"`
	Active         bool   `json:"active"`
}

type ProductVariant struct {
	ID             string `json:"id"`
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	PriceCents     int64  `json:"price_cents"`
	CostPriceCents int64  `json:"cost_price_cents"`
	Stock          int    `json:"stock"`
}

type Customer struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	LoyaltyPoints int64  `json:"loyalty_points"`
}

type SaleItemInput struct {
	ProductID      string `json:"product_id"`
	VariantID      string `json:"variant_id,omitempty"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type PaymentInput struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference,omitempty"`
}

// SaleRequest is the inbound candidate sale. DiscountCents applies when
// DiscountType is fixed, DiscountPercent when it is percentage.
type SaleRequest struct {
	Items           []SaleItemInput `json:"items"`
	DiscountType    string          `json:"discount_type,omitempty"`
	DiscountCents   int64           `json:"discount_cents,omitempty"`
	DiscountPercent float64         `json:"discount_percent,omitempty"`
	CustomerID      string          `json:"customer_id,omitempty"`
	PointsRedeemed  int64           `json:"points_redeemed,omitempty"`
	CouponCode      string          `json:"coupon_code,omitempty"`
	TipCents        int64           `json:"tip_cents,omitempty"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	Payments        []PaymentInput  `json:"payments,omitempty"`
}

// Totals is the result of the fixed-order totals computation:
// subtotal -> discount -> tax -> loyalty redemption -> coupon -> tip.
type Totals struct {
	SubtotalCents       int64  `json:"subtotal_cents"`
	DiscountCents       int64  `json:"discount_cents"`
	TaxCents            int64  `json:"tax_cents"`
	PointsDiscountCents int64  `json:"points_discount_cents"`
	CouponID            string `json:"coupon_id,omitempty"`
	CouponDiscountCents int64  `json:"coupon_discount_cents"`
	TipCents            int64  `json:"tip_cents"`
	TotalCents          int64  `json:"total_cents"`
}

type Sale struct {
	ID                  string     `json:"id"`
	CashierID           string     `json:"cashier_id"`
	CustomerID          string     `json:"customer_id,omitempty"`
	SubtotalCents       int64      `json:"subtotal_cents"`
	DiscountCents       int64      `json:"discount_cents"`
	DiscountType        string     `json:"discount_type,omitempty"`
	TaxCents            int64      `json:"tax_cents"`
	TipCents            int64      `json:"tip_cents"`
	CouponID            string     `json:"coupon_id,omitempty"`
	CouponDiscountCents int64      `json:"coupon_discount_cents"`
	PointsRedeemed      int64      `json:"points_redeemed"`
	PointsDiscountCents int64      `json:"points_discount_cents"`
	PaymentMethod       string     `json:"payment_method"`
	TotalCents          int64      `json:"total_cents"`
	RefundStatus        string     `json:"refund_status"`
	RefundedCents       int64      `json:"refunded_cents"`
	EarnedPoints        int64      `json:"earned_points"`
	CreatedAt           time.Time  `json:"created_at"`
	Items               []SaleItem `json:"items"`
	Payments            []Payment  `json:"payments,omitempty"`
}

type SaleItem struct {
	SaleID         string `json:"sale_id"`
	ProductID      string `json:"product_id"`
	VariantID      string `json:"variant_id,omitempty"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	CostPriceCents int64  `json:"cost_price_cents"`
}

type Payment struct {
	SaleID      string `json:"sale_id"`
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference,omitempty"`
}

type RefundLine struct {
	ProductID      string `json:"product_id"`
	VariantID      string `json:"variant_id,omitempty"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type RefundRequest struct {
	Items   []RefundLine `json:"items"`
	Reason  string       `json:"reason"`
	Restock bool         `json:"restock"`
}

// Refund is append-only. ItemsJSON holds the submitted lines serialized
// verbatim for audit replay.
type Refund struct {
	ID          string    `json:"id"`
	SaleID      string    `json:"sale_id"`
	AmountCents int64     `json:"amount_cents"`
	Reason      string    `json:"reason"`
	ItemsJSON   string    `json:"items_json"`
	Restock     bool      `json:"restock"`
	CashierID   string    `json:"cashier_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type Coupon struct {
	ID                 string    `json:"id"`
	Code               string    `json:"code"`
	Status             string    `json:"status"`
	Type               string    `json:"type"`
	PercentOff         float64   `json:"percent_off,omitempty"`
	FlatOffCents       int64     `json:"flat_off_cents,omitempty"`
	MinPurchaseCents   int64     `json:"min_purchase_cents"`
	MaxDiscountCents   int64     `json:"max_discount_cents,omitempty"`
	StartsAt           time.Time `json:"starts_at"`
	ExpiresAt          time.Time `json:"expires_at"`
	MaxUses            int       `json:"max_uses,omitempty"`
	MaxUsesPerCustomer int       `json:"max_uses_per_customer,omitempty"`
	Scope              string    `json:"scope"`
	ScopeIDs           []string  `json:"scope_ids,omitempty"`
}

type CouponUsage struct {
	ID         string    `json:"id"`
	CouponID   string    `json:"coupon_id"`
	SaleID     string    `json:"sale_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	UsedAt     time.Time `json:"used_at"`
}

// LoyaltyTransaction is one row in the append-only loyalty ledger.
// Points is signed: positive for earn, negative for redeem. The customer's
// loyalty_points balance must always equal the running sum of this ledger.
type LoyaltyTransaction struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	SaleID     string    `json:"sale_id"`
	Kind       string    `json:"kind"`
	Points     int64     `json:"points"`
	CreatedAt  time.Time `json:"created_at"`
}

type RegisterSession struct {
	ID                string     `json:"id"`
	CashierID         string     `json:"cashier_id"`
	OpeningFloatCents int64      `json:"opening_float_cents"`
	ExpectedCashCents int64      `json:"expected_cash_cents"`
	CountedCashCents  *int64     `json:"counted_cash_cents,omitempty"`
	VarianceCents     *int64     `json:"variance_cents,omitempty"`
	Status            string     `json:"status"`
	Notes             string     `json:"notes,omitempty"`
	OpenedAt          time.Time  `json:"opened_at"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
}

// RegisterMovement is append-only; ExpectedCashCents on the session must be
// re-derivable as opening float plus the signed sum of these rows.
type RegisterMovement struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Type        string    `json:"type"`
	AmountCents int64     `json:"amount_cents"`
	SaleID      string    `json:"sale_id,omitempty"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type StockAdjustment struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	VariantID   string    `json:"variant_id,omitempty"`
	PreviousQty int       `json:"previous_qty"`
	NewQty      int       `json:"new_qty"`
	Delta       int       `json:"delta"`
	Reason      string    `json:"reason"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type RegisterOpenRequest struct {
	OpeningFloatCents int64 `json:"opening_float_cents"`
}

type RegisterMovementRequest struct {
	Type        string `json:"type"`
	AmountCents int64  `json:"amount_cents"`
	Note        string `json:"note,omitempty"`
}

type RegisterCloseRequest struct {
	CountedCashCents int64  `json:"counted_cash_cents"`
	Notes            string `json:"notes,omitempty"`
}

type CouponCheckRequest struct {
	Code       string   `json:"code"`
	TotalCents int64    `json:"total_cents"`
	CustomerID string   `json:"customer_id,omitempty"`
	ProductIDs []string `json:"product_ids,omitempty"`
}

type CouponCheckResponse struct {
	CouponID      string `json:"coupon_id"`
	DiscountCents int64  `json:"discount_cents"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	DiscountTypeFixed      = "fixed"
	DiscountTypePercentage = "percentage"
)

const (
	CouponTypeFixed      = "fixed"
	CouponTypePercentage = "percentage"

	CouponStatusActive = "active"

	CouponScopeAll      = "all"
	CouponScopeCategory = "category"
	CouponScopeProduct  = "product"
)

const (
	RefundStatusNone    = "none"
	RefundStatusPartial = "partial"
	RefundStatusFull    = "full"
)

const (
	RefundReasonCustomerRequest = "customer_request"
	RefundReasonDamaged         = "damaged"
	RefundReasonWrongItem       = "wrong_item"
	RefundReasonExpired         = "expired"
	RefundReasonOther           = "other"
)

const (
	RegisterStatusOpen   = "open"
	RegisterStatusClosed = "closed"
)

const (
	MovementSale    = "sale"
	MovementRefund  = "refund"
	MovementCashIn  = "cash_in"
	MovementCashOut = "cash_out"
)

const (
	LoyaltyKindEarned   = "earned"
	LoyaltyKindRedeemed = "redeemed"
)

// PaymentMethodSplit is recorded on the sale header when more than one
// payment method settles the sale; the per-method rows live in Payments.
const PaymentMethodSplit = "Split"

const (
	StockReasonSale          = "sale"
	StockReasonRefundRestock = "refund_restock"
	StockReasonManual        = "manual"
)
