package pos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"tokonova/backend/internal/cache"
	"tokonova/backend/internal/domain"
	"tokonova/backend/internal/store"
	"tokonova/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const settingsCacheKey = "settings:v1"

type Service struct {
	repo        store.Repository
	settings    cache.SettingsCache
	settingsTTL time.Duration
	effects     *Dispatcher
	notifier    NotificationSink
}

func New(repo store.Repository, settings cache.SettingsCache, settingsTTL time.Duration, effects *Dispatcher, notifier NotificationSink) *Service {
	if settings == nil {
		settings = cache.NoopSettingsCache{}
	}
	if settingsTTL < time.Second {
		settingsTTL = 30 * time.Second
	}
	if notifier == nil {
		notifier = LogNotificationSink{}
	}

	return &Service{
		repo:        repo,
		settings:    settings,
		settingsTTL: settingsTTL,
		effects:     effects,
		notifier:    notifier,
	}
}

// loadSettings returns the tax and loyalty configuration as one immutable
// snapshot, read through the cache. A cache failure falls back to the store;
// a store failure is a hard error because totals cannot be computed without
// a settings snapshot.
func (s *Service) loadSettings(ctx context.Context) (domain.Settings, error) {
	if cached, ok, err := s.settings.Get(ctx, settingsCacheKey); err != nil {
		log.Printf("[settings] WARN: cache read failed: %v", err)
	} else if ok && cached != nil {
		return *cached, nil
	}

	raw, err := s.repo.GetSettingsMap(ctx)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	parsed := parseSettings(raw)
	if err := s.settings.Set(ctx, settingsCacheKey, &parsed, s.settingsTTL); err != nil {
		log.Printf("[settings] WARN: cache write failed: %v", err)
	}
	return parsed, nil
}

// parseSettings interprets the key/value settings rows. Missing or malformed
// keys fall back to disabled features so a bad row can never inflate a total.
func parseSettings(raw map[string]string) domain.Settings {
	settings := domain.Settings{}
	settings.TaxEnabled = parseBoolSetting(raw["tax_enabled"])
	settings.TaxInclusive = parseBoolSetting(raw["tax_inclusive"])
	if rate, err := strconv.ParseFloat(strings.TrimSpace(raw["tax_rate_percent"]), 64); err == nil && rate >= 0 && rate <= 100 {
		settings.TaxRatePercent = rate
	} else {
		settings.TaxEnabled = false
	}
	settings.LoyaltyEnabled = parseBoolSetting(raw["loyalty_enabled"])
	if v, err := strconv.ParseInt(strings.TrimSpace(raw["loyalty_redeem_value_cents"]), 10, 64); err == nil && v >= 0 {
		settings.LoyaltyRedeemValueCents = v
	} else {
		settings.LoyaltyEnabled = false
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(raw["loyalty_earn_rate"]), 64); err == nil && v >= 0 {
		settings.LoyaltyEarnRate = v
	}
	return settings
}

func parseBoolSetting(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// resolveItems validates every line against the catalog and fills unit
// prices from the variant or product row when the request leaves them zero.
// It returns the resolved lines plus the product map used for coupon scoping.
func (s *Service) resolveItems(ctx context.Context, items []domain.SaleItemInput) ([]domain.SaleItemInput, map[string]domain.Product, error) {
	if len(items) == 0 {
		return nil, nil, fmt.Errorf("%w: sale requires at least one item", store.ErrInvalidInput)
	}

	productIDs := make([]string, 0, len(items))
	variantIDs := make([]string, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" || item.Qty < 1 {
			return nil, nil, fmt.Errorf("%w: each item needs a product id and a positive quantity", store.ErrInvalidInput)
		}
		productIDs = append(productIDs, item.ProductID)
		if item.VariantID != "" {
			variantIDs = append(variantIDs, item.VariantID)
		}
	}

	products, err := s.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, nil, err
	}
	variants := map[string]domain.ProductVariant{}
	if len(variantIDs) > 0 {
		variants, err = s.repo.GetVariantsByIDs(ctx, variantIDs)
		if err != nil {
			return nil, nil, err
		}
	}

	resolved := make([]domain.SaleItemInput, 0, len(items))
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok || !product.Active {
			return nil, nil, fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
		if item.VariantID != "" {
			variant, ok := variants[item.VariantID]
			if !ok || variant.ProductID != item.ProductID {
				return nil, nil, fmt.Errorf("%w: variant %s of product %s", store.ErrNotFound, item.VariantID, item.ProductID)
			}
			if item.UnitPriceCents == 0 {
				item.UnitPriceCents = variant.PriceCents
			}
		} else if item.UnitPriceCents == 0 {
			item.UnitPriceCents = product.PriceCents
		}
		if item.UnitPriceCents < 0 {
			return nil, nil, fmt.Errorf("%w: item %s unit price must not be negative", store.ErrInvalidInput, item.ProductID)
		}
		resolved = append(resolved, item)
	}

	return resolved, products, nil
}

// ComputeTotals is the read-only preview used while a cart is being built.
// Unlike the sale path, a rejected coupon surfaces as an error here so the
// cashier sees the reason before committing.
func (s *Service) ComputeTotals(ctx context.Context, req domain.SaleRequest) (domain.Totals, error) {
	items, products, err := s.resolveItems(ctx, req.Items)
	if err != nil {
		return domain.Totals{}, err
	}
	req.Items = items

	settings, err := s.loadSettings(ctx)
	if err != nil {
		return domain.Totals{}, err
	}

	base, err := computeBaseTotals(req, settings)
	if err != nil {
		return domain.Totals{}, err
	}

	couponID := ""
	couponDiscount := int64(0)
	if req.CouponCode != "" {
		couponID, couponDiscount, err = s.validateCoupon(ctx, req.CouponCode, base.TotalCents, req.CustomerID, products)
		if err != nil {
			return domain.Totals{}, err
		}
	}

	return finalizeTotals(base, couponID, couponDiscount, req.TipCents), nil
}

// ValidateCoupon checks a coupon against an already-computed total. A
// rejection comes back as a *store.CouponError carrying the reason.
func (s *Service) ValidateCoupon(ctx context.Context, req domain.CouponCheckRequest) (domain.CouponCheckResponse, error) {
	if strings.TrimSpace(req.Code) == "" {
		return domain.CouponCheckResponse{}, fmt.Errorf("%w: coupon code is required", store.ErrInvalidInput)
	}

	products := map[string]domain.Product{}
	if len(req.ProductIDs) > 0 {
		var err error
		products, err = s.repo.GetProductsByIDs(ctx, req.ProductIDs)
		if err != nil {
			return domain.CouponCheckResponse{}, err
		}
	}

	couponID, discount, err := s.validateCoupon(ctx, req.Code, req.TotalCents, req.CustomerID, products)
	if err != nil {
		return domain.CouponCheckResponse{}, err
	}
	return domain.CouponCheckResponse{CouponID: couponID, DiscountCents: discount}, nil
}

// CreateSale validates and prices the candidate sale, then hands the fully
// computed record to the store for atomic execution. In this path a rejected
// coupon degrades to zero discount instead of failing the sale; concurrency
// guards (stock, loyalty balance, coupon caps) live inside the store
// transaction and are only pre-checked here for early feedback.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Sale{}, fmt.Errorf("%w: authenticated cashier required", store.ErrForbidden)
	}

	items, products, err := s.resolveItems(ctx, req.Items)
	if err != nil {
		return domain.Sale{}, err
	}
	req.Items = items

	settings, err := s.loadSettings(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	if req.PointsRedeemed > 0 {
		if !settings.LoyaltyEnabled || req.CustomerID == "" {
			return domain.Sale{}, fmt.Errorf("%w: loyalty redemption requires an enrolled customer", store.ErrInvalidInput)
		}
		customer, err := s.repo.GetCustomerByID(ctx, req.CustomerID)
		if err != nil {
			return domain.Sale{}, err
		}
		if customer.LoyaltyPoints < req.PointsRedeemed {
			return domain.Sale{}, store.ErrInsufficientLoyaltyPoints
		}
	}

	base, err := computeBaseTotals(req, settings)
	if err != nil {
		return domain.Sale{}, err
	}

	couponID := ""
	couponDiscount := int64(0)
	if req.CouponCode != "" {
		couponID, couponDiscount, err = s.validateCoupon(ctx, req.CouponCode, base.TotalCents, req.CustomerID, products)
		if err != nil {
			var couponErr *store.CouponError
			if !errors.As(err, &couponErr) {
				return domain.Sale{}, err
			}
			log.Printf("[pos] WARN: coupon %s rejected (%s), sale proceeds without it", couponErr.Code, couponErr.Reason)
			couponID, couponDiscount = "", 0
		}
	}

	totals := finalizeTotals(base, couponID, couponDiscount, req.TipCents)

	payments, paymentMethod, err := normalizePayments(req, totals.TotalCents)
	if err != nil {
		return domain.Sale{}, err
	}

	sale := domain.Sale{
		ID:                  xid.New("sale"),
		CashierID:           actor.Username,
		CustomerID:          req.CustomerID,
		SubtotalCents:       totals.SubtotalCents,
		DiscountCents:       totals.DiscountCents,
		DiscountType:        req.DiscountType,
		TaxCents:            totals.TaxCents,
		TipCents:            totals.TipCents,
		CouponID:            totals.CouponID,
		CouponDiscountCents: totals.CouponDiscountCents,
		PointsRedeemed:      req.PointsRedeemed,
		PointsDiscountCents: totals.PointsDiscountCents,
		PaymentMethod:       paymentMethod,
		TotalCents:          totals.TotalCents,
		RefundStatus:        domain.RefundStatusNone,
		EarnedPoints:        earnedPoints(totals.TotalCents, effectiveEarnRate(settings, req.CustomerID)),
		CreatedAt:           time.Now().UTC(),
		Payments:            payments,
	}
	for _, item := range req.Items {
		sale.Items = append(sale.Items, domain.SaleItem{
			SaleID:         sale.ID,
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
		})
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}

	s.recordSaleMovement(ctx, actor.Username, created.ID, cashPortion(created))
	s.logAudit(ctx, "sale_create", "sale", created.ID, fmt.Sprintf("total=%d,payment=%s,coupon=%s,points_redeemed=%d", created.TotalCents, created.PaymentMethod, created.CouponID, created.PointsRedeemed))
	s.notify(Notification{Kind: "sale.completed", EntityID: created.ID, AmountCents: created.TotalCents})

	return *created, nil
}

// RefundSale records a partial or full refund against a committed sale. The
// store owns the line and amount bound checks inside the refund transaction.
func (s *Service) RefundSale(ctx context.Context, saleID string, req domain.RefundRequest) (domain.Refund, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Refund{}, fmt.Errorf("%w: authenticated cashier required", store.ErrForbidden)
	}
	if saleID == "" {
		return domain.Refund{}, fmt.Errorf("%w: sale id is required", store.ErrInvalidInput)
	}
	if len(req.Items) == 0 {
		return domain.Refund{}, fmt.Errorf("%w: refund requires at least one line", store.ErrInvalidInput)
	}
	for _, line := range req.Items {
		if line.ProductID == "" || line.Qty < 1 {
			return domain.Refund{}, fmt.Errorf("%w: each refund line needs a product id and a positive quantity", store.ErrInvalidInput)
		}
	}
	if !isRefundReason(req.Reason) {
		return domain.Refund{}, fmt.Errorf("%w: unknown refund reason %q", store.ErrInvalidInput, req.Reason)
	}

	linesJSON, err := json.Marshal(req.Items)
	if err != nil {
		return domain.Refund{}, fmt.Errorf("encode refund lines: %w", err)
	}

	refund := domain.Refund{
		ID:        xid.New("refund"),
		SaleID:    saleID,
		Reason:    req.Reason,
		ItemsJSON: string(linesJSON),
		Restock:   req.Restock,
		CashierID: actor.Username,
		CreatedAt: time.Now().UTC(),
	}

	created, err := s.repo.CreateRefund(ctx, refund, req.Items)
	if err != nil {
		return domain.Refund{}, err
	}

	s.recordRefundMovement(ctx, actor.Username, created.SaleID, created.AmountCents)
	s.logAudit(ctx, "sale_refund", "sale", saleID, fmt.Sprintf("amount=%d,reason=%s,restock=%t", created.AmountCents, created.Reason, created.Restock))
	s.notify(Notification{Kind: "sale.refunded", EntityID: created.SaleID, AmountCents: created.AmountCents})

	return *created, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	if id == "" {
		return domain.Sale{}, fmt.Errorf("%w: sale id is required", store.ErrInvalidInput)
	}
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) OpenRegister(ctx context.Context, req domain.RegisterOpenRequest) (domain.RegisterSession, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.RegisterSession{}, fmt.Errorf("%w: authenticated cashier required", store.ErrForbidden)
	}
	if req.OpeningFloatCents < 0 {
		return domain.RegisterSession{}, fmt.Errorf("%w: opening float must not be negative", store.ErrInvalidInput)
	}

	session := domain.RegisterSession{
		ID:                xid.New("reg"),
		CashierID:         actor.Username,
		OpeningFloatCents: req.OpeningFloatCents,
		ExpectedCashCents: req.OpeningFloatCents,
		Status:            domain.RegisterStatusOpen,
		OpenedAt:          time.Now().UTC(),
	}
	saved, err := s.repo.OpenRegisterSession(ctx, session)
	if err != nil {
		return domain.RegisterSession{}, err
	}

	s.logAudit(ctx, "register_open", "register_session", saved.ID, fmt.Sprintf("opening_float=%d", saved.OpeningFloatCents))
	return *saved, nil
}

// AddRegisterMovement records a manual cash in/out on the caller's open
// session. Sale and refund movements are written by the sale/refund paths,
// never through this operation.
func (s *Service) AddRegisterMovement(ctx context.Context, req domain.RegisterMovementRequest) (domain.RegisterSession, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.RegisterSession{}, fmt.Errorf("%w: authenticated cashier required", store.ErrForbidden)
	}
	if req.Type != domain.MovementCashIn && req.Type != domain.MovementCashOut {
		return domain.RegisterSession{}, fmt.Errorf("%w: movement type must be %s or %s", store.ErrInvalidInput, domain.MovementCashIn, domain.MovementCashOut)
	}
	if req.AmountCents < 1 {
		return domain.RegisterSession{}, fmt.Errorf("%w: movement amount must be positive", store.ErrInvalidInput)
	}

	movement := domain.RegisterMovement{
		ID:          xid.New("mov"),
		Type:        req.Type,
		AmountCents: req.AmountCents,
		Note:        req.Note,
		CreatedAt:   time.Now().UTC(),
	}
	session, err := s.repo.AddRegisterMovement(ctx, actor.Username, movement)
	if err != nil {
		return domain.RegisterSession{}, err
	}

	s.logAudit(ctx, "register_movement", "register_session", session.ID, fmt.Sprintf("type=%s,amount=%d", req.Type, req.AmountCents))
	return *session, nil
}

// CloseRegister reconciles the caller's open session: variance is counted
// minus expected and is recorded even when zero.
func (s *Service) CloseRegister(ctx context.Context, req domain.RegisterCloseRequest) (domain.RegisterSession, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.RegisterSession{}, fmt.Errorf("%w: authenticated cashier required", store.ErrForbidden)
	}
	if req.CountedCashCents < 0 {
		return domain.RegisterSession{}, fmt.Errorf("%w: counted cash must not be negative", store.ErrInvalidInput)
	}

	counted := req.CountedCashCents
	session, err := s.repo.CloseRegisterSession(ctx, actor.Username, &counted, req.Notes, time.Now().UTC())
	if err != nil {
		return domain.RegisterSession{}, err
	}

	variance := int64(0)
	if session.VarianceCents != nil {
		variance = *session.VarianceCents
	}
	s.logAudit(ctx, "register_close", "register_session", session.ID, fmt.Sprintf("counted=%d,expected=%d,variance=%d", counted, session.ExpectedCashCents, variance))
	return *session, nil
}

// ForceCloseRegister closes another cashier's abandoned session without a
// cash count. Counted and variance stay unset; only admins may do this.
func (s *Service) ForceCloseRegister(ctx context.Context, cashierID string, notes string) (domain.RegisterSession, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.RegisterSession{}, fmt.Errorf("%w: admin role required", store.ErrForbidden)
	}
	if cashierID == "" {
		return domain.RegisterSession{}, fmt.Errorf("%w: cashier id is required", store.ErrInvalidInput)
	}

	annotated := strings.TrimSpace(notes)
	if annotated != "" {
		annotated += "; "
	}
	annotated += fmt.Sprintf("force-closed by %s", actor.Username)

	session, err := s.repo.CloseRegisterSession(ctx, cashierID, nil, annotated, time.Now().UTC())
	if err != nil {
		return domain.RegisterSession{}, err
	}

	s.logAudit(ctx, "register_force_close", "register_session", session.ID, fmt.Sprintf("cashier=%s", cashierID))
	return *session, nil
}

func (s *Service) CurrentRegister(ctx context.Context) (domain.RegisterSession, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.RegisterSession{}, fmt.Errorf("%w: authenticated cashier required", store.ErrForbidden)
	}
	session, err := s.repo.GetOpenRegisterSession(ctx, actor.Username)
	if err != nil {
		return domain.RegisterSession{}, err
	}
	return *session, nil
}

func (s *Service) ListRegisterSessions(ctx context.Context, limit int) ([]domain.RegisterSession, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: authenticated cashier required", store.ErrForbidden)
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListRegisterSessions(ctx, actor.Username, limit)
}

func (s *Service) ListRegisterMovements(ctx context.Context, sessionID string) ([]domain.RegisterMovement, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", store.ErrInvalidInput)
	}
	return s.repo.ListRegisterMovements(ctx, sessionID)
}

// recordSaleMovement appends the cash portion of a committed sale to the
// cashier's open register session. Without an open session this is a no-op;
// any failure is logged and never unwinds the sale.
func (s *Service) recordSaleMovement(ctx context.Context, cashierID string, saleID string, cashCents int64) {
	if cashCents <= 0 {
		return
	}
	movement := domain.RegisterMovement{
		ID:          xid.New("mov"),
		Type:        domain.MovementSale,
		AmountCents: cashCents,
		SaleID:      saleID,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := s.repo.AddRegisterMovement(ctx, cashierID, movement); err != nil {
		if errors.Is(err, store.ErrNoOpenSession) {
			log.Printf("[register] WARN: sale %s committed with no open session for %s", saleID, cashierID)
			return
		}
		log.Printf("[register] WARN: failed to record sale movement sale=%s: %v", saleID, err)
	}
}

func (s *Service) recordRefundMovement(ctx context.Context, cashierID string, saleID string, amountCents int64) {
	if amountCents <= 0 {
		return
	}
	movement := domain.RegisterMovement{
		ID:          xid.New("mov"),
		Type:        domain.MovementRefund,
		AmountCents: amountCents,
		SaleID:      saleID,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := s.repo.AddRegisterMovement(ctx, cashierID, movement); err != nil {
		if errors.Is(err, store.ErrNoOpenSession) {
			log.Printf("[register] WARN: refund for sale %s recorded with no open session for %s", saleID, cashierID)
			return
		}
		log.Printf("[register] WARN: failed to record refund movement sale=%s: %v", saleID, err)
	}
}

// logAudit writes an audit row best-effort. Audit failures never fail the
// operation they describe.
func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func (s *Service) notify(n Notification) {
	if s.effects == nil {
		return
	}
	s.effects.Enqueue(func(ctx context.Context) {
		if err := s.notifier.Notify(ctx, n); err != nil {
			log.Printf("[notify] WARN: %s entity=%s: %v", n.Kind, n.EntityID, err)
		}
	})
}

// normalizePayments validates the payment section of a sale request and
// returns the rows to persist plus the header payment method. More than one
// row means a split settlement; the rows must sum exactly to the total.
func normalizePayments(req domain.SaleRequest, totalCents int64) ([]domain.Payment, string, error) {
	if len(req.Payments) == 0 {
		method := req.PaymentMethod
		if method == "" {
			method = "cash"
		}
		if !isSupportedPaymentMethod(method) {
			return nil, "", fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidInput, method)
		}
		return nil, method, nil
	}

	sum := int64(0)
	rows := make([]domain.Payment, 0, len(req.Payments))
	for _, p := range req.Payments {
		if !isSupportedPaymentMethod(p.Method) || p.AmountCents < 1 {
			return nil, "", fmt.Errorf("%w: each payment needs a supported method and a positive amount", store.ErrInvalidInput)
		}
		if p.Method != "cash" && strings.TrimSpace(p.Reference) == "" {
			return nil, "", fmt.Errorf("%w: non-cash payments need a reference", store.ErrInvalidInput)
		}
		sum += p.AmountCents
		rows = append(rows, domain.Payment{Method: p.Method, AmountCents: p.AmountCents, Reference: p.Reference})
	}
	if sum != totalCents {
		return nil, "", fmt.Errorf("%w: payments sum to %d, sale total is %d", store.ErrInvalidInput, sum, totalCents)
	}

	if len(rows) == 1 {
		return rows, rows[0].Method, nil
	}
	return rows, domain.PaymentMethodSplit, nil
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case "cash", "card", "qris", "ewallet":
		return true
	default:
		return false
	}
}

// cashPortion is the amount of a sale settled in physical cash; only this
// part moves the register drawer.
func cashPortion(sale *domain.Sale) int64 {
	if len(sale.Payments) == 0 {
		if sale.PaymentMethod == "cash" {
			return sale.TotalCents
		}
		return 0
	}
	cash := int64(0)
	for _, p := range sale.Payments {
		if p.Method == "cash" {
			cash += p.AmountCents
		}
	}
	return cash
}

func isRefundReason(reason string) bool {
	switch reason {
	case domain.RefundReasonCustomerRequest, domain.RefundReasonDamaged, domain.RefundReasonWrongItem, domain.RefundReasonExpired, domain.RefundReasonOther:
		return true
	default:
		return false
	}
}

// effectiveEarnRate gates loyalty earn on the feature flag and on having an
// enrolled customer on the sale.
func effectiveEarnRate(settings domain.Settings, customerID string) float64 {
	if !settings.LoyaltyEnabled || customerID == "" {
		return 0
	}
	return settings.LoyaltyEarnRate
}
