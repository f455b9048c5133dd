package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokonova/backend/internal/domain"
	"tokonova/backend/internal/store"
	"tokonova/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	settings         map[string]string
	products         map[string]domain.Product
	variants         map[string]domain.ProductVariant
	customers        map[string]domain.Customer
	couponsByCode    map[string]domain.Coupon
	couponUsages     []domain.CouponUsage
	salesByID        map[string]*domain.Sale
	refundsByID      map[string]domain.Refund
	refundItems      map[string][]domain.RefundLine
	loyaltyLedger    []domain.LoyaltyTransaction
	sessionsByID     map[string]*domain.RegisterSession
	openSessionByCID map[string]string
	movements        map[string][]domain.RegisterMovement
	stockAdjustments []domain.StockAdjustment
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		settings:         map[string]string{},
		products:         map[string]domain.Product{},
		variants:         map[string]domain.ProductVariant{},
		customers:        map[string]domain.Customer{},
		couponsByCode:    map[string]domain.Coupon{},
		salesByID:        map[string]*domain.Sale{},
		refundsByID:      map[string]domain.Refund{},
		refundItems:      map[string][]domain.RefundLine{},
		sessionsByID:     map[string]*domain.RegisterSession{},
		openSessionByCID: map[string]string{},
		movements:        map[string][]domain.RegisterMovement{},
		usersByUsername:  map[string]domain.UserAccount{},
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()

	s.settings = map[string]string{
		"tax_enabled":                "true",
		"tax_rate_percent":           "14",
		"tax_inclusive":              "false",
		"loyalty_enabled":            "true",
		"loyalty_redeem_value_cents": "500",
		"loyalty_earn_rate":          "1",
	}

	products := []domain.Product{
		{ID: "prod-espresso", Name: "Espresso", Category: "coffee", PriceCents: 30000, CostPriceCents: 9000, Stock: 500, Active: true},
		{ID: "prod-latte", Name: "Caffe Latte", Category: "coffee", PriceCents: 45000, CostPriceCents: 14000, Stock: 500, Active: true},
		{ID: "prod-croissant", Name: "Butter Croissant", Category: "bakery", PriceCents: 38000, CostPriceCents: 15000, Stock: 60, Active: true},
		{ID: "prod-brownie", Name: "Fudge Brownie", Category: "bakery", PriceCents: 42000, CostPriceCents: 16000, Stock: 40, Active: true},
		{ID: "prod-sandwich", Name: "Club Sandwich", Category: "food", PriceCents: 65000, CostPriceCents: 28000, Stock: 30, Active: true},
		{ID: "prod-water", Name: "Mineral Water", Category: "beverage", PriceCents: 12000, CostPriceCents: 4000, Stock: 200, Active: true},
		{ID: "prod-retired", Name: "Seasonal Blend", Category: "coffee", PriceCents: 52000, CostPriceCents: 20000, Stock: 10, Active: false},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}

	variants := []domain.ProductVariant{
		{ID: "var-latte-large", ProductID: "prod-latte", Name: "Large", PriceCents: 52000, CostPriceCents: 16000, Stock: 200},
		{ID: "var-latte-oat", ProductID: "prod-latte", Name: "Oat Milk", PriceCents: 55000, CostPriceCents: 19000, Stock: 120},
	}
	for _, v := range variants {
		s.variants[v.ID] = v
	}

	s.customers["cust-rina"] = domain.Customer{ID: "cust-rina", Name: "Rina Wijaya", Phone: "+628120000001", LoyaltyPoints: 1000}
	s.customers["cust-bayu"] = domain.Customer{ID: "cust-bayu", Name: "Bayu Santoso", Phone: "+628120000002", LoyaltyPoints: 40}

	now := time.Now().UTC()
	coupons := []domain.Coupon{
		{
			ID: "coup-welcome", Code: "WELCOME10", Status: domain.CouponStatusActive,
			Type: domain.CouponTypeFixed, FlatOffCents: 10000, MinPurchaseCents: 50000,
			StartsAt: now.Add(-30 * 24 * time.Hour), ExpiresAt: now.Add(30 * 24 * time.Hour),
			Scope: domain.CouponScopeAll,
		},
		{
			ID: "coup-coffee", Code: "COFFEE15", Status: domain.CouponStatusActive,
			Type: domain.CouponTypePercentage, PercentOff: 15, MaxDiscountCents: 20000,
			StartsAt: now.Add(-7 * 24 * time.Hour), ExpiresAt: now.Add(7 * 24 * time.Hour),
			Scope: domain.CouponScopeCategory, ScopeIDs: []string{"coffee"},
			MaxUses: 100, MaxUsesPerCustomer: 1,
		},
		{
			ID: "coup-stale", Code: "LASTYEAR", Status: domain.CouponStatusActive,
			Type: domain.CouponTypeFixed, FlatOffCents: 5000,
			StartsAt: now.Add(-400 * 24 * time.Hour), ExpiresAt: now.Add(-370 * 24 * time.Hour),
			Scope: domain.CouponScopeAll,
		},
	}
	for _, c := range coupons {
		s.couponsByCode[c.Code] = c
	}

	s.usersByUsername = seedUsers()
	return s
}

func (m *Store) GetSettingsMap(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		out[k] = v
	}
	return out, nil
}

// SetSetting is a test/dev helper; the engine itself only reads settings.
func (m *Store) SetSetting(key string, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
}

func (m *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *Store) GetVariantsByIDs(_ context.Context, ids []string) (map[string]domain.ProductVariant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]domain.ProductVariant, len(ids))
	for _, id := range ids {
		if v, ok := m.variants[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (m *Store) AdjustStock(_ context.Context, productID string, variantID string, delta int, reason string, userID string) error {
	if productID == "" || delta == 0 {
		return store.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	newQty, err := m.applyStockDeltaLocked(productID, variantID, delta)
	if err != nil {
		return err
	}
	m.stockAdjustments = append(m.stockAdjustments, domain.StockAdjustment{
		ID:          xid.New("adj"),
		ProductID:   productID,
		VariantID:   variantID,
		PreviousQty: newQty - delta,
		NewQty:      newQty,
		Delta:       delta,
		Reason:      reason,
		UserID:      userID,
		CreatedAt:   time.Now().UTC(),
	})
	return nil
}

func (m *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	customer, ok := m.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := customer
	return &copied, nil
}

func (m *Store) ListLoyaltyTransactions(_ context.Context, customerID string, limit int) ([]domain.LoyaltyTransaction, error) {
	if limit < 1 {
		limit = 50
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]domain.LoyaltyTransaction, 0, limit)
	for i := len(m.loyaltyLedger) - 1; i >= 0 && len(entries) < limit; i-- {
		if m.loyaltyLedger[i].CustomerID == customerID {
			entries = append(entries, m.loyaltyLedger[i])
		}
	}
	return entries, nil
}

func (m *Store) GetCouponByCode(_ context.Context, code string) (*domain.Coupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	coupon, ok := m.couponsByCode[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := coupon
	return &copied, nil
}

func (m *Store) CountCouponUsage(_ context.Context, couponID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countCouponUsageLocked(couponID, ""), nil
}

func (m *Store) CountCouponUsageByCustomer(_ context.Context, couponID string, customerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countCouponUsageLocked(couponID, customerID), nil
}

func (m *Store) countCouponUsageLocked(couponID string, customerID string) int {
	count := 0
	for _, usage := range m.couponUsages {
		if usage.CouponID != couponID {
			continue
		}
		if customerID != "" && usage.CustomerID != customerID {
			continue
		}
		count++
	}
	return count
}

// CreateSale mirrors the postgres transaction under one lock: every check is
// re-run against current state and no partial write survives a failure.
func (m *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.RefundStatus == "" {
		sale.RefundStatus = domain.RefundStatusNone
	}
	if len(sale.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if sale.PointsRedeemed > 0 {
		customer, ok := m.customers[sale.CustomerID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if customer.LoyaltyPoints < sale.PointsRedeemed {
			return nil, store.ErrInsufficientLoyaltyPoints
		}
	}

	if sale.CouponID != "" {
		coupon, ok := m.couponByIDLocked(sale.CouponID)
		if !ok {
			return nil, store.ErrNotFound
		}
		if coupon.MaxUses > 0 && m.countCouponUsageLocked(coupon.ID, "") >= coupon.MaxUses {
			return nil, &store.CouponError{Code: coupon.Code, Reason: store.CouponReasonUsageExceeded}
		}
		if coupon.MaxUsesPerCustomer > 0 && sale.CustomerID != "" &&
			m.countCouponUsageLocked(coupon.ID, sale.CustomerID) >= coupon.MaxUsesPerCustomer {
			return nil, &store.CouponError{Code: coupon.Code, Reason: store.CouponReasonCustomerUsageExceeded}
		}
	}

	// Validate all stock before mutating anything so the write is
	// all-or-nothing without an undo pass.
	for _, item := range sale.Items {
		if err := m.checkStockLocked(item.ProductID, item.VariantID, item.Qty); err != nil {
			return nil, err
		}
	}

	for i, item := range sale.Items {
		newQty, costCents := m.takeStockLocked(item.ProductID, item.VariantID, item.Qty)
		sale.Items[i].SaleID = sale.ID
		sale.Items[i].CostPriceCents = costCents
		m.stockAdjustments = append(m.stockAdjustments, domain.StockAdjustment{
			ID:          xid.New("adj"),
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			PreviousQty: newQty + item.Qty,
			NewQty:      newQty,
			Delta:       -item.Qty,
			Reason:      domain.StockReasonSale,
			UserID:      sale.CashierID,
			CreatedAt:   sale.CreatedAt,
		})
	}
	for i := range sale.Payments {
		sale.Payments[i].SaleID = sale.ID
	}

	if sale.CouponID != "" {
		m.couponUsages = append(m.couponUsages, domain.CouponUsage{
			ID:         xid.New("cu"),
			CouponID:   sale.CouponID,
			SaleID:     sale.ID,
			CustomerID: sale.CustomerID,
			UsedAt:     sale.CreatedAt,
		})
	}

	if sale.PointsRedeemed > 0 {
		customer := m.customers[sale.CustomerID]
		customer.LoyaltyPoints -= sale.PointsRedeemed
		m.customers[sale.CustomerID] = customer
		m.loyaltyLedger = append(m.loyaltyLedger, domain.LoyaltyTransaction{
			ID:         xid.New("loy"),
			CustomerID: sale.CustomerID,
			SaleID:     sale.ID,
			Kind:       domain.LoyaltyKindRedeemed,
			Points:     -sale.PointsRedeemed,
			CreatedAt:  sale.CreatedAt,
		})
	}
	if sale.EarnedPoints > 0 && sale.CustomerID != "" {
		customer := m.customers[sale.CustomerID]
		customer.LoyaltyPoints += sale.EarnedPoints
		m.customers[sale.CustomerID] = customer
		m.loyaltyLedger = append(m.loyaltyLedger, domain.LoyaltyTransaction{
			ID:         xid.New("loy"),
			CustomerID: sale.CustomerID,
			SaleID:     sale.ID,
			Kind:       domain.LoyaltyKindEarned,
			Points:     sale.EarnedPoints,
			CreatedAt:  sale.CreatedAt,
		})
	}

	saved := cloneSale(sale)
	m.salesByID[sale.ID] = &saved

	out := cloneSale(saved)
	return &out, nil
}

func (m *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sale, ok := m.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := cloneSale(*sale)
	return &copied, nil
}

func (m *Store) CreateRefund(_ context.Context, refund domain.Refund, lines []domain.RefundLine) (*domain.Refund, error) {
	if refund.SaleID == "" || len(lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if refund.ID == "" {
		refund.ID = xid.New("refund")
	}
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sale, ok := m.salesByID[refund.SaleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.RefundStatus == domain.RefundStatusFull {
		return nil, store.ErrSaleFullyRefunded
	}

	soldItems := make(map[string]domain.SaleItem, len(sale.Items))
	for _, item := range sale.Items {
		soldItems[lineKey(item.ProductID, item.VariantID)] = item
	}
	refundedQty := make(map[string]int, 8)
	for _, prior := range m.refundItems[refund.SaleID] {
		refundedQty[lineKey(prior.ProductID, prior.VariantID)] += prior.Qty
	}

	amount := int64(0)
	resolved := make([]domain.RefundLine, 0, len(lines))
	for _, line := range lines {
		if line.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		key := lineKey(line.ProductID, line.VariantID)
		sold, ok := soldItems[key]
		if !ok {
			return nil, fmt.Errorf("%w: product %s was not on the sale", store.ErrLineMismatch, line.ProductID)
		}
		if line.UnitPriceCents == 0 {
			line.UnitPriceCents = sold.UnitPriceCents
		}
		if line.UnitPriceCents != sold.UnitPriceCents {
			return nil, fmt.Errorf("%w: product %s unit price %d does not match sale price %d", store.ErrLineMismatch, line.ProductID, line.UnitPriceCents, sold.UnitPriceCents)
		}
		if refundedQty[key]+line.Qty > sold.Qty {
			return nil, fmt.Errorf("%w: product %s refund qty %d exceeds remaining %d", store.ErrLineMismatch, line.ProductID, line.Qty, sold.Qty-refundedQty[key])
		}
		refundedQty[key] += line.Qty
		amount += line.UnitPriceCents * int64(line.Qty)
		resolved = append(resolved, line)
	}

	if amount > sale.TotalCents-sale.RefundedCents {
		return nil, store.ErrRefundExceedsTotal
	}
	refund.AmountCents = amount

	if refund.Restock {
		for _, line := range resolved {
			newQty, err := m.applyStockDeltaLocked(line.ProductID, line.VariantID, line.Qty)
			if err != nil {
				return nil, err
			}
			m.stockAdjustments = append(m.stockAdjustments, domain.StockAdjustment{
				ID:          xid.New("adj"),
				ProductID:   line.ProductID,
				VariantID:   line.VariantID,
				PreviousQty: newQty - line.Qty,
				NewQty:      newQty,
				Delta:       line.Qty,
				Reason:      domain.StockReasonRefundRestock,
				UserID:      refund.CashierID,
				CreatedAt:   refund.CreatedAt,
			})
		}
	}

	sale.RefundedCents += amount
	if sale.RefundedCents >= sale.TotalCents {
		sale.RefundStatus = domain.RefundStatusFull
	} else {
		sale.RefundStatus = domain.RefundStatusPartial
	}

	m.refundsByID[refund.ID] = refund
	m.refundItems[refund.SaleID] = append(m.refundItems[refund.SaleID], resolved...)

	saved := refund
	return &saved, nil
}

func (m *Store) OpenRegisterSession(_ context.Context, session domain.RegisterSession) (*domain.RegisterSession, error) {
	if strings.TrimSpace(session.CashierID) == "" || session.OpeningFloatCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if session.ID == "" {
		session.ID = xid.New("reg")
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	session.Status = domain.RegisterStatusOpen
	session.ExpectedCashCents = session.OpeningFloatCents
	session.CountedCashCents = nil
	session.VarianceCents = nil
	session.ClosedAt = nil

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, open := m.openSessionByCID[session.CashierID]; open {
		return nil, store.ErrRegisterAlreadyOpen
	}

	saved := session
	m.sessionsByID[session.ID] = &saved
	m.openSessionByCID[session.CashierID] = session.ID

	out := saved
	return &out, nil
}

func (m *Store) GetOpenRegisterSession(_ context.Context, cashierID string) (*domain.RegisterSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.openSessionByCID[cashierID]
	if !ok {
		return nil, store.ErrNoOpenSession
	}
	copied := *m.sessionsByID[id]
	return &copied, nil
}

func (m *Store) AddRegisterMovement(_ context.Context, cashierID string, movement domain.RegisterMovement) (*domain.RegisterSession, error) {
	if movement.AmountCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}

	delta, err := signedMovement(movement.Type, movement.AmountCents)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.openSessionByCID[cashierID]
	if !ok {
		return nil, store.ErrNoOpenSession
	}
	session := m.sessionsByID[id]
	movement.SessionID = session.ID
	m.movements[session.ID] = append(m.movements[session.ID], movement)
	session.ExpectedCashCents += delta

	copied := *session
	return &copied, nil
}

func (m *Store) CloseRegisterSession(_ context.Context, cashierID string, countedCashCents *int64, notes string, closedAt time.Time) (*domain.RegisterSession, error) {
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.openSessionByCID[cashierID]
	if !ok {
		return nil, store.ErrNoOpenSession
	}
	session := m.sessionsByID[id]

	// Re-derive expected cash from the movement rows instead of trusting the
	// running column.
	expected := session.OpeningFloatCents
	for _, movement := range m.movements[session.ID] {
		delta, err := signedMovement(movement.Type, movement.AmountCents)
		if err != nil {
			return nil, err
		}
		expected += delta
	}
	session.ExpectedCashCents = expected

	if countedCashCents != nil {
		counted := *countedCashCents
		variance := counted - expected
		session.CountedCashCents = &counted
		session.VarianceCents = &variance
	}
	if notes != "" {
		if session.Notes != "" {
			session.Notes += "; "
		}
		session.Notes += notes
	}

	session.Status = domain.RegisterStatusClosed
	at := closedAt.UTC()
	session.ClosedAt = &at
	delete(m.openSessionByCID, cashierID)

	copied := *session
	return &copied, nil
}

func (m *Store) ListRegisterSessions(_ context.Context, cashierID string, limit int) ([]domain.RegisterSession, error) {
	if limit < 1 {
		limit = 50
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]domain.RegisterSession, 0, limit)
	for _, session := range m.sessionsByID {
		if session.CashierID == cashierID {
			sessions = append(sessions, *session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].OpenedAt.After(sessions[j].OpenedAt)
	})
	if len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (m *Store) ListRegisterMovements(_ context.Context, sessionID string) ([]domain.RegisterMovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.RegisterMovement, len(m.movements[sessionID]))
	copy(out, m.movements[sessionID])
	return out, nil
}

func (m *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditLogs = append(m.auditLogs, entry)
	return nil
}

// ListAuditLogs is a test helper mirroring the audit read the postgres store
// exposes to reporting tools.
func (m *Store) ListAuditLogs() []domain.AuditLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.AuditLog, len(m.auditLogs))
	copy(out, m.auditLogs)
	return out
}

// ListStockAdjustments is a test helper.
func (m *Store) ListStockAdjustments() []domain.StockAdjustment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.StockAdjustment, len(m.stockAdjustments))
	copy(out, m.stockAdjustments)
	return out
}

func (m *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.usersByUsername[user.Username]; exists {
		return store.ErrInvalidInput
	}
	m.usersByUsername[user.Username] = user
	return nil
}

func (m *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(m.usersByUsername))
	for _, user := range m.usersByUsername {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (m *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	m.usersByUsername[username] = user
	return nil
}

func (m *Store) couponByIDLocked(couponID string) (domain.Coupon, bool) {
	for _, coupon := range m.couponsByCode {
		if coupon.ID == couponID {
			return coupon, true
		}
	}
	return domain.Coupon{}, false
}

func (m *Store) checkStockLocked(productID string, variantID string, qty int) error {
	if variantID != "" {
		variant, ok := m.variants[variantID]
		if !ok {
			return fmt.Errorf("%w: variant %s", store.ErrNotFound, variantID)
		}
		if variant.Stock < qty {
			return fmt.Errorf("%w: variant %s", store.ErrInsufficientStock, variantID)
		}
		return nil
	}
	product, ok := m.products[productID]
	if !ok || !product.Active {
		return fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
	}
	if product.Stock < qty {
		return fmt.Errorf("%w: product %s", store.ErrInsufficientStock, productID)
	}
	return nil
}

// takeStockLocked assumes checkStockLocked already passed.
func (m *Store) takeStockLocked(productID string, variantID string, qty int) (int, int64) {
	if variantID != "" {
		variant := m.variants[variantID]
		variant.Stock -= qty
		m.variants[variantID] = variant
		return variant.Stock, variant.CostPriceCents
	}
	product := m.products[productID]
	product.Stock -= qty
	m.products[productID] = product
	return product.Stock, product.CostPriceCents
}

func (m *Store) applyStockDeltaLocked(productID string, variantID string, delta int) (int, error) {
	if variantID != "" {
		variant, ok := m.variants[variantID]
		if !ok {
			return 0, fmt.Errorf("%w: variant %s", store.ErrNotFound, variantID)
		}
		if variant.Stock+delta < 0 {
			return 0, fmt.Errorf("%w: variant %s", store.ErrInsufficientStock, variantID)
		}
		variant.Stock += delta
		m.variants[variantID] = variant
		return variant.Stock, nil
	}
	product, ok := m.products[productID]
	if !ok {
		return 0, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
	}
	if product.Stock+delta < 0 {
		return 0, fmt.Errorf("%w: product %s", store.ErrInsufficientStock, productID)
	}
	product.Stock += delta
	m.products[productID] = product
	return product.Stock, nil
}

func signedMovement(movementType string, amountCents int64) (int64, error) {
	switch movementType {
	case domain.MovementSale, domain.MovementCashIn:
		return amountCents, nil
	case domain.MovementRefund, domain.MovementCashOut:
		return -amountCents, nil
	default:
		return 0, fmt.Errorf("%w: unknown movement type %q", store.ErrInvalidInput, movementType)
	}
}

func lineKey(productID string, variantID string) string {
	if variantID == "" {
		return productID
	}
	return productID + "|" + variantID
}

func cloneSale(sale domain.Sale) domain.Sale {
	copied := sale
	copied.Items = make([]domain.SaleItem, len(sale.Items))
	copy(copied.Items, sale.Items)
	copied.Payments = make([]domain.Payment, len(sale.Payments))
	copy(copied.Payments, sale.Payments)
	return copied
}
