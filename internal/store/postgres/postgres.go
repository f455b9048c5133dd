package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tokonova/backend/internal/domain"
	"tokonova/backend/internal/store"
	"tokonova/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetSettingsMap(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value
		FROM settings
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string, 16)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return map[string]domain.Product{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price_cents, cost_price_cents, stock, active
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.PriceCents, &p.CostPriceCents, &p.Stock, &p.Active); err != nil {
			return nil, err
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetVariantsByIDs(ctx context.Context, ids []string) (map[string]domain.ProductVariant, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return map[string]domain.ProductVariant{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, name, price_cents, cost_price_cents, stock
		FROM product_variants
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	variants := make(map[string]domain.ProductVariant, len(ids))
	for rows.Next() {
		var v domain.ProductVariant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &v.PriceCents, &v.CostPriceCents, &v.Stock); err != nil {
			return nil, err
		}
		variants[v.ID] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return variants, nil
}

// AdjustStock applies a manual stock delta. Negative deltas use the same
// conditional decrement as the sale path so stock can never go below zero.
func (s *Store) AdjustStock(ctx context.Context, productID string, variantID string, delta int, reason string, userID string) error {
	if productID == "" || delta == 0 {
		return store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	newQty, err := applyStockDelta(ctx, pgTx, productID, variantID, delta)
	if err != nil {
		return err
	}

	if err := insertStockAdjustment(ctx, pgTx, domain.StockAdjustment{
		ID:          xid.New("adj"),
		ProductID:   productID,
		VariantID:   variantID,
		PreviousQty: newQty - delta,
		NewQty:      newQty,
		Delta:       delta,
		Reason:      reason,
		UserID:      userID,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return err
	}

	return pgTx.Commit()
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, loyalty_points
		FROM customers
		WHERE id = $1
	`, id).Scan(&customer.ID, &customer.Name, &customer.Phone, &customer.LoyaltyPoints)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ListLoyaltyTransactions(ctx context.Context, customerID string, limit int) ([]domain.LoyaltyTransaction, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, sale_id, kind, points, created_at
		FROM loyalty_transactions
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LoyaltyTransaction, 0, limit)
	for rows.Next() {
		var entry domain.LoyaltyTransaction
		var saleID sql.NullString
		if err := rows.Scan(&entry.ID, &entry.CustomerID, &saleID, &entry.Kind, &entry.Points, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.SaleID = saleID.String
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	var coupon domain.Coupon
	var scopeIDs sql.NullString
	var startsAt, expiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, status, type, percent_off, flat_off_cents, min_purchase_cents,
			max_discount_cents, starts_at, expires_at, max_uses, max_uses_per_customer,
			scope, scope_ids
		FROM coupons
		WHERE code = $1
	`, code).Scan(
		&coupon.ID,
		&coupon.Code,
		&coupon.Status,
		&coupon.Type,
		&coupon.PercentOff,
		&coupon.FlatOffCents,
		&coupon.MinPurchaseCents,
		&coupon.MaxDiscountCents,
		&startsAt,
		&expiresAt,
		&coupon.MaxUses,
		&coupon.MaxUsesPerCustomer,
		&coupon.Scope,
		&scopeIDs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if startsAt.Valid {
		coupon.StartsAt = startsAt.Time.UTC()
	}
	if expiresAt.Valid {
		coupon.ExpiresAt = expiresAt.Time.UTC()
	}
	coupon.ScopeIDs = decodeScopeIDs(scopeIDs.String)
	return &coupon, nil
}

func (s *Store) CountCouponUsage(ctx context.Context, couponID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1
	`, couponID).Scan(&count)
	return count, err
}

func (s *Store) CountCouponUsageByCustomer(ctx context.Context, couponID string, customerID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND customer_id = $2
	`, couponID, customerID).Scan(&count)
	return count, err
}

// CreateSale executes the sale atomically: loyalty balance re-check, header
// and line inserts, coupon cap recount and usage insert, conditional stock
// decrements with adjustment rows, payment rows and loyalty ledger updates
// all commit together or not at all.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
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

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if sale.PointsRedeemed > 0 {
		var balance int64
		err := pgTx.QueryRowContext(ctx, `
			SELECT loyalty_points
			FROM customers
			WHERE id = $1
			FOR UPDATE
		`, sale.CustomerID).Scan(&balance)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if balance < sale.PointsRedeemed {
			return nil, store.ErrInsufficientLoyaltyPoints
		}
	}

	if sale.CouponID != "" {
		if err := recheckCouponCaps(ctx, pgTx, sale.CouponID, sale.CustomerID); err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, cashier_id, customer_id, subtotal_cents, discount_cents, discount_type,
			tax_cents, tip_cents, coupon_id, coupon_discount_cents,
			points_redeemed, points_discount_cents, payment_method, total_cents,
			refund_status, refunded_cents, earned_points, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, sale.ID, sale.CashierID, nullIfEmpty(sale.CustomerID), sale.SubtotalCents, sale.DiscountCents,
		nullIfEmpty(sale.DiscountType), sale.TaxCents, sale.TipCents, nullIfEmpty(sale.CouponID),
		sale.CouponDiscountCents, sale.PointsRedeemed, sale.PointsDiscountCents, sale.PaymentMethod,
		sale.TotalCents, sale.RefundStatus, sale.RefundedCents, sale.EarnedPoints, sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i, item := range sale.Items {
		newQty, costCents, err := decrementStockWithCost(ctx, pgTx, item.ProductID, item.VariantID, item.Qty)
		if err != nil {
			return nil, err
		}
		sale.Items[i].SaleID = sale.ID
		sale.Items[i].CostPriceCents = costCents

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, variant_id, qty, unit_price_cents, cost_price_cents)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, item.ProductID, nullIfEmpty(item.VariantID), item.Qty, item.UnitPriceCents, costCents)
		if err != nil {
			return nil, err
		}

		if err := insertStockAdjustment(ctx, pgTx, domain.StockAdjustment{
			ID:          xid.New("adj"),
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			PreviousQty: newQty + item.Qty,
			NewQty:      newQty,
			Delta:       -item.Qty,
			Reason:      domain.StockReasonSale,
			UserID:      sale.CashierID,
			CreatedAt:   sale.CreatedAt,
		}); err != nil {
			return nil, err
		}
	}

	for i, payment := range sale.Payments {
		sale.Payments[i].SaleID = sale.ID
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO payments (sale_id, method, amount_cents, reference)
			VALUES ($1,$2,$3,$4)
		`, sale.ID, payment.Method, payment.AmountCents, nullIfEmpty(payment.Reference))
		if err != nil {
			return nil, err
		}
	}

	if sale.CouponID != "" {
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO coupon_usages (id, coupon_id, sale_id, customer_id, used_at)
			VALUES ($1,$2,$3,$4,$5)
		`, xid.New("cu"), sale.CouponID, sale.ID, nullIfEmpty(sale.CustomerID), sale.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	if sale.PointsRedeemed > 0 {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE customers
			SET loyalty_points = loyalty_points - $1
			WHERE id = $2 AND loyalty_points >= $1
		`, sale.PointsRedeemed, sale.CustomerID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrInsufficientLoyaltyPoints
		}
		if err := insertLoyaltyTransaction(ctx, pgTx, domain.LoyaltyTransaction{
			ID:         xid.New("loy"),
			CustomerID: sale.CustomerID,
			SaleID:     sale.ID,
			Kind:       domain.LoyaltyKindRedeemed,
			Points:     -sale.PointsRedeemed,
			CreatedAt:  sale.CreatedAt,
		}); err != nil {
			return nil, err
		}
	}

	if sale.EarnedPoints > 0 && sale.CustomerID != "" {
		_, err := pgTx.ExecContext(ctx, `
			UPDATE customers
			SET loyalty_points = loyalty_points + $1
			WHERE id = $2
		`, sale.EarnedPoints, sale.CustomerID)
		if err != nil {
			return nil, err
		}
		if err := insertLoyaltyTransaction(ctx, pgTx, domain.LoyaltyTransaction{
			ID:         xid.New("loy"),
			CustomerID: sale.CustomerID,
			SaleID:     sale.ID,
			Kind:       domain.LoyaltyKindEarned,
			Points:     sale.EarnedPoints,
			CreatedAt:  sale.CreatedAt,
		}); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	saved := sale
	return &saved, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	var customerID, discountType, couponID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, cashier_id, customer_id, subtotal_cents, discount_cents, discount_type,
			tax_cents, tip_cents, coupon_id, coupon_discount_cents,
			points_redeemed, points_discount_cents, payment_method, total_cents,
			refund_status, refunded_cents, earned_points, created_at
		FROM sales
		WHERE id = $1
	`, id).Scan(
		&sale.ID,
		&sale.CashierID,
		&customerID,
		&sale.SubtotalCents,
		&sale.DiscountCents,
		&discountType,
		&sale.TaxCents,
		&sale.TipCents,
		&couponID,
		&sale.CouponDiscountCents,
		&sale.PointsRedeemed,
		&sale.PointsDiscountCents,
		&sale.PaymentMethod,
		&sale.TotalCents,
		&sale.RefundStatus,
		&sale.RefundedCents,
		&sale.EarnedPoints,
		&sale.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.CustomerID = customerID.String
	sale.DiscountType = discountType.String
	sale.CouponID = couponID.String
	sale.CreatedAt = sale.CreatedAt.UTC()

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, variant_id, qty, unit_price_cents, cost_price_cents
		FROM sale_items
		WHERE sale_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var item domain.SaleItem
		var variantID sql.NullString
		if err := itemRows.Scan(&item.SaleID, &item.ProductID, &variantID, &item.Qty, &item.UnitPriceCents, &item.CostPriceCents); err != nil {
			return nil, err
		}
		item.VariantID = variantID.String
		sale.Items = append(sale.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	paymentRows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, method, amount_cents, reference
		FROM payments
		WHERE sale_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer paymentRows.Close()
	for paymentRows.Next() {
		var payment domain.Payment
		var reference sql.NullString
		if err := paymentRows.Scan(&payment.SaleID, &payment.Method, &payment.AmountCents, &reference); err != nil {
			return nil, err
		}
		payment.Reference = reference.String
		sale.Payments = append(sale.Payments, payment)
	}
	if err := paymentRows.Err(); err != nil {
		return nil, err
	}

	return &sale, nil
}

// CreateRefund locks the sale row, recomputes the cumulative refunded amount
// and per-product refunded quantities inside the transaction, then writes the
// refund, its lines, the sale status update and any restock, atomically.
func (s *Store) CreateRefund(ctx context.Context, refund domain.Refund, lines []domain.RefundLine) (*domain.Refund, error) {
	if refund.SaleID == "" || len(lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if refund.ID == "" {
		refund.ID = xid.New("refund")
	}
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var saleTotal, refundedSoFar int64
	var refundStatus string
	err = pgTx.QueryRowContext(ctx, `
		SELECT total_cents, refunded_cents, refund_status
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, refund.SaleID).Scan(&saleTotal, &refundedSoFar, &refundStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if refundStatus == domain.RefundStatusFull {
		return nil, store.ErrSaleFullyRefunded
	}

	soldItems, err := loadSaleItems(ctx, pgTx, refund.SaleID)
	if err != nil {
		return nil, err
	}
	refundedQty, err := loadRefundedQty(ctx, pgTx, refund.SaleID)
	if err != nil {
		return nil, err
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

	if amount > saleTotal-refundedSoFar {
		return nil, store.ErrRefundExceedsTotal
	}
	refund.AmountCents = amount

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO refunds (id, sale_id, amount_cents, reason, items_json, restock, cashier_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, refund.ID, refund.SaleID, refund.AmountCents, refund.Reason, refund.ItemsJSON, refund.Restock, refund.CashierID, refund.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, line := range resolved {
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO refund_items (refund_id, product_id, variant_id, qty, unit_price_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, refund.ID, line.ProductID, nullIfEmpty(line.VariantID), line.Qty, line.UnitPriceCents)
		if err != nil {
			return nil, err
		}

		if refund.Restock {
			newQty, err := applyStockDelta(ctx, pgTx, line.ProductID, line.VariantID, line.Qty)
			if err != nil {
				return nil, err
			}
			if err := insertStockAdjustment(ctx, pgTx, domain.StockAdjustment{
				ID:          xid.New("adj"),
				ProductID:   line.ProductID,
				VariantID:   line.VariantID,
				PreviousQty: newQty - line.Qty,
				NewQty:      newQty,
				Delta:       line.Qty,
				Reason:      domain.StockReasonRefundRestock,
				UserID:      refund.CashierID,
				CreatedAt:   refund.CreatedAt,
			}); err != nil {
				return nil, err
			}
		}
	}

	nextStatus := domain.RefundStatusPartial
	if refundedSoFar+amount >= saleTotal {
		nextStatus = domain.RefundStatusFull
	}
	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET refunded_cents = refunded_cents + $2, refund_status = $3
		WHERE id = $1
	`, refund.SaleID, amount, nextStatus)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	saved := refund
	return &saved, nil
}

func (s *Store) OpenRegisterSession(ctx context.Context, session domain.RegisterSession) (*domain.RegisterSession, error) {
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

	// A partial unique index on (cashier_id) WHERE status = 'open' enforces
	// one open session per cashier.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO register_sessions (
			id, cashier_id, opening_float_cents, expected_cash_cents,
			counted_cash_cents, variance_cents, status, notes, opened_at, closed_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, session.ID, session.CashierID, session.OpeningFloatCents, session.ExpectedCashCents,
		nil, nil, session.Status, nullIfEmpty(session.Notes), session.OpenedAt, nil)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrRegisterAlreadyOpen
		}
		return nil, err
	}

	saved := session
	return &saved, nil
}

func (s *Store) GetOpenRegisterSession(ctx context.Context, cashierID string) (*domain.RegisterSession, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, cashier_id, opening_float_cents, expected_cash_cents,
			counted_cash_cents, variance_cents, status, notes, opened_at, closed_at
		FROM register_sessions
		WHERE cashier_id = $1 AND status = 'open'
		ORDER BY opened_at DESC
		LIMIT 1
	`, cashierID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoOpenSession
		}
		return nil, err
	}
	return session, nil
}

// AddRegisterMovement appends a movement to the cashier's open session and
// bumps expected cash by the signed amount in the same transaction.
func (s *Store) AddRegisterMovement(ctx context.Context, cashierID string, movement domain.RegisterMovement) (*domain.RegisterSession, error) {
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

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	session, err := scanSession(pgTx.QueryRowContext(ctx, `
		SELECT id, cashier_id, opening_float_cents, expected_cash_cents,
			counted_cash_cents, variance_cents, status, notes, opened_at, closed_at
		FROM register_sessions
		WHERE cashier_id = $1 AND status = 'open'
		FOR UPDATE
	`, cashierID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoOpenSession
		}
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO register_movements (id, session_id, type, amount_cents, sale_id, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, movement.ID, session.ID, movement.Type, movement.AmountCents, nullIfEmpty(movement.SaleID), nullIfEmpty(movement.Note), movement.CreatedAt)
	if err != nil {
		return nil, err
	}

	err = pgTx.QueryRowContext(ctx, `
		UPDATE register_sessions
		SET expected_cash_cents = expected_cash_cents + $2
		WHERE id = $1
		RETURNING expected_cash_cents
	`, session.ID, delta).Scan(&session.ExpectedCashCents)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return session, nil
}

// CloseRegisterSession reconciles and closes the cashier's open session.
// Expected cash is recomputed from the movement rows rather than trusted from
// the running column; a nil counted amount closes without reconciliation and
// leaves counted and variance unset.
func (s *Store) CloseRegisterSession(ctx context.Context, cashierID string, countedCashCents *int64, notes string, closedAt time.Time) (*domain.RegisterSession, error) {
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	session, err := scanSession(pgTx.QueryRowContext(ctx, `
		SELECT id, cashier_id, opening_float_cents, expected_cash_cents,
			counted_cash_cents, variance_cents, status, notes, opened_at, closed_at
		FROM register_sessions
		WHERE cashier_id = $1 AND status = 'open'
		FOR UPDATE
	`, cashierID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoOpenSession
		}
		return nil, err
	}

	var movementSum int64
	err = pgTx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(
			CASE WHEN type IN ('sale', 'cash_in') THEN amount_cents ELSE -amount_cents END
		), 0)
		FROM register_movements
		WHERE session_id = $1
	`, session.ID).Scan(&movementSum)
	if err != nil {
		return nil, err
	}
	expected := session.OpeningFloatCents + movementSum

	var variance *int64
	if countedCashCents != nil {
		v := *countedCashCents - expected
		variance = &v
	}

	if notes != "" {
		if session.Notes != "" {
			session.Notes += "; "
		}
		session.Notes += notes
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE register_sessions
		SET status = 'closed', expected_cash_cents = $2, counted_cash_cents = $3,
			variance_cents = $4, notes = $5, closed_at = $6
		WHERE id = $1
	`, session.ID, expected, nullIfNilInt64(countedCashCents), nullIfNilInt64(variance), nullIfEmpty(session.Notes), closedAt)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	session.Status = domain.RegisterStatusClosed
	session.ExpectedCashCents = expected
	session.CountedCashCents = countedCashCents
	session.VarianceCents = variance
	at := closedAt.UTC()
	session.ClosedAt = &at
	return session, nil
}

func (s *Store) ListRegisterSessions(ctx context.Context, cashierID string, limit int) ([]domain.RegisterSession, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cashier_id, opening_float_cents, expected_cash_cents,
			counted_cash_cents, variance_cents, status, notes, opened_at, closed_at
		FROM register_sessions
		WHERE cashier_id = $1
		ORDER BY opened_at DESC
		LIMIT $2
	`, cashierID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]domain.RegisterSession, 0, limit)
	for rows.Next() {
		session, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *Store) ListRegisterMovements(ctx context.Context, sessionID string) ([]domain.RegisterMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, type, amount_cents, sale_id, note, created_at
		FROM register_movements
		WHERE session_id = $1
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.RegisterMovement, 0, 32)
	for rows.Next() {
		var movement domain.RegisterMovement
		var saleID, note sql.NullString
		if err := rows.Scan(&movement.ID, &movement.SessionID, &movement.Type, &movement.AmountCents, &saleID, &note, &movement.CreatedAt); err != nil {
			return nil, err
		}
		movement.SaleID = saleID.String
		movement.Note = note.String
		movement.CreatedAt = movement.CreatedAt.UTC()
		movements = append(movements, movement)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// recheckCouponCaps re-counts coupon usage with the coupon row locked so two
// concurrent sales cannot both slip under max_uses.
func recheckCouponCaps(ctx context.Context, pgTx *sql.Tx, couponID string, customerID string) error {
	var code string
	var maxUses, maxUsesPerCustomer int
	err := pgTx.QueryRowContext(ctx, `
		SELECT code, max_uses, max_uses_per_customer
		FROM coupons
		WHERE id = $1
		FOR UPDATE
	`, couponID).Scan(&code, &maxUses, &maxUsesPerCustomer)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	if maxUses > 0 {
		var used int
		if err := pgTx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1
		`, couponID).Scan(&used); err != nil {
			return err
		}
		if used >= maxUses {
			return &store.CouponError{Code: code, Reason: store.CouponReasonUsageExceeded}
		}
	}
	if maxUsesPerCustomer > 0 && customerID != "" {
		var used int
		if err := pgTx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND customer_id = $2
		`, couponID, customerID).Scan(&used); err != nil {
			return err
		}
		if used >= maxUsesPerCustomer {
			return &store.CouponError{Code: code, Reason: store.CouponReasonCustomerUsageExceeded}
		}
	}
	return nil
}

// decrementStockWithCost performs the conditional decrement on the variant or
// product row and returns the post-decrement quantity plus the cost price
// snapshot. Zero rows affected means another sale got the stock first.
func decrementStockWithCost(ctx context.Context, pgTx *sql.Tx, productID string, variantID string, qty int) (int, int64, error) {
	var newQty int
	var costCents int64
	if variantID != "" {
		err := pgTx.QueryRowContext(ctx, `
			UPDATE product_variants
			SET stock = stock - $1
			WHERE id = $2 AND stock >= $1
			RETURNING stock, cost_price_cents
		`, qty, variantID).Scan(&newQty, &costCents)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return 0, 0, fmt.Errorf("%w: variant %s", store.ErrInsufficientStock, variantID)
			}
			return 0, 0, err
		}
		return newQty, costCents, nil
	}

	err := pgTx.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock - $1
		WHERE id = $2 AND stock >= $1 AND active = true
		RETURNING stock, cost_price_cents
	`, qty, productID).Scan(&newQty, &costCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, fmt.Errorf("%w: product %s", store.ErrInsufficientStock, productID)
		}
		return 0, 0, err
	}
	return newQty, costCents, nil
}

func applyStockDelta(ctx context.Context, pgTx *sql.Tx, productID string, variantID string, delta int) (int, error) {
	var newQty int
	if variantID != "" {
		err := pgTx.QueryRowContext(ctx, `
			UPDATE product_variants
			SET stock = stock + $1
			WHERE id = $2 AND stock + $1 >= 0
			RETURNING stock
		`, delta, variantID).Scan(&newQty)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return 0, fmt.Errorf("%w: variant %s", store.ErrInsufficientStock, variantID)
			}
			return 0, err
		}
		return newQty, nil
	}

	err := pgTx.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $1
		WHERE id = $2 AND stock + $1 >= 0
		RETURNING stock
	`, delta, productID).Scan(&newQty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: product %s", store.ErrInsufficientStock, productID)
		}
		return 0, err
	}
	return newQty, nil
}

func insertStockAdjustment(ctx context.Context, pgTx *sql.Tx, adj domain.StockAdjustment) error {
	_, err := pgTx.ExecContext(ctx, `
		INSERT INTO stock_adjustments (id, product_id, variant_id, previous_qty, new_qty, delta, reason, user_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, adj.ID, adj.ProductID, nullIfEmpty(adj.VariantID), adj.PreviousQty, adj.NewQty, adj.Delta, adj.Reason, adj.UserID, adj.CreatedAt)
	return err
}

func insertLoyaltyTransaction(ctx context.Context, pgTx *sql.Tx, entry domain.LoyaltyTransaction) error {
	_, err := pgTx.ExecContext(ctx, `
		INSERT INTO loyalty_transactions (id, customer_id, sale_id, kind, points, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.CustomerID, nullIfEmpty(entry.SaleID), entry.Kind, entry.Points, entry.CreatedAt)
	return err
}

func loadSaleItems(ctx context.Context, pgTx *sql.Tx, saleID string) (map[string]domain.SaleItem, error) {
	rows, err := pgTx.QueryContext(ctx, `
		SELECT product_id, variant_id, qty, unit_price_cents
		FROM sale_items
		WHERE sale_id = $1
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make(map[string]domain.SaleItem, 8)
	for rows.Next() {
		var item domain.SaleItem
		var variantID sql.NullString
		if err := rows.Scan(&item.ProductID, &variantID, &item.Qty, &item.UnitPriceCents); err != nil {
			return nil, err
		}
		item.VariantID = variantID.String
		items[lineKey(item.ProductID, item.VariantID)] = item
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func loadRefundedQty(ctx context.Context, pgTx *sql.Tx, saleID string) (map[string]int, error) {
	rows, err := pgTx.QueryContext(ctx, `
		SELECT ri.product_id, ri.variant_id, COALESCE(SUM(ri.qty), 0)::int
		FROM refunds r
		JOIN refund_items ri ON ri.refund_id = r.id
		WHERE r.sale_id = $1
		GROUP BY ri.product_id, ri.variant_id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refunded := make(map[string]int, 8)
	for rows.Next() {
		var productID string
		var variantID sql.NullString
		var qty int
		if err := rows.Scan(&productID, &variantID, &qty); err != nil {
			return nil, err
		}
		refunded[lineKey(productID, variantID.String)] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return refunded, nil
}

type sessionScanner interface {
	Scan(dest ...any) error
}

func scanSession(row sessionScanner) (*domain.RegisterSession, error) {
	var session domain.RegisterSession
	var counted, variance sql.NullInt64
	var notes sql.NullString
	var closedAt sql.NullTime
	err := row.Scan(
		&session.ID,
		&session.CashierID,
		&session.OpeningFloatCents,
		&session.ExpectedCashCents,
		&counted,
		&variance,
		&session.Status,
		&notes,
		&session.OpenedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}
	if counted.Valid {
		v := counted.Int64
		session.CountedCashCents = &v
	}
	if variance.Valid {
		v := variance.Int64
		session.VarianceCents = &v
	}
	session.Notes = notes.String
	session.OpenedAt = session.OpenedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		session.ClosedAt = &at
	}
	return &session, nil
}

func scanSessionRows(rows *sql.Rows) (*domain.RegisterSession, error) {
	return scanSession(rows)
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

func uniqueIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func decodeScopeIDs(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || !strings.HasPrefix(trimmed, "[") {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(trimmed), &ids); err != nil {
		return nil
	}
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullIfNilInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}
