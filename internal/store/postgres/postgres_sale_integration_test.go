package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"tokonova/backend/internal/domain"
)

func TestCreateSaleDecrementsStock(t *testing.T) {
	databaseURL := os.Getenv("TOKONOVA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TOKONOVA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-it-%d", stamp)
	saleID := fmt.Sprintf("sale-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_adjustments WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM payments WHERE sale_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, price_cents, cost_price_cents, stock, active, created_at, updated_at)
		VALUES ($1, 'Integration Espresso', 'coffee', 30000, 9000, 10, true, now(), now())
	`, productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	created, err := s.CreateSale(ctx, domain.Sale{
		ID:            saleID,
		CashierID:     "it-cashier",
		SubtotalCents: 60000,
		TaxCents:      8400,
		PaymentMethod: "cash",
		TotalCents:    68400,
		RefundStatus:  domain.RefundStatusNone,
		CreatedAt:     time.Now().UTC(),
		Items: []domain.SaleItem{
			{ProductID: productID, Qty: 2, UnitPriceCents: 30000},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if created.ID != saleID {
		t.Fatalf("unexpected sale id %s", created.ID)
	}

	var stock int
	if err := s.db.QueryRowContext(ctx, `
		SELECT stock
		FROM products
		WHERE id = $1
	`, productID).Scan(&stock); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if stock != 8 {
		t.Fatalf("expected stock 8 after sale, got %d", stock)
	}

	var costCents int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT cost_price_cents
		FROM sale_items
		WHERE sale_id = $1 AND product_id = $2
	`, saleID, productID).Scan(&costCents); err != nil {
		t.Fatalf("query sale item: %v", err)
	}
	if costCents != 9000 {
		t.Fatalf("expected cost snapshot 9000, got %d", costCents)
	}
}
