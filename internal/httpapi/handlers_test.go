package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tokonova/backend/internal/domain"
	"tokonova/backend/internal/pos"
	"tokonova/backend/internal/store"
	"tokonova/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := pos.New(repo, nil, time.Second, nil, nil)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "admin123",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["access_token"] == "" || body["access_token"] == nil {
		t.Fatalf("expected access_token in response, got %v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

// authedRequest builds a request carrying both the bearer token and a CSRF
// token so it passes the full middleware chain.
func authedRequest(t *testing.T, api *API, method, path string, payload any, token, csrf string) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func TestComputeTotalsRequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(domain.SaleRequest{
		Items: []domain.SaleItemInput{{ProductID: "prod-espresso", Qty: 1}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales/compute-totals", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", api.generateCSRFToken())
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer token, got %d", rec.Code)
	}
}

func TestComputeTotalsAppliesExclusiveTax(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	// Seeded settings: 14% exclusive tax. One espresso at 30000.
	rec := authedRequest(t, api, http.MethodPost, "/api/v1/sales/compute-totals", domain.SaleRequest{
		Items: []domain.SaleItemInput{{ProductID: "prod-espresso", Qty: 1}},
	}, token, csrf)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Totals domain.Totals `json:"totals"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Totals.SubtotalCents != 30000 {
		t.Fatalf("expected subtotal 30000, got %d", body.Totals.SubtotalCents)
	}
	if body.Totals.TaxCents != 4200 {
		t.Fatalf("expected tax 4200, got %d", body.Totals.TaxCents)
	}
	if body.Totals.TotalCents != 34200 {
		t.Fatalf("expected total 34200, got %d", body.Totals.TotalCents)
	}
}

func TestComputeTotalsSurfacesCouponRejection(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := authedRequest(t, api, http.MethodPost, "/api/v1/sales/compute-totals", domain.SaleRequest{
		Items:      []domain.SaleItemInput{{ProductID: "prod-espresso", Qty: 2}},
		CouponCode: "LASTYEAR",
	}, token, csrf)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for expired coupon, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["reason"] != "expired" {
		t.Fatalf("expected reason expired, got %v", body["reason"])
	}
}

func TestCreateSaleThenGet(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := authedRequest(t, api, http.MethodPost, "/api/v1/sales", domain.SaleRequest{
		Items:         []domain.SaleItemInput{{ProductID: "prod-espresso", Qty: 2}},
		PaymentMethod: "cash",
	}, token, csrf)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var created struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if created.Sale.ID == "" {
		t.Fatalf("expected sale id in response")
	}
	// 2 x 30000 = 60000, tax 8400.
	if created.Sale.TotalCents != 68400 {
		t.Fatalf("expected total 68400, got %d", created.Sale.TotalCents)
	}

	get := authedRequest(t, api, http.MethodGet, "/api/v1/sales/"+created.Sale.ID, nil, token, "")
	if get.Code != http.StatusOK {
		t.Fatalf("expected 200 on fetch, got %d (body: %s)", get.Code, get.Body.String())
	}
}

func TestCreateSaleInsufficientStockConflicts(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := authedRequest(t, api, http.MethodPost, "/api/v1/sales", domain.SaleRequest{
		Items: []domain.SaleItemInput{{ProductID: "prod-sandwich", Qty: 99999}},
	}, token, csrf)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for insufficient stock, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestRefundUnknownSaleReturns404(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := authedRequest(t, api, http.MethodPost, "/api/v1/sales/sale-missing/refund", domain.RefundRequest{
		Items:  []domain.RefundLine{{ProductID: "prod-espresso", Qty: 1, UnitPriceCents: 30000}},
		Reason: domain.RefundReasonCustomerRequest,
	}, token, csrf)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestRegisterLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	open := authedRequest(t, api, http.MethodPost, "/api/v1/register/open", domain.RegisterOpenRequest{
		OpeningFloatCents: 20000,
	}, token, csrf)
	if open.Code != http.StatusCreated {
		t.Fatalf("expected 201 on open, got %d (body: %s)", open.Code, open.Body.String())
	}

	// Second open for the same cashier must conflict.
	again := authedRequest(t, api, http.MethodPost, "/api/v1/register/open", domain.RegisterOpenRequest{
		OpeningFloatCents: 100,
	}, token, csrf)
	if again.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double open, got %d", again.Code)
	}

	in := authedRequest(t, api, http.MethodPost, "/api/v1/register/movement", domain.RegisterMovementRequest{
		Type: domain.MovementCashIn, AmountCents: 15000,
	}, token, csrf)
	if in.Code != http.StatusOK {
		t.Fatalf("expected 200 on cash_in, got %d (body: %s)", in.Code, in.Body.String())
	}
	out := authedRequest(t, api, http.MethodPost, "/api/v1/register/movement", domain.RegisterMovementRequest{
		Type: domain.MovementCashOut, AmountCents: 5000,
	}, token, csrf)
	if out.Code != http.StatusOK {
		t.Fatalf("expected 200 on cash_out, got %d (body: %s)", out.Code, out.Body.String())
	}

	closeRec := authedRequest(t, api, http.MethodPost, "/api/v1/register/close", domain.RegisterCloseRequest{
		CountedCashCents: 29500,
	}, token, csrf)
	if closeRec.Code != http.StatusOK {
		t.Fatalf("expected 200 on close, got %d (body: %s)", closeRec.Code, closeRec.Body.String())
	}

	var closed struct {
		Session domain.RegisterSession `json:"session"`
	}
	if err := json.NewDecoder(closeRec.Body).Decode(&closed); err != nil {
		t.Fatalf("decode close body: %v", err)
	}
	if closed.Session.ExpectedCashCents != 30000 {
		t.Fatalf("expected cash 30000, got %d", closed.Session.ExpectedCashCents)
	}
	if closed.Session.VarianceCents == nil || *closed.Session.VarianceCents != -500 {
		t.Fatalf("expected variance -500, got %v", closed.Session.VarianceCents)
	}
}

func TestForceCloseRequiresAdminRole(t *testing.T) {
	api := newTestAPI(t)
	csrf := fetchCSRFToken(t, api)

	body, _ := json.Marshal(map[string]string{"username": "cashier", "password": "cashier123"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("cashier login failed, status %d", res.Code)
	}
	var login domain.LoginResponse
	if err := json.NewDecoder(res.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	rec := authedRequest(t, api, http.MethodPost, "/api/v1/register/force-close", map[string]string{
		"cashier_id": "cashier",
	}, login.AccessToken, csrf)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier on force-close, got %d", rec.Code)
	}
}

func TestRegisterCurrentWithoutOpenSession(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)

	rec := authedRequest(t, api, http.MethodGet, "/api/v1/register/current", nil, token, "")
	if rec.Code != http.StatusConflict && rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404/409 without open session, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestDomainErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", fmt.Errorf("%w: bad qty", store.ErrInvalidInput), http.StatusBadRequest},
		{"not found", fmt.Errorf("%w: sale x", store.ErrNotFound), http.StatusNotFound},
		{"insufficient stock", store.ErrInsufficientStock, http.StatusConflict},
		{"forbidden", fmt.Errorf("%w: admin role required", store.ErrForbidden), http.StatusForbidden},
		{"refund bound", store.ErrRefundExceedsTotal, http.StatusUnprocessableEntity},
		{"coupon rejection", &store.CouponError{Code: "X", Reason: store.CouponReasonExpired}, http.StatusUnprocessableEntity},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeDomainError(rec, tc.err)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestCouponValidateEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	rec := authedRequest(t, api, http.MethodPost, "/api/v1/coupons/validate", domain.CouponCheckRequest{
		Code:       "WELCOME10",
		TotalCents: 60000,
	}, token, csrf)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body domain.CouponCheckResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.DiscountCents != 10000 {
		t.Fatalf("expected discount 10000, got %d", body.DiscountCents)
	}
}
