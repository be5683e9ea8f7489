package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tiendapc/backend/internal/cache"
	"tiendapc/backend/internal/domain"
	"tiendapc/backend/internal/service"
	"tiendapc/backend/internal/store/memory"
	"tiendapc/backend/internal/sunat"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopCatalogCache{}, sunat.New("", ""), 18, "alm-principal", time.Minute)
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

func TestHandleRegister_CreatesCustomerAccount(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "nuevocliente",
		"password": "clave123",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected registration to return a token")
	}
	if resp.Role != domain.RoleCustomer {
		t.Fatalf("expected customer role, got %s", resp.Role)
	}
}

func TestCatalogIsPublic(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog?sort=precioAsc", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var page domain.CatalogPage
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if page.Total != 5 {
		t.Fatalf("expected 5 active products, got %d", page.Total)
	}
}

func TestCatalogHidesInactiveProduct(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog/SKU-OLD-01", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for inactive product, got %d", rec.Code)
	}
}

func TestCartCookieFlow(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	csrf := fetchCSRFToken(t, api)

	payload, _ := json.Marshal(domain.CartAddRequest{SKU: "SKU-TEC-01", Qty: 1})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var cartCookie *http.Cookie
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == cartCookieName {
			cartCookie = cookie
		}
	}
	if cartCookie == nil || cartCookie.Value == "" {
		t.Fatalf("expected %s cookie to be set", cartCookieName)
	}
	if !cartCookie.HttpOnly {
		t.Fatalf("expected cart cookie to be HttpOnly")
	}

	// Same cookie, same SKU: the line quantity is bumped.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/cart", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", csrf)
	req.AddCookie(cartCookie)
	rec = httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var view domain.CartView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(view.Lines) != 1 || view.Lines[0].Qty != 2 {
		t.Fatalf("expected one line with qty 2, got %+v", view.Lines)
	}
}

func TestCheckoutRequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	csrf := fetchCSRFToken(t, api)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCheckoutFlowServesReceiptPDF(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	csrf := fetchCSRFToken(t, api)
	token := loginAs(t, api, "cliente", "cliente123")

	payload, _ := json.Marshal(domain.CartAddRequest{SKU: "SKU-TEC-01", Qty: 2})
	addReq := httptest.NewRequest(http.MethodPost, "/api/v1/cart", bytes.NewReader(payload))
	addReq.Header.Set("Content-Type", "application/json")
	addReq.Header.Set("X-CSRF-Token", csrf)
	addReq.Header.Set("Authorization", "Bearer "+token)
	addRec := httptest.NewRecorder()
	handler.ServeHTTP(addRec, addReq)
	if addRec.Code != http.StatusOK {
		t.Fatalf("add to cart failed: %d %s", addRec.Code, addRec.Body.String())
	}

	var cartCookie *http.Cookie
	for _, cookie := range addRec.Result().Cookies() {
		if cookie.Name == cartCookieName {
			cartCookie = cookie
		}
	}
	if cartCookie == nil {
		t.Fatalf("expected cart cookie after add")
	}

	checkoutReq := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	checkoutReq.Header.Set("X-CSRF-Token", csrf)
	checkoutReq.Header.Set("Authorization", "Bearer "+token)
	checkoutReq.AddCookie(cartCookie)
	checkoutRec := httptest.NewRecorder()
	handler.ServeHTTP(checkoutRec, checkoutReq)
	if checkoutRec.Code != http.StatusCreated {
		t.Fatalf("checkout failed: %d %s", checkoutRec.Code, checkoutRec.Body.String())
	}

	var resp domain.CheckoutResponse
	if err := json.NewDecoder(checkoutRec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode checkout response: %v", err)
	}
	if resp.Order.Status != domain.OrderStatusPendiente {
		t.Fatalf("expected Pendiente order, got %s", resp.Order.Status)
	}
	if resp.Order.TotalCents != 23600 {
		t.Fatalf("expected total 23600, got %d", resp.Order.TotalCents)
	}

	pdfReq := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+resp.Order.ID+"/receipt.pdf", nil)
	pdfReq.Header.Set("Authorization", "Bearer "+token)
	pdfRec := httptest.NewRecorder()
	handler.ServeHTTP(pdfRec, pdfReq)
	if pdfRec.Code != http.StatusOK {
		t.Fatalf("receipt failed: %d %s", pdfRec.Code, pdfRec.Body.String())
	}
	if got := pdfRec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", got)
	}
	if !bytes.HasPrefix(pdfRec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("expected PDF payload, got %q", pdfRec.Body.Bytes()[:8])
	}
}

func TestAdminEndpointsEnforceRole(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/products", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	customerToken := loginAs(t, api, "cliente", "cliente123")
	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/products", nil)
	req.Header.Set("Authorization", "Bearer "+customerToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", rec.Code)
	}

	adminToken := loginAs(t, api, "admin", "admin123")
	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/products", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["products"] == nil {
		t.Fatalf("expected products key in response, got %v", body)
	}
}

func TestAdminSalesReportCSV(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	adminToken := loginAs(t, api, "admin", "admin123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/reports/sales?format=csv", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/csv; charset=utf-8" {
		t.Fatalf("expected csv content type, got %q", got)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("Numero,Fecha,Total,Estado")) {
		t.Fatalf("unexpected csv header: %q", rec.Body.String())
	}
}

func TestAdminRUCLookupDemoFallback(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	adminToken := loginAs(t, api, "admin", "admin123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/suppliers/ruc-lookup?ruc=20512345678", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]sunat.RUCInfo
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["company"].Name == "" {
		t.Fatalf("expected demo company data, got %+v", body)
	}
}
