package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"befit/backend/internal/domain"
	"befit/backend/internal/service"
	"befit/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path. The
// seeded store carries the admin/admin123 account.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, zap.NewNop(), time.Second)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*", zap.NewNop())
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func login(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected access token")
	}
	return resp.AccessToken
}

func csrfToken(t *testing.T, handler http.Handler, token string) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("csrf token fetch failed: %d %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode csrf response: %v", err)
	}
	if body["csrf_token"] == "" {
		t.Fatalf("expected csrf_token in response")
	}
	return body["csrf_token"]
}

func authedJSON(t *testing.T, handler http.Handler, method, path, token, csrf string, payload any) *httptest.ResponseRecorder {
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
	handler.ServeHTTP(rec, req)
	return rec
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

func TestHandleLoginSuccess(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api.Handler(), "admin", "admin123")
	if token == "" {
		t.Fatalf("expected token")
	}
}

func TestHandleLoginInvalidCredentials(t *testing.T) {
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

func TestHandleProductsRequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMutationsRequireCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "admin", "admin123")

	rec := authedJSON(t, handler, http.MethodPost, "/api/v1/register/open", token, "", map[string]any{
		"start_balance_cents": 1000,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	csrf := csrfToken(t, handler, token)
	rec = authedJSON(t, handler, http.MethodPost, "/api/v1/register/open", token, csrf, map[string]any{
		"start_balance_cents": 1000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with CSRF token, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestSaleFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "admin", "admin123")
	csrf := csrfToken(t, handler, token)

	rec := authedJSON(t, handler, http.MethodPost, "/api/v1/register/open", token, csrf, map[string]any{
		"start_balance_cents": 0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("open register: %d %s", rec.Code, rec.Body.String())
	}

	rec = authedJSON(t, handler, http.MethodPost, "/api/v1/products", token, csrf, map[string]any{
		"reference":   "TST-001",
		"name":        "Produto Teste",
		"price_cents": 2500,
		"stock":       10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Product domain.Product `json:"product"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode product: %v", err)
	}

	rec = authedJSON(t, handler, http.MethodPost, "/api/v1/sales", token, csrf, map[string]any{
		"items": []map[string]any{{
			"product_id":       created.Product.ID,
			"reference":        created.Product.Reference,
			"product_name":     created.Product.Name,
			"unit_price_cents": 2500,
			"quantity":         2,
		}},
		"payments": []map[string]any{{
			"method":       domain.PaymentCash,
			"amount_cents": 6000,
		}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record sale: %d %s", rec.Code, rec.Body.String())
	}
	var result domain.RecordSaleResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode sale result: %v", err)
	}
	if result.ChangeCents != 1000 {
		t.Fatalf("expected change 1000, got %d", result.ChangeCents)
	}
	if !result.CashMovementRecorded {
		t.Fatalf("expected a drawer movement")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/register", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	recSession := httptest.NewRecorder()
	handler.ServeHTTP(recSession, req)
	if recSession.Code != http.StatusOK {
		t.Fatalf("get register: %d %s", recSession.Code, recSession.Body.String())
	}
	var sessionBody struct {
		Session domain.CashSession `json:"session"`
	}
	if err := json.NewDecoder(recSession.Body).Decode(&sessionBody); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sessionBody.Session.BalanceCents != 5000 {
		t.Fatalf("expected drawer balance 5000, got %d", sessionBody.Session.BalanceCents)
	}
}

func TestCashierCannotManageCatalog(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "caixa", "caixa123")
	csrf := csrfToken(t, handler, token)

	rec := authedJSON(t, handler, http.MethodPost, "/api/v1/products", token, csrf, map[string]any{
		"reference":   "TST-002",
		"name":        "Produto Proibido",
		"price_cents": 100,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestUnknownSaleReturns404(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, handler, "admin", "admin123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sales/sale-missing", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
