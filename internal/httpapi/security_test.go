package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kedeaceh/pos/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestPreflightReturns204(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/checkout", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "DELETE") {
		t.Fatalf("expected DELETE in allowed methods, got %q", got)
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Email: "owner@kedeaceh.id", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		api.Handler().ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"email":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", res.Code)
	}
}

func TestMutatingRequestsRequireCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	kasir := loginAsKasir(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/checkout", kasir, "", domain.CheckoutRequest{
		Items: []domain.CartItem{{Code: "MAK001", Quantity: 1}},
		Cash:  5000,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/checkout", kasir, "bogus-token", domain.CheckoutRequest{
		Items: []domain.CartItem{{Code: "MAK001", Quantity: 1}},
		Cash:  5000,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with bogus CSRF token, got %d", rec.Code)
	}

	csrf := fetchCSRFToken(t, api)
	rec = doJSON(t, api, http.MethodPost, "/api/v1/checkout", kasir, csrf, domain.CheckoutRequest{
		Items: []domain.CartItem{{Code: "MAK001", Quantity: 1}},
		Cash:  5000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 with valid CSRF token, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteRequiresCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	owner := loginAsOwner(t, api)

	rec := doJSON(t, api, http.MethodDelete, "/api/v1/products/LAIN001", owner, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 deleting without CSRF token, got %d", rec.Code)
	}
}

func TestLoginIsCSRFExempt(t *testing.T) {
	api := newTestAPI(t)

	// loginAs sends no CSRF token, so passing means the exemption holds.
	if token := loginAsOwner(t, api); token == "" {
		t.Fatalf("expected login without CSRF token to succeed")
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	api := newTestAPI(t)
	kasir := loginAsKasir(t, api)
	csrf := fetchCSRFToken(t, api)

	body := `{"items":[{"code":"MAK001","quantity":1}],"cash":5000,"discount":99}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+kasir)
	req.Header.Set("X-CSRF-Token", csrf)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", res.Code)
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	cases := []struct {
		raw      string
		fallback int
		max      int
		want     int
	}{
		{"", 5, 100, 5},
		{"10", 5, 100, 10},
		{"0", 5, 100, 5},
		{"-3", 5, 100, 5},
		{"junk", 5, 100, 5},
		{"5000", 5, 100, 100},
	}
	for _, tc := range cases {
		if got := parsePositiveLimit(tc.raw, tc.fallback, tc.max); got != tc.want {
			t.Errorf("parsePositiveLimit(%q, %d, %d) = %d, want %d", tc.raw, tc.fallback, tc.max, got, tc.want)
		}
	}
}

func TestCSRFTokenValidationWindow(t *testing.T) {
	api := newTestAPI(t)

	token := api.generateCSRFToken()
	if !api.validateCSRFToken(token) {
		t.Fatalf("freshly generated token must validate")
	}
	if api.validateCSRFToken("") {
		t.Fatalf("empty token must not validate")
	}
	if api.validateCSRFToken("deadbeef") {
		t.Fatalf("forged token must not validate")
	}
}
