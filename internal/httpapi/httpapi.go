package httpapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"kedeaceh/pos/internal/domain"
	"kedeaceh/pos/internal/report"
	"kedeaceh/pos/internal/service"
	"kedeaceh/pos/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loc           *time.Location
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, loc *time.Location) *API {
	if loc == nil {
		loc = time.Local
	}
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		// Fall back to a deterministic secret if crypto/rand fails (should not happen in practice).
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loc:           loc,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (expressed as Unix time truncated to the hour). The token is hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

// generateCSRFToken returns a token valid for the current hour bucket.
func (a *API) generateCSRFToken() string {
	now := time.Now().UTC()
	bucket := now.Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken checks whether the provided token matches the current or
// previous hour bucket, giving a 2-hour validity window.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	now := time.Now().UTC()
	currentBucket := now.Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	expected1 := a.csrfTokenForHour(currentBucket)
	expected2 := a.csrfTokenForHour(prevBucket)

	return hmac.Equal([]byte(token), []byte(expected1)) ||
		hmac.Equal([]byte(token), []byte(expected2))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, domain.RoleKasir, domain.RoleOwner))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductActions, domain.RoleOwner))
	mux.HandleFunc("/api/v1/checkout", a.requireAuth(a.handleCheckout, domain.RoleKasir, domain.RoleOwner))
	mux.HandleFunc("/api/v1/transactions", a.requireAuth(a.handleTransactions, domain.RoleOwner))

	mux.HandleFunc("/api/v1/stock/adjust", a.requireAuth(a.handleStockAdjust, domain.RoleOwner))
	mux.HandleFunc("/api/v1/stock/history", a.requireAuth(a.handleStockHistory, domain.RoleOwner))

	mux.HandleFunc("/api/v1/closings", a.requireAuth(a.handleClosings, domain.RoleOwner))
	mux.HandleFunc("/api/v1/dashboard", a.requireAuth(a.handleDashboard, domain.RoleOwner))
	mux.HandleFunc("/api/v1/users", a.requireAuth(a.handleUsers, domain.RoleOwner))

	mux.HandleFunc("/api/v1/reports/summary", a.requireAuth(a.handleSummaryReport, domain.RoleOwner))
	mux.HandleFunc("/api/v1/reports/cashiers", a.requireAuth(a.handleCashierReport, domain.RoleOwner))
	mux.HandleFunc("/api/v1/reports/categories", a.requireAuth(a.handleCategoryReport, domain.RoleOwner))
	mux.HandleFunc("/api/v1/reports/products/top", a.requireAuth(a.handleTopProducts, domain.RoleOwner))
	mux.HandleFunc("/api/v1/reports/peak-hours", a.requireAuth(a.handlePeakHours, domain.RoleOwner))
	mux.HandleFunc("/api/v1/reports/trend", a.requireAuth(a.handleTrendReport, domain.RoleOwner))
	mux.HandleFunc("/api/v1/reports/profit", a.requireAuth(a.handleProfitReport, domain.RoleOwner))
	mux.HandleFunc("/api/v1/reports/suppliers", a.requireAuth(a.handleSupplierReport, domain.RoleOwner))
	mux.HandleFunc("/api/v1/reports/inventory", a.requireAuth(a.handleInventoryReport, domain.RoleOwner))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless CSRF token valid for the current hour bucket.
// Clients must include this token in the X-CSRF-Token header for all mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// csrfExemptPaths lists paths that are exempt from CSRF validation. Login
// is excluded because it is called without a prior CSRF token fetch.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF enforces CSRF token validation for state-changing methods (POST/PUT/PATCH).
// Returns false and writes an error response if validation fails.
func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch && method != http.MethodDelete {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		products, err := a.service.ListProducts(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/products/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeError(w, http.StatusBadRequest, errors.New("invalid product action path"))
		return
	}

	code := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if code == "" {
		writeError(w, http.StatusBadRequest, errors.New("product code required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), code)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodPatch:
		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := a.service.UpdateProduct(r.Context(), code, req)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": updated})
	case http.MethodDelete:
		if err := a.service.DeleteProduct(r.Context(), code); err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": code})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tx, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, domain.CheckoutResponse{Transaction: tx})
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	if raw := r.URL.Query().Get("recent"); raw != "" {
		limit := parsePositiveLimit(raw, 5, 100)
		txs, err := a.service.RecentTransactions(r.Context(), limit)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
		return
	}

	from, to, err := a.parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	txs, err := a.service.ListTransactions(r.Context(), from, to)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (a *API) handleStockAdjust(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.StockAdjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	product, err := a.service.AdjustStock(r.Context(), req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleStockHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	code := r.URL.Query().Get("code")
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
	history, err := a.service.ListStockHistory(r.Context(), code, limit)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (a *API) handleClosings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 31, 366)
		closings, err := a.service.ListDailyClosings(r.Context(), limit)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"closings": closings})
	case http.MethodPost:
		var req domain.DailyClosingRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		closing, err := a.service.CloseDay(r.Context(), req.Date)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"closing": closing})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	dashboard, err := a.service.Dashboard(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		users := a.auth.ListUsers()
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	case http.MethodPost:
		var req domain.UserCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		user, err := a.auth.CreateUser(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"user": user})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSummaryReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	from, to, err := a.parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	summary, err := a.service.SummaryReport(r.Context(), from, to)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"laporan-keuangan-%s-%s.csv\"", from.Format("2006-01-02"), to.Format("2006-01-02")))
		_, _ = w.Write([]byte(summaryToCSV(summary, from, to)))
	case "print":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(summaryToPrintableHTML(summary, from, to)))
	default:
		writeJSON(w, http.StatusOK, summary)
	}
}

func (a *API) handleCashierReport(w http.ResponseWriter, r *http.Request) {
	a.windowReport(w, r, func(from, to time.Time) (any, error) {
		return a.service.CashierReport(r.Context(), from, to)
	})
}

func (a *API) handleCategoryReport(w http.ResponseWriter, r *http.Request) {
	a.windowReport(w, r, func(from, to time.Time) (any, error) {
		return a.service.CategoryReport(r.Context(), from, to)
	})
}

func (a *API) handlePeakHours(w http.ResponseWriter, r *http.Request) {
	a.windowReport(w, r, func(from, to time.Time) (any, error) {
		return a.service.PeakHoursReport(r.Context(), from, to)
	})
}

func (a *API) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 5, 50)
	products, err := a.service.TopProductsReport(r.Context(), limit)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleTrendReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	year := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("year")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 2000 || parsed > 2100 {
			writeError(w, http.StatusBadRequest, errors.New("invalid year"))
			return
		}
		year = parsed
	}

	trend, err := a.service.TrendReport(r.Context(), year)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

func (a *API) handleProfitReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	from, to, err := a.parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	profit, err := a.service.ProfitReport(r.Context(), from, to)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}

	if strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("format")), "csv") {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"laba-rugi-%s-%s.csv\"", from.Format("2006-01-02"), to.Format("2006-01-02")))
		_, _ = w.Write([]byte(profitToCSV(profit)))
		return
	}
	writeJSON(w, http.StatusOK, profit)
}

func (a *API) handleSupplierReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	suppliers, err := a.service.SupplierReport(r.Context())
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, suppliers)
}

func (a *API) handleInventoryReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	inventory, err := a.service.InventoryReport(r.Context())
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, inventory)
}

func (a *API) windowReport(w http.ResponseWriter, r *http.Request, compute func(from, to time.Time) (any, error)) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	from, to, err := a.parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	result, err := compute(from, to)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// parseWindow reads start and end dates from the query string and expands
// them to local day boundaries. Both default to today.
func (a *API) parseWindow(r *http.Request) (time.Time, time.Time, error) {
	today := time.Now().In(a.loc).Format("2006-01-02")
	startRaw := strings.TrimSpace(r.URL.Query().Get("start"))
	endRaw := strings.TrimSpace(r.URL.Query().Get("end"))
	if startRaw == "" {
		startRaw = today
	}
	if endRaw == "" {
		endRaw = startRaw
	}

	start, err := time.ParseInLocation("2006-01-02", startRaw, a.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q", startRaw)
	}
	end, err := time.ParseInLocation("2006-01-02", endRaw, a.loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q", endRaw)
	}
	return start, end.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidTransaction):
		return http.StatusBadRequest
	case errors.Is(err, report.ErrInvalidWindow):
		return http.StatusBadRequest
	case strings.Contains(strings.ToLower(err.Error()), "owner role required"):
		return http.StatusForbidden
	default:
		return http.StatusUnprocessableEntity
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Enforce CSRF protection for all state-changing requests.
		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func summaryToCSV(summary report.Summary, from, to time.Time) string {
	lines := []string{
		"key,value",
		fmt.Sprintf("start,%s", from.Format("2006-01-02")),
		fmt.Sprintf("end,%s", to.Format("2006-01-02")),
		fmt.Sprintf("total_sales,%.2f", summary.TotalSales),
		fmt.Sprintf("total_transactions,%d", summary.TotalTransactions),
		fmt.Sprintf("cash_total,%.2f", summary.CashTotal),
		fmt.Sprintf("transfer_total,%.2f", summary.TransferTotal),
		fmt.Sprintf("estimated_profit,%.2f", summary.EstimatedProfit),
		fmt.Sprintf("average_transaction,%.2f", summary.AverageTransaction),
	}
	return strings.Join(lines, "\n") + "\n"
}

func profitToCSV(profit report.ProfitReport) string {
	lines := []string{
		"section,key,value",
		fmt.Sprintf("summary,total_sales,%.2f", profit.TotalSales),
		fmt.Sprintf("summary,estimated_cost,%.2f", profit.EstimatedCost),
		fmt.Sprintf("summary,gross_profit,%.2f", profit.GrossProfit),
		fmt.Sprintf("summary,operational_cost,%.2f", profit.OperationalCost),
		fmt.Sprintf("summary,net_profit,%.2f", profit.NetProfit),
		fmt.Sprintf("summary,margin,%.2f", profit.Margin),
	}
	for _, c := range profit.ByCategory {
		lines = append(lines, fmt.Sprintf("category,%s_revenue,%.2f", c.Category, c.Revenue))
		lines = append(lines, fmt.Sprintf("category,%s_profit,%.2f", c.Category, c.Profit))
	}
	for _, d := range profit.ByDay {
		lines = append(lines, fmt.Sprintf("day,%s_revenue,%.2f", d.Date, d.Revenue))
		lines = append(lines, fmt.Sprintf("day,%s_profit,%.2f", d.Date, d.Profit))
	}
	return strings.Join(lines, "\n") + "\n"
}

// summaryHTMLTmpl renders the printable period summary. All user-controlled
// fields are auto-escaped by html/template to prevent XSS.
var summaryHTMLTmpl = template.Must(template.New("summary-report").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Laporan Keuangan {{.Start}} s/d {{.End}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    h2 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Laporan Keuangan KEDE ACEH</h2>
  <p>Periode: {{.Start}} s/d {{.End}}</p>
  <table>
    <tbody>
      <tr><td>Total Penjualan</td><td style="text-align:right;">{{printf "%.0f" .Summary.TotalSales}}</td></tr>
      <tr><td>Total Transaksi</td><td style="text-align:right;">{{.Summary.TotalTransactions}}</td></tr>
      <tr><td>Tunai</td><td style="text-align:right;">{{printf "%.0f" .Summary.CashTotal}}</td></tr>
      <tr><td>Transfer</td><td style="text-align:right;">{{printf "%.0f" .Summary.TransferTotal}}</td></tr>
      <tr><td>Estimasi Profit</td><td style="text-align:right;">{{printf "%.0f" .Summary.EstimatedProfit}}</td></tr>
      <tr><td>Rata-rata Transaksi</td><td style="text-align:right;">{{printf "%.0f" .Summary.AverageTransaction}}</td></tr>
    </tbody>
  </table>
</body>
</html>
`))

func summaryToPrintableHTML(summary report.Summary, from, to time.Time) string {
	var buf bytes.Buffer
	data := struct {
		Start   string
		End     string
		Summary report.Summary
	}{from.Format("2006-01-02"), to.Format("2006-01-02"), summary}
	if err := summaryHTMLTmpl.Execute(&buf, data); err != nil {
		// Fallback: return a plain-text error page rather than leaking internal details.
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// For 5xx responses, return a generic message to avoid leaking internal
	// implementation details (stack traces, SQL errors, file paths, etc.).
	// 4xx responses are user-facing so we return the original error message.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
