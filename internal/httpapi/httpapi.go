package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"shelfplan/internal/domain"
	"shelfplan/internal/service"
	"shelfplan/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
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

	mux.HandleFunc("/api/v1/stores", a.requireAuth(a.handleStores, domain.RolePlanner, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/stores/reorder", a.requireAuth(a.handleStoresReorder, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/stores/", a.requireAuth(a.handleStoreActions, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/skus", a.requireAuth(a.handleSKUs, domain.RolePlanner, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/skus/reorder", a.requireAuth(a.handleSKUsReorder, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/skus/", a.requireAuth(a.handleSKUActions, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/weeks", a.requireAuth(a.handleWeeks, domain.RolePlanner, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/weeks/reorder", a.requireAuth(a.handleWeeksReorder, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/weeks/", a.requireAuth(a.handleWeekActions, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/calendar", a.requireAuth(a.handleCalendar, domain.RolePlanner, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/planning/grid", a.requireAuth(a.handlePlanningGrid, domain.RolePlanner, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/planning/sales", a.requireAuth(a.handleSalesUpdate, domain.RolePlanner, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/charts/gm-series", a.requireAuth(a.handleGMSeries, domain.RolePlanner, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/users/planners", a.requireAuth(a.handlePlanners, domain.RoleAdmin))

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

func (a *API) handleStores(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		stores, err := a.service.ListStores(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"stores": stores})
	case http.MethodPost:
		var entity domain.Store
		if err := decodeJSON(r, &entity); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		created, err := a.service.CreateStore(r.Context(), entity)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"store": created})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleStoresReorder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ReorderStoresRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	reordered, err := a.service.ReorderStores(r.Context(), req.Stores)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stores": reordered})
}

func (a *API) handleStoreActions(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/api/v1/stores/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("store id required"))
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var entity domain.Store
		if err := decodeJSON(r, &entity); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		entity.ID = id

		updated, err := a.service.UpdateStore(r.Context(), entity)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"store": updated})
	case http.MethodDelete:
		if err := a.service.DeleteStore(r.Context(), id); err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSKUs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		skus, err := a.service.ListSKUs(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"skus": skus})
	case http.MethodPost:
		var sku domain.SKU
		if err := decodeJSON(r, &sku); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		created, err := a.service.CreateSKU(r.Context(), sku)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"sku": created})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSKUsReorder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ReorderSKUsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	reordered, err := a.service.ReorderSKUs(r.Context(), req.SKUs)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"skus": reordered})
}

func (a *API) handleSKUActions(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/api/v1/skus/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("sku id required"))
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var sku domain.SKU
		if err := decodeJSON(r, &sku); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sku.ID = id

		updated, err := a.service.UpdateSKU(r.Context(), sku)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sku": updated})
	case http.MethodDelete:
		if err := a.service.DeleteSKU(r.Context(), id); err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleWeeks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		weeks, err := a.service.ListWeeks(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"weeks": weeks})
	case http.MethodPost:
		var week domain.Week
		if err := decodeJSON(r, &week); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		created, err := a.service.CreateWeek(r.Context(), week)
		if err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"week": created})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleWeeksReorder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ReorderWeeksRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	reordered, err := a.service.ReorderWeeks(r.Context(), req.Weeks)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"weeks": reordered})
}

func (a *API) handleWeekActions(w http.ResponseWriter, r *http.Request) {
	weekID := pathTail(r.URL.Path, "/api/v1/weeks/")
	if weekID == "" {
		writeError(w, http.StatusBadRequest, errors.New("week id required"))
		return
	}

	if r.Method != http.MethodPatch {
		writeMethodNotAllowed(w)
		return
	}

	var week domain.Week
	if err := decodeJSON(r, &week); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	week.Week = weekID

	updated, err := a.service.UpdateWeek(r.Context(), week)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"week": updated})
}

func (a *API) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	months, err := a.service.Calendar(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"months": months})
}

func (a *API) handlePlanningGrid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	storeFilter := r.URL.Query().Get("storeId")
	grid, err := a.service.PlanningGrid(r.Context(), storeFilter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, grid)
}

func (a *API) handleSalesUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.SalesUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	fact, err := a.service.RecordSale(r.Context(), req)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fact": fact})
}

func (a *API) handleGMSeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	storeID := r.URL.Query().Get("storeId")
	series, err := a.service.StoreSeries(r.Context(), storeID)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	from := parseTimeParam(r.URL.Query().Get("from"))
	to := parseTimeParam(r.URL.Query().Get("to"))
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.AuditLogs(r.Context(), from, to, limit)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) handlePlanners(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		planners := a.auth.ListPlanners()
		writeJSON(w, http.StatusOK, map[string]any{"planners": planners})
	case http.MethodPost:
		var req domain.PlannerCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		planner, err := a.auth.CreatePlanner(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{"planner": planner})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

// statusForError maps store sentinel and role errors onto HTTP statuses.
// Anything unclassified is treated as a validation failure.
func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest
	case strings.Contains(strings.ToLower(err.Error()), "role required"):
		return http.StatusForbidden
	default:
		return http.StatusUnprocessableEntity
	}
}

func pathTail(path string, prefix string) string {
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.Trim(strings.TrimPrefix(path, prefix), "/"))
}

func parseTimeParam(raw string) time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return ts
	}
	if ts, err := time.Parse("2006-01-02", trimmed); err == nil {
		return ts
	}
	return time.Time{}
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
