// Package httpapi serves the property-management REST API over a dataset
// repository, plus a websocket stream of change events.
package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/propmanage/propsync/internal/dataset"
	"github.com/propmanage/propsync/internal/logging"
	"github.com/propmanage/propsync/internal/metrics"
	"github.com/propmanage/propsync/internal/model"
)

type ServerConfig struct {
	JWTSecret       string
	TokenTTL        time.Duration
	RefreshTTL      time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration
	MaxBodyBytes    int64
}

type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Gatherer backs GET /metrics; nil leaves the route unmounted.
	Gatherer prometheus.Gatherer
	Now      func() time.Time
}

type Server struct {
	repo           *dataset.Repository
	cfg            ServerConfig
	tokens         *tokenIssuer
	rateLimiter    *rateLimiter
	hub            *Hub
	metrics        *metrics.Metrics
	metricsHandler http.Handler
	logger         *zap.Logger
	now            func() time.Time
}

type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]rateEntry
}

type rateEntry struct {
	count   int
	resetAt time.Time
}

func NewServer(repo *dataset.Repository, cfg ServerConfig, opts Options) *Server {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.RateLimitMax < 0 {
		cfg.RateLimitMax = 0
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var limiter *rateLimiter
	if cfg.RateLimitMax > 0 {
		limiter = &rateLimiter{
			window:  cfg.RateLimitWindow,
			max:     cfg.RateLimitMax,
			entries: map[string]rateEntry{},
		}
	}
	logger := logging.OrNop(opts.Logger).Named("httpapi")
	s := &Server{
		repo: repo,
		cfg:  cfg,
		tokens: &tokenIssuer{
			secret:     []byte(cfg.JWTSecret),
			accessTTL:  cfg.TokenTTL,
			refreshTTL: cfg.RefreshTTL,
			now:        now,
		},
		rateLimiter: limiter,
		hub:         NewHub(logger.Named("events")),
		metrics:     opts.Metrics,
		logger:      logger,
		now:         now,
	}
	if opts.Gatherer != nil {
		s.metricsHandler = promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})
	}
	return s
}

// Hub exposes the change-event fan-out so the process can close it on shutdown.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	w.Header().Set("X-Correlation-Id", correlationID)

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	route := s.dispatch(rec, r)
	s.metrics.ServerRequest(route, rec.status)
	s.logger.Debug("request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("route", route),
		zap.Int("status", rec.status),
		zap.String("correlation_id", correlationID),
	)
}

var publicRoutes = map[string]bool{
	"auth_login":    true,
	"auth_register": true,
	"auth_refresh":  true,
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) string {
	switch r.URL.Path {
	case "/health":
		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return "health"
		}
	case "/metrics":
		if r.Method == http.MethodGet && s.metricsHandler != nil {
			s.metricsHandler.ServeHTTP(w, r)
			return "metrics"
		}
	case "/":
		if r.Method == http.MethodGet {
			s.handleDashboard(w, r)
			return "dashboard_page"
		}
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "route not found")
		return "not_found"
	}
	parts = parts[1:]
	route := matchRoute(r.Method, parts)
	if route == "" {
		writeError(w, http.StatusNotFound, "route not found")
		return "not_found"
	}

	var claims *tokenClaims
	if !publicRoutes[route] {
		var authErr *authError
		claims, authErr = s.tokens.authorizeBearer(r)
		if authErr != nil {
			writeError(w, authErr.status, authErr.message)
			return route
		}
	}
	if s.rateLimiter != nil {
		if !s.rateLimiter.allow(rateKey(r, claims), s.now().UTC()) {
			retryAfter := int(math.Ceil(s.rateLimiter.window.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return route
		}
	}

	switch route {
	case "auth_login":
		s.handleLogin(w, r)
	case "auth_register":
		s.handleRegister(w, r)
	case "auth_refresh":
		s.handleRefresh(w, r)
	case "properties_list":
		s.handleListProperties(w, r)
	case "properties_create":
		s.handleCreateProperty(w, r, claims)
	case "property_get":
		s.handleGetProperty(w, r, parts[1])
	case "property_update":
		s.handleUpdateProperty(w, r, claims, parts[1])
	case "property_delete":
		s.handleDeleteProperty(w, r, claims, parts[1])
	case "property_units":
		s.handleListUnits(w, r, parts[1])
	case "tenants_list":
		s.handleListTenants(w, r)
	case "tenants_create":
		s.handleCreateTenant(w, r, claims)
	case "tenant_get":
		s.handleGetTenant(w, r, parts[1])
	case "payments_list":
		s.handleListPayments(w, r)
	case "payments_create":
		s.handleCreatePayment(w, r)
	case "payments_intent":
		s.handleCreatePaymentIntent(w, r)
	case "tickets_list":
		s.handleListTickets(w, r)
	case "tickets_create":
		s.handleCreateTicket(w, r, claims)
	case "ticket_get":
		s.handleGetTicket(w, r, parts[1])
	case "ticket_update":
		s.handleUpdateTicket(w, r, claims, parts[1])
	case "ticket_assign":
		s.handleAssignTicket(w, r, claims, parts[1])
	case "notifications_list":
		s.handleListNotifications(w, r, claims)
	case "notification_read":
		s.handleMarkNotificationRead(w, r, claims, parts[1])
	case "notifications_read_all":
		s.handleMarkAllNotificationsRead(w, r, claims)
	case "dashboard_stats":
		writeData(w, http.StatusOK, s.repo.DashboardStats())
	case "events":
		s.hub.serve(w, r, claims.Subject)
	}
	return route
}

// matchRoute names the API route for method and the path segments after
// /api, or returns "" when none matches.
func matchRoute(method string, parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	for _, part := range parts {
		if part == "" {
			return ""
		}
	}
	n := len(parts)
	switch parts[0] {
	case "auth":
		if n == 2 && method == http.MethodPost {
			switch parts[1] {
			case "login":
				return "auth_login"
			case "register":
				return "auth_register"
			case "refresh":
				return "auth_refresh"
			}
		}
	case "properties":
		switch {
		case n == 1 && method == http.MethodGet:
			return "properties_list"
		case n == 1 && method == http.MethodPost:
			return "properties_create"
		case n == 2 && method == http.MethodGet:
			return "property_get"
		case n == 2 && method == http.MethodPut:
			return "property_update"
		case n == 2 && method == http.MethodDelete:
			return "property_delete"
		case n == 3 && parts[2] == "units" && method == http.MethodGet:
			return "property_units"
		}
	case "tenants":
		switch {
		case n == 1 && method == http.MethodGet:
			return "tenants_list"
		case n == 1 && method == http.MethodPost:
			return "tenants_create"
		case n == 2 && method == http.MethodGet:
			return "tenant_get"
		}
	case "payments":
		switch {
		case n == 1 && method == http.MethodGet:
			return "payments_list"
		case n == 1 && method == http.MethodPost:
			return "payments_create"
		case n == 2 && parts[1] == "create-intent" && method == http.MethodPost:
			return "payments_intent"
		}
	case "maintenance":
		switch {
		case n == 1 && method == http.MethodGet:
			return "tickets_list"
		case n == 1 && method == http.MethodPost:
			return "tickets_create"
		case n == 2 && method == http.MethodGet:
			return "ticket_get"
		case n == 2 && method == http.MethodPut:
			return "ticket_update"
		case n == 3 && parts[2] == "assign" && method == http.MethodPost:
			return "ticket_assign"
		}
	case "notifications":
		switch {
		case n == 1 && method == http.MethodGet:
			return "notifications_list"
		case n == 2 && parts[1] == "read-all" && method == http.MethodPut:
			return "notifications_read_all"
		case n == 3 && parts[2] == "read" && method == http.MethodPut:
			return "notification_read"
		}
	case "dashboard":
		if n == 2 && parts[1] == "stats" && method == http.MethodGet {
			return "dashboard_stats"
		}
	case "events":
		if n == 1 && method == http.MethodGet {
			return "events"
		}
	}
	return ""
}

func rateKey(r *http.Request, claims *tokenClaims) string {
	if claims != nil {
		return "user|" + claims.Subject
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr|" + host
}

func (s *Server) publish(action model.ChangeAction, id string, resources ...string) {
	at := s.now().UTC()
	for _, resource := range resources {
		s.hub.Publish(model.ChangeEvent{Resource: resource, Action: action, ID: id, At: at}, "")
	}
}

func getCorrelationID(r *http.Request) string {
	return r.Header.Get("X-Correlation-Id")
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body exceeds configured limit")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	return body, true
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, ok := s.readRequestBody(w, r)
	if !ok {
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

type dataEnvelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type pageEnvelope struct {
	Success    bool `json:"success"`
	Data       any  `json:"data"`
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalPages int  `json:"totalPages"`
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataEnvelope{Success: true, Data: data})
}

func writePage[T any](w http.ResponseWriter, page model.Page[T]) {
	items := page.Items
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, pageEnvelope{
		Success:    true,
		Data:       items,
		Total:      page.Total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: page.TotalPages,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Success: false, Error: message})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, dataset.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, dataset.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, dataset.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dataset.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, dataset.ErrNotImplemented):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure maps a repository error onto the error envelope. Internal
// failures are logged and reported without detail.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("correlation_id", w.Header().Get("X-Correlation-Id")),
			zap.Error(err),
		)
		message = "internal server error"
	}
	writeError(w, status, message)
}

func (r *rateLimiter) allow(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || now.After(entry.resetAt) {
		r.entries[key] = rateEntry{
			count:   1,
			resetAt: now.Add(r.window),
		}
		return true
	}
	if entry.count >= r.max {
		return false
	}
	entry.count++
	r.entries[key] = entry
	return true
}

func parseBoundedInt(raw string, fallback, min, max int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	if parsed < min {
		return fallback
	}
	if parsed > max {
		return max
	}
	return parsed
}

func parseBool(raw string, fallback bool) bool {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return parsed
}

// statusRecorder keeps the response status for metrics. It passes Hijack
// through so websocket upgrades still work behind it.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	r.wroteHeader = true
	return hj.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
