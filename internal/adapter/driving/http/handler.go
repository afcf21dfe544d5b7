package httphandler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/algopilot/internal/application"
)

const maxBodyBytes = 1 << 20

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	auth       *application.AuthService
	accounts   *application.AccountService
	sessions   *application.SessionService
	settings   *application.SettingsService
	strategies *application.StrategyService
	orders     *application.OrderService
	logger     *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	auth *application.AuthService,
	accounts *application.AccountService,
	sessions *application.SessionService,
	settings *application.SettingsService,
	strategies *application.StrategyService,
	orders *application.OrderService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		auth:       auth,
		accounts:   accounts,
		sessions:   sessions,
		settings:   settings,
		strategies: strategies,
		orders:     orders,
		logger:     logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request id, logging and recovery middleware. gatherer may be nil, in
// which case /metrics is not served.
func NewServeMux(h *Handler, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("POST /api/v1/auth/register", h.Register)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)

	mux.HandleFunc("GET /api/v1/accounts", h.requireAuth(h.ListAccounts))
	mux.HandleFunc("POST /api/v1/accounts", h.requireAuth(h.CreateAccount))
	mux.HandleFunc("PUT /api/v1/accounts/{id}", h.requireAuth(h.UpdateAccount))
	mux.HandleFunc("DELETE /api/v1/accounts/{id}", h.requireAuth(h.DeleteAccount))
	mux.HandleFunc("PUT /api/v1/accounts/{id}/credentials", h.requireAuth(h.SetCredentials))
	mux.HandleFunc("POST /api/v1/accounts/{id}/default", h.requireAuth(h.SetDefaultAccount))
	mux.HandleFunc("POST /api/v1/accounts/{id}/switch", h.requireAuth(h.SwitchAccount))
	mux.HandleFunc("GET /api/v1/accounts/{id}/orders", h.requireAuth(h.OrderLedger))

	mux.HandleFunc("GET /api/v1/settings", h.requireAuth(h.GetSettings))
	mux.HandleFunc("PUT /api/v1/settings", h.requireAuth(h.UpdateSettings))

	mux.HandleFunc("GET /api/v1/accounts/{id}/strategies", h.requireAuth(h.ListStrategies))
	mux.HandleFunc("POST /api/v1/accounts/{id}/strategies", h.requireAuth(h.CreateStrategy))
	mux.HandleFunc("POST /api/v1/accounts/{id}/strategies/start-all", h.requireAuth(h.StartAllStrategies))
	mux.HandleFunc("POST /api/v1/accounts/{id}/strategies/stop-all", h.requireAuth(h.StopAllStrategies))
	mux.HandleFunc("GET /api/v1/strategies/{id}", h.requireAuth(h.GetStrategy))
	mux.HandleFunc("PUT /api/v1/strategies/{id}", h.requireAuth(h.UpdateStrategy))
	mux.HandleFunc("DELETE /api/v1/strategies/{id}", h.requireAuth(h.DeleteStrategy))
	mux.HandleFunc("GET /api/v1/strategies/{id}/runs", h.requireAuth(h.StrategyRuns))
	mux.HandleFunc("POST /api/v1/strategies/{id}/start", h.requireAuth(h.StartStrategy))
	mux.HandleFunc("POST /api/v1/strategies/{id}/pause", h.requireAuth(h.PauseStrategy))
	mux.HandleFunc("POST /api/v1/strategies/{id}/stop", h.requireAuth(h.StopStrategy))

	mux.HandleFunc("GET /api/v1/session", h.requireAuth(h.SessionStatus))
	mux.HandleFunc("POST /api/v1/session/restore", h.requireAuth(h.RestoreSession))
	mux.HandleFunc("DELETE /api/v1/session", h.requireAuth(h.EndSession))

	mux.HandleFunc("GET /api/v1/profile", h.requireAuth(h.Profile))
	mux.HandleFunc("GET /api/v1/funds", h.requireAuth(h.Funds))
	mux.HandleFunc("GET /api/v1/positions", h.requireAuth(h.Positions))
	mux.HandleFunc("GET /api/v1/holdings", h.requireAuth(h.Holdings))
	mux.HandleFunc("GET /api/v1/orders", h.requireAuth(h.OrderBook))
	mux.HandleFunc("POST /api/v1/orders", h.requireAuth(h.PlaceOrder))
	mux.HandleFunc("PUT /api/v1/orders/{orderID}", h.requireAuth(h.ModifyOrder))
	mux.HandleFunc("DELETE /api/v1/orders/{orderID}", h.requireAuth(h.CancelOrder))
	mux.HandleFunc("GET /api/v1/trades", h.requireAuth(h.TradeBook))
	mux.HandleFunc("POST /api/v1/market/quote", h.requireAuth(h.Quote))
	mux.HandleFunc("POST /api/v1/market/candles", h.requireAuth(h.Candles))
	mux.HandleFunc("GET /api/v1/market/gainers-losers", h.requireAuth(h.GainersLosers))

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// Health returns a simple health check response. It reports whether a
// broker session is live but never which account owns it.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Time:          time.Now().UTC().Format(time.RFC3339),
		SessionActive: h.sessions != nil && h.sessions.Live(),
	})
}

// Register creates an operator account.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := h.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, r, "register", err)
		return
	}

	writeJSON(w, http.StatusCreated, UserResponse{ID: user.ID, Username: user.Username})
}

// Login exchanges operator credentials for a bearer token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	token, expires, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, r, "login", err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expires.UTC().Format(time.RFC3339),
	})
}

// decodeBody reads a bounded JSON body into v. It writes a 400 and returns
// false on failure. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// pathID parses a positive integer path parameter.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}
