package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ericfisherdev/algopilot/internal/application"
	"github.com/ericfisherdev/algopilot/internal/domain/model"
	"github.com/ericfisherdev/algopilot/internal/domain/port/driven"
)

const timeFormat = time.RFC3339

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body. The broker fields are
// set only for session errors.
type errorResponse struct {
	Error               string `json:"error"`
	Kind                string `json:"kind,omitempty"`
	Code                string `json:"code,omitempty"`
	SupportID           string `json:"support_id,omitempty"`
	RequiresOneTimeCode bool   `json:"requires_one_time_code,omitempty"`
}

// authErrorStatus maps a broker session error kind to an HTTP status.
func authErrorStatus(kind model.AuthErrorKind) int {
	switch kind {
	case model.KindUnauthenticated:
		return http.StatusUnauthorized
	case model.KindNeedsOneTimeCode, model.KindTokenExpired, model.KindAPIRejected:
		return http.StatusBadRequest
	case model.KindEdgeRejected, model.KindMalformedResponse:
		return http.StatusBadGateway
	case model.KindNetwork:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func authErrorMessage(ae *model.AuthError) string {
	switch ae.Kind {
	case model.KindEdgeRejected:
		return "broker gateway rejected the request; verify this server's public IP is allow-listed for the account"
	case model.KindNetwork:
		return "broker did not respond in time"
	case model.KindMalformedResponse:
		return "broker returned an unreadable response"
	}
	if ae.Message != "" {
		return ae.Message
	}
	return string(ae.Kind)
}

// writeAuthError renders a broker session error. Raw response detail stays
// in the logs; only the support id is relayed.
func writeAuthError(w http.ResponseWriter, ae *model.AuthError) {
	writeJSON(w, authErrorStatus(ae.Kind), errorResponse{
		Error:               authErrorMessage(ae),
		Kind:                string(ae.Kind),
		Code:                ae.Code,
		SupportID:           ae.SupportID,
		RequiresOneTimeCode: model.RequiresOneTimeCode(ae),
	})
}

// writeServiceError maps application and port errors to responses and logs
// everything that is not the caller's fault.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if ae, ok := model.AsAuthError(err); ok {
		h.logger.Warn("broker session error",
			"op", op,
			"kind", ae.Kind,
			"status", ae.StatusCode,
			"support_id", ae.SupportID,
			"detail", ae.Detail,
			"error", err,
			"request_id", requestID(r.Context()),
		)
		writeAuthError(w, ae)
		return
	}

	switch {
	case errors.Is(err, application.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, application.ErrInvalidLogin):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, driven.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, driven.ErrStrategyNotFound):
		writeError(w, http.StatusNotFound, "strategy not found")
	case errors.Is(err, model.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, application.ErrNoAccounts):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, driven.ErrAccountExists), errors.Is(err, driven.ErrUserExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, application.ErrCredentialsMissing):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, driven.ErrEncryptionKeyNotSet):
		writeError(w, http.StatusServiceUnavailable, "credential storage is disabled on this server")
	default:
		h.logger.Error("request failed", "op", op, "error", err, "request_id", requestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// HealthResponse is the JSON body of the health endpoint.
type HealthResponse struct {
	Status        string `json:"status"`
	Time          string `json:"time"`
	SessionActive bool   `json:"session_active"`
}

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserResponse is the JSON representation of an operator.
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// TokenResponse carries an operator bearer token.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// AccountRequest is the body of account create and update.
type AccountRequest struct {
	Name       string `json:"name"`
	ClientCode string `json:"client_code"`
	IsDefault  bool   `json:"is_default"`
	APIKey     string `json:"api_key,omitempty"`
	APISecret  string `json:"api_secret,omitempty"`
	PIN        string `json:"pin,omitempty"`
	BaseURL    string `json:"base_url,omitempty"`
}

func (req AccountRequest) secrets() *application.SecretInput {
	if req.APIKey == "" && req.APISecret == "" && req.PIN == "" {
		return nil
	}
	return &application.SecretInput{
		APIKey:    req.APIKey,
		APISecret: req.APISecret,
		PIN:       req.PIN,
		BaseURL:   req.BaseURL,
	}
}

// SecretRequest is the body of the credentials endpoint.
type SecretRequest struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	PIN       string `json:"pin"`
	BaseURL   string `json:"base_url"`
}

// AccountResponse is the JSON representation of an account. Secrets are
// never returned.
type AccountResponse struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	ClientCode     string `json:"client_code"`
	IsDefault      bool   `json:"is_default"`
	Status         string `json:"status"`
	HasCredentials bool   `json:"has_credentials"`
	CreatedAt      string `json:"created_at"`
}

func toAccountResponse(v application.AccountView) AccountResponse {
	return AccountResponse{
		ID:             v.ID,
		Name:           v.Name,
		ClientCode:     v.ClientCode,
		IsDefault:      v.IsDefault,
		Status:         string(v.Status),
		HasCredentials: v.HasCredentials,
		CreatedAt:      v.CreatedAt.UTC().Format(timeFormat),
	}
}

// SwitchRequest is the body of the switch endpoint. TOTP may be empty when
// a stored refresh token can renew the session.
type SwitchRequest struct {
	TOTP string `json:"totp"`
}

// RestoreRequest is the body of the restore endpoint. Without a snapshot the
// stored one is used.
type RestoreRequest struct {
	AccountID int64                  `json:"account_id"`
	Snapshot  *model.SessionSnapshot `json:"snapshot,omitempty"`
}

// SessionResponse describes the live session.
type SessionResponse struct {
	Active      bool                   `json:"active"`
	AccountID   int64                  `json:"account_id,omitempty"`
	FeedToken   string                 `json:"feed_token,omitempty"`
	ExpiresAt   string                 `json:"expires_at,omitempty"`
	ActivatedAt string                 `json:"activated_at,omitempty"`
	Snapshot    *model.SessionSnapshot `json:"snapshot,omitempty"`
}

func toSessionResponse(act *application.Activation) SessionResponse {
	snap := act.Snapshot
	return SessionResponse{
		Active:      true,
		AccountID:   act.AccountID,
		FeedToken:   act.FeedToken,
		ExpiresAt:   act.TokenExpiry.UTC().Format(timeFormat),
		ActivatedAt: act.ActivatedAt.UTC().Format(timeFormat),
		Snapshot:    &snap,
	}
}

// BrokerResponse wraps an unmodified broker payload.
type BrokerResponse struct {
	Data json.RawMessage `json:"data"`
}

// PlaceOrderRequest is a broker order plus the strategy it is attributed to.
type PlaceOrderRequest struct {
	model.OrderRequest
	StrategyID *int64 `json:"strategy_id,omitempty"`
}

// PlacedOrderResponse carries the broker payload and the ledger entry.
type PlacedOrderResponse struct {
	Data  json.RawMessage     `json:"data"`
	Order OrderRecordResponse `json:"order"`
}

// OrderRecordResponse is the JSON representation of a ledger entry.
type OrderRecordResponse struct {
	ID            int64           `json:"id"`
	AccountID     int64           `json:"account_id"`
	StrategyID    *int64          `json:"strategy_id,omitempty"`
	BrokerOrderID string          `json:"broker_order_id,omitempty"`
	Symbol        string          `json:"symbol"`
	Quantity      int             `json:"quantity"`
	Price         float64         `json:"price"`
	Status        string          `json:"status"`
	Response      json.RawMessage `json:"response,omitempty"`
	CreatedAt     string          `json:"created_at"`
}

func toOrderRecordResponse(o model.OrderRecord) OrderRecordResponse {
	return OrderRecordResponse{
		ID:            o.ID,
		AccountID:     o.AccountID,
		StrategyID:    o.StrategyID,
		BrokerOrderID: o.BrokerOrderID,
		Symbol:        o.Symbol,
		Quantity:      o.Quantity,
		Price:         o.Price,
		Status:        o.Status,
		Response:      o.Response,
		CreatedAt:     o.CreatedAt.UTC().Format(timeFormat),
	}
}

// SettingsRequest is a partial settings update; omitted fields are kept.
type SettingsRequest struct {
	PaperMode      *bool `json:"paper_mode"`
	DefaultLotSize *int  `json:"default_lot_size"`
}

// SettingsResponse is the JSON representation of operator settings.
type SettingsResponse struct {
	PaperMode      bool   `json:"paper_mode"`
	DefaultLotSize int    `json:"default_lot_size"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

func toSettingsResponse(s model.Settings) SettingsResponse {
	resp := SettingsResponse{PaperMode: s.PaperMode, DefaultLotSize: s.DefaultLotSize}
	if !s.UpdatedAt.IsZero() {
		resp.UpdatedAt = s.UpdatedAt.UTC().Format(timeFormat)
	}
	return resp
}

// StrategyRequest is the body of strategy create and update.
type StrategyRequest struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Params  json.RawMessage `json:"params,omitempty"`
	Enabled *bool           `json:"enabled,omitempty"`
}

// StrategyResponse is the JSON representation of a strategy.
type StrategyResponse struct {
	ID        int64           `json:"id"`
	AccountID int64           `json:"account_id"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Params    json.RawMessage `json:"params,omitempty"`
	Enabled   bool            `json:"enabled"`
	Status    string          `json:"status"`
	CreatedAt string          `json:"created_at"`
}

func toStrategyResponse(s model.Strategy) StrategyResponse {
	return StrategyResponse{
		ID:        s.ID,
		AccountID: s.AccountID,
		Name:      s.Name,
		Type:      s.Type,
		Params:    s.Params,
		Enabled:   s.Enabled,
		Status:    string(s.Status),
		CreatedAt: s.CreatedAt.UTC().Format(timeFormat),
	}
}

// RunResponse is one run of a strategy.
type RunResponse struct {
	ID        int64  `json:"id"`
	Status    string `json:"status"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
}

// BulkResponse reports how many strategies a bulk action changed.
type BulkResponse struct {
	Changed int `json:"changed"`
}
