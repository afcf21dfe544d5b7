package httphandler

import (
	"net/http"

	"github.com/ericfisherdev/algopilot/internal/application"
)

// ListAccounts returns the operator's accounts with their session status.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	views, err := h.accounts.List(r.Context(), operatorID(r))
	if err != nil {
		h.writeServiceError(w, r, "list accounts", err)
		return
	}

	resp := make([]AccountResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, toAccountResponse(v))
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateAccount registers a broker account, optionally with its secrets.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := h.accounts.Create(r.Context(), operatorID(r), application.AccountInput{
		Name:       req.Name,
		ClientCode: req.ClientCode,
		IsDefault:  req.IsDefault,
		Secrets:    req.secrets(),
	})
	if err != nil {
		h.writeServiceError(w, r, "create account", err)
		return
	}

	writeJSON(w, http.StatusCreated, toAccountResponse(view))
}

// UpdateAccount edits an account. Secrets in the body replace the stored ones.
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req AccountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	view, err := h.accounts.Update(r.Context(), operatorID(r), id, application.AccountInput{
		Name:       req.Name,
		ClientCode: req.ClientCode,
		IsDefault:  req.IsDefault,
		Secrets:    req.secrets(),
	})
	if err != nil {
		h.writeServiceError(w, r, "update account", err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(view))
}

// DeleteAccount removes an account, ending its session if it is live.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.accounts.Delete(r.Context(), operatorID(r), id); err != nil {
		h.writeServiceError(w, r, "delete account", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetCredentials replaces the broker secrets of an account.
func (h *Handler) SetCredentials(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req SecretRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.accounts.SetCredentials(r.Context(), operatorID(r), id, application.SecretInput{
		APIKey:    req.APIKey,
		APISecret: req.APISecret,
		PIN:       req.PIN,
		BaseURL:   req.BaseURL,
	})
	if err != nil {
		h.writeServiceError(w, r, "set credentials", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetDefaultAccount flags an account as the operator's default.
func (h *Handler) SetDefaultAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.accounts.SetDefault(r.Context(), operatorID(r), id); err != nil {
		h.writeServiceError(w, r, "set default account", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SwitchAccount makes an account the live broker session.
func (h *Handler) SwitchAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req SwitchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	act, err := h.sessions.Switch(r.Context(), operatorID(r), id, req.TOTP)
	if err != nil {
		h.writeServiceError(w, r, "switch account", err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(act))
}

// SessionStatus reports the live session if it belongs to the operator.
func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.sessions.Status(r.Context(), operatorID(r))
	if err != nil {
		h.writeServiceError(w, r, "session status", err)
		return
	}
	if status.AccountID == 0 {
		writeJSON(w, http.StatusOK, SessionResponse{})
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		Active:      status.Active,
		AccountID:   status.AccountID,
		FeedToken:   status.Session.FeedToken,
		ExpiresAt:   status.Session.TokenExpiry.UTC().Format(timeFormat),
		ActivatedAt: status.Session.ActivatedAt.UTC().Format(timeFormat),
	})
}

// RestoreSession installs a session from a snapshot without a one-time code.
func (h *Handler) RestoreSession(w http.ResponseWriter, r *http.Request) {
	var req RestoreRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AccountID <= 0 {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	act, err := h.sessions.Restore(r.Context(), operatorID(r), req.AccountID, req.Snapshot)
	if err != nil {
		h.writeServiceError(w, r, "restore session", err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(act))
}

// EndSession drops the operator's live session. With ?logout=true the broker
// is asked to invalidate the tokens first.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	logout := r.URL.Query().Get("logout") == "true"

	if err := h.sessions.End(r.Context(), operatorID(r), logout); err != nil {
		h.writeServiceError(w, r, "end session", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
