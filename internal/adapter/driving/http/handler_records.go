package httphandler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ericfisherdev/algopilot/internal/application"
	"github.com/ericfisherdev/algopilot/internal/domain/model"
)

// GetSettings returns the operator's settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Get(r.Context(), operatorID(r))
	if err != nil {
		h.writeServiceError(w, r, "get settings", err)
		return
	}

	writeJSON(w, http.StatusOK, toSettingsResponse(settings))
}

// UpdateSettings applies a partial settings update.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	settings, err := h.settings.Update(r.Context(), operatorID(r), model.SettingsPatch{
		PaperMode:      req.PaperMode,
		DefaultLotSize: req.DefaultLotSize,
	})
	if err != nil {
		h.writeServiceError(w, r, "update settings", err)
		return
	}

	writeJSON(w, http.StatusOK, toSettingsResponse(settings))
}

// ListStrategies returns the strategies of an account.
func (h *Handler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	strategies, err := h.strategies.List(r.Context(), operatorID(r), accountID)
	if err != nil {
		h.writeServiceError(w, r, "list strategies", err)
		return
	}

	resp := make([]StrategyResponse, 0, len(strategies))
	for _, s := range strategies {
		resp = append(resp, toStrategyResponse(s))
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateStrategy adds a stopped strategy to an account.
func (h *Handler) CreateStrategy(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req StrategyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	created, err := h.strategies.Create(r.Context(), operatorID(r), accountID, req.input())
	if err != nil {
		h.writeServiceError(w, r, "create strategy", err)
		return
	}

	writeJSON(w, http.StatusCreated, toStrategyResponse(created))
}

// GetStrategy returns one strategy.
func (h *Handler) GetStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	st, err := h.strategies.Get(r.Context(), operatorID(r), id)
	if err != nil {
		h.writeServiceError(w, r, "get strategy", err)
		return
	}

	writeJSON(w, http.StatusOK, toStrategyResponse(st))
}

// UpdateStrategy edits the name, params or enabled flag of a strategy.
func (h *Handler) UpdateStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req StrategyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	updated, err := h.strategies.Update(r.Context(), operatorID(r), id, req.input())
	if err != nil {
		h.writeServiceError(w, r, "update strategy", err)
		return
	}

	writeJSON(w, http.StatusOK, toStrategyResponse(updated))
}

// DeleteStrategy removes a strategy and its runs. Ledger entries keep their
// amounts but lose the strategy reference.
func (h *Handler) DeleteStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.strategies.Delete(r.Context(), operatorID(r), id); err != nil {
		h.writeServiceError(w, r, "delete strategy", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// StrategyRuns returns a strategy's runs newest first.
func (h *Handler) StrategyRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	runs, err := h.strategies.Runs(r.Context(), operatorID(r), id)
	if err != nil {
		h.writeServiceError(w, r, "strategy runs", err)
		return
	}

	resp := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		rr := RunResponse{
			ID:        run.ID,
			Status:    string(run.Status),
			StartedAt: run.StartedAt.UTC().Format(timeFormat),
		}
		if run.EndedAt != nil {
			rr.EndedAt = run.EndedAt.UTC().Format(timeFormat)
		}
		resp = append(resp, rr)
	}

	writeJSON(w, http.StatusOK, resp)
}

// StartStrategy moves a strategy to running.
func (h *Handler) StartStrategy(w http.ResponseWriter, r *http.Request) {
	h.strategyTransition(w, r, "start strategy", h.strategies.Start)
}

// PauseStrategy suspends a running strategy.
func (h *Handler) PauseStrategy(w http.ResponseWriter, r *http.Request) {
	h.strategyTransition(w, r, "pause strategy", h.strategies.Pause)
}

// StopStrategy ends the open run of a strategy.
func (h *Handler) StopStrategy(w http.ResponseWriter, r *http.Request) {
	h.strategyTransition(w, r, "stop strategy", h.strategies.Stop)
}

func (h *Handler) strategyTransition(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(ctx context.Context, userID, strategyID int64) (model.Strategy, error),
) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	st, err := fn(r.Context(), operatorID(r), id)
	if err != nil {
		h.writeServiceError(w, r, op, err)
		return
	}

	writeJSON(w, http.StatusOK, toStrategyResponse(st))
}

// StartAllStrategies starts every enabled strategy of an account.
func (h *Handler) StartAllStrategies(w http.ResponseWriter, r *http.Request) {
	h.bulkTransition(w, r, "start all strategies", h.strategies.StartAll)
}

// StopAllStrategies stops every running or paused strategy of an account.
func (h *Handler) StopAllStrategies(w http.ResponseWriter, r *http.Request) {
	h.bulkTransition(w, r, "stop all strategies", h.strategies.StopAll)
}

func (h *Handler) bulkTransition(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(ctx context.Context, userID, accountID int64) (int, error),
) {
	accountID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	changed, err := fn(r.Context(), operatorID(r), accountID)
	if err != nil {
		h.writeServiceError(w, r, op, err)
		return
	}

	writeJSON(w, http.StatusOK, BulkResponse{Changed: changed})
}

// OrderLedger lists the orders recorded for an account, newest first. The
// limit query parameter caps the result.
func (h *Handler) OrderLedger(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	limit := application.DefaultLedgerLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	orders, err := h.orders.Ledger(r.Context(), operatorID(r), accountID, limit)
	if err != nil {
		h.writeServiceError(w, r, "order ledger", err)
		return
	}

	resp := make([]OrderRecordResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderRecordResponse(o))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (req StrategyRequest) input() application.StrategyInput {
	return application.StrategyInput{
		Name:    req.Name,
		Type:    req.Type,
		Params:  req.Params,
		Enabled: req.Enabled,
	}
}
