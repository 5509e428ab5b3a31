package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/investdash/internal/domain"
	"github.com/mtlprog/investdash/internal/export"
	"github.com/mtlprog/investdash/internal/ledger"
	"github.com/mtlprog/investdash/internal/marketdata"
	"github.com/mtlprog/investdash/internal/snapshot"
	"github.com/mtlprog/investdash/internal/valuation"
)

// Handler provides HTTP endpoints for the dashboard API.
type Handler struct {
	deps Deps
	now  func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps, now: time.Now}
}

type sessionRequest struct {
	Passphrase string `json:"passphrase"`
}

// OpenSession handles POST /api/v1/session by storing the derived user key in
// a cookie. The passphrase itself is never sent back.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	key, err := h.deps.Keys.UserKey(req.Passphrase)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     userKeyCookie,
		Value:    key,
		Path:     "/",
		HttpOnly: true,
		Secure:   isHTTPS(r),
		SameSite: http.SameSiteStrictMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// CloseSession handles DELETE /api/v1/session.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     userKeyCookie,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   isHTTPS(r),
	})
	w.WriteHeader(http.StatusNoContent)
}

// isHTTPS reports whether the client reached us over TLS, directly or through
// a proxy setting X-Forwarded-Proto.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

type operationJSON struct {
	ID     int64           `json:"id"`
	Ticker string          `json:"ticker"`
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date"`
	Kind   string          `json:"kind"`
}

func toOperationJSON(op domain.Operation) operationJSON {
	return operationJSON{
		ID:     op.ID,
		Ticker: op.Ticker,
		Amount: op.Amount,
		Date:   op.Date.Format(domain.DateLayout),
		Kind:   string(op.Kind),
	}
}

// ListOperations handles GET /api/v1/operations.
func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	ops, err := h.deps.Ledger.List(r.Context(), userKey(r))
	if err != nil {
		writeServiceError(w, "failed to list operations", err)
		return
	}
	out := make([]operationJSON, 0, len(ops))
	for _, op := range ops {
		out = append(out, toOperationJSON(op))
	}
	writeJSON(w, http.StatusOK, out)
}

// AddOperation handles POST /api/v1/operations.
func (h *Handler) AddOperation(w http.ResponseWriter, r *http.Request) {
	var body operationJSON
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	date, err := domain.ParseDate(body.Date)
	if err != nil {
		writeFieldError(w, "date", "invalid date format, expected YYYY-MM-DD")
		return
	}

	op, err := h.deps.Ledger.Add(r.Context(), userKey(r), domain.Operation{
		Ticker: body.Ticker,
		Amount: body.Amount,
		Date:   date,
		Kind:   domain.OperationKind(body.Kind),
	})
	if err != nil {
		writeServiceError(w, "failed to add operation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOperationJSON(op))
}

// DeleteOperation handles DELETE /api/v1/operations/{id}.
func (h *Handler) DeleteOperation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid operation id")
		return
	}
	if err := h.deps.Ledger.Delete(r.Context(), userKey(r), id); err != nil {
		writeServiceError(w, "failed to delete operation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHoldings handles GET /api/v1/holdings.
func (h *Handler) GetHoldings(w http.ResponseWriter, r *http.Request) {
	d, err := h.deps.Dashboards.Dashboard(r.Context(), userKey(r), valuation.Request{})
	if err != nil {
		writeServiceError(w, "failed to valuate holdings", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GetHistory handles GET /api/v1/history?months=&granularity=.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	req, err := historyRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := h.deps.Dashboards.Dashboard(r.Context(), userKey(r), req)
	if err != nil {
		writeServiceError(w, "failed to build history", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ExportXLSX handles GET /api/v1/export.xlsx.
func (h *Handler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	req, err := historyRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := h.deps.Dashboards.Dashboard(r.Context(), userKey(r), req)
	if err != nil {
		writeServiceError(w, "failed to build export", err)
		return
	}

	at := h.now()
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="investdash-%s.xlsx"`, at.Format(domain.DateLayout)))
	if err := export.WriteXLSX(w, d, at); err != nil {
		slog.Error("failed to write workbook", "error", err)
	}
}

func historyRequest(r *http.Request) (valuation.Request, error) {
	q := r.URL.Query()
	months := 0 // full range
	if m := q.Get("months"); m != "" {
		n, err := strconv.Atoi(m)
		if err != nil || n <= 0 {
			return valuation.Request{}, errors.New("months must be a positive integer")
		}
		months = n
	}
	granularity, err := domain.ParseGranularity(q.Get("granularity"))
	if err != nil {
		return valuation.Request{}, err
	}
	return valuation.Request{History: true, Months: months, Granularity: granularity}, nil
}

// GetLatestSnapshot handles GET /api/v1/snapshots/latest.
func (h *Handler) GetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	s, err := h.deps.Snapshots.GetLatest(r.Context(), userKey(r))
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no snapshots found")
			return
		}
		slog.Error("failed to get latest snapshot", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// GetSnapshotByDate handles GET /api/v1/snapshots/{date}.
func (h *Handler) GetSnapshotByDate(w http.ResponseWriter, r *http.Request) {
	dateStr := r.PathValue("date")
	date, err := domain.ParseDate(dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
		return
	}

	s, err := h.deps.Snapshots.GetByDate(r.Context(), userKey(r), date)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			writeError(w, http.StatusNotFound, "snapshot not found for date")
			return
		}
		slog.Error("failed to get snapshot by date", "date", dateStr, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ListSnapshots handles GET /api/v1/snapshots.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	const maxLimit = 365
	limit := 30
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = min(n, maxLimit)
		}
	}

	snapshots, err := h.deps.Snapshots.List(r.Context(), userKey(r), limit)
	if err != nil {
		slog.Error("failed to list snapshots", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if snapshots == nil {
		snapshots = []snapshot.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snapshots)
}

// GenerateSnapshots handles POST /api/v1/snapshots/generate.
func (h *Handler) GenerateSnapshots(w http.ResponseWriter, r *http.Request) {
	n := h.deps.Runner.RunOnce(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"generated": n})
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, msg string, err error) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		writeFieldError(w, verr.Field, verr.Err.Error())
	case errors.Is(err, ledger.ErrOperationNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, valuation.ErrDataInconsistency):
		slog.Warn(msg, "error", err)
		writeError(w, http.StatusServiceUnavailable, "market data changed during valuation, retry later")
	case errors.Is(err, marketdata.ErrUpstream):
		slog.Error(msg, "error", err)
		writeError(w, http.StatusBadGateway, "market data unavailable")
	default:
		slog.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeFieldError(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg, "field": field})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
