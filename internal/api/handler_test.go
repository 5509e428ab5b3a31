package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/investdash/internal/domain"
	"github.com/mtlprog/investdash/internal/ledger"
	"github.com/mtlprog/investdash/internal/marketdata"
	"github.com/mtlprog/investdash/internal/snapshot"
	"github.com/mtlprog/investdash/internal/valuation"
)

type mockKeys struct{}

func (mockKeys) UserKey(passphrase string) (string, error) {
	if passphrase == "" {
		return "", errors.New("passphrase is required")
	}
	return testKey(passphrase), nil
}

func testKey(passphrase string) string {
	sum := sha256.Sum256([]byte(passphrase))
	return hex.EncodeToString(sum[:])
}

type mockLedger struct {
	ops      []domain.Operation
	addErr   error
	delErr   error
	lastUser string
	added    domain.Operation
	deleted  int64
}

func (m *mockLedger) List(_ context.Context, userKey string) ([]domain.Operation, error) {
	m.lastUser = userKey
	return m.ops, nil
}

func (m *mockLedger) Add(_ context.Context, userKey string, op domain.Operation) (domain.Operation, error) {
	m.lastUser = userKey
	if m.addErr != nil {
		return domain.Operation{}, m.addErr
	}
	op.ID = 7
	m.added = op
	return op, nil
}

func (m *mockLedger) Delete(_ context.Context, userKey string, id int64) error {
	m.lastUser = userKey
	m.deleted = id
	return m.delErr
}

type mockDashboards struct {
	dashboard valuation.Dashboard
	err       error
	lastReq   valuation.Request
}

func (m *mockDashboards) Dashboard(_ context.Context, _ string, req valuation.Request) (valuation.Dashboard, error) {
	m.lastReq = req
	return m.dashboard, m.err
}

type mockSnapshots struct {
	snapshots     []snapshot.Snapshot
	lastListLimit int
}

func (m *mockSnapshots) GetLatest(_ context.Context, _ string) (*snapshot.Snapshot, error) {
	if len(m.snapshots) == 0 {
		return nil, snapshot.ErrNotFound
	}
	return &m.snapshots[0], nil
}

func (m *mockSnapshots) GetByDate(_ context.Context, _ string, date time.Time) (*snapshot.Snapshot, error) {
	for _, s := range m.snapshots {
		if s.SnapshotDate.Equal(date) {
			return &s, nil
		}
	}
	return nil, snapshot.ErrNotFound
}

func (m *mockSnapshots) List(_ context.Context, _ string, limit int) ([]snapshot.Snapshot, error) {
	m.lastListLimit = limit
	if limit > len(m.snapshots) {
		limit = len(m.snapshots)
	}
	return m.snapshots[:limit], nil
}

type mockRunner struct{ calls int }

func (m *mockRunner) RunOnce(_ context.Context) int {
	m.calls++
	return 2
}

type fixture struct {
	ledger     *mockLedger
	dashboards *mockDashboards
	snapshots  *mockSnapshots
	runner     *mockRunner
	handler    http.Handler
}

func newFixture(adminKey string) *fixture {
	f := &fixture{
		ledger: &mockLedger{},
		dashboards: &mockDashboards{dashboard: valuation.Dashboard{
			Pivot: "PLN",
			Holdings: []domain.Holding{{
				Ticker: "AAPL", Type: domain.AssetTypeEquity, Quantity: decimal.NewFromInt(10),
				Price: decimal.NewFromInt(100), ValueUSD: decimal.NewFromInt(1000), Currency: "USD",
				ValuePivot: decimal.NewFromInt(250),
			}},
			Total: decimal.NewFromInt(250),
		}},
		snapshots: &mockSnapshots{},
		runner:    &mockRunner{},
	}
	f.handler = Routes(Deps{
		Ledger:     f.ledger,
		Dashboards: f.dashboards,
		Snapshots:  f.snapshots,
		Runner:     f.runner,
		Keys:       mockKeys{},
	}, adminKey)
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(passphraseHeader, "hunter2")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
	return m
}

func TestMissingPassphrase(t *testing.T) {
	f := newFixture("")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/holdings", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestUserKeyCookie(t *testing.T) {
	f := newFixture("")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/operations", nil)
	req.AddCookie(&http.Cookie{Name: userKeyCookie, Value: testKey("from-cookie")})
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if f.ledger.lastUser != testKey("from-cookie") {
		t.Errorf("user = %q, want key of from-cookie", f.ledger.lastUser)
	}
}

func TestUserKeyCookieRejectsMalformed(t *testing.T) {
	f := newFixture("")
	for _, value := range []string{"plain passphrase", "abcd", strings.Repeat("z", 64)} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/operations", nil)
		req.AddCookie(&http.Cookie{Name: userKeyCookie, Value: value})
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("cookie %q: status = %d, want 401", value, w.Code)
		}
	}
}

func TestOpenSessionSetsCookie(t *testing.T) {
	f := newFixture("")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session", strings.NewReader(`{"passphrase":"abc"}`))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != userKeyCookie || !cookies[0].HttpOnly {
		t.Fatalf("cookies = %+v", cookies)
	}
	if cookies[0].Value != testKey("abc") {
		t.Errorf("cookie value = %q, want derived key", cookies[0].Value)
	}
	if cookies[0].Secure {
		t.Error("plain HTTP session cookie marked Secure")
	}
}

func TestOpenSessionSecureCookie(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"tls", func(r *http.Request) { r.TLS = &tls.ConnectionState{} }},
		{"forwarded", func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture("")
			req := httptest.NewRequest(http.MethodPost, "/api/v1/session", strings.NewReader(`{"passphrase":"abc"}`))
			tt.setup(req)
			w := httptest.NewRecorder()
			f.handler.ServeHTTP(w, req)

			cookies := w.Result().Cookies()
			if len(cookies) != 1 || !cookies[0].Secure {
				t.Errorf("cookies = %+v, want one Secure cookie", cookies)
			}
		})
	}
}

func TestOpenSessionEmptyPassphrase(t *testing.T) {
	f := newFixture("")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session", strings.NewReader(`{"passphrase":""}`))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListOperations(t *testing.T) {
	f := newFixture("")
	f.ledger.ops = []domain.Operation{{
		ID: 1, Ticker: "AAPL", Amount: decimal.NewFromInt(10),
		Date: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), Kind: domain.OperationPurchase,
	}}

	w := f.do(http.MethodGet, "/api/v1/operations", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var ops []operationJSON
	if err := json.Unmarshal(w.Body.Bytes(), &ops); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(ops) != 1 || ops[0].Date != "2024-01-15" || ops[0].Kind != "purchase" || !ops[0].Amount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("ops = %+v", ops)
	}
	if f.ledger.lastUser != testKey("hunter2") {
		t.Errorf("user = %q, want key of hunter2", f.ledger.lastUser)
	}
}

func TestListOperationsEmptyIsArray(t *testing.T) {
	f := newFixture("")
	w := f.do(http.MethodGet, "/api/v1/operations", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", w.Body.String())
	}
}

func TestAddOperation(t *testing.T) {
	f := newFixture("")
	w := f.do(http.MethodPost, "/api/v1/operations", `{"ticker":"aapl","amount":"2.5","date":"2024-02-01","kind":"purchase"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if f.ledger.added.Ticker != "aapl" || !f.ledger.added.Amount.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("added = %+v", f.ledger.added)
	}
	if !f.ledger.added.Date.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v", f.ledger.added.Date)
	}
	if got := decodeBody(t, w)["id"]; got != float64(7) {
		t.Errorf("id = %v, want 7", got)
	}
}

func TestAddOperationErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		err       error
		wantCode  int
		wantField string
	}{
		{"bad json", `{`, nil, http.StatusBadRequest, ""},
		{"bad date", `{"ticker":"A","amount":"1","date":"01/02/2024","kind":"purchase"}`, nil, http.StatusBadRequest, "date"},
		{"oversell", `{"ticker":"A","amount":"1","date":"2024-01-02","kind":"sale"}`,
			&ledger.ValidationError{Field: "amount", Err: ledger.ErrOversell}, http.StatusBadRequest, "amount"},
		{"upstream", `{"ticker":"A","amount":"1","date":"2024-01-02","kind":"purchase"}`,
			fmt.Errorf("resolving: %w", marketdata.ErrUpstream), http.StatusBadGateway, ""},
		{"internal", `{"ticker":"A","amount":"1","date":"2024-01-02","kind":"purchase"}`,
			errors.New("boom"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture("")
			f.ledger.addErr = tt.err
			w := f.do(http.MethodPost, "/api/v1/operations", tt.body)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantField != "" {
				if got := decodeBody(t, w)["field"]; got != tt.wantField {
					t.Errorf("field = %v, want %s", got, tt.wantField)
				}
			}
		})
	}
}

func TestDeleteOperation(t *testing.T) {
	f := newFixture("")
	w := f.do(http.MethodDelete, "/api/v1/operations/42", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if f.ledger.deleted != 42 {
		t.Errorf("deleted = %d, want 42", f.ledger.deleted)
	}
}

func TestDeleteOperationNotFound(t *testing.T) {
	f := newFixture("")
	f.ledger.delErr = ledger.ErrOperationNotFound
	w := f.do(http.MethodDelete, "/api/v1/operations/42", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDeleteOperationInvalidID(t *testing.T) {
	f := newFixture("")
	w := f.do(http.MethodDelete, "/api/v1/operations/abc", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetHoldings(t *testing.T) {
	f := newFixture("")
	w := f.do(http.MethodGet, "/api/v1/holdings", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if f.dashboards.lastReq.History {
		t.Error("holdings should not request history")
	}
	body := decodeBody(t, w)
	if body["pivot"] != "PLN" || body["total"] != "250" {
		t.Errorf("body = %v", body)
	}
}

func TestGetHoldingsInconsistent(t *testing.T) {
	f := newFixture("")
	f.dashboards.err = valuation.ErrDataInconsistency
	w := f.do(http.MethodGet, "/api/v1/holdings", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestGetHistoryParams(t *testing.T) {
	tests := []struct {
		query      string
		wantCode   int
		wantMonths int
		wantGran   domain.Granularity
	}{
		{"", http.StatusOK, 0, domain.GranularityDay},
		{"?months=6&granularity=W", http.StatusOK, 6, domain.GranularityWeek},
		{"?months=3&granularity=month", http.StatusOK, 3, domain.GranularityMonth},
		{"?months=0", http.StatusBadRequest, 0, ""},
		{"?months=x", http.StatusBadRequest, 0, ""},
		{"?granularity=year", http.StatusBadRequest, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			f := newFixture("")
			w := f.do(http.MethodGet, "/api/v1/history"+tt.query, "")
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			req := f.dashboards.lastReq
			if !req.History || req.Months != tt.wantMonths || req.Granularity != tt.wantGran {
				t.Errorf("request = %+v", req)
			}
		})
	}
}

func TestExportXLSX(t *testing.T) {
	f := newFixture("")
	w := f.do(http.MethodGet, "/api/v1/export.xlsx", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Error("body is not a zip archive")
	}
}

func TestGetLatestSnapshotSuccess(t *testing.T) {
	f := newFixture("")
	data, _ := json.Marshal(map[string]string{"test": "data"})
	f.snapshots.snapshots = []snapshot.Snapshot{
		{ID: 1, SnapshotDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), Data: data},
	}

	w := f.do(http.MethodGet, "/api/v1/snapshots/latest", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestGetLatestSnapshotNotFound(t *testing.T) {
	f := newFixture("")
	w := f.do(http.MethodGet, "/api/v1/snapshots/latest", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetSnapshotByDate(t *testing.T) {
	f := newFixture("")
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	f.snapshots.snapshots = []snapshot.Snapshot{{ID: 1, SnapshotDate: date, Data: json.RawMessage(`{}`)}}

	if w := f.do(http.MethodGet, "/api/v1/snapshots/2024-01-15", ""); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w := f.do(http.MethodGet, "/api/v1/snapshots/2024-02-15", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if w := f.do(http.MethodGet, "/api/v1/snapshots/not-a-date", ""); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListSnapshotsLimitClamped(t *testing.T) {
	f := newFixture("")
	f.do(http.MethodGet, "/api/v1/snapshots?limit=1000", "")
	if f.snapshots.lastListLimit != 365 {
		t.Errorf("limit = %d, want 365", f.snapshots.lastListLimit)
	}
	f.do(http.MethodGet, "/api/v1/snapshots?limit=-1", "")
	if f.snapshots.lastListLimit != 30 {
		t.Errorf("limit = %d, want 30", f.snapshots.lastListLimit)
	}
}

func TestGenerateSnapshotsRequiresAdmin(t *testing.T) {
	f := newFixture("secret")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/snapshots/generate", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/snapshots/generate", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := decodeBody(t, w)["generated"]; got != float64(2) {
		t.Errorf("generated = %v, want 2", got)
	}
	if f.runner.calls != 1 {
		t.Errorf("calls = %d, want 1", f.runner.calls)
	}
}

type emptyLedgerRepo struct{ appends int }

func (r *emptyLedgerRepo) List(_ context.Context, _ string) ([]domain.Operation, error) {
	return nil, nil
}

func (r *emptyLedgerRepo) Append(_ context.Context, _ string, _ domain.Operation) (int64, error) {
	r.appends++
	return 1, nil
}

func (r *emptyLedgerRepo) Delete(_ context.Context, _ string, _ int64) error {
	return ledger.ErrOperationNotFound
}

type downResolver struct{}

func (downResolver) Resolve(_ context.Context, _ string) (domain.TickerInfo, error) {
	return domain.TickerInfo{}, fmt.Errorf("fetching metadata: %w", marketdata.ErrUpstream)
}

func TestAddOperationMarketDown(t *testing.T) {
	repo := &emptyLedgerRepo{}
	handler := Routes(Deps{
		Ledger:     ledger.NewService(repo, downResolver{}),
		Dashboards: &mockDashboards{},
		Snapshots:  &mockSnapshots{},
		Runner:     &mockRunner{},
		Keys:       mockKeys{},
	}, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/operations",
		strings.NewReader(`{"ticker":"AAPL","amount":"1","date":"2024-01-02","kind":"purchase"}`))
	req.Header.Set(passphraseHeader, "hunter2")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502: %s", w.Code, w.Body.String())
	}
	if _, ok := decodeBody(t, w)["field"]; ok {
		t.Error("outage response should not name a field")
	}
	if repo.appends != 0 {
		t.Error("expected nothing persisted")
	}
}
