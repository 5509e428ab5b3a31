// Package api serves the dashboard JSON API.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/mtlprog/investdash/internal/domain"
	"github.com/mtlprog/investdash/internal/snapshot"
	"github.com/mtlprog/investdash/internal/valuation"
)

// Ledger manages a user's operations.
type Ledger interface {
	List(ctx context.Context, userKey string) ([]domain.Operation, error)
	Add(ctx context.Context, userKey string, op domain.Operation) (domain.Operation, error)
	Delete(ctx context.Context, userKey string, id int64) error
}

// Dashboards valuates a user's ledger.
type Dashboards interface {
	Dashboard(ctx context.Context, userKey string, req valuation.Request) (valuation.Dashboard, error)
}

// Snapshots reads stored net-worth snapshots.
type Snapshots interface {
	GetLatest(ctx context.Context, userKey string) (*snapshot.Snapshot, error)
	GetByDate(ctx context.Context, userKey string, date time.Time) (*snapshot.Snapshot, error)
	List(ctx context.Context, userKey string, limit int) ([]snapshot.Snapshot, error)
}

// SnapshotRunner snapshots every tracked user.
type SnapshotRunner interface {
	RunOnce(ctx context.Context) int
}

// KeyDeriver turns a passphrase into a user key.
type KeyDeriver interface {
	UserKey(passphrase string) (string, error)
}

// Deps are the services behind the API.
type Deps struct {
	Ledger     Ledger
	Dashboards Dashboards
	Snapshots  Snapshots
	Runner     SnapshotRunner
	Keys       KeyDeriver
}

// NewServer creates an HTTP server with all routes configured.
func NewServer(port string, deps Deps, adminAPIKey string) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      Routes(deps, adminAPIKey),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Routes builds the API router.
func Routes(deps Deps, adminAPIKey string) http.Handler {
	h := NewHandler(deps)
	user := func(fn http.HandlerFunc) http.Handler { return requireUser(deps.Keys, fn) }

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/session", h.OpenSession)
	mux.HandleFunc("DELETE /api/v1/session", h.CloseSession)

	mux.Handle("GET /api/v1/operations", user(h.ListOperations))
	mux.Handle("POST /api/v1/operations", user(h.AddOperation))
	mux.Handle("DELETE /api/v1/operations/{id}", user(h.DeleteOperation))

	mux.Handle("GET /api/v1/holdings", user(h.GetHoldings))
	mux.Handle("GET /api/v1/history", user(h.GetHistory))
	mux.Handle("GET /api/v1/export.xlsx", user(h.ExportXLSX))

	mux.Handle("GET /api/v1/snapshots/latest", user(h.GetLatestSnapshot))
	mux.Handle("GET /api/v1/snapshots/{date}", user(h.GetSnapshotByDate))
	mux.Handle("GET /api/v1/snapshots", user(h.ListSnapshots))

	generateHandler := http.HandlerFunc(h.GenerateSnapshots)
	if adminAPIKey != "" {
		mux.Handle("POST /api/v1/snapshots/generate", requireAuth(adminAPIKey, generateHandler))
	} else {
		mux.Handle("POST /api/v1/snapshots/generate", generateHandler)
	}

	return mux
}

func requireAuth(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

const (
	passphraseHeader = "X-Passphrase"
	userKeyCookie    = "user_key"
)

type userKeyCtx struct{}

// requireUser derives the user key from the X-Passphrase header, or takes the
// already derived key from the session cookie, and stores it in the request
// context.
func requireUser(keys KeyDeriver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var key string
		if passphrase := r.Header.Get(passphraseHeader); passphrase != "" {
			derived, err := keys.UserKey(passphrase)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "passphrase required")
				return
			}
			key = derived
		} else if c, err := r.Cookie(userKeyCookie); err == nil && validUserKey(c.Value) {
			key = c.Value
		}

		if key == "" {
			writeError(w, http.StatusUnauthorized, "passphrase required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKeyCtx{}, key)))
	})
}

// validUserKey accepts the 32-byte hex keys the deriver produces.
func validUserKey(s string) bool {
	b, err := hex.DecodeString(s)
	return err == nil && len(b) == 32
}

func userKey(r *http.Request) string {
	key, _ := r.Context().Value(userKeyCtx{}).(string)
	return key
}
