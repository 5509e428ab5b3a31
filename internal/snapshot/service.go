// Package snapshot stores a daily net-worth valuation per tracked user so the
// growth of a portfolio can be reviewed without recomputing it.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mtlprog/investdash/internal/valuation"
)

// DashboardSource valuates a user's ledger.
type DashboardSource interface {
	Dashboard(ctx context.Context, userKey string, req valuation.Request) (valuation.Dashboard, error)
}

// Service manages snapshot generation and retrieval.
type Service struct {
	source DashboardSource
	repo   Repository
}

// NewService creates a new snapshot service.
func NewService(source DashboardSource, repo Repository) *Service {
	if source == nil {
		panic("snapshot.NewService: source must not be nil")
	}
	if repo == nil {
		panic("snapshot.NewService: repo must not be nil")
	}
	return &Service{source: source, repo: repo}
}

// Generate valuates the user's current holdings and stores them for date.
// Demo ledgers are not stored.
func (s *Service) Generate(ctx context.Context, userKey string, date time.Time) (valuation.Dashboard, error) {
	d, err := s.source.Dashboard(ctx, userKey, valuation.Request{})
	if err != nil {
		return valuation.Dashboard{}, fmt.Errorf("valuating holdings: %w", err)
	}
	if d.Demo {
		return d, nil
	}

	data, err := json.Marshal(d)
	if err != nil {
		return valuation.Dashboard{}, fmt.Errorf("marshaling dashboard: %w", err)
	}

	if err := s.repo.Save(ctx, userKey, date, data); err != nil {
		return valuation.Dashboard{}, fmt.Errorf("saving snapshot: %w", err)
	}

	return d, nil
}

// GetLatest retrieves the most recent snapshot of the user.
func (s *Service) GetLatest(ctx context.Context, userKey string) (*Snapshot, error) {
	return s.repo.GetLatest(ctx, userKey)
}

// GetByDate retrieves a snapshot for a specific date.
func (s *Service) GetByDate(ctx context.Context, userKey string, date time.Time) (*Snapshot, error) {
	return s.repo.GetByDate(ctx, userKey, date)
}

// List retrieves recent snapshots, newest first.
func (s *Service) List(ctx context.Context, userKey string, limit int) ([]Snapshot, error) {
	return s.repo.List(ctx, userKey, limit)
}
