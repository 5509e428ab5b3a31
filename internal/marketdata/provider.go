package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/mtlprog/investdash/internal/domain"
)

// Source is an uncached market data backend such as *Client.
type Source interface {
	History(ctx context.Context, instruments []domain.Instrument, start time.Time) (map[domain.Instrument]domain.Series, error)
	Splits(ctx context.Context, ticker string) ([]domain.SplitEvent, error)
}

// Provider serves market data through epoch-keyed caches. A request with the
// same instrument, start and epoch is answered from memory; a new epoch
// fetches again.
type Provider struct {
	source  Source
	history *epochCache[domain.Series]
	splits  *epochCache[[]domain.SplitEvent]
}

// NewProvider wraps source with caches bounded to the given entry counts.
func NewProvider(source Source, historyEntries, splitEntries int) *Provider {
	if source == nil {
		panic("marketdata.NewProvider: source must not be nil")
	}
	return &Provider{
		source:  source,
		history: newEpochCache[domain.Series](historyEntries),
		splits:  newEpochCache[[]domain.SplitEvent](splitEntries),
	}
}

func historyKey(inst domain.Instrument, start time.Time, epoch string) string {
	return fmt.Sprintf("%s|%s|%s", inst, start.Format(domain.DateLayout), epoch)
}

// History returns cached series and fetches only the missing instruments.
// Instruments the source omits are not cached, so a later call retries them.
func (p *Provider) History(ctx context.Context, instruments []domain.Instrument, start time.Time, epoch string) (map[domain.Instrument]domain.Series, error) {
	out := make(map[domain.Instrument]domain.Series, len(instruments))
	var missing []domain.Instrument
	for _, inst := range instruments {
		if s, ok := p.history.get(historyKey(inst, start, epoch)); ok {
			out[inst] = s
			continue
		}
		missing = append(missing, inst)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := p.source.History(ctx, missing, start)
	if err != nil {
		return nil, err
	}
	for inst, s := range fetched {
		p.history.set(historyKey(inst, start, epoch), s)
		out[inst] = s
	}
	return out, nil
}

// Splits returns the cached split history of ticker for epoch.
func (p *Provider) Splits(ctx context.Context, ticker, epoch string) ([]domain.SplitEvent, error) {
	key := ticker + "|" + epoch
	if events, ok := p.splits.get(key); ok {
		return events, nil
	}

	events, err := p.source.Splits(ctx, ticker)
	if err != nil {
		return nil, err
	}
	p.splits.set(key, events)
	return events, nil
}
