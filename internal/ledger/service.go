package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
	"github.com/alejandrodnm/lpkeeper/internal/ports"
)

// Service owns a position's accounting lifecycle: normal appends and full
// rebuilds. Both run under an exclusive per-position lock, so a rebuild can
// never interleave with an append (or another rebuild) for the same position.
type Service struct {
	events    ports.RawEventSource
	store     ports.LedgerStore
	positions ports.PositionStore

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// New creates the accounting service.
func New(events ports.RawEventSource, store ports.LedgerStore, positions ports.PositionStore) *Service {
	return &Service{
		events:    events,
		store:     store,
		positions: positions,
		locks:     make(map[string]*sync.Mutex),
		now:       time.Now,
	}
}

// positionLock returns the mutex guarding one position's ledger.
func (s *Service) positionLock(positionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[positionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[positionID] = l
	}
	return l
}

// Append accounts one new raw event against the stored ledger and persists the
// resulting row. Duplicate keys are ignored (the upstream redelivers).
func (s *Service) Append(ctx context.Context, cfg domain.PositionConfig, raw domain.RawEvent) error {
	lock := s.positionLock(cfg.PositionID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.store.ListEvents(ctx, cfg.PositionID)
	if err != nil {
		return fmt.Errorf("ledger.Append: list events: %w", err)
	}
	for _, ev := range existing {
		if ev.Key() == raw.Key() {
			return nil // already accounted
		}
	}

	costBasis, liquidity := runningState(existing)
	acct, err := account(cfg, raw, costBasis, liquidity)
	if err != nil {
		return err
	}
	acct.CostBasisAfter = new(big.Int).Add(costBasis, acct.DeltaCostBasis)
	_, realized, _ := Totals(existing)
	acct.PnlAfter = realized.Add(realized, acct.DeltaPnl)

	if err := s.store.AppendEvent(ctx, acct); err != nil {
		return fmt.Errorf("ledger.Append: persist: %w", err)
	}
	return s.updateCostBasis(ctx, cfg.PositionID, acct.CostBasisAfter)
}

// Rebuild deletes and regenerates the whole event sequence from upstream.
// Events are fetched and replayed into a staging slice first; storage is only
// touched once the full replay succeeds, so an upstream failure midway (rate
// limit included) leaves the previous ledger intact. Same upstream events in,
// byte-identical ledger out.
func (s *Service) Rebuild(ctx context.Context, cfg domain.PositionConfig) (domain.LedgerSummary, error) {
	lock := s.positionLock(cfg.PositionID)
	lock.Lock()
	defer lock.Unlock()

	raw, err := s.events.PositionEvents(ctx, cfg)
	if err != nil {
		return domain.LedgerSummary{}, fmt.Errorf("ledger.Rebuild: fetch %s: %w", cfg.PositionID, err)
	}

	events, err := Replay(cfg, raw)
	if err != nil {
		return domain.LedgerSummary{}, err
	}

	rebuiltAt := s.now().UTC()
	periods := BuildPeriods(cfg.PositionID, events, rebuiltAt)

	costBasis, realized, collected := Totals(events)
	if len(events) > 0 {
		last := events[len(events)-1]
		if costBasis.Cmp(last.CostBasisAfter) != 0 || realized.Cmp(last.PnlAfter) != 0 {
			return domain.LedgerSummary{}, fmt.Errorf("ledger.Rebuild: %s: running totals diverge from deltas: %w",
				cfg.PositionID, domain.ErrDataCorrupt)
		}
	}

	if err := s.store.ReplaceLedger(ctx, cfg.PositionID, events, periods); err != nil {
		return domain.LedgerSummary{}, fmt.Errorf("ledger.Rebuild: commit %s: %w", cfg.PositionID, err)
	}
	if err := s.updateCostBasis(ctx, cfg.PositionID, costBasis); err != nil {
		return domain.LedgerSummary{}, err
	}

	return domain.LedgerSummary{
		PositionID:       cfg.PositionID,
		Events:           events,
		Periods:          periods,
		CurrentCostBasis: costBasis,
		RealizedPnl:      realized,
		CollectedFees:    collected,
		RebuiltAt:        rebuiltAt,
	}, nil
}

// updateCostBasis mirrors the replayed basis onto the position state row.
func (s *Service) updateCostBasis(ctx context.Context, positionID string, costBasis *big.Int) error {
	state, err := s.positions.GetState(ctx, positionID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil // state row appears on first refresh
		}
		return fmt.Errorf("ledger: load state %s: %w", positionID, err)
	}
	state.CostBasis = new(big.Int).Set(costBasis)
	if err := s.positions.SaveState(ctx, state); err != nil {
		return fmt.Errorf("ledger: save state %s: %w", positionID, err)
	}
	return nil
}

// runningState recomputes the running cost basis and liquidity from stored
// rows (they are persisted in ascending chain order).
func runningState(events []domain.LedgerEvent) (costBasis, liquidity *big.Int) {
	costBasis = new(big.Int)
	liquidity = new(big.Int)
	for _, ev := range events {
		costBasis.Set(ev.CostBasisAfter)
		switch ev.Type {
		case domain.EventIncrease:
			liquidity.Add(liquidity, ev.Liquidity)
		case domain.EventDecrease:
			liquidity.Sub(liquidity, ev.Liquidity)
		}
	}
	return costBasis, liquidity
}
