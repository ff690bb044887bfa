// Package chain provides an in-memory, deterministic stand-in for the chain
// collaborators (price source, position reader, event source, order registry,
// signer, intent store). Used by -dry-run and by tests; the real RPC adapters
// live outside this repo and satisfy the same ports.
package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
	"github.com/alejandrodnm/lpkeeper/internal/ports"
)

// Fixture holds scripted chain data. Safe for concurrent use.
type Fixture struct {
	mu sync.RWMutex

	pools    map[string]domain.PoolState          // chainID/pool -> latest
	states   map[string]domain.PositionState      // positionID -> state
	events   map[string][]domain.RawEvent         // positionID -> events
	statuses map[string]domain.OnChainOrderStatus // identityHash -> status
	intents  map[string]domain.StrategyIntent     // ownerID -> intent

	// signErrs scripts the next signer failures; nil entries succeed.
	signMu     sync.Mutex
	signErrs   []error
	SignedKeys []string // idempotency keys seen, in order
}

// NewFixture returns an empty fixture.
func NewFixture() *Fixture {
	return &Fixture{
		pools:    make(map[string]domain.PoolState),
		states:   make(map[string]domain.PositionState),
		events:   make(map[string][]domain.RawEvent),
		statuses: make(map[string]domain.OnChainOrderStatus),
		intents:  make(map[string]domain.StrategyIntent),
	}
}

func poolKey(chainID uint64, pool string) string {
	return fmt.Sprintf("%d/%s", chainID, pool)
}

// SetPool scripts the latest pool observation.
func (f *Fixture) SetPool(p domain.PoolState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pools[poolKey(p.ChainID, p.PoolAddress)] = p
}

// SetPositionState scripts a position's on-chain state.
func (f *Fixture) SetPositionState(st domain.PositionState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[st.PositionID] = st
}

// SetEvents scripts a position's event history.
func (f *Fixture) SetEvents(positionID string, evs []domain.RawEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[positionID] = evs
}

// SetOrderStatus scripts the registry status for an order identity.
func (f *Fixture) SetOrderStatus(identityHash string, st domain.OnChainOrderStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[identityHash] = st
}

// SetIntent scripts an owner's signed strategy intent.
func (f *Fixture) SetIntent(i domain.StrategyIntent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[i.OwnerID] = i
}

// ScriptSignFailures queues signer outcomes; each SignAndBroadcast consumes
// one (nil = success). When the queue is empty every call succeeds.
func (f *Fixture) ScriptSignFailures(errs ...error) {
	f.signMu.Lock()
	defer f.signMu.Unlock()
	f.signErrs = append(f.signErrs, errs...)
}

// --- ports.PoolPriceSource ---

func (f *Fixture) Latest(_ context.Context, chainID uint64, pool string) (domain.PoolState, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.pools[poolKey(chainID, pool)]
	if !ok {
		return domain.PoolState{}, domain.ErrChainUnavailable
	}
	return p, nil
}

func (f *Fixture) AtBlock(ctx context.Context, chainID uint64, pool string, _ uint64) (domain.PoolState, error) {
	return f.Latest(ctx, chainID, pool)
}

// --- ports.PositionSource ---

func (f *Fixture) State(_ context.Context, cfg domain.PositionConfig) (domain.PositionState, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	st, ok := f.states[cfg.PositionID]
	if !ok {
		return domain.PositionState{}, domain.ErrNotFound
	}
	return st, nil
}

// --- ports.RawEventSource ---

func (f *Fixture) PositionEvents(_ context.Context, cfg domain.PositionConfig) ([]domain.RawEvent, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	evs, ok := f.events[cfg.PositionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := make([]domain.RawEvent, len(evs))
	copy(out, evs)
	return out, nil
}

// --- ports.OrderStatusSource ---

func (f *Fixture) Status(_ context.Context, identityHash string) (domain.OnChainOrderStatus, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if st, ok := f.statuses[identityHash]; ok {
		return st, nil
	}
	return domain.ChainStatusActive, nil
}

// --- ports.Signer ---

func (f *Fixture) SignAndBroadcast(_ context.Context, intent ports.CloseIntent) (ports.BroadcastResult, error) {
	f.signMu.Lock()
	defer f.signMu.Unlock()
	f.SignedKeys = append(f.SignedKeys, intent.IdempotencyKey)
	if len(f.signErrs) > 0 {
		err := f.signErrs[0]
		f.signErrs = f.signErrs[1:]
		if err != nil {
			return ports.BroadcastResult{}, err
		}
	}
	return ports.BroadcastResult{TxHash: "0xfixture-" + intent.IdempotencyKey[:8]}, nil
}

// --- ports.IntentStore ---

func (f *Fixture) CurrentIntent(_ context.Context, ownerID string) (domain.StrategyIntent, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	i, ok := f.intents[ownerID]
	if !ok {
		return domain.StrategyIntent{}, domain.ErrNotFound
	}
	return i, nil
}

// AdvanceTick mutates a scripted pool's tick, for dry-run loops that want the
// price to drift over time.
func (f *Fixture) AdvanceTick(chainID uint64, pool string, tick int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := poolKey(chainID, pool)
	p := f.pools[key]
	p.CurrentTick = tick
	p.ObservedAt = time.Now()
	f.pools[key] = p
}
