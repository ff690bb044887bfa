package keeper_test

import (
	"bytes"
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/lpkeeper/internal/adapters/chain"
	"github.com/alejandrodnm/lpkeeper/internal/adapters/notify"
	"github.com/alejandrodnm/lpkeeper/internal/adapters/storage"
	"github.com/alejandrodnm/lpkeeper/internal/application/keeper"
	"github.com/alejandrodnm/lpkeeper/internal/closeout"
	"github.com/alejandrodnm/lpkeeper/internal/domain"
	"github.com/alejandrodnm/lpkeeper/internal/ledger"
	"github.com/alejandrodnm/lpkeeper/internal/refresh"
	"github.com/alejandrodnm/lpkeeper/internal/univ3"
)

const (
	keeperOwner = "owner-1"
	keeperPool  = "0xpool"
)

type keeperHarness struct {
	keeper  *keeper.Keeper
	store   *storage.SQLiteStore
	fixture *chain.Fixture
	out     *bytes.Buffer
	cfg     domain.PositionConfig
}

func newKeeperHarness(t *testing.T) *keeperHarness {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fixture := chain.NewFixture()
	cfg := domain.PositionConfig{
		PositionID:   "pos-1",
		Protocol:     domain.ProtocolUniswapV3,
		ChainID:      1,
		PoolAddress:  keeperPool,
		Token0:       domain.Erc20{ChainID: 1, Address: "0xaaaa", Dec: 6, Ticker: "USDC"},
		Token1:       domain.Erc20{ChainID: 1, Address: "0xbbbb", Dec: 18, Ticker: "WETH"},
		BaseIsToken0: false,
		TickLower:    199120,
		TickUpper:    201120,
		OwnerID:      keeperOwner,
	}
	require.NoError(t, store.SaveConfig(context.Background(), cfg))

	sqrtP, err := univ3.TickToSqrtPrice(200120)
	require.NoError(t, err)
	fixture.SetPool(domain.PoolState{
		ChainID:      1,
		PoolAddress:  keeperPool,
		SqrtPriceX96: sqrtP,
		CurrentTick:  200120,
		Liquidity:    big.NewInt(1),
		ObservedAt:   time.Now(),
	})
	fixture.SetPositionState(domain.PositionState{
		PositionID:  "pos-1",
		Liquidity:   big.NewInt(5_000_000_000),
		TokensOwed0: big.NewInt(12_000_000),
	})
	fixture.SetEvents("pos-1", []domain.RawEvent{{
		PositionID:   "pos-1",
		Type:         domain.EventIncrease,
		BlockNumber:  1,
		TxHash:       "0xtx1",
		Timestamp:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Amount0:      big.NewInt(1000),
		Amount1:      big.NewInt(0),
		Liquidity:    big.NewInt(1000),
		SqrtPriceX96: new(big.Int).Set(univ3.Q96),
	}})

	out := &bytes.Buffer{}
	k := keeper.New(
		refresh.New(store, fixture, fixture),
		ledger.New(fixture, store, store),
		closeout.NewRunner(store, store, fixture, fixture, fixture, fixture, closeout.DefaultConfig()),
		store, store, store,
		notify.NewConsoleWriter(out, false),
		7*24*time.Hour,
	)
	return &keeperHarness{keeper: k, store: store, fixture: fixture, out: out, cfg: cfg}
}

func TestKeeper_RefreshAttachesOrders(t *testing.T) {
	h := newKeeperHarness(t)
	ctx := context.Background()

	_, err := h.keeper.RegisterOrder(ctx, "pos-1", domain.OrderStopLoss, 199000, domain.TriggerLower, nil)
	require.NoError(t, err)

	row, err := h.keeper.Refresh(ctx, "pos-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseInRange, row.Metrics.Phase)
	require.Len(t, row.Orders, 1)
	assert.Equal(t, domain.OrderStopLoss, row.Orders[0].OrderType)
}

func TestKeeper_RebuildLedger(t *testing.T) {
	h := newKeeperHarness(t)
	ctx := context.Background()

	summary, err := h.keeper.RebuildLedger(ctx, "pos-1")
	require.NoError(t, err)
	assert.Equal(t, "1000", summary.CurrentCostBasis.String())

	events, periods, err := h.keeper.LedgerView(ctx, "pos-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.NotEmpty(t, periods)

	_, err = h.keeper.RebuildLedger(ctx, "ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestKeeper_RunCycleNotifies(t *testing.T) {
	h := newKeeperHarness(t)
	ctx := context.Background()

	require.NoError(t, h.keeper.RunCycle(ctx, keeperOwner))
	assert.Contains(t, h.out.String(), "1 positions")
}

func TestKeeper_EvaluateOrdersExecutes(t *testing.T) {
	h := newKeeperHarness(t)
	ctx := context.Background()

	o, err := h.keeper.RegisterOrder(ctx, "pos-1", domain.OrderTakeProfit, 201000, domain.TriggerUpper, nil)
	require.NoError(t, err)

	trs, err := h.keeper.EvaluateOrders(ctx, 201500)
	require.NoError(t, err)
	require.Len(t, trs, 1)
	assert.Equal(t, o.ID, trs[0].OrderID)
	assert.Equal(t, domain.StateExecuted, trs[0].To)
}

func TestKeeper_CancelOrder(t *testing.T) {
	h := newKeeperHarness(t)
	ctx := context.Background()

	o, err := h.keeper.RegisterOrder(ctx, "pos-1", domain.OrderStopLoss, 199000, domain.TriggerLower, nil)
	require.NoError(t, err)
	require.NoError(t, h.keeper.CancelOrder(ctx, o.ID))

	trs, err := h.keeper.EvaluateOrders(ctx, 198000)
	require.NoError(t, err)
	require.Len(t, trs, 1)
	assert.Equal(t, domain.StateCancelled, trs[0].To)
}

func TestKeeper_StartupReleasesRefreshClaims(t *testing.T) {
	h := newKeeperHarness(t)
	ctx := context.Background()

	// A crash between claim and release leaves the flag persisted.
	claimed, err := h.store.TryBeginRefresh(ctx, "pos-1")
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, h.keeper.Startup(ctx))

	_, err = h.keeper.Refresh(ctx, "pos-1")
	require.NoError(t, err, "orphaned claim must not wedge the position")
}

func TestKeeper_StartupPrunesAndRecovers(t *testing.T) {
	h := newKeeperHarness(t)
	ctx := context.Background()

	o, err := h.keeper.RegisterOrder(ctx, "pos-1", domain.OrderStopLoss, 199000, domain.TriggerLower, nil)
	require.NoError(t, err)
	o.State = domain.StateFailed
	o.UpdatedAt = time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, h.store.UpdateOrder(ctx, o))

	require.NoError(t, h.keeper.Startup(ctx))

	_, err = h.store.GetOrder(ctx, o.ID)
	require.ErrorIs(t, err, domain.ErrNotFound, "old failed tombstones pruned at startup")
}
