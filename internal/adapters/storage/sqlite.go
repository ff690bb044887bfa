package storage

// sqlite.go: single-file persistence for positions, ledgers and close orders.
//
// Layout:
//   - `positions` / `position_state`: one row per tracked position; the state
//     row carries the refresh single-flight flag, flipped only inside a
//     conditional UPDATE.
//   - `ledger_events`: one row per accounted event, keyed by
//     (position, block, txIndex, logIndex). Append-only; a rebuild swaps the
//     whole sequence inside one transaction.
//   - `apr_periods`: rebuild by-product, replaced together with the events.
//   - `close_orders`: live orders only; a partial unique index keeps one
//     non-failed order per (position, order_type) slot.
//
// Big integers are stored as decimal TEXT; SQLite INTEGER is 64-bit and these
// are uint256.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
    position_id    TEXT PRIMARY KEY,
    protocol       TEXT    NOT NULL,
    chain_id       INTEGER NOT NULL,
    pool_address   TEXT    NOT NULL,
    nft_token_id   TEXT    NOT NULL DEFAULT '0',
    token0_address TEXT    NOT NULL,
    token0_dec     INTEGER NOT NULL,
    token0_symbol  TEXT    NOT NULL,
    token1_address TEXT    NOT NULL,
    token1_dec     INTEGER NOT NULL,
    token1_symbol  TEXT    NOT NULL,
    base_is_token0 INTEGER NOT NULL,
    fee_millionths INTEGER NOT NULL,
    tick_lower     INTEGER NOT NULL,
    tick_upper     INTEGER NOT NULL,
    owner_id       TEXT    NOT NULL,
    created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS position_state (
    position_id       TEXT PRIMARY KEY REFERENCES positions(position_id),
    liquidity         TEXT NOT NULL DEFAULT '0',
    fee_growth0_last  TEXT NOT NULL DEFAULT '0',
    fee_growth1_last  TEXT NOT NULL DEFAULT '0',
    tokens_owed0      TEXT NOT NULL DEFAULT '0',
    tokens_owed1      TEXT NOT NULL DEFAULT '0',
    unclaimed_fees0   TEXT NOT NULL DEFAULT '0',
    unclaimed_fees1   TEXT NOT NULL DEFAULT '0',
    cost_basis        TEXT NOT NULL DEFAULT '0',
    last_refreshed_at DATETIME,
    refreshing        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS ledger_events (
    position_id      TEXT    NOT NULL,
    block_number     INTEGER NOT NULL,
    tx_index         INTEGER NOT NULL,
    log_index        INTEGER NOT NULL,
    type             TEXT    NOT NULL,
    tx_hash          TEXT    NOT NULL,
    ts               DATETIME NOT NULL,
    amount0          TEXT    NOT NULL DEFAULT '0',
    amount1          TEXT    NOT NULL DEFAULT '0',
    liquidity        TEXT,
    sqrt_price       TEXT    NOT NULL,
    delta_cost_basis TEXT    NOT NULL,
    cost_basis_after TEXT    NOT NULL,
    delta_pnl        TEXT    NOT NULL,
    pnl_after        TEXT    NOT NULL,
    PRIMARY KEY (position_id, block_number, tx_index, log_index)
);

CREATE TABLE IF NOT EXISTS apr_periods (
    position_id         TEXT     NOT NULL,
    start_at            DATETIME NOT NULL,
    end_at              DATETIME NOT NULL,
    weighted_cost_basis TEXT     NOT NULL,
    yield_accrued       TEXT     NOT NULL,
    PRIMARY KEY (position_id, start_at)
);

CREATE TABLE IF NOT EXISTS close_orders (
    id                TEXT PRIMARY KEY,
    position_id       TEXT NOT NULL,
    order_type        TEXT NOT NULL,
    identity_hash     TEXT NOT NULL,
    trigger_tick      INTEGER NOT NULL,
    mode              TEXT NOT NULL,
    swap_target       TEXT,
    swap_slippage_bps INTEGER,
    state             TEXT NOT NULL,
    chain_status      TEXT NOT NULL,
    attempts          INTEGER NOT NULL DEFAULT 0,
    next_attempt_at   DATETIME,
    last_failure      TEXT NOT NULL DEFAULT '',
    cancel_requested  INTEGER NOT NULL DEFAULT 0,
    created_at        DATETIME NOT NULL,
    updated_at        DATETIME NOT NULL
);

-- One live order per slot; failed tombstones do not block re-registration.
CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_active_slot
    ON close_orders(position_id, order_type) WHERE state != 'failed';

CREATE INDEX IF NOT EXISTS idx_events_position ON ledger_events(position_id, block_number, tx_index, log_index);
CREATE INDEX IF NOT EXISTS idx_positions_owner ON positions(owner_id);
CREATE INDEX IF NOT EXISTS idx_orders_state    ON close_orders(state);
`

// SQLiteStore implements ports.PositionStore, ports.LedgerStore and
// ports.OrderStore on a single SQLite file (pure Go driver, no CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at the given path and applies
// the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database cleanly.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// --- ports.PositionStore ---

func (s *SQLiteStore) SaveConfig(ctx context.Context, cfg domain.PositionConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (position_id, protocol, chain_id, pool_address, nft_token_id,
			token0_address, token0_dec, token0_symbol, token1_address, token1_dec, token1_symbol,
			base_is_token0, fee_millionths, tick_lower, tick_upper, owner_id, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(position_id) DO NOTHING`,
		cfg.PositionID, string(cfg.Protocol), cfg.ChainID, cfg.PoolAddress, bigText(cfg.NFTTokenID),
		cfg.Token0.ID(), cfg.Token0.Decimals(), cfg.Token0.Symbol(),
		cfg.Token1.ID(), cfg.Token1.Decimals(), cfg.Token1.Symbol(),
		boolInt(cfg.BaseIsToken0), cfg.FeeMillionths, cfg.TickLower, cfg.TickUpper,
		cfg.OwnerID, cfg.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveConfig: %w", err)
	}
	// Seed the state row so the refresh claim has something to flip.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO position_state (position_id) VALUES (?)
		ON CONFLICT(position_id) DO NOTHING`, cfg.PositionID)
	if err != nil {
		return fmt.Errorf("storage.SaveConfig: seed state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetConfig(ctx context.Context, positionID string) (domain.PositionConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT position_id, protocol, chain_id, pool_address, nft_token_id,
			token0_address, token0_dec, token0_symbol, token1_address, token1_dec, token1_symbol,
			base_is_token0, fee_millionths, tick_lower, tick_upper, owner_id, created_at
		FROM positions WHERE position_id = ?`, positionID)
	return scanConfig(row)
}

func (s *SQLiteStore) ListConfigsByOwner(ctx context.Context, ownerID string) ([]domain.PositionConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position_id, protocol, chain_id, pool_address, nft_token_id,
			token0_address, token0_dec, token0_symbol, token1_address, token1_dec, token1_symbol,
			base_is_token0, fee_millionths, tick_lower, tick_upper, owner_id, created_at
		FROM positions WHERE owner_id = ? ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("storage.ListConfigsByOwner: %w", err)
	}
	defer rows.Close()

	var out []domain.PositionConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanConfig(row rowScanner) (domain.PositionConfig, error) {
	var (
		cfg             domain.PositionConfig
		protocol, nftID string
		t0Addr, t0Sym   string
		t1Addr, t1Sym   string
		t0Dec, t1Dec    uint8
		baseIsToken0    int
	)
	err := row.Scan(&cfg.PositionID, &protocol, &cfg.ChainID, &cfg.PoolAddress, &nftID,
		&t0Addr, &t0Dec, &t0Sym, &t1Addr, &t1Dec, &t1Sym,
		&baseIsToken0, &cfg.FeeMillionths, &cfg.TickLower, &cfg.TickUpper,
		&cfg.OwnerID, &cfg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PositionConfig{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PositionConfig{}, fmt.Errorf("storage: scan position: %w", err)
	}
	cfg.Protocol = domain.Protocol(protocol)
	cfg.NFTTokenID = textBig(nftID)
	cfg.Token0 = domain.Erc20{ChainID: cfg.ChainID, Address: t0Addr, Dec: t0Dec, Ticker: t0Sym}
	cfg.Token1 = domain.Erc20{ChainID: cfg.ChainID, Address: t1Addr, Dec: t1Dec, Ticker: t1Sym}
	cfg.BaseIsToken0 = baseIsToken0 != 0
	return cfg, nil
}

func (s *SQLiteStore) GetState(ctx context.Context, positionID string) (domain.PositionState, error) {
	var (
		st                      domain.PositionState
		liq, fg0, fg1, ow0, ow1 string
		uf0, uf1, basis         string
		refreshedAt             sql.NullTime
		refreshing              int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT position_id, liquidity, fee_growth0_last, fee_growth1_last,
			tokens_owed0, tokens_owed1, unclaimed_fees0, unclaimed_fees1,
			cost_basis, last_refreshed_at, refreshing
		FROM position_state WHERE position_id = ?`, positionID).
		Scan(&st.PositionID, &liq, &fg0, &fg1, &ow0, &ow1, &uf0, &uf1, &basis, &refreshedAt, &refreshing)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PositionState{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PositionState{}, fmt.Errorf("storage.GetState: %w", err)
	}
	st.Liquidity = textBig(liq)
	st.FeeGrowthInside0LastX128 = textBig(fg0)
	st.FeeGrowthInside1LastX128 = textBig(fg1)
	st.TokensOwed0 = textBig(ow0)
	st.TokensOwed1 = textBig(ow1)
	st.UnclaimedFees0 = textBig(uf0)
	st.UnclaimedFees1 = textBig(uf1)
	st.CostBasis = textBig(basis)
	if refreshedAt.Valid {
		st.LastRefreshedAt = refreshedAt.Time
	}
	st.Refreshing = refreshing != 0
	return st, nil
}

func (s *SQLiteStore) SaveState(ctx context.Context, st domain.PositionState) error {
	var refreshedAt any
	if !st.LastRefreshedAt.IsZero() {
		refreshedAt = st.LastRefreshedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO position_state (position_id, liquidity, fee_growth0_last, fee_growth1_last,
			tokens_owed0, tokens_owed1, unclaimed_fees0, unclaimed_fees1, cost_basis, last_refreshed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(position_id) DO UPDATE SET
			liquidity = excluded.liquidity,
			fee_growth0_last = excluded.fee_growth0_last,
			fee_growth1_last = excluded.fee_growth1_last,
			tokens_owed0 = excluded.tokens_owed0,
			tokens_owed1 = excluded.tokens_owed1,
			unclaimed_fees0 = excluded.unclaimed_fees0,
			unclaimed_fees1 = excluded.unclaimed_fees1,
			cost_basis = excluded.cost_basis,
			last_refreshed_at = excluded.last_refreshed_at`,
		st.PositionID, bigText(st.Liquidity), bigText(st.FeeGrowthInside0LastX128),
		bigText(st.FeeGrowthInside1LastX128), bigText(st.TokensOwed0), bigText(st.TokensOwed1),
		bigText(st.UnclaimedFees0), bigText(st.UnclaimedFees1), bigText(st.CostBasis), refreshedAt,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveState: %w", err)
	}
	return nil
}

// TryBeginRefresh claims the single-flight slot with one conditional UPDATE.
// SQLite serializes writers, so exactly one concurrent caller sees a row flip.
func (s *SQLiteStore) TryBeginRefresh(ctx context.Context, positionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE position_state SET refreshing = 1 WHERE position_id = ? AND refreshing = 0`,
		positionID)
	if err != nil {
		return false, fmt.Errorf("storage.TryBeginRefresh: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage.TryBeginRefresh: %w", err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) EndRefresh(ctx context.Context, positionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE position_state SET refreshing = 0 WHERE position_id = ?`, positionID)
	if err != nil {
		return fmt.Errorf("storage.EndRefresh: %w", err)
	}
	return nil
}

// ReleaseRefreshClaims drops every persisted refresh claim. A claim that
// survived a crash has no owner anymore.
func (s *SQLiteStore) ReleaseRefreshClaims(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE position_state SET refreshing = 0 WHERE refreshing = 1`)
	if err != nil {
		return fmt.Errorf("storage.ReleaseRefreshClaims: %w", err)
	}
	return nil
}

// OldestRefreshByOwner returns the refresh watermark of the owner's
// least-recently-refreshed position. A position that was never refreshed is
// the oldest and reads as the zero watermark.
func (s *SQLiteStore) OldestRefreshByOwner(ctx context.Context, ownerID string) (time.Time, error) {
	// MIN() strips the column's declared DATETIME type and the driver hands
	// the aggregate back as a string, so select the raw column instead; NULL
	// sorts first under ASC.
	var oldest sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT s.last_refreshed_at
		FROM positions p LEFT JOIN position_state s ON s.position_id = p.position_id
		WHERE p.owner_id = ?
		ORDER BY s.last_refreshed_at ASC
		LIMIT 1`, ownerID).Scan(&oldest)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("storage.OldestRefreshByOwner: %w", err)
	}
	if !oldest.Valid {
		return time.Time{}, nil
	}
	return oldest.Time, nil
}

// --- ports.LedgerStore ---

func (s *SQLiteStore) AppendEvent(ctx context.Context, ev domain.LedgerEvent) error {
	_, err := s.db.ExecContext(ctx, insertEventSQL, eventArgs(ev)...)
	if err != nil {
		return fmt.Errorf("storage.AppendEvent: %w", err)
	}
	return nil
}

const insertEventSQL = `
	INSERT INTO ledger_events (position_id, block_number, tx_index, log_index, type, tx_hash, ts,
		amount0, amount1, liquidity, sqrt_price, delta_cost_basis, cost_basis_after, delta_pnl, pnl_after)
	VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

func eventArgs(ev domain.LedgerEvent) []any {
	var liq any
	if ev.Liquidity != nil {
		liq = ev.Liquidity.String()
	}
	return []any{
		ev.PositionID, ev.BlockNumber, ev.TxIndex, ev.LogIndex, string(ev.Type), ev.TxHash,
		ev.Timestamp.UTC(), bigText(ev.Amount0), bigText(ev.Amount1), liq,
		bigText(ev.SqrtPriceX96), bigText(ev.DeltaCostBasis), bigText(ev.CostBasisAfter),
		bigText(ev.DeltaPnl), bigText(ev.PnlAfter),
	}
}

func (s *SQLiteStore) ListEvents(ctx context.Context, positionID string) ([]domain.LedgerEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position_id, block_number, tx_index, log_index, type, tx_hash, ts,
			amount0, amount1, liquidity, sqrt_price, delta_cost_basis, cost_basis_after, delta_pnl, pnl_after
		FROM ledger_events WHERE position_id = ?
		ORDER BY block_number, tx_index, log_index`, positionID)
	if err != nil {
		return nil, fmt.Errorf("storage.ListEvents: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEvent
	for rows.Next() {
		var (
			ev                              domain.LedgerEvent
			evType                          string
			a0, a1, sqrtP, dcb, cba, dp, pa string
			liq                             sql.NullString
		)
		if err := rows.Scan(&ev.PositionID, &ev.BlockNumber, &ev.TxIndex, &ev.LogIndex,
			&evType, &ev.TxHash, &ev.Timestamp, &a0, &a1, &liq, &sqrtP, &dcb, &cba, &dp, &pa); err != nil {
			return nil, fmt.Errorf("storage.ListEvents: scan: %w", err)
		}
		ev.Type = domain.LedgerEventType(evType)
		ev.Amount0 = textBig(a0)
		ev.Amount1 = textBig(a1)
		if liq.Valid {
			ev.Liquidity = textBig(liq.String)
		}
		ev.SqrtPriceX96 = textBig(sqrtP)
		ev.DeltaCostBasis = textBig(dcb)
		ev.CostBasisAfter = textBig(cba)
		ev.DeltaPnl = textBig(dp)
		ev.PnlAfter = textBig(pa)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListPeriods(ctx context.Context, positionID string) ([]domain.AprPeriod, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position_id, start_at, end_at, weighted_cost_basis, yield_accrued
		FROM apr_periods WHERE position_id = ? ORDER BY start_at`, positionID)
	if err != nil {
		return nil, fmt.Errorf("storage.ListPeriods: %w", err)
	}
	defer rows.Close()

	var out []domain.AprPeriod
	for rows.Next() {
		var (
			p          domain.AprPeriod
			wcb, yield string
		)
		if err := rows.Scan(&p.PositionID, &p.StartAt, &p.EndAt, &wcb, &yield); err != nil {
			return nil, fmt.Errorf("storage.ListPeriods: scan: %w", err)
		}
		p.WeightedCostBasis = textBig(wcb)
		p.YieldAccrued = textBig(yield)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReplaceLedger swaps the full event sequence and APR periods in one
// transaction. A failure at any point rolls back to the previous ledger.
func (s *SQLiteStore) ReplaceLedger(ctx context.Context, positionID string, events []domain.LedgerEvent, periods []domain.AprPeriod) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.ReplaceLedger: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_events WHERE position_id = ?`, positionID); err != nil {
		return fmt.Errorf("storage.ReplaceLedger: clear events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM apr_periods WHERE position_id = ?`, positionID); err != nil {
		return fmt.Errorf("storage.ReplaceLedger: clear periods: %w", err)
	}
	for _, ev := range events {
		if _, err := tx.ExecContext(ctx, insertEventSQL, eventArgs(ev)...); err != nil {
			return fmt.Errorf("storage.ReplaceLedger: insert event %d/%d/%d: %w",
				ev.BlockNumber, ev.TxIndex, ev.LogIndex, err)
		}
	}
	for _, p := range periods {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO apr_periods (position_id, start_at, end_at, weighted_cost_basis, yield_accrued)
			VALUES (?,?,?,?,?)`,
			p.PositionID, p.StartAt.UTC(), p.EndAt.UTC(), bigText(p.WeightedCostBasis), bigText(p.YieldAccrued)); err != nil {
			return fmt.Errorf("storage.ReplaceLedger: insert period: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.ReplaceLedger: commit: %w", err)
	}
	return nil
}

// --- ports.OrderStore ---

func (s *SQLiteStore) CreateOrder(ctx context.Context, o domain.CloseOrder) error {
	var target any
	var slippage any
	if o.SwapIntent != nil {
		target = o.SwapIntent.TargetCurrency
		slippage = o.SwapIntent.MaxSlippageBps
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO close_orders (id, position_id, order_type, identity_hash, trigger_tick, mode,
			swap_target, swap_slippage_bps, state, chain_status, attempts, next_attempt_at,
			last_failure, cancel_requested, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.PositionID, string(o.OrderType), o.IdentityHash, o.TriggerTick, string(o.Mode),
		target, slippage, string(o.State), string(o.ChainStatus), o.Attempts, nullTime(o.NextAttemptAt),
		o.LastFailure, boolInt(o.CancelRequested), o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.ErrDuplicateActiveSlot
		}
		return fmt.Errorf("storage.CreateOrder: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetOrder(ctx context.Context, orderID string) (domain.CloseOrder, error) {
	row := s.db.QueryRowContext(ctx, selectOrderSQL+` WHERE id = ?`, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CloseOrder{}, domain.ErrNotFound
	}
	return o, err
}

const selectOrderSQL = `
	SELECT id, position_id, order_type, identity_hash, trigger_tick, mode,
		swap_target, swap_slippage_bps, state, chain_status, attempts, next_attempt_at,
		last_failure, cancel_requested, created_at, updated_at
	FROM close_orders`

func scanOrder(row rowScanner) (domain.CloseOrder, error) {
	var (
		o                  domain.CloseOrder
		orderType, mode    string
		state, chainStatus string
		target             sql.NullString
		slippage           sql.NullInt64
		nextAt             sql.NullTime
		cancelRequested    int
	)
	err := row.Scan(&o.ID, &o.PositionID, &orderType, &o.IdentityHash, &o.TriggerTick, &mode,
		&target, &slippage, &state, &chainStatus, &o.Attempts, &nextAt,
		&o.LastFailure, &cancelRequested, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.CloseOrder{}, err
	}
	o.OrderType = domain.OrderType(orderType)
	o.Mode = domain.TriggerMode(mode)
	o.State = domain.AutomationState(state)
	o.ChainStatus = domain.OnChainOrderStatus(chainStatus)
	if target.Valid {
		o.SwapIntent = &domain.SwapIntent{
			TargetCurrency: target.String,
			MaxSlippageBps: uint32(slippage.Int64),
		}
	}
	if nextAt.Valid {
		o.NextAttemptAt = nextAt.Time
	}
	o.CancelRequested = cancelRequested != 0
	return o, nil
}

// ListOpenOrders returns every non-terminal order, oldest first.
func (s *SQLiteStore) ListOpenOrders(ctx context.Context) ([]domain.CloseOrder, error) {
	rows, err := s.db.QueryContext(ctx,
		selectOrderSQL+` WHERE state IN ('monitoring','executing','retrying') ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListOpenOrders: %w", err)
	}
	defer rows.Close()

	var out []domain.CloseOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListOpenOrders: scan: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateOrder(ctx context.Context, o domain.CloseOrder) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE close_orders SET state = ?, chain_status = ?, attempts = ?,
			next_attempt_at = ?, last_failure = ?, cancel_requested = ?, updated_at = ?
		WHERE id = ?`,
		string(o.State), string(o.ChainStatus), o.Attempts,
		nullTime(o.NextAttemptAt), o.LastFailure, boolInt(o.CancelRequested), o.UpdatedAt.UTC(),
		o.ID)
	if err != nil {
		return fmt.Errorf("storage.UpdateOrder: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) RequestCancel(ctx context.Context, orderID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE close_orders SET cancel_requested = 1 WHERE id = ?`, orderID)
	if err != nil {
		return fmt.Errorf("storage.RequestCancel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) PurgeOrder(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM close_orders WHERE id = ?`, orderID)
	if err != nil {
		return fmt.Errorf("storage.PurgeOrder: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PruneFailedBefore(ctx context.Context, cutoff time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM close_orders WHERE state = 'failed' AND updated_at < ?`, cutoff.UTC())
	if err != nil {
		return fmt.Errorf("storage.PruneFailedBefore: %w", err)
	}
	return nil
}

// --- helpers ---

func bigText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func textBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
