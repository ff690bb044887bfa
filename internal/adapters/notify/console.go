package notify

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
	"github.com/alejandrodnm/lpkeeper/internal/ports"
)

// Console implements ports.Notifier on stdout.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole creates a console notifier. With table=false it prints a compact
// one-line summary per cycle.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter creates a notifier writing to w, for tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify renders the refreshed positions and the cycle's order transitions.
func (c *Console) Notify(_ context.Context, rows []ports.PositionRow, transitions []domain.Transition) error {
	now := time.Now().Format("15:04:05")
	if len(rows) == 0 {
		fmt.Fprintf(c.out, "[%s] no positions refreshed\n", now)
		return nil
	}

	if !c.table {
		c.printCompact(now, rows, transitions)
		return nil
	}

	c.printTable(rows)
	c.printTransitions(transitions)
	return nil
}

func (c *Console) printCompact(now string, rows []ports.PositionRow, transitions []domain.Transition) {
	inRange := 0
	for _, r := range rows {
		if r.Metrics.Phase == domain.PhaseInRange {
			inRange++
		}
	}
	fmt.Fprintf(c.out, "[%s] %d positions (%d in range), %d order transitions\n",
		now, len(rows), inRange, len(transitions))
}

func (c *Console) printTable(rows []ports.PositionRow) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Position", "Pair", "Phase", "Value", "Cost basis", "uPnL", "Fees", "Orders")

	for _, r := range rows {
		dec := int32(r.Config.QuoteDecimals())
		table.Append(
			shortID(r.Config.PositionID),
			r.Config.Token0.Symbol()+"/"+r.Config.Token1.Symbol(),
			string(r.Metrics.Phase),
			human(r.Metrics.CurrentValue, dec),
			human(r.Metrics.CostBasis, dec),
			human(r.Metrics.UnrealizedPnl, dec),
			human(r.Metrics.UnclaimedFees, dec),
			fmt.Sprintf("%d", len(r.Orders)),
		)
	}
	table.Render()
}

func (c *Console) printTransitions(transitions []domain.Transition) {
	if len(transitions) == 0 {
		return
	}
	fmt.Fprintln(c.out, "\nOrder transitions:")
	for _, tr := range transitions {
		fmt.Fprintf(c.out, "  %s %s: %s -> %s (%s)\n",
			shortID(tr.PositionID), tr.OrderType, tr.From, tr.To, tr.Reason)
	}
}

// human renders a raw quote amount as a decimal string. Display only.
func human(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).StringFixed(4)
}

func shortID(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:10]
}
