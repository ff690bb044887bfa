package ports

import (
	"context"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
	"github.com/alejandrodnm/lpkeeper/internal/position"
)

// PositionRow is one position's refreshed view for reporting.
type PositionRow struct {
	Config  domain.PositionConfig
	Metrics position.Metrics
	Orders  []domain.CloseOrder
}

// Notifier presents cycle results to the user.
type Notifier interface {
	// Notify renders the refreshed positions and any order transitions that
	// fired during the cycle.
	Notify(ctx context.Context, rows []PositionRow, transitions []domain.Transition) error
}
