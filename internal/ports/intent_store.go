package ports

import (
	"context"

	"github.com/alejandrodnm/lpkeeper/internal/domain"
)

// IntentStore yields the currently-valid signed strategy intent for an owner.
// Signature verification happens on the store side; the engine trusts what it
// returns but still checks expiry.
type IntentStore interface {
	// CurrentIntent returns domain.ErrNotFound when the owner has no valid
	// signed intent on file.
	CurrentIntent(ctx context.Context, ownerID string) (domain.StrategyIntent, error)
}
