package domain

import "time"

// StrategyIntent is the user's currently-valid signed strategy: the allow list
// of currencies and effects an automated close is permitted to touch. Produced
// and verified elsewhere; the state machine only checks orders against it.
type StrategyIntent struct {
	OwnerID           string
	AllowedCurrencies []string // canonical currency IDs
	AllowedEffects    []string // e.g. "close", "swap"
	ExpiresAt         time.Time
}

// Valid reports whether the intent is usable at the given instant.
func (i StrategyIntent) Valid(now time.Time) bool {
	return now.Before(i.ExpiresAt)
}

// AllowsEffect reports whether the named effect is in the allow list.
func (i StrategyIntent) AllowsEffect(effect string) bool {
	for _, e := range i.AllowedEffects {
		if e == effect {
			return true
		}
	}
	return false
}

// AllowsCurrency reports whether the currency ID is in the allow list.
func (i StrategyIntent) AllowsCurrency(id string) bool {
	for _, c := range i.AllowedCurrencies {
		if c == id {
			return true
		}
	}
	return false
}
