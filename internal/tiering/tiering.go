// Package tiering classifies knots into the hot/warm/cold cache tiers
// described in spec.md §4.7.
package tiering

import (
	"time"

	"github.com/knots/knots/internal/types"
)

// Tier is one of the three cache tiers a knot projection can live in.
type Tier int

const (
	Hot Tier = iota
	Warm
	Cold
)

func (t Tier) String() string {
	switch t {
	case Hot:
		return "hot"
	case Cold:
		return "cold"
	default:
		return "warm"
	}
}

// Classify determines the tier a knot belongs in given its state, the
// RFC3339 timestamp it was last updated at, the configured hot window (in
// days), and the current time.
//
// Terminal states are always Cold. Non-terminal states with an
// unparseable updated_at are Warm (never Hot, since recency cannot be
// confirmed). Otherwise a knot is Hot if updated_at falls within
// hotWindowDays of now, else Warm.
func Classify(state types.KnotState, updatedAt string, hotWindowDays int, now time.Time) Tier {
	if state.IsTerminal() {
		return Cold
	}

	updated, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return Warm
	}

	if hotWindowDays < 0 {
		hotWindowDays = 0
	}
	cutoff := now.Add(-time.Duration(hotWindowDays) * 24 * time.Hour)
	if !updated.Before(cutoff) {
		return Hot
	}
	return Warm
}
