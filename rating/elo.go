/*
elo.go - Pairwise ELO update for multi-competitor fields

PURPOSE:
  Given the pre-competition ratings of all participants in one competition
  and their final ranks, compute post-competition ratings. Classic pairwise
  ELO exchange generalized to a ranked field: every unordered pair of
  athletes is scored as a head-to-head, and each athlete's delta is the sum
  of its pairwise contributions normalized by (N-1) so total movement stays
  bounded regardless of field size.

DETERMINISM:
  Pairwise contributions are summed in canonical order (sorted by athlete
  id) and the result is rounded once, to two decimal places, at the very
  end. Iteration order of the input map never affects the outcome.

EDGE CASES:
  - Single participant: no pairs, rating unchanged
  - Tied ranks: both sides score 0.5
  - Unknown athlete: callers seed exactly InitialRating (1500)

SEE ALSO:
  - replay.go: Applies this function in chronological order
*/
package rating

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

const (
	// DefaultKFactor bounds the maximum rating movement per pairwise
	// comparison.
	DefaultKFactor = 32.0

	// ratingScale is the ELO logistic scale: a 400-point gap means a 10:1
	// expected score ratio.
	ratingScale = 400.0

	// RoundPlaces is the fixed-point precision ratings are rounded to.
	// Rounding happens once per snapshot, never on intermediate sums.
	RoundPlaces = 2
)

// InitialRating returns the rating of an athlete never seen before.
// Exactly 1500.
func InitialRating() decimal.Decimal {
	return decimal.NewFromInt(1500)
}

// Params holds the tunable constants of the update function.
type Params struct {
	K       float64
	Initial decimal.Decimal
}

// DefaultParams returns K=32, initial=1500.
func DefaultParams() Params {
	return Params{K: DefaultKFactor, Initial: InitialRating()}
}

// Apply computes post-competition ratings for every participant.
//
// ratingsBefore must contain an entry for every athlete in placements
// (callers seed p.Initial for first appearances). The returned map contains
// rating_after for exactly the athletes in placements, rounded to
// RoundPlaces. The input map is never modified.
func (p Params) Apply(ratingsBefore map[AthleteID]decimal.Decimal, placements []Placement) map[AthleteID]decimal.Decimal {
	after := make(map[AthleteID]decimal.Decimal, len(placements))

	// Canonical order: sorted by athlete id. Keeps floating accumulation
	// identical across runs regardless of input order.
	field := make([]Placement, len(placements))
	copy(field, placements)
	sort.Slice(field, func(i, j int) bool { return field[i].AthleteID < field[j].AthleteID })

	n := len(field)
	if n <= 1 {
		// No pairs: ratings unchanged.
		for _, pl := range field {
			after[pl.AthleteID] = ratingsBefore[pl.AthleteID]
		}
		return after
	}

	ratings := make([]float64, n)
	for i, pl := range field {
		f, _ := ratingsBefore[pl.AthleteID].Float64()
		ratings[i] = f
	}

	norm := float64(n - 1)
	for i, pl := range field {
		delta := 0.0
		for j, opp := range field {
			if i == j {
				continue
			}
			expected := 1.0 / (1.0 + math.Pow(10, (ratings[j]-ratings[i])/ratingScale))
			actual := 0.5
			switch {
			case pl.Rank < opp.Rank:
				actual = 1.0
			case pl.Rank > opp.Rank:
				actual = 0.0
			}
			delta += p.K * (actual - expected) / norm
		}
		raw := ratingsBefore[pl.AthleteID].Add(decimal.NewFromFloat(delta))
		after[pl.AthleteID] = raw.Round(RoundPlaces)
	}
	return after
}

// Apply is the package-level update with default parameters (K=32,
// initial=1500).
func Apply(ratingsBefore map[AthleteID]decimal.Decimal, placements []Placement) map[AthleteID]decimal.Decimal {
	return DefaultParams().Apply(ratingsBefore, placements)
}
