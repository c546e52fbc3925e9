package rating_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/crux/rating-engine/rating"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func fifteenHundred(ids ...rating.AthleteID) map[rating.AthleteID]decimal.Decimal {
	m := make(map[rating.AthleteID]decimal.Decimal, len(ids))
	for _, id := range ids {
		m[id] = rating.InitialRating()
	}
	return m
}

func mustEqual(t *testing.T, got decimal.Decimal, want float64) {
	t.Helper()
	if !got.Equal(decimal.NewFromFloat(want)) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

// =============================================================================
// PAIRWISE UPDATE TESTS
// =============================================================================

func TestApply_TwoAthletes_ZeroSumSymmetry(t *testing.T) {
	// GIVEN: Two athletes at 1500, A ranked 1st, B ranked 2nd
	// WHEN: Applying the update
	// THEN: A gains exactly K*0.5 = 16, B loses exactly 16

	before := fifteenHundred("a", "b")
	after := rating.Apply(before, []rating.Placement{
		{AthleteID: "a", Rank: 1},
		{AthleteID: "b", Rank: 2},
	})

	mustEqual(t, after["a"], 1516)
	mustEqual(t, after["b"], 1484)

	gain := after["a"].Sub(before["a"])
	loss := before["b"].Sub(after["b"])
	if !gain.Equal(loss) {
		t.Errorf("expected symmetric exchange, gain %v != loss %v", gain, loss)
	}
}

func TestApply_SingleParticipant_NoChange(t *testing.T) {
	// A field of one has no pairs, so no movement.
	before := fifteenHundred("solo")
	after := rating.Apply(before, []rating.Placement{{AthleteID: "solo", Rank: 1}})

	mustEqual(t, after["solo"], 1500)
}

func TestApply_FullyTiedField_EqualRatings_NoChange(t *testing.T) {
	// GIVEN: Two athletes with equal pre-ratings tied at rank 1
	// THEN: Every pairwise S=0.5 cancels E=0.5, zero net movement

	before := fifteenHundred("a", "b")
	after := rating.Apply(before, []rating.Placement{
		{AthleteID: "a", Rank: 1},
		{AthleteID: "b", Rank: 1},
	})

	mustEqual(t, after["a"], 1500)
	mustEqual(t, after["b"], 1500)
}

func TestApply_FullyTiedField_UnequalRatings_RegressesTowardMean(t *testing.T) {
	// A tie between unequal ratings moves the favorite down and the
	// underdog up.
	before := map[rating.AthleteID]decimal.Decimal{
		"strong": decimal.NewFromInt(1700),
		"weak":   decimal.NewFromInt(1300),
	}
	after := rating.Apply(before, []rating.Placement{
		{AthleteID: "strong", Rank: 1},
		{AthleteID: "weak", Rank: 1},
	})

	if !after["strong"].LessThan(before["strong"]) {
		t.Errorf("expected favorite to lose rating on tie, got %v", after["strong"])
	}
	if !after["weak"].GreaterThan(before["weak"]) {
		t.Errorf("expected underdog to gain rating on tie, got %v", after["weak"])
	}
}

func TestApply_WinnerGainBoundedByFieldSize(t *testing.T) {
	// Normalizing by (N-1) keeps the winner's gain at exactly 16 for an
	// all-equal field of any size.
	for _, n := range []int{2, 3, 5, 8} {
		ids := make([]rating.AthleteID, n)
		placements := make([]rating.Placement, n)
		for i := range placements {
			ids[i] = rating.AthleteID(string(rune('a' + i)))
			placements[i] = rating.Placement{AthleteID: ids[i], Rank: i + 1}
		}

		after := rating.Apply(fifteenHundred(ids...), placements)
		if !after[ids[0]].Equal(decimal.NewFromInt(1516)) {
			t.Errorf("field size %d: expected winner at 1516, got %v", n, after[ids[0]])
		}
	}
}

func TestApply_IterationOrderIndependence(t *testing.T) {
	// GIVEN: A five-athlete field presented in several permutations
	// THEN: Results are bit-for-bit identical regardless of input order

	before := map[rating.AthleteID]decimal.Decimal{
		"a": decimal.NewFromInt(1620),
		"b": decimal.NewFromInt(1555),
		"c": decimal.NewFromInt(1500),
		"d": decimal.NewFromInt(1430),
		"e": decimal.NewFromInt(1390),
	}
	base := []rating.Placement{
		{AthleteID: "a", Rank: 2},
		{AthleteID: "b", Rank: 1},
		{AthleteID: "c", Rank: 3},
		{AthleteID: "d", Rank: 3},
		{AthleteID: "e", Rank: 5},
	}

	permutations := [][]int{
		{0, 1, 2, 3, 4},
		{4, 3, 2, 1, 0},
		{2, 0, 4, 1, 3},
		{1, 4, 0, 3, 2},
	}

	reference := rating.Apply(before, base)
	for _, perm := range permutations {
		shuffled := make([]rating.Placement, len(base))
		for i, idx := range perm {
			shuffled[i] = base[idx]
		}
		got := rating.Apply(before, shuffled)
		for id, want := range reference {
			if !got[id].Equal(want) {
				t.Errorf("permutation %v: athlete %s got %v, want %v", perm, id, got[id], want)
			}
		}
	}
}

func TestApply_DoesNotModifyInput(t *testing.T) {
	before := fifteenHundred("a", "b")
	rating.Apply(before, []rating.Placement{
		{AthleteID: "a", Rank: 1},
		{AthleteID: "b", Rank: 2},
	})

	mustEqual(t, before["a"], 1500)
	mustEqual(t, before["b"], 1500)
}

func TestApply_ResultsRoundedToTwoPlaces(t *testing.T) {
	// An uneven matchup produces a fractional delta; stored ratings carry
	// at most two decimal places.
	before := map[rating.AthleteID]decimal.Decimal{
		"favorite": decimal.NewFromInt(1600),
		"underdog": decimal.NewFromInt(1500),
	}
	after := rating.Apply(before, []rating.Placement{
		{AthleteID: "favorite", Rank: 1},
		{AthleteID: "underdog", Rank: 2},
	})

	for id, r := range after {
		if r.Exponent() < -rating.RoundPlaces {
			t.Errorf("athlete %s: rating %v has more than %d decimal places", id, r, rating.RoundPlaces)
		}
	}

	// Expected favorite gain: 32 * (1 - 1/(1+10^(-100/400))) ~= 11.52
	if !after["favorite"].Equal(decimal.NewFromFloat(1611.52)) {
		t.Errorf("expected favorite at 1611.52, got %v", after["favorite"])
	}
}
