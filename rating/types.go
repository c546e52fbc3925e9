/*
Package rating provides the core incremental ELO rating engine.

PURPOSE:
  This package contains the types and algorithms for deriving per-athlete
  skill ratings from climbing competition results. Competitions are replayed
  in chronological order; every competition an athlete participates in
  produces one immutable RatingSnapshot, and the athlete's current rating is
  always the rating_after of the latest snapshot.

KEY CONCEPTS IN THIS FILE (types.go):
  - AthleteID / CompetitionID: Type-safe identifiers
  - Placement: An athlete's finishing rank within one competition
  - Competition: A timestamped, ranked list of placements
  - RatingSnapshot: Immutable before/after record per athlete per competition
  - RatingEntry: A row of the derived "current ratings" table
  - ProcessedCompetition: Marker that a competition has been folded in

DESIGN PRINCIPLES:
  1. Immutability: Snapshots are never modified; invalidated history is
     truncated and re-derived, never edited in place
  2. Precision: Uses decimal.Decimal for stored ratings so replay is
     bit-for-bit reproducible
  3. Determinism: All ordering is by (timestamp, competition_id); pairwise
     sums run in canonical athlete-id order

SEE ALSO:
  - elo.go: The pairwise rating update function
  - replay.go: Chronological replay / merge controller
  - store.go: Persistence interface
*/
package rating

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AthleteID string
type CompetitionID string

// =============================================================================
// COMPETITION - One scored round of results
// =============================================================================

// Placement is an athlete's finishing rank within one competition.
// Rank is 1-based; equal rank values mean a tie.
type Placement struct {
	AthleteID AthleteID
	Rank      int
}

// Competition is a timestamped, ranked field of athletes. The feed treats
// same-day rounds as distinct competitions; the competition id is the
// deterministic secondary ordering key.
type Competition struct {
	ID         CompetitionID
	Timestamp  time.Time
	Placements []Placement
}

// OrdersBefore reports whether c sorts before other under the canonical
// (timestamp, competition_id) replay order.
func (c Competition) OrdersBefore(other Competition) bool {
	if !c.Timestamp.Equal(other.Timestamp) {
		return c.Timestamp.Before(other.Timestamp)
	}
	return c.ID < other.ID
}

// Validate checks the placement list for structural integrity. A malformed
// competition is rejected whole; no partial snapshots are ever written for it.
func (c Competition) Validate() *IntegrityError {
	if strings.TrimSpace(string(c.ID)) == "" {
		return &IntegrityError{CompetitionID: c.ID, Reason: "empty competition id"}
	}
	seen := make(map[AthleteID]bool, len(c.Placements))
	for _, p := range c.Placements {
		if strings.TrimSpace(string(p.AthleteID)) == "" || string(p.AthleteID) != strings.TrimSpace(string(p.AthleteID)) {
			return &IntegrityError{CompetitionID: c.ID, Reason: "unresolvable athlete id format: " + string(p.AthleteID)}
		}
		if p.Rank <= 0 {
			return &IntegrityError{CompetitionID: c.ID, Reason: "non-positive rank for athlete " + string(p.AthleteID)}
		}
		if seen[p.AthleteID] {
			return &IntegrityError{CompetitionID: c.ID, Reason: "duplicate athlete id: " + string(p.AthleteID)}
		}
		seen[p.AthleteID] = true
	}
	return nil
}

// SortCompetitions orders competitions by (timestamp, competition_id)
// ascending. Stable and deterministic for any input permutation.
func SortCompetitions(comps []Competition) {
	sort.SliceStable(comps, func(i, j int) bool {
		return comps[i].OrdersBefore(comps[j])
	})
}

// =============================================================================
// RATING SNAPSHOT - Immutable progression record
// =============================================================================

// RatingSnapshot records an athlete's rating before and after one
// competition. Immutable once written. The ordered snapshot sequence per
// athlete is the authoritative progression history.
type RatingSnapshot struct {
	AthleteID     AthleteID
	CompetitionID CompetitionID
	RatingBefore  decimal.Decimal
	RatingAfter   decimal.Decimal
	Timestamp     time.Time
}

// OrdersBefore reports snapshot order under the same (timestamp,
// competition_id) key used for replay.
func (s RatingSnapshot) OrdersBefore(other RatingSnapshot) bool {
	if !s.Timestamp.Equal(other.Timestamp) {
		return s.Timestamp.Before(other.Timestamp)
	}
	return s.CompetitionID < other.CompetitionID
}

// =============================================================================
// CURRENT RATINGS TABLE - Derived view
// =============================================================================

// RatingEntry is one row of the current ratings table. It is always derived
// from the latest snapshot of an athlete's chain, never mutated directly.
type RatingEntry struct {
	AthleteID         AthleteID
	Rating            decimal.Decimal
	LastCompetitionID CompetitionID
	LastUpdated       time.Time
}

// =============================================================================
// PROCESSED SET - Competitions already folded into ratings
// =============================================================================

// ProcessedCompetition marks a competition as folded into ratings. The
// timestamp is kept so the ordering key of processed work is recoverable
// when deciding whether a late arrival invalidates downstream history.
type ProcessedCompetition struct {
	ID        CompetitionID
	Timestamp time.Time
}

// OrdersBefore reports marker order under the canonical replay key.
func (p ProcessedCompetition) OrdersBefore(other ProcessedCompetition) bool {
	if !p.Timestamp.Equal(other.Timestamp) {
		return p.Timestamp.Before(other.Timestamp)
	}
	return p.ID < other.ID
}
