/*
errors.go - Centralized error types for the rating engine

PURPOSE:
  All error types in one place. Two failure classes matter here:

  1. Data integrity - A competition's placement list is malformed
     (duplicate athlete, non-positive rank, bad athlete id). The whole
     competition is rejected; the batch continues with the next one.
  2. Recompute mismatch - The full-recompute self-check disagrees with
     incrementally maintained state. Never auto-corrected; surfaced so the
     caller can decide to force a full recompute.

USAGE:
  if errors.Is(err, rating.ErrDataIntegrity) { ... }

  var mismatch *rating.RecomputeMismatchError
  if errors.As(err, &mismatch) {
      for _, d := range mismatch.Diffs { ... }
  }

SEE ALSO:
  - replay.go: Produces these errors
*/
package rating

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDataIntegrity is returned when a competition's placement data is
	// malformed. The competition is rejected whole.
	ErrDataIntegrity = errors.New("competition data integrity violation")

	// ErrRecomputeMismatch is returned when a full recompute disagrees with
	// incrementally maintained state beyond tolerance.
	ErrRecomputeMismatch = errors.New("full recompute disagrees with incremental state")

	// ErrAlreadyProcessed is returned by stores when a competition marker
	// or snapshot already exists. Protects the processed-set invariant.
	ErrAlreadyProcessed = errors.New("competition already processed")

	// ErrAthleteNotFound is returned when a progression query names an
	// athlete with no snapshots.
	ErrAthleteNotFound = errors.New("athlete not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// IntegrityError describes why one competition was rejected.
type IntegrityError struct {
	CompetitionID CompetitionID
	Reason        string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("competition %s rejected: %s", e.CompetitionID, e.Reason)
}

func (e *IntegrityError) Unwrap() error {
	return ErrDataIntegrity
}

// RatingDiff is one athlete's disagreement between incremental state and a
// full recompute.
type RatingDiff struct {
	AthleteID   AthleteID
	Incremental decimal.Decimal
	Recomputed  decimal.Decimal
}

// RecomputeMismatchError reports every athlete whose incremental rating
// differs from the full-recompute rating beyond the verification tolerance.
type RecomputeMismatchError struct {
	Diffs []RatingDiff
}

func (e *RecomputeMismatchError) Error() string {
	return fmt.Sprintf("recompute mismatch for %d athlete(s)", len(e.Diffs))
}

func (e *RecomputeMismatchError) Unwrap() error {
	return ErrRecomputeMismatch
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input data
// rather than an engine or storage fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDataIntegrity) ||
		errors.Is(err, ErrAlreadyProcessed) ||
		errors.Is(err, ErrAthleteNotFound)
}
