/*
store.go - Persistence interface for snapshots and the processed set

PURPOSE:
  Defines the interface between the replay controller and storage. The
  Store keeps two things: the immutable snapshot chains and the processed
  set of competition ids. They must stay consistent with each other.

CONSISTENCY CONTRACT:
  A competition is in the processed set if and only if every athlete in
  its placement list has a RatingSnapshot for that competition id.
  ApplyCompetition therefore writes the marker and the snapshots in one
  atomic batch: a crash mid-batch must never leave a marker without its
  snapshots, or vice versa.

SNAPSHOTS ARE IMMUTABLE, NOT ETERNAL:
  Snapshots are never edited. When a late-arriving competition invalidates
  downstream history, RewindFrom truncates everything at or after the
  invalidation point and the controller re-derives it by replay. That is
  the only way snapshots ever disappear.

IMPLEMENTATIONS:
  - rating/store/memory.go: In-memory, for tests and dev
  - store/sqlite/sqlite.go: SQLite with WAL and transactional batches

SEE ALSO:
  - replay.go: The only writer of this interface
*/
package rating

import (
	"context"
	"time"
)

// Store persists snapshot chains and the processed set.
type Store interface {
	// Processed returns the processed-set markers, ordered by
	// (timestamp, competition_id) ascending.
	Processed(ctx context.Context) ([]ProcessedCompetition, error)

	// LatestRatings returns the current ratings table, derived from the
	// latest snapshot of each athlete's chain.
	LatestRatings(ctx context.Context) (map[AthleteID]RatingEntry, error)

	// History returns an athlete's snapshots ordered by (timestamp,
	// competition_id). Zero from/to bounds mean unbounded.
	History(ctx context.Context, id AthleteID, from, to time.Time) ([]RatingSnapshot, error)

	// ApplyCompetition atomically writes one competition's snapshots and
	// its processed marker. Returns ErrAlreadyProcessed if the marker
	// exists. Either everything is written or nothing is.
	ApplyCompetition(ctx context.Context, marker ProcessedCompetition, snapshots []RatingSnapshot) error

	// RewindFrom removes all snapshots and processed markers whose
	// (timestamp, competition_id) key is at or after the given point.
	// Used when a late arrival invalidates downstream history.
	RewindFrom(ctx context.Context, at time.Time, id CompetitionID) error

	// Reset drops all snapshots and processed markers. Used by full
	// recompute.
	Reset(ctx context.Context) error
}
