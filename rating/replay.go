/*
replay.go - Chronological replay / merge controller

PURPOSE:
  Decides which competitions need processing and applies the rating update
  in the correct order while keeping persisted state consistent under
  incremental appends.

ALGORITHM:
  1. Filter the feed to competitions not yet in the processed set.
     Malformed competitions are rejected whole and collected here, before
     any ordering decision: a permanently bad feed entry must never count
     as "earliest pending work".
  2. Sort the valid pending set by (timestamp, competition_id) ascending
  3. If the earliest pending competition orders before already-processed
     work, rewind: truncate snapshots and markers from that point and
     re-derive everything downstream by replay. History is a log plus a
     memoized prefix, never an append-only fiction.
  4. For each pending competition: seed unseen athletes at 1500, apply the
     pairwise update, write snapshots + marker atomically, move on.

IDEMPOTENCY:
  Replay over the same feed and starting state is safe to re-run: already
  processed competitions are filtered out, and a partially completed batch
  simply resumes where it stopped.

SELF-CHECK:
  Verify recomputes everything from scratch in memory and compares against
  persisted state. Disagreement beyond VerifyTolerance is reported, never
  silently corrected.

SEE ALSO:
  - elo.go: The update math applied at each step
  - store.go: The consistency contract Replay relies on
*/
package rating

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// VerifyTolerance is the maximum absolute disagreement between incremental
// and recomputed ratings before Verify reports a mismatch.
const VerifyTolerance = 0.01

// Engine is the replay controller. Replay is inherently sequential: each
// competition's ratings depend on the prior one, so Replay, Recompute, and
// Verify serialize on an internal mutex. A given store must still only be
// driven by one Engine.
type Engine struct {
	mu     sync.Mutex
	Store  Store
	Params Params
}

// NewEngine creates an engine with default parameters (K=32, initial 1500).
func NewEngine(store Store) *Engine {
	return &Engine{Store: store, Params: DefaultParams()}
}

// RejectedCompetition pairs a competition id with the integrity error that
// excluded it from the batch.
type RejectedCompetition struct {
	CompetitionID CompetitionID
	Err           *IntegrityError
}

// ReplayResult reports what one batch did.
type ReplayResult struct {
	Snapshots []RatingSnapshot
	Processed []CompetitionID
	Rejected  []RejectedCompetition
	Rewound   bool
}

// Replay folds every unprocessed competition in the feed into persisted
// rating state. The feed must contain all known competitions, including
// already-processed ones, so a rewind can re-derive truncated history.
func (e *Engine) Replay(ctx context.Context, feed []Competition) (*ReplayResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.replay(ctx, feed)
}

func (e *Engine) replay(ctx context.Context, feed []Competition) (*ReplayResult, error) {
	result := &ReplayResult{}

	markers, err := e.Store.Processed(ctx)
	if err != nil {
		return nil, fmt.Errorf("load processed set: %w", err)
	}

	pending, rejected := pendingCompetitions(feed, markers)
	result.Rejected = rejected
	if len(pending) == 0 {
		return result, nil
	}

	// Out-of-order arrival: the earliest pending competition must not
	// order before work already folded in. If it does, everything at or
	// after it is invalid downstream state.
	first := ProcessedCompetition{ID: pending[0].ID, Timestamp: pending[0].Timestamp}
	if len(markers) > 0 && first.OrdersBefore(markers[len(markers)-1]) {
		if err := e.Store.RewindFrom(ctx, first.Timestamp, first.ID); err != nil {
			return nil, fmt.Errorf("rewind from %s: %w", first.ID, err)
		}
		result.Rewound = true

		markers, err = e.Store.Processed(ctx)
		if err != nil {
			return nil, fmt.Errorf("reload processed set: %w", err)
		}
		pending, _ = pendingCompetitions(feed, markers)
	}

	latest, err := e.Store.LatestRatings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ratings table: %w", err)
	}

	for _, comp := range pending {
		snaps := e.fold(latest, comp)
		marker := ProcessedCompetition{ID: comp.ID, Timestamp: comp.Timestamp}
		if err := e.Store.ApplyCompetition(ctx, marker, snaps); err != nil {
			// Storage fault: stop here. The batch is resumable because
			// nothing past this point was marked processed.
			return result, fmt.Errorf("apply competition %s: %w", comp.ID, err)
		}

		result.Snapshots = append(result.Snapshots, snaps...)
		result.Processed = append(result.Processed, comp.ID)
	}

	return result, nil
}

// Recompute resets all persisted state and replays the entire feed from
// scratch. Used as a correctness fallback when Verify reports a mismatch.
func (e *Engine) Recompute(ctx context.Context, feed []Competition) (*ReplayResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.Store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset state: %w", err)
	}
	return e.replay(ctx, feed)
}

// Verify runs a pure full recompute over the feed and compares the
// resulting ratings table against persisted incremental state. Returns a
// *RecomputeMismatchError if any athlete disagrees beyond VerifyTolerance.
func (e *Engine) Verify(ctx context.Context, feed []Competition) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, recomputed, _ := ReplayAll(e.Params, feed)

	current, err := e.Store.LatestRatings(ctx)
	if err != nil {
		return fmt.Errorf("load ratings table: %w", err)
	}

	tolerance := decimal.NewFromFloat(VerifyTolerance)
	var diffs []RatingDiff
	for id, entry := range current {
		rec, ok := recomputed[id]
		if !ok || entry.Rating.Sub(rec.Rating).Abs().GreaterThan(tolerance) {
			diffs = append(diffs, RatingDiff{AthleteID: id, Incremental: entry.Rating, Recomputed: rec.Rating})
		}
	}
	for id, rec := range recomputed {
		if _, ok := current[id]; !ok {
			diffs = append(diffs, RatingDiff{AthleteID: id, Recomputed: rec.Rating})
		}
	}
	if len(diffs) == 0 {
		return nil
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i].AthleteID < diffs[j].AthleteID })
	return &RecomputeMismatchError{Diffs: diffs}
}

// ReplayAll is the pure form of full recomputation: no store, no prior
// state. Returns every snapshot, the final ratings table, and the rejected
// competitions, all deterministic for a given feed.
func ReplayAll(p Params, feed []Competition) ([]RatingSnapshot, map[AthleteID]RatingEntry, []RejectedCompetition) {
	comps := make([]Competition, len(feed))
	copy(comps, feed)
	SortCompetitions(comps)

	latest := make(map[AthleteID]RatingEntry)
	var snapshots []RatingSnapshot
	var rejected []RejectedCompetition

	eng := Engine{Params: p}
	for _, comp := range comps {
		if verr := comp.Validate(); verr != nil {
			rejected = append(rejected, RejectedCompetition{CompetitionID: comp.ID, Err: verr})
			continue
		}
		snaps := eng.fold(latest, comp)
		snapshots = append(snapshots, snaps...)
	}
	return snapshots, latest, rejected
}

// fold applies one competition against the ratings table, returning the new
// snapshots in canonical athlete order and updating the table in place.
func (e *Engine) fold(latest map[AthleteID]RatingEntry, comp Competition) []RatingSnapshot {
	before := make(map[AthleteID]decimal.Decimal, len(comp.Placements))
	for _, pl := range comp.Placements {
		if entry, ok := latest[pl.AthleteID]; ok {
			before[pl.AthleteID] = entry.Rating
		} else {
			before[pl.AthleteID] = e.Params.Initial
		}
	}

	after := e.Params.Apply(before, comp.Placements)

	ids := make([]AthleteID, 0, len(comp.Placements))
	for _, pl := range comp.Placements {
		ids = append(ids, pl.AthleteID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	snaps := make([]RatingSnapshot, 0, len(ids))
	for _, id := range ids {
		snaps = append(snaps, RatingSnapshot{
			AthleteID:     id,
			CompetitionID: comp.ID,
			RatingBefore:  before[id],
			RatingAfter:   after[id],
			Timestamp:     comp.Timestamp,
		})
		latest[id] = RatingEntry{
			AthleteID:         id,
			Rating:            after[id],
			LastCompetitionID: comp.ID,
			LastUpdated:       comp.Timestamp,
		}
	}
	return snaps
}

// pendingCompetitions filters the feed to valid competitions not in the
// processed set, sorted by the canonical replay order. Malformed
// competitions are returned separately: they never become pending work, so
// a permanently bad feed entry cannot masquerade as an out-of-order arrival
// and trigger rewinds on every batch.
func pendingCompetitions(feed []Competition, markers []ProcessedCompetition) ([]Competition, []RejectedCompetition) {
	done := make(map[CompetitionID]bool, len(markers))
	for _, m := range markers {
		done[m.ID] = true
	}
	var pending []Competition
	var rejected []RejectedCompetition
	for _, c := range feed {
		if done[c.ID] {
			continue
		}
		if verr := c.Validate(); verr != nil {
			rejected = append(rejected, RejectedCompetition{CompetitionID: c.ID, Err: verr})
			continue
		}
		pending = append(pending, c)
	}
	SortCompetitions(pending)
	return pending, rejected
}
