/*
sqlite_test.go - Tests for the SQLite store

Tests for:
- Snapshot round trips and atomic competition writes
- Duplicate detection on the processed set and the feed
- Rewind truncation and reset
- Feed persistence ordering
*/
package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crux/rating-engine/rating"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testSnapshot(athlete, comp string, at time.Time, before, after float64) rating.RatingSnapshot {
	return rating.RatingSnapshot{
		AthleteID:     rating.AthleteID(athlete),
		CompetitionID: rating.CompetitionID(comp),
		RatingBefore:  decimal.NewFromFloat(before),
		RatingAfter:   decimal.NewFromFloat(after),
		Timestamp:     at,
	}
}

func TestApplyCompetition_RoundTrip(t *testing.T) {
	// GIVEN: One competition's marker and snapshots
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)

	marker := rating.ProcessedCompetition{ID: "c1", Timestamp: at}
	snaps := []rating.RatingSnapshot{
		testSnapshot("ai", "c1", at, 1500, 1484),
		testSnapshot("janja", "c1", at, 1500, 1516),
	}

	// WHEN: Writing and reading back
	if err := store.ApplyCompetition(ctx, marker, snaps); err != nil {
		t.Fatalf("Failed to apply competition: %v", err)
	}

	markers, err := store.Processed(ctx)
	if err != nil {
		t.Fatalf("Failed to read processed set: %v", err)
	}
	if len(markers) != 1 || markers[0].ID != "c1" || !markers[0].Timestamp.Equal(at) {
		t.Errorf("Unexpected markers: %+v", markers)
	}

	history, err := store.History(ctx, "janja", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Failed to read history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 snapshot, got %d", len(history))
	}
	got := history[0]
	if !got.RatingBefore.Equal(decimal.NewFromInt(1500)) ||
		!got.RatingAfter.Equal(decimal.NewFromInt(1516)) ||
		!got.Timestamp.Equal(at) {
		t.Errorf("Snapshot round trip mismatch: %+v", got)
	}
}

func TestApplyCompetition_DuplicateMarkerRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)

	marker := rating.ProcessedCompetition{ID: "c1", Timestamp: at}
	snaps := []rating.RatingSnapshot{testSnapshot("janja", "c1", at, 1500, 1516)}

	if err := store.ApplyCompetition(ctx, marker, snaps); err != nil {
		t.Fatalf("First apply failed: %v", err)
	}
	err := store.ApplyCompetition(ctx, marker, snaps)
	if !errors.Is(err, rating.ErrAlreadyProcessed) {
		t.Errorf("Expected ErrAlreadyProcessed, got %v", err)
	}

	// The failed write must not have left partial state.
	history, err := store.History(ctx, "janja", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Failed to read history: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("Expected 1 snapshot after rejected duplicate, got %d", len(history))
	}
}

func TestLatestRatings_DerivedFromChains(t *testing.T) {
	// GIVEN: Two competitions for the same athlete
	store := newTestStore(t)
	ctx := context.Background()
	may := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
	june := time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)

	if err := store.ApplyCompetition(ctx,
		rating.ProcessedCompetition{ID: "c1", Timestamp: may},
		[]rating.RatingSnapshot{testSnapshot("janja", "c1", may, 1500, 1516)},
	); err != nil {
		t.Fatalf("Apply c1 failed: %v", err)
	}
	if err := store.ApplyCompetition(ctx,
		rating.ProcessedCompetition{ID: "c2", Timestamp: june},
		[]rating.RatingSnapshot{testSnapshot("janja", "c2", june, 1516, 1530.5)},
	); err != nil {
		t.Fatalf("Apply c2 failed: %v", err)
	}

	// THEN: The latest table reflects the newest snapshot
	table, err := store.LatestRatings(ctx)
	if err != nil {
		t.Fatalf("Failed to read ratings: %v", err)
	}
	entry, ok := table["janja"]
	if !ok {
		t.Fatal("Athlete missing from ratings table")
	}
	if !entry.Rating.Equal(decimal.NewFromFloat(1530.5)) {
		t.Errorf("Expected 1530.5, got %v", entry.Rating)
	}
	if entry.LastCompetitionID != "c2" {
		t.Errorf("Expected last competition c2, got %s", entry.LastCompetitionID)
	}
}

func TestHistory_UnknownAthlete(t *testing.T) {
	store := newTestStore(t)

	_, err := store.History(context.Background(), "nobody", time.Time{}, time.Time{})
	if !errors.Is(err, rating.ErrAthleteNotFound) {
		t.Errorf("Expected ErrAthleteNotFound, got %v", err)
	}
}

func TestHistory_DateRangeBounds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dates := []time.Time{
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	ids := []string{"c1", "c2", "c3"}
	for i, at := range dates {
		if err := store.ApplyCompetition(ctx,
			rating.ProcessedCompetition{ID: rating.CompetitionID(ids[i]), Timestamp: at},
			[]rating.RatingSnapshot{testSnapshot("janja", ids[i], at, 1500, 1500)},
		); err != nil {
			t.Fatalf("Apply %s failed: %v", ids[i], err)
		}
	}

	history, err := store.History(ctx, "janja", dates[1], dates[1])
	if err != nil {
		t.Fatalf("Failed to read history: %v", err)
	}
	if len(history) != 1 || history[0].CompetitionID != "c2" {
		t.Errorf("Expected only c2 in range, got %+v", history)
	}
}

func TestRewindFrom_TruncatesAtKey(t *testing.T) {
	// GIVEN: Three processed competitions in May, June, July
	store := newTestStore(t)
	ctx := context.Background()

	may := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	june := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	july := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	for _, c := range []struct {
		id string
		at time.Time
	}{{"may", may}, {"june", june}, {"july", july}} {
		if err := store.ApplyCompetition(ctx,
			rating.ProcessedCompetition{ID: rating.CompetitionID(c.id), Timestamp: c.at},
			[]rating.RatingSnapshot{testSnapshot("janja", c.id, c.at, 1500, 1500)},
		); err != nil {
			t.Fatalf("Apply %s failed: %v", c.id, err)
		}
	}

	// WHEN: Rewinding from the June key
	if err := store.RewindFrom(ctx, june, "june"); err != nil {
		t.Fatalf("Rewind failed: %v", err)
	}

	// THEN: May survives, June and July are gone from both tables
	markers, err := store.Processed(ctx)
	if err != nil {
		t.Fatalf("Failed to read processed set: %v", err)
	}
	if len(markers) != 1 || markers[0].ID != "may" {
		t.Errorf("Expected only may processed, got %+v", markers)
	}

	history, err := store.History(ctx, "janja", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Failed to read history: %v", err)
	}
	if len(history) != 1 || history[0].CompetitionID != "may" {
		t.Errorf("Expected only the may snapshot, got %+v", history)
	}
}

func TestReset_ClearsRatingStateOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)

	comp := rating.Competition{
		ID:        "c1",
		Timestamp: at,
		Placements: []rating.Placement{
			{AthleteID: "janja", Rank: 1},
			{AthleteID: "ai", Rank: 2},
		},
	}
	if err := store.SaveCompetition(ctx, comp); err != nil {
		t.Fatalf("Failed to save competition: %v", err)
	}
	if err := store.ApplyCompetition(ctx,
		rating.ProcessedCompetition{ID: "c1", Timestamp: at},
		[]rating.RatingSnapshot{testSnapshot("janja", "c1", at, 1500, 1516)},
	); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	markers, _ := store.Processed(ctx)
	if len(markers) != 0 {
		t.Errorf("Expected empty processed set, got %+v", markers)
	}
	table, _ := store.LatestRatings(ctx)
	if len(table) != 0 {
		t.Errorf("Expected empty ratings table, got %+v", table)
	}

	// The persisted feed must survive a reset.
	comps, err := store.Competitions(ctx)
	if err != nil {
		t.Fatalf("Failed to read feed: %v", err)
	}
	if len(comps) != 1 {
		t.Errorf("Expected feed to survive reset, got %d competitions", len(comps))
	}
}

func TestSaveCompetition_DuplicateRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	comp := rating.Competition{
		ID:         "c1",
		Timestamp:  time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
		Placements: []rating.Placement{{AthleteID: "janja", Rank: 1}},
	}
	if err := store.SaveCompetition(ctx, comp); err != nil {
		t.Fatalf("First save failed: %v", err)
	}
	err := store.SaveCompetition(ctx, comp)
	if !errors.Is(err, rating.ErrAlreadyProcessed) {
		t.Errorf("Expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestCompetitions_CanonicalOrderAndPlacements(t *testing.T) {
	// GIVEN: Competitions saved out of chronological order, two sharing a day
	store := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2024, 7, 12, 0, 0, 0, 0, time.UTC)

	saved := []rating.Competition{
		{ID: "b-final", Timestamp: day, Placements: []rating.Placement{
			{AthleteID: "janja", Rank: 1},
			{AthleteID: "ai", Rank: 2},
		}},
		{ID: "earlier", Timestamp: day.AddDate(0, -1, 0), Placements: []rating.Placement{
			{AthleteID: "brooke", Rank: 1},
		}},
		{ID: "a-semi", Timestamp: day, Placements: []rating.Placement{
			{AthleteID: "ai", Rank: 1},
		}},
	}
	for _, c := range saved {
		if err := store.SaveCompetition(ctx, c); err != nil {
			t.Fatalf("Failed to save %s: %v", c.ID, err)
		}
	}

	// THEN: Reads come back ordered by (timestamp, id), placements intact
	comps, err := store.Competitions(ctx)
	if err != nil {
		t.Fatalf("Failed to read feed: %v", err)
	}
	if len(comps) != 3 {
		t.Fatalf("Expected 3 competitions, got %d", len(comps))
	}
	wantOrder := []rating.CompetitionID{"earlier", "a-semi", "b-final"}
	for i, want := range wantOrder {
		if comps[i].ID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, comps[i].ID)
		}
	}
	final := comps[2]
	if len(final.Placements) != 2 || final.Placements[0].AthleteID != "janja" || final.Placements[1].Rank != 2 {
		t.Errorf("Placements not preserved: %+v", final.Placements)
	}
}

func TestTimestampsPreserveFractionalSeconds(t *testing.T) {
	// GIVEN: Two competitions in the same second, a quarter and a half
	// second in, written later-first
	store := newTestStore(t)
	ctx := context.Background()

	quarter := time.Date(2024, 7, 12, 10, 0, 0, 250_000_000, time.UTC)
	half := time.Date(2024, 7, 12, 10, 0, 0, 500_000_000, time.UTC)

	for _, c := range []struct {
		id string
		at time.Time
	}{{"half", half}, {"quarter", quarter}} {
		if err := store.ApplyCompetition(ctx,
			rating.ProcessedCompetition{ID: rating.CompetitionID(c.id), Timestamp: c.at},
			[]rating.RatingSnapshot{testSnapshot("janja", c.id, c.at, 1500, 1500)},
		); err != nil {
			t.Fatalf("Apply %s failed: %v", c.id, err)
		}
	}

	// THEN: Fractions survive the round trip and drive the stored order
	markers, err := store.Processed(ctx)
	if err != nil {
		t.Fatalf("Failed to read processed set: %v", err)
	}
	if markers[0].ID != "quarter" || markers[1].ID != "half" {
		t.Errorf("Expected sub-second ordering quarter < half, got %+v", markers)
	}
	if !markers[0].Timestamp.Equal(quarter) {
		t.Errorf("Fractional seconds lost: expected %v, got %v", quarter, markers[0].Timestamp)
	}

	history, err := store.History(ctx, "janja", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Failed to read history: %v", err)
	}
	if history[0].CompetitionID != "quarter" || !history[0].Timestamp.Equal(quarter) {
		t.Errorf("Snapshot fractional timestamp mismatch: %+v", history[0])
	}

	// The persisted feed keeps fractions too.
	comp := rating.Competition{
		ID:         "feed-entry",
		Timestamp:  half,
		Placements: []rating.Placement{{AthleteID: "janja", Rank: 1}},
	}
	if err := store.SaveCompetition(ctx, comp); err != nil {
		t.Fatalf("Failed to save competition: %v", err)
	}
	comps, err := store.Competitions(ctx)
	if err != nil {
		t.Fatalf("Failed to read feed: %v", err)
	}
	if len(comps) != 1 || !comps[0].Timestamp.Equal(half) {
		t.Errorf("Feed fractional timestamp mismatch: %+v", comps)
	}
}

func TestEngineAgainstSQLiteStore(t *testing.T) {
	// The full replay path against the real store, not just the memory one.
	store := newTestStore(t)
	ctx := context.Background()
	engine := rating.NewEngine(store)

	feed := []rating.Competition{
		{ID: "c1", Timestamp: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), Placements: []rating.Placement{
			{AthleteID: "janja", Rank: 1},
			{AthleteID: "ai", Rank: 2},
		}},
		{ID: "c2", Timestamp: time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC), Placements: []rating.Placement{
			{AthleteID: "janja", Rank: 1},
			{AthleteID: "ai", Rank: 2},
		}},
	}

	result, err := engine.Replay(ctx, feed)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(result.Processed) != 2 {
		t.Fatalf("Expected 2 processed, got %d", len(result.Processed))
	}

	if err := engine.Verify(ctx, feed); err != nil {
		t.Errorf("Verify against sqlite state failed: %v", err)
	}

	table, err := store.LatestRatings(ctx)
	if err != nil {
		t.Fatalf("Failed to read ratings: %v", err)
	}
	if !table["janja"].Rating.GreaterThan(table["ai"].Rating) {
		t.Errorf("Expected janja above ai, got %v vs %v", table["janja"].Rating, table["ai"].Rating)
	}
}
