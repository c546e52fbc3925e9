/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements rating.Store (snapshot chains + processed set) and the
  persisted competition feed using SQLite. The same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

CONSISTENCY:
  ApplyCompetition writes a competition's snapshots and its processed
  marker inside one database transaction. A crash mid-batch can therefore
  never leave a processed marker without its snapshots, or snapshots
  without their marker. RewindFrom and Reset are transactional for the
  same reason.

KEY TABLES:
  snapshots:              Immutable rating progression records
  processed_competitions: The processed-set markers
  competitions:           The persisted normalized results feed
  placements:             Ranked placement lists per competition

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time, better crash
  recovery.

USAGE:
  store, err := sqlite.New("./data/crux.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := rating.NewEngine(store)

SEE ALSO:
  - rating/store.go: Interface definition and consistency contract
  - rating/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/crux/rating-engine/rating"
)

// timeFormat is RFC3339 with fixed-width nanoseconds. Fractional seconds
// survive a round trip, and the zero padding keeps lexicographic comparison
// of stored strings identical to timestamp order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Store implements rating.Store and the persisted feed using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Rating snapshots (immutable; truncated only by rewind/reset)
	CREATE TABLE IF NOT EXISTS snapshots (
		athlete_id TEXT NOT NULL,
		competition_id TEXT NOT NULL,
		rating_before TEXT NOT NULL,
		rating_after TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (athlete_id, competition_id)
	);

	-- Progression queries (hot path)
	CREATE INDEX IF NOT EXISTS idx_snapshots_athlete_time
		ON snapshots(athlete_id, timestamp, competition_id);
	CREATE INDEX IF NOT EXISTS idx_snapshots_time
		ON snapshots(timestamp, competition_id);

	-- Processed set: a competition id is here iff all of its snapshots are
	CREATE TABLE IF NOT EXISTS processed_competitions (
		competition_id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		processed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_processed_time
		ON processed_competitions(timestamp, competition_id);

	-- Persisted normalized results feed
	CREATE TABLE IF NOT EXISTS competitions (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS placements (
		competition_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		athlete_id TEXT NOT NULL,
		rank INTEGER NOT NULL,
		PRIMARY KEY (competition_id, position),
		FOREIGN KEY (competition_id) REFERENCES competitions(id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RATING STORE (rating.Store interface)
// =============================================================================

// Processed returns the processed-set markers in canonical replay order.
func (s *Store) Processed(ctx context.Context) ([]rating.ProcessedCompetition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT competition_id, timestamp
		FROM processed_competitions
		ORDER BY timestamp ASC, competition_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query processed set: %w", err)
	}
	defer rows.Close()

	var markers []rating.ProcessedCompetition
	for rows.Next() {
		var id, ts string
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan processed marker: %w", err)
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse marker timestamp: %w", err)
		}
		markers = append(markers, rating.ProcessedCompetition{ID: rating.CompetitionID(id), Timestamp: t})
	}
	return markers, rows.Err()
}

// LatestRatings derives the current ratings table from the snapshot chains.
func (s *Store) LatestRatings(ctx context.Context) (map[rating.AthleteID]rating.RatingEntry, error) {
	snaps, err := s.allSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	return rating.CurrentTable(snaps), nil
}

// History returns an athlete's snapshots, optionally bounded by [from, to].
func (s *Store) History(ctx context.Context, id rating.AthleteID, from, to time.Time) ([]rating.RatingSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM snapshots WHERE athlete_id = ?", string(id),
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check athlete: %w", err)
	}
	if exists == 0 {
		return nil, rating.ErrAthleteNotFound
	}

	query := `
		SELECT athlete_id, competition_id, rating_before, rating_after, timestamp
		FROM snapshots
		WHERE athlete_id = ?
	`
	args := []any{string(id)}
	if !from.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, formatTime(from))
	}
	if !to.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, formatTime(to))
	}
	query += " ORDER BY timestamp ASC, competition_id ASC"

	return s.querySnapshots(ctx, query, args...)
}

// ApplyCompetition atomically writes one competition's snapshots and its
// processed marker.
func (s *Store) ApplyCompetition(ctx context.Context, marker rating.ProcessedCompetition, snapshots []rating.RatingSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	now := formatTime(time.Now())

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO processed_competitions (competition_id, timestamp, processed_at)
		VALUES (?, ?, ?)
	`, string(marker.ID), formatTime(marker.Timestamp), now)
	if err != nil {
		if isUniqueConstraintError(err) {
			return rating.ErrAlreadyProcessed
		}
		return fmt.Errorf("failed to write processed marker: %w", err)
	}

	for _, snap := range snapshots {
		_, err = sqlTx.ExecContext(ctx, `
			INSERT INTO snapshots (athlete_id, competition_id, rating_before, rating_after, timestamp, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			string(snap.AthleteID),
			string(snap.CompetitionID),
			snap.RatingBefore.String(),
			snap.RatingAfter.String(),
			formatTime(snap.Timestamp),
			now,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return rating.ErrAlreadyProcessed
			}
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
	}

	return sqlTx.Commit()
}

// RewindFrom removes snapshots and markers at or after the given
// (timestamp, competition_id) key, in one transaction.
func (s *Store) RewindFrom(ctx context.Context, at time.Time, id rating.CompetitionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	ts := formatTime(at)
	cond := "timestamp > ? OR (timestamp = ? AND competition_id >= ?)"

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM snapshots WHERE "+cond, ts, ts, string(id)); err != nil {
		return fmt.Errorf("failed to truncate snapshots: %w", err)
	}
	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM processed_competitions WHERE "+cond, ts, ts, string(id)); err != nil {
		return fmt.Errorf("failed to truncate processed set: %w", err)
	}

	return sqlTx.Commit()
}

// Reset drops all rating state. The persisted feed is untouched.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM snapshots"); err != nil {
		return fmt.Errorf("failed to reset snapshots: %w", err)
	}
	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM processed_competitions"); err != nil {
		return fmt.Errorf("failed to reset processed set: %w", err)
	}

	return sqlTx.Commit()
}

func (s *Store) allSnapshots(ctx context.Context) ([]rating.RatingSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.querySnapshots(ctx, `
		SELECT athlete_id, competition_id, rating_before, rating_after, timestamp
		FROM snapshots
		ORDER BY timestamp ASC, competition_id ASC, athlete_id ASC
	`)
}

func (s *Store) querySnapshots(ctx context.Context, query string, args ...any) ([]rating.RatingSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []rating.RatingSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func scanSnapshot(rows *sql.Rows) (rating.RatingSnapshot, error) {
	var (
		snap          rating.RatingSnapshot
		athleteID     string
		competitionID string
		before, after string
		ts            string
	)

	if err := rows.Scan(&athleteID, &competitionID, &before, &after, &ts); err != nil {
		return snap, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	snap.AthleteID = rating.AthleteID(athleteID)
	snap.CompetitionID = rating.CompetitionID(competitionID)

	var err error
	if snap.RatingBefore, err = decimal.NewFromString(before); err != nil {
		return snap, fmt.Errorf("failed to parse rating_before: %w", err)
	}
	if snap.RatingAfter, err = decimal.NewFromString(after); err != nil {
		return snap, fmt.Errorf("failed to parse rating_after: %w", err)
	}
	if snap.Timestamp, err = parseTime(ts); err != nil {
		return snap, fmt.Errorf("failed to parse snapshot timestamp: %w", err)
	}
	return snap, nil
}

// =============================================================================
// COMPETITION FEED (feed.Source + append)
// =============================================================================

// SaveCompetition appends a competition and its placements to the persisted
// feed. The feed is the controller's input; saving never touches ratings.
func (s *Store) SaveCompetition(ctx context.Context, comp rating.Competition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO competitions (id, timestamp, created_at)
		VALUES (?, ?, ?)
	`,
		string(comp.ID),
		formatTime(comp.Timestamp),
		formatTime(time.Now()),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("competition %s: %w", comp.ID, rating.ErrAlreadyProcessed)
		}
		return fmt.Errorf("failed to save competition: %w", err)
	}

	for i, p := range comp.Placements {
		_, err = sqlTx.ExecContext(ctx, `
			INSERT INTO placements (competition_id, position, athlete_id, rank)
			VALUES (?, ?, ?, ?)
		`, string(comp.ID), i, string(p.AthleteID), p.Rank)
		if err != nil {
			return fmt.Errorf("failed to save placement: %w", err)
		}
	}

	return sqlTx.Commit()
}

// Competitions returns the persisted feed in canonical replay order.
// Implements feed.Source.
func (s *Store) Competitions(ctx context.Context) ([]rating.Competition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.timestamp, p.athlete_id, p.rank
		FROM competitions c
		LEFT JOIN placements p ON p.competition_id = c.id
		ORDER BY c.timestamp ASC, c.id ASC, p.position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed: %w", err)
	}
	defer rows.Close()

	var comps []rating.Competition
	for rows.Next() {
		var (
			id, ts    string
			athleteID sql.NullString
			rank      sql.NullInt64
		)
		if err := rows.Scan(&id, &ts, &athleteID, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}

		if len(comps) == 0 || comps[len(comps)-1].ID != rating.CompetitionID(id) {
			t, err := parseTime(ts)
			if err != nil {
				return nil, fmt.Errorf("failed to parse competition timestamp: %w", err)
			}
			comps = append(comps, rating.Competition{ID: rating.CompetitionID(id), Timestamp: t})
		}
		if athleteID.Valid {
			last := &comps[len(comps)-1]
			last.Placements = append(last.Placements, rating.Placement{
				AthleteID: rating.AthleteID(athleteID.String),
				Rank:      int(rank.Int64),
			})
		}
	}
	return comps, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
