/*
Package feed supplies normalized competition results to the rating engine.

PURPOSE:
  The scraper that talks to the competition API lives outside this repo; by
  the time results reach the engine they are a clean, validated sequence of
  competitions. This package defines the Source abstraction the replay
  controller consumes, plus the two sources the server uses: a static
  in-memory sequence (tests, seeding) and a JSON file of normalized results.
  The SQLite store is a third Source, backing the append API.

FILE FORMAT:
  A JSON array of competitions:

    [
      {
        "competition_id": "2024-chamonix-lead-final",
        "timestamp": "2024-07-12",
        "placements": [
          {"athlete_id": "janja-garnbret", "rank": 1},
          {"athlete_id": "ai-mori", "rank": 2}
        ]
      }
    ]

  Timestamps accept a plain date or RFC3339.

SEE ALSO:
  - rating/replay.go: The consumer of Source
  - store/sqlite/sqlite.go: Persisted feed implementation
*/
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/crux/rating-engine/rating"
)

// Source supplies the full known sequence of competitions, including ones
// already folded into ratings. The engine treats it as read-only input.
type Source interface {
	Competitions(ctx context.Context) ([]rating.Competition, error)
}

// =============================================================================
// STATIC SOURCE
// =============================================================================

// Static is a fixed in-memory source.
type Static struct {
	comps []rating.Competition
}

func NewStatic(comps ...rating.Competition) *Static {
	return &Static{comps: comps}
}

func (s *Static) Competitions(_ context.Context) ([]rating.Competition, error) {
	out := make([]rating.Competition, len(s.comps))
	copy(out, s.comps)
	return out, nil
}

// =============================================================================
// JSON FILE SOURCE
// =============================================================================

type competitionJSON struct {
	CompetitionID string          `json:"competition_id"`
	Timestamp     string          `json:"timestamp"`
	Placements    []placementJSON `json:"placements"`
}

type placementJSON struct {
	AthleteID string `json:"athlete_id"`
	Rank      int    `json:"rank"`
}

// LoadFile reads a normalized results file into a Static source.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a normalized results document.
func Parse(data []byte) (*Static, error) {
	var raw []competitionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}

	comps := make([]rating.Competition, 0, len(raw))
	for _, rc := range raw {
		ts, err := parseTimestamp(rc.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("competition %s: %w", rc.CompetitionID, err)
		}
		comp := rating.Competition{
			ID:        rating.CompetitionID(rc.CompetitionID),
			Timestamp: ts,
		}
		for _, p := range rc.Placements {
			comp.Placements = append(comp.Placements, rating.Placement{
				AthleteID: rating.AthleteID(p.AthleteID),
				Rank:      p.Rank,
			})
		}
		comps = append(comps, comp)
	}
	return NewStatic(comps...), nil
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t.UTC(), nil
}
