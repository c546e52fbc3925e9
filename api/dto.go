/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model (decimal ratings, typed ids) from the external
  API contract: clients see plain floats and strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/crux/rating-engine/rating"
)

// RatingEntryDTO is one row of the current ratings table.
type RatingEntryDTO struct {
	AthleteID         string  `json:"athlete_id"`
	Rating            float64 `json:"rating"`
	LastCompetitionID string  `json:"last_competition_id"`
	LastUpdated       string  `json:"last_updated"`
}

// SnapshotDTO is one progression record.
type SnapshotDTO struct {
	AthleteID     string  `json:"athlete_id"`
	CompetitionID string  `json:"competition_id"`
	RatingBefore  float64 `json:"rating_before"`
	RatingAfter   float64 `json:"rating_after"`
	Timestamp     string  `json:"timestamp"`
}

// PlacementDTO is one ranked placement.
type PlacementDTO struct {
	AthleteID string `json:"athlete_id"`
	Rank      int    `json:"rank"`
}

// CompetitionDTO represents a competition in the feed.
type CompetitionDTO struct {
	CompetitionID string         `json:"competition_id"`
	Timestamp     string         `json:"timestamp"`
	Placements    []PlacementDTO `json:"placements"`
}

// ProcessedDTO marks a competition as folded into ratings.
type ProcessedDTO struct {
	CompetitionID string `json:"competition_id"`
	Timestamp     string `json:"timestamp"`
}

// RejectedDTO reports one competition excluded for integrity reasons.
type RejectedDTO struct {
	CompetitionID string `json:"competition_id"`
	Reason        string `json:"reason"`
}

// ReplayResultDTO summarizes one replay batch.
type ReplayResultDTO struct {
	Processed []string      `json:"processed"`
	Snapshots int           `json:"snapshots"`
	Rejected  []RejectedDTO `json:"rejected,omitempty"`
	Rewound   bool          `json:"rewound"`
}

// RatingDiffDTO is one athlete's verify disagreement.
type RatingDiffDTO struct {
	AthleteID   string  `json:"athlete_id"`
	Incremental float64 `json:"incremental"`
	Recomputed  float64 `json:"recomputed"`
}

// VerifyResultDTO is the verify response body.
type VerifyResultDTO struct {
	Consistent bool            `json:"consistent"`
	Diffs      []RatingDiffDTO `json:"diffs,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toRatingEntryDTO(e rating.RatingEntry) RatingEntryDTO {
	val, _ := e.Rating.Float64()
	return RatingEntryDTO{
		AthleteID:         string(e.AthleteID),
		Rating:            val,
		LastCompetitionID: string(e.LastCompetitionID),
		LastUpdated:       e.LastUpdated.Format("2006-01-02"),
	}
}

func toSnapshotDTO(s rating.RatingSnapshot) SnapshotDTO {
	before, _ := s.RatingBefore.Float64()
	after, _ := s.RatingAfter.Float64()
	return SnapshotDTO{
		AthleteID:     string(s.AthleteID),
		CompetitionID: string(s.CompetitionID),
		RatingBefore:  before,
		RatingAfter:   after,
		Timestamp:     s.Timestamp.Format("2006-01-02"),
	}
}

func toCompetitionDTO(c rating.Competition) CompetitionDTO {
	dto := CompetitionDTO{
		CompetitionID: string(c.ID),
		Timestamp:     c.Timestamp.Format("2006-01-02"),
	}
	for _, p := range c.Placements {
		dto.Placements = append(dto.Placements, PlacementDTO{
			AthleteID: string(p.AthleteID),
			Rank:      p.Rank,
		})
	}
	return dto
}

func toReplayResultDTO(r *rating.ReplayResult) ReplayResultDTO {
	dto := ReplayResultDTO{
		Processed: make([]string, 0, len(r.Processed)),
		Snapshots: len(r.Snapshots),
		Rewound:   r.Rewound,
	}
	for _, id := range r.Processed {
		dto.Processed = append(dto.Processed, string(id))
	}
	for _, rej := range r.Rejected {
		dto.Rejected = append(dto.Rejected, RejectedDTO{
			CompetitionID: string(rej.CompetitionID),
			Reason:        rej.Err.Reason,
		})
	}
	return dto
}

func fromCompetitionDTO(dto CompetitionDTO) (rating.Competition, error) {
	ts, err := parseTimestamp(dto.Timestamp)
	if err != nil {
		return rating.Competition{}, err
	}
	comp := rating.Competition{
		ID:        rating.CompetitionID(dto.CompetitionID),
		Timestamp: ts,
	}
	for _, p := range dto.Placements {
		comp.Placements = append(comp.Placements, rating.Placement{
			AthleteID: rating.AthleteID(p.AthleteID),
			Rank:      p.Rank,
		})
	}
	return comp, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}
