/*
history.go - Pure functions over snapshot chains

PURPOSE:
  The "current ratings" table is not stored state: it is a function of the
  snapshot chains. These helpers derive it, and slice progression history
  by date range, without touching storage. Store implementations and the
  self-check both build on them so there is exactly one definition of
  "latest".
*/
package rating

import (
	"sort"
	"time"
)

// SortSnapshots orders snapshots by (timestamp, competition_id) ascending,
// then by athlete id for a total deterministic order.
func SortSnapshots(snaps []RatingSnapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		if snaps[i].OrdersBefore(snaps[j]) {
			return true
		}
		if snaps[j].OrdersBefore(snaps[i]) {
			return false
		}
		return snaps[i].AthleteID < snaps[j].AthleteID
	})
}

// FilterRange returns the snapshots whose timestamp falls in [from, to].
// A zero bound is unbounded on that side. Input order is preserved.
func FilterRange(snaps []RatingSnapshot, from, to time.Time) []RatingSnapshot {
	var out []RatingSnapshot
	for _, s := range snaps {
		if !from.IsZero() && s.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && s.Timestamp.After(to) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// CurrentTable derives the current ratings table from a set of snapshots:
// for each athlete, the rating_after of its latest snapshot under the
// canonical (timestamp, competition_id) order.
func CurrentTable(snaps []RatingSnapshot) map[AthleteID]RatingEntry {
	table := make(map[AthleteID]RatingEntry)
	for _, s := range snaps {
		cur, ok := table[s.AthleteID]
		if ok {
			latest := RatingSnapshot{CompetitionID: cur.LastCompetitionID, Timestamp: cur.LastUpdated}
			if !latest.OrdersBefore(s) {
				continue
			}
		}
		table[s.AthleteID] = RatingEntry{
			AthleteID:         s.AthleteID,
			Rating:            s.RatingAfter,
			LastCompetitionID: s.CompetitionID,
			LastUpdated:       s.Timestamp,
		}
	}
	return table
}
