// Package store provides rating.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/crux/rating-engine/rating"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	chains    map[rating.AthleteID][]rating.RatingSnapshot
	processed map[rating.CompetitionID]rating.ProcessedCompetition
}

func NewMemory() *Memory {
	return &Memory{
		chains:    make(map[rating.AthleteID][]rating.RatingSnapshot),
		processed: make(map[rating.CompetitionID]rating.ProcessedCompetition),
	}
}

func (m *Memory) Processed(_ context.Context) ([]rating.ProcessedCompetition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	markers := make([]rating.ProcessedCompetition, 0, len(m.processed))
	for _, p := range m.processed {
		markers = append(markers, p)
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i].OrdersBefore(markers[j]) })
	return markers, nil
}

func (m *Memory) LatestRatings(_ context.Context) (map[rating.AthleteID]rating.RatingEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	table := make(map[rating.AthleteID]rating.RatingEntry, len(m.chains))
	for id, chain := range m.chains {
		if len(chain) == 0 {
			continue
		}
		last := chain[len(chain)-1]
		table[id] = rating.RatingEntry{
			AthleteID:         id,
			Rating:            last.RatingAfter,
			LastCompetitionID: last.CompetitionID,
			LastUpdated:       last.Timestamp,
		}
	}
	return table, nil
}

func (m *Memory) History(_ context.Context, id rating.AthleteID, from, to time.Time) ([]rating.RatingSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chain, ok := m.chains[id]
	if !ok {
		return nil, rating.ErrAthleteNotFound
	}
	return rating.FilterRange(chain, from, to), nil
}

// ApplyCompetition writes the marker and all snapshots under one lock, so
// readers never observe a marker without its snapshots.
func (m *Memory) ApplyCompetition(_ context.Context, marker rating.ProcessedCompetition, snapshots []rating.RatingSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.processed[marker.ID]; exists {
		return rating.ErrAlreadyProcessed
	}
	for _, s := range snapshots {
		m.insertLocked(s)
	}
	m.processed[marker.ID] = marker
	return nil
}

func (m *Memory) insertLocked(s rating.RatingSnapshot) {
	chain := m.chains[s.AthleteID]

	// Binary search for insertion point keeps each chain ordered by the
	// canonical (timestamp, competition_id) key.
	i := sort.Search(len(chain), func(i int) bool {
		return s.OrdersBefore(chain[i])
	})
	chain = append(chain, rating.RatingSnapshot{})
	copy(chain[i+1:], chain[i:])
	chain[i] = s
	m.chains[s.AthleteID] = chain
}

func (m *Memory) RewindFrom(_ context.Context, at time.Time, id rating.CompetitionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cut := rating.RatingSnapshot{CompetitionID: id, Timestamp: at}
	for athlete, chain := range m.chains {
		i := sort.Search(len(chain), func(i int) bool {
			return !chain[i].OrdersBefore(cut)
		})
		if i == 0 {
			delete(m.chains, athlete)
			continue
		}
		m.chains[athlete] = chain[:i]
	}

	cutMarker := rating.ProcessedCompetition{ID: id, Timestamp: at}
	for compID, marker := range m.processed {
		if !marker.OrdersBefore(cutMarker) {
			delete(m.processed, compID)
		}
	}
	return nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chains = make(map[rating.AthleteID][]rating.RatingSnapshot)
	m.processed = make(map[rating.CompetitionID]rating.ProcessedCompetition)
	return nil
}
