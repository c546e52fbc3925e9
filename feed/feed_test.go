package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParse_NormalizedResults(t *testing.T) {
	data := []byte(`[
		{
			"competition_id": "2024-chamonix-lead-final",
			"timestamp": "2024-07-12",
			"placements": [
				{"athlete_id": "janja-garnbret", "rank": 1},
				{"athlete_id": "ai-mori", "rank": 2}
			]
		},
		{
			"competition_id": "2024-innsbruck-lead-final",
			"timestamp": "2024-06-20T18:00:00Z",
			"placements": [
				{"athlete_id": "ai-mori", "rank": 1}
			]
		}
	]`)

	source, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	comps, err := source.Competitions(context.Background())
	if err != nil {
		t.Fatalf("Competitions failed: %v", err)
	}
	if len(comps) != 2 {
		t.Fatalf("Expected 2 competitions, got %d", len(comps))
	}

	first := comps[0]
	if first.ID != "2024-chamonix-lead-final" {
		t.Errorf("Unexpected id: %s", first.ID)
	}
	want := time.Date(2024, 7, 12, 0, 0, 0, 0, time.UTC)
	if !first.Timestamp.Equal(want) {
		t.Errorf("Expected %v, got %v", want, first.Timestamp)
	}
	if len(first.Placements) != 2 || first.Placements[0].AthleteID != "janja-garnbret" || first.Placements[1].Rank != 2 {
		t.Errorf("Placements not preserved: %+v", first.Placements)
	}

	second := comps[1]
	if second.Timestamp.Hour() != 18 {
		t.Errorf("RFC3339 timestamp not parsed: %v", second.Timestamp)
	}
}

func TestParse_InvalidTimestamp(t *testing.T) {
	data := []byte(`[{"competition_id": "c1", "timestamp": "12/07/2024", "placements": []}]`)

	if _, err := Parse(data); err == nil {
		t.Error("Expected error for unsupported timestamp format")
	}
}

func TestParse_MalformedJSON(t *testing.T) {
	if _, err := Parse([]byte(`{not json`)); err == nil {
		t.Error("Expected decode error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	content := []byte(`[{"competition_id": "c1", "timestamp": "2024-05-03", "placements": [{"athlete_id": "a", "rank": 1}]}]`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("Failed to write feed file: %v", err)
	}

	source, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	comps, err := source.Competitions(context.Background())
	if err != nil {
		t.Fatalf("Competitions failed: %v", err)
	}
	if len(comps) != 1 || comps[0].ID != "c1" {
		t.Errorf("Unexpected feed: %+v", comps)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestStatic_CopiesSlice(t *testing.T) {
	source := NewStatic()
	comps, err := source.Competitions(context.Background())
	if err != nil {
		t.Fatalf("Competitions failed: %v", err)
	}
	if len(comps) != 0 {
		t.Errorf("Expected empty source, got %d", len(comps))
	}
}
