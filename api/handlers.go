/*
handlers.go - HTTP API handlers for the rating engine

PURPOSE:
  Exposes the rating engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the replay controller and store.

ENDPOINTS:
  Ratings:
    GET  /api/ratings                    Current ratings table
    GET  /api/athletes/{id}/history      Progression history (date range)

  Feed:
    GET  /api/competitions               Persisted feed
    POST /api/competitions               Append a competition + replay
    GET  /api/competitions/processed     Processed set

  Controller:
    POST /api/replay                     Incremental replay over the feed
    POST /api/recompute                  Full recompute from scratch
    POST /api/verify                     Self-check incremental vs recompute

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed request bodies, bad date filters
  - 404: Unknown athlete
  - 409: Duplicate competition, verify mismatch
  - 422: Competition rejected for integrity reasons
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/crux/rating-engine/metrics"
	"github.com/crux/rating-engine/rating"
	"github.com/crux/rating-engine/store/sqlite"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Engine  *rating.Engine
	Metrics *metrics.Metrics
}

// NewHandler creates a new handler backed by the given store.
func NewHandler(store *sqlite.Store, m *metrics.Metrics) *Handler {
	return &Handler{
		Store:   store,
		Engine:  rating.NewEngine(store),
		Metrics: m,
	}
}

// =============================================================================
// RATINGS
// =============================================================================

// GetRatings returns the current ratings table, best first.
func (h *Handler) GetRatings(w http.ResponseWriter, r *http.Request) {
	table, err := h.Store.LatestRatings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ratings", err)
		return
	}

	entries := make([]rating.RatingEntry, 0, len(table))
	for _, e := range table {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Rating.Equal(entries[j].Rating) {
			return entries[i].Rating.GreaterThan(entries[j].Rating)
		}
		return entries[i].AthleteID < entries[j].AthleteID
	})

	if topStr := r.URL.Query().Get("top"); topStr != "" {
		top, err := strconv.Atoi(topStr)
		if err != nil || top < 0 {
			writeError(w, http.StatusBadRequest, "Invalid top parameter", err)
			return
		}
		if top < len(entries) {
			entries = entries[:top]
		}
	}

	dtos := make([]RatingEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toRatingEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAthleteHistory returns an athlete's progression, optionally bounded by
// from/to query dates.
func (h *Handler) GetAthleteHistory(w http.ResponseWriter, r *http.Request) {
	id := rating.AthleteID(chi.URLParam(r, "id"))

	var from, to time.Time
	var err error
	if s := r.URL.Query().Get("from"); s != "" {
		if from, err = parseTimestamp(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date", err)
			return
		}
	}
	if s := r.URL.Query().Get("to"); s != "" {
		if to, err = parseTimestamp(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date", err)
			return
		}
	}

	snaps, err := h.Store.History(r.Context(), id, from, to)
	if err != nil {
		if errors.Is(err, rating.ErrAthleteNotFound) {
			writeError(w, http.StatusNotFound, "Athlete not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load history", err)
		return
	}

	dtos := make([]SnapshotDTO, len(snaps))
	for i, s := range snaps {
		dtos[i] = toSnapshotDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// FEED
// =============================================================================

// ListCompetitions returns the persisted feed.
func (h *Handler) ListCompetitions(w http.ResponseWriter, r *http.Request) {
	comps, err := h.Store.Competitions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load feed", err)
		return
	}

	dtos := make([]CompetitionDTO, len(comps))
	for i, c := range comps {
		dtos[i] = toCompetitionDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AppendCompetition appends one competition to the feed and folds it in
// with an incremental replay.
func (h *Handler) AppendCompetition(w http.ResponseWriter, r *http.Request) {
	var dto CompetitionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	comp, err := fromCompetitionDTO(dto)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid timestamp", err)
		return
	}
	if verr := comp.Validate(); verr != nil {
		if h.Metrics != nil {
			h.Metrics.CompetitionsRejected.Inc()
		}
		writeError(w, http.StatusUnprocessableEntity, "Competition rejected", verr.Reason)
		return
	}

	if err := h.Store.SaveCompetition(r.Context(), comp); err != nil {
		if errors.Is(err, rating.ErrAlreadyProcessed) {
			writeError(w, http.StatusConflict, "Competition already exists", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to save competition", err)
		return
	}

	result, err := h.replay(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Replay failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReplayResultDTO(result))
}

// ListProcessed returns the processed set.
func (h *Handler) ListProcessed(w http.ResponseWriter, r *http.Request) {
	markers, err := h.Store.Processed(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load processed set", err)
		return
	}

	dtos := make([]ProcessedDTO, len(markers))
	for i, m := range markers {
		dtos[i] = ProcessedDTO{
			CompetitionID: string(m.ID),
			Timestamp:     m.Timestamp.Format("2006-01-02"),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CONTROLLER
// =============================================================================

// TriggerReplay runs an incremental replay over the persisted feed.
func (h *Handler) TriggerReplay(w http.ResponseWriter, r *http.Request) {
	result, err := h.replay(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Replay failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toReplayResultDTO(result))
}

// TriggerRecompute resets all rating state and replays the full feed.
func (h *Handler) TriggerRecompute(w http.ResponseWriter, r *http.Request) {
	feed, err := h.Store.Competitions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load feed", err)
		return
	}

	start := time.Now()
	result, err := h.Engine.Recompute(r.Context(), feed)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Recompute failed", err)
		return
	}
	h.observe(r, result, time.Since(start))
	writeJSON(w, http.StatusOK, toReplayResultDTO(result))
}

// VerifyRatings checks incremental state against a full recompute.
func (h *Handler) VerifyRatings(w http.ResponseWriter, r *http.Request) {
	feed, err := h.Store.Competitions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load feed", err)
		return
	}

	err = h.Engine.Verify(r.Context(), feed)
	if err == nil {
		writeJSON(w, http.StatusOK, VerifyResultDTO{Consistent: true})
		return
	}

	var mismatch *rating.RecomputeMismatchError
	if errors.As(err, &mismatch) {
		dto := VerifyResultDTO{Consistent: false}
		for _, d := range mismatch.Diffs {
			inc, _ := d.Incremental.Float64()
			rec, _ := d.Recomputed.Float64()
			dto.Diffs = append(dto.Diffs, RatingDiffDTO{
				AthleteID:   string(d.AthleteID),
				Incremental: inc,
				Recomputed:  rec,
			})
		}
		writeJSON(w, http.StatusConflict, dto)
		return
	}
	writeError(w, http.StatusInternalServerError, "Verify failed", err)
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) replay(r *http.Request) (*rating.ReplayResult, error) {
	feed, err := h.Store.Competitions(r.Context())
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := h.Engine.Replay(r.Context(), feed)
	if err != nil {
		return nil, err
	}
	h.observe(r, result, time.Since(start))
	return result, nil
}

func (h *Handler) observe(r *http.Request, result *rating.ReplayResult, elapsed time.Duration) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.CompetitionsProcessed.Add(float64(len(result.Processed)))
	h.Metrics.CompetitionsRejected.Add(float64(len(result.Rejected)))
	h.Metrics.SnapshotsWritten.Add(float64(len(result.Snapshots)))
	if result.Rewound {
		h.Metrics.Rewinds.Inc()
	}
	h.Metrics.ReplayDuration.Observe(elapsed.Seconds())

	if table, err := h.Store.LatestRatings(r.Context()); err == nil {
		h.Metrics.AthletesTotal.Set(float64(len(table)))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, details any) {
	resp := ErrorResponse{Error: message}
	if err, ok := details.(error); ok && err != nil {
		resp.Details = err.Error()
	} else if details != nil {
		resp.Details = details
	}
	writeJSON(w, status, resp)
}
