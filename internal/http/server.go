package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nightwatch/presence/internal/db"
)

// Store is the slice of the remote store the API serves from.
type Store interface {
	ListParticipants(ctx context.Context) ([]db.Participant, error)
	GetParticipant(ctx context.Context, id uuid.UUID) (*db.Participant, error)
	UpdateParticipantStatus(ctx context.Context, id uuid.UUID, online bool, lastSeen time.Time) (*db.Participant, error)
	ListPenalties(ctx context.Context, participantID uuid.UUID) ([]db.PenaltyRecord, error)
	CreateVerse(ctx context.Context, participantID uuid.UUID, content, weekday string, day time.Time) (*db.VerseSubmission, bool, error)
	GetVerseForDate(ctx context.Context, participantID uuid.UUID, day time.Time) (*db.VerseSubmission, error)
	ListVersesOn(ctx context.Context, day time.Time) ([]db.VerseSubmission, error)
}

// Reducer resolves penalties; implemented by monitor.Penalizer.
type Reducer interface {
	Reduce(ctx context.Context, participantID, reducer uuid.UUID) (*db.PenaltyRecord, error)
}

type Server struct {
	store    Store
	reducer  Reducer
	location *time.Location
	now      func() time.Time
}

func NewServer(store Store, reducer Reducer, location *time.Location) *Server {
	if location == nil {
		location = time.Local
	}
	return &Server{store: store, reducer: reducer, location: location, now: time.Now}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/participants", s.handleListParticipants)
	r.Get("/participants/{participantId}", s.handleGetParticipant)
	r.Patch("/participants/{participantId}/status", s.handlePatchStatus)
	r.Get("/participants/{participantId}/penalties", s.handleListPenalties)
	r.Post("/participants/{participantId}/penalties/reduce", s.handleReducePenalty)
	r.Post("/verses", s.handleCreateVerse)
	r.Get("/verses/today", s.handleListVersesToday)

	return r
}

// Models

type participantResponse struct {
	ID           string `json:"id"`
	DeviceLabel  string `json:"device_label"`
	PenaltyCount int32  `json:"penalty_count"`
	Online       bool   `json:"online"`
	LastSeen     int64  `json:"last_seen"`
	UpdatedAt    int64  `json:"updated_at"`
}

type penaltyResponse struct {
	ID          string `json:"id"`
	Participant string `json:"participant"`
	Date        string `json:"date"`
	Reducer     string `json:"reducer,omitempty"`
	ReducedAt   int64  `json:"reduced_at,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	Active      bool   `json:"active"`
}

type verseResponse struct {
	ID          string `json:"id"`
	Participant string `json:"participant"`
	Content     string `json:"content"`
	Date        string `json:"date"`
	Weekday     string `json:"weekday"`
	CreatedAt   int64  `json:"created_at"`
}

type patchStatusRequest struct {
	Online *bool `json:"online"`
}

type reducePenaltyRequest struct {
	Reducer string `json:"reducer"`
}

type createVerseRequest struct {
	Participant string `json:"participant"`
	Content     string `json:"content"`
}

// Handlers

func (s *Server) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	participants, err := s.store.ListParticipants(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	resp := make([]participantResponse, 0, len(participants))
	for _, p := range participants {
		resp = append(resp, mapParticipant(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetParticipant(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "participantId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_participant_id")
		return
	}
	p, err := s.store.GetParticipant(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "participant_not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapParticipant(*p))
}

func (s *Server) handlePatchStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "participantId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_participant_id")
		return
	}
	var req patchStatusRequest
	if err := decodeJSON(r, &req); err != nil || req.Online == nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	p, err := s.store.UpdateParticipantStatus(r.Context(), id, *req.Online, s.now())
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "participant_not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapParticipant(*p))
}

func (s *Server) handleListPenalties(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "participantId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_participant_id")
		return
	}
	penalties, err := s.store.ListPenalties(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	resp := make([]penaltyResponse, 0, len(penalties))
	for _, p := range penalties {
		resp = append(resp, mapPenalty(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReducePenalty(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "participantId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_participant_id")
		return
	}
	var req reducePenaltyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	reducer, err := uuid.Parse(strings.TrimSpace(req.Reducer))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_reducer_id")
		return
	}
	record, err := s.reducer.Reduce(r.Context(), id, reducer)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "participant_not_found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if record == nil {
		// zero counter, nothing to reduce
		writeJSON(w, http.StatusOK, map[string]bool{"reduced": false})
		return
	}
	writeJSON(w, http.StatusOK, mapPenalty(*record))
}

func (s *Server) handleCreateVerse(w http.ResponseWriter, r *http.Request) {
	var req createVerseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	participantID, err := uuid.Parse(strings.TrimSpace(req.Participant))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_participant_id")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "missing_content")
		return
	}

	today := s.now().In(s.location)
	verse, created, err := s.store.CreateVerse(r.Context(), participantID, req.Content, today.Weekday().String(), today)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if created {
		writeJSON(w, http.StatusCreated, mapVerse(*verse))
		return
	}
	// already submitted today: report the existing verse, not an error
	existing, err := s.store.GetVerseForDate(r.Context(), participantID, today)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapVerse(*existing))
}

func (s *Server) handleListVersesToday(w http.ResponseWriter, r *http.Request) {
	verses, err := s.store.ListVersesOn(r.Context(), s.now().In(s.location))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	resp := make([]verseResponse, 0, len(verses))
	for _, v := range verses {
		resp = append(resp, mapVerse(v))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Mapping helpers

const dateLayout = "2006-01-02"

func mapParticipant(p db.Participant) participantResponse {
	return participantResponse{
		ID:           p.ID.String(),
		DeviceLabel:  p.DeviceLabel,
		PenaltyCount: p.PenaltyCount,
		Online:       p.Online,
		LastSeen:     p.LastSeenAt.Unix(),
		UpdatedAt:    p.UpdatedAt.Unix(),
	}
}

func mapPenalty(p db.PenaltyRecord) penaltyResponse {
	resp := penaltyResponse{
		ID:          p.ID.String(),
		Participant: p.ParticipantID.String(),
		Date:        p.PenaltyDate.Format(dateLayout),
		CreatedAt:   p.CreatedAt.Unix(),
		Active:      p.Active(),
	}
	if p.ReducedBy != nil {
		resp.Reducer = p.ReducedBy.String()
	}
	if p.ReducedAt != nil {
		resp.ReducedAt = p.ReducedAt.Unix()
	}
	return resp
}

func mapVerse(v db.VerseSubmission) verseResponse {
	return verseResponse{
		ID:          v.ID.String(),
		Participant: v.ParticipantID.String(),
		Content:     v.Content,
		Date:        v.SubmittedOn.Format(dateLayout),
		Weekday:     v.Weekday,
		CreatedAt:   v.CreatedAt.Unix(),
	}
}

// Utilities

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
