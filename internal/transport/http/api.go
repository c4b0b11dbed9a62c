package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
)

// API is the HTTP discovery/monitoring surface; gameplay stays on the
// websocket.
type API struct {
	service *app.MatchService
	hub     *Hub
}

func NewAPI(service *app.MatchService, hub *Hub) *API {
	return &API{service: service, hub: hub}
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("POST /matches/friend", a.handleCreateFriend)
	mux.HandleFunc("GET /matches/code/{code}", a.handleLookup)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := a.service.Health()
	info.Players = a.hub.Players()
	writeJSON(w, http.StatusOK, info)
}

type createFriendRequest struct {
	QuizID   string `json:"quizId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

func (a *API) handleCreateFriend(w http.ResponseWriter, r *http.Request) {
	var req createFriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == "" || req.UserID == "" || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "quizId, userId and username are required"})
		return
	}
	m, err := a.service.CreateMatch(r.Context(), req.QuizID, domain.MatchTypeFriend1v1, "", req.UserID, req.Username)
	if errors.Is(err, domain.ErrQuizNotFound) {
		writeJSON(w, http.StatusNotFound, errorPayload{Message: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorPayload{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, matchCreatedReply{MatchID: m.ID, JoinCode: m.JoinCode})
}

type matchSummary struct {
	MatchID   string              `json:"matchId"`
	QuizID    string              `json:"quizId"`
	QuizTitle string              `json:"quizTitle"`
	MatchType domain.MatchType    `json:"matchType"`
	Status    domain.MatchStatus  `json:"status"`
	JoinCode  string              `json:"joinCode"`
	Players   []domain.PlayerView `json:"players"`
	CreatedAt time.Time           `json:"createdAt"`
}

func (a *API) handleLookup(w http.ResponseWriter, r *http.Request) {
	m, err := a.service.LookupByCode(r.Context(), r.PathValue("code"))
	if errors.Is(err, domain.ErrInvalidJoinCode) {
		writeJSON(w, http.StatusNotFound, errorPayload{Message: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorPayload{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, matchSummary{
		MatchID:   m.ID,
		QuizID:    m.QuizID,
		QuizTitle: m.QuizTitle,
		MatchType: m.Type,
		Status:    m.Status,
		JoinCode:  m.JoinCode,
		Players:   domain.RosterView(m),
		CreatedAt: m.CreatedAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}
