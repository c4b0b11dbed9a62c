package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
)

// WSHandler terminates gameplay connections and forwards their events into the
// orchestration service. It is the only surface clients address directly.
type WSHandler struct {
	service  *app.MatchService
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.MatchService, hub *Hub) *WSHandler {
	return &WSHandler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type authenticatePayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type createMatchPayload struct {
	QuizID     string `json:"quizId"`
	Difficulty string `json:"difficulty,omitempty"`
}

type joinPayload struct {
	JoinCode string `json:"joinCode"`
}

type readyPayload struct {
	MatchID string `json:"matchId,omitempty"`
}

type submitAnswerPayload struct {
	MatchID         string   `json:"matchId,omitempty"`
	QuestionID      string   `json:"questionId"`
	SelectedOptions []string `json:"selectedOptions"`
	TimeSpent       float64  `json:"timeSpent"`
}

type matchCreatedReply struct {
	MatchID  string `json:"matchId"`
	JoinCode string `json:"joinCode"`
}

type matchJoinedReply struct {
	MatchID string              `json:"matchId"`
	Players []domain.PlayerView `json:"players"`
}

type userReply struct {
	User authenticatePayload `json:"user"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and runs the connection's event loop. Every
// failure is converted into an error frame; nothing a client sends can take
// the loop down.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn, send: make(chan wsFrame, 16)}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for frame := range c.send {
			if err := conn.WriteJSON(frame); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			break
		}
		h.handle(r.Context(), c, frame)
	}

	h.hub.leave(c)
	close(c.send)
	<-writerDone
}

func (h *WSHandler) handle(ctx context.Context, c *client, frame wsFrame) {
	if frame.Event == "authenticate" {
		h.authenticate(c, frame.Data)
		return
	}
	if !c.authed {
		sendError(c, domain.ErrNotAuthenticated.Error())
		return
	}

	switch frame.Event {
	case "create_friend_match":
		h.createMatch(ctx, c, frame.Data, domain.MatchTypeFriend1v1, "friend_match_created")
	case "create_solo_match":
		h.createMatch(ctx, c, frame.Data, domain.MatchTypeSolo, "solo_match_created")
	case "join_match", "join_match_by_code":
		h.joinMatch(ctx, c, frame.Data)
	case "player_ready":
		h.playerReady(ctx, c, frame.Data)
	case "submit_answer":
		h.submitAnswer(ctx, c, frame.Data)
	default:
		sendError(c, "unsupported event")
	}
}

// authenticate attaches the connection's identity. Identity issuance itself is
// an external collaborator; this only validates the claimed shape.
func (h *WSHandler) authenticate(c *client, data json.RawMessage) {
	var payload authenticatePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.UserID == "" || payload.Username == "" {
		send(c, "auth_error", errorPayload{Message: "userId and username are required"})
		return
	}
	c.userID = payload.UserID
	c.username = payload.Username
	c.authed = true
	send(c, "authenticated", userReply{User: payload})
}

func (h *WSHandler) createMatch(ctx context.Context, c *client, data json.RawMessage, matchType domain.MatchType, replyEvent string) {
	var payload createMatchPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.QuizID == "" {
		sendError(c, "quizId is required")
		return
	}
	m, err := h.service.CreateMatch(ctx, payload.QuizID, matchType, payload.Difficulty, c.userID, c.username)
	if err != nil {
		sendError(c, err.Error())
		return
	}
	c.matchID = m.ID
	h.hub.join(m.ID, c)
	send(c, replyEvent, matchCreatedReply{MatchID: m.ID, JoinCode: m.JoinCode})
}

func (h *WSHandler) joinMatch(ctx context.Context, c *client, data json.RawMessage) {
	var payload joinPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.JoinCode == "" {
		sendError(c, "joinCode is required")
		return
	}
	matchID, players, err := h.service.JoinByCode(ctx, payload.JoinCode, c.userID, c.username)
	if err != nil && !errors.Is(err, domain.ErrAlreadyInMatch) {
		sendError(c, err.Error())
		return
	}
	// ErrAlreadyInMatch means this user is on the roster already; treat the
	// join as a reconnection and re-attach the connection to the room.
	h.hub.leave(c)
	c.matchID = matchID
	h.hub.join(matchID, c)
	send(c, "match_joined", matchJoinedReply{MatchID: matchID, Players: players})
}

func (h *WSHandler) playerReady(ctx context.Context, c *client, data json.RawMessage) {
	var payload readyPayload
	if len(data) > 0 {
		_ = json.Unmarshal(data, &payload)
	}
	matchID := payload.MatchID
	if matchID == "" {
		matchID = c.matchID
	}
	if matchID == "" {
		sendError(c, "not in a match")
		return
	}
	if err := h.service.Ready(ctx, matchID, c.userID); err != nil {
		sendError(c, err.Error())
	}
}

func (h *WSHandler) submitAnswer(ctx context.Context, c *client, data json.RawMessage) {
	var payload submitAnswerPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.QuestionID == "" {
		sendError(c, "questionId is required")
		return
	}
	matchID := payload.MatchID
	if matchID == "" {
		matchID = c.matchID
	}
	if matchID == "" {
		sendError(c, "not in a match")
		return
	}
	if err := h.service.Submit(ctx, matchID, c.userID, payload.QuestionID, payload.SelectedOptions, payload.TimeSpent); err != nil {
		sendError(c, err.Error())
	}
}

func send(c *client, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("marshal %s payload: %v", event, err)
		return
	}
	c.enqueue(wsFrame{Event: event, Data: data})
}

func sendError(c *client, message string) {
	send(c, "error", errorPayload{Message: message})
}
