package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
	"quiz-match-service/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	hub := NewHub()
	directory := memory.NewDirectory()
	broadcaster := memory.NewBroadcaster(hub)

	pool := app.NewPool(directory, app.PoolConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	worker := app.NewWorker("worker-01", directory, broadcaster, nil, app.WorkerConfig{})
	pool.Register(worker)
	go worker.Run(ctx)

	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute)
	service := app.NewMatchService(directory, pool, quizRepo, broadcaster, app.ServiceConfig{})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", NewWSHandler(service, hub).ServeWS)
	NewAPI(service, hub).Register(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeEvent(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	if err := conn.WriteJSON(wsFrame{Event: event, Data: data}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// readUntil skips interleaved room events (player_joined, player_ready, ...)
// until the wanted event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var frame struct {
			Event string         `json:"event"`
			Data  map[string]any `json:"data"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if frame.Event == event {
			return frame.Data
		}
		if frame.Event == "error" && event != "error" {
			t.Fatalf("waiting for %s, got error frame: %v", event, frame.Data)
		}
	}
}

func authenticate(t *testing.T, conn *websocket.Conn, userID, username string) {
	t.Helper()
	writeEvent(t, conn, "authenticate", authenticatePayload{UserID: userID, Username: username})
	readUntil(t, conn, "authenticated")
}

func TestUnauthenticatedEventsRejected(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server)

	writeEvent(t, conn, "create_friend_match", createMatchPayload{QuizID: "quiz-1"})
	data := readUntil(t, conn, "error")
	if data["message"] != domain.ErrNotAuthenticated.Error() {
		t.Fatalf("unexpected error payload %v", data)
	}
}

func TestAuthenticateRequiresIdentity(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server)

	writeEvent(t, conn, "authenticate", authenticatePayload{UserID: "u1"})
	readUntil(t, conn, "auth_error")

	// a proper identity still works on the same connection
	authenticate(t, conn, "u1", "Alice")
}

func TestFriendMatchOverWebSocket(t *testing.T) {
	server := newTestServer(t)

	alice := dial(t, server)
	bob := dial(t, server)
	authenticate(t, alice, "u1", "Alice")
	authenticate(t, bob, "u2", "Bob")

	writeEvent(t, alice, "create_friend_match", createMatchPayload{QuizID: "quiz-1"})
	created := readUntil(t, alice, "friend_match_created")
	joinCode, _ := created["joinCode"].(string)
	if len(joinCode) != 6 {
		t.Fatalf("unexpected join code %q", joinCode)
	}

	writeEvent(t, bob, "join_match", joinPayload{JoinCode: joinCode})
	joined := readUntil(t, bob, "match_joined")
	if players, ok := joined["players"].([]any); !ok || len(players) != 2 {
		t.Fatalf("expected a roster of 2, got %v", joined["players"])
	}

	writeEvent(t, alice, "player_ready", readyPayload{})
	writeEvent(t, bob, "player_ready", readyPayload{})

	started := readUntil(t, alice, "match_started")
	readUntil(t, bob, "match_started")
	question, ok := started["question"].(map[string]any)
	if !ok {
		t.Fatalf("match_started without a question: %v", started)
	}
	questionID, _ := question["id"].(string)
	options, _ := question["options"].([]any)
	if questionID == "" || len(options) != 3 {
		t.Fatalf("unexpected question payload %v", question)
	}
	for _, raw := range options {
		opt := raw.(map[string]any)
		if _, leaked := opt["correct"]; leaked {
			t.Fatalf("broadcast option leaks correctness: %v", opt)
		}
	}

	writeEvent(t, alice, "submit_answer", submitAnswerPayload{QuestionID: questionID, SelectedOptions: []string{"o2"}, TimeSpent: 5})
	result := readUntil(t, alice, "answer_result")
	if result["isCorrect"] != true {
		t.Fatalf("expected a correct result, got %v", result)
	}

	writeEvent(t, bob, "submit_answer", submitAnswerPayload{QuestionID: questionID, SelectedOptions: []string{"o1"}, TimeSpent: 7})
	bobResult := readUntil(t, bob, "answer_result")
	if bobResult["isCorrect"] != false {
		t.Fatalf("expected an incorrect result, got %v", bobResult)
	}

	completed := readUntil(t, alice, "match_completed")
	readUntil(t, bob, "match_completed")
	winner, ok := completed["winner"].(map[string]any)
	if !ok || winner["userId"] != "u1" {
		t.Fatalf("expected u1 as winner, got %v", completed["winner"])
	}
}

func TestJoinWithBadCode(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server)
	authenticate(t, conn, "u1", "Alice")

	writeEvent(t, conn, "join_match", joinPayload{JoinCode: "NOSUCH"})
	data := readUntil(t, conn, "error")
	if data["message"] != domain.ErrInvalidJoinCode.Error() {
		t.Fatalf("unexpected error payload %v", data)
	}
}

func TestRejoinReattachesRoom(t *testing.T) {
	server := newTestServer(t)

	alice := dial(t, server)
	authenticate(t, alice, "u1", "Alice")
	writeEvent(t, alice, "create_friend_match", createMatchPayload{QuizID: "quiz-1"})
	created := readUntil(t, alice, "friend_match_created")
	joinCode := created["joinCode"].(string)

	bob := dial(t, server)
	authenticate(t, bob, "u2", "Bob")
	writeEvent(t, bob, "join_match", joinPayload{JoinCode: joinCode})
	readUntil(t, bob, "match_joined")
	bob.Close()

	// same user, fresh connection: the join resolves as a reconnect
	bob2 := dial(t, server)
	authenticate(t, bob2, "u2", "Bob")
	writeEvent(t, bob2, "join_match", joinPayload{JoinCode: joinCode})
	joined := readUntil(t, bob2, "match_joined")
	if players, ok := joined["players"].([]any); !ok || len(players) != 2 {
		t.Fatalf("reconnect must return the full roster, got %v", joined["players"])
	}

	// the reattached connection still receives room events
	writeEvent(t, alice, "player_ready", readyPayload{})
	readUntil(t, bob2, "player_ready")
}

func sampleQuiz() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:        "quiz-1",
			Title:     "Quick Arithmetic",
			TimeLimit: 30,
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3", Correct: false},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5", Correct: false},
					},
					Points: 10,
				},
			},
		},
	}
}
