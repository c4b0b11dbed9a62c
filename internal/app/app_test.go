package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"quiz-match-service/internal/domain"
)

// stubDirectory is a minimal in-memory Directory for unit tests; TTLs are
// accepted but not enforced (the infra packages test expiry).
type stubDirectory struct {
	mu      sync.Mutex
	entries map[string]string
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{entries: make(map[string]string)}
}

func (d *stubDirectory) Put(_ context.Context, key, value string, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[key] = value
	return nil
}

func (d *stubDirectory) Get(_ context.Context, key string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	value, ok := d.entries[key]
	return value, ok, nil
}

func (d *stubDirectory) Del(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, key)
	return nil
}

type recordedNotice struct {
	MatchID string
	UserID  string
	Event   string
	Notice  domain.Notice
}

// recordingBroadcaster captures every notice for assertion.
type recordingBroadcaster struct {
	events chan recordedNotice
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{events: make(chan recordedNotice, 64)}
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, matchID string, n domain.Notice) error {
	b.events <- recordedNotice{MatchID: matchID, Event: n.Event(), Notice: n}
	return nil
}

func (b *recordingBroadcaster) SendTo(_ context.Context, matchID, userID string, n domain.Notice) error {
	b.events <- recordedNotice{MatchID: matchID, UserID: userID, Event: n.Event(), Notice: n}
	return nil
}

// next waits for the next notice with the given event name, skipping others.
func (b *recordingBroadcaster) next(t *testing.T, event string) recordedNotice {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case rec := <-b.events:
			if rec.Event == event {
				return rec
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s notice", event)
		}
	}
}

type stubQuizzes struct {
	quizzes map[string]domain.Quiz
}

func (s *stubQuizzes) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := s.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func testQuiz(questions, timeLimit int) domain.Quiz {
	quiz := domain.Quiz{ID: "quiz-1", Title: "Test Quiz", TimeLimit: timeLimit}
	for i := 0; i < questions; i++ {
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:     "q" + string(rune('1'+i)),
			Prompt: "Pick the right option",
			Options: []domain.Option{
				{ID: "o1", Text: "Wrong"},
				{ID: "o2", Text: "Right", Correct: true},
			},
			Points: 10,
		})
	}
	return quiz
}

// seedMatch writes a waiting match straight into the directory, the state a
// created-but-unassigned match is in.
func seedMatch(t *testing.T, d Directory, quiz domain.Quiz, players ...[2]string) *domain.Match {
	t.Helper()
	m := domain.NewMatch("m1", "ABC123", quiz, domain.MatchTypeFriend1v1, 0, time.Now())
	for _, p := range players {
		if err := m.AddPlayer(p[0], p[1]); err != nil {
			t.Fatalf("add player %s: %v", p[0], err)
		}
	}
	if err := SaveMatch(context.Background(), d, m, time.Hour); err != nil {
		t.Fatalf("seed match: %v", err)
	}
	if err := d.Put(context.Background(), JoinCodeKey(m.JoinCode), m.ID, time.Hour); err != nil {
		t.Fatalf("seed join code: %v", err)
	}
	return m
}
