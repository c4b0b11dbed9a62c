package domain

import (
	"math"
	"sort"
	"time"
)

// DefaultBonusRate is the score-per-second multiplier on remaining time.
const DefaultBonusRate = 2.0

// Match is the central aggregate. It is owned by exactly one worker goroutine
// once assigned; none of its methods take locks. The copy kept in the
// Directory is a routing/recovery aid, never the source of truth for an
// in-progress match's per-question timing.
type Match struct {
	ID                string             `json:"id"`
	QuizID            string             `json:"quizId"`
	QuizTitle         string             `json:"quizTitle"`
	JoinCode          string             `json:"joinCode"`
	Type              MatchType          `json:"matchType"`
	Status            MatchStatus        `json:"status"`
	MaxPlayers        int                `json:"maxPlayers"`
	TimeLimit         int                `json:"timeLimit"` // seconds per question
	Players           map[string]*Player `json:"players"`
	Order             []string           `json:"playerOrder"` // join order, for display and tie-breaks
	Questions         []Question         `json:"questions"`
	Current           int                `json:"currentQuestionIndex"`
	QuestionStartedAt time.Time          `json:"questionStartTime"`
	WorkerID          string             `json:"workerId,omitempty"` // set once, at first join
	CreatedAt         time.Time          `json:"createdAt"`
}

// NewMatch snapshots the quiz and initializes a WAITING match with no players.
func NewMatch(id, joinCode string, quiz Quiz, matchType MatchType, multiplayerCap int, now time.Time) *Match {
	questions := make([]Question, len(quiz.Questions))
	copy(questions, quiz.Questions)
	return &Match{
		ID:         id,
		QuizID:     quiz.ID,
		QuizTitle:  quiz.Title,
		JoinCode:   joinCode,
		Type:       matchType,
		Status:     StatusWaiting,
		MaxPlayers: matchType.MaxPlayers(multiplayerCap),
		TimeLimit:  quiz.QuestionSeconds(),
		Players:    make(map[string]*Player),
		Questions:  questions,
		CreatedAt:  now,
	}
}

// AddPlayer registers a human participant. The match must still be WAITING,
// have room, and not already contain the user.
func (m *Match) AddPlayer(userID, displayName string) error {
	if m.Status != StatusWaiting {
		return ErrMatchNotJoinable
	}
	if _, ok := m.Players[userID]; ok {
		return ErrAlreadyInMatch
	}
	if len(m.Players) >= m.MaxPlayers {
		return ErrMatchFull
	}
	m.Players[userID] = &Player{UserID: userID, DisplayName: displayName}
	m.Order = append(m.Order, userID)
	return nil
}

// AddAI seeds the simulated opponent for solo matches. AI players are always ready.
func (m *Match) AddAI(userID, displayName string, profile AIProfile) error {
	if err := m.AddPlayer(userID, displayName); err != nil {
		return err
	}
	p := m.Players[userID]
	p.IsAI = true
	p.Ready = true
	p.Profile = &profile
	return nil
}

// MarkReady flags the player ready. Idempotent: a second call is a no-op.
func (m *Match) MarkReady(userID string) error {
	p, ok := m.Players[userID]
	if !ok {
		return ErrPlayerNotFound
	}
	p.Ready = true
	return nil
}

// CanStart evaluates the start condition: still WAITING, enough players, all ready.
func (m *Match) CanStart() bool {
	if m.Status != StatusWaiting {
		return false
	}
	if len(m.Players) < m.Type.MinPlayers() {
		return false
	}
	for _, p := range m.Players {
		if !p.Ready {
			return false
		}
	}
	return len(m.Questions) > 0
}

// Start transitions WAITING -> IN_PROGRESS and arms the first question.
func (m *Match) Start(now time.Time) {
	m.Status = StatusInProgress
	m.Current = 0
	m.QuestionStartedAt = now
}

// ActiveQuestion returns the question currently in play.
func (m *Match) ActiveQuestion() (Question, bool) {
	if m.Status != StatusInProgress || m.Current >= len(m.Questions) {
		return Question{}, false
	}
	return m.Questions[m.Current], true
}

// ApplyAnswer scores a submission against the active question. Submissions for
// a match that is not in progress, for a stale question, from an unknown user,
// or repeated for the same question are silently ignored (nil record) so that
// late client events never corrupt state.
func (m *Match) ApplyAnswer(userID, questionID string, selected []string, timeSpent float64, bonusRate float64) *AnswerRecord {
	question, ok := m.ActiveQuestion()
	if !ok || question.ID != questionID {
		return nil
	}
	p, ok := m.Players[userID]
	if !ok {
		return nil
	}
	if _, answered := p.AnswerFor(questionID); answered {
		return nil
	}

	correct, points := Score(question, selected, timeSpent, m.TimeLimit, bonusRate)
	rec := AnswerRecord{
		QuestionID: questionID,
		Selected:   selected,
		Correct:    correct,
		TimeSpent:  timeSpent,
		Points:     points,
	}
	p.Answers = append(p.Answers, rec)
	p.Score += points
	return &rec
}

// AllAnswered reports whether every player has an answer for the active question.
func (m *Match) AllAnswered() bool {
	question, ok := m.ActiveQuestion()
	if !ok {
		return false
	}
	for _, p := range m.Players {
		if _, answered := p.AnswerFor(question.ID); !answered {
			return false
		}
	}
	return true
}

// Advance moves to the next question, or to COMPLETED when the last question
// has been consumed. The index only ever moves forward. Returns true once the
// match is completed.
func (m *Match) Advance(now time.Time) (completed bool) {
	if m.Status != StatusInProgress {
		return m.Status == StatusCompleted
	}
	m.Current++
	if m.Current < len(m.Questions) {
		m.QuestionStartedAt = now
		return false
	}
	m.Status = StatusCompleted
	return true
}

// Results returns the scoreboard sorted by score descending. Ties keep join
// order, so the sort must be stable.
func (m *Match) Results() []Result {
	results := make([]Result, 0, len(m.Order))
	for _, userID := range m.Order {
		p := m.Players[userID]
		results = append(results, Result{UserID: p.UserID, Username: p.DisplayName, Score: p.Score})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// Score computes (correct, points) for a submission. Correctness is set
// equality between the selected option ids and the options flagged correct,
// order irrelevant. Points are zero when incorrect, otherwise base points plus
// a time bonus. timeSpent is client-supplied, so it is clamped into
// [0, timeLimit]: a negative value cannot mint extra bonus and an over-limit
// value keeps the base points.
func Score(q Question, selected []string, timeSpent float64, timeLimit int, bonusRate float64) (bool, int) {
	correct := optionSetsEqual(selected, q.CorrectOptionIDs())
	if !correct {
		return false, 0
	}
	if bonusRate <= 0 {
		bonusRate = DefaultBonusRate
	}
	if timeSpent < 0 {
		timeSpent = 0
	}
	if timeSpent > float64(timeLimit) {
		timeSpent = float64(timeLimit)
	}
	bonus := int(math.Floor((float64(timeLimit) - timeSpent) * bonusRate))
	return true, q.BasePoints() + bonus
}

func optionSetsEqual(a, b []string) bool {
	if len(b) == 0 {
		return false // a question with no correct options can never be answered correctly
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	if len(set) != len(b) {
		return false
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
