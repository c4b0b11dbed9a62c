package domain

import "time"

// MatchType fixes how many players a match holds and how it starts.
type MatchType string

const (
	MatchTypeSolo        MatchType = "SOLO"
	MatchTypeMultiplayer MatchType = "MULTIPLAYER"
	MatchTypeFriend1v1   MatchType = "FRIEND_1V1"
)

// Valid reports whether t is one of the known match types.
func (t MatchType) Valid() bool {
	switch t {
	case MatchTypeSolo, MatchTypeMultiplayer, MatchTypeFriend1v1:
		return true
	}
	return false
}

// MinPlayers is the number of participants required before the match may start.
// Solo counts the AI opponent, which is seeded at creation and always ready.
func (t MatchType) MinPlayers() int {
	return 2
}

// MaxPlayers caps the roster. multiplayerCap applies to MULTIPLAYER only.
func (t MatchType) MaxPlayers(multiplayerCap int) int {
	if t == MatchTypeMultiplayer {
		if multiplayerCap > 0 {
			return multiplayerCap
		}
		return 8
	}
	return 2
}

// MatchStatus follows WAITING -> IN_PROGRESS -> COMPLETED; COMPLETED is terminal.
type MatchStatus string

const (
	StatusWaiting    MatchStatus = "WAITING"
	StatusInProgress MatchStatus = "IN_PROGRESS"
	StatusCompleted  MatchStatus = "COMPLETED"
)

// Option represents a possible answer for a question. Correct is only ever
// serialized server-side (Directory records, quiz storage), never to clients.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question is one entry of a match's immutable snapshot. A question may flag
// more than one option correct; a submission is scored by set equality.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []Option `json:"options"`
	Points  int      `json:"points"` // base points, defaults to 10 if zero
}

// CorrectOptionIDs returns the ids of all options flagged correct.
func (q Question) CorrectOptionIDs() []string {
	ids := make([]string, 0, 1)
	for _, opt := range q.Options {
		if opt.Correct {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

// BasePoints is the award for a correct answer before the time bonus.
func (q Question) BasePoints() int {
	if q.Points > 0 {
		return q.Points
	}
	return 10
}

// Quiz is the externally-owned content a match snapshots at creation.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	TimeLimit int        `json:"timeLimit"` // seconds per question, defaults to 30 if zero
	Archived  bool       `json:"archived,omitempty"` // archived quizzes cannot host new matches
	Questions []Question `json:"questions"`
}

// QuestionSeconds is the per-question time limit with the default applied.
func (q Quiz) QuestionSeconds() int {
	if q.TimeLimit > 0 {
		return q.TimeLimit
	}
	return 30
}

// AIProfile tunes the simulated opponent for solo matches.
type AIProfile struct {
	Difficulty string        `json:"difficulty"`
	Accuracy   float64       `json:"accuracy"` // probability of a correct answer, 0..1
	MinDelay   time.Duration `json:"minDelay"`
	MaxDelay   time.Duration `json:"maxDelay"`
}

// AnswerRecord is one scored submission in a player's answer log.
type AnswerRecord struct {
	QuestionID string   `json:"questionId"`
	Selected   []string `json:"selectedOptions"`
	Correct    bool     `json:"correct"`
	TimeSpent  float64  `json:"timeSpent"` // seconds
	Points     int      `json:"points"`
}

// Player is a participant in a single match.
type Player struct {
	UserID      string         `json:"userId"`
	DisplayName string         `json:"displayName"`
	Score       int            `json:"score"`
	Ready       bool           `json:"ready"`
	IsAI        bool           `json:"isAI,omitempty"`
	Profile     *AIProfile     `json:"aiProfile,omitempty"`
	Answers     []AnswerRecord `json:"answers"`
}

// AnswerFor returns the player's answer for questionID, if any.
func (p *Player) AnswerFor(questionID string) (AnswerRecord, bool) {
	for _, rec := range p.Answers {
		if rec.QuestionID == questionID {
			return rec, true
		}
	}
	return AnswerRecord{}, false
}

// Result is one row of a completed match's scoreboard.
type Result struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// WorkerStatus is the pool's view of a match worker's health.
type WorkerStatus string

const (
	WorkerActive WorkerStatus = "ACTIVE"
	WorkerIdle   WorkerStatus = "IDLE"
	WorkerDead   WorkerStatus = "DEAD"
)
