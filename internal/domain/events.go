package domain

// Command is the closed set of events a match worker dispatches on. Using a
// tagged union instead of string-keyed handlers keeps dispatch exhaustive at
// compile time.
type Command interface {
	isCommand()
	Match() string
}

// JoinMatch adds a human player to a waiting match. Reply must be buffered.
type JoinMatch struct {
	MatchID     string
	UserID      string
	DisplayName string
	Reply       chan JoinReply
}

// JoinReply carries the roster back to the requesting connection. On
// ErrAlreadyInMatch the roster is still populated so the caller can treat the
// join as a reconnection.
type JoinReply struct {
	Players []PlayerView
	Err     error
}

// SetReady marks a player ready and may start the match.
type SetReady struct {
	MatchID string
	UserID  string
	Reply   chan error
}

// SubmitAnswer scores a player's selection for the active question.
type SubmitAnswer struct {
	MatchID    string
	UserID     string
	QuestionID string
	Selected   []string
	TimeSpent  float64 // seconds
}

// QuestionTimeout is posted by the auto-advance timer. Index guards against a
// timer superseded by an all-answered advance.
type QuestionTimeout struct {
	MatchID string
	Index   int
}

// AIAnswer is the opponent collaborator's submission, posted after its
// simulated response delay.
type AIAnswer struct {
	MatchID    string
	UserID     string
	QuestionID string
	Selected   []string
	TimeSpent  float64
}

// ExpireMatch drops a completed match from worker memory and the Directory
// after the post-completion grace period.
type ExpireMatch struct {
	MatchID string
}

func (c JoinMatch) isCommand()       {}
func (c SetReady) isCommand()        {}
func (c SubmitAnswer) isCommand()    {}
func (c QuestionTimeout) isCommand() {}
func (c AIAnswer) isCommand()        {}
func (c ExpireMatch) isCommand()     {}

func (c JoinMatch) Match() string       { return c.MatchID }
func (c SetReady) Match() string        { return c.MatchID }
func (c SubmitAnswer) Match() string    { return c.MatchID }
func (c QuestionTimeout) Match() string { return c.MatchID }
func (c AIAnswer) Match() string        { return c.MatchID }
func (c ExpireMatch) Match() string     { return c.MatchID }

// Notice is the closed set of worker-originated events relayed to clients.
// Event returns the wire event name.
type Notice interface {
	Event() string
}

// PlayerView is the client-safe projection of a Player.
type PlayerView struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Score    int    `json:"score"`
	Ready    bool   `json:"isReady"`
	IsAI     bool   `json:"isAI,omitempty"`
}

// OptionView never carries the correct flag.
type OptionView struct {
	ID   string `json:"id"`
	Text string `json:"optionText"`
}

// QuestionView is the client-safe projection of a Question.
type QuestionView struct {
	ID        string       `json:"id"`
	Prompt    string       `json:"questionText"`
	Options   []OptionView `json:"options"`
	TimeLimit int          `json:"timeLimit"`
}

// ViewOf projects a question for broadcast, stripping correctness.
func ViewOf(q Question, timeLimit int) QuestionView {
	options := make([]OptionView, 0, len(q.Options))
	for _, opt := range q.Options {
		options = append(options, OptionView{ID: opt.ID, Text: opt.Text})
	}
	return QuestionView{ID: q.ID, Prompt: q.Prompt, Options: options, TimeLimit: timeLimit}
}

// RosterView projects the players in join order.
func RosterView(m *Match) []PlayerView {
	views := make([]PlayerView, 0, len(m.Order))
	for _, userID := range m.Order {
		p := m.Players[userID]
		views = append(views, PlayerView{
			UserID:   p.UserID,
			Username: p.DisplayName,
			Score:    p.Score,
			Ready:    p.Ready,
			IsAI:     p.IsAI,
		})
	}
	return views
}

// PlayerJoined is broadcast to the room when a player joins.
type PlayerJoined struct {
	UserID   string       `json:"userId"`
	Username string       `json:"username"`
	Players  []PlayerView `json:"players"`
}

// PlayerReady is broadcast to the room when a player readies up.
type PlayerReady struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// QuestionStarted announces the active question. It maps to match_started for
// the first question and next_question afterwards.
type QuestionStarted struct {
	Question       QuestionView `json:"question"`
	QuestionIndex  int          `json:"questionIndex"`
	TotalQuestions int          `json:"totalQuestions"`
}

// AnswerResult is sent privately to the submitting player only; broadcasting
// it would leak the correct options to opponents mid-question.
type AnswerResult struct {
	IsCorrect      bool     `json:"isCorrect"`
	Points         int      `json:"points"`
	CorrectOptions []string `json:"correctOptions"`
	TotalScore     int      `json:"totalScore"`
}

// MatchCompleted carries the final scoreboard. Winner is results[0].
type MatchCompleted struct {
	MatchID string   `json:"matchId"`
	Results []Result `json:"results"`
	Winner  Result   `json:"winner"`
}

// MatchError is a non-fatal room-level failure (capacity, forwarding).
type MatchError struct {
	Message string `json:"message"`
}

func (PlayerJoined) Event() string   { return "player_joined" }
func (PlayerReady) Event() string    { return "player_ready" }
func (MatchCompleted) Event() string { return "match_completed" }
func (AnswerResult) Event() string   { return "answer_result" }
func (MatchError) Event() string     { return "error" }

func (n QuestionStarted) Event() string {
	if n.QuestionIndex == 0 {
		return "match_started"
	}
	return "next_question"
}
