package app

import (
	"context"
	"log"
	"time"

	"quiz-match-service/internal/ai"
	"quiz-match-service/internal/domain"
)

const enqueueTimeout = 2 * time.Second

// WorkerConfig tunes one match worker.
type WorkerConfig struct {
	BonusRate float64       // time-bonus points per remaining second
	MatchTTL  time.Duration // Directory record TTL, refreshed on every save
	Grace     time.Duration // how long a completed match stays fetchable
	Heartbeat time.Duration // liveness reporting interval
	InboxSize int
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.BonusRate <= 0 {
		c.BonusRate = domain.DefaultBonusRate
	}
	if c.MatchTTL <= 0 {
		c.MatchTTL = time.Hour
	}
	if c.Grace <= 0 {
		c.Grace = time.Minute
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 5 * time.Second
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 256
	}
	return c
}

// Worker owns the authoritative in-memory state of its assigned matches and
// runs their state machines. All mutation happens on the single Run goroutine,
// so no match ever needs locking; timers and the AI collaborator feed their
// results back through the inbox instead of touching state directly.
type Worker struct {
	id          string
	directory   Directory
	broadcaster Broadcaster
	opponent    *ai.Opponent
	cfg         WorkerConfig

	inbox chan domain.Command
	done  chan struct{}

	// health is installed by the pool at Register time.
	health func(workerID string, matchCount int)
	clock  func() time.Time

	// owned by the Run goroutine
	matches map[string]*domain.Match
	timers  map[string]*time.Timer
}

func NewWorker(id string, directory Directory, broadcaster Broadcaster, opponent *ai.Opponent, cfg WorkerConfig) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		id:          id,
		directory:   directory,
		broadcaster: broadcaster,
		opponent:    opponent,
		cfg:         cfg,
		inbox:       make(chan domain.Command, cfg.InboxSize),
		done:        make(chan struct{}),
		clock:       time.Now,
		matches:     make(map[string]*domain.Match),
		timers:      make(map[string]*time.Timer),
	}
}

func (w *Worker) ID() string { return w.id }

// Enqueue routes a command into the worker's inbox. A full inbox or a stopped
// worker reports ErrWorkerUnavailable so the master can surface a retryable
// error instead of silently dropping the action.
func (w *Worker) Enqueue(ctx context.Context, cmd domain.Command) error {
	timer := time.NewTimer(enqueueTimeout)
	defer timer.Stop()
	select {
	case w.inbox <- cmd:
		return nil
	case <-w.done:
		return domain.ErrWorkerUnavailable
	case <-ctx.Done():
		return domain.ErrWorkerUnavailable
	case <-timer.C:
		return domain.ErrWorkerUnavailable
	}
}

// post is the timer/AI callback path into the inbox; it gives up once the
// worker has stopped.
func (w *Worker) post(cmd domain.Command) {
	select {
	case w.inbox <- cmd:
	case <-w.done:
	}
}

// Run drains the inbox until ctx is canceled. Start it with `go w.Run(ctx)`.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	hb := time.NewTicker(w.cfg.Heartbeat)
	defer hb.Stop()
	w.reportHealth()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-w.inbox:
			w.dispatch(ctx, cmd)
		case <-hb.C:
			w.reportHealth()
		}
	}
}

func (w *Worker) reportHealth() {
	if w.health != nil {
		w.health(w.id, len(w.matches))
	}
}

func (w *Worker) dispatch(ctx context.Context, cmd domain.Command) {
	switch c := cmd.(type) {
	case domain.JoinMatch:
		w.handleJoin(ctx, c)
	case domain.SetReady:
		w.handleReady(ctx, c)
	case domain.SubmitAnswer:
		w.applyAnswer(ctx, c.MatchID, c.UserID, c.QuestionID, c.Selected, c.TimeSpent)
	case domain.AIAnswer:
		w.applyAnswer(ctx, c.MatchID, c.UserID, c.QuestionID, c.Selected, c.TimeSpent)
	case domain.QuestionTimeout:
		w.handleTimeout(ctx, c)
	case domain.ExpireMatch:
		w.handleExpire(ctx, c)
	}
}

// resolve returns the in-memory match, materializing it from its Directory
// record the first time a command for it is routed here. Worker assignment
// happens on the first join, so the record may predate this worker.
func (w *Worker) resolve(ctx context.Context, matchID string) *domain.Match {
	if m, ok := w.matches[matchID]; ok {
		return m
	}
	m, ok, err := LoadMatch(ctx, w.directory, matchID)
	if err != nil {
		log.Printf("worker %s: load match %s: %v", w.id, matchID, err)
		return nil
	}
	if !ok {
		return nil
	}
	if m.WorkerID == "" {
		m.WorkerID = w.id
	}
	w.matches[matchID] = m
	w.reportHealth()
	return m
}

func (w *Worker) handleJoin(ctx context.Context, c domain.JoinMatch) {
	m := w.resolve(ctx, c.MatchID)
	if m == nil {
		c.Reply <- domain.JoinReply{Err: domain.ErrMatchNotFound}
		return
	}
	if err := m.AddPlayer(c.UserID, c.DisplayName); err != nil {
		reply := domain.JoinReply{Err: err}
		if err == domain.ErrAlreadyInMatch {
			// roster included so the caller can treat this as a reconnect
			reply.Players = domain.RosterView(m)
		}
		c.Reply <- reply
		return
	}
	w.save(ctx, m)
	c.Reply <- domain.JoinReply{Players: domain.RosterView(m)}
	w.broadcast(ctx, m.ID, domain.PlayerJoined{UserID: c.UserID, Username: c.DisplayName, Players: domain.RosterView(m)})
}

func (w *Worker) handleReady(ctx context.Context, c domain.SetReady) {
	m := w.resolve(ctx, c.MatchID)
	if m == nil {
		c.Reply <- domain.ErrMatchNotFound
		return
	}
	if err := m.MarkReady(c.UserID); err != nil {
		c.Reply <- err
		return
	}
	c.Reply <- nil
	w.broadcast(ctx, m.ID, domain.PlayerReady{UserID: c.UserID, Username: m.Players[c.UserID].DisplayName})
	if m.CanStart() {
		m.Start(w.clock())
		w.save(ctx, m)
		w.announceQuestion(ctx, m)
	}
}

// announceQuestion broadcasts the active question (options stripped of
// correctness), arms the auto-advance timer and schedules AI answers.
func (w *Worker) announceQuestion(ctx context.Context, m *domain.Match) {
	q, ok := m.ActiveQuestion()
	if !ok {
		return
	}
	w.broadcast(ctx, m.ID, domain.QuestionStarted{
		Question:       domain.ViewOf(q, m.TimeLimit),
		QuestionIndex:  m.Current,
		TotalQuestions: len(m.Questions),
	})
	w.armTimer(m)
	w.scheduleAI(m, q)
}

func (w *Worker) armTimer(m *domain.Match) {
	if t, ok := w.timers[m.ID]; ok {
		t.Stop()
	}
	matchID, index := m.ID, m.Current
	w.timers[m.ID] = time.AfterFunc(time.Duration(m.TimeLimit)*time.Second, func() {
		w.post(domain.QuestionTimeout{MatchID: matchID, Index: index})
	})
}

func (w *Worker) scheduleAI(m *domain.Match, q domain.Question) {
	if w.opponent == nil {
		return
	}
	for _, userID := range m.Order {
		p := m.Players[userID]
		if !p.IsAI || p.Profile == nil {
			continue
		}
		selected, spent := w.opponent.Answer(q, *p.Profile, m.TimeLimit)
		cmd := domain.AIAnswer{MatchID: m.ID, UserID: userID, QuestionID: q.ID, Selected: selected, TimeSpent: spent}
		time.AfterFunc(time.Duration(spent*float64(time.Second)), func() {
			w.post(cmd)
		})
	}
}

// applyAnswer is the shared path for human and AI submissions. Stale, unknown
// and duplicate submissions fall out silently: the race between a client
// answering and the server advancing is expected, not an error.
func (w *Worker) applyAnswer(ctx context.Context, matchID, userID, questionID string, selected []string, timeSpent float64) {
	m, ok := w.matches[matchID]
	if !ok {
		return
	}
	rec := m.ApplyAnswer(userID, questionID, selected, timeSpent, w.cfg.BonusRate)
	if rec == nil {
		return
	}
	p := m.Players[userID]
	if !p.IsAI {
		q, _ := m.ActiveQuestion()
		w.sendTo(ctx, m.ID, userID, domain.AnswerResult{
			IsCorrect:      rec.Correct,
			Points:         rec.Points,
			CorrectOptions: q.CorrectOptionIDs(),
			TotalScore:     p.Score,
		})
	}
	if m.AllAnswered() {
		w.advance(ctx, m)
	}
}

// handleTimeout fires the auto-advance. The index guard makes a timer that
// lost the race against an all-answered advance a no-op.
func (w *Worker) handleTimeout(ctx context.Context, c domain.QuestionTimeout) {
	m, ok := w.matches[c.MatchID]
	if !ok || m.Status != domain.StatusInProgress || m.Current != c.Index {
		return
	}
	w.advance(ctx, m)
}

func (w *Worker) advance(ctx context.Context, m *domain.Match) {
	if t, ok := w.timers[m.ID]; ok {
		t.Stop()
		delete(w.timers, m.ID)
	}
	if completed := m.Advance(w.clock()); !completed {
		w.save(ctx, m)
		w.announceQuestion(ctx, m)
		return
	}
	w.complete(ctx, m)
}

func (w *Worker) complete(ctx context.Context, m *domain.Match) {
	results := m.Results()
	w.save(ctx, m)
	if len(results) > 0 {
		w.broadcast(ctx, m.ID, domain.MatchCompleted{MatchID: m.ID, Results: results, Winner: results[0]})
	}
	matchID := m.ID
	time.AfterFunc(w.cfg.Grace, func() {
		w.post(domain.ExpireMatch{MatchID: matchID})
	})
}

// handleExpire releases the join code and match record once the
// post-completion grace period has passed.
func (w *Worker) handleExpire(ctx context.Context, c domain.ExpireMatch) {
	m, ok := w.matches[c.MatchID]
	if !ok {
		return
	}
	delete(w.matches, c.MatchID)
	if err := w.directory.Del(ctx, JoinCodeKey(m.JoinCode)); err != nil {
		log.Printf("worker %s: release join code %s: %v", w.id, m.JoinCode, err)
	}
	if err := w.directory.Del(ctx, MatchKey(m.ID)); err != nil {
		log.Printf("worker %s: expire match %s: %v", w.id, m.ID, err)
	}
	w.reportHealth()
}

func (w *Worker) save(ctx context.Context, m *domain.Match) {
	if err := SaveMatch(ctx, w.directory, m, w.cfg.MatchTTL); err != nil {
		log.Printf("worker %s: save match %s: %v", w.id, m.ID, err)
	}
}

func (w *Worker) broadcast(ctx context.Context, matchID string, n domain.Notice) {
	if err := w.broadcaster.Broadcast(ctx, matchID, n); err != nil {
		log.Printf("worker %s: broadcast %s to match %s: %v", w.id, n.Event(), matchID, err)
	}
}

func (w *Worker) sendTo(ctx context.Context, matchID, userID string, n domain.Notice) {
	if err := w.broadcaster.SendTo(ctx, matchID, userID, n); err != nil {
		log.Printf("worker %s: send %s to %s: %v", w.id, n.Event(), userID, err)
	}
}
