package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-match-service/internal/ai"
	"quiz-match-service/internal/domain"
)

const (
	joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	joinCodeLength   = 6
	joinCodeAttempts = 5
)

// ServiceConfig tunes the master-side orchestration facade.
type ServiceConfig struct {
	MatchTTL       time.Duration // Directory TTL for match and join-code records
	MultiplayerCap int
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.MatchTTL <= 0 {
		c.MatchTTL = time.Hour
	}
	return c
}

// MatchService is what the transport layer talks to. It resolves join codes
// through the Directory, assigns workers through the Pool and forwards
// per-match commands to the owning worker.
type MatchService struct {
	directory   Directory
	pool        *Pool
	quizzes     QuizRepository
	broadcaster Broadcaster
	cfg         ServiceConfig
	clock       func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewMatchService(directory Directory, pool *Pool, quizzes QuizRepository, broadcaster Broadcaster, cfg ServiceConfig) *MatchService {
	return &MatchService{
		directory:   directory,
		pool:        pool,
		quizzes:     quizzes,
		broadcaster: broadcaster,
		cfg:         cfg.withDefaults(),
		clock:       time.Now,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateMatch snapshots the quiz, reserves a unique join code and records the
// match in the Directory with the creator as its first (unready) player. Solo
// matches also seed the AI opponent. No worker is assigned yet: assignment is
// deferred to the first join so a never-joined match costs no worker capacity.
func (s *MatchService) CreateMatch(ctx context.Context, quizID string, matchType domain.MatchType, difficulty, userID, displayName string) (*domain.Match, error) {
	if !matchType.Valid() {
		return nil, fmt.Errorf("unknown match type %q", matchType)
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.Archived || len(quiz.Questions) == 0 {
		return nil, domain.ErrQuizNotFound
	}

	matchID := uuid.NewString()
	code, err := s.reserveJoinCode(ctx, matchID)
	if err != nil {
		return nil, err
	}

	m := domain.NewMatch(matchID, code, quiz, matchType, s.cfg.MultiplayerCap, s.clock())
	if err := m.AddPlayer(userID, displayName); err != nil {
		return nil, err
	}
	if matchType == domain.MatchTypeSolo {
		if err := m.AddAI("ai:"+matchID, ai.OpponentName, ai.ProfileFor(difficulty)); err != nil {
			return nil, err
		}
	}
	if err := SaveMatch(ctx, s.directory, m, s.cfg.MatchTTL); err != nil {
		return nil, err
	}
	return m, nil
}

// reserveJoinCode generates a 6-character [A-Z0-9] code, verifying uniqueness
// against the Directory before committing it, with bounded retries on
// collision.
func (s *MatchService) reserveJoinCode(ctx context.Context, matchID string) (string, error) {
	for attempt := 0; attempt < joinCodeAttempts; attempt++ {
		code := s.randomCode()
		if _, taken, err := s.directory.Get(ctx, JoinCodeKey(code)); err != nil {
			return "", err
		} else if taken {
			continue
		}
		if err := s.directory.Put(ctx, JoinCodeKey(code), matchID, s.cfg.MatchTTL); err != nil {
			return "", err
		}
		return code, nil
	}
	return "", fmt.Errorf("could not reserve a join code after %d attempts", joinCodeAttempts)
}

func (s *MatchService) randomCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := make([]byte, joinCodeLength)
	for i := range code {
		code[i] = joinCodeAlphabet[s.rnd.Intn(len(joinCodeAlphabet))]
	}
	return string(code)
}

// JoinByCode resolves a join code, ensures the match has a worker (assigning
// one if this is the first join) and forwards the join. On ErrAlreadyInMatch
// the roster is still returned so the caller can re-attach the connection.
func (s *MatchService) JoinByCode(ctx context.Context, code, userID, displayName string) (string, []domain.PlayerView, error) {
	matchID, ok, err := s.directory.Get(ctx, JoinCodeKey(code))
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, domain.ErrInvalidJoinCode
	}

	workerID, err := s.pool.Assign(ctx, matchID)
	if err != nil {
		s.notifyRoom(ctx, matchID, err)
		return matchID, nil, err
	}

	reply := make(chan domain.JoinReply, 1)
	cmd := domain.JoinMatch{MatchID: matchID, UserID: userID, DisplayName: displayName, Reply: reply}
	if err := s.pool.Send(ctx, workerID, cmd); err != nil {
		s.notifyRoom(ctx, matchID, err)
		return matchID, nil, err
	}
	select {
	case r := <-reply:
		return matchID, r.Players, r.Err
	case <-ctx.Done():
		return matchID, nil, ctx.Err()
	}
}

// Ready marks the caller ready on the owning worker. Assignment is resolved
// idempotently first, covering a solo creator readying before anyone joins.
func (s *MatchService) Ready(ctx context.Context, matchID, userID string) error {
	workerID, err := s.pool.Assign(ctx, matchID)
	if err != nil {
		s.notifyRoom(ctx, matchID, err)
		return err
	}
	reply := make(chan error, 1)
	if err := s.pool.Send(ctx, workerID, domain.SetReady{MatchID: matchID, UserID: userID, Reply: reply}); err != nil {
		s.notifyRoom(ctx, matchID, err)
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit forwards an answer to the owning worker. Scoring outcomes travel back
// privately over the broadcast path, not this call.
func (s *MatchService) Submit(ctx context.Context, matchID, userID, questionID string, selected []string, timeSpent float64) error {
	workerID, err := s.pool.Assign(ctx, matchID)
	if err != nil {
		return err
	}
	if err := s.pool.Send(ctx, workerID, domain.SubmitAnswer{
		MatchID:    matchID,
		UserID:     userID,
		QuestionID: questionID,
		Selected:   selected,
		TimeSpent:  timeSpent,
	}); err != nil {
		s.notifyRoom(ctx, matchID, err)
		return err
	}
	return nil
}

// LookupByCode returns the Directory's view of a match for the REST surface.
// The copy may trail the worker's in-memory state slightly.
func (s *MatchService) LookupByCode(ctx context.Context, code string) (*domain.Match, error) {
	matchID, ok, err := s.directory.Get(ctx, JoinCodeKey(code))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidJoinCode
	}
	m, ok, err := LoadMatch(ctx, s.directory, matchID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidJoinCode
	}
	return m, nil
}

// HealthInfo is the monitoring snapshot for GET /health. Players is filled in
// by the transport layer, which owns the connections.
type HealthInfo struct {
	Status  string `json:"status"`
	Workers int    `json:"workers"`
	Matches int    `json:"matches"`
	Players int    `json:"players"`
}

func (s *MatchService) Health() HealthInfo {
	workers, matches := s.pool.Stats()
	return HealthInfo{Status: "ok", Workers: workers, Matches: matches}
}

// notifyRoom broadcasts infrastructure failures to the whole room: no capacity
// or an unreachable worker affects every participant, not just the requester.
func (s *MatchService) notifyRoom(ctx context.Context, matchID string, err error) {
	if !errors.Is(err, domain.ErrNoAvailableWorker) && !errors.Is(err, domain.ErrWorkerUnavailable) {
		return
	}
	if berr := s.broadcaster.Broadcast(ctx, matchID, domain.MatchError{Message: err.Error()}); berr != nil {
		// nothing else to do; the requester still gets the error reply
		_ = berr
	}
}
