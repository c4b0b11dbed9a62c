package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"quiz-match-service/internal/domain"
)

// Directory is the shared, TTL-expiring key/value store every process
// coordinates through. It holds match metadata, joinCode -> matchId mappings
// and worker assignments; abandoned matches self-expire with their keys.
type Directory interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, key string) error
}

// Broadcaster fans worker notices out to every master process so each can
// deliver to whichever room connections it owns. An empty userID addresses the
// whole room; a non-empty one addresses a single player's connections.
type Broadcaster interface {
	Broadcast(ctx context.Context, matchID string, n domain.Notice) error
	SendTo(ctx context.Context, matchID, userID string, n domain.Notice) error
}

// Receiver is the local delivery sink a broadcaster hands decoded notices to.
// The transport hub implements it.
type Receiver interface {
	Deliver(matchID, userID, event string, data []byte)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// MatchKey is the Directory key holding a match's JSON record.
func MatchKey(matchID string) string {
	return "match:" + matchID
}

// JoinCodeKey maps a join code to its match id. Codes are case-insensitive on
// lookup but stored upper-case.
func JoinCodeKey(code string) string {
	return "joinCode:" + strings.ToUpper(code)
}

// SaveMatch writes the match record, refreshing its TTL.
func SaveMatch(ctx context.Context, d Directory, m *domain.Match, ttl time.Duration) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal match %s: %w", m.ID, err)
	}
	return d.Put(ctx, MatchKey(m.ID), string(data), ttl)
}

// LoadMatch reads a match record back from the Directory.
func LoadMatch(ctx context.Context, d Directory, matchID string) (*domain.Match, bool, error) {
	raw, ok, err := d.Get(ctx, MatchKey(matchID))
	if err != nil || !ok {
		return nil, false, err
	}
	var m domain.Match
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, false, fmt.Errorf("unmarshal match %s: %w", matchID, err)
	}
	return &m, true, nil
}
