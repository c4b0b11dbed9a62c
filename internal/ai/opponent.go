// Package ai simulates the quiz opponent used in solo matches. It is a
// black-box collaborator: given a question and a difficulty profile it picks
// an answer, a response delay bounded by the question time limit, and lets the
// normal scoring path decide the points.
package ai

import (
	"math/rand"
	"sync"
	"time"

	"quiz-match-service/internal/domain"
)

// OpponentName is the display name seeded onto solo-match rosters.
const OpponentName = "QuizBot"

var profiles = map[string]domain.AIProfile{
	"easy":   {Difficulty: "easy", Accuracy: 0.5, MinDelay: 5 * time.Second, MaxDelay: 15 * time.Second},
	"medium": {Difficulty: "medium", Accuracy: 0.7, MinDelay: 3 * time.Second, MaxDelay: 10 * time.Second},
	"hard":   {Difficulty: "hard", Accuracy: 0.9, MinDelay: 1 * time.Second, MaxDelay: 6 * time.Second},
}

// ProfileFor maps a difficulty name to its preset, defaulting to medium.
func ProfileFor(difficulty string) domain.AIProfile {
	if p, ok := profiles[difficulty]; ok {
		return p
	}
	return profiles["medium"]
}

// Opponent generates simulated answers. Safe for concurrent use.
type Opponent struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewOpponent seeds the answer generator. Pass a fixed seed in tests.
func NewOpponent(seed int64) *Opponent {
	return &Opponent{rnd: rand.New(rand.NewSource(seed))}
}

// Answer picks the selected option ids and the time spent, in seconds, for one
// question. An accuracy roll decides whether the full correct set or a wrong
// selection is returned; the delay is uniform within the profile's range and
// never exceeds the question time limit.
func (o *Opponent) Answer(q domain.Question, profile domain.AIProfile, timeLimit int) (selected []string, timeSpent float64) {
	o.mu.Lock()
	roll := o.rnd.Float64()
	jitter := o.rnd.Float64()
	pick := o.rnd.Intn(len(q.Options) + 1)
	o.mu.Unlock()

	correct := q.CorrectOptionIDs()
	if roll < profile.Accuracy {
		selected = correct
	} else {
		selected = wrongSelection(q, correct, pick)
	}

	delay := profile.MinDelay + time.Duration(jitter*float64(profile.MaxDelay-profile.MinDelay))
	if limit := time.Duration(timeLimit) * time.Second; delay > limit {
		delay = limit
	}
	return selected, delay.Seconds()
}

// wrongSelection returns a single incorrect option, or an empty selection when
// every option is flagged correct.
func wrongSelection(q domain.Question, correct []string, pick int) []string {
	correctSet := make(map[string]struct{}, len(correct))
	for _, id := range correct {
		correctSet[id] = struct{}{}
	}
	wrong := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		if _, ok := correctSet[opt.ID]; !ok {
			wrong = append(wrong, opt.ID)
		}
	}
	if len(wrong) == 0 {
		return nil
	}
	return []string{wrong[pick%len(wrong)]}
}
