package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
)

// DefaultChannel is the pub/sub channel carrying match notices between
// processes.
const DefaultChannel = "match:events"

// envelope is the wire form of one notice. An empty UserID addresses the whole
// room.
type envelope struct {
	MatchID string          `json:"matchId"`
	UserID  string          `json:"userId,omitempty"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// Broadcaster fans worker notices out through Redis pub/sub so every master
// process can deliver them to whichever room connections it owns. Only
// transport-layer broadcasts travel here; match business state stays in the
// Directory's key/value records.
type Broadcaster struct {
	client  *redis.Client
	channel string
}

func NewBroadcaster(client *redis.Client, channel string) *Broadcaster {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Broadcaster{client: client, channel: channel}
}

func (b *Broadcaster) Broadcast(ctx context.Context, matchID string, n domain.Notice) error {
	return b.publish(ctx, matchID, "", n)
}

func (b *Broadcaster) SendTo(ctx context.Context, matchID, userID string, n domain.Notice) error {
	return b.publish(ctx, matchID, userID, n)
}

func (b *Broadcaster) publish(ctx context.Context, matchID, userID string, n domain.Notice) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal %s notice: %w", n.Event(), err)
	}
	payload, err := json.Marshal(envelope{MatchID: matchID, UserID: userID, Event: n.Event(), Data: data})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: publish %s: %v", domain.ErrDirectoryUnavailable, n.Event(), err)
	}
	return nil
}

// Run subscribes and hands decoded notices to the local receiver until ctx is
// canceled. Each master process runs one of these.
func (b *Broadcaster) Run(ctx context.Context, receiver app.Receiver) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("broadcaster: bad envelope: %v", err)
				continue
			}
			receiver.Deliver(env.MatchID, env.UserID, env.Event, env.Data)
		}
	}
}
