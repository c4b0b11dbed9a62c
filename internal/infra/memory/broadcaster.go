package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"quiz-match-service/internal/app"
	"quiz-match-service/internal/domain"
)

// Broadcaster delivers notices straight into the local receiver. It stands in
// for the Redis pub/sub fanout when the service runs as a single process.
type Broadcaster struct {
	receiver app.Receiver
}

func NewBroadcaster(receiver app.Receiver) *Broadcaster {
	return &Broadcaster{receiver: receiver}
}

func (b *Broadcaster) Broadcast(_ context.Context, matchID string, n domain.Notice) error {
	return b.deliver(matchID, "", n)
}

func (b *Broadcaster) SendTo(_ context.Context, matchID, userID string, n domain.Notice) error {
	return b.deliver(matchID, userID, n)
}

func (b *Broadcaster) deliver(matchID, userID string, n domain.Notice) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal %s notice: %w", n.Event(), err)
	}
	b.receiver.Deliver(matchID, userID, n.Event(), data)
	return nil
}
