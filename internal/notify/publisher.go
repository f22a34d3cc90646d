package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// Publisher fans change events out to the per-table Redis channels. It
// satisfies db.Notifier.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, table, operation string, value interface{}) error {
	newValue, err := json.Marshal(value)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Event{Table: table, Operation: operation, NewValue: newValue})
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, Channel(table), payload).Err()
}
