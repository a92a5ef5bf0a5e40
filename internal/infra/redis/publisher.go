package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"lms-quiz-engine/internal/domain"
)

// CompletionChannel is the pub/sub channel carrying attempt-completion facts
// for progress and gamification consumers in other services.
const CompletionChannel = "quiz:completions"

// Publisher forwards completion events to Redis pub/sub.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) PublishCompletion(ctx context.Context, event domain.CompletionEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal completion event: %w", err)
	}
	if err := p.client.Publish(ctx, CompletionChannel, raw).Err(); err != nil {
		return fmt.Errorf("publish completion event: %w", err)
	}
	return nil
}
