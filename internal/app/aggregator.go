package app

import (
	"context"
	"fmt"
)

// Aggregator rolls attempt outcomes up to the quiz definition. The rollup is
// eventually consistent: it runs inside the submission workflow, but callers
// must not assume statistics are current before Submit returns.
type Aggregator struct {
	quizzes  QuizStore
	attempts AttemptStore
}

func NewAggregator(quizzes QuizStore, attempts AttemptStore) *Aggregator {
	return &Aggregator{quizzes: quizzes, attempts: attempts}
}

// UpdateQuizStatistics recomputes the completed-attempt count and the mean
// score percentage and persists both on the quiz.
func (a *Aggregator) UpdateQuizStatistics(ctx context.Context, quizID string) error {
	count, average, err := a.attempts.AttemptStats(ctx, quizID)
	if err != nil {
		return fmt.Errorf("aggregate attempts: %w", err)
	}
	if err := a.quizzes.UpdateStatistics(ctx, quizID, count, average); err != nil {
		return fmt.Errorf("persist statistics: %w", err)
	}
	return nil
}
