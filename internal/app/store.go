package app

import (
	"context"
	"time"

	"lms-quiz-engine/internal/domain"
)

// QuizRepository is the read path for full quiz aggregates (answers included,
// server-side only). Implementations cache; callers must tolerate short TTL
// staleness, which is safe because definitions are frozen while attempts run.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)

	// Invalidate drops the cached entry so the next read reloads the current
	// definition. Called after every successful update or delete.
	Invalidate(ctx context.Context, quizID string) error
}

// QuizStore is the authoring write path plus the statistics rollup target.
type QuizStore interface {
	CreateQuiz(ctx context.Context, quiz domain.Quiz) error
	UpdateQuiz(ctx context.Context, quiz domain.Quiz) error
	DeleteQuiz(ctx context.Context, quizID string) error
	GetQuizWithAnswers(ctx context.Context, quizID string) (domain.Quiz, error)
	UpdateStatistics(ctx context.Context, quizID string, attemptCount int, averageScore float64) error
}

// AttemptStore persists attempts and their responses.
type AttemptStore interface {
	// CreateAttempt inserts attempt unless an in-progress attempt already
	// exists for the same (user, quiz); then the existing attempt is returned
	// and created is false. Implementations must make this race-safe (unique
	// in-progress constraint or equivalent).
	CreateAttempt(ctx context.Context, attempt domain.Attempt) (created domain.Attempt, fresh bool, err error)

	// GetAttempt returns domain.ErrAttemptNotFound when the attempt does not
	// exist or belongs to a different user.
	GetAttempt(ctx context.Context, attemptID, userID string) (domain.Attempt, error)

	InProgressAttempt(ctx context.Context, quizID, userID string) (domain.Attempt, bool, error)

	// CountAttempts counts the attempts that consume the user's allowance.
	// Abandoned attempts do not count; completed and time-expired ones do.
	CountAttempts(ctx context.Context, quizID, userID string) (int, error)
	ListAttempts(ctx context.Context, quizID, userID string) ([]domain.Attempt, error)

	// CompleteAttempt atomically persists the graded attempt and all of its
	// responses. The in_progress -> completed transition is a compare-and-set:
	// if the attempt is no longer in progress the whole call fails with
	// domain.ErrAttemptNotInProgress and nothing is written.
	CompleteAttempt(ctx context.Context, attempt domain.Attempt, responses []domain.QuestionResponse) error

	// MarkExpired transitions in_progress -> time_expired (compare-and-set).
	MarkExpired(ctx context.Context, attemptID string, at time.Time) error

	// AbandonStale marks in-progress attempts started before cutoff as
	// abandoned and reports how many were swept.
	AbandonStale(ctx context.Context, cutoff time.Time) (int, error)

	HasInProgress(ctx context.Context, quizID string) (bool, error)
	GetResponses(ctx context.Context, attemptID string) ([]domain.QuestionResponse, error)

	// UpdateResponseGrade applies a manual grade to one response, recomputes
	// the attempt's earned points from all stored responses, and persists both
	// under one lock, so concurrent grades on different questions of the same
	// attempt cannot lose each other's points. The target response must still
	// carry requires_manual_grading; otherwise ErrNotManuallyGradable.
	UpdateResponseGrade(ctx context.Context, response domain.QuestionResponse, attempt domain.Attempt, passingPercent float64) (domain.Attempt, error)

	// AttemptStats aggregates over completed attempts only.
	AttemptStats(ctx context.Context, quizID string) (count int, averageScore float64, err error)
}
