package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"lms-quiz-engine/internal/domain"
)

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes,alias:q"`

	ID                     string    `bun:"id,pk"`
	LessonID               string    `bun:"lesson_id"`
	Title                  string    `bun:"title"`
	Description            string    `bun:"description"`
	TimeLimitSeconds       int       `bun:"time_limit_seconds"`
	PassingScorePercent    float64   `bun:"passing_score_percent"`
	MaxAttempts            int       `bun:"max_attempts"`
	RandomizeQuestions     bool      `bun:"randomize_questions"`
	RandomizeAnswers       bool      `bun:"randomize_answers"`
	ShowCorrectAnswers     bool      `bun:"show_correct_answers"`
	ShowResultsImmediately bool      `bun:"show_results_immediately"`
	Published              bool      `bun:"published"`
	TotalPoints            int       `bun:"total_points"`
	AttemptCount           int       `bun:"attempt_count"`
	AverageScore           float64   `bun:"average_score"`
	CreatedAt              time.Time `bun:"created_at"`
	UpdatedAt              time.Time `bun:"updated_at"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:qq"`

	ID            string `bun:"id,pk"`
	QuizID        string `bun:"quiz_id"`
	Type          string `bun:"type"`
	Text          string `bun:"text"`
	Points        int    `bun:"points"`
	OrderIndex    int    `bun:"order_index"`
	CaseSensitive bool   `bun:"case_sensitive"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	ID            string  `bun:"id,pk"`
	QuestionID    string  `bun:"question_id"`
	Text          string  `bun:"text"`
	Correct       bool    `bun:"correct"`
	PartialCredit float64 `bun:"partial_credit"`
	OrderIndex    int     `bun:"order_index"`
}

type pairRow struct {
	bun.BaseModel `bun:"table:matching_pairs,alias:mp"`

	ID         string `bun:"id,pk"`
	QuestionID string `bun:"question_id"`
	RightID    string `bun:"right_id"`
	LeftLabel  string `bun:"left_label"`
	RightLabel string `bun:"right_label"`
	OrderIndex int    `bun:"order_index"`
}

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts,alias:at"`

	ID                string     `bun:"id,pk"`
	QuizID            string     `bun:"quiz_id"`
	UserID            string     `bun:"user_id"`
	AttemptNumber     int        `bun:"attempt_number"`
	Status            string     `bun:"status"`
	StartedAt         time.Time  `bun:"started_at"`
	SubmittedAt       *time.Time `bun:"submitted_at"`
	TotalPoints       int        `bun:"total_points"`
	EarnedPoints      float64    `bun:"earned_points"`
	ScorePercentage   float64    `bun:"score_percentage"`
	Passed            bool       `bun:"passed"`
	RandomizationSeed *int64     `bun:"randomization_seed"`
}

type responseRow struct {
	bun.BaseModel `bun:"table:question_responses,alias:qr"`

	ID                    string     `bun:"id,pk"`
	AttemptID             string     `bun:"attempt_id"`
	QuestionID            string     `bun:"question_id"`
	Payload               []byte     `bun:"payload,type:jsonb"`
	IsCorrect             *bool      `bun:"is_correct"`
	PointsEarned          float64    `bun:"points_earned"`
	RequiresManualGrading bool       `bun:"requires_manual_grading"`
	GradedBy              string     `bun:"graded_by"`
	GradedAt              *time.Time `bun:"graded_at"`
}

func (r attemptRow) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:                r.ID,
		QuizID:            r.QuizID,
		UserID:            r.UserID,
		AttemptNumber:     r.AttemptNumber,
		Status:            domain.AttemptStatus(r.Status),
		StartedAt:         r.StartedAt,
		SubmittedAt:       r.SubmittedAt,
		TotalPoints:       r.TotalPoints,
		EarnedPoints:      r.EarnedPoints,
		ScorePercentage:   r.ScorePercentage,
		Passed:            r.Passed,
		RandomizationSeed: r.RandomizationSeed,
	}
}

func attemptToRow(a domain.Attempt) attemptRow {
	return attemptRow{
		ID:                a.ID,
		QuizID:            a.QuizID,
		UserID:            a.UserID,
		AttemptNumber:     a.AttemptNumber,
		Status:            string(a.Status),
		StartedAt:         a.StartedAt,
		SubmittedAt:       a.SubmittedAt,
		TotalPoints:       a.TotalPoints,
		EarnedPoints:      a.EarnedPoints,
		ScorePercentage:   a.ScorePercentage,
		Passed:            a.Passed,
		RandomizationSeed: a.RandomizationSeed,
	}
}
