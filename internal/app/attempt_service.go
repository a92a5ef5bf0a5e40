package app

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"lms-quiz-engine/internal/domain"
	"lms-quiz-engine/internal/grading"
	"lms-quiz-engine/internal/shuffle"
)

// SubmittedResponse is one answer in a submission request.
type SubmittedResponse struct {
	QuestionID string `json:"questionId"`
	domain.ResponsePayload
}

// StartedAttempt is what Start hands back: the attempt plus the questions in
// their (possibly shuffled) delivery order, correctness data stripped.
type StartedAttempt struct {
	Attempt   domain.Attempt           `json:"attempt"`
	Resumed   bool                     `json:"resumed"`
	Questions []domain.StudentQuestion `json:"questions"`
}

// AttemptResults bundles a graded attempt with its responses. Questions carry
// correctness data only when the quiz allows showing correct answers.
type AttemptResults struct {
	Attempt         domain.Attempt            `json:"attempt"`
	Responses       []domain.QuestionResponse `json:"responses"`
	Questions       []domain.StudentQuestion  `json:"questions,omitempty"`
	AnswerKey       []domain.Question         `json:"answerKey,omitempty"`
	PendingManual   bool                      `json:"pendingManual"`
	ScoreRounded    float64                   `json:"scoreRounded"`
	PassingRequired float64                   `json:"passingRequired"`
}

// AttemptService owns the attempt state machine: start/resume, time-limit
// enforcement, submission grading, manual essay grading, and the stale sweep.
type AttemptService struct {
	quizzes  QuizRepository
	attempts AttemptStore
	agg      *Aggregator
	events   Publisher
	now      func() time.Time
}

func NewAttemptService(quizzes QuizRepository, attempts AttemptStore, agg *Aggregator, events Publisher) *AttemptService {
	return NewAttemptServiceWithClock(quizzes, attempts, agg, events, time.Now)
}

// NewAttemptServiceWithClock allows deterministic time in tests.
func NewAttemptServiceWithClock(quizzes QuizRepository, attempts AttemptStore, agg *Aggregator, events Publisher, now func() time.Time) *AttemptService {
	return &AttemptService{
		quizzes:  quizzes,
		attempts: attempts,
		agg:      agg,
		events:   events,
		now:      now,
	}
}

// Start begins a new attempt or resumes the in-progress one. Calling it twice
// without an intervening submit returns the same attempt both times, which is
// what keeps the one-in-progress invariant under client retries.
func (s *AttemptService) Start(ctx context.Context, quizID, userID string) (StartedAttempt, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return StartedAttempt{}, err
	}
	if !quiz.Published {
		return StartedAttempt{}, domain.ErrQuizNotPublished
	}

	if existing, ok, err := s.attempts.InProgressAttempt(ctx, quizID, userID); err != nil {
		return StartedAttempt{}, fmt.Errorf("lookup attempt: %w", err)
	} else if ok {
		return s.startedView(quiz, existing, true), nil
	}

	used, err := s.attempts.CountAttempts(ctx, quizID, userID)
	if err != nil {
		return StartedAttempt{}, fmt.Errorf("count attempts: %w", err)
	}
	if used >= quiz.Settings.MaxAttempts {
		return StartedAttempt{}, domain.ErrMaxAttemptsReached
	}

	attempt := domain.Attempt{
		ID:            uuid.NewString(),
		QuizID:        quizID,
		UserID:        userID,
		AttemptNumber: used + 1,
		Status:        domain.AttemptInProgress,
		StartedAt:     s.now(),
		TotalPoints:   quiz.TotalPoints,
	}
	if quiz.Settings.RandomizeQuestions || quiz.Settings.RandomizeAnswers {
		seed := rand.Int63()
		attempt.RandomizationSeed = &seed
	}

	// The store resolves the create/resume race: if a concurrent Start won,
	// we get that attempt back instead of a duplicate.
	stored, _, err := s.attempts.CreateAttempt(ctx, attempt)
	if err != nil {
		return StartedAttempt{}, fmt.Errorf("create attempt: %w", err)
	}
	return s.startedView(quiz, stored, stored.ID != attempt.ID), nil
}

// Submit grades the attempt. Every question in the quiz is graded, not just
// the submitted ones; a missing response earns zero. The final transition is
// a compare-and-set, so of two concurrent submissions exactly one wins.
func (s *AttemptService) Submit(ctx context.Context, attemptID, userID string, responses []SubmittedResponse) (domain.Attempt, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID, userID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.Status != domain.AttemptInProgress {
		return domain.Attempt{}, domain.ErrAttemptNotInProgress
	}

	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.Attempt{}, err
	}

	now := s.now()
	if limit := quiz.Settings.TimeLimitSeconds; limit > 0 {
		if now.Sub(attempt.StartedAt) > time.Duration(limit)*time.Second {
			if err := s.attempts.MarkExpired(ctx, attempt.ID, now); err != nil {
				return domain.Attempt{}, fmt.Errorf("expire attempt: %w", err)
			}
			return domain.Attempt{}, domain.ErrTimeLimitExceeded
		}
	}

	byQuestion := make(map[string]*domain.ResponsePayload, len(responses))
	for i := range responses {
		r := &responses[i]
		if quiz.Question(r.QuestionID) == nil {
			return domain.Attempt{}, fmt.Errorf("%w: %s", domain.ErrUnknownQuestion, r.QuestionID)
		}
		byQuestion[r.QuestionID] = &r.ResponsePayload
	}

	graded := make([]domain.QuestionResponse, 0, len(quiz.Questions))
	earned := 0.0
	pendingManual := false
	for _, question := range quiz.Questions {
		payload := byQuestion[question.ID]
		result, err := grading.Grade(question, payload)
		if err != nil {
			return domain.Attempt{}, fmt.Errorf("%w: question %s: %v", domain.ErrBadResponseShape, question.ID, err)
		}
		record := domain.QuestionResponse{
			ID:                    uuid.NewString(),
			AttemptID:             attempt.ID,
			QuestionID:            question.ID,
			IsCorrect:             result.IsCorrect,
			PointsEarned:          result.Points,
			RequiresManualGrading: result.RequiresManual,
		}
		if payload != nil {
			record.Payload = *payload
		}
		graded = append(graded, record)
		earned += result.Points
		pendingManual = pendingManual || result.RequiresManual
	}

	attempt.Status = domain.AttemptCompleted
	attempt.SubmittedAt = &now
	attempt.EarnedPoints = earned
	attempt.ScorePercentage = percentage(earned, attempt.TotalPoints)
	attempt.Passed = attempt.ScorePercentage >= quiz.Settings.PassingScorePercent

	if err := s.attempts.CompleteAttempt(ctx, attempt, graded); err != nil {
		return domain.Attempt{}, err
	}

	if err := s.agg.UpdateQuizStatistics(ctx, quiz.ID); err != nil {
		log.Printf("update quiz statistics for %s: %v", quiz.ID, err)
	}
	s.publishCompletion(ctx, attempt)
	return attempt, nil
}

// Results returns the graded attempt with its responses. Forbidden while the
// attempt is still running or when the quiz withholds immediate results.
func (s *AttemptService) Results(ctx context.Context, attemptID, userID string) (AttemptResults, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID, userID)
	if err != nil {
		return AttemptResults{}, err
	}
	if attempt.Status == domain.AttemptInProgress {
		return AttemptResults{}, domain.ErrResultsNotAvailable
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return AttemptResults{}, err
	}
	if !quiz.Settings.ShowResultsImmediately {
		return AttemptResults{}, domain.ErrResultsNotAvailable
	}
	responses, err := s.attempts.GetResponses(ctx, attemptID)
	if err != nil {
		return AttemptResults{}, fmt.Errorf("load responses: %w", err)
	}

	out := AttemptResults{
		Attempt:         attempt,
		Responses:       responses,
		ScoreRounded:    roundPercent(attempt.ScorePercentage),
		PassingRequired: quiz.Settings.PassingScorePercent,
	}
	for _, r := range responses {
		if r.RequiresManualGrading {
			out.PendingManual = true
			break
		}
	}
	if quiz.Settings.ShowCorrectAnswers {
		out.AnswerKey = quiz.Questions
	} else {
		for _, q := range quiz.Questions {
			out.Questions = append(out.Questions, domain.StripQuestion(q))
		}
	}
	return out, nil
}

// History lists the user's attempts at a quiz, ordered by attempt number.
func (s *AttemptService) History(ctx context.Context, quizID, userID string) ([]domain.Attempt, error) {
	return s.attempts.ListAttempts(ctx, quizID, userID)
}

// GradeEssay applies a manual grade to an essay response and re-derives the
// attempt score. Only responses flagged for manual grading accept one.
func (s *AttemptService) GradeEssay(ctx context.Context, attemptID, userID, questionID string, points float64, gradedBy string) (domain.Attempt, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID, userID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.Status != domain.AttemptCompleted {
		return domain.Attempt{}, domain.ErrAttemptNotInProgress
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	question := quiz.Question(questionID)
	if question == nil {
		return domain.Attempt{}, domain.ErrUnknownQuestion
	}
	if points < 0 || points > float64(question.Points) {
		return domain.Attempt{}, fmt.Errorf("%w: points must be within 0..%d", domain.ErrInvalidQuiz, question.Points)
	}

	now := s.now()
	correct := points == float64(question.Points)
	graded := domain.QuestionResponse{
		AttemptID:             attemptID,
		QuestionID:            questionID,
		IsCorrect:             &correct,
		PointsEarned:          points,
		RequiresManualGrading: false,
		GradedBy:              gradedBy,
		GradedAt:              &now,
	}

	// The store re-derives the score from all stored responses under one lock,
	// so two graders working different questions cannot lose each other's
	// points.
	updated, err := s.attempts.UpdateResponseGrade(ctx, graded, attempt, quiz.Settings.PassingScorePercent)
	if err != nil {
		return domain.Attempt{}, err
	}
	if err := s.agg.UpdateQuizStatistics(ctx, quiz.ID); err != nil {
		log.Printf("update quiz statistics for %s: %v", quiz.ID, err)
	}
	return updated, nil
}

// AbandonStale sweeps in-progress attempts that have been idle past the grace
// window. Housekeeping only; correctness never depends on it.
func (s *AttemptService) AbandonStale(ctx context.Context, grace time.Duration) (int, error) {
	return s.attempts.AbandonStale(ctx, s.now().Add(-grace))
}

func (s *AttemptService) startedView(quiz domain.Quiz, attempt domain.Attempt, resumed bool) StartedAttempt {
	questionOrder := shuffle.Questions(quiz, attempt.RandomizationSeed)
	out := StartedAttempt{Attempt: attempt, Resumed: resumed}
	for _, qid := range questionOrder {
		question := quiz.Question(qid)
		if question == nil {
			continue
		}
		view := domain.StripQuestion(*question)
		if len(view.Answers) > 0 {
			view.Answers = reorderAnswers(view.Answers, shuffle.Answers(*question, quiz.Settings.RandomizeAnswers, attempt.RandomizationSeed))
		}
		if quiz.Settings.RandomizeAnswers && attempt.RandomizationSeed != nil && len(view.Rights) > 1 {
			// Matching rights shuffle under their own sub-seed so their order
			// carries no trace of the lefts' order or the pairing.
			ids := make([]string, len(view.Rights))
			for i, r := range view.Rights {
				ids[i] = r.ID
			}
			order := shuffle.Order(ids, shuffle.SubSeed(*attempt.RandomizationSeed, question.ID+"/rights"))
			view.Rights = reorderAnswers(view.Rights, order)
		}
		out.Questions = append(out.Questions, view)
	}
	return out
}

func reorderAnswers(answers []domain.StudentAnswer, order []string) []domain.StudentAnswer {
	byID := make(map[string]domain.StudentAnswer, len(answers))
	for _, a := range answers {
		byID[a.ID] = a
	}
	out := make([]domain.StudentAnswer, 0, len(answers))
	for _, id := range order {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

func (s *AttemptService) publishCompletion(ctx context.Context, attempt domain.Attempt) {
	if s.events == nil {
		return
	}
	event := domain.CompletionEvent{
		UserID:          attempt.UserID,
		QuizID:          attempt.QuizID,
		AttemptID:       attempt.ID,
		AttemptNumber:   attempt.AttemptNumber,
		ScorePercentage: attempt.ScorePercentage,
		Passed:          attempt.Passed,
	}
	if err := s.events.PublishCompletion(ctx, event); err != nil {
		log.Printf("publish completion for attempt %s: %v", attempt.ID, err)
	}
}

// percentage computes earned/total*100 without intermediate rounding.
func percentage(earned float64, total int) float64 {
	if total <= 0 {
		return 0
	}
	return earned / float64(total) * 100
}

// roundPercent rounds to two decimals for presentation only.
func roundPercent(p float64) float64 {
	return math.Round(p*100) / 100
}
