package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"lms-quiz-engine/internal/domain"
)

// AnswerInput is one authored answer option.
type AnswerInput struct {
	Text          string  `json:"text" validate:"required"`
	Correct       bool    `json:"correct"`
	PartialCredit float64 `json:"partialCredit" validate:"gte=0,lte=1"`
}

// PairInput is one authored matching pair.
type PairInput struct {
	Left  string `json:"left" validate:"required"`
	Right string `json:"right" validate:"required"`
}

// QuestionInput is one authored question.
type QuestionInput struct {
	Type          domain.QuestionType `json:"type" validate:"required,oneof=multiple_choice multiple_select true_false short_answer essay fill_blank matching"`
	Text          string              `json:"text" validate:"required"`
	Points        int                 `json:"points" validate:"gte=1"`
	CaseSensitive bool                `json:"caseSensitive"`
	Answers       []AnswerInput       `json:"answers" validate:"dive"`
	Pairs         []PairInput         `json:"pairs" validate:"dive"`
}

// QuizInput is the authoring surface for creating or replacing a quiz.
type QuizInput struct {
	LessonID               string          `json:"lessonId"`
	Title                  string          `json:"title" validate:"required"`
	Description            string          `json:"description"`
	TimeLimitSeconds       int             `json:"timeLimitSeconds" validate:"gte=0"`
	PassingScorePercent    float64         `json:"passingScorePercent" validate:"gte=0,lte=100"`
	MaxAttempts            int             `json:"maxAttempts" validate:"gte=1"`
	RandomizeQuestions     bool            `json:"randomizeQuestions"`
	RandomizeAnswers       bool            `json:"randomizeAnswers"`
	ShowCorrectAnswers     bool            `json:"showCorrectAnswers"`
	ShowResultsImmediately bool            `json:"showResultsImmediately"`
	Published              bool            `json:"published"`
	Questions              []QuestionInput `json:"questions" validate:"dive"`
}

// QuizService owns the quiz definition lifecycle: authoring, the student-safe
// delivery view, and the freeze rule that blocks edits while attempts run.
type QuizService struct {
	store    QuizStore
	quizzes  QuizRepository
	attempts AttemptStore
	validate *validator.Validate
	now      func() time.Time
}

func NewQuizService(store QuizStore, quizzes QuizRepository, attempts AttemptStore) *QuizService {
	return &QuizService{
		store:    store,
		quizzes:  quizzes,
		attempts: attempts,
		validate: validator.New(),
		now:      time.Now,
	}
}

// CreateQuiz validates the input, assigns IDs, computes the point total, and
// persists the aggregate in one step.
func (s *QuizService) CreateQuiz(ctx context.Context, input QuizInput) (domain.Quiz, error) {
	quiz, err := s.buildQuiz(uuid.NewString(), input)
	if err != nil {
		return domain.Quiz{}, err
	}
	if err := s.store.CreateQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("create quiz: %w", err)
	}
	return quiz, nil
}

// UpdateQuiz replaces the quiz definition. Quizzes with in-progress attempts
// are frozen: attempts grade against the definition they started with, so the
// definition cannot move underneath them.
func (s *QuizService) UpdateQuiz(ctx context.Context, quizID string, input QuizInput) (domain.Quiz, error) {
	existing, err := s.store.GetQuizWithAnswers(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	locked, err := s.attempts.HasInProgress(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("check in-progress attempts: %w", err)
	}
	if locked {
		return domain.Quiz{}, domain.ErrQuizLocked
	}
	quiz, err := s.buildQuiz(quizID, input)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.CreatedAt = existing.CreatedAt
	quiz.AttemptCount = existing.AttemptCount
	quiz.AverageScore = existing.AverageScore
	if err := s.store.UpdateQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("update quiz: %w", err)
	}
	if err := s.quizzes.Invalidate(ctx, quizID); err != nil {
		log.Printf("invalidate quiz cache %s: %v", quizID, err)
	}
	return quiz, nil
}

// DeleteQuiz removes the quiz; frozen while attempts are in progress.
func (s *QuizService) DeleteQuiz(ctx context.Context, quizID string) error {
	if _, err := s.store.GetQuizWithAnswers(ctx, quizID); err != nil {
		return err
	}
	locked, err := s.attempts.HasInProgress(ctx, quizID)
	if err != nil {
		return fmt.Errorf("check in-progress attempts: %w", err)
	}
	if locked {
		return domain.ErrQuizLocked
	}
	if err := s.store.DeleteQuiz(ctx, quizID); err != nil {
		return err
	}
	if err := s.quizzes.Invalidate(ctx, quizID); err != nil {
		log.Printf("invalidate quiz cache %s: %v", quizID, err)
	}
	return nil
}

// GetQuiz returns the full aggregate, correctness data included. Authoring
// and grading only; never serve this to a student.
func (s *QuizService) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.store.GetQuizWithAnswers(ctx, quizID)
}

// GetQuizForStudent returns the correctness-stripped view plus the remaining
// attempt allowance for the user.
func (s *QuizService) GetQuizForStudent(ctx context.Context, quizID, userID string) (domain.StudentQuiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.StudentQuiz{}, err
	}
	if !quiz.Published {
		return domain.StudentQuiz{}, domain.ErrQuizNotPublished
	}
	used, err := s.attempts.CountAttempts(ctx, quizID, userID)
	if err != nil {
		return domain.StudentQuiz{}, fmt.Errorf("count attempts: %w", err)
	}
	remaining := quiz.Settings.MaxAttempts - used
	if remaining <= 0 {
		// A user mid-attempt has already consumed the slot but may resume.
		if _, ok, err := s.attempts.InProgressAttempt(ctx, quizID, userID); err != nil {
			return domain.StudentQuiz{}, err
		} else if !ok {
			return domain.StudentQuiz{}, domain.ErrMaxAttemptsReached
		}
		remaining = 0
	}

	view := domain.StudentQuiz{
		ID:                quiz.ID,
		Title:             quiz.Title,
		Description:       quiz.Description,
		TimeLimitSeconds:  quiz.Settings.TimeLimitSeconds,
		MaxAttempts:       quiz.Settings.MaxAttempts,
		RemainingAttempts: remaining,
		TotalPoints:       quiz.TotalPoints,
	}
	for _, q := range quiz.Questions {
		view.Questions = append(view.Questions, domain.StripQuestion(q))
	}
	return view, nil
}

func (s *QuizService) buildQuiz(id string, input QuizInput) (domain.Quiz, error) {
	if err := s.validate.Struct(input); err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: %v", domain.ErrInvalidQuiz, err)
	}

	now := s.now()
	quiz := domain.Quiz{
		ID:          id,
		LessonID:    input.LessonID,
		Title:       input.Title,
		Description: input.Description,
		Settings: domain.QuizSettings{
			TimeLimitSeconds:       input.TimeLimitSeconds,
			PassingScorePercent:    input.PassingScorePercent,
			MaxAttempts:            input.MaxAttempts,
			RandomizeQuestions:     input.RandomizeQuestions,
			RandomizeAnswers:       input.RandomizeAnswers,
			ShowCorrectAnswers:     input.ShowCorrectAnswers,
			ShowResultsImmediately: input.ShowResultsImmediately,
		},
		Published: input.Published,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for qi, qin := range input.Questions {
		if err := checkQuestion(qin); err != nil {
			return domain.Quiz{}, fmt.Errorf("%w: question %d: %v", domain.ErrInvalidQuiz, qi+1, err)
		}
		question := domain.Question{
			ID:            uuid.NewString(),
			QuizID:        id,
			Type:          qin.Type,
			Text:          qin.Text,
			Points:        qin.Points,
			OrderIndex:    qi,
			CaseSensitive: qin.CaseSensitive,
		}
		for ai, ain := range qin.Answers {
			question.Answers = append(question.Answers, domain.Answer{
				ID:            uuid.NewString(),
				Text:          ain.Text,
				Correct:       ain.Correct,
				PartialCredit: ain.PartialCredit,
				OrderIndex:    ai,
			})
		}
		for pi, pin := range qin.Pairs {
			question.Pairs = append(question.Pairs, domain.MatchingPair{
				ID:         uuid.NewString(),
				RightID:    uuid.NewString(),
				Left:       pin.Left,
				Right:      pin.Right,
				OrderIndex: pi,
			})
		}
		quiz.Questions = append(quiz.Questions, question)
	}

	quiz.TotalPoints = quiz.SumPoints()
	if quiz.Published && quiz.TotalPoints <= 0 {
		return domain.Quiz{}, fmt.Errorf("%w: published quiz must have a positive point total", domain.ErrInvalidQuiz)
	}
	return quiz, nil
}

// checkQuestion enforces the structural rules the tag validator cannot express.
func checkQuestion(q QuestionInput) error {
	correct := 0
	for _, a := range q.Answers {
		if a.Correct {
			correct++
		}
	}
	switch q.Type {
	case domain.MultipleChoice:
		if len(q.Answers) < 2 {
			return fmt.Errorf("needs at least 2 answers")
		}
		if correct != 1 {
			return fmt.Errorf("needs exactly one correct answer")
		}
	case domain.TrueFalse:
		if len(q.Answers) != 2 {
			return fmt.Errorf("needs exactly 2 answers")
		}
		if correct != 1 {
			return fmt.Errorf("needs exactly one correct answer")
		}
	case domain.MultipleSelect:
		if len(q.Answers) < 2 {
			return fmt.Errorf("needs at least 2 answers")
		}
		if correct < 1 {
			return fmt.Errorf("needs at least one correct answer")
		}
	case domain.ShortAnswer, domain.FillBlank:
		if correct < 1 {
			return fmt.Errorf("needs at least one accepted answer")
		}
	case domain.Essay:
		if len(q.Answers) > 0 || len(q.Pairs) > 0 {
			return fmt.Errorf("must not define answers")
		}
	case domain.Matching:
		if len(q.Pairs) < 2 {
			return fmt.Errorf("needs at least 2 pairs")
		}
		if len(q.Answers) > 0 {
			return fmt.Errorf("must not define answers")
		}
	}
	return nil
}
