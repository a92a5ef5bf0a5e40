package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"lms-quiz-engine/internal/domain"
)

// QuizStore is the bun-backed authoring write path for quiz aggregates.
type QuizStore struct {
	db *bun.DB
}

func NewQuizStore(db *bun.DB) *QuizStore {
	return &QuizStore{db: db}
}

// CreateQuiz writes the whole aggregate in one transaction.
func (s *QuizStore) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return insertAggregate(ctx, tx, quiz)
	})
}

// UpdateQuiz replaces the definition: the quiz row is updated in place and
// the question tree is rewritten (child rows cascade on delete).
func (s *QuizStore) UpdateQuiz(ctx context.Context, quiz domain.Quiz) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := quizToRow(quiz)
		res, err := tx.NewUpdate().Model(&row).WherePK().Exec(ctx)
		if err != nil {
			return fmt.Errorf("update quiz row: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrQuizNotFound
		}
		if _, err := tx.NewDelete().Model((*questionRow)(nil)).Where("quiz_id = ?", quiz.ID).Exec(ctx); err != nil {
			return fmt.Errorf("clear questions: %w", err)
		}
		return insertQuestions(ctx, tx, quiz)
	})
}

func (s *QuizStore) DeleteQuiz(ctx context.Context, quizID string) error {
	res, err := s.db.NewDelete().Model((*quizRow)(nil)).Where("id = ?", quizID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

// GetQuizWithAnswers assembles the full aggregate in one explicit pass, so
// the grading path never triggers per-field lazy loads.
func (s *QuizStore) GetQuizWithAnswers(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz quizRow
	err := s.db.NewSelect().Model(&quiz).Where("id = ?", quizID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	var questions []questionRow
	if err := s.db.NewSelect().Model(&questions).Where("quiz_id = ?", quizID).Order("order_index ASC").Scan(ctx); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	var answers []answerRow
	if err := s.db.NewSelect().Model(&answers).
		Where("question_id IN (SELECT id FROM questions WHERE quiz_id = ?)", quizID).
		Order("order_index ASC").Scan(ctx); err != nil {
		return domain.Quiz{}, fmt.Errorf("load answers: %w", err)
	}
	var pairs []pairRow
	if err := s.db.NewSelect().Model(&pairs).
		Where("question_id IN (SELECT id FROM questions WHERE quiz_id = ?)", quizID).
		Order("order_index ASC").Scan(ctx); err != nil {
		return domain.Quiz{}, fmt.Errorf("load matching pairs: %w", err)
	}

	return assembleQuiz(quiz, questions, answers, pairs), nil
}

func (s *QuizStore) UpdateStatistics(ctx context.Context, quizID string, attemptCount int, averageScore float64) error {
	res, err := s.db.NewUpdate().Model((*quizRow)(nil)).
		Set("attempt_count = ?", attemptCount).
		Set("average_score = ?", averageScore).
		Where("id = ?", quizID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update statistics: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func insertAggregate(ctx context.Context, tx bun.Tx, quiz domain.Quiz) error {
	row := quizToRow(quiz)
	if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert quiz row: %w", err)
	}
	return insertQuestions(ctx, tx, quiz)
}

func insertQuestions(ctx context.Context, tx bun.Tx, quiz domain.Quiz) error {
	if len(quiz.Questions) == 0 {
		return nil
	}
	var questions []questionRow
	var answers []answerRow
	var pairs []pairRow
	for _, q := range quiz.Questions {
		questions = append(questions, questionRow{
			ID:            q.ID,
			QuizID:        quiz.ID,
			Type:          string(q.Type),
			Text:          q.Text,
			Points:        q.Points,
			OrderIndex:    q.OrderIndex,
			CaseSensitive: q.CaseSensitive,
		})
		for _, a := range q.Answers {
			answers = append(answers, answerRow{
				ID:            a.ID,
				QuestionID:    q.ID,
				Text:          a.Text,
				Correct:       a.Correct,
				PartialCredit: a.PartialCredit,
				OrderIndex:    a.OrderIndex,
			})
		}
		for _, p := range q.Pairs {
			pairs = append(pairs, pairRow{
				ID:         p.ID,
				QuestionID: q.ID,
				RightID:    p.RightID,
				LeftLabel:  p.Left,
				RightLabel: p.Right,
				OrderIndex: p.OrderIndex,
			})
		}
	}
	if _, err := tx.NewInsert().Model(&questions).Exec(ctx); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}
	if len(answers) > 0 {
		if _, err := tx.NewInsert().Model(&answers).Exec(ctx); err != nil {
			return fmt.Errorf("insert answers: %w", err)
		}
	}
	if len(pairs) > 0 {
		if _, err := tx.NewInsert().Model(&pairs).Exec(ctx); err != nil {
			return fmt.Errorf("insert matching pairs: %w", err)
		}
	}
	return nil
}

func quizToRow(q domain.Quiz) quizRow {
	return quizRow{
		ID:                     q.ID,
		LessonID:               q.LessonID,
		Title:                  q.Title,
		Description:            q.Description,
		TimeLimitSeconds:       q.Settings.TimeLimitSeconds,
		PassingScorePercent:    q.Settings.PassingScorePercent,
		MaxAttempts:            q.Settings.MaxAttempts,
		RandomizeQuestions:     q.Settings.RandomizeQuestions,
		RandomizeAnswers:       q.Settings.RandomizeAnswers,
		ShowCorrectAnswers:     q.Settings.ShowCorrectAnswers,
		ShowResultsImmediately: q.Settings.ShowResultsImmediately,
		Published:              q.Published,
		TotalPoints:            q.TotalPoints,
		AttemptCount:           q.AttemptCount,
		AverageScore:           q.AverageScore,
		CreatedAt:              q.CreatedAt,
		UpdatedAt:              q.UpdatedAt,
	}
}

func assembleQuiz(q quizRow, questions []questionRow, answers []answerRow, pairs []pairRow) domain.Quiz {
	out := domain.Quiz{
		ID:          q.ID,
		LessonID:    q.LessonID,
		Title:       q.Title,
		Description: q.Description,
		Settings: domain.QuizSettings{
			TimeLimitSeconds:       q.TimeLimitSeconds,
			PassingScorePercent:    q.PassingScorePercent,
			MaxAttempts:            q.MaxAttempts,
			RandomizeQuestions:     q.RandomizeQuestions,
			RandomizeAnswers:       q.RandomizeAnswers,
			ShowCorrectAnswers:     q.ShowCorrectAnswers,
			ShowResultsImmediately: q.ShowResultsImmediately,
		},
		Published:    q.Published,
		TotalPoints:  q.TotalPoints,
		AttemptCount: q.AttemptCount,
		AverageScore: q.AverageScore,
		CreatedAt:    q.CreatedAt,
		UpdatedAt:    q.UpdatedAt,
	}

	answersByQuestion := make(map[string][]domain.Answer)
	for _, a := range answers {
		answersByQuestion[a.QuestionID] = append(answersByQuestion[a.QuestionID], domain.Answer{
			ID:            a.ID,
			Text:          a.Text,
			Correct:       a.Correct,
			PartialCredit: a.PartialCredit,
			OrderIndex:    a.OrderIndex,
		})
	}
	pairsByQuestion := make(map[string][]domain.MatchingPair)
	for _, p := range pairs {
		pairsByQuestion[p.QuestionID] = append(pairsByQuestion[p.QuestionID], domain.MatchingPair{
			ID:         p.ID,
			RightID:    p.RightID,
			Left:       p.LeftLabel,
			Right:      p.RightLabel,
			OrderIndex: p.OrderIndex,
		})
	}
	for _, question := range questions {
		out.Questions = append(out.Questions, domain.Question{
			ID:            question.ID,
			QuizID:        question.QuizID,
			Type:          domain.QuestionType(question.Type),
			Text:          question.Text,
			Points:        question.Points,
			OrderIndex:    question.OrderIndex,
			CaseSensitive: question.CaseSensitive,
			Answers:       answersByQuestion[question.ID],
			Pairs:         pairsByQuestion[question.ID],
		})
	}
	return out
}
