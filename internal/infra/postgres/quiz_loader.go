package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"lms-quiz-engine/internal/domain"
)

// QuizLoader is the hot read path feeding the definition caches. It runs
// explicit queries on a pgx pool and assembles the aggregate in one pass,
// keeping attempt-serving reads off the ORM.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz quizRow
	err := l.pool.QueryRow(ctx, `
		SELECT id, lesson_id, title, description, time_limit_seconds,
		       passing_score_percent, max_attempts, randomize_questions,
		       randomize_answers, show_correct_answers, show_results_immediately,
		       published, total_points, attempt_count, average_score,
		       created_at, updated_at
		FROM quizzes WHERE id = $1`, quizID).Scan(
		&quiz.ID, &quiz.LessonID, &quiz.Title, &quiz.Description, &quiz.TimeLimitSeconds,
		&quiz.PassingScorePercent, &quiz.MaxAttempts, &quiz.RandomizeQuestions,
		&quiz.RandomizeAnswers, &quiz.ShowCorrectAnswers, &quiz.ShowResultsImmediately,
		&quiz.Published, &quiz.TotalPoints, &quiz.AttemptCount, &quiz.AverageScore,
		&quiz.CreatedAt, &quiz.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	questions, err := l.loadQuestions(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	answers, err := l.loadAnswers(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	pairs, err := l.loadPairs(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	return assembleQuiz(quiz, questions, answers, pairs), nil
}

func (l *QuizLoader) loadQuestions(ctx context.Context, quizID string) ([]questionRow, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, quiz_id, type, text, points, order_index, case_sensitive
		FROM questions WHERE quiz_id = $1 ORDER BY order_index`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var out []questionRow
	for rows.Next() {
		var q questionRow
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Type, &q.Text, &q.Points, &q.OrderIndex, &q.CaseSensitive); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (l *QuizLoader) loadAnswers(ctx context.Context, quizID string) ([]answerRow, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT a.id, a.question_id, a.text, a.correct, a.partial_credit, a.order_index
		FROM answers a
		JOIN questions q ON q.id = a.question_id
		WHERE q.quiz_id = $1 ORDER BY a.order_index`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()

	var out []answerRow
	for rows.Next() {
		var a answerRow
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.Text, &a.Correct, &a.PartialCredit, &a.OrderIndex); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (l *QuizLoader) loadPairs(ctx context.Context, quizID string) ([]pairRow, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT p.id, p.question_id, p.right_id, p.left_label, p.right_label, p.order_index
		FROM matching_pairs p
		JOIN questions q ON q.id = p.question_id
		WHERE q.quiz_id = $1 ORDER BY p.order_index`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load matching pairs: %w", err)
	}
	defer rows.Close()

	var out []pairRow
	for rows.Next() {
		var p pairRow
		if err := rows.Scan(&p.ID, &p.QuestionID, &p.RightID, &p.LeftLabel, &p.RightLabel, &p.OrderIndex); err != nil {
			return nil, fmt.Errorf("scan matching pair: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
