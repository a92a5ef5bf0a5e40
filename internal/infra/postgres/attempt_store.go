package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"lms-quiz-engine/internal/domain"
)

// AttemptStore is the bun-backed attempt persistence. The one-in-progress
// invariant is enforced by a partial unique index on (quiz_id, user_id) WHERE
// status = 'in_progress'; the completed transition is a compare-and-set
// UPDATE guarded by the current status.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) CreateAttempt(ctx context.Context, attempt domain.Attempt) (domain.Attempt, bool, error) {
	row := attemptToRow(attempt)
	res, err := s.db.NewInsert().Model(&row).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("insert attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return attempt, true, nil
	}
	// Lost the race: another Start holds the in-progress slot.
	existing, ok, err := s.InProgressAttempt(ctx, attempt.QuizID, attempt.UserID)
	if err != nil {
		return domain.Attempt{}, false, err
	}
	if !ok {
		return domain.Attempt{}, false, fmt.Errorf("insert attempt: conflict without in-progress attempt")
	}
	return existing, false, nil
}

func (s *AttemptStore) GetAttempt(ctx context.Context, attemptID, userID string) (domain.Attempt, error) {
	var row attemptRow
	err := s.db.NewSelect().Model(&row).Where("id = ? AND user_id = ?", attemptID, userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("load attempt: %w", err)
	}
	return row.toDomain(), nil
}

func (s *AttemptStore) InProgressAttempt(ctx context.Context, quizID, userID string) (domain.Attempt, bool, error) {
	var row attemptRow
	err := s.db.NewSelect().Model(&row).
		Where("quiz_id = ? AND user_id = ? AND status = ?", quizID, userID, string(domain.AttemptInProgress)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, false, nil
	}
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("load in-progress attempt: %w", err)
	}
	return row.toDomain(), true, nil
}

func (s *AttemptStore) CountAttempts(ctx context.Context, quizID, userID string) (int, error) {
	count, err := s.db.NewSelect().Model((*attemptRow)(nil)).
		Where("quiz_id = ? AND user_id = ? AND status != ?", quizID, userID, string(domain.AttemptAbandoned)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return count, nil
}

func (s *AttemptStore) ListAttempts(ctx context.Context, quizID, userID string) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().Model(&rows).
		Where("quiz_id = ? AND user_id = ?", quizID, userID).
		Order("attempt_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	out := make([]domain.Attempt, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (s *AttemptStore) CompleteAttempt(ctx context.Context, attempt domain.Attempt, responses []domain.QuestionResponse) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := attemptToRow(attempt)
		res, err := tx.NewUpdate().Model(&row).
			WherePK().
			Where("status = ?", string(domain.AttemptInProgress)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("complete attempt: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// A concurrent submit or sweep won the transition.
			return domain.ErrAttemptNotInProgress
		}

		if len(responses) == 0 {
			return nil
		}
		rows := make([]responseRow, 0, len(responses))
		for _, r := range responses {
			converted, err := responseToRow(r)
			if err != nil {
				return err
			}
			rows = append(rows, converted)
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert responses: %w", err)
		}
		return nil
	})
}

func (s *AttemptStore) MarkExpired(ctx context.Context, attemptID string, at time.Time) error {
	res, err := s.db.NewUpdate().Model((*attemptRow)(nil)).
		Set("status = ?", string(domain.AttemptTimeExpired)).
		Set("submitted_at = ?", at).
		Where("id = ? AND status = ?", attemptID, string(domain.AttemptInProgress)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("expire attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAttemptNotInProgress
	}
	return nil
}

func (s *AttemptStore) AbandonStale(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.NewUpdate().Model((*attemptRow)(nil)).
		Set("status = ?", string(domain.AttemptAbandoned)).
		Where("status = ? AND started_at < ?", string(domain.AttemptInProgress), cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("abandon stale attempts: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *AttemptStore) HasInProgress(ctx context.Context, quizID string) (bool, error) {
	exists, err := s.db.NewSelect().Model((*attemptRow)(nil)).
		Where("quiz_id = ? AND status = ?", quizID, string(domain.AttemptInProgress)).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check in-progress attempts: %w", err)
	}
	return exists, nil
}

func (s *AttemptStore) GetResponses(ctx context.Context, attemptID string) ([]domain.QuestionResponse, error) {
	var rows []responseRow
	err := s.db.NewSelect().Model(&rows).Where("attempt_id = ?", attemptID).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load responses: %w", err)
	}
	out := make([]domain.QuestionResponse, 0, len(rows))
	for _, r := range rows {
		converted, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, converted)
	}
	return out, nil
}

func (s *AttemptStore) UpdateResponseGrade(ctx context.Context, response domain.QuestionResponse, attempt domain.Attempt, passingPercent float64) (domain.Attempt, error) {
	var out domain.Attempt
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// Row lock on the attempt serializes concurrent grades so the sum
		// below always sees the other grader's write.
		var locked attemptRow
		err := tx.NewSelect().Model(&locked).
			Where("id = ?", attempt.ID).
			For("UPDATE").
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrAttemptNotFound
		}
		if err != nil {
			return fmt.Errorf("lock attempt: %w", err)
		}

		res, err := tx.NewUpdate().Model((*responseRow)(nil)).
			Set("is_correct = ?", response.IsCorrect).
			Set("points_earned = ?", response.PointsEarned).
			Set("requires_manual_grading = FALSE").
			Set("graded_by = ?", response.GradedBy).
			Set("graded_at = ?", response.GradedAt).
			Where("attempt_id = ? AND question_id = ?", response.AttemptID, response.QuestionID).
			Where("requires_manual_grading = TRUE").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update response grade: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			exists, err := tx.NewSelect().Model((*responseRow)(nil)).
				Where("attempt_id = ? AND question_id = ?", response.AttemptID, response.QuestionID).
				Exists(ctx)
			if err != nil {
				return fmt.Errorf("check response: %w", err)
			}
			if !exists {
				return domain.ErrResponseNotFound
			}
			return domain.ErrNotManuallyGradable
		}

		var earned float64
		err = tx.NewSelect().Model((*responseRow)(nil)).
			ColumnExpr("COALESCE(sum(points_earned), 0)").
			Where("attempt_id = ?", attempt.ID).
			Scan(ctx, &earned)
		if err != nil {
			return fmt.Errorf("sum earned points: %w", err)
		}

		locked.EarnedPoints = earned
		locked.ScorePercentage = 0
		if locked.TotalPoints > 0 {
			locked.ScorePercentage = earned / float64(locked.TotalPoints) * 100
		}
		locked.Passed = locked.ScorePercentage >= passingPercent
		if _, err := tx.NewUpdate().Model(&locked).
			Column("earned_points", "score_percentage", "passed").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("update attempt score: %w", err)
		}
		out = locked.toDomain()
		return nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	return out, nil
}

func (s *AttemptStore) AttemptStats(ctx context.Context, quizID string) (int, float64, error) {
	var stats struct {
		Count   int     `bun:"count"`
		Average float64 `bun:"average"`
	}
	err := s.db.NewSelect().Model((*attemptRow)(nil)).
		ColumnExpr("count(*) AS count").
		ColumnExpr("COALESCE(avg(score_percentage), 0) AS average").
		Where("quiz_id = ? AND status = ?", quizID, string(domain.AttemptCompleted)).
		Scan(ctx, &stats)
	if err != nil {
		return 0, 0, fmt.Errorf("aggregate attempts: %w", err)
	}
	return stats.Count, stats.Average, nil
}

func responseToRow(r domain.QuestionResponse) (responseRow, error) {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return responseRow{}, fmt.Errorf("marshal response payload: %w", err)
	}
	return responseRow{
		ID:                    r.ID,
		AttemptID:             r.AttemptID,
		QuestionID:            r.QuestionID,
		Payload:               payload,
		IsCorrect:             r.IsCorrect,
		PointsEarned:          r.PointsEarned,
		RequiresManualGrading: r.RequiresManualGrading,
		GradedBy:              r.GradedBy,
		GradedAt:              r.GradedAt,
	}, nil
}

func (r responseRow) toDomain() (domain.QuestionResponse, error) {
	out := domain.QuestionResponse{
		ID:                    r.ID,
		AttemptID:             r.AttemptID,
		QuestionID:            r.QuestionID,
		IsCorrect:             r.IsCorrect,
		PointsEarned:          r.PointsEarned,
		RequiresManualGrading: r.RequiresManualGrading,
		GradedBy:              r.GradedBy,
		GradedAt:              r.GradedAt,
	}
	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &out.Payload); err != nil {
			return domain.QuestionResponse{}, fmt.Errorf("unmarshal response payload: %w", err)
		}
	}
	return out, nil
}
