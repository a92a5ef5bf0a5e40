package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"lms-quiz-engine/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore. A single
// mutex gives it the same atomicity the SQL store gets from transactions: the
// in_progress -> terminal transitions are compare-and-set under the lock.
type AttemptStore struct {
	mu        sync.RWMutex
	attempts  map[string]domain.Attempt
	responses map[string][]domain.QuestionResponse // attemptID -> responses
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts:  make(map[string]domain.Attempt),
		responses: make(map[string][]domain.QuestionResponse),
	}
}

func (s *AttemptStore) CreateAttempt(_ context.Context, attempt domain.Attempt) (domain.Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// One in-progress attempt per (user, quiz): a concurrent Start that lost
	// the race resumes the winner's attempt.
	for _, existing := range s.attempts {
		if existing.QuizID == attempt.QuizID && existing.UserID == attempt.UserID && existing.Status == domain.AttemptInProgress {
			return existing, false, nil
		}
	}
	s.attempts[attempt.ID] = attempt
	return attempt, true, nil
}

func (s *AttemptStore) GetAttempt(_ context.Context, attemptID, userID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok || attempt.UserID != userID {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptStore) InProgressAttempt(_ context.Context, quizID, userID string) (domain.Attempt, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, attempt := range s.attempts {
		if attempt.QuizID == quizID && attempt.UserID == userID && attempt.Status == domain.AttemptInProgress {
			return attempt, true, nil
		}
	}
	return domain.Attempt{}, false, nil
}

func (s *AttemptStore) CountAttempts(_ context.Context, quizID, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, attempt := range s.attempts {
		if attempt.QuizID == quizID && attempt.UserID == userID && attempt.Status != domain.AttemptAbandoned {
			count++
		}
	}
	return count, nil
}

func (s *AttemptStore) ListAttempts(_ context.Context, quizID, userID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Attempt
	for _, attempt := range s.attempts {
		if attempt.QuizID == quizID && attempt.UserID == userID {
			out = append(out, attempt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AttemptNumber < out[j].AttemptNumber
	})
	return out, nil
}

func (s *AttemptStore) CompleteAttempt(_ context.Context, attempt domain.Attempt, responses []domain.QuestionResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.attempts[attempt.ID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if current.Status != domain.AttemptInProgress {
		return domain.ErrAttemptNotInProgress
	}
	s.attempts[attempt.ID] = attempt
	s.responses[attempt.ID] = append([]domain.QuestionResponse(nil), responses...)
	return nil
}

func (s *AttemptStore) MarkExpired(_ context.Context, attemptID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if attempt.Status != domain.AttemptInProgress {
		return domain.ErrAttemptNotInProgress
	}
	attempt.Status = domain.AttemptTimeExpired
	attempt.SubmittedAt = &at
	s.attempts[attemptID] = attempt
	return nil
}

func (s *AttemptStore) AbandonStale(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	swept := 0
	for id, attempt := range s.attempts {
		if attempt.Status == domain.AttemptInProgress && attempt.StartedAt.Before(cutoff) {
			attempt.Status = domain.AttemptAbandoned
			s.attempts[id] = attempt
			swept++
		}
	}
	return swept, nil
}

func (s *AttemptStore) HasInProgress(_ context.Context, quizID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, attempt := range s.attempts {
		if attempt.QuizID == quizID && attempt.Status == domain.AttemptInProgress {
			return true, nil
		}
	}
	return false, nil
}

func (s *AttemptStore) GetResponses(_ context.Context, attemptID string) ([]domain.QuestionResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.QuestionResponse(nil), s.responses[attemptID]...), nil
}

// UpdateResponseGrade stores the manual grade and re-derives the attempt score
// from every stored response under the lock, mirroring the row-locked
// transaction of the SQL store.
func (s *AttemptStore) UpdateResponseGrade(_ context.Context, response domain.QuestionResponse, attempt domain.Attempt, passingPercent float64) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.attempts[attempt.ID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	stored := s.responses[attempt.ID]
	target := -1
	for i := range stored {
		if stored[i].QuestionID == response.QuestionID {
			target = i
			break
		}
	}
	if target < 0 {
		return domain.Attempt{}, domain.ErrResponseNotFound
	}
	if !stored[target].RequiresManualGrading {
		return domain.Attempt{}, domain.ErrNotManuallyGradable
	}

	stored[target].IsCorrect = response.IsCorrect
	stored[target].PointsEarned = response.PointsEarned
	stored[target].RequiresManualGrading = false
	stored[target].GradedBy = response.GradedBy
	stored[target].GradedAt = response.GradedAt

	earned := 0.0
	for _, r := range stored {
		earned += r.PointsEarned
	}
	current.EarnedPoints = earned
	if current.TotalPoints > 0 {
		current.ScorePercentage = earned / float64(current.TotalPoints) * 100
	} else {
		current.ScorePercentage = 0
	}
	current.Passed = current.ScorePercentage >= passingPercent
	s.attempts[attempt.ID] = current
	return current, nil
}

func (s *AttemptStore) AttemptStats(_ context.Context, quizID string) (int, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	sum := 0.0
	for _, attempt := range s.attempts {
		if attempt.QuizID == quizID && attempt.Status == domain.AttemptCompleted {
			count++
			sum += attempt.ScorePercentage
		}
	}
	if count == 0 {
		return 0, 0, nil
	}
	return count, sum / float64(count), nil
}
