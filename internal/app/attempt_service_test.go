package app

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"lms-quiz-engine/internal/domain"
	"lms-quiz-engine/internal/infra/memory"
)

// fixture wires an attempt service over the in-memory stores with a
// controllable clock and an event hub for assertions.
type fixture struct {
	store    *memory.QuizStore
	attempts *memory.AttemptStore
	service  *AttemptService
	hub      *Hub
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.NewQuizStore(),
		attempts: memory.NewAttemptStore(),
		hub:      NewHub(),
		now:      time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	agg := NewAggregator(f.store, f.attempts)
	repo := memory.NewQuizCache(f.store, time.Minute)
	f.service = NewAttemptServiceWithClock(repo, f.attempts, agg, f.hub, func() time.Time { return f.now })
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) addQuiz(t *testing.T, quiz domain.Quiz) domain.Quiz {
	t.Helper()
	quiz.TotalPoints = quiz.SumPoints()
	if err := f.store.CreateQuiz(context.Background(), quiz); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	return quiz
}

// twoChoiceQuiz is the workhorse fixture: two single-choice questions worth one
// point each, passing at 70%.
func twoChoiceQuiz() domain.Quiz {
	return domain.Quiz{
		ID:        "quiz-1",
		Title:     "Basics",
		Published: true,
		Settings: domain.QuizSettings{
			PassingScorePercent: 70,
			MaxAttempts:         2,
		},
		Questions: []domain.Question{
			{
				ID: "q1", QuizID: "quiz-1", Type: domain.MultipleChoice, Points: 1, OrderIndex: 0,
				Answers: []domain.Answer{
					{ID: "q1a1", Text: "right", Correct: true, OrderIndex: 0},
					{ID: "q1a2", Text: "wrong", OrderIndex: 1},
				},
			},
			{
				ID: "q2", QuizID: "quiz-1", Type: domain.MultipleChoice, Points: 1, OrderIndex: 1,
				Answers: []domain.Answer{
					{ID: "q2a1", Text: "wrong", OrderIndex: 0},
					{ID: "q2a2", Text: "right", Correct: true, OrderIndex: 1},
				},
			},
		},
	}
}

func pick(questionID, answerID string) SubmittedResponse {
	return SubmittedResponse{
		QuestionID:      questionID,
		ResponsePayload: domain.ResponsePayload{SelectedAnswerIDs: []string{answerID}},
	}
}

func TestStartAndSubmit(t *testing.T) {
	f := newFixture(t)
	f.addQuiz(t, twoChoiceQuiz())
	ctx := context.Background()

	started, err := f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Resumed {
		t.Fatalf("first start must not be a resume")
	}
	if started.Attempt.Status != domain.AttemptInProgress || started.Attempt.AttemptNumber != 1 {
		t.Fatalf("unexpected attempt: %+v", started.Attempt)
	}
	if started.Attempt.TotalPoints != 2 {
		t.Fatalf("totalPoints not snapshotted: %+v", started.Attempt)
	}
	if len(started.Questions) != 2 {
		t.Fatalf("expected 2 delivered questions, got %d", len(started.Questions))
	}
	for _, q := range started.Questions {
		for _, a := range q.Answers {
			_ = a.Text // StudentAnswer has no correctness field to leak
		}
	}

	attempt, err := f.service.Submit(ctx, started.Attempt.ID, "user-1", []SubmittedResponse{
		pick("q1", "q1a1"),
		pick("q2", "q2a2"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if attempt.Status != domain.AttemptCompleted {
		t.Fatalf("status = %s", attempt.Status)
	}
	if attempt.EarnedPoints != 2 || attempt.ScorePercentage != 100 || !attempt.Passed {
		t.Fatalf("score = %+v", attempt)
	}
	if attempt.SubmittedAt == nil || !attempt.SubmittedAt.Equal(f.now) {
		t.Fatalf("submittedAt = %v", attempt.SubmittedAt)
	}

	quiz, err := f.store.GetQuizWithAnswers(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("reload quiz: %v", err)
	}
	if quiz.AttemptCount != 1 || quiz.AverageScore != 100 {
		t.Fatalf("statistics not rolled up: count=%d avg=%v", quiz.AttemptCount, quiz.AverageScore)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addQuiz(t, twoChoiceQuiz())
	ctx := context.Background()

	first, err := f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if second.Attempt.ID != first.Attempt.ID {
		t.Fatalf("second start created a new attempt: %s vs %s", second.Attempt.ID, first.Attempt.ID)
	}
	if !second.Resumed {
		t.Fatalf("second start must report resumed")
	}
	if second.Attempt.AttemptNumber != 1 {
		t.Fatalf("attempt number bumped on resume: %d", second.Attempt.AttemptNumber)
	}
}

func TestStartConcurrent(t *testing.T) {
	f := newFixture(t)
	f.addQuiz(t, twoChoiceQuiz())
	ctx := context.Background()

	type result struct {
		started StartedAttempt
		err     error
	}
	results := make(chan result, 8)
	for i := 0; i < 8; i++ {
		go func() {
			s, err := f.service.Start(ctx, "quiz-1", "user-1")
			results <- result{s, err}
		}()
	}

	ids := make(map[string]struct{})
	for i := 0; i < 8; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("concurrent start: %v", r.err)
		}
		ids[r.started.Attempt.ID] = struct{}{}
	}
	if len(ids) != 1 {
		t.Fatalf("concurrent starts produced %d distinct attempts", len(ids))
	}
}

func TestStartEnforcesMaxAttempts(t *testing.T) {
	f := newFixture(t)
	quiz := twoChoiceQuiz()
	quiz.Settings.MaxAttempts = 1
	f.addQuiz(t, quiz)
	ctx := context.Background()

	started, err := f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.service.Submit(ctx, started.Attempt.ID, "user-1", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := f.service.Start(ctx, "quiz-1", "user-1"); !errors.Is(err, domain.ErrMaxAttemptsReached) {
		t.Fatalf("err = %v, want ErrMaxAttemptsReached", err)
	}

	// A different user still has their full allowance.
	if _, err := f.service.Start(ctx, "quiz-1", "user-2"); err != nil {
		t.Fatalf("other user start: %v", err)
	}
}

func TestStartUnpublishedQuiz(t *testing.T) {
	f := newFixture(t)
	quiz := twoChoiceQuiz()
	quiz.Published = false
	f.addQuiz(t, quiz)

	if _, err := f.service.Start(context.Background(), "quiz-1", "user-1"); !errors.Is(err, domain.ErrQuizNotPublished) {
		t.Fatalf("err = %v, want ErrQuizNotPublished", err)
	}
}

func TestSubmitTwice(t *testing.T) {
	f := newFixture(t)
	f.addQuiz(t, twoChoiceQuiz())
	ctx := context.Background()

	started, err := f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.service.Submit(ctx, started.Attempt.ID, "user-1", []SubmittedResponse{pick("q1", "q1a1")}); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err = f.service.Submit(ctx, started.Attempt.ID, "user-1", []SubmittedResponse{pick("q1", "q1a1")})
	if !errors.Is(err, domain.ErrAttemptNotInProgress) {
		t.Fatalf("second submit err = %v, want ErrAttemptNotInProgress", err)
	}

	// The losing submit must not double-count statistics.
	quiz, err := f.store.GetQuizWithAnswers(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("reload quiz: %v", err)
	}
	if quiz.AttemptCount != 1 {
		t.Fatalf("attemptCount = %d after double submit", quiz.AttemptCount)
	}
}

func TestSubmitAfterTimeLimit(t *testing.T) {
	f := newFixture(t)
	quiz := twoChoiceQuiz()
	quiz.Settings.TimeLimitSeconds = 60
	f.addQuiz(t, quiz)
	ctx := context.Background()

	started, err := f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	f.advance(61 * time.Second)
	_, err = f.service.Submit(ctx, started.Attempt.ID, "user-1", []SubmittedResponse{
		pick("q1", "q1a1"),
		pick("q2", "q2a2"),
	})
	if !errors.Is(err, domain.ErrTimeLimitExceeded) {
		t.Fatalf("err = %v, want ErrTimeLimitExceeded", err)
	}

	attempt, err := f.attempts.GetAttempt(ctx, started.Attempt.ID, "user-1")
	if err != nil {
		t.Fatalf("reload attempt: %v", err)
	}
	if attempt.Status != domain.AttemptTimeExpired {
		t.Fatalf("status = %s, want time_expired", attempt.Status)
	}
	if attempt.EarnedPoints != 0 || attempt.ScorePercentage != 0 || attempt.Passed {
		t.Fatalf("expired attempt must carry no score: %+v", attempt)
	}
	responses, err := f.attempts.GetResponses(ctx, started.Attempt.ID)
	if err != nil {
		t.Fatalf("responses: %v", err)
	}
	if len(responses) != 0 {
		t.Fatalf("expired attempt stored %d responses", len(responses))
	}
}

func TestSubmitAtTimeLimitBoundary(t *testing.T) {
	f := newFixture(t)
	quiz := twoChoiceQuiz()
	quiz.Settings.TimeLimitSeconds = 60
	f.addQuiz(t, quiz)
	ctx := context.Background()

	started, err := f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Exactly at the limit still counts.
	f.advance(60 * time.Second)
	attempt, err := f.service.Submit(ctx, started.Attempt.ID, "user-1", []SubmittedResponse{pick("q1", "q1a1")})
	if err != nil {
		t.Fatalf("submit at boundary: %v", err)
	}
	if attempt.Status != domain.AttemptCompleted {
		t.Fatalf("status = %s", attempt.Status)
	}
}

func TestSubmitUnknownQuestion(t *testing.T) {
	f := newFixture(t)
	f.addQuiz(t, twoChoiceQuiz())
	ctx := context.Background()

	started, err := f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err = f.service.Submit(ctx, started.Attempt.ID, "user-1", []SubmittedResponse{pick("nope", "q1a1")})
	if !errors.Is(err, domain.ErrUnknownQuestion) {
		t.Fatalf("err = %v, want ErrUnknownQuestion", err)
	}

	// The failed submit must leave the attempt open.
	attempt, err := f.attempts.GetAttempt(ctx, started.Attempt.ID, "user-1")
	if err != nil {
		t.Fatalf("reload attempt: %v", err)
	}
	if attempt.Status != domain.AttemptInProgress {
		t.Fatalf("status = %s, want in_progress", attempt.Status)
	}
}

func TestSubmitOtherUsersAttempt(t *testing.T) {
	f := newFixture(t)
	f.addQuiz(t, twoChoiceQuiz())
	ctx := context.Background()

	started, err := f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.service.Submit(ctx, started.Attempt.ID, "user-2", nil); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("err = %v, want ErrAttemptNotFound", err)
	}
}

func TestUnansweredQuestionsScoreZero(t *testing.T) {
	f := newFixture(t)
	f.addQuiz(t, twoChoiceQuiz())
	ctx := context.Background()

	started, err := f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	attempt, err := f.service.Submit(ctx, started.Attempt.ID, "user-1", []SubmittedResponse{pick("q1", "q1a1")})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if attempt.EarnedPoints != 1 || attempt.ScorePercentage != 50 {
		t.Fatalf("score = %+v", attempt)
	}

	responses, err := f.attempts.GetResponses(ctx, started.Attempt.ID)
	if err != nil {
		t.Fatalf("responses: %v", err)
	}
	if len(responses) != 2 {
		t.Fatalf("every question must get a response record, got %d", len(responses))
	}
	for _, r := range responses {
		if r.QuestionID == "q2" {
			if r.IsCorrect == nil || *r.IsCorrect || r.PointsEarned != 0 {
				t.Fatalf("unanswered question graded as %+v", r)
			}
		}
	}
}

func TestPassingThresholdNotRoundedEarly(t *testing.T) {
	f := newFixture(t)
	quiz := domain.Quiz{
		ID:        "quiz-1",
		Title:     "Threshold",
		Published: true,
		Settings: domain.QuizSettings{
			PassingScorePercent: 66.67,
			MaxAttempts:         3,
		},
		Questions: []domain.Question{{
			ID: "q1", QuizID: "quiz-1", Type: domain.MultipleSelect, Points: 3, OrderIndex: 0,
			Answers: []domain.Answer{
				{ID: "c1", Correct: true, OrderIndex: 0},
				{ID: "c2", Correct: true, OrderIndex: 1},
				{ID: "c3", Correct: true, OrderIndex: 2},
				{ID: "w1", OrderIndex: 3},
			},
		}},
	}
	f.addQuiz(t, quiz)
	ctx := context.Background()

	started, err := f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// 2 of 3 correct selections earn 2 points: 66.666...%, strictly below the
	// 66.67 threshold. Rounding to 66.67 before comparing would wrongly pass.
	attempt, err := f.service.Submit(ctx, started.Attempt.ID, "user-1", []SubmittedResponse{{
		QuestionID:      "q1",
		ResponsePayload: domain.ResponsePayload{SelectedAnswerIDs: []string{"c1", "c2"}},
	}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if attempt.Passed {
		t.Fatalf("66.666%% must not pass a 66.67%% threshold (score %v)", attempt.ScorePercentage)
	}

	started, err = f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	attempt, err = f.service.Submit(ctx, started.Attempt.ID, "user-1", []SubmittedResponse{{
		QuestionID:      "q1",
		ResponsePayload: domain.ResponsePayload{SelectedAnswerIDs: []string{"c1", "c2", "c3"}},
	}})
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if !attempt.Passed || attempt.ScorePercentage != 100 {
		t.Fatalf("full marks must pass: %+v", attempt)
	}
}

func TestExactPassingScorePasses(t *testing.T) {
	f := newFixture(t)
	quiz := twoChoiceQuiz()
	quiz.Settings.PassingScorePercent = 50
	f.addQuiz(t, quiz)
	ctx := context.Background()

	started, err := f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	attempt, err := f.service.Submit(ctx, started.Attempt.ID, "user-1", []SubmittedResponse{pick("q1", "q1a1")})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if attempt.ScorePercentage != 50 || !attempt.Passed {
		t.Fatalf("exactly at threshold must pass: %+v", attempt)
	}
}

func TestCompletionEventEmitted(t *testing.T) {
	f := newFixture(t)
	f.addQuiz(t, twoChoiceQuiz())
	ctx := context.Background()

	events, cancel := f.hub.Subscribe()
	defer cancel()

	started, err := f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	attempt, err := f.service.Submit(ctx, started.Attempt.ID, "user-1", []SubmittedResponse{
		pick("q1", "q1a1"),
		pick("q2", "q2a2"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case event := <-events:
		want := domain.CompletionEvent{
			UserID:          "user-1",
			QuizID:          "quiz-1",
			AttemptID:       attempt.ID,
			AttemptNumber:   1,
			ScorePercentage: 100,
			Passed:          true,
		}
		if !reflect.DeepEqual(event, want) {
			t.Fatalf("event = %+v, want %+v", event, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("no completion event received")
	}
}

func TestRandomizedOrderStableAcrossResume(t *testing.T) {
	f := newFixture(t)
	quiz := twoChoiceQuiz()
	quiz.Settings.RandomizeQuestions = true
	quiz.Settings.RandomizeAnswers = true
	f.addQuiz(t, quiz)
	ctx := context.Background()

	first, err := f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if first.Attempt.RandomizationSeed == nil {
		t.Fatalf("randomizing quiz must assign a seed")
	}
	second, err := f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !reflect.DeepEqual(first.Questions, second.Questions) {
		t.Fatalf("resume delivered a different order:\n%+v\n%+v", first.Questions, second.Questions)
	}
}

func matchingQuiz() domain.Quiz {
	return domain.Quiz{
		ID:        "quiz-match",
		Title:     "Chemistry matching",
		Published: true,
		Settings: domain.QuizSettings{
			PassingScorePercent: 50,
			MaxAttempts:         3,
			RandomizeAnswers:    true,
		},
		Questions: []domain.Question{{
			ID: "match", QuizID: "quiz-match", Type: domain.Matching, Points: 4, OrderIndex: 0,
			Pairs: []domain.MatchingPair{
				{ID: "p1", RightID: "r1", Left: "H2O", Right: "Water", OrderIndex: 0},
				{ID: "p2", RightID: "r2", Left: "NaCl", Right: "Salt", OrderIndex: 1},
				{ID: "p3", RightID: "r3", Left: "CO2", Right: "Carbon dioxide", OrderIndex: 2},
				{ID: "p4", RightID: "r4", Left: "O2", Right: "Oxygen", OrderIndex: 3},
			},
		}},
	}
}

func TestMatchingDeliveryHidesPairing(t *testing.T) {
	f := newFixture(t)
	f.addQuiz(t, matchingQuiz())
	ctx := context.Background()

	started, err := f.service.Start(ctx, "quiz-match", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	question := started.Questions[0]
	if len(question.Lefts) != 4 || len(question.Rights) != 4 {
		t.Fatalf("matching view = %+v", question)
	}

	leftIDs := make(map[string]struct{}, len(question.Lefts))
	for _, l := range question.Lefts {
		leftIDs[l.ID] = struct{}{}
	}
	for _, r := range question.Rights {
		if _, shared := leftIDs[r.ID]; shared {
			t.Fatalf("right %q carries a left ID", r.Text)
		}
	}

	// The resumed view must deliver the rights in the same order.
	resumed, err := f.service.Start(ctx, "quiz-match", "user-1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !reflect.DeepEqual(started.Questions, resumed.Questions) {
		t.Fatalf("resume reshuffled the rights:\n%+v\n%+v", started.Questions, resumed.Questions)
	}
}

func TestMatchingSubmissionScoresByPairing(t *testing.T) {
	f := newFixture(t)
	f.addQuiz(t, matchingQuiz())
	ctx := context.Background()

	started, err := f.service.Start(ctx, "quiz-match", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Echoing each left ID back as its own right ID must not score; the right
	// side has its own identifiers.
	_, err = f.service.Submit(ctx, started.Attempt.ID, "user-1", []SubmittedResponse{{
		QuestionID: "match",
		ResponsePayload: domain.ResponsePayload{Matches: []domain.MatchPair{
			{LeftID: "p1", RightID: "p1"},
			{LeftID: "p2", RightID: "p2"},
			{LeftID: "p3", RightID: "p3"},
			{LeftID: "p4", RightID: "p4"},
		}},
	}})
	if !errors.Is(err, domain.ErrBadResponseShape) {
		t.Fatalf("echoed left IDs err = %v, want ErrBadResponseShape", err)
	}

	attempt, err := f.service.Submit(ctx, started.Attempt.ID, "user-1", []SubmittedResponse{{
		QuestionID: "match",
		ResponsePayload: domain.ResponsePayload{Matches: []domain.MatchPair{
			{LeftID: "p1", RightID: "r1"},
			{LeftID: "p2", RightID: "r2"},
			{LeftID: "p3", RightID: "r3"},
			{LeftID: "p4", RightID: "r4"},
		}},
	}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if attempt.EarnedPoints != 4 || attempt.ScorePercentage != 100 || !attempt.Passed {
		t.Fatalf("score = %+v", attempt)
	}
}

func TestResultsGating(t *testing.T) {
	f := newFixture(t)
	quiz := twoChoiceQuiz()
	quiz.Settings.ShowResultsImmediately = true
	f.addQuiz(t, quiz)
	ctx := context.Background()

	started, err := f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// In progress: no results yet.
	if _, err := f.service.Results(ctx, started.Attempt.ID, "user-1"); !errors.Is(err, domain.ErrResultsNotAvailable) {
		t.Fatalf("err = %v, want ErrResultsNotAvailable", err)
	}

	if _, err := f.service.Submit(ctx, started.Attempt.ID, "user-1", []SubmittedResponse{pick("q1", "q1a1")}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	results, err := f.service.Results(ctx, started.Attempt.ID, "user-1")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(results.Responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(results.Responses))
	}
	if results.AnswerKey != nil {
		t.Fatalf("answer key leaked while showCorrectAnswers is off")
	}
	if len(results.Questions) != 2 {
		t.Fatalf("expected stripped questions in results")
	}
	if results.ScoreRounded != 50 {
		t.Fatalf("scoreRounded = %v", results.ScoreRounded)
	}
}

func TestResultsWithAnswerKey(t *testing.T) {
	f := newFixture(t)
	quiz := twoChoiceQuiz()
	quiz.Settings.ShowResultsImmediately = true
	quiz.Settings.ShowCorrectAnswers = true
	f.addQuiz(t, quiz)
	ctx := context.Background()

	started, err := f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.service.Submit(ctx, started.Attempt.ID, "user-1", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	results, err := f.service.Results(ctx, started.Attempt.ID, "user-1")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(results.AnswerKey) != 2 {
		t.Fatalf("expected full answer key, got %d questions", len(results.AnswerKey))
	}
}

func TestResultsWithheld(t *testing.T) {
	f := newFixture(t)
	f.addQuiz(t, twoChoiceQuiz()) // ShowResultsImmediately off
	ctx := context.Background()

	started, err := f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.service.Submit(ctx, started.Attempt.ID, "user-1", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.service.Results(ctx, started.Attempt.ID, "user-1"); !errors.Is(err, domain.ErrResultsNotAvailable) {
		t.Fatalf("err = %v, want ErrResultsNotAvailable", err)
	}
}

func essayQuiz() domain.Quiz {
	return domain.Quiz{
		ID:        "quiz-essay",
		Title:     "Essay quiz",
		Published: true,
		Settings: domain.QuizSettings{
			PassingScorePercent:    50,
			MaxAttempts:            1,
			ShowResultsImmediately: true,
		},
		Questions: []domain.Question{
			{
				ID: "mc", QuizID: "quiz-essay", Type: domain.MultipleChoice, Points: 2, OrderIndex: 0,
				Answers: []domain.Answer{
					{ID: "mc-a", Text: "right", Correct: true, OrderIndex: 0},
					{ID: "mc-b", Text: "wrong", OrderIndex: 1},
				},
			},
			{ID: "essay", QuizID: "quiz-essay", Type: domain.Essay, Points: 8, OrderIndex: 1},
		},
	}
}

func TestManualEssayGrading(t *testing.T) {
	f := newFixture(t)
	f.addQuiz(t, essayQuiz())
	ctx := context.Background()

	started, err := f.service.Start(ctx, "quiz-essay", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	attempt, err := f.service.Submit(ctx, started.Attempt.ID, "user-1", []SubmittedResponse{
		pick("mc", "mc-a"),
		{QuestionID: "essay", ResponsePayload: domain.ResponsePayload{Text: "my considered opinion"}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if attempt.EarnedPoints != 2 || attempt.ScorePercentage != 20 {
		t.Fatalf("pre-grading score = %+v", attempt)
	}

	results, err := f.service.Results(ctx, started.Attempt.ID, "user-1")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if !results.PendingManual {
		t.Fatalf("essay submission must flag pending manual grading")
	}

	graded, err := f.service.GradeEssay(ctx, started.Attempt.ID, "user-1", "essay", 8, "teacher-9")
	if err != nil {
		t.Fatalf("grade essay: %v", err)
	}
	if graded.EarnedPoints != 10 || graded.ScorePercentage != 100 || !graded.Passed {
		t.Fatalf("post-grading score = %+v", graded)
	}

	responses, err := f.attempts.GetResponses(ctx, started.Attempt.ID)
	if err != nil {
		t.Fatalf("responses: %v", err)
	}
	for _, r := range responses {
		if r.QuestionID != "essay" {
			continue
		}
		if r.RequiresManualGrading {
			t.Fatalf("manual flag not cleared: %+v", r)
		}
		if r.IsCorrect == nil || !*r.IsCorrect || r.PointsEarned != 8 {
			t.Fatalf("grade not applied: %+v", r)
		}
		if r.GradedBy != "teacher-9" || r.GradedAt == nil {
			t.Fatalf("grader audit fields missing: %+v", r)
		}
	}
}

func TestManualGradingGuards(t *testing.T) {
	f := newFixture(t)
	f.addQuiz(t, essayQuiz())
	ctx := context.Background()

	started, err := f.service.Start(ctx, "quiz-essay", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Cannot grade while the attempt is still running.
	if _, err := f.service.GradeEssay(ctx, started.Attempt.ID, "user-1", "essay", 5, "teacher-9"); !errors.Is(err, domain.ErrAttemptNotInProgress) {
		t.Fatalf("in-progress grade err = %v", err)
	}

	if _, err := f.service.Submit(ctx, started.Attempt.ID, "user-1", []SubmittedResponse{
		pick("mc", "mc-a"),
		{QuestionID: "essay", ResponsePayload: domain.ResponsePayload{Text: "essay"}},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Auto-graded questions reject manual grades.
	if _, err := f.service.GradeEssay(ctx, started.Attempt.ID, "user-1", "mc", 1, "teacher-9"); !errors.Is(err, domain.ErrNotManuallyGradable) {
		t.Fatalf("auto-graded err = %v", err)
	}

	// Points must stay within the question's worth.
	if _, err := f.service.GradeEssay(ctx, started.Attempt.ID, "user-1", "essay", 9, "teacher-9"); !errors.Is(err, domain.ErrInvalidQuiz) {
		t.Fatalf("out-of-bounds err = %v", err)
	}
	if _, err := f.service.GradeEssay(ctx, started.Attempt.ID, "user-1", "essay", -1, "teacher-9"); !errors.Is(err, domain.ErrInvalidQuiz) {
		t.Fatalf("negative points err = %v", err)
	}
}

func TestAbandonStaleFreesAllowance(t *testing.T) {
	f := newFixture(t)
	quiz := twoChoiceQuiz()
	quiz.Settings.MaxAttempts = 1
	f.addQuiz(t, quiz)
	ctx := context.Background()

	started, err := f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	f.advance(3 * time.Hour)
	swept, err := f.service.AbandonStale(ctx, 2*time.Hour)
	if err != nil {
		t.Fatalf("abandon stale: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}

	attempt, err := f.attempts.GetAttempt(ctx, started.Attempt.ID, "user-1")
	if err != nil {
		t.Fatalf("reload attempt: %v", err)
	}
	if attempt.Status != domain.AttemptAbandoned {
		t.Fatalf("status = %s, want abandoned", attempt.Status)
	}

	// An abandoned attempt does not consume the allowance.
	fresh, err := f.service.Start(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("restart after sweep: %v", err)
	}
	if fresh.Attempt.ID == started.Attempt.ID {
		t.Fatalf("restart resumed the abandoned attempt")
	}
}

func TestHistoryOrdered(t *testing.T) {
	f := newFixture(t)
	quiz := twoChoiceQuiz()
	quiz.Settings.MaxAttempts = 3
	f.addQuiz(t, quiz)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		started, err := f.service.Start(ctx, "quiz-1", "user-1")
		if err != nil {
			t.Fatalf("start %d: %v", i+1, err)
		}
		if _, err := f.service.Submit(ctx, started.Attempt.ID, "user-1", nil); err != nil {
			t.Fatalf("submit %d: %v", i+1, err)
		}
	}

	history, err := f.service.History(ctx, "quiz-1", "user-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("len(history) = %d", len(history))
	}
	for i, attempt := range history {
		if attempt.AttemptNumber != i+1 {
			t.Fatalf("history out of order: %+v", history)
		}
	}
}
