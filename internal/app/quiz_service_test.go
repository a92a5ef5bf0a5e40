package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"lms-quiz-engine/internal/domain"
	"lms-quiz-engine/internal/infra/memory"
)

func newQuizService(t *testing.T) (*QuizService, *memory.QuizStore, *memory.AttemptStore) {
	t.Helper()
	store := memory.NewQuizStore()
	attempts := memory.NewAttemptStore()
	repo := memory.NewQuizCache(store, time.Minute)
	return NewQuizService(store, repo, attempts), store, attempts
}

func validQuizInput() QuizInput {
	return QuizInput{
		Title:               "Chemistry basics",
		PassingScorePercent: 60,
		MaxAttempts:         3,
		Published:           true,
		Questions: []QuestionInput{
			{
				Type: domain.MultipleChoice, Text: "Symbol for sodium?", Points: 2,
				Answers: []AnswerInput{
					{Text: "Na", Correct: true},
					{Text: "So"},
					{Text: "Sd"},
				},
			},
			{
				Type: domain.TrueFalse, Text: "Water boils at 100C at sea level.", Points: 1,
				Answers: []AnswerInput{
					{Text: "True", Correct: true},
					{Text: "False"},
				},
			},
			{
				Type: domain.Matching, Text: "Match formula to name.", Points: 4,
				Pairs: []PairInput{
					{Left: "H2O", Right: "Water"},
					{Left: "NaCl", Right: "Salt"},
				},
			},
		},
	}
}

func TestCreateQuizComputesTotals(t *testing.T) {
	svc, store, _ := newQuizService(t)

	quiz, err := svc.CreateQuiz(context.Background(), validQuizInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if quiz.TotalPoints != 7 {
		t.Fatalf("totalPoints = %d, want 7", quiz.TotalPoints)
	}
	if len(quiz.Questions) != 3 {
		t.Fatalf("questions = %d", len(quiz.Questions))
	}
	for i, q := range quiz.Questions {
		if q.ID == "" || q.QuizID != quiz.ID {
			t.Fatalf("question %d missing identity: %+v", i, q)
		}
		if q.OrderIndex != i {
			t.Fatalf("question %d orderIndex = %d", i, q.OrderIndex)
		}
	}

	stored, err := store.GetQuizWithAnswers(context.Background(), quiz.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.TotalPoints != 7 {
		t.Fatalf("stored totalPoints = %d", stored.TotalPoints)
	}
}

func TestCreateQuizValidation(t *testing.T) {
	svc, _, _ := newQuizService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*QuizInput)
	}{
		{"missing title", func(in *QuizInput) { in.Title = "" }},
		{"zero max attempts", func(in *QuizInput) { in.MaxAttempts = 0 }},
		{"passing score above 100", func(in *QuizInput) { in.PassingScorePercent = 101 }},
		{"unknown question type", func(in *QuizInput) { in.Questions[0].Type = "ranking" }},
		{"zero points", func(in *QuizInput) { in.Questions[0].Points = 0 }},
		{"choice with two correct", func(in *QuizInput) { in.Questions[0].Answers[1].Correct = true }},
		{"choice with one answer", func(in *QuizInput) { in.Questions[0].Answers = in.Questions[0].Answers[:1] }},
		{"true/false with three answers", func(in *QuizInput) {
			in.Questions[1].Answers = append(in.Questions[1].Answers, AnswerInput{Text: "Maybe"})
		}},
		{"matching with one pair", func(in *QuizInput) { in.Questions[2].Pairs = in.Questions[2].Pairs[:1] }},
		{"published with no questions", func(in *QuizInput) { in.Questions = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validQuizInput()
			tc.mutate(&input)
			if _, err := svc.CreateQuiz(ctx, input); !errors.Is(err, domain.ErrInvalidQuiz) {
				t.Fatalf("err = %v, want ErrInvalidQuiz", err)
			}
		})
	}
}

func TestCreateDraftWithoutQuestions(t *testing.T) {
	svc, _, _ := newQuizService(t)

	input := validQuizInput()
	input.Published = false
	input.Questions = nil
	quiz, err := svc.CreateQuiz(context.Background(), input)
	if err != nil {
		t.Fatalf("draft create: %v", err)
	}
	if quiz.TotalPoints != 0 || quiz.Published {
		t.Fatalf("draft = %+v", quiz)
	}
}

func TestUpdateQuizFrozenWhileAttemptsRun(t *testing.T) {
	svc, _, attempts := newQuizService(t)
	ctx := context.Background()

	quiz, err := svc.CreateQuiz(ctx, validQuizInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, _, err = attempts.CreateAttempt(ctx, domain.Attempt{
		ID: "att-1", QuizID: quiz.ID, UserID: "user-1",
		Status: domain.AttemptInProgress, StartedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed attempt: %v", err)
	}

	if _, err := svc.UpdateQuiz(ctx, quiz.ID, validQuizInput()); !errors.Is(err, domain.ErrQuizLocked) {
		t.Fatalf("update err = %v, want ErrQuizLocked", err)
	}
	if err := svc.DeleteQuiz(ctx, quiz.ID); !errors.Is(err, domain.ErrQuizLocked) {
		t.Fatalf("delete err = %v, want ErrQuizLocked", err)
	}

	// Once the attempt completes the quiz unfreezes.
	if err := attempts.CompleteAttempt(ctx, domain.Attempt{
		ID: "att-1", QuizID: quiz.ID, UserID: "user-1", Status: domain.AttemptCompleted,
	}, nil); err != nil {
		t.Fatalf("complete attempt: %v", err)
	}
	if _, err := svc.UpdateQuiz(ctx, quiz.ID, validQuizInput()); err != nil {
		t.Fatalf("update after completion: %v", err)
	}
}

func TestUpdateQuizPreservesStatistics(t *testing.T) {
	svc, store, _ := newQuizService(t)
	ctx := context.Background()

	quiz, err := svc.CreateQuiz(ctx, validQuizInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.UpdateStatistics(ctx, quiz.ID, 5, 82.5); err != nil {
		t.Fatalf("seed statistics: %v", err)
	}

	updated, err := svc.UpdateQuiz(ctx, quiz.ID, validQuizInput())
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.AttemptCount != 5 || updated.AverageScore != 82.5 {
		t.Fatalf("statistics lost on update: %+v", updated)
	}
	if !updated.CreatedAt.Equal(quiz.CreatedAt) {
		t.Fatalf("createdAt changed on update")
	}
}

func TestUpdateMissingQuiz(t *testing.T) {
	svc, _, _ := newQuizService(t)
	if _, err := svc.UpdateQuiz(context.Background(), "nope", validQuizInput()); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("err = %v, want ErrQuizNotFound", err)
	}
}

func TestStudentViewStripsAnswers(t *testing.T) {
	svc, _, _ := newQuizService(t)
	ctx := context.Background()

	quiz, err := svc.CreateQuiz(ctx, validQuizInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	view, err := svc.GetQuizForStudent(ctx, quiz.ID, "user-1")
	if err != nil {
		t.Fatalf("student view: %v", err)
	}
	if view.RemainingAttempts != 3 {
		t.Fatalf("remainingAttempts = %d", view.RemainingAttempts)
	}
	if view.TotalPoints != 7 {
		t.Fatalf("totalPoints = %d", view.TotalPoints)
	}
	if len(view.Questions) != 3 {
		t.Fatalf("questions = %d", len(view.Questions))
	}

	// The matching question exposes lefts and rights separately, never pairs.
	matching := view.Questions[2]
	if len(matching.Lefts) != 2 || len(matching.Rights) != 2 {
		t.Fatalf("matching view = %+v", matching)
	}
	if len(matching.Answers) != 0 {
		t.Fatalf("matching question must not list answers")
	}
}

func TestStudentViewHidesMatchingKey(t *testing.T) {
	svc, _, _ := newQuizService(t)
	ctx := context.Background()

	input := validQuizInput()
	input.Questions = []QuestionInput{
		{
			Type: domain.Matching, Text: "Match formula to name.", Points: 4,
			Pairs: []PairInput{
				{Left: "NaCl", Right: "Salt"},
				{Left: "H2O", Right: "Water"},
				{Left: "O2", Right: "Oxygen"},
				{Left: "CO2", Right: "Carbon dioxide"},
			},
		},
	}
	quiz, err := svc.CreateQuiz(ctx, input)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	view, err := svc.GetQuizForStudent(ctx, quiz.ID, "user-1")
	if err != nil {
		t.Fatalf("student view: %v", err)
	}
	matching := view.Questions[0]

	// Left and right IDs never overlap; pairing equal IDs must not be a
	// winning strategy.
	leftIDs := make(map[string]struct{}, len(matching.Lefts))
	for _, l := range matching.Lefts {
		if l.ID == "" {
			t.Fatalf("left without ID: %+v", l)
		}
		leftIDs[l.ID] = struct{}{}
	}
	for _, r := range matching.Rights {
		if _, shared := leftIDs[r.ID]; shared {
			t.Fatalf("right %q reuses a left ID, view leaks the pairing", r.Text)
		}
	}

	// Rights are ordered by label, not by pair position.
	for i := 1; i < len(matching.Rights); i++ {
		if matching.Rights[i-1].Text > matching.Rights[i].Text {
			t.Fatalf("rights not alphabetical: %+v", matching.Rights)
		}
	}
}

func TestAuthoringWritesInvalidateCache(t *testing.T) {
	svc, _, _ := newQuizService(t)
	ctx := context.Background()

	quiz, err := svc.CreateQuiz(ctx, validQuizInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Warm the cache through the student read path.
	if _, err := svc.GetQuizForStudent(ctx, quiz.ID, "user-1"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	updated := validQuizInput()
	updated.Title = "Chemistry basics, second edition"
	if _, err := svc.UpdateQuiz(ctx, quiz.ID, updated); err != nil {
		t.Fatalf("update: %v", err)
	}
	view, err := svc.GetQuizForStudent(ctx, quiz.ID, "user-1")
	if err != nil {
		t.Fatalf("view after update: %v", err)
	}
	if view.Title != updated.Title {
		t.Fatalf("stale title %q served after update", view.Title)
	}

	if err := svc.DeleteQuiz(ctx, quiz.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetQuizForStudent(ctx, quiz.ID, "user-1"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("deleted quiz err = %v, want ErrQuizNotFound", err)
	}
}

func TestStudentViewGates(t *testing.T) {
	svc, _, attempts := newQuizService(t)
	ctx := context.Background()

	input := validQuizInput()
	input.Published = false
	draft, err := svc.CreateQuiz(ctx, input)
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if _, err := svc.GetQuizForStudent(ctx, draft.ID, "user-1"); !errors.Is(err, domain.ErrQuizNotPublished) {
		t.Fatalf("draft view err = %v", err)
	}

	input = validQuizInput()
	input.MaxAttempts = 1
	quiz, err := svc.CreateQuiz(ctx, input)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Exhaust the allowance with a completed attempt.
	if _, _, err := attempts.CreateAttempt(ctx, domain.Attempt{
		ID: "att-1", QuizID: quiz.ID, UserID: "user-1",
		Status: domain.AttemptInProgress, StartedAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed attempt: %v", err)
	}

	// Mid-attempt the view stays reachable so the student can resume.
	view, err := svc.GetQuizForStudent(ctx, quiz.ID, "user-1")
	if err != nil {
		t.Fatalf("mid-attempt view: %v", err)
	}
	if view.RemainingAttempts != 0 {
		t.Fatalf("remainingAttempts = %d, want 0", view.RemainingAttempts)
	}

	if err := attempts.CompleteAttempt(ctx, domain.Attempt{
		ID: "att-1", QuizID: quiz.ID, UserID: "user-1", Status: domain.AttemptCompleted,
	}, nil); err != nil {
		t.Fatalf("complete attempt: %v", err)
	}
	if _, err := svc.GetQuizForStudent(ctx, quiz.ID, "user-1"); !errors.Is(err, domain.ErrMaxAttemptsReached) {
		t.Fatalf("exhausted view err = %v", err)
	}
}
