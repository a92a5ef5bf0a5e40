package domain

import "errors"

// Not-found errors.
var (
	// ErrQuizNotFound indicates the quiz does not exist.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAttemptNotFound indicates the attempt does not exist or belongs to another user.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrResponseNotFound indicates no response was recorded for the question.
	ErrResponseNotFound = errors.New("response not found")
)

// Forbidden errors.
var (
	// ErrQuizNotPublished is returned when a student touches an unpublished quiz.
	ErrQuizNotPublished = errors.New("quiz not published")
	// ErrMaxAttemptsReached is returned once the attempt allowance is used up.
	ErrMaxAttemptsReached = errors.New("maximum attempts reached")
	// ErrResultsNotAvailable gates results while an attempt is in progress or
	// the quiz withholds immediate results.
	ErrResultsNotAvailable = errors.New("results not available")
)

// Bad-request errors.
var (
	// ErrAttemptNotInProgress is returned when submitting a terminal attempt,
	// including the loser of a concurrent double submit.
	ErrAttemptNotInProgress = errors.New("attempt not in progress")
	// ErrTimeLimitExceeded is returned when submission arrives past the limit.
	ErrTimeLimitExceeded = errors.New("time limit exceeded")
	// ErrUnknownQuestion indicates a response references a question outside the quiz.
	ErrUnknownQuestion = errors.New("unknown question")
	// ErrBadResponseShape indicates a response payload does not fit the question type.
	ErrBadResponseShape = errors.New("response shape does not match question type")
	// ErrQuizLocked blocks edits while attempts are in progress.
	ErrQuizLocked = errors.New("quiz has attempts in progress")
	// ErrNotManuallyGradable rejects manual grades on auto-graded questions.
	ErrNotManuallyGradable = errors.New("question is not manually gradable")
)

// ErrInvalidQuiz wraps authoring validation failures; match with errors.Is.
var ErrInvalidQuiz = errors.New("invalid quiz definition")
