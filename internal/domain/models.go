package domain

import "time"

// QuestionType enumerates the supported question kinds. Grading dispatches on
// this type exhaustively; adding a value here requires a new grading case.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	MultipleSelect QuestionType = "multiple_select"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
	Essay          QuestionType = "essay"
	FillBlank      QuestionType = "fill_blank"
	Matching       QuestionType = "matching"
)

// AttemptStatus tracks the attempt state machine. in_progress is the only
// non-terminal state.
type AttemptStatus string

const (
	AttemptInProgress  AttemptStatus = "in_progress"
	AttemptCompleted   AttemptStatus = "completed"
	AttemptTimeExpired AttemptStatus = "time_expired"
	AttemptAbandoned   AttemptStatus = "abandoned"
)

// Answer is one selectable or accepted option of a question. For text
// questions the Correct entries double as the accepted answer texts.
type Answer struct {
	ID            string  `json:"id"`
	Text          string  `json:"text"`
	Correct       bool    `json:"correct"`
	PartialCredit float64 `json:"partialCredit,omitempty"` // 0..1, reserved for weighted scoring
	OrderIndex    int     `json:"orderIndex"`
}

// MatchingPair binds a left label to its right label. The two sides carry
// unrelated identifiers: ID names the left option, RightID the right one. The
// mapping between them never leaves the server, so the student view cannot be
// mined for the answer key.
type MatchingPair struct {
	ID         string `json:"id"`
	RightID    string `json:"rightId"`
	Left       string `json:"left"`
	Right      string `json:"right"`
	OrderIndex int    `json:"orderIndex"`
}

// Question belongs to exactly one quiz. Answers is populated for choice and
// text types, Pairs only for matching.
type Question struct {
	ID            string         `json:"id"`
	QuizID        string         `json:"quizId"`
	Type          QuestionType   `json:"type"`
	Text          string         `json:"text"`
	Points        int            `json:"points"`
	OrderIndex    int            `json:"orderIndex"`
	CaseSensitive bool           `json:"caseSensitive,omitempty"`
	Answers       []Answer       `json:"answers,omitempty"`
	Pairs         []MatchingPair `json:"pairs,omitempty"`
}

// QuizSettings groups the per-quiz delivery knobs.
type QuizSettings struct {
	TimeLimitSeconds       int     `json:"timeLimitSeconds,omitempty"` // 0 means no limit
	PassingScorePercent    float64 `json:"passingScorePercent"`
	MaxAttempts            int     `json:"maxAttempts"`
	RandomizeQuestions     bool    `json:"randomizeQuestions"`
	RandomizeAnswers       bool    `json:"randomizeAnswers"`
	ShowCorrectAnswers     bool    `json:"showCorrectAnswers"`
	ShowResultsImmediately bool    `json:"showResultsImmediately"`
}

// Quiz is the full definition aggregate, including correctness data. It is
// never handed to students as-is; see StudentQuiz.
type Quiz struct {
	ID          string       `json:"id"`
	LessonID    string       `json:"lessonId,omitempty"` // opaque foreign key, never dereferenced here
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Settings    QuizSettings `json:"settings"`
	Published   bool         `json:"published"`
	TotalPoints int          `json:"totalPoints"`

	// Rolled-up statistics over completed attempts.
	AttemptCount int     `json:"attemptCount"`
	AverageScore float64 `json:"averageScore"`

	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// SumPoints recomputes the point total over all questions.
func (q Quiz) SumPoints() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

// Question returns the question with the given ID, or nil.
func (q Quiz) Question(id string) *Question {
	for i := range q.Questions {
		if q.Questions[i].ID == id {
			return &q.Questions[i]
		}
	}
	return nil
}

// MatchPair is one submitted left/right association.
type MatchPair struct {
	LeftID  string `json:"leftId"`
	RightID string `json:"rightId"`
}

// ResponsePayload carries a student's answer to a single question. Exactly one
// of the fields is meaningful, depending on the question type.
type ResponsePayload struct {
	SelectedAnswerIDs []string    `json:"selectedAnswerIds,omitempty"`
	Text              string      `json:"text,omitempty"`
	Matches           []MatchPair `json:"matches,omitempty"`
}

// QuestionResponse is the graded record of one question within an attempt.
// IsCorrect is nil when the response still requires manual grading.
type QuestionResponse struct {
	ID                    string          `json:"id"`
	AttemptID             string          `json:"attemptId"`
	QuestionID            string          `json:"questionId"`
	Payload               ResponsePayload `json:"payload"`
	IsCorrect             *bool           `json:"isCorrect"`
	PointsEarned          float64         `json:"pointsEarned"`
	RequiresManualGrading bool            `json:"requiresManualGrading"`
	GradedBy              string          `json:"gradedBy,omitempty"`
	GradedAt              *time.Time      `json:"gradedAt,omitempty"`
}

// Attempt is one timed, scored pass at a quiz by one user. TotalPoints is
// snapshotted at start so later quiz edits cannot change a score retroactively.
type Attempt struct {
	ID                string        `json:"id"`
	QuizID            string        `json:"quizId"`
	UserID            string        `json:"userId"`
	AttemptNumber     int           `json:"attemptNumber"`
	Status            AttemptStatus `json:"status"`
	StartedAt         time.Time     `json:"startedAt"`
	SubmittedAt       *time.Time    `json:"submittedAt,omitempty"`
	TotalPoints       int           `json:"totalPoints"`
	EarnedPoints      float64       `json:"earnedPoints"`
	ScorePercentage   float64       `json:"scorePercentage"`
	Passed            bool          `json:"passed"`
	RandomizationSeed *int64        `json:"randomizationSeed,omitempty"`
}

// Terminal reports whether the attempt can no longer change state.
func (a Attempt) Terminal() bool {
	return a.Status != AttemptInProgress
}

// CompletionEvent is the fact emitted to progress/gamification consumers once
// an attempt reaches completed.
type CompletionEvent struct {
	UserID          string  `json:"userId"`
	QuizID          string  `json:"quizId"`
	AttemptID       string  `json:"attemptId"`
	AttemptNumber   int     `json:"attemptNumber"`
	ScorePercentage float64 `json:"scorePercentage"`
	Passed          bool    `json:"passed"`
}
