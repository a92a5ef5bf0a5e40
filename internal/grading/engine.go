// Package grading scores a single question response against its definition.
// All functions are pure: no clock, no storage, no randomness.
package grading

import (
	"fmt"
	"strings"

	"lms-quiz-engine/internal/domain"
)

// Result is the outcome of grading one response.
//
// IsCorrect is nil when correctness cannot be decided automatically (essay).
// Points always satisfies 0 <= Points <= question.Points.
type Result struct {
	IsCorrect      *bool
	Points         float64
	RequiresManual bool
}

// Grade scores response against question. A nil response means the student
// left the question unanswered: zero credit, except essays which still get
// flagged for manual grading.
//
// Dispatch is one case per domain.QuestionType; an unrecognized type is an
// error, never a silently skipped question.
func Grade(question domain.Question, response *domain.ResponsePayload) (Result, error) {
	if response == nil {
		if question.Type == domain.Essay {
			return Result{RequiresManual: true}, nil
		}
		return Result{IsCorrect: boolPtr(false)}, nil
	}

	switch question.Type {
	case domain.MultipleChoice, domain.TrueFalse:
		return gradeSingleChoice(question, *response)
	case domain.MultipleSelect:
		return gradeMultiSelect(question, *response)
	case domain.ShortAnswer, domain.FillBlank:
		return gradeText(question, *response)
	case domain.Essay:
		// Zero default until a manual grade lands.
		return Result{RequiresManual: true}, nil
	case domain.Matching:
		return gradeMatching(question, *response)
	}
	return Result{}, fmt.Errorf("unsupported question type %q", question.Type)
}

// gradeSingleChoice awards full points iff exactly one answer is selected and
// it is the correct one. No partial credit.
func gradeSingleChoice(q domain.Question, resp domain.ResponsePayload) (Result, error) {
	if len(resp.Text) > 0 || len(resp.Matches) > 0 {
		return Result{}, domain.ErrBadResponseShape
	}
	if len(resp.SelectedAnswerIDs) != 1 {
		return Result{IsCorrect: boolPtr(false)}, nil
	}
	for _, a := range q.Answers {
		if a.ID == resp.SelectedAnswerIDs[0] {
			if a.Correct {
				return Result{IsCorrect: boolPtr(true), Points: float64(q.Points)}, nil
			}
			return Result{IsCorrect: boolPtr(false)}, nil
		}
	}
	return Result{}, domain.ErrBadResponseShape
}

// gradeMultiSelect applies the partial-credit formula
//
//	max(0, (correct picks - incorrect picks) / |correct set|) * points
//
// and marks the response correct only on an exact set match.
func gradeMultiSelect(q domain.Question, resp domain.ResponsePayload) (Result, error) {
	if len(resp.Text) > 0 || len(resp.Matches) > 0 {
		return Result{}, domain.ErrBadResponseShape
	}

	known := make(map[string]bool, len(q.Answers)) // id -> correct
	correctCount := 0
	for _, a := range q.Answers {
		known[a.ID] = a.Correct
		if a.Correct {
			correctCount++
		}
	}

	selected := make(map[string]struct{}, len(resp.SelectedAnswerIDs))
	hits, misses := 0, 0
	for _, id := range resp.SelectedAnswerIDs {
		correct, ok := known[id]
		if !ok {
			return Result{}, domain.ErrBadResponseShape
		}
		if _, dup := selected[id]; dup {
			continue
		}
		selected[id] = struct{}{}
		if correct {
			hits++
		} else {
			misses++
		}
	}

	exact := misses == 0 && hits == correctCount && len(selected) == correctCount
	if exact {
		return Result{IsCorrect: boolPtr(true), Points: float64(q.Points)}, nil
	}
	points := 0.0
	if correctCount > 0 {
		fraction := float64(hits-misses) / float64(correctCount)
		if fraction > 0 {
			points = fraction * float64(q.Points)
		}
	}
	return Result{IsCorrect: boolPtr(false), Points: points}, nil
}

// gradeText compares the trimmed submission against every accepted answer
// text, case-insensitively unless the question demands case sensitivity.
func gradeText(q domain.Question, resp domain.ResponsePayload) (Result, error) {
	if len(resp.SelectedAnswerIDs) > 0 || len(resp.Matches) > 0 {
		return Result{}, domain.ErrBadResponseShape
	}
	submitted := strings.TrimSpace(resp.Text)
	for _, a := range q.Answers {
		if !a.Correct {
			continue
		}
		accepted := strings.TrimSpace(a.Text)
		match := submitted == accepted
		if !q.CaseSensitive {
			match = strings.EqualFold(submitted, accepted)
		}
		if match {
			return Result{IsCorrect: boolPtr(true), Points: float64(q.Points)}, nil
		}
	}
	return Result{IsCorrect: boolPtr(false)}, nil
}

// gradeMatching awards points proportional to the number of correctly matched
// pairs. A pair is correct when the chosen right label belongs to the same
// defined pair as the left label.
func gradeMatching(q domain.Question, resp domain.ResponsePayload) (Result, error) {
	if len(resp.SelectedAnswerIDs) > 0 || len(resp.Text) > 0 {
		return Result{}, domain.ErrBadResponseShape
	}
	total := len(q.Pairs)
	if total == 0 {
		return Result{IsCorrect: boolPtr(false)}, nil
	}
	rightByPair := make(map[string]string, total) // left id -> expected right id
	rights := make(map[string]struct{}, total)
	for _, p := range q.Pairs {
		rightByPair[p.ID] = p.RightID
		rights[p.RightID] = struct{}{}
	}

	matched := make(map[string]struct{}, len(resp.Matches))
	correct := 0
	for _, m := range resp.Matches {
		expected, ok := rightByPair[m.LeftID]
		if !ok {
			return Result{}, domain.ErrBadResponseShape
		}
		if _, ok := rights[m.RightID]; !ok {
			return Result{}, domain.ErrBadResponseShape
		}
		if _, dup := matched[m.LeftID]; dup {
			continue
		}
		matched[m.LeftID] = struct{}{}
		if m.RightID == expected {
			correct++
		}
	}

	points := float64(correct) / float64(total) * float64(q.Points)
	return Result{IsCorrect: boolPtr(correct == total), Points: points}, nil
}

func boolPtr(b bool) *bool { return &b }
