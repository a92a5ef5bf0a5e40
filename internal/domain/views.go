package domain

import "sort"

// StudentAnswer is an answer option with correctness data stripped.
type StudentAnswer struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// StudentQuestion is the delivery view of a question: no correct flags, no
// pairings. For matching questions the left and right labels are listed
// separately so the client cannot infer the pairing from ordering.
type StudentQuestion struct {
	ID      string          `json:"id"`
	Type    QuestionType    `json:"type"`
	Text    string          `json:"text"`
	Points  int             `json:"points"`
	Answers []StudentAnswer `json:"answers,omitempty"`
	Lefts   []StudentAnswer `json:"lefts,omitempty"`
	Rights  []StudentAnswer `json:"rights,omitempty"`
}

// StudentQuiz is what a student sees before starting an attempt.
type StudentQuiz struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	Description       string            `json:"description,omitempty"`
	TimeLimitSeconds  int               `json:"timeLimitSeconds,omitempty"`
	MaxAttempts       int               `json:"maxAttempts"`
	RemainingAttempts int               `json:"remainingAttempts"`
	TotalPoints       int               `json:"totalPoints"`
	Questions         []StudentQuestion `json:"questions"`
}

// StripQuestion converts a full question into its student-safe view.
func StripQuestion(q Question) StudentQuestion {
	out := StudentQuestion{
		ID:     q.ID,
		Type:   q.Type,
		Text:   q.Text,
		Points: q.Points,
	}
	if q.Type == Matching {
		for _, p := range q.Pairs {
			out.Lefts = append(out.Lefts, StudentAnswer{ID: p.ID, Text: p.Left})
			out.Rights = append(out.Rights, StudentAnswer{ID: p.RightID, Text: p.Right})
		}
		// Rights are listed alphabetically so positional alignment with the
		// lefts reveals nothing about the pairing.
		sort.Slice(out.Rights, func(i, j int) bool {
			if out.Rights[i].Text == out.Rights[j].Text {
				return out.Rights[i].ID < out.Rights[j].ID
			}
			return out.Rights[i].Text < out.Rights[j].Text
		})
		return out
	}
	// Text types keep their accepted answers server-side only.
	if q.Type == ShortAnswer || q.Type == FillBlank || q.Type == Essay {
		return out
	}
	for _, a := range q.Answers {
		out.Answers = append(out.Answers, StudentAnswer{ID: a.ID, Text: a.Text})
	}
	return out
}
