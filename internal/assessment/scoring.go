package assessment

import (
	"math"
	"strconv"
	"strings"

	dErrors "traincheck/pkg/domain-errors"
)

// QuestionResult is the per-question breakdown returned with every scored
// submission; it is what dispute investigations replay against.
type QuestionResult struct {
	QuestionID    string
	Question      string
	UserAnswer    string
	Correct       bool
	CorrectAnswer string
}

type Result struct {
	Score       int
	Passed      bool
	PerQuestion []QuestionResult
}

// Score grades a submission against an assessment snapshot. It is a pure
// function: no side effects, deterministic for identical inputs.
//
// Every question in the set must have a submitted answer; otherwise the
// submission is rejected with CodeIncompleteSubmission carrying the missing
// count, and nothing is scored. Unknown answer keys are ignored.
func Score(a *Assessment, answers map[string]string) (*Result, error) {
	if len(a.Questions) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "assessment has no questions")
	}

	missing := 0
	for _, q := range a.Questions {
		if _, ok := answers[q.ID]; !ok {
			missing++
		}
	}
	if missing > 0 {
		return nil, dErrors.Newf(dErrors.CodeIncompleteSubmission,
			"submission missing %d of %d answers", missing, len(a.Questions)).
			Add("missing", strconv.Itoa(missing))
	}

	result := &Result{PerQuestion: make([]QuestionResult, 0, len(a.Questions))}
	correct := 0
	for _, q := range a.Questions {
		answer := answers[q.ID]
		ok := answerMatches(q, answer)
		if ok {
			correct++
		}
		result.PerQuestion = append(result.PerQuestion, QuestionResult{
			QuestionID:    q.ID,
			Question:      q.Text,
			UserAnswer:    answer,
			Correct:       ok,
			CorrectAnswer: q.CorrectAnswer,
		})
	}

	result.Score = int(math.Round(100 * float64(correct) / float64(len(a.Questions))))
	result.Passed = result.Score >= a.PassPercentage
	return result, nil
}

// answerMatches applies exact value equality. True/false answers compare
// case-insensitively since both sides are canonical booleans; choice and
// short answers compare as exact strings.
func answerMatches(q Question, answer string) bool {
	if q.Kind == KindTrueFalse {
		return strings.EqualFold(answer, q.CorrectAnswer)
	}
	return answer == q.CorrectAnswer
}
