// Package assessment holds the assessment snapshot consumed from the
// configuration collaborator and the pure scoring engine that grades
// submissions against it.
package assessment

import (
	"fmt"

	"github.com/google/uuid"

	dErrors "traincheck/pkg/domain-errors"
)

// QuestionKind tags the answer shape of a question so completeness and
// comparison rules are explicit per question rather than duck-typed.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindTrueFalse      QuestionKind = "true_false"
	KindShortAnswer    QuestionKind = "short_answer"
)

type Question struct {
	ID            string
	Text          string
	Kind          QuestionKind
	Options       []string
	CorrectAnswer string
}

// Assessment is a read-only snapshot of a training's assessment
// configuration. IsLocked is flipped by the collaborator the first time any
// user starts an attempt; while locked, questions and thresholds are
// immutable.
type Assessment struct {
	TrainingID     uuid.UUID
	PassPercentage int
	MaxAttempts    int
	Questions      []Question
	IsLocked       bool
}

// Validate checks the structural invariants of a snapshot before the engine
// trusts it.
func (a *Assessment) Validate() error {
	if a.PassPercentage < 0 || a.PassPercentage > 100 {
		return dErrors.Newf(dErrors.CodeValidation, "pass percentage %d out of range", a.PassPercentage)
	}
	if a.MaxAttempts < 1 {
		return dErrors.Newf(dErrors.CodeValidation, "max attempts %d must be at least 1", a.MaxAttempts)
	}
	if len(a.Questions) == 0 {
		return dErrors.New(dErrors.CodeValidation, "assessment has no questions")
	}
	seen := make(map[string]bool, len(a.Questions))
	for _, q := range a.Questions {
		if q.ID == "" {
			return dErrors.New(dErrors.CodeValidation, "question missing id")
		}
		if seen[q.ID] {
			return dErrors.Newf(dErrors.CodeValidation, "duplicate question id %q", q.ID)
		}
		seen[q.ID] = true
		switch q.Kind {
		case KindMultipleChoice:
			if len(q.Options) == 0 {
				return dErrors.Newf(dErrors.CodeValidation, "question %q has no options", q.ID)
			}
		case KindTrueFalse:
			if q.CorrectAnswer != "true" && q.CorrectAnswer != "false" {
				return dErrors.Newf(dErrors.CodeValidation, "question %q true/false answer is %q", q.ID, q.CorrectAnswer)
			}
		case KindShortAnswer:
			// free text, nothing structural to check
		default:
			return dErrors.Newf(dErrors.CodeValidation, "question %q has unknown kind %q", q.ID, q.Kind)
		}
		if q.CorrectAnswer == "" {
			return dErrors.Newf(dErrors.CodeValidation, "question %q has no correct answer", q.ID)
		}
	}
	return nil
}

// Clone returns a deep copy so callers can hand out snapshots without
// exposing the provider's backing slices.
func (a *Assessment) Clone() *Assessment {
	c := *a
	c.Questions = make([]Question, len(a.Questions))
	for i, q := range a.Questions {
		cq := q
		cq.Options = append([]string(nil), q.Options...)
		c.Questions[i] = cq
	}
	return &c
}

func (a *Assessment) String() string {
	return fmt.Sprintf("assessment[training=%s questions=%d pass=%d%% attempts=%d locked=%t]",
		a.TrainingID, len(a.Questions), a.PassPercentage, a.MaxAttempts, a.IsLocked)
}
