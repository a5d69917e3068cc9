package assessment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "traincheck/pkg/domain-errors"
)

func threeQuestionAssessment(passPercentage int) *Assessment {
	return &Assessment{
		TrainingID:     uuid.New(),
		PassPercentage: passPercentage,
		MaxAttempts:    3,
		Questions: []Question{
			{ID: "q1", Text: "Which policy governs data retention?", Kind: KindMultipleChoice, Options: []string{"A", "B", "C"}, CorrectAnswer: "B"},
			{ID: "q2", Text: "Incidents must be reported within 24 hours.", Kind: KindTrueFalse, CorrectAnswer: "true"},
			{ID: "q3", Text: "Name the escalation contact.", Kind: KindShortAnswer, CorrectAnswer: "security officer"},
		},
	}
}

func TestScore_FullMarks(t *testing.T) {
	a := threeQuestionAssessment(70)
	result, err := Score(a, map[string]string{"q1": "B", "q2": "true", "q3": "security officer"})
	require.NoError(t, err)

	assert.Equal(t, 100, result.Score)
	assert.True(t, result.Passed)
	require.Len(t, result.PerQuestion, 3)
	for _, pq := range result.PerQuestion {
		assert.True(t, pq.Correct, pq.QuestionID)
	}
}

func TestScore_Rounding(t *testing.T) {
	// 1 of 3 correct rounds 33.33 to 33, 2 of 3 rounds 66.67 to 67.
	a := threeQuestionAssessment(70)

	result, err := Score(a, map[string]string{"q1": "B", "q2": "false", "q3": "nope"})
	require.NoError(t, err)
	assert.Equal(t, 33, result.Score)
	assert.False(t, result.Passed)

	result, err = Score(a, map[string]string{"q1": "B", "q2": "true", "q3": "nope"})
	require.NoError(t, err)
	assert.Equal(t, 67, result.Score)
	assert.False(t, result.Passed)
}

func TestScore_PassThresholdIsInclusive(t *testing.T) {
	a := threeQuestionAssessment(67)
	result, err := Score(a, map[string]string{"q1": "B", "q2": "true", "q3": "nope"})
	require.NoError(t, err)
	assert.Equal(t, 67, result.Score)
	assert.True(t, result.Passed)
}

func TestScore_IncompleteSubmission(t *testing.T) {
	a := threeQuestionAssessment(70)

	_, err := Score(a, map[string]string{"q1": "B", "q2": "true"})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIncompleteSubmission))

	missing, ok := dErrors.Load(err, "missing")
	require.True(t, ok)
	assert.Equal(t, "1", missing)
}

func TestScore_ComparisonRules(t *testing.T) {
	a := threeQuestionAssessment(0)

	t.Run("true/false is case-insensitive", func(t *testing.T) {
		result, err := Score(a, map[string]string{"q1": "B", "q2": "TRUE", "q3": "security officer"})
		require.NoError(t, err)
		assert.Equal(t, 100, result.Score)
	})

	t.Run("short answer is exact", func(t *testing.T) {
		result, err := Score(a, map[string]string{"q1": "B", "q2": "true", "q3": "Security Officer"})
		require.NoError(t, err)
		assert.Equal(t, 67, result.Score)
	})

	t.Run("unknown answer keys are ignored", func(t *testing.T) {
		result, err := Score(a, map[string]string{"q1": "B", "q2": "true", "q3": "security officer", "q9": "x"})
		require.NoError(t, err)
		assert.Equal(t, 100, result.Score)
	})
}

func TestScore_Deterministic(t *testing.T) {
	a := threeQuestionAssessment(70)
	answers := map[string]string{"q1": "A", "q2": "true", "q3": "security officer"}

	first, err := Score(a, answers)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Score(a, answers)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestValidate(t *testing.T) {
	t.Run("accepts well-formed assessment", func(t *testing.T) {
		require.NoError(t, threeQuestionAssessment(70).Validate())
	})

	t.Run("rejects empty question set", func(t *testing.T) {
		a := threeQuestionAssessment(70)
		a.Questions = nil
		assert.True(t, dErrors.HasCode(a.Validate(), dErrors.CodeValidation))
	})

	t.Run("rejects choice question without options", func(t *testing.T) {
		a := threeQuestionAssessment(70)
		a.Questions[0].Options = nil
		assert.True(t, dErrors.HasCode(a.Validate(), dErrors.CodeValidation))
	})

	t.Run("rejects out-of-range pass percentage", func(t *testing.T) {
		a := threeQuestionAssessment(101)
		assert.True(t, dErrors.HasCode(a.Validate(), dErrors.CodeValidation))
	})

	t.Run("rejects zero max attempts", func(t *testing.T) {
		a := threeQuestionAssessment(70)
		a.MaxAttempts = 0
		assert.True(t, dErrors.HasCode(a.Validate(), dErrors.CodeValidation))
	})
}
