package assessment

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traincheck/pkg/platform/sentinel"
)

func TestMemoryProvider_LockOnFirstStart(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	a := threeQuestionAssessment(70)

	require.NoError(t, p.Put(a))
	require.NoError(t, p.MarkLocked(ctx, a.TrainingID))

	snap, err := p.Snapshot(ctx, a.TrainingID)
	require.NoError(t, err)
	assert.True(t, snap.IsLocked)

	// locked configuration is immutable
	err = p.Put(threeQuestionAssessment(70))
	require.NoError(t, err) // different training id, unaffected

	a.PassPercentage = 50
	err = p.Put(a)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel.ErrConflict))
}

func TestMemoryProvider_SnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider()
	a := threeQuestionAssessment(70)
	require.NoError(t, p.Put(a))

	snap, err := p.Snapshot(ctx, a.TrainingID)
	require.NoError(t, err)
	snap.Questions[0].CorrectAnswer = "tampered"

	again, err := p.Snapshot(ctx, a.TrainingID)
	require.NoError(t, err)
	assert.Equal(t, "B", again.Questions[0].CorrectAnswer)
}

func TestMemoryProvider_UnknownTraining(t *testing.T) {
	p := NewMemoryProvider()
	_, err := p.Snapshot(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}
