package record

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		rec  TrainingRecord
		want Status
	}{
		{
			name: "pending before due date stays pending",
			rec:  TrainingRecord{Status: StatusPending, DueDate: future},
			want: StatusPending,
		},
		{
			name: "pending past due date reads overdue",
			rec:  TrainingRecord{Status: StatusPending, DueDate: past},
			want: StatusOverdue,
		},
		{
			name: "in progress past due date reads overdue",
			rec:  TrainingRecord{Status: StatusInProgress, DueDate: past},
			want: StatusOverdue,
		},
		{
			name: "due date boundary is not yet overdue",
			rec:  TrainingRecord{Status: StatusPending, DueDate: now},
			want: StatusPending,
		},
		{
			name: "completed before expiry stays completed",
			rec:  TrainingRecord{Status: StatusCompleted, DueDate: past, ExpiryDate: &future},
			want: StatusCompleted,
		},
		{
			name: "completed past expiry reads expired",
			rec:  TrainingRecord{Status: StatusCompleted, DueDate: past, ExpiryDate: &past},
			want: StatusExpired,
		},
		{
			name: "completed without expiry never expires",
			rec:  TrainingRecord{Status: StatusCompleted, DueDate: past},
			want: StatusCompleted,
		},
		{
			name: "locked is unaffected by due date",
			rec:  TrainingRecord{Status: StatusLocked, DueDate: past},
			want: StatusLocked,
		},
		{
			name: "failed is unaffected by due date",
			rec:  TrainingRecord{Status: StatusFailed, DueDate: past},
			want: StatusFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(&tt.rec, now))
		})
	}
}

func TestStatusAcceptsAssessment(t *testing.T) {
	assert.True(t, StatusInProgress.AcceptsAssessment())
	assert.True(t, StatusOverdue.AcceptsAssessment(), "overdue employees can still finish")
	assert.False(t, StatusPending.AcceptsAssessment())
	assert.False(t, StatusCompleted.AcceptsAssessment())
	assert.False(t, StatusLocked.AcceptsAssessment())
	assert.False(t, StatusExpired.AcceptsAssessment())
}

func TestCloneIsDeep(t *testing.T) {
	score := 85
	cert := "CERT-1"
	rec := &TrainingRecord{
		ID:            uuid.New(),
		Status:        StatusCompleted,
		Score:         &score,
		CertificateID: &cert,
	}

	clone := rec.Clone()
	*clone.Score = 10
	*clone.CertificateID = "CERT-2"

	assert.Equal(t, 85, *rec.Score)
	assert.Equal(t, "CERT-1", *rec.CertificateID)
}

func TestHasCertificate(t *testing.T) {
	cert, url := "CERT-1", "https://certs/CERT-1.pdf"
	assert.True(t, (&TrainingRecord{CertificateID: &cert, CertificateURL: &url}).HasCertificate())
	assert.False(t, (&TrainingRecord{CertificateID: &cert}).HasCertificate(), "certificate fields travel as a pair")
	assert.False(t, (&TrainingRecord{}).HasCertificate())
}
