// Package record holds the TrainingRecord entity, its status vocabulary, and
// the store ports the lifecycle engine commits through.
package record

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle label of a training record. OVERDUE and EXPIRED are
// derived labels: they are persisted by the sweeper for audit purposes but are
// always re-derivable from stored fields plus the current time.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusLocked     Status = "LOCKED"
	StatusOverdue    Status = "OVERDUE"
	StatusExpired    Status = "EXPIRED"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed,
		StatusLocked, StatusOverdue, StatusExpired:
		return true
	}
	return false
}

// AcceptsAssessment reports whether a record in this status may still take
// assessment actions. OVERDUE is a live record wearing a derived label, so it
// still accepts actions; LOCKED and the completion states do not.
func (s Status) AcceptsAssessment() bool {
	return s == StatusInProgress || s == StatusOverdue
}

// TrainingRecord is one (user, training) assignment.
type TrainingRecord struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	TrainingID uuid.UUID

	AssignedDate  time.Time
	DueDate       time.Time
	CompletedDate *time.Time
	ExpiryDate    *time.Time

	DocumentViewed       bool
	DocumentAcknowledged bool

	AssessmentAttempts int
	Score              *int
	Passed             bool

	Status Status

	// CertificateID and CertificateURL are both set or both unset, and are
	// immutable after first write.
	CertificateID  *string
	CertificateURL *string

	// CompletedLate is derived exactly once, at the moment of the passing
	// submission, and never changes afterwards.
	CompletedLate bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so stores and callers never alias pointer fields.
func (r *TrainingRecord) Clone() *TrainingRecord {
	c := *r
	if r.CompletedDate != nil {
		v := *r.CompletedDate
		c.CompletedDate = &v
	}
	if r.ExpiryDate != nil {
		v := *r.ExpiryDate
		c.ExpiryDate = &v
	}
	if r.Score != nil {
		v := *r.Score
		c.Score = &v
	}
	if r.CertificateID != nil {
		v := *r.CertificateID
		c.CertificateID = &v
	}
	if r.CertificateURL != nil {
		v := *r.CertificateURL
		c.CertificateURL = &v
	}
	return &c
}

// HasCertificate reports whether the certificate pair has been written.
func (r *TrainingRecord) HasCertificate() bool {
	return r.CertificateID != nil && r.CertificateURL != nil
}

// DeriveStatus is the read-side projection of the record's effective status at
// a given time. It never mutates the record: PENDING/IN_PROGRESS past the due
// date read as OVERDUE, COMPLETED past the expiry date reads as EXPIRED, and
// every other disposition is reported as stored.
func DeriveStatus(r *TrainingRecord, now time.Time) Status {
	switch r.Status {
	case StatusPending, StatusInProgress:
		if now.After(r.DueDate) {
			return StatusOverdue
		}
	case StatusCompleted:
		if r.ExpiryDate != nil && now.After(*r.ExpiryDate) {
			return StatusExpired
		}
	}
	return r.Status
}
