// Package audit is the append-only trail of lifecycle events. Entries are
// written exactly once, by the lifecycle engine, inside the same transaction
// as the state change they document; no update or delete operation exists
// anywhere in this package. Retention is indefinite.
package audit

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventAssignTraining       EventType = "ASSIGN_TRAINING"
	EventDocumentViewed       EventType = "DOCUMENT_VIEWED"
	EventDocumentAcknowledged EventType = "DOCUMENT_ACKNOWLEDGED"
	EventAssessmentStarted    EventType = "ASSESSMENT_STARTED"
	EventAssessmentSubmitted  EventType = "ASSESSMENT_SUBMITTED"
	EventAssessmentPassed     EventType = "ASSESSMENT_PASSED"
	EventAssessmentFailed     EventType = "ASSESSMENT_FAILED"
	EventTrainingOverdue      EventType = "TRAINING_OVERDUE"
	EventLateCompletion       EventType = "LATE_COMPLETION"
	EventCertificateIssued    EventType = "CERTIFICATE_ISSUED"
	EventAdminOverride        EventType = "ADMIN_OVERRIDE"
)

// Entry is one immutable audit fact. Status fields are plain strings so the
// trail stays readable even if the status vocabulary evolves.
type Entry struct {
	ID              uuid.UUID
	EventType       EventType
	UserID          *uuid.UUID
	TrainingID      *uuid.UUID
	RecordID        *uuid.UUID
	PreviousStatus  string
	NewStatus       string
	SystemTimestamp time.Time
	EventSource     string
	Metadata        map[string]string
	IPAddress       string
}

// Clone returns a deep copy so stores never hand out aliased maps.
func (e *Entry) Clone() *Entry {
	c := *e
	if e.UserID != nil {
		v := *e.UserID
		c.UserID = &v
	}
	if e.TrainingID != nil {
		v := *e.TrainingID
		c.TrainingID = &v
	}
	if e.RecordID != nil {
		v := *e.RecordID
		c.RecordID = &v
	}
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
