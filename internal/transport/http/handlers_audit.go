package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"traincheck/internal/audit"
	dErrors "traincheck/pkg/domain-errors"
	"traincheck/pkg/platform/httputil"
)

const (
	auditDefaultLimit = 100
	auditMaxLimit     = 1000
)

type auditEntryResponse struct {
	ID              uuid.UUID         `json:"id"`
	EventType       string            `json:"event_type"`
	UserID          *uuid.UUID        `json:"user_id,omitempty"`
	TrainingID      *uuid.UUID        `json:"training_id,omitempty"`
	RecordID        *uuid.UUID        `json:"record_id,omitempty"`
	PreviousStatus  string            `json:"previous_status,omitempty"`
	NewStatus       string            `json:"new_status,omitempty"`
	SystemTimestamp time.Time         `json:"system_timestamp"`
	EventSource     string            `json:"event_source"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	IPAddress       string            `json:"ip_address,omitempty"`
}

// handleAuditQuery serves the governance read over the trail. Filters arrive
// as query parameters; timestamps are RFC 3339.
func (h *Handler) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.auditlog.List(r.Context(), filter)
	if err != nil {
		h.logWarn(r, "audit query failed", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "audit query failed"))
		return
	}

	out := make([]auditEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = auditEntryResponse{
			ID:              e.ID,
			EventType:       string(e.EventType),
			UserID:          e.UserID,
			TrainingID:      e.TrainingID,
			RecordID:        e.RecordID,
			PreviousStatus:  e.PreviousStatus,
			NewStatus:       e.NewStatus,
			SystemTimestamp: e.SystemTimestamp,
			EventSource:     e.EventSource,
			Metadata:        e.Metadata,
			IPAddress:       e.IPAddress,
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func auditFilterFromQuery(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	filter := audit.Filter{Limit: auditDefaultLimit}

	for param, target := range map[string]**uuid.UUID{
		"user_id":     &filter.UserID,
		"training_id": &filter.TrainingID,
		"record_id":   &filter.RecordID,
	} {
		if v := q.Get(param); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return audit.Filter{}, dErrors.Newf(dErrors.CodeBadRequest, "invalid %s", param)
			}
			*target = &id
		}
	}

	filter.EventType = audit.EventType(q.Get("event_type"))

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return audit.Filter{}, dErrors.New(dErrors.CodeBadRequest, "invalid from timestamp")
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return audit.Filter{}, dErrors.New(dErrors.CodeBadRequest, "invalid to timestamp")
		}
		filter.To = t
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > auditMaxLimit {
			return audit.Filter{}, dErrors.Newf(dErrors.CodeBadRequest, "limit must be between 1 and %d", auditMaxLimit)
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return audit.Filter{}, dErrors.New(dErrors.CodeBadRequest, "offset must be non-negative")
		}
		filter.Offset = n
	}

	return filter, nil
}
