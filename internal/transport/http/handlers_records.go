package httptransport

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"traincheck/internal/assessment"
	"traincheck/internal/lifecycle"
	"traincheck/internal/platform/middleware"
	"traincheck/internal/record"
	dErrors "traincheck/pkg/domain-errors"
	"traincheck/pkg/platform/httputil"
)

type assignRequest struct {
	UserID     uuid.UUID `json:"user_id"`
	TrainingID uuid.UUID `json:"training_id"`
	DueDate    time.Time `json:"due_date"`
}

type submitRequest struct {
	Answers map[string]string `json:"answers"`
}

type overrideRequest struct {
	NewStatus string `json:"new_status"`
	Reason    string `json:"reason"`
}

type recordResponse struct {
	ID                   uuid.UUID  `json:"id"`
	UserID               uuid.UUID  `json:"user_id"`
	TrainingID           uuid.UUID  `json:"training_id"`
	AssignedDate         time.Time  `json:"assigned_date"`
	DueDate              time.Time  `json:"due_date"`
	CompletedDate        *time.Time `json:"completed_date,omitempty"`
	ExpiryDate           *time.Time `json:"expiry_date,omitempty"`
	DocumentViewed       bool       `json:"document_viewed"`
	DocumentAcknowledged bool       `json:"document_acknowledged"`
	AssessmentAttempts   int        `json:"assessment_attempts"`
	Score                *int       `json:"score,omitempty"`
	Passed               bool       `json:"passed"`
	Status               string     `json:"status"`
	DerivedStatus        string     `json:"derived_status,omitempty"`
	CertificateID        *string    `json:"certificate_id,omitempty"`
	CertificateURL       *string    `json:"certificate_url,omitempty"`
	CompletedLate        bool       `json:"completed_late,omitempty"`
}

type submitResponse struct {
	Status             string                      `json:"status"`
	Score              int                         `json:"score"`
	Passed             bool                        `json:"passed"`
	AssessmentAttempts int                         `json:"assessment_attempts"`
	CompletedLate      bool                        `json:"completed_late,omitempty"`
	CertificateID      *string                     `json:"certificate_id,omitempty"`
	CertificateURL     *string                     `json:"certificate_url,omitempty"`
	ExpiryDate         *time.Time                  `json:"expiry_date,omitempty"`
	PerQuestion        []assessment.QuestionResult `json:"per_question,omitempty"`
}

func toRecordResponse(rec *record.TrainingRecord, derived record.Status) recordResponse {
	return recordResponse{
		ID:                   rec.ID,
		UserID:               rec.UserID,
		TrainingID:           rec.TrainingID,
		AssignedDate:         rec.AssignedDate,
		DueDate:              rec.DueDate,
		CompletedDate:        rec.CompletedDate,
		ExpiryDate:           rec.ExpiryDate,
		DocumentViewed:       rec.DocumentViewed,
		DocumentAcknowledged: rec.DocumentAcknowledged,
		AssessmentAttempts:   rec.AssessmentAttempts,
		Score:                rec.Score,
		Passed:               rec.Passed,
		Status:               string(rec.Status),
		DerivedStatus:        string(derived),
		CertificateID:        rec.CertificateID,
		CertificateURL:       rec.CertificateURL,
		CompletedLate:        rec.CompletedLate,
	}
}

// requestMeta captures who did what from where for the audit trail.
func requestMeta(r *http.Request) lifecycle.Meta {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		} else {
			ip = r.RemoteAddr
		}
	}
	return lifecycle.Meta{
		Source:    "api",
		IPAddress: ip,
		ActorID:   middleware.GetUserID(r.Context()),
	}
}

func recordIDFromPath(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "recordID"))
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid record id")
	}
	return id, nil
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	rec, err := h.lifecycle.Assign(ctx, req.UserID, req.TrainingID, req.DueDate, requestMeta(r))
	if err != nil {
		h.logWarn(r, "assign training failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRecordResponse(rec, rec.Status))
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	recordID, err := recordIDFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, derived, err := h.lifecycle.GetRecord(r.Context(), recordID)
	if err != nil {
		h.logWarn(r, "get record failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(rec, derived))
}

func (h *Handler) handleViewDocument(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "view document", h.lifecycle.ViewDocument)
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "acknowledge document", h.lifecycle.Acknowledge)
}

func (h *Handler) handleStartAssessment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "start assessment", h.lifecycle.StartAssessment)
}

// transition is the shared shape of the body-less record actions.
func (h *Handler) transition(
	w http.ResponseWriter,
	r *http.Request,
	action string,
	op func(ctx context.Context, recordID uuid.UUID, meta lifecycle.Meta) (*record.TrainingRecord, error),
) {
	recordID, err := recordIDFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rec, err := op(r.Context(), recordID, requestMeta(r))
	if err != nil {
		h.logWarn(r, action+" failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(rec, rec.Status))
}

func (h *Handler) handleSubmitAssessment(w http.ResponseWriter, r *http.Request) {
	recordID, err := recordIDFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	res, err := h.lifecycle.SubmitAssessment(r.Context(), recordID, req.Answers, requestMeta(r))
	if err != nil {
		h.logWarn(r, "submit assessment failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, submitResponse{
		Status:             string(res.Status),
		Score:              res.Score,
		Passed:             res.Passed,
		AssessmentAttempts: res.AssessmentAttempts,
		CompletedLate:      res.CompletedLate,
		CertificateID:      res.CertificateID,
		CertificateURL:     res.CertificateURL,
		ExpiryDate:         res.ExpiryDate,
		PerQuestion:        res.PerQuestion,
	})
}

func (h *Handler) handleAdminOverride(w http.ResponseWriter, r *http.Request) {
	recordID, err := recordIDFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	rec, err := h.lifecycle.AdminOverride(r.Context(), recordID, record.Status(req.NewStatus), req.Reason, requestMeta(r))
	if err != nil {
		h.logWarn(r, "admin override failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(rec, rec.Status))
}

func (h *Handler) handleListUserRecords(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user id"))
		return
	}

	recs, statuses, err := h.lifecycle.ListUserRecords(r.Context(), userID)
	if err != nil {
		h.logWarn(r, "list records failed", err)
		httputil.WriteError(w, err)
		return
	}

	out := make([]recordResponse, len(recs))
	for i, rec := range recs {
		out[i] = toRecordResponse(rec, statuses[i])
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"records": out})
}

func (h *Handler) logWarn(r *http.Request, msg string, err error) {
	h.logger.WarnContext(r.Context(), msg,
		"error", err.Error(),
		"request_id", middleware.GetRequestID(r.Context()),
	)
}
