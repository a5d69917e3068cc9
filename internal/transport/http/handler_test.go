package httptransport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"traincheck/internal/assessment"
	"traincheck/internal/audit"
	"traincheck/internal/certificate"
	"traincheck/internal/lifecycle"
	"traincheck/internal/platform/middleware"
	"traincheck/internal/record"
	"traincheck/internal/token"
	"traincheck/pkg/clock"
)

// HandlerSuite runs the API against real in-memory components so it
// exercises request parsing, auth gating, and error envelope mapping end to
// end.
type HandlerSuite struct {
	suite.Suite
	router     http.Handler
	records    *record.InMemoryStore
	provider   *assessment.MemoryProvider
	clock      *clock.Fake
	tokens     *token.JWTService
	trainingID uuid.UUID

	userToken  string
	adminToken string
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.records = record.NewInMemoryStore()
	auditlog := audit.NewInMemoryStore()
	s.provider = assessment.NewMemoryProvider()
	s.clock = clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	s.trainingID = uuid.New()

	s.Require().NoError(s.provider.Put(&assessment.Assessment{
		TrainingID:     s.trainingID,
		PassPercentage: 70,
		MaxAttempts:    3,
		Questions: []assessment.Question{
			{ID: "q1", Text: "Lock your screen.", Kind: assessment.KindTrueFalse, CorrectAnswer: "true"},
			{ID: "q2", Text: "Who approves data exports?", Kind: assessment.KindShortAnswer, CorrectAnswer: "dpo"},
		},
	}))

	svc := lifecycle.New(lifecycle.Config{
		Records:     s.records,
		Audit:       auditlog,
		Assessments: s.provider,
		Issuer:      certificate.NewHashIssuer(certificate.NewLocalArtifactStore("https://certs.example.com")),
		Clock:       s.clock,
	})

	s.tokens = token.NewJWTService("test-signing-key", "traincheck", "traincheck-api")
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s.router = NewRouter(New(svc, auditlog, logger, nil, s.tokens))

	var err error
	s.userToken, err = s.tokens.GenerateAccessToken(uuid.New(), "", time.Hour)
	s.Require().NoError(err)
	s.adminToken, err = s.tokens.GenerateAccessToken(uuid.New(), middleware.RoleComplianceAdmin, time.Hour)
	s.Require().NoError(err)
}

func (s *HandlerSuite) do(method, path, bearer string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) assignRecord() uuid.UUID {
	rec := s.do(http.MethodPost, "/records", s.userToken, assignRequest{
		UserID:     uuid.New(),
		TrainingID: s.trainingID,
		DueDate:    s.clock.Now().Add(7 * 24 * time.Hour),
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var resp recordResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ID
}

// =============================================================================
// Auth Gating Tests
// =============================================================================

func (s *HandlerSuite) TestAuthRequired() {
	s.Run("missing token is unauthorized", func() {
		rec := s.do(http.MethodPost, "/records", "", assignRequest{})
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("garbage token is unauthorized", func() {
		rec := s.do(http.MethodGet, "/records/"+uuid.NewString(), "not-a-token", nil)
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("health is open", func() {
		rec := s.do(http.MethodGet, "/healthz", "", nil)
		s.Equal(http.StatusOK, rec.Code)
	})
}

func (s *HandlerSuite) TestAdminRoutesRequireRole() {
	recordID := s.assignRecord()

	s.Run("override forbidden without admin role", func() {
		rec := s.do(http.MethodPost, fmt.Sprintf("/records/%s/override", recordID), s.userToken,
			overrideRequest{NewStatus: "FAILED", Reason: "test"})
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("audit query forbidden without admin role", func() {
		rec := s.do(http.MethodGet, "/audit", s.userToken, nil)
		s.Equal(http.StatusForbidden, rec.Code)
	})
}

// =============================================================================
// Record Flow Tests
// =============================================================================

func (s *HandlerSuite) TestAssign() {
	s.Run("valid assignment returns 201", func() {
		s.assignRecord()
	})

	s.Run("invalid body returns 400", func() {
		req := httptest.NewRequest(http.MethodPost, "/records", bytes.NewReader([]byte("not json")))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.userToken)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("duplicate assignment returns 409", func() {
		body := assignRequest{UserID: uuid.New(), TrainingID: s.trainingID, DueDate: s.clock.Now().Add(time.Hour)}
		rec := s.do(http.MethodPost, "/records", s.userToken, body)
		s.Require().Equal(http.StatusCreated, rec.Code)
		rec = s.do(http.MethodPost, "/records", s.userToken, body)
		s.Equal(http.StatusConflict, rec.Code)
	})
}

func (s *HandlerSuite) TestFullCompletionFlow() {
	recordID := s.assignRecord()
	base := fmt.Sprintf("/records/%s", recordID)

	rec := s.do(http.MethodPost, base+"/view", s.userToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, base+"/acknowledge", s.userToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, base+"/assessment/start", s.userToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, base+"/assessment/submit", s.userToken,
		submitRequest{Answers: map[string]string{"q1": "true", "q2": "dpo"}})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var resp submitResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("COMPLETED", resp.Status)
	s.True(resp.Passed)
	s.Equal(100, resp.Score)
	s.Require().NotNil(resp.CertificateID)
	s.Require().NotNil(resp.CertificateURL)

	rec = s.do(http.MethodGet, base, s.userToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var got recordResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Equal("COMPLETED", got.Status)
	s.Equal(*resp.CertificateID, *got.CertificateID)
}

func (s *HandlerSuite) TestGuardViolationsMapTo409() {
	recordID := s.assignRecord()

	// acknowledging before viewing breaks the order guard
	rec := s.do(http.MethodPost, fmt.Sprintf("/records/%s/acknowledge", recordID), s.userToken, nil)
	s.Equal(http.StatusConflict, rec.Code)

	var body map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("invalid_state_transition", body["error"])
}

func (s *HandlerSuite) TestIncompleteSubmissionMapsTo400() {
	recordID := s.assignRecord()
	base := fmt.Sprintf("/records/%s", recordID)
	for _, step := range []string{"/view", "/acknowledge", "/assessment/start"} {
		rec := s.do(http.MethodPost, base+step, s.userToken, nil)
		s.Require().Equal(http.StatusOK, rec.Code)
	}

	rec := s.do(http.MethodPost, base+"/assessment/submit", s.userToken,
		submitRequest{Answers: map[string]string{"q1": "true"}})
	s.Equal(http.StatusBadRequest, rec.Code)

	var body map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("incomplete_submission", body["error"])
	s.Equal("1", body["missing"])
}

func (s *HandlerSuite) TestUnknownRecordMapsTo404() {
	rec := s.do(http.MethodGet, "/records/"+uuid.NewString(), s.userToken, nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestListUserRecords() {
	userID := uuid.New()
	rec := s.do(http.MethodPost, "/records", s.userToken, assignRequest{
		UserID:     userID,
		TrainingID: s.trainingID,
		DueDate:    s.clock.Now().Add(time.Hour),
	})
	s.Require().Equal(http.StatusCreated, rec.Code)

	rec = s.do(http.MethodGet, fmt.Sprintf("/users/%s/records", userID), s.userToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var body struct {
		Records []recordResponse `json:"records"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Require().Len(body.Records, 1)
	s.Equal(userID, body.Records[0].UserID)
	s.Equal("PENDING", body.Records[0].DerivedStatus)
}

// =============================================================================
// Admin Tests
// =============================================================================

func (s *HandlerSuite) TestAdminOverride() {
	recordID := s.assignRecord()

	rec := s.do(http.MethodPost, fmt.Sprintf("/records/%s/override", recordID), s.adminToken,
		overrideRequest{NewStatus: "FAILED", Reason: "employee left the company"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var got recordResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Equal("FAILED", got.Status)

	s.Run("missing reason rejected", func() {
		rec := s.do(http.MethodPost, fmt.Sprintf("/records/%s/override", recordID), s.adminToken,
			overrideRequest{NewStatus: "PENDING"})
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestAuditQuery() {
	recordID := s.assignRecord()
	_ = s.do(http.MethodPost, fmt.Sprintf("/records/%s/view", recordID), s.userToken, nil)

	rec := s.do(http.MethodGet, "/audit?record_id="+recordID.String(), s.adminToken, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Entries []auditEntryResponse `json:"entries"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Require().Len(body.Entries, 2)
	s.Equal("ASSIGN_TRAINING", body.Entries[0].EventType)
	s.Equal("DOCUMENT_VIEWED", body.Entries[1].EventType)
	s.Equal("api", body.Entries[0].EventSource)

	s.Run("bad filter rejected", func() {
		rec := s.do(http.MethodGet, "/audit?record_id=nope", s.adminToken, nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("event type filter narrows", func() {
		rec := s.do(http.MethodGet, "/audit?event_type=DOCUMENT_VIEWED&record_id="+recordID.String(), s.adminToken, nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
		s.Require().Len(body.Entries, 1)
		s.Equal("DOCUMENT_VIEWED", body.Entries[0].EventType)
	})
}
