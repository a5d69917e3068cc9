// Package certificate generates the compliance certificate artifact reference
// for a record that completed its training. Issuance is deterministic per
// record so a retried commit after a crash reproduces the identical
// certificate instead of minting a second one.
package certificate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Certificate struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

type Request struct {
	RecordID    uuid.UUID
	Score       int
	CompletedAt time.Time
	Validity    time.Duration
}

// Issuer produces the certificate pair for a record. Implementations must be
// idempotent on RecordID: issuing twice for the same record yields the same
// pair. An unavailable artifact backend returns sentinel.ErrUnavailable
// (wrapped), which aborts the enclosing lifecycle transition.
type Issuer interface {
	Issue(ctx context.Context, req Request) (Certificate, error)
}

// ArtifactStore renders and stores the certificate document, returning its
// URL. The local implementation just derives a URL; a real deployment plugs
// in the PDF rendering service here.
type ArtifactStore interface {
	Put(ctx context.Context, certificateID string, recordID uuid.UUID) (string, error)
}

const certificatePrefix = "CERT"

// HashIssuer derives the certificate id as a content hash over the record id
// and completion instant. Identical inputs always produce the identical id,
// which is what makes retried issuance safe.
type HashIssuer struct {
	artifacts ArtifactStore
}

func NewHashIssuer(artifacts ArtifactStore) *HashIssuer {
	return &HashIssuer{artifacts: artifacts}
}

func (i *HashIssuer) Issue(ctx context.Context, req Request) (Certificate, error) {
	id := CertificateID(req.RecordID, req.CompletedAt)

	url, err := i.artifacts.Put(ctx, id, req.RecordID)
	if err != nil {
		return Certificate{}, fmt.Errorf("store certificate artifact: %w", err)
	}

	return Certificate{
		ID:        id,
		URL:       url,
		ExpiresAt: req.CompletedAt.Add(req.Validity),
	}, nil
}

// CertificateID is the deterministic token for a record's certificate:
// CERT- followed by the first 20 hex chars of sha256(recordID|completedAt).
func CertificateID(recordID uuid.UUID, completedAt time.Time) string {
	sum := sha256.Sum256([]byte(recordID.String() + "|" + completedAt.UTC().Format(time.RFC3339Nano)))
	return certificatePrefix + "-" + strings.ToUpper(hex.EncodeToString(sum[:]))[:20]
}

// LocalArtifactStore derives artifact URLs under a base URL without calling
// an external renderer.
type LocalArtifactStore struct {
	baseURL string
}

func NewLocalArtifactStore(baseURL string) *LocalArtifactStore {
	return &LocalArtifactStore{baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *LocalArtifactStore) Put(_ context.Context, certificateID string, _ uuid.UUID) (string, error) {
	return s.baseURL + "/certificates/" + certificateID + ".pdf", nil
}
