// Package concept contains the candidate domain model: a unit of captured
// text awaiting placement, together with its opaque vector embeddings.
package concept

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	apperrors "curator-backend/internal/errors"
)

// Embedding is a fixed-length vector produced by an external provider.
// It is opaque and immutable input to the routing core.
type Embedding struct {
	Vector      []float64
	ContentHash string
	Model       string
	Dimensions  int
}

// NewEmbedding validates and constructs an embedding.
func NewEmbedding(vector []float64, contentHash, model string) (Embedding, error) {
	if len(vector) == 0 {
		return Embedding{}, apperrors.Validation("EMPTY_VECTOR", "embedding vector cannot be empty")
	}
	if model == "" {
		return Embedding{}, apperrors.Validation("EMPTY_MODEL", "embedding model identifier cannot be empty")
	}
	return Embedding{
		Vector:      vector,
		ContentHash: contentHash,
		Model:       model,
		Dimensions:  len(vector),
	}, nil
}

// Candidate is a concept awaiting placement. Its ID derives deterministically
// from the distilled content so re-submitting the same text yields the same
// candidate, which is what makes routing idempotent end to end.
type Candidate struct {
	ID        string
	Title     string
	Content   string
	CreatedAt time.Time

	// TitleVector is the identity embedding used for duplicate detection.
	TitleVector Embedding
	// ContextVector is the content embedding used for folder matching.
	ContextVector Embedding
}

// NewCandidate constructs a candidate with a content-derived ID.
func NewCandidate(title, content string, titleVec, contextVec Embedding) (*Candidate, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" {
		return nil, apperrors.Validation("EMPTY_TITLE", "candidate title cannot be empty")
	}
	if content == "" {
		return nil, apperrors.Validation("EMPTY_CONTENT", "candidate content cannot be empty")
	}
	return &Candidate{
		ID:            DeriveID(title, content),
		Title:         title,
		Content:       content,
		CreatedAt:     time.Now().UTC(),
		TitleVector:   titleVec,
		ContextVector: contextVec,
	}, nil
}

// DeriveID produces the deterministic candidate identifier for a piece of
// captured text.
func DeriveID(title, content string) string {
	h := sha256.Sum256([]byte(title + "\x00" + content))
	return hex.EncodeToString(h[:16])
}

// HashContent returns the content hash recorded alongside embeddings.
func HashContent(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}
