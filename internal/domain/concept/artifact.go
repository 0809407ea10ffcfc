package concept

import (
	"time"

	apperrors "curator-backend/internal/errors"
)

// Status is the persisted routing state of an artifact.
type Status string

const (
	// StatusRouted means the artifact lives in a real folder.
	StatusRouted Status = "routed"
	// StatusUnsorted means the artifact is parked in the Unsorted fallback.
	StatusUnsorted Status = "unsorted"
	// StatusDuplicate means the artifact was judged a copy of another.
	StatusDuplicate Status = "duplicate"
)

// Artifact is the persisted form of a placed concept: the candidate content
// plus its current routing state. Routing state changes always reference the
// decision that caused them.
type Artifact struct {
	ID          string
	Title       string
	Content     string
	ContentHash string
	Status      Status
	FolderID    string
	DecisionID  string
	DuplicateOf string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewArtifact creates an artifact from a candidate in the unsorted state;
// routing assigns the real state afterwards.
func NewArtifact(c *Candidate) *Artifact {
	now := time.Now().UTC()
	return &Artifact{
		ID:          c.ID,
		Title:       c.Title,
		Content:     c.Content,
		ContentHash: HashContent(c.Content),
		Status:      StatusUnsorted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// RoutingUpdate describes a routing state change applied to an artifact.
type RoutingUpdate struct {
	Status      Status
	FolderID    string
	DecisionID  string
	DuplicateOf string
}

// Validate checks the update payload matches its status.
func (u RoutingUpdate) Validate() error {
	switch u.Status {
	case StatusRouted:
		if u.FolderID == "" {
			return apperrors.Validation("ROUTING_UPDATE", "routed status requires a folder id")
		}
	case StatusDuplicate:
		if u.DuplicateOf == "" {
			return apperrors.Validation("ROUTING_UPDATE", "duplicate status requires the original artifact id")
		}
	case StatusUnsorted:
		// No payload.
	default:
		return apperrors.Validation("ROUTING_UPDATE", "unknown artifact status").
			WithContext("status", string(u.Status))
	}
	if u.DecisionID == "" {
		return apperrors.Validation("ROUTING_UPDATE", "routing updates must reference a decision")
	}
	return nil
}
