// Package repository defines the persistence contracts consumed by the
// routing core. Implementations live under memory/ (tests, single node) and
// the dynamodb infrastructure package.
package repository

import (
	"context"
	"time"

	"curator-backend/internal/domain/concept"
	"curator-backend/internal/domain/decision"
	"curator-backend/internal/domain/folder"
)

// ArtifactRepository persists placed concepts and their routing state.
type ArtifactRepository interface {
	Save(ctx context.Context, artifact *concept.Artifact) error
	FindByID(ctx context.Context, id string) (*concept.Artifact, error)
	UpdateRouting(ctx context.Context, id string, update concept.RoutingUpdate) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// FolderRepository persists folder records. Update enforces optimistic
// locking on Record.Version: a stale write fails with a CONCURRENCY error
// and the caller reloads and retries.
type FolderRepository interface {
	Create(ctx context.Context, record *folder.Record) error
	FindByID(ctx context.Context, id string) (*folder.Record, error)
	FindByPath(ctx context.Context, path folder.Path) (*folder.Record, error)
	Update(ctx context.Context, record *folder.Record) error
	Rename(ctx context.Context, id string, newPath folder.Path) error
	ListChildren(ctx context.Context, path folder.Path) ([]*folder.Record, error)
	List(ctx context.Context) ([]*folder.Record, error)
	Count(ctx context.Context) (int, error)
}

// AuditRepository is the append-only decision log. Append must never fail
// the caller: implementations swallow write failures, log them, and retry
// asynchronously.
type AuditRepository interface {
	Append(ctx context.Context, d *decision.Decision)
	// Recent returns up to limit decisions, newest first, for the
	// out-of-band reorganization analysis.
	Recent(ctx context.Context, limit int) ([]*decision.Decision, error)
}

// ReviewReason explains why a candidate was queued for human review.
type ReviewReason string

const (
	// ReasonAmbiguousRouting marks candidates whose best folder score fell
	// in the low-confidence band.
	ReasonAmbiguousRouting ReviewReason = "ambiguous-routing"
	// ReasonInfraDegraded marks candidates parked after infrastructure
	// failures exhausted their retries.
	ReasonInfraDegraded ReviewReason = "infra-degraded"
)

// ReviewItem is one queued request for human attention.
type ReviewItem struct {
	CandidateID      string
	Reason           ReviewReason
	SuggestedActions []decision.Alternative
	EnqueuedAt       time.Time
}

// ReviewQueue receives candidates the engine cannot place confidently.
type ReviewQueue interface {
	AddForReview(ctx context.Context, candidateID string, reason ReviewReason, suggested []decision.Alternative) error
}
