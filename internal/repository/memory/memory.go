// Package memory provides in-memory repository implementations used by tests
// and single-node deployments. They honor the same contracts as the DynamoDB
// implementations, including optimistic locking on folder updates.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"curator-backend/internal/domain/concept"
	"curator-backend/internal/domain/decision"
	"curator-backend/internal/domain/folder"
	apperrors "curator-backend/internal/errors"
	"curator-backend/internal/repository"
)

// ArtifactRepository is the in-memory artifact store.
type ArtifactRepository struct {
	mu    sync.RWMutex
	items map[string]*concept.Artifact
}

// NewArtifactRepository creates an empty artifact store.
func NewArtifactRepository() *ArtifactRepository {
	return &ArtifactRepository{items: make(map[string]*concept.Artifact)}
}

func (r *ArtifactRepository) Save(ctx context.Context, artifact *concept.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *artifact
	r.items[artifact.ID] = &copied
	return nil
}

func (r *ArtifactRepository) FindByID(ctx context.Context, id string) (*concept.Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[id]
	if !ok {
		return nil, apperrors.NotFound("ARTIFACT_NOT_FOUND", "artifact not found").
			WithContext("artifactId", id)
	}
	copied := *a
	return &copied, nil
}

func (r *ArtifactRepository) UpdateRouting(ctx context.Context, id string, update concept.RoutingUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return apperrors.NotFound("ARTIFACT_NOT_FOUND", "artifact not found").
			WithContext("artifactId", id)
	}
	a.Status = update.Status
	a.FolderID = update.FolderID
	a.DecisionID = update.DecisionID
	a.DuplicateOf = update.DuplicateOf
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *ArtifactRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *ArtifactRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items), nil
}

// FolderRepository is the in-memory folder store with optimistic locking.
type FolderRepository struct {
	mu    sync.RWMutex
	items map[string]*folder.Record
}

// NewFolderRepository creates an empty folder store.
func NewFolderRepository() *FolderRepository {
	return &FolderRepository{items: make(map[string]*folder.Record)}
}

func (r *FolderRepository) Create(ctx context.Context, record *folder.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.Path.Equals(record.Path) {
			return apperrors.Validation("FOLDER_EXISTS", "a folder already exists at this path").
				WithContext("path", record.Path.String())
		}
	}
	copied := *record
	r.items[record.ID] = &copied
	return nil
}

func (r *FolderRepository) FindByID(ctx context.Context, id string) (*folder.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.items[id]
	if !ok {
		return nil, apperrors.NotFound("FOLDER_NOT_FOUND", "folder not found").
			WithContext("folderId", id)
	}
	copied := *rec
	return &copied, nil
}

func (r *FolderRepository) FindByPath(ctx context.Context, path folder.Path) (*folder.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.items {
		if rec.Path.Equals(path) {
			copied := *rec
			return &copied, nil
		}
	}
	return nil, apperrors.NotFound("FOLDER_NOT_FOUND", "folder not found").
		WithContext("path", path.String())
}

// Update applies an optimistically locked write: the stored version must be
// exactly one behind the incoming record.
func (r *FolderRepository) Update(ctx context.Context, record *folder.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.items[record.ID]
	if !ok {
		return apperrors.NotFound("FOLDER_NOT_FOUND", "folder not found").
			WithContext("folderId", record.ID)
	}
	if existing.Version != record.Version-1 {
		return apperrors.Concurrency("FOLDER_VERSION_CONFLICT", "folder was modified concurrently").
			WithContext("folderId", record.ID).
			WithContext("storedVersion", existing.Version).
			WithContext("incomingVersion", record.Version)
	}
	copied := *record
	r.items[record.ID] = &copied
	return nil
}

func (r *FolderRepository) Rename(ctx context.Context, id string, newPath folder.Path) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.items[id]
	if !ok {
		return apperrors.NotFound("FOLDER_NOT_FOUND", "folder not found").
			WithContext("folderId", id)
	}
	for otherID, other := range r.items {
		if otherID != id && other.Path.Equals(newPath) {
			return apperrors.Validation("FOLDER_EXISTS", "a folder already exists at this path").
				WithContext("path", newPath.String())
		}
	}
	r.items[id] = rec.WithPath(newPath)
	return nil
}

func (r *FolderRepository) ListChildren(ctx context.Context, path folder.Path) ([]*folder.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*folder.Record
	for _, rec := range r.items {
		if parent, ok := rec.Path.Parent(); ok && parent.Equals(path) {
			copied := *rec
			out = append(out, &copied)
		}
	}
	sortRecords(out)
	return out, nil
}

func (r *FolderRepository) List(ctx context.Context) ([]*folder.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*folder.Record, 0, len(r.items))
	for _, rec := range r.items {
		copied := *rec
		out = append(out, &copied)
	}
	sortRecords(out)
	return out, nil
}

func (r *FolderRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items), nil
}

func sortRecords(records []*folder.Record) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Path.Compare(records[j].Path) < 0
	})
}

// AuditRepository is the in-memory append-only decision log.
type AuditRepository struct {
	mu        sync.RWMutex
	decisions []*decision.Decision
	logger    *zap.Logger
}

// NewAuditRepository creates an empty audit log.
func NewAuditRepository(logger *zap.Logger) *AuditRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditRepository{logger: logger.Named("audit")}
}

// Append records a decision. Never fails the caller.
func (r *AuditRepository) Append(ctx context.Context, d *decision.Decision) {
	if d == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *d
	r.decisions = append(r.decisions, &copied)
}

// Recent returns up to limit decisions, newest first.
func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]*decision.Decision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.decisions)
	if limit > n {
		limit = n
	}
	out := make([]*decision.Decision, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		copied := *r.decisions[i]
		out = append(out, &copied)
	}
	return out, nil
}

// All returns the full log in append order, for tests.
func (r *AuditRepository) All() []*decision.Decision {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*decision.Decision, len(r.decisions))
	for i, d := range r.decisions {
		copied := *d
		out[i] = &copied
	}
	return out
}

// ReviewQueue is the in-memory human-review queue.
type ReviewQueue struct {
	mu    sync.RWMutex
	items []repository.ReviewItem
}

// NewReviewQueue creates an empty review queue.
func NewReviewQueue() *ReviewQueue {
	return &ReviewQueue{}
}

func (q *ReviewQueue) AddForReview(ctx context.Context, candidateID string, reason repository.ReviewReason, suggested []decision.Alternative) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, repository.ReviewItem{
		CandidateID:      candidateID,
		Reason:           reason,
		SuggestedActions: append([]decision.Alternative(nil), suggested...),
		EnqueuedAt:       time.Now().UTC(),
	})
	return nil
}

// Items returns a snapshot of the queue, for tests.
func (q *ReviewQueue) Items() []repository.ReviewItem {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]repository.ReviewItem(nil), q.items...)
}
