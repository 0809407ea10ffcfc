package folder

import (
	"time"

	"github.com/google/uuid"

	apperrors "curator-backend/internal/errors"
)

// MaxExemplars bounds the number of exemplar vectors kept per folder.
const MaxExemplars = 5

// Record is the folder aggregate: identity, path, and the vector summary of
// its members used by matching and reorganization. It is owned and mutated
// only by the routing/clustering subsystem; concurrent placements into the
// same folder must be serialized by the caller (see the folderlock package).
type Record struct {
	ID          string
	Path        Path
	Centroid    []float64
	Exemplars   [][]float64
	MemberCount int
	UpdatedAt   time.Time
	Version     int
}

// NewRecord creates a folder record for a path that is being populated for
// the first time.
func NewRecord(path Path) *Record {
	return &Record{
		ID:        uuid.New().String(),
		Path:      path,
		UpdatedAt: time.Now().UTC(),
	}
}

// ApplyPlacement folds a new member's vector into the aggregate: incremental
// centroid update, exemplar rotation, member count, version bump. Returns a
// new Record; the receiver is not modified.
func (r *Record) ApplyPlacement(vector []float64) (*Record, error) {
	if len(vector) == 0 {
		return nil, apperrors.Validation("EMPTY_VECTOR", "cannot place an empty vector")
	}
	if r.MemberCount > 0 && len(vector) != len(r.Centroid) {
		return nil, apperrors.Validation("DIMENSION_MISMATCH", "vector dimension does not match folder centroid").
			WithContext("folderId", r.ID).
			WithContext("expected", len(r.Centroid)).
			WithContext("actual", len(vector))
	}

	next := r.clone()
	if next.MemberCount == 0 {
		next.Centroid = append([]float64(nil), vector...)
	} else {
		n := float64(next.MemberCount)
		for i := range next.Centroid {
			next.Centroid[i] = (next.Centroid[i]*n + vector[i]) / (n + 1)
		}
	}

	exemplar := append([]float64(nil), vector...)
	next.Exemplars = append(next.Exemplars, exemplar)
	if len(next.Exemplars) > MaxExemplars {
		next.Exemplars = next.Exemplars[len(next.Exemplars)-MaxExemplars:]
	}

	next.MemberCount++
	next.UpdatedAt = time.Now().UTC()
	next.Version++
	return next, nil
}

// Recompute rebuilds the aggregate from the full member vector set, used
// after removals or reorganization when incremental updates no longer hold.
func (r *Record) Recompute(vectors [][]float64) (*Record, error) {
	next := r.clone()
	next.MemberCount = len(vectors)
	next.UpdatedAt = time.Now().UTC()
	next.Version++

	if len(vectors) == 0 {
		next.Centroid = nil
		next.Exemplars = nil
		return next, nil
	}

	dim := len(vectors[0])
	centroid := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, apperrors.Validation("DIMENSION_MISMATCH", "member vectors disagree on dimension").
				WithContext("folderId", r.ID)
		}
		for i, x := range v {
			centroid[i] += x
		}
	}
	for i := range centroid {
		centroid[i] /= float64(len(vectors))
	}
	next.Centroid = centroid

	keep := len(vectors)
	if keep > MaxExemplars {
		keep = MaxExemplars
	}
	next.Exemplars = make([][]float64, 0, keep)
	for _, v := range vectors[len(vectors)-keep:] {
		next.Exemplars = append(next.Exemplars, append([]float64(nil), v...))
	}
	return next, nil
}

// WithPath returns a copy of the record placed at a new path (rename or
// reorganization move).
func (r *Record) WithPath(path Path) *Record {
	next := r.clone()
	next.Path = path
	next.UpdatedAt = time.Now().UTC()
	next.Version++
	return next
}

func (r *Record) clone() *Record {
	centroid := append([]float64(nil), r.Centroid...)
	exemplars := make([][]float64, len(r.Exemplars))
	for i, e := range r.Exemplars {
		exemplars[i] = append([]float64(nil), e...)
	}
	return &Record{
		ID:          r.ID,
		Path:        r.Path,
		Centroid:    centroid,
		Exemplars:   exemplars,
		MemberCount: r.MemberCount,
		UpdatedAt:   r.UpdatedAt,
		Version:     r.Version,
	}
}
