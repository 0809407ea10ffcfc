// Package vectorindex defines the vector index provider contract and the
// canonical placement record every implementation must normalize into.
// Legacy single-folder payloads are translated at this boundary; nothing
// above it ever branches on record vintage.
package vectorindex

import (
	"context"
)

// Kind separates the two vector classes the system stores per concept.
type Kind string

const (
	// KindIdentity is the title/identity vector used for duplicate checks.
	KindIdentity Kind = "identity"
	// KindContext is the content vector used for folder matching.
	KindContext Kind = "context"
)

// Payload carries the stable wire naming contract of the index provider.
// Older records populate only FolderID; newer records use PrimaryFolder plus
// ReferenceFolders. Normalize collapses both shapes.
type Payload struct {
	ConceptID            string             `json:"concept_id"`
	FolderID             string             `json:"folder_id,omitempty"` // legacy single-folder field
	PrimaryFolder        string             `json:"primary_folder,omitempty"`
	ReferenceFolders     []string           `json:"reference_folders,omitempty"`
	PlacementConfidences map[string]float64 `json:"placement_confidences,omitempty"`
}

// Placement is the canonical in-memory placement record. The routing core
// only ever sees this shape.
type Placement struct {
	ConceptID        string
	PrimaryFolder    string
	ReferenceFolders []string
	Confidences      map[string]float64
}

// Normalize converts a wire payload into the canonical placement. A record
// with only the legacy folder_id set is treated as primary_folder=folder_id
// with no references.
func (p Payload) Normalize() Placement {
	primary := p.PrimaryFolder
	refs := p.ReferenceFolders
	if primary == "" && p.FolderID != "" {
		primary = p.FolderID
		refs = nil
	}
	out := Placement{
		ConceptID:     p.ConceptID,
		PrimaryFolder: primary,
	}
	if len(refs) > 0 {
		out.ReferenceFolders = append([]string(nil), refs...)
	}
	if len(p.PlacementConfidences) > 0 {
		out.Confidences = make(map[string]float64, len(p.PlacementConfidences))
		for k, v := range p.PlacementConfidences {
			out.Confidences[k] = v
		}
	}
	return out
}

// ToPayload renders the canonical placement back into the wire contract.
// The legacy folder_id field is kept in sync with primary_folder for
// consumers that still read it.
func (p Placement) ToPayload() Payload {
	return Payload{
		ConceptID:            p.ConceptID,
		FolderID:             p.PrimaryFolder,
		PrimaryFolder:        p.PrimaryFolder,
		ReferenceFolders:     append([]string(nil), p.ReferenceFolders...),
		PlacementConfidences: p.Confidences,
	}
}

// Folders returns every folder the placement touches, primary first.
func (p Placement) Folders() []string {
	out := make([]string, 0, 1+len(p.ReferenceFolders))
	if p.PrimaryFolder != "" {
		out = append(out, p.PrimaryFolder)
	}
	out = append(out, p.ReferenceFolders...)
	return out
}

// Match is one search hit. Vector carries the stored embedding so callers
// can run clustering over search results without a second round trip.
type Match struct {
	ConceptID string
	Score     float64
	Vector    []float64
	Placement Placement
}

// Filter narrows a search.
type Filter struct {
	// Kind restricts the vector class; empty means KindContext.
	Kind Kind
	// ExcludeConcepts removes specific concept ids from the results,
	// typically the candidate itself.
	ExcludeConcepts []string
	// FolderID restricts hits to concepts placed in the given folder.
	FolderID string
	// UnsortedOnly restricts hits to concepts with no primary folder or an
	// explicit unsorted placement.
	UnsortedOnly bool
}

// Record is a stored vector with its placement, returned by scroll.
type Record struct {
	ConceptID string
	Kind      Kind
	Vector    []float64
	Placement Placement
}

// Index is the vector index provider consumed by the routing core. Upsert is
// full-replacement: re-upserting a concept id erases every prior folder
// association of that concept for the given kind.
type Index interface {
	Upsert(ctx context.Context, conceptID string, kind Kind, vector []float64, payload Payload) error
	Fetch(ctx context.Context, conceptID string, kind Kind) (*Record, error)
	Search(ctx context.Context, vector []float64, threshold float64, limit int, filter *Filter) ([]Match, error)
	ScrollByFolder(ctx context.Context, folderID string) ([]Record, error)
	Delete(ctx context.Context, conceptID string) error
}
