// Package decision contains the RoutingDecision model: the immutable,
// auditable outcome of routing one candidate.
package decision

import (
	"time"

	"github.com/google/uuid"

	"curator-backend/internal/domain/folder"
	apperrors "curator-backend/internal/errors"
)

// Action is the discriminant of the routing decision variant.
type Action string

const (
	// ActionRoute attaches the candidate to an existing folder.
	ActionRoute Action = "route"
	// ActionCreateFolder proposes a new folder and places the candidate there.
	ActionCreateFolder Action = "create_folder"
	// ActionDuplicate marks the candidate as a near-identical copy of an
	// existing artifact.
	ActionDuplicate Action = "duplicate"
	// ActionUnsorted parks the candidate in the Unsorted fallback.
	ActionUnsorted Action = "unsorted"
	// ActionReorganize proposes a structural reorganization. Advisory only.
	ActionReorganize Action = "reorganize"
)

// Signal is one scored input the engine considered.
type Signal struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Alternative is a folder candidate that was considered but not chosen.
type Alternative struct {
	FolderID string  `json:"folderId"`
	Path     string  `json:"path"`
	Score    float64 `json:"score"`
}

// Rationale captures why the engine decided what it decided. It is persisted
// with the decision so every placement is auditable after the fact.
type Rationale struct {
	Summary      string        `json:"summary"`
	Signals      []Signal      `json:"signals,omitempty"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
	// InfraError annotates degraded decisions caused by infrastructure
	// failures rather than by similarity evidence.
	InfraError string `json:"infraError,omitempty"`
}

// CreateFolderSpec describes the folder a create_folder decision would add.
type CreateFolderSpec struct {
	Path      folder.Path `json:"path"`
	MemberIDs []string    `json:"memberIds"`
	Coherence float64     `json:"coherence"`
}

// ReorganizationPlan is an advisory proposal to restructure one folder into
// subfolders. It never mutates anything by itself; a human approves it.
type ReorganizationPlan struct {
	FolderID         string             `json:"folderId"`
	FolderPath       folder.Path        `json:"folderPath"`
	Subfolders       []CreateFolderSpec `json:"subfolders"`
	ImprovementScore float64            `json:"improvementScore"`
	WindowSize       int                `json:"windowSize"`
}

// Decision is the immutable routing decision for one candidate. Corrections
// are new decisions that supersede older ones, never in-place edits.
type Decision struct {
	ID          string
	CandidateID string
	Action      Action
	Confidence  float64
	Rationale   Rationale
	CreatedAt   time.Time

	// Supersedes references the decision this one corrects, if any.
	Supersedes string

	// Variant payloads; exactly the one matching Action is set.
	FolderID    string
	CreateSpec  *CreateFolderSpec
	DuplicateOf string
	ReorgPlan   *ReorganizationPlan
}

// Route creates a route decision targeting an existing folder.
func Route(candidateID, folderID string, confidence float64, rationale Rationale) *Decision {
	return newDecision(candidateID, ActionRoute, confidence, rationale, func(d *Decision) {
		d.FolderID = folderID
	})
}

// CreateFolder creates a decision proposing a new folder.
func CreateFolder(candidateID string, spec CreateFolderSpec, confidence float64, rationale Rationale) *Decision {
	return newDecision(candidateID, ActionCreateFolder, confidence, rationale, func(d *Decision) {
		d.CreateSpec = &spec
	})
}

// Duplicate creates a duplicate decision referencing the existing artifact.
func Duplicate(candidateID, existingID string, confidence float64, rationale Rationale) *Decision {
	return newDecision(candidateID, ActionDuplicate, confidence, rationale, func(d *Decision) {
		d.DuplicateOf = existingID
	})
}

// Unsorted creates a fallback decision.
func Unsorted(candidateID string, confidence float64, rationale Rationale) *Decision {
	return newDecision(candidateID, ActionUnsorted, confidence, rationale, nil)
}

// Reorganize creates an advisory reorganization decision.
func Reorganize(plan ReorganizationPlan, confidence float64, rationale Rationale) *Decision {
	return newDecision("", ActionReorganize, confidence, rationale, func(d *Decision) {
		d.ReorgPlan = &plan
	})
}

func newDecision(candidateID string, action Action, confidence float64, rationale Rationale, fill func(*Decision)) *Decision {
	d := &Decision{
		ID:          uuid.New().String(),
		CandidateID: candidateID,
		Action:      action,
		Confidence:  clamp01(confidence),
		Rationale:   rationale,
		CreatedAt:   time.Now().UTC(),
	}
	if fill != nil {
		fill(d)
	}
	return d
}

// Superseded returns a copy of next linked to the decision it corrects.
func (d *Decision) Superseded(next *Decision) *Decision {
	out := *next
	out.Supersedes = d.ID
	return &out
}

// Validate checks the variant payload matches the action.
func (d *Decision) Validate() error {
	switch d.Action {
	case ActionRoute:
		if d.FolderID == "" {
			return apperrors.Validation("DECISION_PAYLOAD", "route decision requires a folder id")
		}
	case ActionCreateFolder:
		if d.CreateSpec == nil {
			return apperrors.Validation("DECISION_PAYLOAD", "create_folder decision requires a spec")
		}
	case ActionDuplicate:
		if d.DuplicateOf == "" {
			return apperrors.Validation("DECISION_PAYLOAD", "duplicate decision requires the existing artifact id")
		}
	case ActionReorganize:
		if d.ReorgPlan == nil {
			return apperrors.Validation("DECISION_PAYLOAD", "reorganize decision requires a plan")
		}
	case ActionUnsorted:
		// No payload.
	default:
		return apperrors.Validation("DECISION_ACTION", "unknown decision action").
			WithContext("action", string(d.Action))
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return apperrors.Validation("DECISION_CONFIDENCE", "confidence must be in [0,1]")
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
