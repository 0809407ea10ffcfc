package httpapi

import (
	"time"

	"curator-backend/internal/domain/concept"
	"curator-backend/internal/domain/decision"
	"curator-backend/internal/domain/folder"
	"curator-backend/internal/service/discovery"
)

// candidateRequest is the submission payload for one piece of distilled
// content.
type candidateRequest struct {
	Title   string `json:"title" validate:"required,min=1,max=500"`
	Content string `json:"content" validate:"required,min=1"`
}

// batchRequest wraps multiple candidate submissions.
type batchRequest struct {
	Candidates []candidateRequest `json:"candidates" validate:"required,min=1,max=100,dive"`
}

type decisionResponse struct {
	ID          string             `json:"id"`
	CandidateID string             `json:"candidateId"`
	Action      string             `json:"action"`
	Confidence  float64            `json:"confidence"`
	FolderID    string             `json:"folderId,omitempty"`
	DuplicateOf string             `json:"duplicateOf,omitempty"`
	CreateSpec  *createSpecView    `json:"createSpec,omitempty"`
	ReorgPlan   *reorgPlanView     `json:"reorganizationPlan,omitempty"`
	Rationale   decision.Rationale `json:"rationale"`
	CreatedAt   time.Time          `json:"createdAt"`
}

type createSpecView struct {
	Path      string   `json:"path"`
	MemberIDs []string `json:"memberIds"`
	Coherence float64  `json:"coherence"`
}

type reorgPlanView struct {
	FolderID         string           `json:"folderId"`
	FolderPath       string           `json:"folderPath"`
	Subfolders       []createSpecView `json:"subfolders"`
	ImprovementScore float64          `json:"improvementScore"`
	WindowSize       int              `json:"windowSize"`
}

func toDecisionResponse(d *decision.Decision) decisionResponse {
	out := decisionResponse{
		ID:          d.ID,
		CandidateID: d.CandidateID,
		Action:      string(d.Action),
		Confidence:  d.Confidence,
		FolderID:    d.FolderID,
		DuplicateOf: d.DuplicateOf,
		Rationale:   d.Rationale,
		CreatedAt:   d.CreatedAt,
	}
	if d.CreateSpec != nil {
		spec := toCreateSpecView(*d.CreateSpec)
		out.CreateSpec = &spec
	}
	if d.ReorgPlan != nil {
		subs := make([]createSpecView, len(d.ReorgPlan.Subfolders))
		for i, s := range d.ReorgPlan.Subfolders {
			subs[i] = toCreateSpecView(s)
		}
		out.ReorgPlan = &reorgPlanView{
			FolderID:         d.ReorgPlan.FolderID,
			FolderPath:       d.ReorgPlan.FolderPath.String(),
			Subfolders:       subs,
			ImprovementScore: d.ReorgPlan.ImprovementScore,
			WindowSize:       d.ReorgPlan.WindowSize,
		}
	}
	return out
}

func toCreateSpecView(s decision.CreateFolderSpec) createSpecView {
	return createSpecView{
		Path:      s.Path.String(),
		MemberIDs: s.MemberIDs,
		Coherence: s.Coherence,
	}
}

type batchResponse struct {
	Results []batchItemResponse `json:"results"`
}

type batchItemResponse struct {
	CandidateID string            `json:"candidateId"`
	Decision    *decisionResponse `json:"decision,omitempty"`
	Error       string            `json:"error,omitempty"`
}

type folderResponse struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	MemberCount int       `json:"memberCount"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toFolderResponse(r *folder.Record) folderResponse {
	return folderResponse{
		ID:          r.ID,
		Path:        r.Path.String(),
		MemberCount: r.MemberCount,
		UpdatedAt:   r.UpdatedAt,
	}
}

type folderListResponse struct {
	Folders []folderResponse `json:"folders"`
}

type folderDetailResponse struct {
	folderResponse
	MeanConfidence float64 `json:"meanConfidence"`
}

type artifactResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Status      string    `json:"status"`
	FolderID    string    `json:"folderId,omitempty"`
	DecisionID  string    `json:"decisionId,omitempty"`
	DuplicateOf string    `json:"duplicateOf,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toArtifactResponse(a *concept.Artifact) artifactResponse {
	return artifactResponse{
		ID:          a.ID,
		Title:       a.Title,
		Content:     a.Content,
		Status:      string(a.Status),
		FolderID:    a.FolderID,
		DecisionID:  a.DecisionID,
		DuplicateOf: a.DuplicateOf,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

type relatedResponse struct {
	Related []discovery.RelatedConcept `json:"related"`
}

type auditResponse struct {
	Decisions []decisionResponse `json:"decisions"`
}

type reorganizationResponse struct {
	Proposals []decisionResponse `json:"proposals"`
}

type healthResponse struct {
	Status string `json:"status"`
}
