// Package httpapi exposes the routing engine over HTTP.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"curator-backend/internal/domain/concept"
	apperrors "curator-backend/internal/errors"
	"curator-backend/internal/infrastructure/embedding"
	"curator-backend/internal/repository"
	"curator-backend/internal/service/discovery"
	"curator-backend/internal/service/matching"
	"curator-backend/internal/service/routing"
)

const defaultAuditLimit = 50

var validate = validator.New()

// Handler carries the services the HTTP layer fronts.
type Handler struct {
	engine    *routing.Engine
	discovery *discovery.Service
	matcher   *matching.Service
	folders   repository.FolderRepository
	artifacts repository.ArtifactRepository
	audit     repository.AuditRepository
	embedder  embedding.Provider
	logger    *zap.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(
	engine *routing.Engine,
	disc *discovery.Service,
	matcher *matching.Service,
	folders repository.FolderRepository,
	artifacts repository.ArtifactRepository,
	audit repository.AuditRepository,
	embedder embedding.Provider,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		engine:    engine,
		discovery: disc,
		matcher:   matcher,
		folders:   folders,
		artifacts: artifacts,
		audit:     audit,
		embedder:  embedder,
		logger:    logger.Named("http"),
	}
}

// RouteCandidate handles POST /api/v1/candidates.
func (h *Handler) RouteCandidate(w http.ResponseWriter, r *http.Request) {
	var req candidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperrors.Validation("BAD_JSON", "request body is not valid JSON"))
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, apperrors.Validation("BAD_REQUEST", err.Error()))
		return
	}

	candidate, err := h.buildCandidate(r, req)
	if err != nil {
		respondError(w, err)
		return
	}

	d, err := h.engine.RouteCandidate(r.Context(), candidate)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toDecisionResponse(d))
}

// RouteBatch handles POST /api/v1/candidates/batch.
func (h *Handler) RouteBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperrors.Validation("BAD_JSON", "request body is not valid JSON"))
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, apperrors.Validation("BAD_REQUEST", err.Error()))
		return
	}

	candidates := make([]*concept.Candidate, 0, len(req.Candidates))
	for _, item := range req.Candidates {
		candidate, err := h.buildCandidate(r, item)
		if err != nil {
			respondError(w, err)
			return
		}
		candidates = append(candidates, candidate)
	}

	results := h.engine.RouteBatch(r.Context(), candidates)
	out := batchResponse{Results: make([]batchItemResponse, len(results))}
	for i, res := range results {
		item := batchItemResponse{CandidateID: res.CandidateID}
		if res.Err != nil {
			item.Error = res.Err.Error()
		} else if res.Decision != nil {
			dr := toDecisionResponse(res.Decision)
			item.Decision = &dr
		}
		out.Results[i] = item
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) buildCandidate(r *http.Request, req candidateRequest) (*concept.Candidate, error) {
	titleVec, err := h.embedder.Embed(r.Context(), req.Title)
	if err != nil {
		return nil, err
	}
	contextVec, err := h.embedder.Embed(r.Context(), req.Content)
	if err != nil {
		return nil, err
	}
	return concept.NewCandidate(req.Title, req.Content, titleVec, contextVec)
}

// GetArtifact handles GET /api/v1/artifacts/{artifactID}.
func (h *Handler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.artifacts.FindByID(r.Context(), chi.URLParam(r, "artifactID"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toArtifactResponse(artifact))
}

// ListFolders handles GET /api/v1/folders.
func (h *Handler) ListFolders(w http.ResponseWriter, r *http.Request) {
	records, err := h.folders.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	out := folderListResponse{Folders: make([]folderResponse, len(records))}
	for i, rec := range records {
		out.Folders[i] = toFolderResponse(rec)
	}
	respondJSON(w, http.StatusOK, out)
}

// GetFolder handles GET /api/v1/folders/{folderID}.
func (h *Handler) GetFolder(w http.ResponseWriter, r *http.Request) {
	folderID := chi.URLParam(r, "folderID")
	record, err := h.folders.FindByID(r.Context(), folderID)
	if err != nil {
		respondError(w, err)
		return
	}
	stats, err := h.matcher.Stats(r.Context(), folderID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, folderDetailResponse{
		folderResponse: toFolderResponse(record),
		MeanConfidence: stats.MeanConfidence,
	})
}

// GetRelated handles GET /api/v1/concepts/{conceptID}/related.
func (h *Handler) GetRelated(w http.ResponseWriter, r *http.Request) {
	related, err := h.discovery.Related(r.Context(), chi.URLParam(r, "conceptID"))
	if err != nil {
		respondError(w, err)
		return
	}
	if related == nil {
		related = []discovery.RelatedConcept{}
	}
	respondJSON(w, http.StatusOK, relatedResponse{Related: related})
}

// AnalyzeReorganization handles POST /api/v1/reorganization/analyze.
func (h *Handler) AnalyzeReorganization(w http.ResponseWriter, r *http.Request) {
	proposals, err := h.engine.AnalyzeReorganization(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	out := reorganizationResponse{Proposals: make([]decisionResponse, len(proposals))}
	for i, p := range proposals {
		out.Proposals[i] = toDecisionResponse(p)
	}
	respondJSON(w, http.StatusOK, out)
}

// RecentDecisions handles GET /api/v1/audit.
func (h *Handler) RecentDecisions(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, apperrors.Validation("BAD_LIMIT", "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	decisions, err := h.audit.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	out := auditResponse{Decisions: make([]decisionResponse, len(decisions))}
	for i, d := range decisions {
		out.Decisions[i] = toDecisionResponse(d)
	}
	respondJSON(w, http.StatusOK, out)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// Ready handles GET /ready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, err := h.folders.Count(r.Context()); err != nil {
		respondError(w, apperrors.Infrastructure("NOT_READY", "folder store unreachable").WithCause(err))
		return
	}
	respondJSON(w, http.StatusOK, healthResponse{Status: "ready"})
}
