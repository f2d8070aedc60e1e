package daemon

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"loopdeck/internal/api"
	"loopdeck/internal/catalog"
	"loopdeck/internal/rights"
	"loopdeck/internal/workflow"
)

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:       status.Running,
		PID:           status.PID,
		QueueDBPath:   status.QueueDBPath,
		CatalogDBPath: status.CatalogDBPath,
		LockFilePath:  status.LockFilePath,
		Storage:       status.Storage,
		Workflow:      api.FromStatusSummary(status.Workflow),
		Dependencies:  api.FromDependencies(status.Dependencies),
	})
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, message+": "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.NotificationResponse{Sent: sent, Message: message})
}

func (s *apiServer) handleQueueHealth(w http.ResponseWriter, r *http.Request) {
	summary, err := s.daemon.QueueHealth(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	db, err := s.daemon.DatabaseHealth(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromQueueHealth(summary, db))
}

func (s *apiServer) handleTracks(w http.ResponseWriter, r *http.Request) {
	items, err := s.queueSvc.List(r.Context(), r.URL.Query()["status"])
	var filterErr *api.StatusFilterError
	if errors.As(err, &filterErr) {
		s.writeError(w, http.StatusBadRequest, filterErr.Error())
		return
	}
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TrackListResponse{Items: items})
}

func (s *apiServer) handleTrack(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	item, err := s.queueSvc.Describe(r.Context(), sourceID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if item == nil {
		s.writeError(w, http.StatusNotFound, "track not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.TrackResponse{Item: *item})
}

// requireTrack writes a 404 and returns false when sourceID is not queued.
func (s *apiServer) requireTrack(w http.ResponseWriter, r *http.Request, sourceID string) bool {
	item, err := s.queueSvc.Describe(r.Context(), sourceID)
	if err != nil {
		s.writeFailure(w, r, err)
		return false
	}
	if item == nil {
		s.writeError(w, http.StatusNotFound, "track not found")
		return false
	}
	return true
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	result, err := s.daemon.Workflow().Submit(r.Context(), sourceID, chi.URLParam(r, "stage"))
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			// The stage ran but did not complete: rejected, deferred, failed or held.
			status = http.StatusConflict
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromStageResult(result))
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req api.RetryRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	n, err := s.daemon.Workflow().RetryFailed(r.Context(), req.SourceIDs...)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: n})
}

func (s *apiServer) handleReingest(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	found, err := s.daemon.Workflow().Reingest(r.Context(), sourceID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "track not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.ActionResponse{SourceID: sourceID, Applied: true})
}

func (s *apiServer) handleReject(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	var req api.RejectRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		s.writeError(w, http.StatusBadRequest, "reason is required")
		return
	}
	if !s.requireTrack(w, r, sourceID) {
		return
	}
	if err := s.daemon.Workflow().Reject(r.Context(), sourceID, req.Reason, req.Detail); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ActionResponse{SourceID: sourceID, Applied: true})
}

func (s *apiServer) handleReviewList(w http.ResponseWriter, r *http.Request) {
	items, err := s.queueSvc.Review(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TrackListResponse{Items: items})
}

func (s *apiServer) handleReviewApprove(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	if err := s.daemon.Workflow().ApproveReview(r.Context(), sourceID); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ActionResponse{SourceID: sourceID, Applied: true})
}

func (s *apiServer) handleReviewReject(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	if err := s.daemon.Workflow().RejectReview(r.Context(), sourceID); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ActionResponse{SourceID: sourceID, Applied: true})
}

func (s *apiServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req api.IngestRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if req.Limit < 0 {
		s.writeError(w, http.StatusBadRequest, "limit must be non-negative")
		return
	}
	report, err := s.daemon.Workflow().Ingest(r.Context(), workflow.IngestOptions{
		PlaylistID: req.PlaylistID,
		Limit:      req.Limit,
	})
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.IngestResponse{
		PlaylistID: report.PlaylistID,
		Seen:       report.Seen,
		Created:    report.Created,
		Existing:   report.Existing,
	})
}

func (s *apiServer) handleRightsList(w http.ResponseWriter, r *http.Request) {
	var states []rights.State
	for _, value := range r.URL.Query()["state"] {
		state, err := rights.ParseState(value)
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		states = append(states, state)
	}
	records, err := s.catalogSvc.ListRights(r.Context(), states...)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *apiServer) handleRights(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	withHistory := parseBool(r.URL.Query().Get("history"))
	resp, err := s.catalogSvc.Rights(r.Context(), sourceID, withHistory)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if resp == nil {
		s.writeError(w, http.StatusNotFound, "rights record not found")
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleSetRights(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	var req api.LicenseStateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	state, err := rights.ParseState(req.State)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	var opts []catalog.SetOption
	if req.Reason != "" {
		opts = append(opts, catalog.WithReason(req.Reason))
	}
	rec, err := s.daemon.Workflow().SetLicenseState(r.Context(), sourceID, state, req.EvidenceURI, opts...)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.RightsResponse{Record: api.FromRights(rec)})
}

func (s *apiServer) handleCatalog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.catalogSvc.Entries(r.Context(), parseBool(r.URL.Query().Get("live")))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CatalogListResponse{Entries: entries})
}

func (s *apiServer) handleCatalogEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.catalogSvc.Entry(r.Context(), chi.URLParam(r, "sourceID"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if entry == nil {
		s.writeError(w, http.StatusNotFound, "catalog entry not found")
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *apiServer) handleUnpublish(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	var req api.UnpublishRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	retracted, err := s.daemon.Workflow().Unpublish(r.Context(), sourceID, req.Reason)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ActionResponse{SourceID: sourceID, Applied: retracted})
}

func (s *apiServer) handleReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := s.daemon.Workflow().Reconcile(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromReconcile(report))
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
