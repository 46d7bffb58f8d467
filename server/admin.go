package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"mintgate/lifecycle"
)

// ListSubmissions returns every submission, newest first.
func (s *Server) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.Lifecycle.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, subs)
}

// ApproveSubmission marks a submission approved and clears any prior
// rejection reason.
func (s *Server) ApproveSubmission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID uint `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == 0 {
		http.Error(w, "submission id is required", http.StatusBadRequest)
		return
	}
	sub, err := s.Lifecycle.Moderate(r.Context(), req.ID, lifecycle.DecisionApprove, "")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "moderation_status": sub.Moderation})
}

// RejectSubmission marks a submission rejected and stores the reason. The
// record is retained.
func (s *Server) RejectSubmission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     uint   `json:"id"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == 0 {
		http.Error(w, "submission id is required", http.StatusBadRequest)
		return
	}
	sub, err := s.Lifecycle.Moderate(r.Context(), req.ID, lifecycle.DecisionReject, req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "moderation_status": sub.Moderation})
}

// LearnActivity returns the most recent reward ledger entries.
func (s *Server) LearnActivity(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	entries, err := s.Rewards.Activity(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// PayoutLearnRewards settles outstanding reward entries in one batch and
// reports per-entry outcomes.
func (s *Server) PayoutLearnRewards(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Limit int `json:"limit"`
	}
	// An empty body selects the configured batch limit.
	_ = json.NewDecoder(r.Body).Decode(&req)

	result, err := s.Rewards.Payout(r.Context(), req.Limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}
