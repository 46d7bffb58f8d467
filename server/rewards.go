package server

import (
	"encoding/json"
	"net/http"

	"mintgate/rewards"
)

// TrackLearnAction records a learner action for the learn-to-earn ledger.
// Replays of the same action return success without a second award.
func (s *Server) TrackLearnAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Wallet       string `json:"wallet"`
		SubmissionID uint   `json:"submission_id"`
		ActionType   string `json:"action_type"`
		ActionRef    string `json:"action_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	result, err := s.Rewards.Track(r.Context(), rewards.TrackParams{
		Wallet:       req.Wallet,
		SubmissionID: req.SubmissionID,
		ActionType:   req.ActionType,
		ActionRef:    req.ActionRef,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":               true,
		"already_recorded": result.AlreadyRecorded,
		"tokens_earned":    result.TokensEarned,
	})
}
