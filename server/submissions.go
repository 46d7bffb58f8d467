package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mintgate/lifecycle"
)

const maxUploadBytes = 32 << 20

// UploadContent proxies a media file to the pinning gateway and returns the
// content identifier.
func (s *Server) UploadContent(w http.ResponseWriter, r *http.Request) {
	if s.Pinner == nil {
		http.Error(w, "pinning gateway not configured", http.StatusBadGateway)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart payload", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	cid, err := s.Pinner.Upload(r.Context(), file, header.Filename)
	if err != nil {
		s.Log.Error("pin upload failed", "filename", header.Filename, "error", err)
		http.Error(w, "upload failed", http.StatusBadGateway)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"cid": cid})
}

// CreateSubmission registers a new creator submission.
func (s *Server) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Wallet      string `json:"wallet"`
		Name        string `json:"name"`
		Description string `json:"description"`
		ImageCID    string `json:"image_cid"`
		MetadataCID string `json:"metadata_cid"`
		Quantity    int    `json:"quantity"`
		Terms       string `json:"terms"`
		PriceXRP    string `json:"price_xrp"`
		PriceRLUSD  string `json:"price_rlusd"`
		Email       string `json:"email"`
		Website     string `json:"website"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	sub, err := s.Lifecycle.Create(r.Context(), lifecycle.CreateParams{
		Wallet:      req.Wallet,
		Name:        req.Name,
		Description: req.Description,
		ImageCID:    req.ImageCID,
		MetadataCID: req.MetadataCID,
		Quantity:    req.Quantity,
		Terms:       req.Terms,
		PriceXRP:    req.PriceXRP,
		PriceRLUSD:  req.PriceRLUSD,
		Email:       req.Email,
		Website:     req.Website,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"submitted": true, "id": sub.ID})
}

// GetSubmission returns the submission's public fields.
func (s *Server) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sub, err := s.Lifecycle.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sub)
}

// RequestPayment opens a signing session for the mint fee.
func (s *Server) RequestPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID uint `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == 0 {
		http.Error(w, "submission id is required", http.StatusBadRequest)
		return
	}
	session, err := s.Lifecycle.RequestPayment(r.Context(), req.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"session_id": session.SessionID,
		"link":       session.SigningLink,
	})
}

// ConfirmPayment applies a payment confirmation callback.
func (s *Server) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID        uint   `json:"id"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == 0 || req.SessionID == "" {
		http.Error(w, "id and session_id are required", http.StatusBadRequest)
		return
	}
	result, err := s.Lifecycle.ConfirmPayment(r.Context(), req.ID, req.SessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// RequestMint opens a signing session for the mint transaction.
func (s *Server) RequestMint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID uint `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == 0 {
		http.Error(w, "submission id is required", http.StatusBadRequest)
		return
	}
	session, err := s.Lifecycle.RequestMint(r.Context(), req.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"session_id": session.SessionID,
		"link":       session.SigningLink,
	})
}

// ConfirmMint applies a mint confirmation callback.
func (s *Server) ConfirmMint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID        uint   `json:"id"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == 0 || req.SessionID == "" {
		http.Error(w, "id and session_id are required", http.StatusBadRequest)
		return
	}
	result, err := s.Lifecycle.ConfirmMint(r.Context(), req.ID, req.SessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// ToggleDelist sets or clears the delisted flag on a submission.
func (s *Server) ToggleDelist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubmissionID uint `json:"submission_id"`
		Delist       bool `json:"delist"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SubmissionID == 0 {
		http.Error(w, "submission_id is required", http.StatusBadRequest)
		return
	}
	if err := s.Lifecycle.ToggleDelist(r.Context(), req.SubmissionID, req.Delist); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// WalletTokens lists ledger tokens held by an account, for the polling-based
// client flows.
func (s *Server) WalletTokens(w http.ResponseWriter, r *http.Request) {
	if s.Ledger == nil {
		http.Error(w, "ledger client not configured", http.StatusBadGateway)
		return
	}
	account := chi.URLParam(r, "account")
	tokens, err := s.Ledger.AccountTokens(r.Context(), account)
	if err != nil {
		s.Log.Error("account tokens lookup failed", "account", account, "error", err)
		http.Error(w, "ledger query failed", http.StatusBadGateway)
		return
	}
	s.writeJSON(w, http.StatusOK, tokens)
}
