package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"verification-service/internal/models"
	"verification-service/internal/service"
	"verification-service/internal/util"
)

// SellerHandler exposes the seller-facing KYC endpoints.
type SellerHandler struct {
	kyc *service.KYCService
}

func NewSellerHandler(kyc *service.KYCService) *SellerHandler {
	return &SellerHandler{kyc: kyc}
}

func (h *SellerHandler) RegisterRoutes(r chi.Router) {
	r.Route("/seller", func(r chi.Router) {
		r.Post("/submit", h.Submit)
		r.Get("/status", h.Status)
		r.Get("/can-create-offers", h.CanCreateOffers)
	})
}

// submissionView is what sellers see of their own record. Ciphertext,
// digest, and reviewer identity stay server-side.
type submissionView struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	NationalIDMasked string     `json:"national_id_masked"`
	SubmittedAt      time.Time  `json:"submitted_at"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty"`
	RejectionReason  string     `json:"rejection_reason,omitempty"`
}

func toSubmissionView(sub *models.SellerVerification) submissionView {
	return submissionView{
		ID:               sub.ID,
		Status:           sub.Status,
		NationalIDMasked: sub.NationalIDMasked,
		SubmittedAt:      sub.SubmittedAt,
		ReviewedAt:       sub.ReviewedAt,
		RejectionReason:  sub.RejectionReason,
	}
}

type submitRequest struct {
	NationalID     string `json:"national_id"`
	DateOfBirth    string `json:"date_of_birth"`
	BillingAddress string `json:"billing_address"`
}

func (h *SellerHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("invalid request body: %w", service.ErrInvalidInput))
		return
	}

	userID := UserIDFromContext(r.Context())
	sub, err := h.kyc.Submit(r.Context(), userID, req.NationalID, req.DateOfBirth, req.BillingAddress, util.ClientIP(r))
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, Response{
		Success: true,
		Data:    toSubmissionView(sub),
		Message: "submission received",
	})
}

func (h *SellerHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	sub, err := h.kyc.Status(r.Context(), userID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    toSubmissionView(sub),
	})
}

func (h *SellerHandler) CanCreateOffers(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	allowed, reason, err := h.kyc.CanCreateOffers(r.Context(), userID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"can_create_offers": allowed,
			"reason":            reason,
		},
	})
}
