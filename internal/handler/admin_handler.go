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

// AdminHandler exposes the back-office review endpoints. Routes are mounted
// behind RequireRoles; finer checks (only ADMIN decides) live in the service.
type AdminHandler struct {
	kyc *service.KYCService
}

func NewAdminHandler(kyc *service.KYCService) *AdminHandler {
	return &AdminHandler{kyc: kyc}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/verifications", func(r chi.Router) {
		r.Get("/pending", h.ListPending)
		r.Get("/{id}", h.ViewDetails)
		r.Post("/{id}/approve", h.Approve)
		r.Post("/{id}/reject", h.Reject)
	})
}

func (h *AdminHandler) actor(r *http.Request) service.Actor {
	return service.Actor{
		ID:   UserIDFromContext(r.Context()),
		Role: RoleFromContext(r.Context()),
		IP:   util.ClientIP(r),
	}
}

// queueItem is the review queue row. No PII beyond the mask.
type queueItem struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	NationalIDMasked string    `json:"national_id_masked"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

func (h *AdminHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	subs, err := h.kyc.ListPending(r.Context(), h.actor(r), 0)
	if err != nil {
		respondWithError(w, err)
		return
	}

	items := make([]queueItem, 0, len(subs))
	for _, sub := range subs {
		items = append(items, queueItem{
			ID:               sub.ID,
			UserID:           sub.UserID,
			NationalIDMasked: sub.NationalIDMasked,
			SubmittedAt:      sub.SubmittedAt,
		})
	}

	respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    items,
	})
}

type detailView struct {
	ID              string                  `json:"id"`
	UserID          string                  `json:"user_id"`
	NationalID      string                  `json:"national_id"`
	DateOfBirth     string                  `json:"date_of_birth"`
	BillingAddress  string                  `json:"billing_address"`
	Status          string                  `json:"status"`
	SubmittedAt     time.Time               `json:"submitted_at"`
	ReviewedBy      string                  `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time              `json:"reviewed_at,omitempty"`
	RejectionReason string                  `json:"rejection_reason,omitempty"`
	AuditTrail      []*models.AuditLogEntry `json:"audit_trail"`
}

func (h *AdminHandler) ViewDetails(w http.ResponseWriter, r *http.Request) {
	details, err := h.kyc.ViewDetails(r.Context(), h.actor(r), chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, err)
		return
	}

	sub := details.Submission
	respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data: detailView{
			ID:              sub.ID,
			UserID:          sub.UserID,
			NationalID:      details.NationalID,
			DateOfBirth:     sub.DateOfBirth.Format("2006-01-02"),
			BillingAddress:  sub.BillingAddress,
			Status:          sub.Status,
			SubmittedAt:     sub.SubmittedAt,
			ReviewedBy:      sub.ReviewedBy,
			ReviewedAt:      sub.ReviewedAt,
			RejectionReason: sub.RejectionReason,
			AuditTrail:      details.AuditTrail,
		},
	})
}

func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	if err := h.kyc.Approve(r.Context(), h.actor(r), chi.URLParam(r, "id")); err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "submission approved",
	})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("invalid request body: %w", service.ErrInvalidInput))
		return
	}

	if err := h.kyc.Reject(r.Context(), h.actor(r), chi.URLParam(r, "id"), req.Reason); err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "submission rejected",
	})
}
