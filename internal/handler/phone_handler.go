package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"verification-service/internal/service"
	"verification-service/internal/util"
)

// PhoneHandler exposes the phone verification endpoints.
type PhoneHandler struct {
	otp *service.OTPService
}

func NewPhoneHandler(otp *service.OTPService) *PhoneHandler {
	return &PhoneHandler{otp: otp}
}

func (h *PhoneHandler) RegisterRoutes(r chi.Router) {
	r.Route("/phone", func(r chi.Router) {
		r.Post("/send-otp", h.SendOTP)
		r.Post("/verify-otp", h.VerifyOTP)
		r.Get("/status", h.Status)
	})
}

type sendOTPRequest struct {
	Phone string `json:"phone"`
}

func (h *PhoneHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("invalid request body: %w", service.ErrInvalidInput))
		return
	}

	userID := UserIDFromContext(r.Context())
	if err := h.otp.SendOTP(r.Context(), userID, req.Phone, util.ClientIP(r)); err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "verification code sent",
	})
}

type verifyOTPRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

func (h *PhoneHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("invalid request body: %w", service.ErrInvalidInput))
		return
	}

	userID := UserIDFromContext(r.Context())
	if err := h.otp.VerifyOTP(r.Context(), userID, req.Phone, req.Code, util.ClientIP(r)); err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "phone verified",
	})
}

func (h *PhoneHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	status, err := h.otp.Status(r.Context(), userID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    status,
	})
}
