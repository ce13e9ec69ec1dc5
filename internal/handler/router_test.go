package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"verification-service/internal/bucketing"
	"verification-service/internal/config"
	"verification-service/internal/encryption"
	"verification-service/internal/hashing"
	"verification-service/internal/models"
	"verification-service/internal/repository/memory"
	"verification-service/internal/service"
)

const testJWTSecret = "test-secret"

type testEnv struct {
	router chi.Router
	cfg    *config.Config
	store  *memory.Store
	kyc    *service.KYCService
	otp    *service.OTPService
	sms    *recordingDispatcher
}

type recordingDispatcher struct {
	messages []string
}

func (d *recordingDispatcher) Send(ctx context.Context, phone, message string) error {
	d.messages = append(d.messages, message)
	return nil
}

type nopIndexer struct{}

func (nopIndexer) Index(ctx context.Context, entry *models.AuditLogEntry) error { return nil }

type nopNotifier struct{}

func (nopNotifier) NotifyReviewed(ctx context.Context, sub *models.SellerVerification) error {
	return nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Environment: "test",
		Auth: config.AuthConfig{
			JWTSecret: testJWTSecret,
			Issuer:    "verification-service",
		},
		Hashing: config.HashingConfig{
			Argon2MemoryCost:   1024,
			Argon2TimeCost:     1,
			Argon2Parallelism:  1,
			PepperRotationDays: 30,
		},
		OTP: config.OTPConfig{
			CodeLength:      6,
			Expiry:          5 * time.Minute,
			MaxAttempts:     3,
			DispatchTimeout: time.Second,
			DispatchRate:    50,
			DispatchBurst:   100,
		},
		RateLimit: config.RateLimitConfig{
			SendOTPLimit:  5,
			SendOTPWindow: time.Hour,
			VerifyLimit:   100,
			VerifyWindow:  time.Hour,
			SubmitLimit:   10,
			SubmitWindow:  24 * time.Hour,
		},
		Bucketing: config.BucketingConfig{
			UserBuckets:  64,
			EventBuckets: 16,
		},
	}

	store := memory.NewStore()
	bm := bucketing.NewBucketingManager(cfg)
	hasher := hashing.NewHasher(cfg)
	em := encryption.NewEncryptionManager(cfg, nil)
	sms := &recordingDispatcher{}
	limiter := service.NewRateLimiter(store, bm, cfg)
	otp := service.NewOTPService(store, store, store, limiter, hasher, sms, nopIndexer{}, bm, cfg)
	kyc := service.NewKYCService(store, store, limiter, em, nopNotifier{}, nopIndexer{}, bm, cfg)

	router := NewRouter(cfg,
		NewPhoneHandler(otp),
		NewSellerHandler(kyc),
		NewAdminHandler(kyc),
		zap.NewNop(),
	)

	return &testEnv{router: router, cfg: cfg, store: store, kyc: kyc, otp: otp, sms: sms}
}

func signToken(t *testing.T, sub, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"iss":  "verification-service",
		"exp":  time.Now().Add(time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func (e *testEnv) request(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

var otpCodePattern = regexp.MustCompile(`\d{6}`)

func (e *testEnv) verifyPhone(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.otp.SendOTP(ctx, userID, "+201033832316", ""))
	code := otpCodePattern.FindString(e.sms.messages[len(e.sms.messages)-1])
	require.NoError(t, e.otp.VerifyOTP(ctx, userID, "+201033832316", code, ""))
}

func TestHealthEndpoint(t *testing.T) {
	e := newTestEnv(t)

	rec := e.request(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "healthy")
}

func TestAPIRequiresAuth(t *testing.T) {
	e := newTestEnv(t)

	rec := e.request(t, http.MethodPost, "/api/v1/phone/send-otp", "", `{"phone":"+201033832316"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.request(t, http.MethodGet, "/api/v1/seller/status", "not-a-token", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSendOTPEndpoint(t *testing.T) {
	e := newTestEnv(t)
	token := signToken(t, "u1", "")

	rec := e.request(t, http.MethodPost, "/api/v1/phone/send-otp", token, `{"phone":"+201033832316"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, e.sms.messages, 1)

	rec = e.request(t, http.MethodPost, "/api/v1/phone/send-otp", token, `{"phone":"12345"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendOTPRateLimitedEndpoint(t *testing.T) {
	e := newTestEnv(t)
	token := signToken(t, "u1", "")

	for i := 0; i < 5; i++ {
		rec := e.request(t, http.MethodPost, "/api/v1/phone/send-otp", token, `{"phone":"+201033832316"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := e.request(t, http.MethodPost, "/api/v1/phone/send-otp", token, `{"phone":"+201033832316"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestVerifyOTPEndpoint(t *testing.T) {
	e := newTestEnv(t)
	token := signToken(t, "u1", "")

	rec := e.request(t, http.MethodPost, "/api/v1/phone/send-otp", token, `{"phone":"+201033832316"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	code := otpCodePattern.FindString(e.sms.messages[0])

	rec = e.request(t, http.MethodPost, "/api/v1/phone/verify-otp", token,
		`{"phone":"+201033832316","code":"`+code+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.request(t, http.MethodGet, "/api/v1/phone/status", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "verified", resp.Data.Status)
}

func TestSellerStatusNotFound(t *testing.T) {
	e := newTestEnv(t)
	token := signToken(t, "u1", "")

	rec := e.request(t, http.MethodGet, "/api/v1/seller/status", token, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSellerSubmitEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.verifyPhone(t, "u1")
	token := signToken(t, "u1", "")

	body := `{"national_id":"29805241234567","date_of_birth":"1998-05-24","billing_address":"14 October City, Giza"}`
	rec := e.request(t, http.MethodPost, "/api/v1/seller/submit", token, body)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), "29805*********")
	require.NotContains(t, rec.Body.String(), "29805241234567")

	// Second submission while pending
	rec = e.request(t, http.MethodPost, "/api/v1/seller/submit", token, body)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestCanCreateOffersEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.verifyPhone(t, "u1")
	token := signToken(t, "u1", "")

	rec := e.request(t, http.MethodGet, "/api/v1/seller/can-create-offers", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Allowed bool   `json:"can_create_offers"`
			Reason  string `json:"reason"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Data.Allowed)
	require.Equal(t, "seller verification has not been submitted", resp.Data.Reason)
}

func TestAdminRoutesForbiddenForSellers(t *testing.T) {
	e := newTestEnv(t)
	token := signToken(t, "u1", "")

	rec := e.request(t, http.MethodGet, "/api/v1/admin/verifications/pending", token, "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminReviewEndpoints(t *testing.T) {
	e := newTestEnv(t)
	e.verifyPhone(t, "u1")

	sub, err := e.kyc.Submit(context.Background(), "u1", "29805241234567", "1998-05-24", "14 October City, Giza", "")
	require.NoError(t, err)

	adminToken := signToken(t, "admin-1", "ADMIN")

	rec := e.request(t, http.MethodGet, "/api/v1/admin/verifications/pending", adminToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), sub.ID)

	rec = e.request(t, http.MethodGet, "/api/v1/admin/verifications/"+sub.ID, adminToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "29805241234567")

	rec = e.request(t, http.MethodPost, "/api/v1/admin/verifications/"+sub.ID+"/reject", adminToken, `{"reason":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.request(t, http.MethodPost, "/api/v1/admin/verifications/"+sub.ID+"/approve", adminToken, "")
	require.Equal(t, http.StatusOK, rec.Code)

	// A terminal submission is no longer in the review queue
	rec = e.request(t, http.MethodPost, "/api/v1/admin/verifications/"+sub.ID+"/approve", adminToken, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.request(t, http.MethodGet, "/api/v1/admin/verifications/unknown-id", adminToken, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSupportCanViewButNotDecide(t *testing.T) {
	e := newTestEnv(t)
	e.verifyPhone(t, "u1")

	sub, err := e.kyc.Submit(context.Background(), "u1", "29805241234567", "1998-05-24", "14 October City, Giza", "")
	require.NoError(t, err)

	supportToken := signToken(t, "support-1", "SUPPORT")

	rec := e.request(t, http.MethodGet, "/api/v1/admin/verifications/pending", supportToken, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.request(t, http.MethodPost, "/api/v1/admin/verifications/"+sub.ID+"/approve", supportToken, "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}
