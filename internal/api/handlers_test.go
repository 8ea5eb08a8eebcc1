package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/algoadopt/referral-service/internal/domain"
	"github.com/algoadopt/referral-service/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accountServiceStub struct {
	createSession *domain.Session
	createErr     error
	authSession   *domain.Session
	authErr       error
	account       *domain.Account
	accountErr    error
	members       int64

	lastSignup domain.SignupRequest
	lastLogin  domain.LoginRequest
}

func (s *accountServiceStub) CreateAccount(ctx context.Context, req domain.SignupRequest) (*domain.Session, error) {
	s.lastSignup = req
	return s.createSession, s.createErr
}

func (s *accountServiceStub) Authenticate(ctx context.Context, req domain.LoginRequest) (*domain.Session, error) {
	s.lastLogin = req
	return s.authSession, s.authErr
}

func (s *accountServiceStub) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	if s.accountErr != nil {
		return nil, s.accountErr
	}
	if s.account == nil || s.account.ID != id {
		return nil, domain.ErrNotFound
	}
	return s.account, nil
}

func (s *accountServiceStub) CountMembers(ctx context.Context) (int64, error) {
	return s.members, nil
}

type verifierStub struct {
	result bool
	wallet string
	txID   string
}

func (v *verifierStub) VerifyPayment(ctx context.Context, walletAddress, txID string) bool {
	v.wallet = walletAddress
	v.txID = txID
	return v.result
}

type limiterStub struct {
	count      int
	retryAfter int
	err        error
}

func (l *limiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return l.count, l.retryAfter, l.err
}

func newTestRouter(t *testing.T, accounts *accountServiceStub, verifier *verifierStub, cfg RouterConfig, limiter *limiterStub) (http.Handler, *session.Issuer) {
	t.Helper()
	issuer, err := session.NewIssuer("test-signing-key", time.Hour)
	require.NoError(t, err)
	if limiter == nil {
		limiter = &limiterStub{count: 1}
	}
	return NewRouter(NewHandler(accounts, verifier, nil), issuer, limiter, cfg, nil), issuer
}

func doRequest(handler http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSignupHandler_Created(t *testing.T) {
	accounts := &accountServiceStub{createSession: &domain.Session{
		Account: &domain.Account{ID: "u1", ReferralCode: "u1", Balance: 5, WalletAddress: "W1"},
		Token:   "tok",
	}}
	router, _ := newTestRouter(t, accounts, &verifierStub{}, RouterConfig{}, nil)

	rec := doRequest(router, http.MethodPost, "/signup",
		`{"email":"a@example.com","password":"secret1","walletAddress":"W1","referralCode":"R"}`, nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "u1", body["userId"])
	assert.Equal(t, "u1", body["referralCode"])
	assert.Equal(t, float64(5), body["balance"])
	assert.Equal(t, "tok", body["token"])
	assert.Equal(t, "W1", body["walletAddress"])
	assert.NotContains(t, body, "referrals")
	assert.Equal(t, "R", accounts.lastSignup.ReferralCode)
}

func TestSignupHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "duplicate wallet", err: domain.ErrDuplicateWallet, status: http.StatusBadRequest},
		{name: "invalid referral", err: domain.ErrInvalidReferralCode, status: http.StatusBadRequest},
		{name: "invalid input", err: domain.ErrInvalidInput, status: http.StatusBadRequest},
		{name: "email taken", err: domain.ErrEmailTaken, status: http.StatusConflict},
		{name: "store failure", err: errors.New("connection refused"), status: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router, _ := newTestRouter(t, &accountServiceStub{createErr: tc.err}, &verifierStub{}, RouterConfig{}, nil)
			rec := doRequest(router, http.MethodPost, "/signup", `{"email":"a@example.com","walletAddress":"W1"}`, nil)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestSignupHandler_InvalidBody(t *testing.T) {
	router, _ := newTestRouter(t, &accountServiceStub{}, &verifierStub{}, RouterConfig{}, nil)
	rec := doRequest(router, http.MethodPost, "/signup", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginHandler(t *testing.T) {
	accounts := &accountServiceStub{authSession: &domain.Session{
		Account: &domain.Account{ID: "u1", ReferralCode: "u1", Balance: 15, WalletAddress: "W1", Referrals: []string{"u2", "u3"}},
		Token:   "tok",
	}}
	router, _ := newTestRouter(t, accounts, &verifierStub{}, RouterConfig{}, nil)

	rec := doRequest(router, http.MethodPost, "/login", `{"walletAddress":"W1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, []interface{}{"u2", "u3"}, body["referrals"])
	assert.Equal(t, float64(15), body["balance"])
	assert.Equal(t, "W1", accounts.lastLogin.WalletAddress)
}

func TestLoginHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "not found", err: domain.ErrNotFound, status: http.StatusNotFound},
		{name: "bad password", err: domain.ErrInvalidCredentials, status: http.StatusUnauthorized},
		{name: "missing credentials", err: domain.ErrMissingCredentials, status: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router, _ := newTestRouter(t, &accountServiceStub{authErr: tc.err}, &verifierStub{}, RouterConfig{}, nil)
			rec := doRequest(router, http.MethodPost, "/login", `{}`, nil)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestVerifyPaymentHandler(t *testing.T) {
	verifier := &verifierStub{result: true}
	router, _ := newTestRouter(t, &accountServiceStub{}, verifier, RouterConfig{}, nil)

	rec := doRequest(router, http.MethodPost, "/verify-payment", `{"walletAddress":"W1","txId":"TX1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["verified"])
	assert.Equal(t, "W1", verifier.wallet)
	assert.Equal(t, "TX1", verifier.txID)
}

func TestMemberCountRoutes(t *testing.T) {
	router, _ := newTestRouter(t, &accountServiceStub{members: 12}, &verifierStub{}, RouterConfig{}, nil)

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/get-total-members"},
		{http.MethodGet, "/members/count"},
	} {
		rec := doRequest(router, route.method, route.path, "", nil)
		require.Equal(t, http.StatusOK, rec.Code, route.path)
		assert.Equal(t, float64(12), decodeBody(t, rec)["totalMembers"])
	}
}

func TestOriginGuard(t *testing.T) {
	cfg := RouterConfig{AllowedOrigins: []string{"https://app.example.com"}}
	router, _ := newTestRouter(t, &accountServiceStub{members: 3}, &verifierStub{}, cfg, nil)

	rec := doRequest(router, http.MethodPost, "/get-total-members", "", map[string]string{"Origin": "https://evil.example.com"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(router, http.MethodPost, "/get-total-members", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(router, http.MethodPost, "/get-total-members", "", map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodGet, "/members/count", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "read-only count route is not origin restricted")
}

func TestRateLimit(t *testing.T) {
	cfg := RouterConfig{AuthRateLimitPerMinute: 5}
	limiter := &limiterStub{count: 6, retryAfter: 42}
	router, _ := newTestRouter(t, &accountServiceStub{}, &verifierStub{}, cfg, limiter)

	rec := doRequest(router, http.MethodPost, "/login", `{"walletAddress":"W1"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Retry-After"))
}

func TestRateLimit_FailsOpen(t *testing.T) {
	cfg := RouterConfig{AuthRateLimitPerMinute: 5}
	limiter := &limiterStub{err: errors.New("redis down")}
	verifier := &verifierStub{result: false}
	router, _ := newTestRouter(t, &accountServiceStub{}, verifier, cfg, limiter)

	rec := doRequest(router, http.MethodPost, "/verify-payment", `{"walletAddress":"W1","txId":"TX1"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["verified"])
}

func TestMeHandler(t *testing.T) {
	accounts := &accountServiceStub{account: &domain.Account{ID: "u1", Email: "a@example.com", Balance: 10}}
	router, issuer := newTestRouter(t, accounts, &verifierStub{}, RouterConfig{}, nil)

	rec := doRequest(router, http.MethodGet, "/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(router, http.MethodGet, "/me", "", map[string]string{"Authorization": "Bearer not-a-token"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := issuer.Issue("u1", "a@example.com")
	require.NoError(t, err)
	rec = doRequest(router, http.MethodGet, "/me", "", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "u1", body["id"])
	assert.Equal(t, float64(10), body["balance"])
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t, &accountServiceStub{}, &verifierStub{}, RouterConfig{}, nil)
	rec := doRequest(router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
