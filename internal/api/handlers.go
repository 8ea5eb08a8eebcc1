/**
 * @description
 * HTTP handlers for the referral-service. Handlers decode requests, call the
 * reward ledger or payment verifier, and map domain errors to status codes.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/algoadopt/referral-service/internal/domain"
	"go.uber.org/zap"
)

// AccountService is the subset of the reward ledger the handlers use.
type AccountService interface {
	CreateAccount(ctx context.Context, req domain.SignupRequest) (*domain.Session, error)
	Authenticate(ctx context.Context, req domain.LoginRequest) (*domain.Session, error)
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	CountMembers(ctx context.Context) (int64, error)
}

// PaymentVerifier confirms fee payments.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, walletAddress, txID string) bool
}

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	accounts AccountService
	verifier PaymentVerifier
	logger   *zap.Logger
}

// NewHandler creates a new Handler.
func NewHandler(accounts AccountService, verifier PaymentVerifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		accounts: accounts,
		verifier: verifier,
		logger:   logger.With(zap.String("component", "http")),
	}
}

type sessionResponse struct {
	Message       string   `json:"message"`
	UserID        string   `json:"userId"`
	ReferralCode  string   `json:"referralCode"`
	Balance       int64    `json:"balance"`
	Token         string   `json:"token"`
	WalletAddress string   `json:"walletAddress"`
	Referrals     []string `json:"referrals,omitempty"`
}

type verifyPaymentRequest struct {
	WalletAddress string `json:"walletAddress"`
	TxID          string `json:"txId"`
}

type memberCountResponse struct {
	TotalMembers int64 `json:"totalMembers"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.accounts.CreateAccount(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	account := session.Account
	h.writeJSON(w, http.StatusCreated, sessionResponse{
		Message:       "User created successfully",
		UserID:        account.ID,
		ReferralCode:  account.ReferralCode,
		Balance:       account.Balance,
		Token:         session.Token,
		WalletAddress: account.WalletAddress,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.accounts.Authenticate(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	account := session.Account
	referrals := account.Referrals
	if referrals == nil {
		referrals = []string{}
	}
	h.writeJSON(w, http.StatusOK, sessionResponse{
		Message:       "Login successful",
		UserID:        account.ID,
		ReferralCode:  account.ReferralCode,
		Balance:       account.Balance,
		Token:         session.Token,
		WalletAddress: account.WalletAddress,
		Referrals:     referrals,
	})
}

func (h *Handler) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	verified := h.verifier.VerifyPayment(r.Context(), req.WalletAddress, req.TxID)
	h.writeJSON(w, http.StatusOK, map[string]bool{"verified": verified})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := AccountIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	account, err := h.accounts.GetAccount(r.Context(), accountID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

func (h *Handler) handleMemberCount(w http.ResponseWriter, r *http.Request) {
	total, err := h.accounts.CountMembers(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, memberCountResponse{TotalMembers: total})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrDuplicateWallet):
		h.writeError(w, http.StatusBadRequest, "Wallet address already in use")
	case errors.Is(err, domain.ErrInvalidReferralCode):
		h.writeError(w, http.StatusBadRequest, "Invalid referral code")
	case errors.Is(err, domain.ErrMissingCredentials):
		h.writeError(w, http.StatusBadRequest, "Provide either email/password or wallet address")
	case errors.Is(err, domain.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrEmailTaken):
		h.writeError(w, http.StatusConflict, "Email already registered")
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, domain.ErrInvalidCredentials):
		h.writeError(w, http.StatusUnauthorized, "Invalid credentials")
	default:
		h.logger.Error("request failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			h.logger.Warn("failed to encode response", zap.Error(err))
		}
	}
}

// writeError is a helper for writing JSON error responses.
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
