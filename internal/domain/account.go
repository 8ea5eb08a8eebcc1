/**
 * @description
 * Core domain models for the referral-service: the Account record, the
 * sentinel referral code that terminates every referral chain, and the
 * request/response shapes shared by the app and api layers.
 */
package domain

import "time"

// GenesisReferralCode marks the end of a referral chain. Accounts that signed
// up without a referral code carry it in ReferredBy.
const GenesisReferralCode = "GENESIS"

// Account is a user record in the referral ledger.
type Account struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	WalletAddress      string     `json:"wallet_address"`
	ReferralCode       string     `json:"referral_code"`
	ReferredBy         string     `json:"referred_by"`
	Balance            int64      `json:"balance"`
	Referrals          []string   `json:"referrals"`
	LastWithdrawalDate *time.Time `json:"last_withdrawal_date,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// ReferrerCode returns the referral code of this account's referrer, falling
// back to the genesis sentinel for records written without one.
func (a *Account) ReferrerCode() string {
	if a == nil || a.ReferredBy == "" {
		return GenesisReferralCode
	}
	return a.ReferredBy
}

// SignupRequest is the payload accepted by the signup endpoint.
type SignupRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	WalletAddress string `json:"walletAddress"`
	ReferralCode  string `json:"referralCode"`
}

// LoginRequest accepts either email/password or a bare wallet address.
type LoginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	WalletAddress string `json:"walletAddress"`
}

// Session pairs an account with the bearer credential issued for it.
type Session struct {
	Account *Account
	Token   string
}
