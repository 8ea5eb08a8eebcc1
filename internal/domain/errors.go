package domain

import "errors"

var (
	ErrDuplicateWallet     = errors.New("wallet address is already in use")
	ErrInvalidReferralCode = errors.New("invalid referral code")
	ErrNotFound            = errors.New("account not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailTaken          = errors.New("email is already registered")
	ErrMissingCredentials  = errors.New("either email/password or wallet address is required")
	ErrInvalidInput        = errors.New("invalid input")
)
