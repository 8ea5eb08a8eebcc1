/**
 * @description
 * This file defines the AccountRepository interface, the contract the reward
 * ledger relies on. Balance increments and referral appends must be applied
 * by the store itself so concurrent signups never lose updates.
 */
package store

import (
	"context"
	"errors"

	"github.com/algoadopt/referral-service/internal/domain"
)

var (
	// ErrAccountNotFound is returned when a lookup or mutation targets a missing record.
	ErrAccountNotFound = errors.New("account not found")
	// ErrDuplicateWallet is returned when an insert collides with an existing wallet address.
	ErrDuplicateWallet = errors.New("wallet address already exists")
	// ErrDuplicateReferralCode is returned when an insert collides with an existing referral code.
	ErrDuplicateReferralCode = errors.New("referral code already exists")
)

// AccountRepository is a keyed account store with atomic per-record mutations.
type AccountRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	FindByWallet(ctx context.Context, walletAddress string) (*domain.Account, error)
	FindByReferralCode(ctx context.Context, code string) (*domain.Account, error)
	Create(ctx context.Context, account *domain.Account) error
	// IncrementBalance adds amount to the stored balance in a single store-side operation.
	IncrementBalance(ctx context.Context, id string, amount int64) error
	// AppendReferral adds memberID to the referrals set; a member already present is a no-op.
	AppendReferral(ctx context.Context, id string, memberID string) error
	CountAccounts(ctx context.Context) (int64, error)
	// WithinTx runs fn against a repository bound to a single store transaction.
	WithinTx(ctx context.Context, fn func(repo AccountRepository) error) error
}
