/**
 * @description
 * Core business logic for the referral reward ledger: account creation,
 * bounded reward propagation up the referral chain, and authentication.
 *
 * @dependencies
 * - internal/store: AccountRepository with store-side atomic increments.
 * - go.uber.org/zap: structured logging.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/algoadopt/referral-service/internal/domain"
	"github.com/algoadopt/referral-service/internal/store"
	"github.com/algoadopt/referral-service/pkg/identity"
	"go.uber.org/zap"
)

const (
	// InitialBalance is granted to every new account.
	InitialBalance int64 = 5
	// GenesisReward is credited to the genesis account on every signup.
	GenesisReward int64 = 5
	// ReferralReward is credited to each rewarded ancestor.
	ReferralReward int64 = 5
	// MaxReferralDepth bounds how many ancestors one signup can reward.
	MaxReferralDepth = 5

	AccountCreatedRoutingKey = "account.created"
)

// IdentityProvider owns email/password credentials and assigns account ids.
type IdentityProvider interface {
	CreateIdentity(ctx context.Context, email, password string) (string, error)
	VerifyPassword(ctx context.Context, email, password string) (string, error)
}

// SessionIssuer issues bearer credentials for an account.
type SessionIssuer interface {
	Issue(userID, email string) (string, error)
}

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// LedgerConfig carries the settings the ledger needs from configuration.
type LedgerConfig struct {
	GenesisAccountID string
	AtomicSignup     bool
	EventsExchange   string
}

// Ledger is the reward ledger service.
type Ledger struct {
	repo       store.AccountRepository
	identities IdentityProvider
	sessions   SessionIssuer
	publisher  EventPublisher
	cfg        LedgerConfig
	logger     *zap.Logger
}

// NewLedger creates a new reward ledger.
func NewLedger(repo store.AccountRepository, identities IdentityProvider, sessions SessionIssuer, publisher EventPublisher, cfg LedgerConfig, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		repo:       repo,
		identities: identities,
		sessions:   sessions,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger.With(zap.String("component", "reward_ledger")),
	}
}

// CreateAccount registers a new member, credits the genesis account and
// rewards the referral chain. Validation failures return before any write.
// Outside atomic mode a failure after the account insert leaves earlier
// credits in place.
func (l *Ledger) CreateAccount(ctx context.Context, req domain.SignupRequest) (*domain.Session, error) {
	email := identity.NormalizeEmail(req.Email)
	walletAddress := strings.TrimSpace(req.WalletAddress)
	if email == "" || walletAddress == "" {
		return nil, fmt.Errorf("%w: email and wallet address are required", domain.ErrInvalidInput)
	}

	if _, err := l.repo.FindByWallet(ctx, walletAddress); err == nil {
		return nil, domain.ErrDuplicateWallet
	} else if !errors.Is(err, store.ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to check wallet address: %w", err)
	}

	referredBy, err := l.resolveReferrer(ctx, req.ReferralCode)
	if err != nil {
		return nil, err
	}

	accountID, err := l.identities.CreateIdentity(ctx, email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrEmailTaken):
			return nil, domain.ErrEmailTaken
		case errors.Is(err, identity.ErrWeakPassword):
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	account := &domain.Account{
		ID:            accountID,
		Email:         email,
		WalletAddress: walletAddress,
		ReferralCode:  accountID,
		ReferredBy:    referredBy,
		Balance:       InitialBalance,
		Referrals:     []string{},
	}

	var rewarded []string
	persist := func(repo store.AccountRepository) error {
		if err := repo.Create(ctx, account); err != nil {
			if errors.Is(err, store.ErrDuplicateWallet) {
				return domain.ErrDuplicateWallet
			}
			return fmt.Errorf("failed to create account: %w", err)
		}
		if err := l.creditGenesis(ctx, repo, accountID); err != nil {
			return err
		}
		var propagateErr error
		rewarded, propagateErr = l.propagate(ctx, repo, referredBy, accountID)
		return propagateErr
	}

	if l.cfg.AtomicSignup {
		err = l.repo.WithinTx(ctx, persist)
	} else {
		err = persist(l.repo)
	}
	if err != nil {
		fields := []zap.Field{
			zap.String("account_id", accountID),
			zap.Bool("atomic", l.cfg.AtomicSignup),
			zap.Error(err),
		}
		if l.cfg.AtomicSignup {
			fields = append(fields, zap.Bool("rolled_back", true))
		} else {
			// These credits stay committed.
			fields = append(fields, zap.Strings("rewarded_ancestors", rewarded))
		}
		l.logger.Error("signup failed after identity creation", fields...)
		return nil, err
	}

	token, err := l.sessions.Issue(account.ID, account.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	l.publishAccountCreated(ctx, account, rewarded)

	l.logger.Info("account created",
		zap.String("account_id", account.ID),
		zap.String("referred_by", referredBy),
		zap.Int("rewarded_ancestors", len(rewarded)))

	return &domain.Session{Account: account, Token: token}, nil
}

// PropagateReward walks the referral chain from startCode, crediting each
// ancestor and recording rewardedID in its referrals. It returns the ids of
// the rewarded ancestors in chain order.
func (l *Ledger) PropagateReward(ctx context.Context, startCode, rewardedID string) ([]string, error) {
	return l.propagate(ctx, l.repo, startCode, rewardedID)
}

func (l *Ledger) propagate(ctx context.Context, repo store.AccountRepository, startCode, rewardedID string) ([]string, error) {
	rewarded := make([]string, 0, MaxReferralDepth)
	currentCode := startCode

	for level := 0; level < MaxReferralDepth; level++ {
		if currentCode == domain.GenesisReferralCode {
			break
		}

		ancestor, err := repo.FindByReferralCode(ctx, currentCode)
		if errors.Is(err, store.ErrAccountNotFound) {
			l.logger.Debug("referral chain ended at missing code",
				zap.String("referral_code", currentCode),
				zap.Int("level", level))
			break
		}
		if err != nil {
			return rewarded, fmt.Errorf("failed to look up referrer %q: %w", currentCode, err)
		}

		if err := repo.IncrementBalance(ctx, ancestor.ID, ReferralReward); err != nil {
			return rewarded, fmt.Errorf("failed to credit ancestor %s: %w", ancestor.ID, err)
		}
		if err := repo.AppendReferral(ctx, ancestor.ID, rewardedID); err != nil {
			return rewarded, fmt.Errorf("failed to record referral on ancestor %s: %w", ancestor.ID, err)
		}
		rewarded = append(rewarded, ancestor.ID)

		currentCode = ancestor.ReferrerCode()
	}

	return rewarded, nil
}

// Authenticate resolves an account from email/password or a bare wallet
// address and issues a fresh session.
func (l *Ledger) Authenticate(ctx context.Context, req domain.LoginRequest) (*domain.Session, error) {
	email := identity.NormalizeEmail(req.Email)
	walletAddress := strings.TrimSpace(req.WalletAddress)

	var (
		account *domain.Account
		err     error
	)
	switch {
	case email != "" && req.Password != "":
		accountID, verifyErr := l.identities.VerifyPassword(ctx, email, req.Password)
		if verifyErr != nil {
			if errors.Is(verifyErr, identity.ErrInvalidCredentials) {
				return nil, domain.ErrInvalidCredentials
			}
			return nil, fmt.Errorf("failed to verify credentials: %w", verifyErr)
		}
		account, err = l.repo.FindByID(ctx, accountID)
	case walletAddress != "":
		account, err = l.repo.FindByWallet(ctx, walletAddress)
	default:
		return nil, domain.ErrMissingCredentials
	}
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	token, err := l.sessions.Issue(account.ID, account.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}
	return &domain.Session{Account: account, Token: token}, nil
}

// GetAccount returns the account with the given id.
func (l *Ledger) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	account, err := l.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return account, nil
}

// CountMembers returns the number of accounts, genesis included.
func (l *Ledger) CountMembers(ctx context.Context) (int64, error) {
	return l.repo.CountAccounts(ctx)
}

func (l *Ledger) resolveReferrer(ctx context.Context, rawCode string) (string, error) {
	code := strings.TrimSpace(rawCode)
	if code == "" {
		return domain.GenesisReferralCode, nil
	}
	if _, err := l.repo.FindByReferralCode(ctx, code); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return "", domain.ErrInvalidReferralCode
		}
		return "", fmt.Errorf("failed to look up referral code: %w", err)
	}
	return code, nil
}

func (l *Ledger) creditGenesis(ctx context.Context, repo store.AccountRepository, memberID string) error {
	if err := repo.IncrementBalance(ctx, l.cfg.GenesisAccountID, GenesisReward); err != nil {
		return fmt.Errorf("failed to credit genesis account: %w", err)
	}
	if err := repo.AppendReferral(ctx, l.cfg.GenesisAccountID, memberID); err != nil {
		return fmt.Errorf("failed to record referral on genesis account: %w", err)
	}
	return nil
}

func (l *Ledger) publishAccountCreated(ctx context.Context, account *domain.Account, rewarded []string) {
	if l.publisher == nil || l.cfg.EventsExchange == "" {
		return
	}
	event := domain.AccountCreatedEvent{
		UserID:            account.ID,
		WalletAddress:     account.WalletAddress,
		ReferredBy:        account.ReferredBy,
		RewardedAncestors: rewarded,
	}
	if err := l.publisher.Publish(ctx, l.cfg.EventsExchange, AccountCreatedRoutingKey, event); err != nil {
		l.logger.Warn("failed to publish account created event",
			zap.String("account_id", account.ID),
			zap.Error(err))
	}
}
