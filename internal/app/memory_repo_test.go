package app

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/algoadopt/referral-service/internal/domain"
	"github.com/algoadopt/referral-service/internal/store"
	"github.com/algoadopt/referral-service/pkg/identity"
	"github.com/google/uuid"
)

// memoryRepo is an in-memory AccountRepository. Each mutation runs under the
// mutex so increments and appends behave like store-side atomic updates.
type memoryRepo struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	accounts map[string]*domain.Account

	failIncrementFor map[string]error
	increments       int
	appends          int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		accounts:         map[string]*domain.Account{},
		failIncrementFor: map[string]error{},
	}
}

func (r *memoryRepo) seed(account domain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account.Referrals == nil {
		account.Referrals = []string{}
	}
	r.accounts[account.ID] = cloneAccount(&account)
}

func (r *memoryRepo) get(id string) *domain.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil
	}
	return cloneAccount(account)
}

func (r *memoryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}

func (r *memoryRepo) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.ID == id })
}

func (r *memoryRepo) FindByWallet(ctx context.Context, walletAddress string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.WalletAddress == walletAddress })
}

func (r *memoryRepo) FindByReferralCode(ctx context.Context, code string) (*domain.Account, error) {
	return r.find(func(a *domain.Account) bool { return a.ReferralCode == code })
}

func (r *memoryRepo) find(match func(*domain.Account) bool) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if match(account) {
			return cloneAccount(account), nil
		}
	}
	return nil, store.ErrAccountNotFound
}

func (r *memoryRepo) Create(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.WalletAddress == account.WalletAddress {
			return store.ErrDuplicateWallet
		}
		if existing.ReferralCode == account.ReferralCode {
			return store.ErrDuplicateReferralCode
		}
	}
	account.CreatedAt = time.Now().UTC()
	r.accounts[account.ID] = cloneAccount(account)
	return nil
}

func (r *memoryRepo) IncrementBalance(ctx context.Context, id string, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failIncrementFor[id]; ok {
		return err
	}
	account, ok := r.accounts[id]
	if !ok {
		return store.ErrAccountNotFound
	}
	account.Balance += amount
	r.increments++
	return nil
}

func (r *memoryRepo) AppendReferral(ctx context.Context, id string, memberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return store.ErrAccountNotFound
	}
	r.appends++
	if slices.Contains(account.Referrals, memberID) {
		return nil
	}
	account.Referrals = append(account.Referrals, memberID)
	return nil
}

func (r *memoryRepo) CountAccounts(ctx context.Context) (int64, error) {
	return int64(r.count()), nil
}

// WithinTx serializes transactions and restores a snapshot when fn fails.
func (r *memoryRepo) WithinTx(ctx context.Context, fn func(repo store.AccountRepository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	snapshot := make(map[string]*domain.Account, len(r.accounts))
	for id, account := range r.accounts {
		snapshot[id] = cloneAccount(account)
	}
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.accounts = snapshot
		r.mu.Unlock()
		return err
	}
	return nil
}

func cloneAccount(account *domain.Account) *domain.Account {
	cp := *account
	cp.Referrals = append([]string{}, account.Referrals...)
	return &cp
}

type identityStub struct {
	mu        sync.Mutex
	byEmail   map[string]identityRecord
	createErr error
}

type identityRecord struct {
	id       string
	password string
}

func newIdentityStub() *identityStub {
	return &identityStub{byEmail: map[string]identityRecord{}}
}

func (s *identityStub) CreateIdentity(ctx context.Context, email, password string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return "", s.createErr
	}
	id := uuid.NewString()
	s.byEmail[email] = identityRecord{id: id, password: password}
	return id, nil
}

func (s *identityStub) VerifyPassword(ctx context.Context, email, password string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byEmail[email]
	if !ok || record.password != password {
		return "", identity.ErrInvalidCredentials
	}
	return record.id, nil
}

type sessionStub struct{}

func (sessionStub) Issue(userID, email string) (string, error) {
	return "token-" + userID, nil
}

type publisherStub struct {
	mu     sync.Mutex
	events []domain.AccountCreatedEvent
	err    error
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if event, ok := body.(domain.AccountCreatedEvent); ok {
		p.events = append(p.events, event)
	}
	return nil
}
