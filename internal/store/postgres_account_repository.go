/**
 * @description
 * PostgreSQL implementation of the AccountRepository. Every mutation the
 * reward ledger performs is a single UPDATE statement, so the row lock taken
 * by Postgres makes increments and set appends safe under concurrent signups.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: pool, transactions and PgError classification.
 * - go.uber.org/zap: structured logging.
 */
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/algoadopt/referral-service/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	uniqueViolationCode     = "23505"
	walletAddressConstraint = "accounts_wallet_address_key"
	referralCodeConstraint  = "accounts_referral_code_key"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txBeginner is satisfied by *pgxpool.Pool.
type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PostgresAccountRepository is the PostgreSQL implementation of AccountRepository.
type PostgresAccountRepository struct {
	beginner txBeginner
	db       querier
	inTx     bool
	logger   *zap.Logger
}

// NewPostgresAccountRepository creates a new instance of PostgresAccountRepository.
func NewPostgresAccountRepository(pool *pgxpool.Pool, logger *zap.Logger) *PostgresAccountRepository {
	return newPostgresAccountRepository(pool, pool, logger)
}

func newPostgresAccountRepository(db querier, beginner txBeginner, logger *zap.Logger) *PostgresAccountRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresAccountRepository{
		beginner: beginner,
		db:       db,
		logger:   logger.With(zap.String("component", "account_store")),
	}
}

const accountColumns = `id, email, wallet_address, referral_code, referred_by, balance, referrals, last_withdrawal_date, created_at`

func (r *PostgresAccountRepository) findOne(ctx context.Context, where string, arg string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + where + ` LIMIT 1`
	var account domain.Account
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&account.ID,
		&account.Email,
		&account.WalletAddress,
		&account.ReferralCode,
		&account.ReferredBy,
		&account.Balance,
		&account.Referrals,
		&account.LastWithdrawalDate,
		&account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if account.Referrals == nil {
		account.Referrals = []string{}
	}
	return &account, nil
}

// FindByID retrieves an account by its primary key.
func (r *PostgresAccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByWallet retrieves the account bound to a wallet address.
func (r *PostgresAccountRepository) FindByWallet(ctx context.Context, walletAddress string) (*domain.Account, error) {
	return r.findOne(ctx, "wallet_address = $1", walletAddress)
}

// FindByReferralCode retrieves the account owning a referral code.
func (r *PostgresAccountRepository) FindByReferralCode(ctx context.Context, code string) (*domain.Account, error) {
	return r.findOne(ctx, "referral_code = $1", code)
}

// Create inserts a new account record.
func (r *PostgresAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	referrals := account.Referrals
	if referrals == nil {
		referrals = []string{}
	}
	query := `
        INSERT INTO accounts (id, email, wallet_address, referral_code, referred_by, balance, referrals, last_withdrawal_date)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING created_at
    `
	err := r.db.QueryRow(ctx, query,
		account.ID,
		account.Email,
		account.WalletAddress,
		account.ReferralCode,
		account.ReferredBy,
		account.Balance,
		referrals,
		account.LastWithdrawalDate,
	).Scan(&account.CreatedAt)
	if err != nil {
		if mapped := classifyUniqueViolation(err); mapped != nil {
			r.logger.Warn("unique constraint violation creating account",
				zap.String("account_id", account.ID),
				zap.Error(err))
			return mapped
		}
		return fmt.Errorf("failed to insert account %s: %w", account.ID, err)
	}
	return nil
}

// IncrementBalance adds amount to the account balance in one statement.
func (r *PostgresAccountRepository) IncrementBalance(ctx context.Context, id string, amount int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET balance = balance + $1 WHERE id = $2`, amount, id)
	if err != nil {
		return fmt.Errorf("failed to increment balance for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// AppendReferral performs a set-union of memberID into the referrals array.
func (r *PostgresAccountRepository) AppendReferral(ctx context.Context, id string, memberID string) error {
	query := `
        UPDATE accounts
        SET referrals = CASE WHEN $2 = ANY(referrals) THEN referrals ELSE array_append(referrals, $2) END
        WHERE id = $1
    `
	tag, err := r.db.Exec(ctx, query, id, memberID)
	if err != nil {
		return fmt.Errorf("failed to append referral for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// CountAccounts returns the number of stored accounts.
func (r *PostgresAccountRepository) CountAccounts(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(1) FROM accounts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return count, nil
}

// WithinTx runs fn in a single database transaction. Calls made on an
// already transactional repository join the outer transaction.
func (r *PostgresAccountRepository) WithinTx(ctx context.Context, fn func(repo AccountRepository) error) error {
	if r.inTx {
		return fn(r)
	}
	tx, err := r.beginner.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	txRepo := &PostgresAccountRepository{beginner: r.beginner, db: tx, inTx: true, logger: r.logger}
	if err := fn(txRepo); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// classifyUniqueViolation maps unique-constraint errors to store sentinels.
func classifyUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return nil
	}
	switch pgErr.ConstraintName {
	case walletAddressConstraint:
		return ErrDuplicateWallet
	case referralCodeConstraint:
		return ErrDuplicateReferralCode
	default:
		return fmt.Errorf("unique constraint %s violated: %w", pgErr.ConstraintName, err)
	}
}
