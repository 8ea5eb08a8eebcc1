package store

import (
	"context"
	"fmt"

	"github.com/algoadopt/referral-service/internal/domain"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL,
    wallet_address TEXT NOT NULL,
    referral_code TEXT NOT NULL,
    referred_by TEXT NOT NULL DEFAULT 'GENESIS',
    balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    referrals TEXT[] NOT NULL DEFAULT '{}',
    last_withdrawal_date TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT accounts_wallet_address_key UNIQUE (wallet_address),
    CONSTRAINT accounts_referral_code_key UNIQUE (referral_code)
);
CREATE TABLE IF NOT EXISTS identities (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT identities_email_key UNIQUE (email)
);
`

// EnsureSchema creates the service tables when they do not exist yet.
func (r *PostgresAccountRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed ensuring schema: %w", err)
	}
	return nil
}

// EnsureGenesisAccount inserts the root account that receives the platform-wide
// signup reward. Existing rows are left untouched.
func (r *PostgresAccountRepository) EnsureGenesisAccount(ctx context.Context, id, walletAddress string) error {
	query := `
        INSERT INTO accounts (id, email, wallet_address, referral_code, referred_by, balance)
        VALUES ($1, '', $2, $1, $3, 0)
        ON CONFLICT (id) DO NOTHING
    `
	if _, err := r.db.Exec(ctx, query, id, walletAddress, domain.GenesisReferralCode); err != nil {
		return fmt.Errorf("failed ensuring genesis account %s: %w", id, err)
	}
	return nil
}
