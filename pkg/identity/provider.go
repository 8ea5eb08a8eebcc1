/**
 * @description
 * Email/password identities backed by PostgreSQL. The provider owns account
 * id assignment: every new identity gets a fresh UUID, which the reward ledger
 * then uses as the account id and default referral code.
 *
 * @dependencies
 * - golang.org/x/crypto/bcrypt: password hashing.
 * - github.com/google/uuid: identity ids.
 * - github.com/jackc/pgx/v5: persistence.
 */
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
)

const minPasswordLength = 6

// compared against when the email is unknown so both paths cost one bcrypt round.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("referral-service-dummy"), bcrypt.DefaultCost)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresProvider stores identities in the identities table.
type PostgresProvider struct {
	db   querier
	cost int
}

// NewPostgresProvider creates a provider on top of a pgx pool or transaction.
func NewPostgresProvider(db querier) *PostgresProvider {
	return &PostgresProvider{db: db, cost: bcrypt.DefaultCost}
}

// CreateIdentity registers an email/password pair and returns the new id.
func (p *PostgresProvider) CreateIdentity(ctx context.Context, email, password string) (string, error) {
	normalized := NormalizeEmail(email)
	if len(password) < minPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	id := uuid.NewString()
	_, err = p.db.Exec(ctx,
		`INSERT INTO identities (id, email, password_hash) VALUES ($1, $2, $3)`,
		id, normalized, string(hash),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", ErrEmailTaken
		}
		return "", fmt.Errorf("failed to insert identity: %w", err)
	}
	return id, nil
}

// VerifyPassword checks the password for email and returns the identity id.
func (p *PostgresProvider) VerifyPassword(ctx context.Context, email, password string) (string, error) {
	var id, hash string
	err := p.db.QueryRow(ctx,
		`SELECT id, password_hash FROM identities WHERE email = $1`,
		NormalizeEmail(email),
	).Scan(&id, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to load identity: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return id, nil
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
