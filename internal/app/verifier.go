package app

import (
	"context"
	"strings"

	"github.com/algoadopt/referral-service/internal/domain"
	"go.uber.org/zap"
)

// LedgerOracle looks up confirmed on-chain transactions.
type LedgerOracle interface {
	LookupTransaction(ctx context.Context, txID string) (*domain.LedgerTransaction, error)
}

// TransactionVerifier checks a claimed fee payment against the ledger oracle.
type TransactionVerifier struct {
	oracle    LedgerOracle
	recipient string
	amount    uint64
	logger    *zap.Logger
}

func NewTransactionVerifier(oracle LedgerOracle, recipient string, amount uint64, logger *zap.Logger) *TransactionVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransactionVerifier{
		oracle:    oracle,
		recipient: recipient,
		amount:    amount,
		logger:    logger.With(zap.String("component", "transaction_verifier")),
	}
}

// VerifyPayment reports whether txID is a payment of the expected amount from
// walletAddress to the fee recipient. Lookup failures verify as false.
func (v *TransactionVerifier) VerifyPayment(ctx context.Context, walletAddress, txID string) bool {
	walletAddress = strings.TrimSpace(walletAddress)
	txID = strings.TrimSpace(txID)
	if walletAddress == "" || txID == "" {
		return false
	}

	tx, err := v.oracle.LookupTransaction(ctx, txID)
	if err != nil {
		v.logger.Warn("fee transaction lookup failed",
			zap.String("tx_id", txID),
			zap.Error(err))
		return false
	}
	if tx == nil {
		return false
	}

	verified := tx.Sender == walletAddress &&
		tx.Receiver == v.recipient &&
		tx.Amount == v.amount
	if !verified {
		v.logger.Info("fee transaction mismatch",
			zap.String("tx_id", txID),
			zap.String("sender", tx.Sender),
			zap.String("receiver", tx.Receiver),
			zap.Uint64("amount", tx.Amount))
	}
	return verified
}
