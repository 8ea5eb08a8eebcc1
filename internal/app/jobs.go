/**
 * @description
 * Scheduled job implementations for the referral-service.
 */
package app

import (
	"context"
	"time"

	"github.com/algoadopt/referral-service/internal/domain"
	"go.uber.org/zap"
)

const statsJobTimeout = 30 * time.Second

// MemberStatsSource is the read side the stats job needs.
type MemberStatsSource interface {
	CountMembers(ctx context.Context) (int64, error)
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	source           MemberStatsSource
	genesisAccountID string
	logger           *zap.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(source MemberStatsSource, genesisAccountID string, logger *zap.Logger) *Jobs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Jobs{
		source:           source,
		genesisAccountID: genesisAccountID,
		logger:           logger.With(zap.String("component", "jobs")),
	}
}

// ReportMemberStats logs total membership and the genesis account totals.
func (j *Jobs) ReportMemberStats() {
	ctx, cancel := context.WithTimeout(context.Background(), statsJobTimeout)
	defer cancel()

	total, err := j.source.CountMembers(ctx)
	if err != nil {
		j.logger.Error("failed to count members", zap.Error(err))
		return
	}

	genesis, err := j.source.GetAccount(ctx, j.genesisAccountID)
	if err != nil {
		j.logger.Error("failed to load genesis account",
			zap.String("genesis_account_id", j.genesisAccountID),
			zap.Int64("total_members", total),
			zap.Error(err))
		return
	}

	j.logger.Info("member stats",
		zap.Int64("total_members", total),
		zap.Int64("genesis_balance", genesis.Balance),
		zap.Int("genesis_referrals", len(genesis.Referrals)))
}
