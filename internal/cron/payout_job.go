package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketledger-backend/internal/payouts"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

// PayoutAggregationJobName is the registry and metrics name of the monthly run.
const PayoutAggregationJobName = "payout_aggregation"

type monthlyRunner interface {
	RunMonthly(ctx context.Context, now time.Time) (*payouts.RunSummary, error)
}

type PayoutAggregationJobParams struct {
	Logger  *logger.Logger
	Payouts monthlyRunner
	Now     func() time.Time
}

type payoutAggregationJob struct {
	logg    *logger.Logger
	payouts monthlyRunner
	now     func() time.Time
}

// NewPayoutAggregationJob settles the previous calendar month on every run.
// Vendors already paid out for that month are skipped, so running the job
// every cycle is safe.
func NewPayoutAggregationJob(params PayoutAggregationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &payoutAggregationJob{logg: params.Logger, payouts: params.Payouts, now: now}, nil
}

func (j *payoutAggregationJob) Name() string { return PayoutAggregationJobName }

func (j *payoutAggregationJob) Run(ctx context.Context) error {
	summary, err := j.payouts.RunMonthly(ctx, j.now())
	if summary != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"period_start": summary.PeriodStart,
			"period_end":   summary.PeriodEnd,
			"created":      len(summary.Created),
			"skipped":      len(summary.Skipped),
			"failed":       len(summary.Failed),
		})
		j.logg.Info(logCtx, "payout aggregation finished")
	}
	return err
}
