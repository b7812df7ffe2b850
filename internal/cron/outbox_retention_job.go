package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

const OutboxRetentionJobName = "outbox_retention"

const (
	defaultOutboxRetentionDays = 30
	defaultDLQRetentionDays    = 90
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type deadLetterRetentionRepo interface {
	DeleteFailedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxRetentionRepo
	// DeadLetters is optional; when set, old dead letters are pruned in the
	// same transaction.
	DeadLetters  deadLetterRetentionRepo
	Retention    int
	DLQRetention int
	Now          func() time.Time
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	events       outboxRetentionRepo
	deadLetters  deadLetterRetentionRepo
	retention    int
	dlqRetention int
	now          func() time.Time
}

// NewOutboxRetentionJob prunes published outbox rows older than Retention
// days. Pending rows are kept regardless of age.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("outbox retention: logger required")
	case params.DB == nil:
		return nil, errors.New("outbox retention: db required")
	case params.Repository == nil:
		return nil, errors.New("outbox retention: repository required")
	}
	job := &outboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		events:       params.Repository,
		deadLetters:  params.DeadLetters,
		retention:    positiveOr(params.Retention, defaultOutboxRetentionDays),
		dlqRetention: positiveOr(params.DLQRetention, defaultDLQRetentionDays),
		now:          params.Now,
	}
	if job.now == nil {
		job.now = time.Now
	}
	return job, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func (j *outboxRetentionJob) Name() string { return OutboxRetentionJobName }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	today := j.now().UTC()
	eventCutoff := today.AddDate(0, 0, -j.retention)
	dlqCutoff := today.AddDate(0, 0, -j.dlqRetention)

	var events, deadLetters int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if events, err = j.events.DeletePublishedBefore(tx, eventCutoff); err != nil {
			return fmt.Errorf("prune events: %w", err)
		}
		if j.deadLetters == nil {
			return nil
		}
		if deadLetters, err = j.deadLetters.DeleteFailedBefore(tx, dlqCutoff); err != nil {
			return fmt.Errorf("prune dead letters: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"event_cutoff":         eventCutoff,
		"events_deleted":       events,
		"dead_letter_cutoff":   dlqCutoff,
		"dead_letters_deleted": deadLetters,
	}), "cron.outbox_pruned")
	return nil
}
