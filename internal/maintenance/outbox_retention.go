package maintenance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

const (
	defaultOutboxRetentionDays = 30
	defaultDLQRetentionDays    = 90
	defaultTerminalAttempts    = 10
)

type settledOutbox interface {
	DeleteSettledBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, terminalAttempts int) (int64, error)
}

type failedOutbox interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionParams struct {
	Logger           *logger.Logger
	DB               txRunner
	Outbox           settledOutbox
	DLQ              failedOutbox
	RetentionDays    int
	DLQRetentionDays int
	TerminalAttempts int
}

// OutboxRetention deletes outbox rows that no longer need relaying and DLQ
// rows past their own, longer, retention. Pending rows are never touched.
type OutboxRetention struct {
	logg             *logger.Logger
	db               txRunner
	outbox           settledOutbox
	dlq              failedOutbox
	retention        time.Duration
	dlqRetention     time.Duration
	terminalAttempts int
	now              func() time.Time
}

func NewOutboxRetention(params OutboxRetentionParams) (*OutboxRetention, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Outbox == nil || params.DLQ == nil {
		return nil, fmt.Errorf("outbox and dlq repositories required")
	}
	days := params.RetentionDays
	if days <= 0 {
		days = defaultOutboxRetentionDays
	}
	dlqDays := params.DLQRetentionDays
	if dlqDays <= 0 {
		dlqDays = defaultDLQRetentionDays
	}
	terminal := params.TerminalAttempts
	if terminal <= 0 {
		terminal = defaultTerminalAttempts
	}
	return &OutboxRetention{
		logg:             params.Logger,
		db:               params.DB,
		outbox:           params.Outbox,
		dlq:              params.DLQ,
		retention:        time.Duration(days) * 24 * time.Hour,
		dlqRetention:     time.Duration(dlqDays) * 24 * time.Hour,
		terminalAttempts: terminal,
		now:              time.Now,
	}, nil
}

func (j *OutboxRetention) Name() string { return "outbox-retention" }

// Run purges each table in its own transaction so a DLQ failure does not
// roll back the outbox purge.
func (j *OutboxRetention) Run(ctx context.Context) error {
	now := j.now().UTC()
	outboxCutoff := now.Add(-j.retention)
	dlqCutoff := now.Add(-j.dlqRetention)

	var outboxDeleted, dlqDeleted int64
	outboxErr := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.outbox.DeleteSettledBefore(ctx, tx, outboxCutoff, j.terminalAttempts)
		outboxDeleted = n
		return err
	})
	dlqErr := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.dlq.DeleteFailedBefore(ctx, tx, dlqCutoff)
		dlqDeleted = n
		return err
	})

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"outbox_cutoff":  outboxCutoff,
		"outbox_deleted": outboxDeleted,
		"dlq_cutoff":     dlqCutoff,
		"dlq_deleted":    dlqDeleted,
	})
	j.logg.Info(logCtx, "outbox retention sweep finished")

	if outboxErr != nil {
		outboxErr = fmt.Errorf("purge outbox: %w", outboxErr)
	}
	if dlqErr != nil {
		dlqErr = fmt.Errorf("purge dlq: %w", dlqErr)
	}
	return multierr.Combine(outboxErr, dlqErr)
}
