package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

const defaultRetryBackoff = 50 * time.Millisecond

// Retrier gives a storage operation exactly one more attempt after a
// transient failure, then reports STORAGE_UNAVAILABLE.
type Retrier struct {
	backoff time.Duration
}

func NewRetrier(backoff time.Duration) Retrier {
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	return Retrier{backoff: backoff}
}

// Do runs fn, retrying once when it fails with a transient storage error.
func (r Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := r.backoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	policy := retry.WithMaxRetries(1, retry.NewConstant(backoff))
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		err := fn(ctx)
		if pkgerrors.IsTransientStorage(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if pkgerrors.IsTransientStorage(err) {
		return pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, op+" failed")
	}
	return err
}

// TxRunner is the transaction surface the domain services depend on.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RetryingTx replays a whole transaction once when it fails transiently
// before commit. fn must be safe to re-run: it should re-read whatever it
// mutates. A connection lost after fn returned is not replayed, since the
// commit may have landed.
type RetryingTx struct {
	runner  TxRunner
	retrier Retrier
}

func NewRetryingTx(runner TxRunner, retrier Retrier) *RetryingTx {
	return &RetryingTx{runner: runner, retrier: retrier}
}

func (r *RetryingTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.retrier.Do(ctx, "transaction", func(ctx context.Context) error {
		bodyDone := false
		err := r.runner.WithTx(ctx, func(tx *gorm.DB) error {
			if err := fn(tx); err != nil {
				return err
			}
			bodyDone = true
			return nil
		})
		if err != nil && bodyDone && commitOutcomeUnknown(err) {
			return pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, err, "transaction commit outcome unknown")
		}
		return err
	})
}

// commitOutcomeUnknown reports whether a transient err may have hidden a
// successful commit. A server-side rollback such as a serialization failure
// or deadlock is known not to have committed.
func commitOutcomeUnknown(err error) bool {
	if !pkgerrors.IsTransientStorage(err) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return true
}
