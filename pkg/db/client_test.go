package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := NewFromGorm(db)

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestPing(t *testing.T) {
	client := NewFromGorm(newTestDB(t))
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
	if client.Driver() != "sqlite" {
		t.Fatalf("unexpected driver %q", client.Driver())
	}
}

func TestRetrierRetriesTransientOnce(t *testing.T) {
	r := NewRetrier(1)
	calls := 0
	err := r.Do(context.Background(), "load", func(context.Context) error {
		calls++
		return &pgconn.PgError{Code: "08006"}
	})
	if calls != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", calls)
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
}

func TestRetrierRecoversOnSecondAttempt(t *testing.T) {
	r := NewRetrier(1)
	calls := 0
	err := r.Do(context.Background(), "load", func(context.Context) error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestRetrierDoesNotRetryDomainErrors(t *testing.T) {
	r := NewRetrier(1)
	calls := 0
	domainErr := pkgerrors.New(pkgerrors.CodeConcurrentModification, "stale")
	err := r.Do(context.Background(), "save", func(context.Context) error {
		calls++
		return domainErr
	})
	if calls != 1 {
		t.Fatalf("domain errors must not be retried, got %d attempts", calls)
	}
	if !errors.Is(err, domainErr) {
		t.Fatalf("expected domain error passthrough, got %v", err)
	}
}

type flakyRunner struct {
	failures int
	calls    int
}

func (f *flakyRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	f.calls++
	if f.calls <= f.failures {
		return &pgconn.PgError{Code: "40P01"}
	}
	return fn(nil)
}

func TestRetryingTxReplaysTransaction(t *testing.T) {
	runner := &flakyRunner{failures: 1}
	tx := NewRetryingTx(runner, NewRetrier(1))
	ran := 0
	if err := tx.WithTx(context.Background(), func(*gorm.DB) error {
		ran++
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.calls != 2 || ran != 1 {
		t.Fatalf("expected one replay, calls=%d ran=%d", runner.calls, ran)
	}
}

type lostCommitRunner struct {
	commitErr error
	calls     int
}

func (l *lostCommitRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	l.calls++
	if err := fn(nil); err != nil {
		return err
	}
	return l.commitErr
}

func TestRetryingTxDoesNotReplayAfterLostCommit(t *testing.T) {
	runner := &lostCommitRunner{commitErr: &pgconn.PgError{Code: "08006"}}
	tx := NewRetryingTx(runner, NewRetrier(1))
	ran := 0
	err := tx.WithTx(context.Background(), func(*gorm.DB) error {
		ran++
		return nil
	})
	if runner.calls != 1 || ran != 1 {
		t.Fatalf("lost commit must not be replayed, calls=%d ran=%d", runner.calls, ran)
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
}

func TestRetryingTxReplaysServerRollbackAtCommit(t *testing.T) {
	runner := &lostCommitRunner{commitErr: &pgconn.PgError{Code: "40001"}}
	tx := NewRetryingTx(runner, NewRetrier(1))
	err := tx.WithTx(context.Background(), func(*gorm.DB) error { return nil })
	if runner.calls != 2 {
		t.Fatalf("serialization failure at commit should be replayed, calls=%d", runner.calls)
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeStorageUnavailable) {
		t.Fatalf("expected storage unavailable after retries, got %v", err)
	}
}

func TestClassifyReadError(t *testing.T) {
	if err := ClassifyReadError(gorm.ErrRecordNotFound, "return request"); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	raw := errors.New("boom")
	if err := ClassifyReadError(raw, "order"); err != raw {
		t.Fatalf("expected passthrough, got %v", err)
	}
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := NewFromGorm(db)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&testModel{Name: "doomed"}).Error; err != nil {
				return err
			}
			panic("boom")
		})
	}()

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected panic to roll back, got %d rows", count)
	}
}

func TestDialectorFor(t *testing.T) {
	if driver, _ := dialectorFor(config.DBConfig{Driver: " SQLite ", DSN: "file::memory:"}); driver != DriverSQLite {
		t.Fatalf("expected sqlite, got %s", driver)
	}
	if driver, _ := dialectorFor(config.DBConfig{DSN: "postgres://localhost/db"}); driver != DriverPostgres {
		t.Fatalf("expected postgres, got %s", driver)
	}
}
