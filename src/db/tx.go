package db

import (
	"context"
	"errors"
	"time"

	"git.cdm.community/cdm/cdm/src/logging"
	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jpillora/backoff"
)

// Postgres error codes we react to.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

/*
Runs f inside a transaction on conn. The transaction is committed if f returns
nil and rolled back otherwise. If conn is already a transaction, this creates a
savepoint, so a failure in f only undoes f's own work.
*/
func WithTx(ctx context.Context, conn ConnOrTx, f func(tx pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return oops.New(err, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	if err := f(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.New(err, "failed to commit transaction")
	}
	return nil
}

// Returns true if err is a Postgres serialization failure or deadlock, which
// can be resolved by running the whole transaction again.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}

// Returns true if err is a unique violation. If constraint is not empty, the
// violation must also be on that constraint (or index).
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return constraint == "" || pgErr.ConstraintName == constraint
	}
	return false
}

var ErrTransient = oops.NewCoded(oops.KindTransient, "write_failed", "the database was too busy to complete the write")

type RetryOptions struct {
	// Total number of attempts, including the first.
	Attempts int
	// Extra errors worth retrying, beyond serialization failures.
	ShouldRetry func(err error) bool
	// Returned, wrapping the last error, when every attempt failed with a
	// retryable error. Defaults to ErrTransient.
	Exhausted error
}

/*
Runs f until it succeeds, fails with an error that isn't worth retrying, or
runs out of attempts. Serialization failures and deadlocks are always retried;
opts.ShouldRetry can add more (like a unique violation on a slug that was
allocated optimistically). Attempts are spaced out with jittered backoff.

f should do all of its work in its own transaction so that a retry starts from
a clean slate.
*/
func Retry(ctx context.Context, opts RetryOptions, f func(attempt int) error) error {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 3
	}
	exhausted := opts.Exhausted
	if exhausted == nil {
		exhausted = ErrTransient
	}

	b := &backoff.Backoff{
		Min:    10 * time.Millisecond,
		Max:    500 * time.Millisecond,
		Factor: 2,
		Jitter: true,
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = f(attempt)
		if err == nil {
			return nil
		}

		retryable := IsSerializationFailure(err) || (opts.ShouldRetry != nil && opts.ShouldRetry(err))
		if !retryable {
			return err
		}
		if attempt == attempts {
			break
		}

		wait := b.Duration()
		logging.ExtractLogger(ctx).Debug().
			Err(err).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("retrying database write")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return oops.New(errors.Join(exhausted, err), "gave up after %d attempts", attempts)
}
