package db

import (
	"context"
	"errors"
	"testing"

	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestPgErrorClassification(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "blog_article_slug_key"}
	wrapped := oops.New(unique, "failed to insert article")

	assert.True(t, IsUniqueViolation(wrapped, ""))
	assert.True(t, IsUniqueViolation(wrapped, "blog_article_slug_key"))
	assert.False(t, IsUniqueViolation(wrapped, "blog_tag_slug_key"))
	assert.False(t, IsSerializationFailure(wrapped))

	assert.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, IsSerializationFailure(errors.New("40001")))
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	serialization := &pgconn.PgError{Code: "40001"}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, RetryOptions{Attempts: 3}, func(attempt int) error {
			calls++
			if attempt < 3 {
				return serialization
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		boom := errors.New("boom")
		calls := 0
		err := Retry(ctx, RetryOptions{Attempts: 3}, func(attempt int) error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up with the exhausted error", func(t *testing.T) {
		conflict := oops.NewCoded(oops.KindValidation, "slug_conflict", "")
		calls := 0
		err := Retry(ctx, RetryOptions{
			Attempts:    3,
			ShouldRetry: func(err error) bool { return IsUniqueViolation(err, "") },
			Exhausted:   conflict,
		}, func(attempt int) error {
			calls++
			return &pgconn.PgError{Code: "23505"}
		})
		assert.Equal(t, 3, calls)
		assert.ErrorIs(t, err, conflict)
		assert.Equal(t, "slug_conflict", oops.CodeOf(err))
	})

	t.Run("default exhausted error is transient", func(t *testing.T) {
		err := Retry(ctx, RetryOptions{Attempts: 2}, func(attempt int) error {
			return serialization
		})
		assert.ErrorIs(t, err, ErrTransient)
		assert.Equal(t, oops.KindTransient, oops.KindOf(err))
	})
}
