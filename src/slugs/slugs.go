/*
Package slugs allocates URL-safe identifiers that are unique within a scope.

Allocation is optimistic: the allocator looks at which candidates are taken
and picks the first free one, but a concurrent writer can grab the same slug
before we insert. The unique constraint catches that, and Retry runs the whole
write again with a fresh allocation.
*/
package slugs

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MaxLength = 255

// Number of times a write is attempted before giving up on a slug.
const MaxAttempts = 3

var ErrSlugConflict = oops.NewCoded(oops.KindValidation, "slug_conflict", "could not find a free slug")

var ErrEmptySlug = oops.NewCoded(oops.KindValidation, "empty_slug", "a slug could not be derived from the given text")

var slugRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cdm_slug_allocation_retries_total",
	Help: "Writes that were retried because a concurrent writer took the allocated slug",
}, []string{"constraint"})

var reNonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// Slugify lowercases s and turns every run of non-word characters into a
// single hyphen.
func Slugify(s string) string {
	slug := strings.ToLower(strings.TrimSpace(s))
	slug = reNonWord.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	return truncate(slug, MaxLength)
}

// Candidate returns the n-th candidate for a base slug: the base itself for
// n=1, and base-n after that. The base is shortened when needed so the result
// still fits in MaxLength.
func Candidate(base string, n int) string {
	if n <= 1 {
		return truncate(base, MaxLength)
	}
	suffix := "-" + strconv.Itoa(n)
	return truncate(base, MaxLength-len(suffix)) + suffix
}

// FirstFree returns the first candidate for base that isn't in taken.
func FirstFree(base string, taken map[string]bool) string {
	for n := 1; ; n++ {
		c := Candidate(base, n)
		if !taken[c] {
			return c
		}
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return strings.TrimRight(s, "-")
}

/*
Where slugs must be unique. Table and Column are trusted identifiers from our
own code. ExcludeID leaves out the row being saved (0 for new rows). Where is
an optional extra condition using `$?` placeholders, like
"parent_id IS NOT DISTINCT FROM $?" for category siblings.
*/
type Scope struct {
	Table     string
	Column    string
	ExcludeID int
	Where     string
	WhereArgs []any
}

// How many candidates Allocate checks per query.
const candidateBatch = 50

/*
Allocate picks a slug for a row. If desired is empty it is derived from source.
The result is the first of desired, desired-2, desired-3, ... that no other row
in scope is using. Candidates are checked by exact value, since near
MaxLength they don't share a common prefix.
*/
func Allocate(ctx context.Context, conn db.ConnOrTx, scope Scope, desired string, source string) (string, error) {
	base := Slugify(desired)
	if desired == "" {
		base = Slugify(source)
	}
	if base == "" {
		return "", ErrEmptySlug
	}

	column := scope.Column
	if column == "" {
		column = "slug"
	}

	taken := map[string]bool{}
	checked := map[string]bool{}
	for n := 1; ; n += candidateBatch {
		batch := make([]string, candidateBatch)
		for i := range batch {
			batch[i] = Candidate(base, n+i)
			checked[batch[i]] = true
		}

		var qb db.QueryBuilder
		qb.Add("---- Find taken slugs")
		qb.Add("SELECT "+column+" FROM "+scope.Table)
		qb.Add("WHERE "+column+" = ANY($?)", batch)
		qb.AddIf(scope.ExcludeID != 0, "AND id <> $?", scope.ExcludeID)
		if scope.Where != "" {
			qb.Add("AND ("+scope.Where+")", scope.WhereArgs...)
		}

		takenList, err := db.QueryScalar[string](ctx, conn, qb.String(), qb.Args()...)
		if err != nil {
			return "", oops.New(err, "failed to fetch taken slugs from %s", scope.Table)
		}
		for _, s := range takenList {
			taken[s] = true
		}

		if slug := FirstFree(base, taken); checked[slug] {
			return slug, nil
		}
	}
}

/*
Retry runs a write that allocates a slug, retrying when another writer takes
the slug first (a unique violation on constraint). After MaxAttempts the
result is ErrSlugConflict.
*/
func Retry(ctx context.Context, constraint string, f func(attempt int) error) error {
	return db.Retry(ctx, db.RetryOptions{
		Attempts: MaxAttempts,
		ShouldRetry: func(err error) bool {
			return db.IsUniqueViolation(err, constraint)
		},
		Exhausted: ErrSlugConflict,
	}, func(attempt int) error {
		if attempt > 1 {
			slugRetries.WithLabelValues(constraint).Inc()
		}
		return f(attempt)
	})
}
