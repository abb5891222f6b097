/*
This package contains lowish-level APIs for making database queries to our Postgres database. It streamlines the process of mapping query results to Go types, while allowing you to write arbitrary SQL queries.

The primary functions are Query and QueryIterator. Writes that must be atomic go through WithTx, and writes that may lose a race (slug allocation, serialization failures) go through Retry.

Query syntax

This package allows a few small extensions to SQL syntax to streamline the interaction between Go and Postgres.

Arguments can be provided using placeholders like $1, $2, etc. All arguments will be safely escaped and mapped from their Go type to the correct Postgres type. (This is a direct proxy to pgx.)

	articleIDs, err := db.Query[int](ctx, conn,
		`
		SELECT id
		FROM blog_article
		WHERE
			slug = ANY($1)
			AND featured = $2
		`,
		[]string{"hello-world", "release-notes"},
		true,
	)

(This also demonstrates a useful tip: if you want to use a slice in your query, use Postgres arrays instead of IN.)

When querying individual fields, you can simply select the field like so:

	ids, err := db.QueryScalar[int](ctx, conn, `SELECT id FROM blog_article`)

To query multiple columns at once, you may use a struct type with `db:"column_name"` tags, and the special $columns placeholder:

	type Article struct {
		ID           int       `db:"id"`
		Slug         string    `db:"slug"`
		CreationDate time.Time `db:"creation_date"`
	}
	articles, err := db.Query[Article](ctx, conn, `SELECT $columns FROM ...`)
	// Resulting query:
	// SELECT id, slug, creation_date FROM ...

Sometimes a table name prefix is required on each column to disambiguate between column names, especially when performing a JOIN. In those situations, you can include the prefix in the $columns placeholder like $columns{prefix}:

	orphaned, err := db.Query[Article](ctx, conn, `
		SELECT $columns{article}
		FROM
			blog_article AS article
			LEFT JOIN blog_article_tags AS tags ON tags.article_id = article.id
		WHERE
			tags.article_id IS NULL
	`)
	// Resulting query:
	// SELECT article.id, article.slug, article.creation_date FROM ...

Struct fields that are themselves structs with a `db` tag are walked as well, with the tag used as the table alias of their columns:

	type ticketAndSubmitter struct {
		Ticket    models.IssueTicket `db:"ticket"`
		Submitter models.User        `db:"submitter"`
	}
	// SELECT $columns FROM ... -> SELECT ticket.id, ..., submitter.id, submitter.username, ...

Nullable columns map to pointer fields, which are left nil for NULL.
*/
package db
