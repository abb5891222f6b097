// Package users looks up accounts. Accounts themselves are managed elsewhere;
// the modules here only reference them by id or username.
package users

import (
	"context"
	"strings"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/oops"
)

type UsersQuery struct {
	UserIDs   []int    // if empty, all users
	Usernames []string // if empty, all users; compared case-insensitively

	ActiveOnly bool
}

func FetchUsers(ctx context.Context, conn db.ConnOrTx, q UsersQuery) ([]*models.User, error) {
	usernames := make([]string, len(q.Usernames))
	for i, name := range q.Usernames {
		usernames[i] = strings.ToLower(name)
	}

	var qb db.QueryBuilder
	qb.Add(`
		SELECT $columns
		FROM auth_user
		WHERE
			TRUE
	`)
	if len(q.UserIDs) > 0 {
		qb.Add(`AND id = ANY($?)`, q.UserIDs)
	}
	if len(usernames) > 0 {
		qb.Add(`AND LOWER(username) = ANY($?)`, usernames)
	}
	if q.ActiveOnly {
		qb.Add(`AND is_active`)
	}
	qb.Add(`ORDER BY id`)

	result, err := db.Query[models.User](ctx, conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to fetch users")
	}
	return result, nil
}

/*
Fetches a single user by id. A wrapper around FetchUsers.

Returns db.NotFound if no result is found.
*/
func FetchUser(ctx context.Context, conn db.ConnOrTx, userID int) (*models.User, error) {
	res, err := FetchUsers(ctx, conn, UsersQuery{UserIDs: []int{userID}})
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, db.NotFound
	}
	return res[0], nil
}

// Returns db.NotFound if no result is found.
func FetchUserByUsername(ctx context.Context, conn db.ConnOrTx, username string) (*models.User, error) {
	res, err := FetchUsers(ctx, conn, UsersQuery{Usernames: []string{username}})
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, db.NotFound
	}
	return res[0], nil
}

// The usernames of the given users, keyed by id. Unknown ids are left out.
func FetchUsernames(ctx context.Context, conn db.ConnOrTx, ids []int) (map[int]string, error) {
	if len(ids) == 0 {
		return map[int]string{}, nil
	}
	res, err := FetchUsers(ctx, conn, UsersQuery{UserIDs: ids})
	if err != nil {
		return nil, err
	}
	names := make(map[int]string, len(res))
	for _, u := range res {
		names[u.ID] = u.Username
	}
	return names, nil
}
