package bugtracker

import (
	"context"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/oops"
	"git.cdm.community/cdm/cdm/src/rerender"
	"git.cdm.community/cdm/cdm/src/users"
)

var RerenderHandlers = []rerender.Handler{
	{Kind: "ticket", Rerender: rerenderTickets},
	{Kind: "ticket_comment", Rerender: rerenderComments},
}

// Bug tracker text renders with its author's permissions. A pass looks each
// author up once.
type authorCache map[int]*models.User

func (c authorCache) get(ctx context.Context, conn db.ConnOrTx, id int) (*models.User, error) {
	if u, ok := c[id]; ok {
		return u, nil
	}
	u, err := users.FetchUser(ctx, conn, id)
	if err != nil {
		return nil, oops.New(err, "failed to fetch author %d", id)
	}
	c[id] = u
	return u, nil
}

func rerenderTickets(ctx context.Context, conn db.ConnOrTx) (rerender.Stats, error) {
	authors := authorCache{}
	return rerender.Rows(ctx, conn, "ticket", "bugtracker_issue_ticket",
		func(t *models.IssueTicket) int { return t.ID },
		func(ctx context.Context, conn db.ConnOrTx, t *models.IssueTicket) error {
			submitter, err := authors.get(ctx, conn, t.SubmitterID)
			if err != nil {
				return err
			}
			renderTicket(t, submitter)
			_, err = conn.Exec(ctx,
				`
				UPDATE bugtracker_issue_ticket
				SET description_html = $2, description_text = $3
				WHERE id = $1
				`,
				t.ID,
				t.DescriptionHtml,
				t.DescriptionText,
			)
			if err != nil {
				return oops.New(err, "failed to store re-rendered ticket")
			}
			return nil
		},
	)
}

func rerenderComments(ctx context.Context, conn db.ConnOrTx) (rerender.Stats, error) {
	authors := authorCache{}
	return rerender.Rows(ctx, conn, "ticket_comment", "bugtracker_issue_comment",
		func(c *models.IssueComment) int { return c.ID },
		func(ctx context.Context, conn db.ConnOrTx, c *models.IssueComment) error {
			author, err := authors.get(ctx, conn, c.AuthorID)
			if err != nil {
				return err
			}
			renderComment(c, author)
			_, err = conn.Exec(ctx,
				`
				UPDATE bugtracker_issue_comment
				SET body_html = $2, body_text = $3
				WHERE id = $1
				`,
				c.ID,
				c.BodyHtml,
				c.BodyText,
			)
			if err != nil {
				return oops.New(err, "failed to store re-rendered comment")
			}
			return nil
		},
	)
}
