/*
Package bugtracker stores issue tickets and their comment threads.

Edits of a ticket's metadata (component, assignee, status, priority and
difficulty) are never silent: SaveTicket writes a comment recording who made
them, plus one change row per field, in the same transaction as the ticket
itself. Subscribers hear about new comments once they are committed.
*/
package bugtracker

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"git.cdm.community/cdm/cdm/src/antiflood"
	"git.cdm.community/cdm/cdm/src/changes"
	"git.cdm.community/cdm/cdm/src/config"
	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/notify"
	"git.cdm.community/cdm/cdm/src/oops"
	"git.cdm.community/cdm/cdm/src/parsing"
	"git.cdm.community/cdm/cdm/src/users"
	"github.com/jackc/pgx/v5"
)

const floodModule = "bugtracker"

var (
	ErrTicketNotFound    = oops.NewCoded(oops.KindNotFound, "ticket_not_found", "no such ticket")
	ErrCommentNotFound   = oops.NewCoded(oops.KindNotFound, "comment_not_found", "no such comment")
	ErrComponentNotFound = oops.NewCoded(oops.KindNotFound, "component_not_found", "no such component")
	ErrPermissionDenied  = oops.NewCoded(oops.KindPermissionDenied, "permission_denied", "you may not edit this")
	ErrUnknownSubmitter  = oops.NewCoded(oops.KindValidation, "unknown_submitter", "the submitter of the ticket does not exist")
)

// Whether user may edit the ticket's text and metadata.
func CanEditTicket(user *models.User, ticket *models.IssueTicket) bool {
	if user == nil {
		return false
	}
	return user.ID == ticket.SubmitterID || user.IsStaff || user.Has(models.PermEditAnyTicket)
}

type trackedField struct {
	Column string
	Name   string
}

// Ordered by Name, which is the order change rows are written in.
var trackedFields = []trackedField{
	{Column: "assigned_to_id", Name: "assigned_to"},
	{Column: "component_id", Name: "component"},
	{Column: "difficulty", Name: "difficulty"},
	{Column: "priority", Name: "priority"},
	{Column: "status", Name: "status"},
}

func trackedColumns() []string {
	columns := make([]string, len(trackedFields))
	for i, f := range trackedFields {
		columns[i] = f.Column
	}
	return columns
}

// Display names for the foreign keys among the tracked fields.
type changeNames struct {
	Components map[int]string // internal names
	Usernames  map[int]string
}

func (n changeNames) stringify(column string, v any) string {
	if v == nil {
		return ""
	}
	switch column {
	case "component_id":
		return n.Components[v.(int)]
	case "assigned_to_id":
		return n.Usernames[v.(int)]
	}
	return fmt.Sprint(v)
}

// The ids a column changed from and to, for name lookups.
func referencedIDs(diff changes.Diff, column string) []int {
	c, ok := diff[column]
	if !ok {
		return nil
	}
	var ids []int
	for _, v := range []any{c.Old, c.New} {
		if id, ok := v.(int); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

/*
Turns a ticket diff into the change rows to record, one per tracked field
that changed, ordered by field name. Foreign keys are recorded by name; an
unset or unknown reference is the empty string.
*/
func planTicketChanges(diff changes.Diff, names changeNames) []models.IssueChange {
	var planned []models.IssueChange
	for _, f := range trackedFields {
		c, ok := diff[f.Column]
		if !ok {
			continue
		}
		planned = append(planned, models.IssueChange{
			FieldName: f.Name,
			OldValue:  names.stringify(f.Column, c.Old),
			NewValue:  names.stringify(f.Column, c.New),
		})
	}
	return planned
}

func resolveChangeNames(ctx context.Context, conn db.ConnOrTx, diff changes.Diff) (changeNames, error) {
	names := changeNames{
		Components: map[int]string{},
		Usernames:  map[int]string{},
	}

	if ids := referencedIDs(diff, "component_id"); len(ids) > 0 {
		components, err := db.Query[models.IssueComponent](ctx, conn,
			`
			---- Fetch component names
			SELECT $columns
			FROM bugtracker_issue_component
			WHERE id = ANY($1)
			`,
			ids,
		)
		if err != nil {
			return names, oops.New(err, "failed to fetch component names")
		}
		for _, c := range components {
			names.Components[c.ID] = c.InternalName
		}
	}

	if ids := referencedIDs(diff, "assigned_to_id"); len(ids) > 0 {
		usernames, err := users.FetchUsernames(ctx, conn, ids)
		if err != nil {
			return names, err
		}
		names.Usernames = usernames
	}

	return names, nil
}

func renderTicket(t *models.IssueTicket, submitter *models.User) {
	desc := parsing.Render(t.Description, parsing.TicketOptions(submitter))
	t.DescriptionHtml = desc.HTML
	t.DescriptionText = desc.Text
}

func fetchSubmitter(ctx context.Context, conn db.ConnOrTx, id int) (*models.User, error) {
	u, err := users.FetchUser(ctx, conn, id)
	if errors.Is(err, db.NotFound) {
		return nil, ErrUnknownSubmitter
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch submitter")
	}
	return u, nil
}

type CreateTicketOptions struct {
	SubmitterIP *netip.Prefix
	// Defaults to time.Now().
	Now time.Time
}

/*
Files a new ticket for submitter. Ticket creation counts as posting for
anti-flood purposes. The submitter is subscribed if their profile says so,
and users who asked to hear about every new issue are notified.
*/
func CreateTicket(
	ctx context.Context,
	conn db.ConnOrTx,
	n notify.Notifier,
	submitter *models.User,
	ticket models.IssueTicket,
	opts CreateTicketOptions,
) (*models.IssueTicket, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	ticket.SubmitterID = submitter.ID
	ticket.SubmitterIPAddress = opts.SubmitterIP
	if err := models.Validate(ticket); err != nil {
		return nil, err
	}
	renderTicket(&ticket, submitter)

	var saved *models.IssueTicket
	err := db.Retry(ctx, db.RetryOptions{}, func(attempt int) error {
		return db.WithTx(ctx, conn, func(tx pgx.Tx) error {
			profile, err := lockProfile(ctx, tx, submitter.ID)
			if err != nil {
				return err
			}
			if err := antiflood.Check(floodModule, profile.LastCommentDate, config.Config.BugTracker.CommentWindow(), now); err != nil {
				return err
			}

			saved, err = insertTicket(ctx, tx, &ticket, now)
			if err != nil {
				return err
			}

			profile.LastCommentDate = &now
			if err := touchProfile(ctx, tx, profile); err != nil {
				return err
			}
			if profile.NotifyOfReplyByDefault {
				if err := Subscribe(ctx, tx, saved.ID, submitter.ID); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	notifyNewIssue(ctx, conn, n, saved, submitter)
	return saved, nil
}

type ChangeOptions struct {
	// The comment that goes with a metadata change. May be empty.
	Comment string
	// Who made the change. Defaults to the submitter.
	Author   *models.User
	AuthorIP *netip.Prefix
	// Defaults to time.Now().
	Now time.Time
}

/*
Saves a ticket. A new ticket is simply inserted. For an existing one, if any
tracked field changed, a comment by the change author is added along with
one change row per field, and subscribers are notified once it's all
committed. The submission date never changes.

The returned comment is nil when no tracked field changed.
*/
func SaveTicket(
	ctx context.Context,
	conn db.ConnOrTx,
	n notify.Notifier,
	edit changes.Edit[models.IssueTicket],
	opts ChangeOptions,
) (*models.IssueTicket, *models.IssueComment, error) {
	if err := models.Validate(edit.Current); err != nil {
		return nil, nil, err
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	submitter, err := fetchSubmitter(ctx, conn, edit.Current.SubmitterID)
	if err != nil {
		return nil, nil, err
	}
	author := opts.Author
	if author == nil {
		author = submitter
	}

	ticket := edit.Current
	renderTicket(&ticket, submitter)

	var saved *models.IssueTicket
	var comment *models.IssueComment
	err = db.Retry(ctx, db.RetryOptions{}, func(attempt int) error {
		saved, comment = nil, nil
		return db.WithTx(ctx, conn, func(tx pgx.Tx) error {
			var err error
			if edit.IsNew() {
				saved, err = insertTicket(ctx, tx, &ticket, now)
				return err
			}

			// Old values come from the row as stored, not as loaded, so
			// concurrent edits each record what they replaced.
			stored, err := lockTicket(ctx, tx, edit.Original.ID)
			if err != nil {
				return err
			}
			ticket.ID = stored.ID
			ticket.SubmissionDate = stored.SubmissionDate
			diff := changes.Compute(*stored, ticket).Only(trackedColumns()...)

			names, err := resolveChangeNames(ctx, tx, diff)
			if err != nil {
				return err
			}

			saved, err = updateTicket(ctx, tx, &ticket, now)
			if err != nil {
				return err
			}

			planned := planTicketChanges(diff, names)
			if len(planned) == 0 {
				return nil
			}

			comment, err = insertComment(ctx, tx, &models.IssueComment{
				IssueID:         saved.ID,
				AuthorID:        author.ID,
				AuthorIPAddress: opts.AuthorIP,
				Body:            opts.Comment,
			}, author, now)
			if err != nil {
				return err
			}
			return insertChanges(ctx, tx, comment, planned)
		})
	})
	if err != nil {
		return nil, nil, err
	}

	if comment != nil {
		notifyNewComment(ctx, conn, n, saved, comment, author)
	}
	return saved, comment, nil
}

func insertTicket(ctx context.Context, tx pgx.Tx, t *models.IssueTicket, now time.Time) (*models.IssueTicket, error) {
	saved, err := db.QueryOne[models.IssueTicket](ctx, tx,
		`
		INSERT INTO bugtracker_issue_ticket (
			title, description, description_html, description_text,
			component_id, submitter_id, assigned_to_id, submitter_ip_address,
			status, priority, difficulty,
			submission_date, last_modification_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING $columns
		`,
		t.Title, t.Description, t.DescriptionHtml, t.DescriptionText,
		t.ComponentID, t.SubmitterID, t.AssignedToID, t.SubmitterIPAddress,
		t.Status, t.Priority, t.Difficulty,
		now,
	)
	if err != nil {
		return nil, oops.New(err, "failed to insert ticket")
	}
	return saved, nil
}

func updateTicket(ctx context.Context, tx pgx.Tx, t *models.IssueTicket, now time.Time) (*models.IssueTicket, error) {
	saved, err := db.QueryOne[models.IssueTicket](ctx, tx,
		`
		UPDATE bugtracker_issue_ticket
		SET
			title = $2, description = $3, description_html = $4, description_text = $5,
			component_id = $6, assigned_to_id = $7,
			status = $8, priority = $9, difficulty = $10,
			last_modification_date = $11
		WHERE id = $1
		RETURNING $columns
		`,
		t.ID,
		t.Title, t.Description, t.DescriptionHtml, t.DescriptionText,
		t.ComponentID, t.AssignedToID,
		t.Status, t.Priority, t.Difficulty,
		now,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrTicketNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to update ticket %d", t.ID)
	}
	return saved, nil
}

func insertChanges(ctx context.Context, tx pgx.Tx, comment *models.IssueComment, planned []models.IssueChange) error {
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"bugtracker_issue_change"},
		[]string{"issue_id", "comment_id", "change_date", "field_name", "old_value", "new_value"},
		pgx.CopyFromSlice(len(planned), func(i int) ([]any, error) {
			c := planned[i]
			return []any{comment.IssueID, comment.ID, comment.PubDate, c.FieldName, c.OldValue, c.NewValue}, nil
		}),
	)
	if err != nil {
		return oops.New(err, "failed to record changes of issue %d", comment.IssueID)
	}
	return nil
}

func lockTicket(ctx context.Context, tx pgx.Tx, id int) (*models.IssueTicket, error) {
	t, err := db.QueryOne[models.IssueTicket](ctx, tx,
		`
		---- Lock ticket
		SELECT $columns
		FROM bugtracker_issue_ticket
		WHERE id = $1
		FOR UPDATE
		`,
		id,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrTicketNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to lock ticket %d", id)
	}
	return t, nil
}

func FetchTicket(ctx context.Context, conn db.ConnOrTx, id int) (*models.IssueTicket, error) {
	t, err := db.QueryOne[models.IssueTicket](ctx, conn,
		`
		---- Fetch ticket
		SELECT $columns
		FROM bugtracker_issue_ticket
		WHERE id = $1
		`,
		id,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrTicketNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch ticket %d", id)
	}
	return t, nil
}

type TicketsQuery struct {
	Statuses     []models.TicketStatus // if empty, all statuses
	ComponentID  *int
	AssignedToID *int
	SubmitterID  *int

	Limit, Offset int // if empty, no pagination
}

func (q TicketsQuery) where(qb *db.QueryBuilder) {
	qb.Add(`WHERE TRUE`)
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		qb.Add(`AND status = ANY($?)`, statuses)
	}
	qb.AddIf(q.ComponentID != nil, `AND component_id = $?`, q.ComponentID)
	qb.AddIf(q.AssignedToID != nil, `AND assigned_to_id = $?`, q.AssignedToID)
	qb.AddIf(q.SubmitterID != nil, `AND submitter_id = $?`, q.SubmitterID)
}

// Most recently modified first.
func FetchTickets(ctx context.Context, conn db.ConnOrTx, q TicketsQuery) ([]*models.IssueTicket, error) {
	var qb db.QueryBuilder
	qb.Add(`
		SELECT $columns
		FROM bugtracker_issue_ticket
	`)
	q.where(&qb)
	qb.Add(`ORDER BY last_modification_date DESC, id DESC`)
	if q.Limit > 0 {
		qb.Add(`LIMIT $? OFFSET $?`, q.Limit, q.Offset)
	}

	tickets, err := db.Query[models.IssueTicket](ctx, conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to fetch tickets")
	}
	return tickets, nil
}

func CountTickets(ctx context.Context, conn db.ConnOrTx, q TicketsQuery) (int, error) {
	var qb db.QueryBuilder
	qb.Add(`
		SELECT COUNT(*)
		FROM bugtracker_issue_ticket
	`)
	q.where(&qb)

	count, err := db.QueryOneScalar[int](ctx, conn, qb.String(), qb.Args()...)
	if err != nil {
		return 0, oops.New(err, "failed to count tickets")
	}
	return count, nil
}

// Open tickets are the ones whose status doesn't resolve them.
func UnresolvedStatuses() []models.TicketStatus {
	var res []models.TicketStatus
	for _, s := range []models.TicketStatus{
		models.TicketStatusOpen,
		models.TicketStatusNeedDetails,
		models.TicketStatusConfirmed,
		models.TicketStatusWorkingOn,
		models.TicketStatusDeferred,
		models.TicketStatusDuplicate,
		models.TicketStatusWontFix,
		models.TicketStatusClosed,
		models.TicketStatusInvalid,
		models.TicketStatusWorksForMe,
	} {
		if !s.IsResolved() {
			res = append(res, s)
		}
	}
	return res
}

func SaveComponent(ctx context.Context, conn db.ConnOrTx, edit changes.Edit[models.IssueComponent]) (*models.IssueComponent, error) {
	if err := models.Validate(edit.Current); err != nil {
		return nil, err
	}
	c := edit.Current

	if edit.IsNew() {
		saved, err := db.QueryOne[models.IssueComponent](ctx, conn,
			`
			INSERT INTO bugtracker_issue_component (internal_name, name, description)
			VALUES ($1, $2, $3)
			RETURNING $columns
			`,
			c.InternalName, c.Name, c.Description,
		)
		if err != nil {
			return nil, oops.New(err, "failed to insert component")
		}
		return saved, nil
	}

	saved, err := db.QueryOne[models.IssueComponent](ctx, conn,
		`
		UPDATE bugtracker_issue_component
		SET internal_name = $2, name = $3, description = $4
		WHERE id = $1
		RETURNING $columns
		`,
		edit.Original.ID, c.InternalName, c.Name, c.Description,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrComponentNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to update component %d", edit.Original.ID)
	}
	return saved, nil
}

func FetchComponents(ctx context.Context, conn db.ConnOrTx) ([]*models.IssueComponent, error) {
	components, err := db.Query[models.IssueComponent](ctx, conn,
		`
		---- Fetch components
		SELECT $columns
		FROM bugtracker_issue_component
		ORDER BY name
		`,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch components")
	}
	return components, nil
}
