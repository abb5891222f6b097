package bugtracker

import (
	"context"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/logging"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/notify"
	"git.cdm.community/cdm/cdm/src/oops"
	"git.cdm.community/cdm/cdm/src/urls"
)

const (
	tmplNewIssueTitle   = "bugtracker/new_issue_title.txt"
	tmplNewIssueText    = "bugtracker/new_issue.txt"
	tmplNewIssueHTML    = "bugtracker/new_issue.html"
	tmplNewCommentTitle = "bugtracker/new_comment_title.txt"
	tmplNewCommentText  = "bugtracker/new_comment.txt"
	tmplNewCommentHTML  = "bugtracker/new_comment.html"
)

func init() {
	notify.RegisterTemplate(tmplNewIssueTitle, `[#{{ .Ticket.ID }}] New issue: {{ .Ticket.Title | trunc 80 }}`)
	notify.RegisterTemplate(tmplNewIssueText, `Hello {{ .Recipient.Username }},

{{ .Submitter.Username }} filed a new issue, "{{ .Ticket.Title }}":

{{ .Ticket.DescriptionText | trunc 2000 }}

{{ .Url }}
`)
	notify.RegisterTemplate(tmplNewIssueHTML, `<p>Hello {{ .Recipient.Username }},</p>
<p>{{ .Submitter.Username }} filed a new issue, <a href="{{ .Url }}">{{ .Ticket.Title }}</a>.</p>
`)

	notify.RegisterTemplate(tmplNewCommentTitle, `[#{{ .Ticket.ID }}] {{ .Ticket.Title | trunc 80 }}`)
	notify.RegisterTemplate(tmplNewCommentText, `Hello {{ .Recipient.Username }},

{{ .Author.Username }} replied to "{{ .Ticket.Title }}":

{{ default "(no comment, metadata changed)" .Comment.BodyText | trunc 2000 }}

{{ .Url }}
`)
	notify.RegisterTemplate(tmplNewCommentHTML, `<p>Hello {{ .Recipient.Username }},</p>
<p>{{ .Author.Username }} replied to <a href="{{ .Url }}">{{ .Ticket.Title }}</a>.</p>
`)
}

// Users who want to hear about every new issue, except the submitter.
func fetchNewIssueWatchers(ctx context.Context, conn db.ConnOrTx, submitterID int) ([]*models.User, error) {
	watchers, err := db.Query[models.User](ctx, conn,
		`
		---- Fetch new issue watchers
		SELECT $columns{u}
		FROM
			bugtracker_user_profile AS p
			JOIN auth_user AS u ON u.id = p.user_id
		WHERE
			p.notify_of_new_issue
			AND u.is_active
			AND u.id <> $1
		ORDER BY u.id
		`,
		submitterID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch new issue watchers")
	}
	return watchers, nil
}

/*
Hands a notification to every recipient. Notifications go out after the
write committed, so failures here are logged and never undo the write.
*/
func fanOut(ctx context.Context, n notify.Notifier, recipients []*models.User, proto notify.Notification) int {
	logger := logging.ExtractLogger(ctx)
	sent := 0
	for _, r := range recipients {
		notification := proto
		notification.Recipient = r
		if err := n.Notify(ctx, notification); err != nil {
			logger.Warn().Err(err).Int("recipient", r.ID).Msg("failed to queue bug tracker notification")
			continue
		}
		sent++
	}
	return sent
}

func notifyNewIssue(ctx context.Context, conn db.ConnOrTx, n notify.Notifier, ticket *models.IssueTicket, submitter *models.User) {
	watchers, err := fetchNewIssueWatchers(ctx, conn, submitter.ID)
	if err != nil {
		logging.ExtractLogger(ctx).Error().Err(err).Int("issue_id", ticket.ID).Msg("failed to notify of new issue")
		return
	}
	fanOut(ctx, n, watchers, notify.Notification{
		TitleTemplate:    tmplNewIssueTitle,
		BodyTemplateText: tmplNewIssueText,
		BodyTemplateHTML: tmplNewIssueHTML,
		Context: map[string]any{
			"Ticket":    ticket,
			"Submitter": submitter,
			"Url":       urls.BuildTicket(ticket.ID),
		},
	})
}

func notifyNewComment(ctx context.Context, conn db.ConnOrTx, n notify.Notifier, ticket *models.IssueTicket, comment *models.IssueComment, author *models.User) {
	logger := logging.ExtractLogger(ctx).With().Int("issue_id", ticket.ID).Int("comment_id", comment.ID).Logger()

	subscribers, err := FetchSubscribers(ctx, conn, ticket.ID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to notify of new comment")
		return
	}
	var recipients []*models.User
	for _, s := range subscribers {
		if s.ID != author.ID && s.IsActive {
			recipients = append(recipients, s)
		}
	}

	url := urls.BuildTicketComment(comment.ID)
	fanOut(ctx, n, recipients, notify.Notification{
		TitleTemplate:    tmplNewCommentTitle,
		BodyTemplateText: tmplNewCommentText,
		BodyTemplateHTML: tmplNewCommentHTML,
		Context: map[string]any{
			"Ticket":  ticket,
			"Comment": comment,
			"Author":  author,
			"Url":     url,
		},
	})
}
