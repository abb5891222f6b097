package privatemsg

import (
	"context"

	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/logging"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/notify"
	"git.cdm.community/cdm/cdm/src/oops"
	"git.cdm.community/cdm/cdm/src/parsing"
	"git.cdm.community/cdm/cdm/src/rerender"
	"git.cdm.community/cdm/cdm/src/urls"
)

const (
	tmplNewMessageTitle = "privatemsg/new_message_title.txt"
	tmplNewMessageText  = "privatemsg/new_message.txt"
	tmplNewMessageHTML  = "privatemsg/new_message.html"
)

func init() {
	notify.RegisterTemplate(tmplNewMessageTitle, `New private message from {{ .Sender.Username }}: {{ default "(no subject)" .Message.Subject | trunc 80 }}`)
	notify.RegisterTemplate(tmplNewMessageText, `Hello {{ .Recipient.Username }},

{{ .Sender.Username }} sent you a private message, "{{ default "(no subject)" .Message.Subject }}".

Read it at {{ .Url }}
`)
	notify.RegisterTemplate(tmplNewMessageHTML, `<p>Hello {{ .Recipient.Username }},</p>
<p>{{ .Sender.Username }} sent you a private message, <a href="{{ .Url }}">{{ default "(no subject)" .Message.Subject }}</a>.</p>
`)
}

// Message bodies are never copied into the notification, only linked.
func notifyNewMessage(ctx context.Context, n notify.Notifier, msg *models.PrivateMessage, sender, recipient *models.User) {
	err := n.Notify(ctx, notify.Notification{
		Recipient:        recipient,
		TitleTemplate:    tmplNewMessageTitle,
		BodyTemplateText: tmplNewMessageText,
		BodyTemplateHTML: tmplNewMessageHTML,
		Context: map[string]any{
			"Message": msg,
			"Sender":  sender,
			"Url":     urls.BuildPrivateMessage(msg.ID),
		},
	})
	if err != nil {
		logging.ExtractLogger(ctx).Warn().Err(err).Int("message_id", msg.ID).Msg("failed to queue private message notification")
	}
}

var RerenderHandlers = []rerender.Handler{
	{Kind: "private_message", Rerender: rerenderMessages},
}

func rerenderMessages(ctx context.Context, conn db.ConnOrTx) (rerender.Stats, error) {
	return rerender.Rows(ctx, conn, "private_message", "privatemsg_message",
		func(m *models.PrivateMessage) int { return m.ID },
		func(ctx context.Context, conn db.ConnOrTx, m *models.PrivateMessage) error {
			html := parsing.Render(m.Body, parsing.PrivateMessageOptions).HTML
			_, err := conn.Exec(ctx,
				`
				UPDATE privatemsg_message
				SET body_html = $2
				WHERE id = $1
				`,
				m.ID,
				html,
			)
			if err != nil {
				return oops.New(err, "failed to store re-rendered message")
			}
			return nil
		},
	)
}
