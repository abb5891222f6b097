package privatemsg

import (
	"context"
	"errors"
	"strings"
	"time"

	"git.cdm.community/cdm/cdm/src/antiflood"
	"git.cdm.community/cdm/cdm/src/config"
	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/notify"
	"git.cdm.community/cdm/cdm/src/oops"
	"git.cdm.community/cdm/cdm/src/parsing"
	"git.cdm.community/cdm/cdm/src/users"
	"github.com/jackc/pgx/v5"
)

const floodModule = "privatemsg"

var (
	ErrMultipleRecipients         = oops.NewCoded(oops.KindValidation, "multiple_recipients", "a message has exactly one recipient")
	ErrUnknownRecipient           = oops.NewCoded(oops.KindValidation, "unknown_recipient", "no user by that name")
	ErrRecipientAccountClosed     = oops.NewCoded(oops.KindValidation, "recipient_account_closed", "the recipient's account is closed")
	ErrRecipientRefusesPrivateMsg = oops.NewCoded(oops.KindValidation, "recipient_refuse_privatemsg", "the recipient does not accept private messages")
	ErrRecipientHasBlockedUser    = oops.NewCoded(oops.KindValidation, "recipient_has_blocked_user", "the recipient has blocked you")
	ErrSenderInactive             = oops.NewCoded(oops.KindPermissionDenied, "sender_inactive", "inactive users cannot send messages")
)

const replyPrefix = "Re: "

// The subject of a reply, when the replier didn't write one.
func ReplySubject(parentSubject string) string {
	if strings.HasPrefix(parentSubject, replyPrefix) {
		return parentSubject
	}
	return replyPrefix + parentSubject
}

type NewMessage struct {
	// Usernames. Exactly one is allowed.
	Recipients []string
	Subject    string
	Body       string
}

/*
Sends a message to a single recipient named by username. The recipient must
exist, be active, accept private messages and not have blocked the sender.
The sender is subject to anti-flood.
*/
func SendMessage(
	ctx context.Context,
	conn db.ConnOrTx,
	n notify.Notifier,
	sender *models.User,
	msg NewMessage,
	now time.Time,
) (*models.PrivateMessage, error) {
	var names []string
	for _, name := range msg.Recipients {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) > 1 {
		return nil, ErrMultipleRecipients
	}
	if len(names) == 0 {
		return nil, ErrUnknownRecipient
	}

	recipient, err := users.FetchUserByUsername(ctx, conn, names[0])
	if errors.Is(err, db.NotFound) {
		return nil, ErrUnknownRecipient
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch recipient")
	}

	return send(ctx, conn, n, sender, recipient, &models.PrivateMessage{
		Subject: msg.Subject,
		Body:    msg.Body,
	}, now)
}

/*
Replies to a message. The reply always goes to the parent's sender, even when
that is the replier. An empty subject becomes "Re: " and the parent's subject.
*/
func ReplyToMessage(
	ctx context.Context,
	conn db.ConnOrTx,
	n notify.Notifier,
	sender *models.User,
	parentID int,
	subject string,
	body string,
	now time.Time,
) (*models.PrivateMessage, error) {
	parent, err := FetchMessageForUser(ctx, conn, parentID, sender.ID)
	if err != nil {
		return nil, err
	}

	recipient, err := users.FetchUser(ctx, conn, parent.SenderID)
	if errors.Is(err, db.NotFound) {
		return nil, ErrUnknownRecipient
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch recipient")
	}

	if strings.TrimSpace(subject) == "" {
		subject = ReplySubject(parent.Subject)
	}
	return send(ctx, conn, n, sender, recipient, &models.PrivateMessage{
		ParentMsgID: &parent.ID,
		Subject:     subject,
		Body:        body,
	}, now)
}

func send(
	ctx context.Context,
	conn db.ConnOrTx,
	n notify.Notifier,
	sender *models.User,
	recipient *models.User,
	msg *models.PrivateMessage,
	now time.Time,
) (*models.PrivateMessage, error) {
	if !sender.IsActive {
		return nil, ErrSenderInactive
	}
	if !recipient.IsActive {
		return nil, ErrRecipientAccountClosed
	}
	if now.IsZero() {
		now = time.Now()
	}

	msg.SenderID = sender.ID
	msg.RecipientID = recipient.ID
	msg.SentAt = now
	if err := models.Validate(msg); err != nil {
		return nil, err
	}
	msg.BodyHtml = parsing.Render(msg.Body, parsing.PrivateMessageOptions).HTML

	var saved *models.PrivateMessage
	var recipientProfile *models.PrivateMessageUserProfile
	err := db.Retry(ctx, db.RetryOptions{}, func(attempt int) error {
		return db.WithTx(ctx, conn, func(tx pgx.Tx) error {
			var err error
			recipientProfile, err = FetchOrCreateProfile(ctx, tx, recipient.ID)
			if err != nil {
				return err
			}
			if !recipientProfile.AcceptPrivmsg {
				return ErrRecipientRefusesPrivateMsg
			}

			blocked, err := HasBlockedUser(ctx, tx, recipient.ID, sender.ID)
			if err != nil {
				return err
			}
			if blocked {
				return ErrRecipientHasBlockedUser
			}

			senderProfile, err := lockProfile(ctx, tx, sender.ID)
			if err != nil {
				return err
			}
			if err := antiflood.Check(floodModule, senderProfile.LastSentPrivateMsgDate, config.Config.PrivateMsg.MessageWindow(), now); err != nil {
				return err
			}

			saved, err = db.QueryOne[models.PrivateMessage](ctx, tx,
				`
				INSERT INTO privatemsg_message (
					sender_id, recipient_id, parent_msg_id,
					subject, body, body_html, sent_at
				)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING $columns
				`,
				msg.SenderID, msg.RecipientID, msg.ParentMsgID,
				msg.Subject, msg.Body, msg.BodyHtml, msg.SentAt,
			)
			if err != nil {
				return oops.New(err, "failed to insert private message")
			}

			return touchProfile(ctx, tx, sender.ID, now)
		})
	})
	if err != nil {
		return nil, err
	}

	if recipientProfile.NotifyOnNewPrivmsg {
		notifyNewMessage(ctx, n, saved, sender, recipient)
	}
	return saved, nil
}
