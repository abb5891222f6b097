package models

import (
	"time"

	"git.cdm.community/cdm/cdm/src/antiflood"
)

type PrivateMessage struct {
	ID int `db:"id"`

	SenderID    int  `db:"sender_id"`
	RecipientID int  `db:"recipient_id"`
	ParentMsgID *int `db:"parent_msg_id"`

	Subject  string `db:"subject" validate:"max=255"`
	Body     string `db:"body"`
	BodyHtml string `db:"body_html"`

	SentAt time.Time  `db:"sent_at"`
	ReadAt *time.Time `db:"read_at"`

	SenderDeletedAt             *time.Time `db:"sender_deleted_at"`
	RecipientDeletedAt          *time.Time `db:"recipient_deleted_at"`
	SenderPermanentlyDeleted    bool       `db:"sender_permanently_deleted"`
	RecipientPermanentlyDeleted bool       `db:"recipient_permanently_deleted"`
}

type BlockedUser struct {
	ID            int       `db:"id"`
	UserID        int       `db:"user_id"`
	BlockedUserID int       `db:"blocked_user_id"`
	Active        bool      `db:"active"`
	LastBlockDate time.Time `db:"last_block_date"`
}

type PrivateMessageUserProfile struct {
	UserID                 int        `db:"user_id"`
	NotifyOnNewPrivmsg     bool       `db:"notify_on_new_privmsg"`
	AcceptPrivmsg          bool       `db:"accept_privmsg"`
	LastSentPrivateMsgDate *time.Time `db:"last_sent_private_msg_date"`
}

func (p *PrivateMessageUserProfile) IsFlooding(now time.Time, window time.Duration) bool {
	return antiflood.IsFlooding(p.LastSentPrivateMsgDate, window, now)
}
