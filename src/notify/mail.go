package notify

import (
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"git.cdm.community/cdm/cdm/src/config"
	"git.cdm.community/cdm/cdm/src/logging"
	"git.cdm.community/cdm/cdm/src/oops"
)

type Message struct {
	ToAddress string
	ToName    string
	ReplyTo   string
	Subject   string
	Text      string
	HTML      string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers mail through the server in the email config.
type SMTPSender struct {
	Config config.EmailConfig
}

var _ Sender = SMTPSender{}

func (s SMTPSender) Send(ctx context.Context, msg Message) error {
	toAddress := msg.ToAddress
	if s.Config.OverrideRecipients != "" {
		toAddress = s.Config.OverrideRecipients
	}
	contents, err := prepMailContents(
		makeHeaderAddress(toAddress, msg.ToName),
		makeHeaderAddress(s.Config.FromAddress, s.Config.FromName),
		msg,
		time.Now(),
	)
	if err != nil {
		return err
	}
	err = smtp.SendMail(
		fmt.Sprintf("%s:%d", s.Config.ServerAddress, s.Config.ServerPort),
		smtp.PlainAuth("", s.Config.MailerUsername, s.Config.MailerPassword, s.Config.ServerAddress),
		s.Config.FromAddress,
		[]string{toAddress},
		contents,
	)
	if err != nil {
		return oops.New(err, "failed to send email")
	}
	return nil
}

// LogSender only logs what would have been sent. Used when no mail server is
// configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	logging.ExtractLogger(ctx).Info().
		Str("to", msg.ToAddress).
		Str("subject", msg.Subject).
		Msg("Not sending email, no mail server configured")
	return nil
}

func NewSender(cfg config.EmailConfig) Sender {
	if cfg.ServerAddress == "" {
		return LogSender{}
	}
	return SMTPSender{Config: cfg}
}

func makeHeaderAddress(email, fullname string) string {
	if fullname != "" {
		encoded := mime.BEncoding.Encode("utf-8", fullname)
		if encoded == fullname {
			encoded = strings.ReplaceAll(encoded, `"`, `\"`)
			encoded = fmt.Sprintf("\"%s\"", encoded)
		}
		return fmt.Sprintf("%s <%s>", encoded, email)
	} else {
		return email
	}
}

func prepMailContents(toLine string, fromLine string, msg Message, now time.Time) ([]byte, error) {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("To: %s\r\n", toLine))
	builder.WriteString(fmt.Sprintf("From: %s\r\n", fromLine))
	if msg.ReplyTo != "" {
		builder.WriteString(fmt.Sprintf("Reply-To: %s\r\n", msg.ReplyTo))
	}
	builder.WriteString(fmt.Sprintf("Date: %s\r\n", now.UTC().Format(time.RFC1123Z)))
	builder.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject)))
	builder.WriteString("MIME-Version: 1.0\r\n")

	mw := multipart.NewWriter(&builder)
	builder.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%s\r\n", mw.Boundary()))
	builder.WriteString("\r\n")

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	}
	for _, part := range parts {
		if part.body == "" {
			continue
		}
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, oops.New(err, "failed to create mail part")
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(strings.ReplaceAll(part.body, "\n", "\r\n"))); err != nil {
			return nil, oops.New(err, "failed to write mail part")
		}
		if err := qp.Close(); err != nil {
			return nil, oops.New(err, "failed to write mail part")
		}
	}
	if err := mw.Close(); err != nil {
		return nil, oops.New(err, "failed to finish mail")
	}

	return []byte(builder.String()), nil
}
