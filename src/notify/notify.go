package notify

import (
	"context"
	"sync"

	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MailOptions struct {
	ReplyTo string
}

// A Notification is addressed to one user. The templates are names registered
// with RegisterTemplate, executed against Context.
type Notification struct {
	Recipient        *models.User
	TitleTemplate    string
	BodyTemplateText string
	BodyTemplateHTML string
	Context          map[string]any
	Options          MailOptions
}

// A Notifier accepts notifications and delivers them in the background.
// Notify must not block on delivery.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

var ErrQueueFull = oops.NewCoded(oops.KindTransient, "notify_queue_full", "the notification queue is full")

var (
	notificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cdm_notifications_sent_total",
		Help: "Notifications delivered to the mail server.",
	})
	notificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdm_notifications_failed_total",
		Help: "Notifications that were dropped, by reason.",
	}, []string{"reason"})
)

// Discard drops every notification. Used by command-line tools.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(ctx context.Context, n Notification) error { return nil }

// Recorder keeps every notification it is given.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

var _ Notifier = &Recorder{}

func (r *Recorder) Notify(ctx context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}

// Recipients returns the ids of every notified user, in order.
func (r *Recorder) Recipients() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int, len(r.sent))
	for i, n := range r.sent {
		ids[i] = n.Recipient.ID
	}
	return ids
}
