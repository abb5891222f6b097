package notify

import (
	"context"
	"errors"

	"git.cdm.community/cdm/cdm/src/config"
	"git.cdm.community/cdm/cdm/src/jobs"
	"git.cdm.community/cdm/cdm/src/logging"
	"git.cdm.community/cdm/cdm/src/utils"
	"golang.org/x/time/rate"
)

// Dispatcher is the Notifier used by the website. Notify only queues; a
// background job renders the templates and hands mail to the Sender, no faster
// than the configured rate.
type Dispatcher struct {
	queue   chan Notification
	limiter *rate.Limiter
	sender  Sender
}

var _ Notifier = &Dispatcher{}

func NewDispatcher(cfg config.NotifyConfig, sender Sender) *Dispatcher {
	return &Dispatcher{
		queue:   make(chan Notification, cfg.QueueSize),
		limiter: rate.NewLimiter(rate.Limit(cfg.SendsPerSecond), cfg.Burst),
		sender:  sender,
	}
}

func (d *Dispatcher) Notify(ctx context.Context, n Notification) error {
	if n.Recipient == nil || n.Recipient.Email == "" {
		notificationsFailed.WithLabelValues("no_address").Inc()
		return nil
	}

	select {
	case d.queue <- n:
		return nil
	default:
		notificationsFailed.WithLabelValues("queue_full").Inc()
		return ErrQueueFull
	}
}

// Run starts the delivery job. Notifications still queued when the job is
// canceled are dropped.
func (d *Dispatcher) Run() *jobs.Job {
	job := jobs.New("notification dispatcher")
	go func() {
		defer job.Finish()
		defer func() {
			if r := recover(); r != nil {
				logging.LogPanicValue(job.Logger, r, "notification dispatcher panicked")
			}
		}()

		for {
			select {
			case <-job.Canceled():
				if n := len(d.queue); n > 0 {
					job.Logger.Warn().Int("dropped", n).Msg("Shutting down with undelivered notifications")
				}
				return
			case n := <-d.queue:
				if err := d.limiter.Wait(job.Ctx); err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					job.Logger.Error().Err(err).Msg("rate limiter failed")
					continue
				}
				if err := d.deliver(job.Ctx, n); err != nil {
					notificationsFailed.WithLabelValues("send").Inc()
					job.Logger.Error().Err(err).Int("recipient", n.Recipient.ID).Msg("failed to deliver notification")
				} else {
					notificationsSent.Inc()
				}
			}
		}
	}()
	return job
}

// A panic while rendering or sending fails only the one notification.
func (d *Dispatcher) deliver(ctx context.Context, n Notification) (err error) {
	defer utils.RecoverPanicAsError(&err)
	return deliver(ctx, d.sender, n)
}

func deliver(ctx context.Context, sender Sender, n Notification) error {
	r, err := render(n)
	if err != nil {
		return err
	}
	return sender.Send(ctx, Message{
		ToAddress: n.Recipient.Email,
		ToName:    n.Recipient.Username,
		ReplyTo:   n.Options.ReplyTo,
		Subject:   r.Title,
		Text:      r.Text,
		HTML:      r.HTML,
	})
}

// Direct delivers each notification before Notify returns. Command-line tools
// use it since they exit before a Dispatcher would get to the queue.
type Direct struct {
	Sender Sender
}

var _ Notifier = Direct{}

func (d Direct) Notify(ctx context.Context, n Notification) error {
	if n.Recipient == nil || n.Recipient.Email == "" {
		return nil
	}
	if err := deliver(ctx, d.Sender, n); err != nil {
		notificationsFailed.WithLabelValues("send").Inc()
		return err
	}
	notificationsSent.Inc()
	return nil
}
