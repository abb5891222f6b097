// Package antiflood throttles how often one user can post in a module. Each
// module keeps the time of a user's last post on their profile row; a new
// post inside the window is refused.
package antiflood

import (
	"fmt"
	"time"

	"git.cdm.community/cdm/cdm/src/oops"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Code = "flooding"

var rejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cdm_antiflood_rejections_total",
	Help: "Posts refused because the author posted too recently",
}, []string{"module"})

// IsFlooding reports whether a post at now is too close to the previous one.
// Exactly one window after the last post is allowed again.
func IsFlooding(last *time.Time, window time.Duration, now time.Time) bool {
	if last == nil {
		return false
	}
	return now.Sub(*last) < window
}

// Remaining is how long the user must still wait. Zero when not flooding.
func Remaining(last *time.Time, window time.Duration, now time.Time) time.Duration {
	if !IsFlooding(last, window, now) {
		return 0
	}
	return window - now.Sub(*last)
}

// Error is returned when a post is refused. It carries the remaining wait so
// the UI can show a countdown.
type Error struct {
	Module    string
	Remaining time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("flooding: %s must wait %s before posting again", e.Module, e.Remaining.Round(time.Second))
}

func (e *Error) ErrorCode() string    { return Code }
func (e *Error) ErrorKind() oops.Kind { return oops.KindFlooding }

// Check returns an *Error if posting now would flood, and nil otherwise.
func Check(module string, last *time.Time, window time.Duration, now time.Time) error {
	if !IsFlooding(last, window, now) {
		return nil
	}
	rejections.WithLabelValues(module).Inc()
	return &Error{
		Module:    module,
		Remaining: Remaining(last, window, now),
	}
}
