package utils

import (
	"time"
)

// An equivalent to [time.Ticker] that also ticks once right away, so
// periodic jobs do their first pass on startup instead of after a full
// interval.
type InstaTicker struct {
	C <-chan time.Time

	done   chan struct{}
	ticker *time.Ticker
}

func NewInstaTicker(d time.Duration) *InstaTicker {
	ticker := time.NewTicker(d)
	c := make(chan time.Time)
	done := make(chan struct{})
	go func() {
		next := time.Now()
		for {
			select {
			case <-done:
				return
			case c <- next:
			}
			select {
			case <-done:
				return
			case next = <-ticker.C:
			}
		}
	}()
	return &InstaTicker{
		C:      c,
		done:   done,
		ticker: ticker,
	}
}

// Stops the ticker from ticking. Calling Stop more than once will panic.
func (it *InstaTicker) Stop() {
	it.ticker.Stop()
	close(it.done)
}
