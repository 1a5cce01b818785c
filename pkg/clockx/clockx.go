// Package clockx provides cancellable scheduled callbacks with a real and a
// manually driven implementation, so countdowns can be tested tick by tick.
package clockx

import (
	"sync"
	"time"
)

// Cancel stops a scheduled callback. It is safe to call more than once and
// from inside the callback itself. It does not wait for an in-progress
// callback to return.
type Cancel func()

// Scheduler runs callbacks on a fixed period.
type Scheduler interface {
	Now() time.Time
	Every(period time.Duration, fn func()) Cancel
}

// System is the wall-clock Scheduler.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Every runs fn on its own goroutine every period until cancelled.
func (System) Every(period time.Duration, fn func()) Cancel {
	stopCh := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				// A cancel racing with the tick wins.
				select {
				case <-stopCh:
					return
				default:
				}
				fn()
			case <-stopCh:
				return
			}
		}
	}()

	return func() { once.Do(func() { close(stopCh) }) }
}
