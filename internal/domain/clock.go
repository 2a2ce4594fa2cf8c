package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock stamps run manifests. Tests freeze it with SetClock.
var clock = clockwork.NewRealClock()

// SetClock replaces the clock behind Now; nil restores the real clock.
func SetClock(c clockwork.Clock) {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	clock = c
}

// Now is the current time in UTC according to the package clock.
func Now() time.Time {
	return clock.Now().UTC()
}
