package services

import (
	"math/rand/v2"
	"time"
)

// Clock returns the current time. Services truncate it to microseconds so
// values round-trip through postgres unchanged.
type Clock func() time.Time

func SystemClock() time.Time { return time.Now().UTC() }

func (c Clock) now() time.Time {
	if c == nil {
		return SystemClock().Truncate(time.Microsecond)
	}
	return c().UTC().Truncate(time.Microsecond)
}

// Roller is the randomness source for loot and combat rolls.
type Roller interface {
	Float64() float64
	IntN(n int) int
}

type globalRoller struct{}

func (globalRoller) Float64() float64 { return rand.Float64() }
func (globalRoller) IntN(n int) int   { return rand.IntN(n) }

// DefaultRoller is safe for concurrent use.
var DefaultRoller Roller = globalRoller{}
