package provision

import (
	"time"

	"github.com/fatih/color"
)

const day = 24 * time.Hour

// Status is the expiration band of a profile or certificate.
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARNING"
	case StatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Color returns the terminal colour for the band: red, yellow or green.
// The returned color always emits escapes; callers decide whether to use it.
func (s Status) Color() *color.Color {
	var c *color.Color
	switch s {
	case StatusExpired:
		c = color.New(color.FgRed)
	case StatusWarning:
		c = color.New(color.FgYellow)
	default:
		c = color.New(color.FgGreen)
	}
	c.EnableColor()
	return c
}

// DaysRemaining returns the number of whole calendar days from now until
// expiry in now's location, truncated toward zero. A calendar day steps the
// date and keeps the wall clock, so it is 23 or 25 hours long across a
// daylight saving change. It is negative when expiry lies in the past.
func DaysRemaining(now, expiry time.Time) int {
	expiry = expiry.In(now.Location())
	n := int(expiry.Sub(now) / day)
	if !expiry.Before(now) {
		for !now.AddDate(0, 0, n+1).After(expiry) {
			n++
		}
		for n > 0 && now.AddDate(0, 0, n).After(expiry) {
			n--
		}
		return n
	}
	for !now.AddDate(0, 0, n-1).Before(expiry) {
		n--
	}
	for n < 0 && now.AddDate(0, 0, n).Before(expiry) {
		n++
	}
	return n
}

// Classify maps a day count onto a band. A warnDays of 0 disables warnings.
func Classify(days, warnDays int) Status {
	if warnDays < 0 {
		warnDays = 0
	}
	switch {
	case days <= 0:
		return StatusExpired
	case days <= warnDays:
		return StatusWarning
	default:
		return StatusOK
	}
}

// ClassifyDate is Classify(DaysRemaining(now, expiry), warnDays).
func ClassifyDate(now, expiry time.Time, warnDays int) (Status, int) {
	days := DaysRemaining(now, expiry)
	return Classify(days, warnDays), days
}
