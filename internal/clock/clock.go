// Package clock supplies "today" as a civil date in a fixed timezone.
//
// Debts carry calendar dates, not instants. Every date handled by the
// application is normalised to midnight UTC of its civil day so that
// comparisons are plain column comparisons regardless of the store.
package clock

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

const DateLayout = "2006-01-02"

type Clock interface {
	Today() time.Time
}

type Civil struct {
	loc *time.Location
	now func() time.Time
}

func NewCivil(timezone string) (*Civil, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return &Civil{loc: loc, now: time.Now}, nil
}

func (c *Civil) Location() *time.Location { return c.loc }

// Today returns the current civil date in the configured zone.
func (c *Civil) Today() time.Time {
	return Date(c.now().In(c.loc))
}

// Fixed always reports the same day. Used by tests and one-off runs.
type Fixed time.Time

func (f Fixed) Today() time.Time { return Date(time.Time(f)) }

// Date truncates t to its civil day, expressed as midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Date(t), nil
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
