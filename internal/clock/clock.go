// Package clock supplies the current time and quota-period boundaries.
// Abstracted so tests can pin arbitrary instants.
package clock

import "time"

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

// Now returns the current time.
func (System) Now() time.Time { return time.Now() }

// Periods computes quota-period boundaries in a fixed time zone.
// A period is one calendar day: it starts at local midnight.
type Periods struct {
	loc *time.Location
}

// NewPeriods creates a Periods bound to the given IANA time zone.
func NewPeriods(tz string) (Periods, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Periods{}, err
	}
	return Periods{loc: loc}, nil
}

// Start returns the local midnight at or before t.
func (p Periods) Start(t time.Time) time.Time {
	lt := t.In(p.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, p.loc)
}

// NextReset returns the local midnight strictly after t.
func (p Periods) NextReset(t time.Time) time.Time {
	return p.Start(t).AddDate(0, 0, 1)
}

// Location returns the bound time zone.
func (p Periods) Location() *time.Location { return p.loc }
