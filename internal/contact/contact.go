// Package contact defines the unit of record shared by the reconciliation
// engine, the query calculator and the storage layer, together with the
// calendar-key arithmetic every temporal query is built on.
package contact

import (
	"errors"
	"fmt"
	"time"

	"github.com/lbrossard/keeptouch/internal/config"
)

// ErrInvalidDate marks a missing or unusable birth date. Callers are expected
// to pre-filter: a contact without a knowable calendar key simply cannot
// participate in date queries.
var ErrInvalidDate = errors.New(config.ErrDateParse)

// Contact is the unit of record. The phone number is the natural key used for
// reconciliation matching; ID is a store-generated surrogate that must survive
// updates untouched.
type Contact struct {
	// ID is assigned by the store on first insert and preserved across
	// updates. External sources never carry it.
	ID string

	// Phone is the natural key, unique across the collection.
	Phone string

	Name string

	// Birthday is a calendar day-of-year marker, never an absolute instant.
	// The zero value means the birth date is unknown.
	Birthday time.Time

	// YearKnown indicates whether the source carried a birth year or just a
	// truncated --MM-DD date.
	YearKnown bool

	// YearMet is the year the relationship began. Validated against the
	// historical floor and the current year during reconciliation.
	YearMet int

	Email        string
	Locations    []string
	Affiliations []string

	LastContacted time.Time

	// FrequencyDays is the desired contact cadence in days.
	FrequencyDays int

	Active bool
}

// HasBirthday reports whether the contact carries a usable birth date.
func (c Contact) HasBirthday() bool {
	return !c.Birthday.IsZero()
}

// DateOnly reduces a timestamp to its UTC calendar date. Birth dates are
// day-of-year markers, never absolute instants, so any time-of-day a source
// format carried is discarded at the boundary.
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthDay is a canonical, timezone-independent calendar key.
type MonthDay struct {
	Month time.Month
	Day   int
}

// MonthDayOf derives the calendar key from the UTC date fields of the stored
// value. Using the stored date rather than a locally adjusted "now" avoids
// off-by-one-day errors near midnight in the deployment timezone.
func MonthDayOf(t time.Time) (MonthDay, error) {
	if t.IsZero() {
		return MonthDay{}, ErrInvalidDate
	}
	u := t.UTC()
	return MonthDay{Month: u.Month(), Day: u.Day()}, nil
}

// Ordinal maps the key onto a single linear axis (month*100 + day) so that
// calendar proximity reduces to integer comparison.
func (md MonthDay) Ordinal() int {
	return int(md.Month)*100 + md.Day
}

func (md MonthDay) String() string {
	return fmt.Sprintf("%02d-%02d", int(md.Month), md.Day)
}
