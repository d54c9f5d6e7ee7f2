// Package engine implements the birthday query calculator: stateless
// classification of contacts by calendar proximity to an explicit reference
// date.
package engine

import (
	"log/slog"
	"sort"
	"time"

	"github.com/lbrossard/keeptouch/internal/config"
	"github.com/lbrossard/keeptouch/internal/contact"
)

// Classification is the ephemeral result of a query. It is constructed fresh
// per call and never persisted.
type Classification struct {
	Name string

	// YearsInContact is referenceYear - yearMet. Never negative for records
	// that passed reconciliation validation.
	YearsInContact int

	// Birthday is the birth date used for display.
	Birthday time.Time
}

func classify(c contact.Contact, today time.Time) Classification {
	return Classification{
		Name:           c.Name,
		YearsInContact: today.Year() - c.YearMet,
		Birthday:       c.Birthday,
	}
}

// Todays returns the contacts whose calendar key equals today's key.
// Strict equality: a February 29 contact appears only when today itself is
// February 29. There is no rollover to March 1 and no silent match on
// February 28; the ambiguity in non-leap years is accepted, not papered over.
func Todays(contacts []contact.Contact, today time.Time) []Classification {
	ref, err := contact.MonthDayOf(today)
	if err != nil {
		return nil
	}

	var out []Classification
	for _, c := range contacts {
		key, err := contact.MonthDayOf(c.Birthday)
		if err != nil {
			continue
		}
		if key == ref {
			out = append(out, classify(c, today))
			slog.Debug(config.MsgBdayToday,
				config.LogKeyComponent, config.CompEngine,
				config.LogKeyName, c.Name,
				config.LogKeyDOB, key.String(),
			)
		}
	}
	return out
}

// ThisMonth returns the contacts whose birth month equals today's month,
// ordered ascending by day of month.
func ThisMonth(contacts []contact.Contact, today time.Time) []Classification {
	ref, err := contact.MonthDayOf(today)
	if err != nil {
		return nil
	}

	type entry struct {
		day int
		cls Classification
	}
	var entries []entry
	for _, c := range contacts {
		key, err := contact.MonthDayOf(c.Birthday)
		if err != nil {
			continue
		}
		if key.Month == ref.Month {
			entries = append(entries, entry{day: key.Day, cls: classify(c, today)})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].day < entries[j].day
	})

	out := make([]Classification, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.cls)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Upcoming returns every contact sharing the nearest future (or today's)
// birthday. Dates already passed this year get the wraparound offset so the
// global minimum identifies the next occurrence across the year boundary.
// Ties are returned as a set, never broken arbitrarily. An empty collection,
// or one with no usable birth dates, yields an empty result.
func Upcoming(contacts []contact.Contact, today time.Time) []Classification {
	ref, err := contact.MonthDayOf(today)
	if err != nil {
		return nil
	}
	todayOrd := ref.Ordinal()

	minOrd := -1
	var out []Classification
	for _, c := range contacts {
		key, err := contact.MonthDayOf(c.Birthday)
		if err != nil {
			continue
		}

		ord := key.Ordinal()
		if ord < todayOrd {
			ord += config.MonthOrdinalSpan
		}

		switch {
		case minOrd == -1 || ord < minOrd:
			minOrd = ord
			out = append(out[:0], classify(c, today))
		case ord == minOrd:
			out = append(out, classify(c, today))
		}
	}
	return out
}
