// Package ics renders the local contact set as an iCalendar feed of birthday
// events, one all-day event per year in a three-year window around now.
package ics

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/emersion/go-ical"

	"github.com/lbrossard/keeptouch/internal/config"
	"github.com/lbrossard/keeptouch/internal/contact"
)

// Builder converts contacts into an encoded VCALENDAR.
type Builder struct {
	// ReminderTrigger is an ISO8601 duration string (e.g., "-P1D"). Empty
	// disables alarms.
	ReminderTrigger string

	// FormatSummary injects localized event titles. Nil falls back to a
	// plain English summary.
	FormatSummary func(name string, age int, yearKnown bool) string
}

// Build encodes the calendar for the given contacts relative to now.
// Contacts without a birth date contribute no events. The local calendar
// date of 'now' drives event placement; UTC is used only for ICS stamping.
func (b *Builder) Build(contacts []contact.Contact, now time.Time) ([]byte, error) {
	cal := ical.NewCalendar()

	cal.Props.SetText(config.PropVersion, config.ICalVersion)
	cal.Props.SetText(config.PropProdid, config.ICalProdid)
	cal.Props.SetText(config.PropXWRCalName, config.ICalCalName)
	cal.Props.SetText(config.PropCalScale, config.ICalScale)
	cal.Props.SetText(config.PropMethod, config.ICalMethod)

	// RFC 7986: Suggest a refresh interval.
	refreshProp := ical.NewProp(config.PropRefresh)
	refreshProp.SetDuration(config.DefaultICalRefresh)
	cal.Props.Set(refreshProp)

	dtStampProp := ical.NewProp(config.PropDTStamp)
	dtStampProp.SetDateTime(now.UTC())

	for _, c := range contacts {
		if !c.HasBirthday() {
			continue
		}
		for _, e := range b.contactEvents(c, now) {
			e.Props.Set(dtStampProp)
			cal.Children = append(cal.Children, e.Component)
		}
	}

	// A valid VCALENDAR is returned even when no events exist so feed
	// clients never flag the feed as invalid.
	if len(cal.Children) == 0 {
		return []byte(config.StubVCalendar), nil
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrICalEncode, err)
	}
	return buf.Bytes(), nil
}

// contactEvents generates events for CurrentYear-1, CurrentYear, CurrentYear+1.
// The window lets calendar clients scroll back and forward without an
// immediate re-sync. No event is generated before the person is born.
func (b *Builder) contactEvents(c contact.Contact, now time.Time) []*ical.Event {
	currentYear := now.Year()
	targetYears := []int{currentYear - 1, currentYear, currentYear + 1}
	loc := now.Location()
	uidBase := eventUID(c)

	var events []*ical.Event
	for _, y := range targetYears {
		if c.YearKnown && y < c.Birthday.Year() {
			continue
		}

		event := ical.NewEvent()
		event.Props.SetText(config.PropUID, fmt.Sprintf(config.FormatUID, uidBase, y, config.ICalDomain))

		age := 0
		if c.YearKnown {
			age = y - c.Birthday.Year()
		}

		summary := fmt.Sprintf(config.FallbackSummary, c.Name)
		if b.FormatSummary != nil {
			summary = b.FormatSummary(c.Name, age, c.YearKnown)
		}
		event.Props.SetText(config.PropSummary, summary)

		// Go's time.Date normalizes Feb 29 to March 1st in non-leap years;
		// the feed keeps that behavior so the event still exists somewhere.
		eventDate := time.Date(y, c.Birthday.Month(), c.Birthday.Day(), 0, 0, 0, 0, loc)

		dtStartProp := ical.NewProp(config.PropDTStart)
		dtStartProp.SetDate(eventDate)
		event.Props.Set(dtStartProp)

		if b.ReminderTrigger != "" {
			addAlarm(event, b.ReminderTrigger, summary)
		}

		events = append(events, event)
	}
	return events
}

// eventUID derives a deterministic identifier so UIDs stay stable across
// refreshes.
func eventUID(c contact.Contact) string {
	input := fmt.Sprintf(config.FormatHashInput, c.Name, c.Birthday.Format(time.RFC3339), config.UIDSalt)
	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", hash[:config.UIDHashLength])
}

// addAlarm appends a DISPLAY alarm (notification) to the event.
func addAlarm(event *ical.Event, trigger, description string) {
	alarm := ical.NewComponent(config.ICalComponent)
	alarm.Props.SetText(config.PropAction, config.ICalAction)
	alarm.Props.SetText(config.PropDescription, description)

	// Set trigger manually to avoid "VALUE=TEXT" param
	triggerProp := ical.NewProp(config.PropTrigger)
	triggerProp.Value = trigger
	alarm.Props.Set(triggerProp)

	event.Children = append(event.Children, alarm)
}
