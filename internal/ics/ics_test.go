package ics_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbrossard/keeptouch/internal/config"
	"github.com/lbrossard/keeptouch/internal/contact"
	"github.com/lbrossard/keeptouch/internal/ics"
)

func buildFeed(t *testing.T, b *ics.Builder, contacts []contact.Contact, now time.Time) string {
	t.Helper()
	data, err := b.Build(contacts, now)
	require.NoError(t, err)
	return string(data)
}

func TestBuild_EmptyFeedIsValidCalendar(t *testing.T) {
	now := time.Date(2024, 11, 28, 10, 0, 0, 0, time.UTC)
	feed := buildFeed(t, &ics.Builder{}, nil, now)

	assert.Equal(t, config.StubVCalendar, feed)
}

func TestBuild_ContactWithoutBirthdayIsSkipped(t *testing.T) {
	now := time.Date(2024, 11, 28, 10, 0, 0, 0, time.UTC)
	contacts := []contact.Contact{{Phone: "+1", Name: "NoDate", Active: true}}

	feed := buildFeed(t, &ics.Builder{}, contacts, now)
	assert.Equal(t, config.StubVCalendar, feed)
}

// TestBuild_ThreeYearWindow checks that each contact yields one event per year
// in the previous/current/next window.
func TestBuild_ThreeYearWindow(t *testing.T) {
	now := time.Date(2024, 11, 28, 10, 0, 0, 0, time.UTC)
	contacts := []contact.Contact{{
		Phone:     "+1",
		Name:      "Ada",
		Birthday:  time.Date(1985, 5, 2, 0, 0, 0, 0, time.UTC),
		YearKnown: true,
		Active:    true,
	}}

	feed := buildFeed(t, &ics.Builder{}, contacts, now)

	assert.Equal(t, 3, strings.Count(feed, "BEGIN:VEVENT"))
	for _, year := range []int{2023, 2024, 2025} {
		assert.Contains(t, feed, fmt.Sprintf(":%d0502", year))
	}
}

func TestBuild_NoEventBeforeBirth(t *testing.T) {
	now := time.Date(2024, 11, 28, 10, 0, 0, 0, time.UTC)
	contacts := []contact.Contact{{
		Phone:     "+1",
		Name:      "Newborn",
		Birthday:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		YearKnown: true,
		Active:    true,
	}}

	feed := buildFeed(t, &ics.Builder{}, contacts, now)

	assert.Equal(t, 2, strings.Count(feed, "BEGIN:VEVENT"), "no event for the year before birth")
	assert.NotContains(t, feed, ":20230301")
}

func TestBuild_UnknownYearStillGetsAllThreeEvents(t *testing.T) {
	now := time.Date(2024, 11, 28, 10, 0, 0, 0, time.UTC)
	contacts := []contact.Contact{{
		Phone:    "+1",
		Name:     "Mystery",
		Birthday: time.Date(config.DefaultLeapYear, 7, 14, 0, 0, 0, 0, time.UTC),
		Active:   true,
	}}

	feed := buildFeed(t, &ics.Builder{}, contacts, now)
	assert.Equal(t, 3, strings.Count(feed, "BEGIN:VEVENT"))
}

func TestBuild_LocalizedSummary(t *testing.T) {
	now := time.Date(2024, 11, 28, 10, 0, 0, 0, time.UTC)
	b := &ics.Builder{
		FormatSummary: func(name string, age int, yearKnown bool) string {
			return fmt.Sprintf("Fete: %s (%d)", name, age)
		},
	}
	contacts := []contact.Contact{{
		Phone:     "+1",
		Name:      "Ada",
		Birthday:  time.Date(1985, 5, 2, 0, 0, 0, 0, time.UTC),
		YearKnown: true,
		Active:    true,
	}}

	feed := buildFeed(t, b, contacts, now)
	assert.Contains(t, feed, "Fete: Ada (39)")
}

func TestBuild_Alarm(t *testing.T) {
	now := time.Date(2024, 11, 28, 10, 0, 0, 0, time.UTC)
	contacts := []contact.Contact{{
		Phone:    "+1",
		Name:     "Ada",
		Birthday: time.Date(1985, 5, 2, 0, 0, 0, 0, time.UTC),
		Active:   true,
	}}

	t.Run("With trigger", func(t *testing.T) {
		feed := buildFeed(t, &ics.Builder{ReminderTrigger: "-P1D"}, contacts, now)
		assert.Equal(t, 3, strings.Count(feed, "BEGIN:VALARM"))
		assert.Contains(t, feed, "TRIGGER:-P1D")
	})

	t.Run("Without trigger", func(t *testing.T) {
		feed := buildFeed(t, &ics.Builder{}, contacts, now)
		assert.NotContains(t, feed, "BEGIN:VALARM")
	})
}

// TestBuild_StableUIDs verifies that two consecutive builds emit identical
// UIDs, so calendar clients update events in place instead of duplicating them.
func TestBuild_StableUIDs(t *testing.T) {
	now := time.Date(2024, 11, 28, 10, 0, 0, 0, time.UTC)
	contacts := []contact.Contact{{
		Phone:    "+1",
		Name:     "Ada",
		Birthday: time.Date(1985, 5, 2, 0, 0, 0, 0, time.UTC),
		Active:   true,
	}}

	first := buildFeed(t, &ics.Builder{}, contacts, now)
	second := buildFeed(t, &ics.Builder{}, contacts, now.Add(48*time.Hour))

	uids := func(feed string) []string {
		var out []string
		for _, line := range strings.Split(feed, "\r\n") {
			if strings.HasPrefix(line, "UID:") {
				out = append(out, line)
			}
		}
		return out
	}

	require.NotEmpty(t, uids(first))
	assert.Equal(t, uids(first), uids(second))
}
