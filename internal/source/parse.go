package source

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-vcard"

	"github.com/lbrossard/keeptouch/internal/config"
	"github.com/lbrossard/keeptouch/internal/contact"
)

// decodeCard maps a vCard onto the contact record. A card without a phone
// number has no natural key and is dropped.
func decodeCard(card vcard.Card) (contact.Contact, bool) {
	tel := card.Get(config.VCardTEL)
	if tel == nil || tel.Value == "" {
		slog.Warn(config.MsgSkippedNoTel,
			config.LogKeyComponent, config.CompSource)
		return contact.Contact{}, false
	}

	c := contact.Contact{
		Phone:         normalizePhone(tel.Value),
		Name:          cardName(card),
		FrequencyDays: config.DefaultFrequencyDays,
		Active:        true,
	}

	if bday := card.Get(config.VCardBDAY); bday != nil && bday.Value != "" {
		birthDate, yearKnown, err := parseDate(bday.Value)
		if err != nil {
			slog.Debug(config.MsgSkippedDate,
				config.LogKeyComponent, config.CompSource,
				config.LogKeyValue, bday.Value)
		} else {
			c.Birthday = birthDate
			c.YearKnown = yearKnown
		}
	}

	if email := card.Get(config.VCardEMAIL); email != nil {
		c.Email = email.Value
	}
	if cats := card.Get(config.VCardCATEGORIES); cats != nil && cats.Value != "" {
		c.Locations = splitList(cats.Value)
	}
	if org := card.Get(config.VCardORG); org != nil && org.Value != "" {
		c.Affiliations = splitList(strings.ReplaceAll(org.Value, ";", ","))
	}
	if ym := card.Get(config.VCardXYearMet); ym != nil {
		if year, err := strconv.Atoi(strings.TrimSpace(ym.Value)); err == nil {
			c.YearMet = year
		}
	}
	if freq := card.Get(config.VCardXFrequency); freq != nil {
		if days, err := strconv.Atoi(strings.TrimSpace(freq.Value)); err == nil && days > 0 {
			c.FrequencyDays = days
		}
	}
	if rev := card.Get(config.VCardREV); rev != nil && rev.Value != "" {
		if t, err := parseTimestamp(rev.Value); err == nil {
			c.LastContacted = t
		}
	}

	return c, true
}

// cardName applies the FN (Formatted) > N (Structured) > Fallback strategy.
func cardName(card vcard.Card) string {
	if fn := card.Get(config.VCardFN); fn != nil && fn.Value != "" {
		return fn.Value
	}
	if n := card.Get(config.VCardN); n != nil && n.Value != "" {
		return n.Value
	}
	return config.FallbackName
}

// parseDate handles various vCard date formats.
func parseDate(value string) (time.Time, bool, error) {
	// Full dates (Year known)
	formatsWithYear := []string{
		config.DateFormatFullDash,
		config.DateFormatFullBasic,
		config.DateFormatRFC3339,
		config.DateFormatFullT,
	}

	for _, f := range formatsWithYear {
		if t, err := time.Parse(f, value); err == nil {
			// Timestamp forms keep only their UTC calendar date; a birth
			// date is a day-of-year marker, not an instant.
			return contact.DateOnly(t), true, nil
		}
	}

	// Truncated dates (Year unknown) - vCard specific
	// Safe leap year fallback
	formatsWithoutYear := []string{config.DateFormatNoYearD, config.DateFormatNoYearB}
	for _, f := range formatsWithoutYear {
		if t, err := time.Parse(f, value); err == nil {
			safeDate := time.Date(config.DefaultLeapYear, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return safeDate, false, nil
		}
	}

	return time.Time{}, false, errors.New(config.ErrDateParse)
}

func parseTimestamp(value string) (time.Time, error) {
	formats := []string{time.RFC3339, "20060102T150405Z", config.DateFormatFullDash}
	for _, f := range formats {
		if t, err := time.Parse(f, value); err == nil {
			// Second precision: the store persists RFC3339 without
			// fractional seconds, and round-trip stability matters more
			// than sub-second REV resolution.
			return t.UTC().Truncate(time.Second), nil
		}
	}
	return time.Time{}, errors.New(config.ErrDateParse)
}

func normalizePhone(s string) string {
	return strings.TrimSpace(s)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
