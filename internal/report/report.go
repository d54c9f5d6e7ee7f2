// Package report renders birthday classifications into display strings for
// delivery. Formatting is a pure function of the classification list, the
// report kind and a caller-supplied timestamp; the package performs no I/O at
// render time.
package report

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"

	"github.com/lbrossard/keeptouch/internal/config"
	"github.com/lbrossard/keeptouch/internal/contact"
	"github.com/lbrossard/keeptouch/internal/engine"
)

// Kind selects the template set for a report.
type Kind string

const (
	KindToday    Kind = "today"
	KindMonth    Kind = "month"
	KindUpcoming Kind = "upcoming"
)

// ParseKind validates a kind string coming from a route or a CLI flag.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindToday, KindMonth, KindUpcoming:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%s: %q", config.ErrUnknownKind, s)
	}
}

// templateKeys maps a kind onto its translation keys. A lookup table keeps
// kind dispatch to a single map access.
type templateKeys struct {
	header string
	empty  string
	cta    string
}

var kindTemplates = map[Kind]templateKeys{
	KindToday: {
		header: "report_header_today",
		empty:  "report_empty_today",
		cta:    "report_cta_today",
	},
	KindMonth: {
		header: "report_header_month",
		empty:  "report_empty_month",
		cta:    "report_cta_month",
	},
	KindUpcoming: {
		header: "report_header_upcoming",
		empty:  "report_empty_upcoming",
		cta:    "report_cta_upcoming",
	},
}

// Formatter renders localized reports. Construct once per language and share;
// it is immutable after construction.
type Formatter struct {
	localizer *i18n.Localizer
}

// NewFormatter builds a formatter for the given ISO 639-1 language code,
// falling back to English for anything it cannot serve.
func NewFormatter(lang string) *Formatter {
	if lang == "" {
		lang = config.DefaultLanguage
	}

	slog.Debug(config.MsgFormatterInit,
		config.LogKeyComponent, config.CompReport,
		config.LogKeyLang, lang,
	)
	return &Formatter{
		localizer: i18n.NewLocalizer(newBundle(), lang, config.DefaultLanguage),
	}
}

// Format renders the classifications for the given kind. The timestamp string
// is supplied by the caller so rendering stays deterministic and testable.
func (f *Formatter) Format(cls []engine.Classification, kind Kind, timestamp string) string {
	keys, ok := kindTemplates[kind]
	if !ok {
		return ""
	}

	var b strings.Builder
	b.WriteString(f.localize(keys.header, map[string]any{"Timestamp": timestamp}, nil))
	b.WriteString("\n")

	if len(cls) == 0 {
		b.WriteString(f.localize(keys.empty, nil, nil))
		b.WriteString("\n")
		return b.String()
	}

	for _, c := range cls {
		b.WriteString(f.line(c))
		b.WriteString("\n")
	}
	b.WriteString(f.localize(keys.cta, nil, nil))
	b.WriteString("\n")
	return b.String()
}

func (f *Formatter) line(c engine.Classification) string {
	date := ""
	if md, err := contact.MonthDayOf(c.Birthday); err == nil {
		date = md.String()
	}
	return f.localize("report_line", map[string]any{
		"Name":  c.Name,
		"Date":  date,
		"Years": c.YearsInContact,
	}, c.YearsInContact)
}

// EventSummary renders a localized calendar event title. Age 0 with a known
// year is a birth event.
func (f *Formatter) EventSummary(name string, age int, yearKnown bool) string {
	if !yearKnown {
		return f.localize("event_summary", map[string]any{"Name": name}, nil)
	}
	if age == 0 {
		return f.localize("event_summary_birth", map[string]any{"Name": name}, nil)
	}
	return f.localize("event_summary_age", map[string]any{"Name": name, "Age": age}, nil)
}
