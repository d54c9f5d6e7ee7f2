package report_test

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbrossard/keeptouch/internal/engine"
	"github.com/lbrossard/keeptouch/internal/report"
)

const fixedTimestamp = "2024-11-28"

func sampleClassifications() []engine.Classification {
	return []engine.Classification{
		{
			Name:           "Ada Lovelace",
			YearsInContact: 9,
			Birthday:       time.Date(1985, 11, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			Name:           "Lin",
			YearsInContact: 1,
			Birthday:       time.Date(1992, 11, 28, 0, 0, 0, 0, time.UTC),
		},
	}
}

func golden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

// TestFormat_Golden pins the rendered output of every report kind, in both
// languages, against golden files. Run with -update to regenerate.
func TestFormat_Golden(t *testing.T) {
	tests := []struct {
		name string
		lang string
		kind report.Kind
		cls  []engine.Classification
	}{
		{name: "today_en", lang: "en", kind: report.KindToday, cls: sampleClassifications()},
		{name: "month_en", lang: "en", kind: report.KindMonth, cls: sampleClassifications()},
		{name: "upcoming_en", lang: "en", kind: report.KindUpcoming, cls: sampleClassifications()},
		{name: "today_empty_en", lang: "en", kind: report.KindToday, cls: nil},
		{name: "upcoming_empty_en", lang: "en", kind: report.KindUpcoming, cls: nil},
		{name: "today_fr", lang: "fr", kind: report.KindToday, cls: sampleClassifications()},
		{name: "today_empty_fr", lang: "fr", kind: report.KindToday, cls: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := report.NewFormatter(tc.lang)
			out := f.Format(tc.cls, tc.kind, fixedTimestamp)
			golden(t).Assert(t, tc.name, []byte(out))
		})
	}
}

func TestFormat_UnknownKindIsEmpty(t *testing.T) {
	f := report.NewFormatter("en")
	assert.Empty(t, f.Format(sampleClassifications(), report.Kind("weekly"), fixedTimestamp))
}

func TestFormat_UnsupportedLanguageFallsBackToEnglish(t *testing.T) {
	f := report.NewFormatter("xx")
	out := f.Format(nil, report.KindToday, fixedTimestamp)
	assert.Contains(t, out, "No birthdays today.")
}

func TestParseKind(t *testing.T) {
	for _, valid := range []string{"today", "month", "upcoming"} {
		kind, err := report.ParseKind(valid)
		require.NoError(t, err)
		assert.Equal(t, report.Kind(valid), kind)
	}

	_, err := report.ParseKind("weekly")
	assert.Error(t, err)
}

func TestEventSummary(t *testing.T) {
	f := report.NewFormatter("en")

	assert.Equal(t, "Birthday: Ada", f.EventSummary("Ada", 39, false))
	assert.Equal(t, "Birthday: Ada (Birth)", f.EventSummary("Ada", 0, true))
	assert.Equal(t, "Birthday: Ada (39)", f.EventSummary("Ada", 39, true))
}
