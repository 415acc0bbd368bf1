// Package temporal classifies a conversation into one of three temporal
// modes based on the session context: reflection for past dates, active for
// the present, planning for future dates.
package temporal

import (
	"fmt"
	"strings"
	"time"
)

// Mode is the temporal frame of one session.
type Mode string

const (
	ModeReflection Mode = "reflection"
	ModeActive     Mode = "active"
	ModePlanning   Mode = "planning"
)

const (
	futureDateMarker = "is future date:"
	targetDateMarker = "target date:"
)

var targetDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"Monday, January 2, 2006",
	time.RFC3339,
}

// Classify derives the mode from free-text session context. An explicit
// "Is Future Date: true" marker wins without date parsing. Otherwise a
// "Target Date:" marker is compared against now at day granularity: earlier
// days classify as reflection, later days as planning. Missing markers,
// unparseable dates and same-day targets all classify as active.
//
// Classify is deterministic given (contextText, now) and never fails; use
// ClassifyStrict when the caller wants to observe parse failures.
func Classify(contextText string, now time.Time) Mode {
	mode, _ := ClassifyStrict(contextText, now)
	return mode
}

// ClassifyStrict is Classify with the date parse error exposed. The returned
// mode is always valid; a non-nil error only explains an active fallback.
func ClassifyStrict(contextText string, now time.Time) (Mode, error) {
	if isFutureDate(contextText) {
		return ModePlanning, nil
	}
	raw, found := markerValue(contextText, targetDateMarker)
	if !found {
		return ModeActive, nil
	}
	target, err := parseTargetDate(raw)
	if err != nil {
		return ModeActive, fmt.Errorf("temporal: parse target date %q: %w", raw, err)
	}
	switch compareDays(target, now) {
	case -1:
		return ModeReflection, nil
	case 1:
		return ModePlanning, nil
	default:
		return ModeActive, nil
	}
}

// compareDays compares two instants at day granularity in their own
// calendars, stripping time-of-day entirely.
func compareDays(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	aKey := ay*10000 + int(am)*100 + ad
	bKey := by*10000 + int(bm)*100 + bd
	switch {
	case aKey < bKey:
		return -1
	case aKey > bKey:
		return 1
	default:
		return 0
	}
}

// Valid reports whether m is one of the three known modes.
func Valid(m Mode) bool {
	switch m {
	case ModeReflection, ModeActive, ModePlanning:
		return true
	}
	return false
}

func isFutureDate(contextText string) bool {
	value, found := markerValue(contextText, futureDateMarker)
	if !found {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(value), "true")
}

// markerValue returns the remainder of the first line starting with the
// given case-insensitive marker.
func markerValue(contextText, marker string) (string, bool) {
	for line := range strings.Lines(contextText) {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) < len(marker) {
			continue
		}
		if strings.EqualFold(trimmed[:len(marker)], marker) {
			return strings.TrimSpace(trimmed[len(marker):]), true
		}
	}
	return "", false
}

func parseTargetDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	var lastErr error
	for _, layout := range targetDateLayouts {
		parsed, err := time.ParseInLocation(layout, raw, time.Local)
		if err == nil {
			return parsed, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
