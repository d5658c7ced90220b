package services

import (
	"strconv"
	"strings"
	"time"
)

// TransitionChoice is the publication policy's verdict for a publish-intent
// submission.
type TransitionChoice string

const (
	TransitionImmediate TransitionChoice = "IMMEDIATE"
	TransitionScheduled TransitionChoice = "SCHEDULED"
)

// presentationZone is the timezone opening dates are entered and displayed in.
var presentationZone = mustLoadLocation("Europe/London")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DecideTransition chooses publish-now versus schedule-for-later from the
// opening date question's multiResponse (day, month, year, "HH:MM").
//
// An incomplete opening date cannot be scheduled, so any missing component
// falls back to IMMEDIATE. A complete date is compared strictly: only an
// opening instant after now schedules; an instant equal to now publishes
// immediately. The result is never cached on the advert — now changes
// between edits.
func DecideTransition(openingDate []string, now time.Time) TransitionChoice {
	opening, ok := collapseDate(openingDate)
	if !ok {
		return TransitionImmediate
	}
	if opening.After(now) {
		return TransitionScheduled
	}
	return TransitionImmediate
}

// collapseDate builds a single instant from the four stored date components,
// interpreting them in the presentation timezone. ok is false unless all five
// discrete values (day, month, year, hour, minute) are present and numeric.
func collapseDate(parts []string) (time.Time, bool) {
	if len(parts) != 4 {
		return time.Time{}, false
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return time.Time{}, false
		}
	}
	day, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	month, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	year, err3 := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	hh, mm, found := strings.Cut(strings.TrimSpace(parts[3]), ":")
	if !found {
		return time.Time{}, false
	}
	hour, err4 := strconv.Atoi(hh)
	minute, err5 := strconv.Atoi(mm)
	if err4 != nil || err5 != nil {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, presentationZone), true
}
