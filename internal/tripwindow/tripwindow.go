// Package tripwindow turns a calendar date plus a free-form time of day into an
// absolute instant. Booking creation and the availability resolver both go
// through Combine so the two never disagree about when a trip starts.
package tripwindow

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind tags how a time-of-day string was understood.
type Kind int

const (
	// KindAbsent means the string was empty or unparseable; the date keeps its own time.
	KindAbsent Kind = iota
	KindClock24
	KindMeridiem
)

func (k Kind) String() string {
	switch k {
	case KindClock24:
		return "24h"
	case KindMeridiem:
		return "am/pm"
	default:
		return "absent"
	}
}

type TimeOfDay struct {
	Kind   Kind
	Hour   int
	Minute int
}

var (
	clock24Re  = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	meridiemRe = regexp.MustCompile(`(?i)^(\d{1,2}):(\d{2})\s*(am|pm)$`)
)

// ParseTimeOfDay never fails: anything it cannot read is KindAbsent.
func ParseTimeOfDay(raw string) TimeOfDay {
	s := strings.TrimSpace(raw)
	if s == "" {
		return TimeOfDay{Kind: KindAbsent}
	}

	if m := meridiemRe.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour < 1 || hour > 12 || minute > 59 {
			return TimeOfDay{Kind: KindAbsent}
		}
		pm := strings.EqualFold(m[3], "pm")
		switch {
		case hour == 12 && !pm:
			hour = 0
		case hour != 12 && pm:
			hour += 12
		}
		return TimeOfDay{Kind: KindMeridiem, Hour: hour, Minute: minute}
	}

	if m := clock24Re.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return TimeOfDay{Kind: KindAbsent}
		}
		return TimeOfDay{Kind: KindClock24, Hour: hour, Minute: minute}
	}

	return TimeOfDay{Kind: KindAbsent}
}

// On places the time of day on date's calendar day, in date's location.
// An absent time returns date unchanged (usually midnight).
func (t TimeOfDay) On(date time.Time) time.Time {
	if t.Kind == KindAbsent {
		return date
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, date.Location())
}

// Combine is ParseTimeOfDay(raw).On(date).
func Combine(date time.Time, raw string) time.Time {
	return ParseTimeOfDay(raw).On(date)
}

// Window is a half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func New(startDate time.Time, startTime string, endDate time.Time, endTime string) Window {
	return Window{
		Start: Combine(startDate, startTime),
		End:   Combine(endDate, endTime),
	}
}

func (w Window) Valid() bool {
	return w.End.After(w.Start)
}

// Overlaps uses the half-open test; windows that only touch do not overlap.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && w.End.After(o.Start)
}

// DateKey formats the calendar day of t as YYYY-MM-DD in t's own location.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
