package tripwindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		raw    string
		kind   Kind
		hour   int
		minute int
	}{
		{"14:30", KindClock24, 14, 30},
		{"9:05", KindClock24, 9, 5},
		{"00:00", KindClock24, 0, 0},
		{" 23:59 ", KindClock24, 23, 59},
		{"12:00 AM", KindMeridiem, 0, 0},
		{"12:15 am", KindMeridiem, 0, 15},
		{"12:00 PM", KindMeridiem, 12, 0},
		{"1:30 PM", KindMeridiem, 13, 30},
		{"11:45pm", KindMeridiem, 23, 45},
		{"7:00 Am", KindMeridiem, 7, 0},
		{"", KindAbsent, 0, 0},
		{"noon", KindAbsent, 0, 0},
		{"24:00", KindAbsent, 0, 0},
		{"10:60", KindAbsent, 0, 0},
		{"13:00 PM", KindAbsent, 0, 0},
		{"0:30 AM", KindAbsent, 0, 0},
		{"1430", KindAbsent, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := ParseTimeOfDay(tt.raw)
			assert.Equal(t, tt.kind, got.Kind)
			if tt.kind != KindAbsent {
				assert.Equal(t, tt.hour, got.Hour)
				assert.Equal(t, tt.minute, got.Minute)
			}
		})
	}
}

func TestCombine(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, loc)

	assert.Equal(t, time.Date(2025, 3, 10, 14, 30, 0, 0, loc), Combine(date, "14:30"))
	assert.Equal(t, time.Date(2025, 3, 10, 14, 30, 0, 0, loc), Combine(date, "2:30 PM"))

	// Absent and garbage fall back to the date's own time.
	withTime := time.Date(2025, 3, 10, 8, 15, 0, 0, loc)
	assert.Equal(t, withTime, Combine(withTime, ""))
	assert.Equal(t, withTime, Combine(withTime, "soon"))

	// The date's own clock is replaced, not added to.
	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, loc), Combine(withTime, "09:00"))
}

func TestWindowOverlaps(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	w := New(day, "10:00", day, "14:00")
	assert.True(t, w.Valid())

	tests := []struct {
		name  string
		other Window
		want  bool
	}{
		{"inside", New(day, "11:00", day, "12:00"), true},
		{"covers", New(day, "09:00", day, "15:00"), true},
		{"overlaps start", New(day, "09:00", day, "10:30"), true},
		{"overlaps end", New(day, "13:59", day, "18:00"), true},
		{"touches end", New(day, "14:00", day, "16:00"), false},
		{"touches start", New(day, "08:00", day, "10:00"), false},
		{"before", New(day, "06:00", day, "08:00"), false},
		{"next day", New(day.AddDate(0, 0, 1), "10:00", day.AddDate(0, 0, 1), "14:00"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(w))
		})
	}

	assert.False(t, New(day, "14:00", day, "14:00").Valid())
	assert.False(t, New(day, "2:00 PM", day, "10:00").Valid())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "24h", KindClock24.String())
	assert.Equal(t, "am/pm", KindMeridiem.String())
	assert.Equal(t, "absent", KindAbsent.String())
}
