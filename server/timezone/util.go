// Package timezone provides zone-aware time conversion for the DingTalk channel.
//
// All scheduling decisions in this bot are made on Unix timestamps; this
// package is the single place where those instants are projected into (and
// recovered from) a user's wall clock.
package timezone

import (
	"fmt"
	"time"
)

// DefaultTimezone is the display timezone used when a user never told us
// where they are.
const DefaultTimezone = "Asia/Shanghai"

// LocationAsiaShanghai is the pre-loaded default location.
var LocationAsiaShanghai = Location(DefaultTimezone)

// Reading is the wall-clock reading of an instant in some timezone.
// It is ephemeral: recomputed on demand, never persisted.
type Reading struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
}

// Location resolves an IANA timezone identifier (e.g. "Asia/Shanghai").
// An unknown or empty identifier falls back to UTC rather than failing:
// user-supplied zone strings must never take down the scheduler.
func Location(tz string) *time.Location {
	if tz == "" || tz == "UTC" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsValid reports whether tz is a loadable IANA timezone identifier.
func IsValid(tz string) bool {
	if tz == "" || tz == "UTC" {
		return true
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// Project converts a Unix timestamp to the wall-clock reading in tz.
func Project(ts int64, tz string) Reading {
	t := time.Unix(ts, 0).In(Location(tz))
	return Reading{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}
}

// LocalToUnix converts a wall-clock reading in tz to a Unix timestamp.
//
// time.Date resolves the zone offset for the requested local fields,
// including across DST transitions, so no manual fixed-point correction is
// needed here. For a skipped local time (spring-forward gap) the Go runtime
// picks the instant after the transition, which is acceptable for reminders.
func LocalToUnix(tz string, year, month, day, hour, minute, second int) int64 {
	loc := Location(tz)
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, loc).Unix()
}

// AddCalendarDays adds whole days to a calendar date in pure calendar-day
// space. The date is anchored at UTC noon so the arithmetic can never drift
// across a day boundary because of a DST transition in any particular zone.
func AddCalendarDays(year, month, day, offset int) (int, int, int) {
	anchor := time.Date(year, time.Month(month), day, 12, 0, 0, 0, time.UTC)
	shifted := anchor.AddDate(0, 0, offset)
	return shifted.Year(), int(shifted.Month()), shifted.Day()
}

// FormatLocal formats an instant as "2006-01-02 15:04" in tz.
func FormatLocal(ts int64, tz string) string {
	return time.Unix(ts, 0).In(Location(tz)).Format("2006-01-02 15:04")
}

// LocalDateKey returns the local calendar date of an instant in tz as
// "2006-01-02". Two instants share a key iff they fall on the same local day.
func LocalDateKey(ts int64, tz string) string {
	return time.Unix(ts, 0).In(Location(tz)).Format("2006-01-02")
}

// MinuteOfDay returns the local minute-of-day (0..1439) of an instant in tz.
func MinuteOfDay(ts int64, tz string) int {
	t := time.Unix(ts, 0).In(Location(tz))
	return t.Hour()*60 + t.Minute()
}

// StartOfDay returns the instant at which the local day containing ts begins
// in tz.
func StartOfDay(ts int64, tz string) int64 {
	loc := Location(tz)
	t := time.Unix(ts, 0).In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc).Unix()
}

// FormatClock renders an (hour, minute) pair as "HH:mm".
func FormatClock(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}
