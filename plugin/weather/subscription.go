package weather

import (
	"fmt"

	"github.com/Alfro6ull/openclaw-channel-dingtalk/server/timezone"
)

// DueGraceMinutes is the width of the daily delivery window. A poll tick
// landing inside [target, target+grace] fires the push; a missed window means
// no push that day (no catch-up).
const DueGraceMinutes = 2

// Schedule describes when a subscription fires. Only daily schedules exist
// today; the type field keeps the document format open.
type Schedule struct {
	Type string `json:"type"` // "daily"
	Time string `json:"time"` // "HH:mm" in the place's timezone
}

// Subscription is one user's daily weather push. At most one exists per user;
// re-subscribing overwrites.
type Subscription struct {
	UserID            string   `json:"userId"`
	Place             Place    `json:"place"`
	Schedule          Schedule `json:"schedule"`
	CreatedAt         int64    `json:"createdAt"`
	UpdatedAt         int64    `json:"updatedAt"`
	LastSentLocalDate string   `json:"lastSentLocalDate,omitempty"`
}

// Document is the persisted subscription collection, keyed by user id.
type Document map[string]*Subscription

// TargetMinute returns the schedule's minute-of-day, or -1 if malformed.
func (s *Subscription) TargetMinute() int {
	var hour, minute int
	if _, err := fmt.Sscanf(s.Schedule.Time, "%d:%d", &hour, &minute); err != nil {
		return -1
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return -1
	}
	return hour*60 + minute
}

// Due reports whether the subscription should fire at now. LastSentLocalDate
// is the sole same-day de-duplication gate: it is compared against today's
// date in the place's own timezone.
func (s *Subscription) Due(now int64) bool {
	target := s.TargetMinute()
	if target < 0 {
		return false
	}
	tz := s.Place.Timezone
	if s.LastSentLocalDate == timezone.LocalDateKey(now, tz) {
		return false
	}
	minute := timezone.MinuteOfDay(now, tz)
	return minute >= target && minute <= target+DueGraceMinutes
}

// MarkSent stamps today's local date so the subscription cannot fire twice in
// the same local day.
func (s *Subscription) MarkSent(now int64) {
	s.LastSentLocalDate = timezone.LocalDateKey(now, s.Place.Timezone)
}
