// Package calendar implements meeting reminders driven by an upstream
// calendar: users enable a watch and get pinged a configurable number of
// minutes before each upcoming event.
package calendar

import "fmt"

// MinutesBefore bounds for a watch.
const (
	MinLeadMinutes = 1
	MaxLeadMinutes = 180
)

// MaxNotifiedKeys bounds the per-user history of already-notified events.
// Many distinct meetings can be imminent at once, so de-duplication uses a
// bounded ring of composite keys rather than a single "last sent" pointer.
const MaxNotifiedKeys = 500

// Watch is one user's meeting-reminder setting.
type Watch struct {
	UserID        string `json:"userId"`
	Enabled       bool   `json:"enabled"`
	MinutesBefore int    `json:"minutesBefore"`
	Timezone      string `json:"timeZone"`
	CreatedAt     int64  `json:"createdAt"`
	UpdatedAt     int64  `json:"updatedAt"`
}

// UserState holds the per-user auxiliary caches: the resolved primary
// calendar id, and the ring of notified event keys.
type UserState struct {
	PrimaryCalendarID string   `json:"primaryCalendarId,omitempty"`
	NotifiedKeys      []string `json:"notifiedKeys,omitempty"`
}

// Document is the persisted calendar-watch collection.
type Document struct {
	Watches map[string]*Watch     `json:"watches,omitempty"`
	States  map[string]*UserState `json:"states,omitempty"`
}

// Calendar is an upstream calendar descriptor.
type Calendar struct {
	ID      string
	Name    string
	Primary bool
}

// Event is an upstream calendar event. RawStart is the upstream's unparsed
// start string; it participates in the de-duplication key so that a
// rescheduled event (same id, new start) notifies again.
type Event struct {
	ID       string
	Title    string
	StartTs  int64
	RawStart string
	AllDay   bool
}

// Key is the composite de-duplication key for a notified event.
func (e *Event) Key() string {
	return e.ID + "|" + e.RawStart
}

// Eligible reports whether the event should be notified at now for a watch
// with the given lead: it starts in the future, within lead minutes, and is
// not an all-day entry.
func (e *Event) Eligible(now int64, leadMinutes int) bool {
	if e.AllDay {
		return false
	}
	return e.StartTs > now && e.StartTs-now <= int64(leadMinutes)*60
}

// Notified reports whether key is in the user's history.
func (st *UserState) Notified(key string) bool {
	for _, k := range st.NotifiedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// MarkNotified appends key to the history, trimming the oldest entries past
// the bound.
func (st *UserState) MarkNotified(key string) {
	st.NotifiedKeys = append(st.NotifiedKeys, key)
	if overflow := len(st.NotifiedKeys) - MaxNotifiedKeys; overflow > 0 {
		st.NotifiedKeys = append([]string(nil), st.NotifiedKeys[overflow:]...)
	}
}

// Validate checks watch parameters.
func (w *Watch) Validate() error {
	if w.MinutesBefore < MinLeadMinutes || w.MinutesBefore > MaxLeadMinutes {
		return fmt.Errorf("minutesBefore must be between %d and %d, got %d",
			MinLeadMinutes, MaxLeadMinutes, w.MinutesBefore)
	}
	return nil
}
