// Package reminder implements one-shot reminders parsed from chat text and
// delivered by a polling loop.
package reminder

import (
	"github.com/Alfro6ull/openclaw-channel-dingtalk/server/timezone"
)

// AckAction records how a user answered a delivered reminder.
type AckAction string

const (
	AckDone     AckAction = "done"
	AckSnoozed  AckAction = "snoozed"
	AckCanceled AckAction = "canceled"
)

// Reminder is a one-shot scheduled notification. Terminal records (sent or
// canceled) are kept as history until the retention pruner removes them.
type Reminder struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Text           string    `json:"text"`
	ScheduledAt    int64     `json:"scheduledAt"`
	Timezone       string    `json:"timezone"`
	CreatedAt      int64     `json:"createdAt"`
	SentAt         int64     `json:"sentAt,omitempty"`
	CanceledAt     int64     `json:"canceledAt,omitempty"`
	AcknowledgedAt int64     `json:"acknowledgedAt,omitempty"`
	AckAction      AckAction `json:"ackAction,omitempty"`
	NextReminderID string    `json:"nextReminderId,omitempty"`
	SnoozedFromID  string    `json:"snoozedFromId,omitempty"`
}

// Document is the persisted reminder collection, keyed by reminder id.
type Document map[string]*Reminder

// MaxOverdue bounds how late a reminder may still fire. A reminder further
// overdue than this was missed (poller down too long) and is never delivered
// late.
const MaxOverdue = 3600 // seconds

// RetentionSeconds is how long terminal records are kept before pruning.
const RetentionSeconds = 7 * 24 * 3600

// Due reports whether the reminder should fire at now. It fires at most
// once, never after cancelation, and only inside the overdue grace window.
func (r *Reminder) Due(now int64) bool {
	if r.SentAt != 0 || r.CanceledAt != 0 {
		return false
	}
	return now >= r.ScheduledAt && now-r.ScheduledAt <= MaxOverdue
}

// Terminal reports whether the reminder can never fire again.
func (r *Reminder) Terminal() bool {
	return r.SentAt != 0 || r.CanceledAt != 0
}

// Prunable reports whether a terminal record is past retention at now.
func (r *Reminder) Prunable(now int64) bool {
	terminalAt := r.SentAt
	if r.CanceledAt != 0 && (terminalAt == 0 || r.CanceledAt > terminalAt) {
		terminalAt = r.CanceledAt
	}
	return terminalAt != 0 && now-terminalAt > RetentionSeconds
}

// DisplayTime renders the scheduled instant in the reminder's own timezone.
func (r *Reminder) DisplayTime() string {
	return timezone.FormatLocal(r.ScheduledAt, r.Timezone)
}
