package reminder

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Alfro6ull/openclaw-channel-dingtalk/plugin/timeparse"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/server/timezone"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/store"
)

// Notifier is the message delivery capability consumed by the poller.
type Notifier interface {
	SendText(ctx context.Context, userID, text string) error
}

// DefaultSnooze is how far a snoozed reminder is pushed out.
const DefaultSnooze = 10 * time.Minute

// CreateResult reports the outcome of parsing and scheduling a reminder from
// free text. On any outcome other than ok the reminder is nil and Outcome
// tells the conversational layer which slot to ask for.
type CreateResult struct {
	Outcome  timeparse.Outcome
	Reminder *Reminder
}

// Service manages the reminder collection for one account.
type Service struct {
	driver  store.Driver
	account string
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a reminder service backed by driver.
func NewService(driver store.Driver, account string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		driver:  driver,
		account: account,
		logger:  logger,
		now:     time.Now,
	}
}

// SetNowFunc replaces the clock, for tests.
func (s *Service) SetNowFunc(now func() time.Time) {
	s.now = now
}

// CreateFromText parses free text ("明天早上八点半提醒我开会") and schedules a
// reminder in the user's timezone.
func (s *Service) CreateFromText(ctx context.Context, userID, text, tz string) (*CreateResult, error) {
	req := timeparse.ParseReminder(text)
	if req.Outcome != timeparse.OutcomeOK {
		return &CreateResult{Outcome: req.Outcome}, nil
	}

	message := req.Subject
	if message == "" {
		message = "提醒"
	}

	at := s.resolveInstant(tz, req.DayOffset, req.Hour, req.Minute)
	r, err := s.create(ctx, userID, message, at, tz, "")
	if err != nil {
		return nil, err
	}
	return &CreateResult{Outcome: timeparse.OutcomeOK, Reminder: r}, nil
}

// CreateAt schedules a reminder at an already-resolved local time. This is
// the structured entry point; the free-text path above is canonical.
func (s *Service) CreateAt(ctx context.Context, userID, message, tz string, dayOffset, hour, minute int) (*Reminder, error) {
	at := s.resolveInstant(tz, dayOffset, hour, minute)
	return s.create(ctx, userID, message, at, tz, "")
}

// resolveInstant turns (dayOffset, hour, minute) in tz into an absolute
// instant. A time that already passed today rolls forward to tomorrow.
func (s *Service) resolveInstant(tz string, dayOffset, hour, minute int) int64 {
	now := s.now().Unix()
	r := timezone.Project(now, tz)

	y, m, d := timezone.AddCalendarDays(r.Year, r.Month, r.Day, dayOffset)
	at := timezone.LocalToUnix(tz, y, m, d, hour, minute, 0)
	if at <= now && dayOffset == 0 {
		y, m, d = timezone.AddCalendarDays(y, m, d, 1)
		at = timezone.LocalToUnix(tz, y, m, d, hour, minute, 0)
	}
	return at
}

func (s *Service) create(ctx context.Context, userID, message string, at int64, tz, snoozedFrom string) (*Reminder, error) {
	doc := store.LoadDoc[Document](ctx, s.driver, store.ConcernReminders, s.account)
	if doc == nil {
		doc = Document{}
	}

	r := &Reminder{
		ID:            uuid.New().String()[:12],
		UserID:        userID,
		Text:          message,
		ScheduledAt:   at,
		Timezone:      tz,
		CreatedAt:     s.now().Unix(),
		SnoozedFromID: snoozedFrom,
	}
	doc[r.ID] = r

	if err := store.SaveDoc(ctx, s.driver, store.ConcernReminders, s.account, doc); err != nil {
		return nil, err
	}
	return r, nil
}

// Cancel marks a pending reminder canceled. Returns false when the id does
// not exist, belongs to another user, or is already terminal; the caller
// cannot distinguish those cases.
func (s *Service) Cancel(ctx context.Context, userID, id string) (bool, error) {
	doc := store.LoadDoc[Document](ctx, s.driver, store.ConcernReminders, s.account)
	r, ok := doc[id]
	if !ok || r.UserID != userID || r.Terminal() {
		return false, nil
	}

	r.CanceledAt = s.now().Unix()
	if err := store.SaveDoc(ctx, s.driver, store.ConcernReminders, s.account, doc); err != nil {
		return false, err
	}
	return true, nil
}

// Acknowledge records the user's reply to a delivered reminder. A snooze
// acknowledgment creates a new linked reminder and keeps the old record as
// history.
func (s *Service) Acknowledge(ctx context.Context, userID, id string, action AckAction) (*Reminder, error) {
	doc := store.LoadDoc[Document](ctx, s.driver, store.ConcernReminders, s.account)
	r, ok := doc[id]
	if !ok || r.UserID != userID || r.SentAt == 0 {
		return nil, nil
	}

	now := s.now()
	r.AcknowledgedAt = now.Unix()
	r.AckAction = action

	var next *Reminder
	if action == AckSnoozed {
		next = &Reminder{
			ID:            uuid.New().String()[:12],
			UserID:        userID,
			Text:          r.Text,
			ScheduledAt:   now.Add(DefaultSnooze).Unix(),
			Timezone:      r.Timezone,
			CreatedAt:     now.Unix(),
			SnoozedFromID: r.ID,
		}
		r.NextReminderID = next.ID
		doc[next.ID] = next
	}

	if err := store.SaveDoc(ctx, s.driver, store.ConcernReminders, s.account, doc); err != nil {
		return nil, err
	}
	return next, nil
}

// ListPending returns the user's not-yet-fired reminders ordered by
// scheduled time.
func (s *Service) ListPending(ctx context.Context, userID string) []*Reminder {
	doc := store.LoadDoc[Document](ctx, s.driver, store.ConcernReminders, s.account)

	var pending []*Reminder
	for _, r := range doc {
		if r.UserID == userID && !r.Terminal() {
			pending = append(pending, r)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ScheduledAt < pending[j].ScheduledAt })
	return pending
}

// LastSent returns the user's most recently delivered, unacknowledged
// reminder, used to resolve a bare "完成"/"稍后提醒" reply.
func (s *Service) LastSent(ctx context.Context, userID string) *Reminder {
	doc := store.LoadDoc[Document](ctx, s.driver, store.ConcernReminders, s.account)

	var last *Reminder
	for _, r := range doc {
		if r.UserID != userID || r.SentAt == 0 || r.AcknowledgedAt != 0 {
			continue
		}
		if last == nil || r.SentAt > last.SentAt {
			last = r
		}
	}
	return last
}

// Tick runs one poll cycle: deliver due reminders, then prune terminal
// records past retention. A delivery failure leaves the reminder unsent so
// the next tick retries it while it remains inside the overdue window.
func (s *Service) Tick(ctx context.Context, notifier Notifier) int {
	doc := store.LoadDoc[Document](ctx, s.driver, store.ConcernReminders, s.account)
	if len(doc) == 0 {
		return 0
	}

	now := s.now().Unix()
	ids := make([]string, 0, len(doc))
	for id := range doc {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return doc[ids[i]].CreatedAt < doc[ids[j]].CreatedAt })

	dirty := false
	sent := 0
	for _, id := range ids {
		r := doc[id]
		if r.Prunable(now) {
			delete(doc, id)
			dirty = true
			continue
		}
		if !r.Due(now) {
			continue
		}

		text := "⏰ 提醒：" + r.Text + "\n（回复「完成」「稍后提醒」或「取消」）"
		if err := notifier.SendText(ctx, r.UserID, text); err != nil {
			s.logger.Warn("reminder delivery failed, will retry",
				"reminder_id", r.ID, "user_id", r.UserID, "error", err)
			continue
		}

		r.SentAt = now
		dirty = true
		sent++
	}

	if dirty {
		if err := store.SaveDoc(ctx, s.driver, store.ConcernReminders, s.account, doc); err != nil {
			s.logger.Error("failed to persist reminders", "error", err)
		}
	}
	return sent
}
