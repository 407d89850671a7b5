package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Alfro6ull/openclaw-channel-dingtalk/server/timezone"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/store"
)

// MaxPagesPerTick bounds upstream event-listing pagination per watch per
// tick.
const MaxPagesPerTick = 5

// Notifier is the message delivery capability consumed by the poller.
type Notifier interface {
	SendText(ctx context.Context, userID, text string) error
}

// Client is the upstream calendar capability.
type Client interface {
	// ListCalendars returns the user's calendars; the poller caches the
	// primary one's id after the first lookup.
	ListCalendars(ctx context.Context, userID string) ([]Calendar, error)

	// ListEvents returns one page of events starting inside [from, to] plus
	// the next page token ("" when exhausted).
	ListEvents(ctx context.Context, userID, calendarID string, from, to int64, pageToken string) ([]Event, string, error)
}

// Service manages calendar watches for one account.
type Service struct {
	driver  store.Driver
	account string
	client  Client
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a calendar-watch service.
func NewService(driver store.Driver, account string, client Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		driver:  driver,
		account: account,
		client:  client,
		logger:  logger,
		now:     time.Now,
	}
}

// SetNowFunc replaces the clock, for tests.
func (s *Service) SetNowFunc(now func() time.Time) {
	s.now = now
}

// Enable turns on meeting reminders for a user.
func (s *Service) Enable(ctx context.Context, userID string, minutesBefore int, tz string) (*Watch, error) {
	now := s.now().Unix()
	w := &Watch{
		UserID:        userID,
		Enabled:       true,
		MinutesBefore: minutesBefore,
		Timezone:      tz,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	doc := s.load(ctx)
	if prev, ok := doc.Watches[userID]; ok {
		w.CreatedAt = prev.CreatedAt
	}
	doc.Watches[userID] = w

	if err := s.save(ctx, doc); err != nil {
		return nil, err
	}
	return w, nil
}

// Disable turns off meeting reminders. Returns false when no watch exists.
func (s *Service) Disable(ctx context.Context, userID string) (bool, error) {
	doc := s.load(ctx)
	w, ok := doc.Watches[userID]
	if !ok || !w.Enabled {
		return false, nil
	}
	w.Enabled = false
	w.UpdatedAt = s.now().Unix()
	if err := s.save(ctx, doc); err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the user's watch, or nil.
func (s *Service) Get(ctx context.Context, userID string) *Watch {
	return s.load(ctx).Watches[userID]
}

// Tick runs one poll cycle over all enabled watches. Upstream failures are
// per-watch: one user's broken calendar never blocks the others.
func (s *Service) Tick(ctx context.Context, notifier Notifier) int {
	doc := s.load(ctx)
	if len(doc.Watches) == 0 {
		return 0
	}

	users := make([]string, 0, len(doc.Watches))
	for userID := range doc.Watches {
		users = append(users, userID)
	}
	sort.Strings(users)

	dirty := false
	notified := 0
	for _, userID := range users {
		w := doc.Watches[userID]
		if !w.Enabled {
			continue
		}
		n, changed := s.tickWatch(ctx, notifier, doc, w)
		notified += n
		dirty = dirty || changed
	}

	if dirty {
		if err := s.save(ctx, doc); err != nil {
			s.logger.Error("failed to persist calendar watches", "error", err)
		}
	}
	return notified
}

// tickWatch processes one user's watch and reports whether doc changed.
func (s *Service) tickWatch(ctx context.Context, notifier Notifier, doc *Document, w *Watch) (int, bool) {
	state, ok := doc.States[w.UserID]
	if !ok {
		state = &UserState{}
		doc.States[w.UserID] = state
	}

	dirty := false
	if state.PrimaryCalendarID == "" {
		id, err := s.resolvePrimaryCalendar(ctx, w.UserID)
		if err != nil {
			s.logger.Warn("calendar lookup failed", "user_id", w.UserID, "error", err)
			return 0, false
		}
		state.PrimaryCalendarID = id
		dirty = true
	}

	now := s.now().Unix()
	from := now
	to := now + int64(w.MinutesBefore)*60

	notified := 0
	pageToken := ""
	for page := 0; page < MaxPagesPerTick; page++ {
		events, next, err := s.client.ListEvents(ctx, w.UserID, state.PrimaryCalendarID, from, to, pageToken)
		if err != nil {
			s.logger.Warn("event listing failed", "user_id", w.UserID, "error", err)
			return notified, dirty
		}

		for i := range events {
			e := &events[i]
			if !e.Eligible(now, w.MinutesBefore) || state.Notified(e.Key()) {
				continue
			}

			minutes := (e.StartTs - now + 59) / 60
			text := fmt.Sprintf("📅 会议提醒：「%s」将于 %s 开始（约 %d 分钟后）",
				e.Title, timezone.FormatLocal(e.StartTs, w.Timezone), minutes)
			if err := notifier.SendText(ctx, w.UserID, text); err != nil {
				s.logger.Warn("meeting notification failed, will retry",
					"user_id", w.UserID, "event_id", e.ID, "error", err)
				continue
			}

			state.MarkNotified(e.Key())
			dirty = true
			notified++
		}

		if next == "" {
			break
		}
		pageToken = next
	}
	return notified, dirty
}

func (s *Service) resolvePrimaryCalendar(ctx context.Context, userID string) (string, error) {
	calendars, err := s.client.ListCalendars(ctx, userID)
	if err != nil {
		return "", err
	}
	for _, c := range calendars {
		if c.Primary {
			return c.ID, nil
		}
	}
	if len(calendars) > 0 {
		return calendars[0].ID, nil
	}
	return "", fmt.Errorf("user %s has no calendars", userID)
}

func (s *Service) load(ctx context.Context) *Document {
	doc := store.LoadDoc[*Document](ctx, s.driver, store.ConcernCalendarWatches, s.account)
	if doc == nil {
		doc = &Document{}
	}
	if doc.Watches == nil {
		doc.Watches = make(map[string]*Watch)
	}
	if doc.States == nil {
		doc.States = make(map[string]*UserState)
	}
	return doc
}

func (s *Service) save(ctx context.Context, doc *Document) error {
	return store.SaveDoc(ctx, s.driver, store.ConcernCalendarWatches, s.account, doc)
}
