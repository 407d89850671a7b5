package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alfro6ull/openclaw-channel-dingtalk/plugin/timeparse"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/server/timezone"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/store"
)

type mockNotifier struct {
	mu    sync.Mutex
	sent  []string
	users []string
	fail  bool
}

func (m *mockNotifier) SendText(_ context.Context, userID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("upstream unavailable")
	}
	m.users = append(m.users, userID)
	m.sent = append(m.sent, text)
	return nil
}

func newTestService(t *testing.T, at time.Time) (*Service, *time.Time) {
	t.Helper()
	now := at
	svc := NewService(store.NewMemoryDriver(), "acct", nil)
	svc.SetNowFunc(func() time.Time { return now })
	return svc, &now
}

// fixedNow is 2026-05-20 09:00 Asia/Shanghai.
var fixedNow = time.Date(2026, 5, 20, 1, 0, 0, 0, time.UTC)

func TestCreateFromText(t *testing.T) {
	svc, _ := newTestService(t, fixedNow)

	res, err := svc.CreateFromText(context.Background(), "u1", "明天早上八点半提醒我开会", "Asia/Shanghai")
	require.NoError(t, err)
	require.Equal(t, timeparse.OutcomeOK, res.Outcome)
	require.NotNil(t, res.Reminder)

	assert.Equal(t, "开会", res.Reminder.Text)
	assert.Equal(t, "2026-05-21 08:30", res.Reminder.DisplayTime())

	r := timezone.Project(res.Reminder.ScheduledAt, "Asia/Shanghai")
	assert.Equal(t, 21, r.Day)
	assert.Equal(t, 8, r.Hour)
	assert.Equal(t, 30, r.Minute)
}

func TestCreateFromTextOutcomes(t *testing.T) {
	svc, _ := newTestService(t, fixedNow)
	ctx := context.Background()

	res, err := svc.CreateFromText(ctx, "u1", "提醒我开会", "Asia/Shanghai")
	require.NoError(t, err)
	assert.Equal(t, timeparse.OutcomeNeedTime, res.Outcome)
	assert.Nil(t, res.Reminder)

	res, err = svc.CreateFromText(ctx, "u1", "下午3点或晚上8点提醒我", "Asia/Shanghai")
	require.NoError(t, err)
	assert.Equal(t, timeparse.OutcomeMultipleTimes, res.Outcome)
}

func TestCreatePastTimeRollsToTomorrow(t *testing.T) {
	// Now is 09:00 local; "八点" already passed today.
	svc, _ := newTestService(t, fixedNow)

	res, err := svc.CreateFromText(context.Background(), "u1", "八点提醒我晨跑", "Asia/Shanghai")
	require.NoError(t, err)
	require.Equal(t, timeparse.OutcomeOK, res.Outcome)

	r := timezone.Project(res.Reminder.ScheduledAt, "Asia/Shanghai")
	assert.Equal(t, 21, r.Day)
	assert.Equal(t, 8, r.Hour)
}

func TestDueWindow(t *testing.T) {
	now := fixedNow.Unix()
	r := &Reminder{ScheduledAt: now}
	assert.True(t, r.Due(now), "scheduled exactly now is due")

	r = &Reminder{ScheduledAt: now - 61*60}
	assert.False(t, r.Due(now), "61 minutes overdue is missed")

	r = &Reminder{ScheduledAt: now + 1}
	assert.False(t, r.Due(now), "future is not due")

	r = &Reminder{ScheduledAt: now - 30*60}
	assert.True(t, r.Due(now), "inside the grace window is due")

	r = &Reminder{ScheduledAt: now, CanceledAt: now - 10}
	assert.False(t, r.Due(now), "canceled never fires")

	r = &Reminder{ScheduledAt: now, SentAt: now - 10}
	assert.False(t, r.Due(now), "sent never fires again")
}

func TestTickDeliversAllDueInOneCycle(t *testing.T) {
	svc, nowPtr := newTestService(t, fixedNow)
	ctx := context.Background()

	_, err := svc.CreateAt(ctx, "u1", "第一件事", "Asia/Shanghai", 0, 10, 0)
	require.NoError(t, err)
	*nowPtr = nowPtr.Add(5 * time.Second)
	_, err = svc.CreateAt(ctx, "u1", "第二件事", "Asia/Shanghai", 0, 10, 0)
	require.NoError(t, err)

	// Advance past both scheduled instants.
	*nowPtr = time.Date(2026, 5, 20, 2, 0, 30, 0, time.UTC) // 10:00:30 local

	n := &mockNotifier{}
	sent := svc.Tick(ctx, n)
	assert.Equal(t, 2, sent)
	require.Len(t, n.sent, 2)
	assert.Contains(t, n.sent[0], "第一件事")
	assert.Contains(t, n.sent[1], "第二件事")

	// Both are marked sent: a second tick delivers nothing.
	assert.Equal(t, 0, svc.Tick(ctx, n))
}

func TestTickRetriesFailedDelivery(t *testing.T) {
	svc, nowPtr := newTestService(t, fixedNow)
	ctx := context.Background()

	_, err := svc.CreateAt(ctx, "u1", "重要会议", "Asia/Shanghai", 0, 10, 0)
	require.NoError(t, err)
	*nowPtr = time.Date(2026, 5, 20, 2, 1, 0, 0, time.UTC)

	n := &mockNotifier{fail: true}
	assert.Equal(t, 0, svc.Tick(ctx, n))

	n.fail = false
	assert.Equal(t, 1, svc.Tick(ctx, n))
}

func TestCancelOwnership(t *testing.T) {
	svc, _ := newTestService(t, fixedNow)
	ctx := context.Background()

	r, err := svc.CreateAt(ctx, "u1", "下午开会", "Asia/Shanghai", 0, 18, 0)
	require.NoError(t, err)

	ok, err := svc.Cancel(ctx, "u2", r.ID)
	require.NoError(t, err)
	assert.False(t, ok, "another user's reminder reads as not-found")

	ok, err = svc.Cancel(ctx, "u1", r.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Cancel(ctx, "u1", "no-such-id")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnoozeCreatesLinkedReminder(t *testing.T) {
	svc, nowPtr := newTestService(t, fixedNow)
	ctx := context.Background()

	r, err := svc.CreateAt(ctx, "u1", "吃药", "Asia/Shanghai", 0, 10, 0)
	require.NoError(t, err)

	*nowPtr = time.Date(2026, 5, 20, 2, 0, 10, 0, time.UTC)
	n := &mockNotifier{}
	require.Equal(t, 1, svc.Tick(ctx, n))

	next, err := svc.Acknowledge(ctx, "u1", r.ID, AckSnoozed)
	require.NoError(t, err)
	require.NotNil(t, next)

	assert.Equal(t, r.ID, next.SnoozedFromID)
	assert.Equal(t, "吃药", next.Text)
	assert.Equal(t, nowPtr.Add(DefaultSnooze).Unix(), next.ScheduledAt)

	// The old record is retained as history and links forward.
	doc := store.LoadDoc[Document](ctx, svcDriver(svc), store.ConcernReminders, "acct")
	old := doc[r.ID]
	require.NotNil(t, old)
	assert.Equal(t, next.ID, old.NextReminderID)
	assert.Equal(t, AckSnoozed, old.AckAction)
}

func TestAcknowledgeRequiresDelivery(t *testing.T) {
	svc, _ := newTestService(t, fixedNow)
	ctx := context.Background()

	r, err := svc.CreateAt(ctx, "u1", "未送达", "Asia/Shanghai", 0, 23, 0)
	require.NoError(t, err)

	next, err := svc.Acknowledge(ctx, "u1", r.ID, AckDone)
	require.NoError(t, err)
	assert.Nil(t, next, "cannot acknowledge an undelivered reminder")
}

func TestRetentionPrune(t *testing.T) {
	svc, nowPtr := newTestService(t, fixedNow)
	ctx := context.Background()

	r, err := svc.CreateAt(ctx, "u1", "旧提醒", "Asia/Shanghai", 0, 10, 0)
	require.NoError(t, err)

	*nowPtr = time.Date(2026, 5, 20, 2, 0, 10, 0, time.UTC)
	require.Equal(t, 1, svc.Tick(ctx, &mockNotifier{}))

	// Eight days later the terminal record is pruned by the next tick.
	*nowPtr = nowPtr.Add(8 * 24 * time.Hour)
	svc.Tick(ctx, &mockNotifier{})

	doc := store.LoadDoc[Document](ctx, svcDriver(svc), store.ConcernReminders, "acct")
	assert.NotContains(t, doc, r.ID)
}

func TestOverdueReminderNeverDelivered(t *testing.T) {
	svc, nowPtr := newTestService(t, fixedNow)
	ctx := context.Background()

	_, err := svc.CreateAt(ctx, "u1", "错过的", "Asia/Shanghai", 0, 10, 0)
	require.NoError(t, err)

	// Two hours past the scheduled time: outside the grace window.
	*nowPtr = time.Date(2026, 5, 20, 4, 0, 0, 0, time.UTC)
	n := &mockNotifier{}
	assert.Equal(t, 0, svc.Tick(ctx, n))
	assert.Empty(t, n.sent)
}

func TestListPending(t *testing.T) {
	svc, _ := newTestService(t, fixedNow)
	ctx := context.Background()

	_, err := svc.CreateAt(ctx, "u1", "晚的", "Asia/Shanghai", 0, 20, 0)
	require.NoError(t, err)
	_, err = svc.CreateAt(ctx, "u1", "早的", "Asia/Shanghai", 0, 11, 0)
	require.NoError(t, err)
	_, err = svc.CreateAt(ctx, "u2", "别人的", "Asia/Shanghai", 0, 12, 0)
	require.NoError(t, err)

	pending := svc.ListPending(ctx, "u1")
	require.Len(t, pending, 2)
	assert.Equal(t, "早的", pending[0].Text)
	assert.Equal(t, "晚的", pending[1].Text)
}

// svcDriver exposes the service's driver for persistence assertions.
func svcDriver(s *Service) store.Driver {
	return s.driver
}
