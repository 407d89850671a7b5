package weather

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alfro6ull/openclaw-channel-dingtalk/plugin/timeparse"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/store"
)

var chengdu = Place{
	Query:     "成都",
	Label:     "成都（四川省，中国）",
	Latitude:  30.66,
	Longitude: 104.07,
	Timezone:  "Asia/Shanghai",
}

var newYork = Place{
	Query:     "纽约",
	Label:     "纽约（美国）",
	Latitude:  40.71,
	Longitude: -74.0,
	Timezone:  "America/New_York",
}

type fakeGeocoder struct {
	places []Place
	err    error
}

func (f *fakeGeocoder) Geocode(context.Context, string) ([]Place, error) {
	return f.places, f.err
}

type fakeForecaster struct {
	forecast *Forecast
	err      error
}

func (f *fakeForecaster) Forecast(context.Context, Place) (*Forecast, error) {
	return f.forecast, f.err
}

type recordingNotifier struct {
	sent []string
	err  error
}

func (r *recordingNotifier) SendText(_ context.Context, _, text string) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, text)
	return nil
}

func sunny() *Forecast {
	return &Forecast{Temperature: 22.5, ApparentTemp: 23, Humidity: 40, WindSpeed: 6, TempMax: 27, TempMin: 17, RainChance: 5}
}

func newTestService(geo *fakeGeocoder, fc *fakeForecaster) *Service {
	return NewService(store.NewMemoryDriver(), "acct", geo, fc, nil)
}

func TestSubscribeFromTextSingleCandidate(t *testing.T) {
	svc := newTestService(&fakeGeocoder{places: []Place{chengdu}}, &fakeForecaster{forecast: sunny()})

	res, err := svc.SubscribeFromText(context.Background(), "u1", "成都 10:20")
	require.NoError(t, err)
	assert.Equal(t, timeparse.OutcomeOK, res.Outcome)
	require.NotNil(t, res.Subscription)

	assert.Equal(t, "daily", res.Subscription.Schedule.Type)
	assert.Equal(t, "10:20", res.Subscription.Schedule.Time)
	// The place's own timezone governs due-ness, not the subscriber's.
	assert.Equal(t, "Asia/Shanghai", res.Subscription.Place.Timezone)
}

func TestSubscribeFromTextOutcomes(t *testing.T) {
	svc := newTestService(&fakeGeocoder{places: []Place{chengdu}}, &fakeForecaster{forecast: sunny()})
	ctx := context.Background()

	res, err := svc.SubscribeFromText(ctx, "u1", "订阅成都天气")
	require.NoError(t, err)
	assert.Equal(t, timeparse.OutcomeNeedTime, res.Outcome)
	assert.Equal(t, "成都", res.Request.Subject)

	res, err = svc.SubscribeFromText(ctx, "u1", "每天早上八点")
	require.NoError(t, err)
	assert.Equal(t, timeparse.OutcomeNeedPlace, res.Outcome)
	assert.Equal(t, 8, res.Request.Hour)

	res, err = svc.SubscribeFromText(ctx, "u1", "订阅天气")
	require.NoError(t, err)
	assert.Equal(t, timeparse.OutcomeNeedBoth, res.Outcome)
}

func TestSubscribeFromTextMultipleCandidates(t *testing.T) {
	svc := newTestService(&fakeGeocoder{places: []Place{chengdu, newYork}}, &fakeForecaster{forecast: sunny()})

	res, err := svc.SubscribeFromText(context.Background(), "u1", "成都 10:20")
	require.NoError(t, err)
	assert.Nil(t, res.Subscription)
	assert.Len(t, res.Candidates, 2)
}

func TestSubscribeFromTextPlaceNotFound(t *testing.T) {
	svc := newTestService(&fakeGeocoder{}, &fakeForecaster{forecast: sunny()})

	res, err := svc.SubscribeFromText(context.Background(), "u1", "不存在的地方 10:20")
	require.NoError(t, err)
	assert.Equal(t, timeparse.OutcomeNeedPlace, res.Outcome)
	assert.True(t, res.PlaceNotFound)
}

func TestSubscribeOverwrites(t *testing.T) {
	svc := newTestService(&fakeGeocoder{places: []Place{chengdu}}, &fakeForecaster{forecast: sunny()})
	ctx := context.Background()

	first, err := svc.Subscribe(ctx, "u1", chengdu, "08:00")
	require.NoError(t, err)
	second, err := svc.Subscribe(ctx, "u1", newYork, "09:30")
	require.NoError(t, err)

	sub := svc.Get(ctx, "u1")
	require.NotNil(t, sub)
	assert.Equal(t, "09:30", sub.Schedule.Time)
	assert.Equal(t, newYork.Label, sub.Place.Label)
	assert.Equal(t, first.CreatedAt, second.CreatedAt, "overwrite keeps original creation time")
}

func TestUnsubscribe(t *testing.T) {
	svc := newTestService(&fakeGeocoder{places: []Place{chengdu}}, &fakeForecaster{forecast: sunny()})
	ctx := context.Background()

	ok, err := svc.Unsubscribe(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Subscribe(ctx, "u1", chengdu, "08:00")
	require.NoError(t, err)

	ok, err = svc.Unsubscribe(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, svc.Get(ctx, "u1"))
}

func localInstant(tz string, y, mo, d, h, mi int) time.Time {
	loc, _ := time.LoadLocation(tz)
	return time.Date(y, time.Month(mo), d, h, mi, 0, 0, loc)
}

func TestSubscriptionDueWindow(t *testing.T) {
	sub := &Subscription{
		Place:             chengdu,
		Schedule:          Schedule{Type: "daily", Time: "10:20"},
		LastSentLocalDate: "2026-05-19",
	}

	assert.True(t, sub.Due(localInstant("Asia/Shanghai", 2026, 5, 20, 10, 21).Unix()),
		"one minute into the window, last sent yesterday")
	assert.True(t, sub.Due(localInstant("Asia/Shanghai", 2026, 5, 20, 10, 20).Unix()))
	assert.False(t, sub.Due(localInstant("Asia/Shanghai", 2026, 5, 20, 10, 23).Unix()),
		"past the grace window")
	assert.False(t, sub.Due(localInstant("Asia/Shanghai", 2026, 5, 20, 10, 19).Unix()),
		"before the window")

	sub.MarkSent(localInstant("Asia/Shanghai", 2026, 5, 20, 10, 21).Unix())
	assert.False(t, sub.Due(localInstant("Asia/Shanghai", 2026, 5, 20, 10, 22).Unix()),
		"no double fire in the same local day")

	assert.True(t, sub.Due(localInstant("Asia/Shanghai", 2026, 5, 21, 10, 20).Unix()),
		"due again the next local day")
}

func TestSubscriptionDueUsesPlaceTimezone(t *testing.T) {
	sub := &Subscription{
		Place:    newYork,
		Schedule: Schedule{Type: "daily", Time: "08:00"},
	}

	// 08:00 in New York, regardless of what the clock says in Shanghai.
	assert.True(t, sub.Due(localInstant("America/New_York", 2026, 5, 20, 8, 1).Unix()))
	assert.False(t, sub.Due(localInstant("Asia/Shanghai", 2026, 5, 20, 8, 1).Unix()))
}

func TestTickSendsAndMarks(t *testing.T) {
	svc := newTestService(&fakeGeocoder{places: []Place{chengdu}}, &fakeForecaster{forecast: sunny()})
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, "u1", chengdu, "10:20")
	require.NoError(t, err)

	tick := localInstant("Asia/Shanghai", 2026, 5, 20, 10, 21)
	svc.SetNowFunc(func() time.Time { return tick })

	n := &recordingNotifier{}
	assert.Equal(t, 1, svc.Tick(ctx, n))
	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0], "成都")
	assert.Contains(t, n.sent[0], "每日天气推送")

	// A second tick inside the same window does not double-fire.
	tick = localInstant("Asia/Shanghai", 2026, 5, 20, 10, 22)
	assert.Equal(t, 0, svc.Tick(ctx, n))

	sub := svc.Get(ctx, "u1")
	assert.Equal(t, "2026-05-20", sub.LastSentLocalDate)
}

func TestTickRetriesAfterDeliveryFailure(t *testing.T) {
	svc := newTestService(&fakeGeocoder{places: []Place{chengdu}}, &fakeForecaster{forecast: sunny()})
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, "u1", chengdu, "10:20")
	require.NoError(t, err)

	tick := localInstant("Asia/Shanghai", 2026, 5, 20, 10, 20)
	svc.SetNowFunc(func() time.Time { return tick })

	n := &recordingNotifier{err: errors.New("send failed")}
	assert.Equal(t, 0, svc.Tick(ctx, n))
	assert.Empty(t, svc.Get(ctx, "u1").LastSentLocalDate, "failed delivery is not marked sent")

	n.err = nil
	tick = localInstant("Asia/Shanghai", 2026, 5, 20, 10, 21)
	assert.Equal(t, 1, svc.Tick(ctx, n))
}

func TestQueryDisambiguation(t *testing.T) {
	svc := newTestService(&fakeGeocoder{places: []Place{chengdu, newYork}}, &fakeForecaster{forecast: sunny()})

	report, candidates, err := svc.Query(context.Background(), "成都")
	require.NoError(t, err)
	assert.Empty(t, report)
	assert.Len(t, candidates, 2)
}

func TestQuerySingleCandidate(t *testing.T) {
	svc := newTestService(&fakeGeocoder{places: []Place{chengdu}}, &fakeForecaster{forecast: sunny()})

	report, candidates, err := svc.Query(context.Background(), "成都")
	require.NoError(t, err)
	assert.Nil(t, candidates)
	assert.Contains(t, report, "成都")
	assert.Contains(t, report, "22.5")
}

func TestDescribeCode(t *testing.T) {
	assert.Equal(t, "晴", DescribeCode(0))
	assert.Equal(t, "雷阵雨", DescribeCode(95))
	assert.Equal(t, "未知天气", DescribeCode(1234))
}
