package weather

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/Alfro6ull/openclaw-channel-dingtalk/plugin/timeparse"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/server/timezone"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/store"
)

// Notifier is the message delivery capability consumed by the poller.
type Notifier interface {
	SendText(ctx context.Context, userID, text string) error
}

// SubscribeResult reports one step of the subscription flow. Exactly one of
// Subscription / Candidates is set when Outcome is ok; otherwise Request
// carries whatever was extracted so the caller can ask a targeted follow-up.
type SubscribeResult struct {
	Outcome       timeparse.Outcome
	Request       timeparse.Request
	PlaceNotFound bool
	Candidates    []Place
	Subscription  *Subscription
}

// Service manages weather queries and daily subscriptions for one account.
type Service struct {
	driver     store.Driver
	account    string
	geocoder   Geocoder
	forecaster Forecaster
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a weather service.
func NewService(driver store.Driver, account string, geocoder Geocoder, forecaster Forecaster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		driver:     driver,
		account:    account,
		geocoder:   geocoder,
		forecaster: forecaster,
		logger:     logger,
		now:        time.Now,
	}
}

// SetNowFunc replaces the clock, for tests.
func (s *Service) SetNowFunc(now func() time.Time) {
	s.now = now
}

// SubscribeFromText parses free text like "成都 10:20" and creates a daily
// subscription. With several geocode candidates the choice is returned to the
// caller instead of guessed.
func (s *Service) SubscribeFromText(ctx context.Context, userID, text string) (*SubscribeResult, error) {
	req := timeparse.ParseSubscription(text)
	if req.Outcome != timeparse.OutcomeOK {
		return &SubscribeResult{Outcome: req.Outcome, Request: req}, nil
	}

	candidates, err := s.geocoder.Geocode(ctx, req.Subject)
	if err != nil {
		return nil, err
	}

	res := &SubscribeResult{Outcome: timeparse.OutcomeOK, Request: req}
	switch len(candidates) {
	case 0:
		res.Outcome = timeparse.OutcomeNeedPlace
		res.PlaceNotFound = true
		return res, nil
	case 1:
		sub, err := s.Subscribe(ctx, userID, candidates[0], timezone.FormatClock(req.Hour, req.Minute))
		if err != nil {
			return nil, err
		}
		res.Subscription = sub
		return res, nil
	default:
		res.Candidates = candidates
		return res, nil
	}
}

// Subscribe creates or overwrites the user's daily subscription. The push
// fires at clock time in the place's own timezone.
func (s *Service) Subscribe(ctx context.Context, userID string, place Place, clock string) (*Subscription, error) {
	doc := store.LoadDoc[Document](ctx, s.driver, store.ConcernSubscriptions, s.account)
	if doc == nil {
		doc = Document{}
	}

	now := s.now().Unix()
	sub := &Subscription{
		UserID:    userID,
		Place:     place,
		Schedule:  Schedule{Type: "daily", Time: clock},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if prev, ok := doc[userID]; ok {
		sub.CreatedAt = prev.CreatedAt
	}
	doc[userID] = sub

	if err := store.SaveDoc(ctx, s.driver, store.ConcernSubscriptions, s.account, doc); err != nil {
		return nil, err
	}
	return sub, nil
}

// Unsubscribe removes the user's subscription. Returns false when none exists.
func (s *Service) Unsubscribe(ctx context.Context, userID string) (bool, error) {
	doc := store.LoadDoc[Document](ctx, s.driver, store.ConcernSubscriptions, s.account)
	if _, ok := doc[userID]; !ok {
		return false, nil
	}
	delete(doc, userID)
	if err := store.SaveDoc(ctx, s.driver, store.ConcernSubscriptions, s.account, doc); err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the user's subscription, or nil.
func (s *Service) Get(ctx context.Context, userID string) *Subscription {
	doc := store.LoadDoc[Document](ctx, s.driver, store.ConcernSubscriptions, s.account)
	return doc[userID]
}

// Query geocodes a place and returns the current forecast report. With
// several candidates the choice is returned instead of guessed.
func (s *Service) Query(ctx context.Context, query string) (string, []Place, error) {
	candidates, err := s.geocoder.Geocode(ctx, query)
	if err != nil {
		return "", nil, err
	}
	switch len(candidates) {
	case 0:
		return "", nil, nil
	case 1:
		report, err := s.Report(ctx, candidates[0])
		return report, nil, err
	default:
		return "", candidates, nil
	}
}

// Report fetches and formats the forecast for a known place.
func (s *Service) Report(ctx context.Context, place Place) (string, error) {
	f, err := s.forecaster.Forecast(ctx, place)
	if err != nil {
		return "", err
	}
	return FormatReport(place, f), nil
}

// Tick runs one poll cycle over all subscriptions. A forecast or delivery
// failure leaves LastSentLocalDate unset so the next tick inside the grace
// window retries.
func (s *Service) Tick(ctx context.Context, notifier Notifier) int {
	doc := store.LoadDoc[Document](ctx, s.driver, store.ConcernSubscriptions, s.account)
	if len(doc) == 0 {
		return 0
	}

	now := s.now().Unix()
	users := make([]string, 0, len(doc))
	for userID := range doc {
		users = append(users, userID)
	}
	sort.Strings(users)

	dirty := false
	sent := 0
	for _, userID := range users {
		sub := doc[userID]
		if !sub.Due(now) {
			continue
		}

		report, err := s.Report(ctx, sub.Place)
		if err != nil {
			s.logger.Warn("subscription forecast failed, will retry",
				"user_id", userID, "place", sub.Place.Label, "error", err)
			continue
		}
		text := "☀️ 每日天气推送\n" + report
		if err := notifier.SendText(ctx, userID, text); err != nil {
			s.logger.Warn("subscription delivery failed, will retry",
				"user_id", userID, "error", err)
			continue
		}

		sub.MarkSent(now)
		dirty = true
		sent++
	}

	if dirty {
		if err := store.SaveDoc(ctx, s.driver, store.ConcernSubscriptions, s.account, doc); err != nil {
			s.logger.Error("failed to persist subscriptions", "error", err)
		}
	}
	return sent
}
