// Package bot routes inbound chat messages to the weather, reminder, and
// calendar skills and renders their outcomes as replies. Unfilled slots come
// back as targeted questions; a pending place choice is parked in a TTL
// session cache until the user answers.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Alfro6ull/openclaw-channel-dingtalk/internal/cache"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/plugin/calendar"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/plugin/reminder"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/plugin/timeparse"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/plugin/weather"
	"github.com/Alfro6ull/openclaw-channel-dingtalk/server/timezone"
)

const helpText = `我可以帮你：
· 查天气：上海天气
· 订阅天气：订阅成都天气 每天8:00
· 取消订阅：取消订阅
· 设提醒：明天早上八点半提醒我开会
· 查看提醒：我的提醒
· 取消提醒：取消提醒 <编号>
· 会议提醒：开启会议提醒 15 / 关闭会议提醒`

// pendingChoice parks geocode candidates until the user picks one by number.
type pendingChoice struct {
	Candidates []weather.Place
	Clock      string // "HH:mm" when the choice completes a subscription
	Subscribe  bool
}

// Router dispatches one user message to a skill and returns the reply text.
type Router struct {
	reminders *reminder.Service
	weather   *weather.Service
	calendar  *calendar.Service
	sessions  *cache.Cache
	defaultTZ string
	logger    *slog.Logger
}

// New creates a message router.
func New(reminders *reminder.Service, w *weather.Service, cal *calendar.Service, defaultTZ string, logger *slog.Logger) *Router {
	if defaultTZ == "" {
		defaultTZ = timezone.DefaultTimezone
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		reminders: reminders,
		weather:   w,
		calendar:  cal,
		sessions:  cache.New(5*time.Minute, 1000),
		defaultTZ: defaultTZ,
		logger:    logger,
	}
}

// Sessions exposes the session cache, for tests.
func (r *Router) Sessions() *cache.Cache {
	return r.sessions
}

// Handle processes one inbound message and returns the reply.
func (r *Router) Handle(ctx context.Context, userID, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return helpText
	}

	if reply, handled := r.handlePendingChoice(ctx, userID, text); handled {
		return reply
	}
	if reply, handled := r.handleAck(ctx, userID, text); handled {
		return reply
	}

	switch {
	case strings.HasPrefix(text, "取消订阅"):
		return r.unsubscribe(ctx, userID)
	case strings.Contains(text, "订阅"):
		return r.subscribe(ctx, userID, text)
	case strings.HasPrefix(text, "取消提醒"):
		return r.cancelReminder(ctx, userID, text)
	case text == "我的提醒" || text == "提醒列表":
		return r.listReminders(ctx, userID)
	case strings.HasPrefix(text, "开启会议提醒"):
		return r.enableCalendar(ctx, userID, text)
	case strings.HasPrefix(text, "关闭会议提醒"):
		return r.disableCalendar(ctx, userID)
	case strings.Contains(text, "提醒"):
		return r.createReminder(ctx, userID, text)
	case strings.Contains(text, "天气"):
		return r.queryWeather(ctx, userID, text)
	default:
		return helpText
	}
}

func sessionKey(userID string) string {
	return "pending:" + userID
}

// handlePendingChoice resolves a parked numeric place choice.
func (r *Router) handlePendingChoice(ctx context.Context, userID, text string) (string, bool) {
	v, ok := r.sessions.Get(sessionKey(userID))
	if !ok {
		return "", false
	}
	choice, ok := v.(*pendingChoice)
	if !ok {
		return "", false
	}

	idx, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		// Not an answer to the question; drop the pending state and let the
		// message route normally.
		r.sessions.Delete(sessionKey(userID))
		return "", false
	}
	if idx < 1 || idx > len(choice.Candidates) {
		return fmt.Sprintf("请回复 1-%d 中的一个编号。", len(choice.Candidates)), true
	}

	r.sessions.Delete(sessionKey(userID))
	place := choice.Candidates[idx-1]

	if choice.Subscribe {
		sub, err := r.weather.Subscribe(ctx, userID, place, choice.Clock)
		if err != nil {
			r.logger.Warn("subscribe failed", "user_id", userID, "error", err)
			return "订阅失败，请稍后再试。", true
		}
		return subscribedReply(sub), true
	}

	report, err := r.weather.Report(ctx, place)
	if err != nil {
		r.logger.Warn("weather report failed", "user_id", userID, "error", err)
		return "天气服务暂时不可用，请稍后再试。", true
	}
	return report, true
}

// handleAck resolves 完成/稍后提醒/取消 replies to the last delivered reminder.
func (r *Router) handleAck(ctx context.Context, userID, text string) (string, bool) {
	var action reminder.AckAction
	switch text {
	case "完成":
		action = reminder.AckDone
	case "稍后提醒", "稍后":
		action = reminder.AckSnoozed
	case "取消":
		action = reminder.AckCanceled
	default:
		return "", false
	}

	last := r.reminders.LastSent(ctx, userID)
	if last == nil {
		return "", false
	}

	next, err := r.reminders.Acknowledge(ctx, userID, last.ID, action)
	if err != nil {
		r.logger.Warn("acknowledge failed", "user_id", userID, "error", err)
		return "操作失败，请稍后再试。", true
	}

	switch action {
	case reminder.AckSnoozed:
		return fmt.Sprintf("好的，%s再提醒你。", next.DisplayTime()), true
	case reminder.AckDone:
		return "已完成 ✅", true
	default:
		return "已取消该提醒。", true
	}
}

func (r *Router) createReminder(ctx context.Context, userID, text string) string {
	res, err := r.reminders.CreateFromText(ctx, userID, text, r.defaultTZ)
	if err != nil {
		r.logger.Warn("create reminder failed", "user_id", userID, "error", err)
		return "设置提醒失败，请稍后再试。"
	}

	switch res.Outcome {
	case timeparse.OutcomeOK:
		return fmt.Sprintf("好的，%s 提醒你：%s（编号 %s）",
			res.Reminder.DisplayTime(), res.Reminder.Text, res.Reminder.ID)
	case timeparse.OutcomeMultipleTimes:
		return "你提到了多个时间，我不确定是哪一个，请只说一个时间。"
	default:
		return "想在什么时间提醒你？例如：明天早上八点半。"
	}
}

func (r *Router) listReminders(ctx context.Context, userID string) string {
	pending := r.reminders.ListPending(ctx, userID)
	if len(pending) == 0 {
		return "你当前没有待办提醒。"
	}
	var b strings.Builder
	b.WriteString("你的提醒：")
	for _, item := range pending {
		fmt.Fprintf(&b, "\n· %s %s（编号 %s）", item.DisplayTime(), item.Text, item.ID)
	}
	return b.String()
}

func (r *Router) cancelReminder(ctx context.Context, userID, text string) string {
	id := strings.TrimSpace(strings.TrimPrefix(text, "取消提醒"))
	if id == "" {
		return "请带上要取消的提醒编号，例如：取消提醒 abc123。"
	}
	ok, err := r.reminders.Cancel(ctx, userID, id)
	if err != nil {
		r.logger.Warn("cancel reminder failed", "user_id", userID, "error", err)
		return "取消失败，请稍后再试。"
	}
	if !ok {
		return "没有找到这个提醒。"
	}
	return "已取消。"
}

func (r *Router) subscribe(ctx context.Context, userID, text string) string {
	res, err := r.weather.SubscribeFromText(ctx, userID, text)
	if err != nil {
		r.logger.Warn("subscribe failed", "user_id", userID, "error", err)
		return "天气服务暂时不可用，请稍后再试。"
	}

	switch {
	case res.Subscription != nil:
		return subscribedReply(res.Subscription)
	case len(res.Candidates) > 0:
		clock := timezone.FormatClock(res.Request.Hour, res.Request.Minute)
		r.sessions.Set(sessionKey(userID), &pendingChoice{
			Candidates: res.Candidates,
			Clock:      clock,
			Subscribe:  true,
		})
		return candidatesReply(res.Candidates)
	case res.PlaceNotFound:
		return "没有找到这个地点，换个名字试试？"
	case res.Outcome == timeparse.OutcomeNeedTime:
		return "想在每天几点收到推送？例如：每天8:00。"
	case res.Outcome == timeparse.OutcomeNeedPlace:
		return "想订阅哪个城市的天气？"
	case res.Outcome == timeparse.OutcomeMultipleTimes:
		return "你提到了多个时间，请只说一个推送时间。"
	default:
		return "想订阅哪个城市、每天几点推送？例如：订阅成都天气 每天8:00。"
	}
}

func (r *Router) unsubscribe(ctx context.Context, userID string) string {
	ok, err := r.weather.Unsubscribe(ctx, userID)
	if err != nil {
		r.logger.Warn("unsubscribe failed", "user_id", userID, "error", err)
		return "取消订阅失败，请稍后再试。"
	}
	if !ok {
		return "你还没有订阅天气推送。"
	}
	return "已取消天气订阅。"
}

func (r *Router) queryWeather(ctx context.Context, userID, text string) string {
	req := timeparse.ParseSubscription(text)
	if req.Subject == "" {
		return "想查哪个城市的天气？"
	}

	report, candidates, err := r.weather.Query(ctx, req.Subject)
	if err != nil {
		r.logger.Warn("weather query failed", "user_id", userID, "error", err)
		return "天气服务暂时不可用，请稍后再试。"
	}
	if len(candidates) > 0 {
		r.sessions.Set(sessionKey(userID), &pendingChoice{Candidates: candidates})
		return candidatesReply(candidates)
	}
	if report == "" {
		return "没有找到这个地点，换个名字试试？"
	}
	return report
}

func (r *Router) enableCalendar(ctx context.Context, userID, text string) string {
	minutes := 15
	if rest := strings.TrimSpace(strings.TrimPrefix(text, "开启会议提醒")); rest != "" {
		n, err := strconv.Atoi(rest)
		if err != nil {
			return "提前分钟数要是一个数字，例如：开启会议提醒 15。"
		}
		minutes = n
	}

	w, err := r.calendar.Enable(ctx, userID, minutes, r.defaultTZ)
	if err != nil {
		return fmt.Sprintf("开启失败：%v", err)
	}
	return fmt.Sprintf("已开启会议提醒，会前 %d 分钟通知你。", w.MinutesBefore)
}

func (r *Router) disableCalendar(ctx context.Context, userID string) string {
	ok, err := r.calendar.Disable(ctx, userID)
	if err != nil {
		r.logger.Warn("disable calendar watch failed", "user_id", userID, "error", err)
		return "关闭失败，请稍后再试。"
	}
	if !ok {
		return "会议提醒本来就是关闭的。"
	}
	return "已关闭会议提醒。"
}

func subscribedReply(sub *weather.Subscription) string {
	return fmt.Sprintf("已订阅 %s 的每日天气，每天 %s（当地时间）推送。",
		sub.Place.Label, sub.Schedule.Time)
}

func candidatesReply(candidates []weather.Place) string {
	var b strings.Builder
	b.WriteString("找到多个地点，回复编号选择：")
	for i, p := range candidates {
		fmt.Fprintf(&b, "\n%d. %s", i+1, p.Label)
	}
	return b.String()
}
