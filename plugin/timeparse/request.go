package timeparse

import "strings"

// Outcome classifies how much of an utterance could be extracted. The caller
// uses it to ask a targeted follow-up question instead of a generic "I didn't
// understand".
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeNeedPlace     Outcome = "need_place"
	OutcomeNeedTime      Outcome = "need_time"
	OutcomeNeedBoth      Outcome = "need_both"
	OutcomeMultipleTimes Outcome = "multiple_times"
)

// Request is a parsed utterance: one clock time, a day offset, and the
// residual subject (a place name or a reminder message).
type Request struct {
	Outcome   Outcome
	Hour      int
	Minute    int
	DayOffset int
	Subject   string
}

// stopWords is the fixed vocabulary removed from the residual text after the
// time span is cut out: scheduling verbs, politeness particles, and domain
// nouns. Longer entries come first so "提醒我" is removed before "提醒" could
// leave a dangling "我".
var stopWords = []string{
	"天气预报", "天气怎么样", "怎么样", "天气如何",
	"提醒我", "告诉我", "通知我", "帮我查", "帮我看", "帮我",
	"查一下", "看一下", "查询", "看看", "请问",
	"订阅", "取消", "设置", "记得", "叫我", "给我",
	"我想知道", "我想", "我要",
	"天气", "预报", "提醒", "每天", "定时",
	"今天", "明天", "后天",
	"一下", "的时候", "如何",
	"请", "的", "吧", "呢", "啊", "哦", "嘛", "，", "。", "？", "！", ",", "?", "!",
}

// Residual removes the matched time spans from normalized text, strips the
// stop-word vocabulary, and collapses whitespace. An empty result means the
// utterance carried no place/message.
func Residual(text string, matches []Match) string {
	var b strings.Builder
	prev := 0
	for _, m := range matches {
		b.WriteString(text[prev:m.Start])
		prev = m.End
	}
	b.WriteString(text[prev:])

	rest := b.String()
	for _, w := range stopWords {
		rest = strings.ReplaceAll(rest, w, " ")
	}
	return strings.Join(strings.Fields(rest), " ")
}

// ParseSubscription extracts a place and a clock time for the weather
// subscription flow. Outcomes: ok, need_place, need_time, need_both, or
// multiple_times when the utterance holds more than one time expression.
func ParseSubscription(text string) Request {
	return parse(text, true)
}

// ParseReminder extracts a clock time and a message for the reminder flow.
// Outcomes: ok, need_time, or multiple_times. An empty message is allowed;
// the caller supplies a default.
func ParseReminder(text string) Request {
	return parse(text, false)
}

func parse(text string, requireSubject bool) Request {
	normalized := Normalize(text)
	matches := Extract(normalized)

	req := Request{DayOffset: DayOffset(text)}

	if len(matches) > 1 {
		req.Outcome = OutcomeMultipleTimes
		return req
	}

	req.Subject = Residual(normalized, matches)

	haveTime := len(matches) == 1
	if haveTime {
		req.Hour = matches[0].Hour
		req.Minute = matches[0].Minute
	}
	haveSubject := req.Subject != "" || !requireSubject

	switch {
	case haveTime && haveSubject:
		req.Outcome = OutcomeOK
	case haveTime:
		req.Outcome = OutcomeNeedPlace
	case haveSubject:
		req.Outcome = OutcomeNeedTime
	default:
		req.Outcome = OutcomeNeedBoth
	}
	return req
}
