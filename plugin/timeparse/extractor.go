// Package timeparse extracts clock times, day offsets, and residual subjects
// (a place name or a reminder message) from free-form Chinese chat text.
//
// The extractor never guesses: a text with two or more recognizable time
// expressions is reported as ambiguous so the caller can ask the user which
// one they meant.
package timeparse

import (
	"regexp"
	"sort"
	"strings"
)

// Time notation patterns. The two notations are scanned independently and the
// matches are merged by start offset.
var (
	colonPattern = regexp.MustCompile(`([0-9]{1,2}):([0-9]{2})`)

	// Optional period-of-day word, hour numeral, 点, optional minute
	// ("半", "N分"/"N分钟", or a bare trailing numeral).
	idiomPattern = regexp.MustCompile(
		`(凌晨|早上|上午|中午|下午|晚上|傍晚|夜里)?` +
			`([0-9零〇一二两三四五六七八九十]{1,3})点` +
			`(半|[0-9零〇一二两三四五六七八九十]{1,3}分钟?|[0-9零〇一二两三四五六七八九十]{1,3})?`)
)

// fullwidthDigits maps full-width digits and colon to their ASCII forms.
var fullwidthReplacer = strings.NewReplacer(
	"０", "0", "１", "1", "２", "2", "３", "3", "４", "4",
	"５", "5", "６", "6", "７", "7", "８", "8", "９", "9",
	"：", ":",
)

// periodAddsTwelve holds the period-of-day words that shift an hour below 12
// into the afternoon/evening.
var periodAddsTwelve = map[string]bool{
	"中午": true,
	"下午": true,
	"傍晚": true,
	"晚上": true,
	"夜里": true,
}

// Match is a single clock time found in the text, with the byte span it
// occupied in the normalized input.
type Match struct {
	Hour   int
	Minute int
	Start  int
	End    int
}

// Normalize converts full-width digits and colons to ASCII. All extraction
// offsets refer to the normalized text.
func Normalize(text string) string {
	return fullwidthReplacer.Replace(text)
}

// Extract scans normalized text for clock times. Matches with an hour or
// minute outside the valid range are discarded, not repaired.
func Extract(text string) []Match {
	var matches []Match

	for _, loc := range colonPattern.FindAllStringSubmatchIndex(text, -1) {
		hour := parseNumeral(text[loc[2]:loc[3]])
		minute := parseNumeral(text[loc[4]:loc[5]])
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
			continue
		}
		matches = append(matches, Match{Hour: hour, Minute: minute, Start: loc[0], End: loc[1]})
	}

	for _, loc := range idiomPattern.FindAllStringSubmatchIndex(text, -1) {
		m, ok := idiomMatch(text, loc)
		if !ok {
			continue
		}
		matches = append(matches, m)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })

	// Drop matches overlapping an earlier one (e.g. "10:20点" would yield a
	// colon match and an idiom match over the same bytes).
	merged := matches[:0]
	lastEnd := -1
	for _, m := range matches {
		if m.Start < lastEnd {
			continue
		}
		merged = append(merged, m)
		lastEnd = m.End
	}
	return merged
}

// idiomMatch decodes one idiom-pattern submatch into a Match.
func idiomMatch(text string, loc []int) (Match, bool) {
	period := ""
	if loc[2] >= 0 {
		period = text[loc[2]:loc[3]]
	}

	hour := parseNumeral(text[loc[4]:loc[5]])
	if hour < 0 {
		return Match{}, false
	}

	minute := 0
	if loc[6] >= 0 {
		raw := text[loc[6]:loc[7]]
		if raw == "半" {
			minute = 30
		} else {
			raw = strings.TrimSuffix(raw, "分钟")
			raw = strings.TrimSuffix(raw, "分")
			minute = parseNumeral(raw)
		}
	}

	switch {
	case period == "凌晨" && hour == 12:
		hour = 0
	case period == "晚上" && hour == 12:
		// Colloquial "晚上12点" means midnight, not noon.
		hour = 0
	case periodAddsTwelve[period] && hour < 12:
		hour += 12
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Match{}, false
	}
	return Match{Hour: hour, Minute: minute, Start: loc[0], End: loc[1]}, true
}

// DayOffset scans text for a relative-day word. It runs on the original
// text, independent of any time match.
func DayOffset(text string) int {
	switch {
	case strings.Contains(text, "后天"):
		return 2
	case strings.Contains(text, "明天"):
		return 1
	default:
		return 0
	}
}
