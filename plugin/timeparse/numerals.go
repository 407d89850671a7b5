package timeparse

import "strconv"

// chineseDigits maps single numeral characters to their values. 两 and 二 are
// synonymous in clock idioms ("两点" == "二点").
var chineseDigits = map[rune]int{
	'零': 0,
	'〇': 0,
	'一': 1,
	'二': 2,
	'两': 2,
	'三': 3,
	'四': 4,
	'五': 5,
	'六': 6,
	'七': 7,
	'八': 8,
	'九': 9,
}

// digitValue decodes a single rune as a decimal digit, accepting both ASCII
// and Chinese numerals. Returns -1 for anything else.
func digitValue(r rune) int {
	if r >= '0' && r <= '9' {
		return int(r - '0')
	}
	if v, ok := chineseDigits[r]; ok {
		return v
	}
	return -1
}

// parseNumeral decodes a short numeral string: ASCII digit strings ("8",
// "18"), single Chinese digits ("八"), and 十 compounds ("十八" = 18,
// "二十三" = 23, "十" = 10). Unrecognized multi-character sequences fall back
// to naive digit-by-digit concatenation. Returns -1 if the string cannot be
// decoded at all.
func parseNumeral(s string) int {
	if s == "" {
		return -1
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}

	runes := []rune(s)
	for i, r := range runes {
		if r != '十' {
			continue
		}
		// tens*10 + ones; tens defaults to 1 ("十八"), ones to 0 ("二十").
		tens := 1
		if i > 0 {
			if i != 1 {
				return -1
			}
			tens = digitValue(runes[0])
			if tens < 0 {
				return -1
			}
		}
		ones := 0
		if i < len(runes)-1 {
			if i != len(runes)-2 {
				return -1
			}
			ones = digitValue(runes[len(runes)-1])
			if ones < 0 {
				return -1
			}
		}
		return tens*10 + ones
	}

	if len(runes) == 1 {
		return digitValue(runes[0])
	}

	// Naive concatenation: "一五" -> 15.
	n := 0
	for _, r := range runes {
		v := digitValue(r)
		if v < 0 {
			return -1
		}
		n = n*10 + v
	}
	return n
}
