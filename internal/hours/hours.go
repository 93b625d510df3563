// Package hours answers whether a venue is open at a clock time, from the
// textual per-weekday descriptions the places provider returns. The data is
// advisory: anything absent or unparsable must not block a plan.
package hours

import (
	"regexp"
	"strings"
	"time"
)

var jpWeekdays = [7]string{"日曜日", "月曜日", "火曜日", "水曜日", "木曜日", "金曜日", "土曜日"}
var enWeekdays = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// timeToken matches "11:00", "11時00分" and the bare-hour "11時".
var timeToken = regexp.MustCompile(`(\d{1,2})\s*[:時]\s*(\d{1,2})?`)

// IsOpenAt reports whether a venue described by per-weekday lines is open at
// clock ("HH:MM") on the given weekday. Missing data assumes open; a line
// marked as a closing day is closed; unparsable spans are skipped.
func IsOpenAt(lines []string, clock string, day time.Weekday) bool {
	if len(lines) == 0 {
		return true
	}
	line, ok := lineForWeekday(lines, day)
	if !ok {
		return true
	}
	if isClosedAllDay(line) {
		return false
	}
	if isOpenAllDay(line) {
		return true
	}
	at := clockToMinutes(clock)
	matched := false
	for _, span := range splitSpans(line) {
		open, close, ok := parseSpan(span)
		if !ok {
			continue
		}
		matched = true
		if close < open {
			// Crosses midnight.
			if at >= open || at <= close {
				return true
			}
			continue
		}
		if at >= open && at <= close {
			return true
		}
	}
	if !matched {
		// The weekday line existed but nothing in it parsed.
		return true
	}
	return false
}

// WarningFor returns the closure caution to attach to a schedule item, empty
// when the venue is open (or assumed open).
func WarningFor(lines []string, clock string, day time.Weekday) string {
	if IsOpenAt(lines, clock, day) {
		return ""
	}
	return "この時間は営業時間外の可能性があります。事前にご確認ください。"
}

func lineForWeekday(lines []string, day time.Weekday) (string, bool) {
	jp := jpWeekdays[int(day)]
	en := enWeekdays[int(day)]
	for _, raw := range lines {
		l := strings.TrimSpace(raw)
		if strings.HasPrefix(l, jp) || strings.HasPrefix(l, en) {
			l = strings.TrimPrefix(l, jp)
			l = strings.TrimPrefix(l, en)
			l = strings.TrimLeft(l, ":： \t")
			return l, true
		}
	}
	return "", false
}

func isClosedAllDay(line string) bool {
	for _, marker := range []string{"定休日", "休業", "休み", "Closed"} {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

func isOpenAllDay(line string) bool {
	compact := strings.ReplaceAll(line, " ", "")
	return strings.Contains(compact, "24時間") || strings.Contains(line, "Open 24 hours")
}

func splitSpans(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == '、'
	})
}

// parseSpan extracts the first two time tokens of a span as open/close.
func parseSpan(span string) (open, close int, ok bool) {
	matches := timeToken.FindAllStringSubmatch(span, 3)
	if len(matches) < 2 {
		return 0, 0, false
	}
	open, ok1 := tokenMinutes(matches[0])
	close, ok2 := tokenMinutes(matches[1])
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return open, close, true
}

func tokenMinutes(m []string) (int, bool) {
	h := atoi(m[1])
	if h < 0 || h > 24 {
		return 0, false
	}
	min := 0
	if m[2] != "" {
		min = atoi(m[2])
		if min < 0 || min > 59 {
			return 0, false
		}
	}
	return (h%24)*60 + min, true
}

func clockToMinutes(clock string) int {
	m := timeToken.FindStringSubmatch(clock)
	if m == nil {
		return 0
	}
	v, _ := tokenMinutes(m)
	return v
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}
