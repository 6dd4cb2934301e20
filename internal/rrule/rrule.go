package rrule

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// ParseRRule parses an RFC 5545 RRULE string and returns the RRule object
func ParseRRule(ruleStr string, dtstart time.Time) (*rrule.RRule, error) {
	// Handle RRULE: prefix if present
	ruleStr = strings.TrimPrefix(ruleStr, "RRULE:")

	opt, err := rrule.StrToROption(ruleStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RRULE: %w", err)
	}

	opt.Dtstart = dtstart
	return rrule.NewRRule(*opt)
}

// NextOccurrence returns the next occurrence after the given time
// Returns nil if there are no more occurrences
func NextOccurrence(ruleStr string, dtstart time.Time, after time.Time) (*time.Time, error) {
	rule, err := ParseRRule(ruleStr, dtstart)
	if err != nil {
		return nil, err
	}

	next := rule.After(after, false)
	if next.IsZero() {
		return nil, nil
	}
	return &next, nil
}

// NextOccurrences returns the next n occurrences after the given time
func NextOccurrences(ruleStr string, dtstart time.Time, after time.Time, count int) ([]time.Time, error) {
	rule, err := ParseRRule(ruleStr, dtstart)
	if err != nil {
		return nil, err
	}

	iterator := rule.Iterator()
	var results []time.Time

	for {
		next, ok := iterator()
		if !ok {
			break
		}
		if next.After(after) {
			results = append(results, next)
			if len(results) >= count {
				break
			}
		}
	}

	return results, nil
}

// HumanReadableKorean returns a Korean description of the RRULE
func HumanReadableKorean(ruleStr string) string {
	ruleStr = strings.TrimPrefix(ruleStr, "RRULE:")

	parts := strings.Split(ruleStr, ";")
	info := make(map[string]string)
	for _, p := range parts {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) == 2 {
			info[kv[0]] = kv[1]
		}
	}

	var result strings.Builder

	freq := info["FREQ"]
	interval := info["INTERVAL"]
	if interval == "" || interval == "1" {
		switch freq {
		case "HOURLY":
			result.WriteString("매시간")
		case "DAILY":
			result.WriteString("매일")
		case "WEEKLY":
			result.WriteString("매주")
		case "MONTHLY":
			result.WriteString("매월")
		case "YEARLY":
			result.WriteString("매년")
		}
	} else {
		switch freq {
		case "HOURLY":
			result.WriteString(fmt.Sprintf("%s시간마다", interval))
		case "DAILY":
			result.WriteString(fmt.Sprintf("%s일마다", interval))
		case "WEEKLY":
			result.WriteString(fmt.Sprintf("%s주마다", interval))
		case "MONTHLY":
			result.WriteString(fmt.Sprintf("%s개월마다", interval))
		case "YEARLY":
			result.WriteString(fmt.Sprintf("%s년마다", interval))
		}
	}

	if byDay := info["BYDAY"]; byDay != "" {
		dayMap := map[string]string{
			"MO": "월", "TU": "화", "WE": "수", "TH": "목",
			"FR": "금", "SA": "토", "SU": "일",
		}
		days := strings.Split(byDay, ",")
		var koDays []string
		for _, d := range days {
			if ko, ok := dayMap[d]; ok {
				koDays = append(koDays, ko+"요일")
			}
		}
		if len(koDays) > 0 {
			result.WriteString(" " + strings.Join(koDays, ", "))
		}
	}

	if byHour := info["BYHOUR"]; byHour != "" {
		hours := strings.Split(byHour, ",")
		result.WriteString(fmt.Sprintf(" %s시", strings.Join(hours, ", ")))
	}

	if count := info["COUNT"]; count != "" {
		result.WriteString(fmt.Sprintf(", 총 %s회", count))
	}

	if until := info["UNTIL"]; until != "" {
		if t, err := time.Parse("20060102T150405Z", until); err == nil {
			result.WriteString(fmt.Sprintf(", %s까지", t.Local().Format("2006-01-02")))
		}
	}

	if result.Len() == 0 {
		return "반복 없음"
	}
	return result.String()
}

// IsRecurring checks if the RRULE string represents a recurring event
func IsRecurring(ruleStr string) bool {
	return ruleStr != "" && strings.Contains(strings.ToUpper(ruleStr), "FREQ=")
}
