package helpers

import (
	"strings"
	"time"
)

var flexibleDateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"02.01.2006",
	"2.1.2006",
	"02/01/2006",
	"2/1/2006",
	"2006-01-02 15:04",
	"02.01.2006 15:04",
}

// ParseFlexibleDate tries the date formats people usually type in chats.
// It returns the parsed time in the local timezone and true on success.
func ParseFlexibleDate(input string) (time.Time, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range flexibleDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// YearsBetween returns the number of full years from birth to now.
func YearsBetween(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	return years
}
