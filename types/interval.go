package types

import (
	"fmt"
	"strings"
)

// Interval is the bar period of a data feed.
type Interval string

const (
	OneMinute     Interval = "1"
	FiveMinutes   Interval = "5"
	ThirtyMinutes Interval = "30"
	Hour          Interval = "60"
	FourHours     Interval = "240"
	Day           Interval = "D"
	Week          Interval = "W"
)

var intervalAliases = map[string]Interval{
	"1":      OneMinute,
	"1m":     OneMinute,
	"5":      FiveMinutes,
	"5m":     FiveMinutes,
	"30":     ThirtyMinutes,
	"30m":    ThirtyMinutes,
	"60":     Hour,
	"1h":     Hour,
	"240":    FourHours,
	"4h":     FourHours,
	"d":      Day,
	"1d":     Day,
	"daily":  Day,
	"w":      Week,
	"1w":     Week,
	"weekly": Week,
}

// ParseInterval accepts the canonical codes and the usual short forms
// ("5m", "1h", "daily"), case-insensitively.
func ParseInterval(s string) (Interval, error) {
	if i, ok := intervalAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return i, nil
	}
	return "", fmt.Errorf("unknown interval %q", s)
}

