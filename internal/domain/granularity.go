package domain

import "fmt"

// Granularity is the bucket size of a historical series.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// ParseGranularity accepts day, week, month and their D/W/M shorthands. Empty means day.
func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "", "day", "D":
		return GranularityDay, nil
	case "week", "W":
		return GranularityWeek, nil
	case "month", "M":
		return GranularityMonth, nil
	default:
		return "", fmt.Errorf("unknown granularity %q", s)
	}
}
