// Package resample downsamples daily series into weekly or monthly buckets.
package resample

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/investdash/internal/domain"
)

const (
	dayLabel   = "2006-01-02"
	monthLabel = "2006-01"
)

// Table is a set of columns sharing a string-labelled index.
type Table struct {
	Labels  []string
	Columns map[domain.Instrument]domain.Column
}

// Resample buckets dates by granularity and replaces each bucket with the mean
// of its present values. Weeks are ISO weeks labelled with their Monday; months
// are labelled YYYY-MM. Day granularity keeps every row. dates must be ascending.
func Resample(dates []time.Time, columns map[domain.Instrument]domain.Column, g domain.Granularity) Table {
	var labels []string
	var buckets [][]int
	for i, d := range dates {
		label := bucketLabel(d, g)
		if len(labels) == 0 || labels[len(labels)-1] != label {
			labels = append(labels, label)
			buckets = append(buckets, nil)
		}
		buckets[len(buckets)-1] = append(buckets[len(buckets)-1], i)
	}

	out := Table{Labels: labels, Columns: make(map[domain.Instrument]domain.Column, len(columns))}
	for inst, col := range columns {
		resampled := make(domain.Column, len(buckets))
		for b, rows := range buckets {
			resampled[b] = mean(col, rows)
		}
		out.Columns[inst] = resampled
	}
	return out
}

func bucketLabel(d time.Time, g domain.Granularity) string {
	switch g {
	case domain.GranularityMonth:
		return d.Format(monthLabel)
	case domain.GranularityWeek:
		return WeekStart(d).Format(dayLabel)
	default:
		return d.Format(dayLabel)
	}
}

// WeekStart returns the Monday of d's ISO week.
func WeekStart(d time.Time) time.Time {
	offset := (int(d.Weekday()) + 6) % 7
	return domain.Day(d).AddDate(0, 0, -offset)
}

func mean(col domain.Column, rows []int) decimal.NullDecimal {
	sum := decimal.Zero
	n := int64(0)
	for _, r := range rows {
		if col[r].Valid {
			sum = sum.Add(col[r].Decimal)
			n++
		}
	}
	if n == 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(sum.Div(decimal.NewFromInt(n)))
}
