// Package dashboard aggregates a user's expenses for display: totals per
// category and totals over time, under an optional year and month filter.
// It works on the slice the client already loaded and never changes it.
package dashboard

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"expenses/internal/core"
)

// Granularity is the width of the time buckets.
type Granularity string

const (
	ByYear  Granularity = "year"
	ByMonth Granularity = "month"
	ByDay   Granularity = "day"
)

// Filter selects expenses by calendar year and month; zero means all.
type Filter struct {
	Year  int
	Month int
}

func (f Filter) Validate() error {
	if f.Year < 0 {
		return fmt.Errorf("invalid year %d", f.Year)
	}
	if f.Month < 0 || f.Month > 12 {
		return fmt.Errorf("invalid month %d: must be between 1 and 12", f.Month)
	}
	return nil
}

func (f Filter) match(t time.Time) bool {
	return (f.Year == 0 || t.Year() == f.Year) && (f.Month == 0 || int(t.Month()) == f.Month)
}

// Granularity picks buckets one level below the most specific filter:
// years when no year is selected, months within a year, days within a month.
func (f Filter) Granularity() Granularity {
	switch {
	case f.Year != 0 && f.Month != 0:
		return ByDay
	case f.Year != 0:
		return ByMonth
	default:
		return ByYear
	}
}

type CategoryTotal struct {
	Category core.Category   `json:"category"`
	Total    decimal.Decimal `json:"total"`
	// Share is the percentage of the filtered total, two decimals.
	Share decimal.Decimal `json:"share"`
	Count int             `json:"count"`
}

type Bucket struct {
	Label        string          `json:"label"`
	Start        time.Time       `json:"start"`
	Total        decimal.Decimal `json:"total"`
	RunningTotal decimal.Decimal `json:"runningTotal"`
	Count        int             `json:"count"`
}

type Summary struct {
	Filter      Filter          `json:"filter"`
	Granularity Granularity     `json:"granularity"`
	Total       decimal.Decimal `json:"total"`
	Count       int             `json:"count"`
	// Categories follow the category enumeration; empty ones are left out.
	Categories []CategoryTotal `json:"categories"`
	// Buckets are in chronological order.
	Buckets []Bucket `json:"buckets"`
	// Years and Months list the values present, ascending, for filter
	// choices. Months are restricted to the selected year, if any.
	Years  []int `json:"years"`
	Months []int `json:"months"`
}

// Summarize aggregates expenses under f. Dates are read in UTC.
func Summarize(expenses []core.Expense, f Filter) Summary {
	g := f.Granularity()
	s := Summary{
		Filter:      f,
		Granularity: g,
		Total:       decimal.Zero,
		Categories:  []CategoryTotal{},
		Buckets:     []Bucket{},
	}

	perCategory := make([]CategoryTotal, len(core.Categories()))
	buckets := make(map[time.Time]*Bucket)
	years := make(map[int]bool)
	months := make(map[int]bool)

	for _, e := range expenses {
		date := e.Date.UTC()
		years[date.Year()] = true
		if f.Year == 0 || date.Year() == f.Year {
			months[int(date.Month())] = true
		}
		if !f.match(date) {
			continue
		}

		s.Total = s.Total.Add(e.Amount)
		s.Count++

		if i := e.Category.Index(); i >= 0 {
			perCategory[i].Total = perCategory[i].Total.Add(e.Amount)
			perCategory[i].Count++
		}

		start := bucketStart(date, g)
		b, ok := buckets[start]
		if !ok {
			b = &Bucket{Label: bucketLabel(start, g), Start: start, Total: decimal.Zero}
			buckets[start] = b
		}
		b.Total = b.Total.Add(e.Amount)
		b.Count++
	}

	hundred := decimal.NewFromInt(100)
	for i, c := range core.Categories() {
		ct := perCategory[i]
		if ct.Count == 0 {
			continue
		}
		ct.Category = c
		ct.Share = decimal.Zero
		if s.Total.IsPositive() {
			ct.Share = ct.Total.Mul(hundred).DivRound(s.Total, 2)
		}
		s.Categories = append(s.Categories, ct)
	}

	for _, b := range buckets {
		s.Buckets = append(s.Buckets, *b)
	}
	sort.Slice(s.Buckets, func(i, j int) bool {
		return s.Buckets[i].Start.Before(s.Buckets[j].Start)
	})
	running := decimal.Zero
	for i := range s.Buckets {
		running = running.Add(s.Buckets[i].Total)
		s.Buckets[i].RunningTotal = running
	}

	s.Years = sortedKeys(years)
	s.Months = sortedKeys(months)
	return s
}

func bucketStart(t time.Time, g Granularity) time.Time {
	switch g {
	case ByDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case ByMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
}

func bucketLabel(start time.Time, g Granularity) string {
	switch g {
	case ByDay:
		return start.Format("02 Jan")
	case ByMonth:
		return start.Format("Jan")
	default:
		return start.Format("2006")
	}
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
