package dashboard

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/core"
)

func exp(date string, amount string, c core.Category) core.Expense {
	d, err := time.Parse(time.DateOnly, date)
	if err != nil {
		panic(err)
	}
	return core.Expense{Date: d, Amount: decimal.RequireFromString(amount), Category: c}
}

func fixture() []core.Expense {
	return []core.Expense{
		exp("2025-04-18", "10", core.CategoryFood),
		exp("2024-12-31", "5.50", core.CategoryTransport),
		exp("2025-04-02", "20", core.CategoryOther),
		exp("2025-01-15", "2.25", core.CategoryFood),
		exp("2023-07-01", "100", core.CategoryEducation),
		exp("2025-04-18", "1", core.CategoryTransport),
	}
}

func amounts(t *testing.T, want ...string) []decimal.Decimal {
	t.Helper()
	out := make([]decimal.Decimal, len(want))
	for i, w := range want {
		out[i] = decimal.RequireFromString(w)
	}
	return out
}

func assertBuckets(t *testing.T, s Summary, labels []string, totals, running []decimal.Decimal) {
	t.Helper()
	require.Len(t, s.Buckets, len(labels))
	for i, b := range s.Buckets {
		assert.Equal(t, labels[i], b.Label, "bucket %d", i)
		assert.True(t, totals[i].Equal(b.Total), "bucket %s total %s, want %s", b.Label, b.Total, totals[i])
		assert.True(t, running[i].Equal(b.RunningTotal), "bucket %s running %s, want %s", b.Label, b.RunningTotal, running[i])
		if i > 0 {
			assert.True(t, s.Buckets[i-1].Start.Before(b.Start), "buckets out of order")
		}
	}
}

func TestSummarize_AllYears(t *testing.T) {
	s := Summarize(fixture(), Filter{})

	assert.Equal(t, ByYear, s.Granularity)
	assert.Equal(t, 6, s.Count)
	assert.True(t, decimal.RequireFromString("138.75").Equal(s.Total))
	assertBuckets(t, s,
		[]string{"2023", "2024", "2025"},
		amounts(t, "100", "5.5", "33.25"),
		amounts(t, "100", "105.5", "138.75"))
	assert.Equal(t, []int{2023, 2024, 2025}, s.Years)
	assert.Equal(t, []int{1, 4, 7, 12}, s.Months)
}

func TestSummarize_Year(t *testing.T) {
	s := Summarize(fixture(), Filter{Year: 2025})

	assert.Equal(t, ByMonth, s.Granularity)
	assertBuckets(t, s,
		[]string{"Jan", "Apr"},
		amounts(t, "2.25", "31"),
		amounts(t, "2.25", "33.25"))
	assert.Equal(t, []int{2023, 2024, 2025}, s.Years, "years ignore the filter")
	assert.Equal(t, []int{1, 4}, s.Months, "months within the selected year")
}

func TestSummarize_Month(t *testing.T) {
	s := Summarize(fixture(), Filter{Year: 2025, Month: 4})

	assert.Equal(t, ByDay, s.Granularity)
	assert.Equal(t, 3, s.Count)
	assertBuckets(t, s,
		[]string{"02 Apr", "18 Apr"},
		amounts(t, "20", "11"),
		amounts(t, "20", "31"))
}

func TestSummarize_Categories(t *testing.T) {
	s := Summarize(fixture(), Filter{Year: 2025, Month: 4})

	require.Len(t, s.Categories, 3)
	wantOrder := []core.Category{core.CategoryFood, core.CategoryTransport, core.CategoryOther}
	wantTotals := amounts(t, "10", "1", "20")
	wantShares := amounts(t, "32.26", "3.23", "64.52")
	for i, c := range s.Categories {
		assert.Equal(t, wantOrder[i], c.Category)
		assert.True(t, wantTotals[i].Equal(c.Total), "%s total %s", c.Category, c.Total)
		assert.True(t, wantShares[i].Equal(c.Share), "%s share %s", c.Category, c.Share)
		assert.Equal(t, 1, c.Count)
	}
}

func TestSummarize_MonthWithoutYear(t *testing.T) {
	s := Summarize(fixture(), Filter{Month: 4})

	assert.Equal(t, ByYear, s.Granularity)
	assertBuckets(t, s, []string{"2025"}, amounts(t, "31"), amounts(t, "31"))
}

func TestSummarize_Empty(t *testing.T) {
	for name, in := range map[string][]core.Expense{
		"nil":        nil,
		"no matches": fixture(),
	} {
		t.Run(name, func(t *testing.T) {
			f := Filter{}
			if in != nil {
				f = Filter{Year: 1999}
			}
			s := Summarize(in, f)
			assert.True(t, s.Total.IsZero())
			assert.NotNil(t, s.Categories)
			assert.NotNil(t, s.Buckets)
			assert.Empty(t, s.Buckets)
			assert.Empty(t, s.Categories)
		})
	}
}

func TestSummarize_DoesNotModifyInput(t *testing.T) {
	in := fixture()
	before := make([]core.Expense, len(in))
	copy(before, in)

	_ = Summarize(in, Filter{Year: 2025})

	require.Len(t, in, len(before))
	for i := range in {
		assert.True(t, before[i].Date.Equal(in[i].Date))
		assert.True(t, before[i].Amount.Equal(in[i].Amount))
		assert.Equal(t, before[i].Category, in[i].Category)
	}
}

func TestFilter_Validate(t *testing.T) {
	assert.NoError(t, Filter{}.Validate())
	assert.NoError(t, Filter{Year: 2025, Month: 12}.Validate())
	assert.Error(t, Filter{Month: 13}.Validate())
	assert.Error(t, Filter{Year: -1}.Validate())
}
