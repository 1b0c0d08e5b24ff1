package revenue

import (
	"math"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWindow(t *testing.T) {
	now := time.Date(2025, time.March, 10, 17, 45, 3, 0, time.UTC)

	start, end := Window(now, 3)

	if !end.Equal(date(2025, time.March, 10)) {
		t.Fatalf("end = %v, want 2025-03-10", end)
	}
	if !start.Equal(date(2025, time.March, 8)) {
		t.Fatalf("start = %v, want 2025-03-08", start)
	}
}

func TestWindowSingleDay(t *testing.T) {
	now := date(2025, time.June, 1)

	start, end := Window(now, 1)

	if !start.Equal(end) {
		t.Fatalf("window of 1 day must collapse to a single date, got [%v, %v]", start, end)
	}
}

func TestBuildSeriesLengthAndContiguity(t *testing.T) {
	for _, days := range []int{1, 3, 30, 365} {
		series := BuildSeries(date(2025, time.January, 1), days, nil)

		if len(series) != days {
			t.Fatalf("days=%d: len(series) = %d, want %d", days, len(series), days)
		}

		prev, err := time.Parse("2006-01-02", series[0].Date)
		if err != nil {
			t.Fatalf("parse first date: %v", err)
		}
		for _, p := range series[1:] {
			d, err := time.Parse("2006-01-02", p.Date)
			if err != nil {
				t.Fatalf("parse date %q: %v", p.Date, err)
			}
			if !d.Equal(prev.AddDate(0, 0, 1)) {
				t.Fatalf("dates not contiguous: %v after %v", d, prev)
			}
			prev = d
		}
	}
}

func TestBuildSeriesZeroFill(t *testing.T) {
	series := BuildSeries(date(2025, time.May, 1), 7, nil)

	for _, p := range series {
		if p.Revenue != 0 {
			t.Fatalf("empty invoice set must yield all-zero series, got %v on %s", p.Revenue, p.Date)
		}
	}
}

func TestBuildSeriesAccumulatesSameDay(t *testing.T) {
	start := date(2025, time.May, 1)
	invoices := []DatedTotal{
		{Date: date(2025, time.May, 3), Total: 50},
		{Date: date(2025, time.May, 3), Total: 25},
		{Date: time.Date(2025, time.May, 3, 23, 59, 0, 0, time.UTC), Total: 100},
		{Date: date(2025, time.May, 1), Total: 10},
	}

	series := BuildSeries(start, 5, invoices)

	if series[2].Revenue != 175 {
		t.Fatalf("revenue on 2025-05-03 = %v, want 175", series[2].Revenue)
	}
	if series[0].Revenue != 10 {
		t.Fatalf("revenue on 2025-05-01 = %v, want 10", series[0].Revenue)
	}
	if series[1].Revenue != 0 || series[3].Revenue != 0 || series[4].Revenue != 0 {
		t.Fatalf("untouched days must stay zero: %+v", series)
	}
}

func TestBuildSeriesIgnoresOutOfWindow(t *testing.T) {
	start := date(2025, time.May, 10)
	invoices := []DatedTotal{
		{Date: date(2025, time.May, 9), Total: 999},
		{Date: date(2025, time.May, 13), Total: 999},
		{Date: date(2025, time.May, 12), Total: 42},
	}

	series := BuildSeries(start, 3, invoices)

	var sum float64
	for _, p := range series {
		sum += p.Revenue
	}
	if sum != 42 {
		t.Fatalf("series sum = %v, want 42 (out-of-window invoices must be dropped)", sum)
	}
}

func TestBuildSeriesSumEqualsInvoiceSum(t *testing.T) {
	start := date(2025, time.February, 1)
	days := 28

	invoices := []DatedTotal{
		{Date: date(2025, time.February, 1), Total: 236},
		{Date: date(2025, time.February, 14), Total: 17.5},
		{Date: date(2025, time.February, 14), Total: 0.25},
		{Date: date(2025, time.February, 28), Total: 1000},
	}

	var want float64
	for _, inv := range invoices {
		want += inv.Total
	}

	series := BuildSeries(start, days, invoices)

	var got float64
	for _, p := range series {
		got += p.Revenue
	}

	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("series sum = %v, want %v", got, want)
	}
}
