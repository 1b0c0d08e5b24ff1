// Package revenue строит дневной ряд выручки по инвойсам пользователя.
package revenue

import (
	"time"

	"github.com/invoicly/invoicly/internal/model"
)

// MinDays и MaxDays задают допустимый размер окна ряда в днях.
const (
	MinDays     = 1
	MaxDays     = 365
	DefaultDays = 30
)

const dateLayout = "2006-01-02"

// DatedTotal содержит дату выставления и зафиксированный итог одного инвойса.
type DatedTotal struct {
	Date  time.Time
	Total float64
}

// Day нормализует момент времени к календарному дню в UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Window возвращает границы окна [start, end] из days календарных дней,
// заканчивающегося днём now.
func Window(now time.Time, days int) (start, end time.Time) {
	end = Day(now)
	start = end.AddDate(0, 0, -(days - 1))
	return start, end
}

// BuildSeries раскладывает инвойсы по дневным корзинам окна, начинающегося
// в start. Корзины адресуются смещением дня от начала окна, а не строковым
// ключом даты. Ряд всегда содержит ровно days точек; дни без инвойсов
// заполняются нулём, инвойсы одного дня суммируются. Инвойсы за пределами
// окна игнорируются.
func BuildSeries(start time.Time, days int, invoices []DatedTotal) []model.RevenuePoint {
	start = Day(start)

	buckets := make([]float64, days)
	for _, inv := range invoices {
		offset := int(Day(inv.Date).Sub(start).Hours() / 24)
		if offset < 0 || offset >= days {
			continue
		}
		buckets[offset] += inv.Total
	}

	series := make([]model.RevenuePoint, days)
	for i, sum := range buckets {
		series[i] = model.RevenuePoint{
			Date:    start.AddDate(0, 0, i).Format(dateLayout),
			Revenue: sum,
		}
	}

	return series
}
