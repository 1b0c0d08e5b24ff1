// Package billing содержит расчёт сумм инвойса.
package billing

import "fmt"

// Totals содержит суммы по инвойсу: позиция, промежуточный итог, налог и итог.
type Totals struct {
	LineAmount float64
	Subtotal   float64
	TaxAmount  float64
	Total      float64
}

// Calculate вычисляет суммы инвойса из количества, ставки и налоговой ставки в процентах.
// Расчёт ведётся в double без округления; округление — задача слоя отображения.
func Calculate(quantity, rate, taxRatePercent float64) Totals {
	lineAmount := quantity * rate
	subtotal := lineAmount
	taxAmount := lineAmount * taxRatePercent / 100

	return Totals{
		LineAmount: lineAmount,
		Subtotal:   subtotal,
		TaxAmount:  taxAmount,
		Total:      subtotal + taxAmount,
	}
}

// FormatMoney форматирует сумму для отображения: символ валюты для известных
// кодов, иначе код с пробелом. Два знака после запятой.
func FormatMoney(amount float64, currency string) string {
	return currencySymbol(currency) + fmt.Sprintf("%.2f", amount)
}

func currencySymbol(code string) string {
	switch code {
	case "USD":
		return "$"
	case "EUR":
		return "€"
	case "GBP":
		return "£"
	case "INR":
		return "₹"
	default:
		return code + " "
	}
}
