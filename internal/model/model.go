// Package model содержит доменные сущности сервиса инвойсов.
package model

import "time"

// User представляет пользователя, владеющего инвойсами.
type User struct {
	ID        string
	Email     string
	Name      string
	Address   string
	CreatedAt time.Time
}

// Onboarded сообщает, завершил ли пользователь первичную настройку профиля.
func (u *User) Onboarded() bool {
	return u.Name != ""
}

// InvoiceStatus описывает статус оплаты инвойса.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "PENDING"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
)

// Invoice описывает инвойс с единственной товарной позицией.
// Поле Total фиксируется при создании и далее не пересчитывается.
type Invoice struct {
	ID              string
	UserID          string
	InvoiceName     string
	InvoiceNumber   int64
	Currency        string
	FromName        string
	FromEmail       string
	FromAddress     string
	ToName          string
	ToEmail         string
	ToAddress       string
	Date            time.Time
	Due             int
	ItemDescription string
	ItemQuantity    float64
	ItemRate        float64
	TaxRate         float64
	Note            string
	Total           float64
	Status          InvoiceStatus
	CreatedAt       time.Time
}

// DueDate возвращает дату оплаты: дата выставления плюс отсрочка в днях.
func (i *Invoice) DueDate() time.Time {
	return i.Date.AddDate(0, 0, i.Due)
}

// InvoiceSummary содержит поля инвойса, отображаемые в списке.
type InvoiceSummary struct {
	ID            string        `json:"id"`
	InvoiceNumber int64         `json:"invoiceNumber"`
	ToName        string        `json:"toName"`
	Total         float64       `json:"total"`
	Status        InvoiceStatus `json:"status"`
	Date          time.Time     `json:"date"`
	Currency      string        `json:"currency"`
}

// DashboardSummary содержит агрегированные показатели по инвойсам пользователя.
type DashboardSummary struct {
	TotalRevenue      float64 `json:"totalRevenue"`
	TotalInvoices     int64   `json:"totalInvoices"`
	TotalPaidInvoices int64   `json:"totalPaidInvoices"`
	TotalOpenInvoices int64   `json:"totalOpenInvoices"`
}

// RevenuePoint представляет одну точку дневного ряда выручки.
type RevenuePoint struct {
	Date    string  `json:"date"`
	Revenue float64 `json:"revenue"`
}
