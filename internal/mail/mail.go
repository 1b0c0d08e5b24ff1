// Package mail отправляет письма сервиса инвойсов по SMTP.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/invoicly/invoicly/internal/billing"
	"github.com/invoicly/invoicly/internal/model"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Config содержит параметры SMTP-сервера.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender отправляет письма через внешний SMTP-сервер.
type SMTPSender struct {
	cfg       Config
	templates *template.Template
}

// NewSMTPSender создаёт отправителя писем и разбирает встроенные шаблоны.
func NewSMTPSender(cfg Config) (*SMTPSender, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}

	return &SMTPSender{cfg: cfg, templates: tmpl}, nil
}

func (s *SMTPSender) send(to, subject, htmlBody string) error {
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		s.cfg.From, to, subject, htmlBody,
	))

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func (s *SMTPSender) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

// SendMagicLink отправляет письмо со ссылкой для входа.
func (s *SMTPSender) SendMagicLink(ctx context.Context, to, loginURL string) error {
	body, err := s.render("magic_link.html", map[string]string{
		"LoginURL": loginURL,
	})
	if err != nil {
		return err
	}
	return s.send(to, "Login to your Invoicly account", body)
}

type invoiceEmailData struct {
	InvoiceNumber int64
	InvoiceName   string
	FromName      string
	ToName        string
	IssuedOn      string
	DueOn         string
	Subtotal      string
	TaxRate       string
	TaxAmount     string
	Total         string
	DownloadURL   string
}

func newInvoiceEmailData(inv *model.Invoice, downloadURL string) invoiceEmailData {
	totals := billing.Calculate(inv.ItemQuantity, inv.ItemRate, inv.TaxRate)

	return invoiceEmailData{
		InvoiceNumber: inv.InvoiceNumber,
		InvoiceName:   inv.InvoiceName,
		FromName:      inv.FromName,
		ToName:        inv.ToName,
		IssuedOn:      inv.Date.Format("Jan 02, 2006"),
		DueOn:         inv.DueDate().Format("Jan 02, 2006"),
		Subtotal:      billing.FormatMoney(totals.Subtotal, inv.Currency),
		TaxRate:       fmt.Sprintf("%.0f", inv.TaxRate),
		TaxAmount:     billing.FormatMoney(totals.TaxAmount, inv.Currency),
		Total:         billing.FormatMoney(totals.Total, inv.Currency),
		DownloadURL:   downloadURL,
	}
}

// SendInvoiceCreated отправляет получателю письмо о выставленном инвойсе.
func (s *SMTPSender) SendInvoiceCreated(ctx context.Context, inv *model.Invoice, downloadURL string) error {
	body, err := s.render("invoice_created.html", newInvoiceEmailData(inv, downloadURL))
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Invoice #%d from %s", inv.InvoiceNumber, inv.FromName)
	return s.send(inv.ToEmail, subject, body)
}

// SendReminder отправляет получателю напоминание об оплате инвойса.
func (s *SMTPSender) SendReminder(ctx context.Context, inv *model.Invoice, downloadURL string) error {
	body, err := s.render("reminder.html", newInvoiceEmailData(inv, downloadURL))
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Reminder: invoice #%d from %s is due", inv.InvoiceNumber, inv.FromName)
	return s.send(inv.ToEmail, subject, body)
}
