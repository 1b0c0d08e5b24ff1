// Package service реализует бизнес-логику сервиса инвойсов.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoicly/invoicly/internal/billing"
	"github.com/invoicly/invoicly/internal/model"
	"github.com/invoicly/invoicly/internal/repository"
	"github.com/invoicly/invoicly/internal/revenue"
	"github.com/invoicly/invoicly/internal/validation"
)

// ErrValidation возвращается при некорректных входных данных операции.
var (
	ErrValidation = errors.New("validation error")
	// ErrNotFound возвращается, если запрошенный инвойс или пользователь отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrForbidden возвращается при попытке доступа к чужому инвойсу.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidToken возвращается при неизвестном, истёкшем или использованном токене входа.
	ErrInvalidToken = errors.New("invalid login token")
	// ErrMailDelivery возвращается, если письмо не удалось отправить.
	ErrMailDelivery = errors.New("mail delivery failed")
)

const loginTokenTTL = 15 * time.Minute

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, id, email string) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateUserProfile(ctx context.Context, id, name, address string) error
	CreateLoginToken(ctx context.Context, token, userID string, expiresAt time.Time) error
	ConsumeLoginToken(ctx context.Context, token string, now time.Time) (string, error)
	CreateInvoice(ctx context.Context, inv *model.Invoice) error
	GetInvoiceByID(ctx context.Context, id string) (*model.Invoice, error)
	GetInvoicesByUser(ctx context.Context, userID string) ([]model.InvoiceSummary, error)
	DeleteInvoice(ctx context.Context, id string) error
	SetInvoiceStatus(ctx context.Context, id string, status model.InvoiceStatus) error
	GetInvoicesForRevenue(ctx context.Context, userID string, start, end time.Time, includePending bool) ([]repository.InvoiceRevenue, error)
	GetDashboard(ctx context.Context, userID string) (*model.DashboardSummary, error)
}

// Mailer описывает контракт отправки писем.
type Mailer interface {
	SendMagicLink(ctx context.Context, to, loginURL string) error
	SendInvoiceCreated(ctx context.Context, inv *model.Invoice, downloadURL string) error
	SendReminder(ctx context.Context, inv *model.Invoice, downloadURL string) error
}

// DocumentRenderer описывает контракт формирования PDF-документа инвойса.
type DocumentRenderer interface {
	Render(inv *model.Invoice) ([]byte, error)
}

// Service содержит бизнес-логику сервиса инвойсов.
type Service struct {
	repo     Repository
	mailer   Mailer
	renderer DocumentRenderer
	appURL   string
	logger   *zap.Logger
	now      func() time.Time
}

// NewService создаёт новый сервис с указанными репозиторием и коллабораторами.
func NewService(repo Repository, mailer Mailer, renderer DocumentRenderer, appURL string, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		mailer:   mailer,
		renderer: renderer,
		appURL:   appURL,
		logger:   logger,
		now:      time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

func (s *Service) downloadURL(invoiceID string) string {
	return s.appURL + "/api/invoice/" + invoiceID
}

// RequestMagicLink создаёт одноразовый токен входа и отправляет ссылку на почту.
// Пользователь создаётся при первом входе.
func (s *Service) RequestMagicLink(ctx context.Context, email string) error {
	if !validation.IsValidEmail(email) {
		return fmt.Errorf("%w: invalid email", ErrValidation)
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		id := uuid.NewString()
		if createErr := s.repo.CreateUser(ctx, id, email); createErr != nil {
			// Параллельный вход с той же почтой мог создать пользователя раньше нас.
			if !errors.Is(createErr, repository.ErrUserExists) {
				return createErr
			}
		}
		user, err = s.repo.GetUserByEmail(ctx, email)
	}
	if err != nil {
		return err
	}

	token := uuid.NewString()
	if err := s.repo.CreateLoginToken(ctx, token, user.ID, s.now().Add(loginTokenTTL)); err != nil {
		return err
	}

	loginURL := s.appURL + "/api/auth/verify?token=" + token
	if err := s.mailer.SendMagicLink(ctx, email, loginURL); err != nil {
		return fmt.Errorf("%w: %w", ErrMailDelivery, err)
	}

	return nil
}

// VerifyMagicLink обменивает токен входа на идентификатор пользователя.
func (s *Service) VerifyMagicLink(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	userID, err := s.repo.ConsumeLoginToken(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return "", ErrInvalidToken
		}
		return "", err
	}

	return userID, nil
}

// Profile возвращает профиль пользователя.
func (s *Service) Profile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// FinishOnboarding сохраняет имя и адрес пользователя после первого входа.
func (s *Service) FinishOnboarding(ctx context.Context, userID, name, address string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if address == "" {
		return fmt.Errorf("%w: address is required", ErrValidation)
	}

	if err := s.repo.UpdateUserProfile(ctx, userID, name, address); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// CreateInvoiceParams содержит поля нового инвойса.
type CreateInvoiceParams struct {
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
}

func (p *CreateInvoiceParams) validate() error {
	required := []struct{ name, value string }{
		{"invoiceName", p.InvoiceName},
		{"fromName", p.FromName},
		{"fromEmail", p.FromEmail},
		{"fromAddress", p.FromAddress},
		{"toName", p.ToName},
		{"toEmail", p.ToEmail},
		{"toAddress", p.ToAddress},
		{"item.description", p.ItemDescription},
	}
	for _, f := range required {
		if f.value == "" {
			return fmt.Errorf("%w: %s is required", ErrValidation, f.name)
		}
	}

	if !validation.IsValidCurrency(p.Currency) {
		return fmt.Errorf("%w: invalid currency code", ErrValidation)
	}
	if !validation.IsValidEmail(p.FromEmail) {
		return fmt.Errorf("%w: invalid fromEmail", ErrValidation)
	}
	if !validation.IsValidEmail(p.ToEmail) {
		return fmt.Errorf("%w: invalid toEmail", ErrValidation)
	}
	if p.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrValidation)
	}
	if p.Due < 0 {
		return fmt.Errorf("%w: due must not be negative", ErrValidation)
	}
	if p.ItemQuantity <= 0 {
		return fmt.Errorf("%w: item.quantity must be positive", ErrValidation)
	}
	if p.ItemRate <= 0 {
		return fmt.Errorf("%w: item.rate must be positive", ErrValidation)
	}
	if p.TaxRate <= 0 {
		return fmt.Errorf("%w: taxRate must be positive", ErrValidation)
	}

	return nil
}

// CreateInvoice создаёт новый инвойс со статусом PENDING и фиксирует его итог.
// Письмо получателю отправляется после сохранения; сбой отправки не считается
// сбоем создания и только логируется.
func (s *Service) CreateInvoice(ctx context.Context, userID string, params CreateInvoiceParams) (*model.Invoice, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	totals := billing.Calculate(params.ItemQuantity, params.ItemRate, params.TaxRate)

	inv := &model.Invoice{
		ID:              uuid.NewString(),
		UserID:          userID,
		InvoiceName:     params.InvoiceName,
		InvoiceNumber:   params.InvoiceNumber,
		Currency:        params.Currency,
		FromName:        params.FromName,
		FromEmail:       params.FromEmail,
		FromAddress:     params.FromAddress,
		ToName:          params.ToName,
		ToEmail:         params.ToEmail,
		ToAddress:       params.ToAddress,
		Date:            revenue.Day(params.Date),
		Due:             params.Due,
		ItemDescription: params.ItemDescription,
		ItemQuantity:    params.ItemQuantity,
		ItemRate:        params.ItemRate,
		TaxRate:         params.TaxRate,
		Note:            params.Note,
		Total:           totals.Total,
		Status:          model.InvoiceStatusPending,
		CreatedAt:       s.now(),
	}

	if err := s.repo.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	if err := s.mailer.SendInvoiceCreated(ctx, inv, s.downloadURL(inv.ID)); err != nil {
		s.logger.Warn("invoice created but notification not delivered",
			zap.String("invoiceID", inv.ID),
			zap.Error(err),
		)
	}

	return inv, nil
}

// ListInvoices возвращает список инвойсов пользователя.
func (s *Service) ListInvoices(ctx context.Context, userID string) ([]model.InvoiceSummary, error) {
	return s.repo.GetInvoicesByUser(ctx, userID)
}

// getOwnedInvoice возвращает инвойс после обязательной проверки владельца.
func (s *Service) getOwnedInvoice(ctx context.Context, userID, invoiceID string) (*model.Invoice, error) {
	inv, err := s.repo.GetInvoiceByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, repository.ErrInvoiceNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if inv.UserID != userID {
		return nil, ErrForbidden
	}

	return inv, nil
}

// DeleteInvoice безвозвратно удаляет инвойс пользователя.
func (s *Service) DeleteInvoice(ctx context.Context, userID, invoiceID string) error {
	if _, err := s.getOwnedInvoice(ctx, userID, invoiceID); err != nil {
		return err
	}

	if err := s.repo.DeleteInvoice(ctx, invoiceID); err != nil {
		if errors.Is(err, repository.ErrInvoiceNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// MarkPaid переводит инвойс в статус PAID. Повторный вызов для уже
// оплаченного инвойса не является ошибкой.
func (s *Service) MarkPaid(ctx context.Context, userID, invoiceID string) error {
	if _, err := s.getOwnedInvoice(ctx, userID, invoiceID); err != nil {
		return err
	}

	if err := s.repo.SetInvoiceStatus(ctx, invoiceID, model.InvoiceStatusPaid); err != nil {
		if errors.Is(err, repository.ErrInvoiceNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// SendReminder отправляет получателю напоминание об оплате. Состояние инвойса
// не меняется.
func (s *Service) SendReminder(ctx context.Context, userID, invoiceID string) error {
	inv, err := s.getOwnedInvoice(ctx, userID, invoiceID)
	if err != nil {
		return err
	}

	if err := s.mailer.SendReminder(ctx, inv, s.downloadURL(inv.ID)); err != nil {
		return fmt.Errorf("%w: %w", ErrMailDelivery, err)
	}
	return nil
}

// RenderInvoice формирует PDF-документ инвойса пользователя.
func (s *Service) RenderInvoice(ctx context.Context, userID, invoiceID string) ([]byte, *model.Invoice, error) {
	inv, err := s.getOwnedInvoice(ctx, userID, invoiceID)
	if err != nil {
		return nil, nil, err
	}

	doc, err := s.renderer.Render(inv)
	if err != nil {
		return nil, nil, fmt.Errorf("render invoice: %w", err)
	}

	return doc, inv, nil
}

// Dashboard возвращает агрегированные показатели по инвойсам пользователя.
func (s *Service) Dashboard(ctx context.Context, userID string) (*model.DashboardSummary, error) {
	return s.repo.GetDashboard(ctx, userID)
}

// RevenueSeries строит дневной ряд выручки за окно из days дней,
// заканчивающееся сегодняшним днём. Нулевое значение days означает окно
// по умолчанию.
func (s *Service) RevenueSeries(ctx context.Context, userID string, days int, includePending bool) ([]model.RevenuePoint, error) {
	if days == 0 {
		days = revenue.DefaultDays
	}
	if days < revenue.MinDays || days > revenue.MaxDays {
		return nil, fmt.Errorf("%w: days must be between %d and %d", ErrValidation, revenue.MinDays, revenue.MaxDays)
	}

	start, end := revenue.Window(s.now(), days)

	invoices, err := s.repo.GetInvoicesForRevenue(ctx, userID, start, end, includePending)
	if err != nil {
		return nil, err
	}

	totals := make([]revenue.DatedTotal, 0, len(invoices))
	for _, inv := range invoices {
		totals = append(totals, revenue.DatedTotal{Date: inv.Date, Total: inv.Total})
	}

	return revenue.BuildSeries(start, days, totals), nil
}
