// Package handler содержит HTTP-обработчики API сервиса инвойсов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/invoicly/invoicly/internal/middleware"
	"github.com/invoicly/invoicly/internal/model"
	"github.com/invoicly/invoicly/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RequestMagicLink(ctx context.Context, email string) error
	VerifyMagicLink(ctx context.Context, token string) (string, error)
	Profile(ctx context.Context, userID string) (*model.User, error)
	FinishOnboarding(ctx context.Context, userID, name, address string) error
	CreateInvoice(ctx context.Context, userID string, params service.CreateInvoiceParams) (*model.Invoice, error)
	ListInvoices(ctx context.Context, userID string) ([]model.InvoiceSummary, error)
	DeleteInvoice(ctx context.Context, userID, invoiceID string) error
	MarkPaid(ctx context.Context, userID, invoiceID string) error
	SendReminder(ctx context.Context, userID, invoiceID string) error
	RenderInvoice(ctx context.Context, userID, invoiceID string) ([]byte, *model.Invoice, error)
	Dashboard(ctx context.Context, userID string) (*model.DashboardSummary, error)
	RevenueSeries(ctx context.Context, userID string, days int, includePending bool) ([]model.RevenuePoint, error)
}

// Handler реализует HTTP-обработчики API сервиса инвойсов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

// writeError переводит ошибки сервиса в HTTP-статусы.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, service.ErrForbidden):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	case errors.Is(err, service.ErrInvalidToken):
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	case errors.Is(err, service.ErrMailDelivery):
		h.logger.Error(op+" error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
	default:
		h.logger.Error(op+" error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type magicLinkRequest struct {
	Email string `json:"email"`
}

// RequestMagicLink отправляет ссылку для входа на указанную почту.
func (h *Handler) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.RequestMagicLink(r.Context(), req.Email); err != nil {
		h.writeError(w, "request magic link", err)
		return
	}

	h.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// VerifyMagicLink обменивает токен входа на cookie сессии.
func (h *Handler) VerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	userID, err := h.service.VerifyMagicLink(r.Context(), token)
	if err != nil {
		h.writeError(w, "verify magic link", err)
		return
	}

	h.authMiddleware.SetSessionCookie(w, userID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type profileResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Address   string `json:"address,omitempty"`
	Onboarded bool   `json:"onboarded"`
}

// Me возвращает профиль текущего пользователя.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	user, err := h.service.Profile(r.Context(), userID)
	if err != nil {
		h.writeError(w, "get profile", err)
		return
	}

	h.writeJSON(w, http.StatusOK, profileResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Address:   user.Address,
		Onboarded: user.Onboarded(),
	})
}

type onboardingRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// FinishOnboarding сохраняет имя и адрес текущего пользователя.
func (h *Handler) FinishOnboarding(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req onboardingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.FinishOnboarding(r.Context(), userID, req.Name, req.Address); err != nil {
		h.writeError(w, "finish onboarding", err)
		return
	}

	h.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

type invoiceItemPayload struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Rate        float64 `json:"rate"`
}

type createInvoiceRequest struct {
	InvoiceName string             `json:"invoiceName"`
	InvoiceNo   int64              `json:"invoiceNo"`
	Currency    string             `json:"currency"`
	FromName    string             `json:"fromName"`
	FromEmail   string             `json:"fromEmail"`
	FromAddress string             `json:"fromAddress"`
	ToName      string             `json:"toName"`
	ToEmail     string             `json:"toEmail"`
	ToAddress   string             `json:"toAddress"`
	Date        string             `json:"date"`
	Due         int                `json:"due"`
	Item        invoiceItemPayload `json:"item"`
	TaxRate     float64            `json:"taxRate"`
	Note        string             `json:"note,omitempty"`
}

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.Parse(dateLayout, s); err == nil {
		return d, nil
	}
	return time.Parse(time.RFC3339, s)
}

type invoiceResponse struct {
	ID            string             `json:"id"`
	InvoiceName   string             `json:"invoiceName"`
	InvoiceNumber int64              `json:"invoiceNumber"`
	Currency      string             `json:"currency"`
	FromName      string             `json:"fromName"`
	FromEmail     string             `json:"fromEmail"`
	FromAddress   string             `json:"fromAddress"`
	ToName        string             `json:"toName"`
	ToEmail       string             `json:"toEmail"`
	ToAddress     string             `json:"toAddress"`
	Date          string             `json:"date"`
	Due           int                `json:"due"`
	Item          invoiceItemPayload `json:"item"`
	TaxRate       float64            `json:"taxRate"`
	Note          string             `json:"note,omitempty"`
	Total         float64            `json:"total"`
	Status        string             `json:"status"`
	CreatedAt     string             `json:"createdAt"`
}

func newInvoiceResponse(inv *model.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:            inv.ID,
		InvoiceName:   inv.InvoiceName,
		InvoiceNumber: inv.InvoiceNumber,
		Currency:      inv.Currency,
		FromName:      inv.FromName,
		FromEmail:     inv.FromEmail,
		FromAddress:   inv.FromAddress,
		ToName:        inv.ToName,
		ToEmail:       inv.ToEmail,
		ToAddress:     inv.ToAddress,
		Date:          inv.Date.Format(dateLayout),
		Due:           inv.Due,
		Item: invoiceItemPayload{
			Description: inv.ItemDescription,
			Quantity:    inv.ItemQuantity,
			Rate:        inv.ItemRate,
		},
		TaxRate:   inv.TaxRate,
		Note:      inv.Note,
		Total:     inv.Total,
		Status:    string(inv.Status),
		CreatedAt: inv.CreatedAt.Format(time.RFC3339),
	}
}

// CreateInvoice создаёт новый инвойс текущего пользователя.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		http.Error(w, "invalid date format", http.StatusUnprocessableEntity)
		return
	}

	inv, err := h.service.CreateInvoice(r.Context(), userID, service.CreateInvoiceParams{
		InvoiceName:     req.InvoiceName,
		InvoiceNumber:   req.InvoiceNo,
		Currency:        req.Currency,
		FromName:        req.FromName,
		FromEmail:       req.FromEmail,
		FromAddress:     req.FromAddress,
		ToName:          req.ToName,
		ToEmail:         req.ToEmail,
		ToAddress:       req.ToAddress,
		Date:            date,
		Due:             req.Due,
		ItemDescription: req.Item.Description,
		ItemQuantity:    req.Item.Quantity,
		ItemRate:        req.Item.Rate,
		TaxRate:         req.TaxRate,
		Note:            req.Note,
	})
	if err != nil {
		h.writeError(w, "create invoice", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newInvoiceResponse(inv))
}

type invoiceSummaryResponse struct {
	ID            string  `json:"id"`
	InvoiceNumber int64   `json:"invoiceNumber"`
	ToName        string  `json:"toName"`
	Total         float64 `json:"total"`
	Status        string  `json:"status"`
	Date          string  `json:"date"`
	Currency      string  `json:"currency"`
}

// GetInvoices возвращает список инвойсов текущего пользователя.
func (h *Handler) GetInvoices(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	invoices, err := h.service.ListInvoices(r.Context(), userID)
	if err != nil {
		h.writeError(w, "get invoices", err)
		return
	}

	resp := make([]invoiceSummaryResponse, 0, len(invoices))
	for _, inv := range invoices {
		resp = append(resp, invoiceSummaryResponse{
			ID:            inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			ToName:        inv.ToName,
			Total:         inv.Total,
			Status:        string(inv.Status),
			Date:          inv.Date.Format(dateLayout),
			Currency:      inv.Currency,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// invoiceAction выполняет операцию над одним инвойсом и отвечает success-конвертом.
func (h *Handler) invoiceAction(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, userID, invoiceID string) error) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	invoiceID := pathID(r)
	if invoiceID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := fn(r.Context(), userID, invoiceID); err != nil {
		h.writeError(w, op, err)
		return
	}

	h.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// DeleteInvoice безвозвратно удаляет инвойс текущего пользователя.
func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction(w, r, "delete invoice", h.service.DeleteInvoice)
}

// MarkAsPaid помечает инвойс оплаченным.
func (h *Handler) MarkAsPaid(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction(w, r, "mark as paid", h.service.MarkPaid)
}

// SendReminder отправляет получателю напоминание об оплате.
func (h *Handler) SendReminder(w http.ResponseWriter, r *http.Request) {
	h.invoiceAction(w, r, "send reminder", h.service.SendReminder)
}

// GetDashboard возвращает агрегированные показатели текущего пользователя.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	summary, err := h.service.Dashboard(r.Context(), userID)
	if err != nil {
		h.writeError(w, "get dashboard", err)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

type revenueSeriesResponse struct {
	Data []model.RevenuePoint `json:"data"`
}

// GetRevenueSeries возвращает дневной ряд выручки текущего пользователя.
func (h *Handler) GetRevenueSeries(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "days must be an integer", http.StatusUnprocessableEntity)
			return
		}
		days = parsed
	}

	includePending := r.URL.Query().Get("includePending") == "true"

	series, err := h.service.RevenueSeries(r.Context(), userID, days, includePending)
	if err != nil {
		h.writeError(w, "get revenue series", err)
		return
	}

	h.writeJSON(w, http.StatusOK, revenueSeriesResponse{Data: series})
}

// GetInvoiceDocument отдаёт PDF-документ инвойса текущего пользователя.
func (h *Handler) GetInvoiceDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	invoiceID := pathID(r)

	doc, inv, err := h.service.RenderInvoice(r.Context(), userID, invoiceID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "Invoice not found"})
		case errors.Is(err, service.ErrForbidden):
			h.writeJSON(w, http.StatusForbidden, errorResponse{Error: "Forbidden"})
		default:
			h.logger.Error("render invoice error", zap.Error(err), zap.String("invoiceID", invoiceID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=invoice-%d.pdf", inv.InvoiceNumber))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc); err != nil {
		h.logger.Error("write invoice document", zap.Error(err))
	}
}
