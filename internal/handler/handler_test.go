package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/invoicly/invoicly/internal/middleware"
	"github.com/invoicly/invoicly/internal/model"
	"github.com/invoicly/invoicly/internal/service"
)

type stubService struct {
	magicLinkErr error

	verifyUserID string
	verifyErr    error

	profile    *model.User
	profileErr error

	onboardErr error

	createdInvoice *model.Invoice
	createErr      error

	listResp []model.InvoiceSummary
	listErr  error

	deleteErr error
	payErr    error
	remindErr error

	renderDoc []byte
	renderInv *model.Invoice
	renderErr error

	dashboard    *model.DashboardSummary
	dashboardErr error

	series    []model.RevenuePoint
	seriesErr error
}

func (s *stubService) RequestMagicLink(ctx context.Context, email string) error {
	return s.magicLinkErr
}

func (s *stubService) VerifyMagicLink(ctx context.Context, token string) (string, error) {
	return s.verifyUserID, s.verifyErr
}

func (s *stubService) Profile(ctx context.Context, userID string) (*model.User, error) {
	return s.profile, s.profileErr
}

func (s *stubService) FinishOnboarding(ctx context.Context, userID, name, address string) error {
	return s.onboardErr
}

func (s *stubService) CreateInvoice(ctx context.Context, userID string, params service.CreateInvoiceParams) (*model.Invoice, error) {
	return s.createdInvoice, s.createErr
}

func (s *stubService) ListInvoices(ctx context.Context, userID string) ([]model.InvoiceSummary, error) {
	return s.listResp, s.listErr
}

func (s *stubService) DeleteInvoice(ctx context.Context, userID, invoiceID string) error {
	return s.deleteErr
}

func (s *stubService) MarkPaid(ctx context.Context, userID, invoiceID string) error {
	return s.payErr
}

func (s *stubService) SendReminder(ctx context.Context, userID, invoiceID string) error {
	return s.remindErr
}

func (s *stubService) RenderInvoice(ctx context.Context, userID, invoiceID string) ([]byte, *model.Invoice, error) {
	return s.renderDoc, s.renderInv, s.renderErr
}

func (s *stubService) Dashboard(ctx context.Context, userID string) (*model.DashboardSummary, error) {
	return s.dashboard, s.dashboardErr
}

func (s *stubService) RevenueSeries(ctx context.Context, userID string, days int, includePending bool) ([]model.RevenuePoint, error) {
	return s.series, s.seriesErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

func authCookie(t *testing.T, h *Handler, userID string) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	h.authMiddleware.SetSessionCookie(rec, userID)
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no session cookie set")
	}
	return cookies[0]
}

func TestRequestMagicLink_Success(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	body := bytes.NewReader([]byte(`{"email":"user@example.com"}`))
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"success":true`) {
		t.Fatalf("body = %q, want success envelope", rec.Body.String())
	}
}

func TestRequestMagicLink_ValidationError(t *testing.T) {
	h := newTestHandler(t, &stubService{
		magicLinkErr: fmt.Errorf("%w: invalid email", service.ErrValidation),
	})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"bad"}`))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestVerifyMagicLink_SetsCookieAndRedirects(t *testing.T) {
	h := newTestHandler(t, &stubService{verifyUserID: "user-1"})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/auth/verify?token=tok", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusSeeOther)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("session cookie not set")
	}
}

func TestVerifyMagicLink_InvalidToken(t *testing.T) {
	h := newTestHandler(t, &stubService{verifyErr: service.ErrInvalidToken})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/auth/verify?token=bad", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestProtectedRoutes_Unauthorized(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/invoices"},
		{http.MethodPost, "/api/invoices"},
		{http.MethodGet, "/api/dashboard"},
		{http.MethodGet, "/api/revenue"},
		{http.MethodGet, "/api/invoice/some-id"},
		{http.MethodPost, "/api/user/onboarding"},
	}

	for _, rt := range routes {
		req := httptest.NewRequest(rt.method, rt.path, nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		if rec.Result().StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s %s: status = %d, want %d", rt.method, rt.path, rec.Result().StatusCode, http.StatusUnauthorized)
		}
	}
}

func TestCreateInvoice_Success(t *testing.T) {
	created := &model.Invoice{
		ID:            "inv-1",
		InvoiceNumber: 7,
		Currency:      "USD",
		Date:          time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC),
		Total:         236,
		Status:        model.InvoiceStatusPending,
		CreatedAt:     time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC),
	}
	h := newTestHandler(t, &stubService{createdInvoice: created})
	router := h.SetupRouter()

	payload := `{
		"invoiceName": "Consulting",
		"invoiceNo": 7,
		"currency": "USD",
		"date": "2025-06-15",
		"due": 14,
		"item": {"description": "Consulting", "quantity": 2, "rate": 100},
		"taxRate": 18
	}`

	req := httptest.NewRequest(http.MethodPost, "/api/invoices", strings.NewReader(payload))
	req.AddCookie(authCookie(t, h, "user-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp invoiceResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 236 {
		t.Fatalf("total = %v, want 236", resp.Total)
	}
	if resp.Status != "PENDING" {
		t.Fatalf("status = %q, want PENDING", resp.Status)
	}
}

func TestCreateInvoice_BadDate(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/invoices", strings.NewReader(`{"date":"июнь"}`))
	req.AddCookie(authCookie(t, h, "user-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestGetInvoices_EmptyList(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.AddCookie(authCookie(t, h, "user-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("body = %q, want empty JSON array", got)
	}
}

func TestDeleteInvoice_NotFound(t *testing.T) {
	h := newTestHandler(t, &stubService{deleteErr: service.ErrNotFound})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodDelete, "/api/invoices/missing", nil)
	req.AddCookie(authCookie(t, h, "user-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNotFound)
	}
}

func TestMarkAsPaid_RepeatedCallsSucceed(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/invoices/inv-1/pay", nil)
		req.AddCookie(authCookie(t, h, "user-1"))
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		if rec.Result().StatusCode != http.StatusOK {
			t.Fatalf("call %d: status = %d, want %d", i+1, rec.Result().StatusCode, http.StatusOK)
		}
		if !strings.Contains(rec.Body.String(), `"success":true`) {
			t.Fatalf("call %d: body = %q", i+1, rec.Body.String())
		}
	}
}

func TestSendReminder_CrossOwnerForbidden(t *testing.T) {
	h := newTestHandler(t, &stubService{remindErr: service.ErrForbidden})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/invoices/inv-1/remind", nil)
	req.AddCookie(authCookie(t, h, "intruder"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusForbidden)
	}
}

func TestGetDashboard_JSONResponse(t *testing.T) {
	h := newTestHandler(t, &stubService{
		dashboard: &model.DashboardSummary{
			TotalRevenue:      175,
			TotalInvoices:     3,
			TotalPaidInvoices: 2,
			TotalOpenInvoices: 1,
		},
	})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.AddCookie(authCookie(t, h, "user-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp model.DashboardSummary
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalRevenue != 175 || resp.TotalInvoices != 3 {
		t.Fatalf("unexpected dashboard: %+v", resp)
	}
}

func TestGetRevenueSeries_Success(t *testing.T) {
	h := newTestHandler(t, &stubService{
		series: []model.RevenuePoint{
			{Date: "2025-06-13", Revenue: 0},
			{Date: "2025-06-14", Revenue: 0},
			{Date: "2025-06-15", Revenue: 50},
		},
	})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/revenue?days=3", nil)
	req.AddCookie(authCookie(t, h, "user-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp revenueSeriesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) != 3 {
		t.Fatalf("len(data) = %d, want 3", len(resp.Data))
	}
	if resp.Data[2].Revenue != 50 {
		t.Fatalf("last point revenue = %v, want 50", resp.Data[2].Revenue)
	}
}

func TestGetRevenueSeries_BadDays(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/revenue?days=abc", nil)
	req.AddCookie(authCookie(t, h, "user-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestGetInvoiceDocument_Success(t *testing.T) {
	h := newTestHandler(t, &stubService{
		renderDoc: []byte("%PDF-1.7 stub"),
		renderInv: &model.Invoice{ID: "inv-1", InvoiceNumber: 7},
	})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/invoice/inv-1", nil)
	req.AddCookie(authCookie(t, h, "user-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content-type = %q, want application/pdf", ct)
	}
	if cd := res.Header.Get("Content-Disposition"); !strings.Contains(cd, "invoice-7.pdf") {
		t.Fatalf("content-disposition = %q, want filename invoice-7.pdf", cd)
	}
	if !strings.HasPrefix(rec.Body.String(), "%PDF") {
		t.Fatalf("body does not look like a PDF")
	}
}

func TestGetInvoiceDocument_NotFoundJSON(t *testing.T) {
	h := newTestHandler(t, &stubService{renderErr: service.ErrNotFound})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/invoice/unknown", nil)
	req.AddCookie(authCookie(t, h, "user-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "Invoice not found" {
		t.Fatalf("error = %q, want %q", resp.Error, "Invoice not found")
	}
}

func TestGetInvoiceDocument_Forbidden(t *testing.T) {
	h := newTestHandler(t, &stubService{renderErr: service.ErrForbidden})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/invoice/inv-1", nil)
	req.AddCookie(authCookie(t, h, "intruder"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusForbidden)
	}
}

func TestMe_Profile(t *testing.T) {
	h := newTestHandler(t, &stubService{
		profile: &model.User{ID: "user-1", Email: "user@example.com", Name: "Acme", Address: "1 Main St"},
	})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/user/me", nil)
	req.AddCookie(authCookie(t, h, "user-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	var resp profileResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Onboarded {
		t.Fatalf("user with name must be onboarded")
	}
}

func TestFinishOnboarding_Success(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/user/onboarding", strings.NewReader(`{"name":"Acme","address":"1 Main St"}`))
	req.AddCookie(authCookie(t, h, "user-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"success":true`) {
		t.Fatalf("body = %q, want success envelope", rec.Body.String())
	}
}
