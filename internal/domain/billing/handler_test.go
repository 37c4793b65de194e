package billing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestHandler_CreateInvoice(t *testing.T) {
	svc, _, _, _ := newTestService(0)
	h := NewHandler(svc)

	body := `{"patient_id":"` + uuid.New().String() + `","items":[{"description":"consultation","quantity":1,"unit_price":80}],"tax":20,"due_date":"2026-06-30"}`
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := h.CreateInvoice(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}

	var inv Invoice
	if err := json.Unmarshal(rec.Body.Bytes(), &inv); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if inv.Total != 100 {
		t.Errorf("total = %v, want 100", inv.Total)
	}
	if inv.InvoiceNumber != "INV-000001" {
		t.Errorf("number = %s", inv.InvoiceNumber)
	}
}

func TestHandler_RecordPayment_OverpayMapsTo422(t *testing.T) {
	svc, _, _, _ := newTestService(0)
	h := NewHandler(svc)
	inv := createInvoice(t, svc, 100, "2026-06-30")

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":150,"method":"cash"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ec := e.NewContext(req, httptest.NewRecorder())
	ec.SetParamNames("id")
	ec.SetParamValues(inv.ID.String())

	err := h.RecordPayment(ec)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
}

func TestHandler_CancelInvoice(t *testing.T) {
	svc, _, _, _ := newTestService(0)
	h := NewHandler(svc)
	inv := createInvoice(t, svc, 100, "2026-06-30")

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	ec := e.NewContext(req, rec)
	ec.SetParamNames("id")
	ec.SetParamValues(inv.ID.String())

	if err := h.CancelInvoice(ec); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandler_Get_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService(0)
	h := NewHandler(svc)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ec := e.NewContext(req, httptest.NewRecorder())
	ec.SetParamNames("id")
	ec.SetParamValues(uuid.New().String())

	err := h.Get(ec)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}
