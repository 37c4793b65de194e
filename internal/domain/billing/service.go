package billing

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/careops/careops/internal/platform/apperr"
	"github.com/careops/careops/internal/platform/clock"
	"github.com/careops/careops/internal/platform/db"
	"github.com/careops/careops/internal/platform/events"
	"github.com/careops/careops/internal/platform/keylock"
)

// EventPublisher is the slice of the event dispatcher the service uses.
type EventPublisher interface {
	Publish(event events.Event)
}

// Service is the invoice/payment ledger. Writes to one invoice are
// serialized through a per-invoice lock so paid_amount never reflects a
// lost update.
type Service struct {
	invoices  InvoiceRepository
	payments  PaymentRepository
	locks     *keylock.KeyedMutex
	publisher EventPublisher
	clock     clock.Clock

	// overpayTolerance is the amount by which a payment may exceed the
	// remaining balance. Zero means any overpayment is rejected.
	overpayTolerance float64
}

func NewService(invoices InvoiceRepository, payments PaymentRepository,
	publisher EventPublisher, clk clock.Clock, overpayTolerance float64) *Service {
	return &Service{
		invoices:         invoices,
		payments:         payments,
		locks:            keylock.New(),
		publisher:        publisher,
		clock:            clk,
		overpayTolerance: overpayTolerance,
	}
}

// ItemInput is one requested invoice line.
type ItemInput struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// CreateInvoiceRequest is the input to CreateInvoice. DueDate is a
// YYYY-MM-DD calendar date.
type CreateInvoiceRequest struct {
	PatientID uuid.UUID   `json:"patient_id"`
	Items     []ItemInput `json:"items"`
	Tax       float64     `json:"tax"`
	Discount  float64     `json:"discount"`
	DueDate   string      `json:"due_date"`
	Notes     *string     `json:"notes,omitempty"`
}

// CreateInvoice computes the totals from the line items, assigns the next
// invoice number for the tenant, and stores the invoice.
func (s *Service) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	if req.PatientID == uuid.Nil {
		return nil, apperr.New(apperr.Validation, "patient_id is required")
	}
	if len(req.Items) == 0 {
		return nil, apperr.New(apperr.Validation, "invoice needs at least one item")
	}
	if req.Tax < 0 || req.Discount < 0 {
		return nil, apperr.New(apperr.Validation, "tax and discount must not be negative")
	}
	due, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		return nil, apperr.New(apperr.Validation, "due_date must be YYYY-MM-DD, got %q", req.DueDate)
	}

	items := make([]InvoiceItem, 0, len(req.Items))
	subtotal := 0.0
	for i, in := range req.Items {
		if strings.TrimSpace(in.Description) == "" {
			return nil, apperr.New(apperr.Validation, "item %d has no description", i+1)
		}
		if in.Quantity <= 0 {
			return nil, apperr.New(apperr.Validation, "item %d quantity must be positive", i+1)
		}
		if in.UnitPrice <= 0 {
			return nil, apperr.New(apperr.Validation, "item %d unit price must be positive", i+1)
		}
		lineTotal := float64(in.Quantity) * in.UnitPrice
		subtotal += lineTotal
		items = append(items, InvoiceItem{
			Description: in.Description,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			LineTotal:   lineTotal,
		})
	}

	total := subtotal + req.Tax - req.Discount
	if total < 0 {
		return nil, apperr.New(apperr.Validation, "discount exceeds subtotal plus tax")
	}

	seq, err := s.invoices.NextInvoiceNumber(ctx)
	if err != nil {
		return nil, err
	}

	inv := &Invoice{
		InvoiceNumber: FormatInvoiceNumber(seq),
		PatientID:     req.PatientID,
		Items:         items,
		Subtotal:      subtotal,
		Tax:           req.Tax,
		Discount:      req.Discount,
		Total:         total,
		DueDate:       due,
		Notes:         req.Notes,
	}
	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, err
	}

	inv.Status = DeriveStatus(inv.PaidAmount, inv.Total, inv.DueDate, inv.Cancelled, s.clock.Now())
	s.emit(ctx, events.InvoiceCreated, inv.ID.String(), map[string]interface{}{
		"invoice_id":     inv.ID.String(),
		"invoice_number": inv.InvoiceNumber,
		"patient_id":     inv.PatientID.String(),
		"total":          inv.Total,
	})
	return inv, nil
}

// PaymentRequest is the input to RecordPayment.
type PaymentRequest struct {
	Amount    float64       `json:"amount"`
	Method    PaymentMethod `json:"method"`
	Reference *string       `json:"reference,omitempty"`
	Notes     *string       `json:"notes,omitempty"`
}

// RecordPayment appends a payment to the invoice's history and recomputes
// the ledger state. The balance check happens under the invoice lock, so
// concurrent payments cannot jointly overpay.
func (s *Service) RecordPayment(ctx context.Context, invoiceID uuid.UUID, req PaymentRequest) (*Invoice, error) {
	if req.Amount <= 0 {
		return nil, apperr.New(apperr.Validation, "amount must be positive")
	}
	if !req.Method.Valid() {
		return nil, apperr.New(apperr.Validation, "invalid payment method %q", req.Method)
	}

	key := invoiceID.String()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Cancelled {
		return nil, apperr.New(apperr.InvalidTransition, "invoice %s is cancelled", inv.InvoiceNumber)
	}
	if inv.PaidAmount+req.Amount > inv.Total+s.overpayTolerance+moneyEpsilon {
		return nil, apperr.New(apperr.ExceedsBalance,
			"payment of %.2f exceeds remaining balance of %.2f", req.Amount, inv.Balance())
	}

	now := s.clock.Now()
	p := &Payment{
		InvoiceID: inv.ID,
		Amount:    req.Amount,
		Method:    req.Method,
		Reference: req.Reference,
		Notes:     req.Notes,
		PaidAt:    now,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, err
	}

	// Recompute from the rows rather than incrementing, so the stored
	// amount always equals the sum of the history.
	history, err := s.payments.ListByInvoice(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	paid := 0.0
	for _, h := range history {
		paid += h.Amount
	}
	inv.PaidAmount = paid
	inv.Status = DeriveStatus(inv.PaidAmount, inv.Total, inv.DueDate, inv.Cancelled, now)
	if inv.Status == StatusPaid && inv.PaidDate == nil {
		inv.PaidDate = &now
	}
	if err := s.invoices.SaveLedgerState(ctx, inv); err != nil {
		return nil, err
	}

	inv.Payments = history
	s.emit(ctx, events.PaymentRecorded, inv.ID.String(), map[string]interface{}{
		"invoice_id":     inv.ID.String(),
		"invoice_number": inv.InvoiceNumber,
		"patient_id":     inv.PatientID.String(),
		"amount":         req.Amount,
		"paid_amount":    inv.PaidAmount,
		"status":         string(inv.Status),
	})
	return inv, nil
}

// CancelInvoice marks an untouched invoice as cancelled. Once any payment
// has landed the invoice can no longer be cancelled.
func (s *Service) CancelInvoice(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error) {
	key := invoiceID.String()
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Cancelled {
		return nil, apperr.New(apperr.InvalidTransition, "invoice %s is already cancelled", inv.InvoiceNumber)
	}
	if inv.PaidAmount > moneyEpsilon {
		return nil, apperr.New(apperr.InvalidTransition,
			"invoice %s has payments recorded and cannot be cancelled", inv.InvoiceNumber)
	}

	inv.Cancelled = true
	if err := s.invoices.SaveLedgerState(ctx, inv); err != nil {
		return nil, err
	}

	inv.Status = StatusCancelled
	s.emit(ctx, events.InvoiceCancelled, inv.ID.String(), map[string]interface{}{
		"invoice_id":     inv.ID.String(),
		"invoice_number": inv.InvoiceNumber,
		"patient_id":     inv.PatientID.String(),
	})
	return inv, nil
}

// Get returns the invoice with items, payment history and derived status.
func (s *Service) Get(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	inv.Payments = payments
	inv.Status = DeriveStatus(inv.PaidAmount, inv.Total, inv.DueDate, inv.Cancelled, s.clock.Now())
	return inv, nil
}

// List returns invoices with their derived status. Items and payments are
// not loaded in listings.
func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]*Invoice, int, error) {
	items, total, err := s.invoices.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	now := s.clock.Now()
	for _, inv := range items {
		inv.Status = DeriveStatus(inv.PaidAmount, inv.Total, inv.DueDate, inv.Cancelled, now)
	}
	return items, total, nil
}

func (s *Service) emit(ctx context.Context, eventType, aggregateID string, payload map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	body, _ := json.Marshal(payload)
	s.publisher.Publish(events.Event{
		Type:        eventType,
		TenantID:    db.TenantFromContext(ctx),
		AggregateID: aggregateID,
		Payload:     body,
	})
}
