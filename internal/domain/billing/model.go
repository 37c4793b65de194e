package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status of an invoice. Never stored; always derived from the payment
// facts by DeriveStatus.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPartial   Status = "partial"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// moneyEpsilon absorbs float rounding when comparing amounts.
const moneyEpsilon = 1e-9

// DeriveStatus computes the invoice status from the primitive facts.
// Cancelled overrides everything; otherwise fully paid wins, then partial,
// then overdue, then pending. A partially paid invoice stays partial even
// past its due date; overdue applies only while nothing has been paid.
func DeriveStatus(paid, total float64, due time.Time, cancelled bool, now time.Time) Status {
	switch {
	case cancelled:
		return StatusCancelled
	case paid >= total-moneyEpsilon:
		return StatusPaid
	case paid > moneyEpsilon:
		return StatusPartial
	case now.After(due):
		return StatusOverdue
	default:
		return StatusPending
	}
}

// PaymentMethod is how a payment was made.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodCard         PaymentMethod = "card"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodInsurance    PaymentMethod = "insurance"
)

var validMethods = map[PaymentMethod]bool{
	MethodCash: true, MethodCard: true, MethodBankTransfer: true, MethodInsurance: true,
}

func (m PaymentMethod) Valid() bool { return validMethods[m] }

// InvoiceItem is one billed line. LineTotal is fixed at creation.
type InvoiceItem struct {
	ID          uuid.UUID `db:"id" json:"id"`
	InvoiceID   uuid.UUID `db:"invoice_id" json:"invoice_id"`
	Description string    `db:"description" json:"description"`
	Quantity    int       `db:"quantity" json:"quantity"`
	UnitPrice   float64   `db:"unit_price" json:"unit_price"`
	LineTotal   float64   `db:"line_total" json:"line_total"`
}

// Invoice maps to the invoice table plus its owned items and payments.
// PaidAmount always equals the sum of the payment rows; Status is derived
// on every read.
type Invoice struct {
	ID            uuid.UUID     `db:"id" json:"id"`
	InvoiceNumber string        `db:"invoice_number" json:"invoice_number"`
	PatientID     uuid.UUID     `db:"patient_id" json:"patient_id"`
	Items         []InvoiceItem `db:"-" json:"items"`
	Subtotal      float64       `db:"subtotal" json:"subtotal"`
	Tax           float64       `db:"tax" json:"tax"`
	Discount      float64       `db:"discount" json:"discount"`
	Total         float64       `db:"total" json:"total"`
	PaidAmount    float64       `db:"paid_amount" json:"paid_amount"`
	PaidDate      *time.Time    `db:"paid_date" json:"paid_date,omitempty"`
	DueDate       time.Time     `db:"due_date" json:"due_date"`
	Cancelled     bool          `db:"cancelled" json:"cancelled"`
	Notes         *string       `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`

	Status   Status     `db:"-" json:"status"`
	Payments []*Payment `db:"-" json:"payments,omitempty"`
}

// Balance is the amount still owed, never negative.
func (i *Invoice) Balance() float64 {
	b := i.Total - i.PaidAmount
	if b < 0 {
		return 0
	}
	return b
}

// Payment is one entry in the invoice's append-only payment history.
type Payment struct {
	ID        uuid.UUID     `db:"id" json:"id"`
	InvoiceID uuid.UUID     `db:"invoice_id" json:"invoice_id"`
	Amount    float64       `db:"amount" json:"amount"`
	Method    PaymentMethod `db:"method" json:"method"`
	Reference *string       `db:"reference" json:"reference,omitempty"`
	Notes     *string       `db:"notes" json:"notes,omitempty"`
	PaidAt    time.Time     `db:"paid_at" json:"paid_at"`
}

// FormatInvoiceNumber renders a sequence number as the printable invoice
// number, e.g. INV-000042.
func FormatInvoiceNumber(seq int64) string {
	return fmt.Sprintf("INV-%06d", seq)
}
