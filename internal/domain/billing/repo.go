package billing

import (
	"context"

	"github.com/google/uuid"
)

// Filter narrows invoice listings.
type Filter struct {
	PatientID *uuid.UUID
}

// InvoiceRepository persists invoices and their line items.
type InvoiceRepository interface {
	// NextInvoiceNumber returns the next value of the tenant's invoice
	// sequence. Monotonic; numbers burned by a failed create are not
	// reused.
	NextInvoiceNumber(ctx context.Context) (int64, error)
	// Create inserts the invoice and its items.
	Create(ctx context.Context, inv *Invoice) error
	// GetByID returns the invoice with its items. Payments are loaded
	// separately.
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Invoice, int, error)
	// SaveLedgerState writes the fields payments move: paid_amount,
	// paid_date and the cancelled flag.
	SaveLedgerState(ctx context.Context, inv *Invoice) error
}

// PaymentRepository persists the append-only payment history. There is
// deliberately no update or delete.
type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error)
}
