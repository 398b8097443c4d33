package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateCustomerRequest body para POST /api/customers.
type CreateCustomerRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	TaxID string `json:"tax_id" validate:"max=50"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

// CustomerResponse cliente en respuestas.
type CustomerResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TaxID     string    `json:"tax_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateInvoiceRequest body para POST /api/invoices. Crea la factura en borrador.
type CreateInvoiceRequest struct {
	CustomerID string               `json:"customer_id" validate:"required"`
	Number     string               `json:"number,omitempty" validate:"max=50"` // opcional; si va vacío se genera
	Lines      []InvoiceLineRequest `json:"lines" validate:"required,min=1,dive"`
	Discount   decimal.Decimal      `json:"discount"`
	DueDate    *time.Time           `json:"due_date,omitempty"`
}

// InvoiceLineRequest línea de factura. UnitPrice cero toma el precio de venta del artículo.
type InvoiceLineRequest struct {
	ItemID    string          `json:"item_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// InvoiceLineResponse línea con costos fijados al emitir.
type InvoiceLineResponse struct {
	ItemID      string          `json:"item_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
	UnitCostWAC decimal.Decimal `json:"unit_cost_wac"`
	CostWAC     decimal.Decimal `json:"cost_wac"`
	CostFIFO    decimal.Decimal `json:"cost_fifo"`
}

// InvoiceWarning advertencia no bloqueante (margen negativo, bajo costo de referencia, descuento).
type InvoiceWarning struct {
	Code    string `json:"code"` // NEGATIVE_MARGIN|BELOW_COST_PRICE|DISCOUNT_APPLIED
	ItemID  string `json:"item_id,omitempty"`
	Message string `json:"message"`
}

// InvoiceResponse factura para GET /api/invoices/:id. Status es el estado efectivo
// (una emitida vencida se informa OVERDUE aunque el barrido no la haya marcado).
type InvoiceResponse struct {
	ID          string                `json:"id"`
	Number      string                `json:"number"`
	CustomerID  string                `json:"customer_id"`
	Status      string                `json:"status"`
	Subtotal    decimal.Decimal       `json:"subtotal"`
	Discount    decimal.Decimal       `json:"discount"`
	TotalAmount decimal.Decimal       `json:"total_amount"`
	AmountPaid  decimal.Decimal       `json:"amount_paid"`
	Remaining   decimal.Decimal       `json:"remaining"`
	CostWAC     decimal.Decimal       `json:"cost_wac"`
	CostFIFO    decimal.Decimal       `json:"cost_fifo"`
	DueDate     *time.Time            `json:"due_date,omitempty"`
	IssuedAt    *time.Time            `json:"issued_at,omitempty"`
	VoidedAt    *time.Time            `json:"voided_at,omitempty"`
	VoidReason  string                `json:"void_reason,omitempty"`
	Lines       []InvoiceLineResponse `json:"lines"`
	Warnings    []InvoiceWarning      `json:"warnings,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

// VoidInvoiceRequest body para POST /api/invoices/:id/void.
type VoidInvoiceRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ReturnInvoiceRequest body para POST /api/invoices/:id/return (devolución parcial).
type ReturnInvoiceRequest struct {
	Lines  []ReturnLineRequest `json:"lines" validate:"required,min=1,dive"`
	Reason string              `json:"reason" validate:"max=500"`
}

// ReturnLineRequest cantidad devuelta de un artículo de la factura.
type ReturnLineRequest struct {
	ItemID   string          `json:"item_id" validate:"required"`
	Quantity decimal.Decimal `json:"quantity"`
}

// ReturnLineResult resultado por artículo. Returnable es lo que aún se puede devolver.
type ReturnLineResult struct {
	ItemID       string          `json:"item_id"`
	Returned     decimal.Decimal `json:"returned"`
	ReturnedCost decimal.Decimal `json:"returned_cost"`
	Returnable   decimal.Decimal `json:"returnable"`
}

// InvoiceReturnResponse respuesta de la devolución: los movimientos de entrada creados.
type InvoiceReturnResponse struct {
	InvoiceID string             `json:"invoice_id"`
	Number    string             `json:"number"`
	Lines     []ReturnLineResult `json:"lines"`
	Movements []MovementResponse `json:"movements"`
}

// PaymentRequest body para POST /api/invoices/:id/pay y POST /api/customers/:id/payment.
// La clave de idempotencia puede venir en el header Idempotency-Key.
type PaymentRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method,omitempty" validate:"omitempty,oneof=cash transfer card check"`
	IdempotencyKey string          `json:"idempotency_key,omitempty" validate:"max=128"`
}

// ApplyCreditRequest body para POST /api/customers/:id/apply-credit.
type ApplyCreditRequest struct {
	IdempotencyKey string `json:"idempotency_key,omitempty" validate:"max=128"`
}

// AllocationResponse porción de un pago aplicada a una factura.
type AllocationResponse struct {
	InvoiceID       string          `json:"invoice_id"`
	Amount          decimal.Decimal `json:"amount"`
	AmountPaidAfter decimal.Decimal `json:"amount_paid_after"`
	StatusAfter     string          `json:"status_after"`
}

// PaymentResponse resultado de aplicar un pago. Replayed es true cuando la clave de
// idempotencia ya se había procesado y se devuelve el resultado original.
type PaymentResponse struct {
	PaymentID      string               `json:"payment_id"`
	IdempotencyKey string               `json:"idempotency_key"`
	CustomerID     string               `json:"customer_id"`
	InvoiceID      string               `json:"invoice_id,omitempty"`
	Amount         decimal.Decimal      `json:"amount"`
	Method         string               `json:"method"`
	Allocations    []AllocationResponse `json:"allocations"`
	Allocated      decimal.Decimal      `json:"allocated"`
	Unapplied      decimal.Decimal      `json:"unapplied"`
	Replayed       bool                 `json:"replayed"`
	CreatedAt      time.Time            `json:"created_at"`
}

// InvoicePaymentsResponse respuesta de GET /api/invoices/:id/payments. Applied suma
// solo las asignaciones a esta factura y coincide con amount_paid.
type InvoicePaymentsResponse struct {
	InvoiceID  string            `json:"invoice_id"`
	AmountPaid decimal.Decimal   `json:"amount_paid"`
	Applied    decimal.Decimal   `json:"applied"`
	Payments   []PaymentResponse `json:"payments"`
}

// CustomerSummaryResponse respuesta de GET /api/customers/:id/summary.
type CustomerSummaryResponse struct {
	CustomerID            string          `json:"customer_id"`
	Outstanding           decimal.Decimal `json:"outstanding"`
	CreditAvailable       decimal.Decimal `json:"credit_available"`
	TotalInvoiced         decimal.Decimal `json:"total_invoiced"`
	TotalPaidOnInvoices   decimal.Decimal `json:"total_paid_on_invoices"`
	TotalManualPayments   decimal.Decimal `json:"total_manual_payments"`
	InvoiceRemainingTotal decimal.Decimal `json:"invoice_remaining_total"`
	UnappliedCredit       decimal.Decimal `json:"unapplied_credit"`
	InvoiceCount          int             `json:"invoice_count"`
	OpenInvoiceCount      int             `json:"open_invoice_count"`
}

// OverdueSweepResult resultado del barrido de vencimiento.
type OverdueSweepResult struct {
	Marked []string  `json:"marked"`
	At     time.Time `json:"at"`
}
