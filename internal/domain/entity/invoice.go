package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de la factura.
const (
	InvoiceStatusDraft   = "DRAFT"
	InvoiceStatusIssued  = "ISSUED"
	InvoiceStatusPaid    = "PAID"
	InvoiceStatusOverdue = "OVERDUE"
	InvoiceStatusVoided  = "VOIDED" // terminal
)

// Invoice cabecera de factura con sus líneas.
type Invoice struct {
	ID          string
	Number      string
	CustomerID  string
	Lines       []InvoiceLine
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	TotalAmount decimal.Decimal
	AmountPaid  decimal.Decimal
	Status      string
	DueDate     *time.Time
	IssuedAt    *time.Time
	VoidedAt    *time.Time
	VoidReason  string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Remaining total_amount - amount_paid.
func (inv *Invoice) Remaining() decimal.Decimal {
	return inv.TotalAmount.Sub(inv.AmountPaid)
}

// IsReceivable true si la factura cuenta para el saldo del cliente (emitida y no anulada).
func (inv *Invoice) IsReceivable() bool {
	switch inv.Status {
	case InvoiceStatusIssued, InvoiceStatusOverdue, InvoiceStatusPaid:
		return true
	}
	return false
}

// CostOfGoods COGS total de la factura al costo promedio y por capas FIFO.
func (inv *Invoice) CostOfGoods() (wac, fifo decimal.Decimal) {
	for _, l := range inv.Lines {
		wac = wac.Add(l.CostWAC)
		fifo = fifo.Add(l.CostFIFO)
	}
	return wac, fifo
}

// InvoiceLine línea de factura. Los campos de costo se fijan al emitir.
type InvoiceLine struct {
	ItemID      string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
	UnitCostWAC decimal.Decimal
	CostWAC     decimal.Decimal
	CostFIFO    decimal.Decimal
}
