package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Métodos de pago. PaymentMethodCredit marca la aplicación de saldo a favor ya recibido.
const (
	PaymentMethodCash     = "cash"
	PaymentMethodTransfer = "transfer"
	PaymentMethodCard     = "card"
	PaymentMethodCheck    = "check"
	PaymentMethodCredit   = "credit"
)

// ValidPaymentMethod métodos aceptados para pagos en efectivo (no incluye credit).
func ValidPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodCash, PaymentMethodTransfer, PaymentMethodCard, PaymentMethodCheck:
		return true
	}
	return false
}

// PaymentAllocation porción de un pago aplicada a una factura, con el estado resultante.
type PaymentAllocation struct {
	InvoiceID       string          `json:"invoice_id"`
	Amount          decimal.Decimal `json:"amount"`
	AmountPaidAfter decimal.Decimal `json:"amount_paid_after"`
	StatusAfter     string          `json:"status_after"`
}

// Payment pago inmutable. InvoiceID vacío indica pago a nivel de cliente.
type Payment struct {
	ID             string
	IdempotencyKey string
	CustomerID     string
	InvoiceID      string
	Amount         decimal.Decimal
	Method         string
	Allocations    []PaymentAllocation
	Unapplied      decimal.Decimal // remanente sin aplicar (saldo a favor)
	CreatedBy      string
	CreatedAt      time.Time
}

// IsCustomerLevel true para pagos registrados contra el cliente y no contra una factura.
func (p *Payment) IsCustomerLevel() bool {
	return p.InvoiceID == ""
}

// IsCreditApplication true si el pago consume saldo a favor previo.
func (p *Payment) IsCreditApplication() bool {
	return p.Method == PaymentMethodCredit
}

// Allocated suma de lo aplicado a facturas.
func (p *Payment) Allocated() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}
