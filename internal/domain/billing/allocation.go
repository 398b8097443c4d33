package billing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/ledger-api/internal/domain/entity"
)

// Allocation porción de un pago asignada a una factura.
type Allocation struct {
	Invoice *entity.Invoice
	Amount  decimal.Decimal
}

// OpenInvoices filtra las facturas con saldo pendiente (emitidas, no anuladas) y las
// ordena por vencimiento más antiguo primero; empates por emisión, número e ID.
func OpenInvoices(invoices []*entity.Invoice) []*entity.Invoice {
	open := make([]*entity.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if CheckPayment(inv) != nil || !inv.Remaining().IsPositive() {
			continue
		}
		open = append(open, inv)
	}
	sort.SliceStable(open, func(i, j int) bool {
		a, b := open[i], open[j]
		if c := compareTime(a.DueDate, b.DueDate); c != 0 {
			return c < 0
		}
		if c := compareTime(a.IssuedAt, b.IssuedAt); c != 0 {
			return c < 0
		}
		if a.Number != b.Number {
			return a.Number < b.Number
		}
		return a.ID < b.ID
	})
	return open
}

// Allocate reparte amount sobre las facturas abiertas (ya ordenadas) hasta agotarlo.
// Devuelve las asignaciones y el remanente sin aplicar.
func Allocate(open []*entity.Invoice, amount decimal.Decimal) ([]Allocation, decimal.Decimal) {
	remaining := amount
	var out []Allocation
	for _, inv := range open {
		if !remaining.IsPositive() {
			break
		}
		due := inv.Remaining()
		if !due.IsPositive() {
			continue
		}
		take := decimal.Min(due, remaining)
		out = append(out, Allocation{Invoice: inv, Amount: take})
		remaining = remaining.Sub(take)
	}
	return out, remaining
}

// compareTime ordena nil al final.
func compareTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case b.Before(*a):
		return 1
	}
	return 0
}
