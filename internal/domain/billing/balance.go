package billing

import (
	"github.com/shopspring/decimal"

	"github.com/jhoicas/ledger-api/internal/domain/entity"
)

// ProjectBalance calcula el saldo del cliente desde facturas y pagos.
// Las facturas en borrador o anuladas no cuentan. El saldo a favor es lo no aplicado
// de los pagos del cliente menos lo ya consumido por aplicaciones de crédito.
func ProjectBalance(customerID string, invoices []*entity.Invoice, payments []*entity.Payment) entity.CustomerBalance {
	b := entity.CustomerBalance{
		CustomerID:            customerID,
		Outstanding:           decimal.Zero,
		CreditAvailable:       decimal.Zero,
		TotalInvoiced:         decimal.Zero,
		TotalPaidOnInvoices:   decimal.Zero,
		TotalManualPayments:   decimal.Zero,
		InvoiceRemainingTotal: decimal.Zero,
		UnappliedCredit:       decimal.Zero,
	}
	for _, inv := range invoices {
		if !inv.IsReceivable() {
			continue
		}
		b.InvoiceCount++
		b.TotalInvoiced = b.TotalInvoiced.Add(inv.TotalAmount)
		b.TotalPaidOnInvoices = b.TotalPaidOnInvoices.Add(inv.AmountPaid)
		remaining := inv.Remaining()
		b.InvoiceRemainingTotal = b.InvoiceRemainingTotal.Add(remaining)
		if remaining.IsPositive() {
			b.OpenInvoiceCount++
		}
	}
	for _, p := range payments {
		switch {
		case p.IsCreditApplication():
			b.UnappliedCredit = b.UnappliedCredit.Sub(p.Amount)
		case p.IsCustomerLevel():
			b.TotalManualPayments = b.TotalManualPayments.Add(p.Amount)
			b.UnappliedCredit = b.UnappliedCredit.Add(p.Unapplied)
		}
	}
	net := b.InvoiceRemainingTotal.Sub(b.UnappliedCredit)
	if net.IsPositive() {
		b.Outstanding = net
	} else {
		b.CreditAvailable = net.Neg()
	}
	return b
}
