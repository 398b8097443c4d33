package entity

import "github.com/shopspring/decimal"

// CustomerBalance proyección derivada del saldo de un cliente; no se persiste.
type CustomerBalance struct {
	CustomerID            string
	Outstanding           decimal.Decimal
	CreditAvailable       decimal.Decimal
	TotalInvoiced         decimal.Decimal
	TotalPaidOnInvoices   decimal.Decimal
	TotalManualPayments   decimal.Decimal
	InvoiceRemainingTotal decimal.Decimal
	UnappliedCredit       decimal.Decimal
	InvoiceCount          int
	OpenInvoiceCount      int
}
