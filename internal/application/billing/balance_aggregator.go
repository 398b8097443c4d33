package billing

import (
	"context"

	"github.com/jhoicas/ledger-api/internal/application/dto"
	"github.com/jhoicas/ledger-api/internal/application/ports"
	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/internal/domain/billing"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
	"github.com/jhoicas/ledger-api/internal/domain/repository"
)

// CustomerBalanceAggregator calcula el saldo del cliente desde facturas y pagos.
// No guarda totales: cada lectura recalcula sobre una instantánea consistente.
type CustomerBalanceAggregator struct {
	txRunner ports.TxRunner
}

// NewCustomerBalanceAggregator construye el caso de uso.
func NewCustomerBalanceAggregator(txRunner ports.TxRunner) *CustomerBalanceAggregator {
	return &CustomerBalanceAggregator{txRunner: txRunner}
}

// Summary saldo pendiente, saldo a favor y totales del cliente.
func (a *CustomerBalanceAggregator) Summary(ctx context.Context, customerID string) (*dto.CustomerSummaryResponse, error) {
	var (
		invoices []*entity.Invoice
		payments []*entity.Payment
	)
	err := a.txRunner.View(ctx, func(repos repository.Set) error {
		customer, err := repos.Customers.GetByID(ctx, customerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return domain.ErrNotFound
		}
		if invoices, err = repos.Invoices.ListByCustomer(ctx, customerID); err != nil {
			return err
		}
		payments, err = repos.Payments.ListByCustomer(ctx, customerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	res := dto.ToCustomerSummaryResponse(billing.ProjectBalance(customerID, invoices, payments))
	return &res, nil
}
