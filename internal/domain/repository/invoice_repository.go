package repository

import (
	"context"

	"github.com/jhoicas/ledger-api/internal/domain/entity"
)

// InvoiceRepository define el puerto de persistencia para Invoice y sus líneas.
type InvoiceRepository interface {
	// Create persiste la cabecera y las líneas.
	Create(ctx context.Context, invoice *entity.Invoice) error
	// Update actualiza cabecera (montos, estado, fechas) y los costos fijados en las líneas.
	Update(ctx context.Context, invoice *entity.Invoice) error
	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	GetForUpdate(ctx context.Context, id string) (*entity.Invoice, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*entity.Invoice, error)
	ListByStatus(ctx context.Context, status string) ([]*entity.Invoice, error)
}
