package repository

import (
	"context"

	"github.com/jhoicas/ledger-api/internal/domain/entity"
)

// PaymentRepository define el puerto de persistencia para pagos (inmutables).
type PaymentRepository interface {
	// Create falla con domain.ErrDuplicate si la clave de idempotencia ya existe.
	Create(ctx context.Context, payment *entity.Payment) error
	GetByIdempotencyKey(ctx context.Context, key string) (*entity.Payment, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*entity.Payment, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.Payment, error)
}
