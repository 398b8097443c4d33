package repository

import (
	"context"
	"time"

	"github.com/jhoicas/ledger-api/internal/domain/entity"
)

// StockMovementRepository define el puerto del libro de movimientos (solo inserción).
type StockMovementRepository interface {
	// Create asigna Seq (creciente por artículo) y persiste el movimiento.
	Create(ctx context.Context, movement *entity.StockMovement) error
	// ListByItem devuelve los movimientos ordenados por Seq; from/to filtran por created_at.
	ListByItem(ctx context.Context, itemID string, from, to *time.Time) ([]*entity.StockMovement, error)
	ListByReference(ctx context.Context, referenceType, referenceID string) ([]*entity.StockMovement, error)
}
