package repository

import (
	"context"

	"github.com/jhoicas/ledger-api/internal/domain/entity"
)

// CostLayerRepository define el puerto de persistencia para capas FIFO.
type CostLayerRepository interface {
	// ListByItem devuelve las capas ordenadas por Seq, incluidas las agotadas.
	ListByItem(ctx context.Context, itemID string) ([]*entity.CostLayer, error)
	Create(ctx context.Context, layer *entity.CostLayer) error
	Update(ctx context.Context, layer *entity.CostLayer) error
}
