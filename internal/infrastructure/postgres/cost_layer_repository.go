package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
	"github.com/jhoicas/ledger-api/internal/domain/repository"
)

var _ repository.CostLayerRepository = (*CostLayerRepo)(nil)

// CostLayerRepo capas FIFO sobre PostgreSQL.
type CostLayerRepo struct {
	q Querier
}

// NewCostLayerRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCostLayerRepository(q Querier) *CostLayerRepo {
	return &CostLayerRepo{q: q}
}

// ListByItem capas del artículo por seq, incluidas las agotadas.
func (r *CostLayerRepo) ListByItem(ctx context.Context, itemID string) ([]*entity.CostLayer, error) {
	query := `
		SELECT id, item_id, seq, unit_cost, qty_received_total, qty_sold, created_at, updated_at
		FROM cost_layers WHERE item_id = $1 ORDER BY seq`
	rows, err := r.q.Query(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("list cost layers: %w", err)
	}
	defer rows.Close()
	var list []*entity.CostLayer
	for rows.Next() {
		var l entity.CostLayer
		if err := rows.Scan(&l.ID, &l.ItemID, &l.Seq, &l.UnitCost, &l.QtyReceivedTotal, &l.QtySold, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cost layer: %w", err)
		}
		list = append(list, &l)
	}
	return list, rows.Err()
}

// Create inserta una capa nueva.
func (r *CostLayerRepo) Create(ctx context.Context, l *entity.CostLayer) error {
	query := `
		INSERT INTO cost_layers (id, item_id, seq, unit_cost, qty_received_total, qty_sold, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.q.Exec(ctx, query, l.ID, l.ItemID, l.Seq, l.UnitCost, l.QtyReceivedTotal, l.QtySold, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert cost layer: %w", err)
	}
	return nil
}

// Update guarda cantidades recibida y vendida. El costo unitario de una capa no cambia.
func (r *CostLayerRepo) Update(ctx context.Context, l *entity.CostLayer) error {
	query := `UPDATE cost_layers SET qty_received_total = $2, qty_sold = $3, updated_at = $4 WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, l.ID, l.QtyReceivedTotal, l.QtySold, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update cost layer: %w", err)
	}
	return rowsAffectedOrNotFound(tag, domain.ErrNotFound)
}
