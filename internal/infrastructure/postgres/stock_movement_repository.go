package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
	"github.com/jhoicas/ledger-api/internal/domain/repository"
)

var _ repository.StockMovementRepository = (*StockMovementRepo)(nil)

const movementColumns = `seq, id, item_id, quantity_change, reason, unit_cost, running_qty, wac_after,
	reference_type, reference_id, depletions, notes, created_by, created_at`

// StockMovementRepo libro de movimientos sobre PostgreSQL. Solo inserta: no hay UPDATE ni DELETE.
type StockMovementRepo struct {
	q Querier
}

// NewStockMovementRepository construye el adaptador. Pasar pool o tx (Querier).
func NewStockMovementRepository(q Querier) *StockMovementRepo {
	return &StockMovementRepo{q: q}
}

// Create inserta el movimiento; seq lo asigna la secuencia de la tabla.
func (r *StockMovementRepo) Create(ctx context.Context, m *entity.StockMovement) error {
	depletions := m.Depletions
	if depletions == nil {
		depletions = []entity.LayerDepletion{}
	}
	query := `
		INSERT INTO stock_movements (id, item_id, quantity_change, reason, unit_cost, running_qty, wac_after,
		                             reference_type, reference_id, depletions, notes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING seq`
	err := r.q.QueryRow(ctx, query,
		m.ID, m.ItemID, m.QuantityChange, m.Reason, m.UnitCost, m.RunningQty, m.WACAfter,
		m.ReferenceType, m.ReferenceID, depletions, m.Notes, m.CreatedBy, m.CreatedAt,
	).Scan(&m.Seq)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert stock movement: %w", err)
	}
	return nil
}

// ListByItem movimientos del artículo en orden de seq; from/to inclusivos y opcionales.
func (r *StockMovementRepo) ListByItem(ctx context.Context, itemID string, from, to *time.Time) ([]*entity.StockMovement, error) {
	query := `SELECT ` + movementColumns + `
		FROM stock_movements
		WHERE item_id = $1
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at <= $3)
		ORDER BY seq`
	return r.list(ctx, query, itemID, from, to)
}

// ListByReference movimientos originados por un documento, en orden de seq.
func (r *StockMovementRepo) ListByReference(ctx context.Context, referenceType, referenceID string) ([]*entity.StockMovement, error) {
	query := `SELECT ` + movementColumns + `
		FROM stock_movements WHERE reference_type = $1 AND reference_id = $2 ORDER BY seq`
	return r.list(ctx, query, referenceType, referenceID)
}

func (r *StockMovementRepo) list(ctx context.Context, query string, args ...any) ([]*entity.StockMovement, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stock movements: %w", err)
	}
	defer rows.Close()
	var list []*entity.StockMovement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock movement: %w", err)
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func scanMovement(row pgx.Row) (*entity.StockMovement, error) {
	var m entity.StockMovement
	err := row.Scan(
		&m.Seq, &m.ID, &m.ItemID, &m.QuantityChange, &m.Reason, &m.UnitCost, &m.RunningQty, &m.WACAfter,
		&m.ReferenceType, &m.ReferenceID, &m.Depletions, &m.Notes, &m.CreatedBy, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(m.Depletions) == 0 {
		m.Depletions = nil
	}
	return &m, nil
}
