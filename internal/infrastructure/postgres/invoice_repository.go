package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
	"github.com/jhoicas/ledger-api/internal/domain/repository"
)

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

const invoiceColumns = `id, number, customer_id, subtotal, discount, total_amount, amount_paid, status,
	due_date, issued_at, voided_at, void_reason, created_by, created_at, updated_at`

// InvoiceRepo implementación de InvoiceRepository (usable con pool o tx).
// Las líneas viven en invoice_lines y se cargan junto con la cabecera.
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

// Create persiste la cabecera y sus líneas.
func (r *InvoiceRepo) Create(ctx context.Context, inv *entity.Invoice) error {
	query := `INSERT INTO invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.q.Exec(ctx, query,
		inv.ID, inv.Number, inv.CustomerID, inv.Subtotal, inv.Discount, inv.TotalAmount, inv.AmountPaid, inv.Status,
		inv.DueDate, inv.IssuedAt, inv.VoidedAt, inv.VoidReason, inv.CreatedBy, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert invoice: %w", err)
	}
	for i, l := range inv.Lines {
		lineQuery := `
			INSERT INTO invoice_lines (invoice_id, line_no, item_id, quantity, unit_price, line_total, unit_cost_wac, cost_wac, cost_fifo)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
		if _, err := r.q.Exec(ctx, lineQuery,
			inv.ID, i+1, l.ItemID, l.Quantity, l.UnitPrice, l.LineTotal, l.UnitCostWAC, l.CostWAC, l.CostFIFO,
		); err != nil {
			return fmt.Errorf("insert invoice line: %w", err)
		}
	}
	return nil
}

// Update guarda montos, estado y fechas, y los costos fijados en cada línea.
func (r *InvoiceRepo) Update(ctx context.Context, inv *entity.Invoice) error {
	query := `
		UPDATE invoices
		SET amount_paid = $2, status = $3, due_date = $4, issued_at = $5, voided_at = $6,
		    void_reason = $7, updated_at = $8
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query,
		inv.ID, inv.AmountPaid, inv.Status, inv.DueDate, inv.IssuedAt, inv.VoidedAt, inv.VoidReason, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if err := rowsAffectedOrNotFound(tag, domain.ErrNotFound); err != nil {
		return err
	}
	for i, l := range inv.Lines {
		lineQuery := `
			UPDATE invoice_lines SET unit_cost_wac = $3, cost_wac = $4, cost_fifo = $5
			WHERE invoice_id = $1 AND line_no = $2`
		if _, err := r.q.Exec(ctx, lineQuery, inv.ID, i+1, l.UnitCostWAC, l.CostWAC, l.CostFIFO); err != nil {
			return fmt.Errorf("update invoice line: %w", err)
		}
	}
	return nil
}

// GetByID obtiene una factura con sus líneas; nil si no existe.
func (r *InvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
}

// GetForUpdate como GetByID, con bloqueo de la fila de cabecera.
func (r *InvoiceRepo) GetForUpdate(ctx context.Context, id string) (*entity.Invoice, error) {
	return r.get(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
}

func (r *InvoiceRepo) get(ctx context.Context, query, id string) (*entity.Invoice, error) {
	inv, err := scanInvoice(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if err := r.loadLines(ctx, []*entity.Invoice{inv}); err != nil {
		return nil, err
	}
	return inv, nil
}

// ListByCustomer facturas del cliente por fecha de creación.
func (r *InvoiceRepo) ListByCustomer(ctx context.Context, customerID string) ([]*entity.Invoice, error) {
	return r.list(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE customer_id = $1 ORDER BY created_at, id`, customerID)
}

// ListByStatus facturas con el estado guardado indicado.
func (r *InvoiceRepo) ListByStatus(ctx context.Context, status string) ([]*entity.Invoice, error) {
	return r.list(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE status = $1 ORDER BY due_date NULLS LAST, id`, status)
}

func (r *InvoiceRepo) list(ctx context.Context, query, arg string) ([]*entity.Invoice, error) {
	rows, err := r.q.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	var list []*entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		list = append(list, inv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	if err := r.loadLines(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// loadLines carga las líneas de todas las facturas en una sola consulta.
func (r *InvoiceRepo) loadLines(ctx context.Context, invoices []*entity.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}
	byID := make(map[string]*entity.Invoice, len(invoices))
	ids := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		byID[inv.ID] = inv
		ids = append(ids, inv.ID)
	}
	query := `
		SELECT invoice_id, item_id, quantity, unit_price, line_total, unit_cost_wac, cost_wac, cost_fifo
		FROM invoice_lines WHERE invoice_id = ANY($1) ORDER BY invoice_id, line_no`
	rows, err := r.q.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("list invoice lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			invoiceID string
			l         entity.InvoiceLine
		)
		if err := rows.Scan(&invoiceID, &l.ItemID, &l.Quantity, &l.UnitPrice, &l.LineTotal, &l.UnitCostWAC, &l.CostWAC, &l.CostFIFO); err != nil {
			return fmt.Errorf("scan invoice line: %w", err)
		}
		if inv := byID[invoiceID]; inv != nil {
			inv.Lines = append(inv.Lines, l)
		}
	}
	return rows.Err()
}

func scanInvoice(row pgx.Row) (*entity.Invoice, error) {
	var inv entity.Invoice
	err := row.Scan(
		&inv.ID, &inv.Number, &inv.CustomerID, &inv.Subtotal, &inv.Discount, &inv.TotalAmount, &inv.AmountPaid, &inv.Status,
		&inv.DueDate, &inv.IssuedAt, &inv.VoidedAt, &inv.VoidReason, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
