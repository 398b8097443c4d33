package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
	"github.com/jhoicas/ledger-api/internal/domain/repository"
)

var _ repository.PaymentRepository = (*PaymentRepo)(nil)

const paymentColumns = `id, idempotency_key, customer_id, invoice_id, amount, method, allocations, unapplied, created_by, created_at`

// PaymentRepo pagos sobre PostgreSQL. Las asignaciones se guardan como JSONB en el pago.
type PaymentRepo struct {
	q Querier
}

// NewPaymentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewPaymentRepository(q Querier) *PaymentRepo {
	return &PaymentRepo{q: q}
}

// Create inserta el pago. La clave de idempotencia es única: repetida devuelve domain.ErrDuplicate.
func (r *PaymentRepo) Create(ctx context.Context, p *entity.Payment) error {
	allocations := p.Allocations
	if allocations == nil {
		allocations = []entity.PaymentAllocation{}
	}
	query := `INSERT INTO payments (` + paymentColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.q.Exec(ctx, query,
		p.ID, p.IdempotencyKey, p.CustomerID, p.InvoiceID, p.Amount, p.Method,
		allocations, p.Unapplied, p.CreatedBy, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByIdempotencyKey pago registrado con la clave; nil si no existe.
func (r *PaymentRepo) GetByIdempotencyKey(ctx context.Context, key string) (*entity.Payment, error) {
	p, err := scanPayment(r.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = $1`, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// ListByCustomer pagos del cliente en orden de registro.
func (r *PaymentRepo) ListByCustomer(ctx context.Context, customerID string) ([]*entity.Payment, error) {
	return r.list(ctx, `SELECT `+paymentColumns+` FROM payments WHERE customer_id = $1 ORDER BY created_at, id`, customerID)
}

// ListByInvoice pagos directos a la factura y pagos de cliente con alguna asignación a ella.
func (r *PaymentRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.Payment, error) {
	touches, err := json.Marshal([]map[string]string{{"invoice_id": invoiceID}})
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE invoice_id = $1 OR allocations @> $2::jsonb
		ORDER BY created_at, id`
	return r.list(ctx, query, invoiceID, string(touches))
}

func (r *PaymentRepo) list(ctx context.Context, query string, args ...any) ([]*entity.Payment, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()
	var list []*entity.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func scanPayment(row pgx.Row) (*entity.Payment, error) {
	var p entity.Payment
	err := row.Scan(&p.ID, &p.IdempotencyKey, &p.CustomerID, &p.InvoiceID, &p.Amount, &p.Method,
		&p.Allocations, &p.Unapplied, &p.CreatedBy, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
