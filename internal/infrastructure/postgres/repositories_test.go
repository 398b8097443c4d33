package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
	"github.com/jhoicas/ledger-api/internal/domain/repository"
	"github.com/jhoicas/ledger-api/internal/infrastructure/postgres"
	"github.com/jhoicas/ledger-api/pkg/config"
)

// Requiere una base de pruebas: TEST_DATABASE_URL=postgres://... go test ./internal/infrastructure/postgres/
func newRunner(t *testing.T) *postgres.TxRunner {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL no definido")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, config.DBConfig{DatabaseURL: dsn, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))
	require.NoError(t, postgres.Migrate(ctx, pool), "el esquema es idempotente")
	return postgres.NewTxRunner(pool)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRepositories_ArticuloMovimientosYCapas(t *testing.T) {
	runner := newRunner(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	item := &entity.Item{
		ID: uuid.New().String(), SKU: "PG-" + uuid.New().String()[:8], Name: "Prueba",
		CurrentQty: d("10"), CurrentWAC: d("12.5"), SellingPrice: d("20"), CostPrice: d("11"),
		CreatedAt: now, UpdatedAt: now,
	}
	layer := &entity.CostLayer{
		ID: uuid.New().String(), ItemID: item.ID, Seq: 1, UnitCost: d("12.5"),
		QtyReceivedTotal: d("10"), QtySold: decimal.Zero, CreatedAt: now, UpdatedAt: now,
	}
	in := &entity.StockMovement{
		ID: uuid.New().String(), ItemID: item.ID, QuantityChange: d("10"), Reason: entity.ReasonPurchase,
		UnitCost: d("12.5"), RunningQty: d("10"), WACAfter: d("12.5"), ReferenceType: entity.ReferenceManual, CreatedAt: now,
	}
	out := &entity.StockMovement{
		ID: uuid.New().String(), ItemID: item.ID, QuantityChange: d("-4"), Reason: entity.ReasonSale,
		UnitCost: d("12.5"), RunningQty: d("6"), WACAfter: d("12.5"), ReferenceType: entity.ReferenceInvoice, ReferenceID: "inv-1",
		Depletions: []entity.LayerDepletion{{LayerID: layer.ID, Qty: d("4"), UnitCost: d("12.5")}},
		CreatedAt: now.Add(time.Second),
	}

	err := runner.Run(ctx, func(repos repository.Set) error {
		if err := repos.Items.Create(ctx, item); err != nil {
			return err
		}
		if err := repos.Layers.Create(ctx, layer); err != nil {
			return err
		}
		if err := repos.Movements.Create(ctx, in); err != nil {
			return err
		}
		return repos.Movements.Create(ctx, out)
	})
	require.NoError(t, err)
	assert.Greater(t, out.Seq, in.Seq)

	err = runner.View(ctx, func(repos repository.Set) error {
		got, err := repos.Items.GetBySKU(ctx, item.SKU)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.CurrentWAC.Equal(d("12.5")))

		movs, err := repos.Movements.ListByItem(ctx, item.ID, nil, nil)
		require.NoError(t, err)
		require.Len(t, movs, 2)
		assert.Nil(t, movs[0].Depletions)
		require.Len(t, movs[1].Depletions, 1)
		assert.True(t, movs[1].Depletions[0].Qty.Equal(d("4")))

		from := now.Add(time.Second)
		movs, err = repos.Movements.ListByItem(ctx, item.ID, &from, nil)
		require.NoError(t, err)
		assert.Len(t, movs, 1)

		byRef, err := repos.Movements.ListByReference(ctx, entity.ReferenceInvoice, "inv-1")
		require.NoError(t, err)
		assert.NotEmpty(t, byRef)
		return nil
	})
	require.NoError(t, err)

	err = runner.Run(ctx, func(repos repository.Set) error {
		return repos.Items.Create(ctx, &entity.Item{ID: uuid.New().String(), SKU: item.SKU, Name: "dup", CreatedAt: now, UpdatedAt: now})
	})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestRepositories_FacturaYPagos(t *testing.T) {
	runner := newRunner(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	customer := &entity.Customer{ID: uuid.New().String(), Name: "Cliente PG", CreatedAt: now, UpdatedAt: now}
	item := &entity.Item{ID: uuid.New().String(), SKU: "PG-" + uuid.New().String()[:8], Name: "x", CreatedAt: now, UpdatedAt: now}
	inv := &entity.Invoice{
		ID: uuid.New().String(), Number: "PG-" + uuid.New().String()[:8], CustomerID: customer.ID,
		Subtotal: d("100"), Discount: decimal.Zero, TotalAmount: d("100"), AmountPaid: decimal.Zero,
		Status: entity.InvoiceStatusDraft, CreatedAt: now, UpdatedAt: now,
		Lines: []entity.InvoiceLine{{ItemID: item.ID, Quantity: d("2"), UnitPrice: d("50"), LineTotal: d("100")}},
	}
	key := "pg-" + uuid.New().String()

	err := runner.Run(ctx, func(repos repository.Set) error {
		if err := repos.Customers.Create(ctx, customer); err != nil {
			return err
		}
		if err := repos.Items.Create(ctx, item); err != nil {
			return err
		}
		if err := repos.Invoices.Create(ctx, inv); err != nil {
			return err
		}
		row, err := repos.Invoices.GetForUpdate(ctx, inv.ID)
		if err != nil {
			return err
		}
		issued := now
		row.Status = entity.InvoiceStatusIssued
		row.IssuedAt = &issued
		row.AmountPaid = d("40")
		row.Lines[0].CostWAC = d("30")
		if err := repos.Invoices.Update(ctx, row); err != nil {
			return err
		}
		return repos.Payments.Create(ctx, &entity.Payment{
			ID: uuid.New().String(), IdempotencyKey: key, CustomerID: customer.ID, InvoiceID: inv.ID,
			Amount: d("40"), Method: entity.PaymentMethodCash, Unapplied: decimal.Zero, CreatedAt: now,
			Allocations: []entity.PaymentAllocation{{InvoiceID: inv.ID, Amount: d("40"), AmountPaidAfter: d("40"), StatusAfter: entity.InvoiceStatusIssued}},
		})
	})
	require.NoError(t, err)

	err = runner.View(ctx, func(repos repository.Set) error {
		list, err := repos.Invoices.ListByCustomer(ctx, customer.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, entity.InvoiceStatusIssued, list[0].Status)
		require.Len(t, list[0].Lines, 1)
		assert.True(t, list[0].Lines[0].CostWAC.Equal(d("30")))

		p, err := repos.Payments.GetByIdempotencyKey(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, p)
		require.Len(t, p.Allocations, 1)
		assert.True(t, p.Allocations[0].AmountPaidAfter.Equal(d("40")))
		return nil
	})
	require.NoError(t, err)

	// Pago de cliente repartido: debe aparecer en la factura por su asignación.
	err = runner.Run(ctx, func(repos repository.Set) error {
		if err := repos.Payments.Create(ctx, &entity.Payment{
			ID: uuid.New().String(), IdempotencyKey: "pg-" + uuid.New().String(), CustomerID: customer.ID,
			Amount: d("15"), Method: entity.PaymentMethodTransfer, Unapplied: d("5"), CreatedAt: now.Add(time.Second),
			Allocations: []entity.PaymentAllocation{{InvoiceID: inv.ID, Amount: d("10"), AmountPaidAfter: d("50"), StatusAfter: entity.InvoiceStatusIssued}},
		}); err != nil {
			return err
		}
		return repos.Payments.Create(ctx, &entity.Payment{
			ID: uuid.New().String(), IdempotencyKey: "pg-" + uuid.New().String(), CustomerID: customer.ID,
			Amount: d("7"), Method: entity.PaymentMethodCash, Unapplied: d("7"), CreatedAt: now.Add(2 * time.Second),
			Allocations: []entity.PaymentAllocation{{InvoiceID: "otra-factura", Amount: d("7")}},
		})
	})
	require.NoError(t, err)

	err = runner.View(ctx, func(repos repository.Set) error {
		list, err := repos.Payments.ListByInvoice(ctx, inv.ID)
		require.NoError(t, err)
		require.Len(t, list, 2, "pago directo y pago de cliente asignado")
		assert.Equal(t, inv.ID, list[0].InvoiceID)
		assert.True(t, list[1].IsCustomerLevel())
		assert.True(t, list[1].Allocated().Equal(d("10")))
		return nil
	})
	require.NoError(t, err)

	err = runner.Run(ctx, func(repos repository.Set) error {
		return repos.Payments.Create(ctx, &entity.Payment{
			ID: uuid.New().String(), IdempotencyKey: key, CustomerID: customer.ID,
			Amount: d("1"), Method: entity.PaymentMethodCash, Unapplied: d("1"), CreatedAt: now,
		})
	})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}
