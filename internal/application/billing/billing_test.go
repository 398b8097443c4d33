package billing_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appbilling "github.com/jhoicas/ledger-api/internal/application/billing"
	"github.com/jhoicas/ledger-api/internal/application/dto"
	appinventory "github.com/jhoicas/ledger-api/internal/application/inventory"
	"github.com/jhoicas/ledger-api/internal/application/ports"
	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
	"github.com/jhoicas/ledger-api/internal/infrastructure/cache"
	"github.com/jhoicas/ledger-api/internal/infrastructure/lock"
	"github.com/jhoicas/ledger-api/internal/infrastructure/memory"
	"github.com/jhoicas/ledger-api/pkg/logger"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func day(n int) *time.Time {
	t := t0.Add(time.Duration(n) * 24 * time.Hour)
	return &t
}

type env struct {
	stock     *appinventory.StockLedger
	items     *appinventory.ItemUseCase
	customers *appbilling.CustomerUseCase
	invoices  *appbilling.InvoiceLedger
	payments  *appbilling.PaymentProcessor
	balances  *appbilling.CustomerBalanceAggregator
}

func newEnv(t *testing.T, idem ports.IdempotencyCache) *env {
	t.Helper()
	store := memory.NewStore()
	locker := lock.NewKeyedLocker(5 * time.Second)
	now := func() time.Time { return t0 }
	stock := appinventory.NewStockLedger(store, locker, logger.Nop(), decimal.Zero).WithClock(now)
	return &env{
		stock:     stock,
		items:     appinventory.NewItemUseCase(store, locker, logger.Nop()),
		customers: appbilling.NewCustomerUseCase(store, logger.Nop()),
		invoices:  appbilling.NewInvoiceLedger(store, locker, stock, logger.Nop(), 30).WithClock(now),
		payments:  appbilling.NewPaymentProcessor(store, locker, idem, time.Hour, logger.Nop()).WithClock(now),
		balances:  appbilling.NewCustomerBalanceAggregator(store),
	}
}

func (e *env) item(t *testing.T, sku, price string, lots ...[2]string) string {
	t.Helper()
	res, err := e.items.Create(context.Background(), dto.CreateItemRequest{SKU: sku, Name: sku, SellingPrice: d(price)})
	require.NoError(t, err)
	for _, lot := range lots {
		unitCost := d(lot[1])
		_, err := e.stock.Record(context.Background(), appinventory.RecordMovementInput{
			ItemID: res.ID, QuantityChange: d(lot[0]), Reason: entity.ReasonPurchase, UnitCost: &unitCost,
		})
		require.NoError(t, err)
	}
	return res.ID
}

func (e *env) customer(t *testing.T) string {
	t.Helper()
	res, err := e.customers.Create(context.Background(), dto.CreateCustomerRequest{Name: "Cliente", TaxID: "900123"})
	require.NoError(t, err)
	return res.ID
}

// issued crea y emite una factura de una línea.
func (e *env) issued(t *testing.T, customerID, itemID, qty, price string, due *time.Time) *dto.InvoiceResponse {
	t.Helper()
	draft, err := e.invoices.Create(context.Background(), "u1", dto.CreateInvoiceRequest{
		CustomerID: customerID,
		Lines:      []dto.InvoiceLineRequest{{ItemID: itemID, Quantity: d(qty), UnitPrice: d(price)}},
		DueDate:    due,
	})
	require.NoError(t, err)
	inv, err := e.invoices.Issue(context.Background(), draft.ID, "u1")
	require.NoError(t, err)
	return inv
}

func (e *env) pay(invoiceID, amount, key string) (*dto.PaymentResponse, error) {
	return e.payments.ApplyPayment(context.Background(), appbilling.PaymentInput{
		InvoiceID: invoiceID, Amount: d(amount), Method: entity.PaymentMethodTransfer, IdempotencyKey: key, UserID: "u1",
	})
}

func (e *env) summary(t *testing.T, customerID string) *dto.CustomerSummaryResponse {
	t.Helper()
	s, err := e.balances.Summary(context.Background(), customerID)
	require.NoError(t, err)
	return s
}

// ─── Facturas ───────────────────────────────────────────────────────────────

func TestInvoice_BorradorNoTocaStock(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	itemID := e.item(t, "SKU-1", "200", [2]string{"10", "100"})
	cust := e.customer(t)

	draft, err := e.invoices.Create(ctx, "u1", dto.CreateInvoiceRequest{
		CustomerID: cust,
		Lines:      []dto.InvoiceLineRequest{{ItemID: itemID, Quantity: d("3")}},
		Discount:   d("100"),
	})
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusDraft, draft.Status)
	assert.True(t, draft.Subtotal.Equal(d("600")), "precio cero toma el precio de venta")
	assert.True(t, draft.TotalAmount.Equal(d("500")))
	require.NotEmpty(t, draft.Warnings)
	assert.Equal(t, appbilling.WarningDiscountApplied, draft.Warnings[0].Code)

	item, err := e.items.GetByID(ctx, itemID)
	require.NoError(t, err)
	assert.True(t, item.CurrentQty.Equal(d("10")))

	s := e.summary(t, cust)
	assert.True(t, s.Outstanding.IsZero(), "los borradores no cuentan")
	assert.Equal(t, 0, s.InvoiceCount)
}

func TestInvoice_CreateValidaciones(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	itemID := e.item(t, "SKU-1", "10")
	cust := e.customer(t)

	_, err := e.invoices.Create(ctx, "u1", dto.CreateInvoiceRequest{CustomerID: cust})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = e.invoices.Create(ctx, "u1", dto.CreateInvoiceRequest{
		CustomerID: "no-existe", Lines: []dto.InvoiceLineRequest{{ItemID: itemID, Quantity: d("1")}},
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.invoices.Create(ctx, "u1", dto.CreateInvoiceRequest{
		CustomerID: cust, Lines: []dto.InvoiceLineRequest{{ItemID: itemID, Quantity: d("0")}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = e.invoices.Create(ctx, "u1", dto.CreateInvoiceRequest{
		CustomerID: cust, Lines: []dto.InvoiceLineRequest{{ItemID: itemID, Quantity: d("1")}}, Discount: d("11"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount, "descuento mayor al subtotal")
}

func TestInvoice_EmitirFijaCostosYAnularDevuelveStock(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	itemID := e.item(t, "SKU-1", "200", [2]string{"10", "100"}, [2]string{"10", "120"})
	cust := e.customer(t)

	inv := e.issued(t, cust, itemID, "15", "200", nil)
	assert.Equal(t, entity.InvoiceStatusIssued, inv.Status)
	assert.True(t, inv.TotalAmount.Equal(d("3000")))
	assert.True(t, inv.CostWAC.Equal(d("1650")))
	assert.True(t, inv.CostFIFO.Equal(d("1600")))
	require.NotNil(t, inv.DueDate)
	assert.True(t, inv.DueDate.Equal(*day(30)), "vencimiento por defecto según plazo")

	item, err := e.items.GetByID(ctx, itemID)
	require.NoError(t, err)
	assert.True(t, item.CurrentQty.Equal(d("5")))
	assert.True(t, e.summary(t, cust).Outstanding.Equal(d("3000")))

	_, err = e.invoices.Issue(ctx, inv.ID, "u1")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	voided, err := e.invoices.Void(ctx, inv.ID, "error de digitación", "u1")
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusVoided, voided.Status)
	assert.True(t, voided.TotalAmount.Equal(d("3000")), "los montos quedan congelados")

	item, err = e.items.GetByID(ctx, itemID)
	require.NoError(t, err)
	assert.True(t, item.CurrentQty.Equal(d("20")))

	layers, err := e.stock.CostLayers(ctx, itemID)
	require.NoError(t, err)
	assert.True(t, layers.TotalValue.Equal(d("2200")), "cada porción vuelve al costo de su capa")

	val, err := e.stock.Valuation(ctx, itemID)
	require.NoError(t, err)
	assert.True(t, val.Reconciled)

	assert.True(t, e.summary(t, cust).Outstanding.IsZero())

	_, err = e.invoices.Void(ctx, inv.ID, "", "u1")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestInvoice_AnularBorrador(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	itemID := e.item(t, "SKU-1", "10", [2]string{"5", "4"})
	cust := e.customer(t)

	draft, err := e.invoices.Create(ctx, "u1", dto.CreateInvoiceRequest{
		CustomerID: cust, Lines: []dto.InvoiceLineRequest{{ItemID: itemID, Quantity: d("2")}},
	})
	require.NoError(t, err)
	voided, err := e.invoices.Void(ctx, draft.ID, "", "u1")
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusVoided, voided.Status)

	led, err := e.stock.Ledger(ctx, itemID, nil, nil)
	require.NoError(t, err)
	assert.Len(t, led.Movements, 1)

	_, err = e.invoices.Issue(ctx, draft.ID, "u1")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestInvoice_StockInsuficienteRevierteTodasLasLineas(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	a := e.item(t, "SKU-A", "10", [2]string{"10", "4"})
	b := e.item(t, "SKU-B", "10", [2]string{"1", "4"})
	cust := e.customer(t)

	draft, err := e.invoices.Create(ctx, "u1", dto.CreateInvoiceRequest{
		CustomerID: cust,
		Lines: []dto.InvoiceLineRequest{
			{ItemID: a, Quantity: d("2")},
			{ItemID: b, Quantity: d("5")},
		},
	})
	require.NoError(t, err)

	_, err = e.invoices.Issue(ctx, draft.ID, "u1")
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	item, err := e.items.GetByID(ctx, a)
	require.NoError(t, err)
	assert.True(t, item.CurrentQty.Equal(d("10")))

	led, err := e.stock.Ledger(ctx, a, nil, nil)
	require.NoError(t, err)
	assert.Len(t, led.Movements, 1)

	inv, err := e.invoices.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusDraft, inv.Status)
}

func TestInvoice_MismaLineaRepetidaSumaCantidades(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	a := e.item(t, "SKU-A", "10", [2]string{"3", "4"})
	cust := e.customer(t)

	draft, err := e.invoices.Create(ctx, "u1", dto.CreateInvoiceRequest{
		CustomerID: cust,
		Lines: []dto.InvoiceLineRequest{
			{ItemID: a, Quantity: d("2")},
			{ItemID: a, Quantity: d("2")},
		},
	})
	require.NoError(t, err)
	_, err = e.invoices.Issue(ctx, draft.ID, "u1")
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestInvoice_AdvertenciaMargenNegativo(t *testing.T) {
	e := newEnv(t, nil)
	itemID := e.item(t, "SKU-1", "50", [2]string{"10", "100"})
	cust := e.customer(t)

	inv := e.issued(t, cust, itemID, "1", "80", nil)
	var codes []string
	for _, w := range inv.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, appbilling.WarningNegativeMargin)
}

func TestInvoice_TotalCeroQuedaPagadaAlEmitir(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	itemID := e.item(t, "SKU-1", "100", [2]string{"10", "40"})
	cust := e.customer(t)

	draft, err := e.invoices.Create(ctx, "u1", dto.CreateInvoiceRequest{
		CustomerID: cust,
		Lines:      []dto.InvoiceLineRequest{{ItemID: itemID, Quantity: d("2")}},
		Discount:   d("200"),
		DueDate:    day(1),
	})
	require.NoError(t, err)
	require.True(t, draft.TotalAmount.IsZero())

	inv, err := e.invoices.Issue(ctx, draft.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusPaid, inv.Status, "descuento igual al subtotal")
	assert.True(t, inv.CostFIFO.Equal(d("80")), "el stock sale igual")

	_, err = e.pay(inv.ID, "0.01", "k-cero")
	assert.ErrorIs(t, err, domain.ErrOverpayment)

	res, err := e.invoices.MarkOverdue(ctx, *day(60))
	require.NoError(t, err)
	assert.Empty(t, res.Marked)

	s := e.summary(t, cust)
	assert.True(t, s.Outstanding.IsZero())
	assert.Equal(t, 1, s.InvoiceCount)
}

func TestMarkOverdue(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	itemID := e.item(t, "SKU-1", "100", [2]string{"10", "10"})
	cust := e.customer(t)

	late := e.issued(t, cust, itemID, "1", "100", day(1))
	onTime := e.issued(t, cust, itemID, "1", "100", day(10))

	res, err := e.invoices.MarkOverdue(ctx, *day(2))
	require.NoError(t, err)
	assert.Equal(t, []string{late.ID}, res.Marked)

	res, err = e.invoices.MarkOverdue(ctx, *day(2))
	require.NoError(t, err)
	assert.Empty(t, res.Marked)

	inv, err := e.invoices.Get(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusOverdue, inv.Status)

	// Vencida sigue aceptando pagos.
	paid, err := e.pay(late.ID, "100", "k-late")
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusPaid, paid.Allocations[0].StatusAfter)

	inv, err = e.invoices.Get(ctx, onTime.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusIssued, inv.Status)
}

// ─── Devoluciones ───────────────────────────────────────────────────────────

func returnReq(itemID, qty string) dto.ReturnInvoiceRequest {
	return dto.ReturnInvoiceRequest{Lines: []dto.ReturnLineRequest{{ItemID: itemID, Quantity: d(qty)}}, Reason: "cliente devuelve"}
}

func TestReturn_ParcialHastaElTopeVendido(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	itemID := e.item(t, "SKU-1", "200", [2]string{"10", "100"}, [2]string{"10", "120"})
	cust := e.customer(t)
	inv := e.issued(t, cust, itemID, "15", "200", nil)

	_, err := e.invoices.Return(ctx, inv.ID, "u1", returnReq(itemID, "16"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount, "más de lo vendido")
	item, err := e.items.GetByID(ctx, itemID)
	require.NoError(t, err)
	assert.True(t, item.CurrentQty.Equal(d("5")), "el rechazo no mueve stock")

	res, err := e.invoices.Return(ctx, inv.ID, "u1", returnReq(itemID, "3"))
	require.NoError(t, err)
	require.Len(t, res.Movements, 1)
	assert.Equal(t, entity.ReasonReturn, res.Movements[0].Reason)
	assert.True(t, res.Movements[0].UnitCost.Equal(d("120")), "vuelve primero la porción más reciente")
	require.Len(t, res.Lines, 1)
	assert.True(t, res.Lines[0].ReturnedCost.Equal(d("360")))
	assert.True(t, res.Lines[0].Returnable.Equal(d("12")))

	res, err = e.invoices.Return(ctx, inv.ID, "u1", returnReq(itemID, "12"))
	require.NoError(t, err)
	require.Len(t, res.Movements, 2)
	assert.True(t, res.Lines[0].ReturnedCost.Equal(d("1240")), "2 a 120 y 10 a 100")
	assert.True(t, res.Lines[0].Returnable.IsZero())

	_, err = e.invoices.Return(ctx, inv.ID, "u1", returnReq(itemID, "0.5"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount, "nada pendiente por devolver")

	item, err = e.items.GetByID(ctx, itemID)
	require.NoError(t, err)
	assert.True(t, item.CurrentQty.Equal(d("20")))

	got, err := e.invoices.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusIssued, got.Status, "la devolución no cambia el estado")
	assert.True(t, got.TotalAmount.Equal(d("3000")))

	val, err := e.stock.Valuation(ctx, itemID)
	require.NoError(t, err)
	assert.True(t, val.Reconciled)
}

func TestReturn_AnularDespuesSoloIngresaElResto(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	itemID := e.item(t, "SKU-1", "200", [2]string{"10", "100"}, [2]string{"10", "120"})
	cust := e.customer(t)
	inv := e.issued(t, cust, itemID, "15", "200", nil)

	_, err := e.invoices.Return(ctx, inv.ID, "u1", returnReq(itemID, "4"))
	require.NoError(t, err)

	_, err = e.invoices.Void(ctx, inv.ID, "", "u1")
	require.NoError(t, err)

	item, err := e.items.GetByID(ctx, itemID)
	require.NoError(t, err)
	assert.True(t, item.CurrentQty.Equal(d("20")), "sin doble ingreso")

	layers, err := e.stock.CostLayers(ctx, itemID)
	require.NoError(t, err)
	assert.True(t, layers.TotalValue.Equal(d("2200")))

	led, err := e.stock.Ledger(ctx, itemID, nil, nil)
	require.NoError(t, err)
	assert.Len(t, led.Movements, 6, "2 compras, 1 venta, 1 devolución y 2 de la anulación")

	_, err = e.invoices.Return(ctx, inv.ID, "u1", returnReq(itemID, "1"))
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
}

func TestReturn_Validaciones(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	itemID := e.item(t, "SKU-1", "10", [2]string{"10", "4"})
	other := e.item(t, "SKU-2", "10", [2]string{"10", "4"})
	cust := e.customer(t)

	draft, err := e.invoices.Create(ctx, "u1", dto.CreateInvoiceRequest{
		CustomerID: cust, Lines: []dto.InvoiceLineRequest{{ItemID: itemID, Quantity: d("2")}},
	})
	require.NoError(t, err)
	_, err = e.invoices.Return(ctx, draft.ID, "u1", returnReq(itemID, "1"))
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition, "un borrador no descontó stock")

	inv := e.issued(t, cust, itemID, "2", "10", nil)
	_, err = e.invoices.Return(ctx, inv.ID, "u1", returnReq(other, "1"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "artículo fuera de la factura")

	_, err = e.invoices.Return(ctx, inv.ID, "u1", returnReq(itemID, "0"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = e.invoices.Return(ctx, inv.ID, "u1", dto.ReturnInvoiceRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = e.invoices.Return(ctx, "no-existe", "u1", returnReq(itemID, "1"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Dos líneas del mismo artículo suman contra el mismo tope.
	_, err = e.invoices.Return(ctx, inv.ID, "u1", dto.ReturnInvoiceRequest{Lines: []dto.ReturnLineRequest{
		{ItemID: itemID, Quantity: d("1.5")},
		{ItemID: itemID, Quantity: d("1")},
	}})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	paid, err := e.pay(inv.ID, "20", "k-ret")
	require.NoError(t, err)
	require.Equal(t, entity.InvoiceStatusPaid, paid.Allocations[0].StatusAfter)
	_, err = e.invoices.Return(ctx, inv.ID, "u1", returnReq(itemID, "2"))
	assert.NoError(t, err, "una factura pagada admite devolución")
}

// ─── Pagos ──────────────────────────────────────────────────────────────────

func TestPayment_ParcialTotalYExceso(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	itemID := e.item(t, "SKU-1", "5000", [2]string{"10", "3000"})
	cust := e.customer(t)
	inv := e.issued(t, cust, itemID, "10", "5000", nil)
	require.True(t, inv.TotalAmount.Equal(d("50000")))

	_, err := e.pay(inv.ID, "60000", "k0")
	assert.ErrorIs(t, err, domain.ErrOverpayment)

	p1, err := e.pay(inv.ID, "20000", "k1")
	require.NoError(t, err)
	assert.True(t, p1.Allocations[0].AmountPaidAfter.Equal(d("20000")))
	assert.Equal(t, entity.InvoiceStatusIssued, p1.Allocations[0].StatusAfter)
	assert.True(t, e.summary(t, cust).Outstanding.Equal(d("30000")))

	p2, err := e.pay(inv.ID, "30000", "k2")
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusPaid, p2.Allocations[0].StatusAfter)

	_, err = e.pay(inv.ID, "1", "k3")
	assert.ErrorIs(t, err, domain.ErrOverpayment)

	got, err := e.invoices.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusPaid, got.Status)
	assert.True(t, got.Remaining.IsZero())

	s := e.summary(t, cust)
	assert.True(t, s.Outstanding.IsZero())
	assert.True(t, s.TotalPaidOnInvoices.Equal(d("50000")))
}

func TestPayment_RechazaBorradorYAnulada(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	itemID := e.item(t, "SKU-1", "10", [2]string{"10", "1"})
	cust := e.customer(t)

	draft, err := e.invoices.Create(ctx, "u1", dto.CreateInvoiceRequest{
		CustomerID: cust, Lines: []dto.InvoiceLineRequest{{ItemID: itemID, Quantity: d("1")}},
	})
	require.NoError(t, err)
	_, err = e.pay(draft.ID, "5", "k-draft")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	inv := e.issued(t, cust, itemID, "1", "10", nil)
	_, err = e.invoices.Void(ctx, inv.ID, "", "u1")
	require.NoError(t, err)
	_, err = e.pay(inv.ID, "5", "k-void")
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	_, err = e.pay("no-existe", "5", "k-404")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPayment_Validaciones(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	_, err := e.pay("x", "0", "k")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = e.pay("x", "10", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = e.payments.ApplyPayment(ctx, appbilling.PaymentInput{InvoiceID: "x", Amount: d("1"), Method: "bitcoin", IdempotencyKey: "k"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = e.payments.ApplyPayment(ctx, appbilling.PaymentInput{InvoiceID: "x", Amount: d("1"), Method: entity.PaymentMethodCredit, IdempotencyKey: "k"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "credit no es un método de pago directo")
}

func TestPayment_Idempotencia(t *testing.T) {
	for _, tc := range []struct {
		name  string
		cache ports.IdempotencyCache
	}{
		{"sin caché", nil},
		{"con caché", cache.NewMemoryCache(time.Minute)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, tc.cache)
			ctx := context.Background()
			itemID := e.item(t, "SKU-1", "100", [2]string{"10", "10"})
			cust := e.customer(t)
			inv := e.issued(t, cust, itemID, "5", "100", nil)

			first, err := e.pay(inv.ID, "200", "same-key")
			require.NoError(t, err)
			assert.False(t, first.Replayed)

			again, err := e.pay(inv.ID, "200", "same-key")
			require.NoError(t, err)
			assert.True(t, again.Replayed)
			assert.Equal(t, first.PaymentID, again.PaymentID)

			got, err := e.invoices.Get(ctx, inv.ID)
			require.NoError(t, err)
			assert.True(t, got.AmountPaid.Equal(d("200")), "la repetición no vuelve a aplicar")

			_, err = e.pay(inv.ID, "300", "same-key")
			assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)

			_, err = e.payments.ApplyCustomerPayment(ctx, appbilling.PaymentInput{
				CustomerID: cust, Amount: d("200"), Method: entity.PaymentMethodTransfer, IdempotencyKey: "same-key",
			})
			assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)
		})
	}
}

func TestPayment_ConcurrentesNuncaExcedenElTotal(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	itemID := e.item(t, "SKU-1", "100", [2]string{"10", "10"})
	cust := e.customer(t)
	inv := e.issued(t, cust, itemID, "10", "100", nil)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, rejected int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.pay(inv.ID, "100", fmt.Sprintf("k-%d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrOverpayment):
				rejected++
			default:
				t.Errorf("error inesperado: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, 10, rejected)
	got, err := e.invoices.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.AmountPaid.Equal(d("1000")))
	assert.Equal(t, entity.InvoiceStatusPaid, got.Status)
}

// ─── Pagos de cliente y saldo a favor ───────────────────────────────────────

func TestCustomerPayment_VencimientoMasAntiguoPrimeroYCredito(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	itemID := e.item(t, "SKU-1", "100", [2]string{"100", "10"})
	cust := e.customer(t)

	later := e.issued(t, cust, itemID, "10", "100", day(10)) // 1000
	sooner := e.issued(t, cust, itemID, "5", "100", day(5))  // 500

	res, err := e.payments.ApplyCustomerPayment(ctx, appbilling.PaymentInput{
		CustomerID: cust, Amount: d("2000"), IdempotencyKey: "cp-1", UserID: "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentMethodCash, res.Method, "método por defecto")
	require.Len(t, res.Allocations, 2)
	assert.Equal(t, sooner.ID, res.Allocations[0].InvoiceID)
	assert.True(t, res.Allocations[0].Amount.Equal(d("500")))
	assert.Equal(t, later.ID, res.Allocations[1].InvoiceID)
	assert.True(t, res.Allocations[1].Amount.Equal(d("1000")))
	assert.True(t, res.Unapplied.Equal(d("500")))

	s := e.summary(t, cust)
	assert.True(t, s.Outstanding.IsZero())
	assert.True(t, s.CreditAvailable.Equal(d("500")))
	assert.True(t, s.TotalManualPayments.Equal(d("2000")))

	// Sin facturas abiertas no hay a qué aplicar el crédito.
	_, err = e.payments.ApplyCustomerCredit(ctx, cust, "cr-0", "u1")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	extra := e.issued(t, cust, itemID, "3", "100", day(20)) // 300
	assert.True(t, e.summary(t, cust).CreditAvailable.Equal(d("200")))

	credit, err := e.payments.ApplyCustomerCredit(ctx, cust, "cr-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentMethodCredit, credit.Method)
	assert.True(t, credit.Amount.Equal(d("300")))
	require.Len(t, credit.Allocations, 1)
	assert.Equal(t, extra.ID, credit.Allocations[0].InvoiceID)
	assert.Equal(t, entity.InvoiceStatusPaid, credit.Allocations[0].StatusAfter)

	replay, err := e.payments.ApplyCustomerCredit(ctx, cust, "cr-1", "u1")
	require.NoError(t, err)
	assert.True(t, replay.Replayed)

	s = e.summary(t, cust)
	assert.True(t, s.Outstanding.IsZero())
	assert.True(t, s.CreditAvailable.Equal(d("200")))
	assert.True(t, s.UnappliedCredit.Equal(d("200")))
	assert.Equal(t, 3, s.InvoiceCount)
	assert.Equal(t, 0, s.OpenInvoiceCount)
}

func TestCustomerPayment_SinFacturasQuedaComoCredito(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	cust := e.customer(t)

	res, err := e.payments.ApplyCustomerPayment(ctx, appbilling.PaymentInput{
		CustomerID: cust, Amount: d("750"), Method: entity.PaymentMethodCard, IdempotencyKey: "cp-1",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Allocations)
	assert.True(t, res.Unapplied.Equal(d("750")))
	assert.True(t, e.summary(t, cust).CreditAvailable.Equal(d("750")))

	_, err = e.payments.ApplyCustomerPayment(ctx, appbilling.PaymentInput{
		CustomerID: "no-existe", Amount: d("1"), IdempotencyKey: "cp-2",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInvoicePayments_DirectosYAsignados(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	itemID := e.item(t, "SKU-1", "100", [2]string{"100", "10"})
	cust := e.customer(t)
	a := e.issued(t, cust, itemID, "10", "100", day(5)) // 1000

	_, err := e.pay(a.ID, "300", "p-a")
	require.NoError(t, err)
	_, err = e.payments.ApplyCustomerPayment(ctx, appbilling.PaymentInput{
		CustomerID: cust, Amount: d("900"), IdempotencyKey: "cp-a", UserID: "u1",
	})
	require.NoError(t, err)
	b := e.issued(t, cust, itemID, "1", "100", day(9))
	_, err = e.pay(b.ID, "100", "p-b")
	require.NoError(t, err)

	res, err := e.invoices.Payments(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, res.Payments, 2, "el pago de otra factura no aparece")
	assert.Equal(t, a.ID, res.Payments[0].InvoiceID)
	assert.True(t, res.Payments[0].Allocated.Equal(d("300")))
	assert.Empty(t, res.Payments[1].InvoiceID, "pago a nivel de cliente")
	assert.True(t, res.Payments[1].Allocated.Equal(d("700")))
	assert.True(t, res.Payments[1].Unapplied.Equal(d("200")))
	assert.True(t, res.Applied.Equal(d("1000")))
	assert.True(t, res.Applied.Equal(res.AmountPaid))

	_, err = e.invoices.Payments(ctx, "no-existe")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSummary_ClienteDesconocido(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.balances.Summary(context.Background(), "no-existe")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSummary_ConciliaFacturasYPagos(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	itemID := e.item(t, "SKU-1", "100", [2]string{"100", "10"})
	cust := e.customer(t)

	a := e.issued(t, cust, itemID, "10", "100", day(5)) // 1000
	b := e.issued(t, cust, itemID, "4", "100", day(9))  // 400
	_, err := e.pay(a.ID, "250", "p-a")
	require.NoError(t, err)
	_, err = e.invoices.Void(ctx, b.ID, "", "u1")
	require.NoError(t, err)

	s := e.summary(t, cust)
	assert.Equal(t, 1, s.InvoiceCount, "las anuladas no cuentan")
	assert.True(t, s.TotalInvoiced.Equal(d("1000")))
	assert.True(t, s.TotalPaidOnInvoices.Equal(d("250")))
	assert.True(t, s.InvoiceRemainingTotal.Equal(d("750")))
	assert.True(t, s.Outstanding.Equal(s.TotalInvoiced.Sub(s.TotalPaidOnInvoices)))

	list, err := e.invoices.ListByCustomer(ctx, cust)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
