package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/ledger-api/internal/application/dto"
	appinventory "github.com/jhoicas/ledger-api/internal/application/inventory"
	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
	"github.com/jhoicas/ledger-api/internal/infrastructure/lock"
	"github.com/jhoicas/ledger-api/internal/infrastructure/memory"
	"github.com/jhoicas/ledger-api/pkg/logger"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func cost(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// clock avanza una hora por llamada.
type clock struct {
	mu sync.Mutex
	n  int
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return t0.Add(time.Duration(c.n) * time.Hour)
}

func newLedger(t *testing.T) (*appinventory.StockLedger, *appinventory.ItemUseCase) {
	t.Helper()
	store := memory.NewStore()
	locker := lock.NewKeyedLocker(5 * time.Second)
	c := &clock{}
	ledger := appinventory.NewStockLedger(store, locker, logger.Nop(), decimal.Zero).WithClock(c.now)
	items := appinventory.NewItemUseCase(store, locker, logger.Nop())
	return ledger, items
}

func createItem(t *testing.T, items *appinventory.ItemUseCase, sku string) string {
	t.Helper()
	res, err := items.Create(context.Background(), dto.CreateItemRequest{SKU: sku, Name: "Artículo " + sku, SellingPrice: d("150"), CostPrice: d("90")})
	require.NoError(t, err)
	return res.ID
}

func receive(t *testing.T, ledger *appinventory.StockLedger, itemID, qty, unitCost string) *dto.StockMovementResult {
	t.Helper()
	res, err := ledger.Record(context.Background(), appinventory.RecordMovementInput{
		ItemID:         itemID,
		QuantityChange: d(qty),
		Reason:         entity.ReasonPurchase,
		UnitCost:       cost(unitCost),
		UserID:         "u1",
	})
	require.NoError(t, err)
	return res
}

func sell(ledger *appinventory.StockLedger, itemID, qty string) (*dto.StockMovementResult, error) {
	return ledger.Record(context.Background(), appinventory.RecordMovementInput{
		ItemID:         itemID,
		QuantityChange: d(qty).Neg(),
		Reason:         entity.ReasonSale,
		UserID:         "u1",
	})
}

// ─── Registro de movimientos ────────────────────────────────────────────────

func TestRecord_DosEntradasYUnaSalida(t *testing.T) {
	ledger, items := newLedger(t)
	ctx := context.Background()
	id := createItem(t, items, "SKU-1")

	receive(t, ledger, id, "10", "100")
	res := receive(t, ledger, id, "10", "120")
	assert.True(t, res.Item.CurrentWAC.Equal(d("110")))

	out, err := sell(ledger, id, "15")
	require.NoError(t, err)
	assert.True(t, out.Item.CurrentQty.Equal(d("5")))
	assert.True(t, out.Item.CurrentWAC.Equal(d("110")), "las salidas no cambian el WAC")
	assert.True(t, out.Movement.UnitCost.Equal(d("110")))
	assert.True(t, out.Movement.RunningQty.Equal(d("5")))
	require.Len(t, out.Movement.Depletions, 2)
	assert.True(t, out.Movement.Depletions[0].Qty.Equal(d("10")))
	assert.True(t, out.Movement.Depletions[0].UnitCost.Equal(d("100")))
	assert.True(t, out.Movement.Depletions[1].Qty.Equal(d("5")))
	assert.True(t, out.Movement.Depletions[1].UnitCost.Equal(d("120")))

	layers, err := ledger.CostLayers(ctx, id)
	require.NoError(t, err)
	require.Len(t, layers.Layers, 2, "la capa agotada sigue en el historial")
	assert.True(t, layers.Layers[0].UnitCost.Equal(d("100")))
	assert.True(t, layers.Layers[0].QtyOnHand.IsZero())
	assert.True(t, layers.Layers[0].QtySold.Equal(d("10")))
	assert.True(t, layers.Layers[0].StockValue.IsZero())
	assert.True(t, layers.Layers[1].UnitCost.Equal(d("120")))
	assert.True(t, layers.Layers[1].QtyOnHand.Equal(d("5")))
	assert.True(t, layers.Layers[1].QtySold.Equal(d("5")))
	assert.True(t, layers.TotalValue.Equal(d("600")))

	val, err := ledger.Valuation(ctx, id)
	require.NoError(t, err)
	assert.True(t, val.ValueWAC.Equal(d("550")))
	assert.True(t, val.ValueFIFO.Equal(d("600")))
	assert.True(t, val.Difference.Equal(d("50")))
	assert.True(t, val.ReplayQty.Equal(d("5")))
	assert.True(t, val.Reconciled)
}

func TestRecord_StockInsuficienteNoCambiaNada(t *testing.T) {
	ledger, items := newLedger(t)
	ctx := context.Background()
	id := createItem(t, items, "SKU-1")
	receive(t, ledger, id, "5", "10")

	_, err := sell(ledger, id, "6")
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	item, err := items.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, item.CurrentQty.Equal(d("5")))

	led, err := ledger.Ledger(ctx, id, nil, nil)
	require.NoError(t, err)
	assert.Len(t, led.Movements, 1)

	layers, err := ledger.CostLayers(ctx, id)
	require.NoError(t, err)
	assert.True(t, layers.TotalQty.Equal(d("5")))
}

func TestRecord_Validaciones(t *testing.T) {
	ledger, items := newLedger(t)
	id := createItem(t, items, "SKU-1")

	cases := []struct {
		name string
		in   appinventory.RecordMovementInput
		want error
	}{
		{"cantidad cero", appinventory.RecordMovementInput{ItemID: id, QuantityChange: decimal.Zero, Reason: entity.ReasonAdjustment}, domain.ErrInvalidAmount},
		{"entrada sin costo", appinventory.RecordMovementInput{ItemID: id, QuantityChange: d("3"), Reason: entity.ReasonPurchase}, domain.ErrInvalidCost},
		{"costo negativo", appinventory.RecordMovementInput{ItemID: id, QuantityChange: d("3"), Reason: entity.ReasonPurchase, UnitCost: cost("-1")}, domain.ErrInvalidCost},
		{"venta positiva", appinventory.RecordMovementInput{ItemID: id, QuantityChange: d("3"), Reason: entity.ReasonSale, UnitCost: cost("1")}, domain.ErrInvalidInput},
		{"compra negativa", appinventory.RecordMovementInput{ItemID: id, QuantityChange: d("-3"), Reason: entity.ReasonPurchase}, domain.ErrInvalidInput},
		{"motivo desconocido", appinventory.RecordMovementInput{ItemID: id, QuantityChange: d("-3"), Reason: "gift"}, domain.ErrInvalidInput},
		{"sin artículo", appinventory.RecordMovementInput{QuantityChange: d("3"), Reason: entity.ReasonPurchase, UnitCost: cost("1")}, domain.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ledger.Record(context.Background(), tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRecord_ArticuloDesconocido(t *testing.T) {
	ledger, _ := newLedger(t)

	_, err := sell(ledger, "no-existe", "1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = ledger.Record(context.Background(), appinventory.RecordMovementInput{
		ItemID: "no-existe", QuantityChange: d("1"), Reason: entity.ReasonPurchase, UnitCost: cost("5"),
	})
	assert.ErrorIs(t, err, domain.ErrNotFound, "sin SKU no se puede crear el artículo")
}

func TestRecord_PrimeraEntradaPorSKUCreaElArticulo(t *testing.T) {
	ledger, items := newLedger(t)
	ctx := context.Background()

	res, err := ledger.Record(ctx, appinventory.RecordMovementInput{
		SKU: "NUEVO", Name: "Tornillo", QuantityChange: d("4"), Reason: entity.ReasonPurchase, UnitCost: cost("2.5"),
	})
	require.NoError(t, err)
	assert.Equal(t, "NUEVO", res.Item.SKU)
	assert.True(t, res.Item.CurrentQty.Equal(d("4")))
	assert.True(t, res.Item.CurrentWAC.Equal(d("2.5")))

	// Segunda entrada por SKU usa el mismo artículo.
	res2, err := ledger.Record(ctx, appinventory.RecordMovementInput{
		SKU: "NUEVO", QuantityChange: d("4"), Reason: entity.ReasonPurchase, UnitCost: cost("3.5"),
	})
	require.NoError(t, err)
	assert.Equal(t, res.Item.ID, res2.Item.ID)
	assert.True(t, res2.Item.CurrentWAC.Equal(d("3")))

	list, err := items.List(ctx, dto.PageRequest{})
	require.NoError(t, err)
	assert.Len(t, list.Items, 1)
}

func TestRecord_UpdateCostPriceNoTocaElWAC(t *testing.T) {
	ledger, items := newLedger(t)
	id := createItem(t, items, "SKU-1")

	res := receive(t, ledger, id, "10", "100")
	assert.True(t, res.Item.CostPrice.Equal(d("90")), "sin la bandera el costo de referencia se conserva")

	res, err := ledger.Record(context.Background(), appinventory.RecordMovementInput{
		ItemID: id, QuantityChange: d("10"), Reason: entity.ReasonPurchase, UnitCost: cost("140"), UpdateCostPrice: true,
	})
	require.NoError(t, err)
	assert.True(t, res.Item.CostPrice.Equal(d("140")))
	assert.True(t, res.Item.CurrentWAC.Equal(d("120")))
}

func TestRecord_EntradasAlMismoCostoSeFusionan(t *testing.T) {
	ledger, items := newLedger(t)
	id := createItem(t, items, "SKU-1")
	receive(t, ledger, id, "3", "7")
	receive(t, ledger, id, "2", "7")

	layers, err := ledger.CostLayers(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, layers.Layers, 1)
	assert.True(t, layers.Layers[0].QtyOnHand.Equal(d("5")))
}

func TestRecord_SalidasConcurrentesNuncaSobrevenden(t *testing.T) {
	ledger, items := newLedger(t)
	id := createItem(t, items, "SKU-1")
	receive(t, ledger, id, "10", "4")

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, rejected int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sell(ledger, id, "1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("error inesperado: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, 10, rejected)
	item, err := items.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, item.CurrentQty.IsZero())

	val, err := ledger.Valuation(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, val.Reconciled)
}

// ─── Consultas ──────────────────────────────────────────────────────────────

func TestLedger_SaldoInicialYRango(t *testing.T) {
	ledger, items := newLedger(t)
	ctx := context.Background()
	id := createItem(t, items, "SKU-1")

	receive(t, ledger, id, "10", "100") // t0+1h
	receive(t, ledger, id, "10", "120") // t0+2h
	_, err := sell(ledger, id, "15")    // t0+3h
	require.NoError(t, err)

	from := t0.Add(2 * time.Hour)
	led, err := ledger.Ledger(ctx, id, &from, nil)
	require.NoError(t, err)
	assert.True(t, led.OpeningQty.Equal(d("10")))
	assert.True(t, led.InQty.Equal(d("10")))
	assert.True(t, led.OutQty.Equal(d("15")))
	assert.True(t, led.ClosingQty.Equal(d("5")))
	assert.Len(t, led.Movements, 2)

	to := t0.Add(2 * time.Hour)
	led, err = ledger.Ledger(ctx, id, nil, &to)
	require.NoError(t, err)
	assert.True(t, led.ClosingQty.Equal(d("20")), "to es inclusivo")
	assert.Len(t, led.Movements, 2)

	_, err = ledger.Ledger(ctx, id, &to, &t0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ledger.Ledger(ctx, "no-existe", nil, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCostLayers_ArticuloDesconocido(t *testing.T) {
	ledger, _ := newLedger(t)
	_, err := ledger.CostLayers(context.Background(), "no-existe")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = ledger.Valuation(context.Background(), "no-existe")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ─── Artículos ──────────────────────────────────────────────────────────────

func TestItemUseCase_CRUD(t *testing.T) {
	_, items := newLedger(t)
	ctx := context.Background()
	id := createItem(t, items, "SKU-1")

	_, err := items.Create(ctx, dto.CreateItemRequest{SKU: "SKU-1", Name: "Otro"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	_, err = items.Create(ctx, dto.CreateItemRequest{SKU: "SKU-2", Name: "Otro", SellingPrice: d("-1")})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	name := "Renombrado"
	price := d("175")
	upd, err := items.Update(ctx, id, dto.UpdateItemRequest{Name: &name, SellingPrice: &price})
	require.NoError(t, err)
	assert.Equal(t, "Renombrado", upd.Name)
	assert.True(t, upd.SellingPrice.Equal(d("175")))
	assert.True(t, upd.CostPrice.Equal(d("90")))

	_, err = items.Update(ctx, "no-existe", dto.UpdateItemRequest{Name: &name})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = items.GetByID(ctx, "no-existe")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
