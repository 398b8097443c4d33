package billing

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
)

// ReturnSlice porción vendida por la factura, al costo de la capa de la que salió.
type ReturnSlice struct {
	Qty      decimal.Decimal
	UnitCost decimal.Decimal
}

// Returnable lo que queda por devolver de cada artículo de una factura emitida.
// Las porciones se guardan en orden de venta; lo ya devuelto se descuenta desde la
// más reciente, igual que Take.
type Returnable struct {
	items  []string
	slices map[string][]ReturnSlice
}

// NewReturnable arma el saldo devolvible a partir de los movimientos que referencian
// la factura: ventas (salidas) menos devoluciones (entradas).
func NewReturnable(movements []*entity.StockMovement) *Returnable {
	sorted := append([]*entity.StockMovement(nil), movements...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	r := &Returnable{slices: make(map[string][]ReturnSlice)}
	returned := make(map[string]decimal.Decimal)
	for _, m := range sorted {
		switch {
		case m.Reason == entity.ReasonSale && !m.IsInbound():
			if _, ok := r.slices[m.ItemID]; !ok {
				r.items = append(r.items, m.ItemID)
			}
			r.slices[m.ItemID] = append(r.slices[m.ItemID], saleSlices(m)...)
		case m.Reason == entity.ReasonReturn && m.IsInbound():
			returned[m.ItemID] = returned[m.ItemID].Add(m.QuantityChange)
		}
	}
	for itemID, qty := range returned {
		if _, ok := r.slices[itemID]; ok {
			r.take(itemID, qty)
		}
	}
	return r
}

// saleSlices porciones de una salida. Sin detalle de capas se toma la salida completa
// a su costo unitario.
func saleSlices(m *entity.StockMovement) []ReturnSlice {
	if len(m.Depletions) == 0 {
		return []ReturnSlice{{Qty: m.QuantityChange.Neg(), UnitCost: m.UnitCost}}
	}
	out := make([]ReturnSlice, 0, len(m.Depletions))
	for _, d := range m.Depletions {
		out = append(out, ReturnSlice{Qty: d.Qty, UnitCost: d.UnitCost})
	}
	return out
}

// Items artículos vendidos, en orden de la primera venta.
func (r *Returnable) Items() []string {
	return r.items
}

// Sold true si la factura vendió el artículo.
func (r *Returnable) Sold(itemID string) bool {
	_, ok := r.slices[itemID]
	return ok
}

// Remaining cantidad aún devolvible del artículo.
func (r *Returnable) Remaining(itemID string) decimal.Decimal {
	total := decimal.Zero
	for _, s := range r.slices[itemID] {
		total = total.Add(s.Qty)
	}
	return total
}

// Take retira qty del saldo devolvible, de la porción más reciente hacia atrás, y
// devuelve las porciones retiradas en ese orden. Más de lo pendiente es ErrInvalidAmount
// y no cambia nada.
func (r *Returnable) Take(itemID string, qty decimal.Decimal) ([]ReturnSlice, error) {
	if !qty.IsPositive() || qty.GreaterThan(r.Remaining(itemID)) {
		return nil, domain.ErrInvalidAmount
	}
	return r.take(itemID, qty), nil
}

// TakeAll retira todo el saldo pendiente del artículo.
func (r *Returnable) TakeAll(itemID string) []ReturnSlice {
	remaining := r.Remaining(itemID)
	if !remaining.IsPositive() {
		return nil
	}
	return r.take(itemID, remaining)
}

func (r *Returnable) take(itemID string, qty decimal.Decimal) []ReturnSlice {
	slices := r.slices[itemID]
	var out []ReturnSlice
	for i := len(slices) - 1; i >= 0 && qty.IsPositive(); i-- {
		if !slices[i].Qty.IsPositive() {
			continue
		}
		n := decimal.Min(slices[i].Qty, qty)
		slices[i].Qty = slices[i].Qty.Sub(n)
		qty = qty.Sub(n)
		out = append(out, ReturnSlice{Qty: n, UnitCost: slices[i].UnitCost})
	}
	return out
}
