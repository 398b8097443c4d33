package inventory

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
)

// SortLayers ordena las capas por Seq (orden de creación).
func SortLayers(layers []*entity.CostLayer) {
	sort.SliceStable(layers, func(i, j int) bool { return layers[i].Seq < layers[j].Seq })
}

// TotalOnHand suma qty_on_hand de todas las capas.
func TotalOnHand(layers []*entity.CostLayer) decimal.Decimal {
	total := decimal.Zero
	for _, l := range layers {
		total = total.Add(l.QtyOnHand())
	}
	return total
}

// TotalValue suma unit_cost * qty_on_hand de todas las capas.
func TotalValue(layers []*entity.CostLayer) decimal.Decimal {
	total := decimal.Zero
	for _, l := range layers {
		total = total.Add(l.StockValue())
	}
	return total
}

// LayerChange resultado de aplicar una entrada a las capas.
// Created es true si se agregó una capa nueva; false si se fusionó con la más reciente.
type LayerChange struct {
	Layer   *entity.CostLayer
	Created bool
}

// AddLayer registra una entrada en las capas del artículo.
// Se fusiona con la capa más reciente solo si |costo - entrada| <= tolerance
// (tolerance cero = coincidencia exacta). Una fusión con tolerancia recalcula el costo
// de la capa ponderando por cantidad disponible; con coincidencia exacta el costo no cambia.
// layers debe venir ordenado; nextSeq se usa para la capa nueva.
func AddLayer(layers []*entity.CostLayer, itemID string, qty, unitCost, tolerance decimal.Decimal, nextSeq int64, now time.Time) LayerChange {
	if n := len(layers); n > 0 {
		last := layers[n-1]
		if last.UnitCost.Sub(unitCost).Abs().LessThanOrEqual(tolerance) {
			merged := *last
			if !last.UnitCost.Equal(unitCost) {
				onHand := last.QtyOnHand()
				merged.UnitCost = WeightedAverage(onHand, last.UnitCost, qty, unitCost)
			}
			merged.QtyReceivedTotal = last.QtyReceivedTotal.Add(qty)
			merged.UpdatedAt = now
			return LayerChange{Layer: &merged}
		}
	}
	return LayerChange{
		Layer: &entity.CostLayer{
			ID:               uuid.New().String(),
			ItemID:           itemID,
			Seq:              nextSeq,
			UnitCost:         unitCost,
			QtyReceivedTotal: qty,
			QtySold:          decimal.Zero,
			CreatedAt:        now,
			UpdatedAt:        now,
		},
		Created: true,
	}
}

// Depletion resultado de consumir capas FIFO: copias actualizadas de las capas tocadas
// y las porciones consumidas (para COGS y para reversar).
type Depletion struct {
	Updated []*entity.CostLayer
	Slices  []entity.LayerDepletion
}

// Cost costo total consumido.
func (d Depletion) Cost() decimal.Decimal {
	total := decimal.Zero
	for _, s := range d.Slices {
		total = total.Add(s.Qty.Mul(s.UnitCost))
	}
	return total
}

// DepleteFIFO consume qty de las capas, la más antigua primero.
// Verifica el total disponible antes de tocar cualquier capa: si no alcanza devuelve
// ErrInsufficientStock y no hay consumo parcial. Las capas de entrada no se modifican.
func DepleteFIFO(layers []*entity.CostLayer, qty decimal.Decimal, now time.Time) (Depletion, error) {
	if !qty.IsPositive() {
		return Depletion{}, domain.ErrInvalidAmount
	}
	if TotalOnHand(layers).LessThan(qty) {
		return Depletion{}, domain.ErrInsufficientStock
	}
	var out Depletion
	remaining := qty
	for _, l := range layers {
		if !remaining.IsPositive() {
			break
		}
		onHand := l.QtyOnHand()
		if !onHand.IsPositive() {
			continue
		}
		take := decimal.Min(onHand, remaining)
		updated := *l
		updated.QtySold = l.QtySold.Add(take)
		updated.UpdatedAt = now
		out.Updated = append(out.Updated, &updated)
		out.Slices = append(out.Slices, entity.LayerDepletion{
			LayerID:  l.ID,
			Qty:      take,
			UnitCost: l.UnitCost,
		})
		remaining = remaining.Sub(take)
	}
	return out, nil
}
