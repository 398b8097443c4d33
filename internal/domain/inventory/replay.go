package inventory

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/ledger-api/internal/domain/entity"
)

// ReplayResult estado de un artículo reconstruido desde cero a partir de su historial.
type ReplayResult struct {
	Qty    decimal.Decimal
	WAC    decimal.Decimal
	Layers []*entity.CostLayer
}

// Replay reconstruye cantidad, WAC y capas aplicando en orden todos los movimientos.
// Sirve para auditar que el estado incremental no se desvió del historial.
func Replay(itemID string, movements []*entity.StockMovement, tolerance decimal.Decimal) (ReplayResult, error) {
	ordered := make([]*entity.StockMovement, len(movements))
	copy(ordered, movements)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	res := ReplayResult{Qty: decimal.Zero, WAC: decimal.Zero}
	var seq int64
	for _, m := range ordered {
		delta := m.QuantityChange
		if delta.IsPositive() {
			res.WAC = WeightedAverage(res.Qty, res.WAC, delta, m.UnitCost)
			seq++
			ch := AddLayer(res.Layers, itemID, delta, m.UnitCost, tolerance, seq, m.CreatedAt)
			res.Layers = ApplyLayerChange(res.Layers, ch)
			res.Qty = res.Qty.Add(delta)
			continue
		}
		dep, err := DepleteFIFO(res.Layers, delta.Neg(), m.CreatedAt)
		if err != nil {
			return res, fmt.Errorf("replay movement %s: %w", m.ID, err)
		}
		res.Layers = MergeUpdated(res.Layers, dep.Updated)
		res.Qty = res.Qty.Add(delta)
	}
	return res, nil
}

// MergeUpdated reemplaza en layers las capas presentes en updated (por ID).
func MergeUpdated(layers, updated []*entity.CostLayer) []*entity.CostLayer {
	byID := make(map[string]*entity.CostLayer, len(updated))
	for _, u := range updated {
		byID[u.ID] = u
	}
	out := make([]*entity.CostLayer, len(layers))
	for i, l := range layers {
		if u, ok := byID[l.ID]; ok {
			out[i] = u
			continue
		}
		out[i] = l
	}
	return out
}

// ApplyLayerChange agrega o reemplaza la capa resultante de una entrada.
func ApplyLayerChange(layers []*entity.CostLayer, ch LayerChange) []*entity.CostLayer {
	if ch.Created {
		return append(layers, ch.Layer)
	}
	return MergeUpdated(layers, []*entity.CostLayer{ch.Layer})
}
