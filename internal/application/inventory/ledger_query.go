package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/ledger-api/internal/application/dto"
	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
	"github.com/jhoicas/ledger-api/internal/domain/inventory"
	"github.com/jhoicas/ledger-api/internal/domain/repository"
)

// Ledger proyección del libro de un artículo en [from, to] (ambos opcionales e inclusivos).
// opening_qty es la cantidad acumulada antes de from; closing = opening + in - out.
func (l *StockLedger) Ledger(ctx context.Context, itemID string, from, to *time.Time) (*dto.LedgerResponse, error) {
	if from != nil && to != nil && to.Before(*from) {
		return nil, domain.ErrInvalidInput
	}
	var (
		item      *entity.Item
		movements []*entity.StockMovement
	)
	err := l.txRunner.View(ctx, func(repos repository.Set) error {
		var err error
		if item, err = repos.Items.GetByID(ctx, itemID); err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}
		movements, err = repos.Movements.ListByItem(ctx, itemID, nil, to)
		return err
	})
	if err != nil {
		return nil, err
	}

	res := &dto.LedgerResponse{
		Item:       dto.ToItemResponse(item),
		From:       from,
		To:         to,
		OpeningQty: decimal.Zero,
		InQty:      decimal.Zero,
		OutQty:     decimal.Zero,
		Movements:  make([]dto.MovementResponse, 0, len(movements)),
	}
	for _, m := range movements {
		if from != nil && m.CreatedAt.Before(*from) {
			res.OpeningQty = res.OpeningQty.Add(m.QuantityChange)
			continue
		}
		if m.IsInbound() {
			res.InQty = res.InQty.Add(m.QuantityChange)
		} else {
			res.OutQty = res.OutQty.Add(m.QuantityChange.Neg())
		}
		res.Movements = append(res.Movements, dto.ToMovementResponse(m))
	}
	res.ClosingQty = res.OpeningQty.Add(res.InQty).Sub(res.OutQty)
	return res, nil
}

// CostLayers capas FIFO con existencias del artículo, la más antigua primero.
func (l *StockLedger) CostLayers(ctx context.Context, itemID string) (*dto.CostLayersResponse, error) {
	var (
		item   *entity.Item
		layers []*entity.CostLayer
	)
	err := l.txRunner.View(ctx, func(repos repository.Set) error {
		var err error
		if item, err = repos.Items.GetByID(ctx, itemID); err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}
		layers, err = repos.Layers.ListByItem(ctx, itemID)
		return err
	})
	if err != nil {
		return nil, err
	}
	inventory.SortLayers(layers)

	res := &dto.CostLayersResponse{
		Item:       dto.ToItemResponse(item),
		Layers:     make([]dto.CostLayerResponse, 0, len(layers)),
		TotalQty:   inventory.TotalOnHand(layers),
		TotalValue: inventory.TotalValue(layers),
		CurrentWAC: item.CurrentWAC,
	}
	for _, layer := range layers {
		res.Layers = append(res.Layers, dto.ToCostLayerResponse(layer))
	}
	return res, nil
}

// Valuation compara la valoración al costo promedio con la de capas FIFO y verifica que
// capas e historial reproducido coincidan con la cantidad y el costo del artículo.
func (l *StockLedger) Valuation(ctx context.Context, itemID string) (*dto.ValuationResponse, error) {
	var (
		item      *entity.Item
		layers    []*entity.CostLayer
		movements []*entity.StockMovement
	)
	err := l.txRunner.View(ctx, func(repos repository.Set) error {
		var err error
		if item, err = repos.Items.GetByID(ctx, itemID); err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}
		if layers, err = repos.Layers.ListByItem(ctx, itemID); err != nil {
			return err
		}
		movements, err = repos.Movements.ListByItem(ctx, itemID, nil, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	valueWAC := item.StockValue()
	valueFIFO := inventory.TotalValue(layers)
	layersQty := inventory.TotalOnHand(layers)
	res := &dto.ValuationResponse{
		Item:       dto.ToItemResponse(item),
		ValueWAC:   valueWAC,
		ValueFIFO:  valueFIFO,
		Difference: valueFIFO.Sub(valueWAC),
		LayersQty:  layersQty,
	}
	replay, err := inventory.Replay(item.ID, movements, l.tolerance)
	if err != nil {
		// Historial inconsistente: se informa sin conciliar.
		return res, nil
	}
	res.ReplayQty = replay.Qty
	res.ReplayWAC = replay.WAC
	res.Reconciled = layersQty.Equal(item.CurrentQty) &&
		replay.Qty.Equal(item.CurrentQty) &&
		replay.WAC.Equal(item.CurrentWAC) &&
		inventory.TotalValue(replay.Layers).Equal(valueFIFO)
	return res, nil
}
