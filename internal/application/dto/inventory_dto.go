package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateItemRequest body para POST /api/items.
type CreateItemRequest struct {
	SKU          string          `json:"sku" validate:"required,max=64"`
	Name         string          `json:"name" validate:"required,max=200"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	CostPrice    decimal.Decimal `json:"cost_price"`
}

// UpdateItemRequest body para PUT /api/items/:id. Solo campos de referencia;
// cantidad y costo promedio se derivan del libro de movimientos.
type UpdateItemRequest struct {
	Name         *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	SellingPrice *decimal.Decimal `json:"selling_price,omitempty"`
	CostPrice    *decimal.Decimal `json:"cost_price,omitempty"`
}

// ItemResponse artículo en respuestas.
type ItemResponse struct {
	ID           string          `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	CurrentQty   decimal.Decimal `json:"current_qty"`
	CurrentWAC   decimal.Decimal `json:"current_wac"`
	StockValue   decimal.Decimal `json:"stock_value"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// RecordMovementRequest body para POST /api/stock-movements y POST /api/items/:id/adjust-stock.
// QuantityChange positivo es entrada (unit_cost obligatorio), negativo es salida.
// SKU y Name permiten crear el artículo en su primera entrada.
type RecordMovementRequest struct {
	ItemID          string           `json:"item_id,omitempty"`
	SKU             string           `json:"sku,omitempty" validate:"omitempty,max=64"`
	Name            string           `json:"name,omitempty" validate:"omitempty,max=200"`
	QuantityChange  decimal.Decimal  `json:"quantity_change"`
	Reason          string           `json:"reason" validate:"required,oneof=purchase sale return damage adjustment transfer"`
	UnitCost        *decimal.Decimal `json:"unit_cost,omitempty"`
	UpdateCostPrice bool             `json:"update_cost_price,omitempty"`
	Notes           string           `json:"notes,omitempty" validate:"max=500"`
}

// LayerDepletionResponse porción de capa consumida por una salida.
type LayerDepletionResponse struct {
	LayerID  string          `json:"layer_id"`
	Qty      decimal.Decimal `json:"qty"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// MovementResponse movimiento del libro de stock.
type MovementResponse struct {
	ID             string                   `json:"id"`
	ItemID         string                   `json:"item_id"`
	Seq            int64                    `json:"seq"`
	QuantityChange decimal.Decimal          `json:"quantity_change"`
	Reason         string                   `json:"reason"`
	UnitCost       decimal.Decimal          `json:"unit_cost"`
	RunningQty     decimal.Decimal          `json:"running_qty"`
	WACAfter       decimal.Decimal          `json:"wac_after"`
	ReferenceType  string                   `json:"reference_type,omitempty"`
	ReferenceID    string                   `json:"reference_id,omitempty"`
	Depletions     []LayerDepletionResponse `json:"depletions,omitempty"`
	Notes          string                   `json:"notes,omitempty"`
	CreatedBy      string                   `json:"created_by,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
}

// StockMovementResult respuesta de registrar un movimiento: el movimiento y el artículo resultante.
type StockMovementResult struct {
	Movement MovementResponse `json:"movement"`
	Item     ItemResponse     `json:"item"`
}

// LedgerResponse respuesta de GET /api/items/:id/ledger.
type LedgerResponse struct {
	Item       ItemResponse       `json:"item"`
	From       *time.Time         `json:"from,omitempty"`
	To         *time.Time         `json:"to,omitempty"`
	OpeningQty decimal.Decimal    `json:"opening_qty"`
	InQty      decimal.Decimal    `json:"in_qty"`
	OutQty     decimal.Decimal    `json:"out_qty"`
	ClosingQty decimal.Decimal    `json:"closing_qty"`
	Movements  []MovementResponse `json:"movements"`
}

// CostLayerResponse capa FIFO con su valoración.
type CostLayerResponse struct {
	ID               string          `json:"id"`
	Seq              int64           `json:"seq"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	QtyOnHand        decimal.Decimal `json:"qty_on_hand"`
	QtyReceivedTotal decimal.Decimal `json:"qty_received_total"`
	QtySold          decimal.Decimal `json:"qty_sold"`
	StockValue       decimal.Decimal `json:"stock_value"`
	CreatedAt        time.Time       `json:"created_at"`
}

// CostLayersResponse respuesta de GET /api/items/:id/cost-layers.
// Incluye las capas agotadas (qty_on_hand 0) para conservar el historial de costos.
type CostLayersResponse struct {
	Item       ItemResponse        `json:"item"`
	Layers     []CostLayerResponse `json:"layers"`
	TotalQty   decimal.Decimal     `json:"total_qty"`
	TotalValue decimal.Decimal     `json:"total_value"`
	CurrentWAC decimal.Decimal     `json:"current_wac"`
}

// ValuationResponse respuesta de GET /api/items/:id/valuation.
// Reconciled indica que capas e historial reproducido coinciden con el estado del artículo.
type ValuationResponse struct {
	Item       ItemResponse    `json:"item"`
	ValueWAC   decimal.Decimal `json:"value_wac"`
	ValueFIFO  decimal.Decimal `json:"value_fifo"`
	Difference decimal.Decimal `json:"difference"` // value_fifo - value_wac
	LayersQty  decimal.Decimal `json:"layers_qty"`
	ReplayQty  decimal.Decimal `json:"replay_qty"`
	ReplayWAC  decimal.Decimal `json:"replay_wac"`
	Reconciled bool            `json:"reconciled"`
}
