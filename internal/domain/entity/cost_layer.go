package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostLayer capa de costo FIFO: cantidad recibida a un mismo costo unitario.
// Las capas de un artículo se consumen en orden de Seq (la más antigua primero).
type CostLayer struct {
	ID               string
	ItemID           string
	Seq              int64
	UnitCost         decimal.Decimal
	QtyReceivedTotal decimal.Decimal
	QtySold          decimal.Decimal
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// QtyOnHand cantidad disponible en la capa.
func (l *CostLayer) QtyOnHand() decimal.Decimal {
	return l.QtyReceivedTotal.Sub(l.QtySold)
}

// StockValue unit_cost * qty_on_hand.
func (l *CostLayer) StockValue() decimal.Decimal {
	return l.UnitCost.Mul(l.QtyOnHand())
}
