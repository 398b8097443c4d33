package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item representa un artículo de inventario.
// CurrentQty y CurrentWAC se derivan exclusivamente del libro de movimientos;
// CostPrice es solo una referencia para advertencias de margen.
type Item struct {
	ID           string
	SKU          string // código único
	Name         string
	CurrentQty   decimal.Decimal // suma de todos los movimientos (>= 0)
	CurrentWAC   decimal.Decimal // costo promedio ponderado (solo cambia con entradas)
	SellingPrice decimal.Decimal
	CostPrice    decimal.Decimal // costo de referencia, nunca se confunde con CurrentWAC
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StockValue valoración del stock al costo promedio ponderado.
func (i *Item) StockValue() decimal.Decimal {
	return i.CurrentQty.Mul(i.CurrentWAC)
}
