package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Motivos de movimiento de stock.
const (
	ReasonPurchase   = "purchase"   // compra (entrada)
	ReasonSale       = "sale"       // venta (salida)
	ReasonReturn     = "return"     // devolución (entrada)
	ReasonDamage     = "damage"     // merma o daño (salida)
	ReasonAdjustment = "adjustment" // ajuste (cualquier signo)
	ReasonTransfer   = "transfer"   // traslado (cualquier signo)
)

// Tipos de documento que originan movimientos.
const (
	ReferenceInvoice = "invoice"
	ReferenceManual  = "manual"
)

// ValidReason indica si el motivo es conocido.
func ValidReason(reason string) bool {
	switch reason {
	case ReasonPurchase, ReasonSale, ReasonReturn, ReasonDamage, ReasonAdjustment, ReasonTransfer:
		return true
	}
	return false
}

// ReasonAllowsSign valida la coherencia entre motivo y signo de la cantidad.
func ReasonAllowsSign(reason string, inbound bool) bool {
	switch reason {
	case ReasonPurchase, ReasonReturn:
		return inbound
	case ReasonSale, ReasonDamage:
		return !inbound
	}
	return true
}

// LayerDepletion porción de una capa consumida por un movimiento de salida.
type LayerDepletion struct {
	LayerID  string          `json:"layer_id"`
	Qty      decimal.Decimal `json:"qty"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// StockMovement movimiento inmutable del libro de stock.
// Una reversión se modela como un movimiento compensatorio nuevo, nunca como edición.
type StockMovement struct {
	ID             string
	ItemID         string
	Seq            int64
	QuantityChange decimal.Decimal // positivo entrada, negativo salida
	Reason         string
	UnitCost       decimal.Decimal // costo de entrada; en salidas, el WAC vigente
	RunningQty     decimal.Decimal // cantidad del artículo después de aplicar
	WACAfter       decimal.Decimal
	ReferenceType  string
	ReferenceID    string
	Depletions     []LayerDepletion
	Notes          string
	CreatedBy      string
	CreatedAt      time.Time
}

// IsInbound true si el movimiento suma stock.
func (m *StockMovement) IsInbound() bool {
	return m.QuantityChange.IsPositive()
}

// FIFOCost costo total de las capas consumidas por una salida.
func (m *StockMovement) FIFOCost() decimal.Decimal {
	total := decimal.Zero
	for _, d := range m.Depletions {
		total = total.Add(d.Qty.Mul(d.UnitCost))
	}
	return total
}
