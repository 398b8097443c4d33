package inventory

import "github.com/shopspring/decimal"

// WeightedAverage implementa el costo promedio ponderado móvil (servicio de dominio).
// NuevoCosto = ((StockActual * CostoActual) + (CantEntrada * CostoEntrada)) / (StockActual + CantEntrada)
// Si StockActual + CantEntrada es cero el nuevo costo es el de la entrada.
// Solo se aplica en entradas: las salidas nunca modifican el WAC.
func WeightedAverage(stockActual, costoActual, cantEntrada, costoEntrada decimal.Decimal) decimal.Decimal {
	sum := stockActual.Add(cantEntrada)
	if sum.IsZero() {
		return costoEntrada
	}
	num := stockActual.Mul(costoActual).Add(cantEntrada.Mul(costoEntrada))
	return num.Div(sum)
}
