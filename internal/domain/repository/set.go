package repository

// Set agrupa los repositorios ligados a una misma transacción.
type Set struct {
	Items     ItemRepository
	Movements StockMovementRepository
	Layers    CostLayerRepository
	Customers CustomerRepository
	Invoices  InvoiceRepository
	Payments  PaymentRepository
}
