package entity

import "time"

// Customer representa un cliente al que se emiten facturas.
type Customer struct {
	ID        string
	Name      string
	TaxID     string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
