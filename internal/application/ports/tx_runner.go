package ports

import (
	"context"

	"github.com/jhoicas/ledger-api/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción, pasando repositorios atados a esa tx.
// Run es todo o nada: si fn devuelve error no queda ningún cambio.
// View ofrece una instantánea consistente de solo lectura.
type TxRunner interface {
	Run(ctx context.Context, fn func(repos repository.Set) error) error
	View(ctx context.Context, fn func(repos repository.Set) error) error
}
