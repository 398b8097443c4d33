package billing

import (
	"context"

	appinventory "github.com/jhoicas/ledger-api/internal/application/inventory"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
	"github.com/jhoicas/ledger-api/internal/domain/repository"
)

// StockRecorder integra facturación con el libro de stock.
// RecordInTx registra el movimiento con los repositorios del caller (misma transacción);
// si retorna error (ej: ErrInsufficientStock) el caller debe abortar la transacción.
type StockRecorder interface {
	RecordInTx(
		ctx context.Context,
		repos repository.Set,
		in appinventory.RecordMovementInput,
		ref appinventory.Reference,
	) (*entity.StockMovement, *entity.Item, error)
}

var _ StockRecorder = (*appinventory.StockLedger)(nil)
