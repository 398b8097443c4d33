package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/ledger-api/internal/application/dto"
	"github.com/jhoicas/ledger-api/internal/application/ports"
	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
	"github.com/jhoicas/ledger-api/internal/domain/inventory"
	"github.com/jhoicas/ledger-api/internal/domain/repository"
	"github.com/jhoicas/ledger-api/pkg/logger"
)

// errSKUTaken: el artículo apareció entre la búsqueda por SKU y el bloqueo; se reintenta con su ID.
var errSKUTaken = errors.New("sku ya registrado")

// StockLedger registra movimientos de stock de forma transaccional y mantiene
// cantidad, costo promedio ponderado y capas FIFO de cada artículo.
type StockLedger struct {
	txRunner  ports.TxRunner
	locker    ports.Locker
	log       *logger.Logger
	tolerance decimal.Decimal
	now       func() time.Time
}

// NewStockLedger construye el libro de stock. mergeTolerance es la diferencia máxima de
// costo unitario para fusionar una entrada con la capa más reciente (cero = exacta).
func NewStockLedger(txRunner ports.TxRunner, locker ports.Locker, log *logger.Logger, mergeTolerance decimal.Decimal) *StockLedger {
	return &StockLedger{
		txRunner:  txRunner,
		locker:    locker,
		log:       log.Component("stock_ledger"),
		tolerance: mergeTolerance.Abs(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock reemplaza el reloj (tests y reprocesos con fecha fija).
func (l *StockLedger) WithClock(now func() time.Time) *StockLedger {
	l.now = now
	return l
}

// RecordMovementInput entrada para registrar un movimiento.
// QuantityChange positivo es entrada (UnitCost obligatorio), negativo salida.
// Si el artículo no existe y se envía SKU, se crea en su primera entrada.
type RecordMovementInput struct {
	ItemID          string
	SKU             string
	Name            string
	QuantityChange  decimal.Decimal
	Reason          string
	UnitCost        *decimal.Decimal
	UpdateCostPrice bool
	Notes           string
	UserID          string
}

// Reference documento que origina el movimiento (factura o manual).
type Reference struct {
	Type string
	ID   string
}

// FromRequest adapta el request HTTP a RecordMovementInput.
func FromRequest(userID string, in dto.RecordMovementRequest) RecordMovementInput {
	return RecordMovementInput{
		ItemID:          in.ItemID,
		SKU:             in.SKU,
		Name:            in.Name,
		QuantityChange:  in.QuantityChange,
		Reason:          in.Reason,
		UnitCost:        in.UnitCost,
		UpdateCostPrice: in.UpdateCostPrice,
		Notes:           in.Notes,
		UserID:          userID,
	}
}

// ValidateMovement aplica las reglas que no dependen del estado del artículo.
func ValidateMovement(in RecordMovementInput) error {
	if in.QuantityChange.IsZero() {
		return domain.ErrInvalidAmount
	}
	if !entity.ValidReason(in.Reason) {
		return domain.ErrInvalidInput
	}
	inbound := in.QuantityChange.IsPositive()
	if !entity.ReasonAllowsSign(in.Reason, inbound) {
		return domain.ErrInvalidInput
	}
	if inbound && (in.UnitCost == nil || in.UnitCost.IsNegative()) {
		return domain.ErrInvalidCost
	}
	if in.ItemID == "" && in.SKU == "" {
		return domain.ErrInvalidInput
	}
	return nil
}

// Record valida, toma el bloqueo del artículo y registra el movimiento en una sola
// transacción (movimiento, artículo y capas). Si falla no queda ningún cambio.
func (l *StockLedger) Record(ctx context.Context, in RecordMovementInput) (*dto.StockMovementResult, error) {
	if err := ValidateMovement(in); err != nil {
		return nil, err
	}
	var (
		mov  *entity.StockMovement
		item *entity.Item
	)
	for attempt := 0; attempt < 2; attempt++ {
		key, err := l.lockKey(ctx, &in)
		if err != nil {
			return nil, err
		}
		unlock, err := l.locker.Lock(ctx, key)
		if err != nil {
			l.log.Warn().Err(err).Str("item_id", in.ItemID).Str("sku", in.SKU).Msg("movimiento rechazado: bloqueo ocupado")
			return nil, err
		}
		err = l.txRunner.Run(ctx, func(repos repository.Set) error {
			var txErr error
			mov, item, txErr = l.RecordInTx(ctx, repos, in, Reference{Type: entity.ReferenceManual})
			return txErr
		})
		unlock()
		if errors.Is(err, errSKUTaken) {
			continue
		}
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientStock) {
				l.log.Warn().Str("item_id", in.ItemID).Str("quantity_change", in.QuantityChange.String()).Msg("salida rechazada: stock insuficiente")
			}
			return nil, err
		}
		break
	}
	if mov == nil {
		return nil, domain.ErrBusy
	}
	l.log.Info().
		Str("item_id", item.ID).
		Str("movement_id", mov.ID).
		Str("reason", mov.Reason).
		Str("quantity_change", mov.QuantityChange.String()).
		Str("running_qty", mov.RunningQty.String()).
		Str("wac", mov.WACAfter.String()).
		Msg("movimiento de stock registrado")
	return &dto.StockMovementResult{
		Movement: dto.ToMovementResponse(mov),
		Item:     dto.ToItemResponse(item),
	}, nil
}

// lockKey resuelve la clave de bloqueo. Con solo SKU busca el artículo; si no existe
// bloquea por SKU para serializar la creación.
func (l *StockLedger) lockKey(ctx context.Context, in *RecordMovementInput) (string, error) {
	if in.ItemID != "" {
		return ports.ItemLockKey(in.ItemID), nil
	}
	var found *entity.Item
	err := l.txRunner.View(ctx, func(repos repository.Set) error {
		var err error
		found, err = repos.Items.GetBySKU(ctx, in.SKU)
		return err
	})
	if err != nil {
		return "", err
	}
	if found != nil {
		in.ItemID = found.ID
		return ports.ItemLockKey(found.ID), nil
	}
	return ports.SKULockKey(in.SKU), nil
}

// RecordInTx aplica el movimiento con los repositorios de la transacción del caller.
// El caller debe tener el bloqueo del artículo. Lo usa la facturación para que las
// salidas de una factura confirmen o se reviertan junto con ella.
func (l *StockLedger) RecordInTx(ctx context.Context, repos repository.Set, in RecordMovementInput, ref Reference) (*entity.StockMovement, *entity.Item, error) {
	if err := ValidateMovement(in); err != nil {
		return nil, nil, err
	}
	now := l.now()
	inbound := in.QuantityChange.IsPositive()

	item, err := l.loadItem(ctx, repos, in, inbound, now)
	if err != nil {
		return nil, nil, err
	}

	layers, err := repos.Layers.ListByItem(ctx, item.ID)
	if err != nil {
		return nil, nil, err
	}
	inventory.SortLayers(layers)

	mov := &entity.StockMovement{
		ID:             uuid.New().String(),
		ItemID:         item.ID,
		QuantityChange: in.QuantityChange,
		Reason:         in.Reason,
		ReferenceType:  ref.Type,
		ReferenceID:    ref.ID,
		Notes:          in.Notes,
		CreatedBy:      in.UserID,
		CreatedAt:      now,
	}

	if inbound {
		cost := *in.UnitCost
		newWAC := inventory.WeightedAverage(item.CurrentQty, item.CurrentWAC, in.QuantityChange, cost)
		ch := inventory.AddLayer(layers, item.ID, in.QuantityChange, cost, l.tolerance, nextLayerSeq(layers), now)
		if ch.Created {
			err = repos.Layers.Create(ctx, ch.Layer)
		} else {
			err = repos.Layers.Update(ctx, ch.Layer)
		}
		if err != nil {
			return nil, nil, err
		}
		item.CurrentQty = item.CurrentQty.Add(in.QuantityChange)
		item.CurrentWAC = newWAC
		if in.UpdateCostPrice {
			item.CostPrice = cost
		}
		mov.UnitCost = cost
	} else {
		qty := in.QuantityChange.Neg()
		if item.CurrentQty.LessThan(qty) {
			return nil, nil, domain.ErrInsufficientStock
		}
		dep, err := inventory.DepleteFIFO(layers, qty, now)
		if err != nil {
			return nil, nil, err
		}
		for _, u := range dep.Updated {
			if err := repos.Layers.Update(ctx, u); err != nil {
				return nil, nil, err
			}
		}
		item.CurrentQty = item.CurrentQty.Sub(qty)
		// Las salidas no cambian el costo promedio; el movimiento registra el vigente.
		mov.UnitCost = item.CurrentWAC
		mov.Depletions = dep.Slices
	}

	item.UpdatedAt = now
	if err := repos.Items.Update(ctx, item); err != nil {
		return nil, nil, err
	}
	mov.RunningQty = item.CurrentQty
	mov.WACAfter = item.CurrentWAC
	if err := repos.Movements.Create(ctx, mov); err != nil {
		return nil, nil, err
	}
	return mov, item, nil
}

// loadItem bloquea la fila del artículo o lo crea en su primera entrada.
func (l *StockLedger) loadItem(ctx context.Context, repos repository.Set, in RecordMovementInput, inbound bool, now time.Time) (*entity.Item, error) {
	if in.ItemID != "" {
		item, err := repos.Items.GetForUpdate(ctx, in.ItemID)
		if err != nil {
			return nil, err
		}
		if item != nil {
			return item, nil
		}
	} else {
		existing, err := repos.Items.GetBySKU(ctx, in.SKU)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, errSKUTaken
		}
	}
	if !inbound || in.SKU == "" {
		return nil, domain.ErrNotFound
	}
	id := in.ItemID
	if id == "" {
		id = uuid.New().String()
	}
	name := in.Name
	if name == "" {
		name = in.SKU
	}
	item := &entity.Item{
		ID:           id,
		SKU:          in.SKU,
		Name:         name,
		CurrentQty:   decimal.Zero,
		CurrentWAC:   decimal.Zero,
		SellingPrice: decimal.Zero,
		CostPrice:    decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repos.Items.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func nextLayerSeq(layers []*entity.CostLayer) int64 {
	var max int64
	for _, l := range layers {
		if l.Seq > max {
			max = l.Seq
		}
	}
	return max + 1
}
