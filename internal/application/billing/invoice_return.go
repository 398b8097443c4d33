package billing

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/ledger-api/internal/application/dto"
	appinventory "github.com/jhoicas/ledger-api/internal/application/inventory"
	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/internal/domain/billing"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
	"github.com/jhoicas/ledger-api/internal/domain/repository"
)

// Return devolución parcial de mercancía de una factura emitida. Reingresa cada cantidad
// al costo de las porciones vendidas más recientes, sin superar lo vendido menos lo ya
// devuelto. No cambia montos ni estado de la factura.
func (l *InvoiceLedger) Return(ctx context.Context, invoiceID, userID string, in dto.ReturnInvoiceRequest) (*dto.InvoiceReturnResponse, error) {
	if len(in.Lines) == 0 {
		return nil, domain.ErrInvalidInput
	}
	// Líneas repetidas del mismo artículo se suman.
	var order []string
	qty := make(map[string]decimal.Decimal)
	for _, line := range in.Lines {
		if line.ItemID == "" {
			return nil, domain.ErrInvalidInput
		}
		if !line.Quantity.IsPositive() {
			return nil, domain.ErrInvalidAmount
		}
		if _, ok := qty[line.ItemID]; !ok {
			order = append(order, line.ItemID)
		}
		qty[line.ItemID] = qty[line.ItemID].Add(line.Quantity)
	}

	current, err := l.read(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := billing.CheckReturn(current); err != nil {
		return nil, err
	}
	onInvoice := make(map[string]bool, len(current.Lines))
	for _, line := range current.Lines {
		onInvoice[line.ItemID] = true
	}
	for _, itemID := range order {
		if !onInvoice[itemID] {
			return nil, domain.ErrInvalidInput
		}
	}

	unlock, err := l.locker.Lock(ctx, lockKeys(current)...)
	if err != nil {
		l.log.Warn().Err(err).Str("invoice_id", invoiceID).Msg("devolución rechazada: bloqueo ocupado")
		return nil, err
	}
	defer unlock()

	notes := "devolución factura " + current.Number
	if reason := strings.TrimSpace(in.Reason); reason != "" {
		notes += ": " + reason
	}
	res := &dto.InvoiceReturnResponse{InvoiceID: current.ID, Number: current.Number}
	err = l.txRunner.Run(ctx, func(repos repository.Set) error {
		inv, err := repos.Invoices.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrNotFound
		}
		if err := billing.CheckReturn(inv); err != nil {
			return err
		}
		movements, err := repos.Movements.ListByReference(ctx, entity.ReferenceInvoice, inv.ID)
		if err != nil {
			return err
		}
		pending := billing.NewReturnable(movements)

		res.Lines = make([]dto.ReturnLineResult, 0, len(order))
		res.Movements = make([]dto.MovementResponse, 0, len(order))
		for _, itemID := range order {
			if !pending.Sold(itemID) {
				return domain.ErrInvalidInput
			}
			slices, err := pending.Take(itemID, qty[itemID])
			if err != nil {
				return err
			}
			line := dto.ReturnLineResult{ItemID: itemID, Returned: qty[itemID], ReturnedCost: decimal.Zero}
			for _, rin := range returnInputs(itemID, slices, notes, userID) {
				m, _, err := l.stock.RecordInTx(ctx, repos, rin, appinventory.Reference{Type: entity.ReferenceInvoice, ID: inv.ID})
				if err != nil {
					return err
				}
				line.ReturnedCost = line.ReturnedCost.Add(m.QuantityChange.Mul(m.UnitCost))
				res.Movements = append(res.Movements, dto.ToMovementResponse(m))
			}
			line.Returnable = pending.Remaining(itemID)
			res.Lines = append(res.Lines, line)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log.Info().
		Str("invoice_id", res.InvoiceID).
		Int("return_movements", len(res.Movements)).
		Msg("devolución registrada")
	return res, nil
}
