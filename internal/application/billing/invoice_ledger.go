package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/ledger-api/internal/application/dto"
	appinventory "github.com/jhoicas/ledger-api/internal/application/inventory"
	"github.com/jhoicas/ledger-api/internal/application/ports"
	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/internal/domain/billing"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
	"github.com/jhoicas/ledger-api/internal/domain/repository"
	"github.com/jhoicas/ledger-api/pkg/logger"
)

// Códigos de advertencia de factura (no bloquean la operación).
const (
	WarningNegativeMargin  = "NEGATIVE_MARGIN"
	WarningBelowCostPrice  = "BELOW_COST_PRICE"
	WarningDiscountApplied = "DISCOUNT_APPLIED"
)

// InvoiceLedger ciclo de vida de la factura: borrador, emisión (descuenta stock),
// anulación (devuelve stock) y clasificación de vencidas.
type InvoiceLedger struct {
	txRunner     ports.TxRunner
	locker       ports.Locker
	stock        StockRecorder
	log          *logger.Logger
	paymentTerms time.Duration
	now          func() time.Time
}

// NewInvoiceLedger construye el caso de uso. paymentTermsDays define el vencimiento por
// defecto a partir de la emisión.
func NewInvoiceLedger(txRunner ports.TxRunner, locker ports.Locker, stock StockRecorder, log *logger.Logger, paymentTermsDays int) *InvoiceLedger {
	return &InvoiceLedger{
		txRunner:     txRunner,
		locker:       locker,
		stock:        stock,
		log:          log.Component("invoice_ledger"),
		paymentTerms: time.Duration(paymentTermsDays) * 24 * time.Hour,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock reemplaza el reloj (tests y reprocesos con fecha fija).
func (l *InvoiceLedger) WithClock(now func() time.Time) *InvoiceLedger {
	l.now = now
	return l
}

// Create crea la factura en borrador. No toca stock.
// El precio unitario en cero toma el precio de venta del artículo.
func (l *InvoiceLedger) Create(ctx context.Context, userID string, in dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error) {
	if in.CustomerID == "" || len(in.Lines) == 0 {
		return nil, domain.ErrInvalidInput
	}
	if in.Discount.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}
	for _, line := range in.Lines {
		if line.ItemID == "" {
			return nil, domain.ErrInvalidInput
		}
		if !line.Quantity.IsPositive() || line.UnitPrice.IsNegative() {
			return nil, domain.ErrInvalidAmount
		}
	}

	now := l.now()
	inv := &entity.Invoice{
		ID:         uuid.New().String(),
		Number:     strings.TrimSpace(in.Number),
		CustomerID: in.CustomerID,
		Discount:   in.Discount,
		AmountPaid: decimal.Zero,
		Status:     entity.InvoiceStatusDraft,
		DueDate:    in.DueDate,
		CreatedBy:  userID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if inv.Number == "" {
		inv.Number = fmt.Sprintf("INV-%s-%s", now.Format("20060102"), strings.ToUpper(inv.ID[:8]))
	}

	items := make(map[string]*entity.Item)
	err := l.txRunner.Run(ctx, func(repos repository.Set) error {
		customer, err := repos.Customers.GetByID(ctx, in.CustomerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return domain.ErrNotFound
		}
		subtotal := decimal.Zero
		for _, line := range in.Lines {
			item, ok := items[line.ItemID]
			if !ok {
				if item, err = repos.Items.GetByID(ctx, line.ItemID); err != nil {
					return err
				}
				if item == nil {
					return domain.ErrNotFound
				}
				items[line.ItemID] = item
			}
			price := line.UnitPrice
			if price.IsZero() {
				price = item.SellingPrice
			}
			total := line.Quantity.Mul(price)
			subtotal = subtotal.Add(total)
			inv.Lines = append(inv.Lines, entity.InvoiceLine{
				ItemID:      line.ItemID,
				Quantity:    line.Quantity,
				UnitPrice:   price,
				LineTotal:   total,
				UnitCostWAC: decimal.Zero,
				CostWAC:     decimal.Zero,
				CostFIFO:    decimal.Zero,
			})
		}
		if in.Discount.GreaterThan(subtotal) {
			return domain.ErrInvalidAmount
		}
		inv.Subtotal = subtotal
		inv.TotalAmount = subtotal.Sub(in.Discount)
		return repos.Invoices.Create(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	l.log.Info().
		Str("invoice_id", inv.ID).
		Str("customer_id", inv.CustomerID).
		Str("total_amount", inv.TotalAmount.String()).
		Msg("factura creada en borrador")
	res := dto.ToInvoiceResponse(inv, inv.Status)
	res.Warnings = invoiceWarnings(inv, items, false)
	return &res, nil
}

// Issue emite la factura: registra una salida de venta por línea y fija el costo de lo
// vendido (promedio y FIFO). Todo ocurre en una transacción; si una línea falla no queda
// ningún movimiento ni cambio de estado.
func (l *InvoiceLedger) Issue(ctx context.Context, invoiceID, userID string) (*dto.InvoiceResponse, error) {
	draft, err := l.read(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := billing.CheckIssue(draft); err != nil {
		return nil, err
	}

	unlock, err := l.locker.Lock(ctx, lockKeys(draft)...)
	if err != nil {
		l.log.Warn().Err(err).Str("invoice_id", invoiceID).Msg("emisión rechazada: bloqueo ocupado")
		return nil, err
	}
	defer unlock()

	now := l.now()
	var inv *entity.Invoice
	items := make(map[string]*entity.Item)
	err = l.txRunner.Run(ctx, func(repos repository.Set) error {
		var err error
		if inv, err = repos.Invoices.GetForUpdate(ctx, invoiceID); err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrNotFound
		}
		if err := billing.CheckIssue(inv); err != nil {
			return err
		}

		// Cantidad total por artículo antes de tocar el stock.
		required := make(map[string]decimal.Decimal)
		for _, line := range inv.Lines {
			required[line.ItemID] = required[line.ItemID].Add(line.Quantity)
		}
		for itemID, qty := range required {
			item, err := repos.Items.GetForUpdate(ctx, itemID)
			if err != nil {
				return err
			}
			if item == nil {
				return domain.ErrNotFound
			}
			if item.CurrentQty.LessThan(qty) {
				return fmt.Errorf("artículo %s: %w", item.SKU, domain.ErrInsufficientStock)
			}
			items[itemID] = item
		}

		for i := range inv.Lines {
			line := &inv.Lines[i]
			mov, item, err := l.stock.RecordInTx(ctx, repos, appinventory.RecordMovementInput{
				ItemID:         line.ItemID,
				QuantityChange: line.Quantity.Neg(),
				Reason:         entity.ReasonSale,
				Notes:          "factura " + inv.Number,
				UserID:         userID,
			}, appinventory.Reference{Type: entity.ReferenceInvoice, ID: inv.ID})
			if err != nil {
				return err
			}
			items[line.ItemID] = item
			line.UnitCostWAC = mov.UnitCost
			line.CostWAC = line.Quantity.Mul(mov.UnitCost)
			line.CostFIFO = mov.FIFOCost()
		}

		inv.Status = entity.InvoiceStatusIssued
		// Total cero: queda pagada al emitirse.
		inv.Status = billing.StatusAfterPayment(inv)
		inv.IssuedAt = &now
		if inv.DueDate == nil {
			due := now.Add(l.paymentTerms)
			inv.DueDate = &due
		}
		inv.UpdatedAt = now
		return repos.Invoices.Update(ctx, inv)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			l.log.Warn().Err(err).Str("invoice_id", invoiceID).Msg("emisión rechazada: stock insuficiente")
		}
		return nil, err
	}

	wac, fifo := inv.CostOfGoods()
	l.log.Info().
		Str("invoice_id", inv.ID).
		Str("number", inv.Number).
		Str("total_amount", inv.TotalAmount.String()).
		Str("cogs_wac", wac.String()).
		Str("cogs_fifo", fifo.String()).
		Msg("factura emitida")
	res := dto.ToInvoiceResponse(inv, billing.EffectiveStatus(inv, now))
	res.Warnings = invoiceWarnings(inv, items, true)
	return &res, nil
}

// Void anula la factura. Un borrador pasa a anulada sin efecto en stock; una emitida
// registra devoluciones compensatorias por cada porción de capa consumida al emitir y
// aún no devuelta, restaurando cantidad y costo. Los montos quedan congelados.
func (l *InvoiceLedger) Void(ctx context.Context, invoiceID, reason, userID string) (*dto.InvoiceResponse, error) {
	current, err := l.read(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := billing.CheckVoid(current); err != nil {
		return nil, err
	}

	unlock, err := l.locker.Lock(ctx, lockKeys(current)...)
	if err != nil {
		l.log.Warn().Err(err).Str("invoice_id", invoiceID).Msg("anulación rechazada: bloqueo ocupado")
		return nil, err
	}
	defer unlock()

	now := l.now()
	var inv *entity.Invoice
	var restored int
	err = l.txRunner.Run(ctx, func(repos repository.Set) error {
		var err error
		if inv, err = repos.Invoices.GetForUpdate(ctx, invoiceID); err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrNotFound
		}
		if err := billing.CheckVoid(inv); err != nil {
			return err
		}
		if inv.Status != entity.InvoiceStatusDraft {
			movements, err := repos.Movements.ListByReference(ctx, entity.ReferenceInvoice, inv.ID)
			if err != nil {
				return err
			}
			// Lo ya devuelto con Return no se vuelve a ingresar.
			pending := billing.NewReturnable(movements)
			for _, itemID := range pending.Items() {
				for _, in := range returnInputs(itemID, pending.TakeAll(itemID), "anulación factura "+inv.Number, userID) {
					if _, _, err := l.stock.RecordInTx(ctx, repos, in, appinventory.Reference{Type: entity.ReferenceInvoice, ID: inv.ID}); err != nil {
						return err
					}
					restored++
				}
			}
		}
		inv.Status = entity.InvoiceStatusVoided
		inv.VoidedAt = &now
		inv.VoidReason = reason
		inv.UpdatedAt = now
		return repos.Invoices.Update(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	l.log.Info().
		Str("invoice_id", inv.ID).
		Int("return_movements", restored).
		Str("amount_paid", inv.AmountPaid.String()).
		Msg("factura anulada")
	res := dto.ToInvoiceResponse(inv, inv.Status)
	return &res, nil
}

// returnInputs una entrada por porción devuelta, al costo de la capa de origen.
func returnInputs(itemID string, slices []billing.ReturnSlice, notes, userID string) []appinventory.RecordMovementInput {
	out := make([]appinventory.RecordMovementInput, 0, len(slices))
	for _, s := range slices {
		cost := s.UnitCost
		out = append(out, appinventory.RecordMovementInput{
			ItemID: itemID, QuantityChange: s.Qty, Reason: entity.ReasonReturn,
			UnitCost: &cost, Notes: notes, UserID: userID,
		})
	}
	return out
}

// MarkOverdue marca como vencidas las facturas emitidas con due_date anterior a now.
// Es una clasificación: no bloquea pagos. Una factura ocupada se deja para el siguiente barrido.
func (l *InvoiceLedger) MarkOverdue(ctx context.Context, now time.Time) (*dto.OverdueSweepResult, error) {
	var candidates []*entity.Invoice
	err := l.txRunner.View(ctx, func(repos repository.Set) error {
		issued, err := repos.Invoices.ListByStatus(ctx, entity.InvoiceStatusIssued)
		if err != nil {
			return err
		}
		for _, inv := range issued {
			if billing.IsOverdue(inv, now) {
				candidates = append(candidates, inv)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &dto.OverdueSweepResult{Marked: []string{}, At: now}
	for _, c := range candidates {
		marked, err := l.markOverdue(ctx, c.ID, now)
		if errors.Is(err, domain.ErrBusy) {
			l.log.Warn().Str("invoice_id", c.ID).Msg("barrido de vencidas: factura ocupada")
			continue
		}
		if err != nil {
			return res, err
		}
		if marked {
			res.Marked = append(res.Marked, c.ID)
		}
	}
	if len(res.Marked) > 0 {
		l.log.Info().Int("count", len(res.Marked)).Msg("facturas marcadas como vencidas")
	}
	return res, nil
}

func (l *InvoiceLedger) markOverdue(ctx context.Context, invoiceID string, now time.Time) (bool, error) {
	unlock, err := l.locker.Lock(ctx, ports.InvoiceLockKey(invoiceID))
	if err != nil {
		return false, err
	}
	defer unlock()

	var marked bool
	err = l.txRunner.Run(ctx, func(repos repository.Set) error {
		inv, err := repos.Invoices.GetForUpdate(ctx, invoiceID)
		if err != nil || inv == nil || !billing.IsOverdue(inv, now) {
			return err
		}
		inv.Status = entity.InvoiceStatusOverdue
		inv.UpdatedAt = now
		marked = true
		return repos.Invoices.Update(ctx, inv)
	})
	return marked, err
}

// Get obtiene una factura con su saldo y estado efectivo.
func (l *InvoiceLedger) Get(ctx context.Context, invoiceID string) (*dto.InvoiceResponse, error) {
	inv, err := l.read(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	res := dto.ToInvoiceResponse(inv, billing.EffectiveStatus(inv, l.now()))
	return &res, nil
}

// ListByCustomer lista las facturas del cliente, más antiguas primero.
func (l *InvoiceLedger) ListByCustomer(ctx context.Context, customerID string) ([]dto.InvoiceResponse, error) {
	var invoices []*entity.Invoice
	err := l.txRunner.View(ctx, func(repos repository.Set) error {
		customer, err := repos.Customers.GetByID(ctx, customerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return domain.ErrNotFound
		}
		invoices, err = repos.Invoices.ListByCustomer(ctx, customerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(invoices, func(i, j int) bool { return invoices[i].CreatedAt.Before(invoices[j].CreatedAt) })
	now := l.now()
	out := make([]dto.InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, dto.ToInvoiceResponse(inv, billing.EffectiveStatus(inv, now)))
	}
	return out, nil
}

// Payments pagos que tocan la factura: los registrados contra ella y los pagos de
// cliente con alguna asignación a ella.
func (l *InvoiceLedger) Payments(ctx context.Context, invoiceID string) (*dto.InvoicePaymentsResponse, error) {
	var (
		inv      *entity.Invoice
		payments []*entity.Payment
	)
	err := l.txRunner.View(ctx, func(repos repository.Set) error {
		var err error
		if inv, err = repos.Invoices.GetByID(ctx, invoiceID); err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrNotFound
		}
		payments, err = repos.Payments.ListByInvoice(ctx, invoiceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	res := &dto.InvoicePaymentsResponse{
		InvoiceID:  inv.ID,
		AmountPaid: inv.AmountPaid,
		Applied:    decimal.Zero,
		Payments:   make([]dto.PaymentResponse, 0, len(payments)),
	}
	for _, p := range payments {
		for _, a := range p.Allocations {
			if a.InvoiceID == invoiceID {
				res.Applied = res.Applied.Add(a.Amount)
			}
		}
		res.Payments = append(res.Payments, dto.ToPaymentResponse(p, false))
	}
	return res, nil
}

func (l *InvoiceLedger) read(ctx context.Context, invoiceID string) (*entity.Invoice, error) {
	var inv *entity.Invoice
	err := l.txRunner.View(ctx, func(repos repository.Set) error {
		var err error
		inv, err = repos.Invoices.GetByID(ctx, invoiceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	return inv, nil
}

// lockKeys factura y sus artículos; Locker los ordena (invoice:* antes que item:*).
func lockKeys(inv *entity.Invoice) []string {
	keys := []string{ports.InvoiceLockKey(inv.ID)}
	for _, line := range inv.Lines {
		keys = append(keys, ports.ItemLockKey(line.ItemID))
	}
	return keys
}

// invoiceWarnings advertencias de margen por línea. El precio neto reparte el descuento
// en proporción al subtotal. issued indica si se compara contra el costo fijado al emitir.
func invoiceWarnings(inv *entity.Invoice, items map[string]*entity.Item, issued bool) []dto.InvoiceWarning {
	var out []dto.InvoiceWarning
	factor := decimal.NewFromInt(1)
	if inv.Discount.IsPositive() && inv.Subtotal.IsPositive() {
		factor = inv.TotalAmount.Div(inv.Subtotal)
		out = append(out, dto.InvoiceWarning{
			Code:    WarningDiscountApplied,
			Message: fmt.Sprintf("descuento de %s sobre subtotal %s", inv.Discount.StringFixed(2), inv.Subtotal.StringFixed(2)),
		})
	}
	for _, line := range inv.Lines {
		item := items[line.ItemID]
		if item == nil {
			continue
		}
		net := line.UnitPrice.Mul(factor)
		cost := item.CurrentWAC
		if issued {
			cost = line.UnitCostWAC
		}
		if cost.IsPositive() && net.LessThan(cost) {
			out = append(out, dto.InvoiceWarning{
				Code:    WarningNegativeMargin,
				ItemID:  line.ItemID,
				Message: fmt.Sprintf("precio neto %s menor al costo promedio %s", net.StringFixed(2), cost.StringFixed(2)),
			})
		}
		if item.CostPrice.IsPositive() && net.LessThan(item.CostPrice) {
			out = append(out, dto.InvoiceWarning{
				Code:    WarningBelowCostPrice,
				ItemID:  line.ItemID,
				Message: fmt.Sprintf("precio neto %s menor al costo de referencia %s", net.StringFixed(2), item.CostPrice.StringFixed(2)),
			})
		}
	}
	return out
}
