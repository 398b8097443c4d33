package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/ledger-api/internal/application/dto"
	"github.com/jhoicas/ledger-api/internal/application/ports"
	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/internal/domain/billing"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
	"github.com/jhoicas/ledger-api/internal/domain/repository"
	"github.com/jhoicas/ledger-api/pkg/logger"
)

const idempotencyPrefix = "payment:"

// PaymentProcessor aplica pagos a facturas y a clientes. Cada pago lleva una clave de
// idempotencia: repetirla devuelve el resultado original sin volver a aplicarlo.
type PaymentProcessor struct {
	txRunner ports.TxRunner
	locker   ports.Locker
	cache    ports.IdempotencyCache
	cacheTTL time.Duration
	log      *logger.Logger
	now      func() time.Time
}

// NewPaymentProcessor construye el caso de uso. cache puede ser nil.
func NewPaymentProcessor(txRunner ports.TxRunner, locker ports.Locker, cache ports.IdempotencyCache, cacheTTL time.Duration, log *logger.Logger) *PaymentProcessor {
	return &PaymentProcessor{
		txRunner: txRunner,
		locker:   locker,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      log.Component("payments"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock reemplaza el reloj (tests y reprocesos con fecha fija).
func (p *PaymentProcessor) WithClock(now func() time.Time) *PaymentProcessor {
	p.now = now
	return p
}

// PaymentInput entrada de un pago. InvoiceID para pagos a factura, CustomerID para pagos
// a nivel de cliente.
type PaymentInput struct {
	InvoiceID      string
	CustomerID     string
	Amount         decimal.Decimal
	Method         string
	IdempotencyKey string
	UserID         string
}

// target identifica la operación asociada a una clave de idempotencia.
// Amount nil acepta cualquier monto (aplicación de crédito).
type target struct {
	invoiceID  string
	customerID string
	method     string
	amount     *decimal.Decimal
}

func (t target) matches(invoiceID, customerID, method string, amount decimal.Decimal) bool {
	if t.invoiceID != invoiceID || t.method != method {
		return false
	}
	if t.invoiceID == "" && t.customerID != customerID {
		return false
	}
	return t.amount == nil || t.amount.Equal(amount)
}

func (in *PaymentInput) normalize() error {
	if in.IdempotencyKey == "" {
		return domain.ErrInvalidInput
	}
	if !in.Amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if in.Method == "" {
		in.Method = entity.PaymentMethodCash
	}
	if !entity.ValidPaymentMethod(in.Method) {
		return domain.ErrInvalidInput
	}
	return nil
}

// ApplyPayment aplica un pago a una factura bajo su bloqueo, junto con el registro del pago.
// Rechaza borradores y anuladas, y cualquier monto mayor al saldo pendiente.
func (p *PaymentProcessor) ApplyPayment(ctx context.Context, in PaymentInput) (*dto.PaymentResponse, error) {
	if in.InvoiceID == "" {
		return nil, domain.ErrInvalidInput
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	amount := in.Amount
	tgt := target{invoiceID: in.InvoiceID, method: in.Method, amount: &amount}
	if res, err := p.cached(ctx, in.IdempotencyKey, tgt); res != nil || err != nil {
		return res, err
	}

	unlock, err := p.locker.Lock(ctx, ports.InvoiceLockKey(in.InvoiceID))
	if err != nil {
		p.log.Warn().Err(err).Str("invoice_id", in.InvoiceID).Msg("pago rechazado: bloqueo ocupado")
		return nil, err
	}
	defer unlock()

	var res *dto.PaymentResponse
	err = p.txRunner.Run(ctx, func(repos repository.Set) error {
		if replay, err := p.replayInTx(ctx, repos, in.IdempotencyKey, tgt); replay != nil || err != nil {
			res = replay
			return err
		}
		inv, err := repos.Invoices.GetForUpdate(ctx, in.InvoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrNotFound
		}
		if err := billing.CheckPayment(inv); err != nil {
			return err
		}
		if in.Amount.GreaterThan(inv.Remaining()) {
			return domain.ErrOverpayment
		}
		now := p.now()
		alloc := applyToInvoice(inv, in.Amount, now)
		if err := repos.Invoices.Update(ctx, inv); err != nil {
			return err
		}
		payment := &entity.Payment{
			ID:             uuid.New().String(),
			IdempotencyKey: in.IdempotencyKey,
			CustomerID:     inv.CustomerID,
			InvoiceID:      inv.ID,
			Amount:         in.Amount,
			Method:         in.Method,
			Allocations:    []entity.PaymentAllocation{alloc},
			Unapplied:      decimal.Zero,
			CreatedBy:      in.UserID,
			CreatedAt:      now,
		}
		if err := repos.Payments.Create(ctx, payment); err != nil {
			return err
		}
		r := dto.ToPaymentResponse(payment, false)
		res = &r
		return nil
	})
	return p.finish(ctx, in, tgt, res, err)
}

// ApplyCustomerPayment aplica un pago del cliente a sus facturas abiertas, vencimiento
// más antiguo primero. El remanente queda como saldo a favor en el pago.
func (p *PaymentProcessor) ApplyCustomerPayment(ctx context.Context, in PaymentInput) (*dto.PaymentResponse, error) {
	if in.CustomerID == "" {
		return nil, domain.ErrInvalidInput
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	amount := in.Amount
	tgt := target{customerID: in.CustomerID, method: in.Method, amount: &amount}
	if res, err := p.cached(ctx, in.IdempotencyKey, tgt); res != nil || err != nil {
		return res, err
	}

	unlock, locked, err := p.lockCustomer(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var res *dto.PaymentResponse
	err = p.txRunner.Run(ctx, func(repos repository.Set) error {
		if replay, err := p.replayInTx(ctx, repos, in.IdempotencyKey, tgt); replay != nil || err != nil {
			res = replay
			return err
		}
		open, err := lockedOpenInvoices(ctx, repos, in.CustomerID, locked)
		if err != nil {
			return err
		}
		now := p.now()
		allocs, rest := billing.Allocate(open, in.Amount)
		payment := &entity.Payment{
			ID:             uuid.New().String(),
			IdempotencyKey: in.IdempotencyKey,
			CustomerID:     in.CustomerID,
			Amount:         in.Amount,
			Method:         in.Method,
			Unapplied:      rest,
			CreatedBy:      in.UserID,
			CreatedAt:      now,
		}
		for _, a := range allocs {
			payment.Allocations = append(payment.Allocations, applyToInvoice(a.Invoice, a.Amount, now))
			if err := repos.Invoices.Update(ctx, a.Invoice); err != nil {
				return err
			}
		}
		if err := repos.Payments.Create(ctx, payment); err != nil {
			return err
		}
		r := dto.ToPaymentResponse(payment, false)
		res = &r
		return nil
	})
	return p.finish(ctx, in, tgt, res, err)
}

// ApplyCustomerCredit consume el saldo a favor del cliente contra sus facturas abiertas,
// vencimiento más antiguo primero. Se registra como pago con método credit por lo aplicado.
func (p *PaymentProcessor) ApplyCustomerCredit(ctx context.Context, customerID, idempotencyKey, userID string) (*dto.PaymentResponse, error) {
	if customerID == "" || idempotencyKey == "" {
		return nil, domain.ErrInvalidInput
	}
	in := PaymentInput{CustomerID: customerID, Method: entity.PaymentMethodCredit, IdempotencyKey: idempotencyKey, UserID: userID}
	tgt := target{customerID: customerID, method: entity.PaymentMethodCredit}
	if res, err := p.cached(ctx, idempotencyKey, tgt); res != nil || err != nil {
		return res, err
	}

	unlock, locked, err := p.lockCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var res *dto.PaymentResponse
	err = p.txRunner.Run(ctx, func(repos repository.Set) error {
		if replay, err := p.replayInTx(ctx, repos, idempotencyKey, tgt); replay != nil || err != nil {
			res = replay
			return err
		}
		payments, err := repos.Payments.ListByCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		available := billing.ProjectBalance(customerID, nil, payments).UnappliedCredit
		if !available.IsPositive() {
			return domain.ErrInvalidAmount
		}
		open, err := lockedOpenInvoices(ctx, repos, customerID, locked)
		if err != nil {
			return err
		}
		allocs, rest := billing.Allocate(open, available)
		applied := available.Sub(rest)
		if !applied.IsPositive() {
			return domain.ErrInvalidAmount
		}
		now := p.now()
		payment := &entity.Payment{
			ID:             uuid.New().String(),
			IdempotencyKey: idempotencyKey,
			CustomerID:     customerID,
			Amount:         applied,
			Method:         entity.PaymentMethodCredit,
			Unapplied:      decimal.Zero,
			CreatedBy:      userID,
			CreatedAt:      now,
		}
		for _, a := range allocs {
			payment.Allocations = append(payment.Allocations, applyToInvoice(a.Invoice, a.Amount, now))
			if err := repos.Invoices.Update(ctx, a.Invoice); err != nil {
				return err
			}
		}
		if err := repos.Payments.Create(ctx, payment); err != nil {
			return err
		}
		r := dto.ToPaymentResponse(payment, false)
		res = &r
		return nil
	})
	in.Amount = decimal.Zero
	if res != nil {
		in.Amount = res.Amount
	}
	return p.finish(ctx, in, tgt, res, err)
}

// lockCustomer toma el bloqueo del cliente y luego el de sus facturas abiertas.
// Devuelve el conjunto de facturas bloqueadas; una factura emitida después de leerlas
// queda fuera de esta asignación.
func (p *PaymentProcessor) lockCustomer(ctx context.Context, customerID string) (func(), map[string]bool, error) {
	unlockCustomer, err := p.locker.Lock(ctx, ports.CustomerLockKey(customerID))
	if err != nil {
		p.log.Warn().Err(err).Str("customer_id", customerID).Msg("pago rechazado: bloqueo ocupado")
		return nil, nil, err
	}
	var open []*entity.Invoice
	err = p.txRunner.View(ctx, func(repos repository.Set) error {
		customer, err := repos.Customers.GetByID(ctx, customerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return domain.ErrNotFound
		}
		invoices, err := repos.Invoices.ListByCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		open = billing.OpenInvoices(invoices)
		return nil
	})
	if err != nil {
		unlockCustomer()
		return nil, nil, err
	}
	locked := make(map[string]bool, len(open))
	keys := make([]string, 0, len(open))
	for _, inv := range open {
		locked[inv.ID] = true
		keys = append(keys, ports.InvoiceLockKey(inv.ID))
	}
	unlockInvoices, err := p.locker.Lock(ctx, keys...)
	if err != nil {
		unlockCustomer()
		p.log.Warn().Err(err).Str("customer_id", customerID).Msg("pago rechazado: bloqueo ocupado")
		return nil, nil, err
	}
	return func() {
		unlockInvoices()
		unlockCustomer()
	}, locked, nil
}

// lockedOpenInvoices relee con bloqueo de fila las facturas abiertas ya bloqueadas.
func lockedOpenInvoices(ctx context.Context, repos repository.Set, customerID string, locked map[string]bool) ([]*entity.Invoice, error) {
	invoices, err := repos.Invoices.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	var rows []*entity.Invoice
	for _, inv := range billing.OpenInvoices(invoices) {
		if !locked[inv.ID] {
			continue
		}
		row, err := repos.Invoices.GetForUpdate(ctx, inv.ID)
		if err != nil {
			return nil, err
		}
		if row != nil {
			rows = append(rows, row)
		}
	}
	return billing.OpenInvoices(rows), nil
}

// applyToInvoice suma amount a lo pagado y devuelve la asignación con el estado resultante.
func applyToInvoice(inv *entity.Invoice, amount decimal.Decimal, now time.Time) entity.PaymentAllocation {
	inv.AmountPaid = inv.AmountPaid.Add(amount)
	inv.Status = billing.StatusAfterPayment(inv)
	inv.UpdatedAt = now
	return entity.PaymentAllocation{
		InvoiceID:       inv.ID,
		Amount:          amount,
		AmountPaidAfter: inv.AmountPaid,
		StatusAfter:     inv.Status,
	}
}

// replayInTx verificación autoritativa de la clave dentro de la transacción.
func (p *PaymentProcessor) replayInTx(ctx context.Context, repos repository.Set, key string, tgt target) (*dto.PaymentResponse, error) {
	existing, err := repos.Payments.GetByIdempotencyKey(ctx, key)
	if err != nil || existing == nil {
		return nil, err
	}
	if !tgt.matches(existing.InvoiceID, existing.CustomerID, existing.Method, existing.Amount) {
		return nil, domain.ErrIdempotencyConflict
	}
	res := dto.ToPaymentResponse(existing, true)
	return &res, nil
}

// cached atajo por la caché de resultados. Errores de la caché no bloquean el pago.
func (p *PaymentProcessor) cached(ctx context.Context, key string, tgt target) (*dto.PaymentResponse, error) {
	if p.cache == nil {
		return nil, nil
	}
	raw, ok, err := p.cache.Get(ctx, idempotencyPrefix+key)
	if err != nil {
		p.log.Warn().Err(err).Str("idempotency_key", key).Msg("caché de idempotencia no disponible")
		return nil, nil
	}
	if !ok {
		return nil, nil
	}
	var res dto.PaymentResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, nil
	}
	if !tgt.matches(res.InvoiceID, res.CustomerID, res.Method, res.Amount) {
		return nil, domain.ErrIdempotencyConflict
	}
	res.Replayed = true
	return &res, nil
}

// finish registra el resultado y lo guarda en caché. Una clave duplicada al insertar
// (carrera entre instancias) se resuelve releyendo el pago ganador.
func (p *PaymentProcessor) finish(ctx context.Context, in PaymentInput, tgt target, res *dto.PaymentResponse, err error) (*dto.PaymentResponse, error) {
	if errors.Is(err, domain.ErrDuplicate) {
		err = p.txRunner.View(ctx, func(repos repository.Set) error {
			var rerr error
			res, rerr = p.replayInTx(ctx, repos, in.IdempotencyKey, tgt)
			if rerr == nil && res == nil {
				rerr = domain.ErrDuplicate
			}
			return rerr
		})
	}
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrOverpayment), errors.Is(err, domain.ErrInvalidStateTransition), errors.Is(err, domain.ErrIdempotencyConflict):
			p.log.Warn().Err(err).
				Str("invoice_id", in.InvoiceID).
				Str("customer_id", in.CustomerID).
				Str("amount", in.Amount.String()).
				Str("idempotency_key", in.IdempotencyKey).
				Msg("pago rechazado")
		}
		return nil, err
	}
	if res.Replayed {
		return res, nil
	}
	if p.cache != nil {
		if raw, mErr := json.Marshal(res); mErr == nil {
			if cErr := p.cache.Set(ctx, idempotencyPrefix+in.IdempotencyKey, raw, p.cacheTTL); cErr != nil {
				p.log.Warn().Err(cErr).Str("idempotency_key", in.IdempotencyKey).Msg("no se pudo guardar en caché de idempotencia")
			}
		}
	}
	p.log.Info().
		Str("payment_id", res.PaymentID).
		Str("invoice_id", res.InvoiceID).
		Str("customer_id", res.CustomerID).
		Str("amount", res.Amount.String()).
		Str("method", res.Method).
		Int("allocations", len(res.Allocations)).
		Str("unapplied", res.Unapplied.String()).
		Msg("pago aplicado")
	return res, nil
}
