package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
	"github.com/jhoicas/ledger-api/internal/domain/repository"
)

var errReadOnly = errors.New("memory: escritura en transacción de solo lectura")

var (
	_ repository.ItemRepository          = (*itemRepo)(nil)
	_ repository.StockMovementRepository = (*movementRepo)(nil)
	_ repository.CostLayerRepository     = (*layerRepo)(nil)
	_ repository.CustomerRepository      = (*customerRepo)(nil)
	_ repository.InvoiceRepository       = (*invoiceRepo)(nil)
	_ repository.PaymentRepository       = (*paymentRepo)(nil)
)

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func inRange(at time.Time, from, to *time.Time) bool {
	if from != nil && at.Before(*from) {
		return false
	}
	if to != nil && at.After(*to) {
		return false
	}
	return true
}

// ─── Items ──────────────────────────────────────────────────────────────────

type itemRepo struct{ t *tx }

func (r *itemRepo) Create(_ context.Context, item *entity.Item) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	if _, ok := r.t.items[item.ID]; ok {
		return domain.ErrDuplicate
	}
	r.t.items[item.ID] = cloneItem(item)
	r.t.newItems[item.ID] = true
	return nil
}

func (r *itemRepo) GetByID(_ context.Context, id string) (*entity.Item, error) {
	if item, ok := r.t.items[id]; ok {
		return cloneItem(item), nil
	}
	var out *entity.Item
	r.t.read(func() { out = cloneItem(r.t.s.items[id]) })
	return out, nil
}

func (r *itemRepo) GetBySKU(ctx context.Context, sku string) (*entity.Item, error) {
	for _, item := range r.t.items {
		if item.SKU == sku {
			return cloneItem(item), nil
		}
	}
	var id string
	r.t.read(func() { id = r.t.s.skuIndex[sku] })
	if id == "" {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

// GetForUpdate la serialización la da el Locker; aquí es una lectura normal.
func (r *itemRepo) GetForUpdate(ctx context.Context, id string) (*entity.Item, error) {
	return r.GetByID(ctx, id)
}

func (r *itemRepo) Update(ctx context.Context, item *entity.Item) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	existing, _ := r.GetByID(ctx, item.ID)
	if existing == nil {
		return domain.ErrNotFound
	}
	r.t.items[item.ID] = cloneItem(item)
	return nil
}

func (r *itemRepo) List(_ context.Context, limit, offset int) ([]*entity.Item, error) {
	merged := make(map[string]*entity.Item)
	r.t.read(func() {
		for id, item := range r.t.s.items {
			merged[id] = item
		}
	})
	for id, item := range r.t.items {
		merged[id] = item
	}
	list := make([]*entity.Item, 0, len(merged))
	for _, item := range merged {
		list = append(list, cloneItem(item))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].SKU < list[j].SKU })
	return paginate(list, limit, offset), nil
}

func paginate[T any](list []T, limit, offset int) []T {
	if offset >= len(list) {
		return []T{}
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}

// ─── Movimientos ────────────────────────────────────────────────────────────

type movementRepo struct{ t *tx }

func (r *movementRepo) Create(_ context.Context, m *entity.StockMovement) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	m.Seq = r.t.s.seq.Add(1)
	r.t.movements = append(r.t.movements, cloneMovement(m))
	return nil
}

func (r *movementRepo) ListByItem(_ context.Context, itemID string, from, to *time.Time) ([]*entity.StockMovement, error) {
	var list []*entity.StockMovement
	r.t.read(func() {
		for _, m := range r.t.s.movements[itemID] {
			if inRange(m.CreatedAt, from, to) {
				list = append(list, cloneMovement(m))
			}
		}
	})
	for _, m := range r.t.movements {
		if m.ItemID == itemID && inRange(m.CreatedAt, from, to) {
			list = append(list, cloneMovement(m))
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Seq < list[j].Seq })
	return list, nil
}

func (r *movementRepo) ListByReference(_ context.Context, referenceType, referenceID string) ([]*entity.StockMovement, error) {
	var list []*entity.StockMovement
	r.t.read(func() {
		for _, m := range r.t.s.byRef[refKey(referenceType, referenceID)] {
			list = append(list, cloneMovement(m))
		}
	})
	for _, m := range r.t.movements {
		if m.ReferenceType == referenceType && m.ReferenceID == referenceID {
			list = append(list, cloneMovement(m))
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Seq < list[j].Seq })
	return list, nil
}

// ─── Capas ──────────────────────────────────────────────────────────────────

type layerRepo struct{ t *tx }

func (r *layerRepo) ListByItem(_ context.Context, itemID string) ([]*entity.CostLayer, error) {
	merged := make(map[string]*entity.CostLayer)
	r.t.read(func() {
		for id, l := range r.t.s.layers[itemID] {
			merged[id] = l
		}
	})
	for id, l := range r.t.layers {
		if l.ItemID == itemID {
			merged[id] = l
		}
	}
	list := make([]*entity.CostLayer, 0, len(merged))
	for _, l := range merged {
		list = append(list, cloneLayer(l))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Seq < list[j].Seq })
	return list, nil
}

func (r *layerRepo) Create(_ context.Context, layer *entity.CostLayer) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	r.t.layers[layer.ID] = cloneLayer(layer)
	return nil
}

func (r *layerRepo) Update(_ context.Context, layer *entity.CostLayer) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	if _, ok := r.t.layers[layer.ID]; !ok {
		var found bool
		r.t.read(func() { _, found = r.t.s.layers[layer.ItemID][layer.ID] })
		if !found {
			return domain.ErrNotFound
		}
	}
	r.t.layers[layer.ID] = cloneLayer(layer)
	return nil
}

// ─── Clientes ───────────────────────────────────────────────────────────────

type customerRepo struct{ t *tx }

func (r *customerRepo) Create(_ context.Context, c *entity.Customer) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	r.t.customers[c.ID] = cloneCustomer(c)
	r.t.newCustomers[c.ID] = true
	return nil
}

func (r *customerRepo) GetByID(_ context.Context, id string) (*entity.Customer, error) {
	if c, ok := r.t.customers[id]; ok {
		return cloneCustomer(c), nil
	}
	var out *entity.Customer
	r.t.read(func() { out = cloneCustomer(r.t.s.customers[id]) })
	return out, nil
}

func (r *customerRepo) List(_ context.Context, limit, offset int) ([]*entity.Customer, error) {
	merged := make(map[string]*entity.Customer)
	r.t.read(func() {
		for id, c := range r.t.s.customers {
			merged[id] = c
		}
	})
	for id, c := range r.t.customers {
		merged[id] = c
	}
	list := make([]*entity.Customer, 0, len(merged))
	for _, c := range merged {
		list = append(list, cloneCustomer(c))
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID < list[j].ID
	})
	return paginate(list, limit, offset), nil
}

// ─── Facturas ───────────────────────────────────────────────────────────────

type invoiceRepo struct{ t *tx }

func (r *invoiceRepo) Create(_ context.Context, inv *entity.Invoice) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	r.t.invoices[inv.ID] = cloneInvoice(inv)
	r.t.newInvoices[inv.ID] = true
	return nil
}

func (r *invoiceRepo) Update(ctx context.Context, inv *entity.Invoice) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	existing, _ := r.GetByID(ctx, inv.ID)
	if existing == nil {
		return domain.ErrNotFound
	}
	r.t.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (r *invoiceRepo) GetByID(_ context.Context, id string) (*entity.Invoice, error) {
	if inv, ok := r.t.invoices[id]; ok {
		return cloneInvoice(inv), nil
	}
	var out *entity.Invoice
	r.t.read(func() { out = cloneInvoice(r.t.s.invoices[id]) })
	return out, nil
}

func (r *invoiceRepo) GetForUpdate(ctx context.Context, id string) (*entity.Invoice, error) {
	return r.GetByID(ctx, id)
}

func (r *invoiceRepo) ListByCustomer(_ context.Context, customerID string) ([]*entity.Invoice, error) {
	return r.list(func(inv *entity.Invoice) bool { return inv.CustomerID == customerID }, customerID), nil
}

func (r *invoiceRepo) ListByStatus(_ context.Context, status string) ([]*entity.Invoice, error) {
	return r.list(func(inv *entity.Invoice) bool { return inv.Status == status }, ""), nil
}

// list filtra facturas confirmadas y pendientes; con customerID usa el índice por cliente.
func (r *invoiceRepo) list(keep func(*entity.Invoice) bool, customerID string) []*entity.Invoice {
	merged := make(map[string]*entity.Invoice)
	r.t.read(func() {
		if customerID != "" {
			for _, id := range r.t.s.byCust[customerID] {
				merged[id] = r.t.s.invoices[id]
			}
			return
		}
		for id, inv := range r.t.s.invoices {
			merged[id] = inv
		}
	})
	for id, inv := range r.t.invoices {
		merged[id] = inv
	}
	list := make([]*entity.Invoice, 0, len(merged))
	for _, inv := range merged {
		if keep(inv) {
			list = append(list, cloneInvoice(inv))
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// ─── Pagos ──────────────────────────────────────────────────────────────────

type paymentRepo struct{ t *tx }

func (r *paymentRepo) Create(ctx context.Context, p *entity.Payment) error {
	if err := r.t.writable(); err != nil {
		return err
	}
	existing, _ := r.GetByIdempotencyKey(ctx, p.IdempotencyKey)
	if existing != nil {
		return domain.ErrDuplicate
	}
	r.t.payments = append(r.t.payments, clonePayment(p))
	return nil
}

func (r *paymentRepo) GetByIdempotencyKey(_ context.Context, key string) (*entity.Payment, error) {
	for _, p := range r.t.payments {
		if p.IdempotencyKey == key {
			return clonePayment(p), nil
		}
	}
	var out *entity.Payment
	r.t.read(func() {
		if id, ok := r.t.s.payKeys[key]; ok {
			out = clonePayment(r.t.s.payments[id])
		}
	})
	return out, nil
}

func (r *paymentRepo) ListByCustomer(_ context.Context, customerID string) ([]*entity.Payment, error) {
	return r.list(func(p *entity.Payment) bool { return p.CustomerID == customerID }), nil
}

// ListByInvoice pagos directos a la factura y pagos de cliente asignados a ella.
func (r *paymentRepo) ListByInvoice(_ context.Context, invoiceID string) ([]*entity.Payment, error) {
	return r.list(func(p *entity.Payment) bool {
		if p.InvoiceID == invoiceID {
			return true
		}
		for _, a := range p.Allocations {
			if a.InvoiceID == invoiceID {
				return true
			}
		}
		return false
	}), nil
}

func (r *paymentRepo) list(keep func(*entity.Payment) bool) []*entity.Payment {
	var list []*entity.Payment
	r.t.read(func() {
		for _, id := range r.t.s.payOrder {
			if p := r.t.s.payments[id]; keep(p) {
				list = append(list, clonePayment(p))
			}
		}
	})
	for _, p := range r.t.payments {
		if keep(p) {
			list = append(list, clonePayment(p))
		}
	}
	return list
}
