package memory

import (
	"github.com/jhoicas/ledger-api/internal/domain/entity"
	"github.com/jhoicas/ledger-api/internal/domain/repository"
)

// tx conjunto de escrituras pendientes. Las lecturas ven primero lo escrito en la propia tx.
type tx struct {
	s        *Store
	readOnly bool

	items        map[string]*entity.Item
	newItems     map[string]bool
	layers       map[string]*entity.CostLayer
	movements    []*entity.StockMovement
	customers    map[string]*entity.Customer
	newCustomers map[string]bool
	invoices     map[string]*entity.Invoice
	newInvoices  map[string]bool
	payments     []*entity.Payment
}

func newTx(s *Store, readOnly bool) *tx {
	return &tx{
		s:            s,
		readOnly:     readOnly,
		items:        make(map[string]*entity.Item),
		newItems:     make(map[string]bool),
		layers:       make(map[string]*entity.CostLayer),
		customers:    make(map[string]*entity.Customer),
		newCustomers: make(map[string]bool),
		invoices:     make(map[string]*entity.Invoice),
		newInvoices:  make(map[string]bool),
	}
}

func (t *tx) set() repository.Set {
	return repository.Set{
		Items:     &itemRepo{t: t},
		Movements: &movementRepo{t: t},
		Layers:    &layerRepo{t: t},
		Customers: &customerRepo{t: t},
		Invoices:  &invoiceRepo{t: t},
		Payments:  &paymentRepo{t: t},
	}
}

// read ejecuta fn sobre el estado confirmado. En View el bloqueo ya está tomado.
func (t *tx) read(fn func()) {
	if !t.readOnly {
		t.s.mu.RLock()
		defer t.s.mu.RUnlock()
	}
	fn()
}

func (t *tx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

// ─── Copias ─────────────────────────────────────────────────────────────────
// Nada guardado en el store se comparte con el caller.

func cloneItem(i *entity.Item) *entity.Item {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

func cloneLayer(l *entity.CostLayer) *entity.CostLayer {
	c := *l
	return &c
}

func cloneMovement(m *entity.StockMovement) *entity.StockMovement {
	c := *m
	c.Depletions = append([]entity.LayerDepletion(nil), m.Depletions...)
	return &c
}

func cloneCustomer(cu *entity.Customer) *entity.Customer {
	if cu == nil {
		return nil
	}
	c := *cu
	return &c
}

func cloneInvoice(inv *entity.Invoice) *entity.Invoice {
	if inv == nil {
		return nil
	}
	c := *inv
	c.Lines = append([]entity.InvoiceLine(nil), inv.Lines...)
	c.DueDate = cloneTime(inv.DueDate)
	c.IssuedAt = cloneTime(inv.IssuedAt)
	c.VoidedAt = cloneTime(inv.VoidedAt)
	return &c
}

func clonePayment(p *entity.Payment) *entity.Payment {
	if p == nil {
		return nil
	}
	c := *p
	c.Allocations = append([]entity.PaymentAllocation(nil), p.Allocations...)
	return &c
}
