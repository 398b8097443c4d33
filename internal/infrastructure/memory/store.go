// Package memory implementa los repositorios sobre mapas en memoria con transacciones:
// cada Run acumula sus escrituras y las aplica de una vez al confirmar.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jhoicas/ledger-api/internal/application/ports"
	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/internal/domain/entity"
	"github.com/jhoicas/ledger-api/internal/domain/repository"
)

var _ ports.TxRunner = (*Store)(nil)

// Store estado confirmado. Las escrituras solo ocurren en commit, bajo mu.
type Store struct {
	mu sync.RWMutex

	items     map[string]*entity.Item
	skuIndex  map[string]string // sku -> item id
	layers    map[string]map[string]*entity.CostLayer
	movements map[string][]*entity.StockMovement // por artículo, en orden de Seq
	byRef     map[string][]*entity.StockMovement // reference_type:reference_id
	customers map[string]*entity.Customer
	invoices  map[string]*entity.Invoice
	numbers   map[string]string // número de factura -> invoice id
	byCust    map[string][]string // customer id -> invoice ids
	payments  map[string]*entity.Payment
	payKeys   map[string]string // idempotency key -> payment id
	payOrder  []string

	seq atomic.Int64
}

// NewStore crea un store vacío.
func NewStore() *Store {
	return &Store{
		items:     make(map[string]*entity.Item),
		skuIndex:  make(map[string]string),
		layers:    make(map[string]map[string]*entity.CostLayer),
		movements: make(map[string][]*entity.StockMovement),
		byRef:     make(map[string][]*entity.StockMovement),
		customers: make(map[string]*entity.Customer),
		invoices:  make(map[string]*entity.Invoice),
		numbers:   make(map[string]string),
		byCust:    make(map[string][]string),
		payments:  make(map[string]*entity.Payment),
		payKeys:   make(map[string]string),
	}
}

// Run ejecuta fn con repositorios que acumulan escrituras; si fn no falla se confirman
// todas juntas. Las claves únicas (sku, clave de idempotencia, número de factura) se
// verifican al confirmar.
func (s *Store) Run(ctx context.Context, fn func(repos repository.Set) error) error {
	t := newTx(s, false)
	if err := fn(t.set()); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(t)
}

// View ejecuta fn sobre una instantánea consistente: mantiene el bloqueo de lectura
// durante toda la función, así ningún commit queda visible a medias.
func (s *Store) View(ctx context.Context, fn func(repos repository.Set) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(newTx(s, true).set())
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Restricciones únicas antes de aplicar cualquier cambio.
	newSKUs := make(map[string]string)
	for id := range t.newItems {
		sku := t.items[id].SKU
		if owner, ok := s.skuIndex[sku]; ok && owner != id {
			return domain.ErrDuplicate
		}
		if owner, ok := newSKUs[sku]; ok && owner != id {
			return domain.ErrDuplicate
		}
		if _, ok := s.items[id]; ok {
			return domain.ErrDuplicate
		}
		newSKUs[sku] = id
	}
	newKeys := make(map[string]bool)
	for _, p := range t.payments {
		if _, ok := s.payKeys[p.IdempotencyKey]; ok || newKeys[p.IdempotencyKey] {
			return domain.ErrDuplicate
		}
		newKeys[p.IdempotencyKey] = true
	}
	for id := range t.newCustomers {
		if _, ok := s.customers[id]; ok {
			return domain.ErrDuplicate
		}
	}
	newNumbers := make(map[string]string)
	for id := range t.newInvoices {
		if _, ok := s.invoices[id]; ok {
			return domain.ErrDuplicate
		}
		number := t.invoices[id].Number
		if _, ok := s.numbers[number]; ok {
			return domain.ErrDuplicate
		}
		if owner, ok := newNumbers[number]; ok && owner != id {
			return domain.ErrDuplicate
		}
		newNumbers[number] = id
	}

	for id, item := range t.items {
		s.items[id] = item
		s.skuIndex[item.SKU] = id
	}
	for _, layer := range t.layers {
		byItem := s.layers[layer.ItemID]
		if byItem == nil {
			byItem = make(map[string]*entity.CostLayer)
			s.layers[layer.ItemID] = byItem
		}
		byItem[layer.ID] = layer
	}
	for _, m := range t.movements {
		s.movements[m.ItemID] = append(s.movements[m.ItemID], m)
		if m.ReferenceID != "" {
			k := refKey(m.ReferenceType, m.ReferenceID)
			s.byRef[k] = append(s.byRef[k], m)
		}
	}
	for id, c := range t.customers {
		s.customers[id] = c
	}
	for id, inv := range t.invoices {
		if t.newInvoices[id] {
			s.byCust[inv.CustomerID] = append(s.byCust[inv.CustomerID], id)
			s.numbers[inv.Number] = id
		}
		s.invoices[id] = inv
	}
	for _, p := range t.payments {
		s.payments[p.ID] = p
		s.payKeys[p.IdempotencyKey] = p.ID
		s.payOrder = append(s.payOrder, p.ID)
	}
	return nil
}

func refKey(refType, refID string) string { return refType + ":" + refID }
