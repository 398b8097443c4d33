// Package lock serializa escrituras por clave (artículo, factura, cliente) con espera acotada.
package lock

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jhoicas/ledger-api/internal/application/ports"
	"github.com/jhoicas/ledger-api/internal/domain"
)

var _ ports.Locker = (*KeyedLocker)(nil)

type entry struct {
	sem  *semaphore.Weighted
	refs int // goroutines que tienen o esperan la clave
}

// KeyedLocker bloqueo en proceso: un semáforo de peso 1 por clave activa.
// Las entradas se eliminan cuando nadie las tiene ni las espera.
type KeyedLocker struct {
	mu      sync.Mutex
	entries map[string]*entry
	timeout time.Duration
}

// NewKeyedLocker construye el locker. timeout es la espera máxima por clave.
func NewKeyedLocker(timeout time.Duration) *KeyedLocker {
	return &KeyedLocker{entries: make(map[string]*entry), timeout: timeout}
}

// Lock toma todas las claves en orden. Si alguna no se obtiene a tiempo libera las
// anteriores y devuelve domain.ErrBusy.
func (l *KeyedLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = Normalize(keys)
	acquired := make([]string, 0, len(keys))
	for _, k := range keys {
		if err := l.acquire(ctx, k); err != nil {
			l.releaseAll(acquired)
			return nil, err
		}
		acquired = append(acquired, k)
	}
	var once sync.Once
	return func() { once.Do(func() { l.releaseAll(acquired) }) }, nil
}

func (l *KeyedLocker) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	wctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := e.sem.Acquire(wctx, 1); err != nil {
		l.unref(key, e)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return domain.ErrBusy
	}
	return nil
}

func (l *KeyedLocker) releaseAll(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		l.mu.Lock()
		e := l.entries[keys[i]]
		l.mu.Unlock()
		if e == nil {
			continue
		}
		e.sem.Release(1)
		l.unref(keys[i], e)
	}
}

func (l *KeyedLocker) unref(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 && l.entries[key] == e {
		delete(l.entries, key)
	}
}

// Active cantidad de claves con dueño o en espera.
func (l *KeyedLocker) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Normalize descarta claves vacías y repetidas y las ordena. El orden global evita
// interbloqueos entre operaciones que toman varias claves.
func Normalize(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IsBusy true si err indica que el recurso estaba ocupado.
func IsBusy(err error) bool {
	return errors.Is(err, domain.ErrBusy)
}
