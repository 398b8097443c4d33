// Package cache guarda resultados de operaciones idempotentes (pagos) por clave con TTL.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jhoicas/ledger-api/internal/application/ports"
)

var _ ports.IdempotencyCache = (*MemoryCache)(nil)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache caché en memoria para una sola instancia y tests.
// Una goroutine elimina periódicamente las entradas vencidas.
type MemoryCache struct {
	mu        sync.RWMutex
	entries   map[string]entry
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	now       func() time.Time
}

// NewMemoryCache crea la caché e inicia la limpieza cada cleanupEvery.
func NewMemoryCache(cleanupEvery time.Duration) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]entry),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	c.wg.Add(1)
	go c.cleanupLoop(cleanupEvery)
	return c
}

// Get devuelve el valor si existe y no venció.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Set guarda el valor; ttl <= 0 no guarda nada.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: append([]byte(nil), value...), expiresAt: c.now().Add(ttl)}
	return nil
}

// Close detiene la limpieza. Se puede llamar varias veces.
func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()
	})
	return nil
}

// Size cantidad de entradas, incluidas las vencidas aún no limpiadas.
func (c *MemoryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) cleanupLoop(every time.Duration) {
	defer c.wg.Done()
	if every <= 0 {
		every = 5 * time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *MemoryCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}
