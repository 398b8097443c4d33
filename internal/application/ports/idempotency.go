package ports

import (
	"context"
	"time"
)

// IdempotencyCache guarda el resultado serializado de una operación por clave.
// Es solo un atajo: la verificación autoritativa es la clave única del pago.
type IdempotencyCache interface {
	// Get devuelve (nil, false, nil) si la clave no está o expiró.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
