package lock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/jhoicas/ledger-api/internal/application/ports"
	"github.com/jhoicas/ledger-api/internal/domain"
	"github.com/jhoicas/ledger-api/pkg/logger"
)

var _ ports.Locker = (*RedisLocker)(nil)

// RedisLocker bloqueo entre instancias con redislock. Primero toma el bloqueo local para
// que las goroutines del mismo proceso esperen sin consultar Redis.
type RedisLocker struct {
	client  *redislock.Client
	local   *KeyedLocker
	timeout time.Duration
	ttl     time.Duration
	prefix  string
	log     *logger.Logger
}

// NewRedisLocker construye el locker. ttl es el lease de cada clave en Redis.
func NewRedisLocker(rdb redis.UniversalClient, timeout, ttl time.Duration, prefix string, log *logger.Logger) *RedisLocker {
	return &RedisLocker{
		client:  redislock.New(rdb),
		local:   NewKeyedLocker(timeout),
		timeout: timeout,
		ttl:     ttl,
		prefix:  prefix,
		log:     log.Component("redis_lock"),
	}
}

// Lock toma las claves en Redis en orden, reintentando con espera lineal hasta el timeout.
func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = Normalize(keys)
	unlockLocal, err := l.local.Lock(ctx, keys...)
	if err != nil {
		return nil, err
	}

	wctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	held := make([]*redislock.Lock, 0, len(keys))
	for _, k := range keys {
		lk, err := l.client.Obtain(wctx, l.prefix+k, l.ttl, &redislock.Options{
			RetryStrategy: redislock.LinearBackoff(25 * time.Millisecond),
		})
		if err != nil {
			l.release(held)
			unlockLocal()
			if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
				return nil, domain.ErrBusy
			}
			return nil, err
		}
		held = append(held, lk)
	}
	return func() {
		l.release(held)
		unlockLocal()
	}, nil
}

func (l *RedisLocker) release(held []*redislock.Lock) {
	for i := len(held) - 1; i >= 0; i-- {
		// Contexto propio: el del request pudo haber expirado.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := held[i].Release(ctx)
		cancel()
		if err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.log.Warn().Err(err).Str("key", held[i].Key()).Msg("no se pudo liberar bloqueo en redis")
		}
	}
}
