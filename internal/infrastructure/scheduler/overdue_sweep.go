// Package scheduler ejecuta tareas periódicas del libro (clasificación de facturas vencidas).
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jhoicas/ledger-api/internal/application/dto"
	"github.com/jhoicas/ledger-api/pkg/logger"
)

// OverdueMarker marca como vencidas las facturas emitidas cuya fecha límite pasó.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, now time.Time) (*dto.OverdueSweepResult, error)
}

// OverdueSweep corre MarkOverdue cada intervalo hasta Stop.
type OverdueSweep struct {
	marker   OverdueMarker
	interval time.Duration
	log      *logger.Logger
	now      func() time.Time

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
}

// NewOverdueSweep construye el barrido. interval <= 0 lo deja desactivado.
func NewOverdueSweep(marker OverdueMarker, interval time.Duration, log *logger.Logger) *OverdueSweep {
	return &OverdueSweep{
		marker:   marker,
		interval: interval,
		log:      log.Component("overdue_sweep"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start inicia el ciclo en segundo plano; ejecuta un barrido inmediato.
func (s *OverdueSweep) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info().Msg("barrido de vencidas desactivado")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.runLoop(ctx)
	s.log.Info().Dur("interval", s.interval).Msg("barrido de vencidas iniciado")
}

// Stop detiene el ciclo y espera al barrido en curso o a que ctx expire.
func (s *OverdueSweep) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *OverdueSweep) runLoop(ctx context.Context) {
	defer s.wg.Done()
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce ejecuta un barrido. Los errores se registran y no detienen el ciclo.
func (s *OverdueSweep) RunOnce(ctx context.Context) int {
	res, err := s.marker.MarkOverdue(ctx, s.now())
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error().Err(err).Msg("barrido de vencidas falló")
		}
		if res == nil {
			return 0
		}
	}
	return len(res.Marked)
}
