package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/suuupra/upi-switch/internal/metrics"
	"github.com/suuupra/upi-switch/internal/models"
	"github.com/suuupra/upi-switch/internal/worker"
)

// Emitter decouples event publication from the request path. Emit never
// blocks and never fails the caller: a full queue or a broker error is
// logged and counted, nothing more.
type Emitter struct {
	pub     Publisher
	pool    *worker.Pool
	log     *slog.Logger
	timeout time.Duration
}

func NewEmitter(pub Publisher, pool *worker.Pool, log *slog.Logger) *Emitter {
	return &Emitter{pub: pub, pool: pool, log: log, timeout: 5 * time.Second}
}

func (e *Emitter) Emit(events ...models.TransactionEvent) {
	for _, ev := range events {
		ev := ev
		ok := e.pool.TrySubmit(func() {
			ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
			defer cancel()
			if err := e.pub.Publish(ctx, ev); err != nil {
				metrics.EventsDropped.Inc()
				e.log.Warn("event publish failed",
					"transaction_id", ev.TransactionID,
					"event_type", ev.EventType,
					"err", err)
			}
		})
		if !ok {
			metrics.EventsDropped.Inc()
			e.log.Warn("event queue full, dropping event",
				"transaction_id", ev.TransactionID,
				"event_type", ev.EventType)
		}
	}
	metrics.WorkerQueueDepth.Set(float64(e.pool.Depth()))
}
