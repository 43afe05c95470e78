package dispatcher

import (
	"log/slog"
	"sync"
	"time"

	"roadsense-edge/internal/observability"
	"roadsense-edge/internal/pipeline"
)

const idleWait = 500 * time.Millisecond

// Deliverer entrega una detección al backend. Una sola tentativa por entrada.
type Deliverer interface {
	PostDetection(record pipeline.DetectionRecord) error
}

// Queue desacopla "hubo una detección" de "la detección quedó persistida":
// buffer acotado, enqueue nunca bloquea, y una entrega best-effort por
// entrada. Cola llena o entrega fallida descartan, sólo queda el contador.
type Queue struct {
	entries   chan pipeline.DetectionRecord
	deliverer Deliverer
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

func NewQueue(capacity int, deliverer Deliverer, lg *slog.Logger) *Queue {
	return &Queue{
		entries:   make(chan pipeline.DetectionRecord, capacity),
		deliverer: deliverer,
		logger:    lg.With("component", "dispatcher"),
	}
}

// Enqueue encola sin bloquear. Con la cola llena la entrada se descarta y el
// caller no se entera más que por el contador.
func (q *Queue) Enqueue(record pipeline.DetectionRecord) {
	select {
	case q.entries <- record:
		observability.DispatchEnqueued.Inc()
	default:
		observability.DispatchDropped.Inc()
		q.logger.Warn("dispatch queue full, dropping detection", "type", record.Type)
	}
}

// Start arranca el worker de drenaje.
func (q *Queue) Start() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.done = make(chan struct{})
	q.mu.Unlock()

	go q.drainLoop()
}

func (q *Queue) drainLoop() {
	defer close(q.done)
	for q.isRunning() {
		select {
		case record := <-q.entries:
			if err := q.deliverer.PostDetection(record); err != nil {
				observability.DispatchFailed.Inc()
				q.logger.Warn("detection delivery failed, discarding", "type", record.Type, "err", err)
			}
		case <-time.After(idleWait):
			// re-chequear el flag de running sin busy-spin
		}
	}
}

// Stop frena el worker cooperativamente. Las entradas en cola se pierden.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	done := q.done
	q.mu.Unlock()
	<-done
}

func (q *Queue) isRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Len es el tamaño actual de la cola (para tests y diagnósticos).
func (q *Queue) Len() int {
	return len(q.entries)
}
