package gps

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"roadsense-edge/internal/observability"
)

// Fix por defecto cuando nunca hubo sensor ni sentencia válida (Delhi).
var defaultFix = Fix{Latitude: 28.6139, Longitude: 77.2090}

// SentenceSource abre el stream de sentencias línea a línea (serial NMEA o
// equivalente). Se inyecta para poder testear con pipes.
type SentenceSource func() (io.ReadCloser, error)

// Reader mantiene el último fix bueno como snapshot. Un solo goroutine
// escribe; el resto lee vía GetLocation sin bloquear.
type Reader struct {
	source SentenceSource
	logger *slog.Logger

	mu      sync.RWMutex
	fix     Fix
	running bool
	stream  io.ReadCloser
}

func NewReader(source SentenceSource, logger *slog.Logger) *Reader {
	return &Reader{
		source: source,
		logger: logger.With("component", "gps"),
		fix:    defaultFix,
	}
}

// DeviceSource abre un device serial (o cualquier archivo línea-orientado).
func DeviceSource(path string) SentenceSource {
	return func() (io.ReadCloser, error) {
		return os.Open(path)
	}
}

// Start arranca la lectura en background. Si el stream no está disponible el
// componente queda en modo degradado con el fix por defecto; nunca es error.
func (r *Reader) Start() {
	stream, err := r.source()
	if err != nil {
		r.logger.Warn("gps: stream unavailable, using default fix", "err", err)
		return
	}

	r.mu.Lock()
	r.stream = stream
	r.running = true
	r.mu.Unlock()

	go r.readLoop(stream)
	r.logger.Info("gps: reader started")
}

func (r *Reader) readLoop(stream io.ReadCloser) {
	sc := bufio.NewScanner(stream)
	for sc.Scan() {
		if !r.isRunning() {
			return
		}
		fix, ok := parseSentence(sc.Text(), r.snapshot())
		if !ok {
			observability.NMEAParseErrors.Inc()
			continue
		}
		fix.SampledAt = time.Now()
		r.mu.Lock()
		r.fix = fix
		r.mu.Unlock()
	}
	if err := sc.Err(); err != nil && err != io.EOF && r.isRunning() {
		r.logger.Warn("gps: read error, keeping last fix", "err", err)
	}
}

// GetLocation devuelve el snapshot actual sin bloquear.
func (r *Reader) GetLocation() Fix {
	return r.snapshot()
}

// Stop termina el loop de lectura y libera el stream.
func (r *Reader) Stop() {
	r.mu.Lock()
	r.running = false
	stream := r.stream
	r.stream = nil
	r.mu.Unlock()
	if stream != nil {
		_ = stream.Close()
	}
}

func (r *Reader) snapshot() Fix {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fix
}

func (r *Reader) isRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}
