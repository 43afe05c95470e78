package edge

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"time"

	"roadsense-edge/internal/gps"
	"roadsense-edge/internal/health"
	"roadsense-edge/internal/observability"
	"roadsense-edge/internal/pipeline"
	"roadsense-edge/internal/store"
)

// Frame es un sample capturado ya codificado (buffer opaco para el core).
type Frame struct {
	JPEG   []byte
	Width  int
	Height int
}

// Capture es el colaborador de captura de imagen.
type Capture interface {
	Read() (Frame, error)
	Close() error
}

// Detector es el colaborador de inferencia: cajas crudas por sample.
type Detector interface {
	Detect(frame Frame) ([]pipeline.RawDetection, error)
}

// Uplink es lo que el loop necesita del transporte dual.
type Uplink interface {
	SendFrame(frame pipeline.TelemetryFrame)
	SendStatus(status pipeline.DeviceStatus)
	Heartbeat() error
	Ping() error
}

// Dispatch encola detecciones para persistencia best-effort.
type Dispatch interface {
	Enqueue(record pipeline.DetectionRecord)
}

// Locator expone el snapshot de GPS sin bloquear.
type Locator interface {
	GetLocation() gps.Fix
}

type Options struct {
	DeviceID       string
	FrameSkip      int
	StatusPeriod   time.Duration
	HeartbeatEvery time.Duration
	GPSLive        bool // false => el fix es el de referencia, se reporta "Mock"
}

// Loop orquesta una iteración por sample capturado: clasifica, fusiona
// GPS + vitals, envía el frame (throttled) y encola detecciones. Los hilos de
// fondo (GPS, despacho, keep-alive) se frenan por flag cooperativo.
type Loop struct {
	opts     Options
	capture  Capture
	detector Detector
	locator  Locator
	monitor  *health.Monitor
	uplink   Uplink
	dispatch Dispatch
	logger   *slog.Logger

	fps            fpsWindow
	sampleCount    int
	detectionTotal int
	lastStatus     time.Time

	mu      sync.Mutex
	running bool
}

func NewLoop(opts Options, capture Capture, detector Detector, locator Locator,
	monitor *health.Monitor, uplink Uplink, dispatch Dispatch, lg *slog.Logger) (*Loop, error) {

	if capture == nil {
		return nil, errors.New("edge: capture collaborator is required")
	}
	if detector == nil {
		return nil, errors.New("edge: detector collaborator is required")
	}
	if locator == nil || monitor == nil || uplink == nil || dispatch == nil {
		return nil, errors.New("edge: missing collaborator")
	}
	if opts.FrameSkip < 1 {
		opts.FrameSkip = 1
	}
	if opts.StatusPeriod <= 0 {
		opts.StatusPeriod = 5 * time.Second
	}
	return &Loop{
		opts:     opts,
		capture:  capture,
		detector: detector,
		locator:  locator,
		monitor:  monitor,
		uplink:   uplink,
		dispatch: dispatch,
		logger:   lg.With("component", "edge"),
	}, nil
}

// Run es el loop principal. Bloquea hasta Stop().
func (l *Loop) Run() {
	l.mu.Lock()
	l.running = true
	l.mu.Unlock()

	go l.keepAliveLoop()

	l.logger.Info("edge loop started",
		"device", l.opts.DeviceID,
		"frame_skip", l.opts.FrameSkip,
		"status_period", l.opts.StatusPeriod.String())

	for l.isRunning() {
		frame, err := l.capture.Read()
		if err != nil {
			l.logger.Warn("frame capture failed", "err", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		raws, err := l.detector.Detect(frame)
		if err != nil {
			// inferencia degradada: el sample igual cuenta para el FPS
			l.logger.Warn("inference failed on sample", "err", err)
			raws = nil
		}

		l.HandleSample(frame, raws, time.Now())
	}

	// los contadores los escribe sólo este goroutine: el log final sale acá
	// y no en Stop, que corre en el hilo del caller
	l.logger.Info("edge loop stopped", "samples", l.sampleCount, "detections", l.detectionTotal)
}

// HandleSample procesa una iteración: todo sample alimenta el FPS y los
// diagnósticos, pero sólo 1 de cada FrameSkip produce un TelemetryFrame.
func (l *Loop) HandleSample(frame Frame, raws []pipeline.RawDetection, now time.Time) {
	l.sampleCount++
	fps := l.fps.Tick(now)
	observability.CaptureFPS.Set(fps)

	detections := make([]pipeline.Detection, 0, len(raws))
	for _, raw := range raws {
		detections = append(detections, pipeline.Classify(raw, frame.Width, frame.Height, now))
	}
	l.detectionTotal += len(detections)

	fix := l.locator.GetLocation()
	point := pipeline.GPSPoint{Latitude: fix.Latitude, Longitude: fix.Longitude, Speed: fix.Speed}

	// status periódico, independiente del ritmo de captura
	if l.lastStatus.IsZero() || now.Sub(l.lastStatus) >= l.opts.StatusPeriod {
		status := l.buildStatus(point, fps)
		l.uplink.SendStatus(status)
		store.SaveStatusSafe(l.opts.DeviceID, status)
		store.SaveFixSafe(l.opts.DeviceID, point)
		l.lastStatus = now
	}

	if l.sampleCount%l.opts.FrameSkip == 0 {
		l.uplink.SendFrame(pipeline.TelemetryFrame{
			DeviceID:   l.opts.DeviceID,
			Timestamp:  now.Format(time.RFC3339),
			Frame:      base64.StdEncoding.EncodeToString(frame.JPEG),
			Detections: detections,
			GPS:        point,
			Stats: pipeline.FrameStats{
				FPS:            fps,
				Temperature:    l.monitor.Temperature(),
				CPUUsage:       l.monitor.CPUUsage(),
				MemoryUsage:    l.monitor.MemoryUsage(),
				DetectionCount: l.detectionTotal,
			},
		})
	} else {
		observability.FramesSkipped.Inc()
	}

	for _, det := range detections {
		l.dispatch.Enqueue(pipeline.BuildRecord(l.opts.DeviceID, det, point, now))
	}
	if len(detections) > 0 {
		store.IncrDetectionsSafe(l.opts.DeviceID, len(detections))
	}
}

func (l *Loop) buildStatus(point pipeline.GPSPoint, fps float64) pipeline.DeviceStatus {
	gpsStatus := "Mock"
	if l.opts.GPSLive {
		gpsStatus = "Active"
	}
	return pipeline.DeviceStatus{
		DeviceID:       l.opts.DeviceID,
		Temperature:    l.monitor.Temperature(),
		CPUUsage:       l.monitor.CPUUsage(),
		MemoryUsage:    l.monitor.MemoryUsage(),
		SignalStrength: health.SignalStrength,
		MPUStatus:      "Active",
		CameraStatus:   "Active",
		GPSStatus:      gpsStatus,
		Latitude:       point.Latitude,
		Longitude:      point.Longitude,
		VehicleSpeed:   point.Speed,
		InferenceRate:  fps,
	}
}

// keepAliveLoop pega al backend cada HeartbeatEvery para que no se duerma.
// Duerme en tramos de un segundo para responder rápido al Stop.
func (l *Loop) keepAliveLoop() {
	if l.opts.HeartbeatEvery <= 0 {
		return
	}
	for l.isRunning() {
		deadline := time.Now().Add(l.opts.HeartbeatEvery)
		for time.Now().Before(deadline) {
			if !l.isRunning() {
				return
			}
			time.Sleep(time.Second)
		}
		if err := l.uplink.Ping(); err != nil {
			l.logger.Warn("keep-alive ping failed", "err", err)
		}
		if err := l.uplink.Heartbeat(); err != nil {
			l.logger.Warn("heartbeat failed", "err", err)
		}
	}
}

// Stop frena el loop cooperativamente y cierra la captura.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.mu.Unlock()

	if err := l.capture.Close(); err != nil {
		l.logger.Warn("capture close failed", "err", err)
	}
}

func (l *Loop) isRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
