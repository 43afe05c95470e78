package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"roadsense-edge/internal/config"
	"roadsense-edge/internal/edge"
	"roadsense-edge/internal/pipeline"
)

// Colaboradores de captura/inferencia. Sin un driver de cámara compilado,
// CAPTURE=sim corre el generador de demo (frames sintéticos + detecciones
// aleatorias) para probar el pipeline completo contra un backend real.

func newCollaborators(cfg config.Config, lg *slog.Logger) (edge.Capture, edge.Detector, error) {
	switch os.Getenv("CAPTURE") {
	case "", "sim":
		lg.Info("capture: simulated source (set CAPTURE to a driver for hardware)")
		return newSimCapture(), &simDetector{}, nil
	default:
		return nil, nil, fmt.Errorf("capture driver %q not built in", os.Getenv("CAPTURE"))
	}
}

type simCapture struct {
	frame  []byte
	closed bool
}

func newSimCapture() *simCapture {
	// JPEG mínimo de relleno: el core trata el frame como buffer opaco
	buf := make([]byte, 4096)
	copy(buf, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	return &simCapture{frame: buf}
}

func (s *simCapture) Read() (edge.Frame, error) {
	if s.closed {
		return edge.Frame{}, fmt.Errorf("capture closed")
	}
	time.Sleep(33 * time.Millisecond) // ~30 fps
	return edge.Frame{JPEG: s.frame, Width: 640, Height: 480}, nil
}

func (s *simCapture) Close() error {
	s.closed = true
	return nil
}

type simDetector struct{}

// Detect emite una caja aleatoria en ~15% de los frames, como el demo.
func (d *simDetector) Detect(frame edge.Frame) ([]pipeline.RawDetection, error) {
	if rand.Float64() > 0.15 {
		return nil, nil
	}
	x1 := rand.Intn(frame.Width / 2)
	y1 := rand.Intn(frame.Height / 2)
	return []pipeline.RawDetection{{
		ClassID:    rand.Intn(7),
		Confidence: 0.5 + rand.Float64()*0.48,
		Box: pipeline.PixelBox{
			X1: x1,
			Y1: y1,
			X2: x1 + 60 + rand.Intn(100),
			Y2: y1 + 40 + rand.Intn(60),
		},
	}}, nil
}
