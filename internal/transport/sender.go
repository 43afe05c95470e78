package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"roadsense-edge/internal/link"
	"roadsense-edge/internal/observability"
	"roadsense-edge/internal/pipeline"
)

// Sender es el canal dual: primero el stream persistente, y si no está
// conectado (o el envío falla) un POST stateless con timeout corto. Nada acá
// bloquea al loop de captura más allá de esos timeouts.
type Sender struct {
	serverURL string
	deviceID  string
	stream    *link.Client
	client    *http.Client
	logger    *slog.Logger
}

func NewSender(serverURL, deviceID string, stream *link.Client, timeout time.Duration, lg *slog.Logger) *Sender {
	return &Sender{
		serverURL: strings.TrimRight(serverURL, "/"),
		deviceID:  deviceID,
		stream:    stream,
		client:    &http.Client{Timeout: timeout},
		logger:    lg.With("component", "transport"),
	}
}

// SendFrame empuja un TelemetryFrame, fire-and-forget.
func (s *Sender) SendFrame(frame pipeline.TelemetryFrame) {
	start := time.Now()
	defer observability.ObserveSendLatency(start)

	if s.streamSend("liveStream", frame) {
		observability.FramesSent.WithLabelValues("stream").Inc()
		return
	}
	if err := s.post("/api/live/stream", frame); err != nil {
		observability.SendErrors.WithLabelValues("http").Inc()
		s.logger.Warn("frame fallback send failed", "err", err)
		return
	}
	observability.FramesSent.WithLabelValues("http").Inc()
}

// SendStatus empuja un DeviceStatus por el canal que esté disponible.
func (s *Sender) SendStatus(status pipeline.DeviceStatus) {
	if s.streamSend("deviceStatusUpdate", status) {
		observability.StatusSent.Inc()
		return
	}
	if err := s.post("/api/devices/status", status); err != nil {
		observability.SendErrors.WithLabelValues("http").Inc()
		s.logger.Warn("status fallback send failed", "err", err)
		return
	}
	observability.StatusSent.Inc()
}

// PostDetection persiste una detección por el canal stateless. Es el único
// camino durable: lo consume el worker de despacho, una entrega por entrada.
func (s *Sender) PostDetection(record pipeline.DetectionRecord) error {
	return s.post("/api/detections", record)
}

// Heartbeat avisa al backend que el device sigue online.
func (s *Sender) Heartbeat() error {
	url := fmt.Sprintf("%s/api/devices/%s/heartbeat", s.serverURL, s.deviceID)
	resp, err := s.client.Post(url, "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("heartbeat: status %d", resp.StatusCode)
	}
	return nil
}

// Ping pega al health del backend (keep-alive contra shutdown por idle).
func (s *Sender) Ping() error {
	resp, err := s.client.Get(s.serverURL + "/api/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("ping: status %d", resp.StatusCode)
	}
	return nil
}

func (s *Sender) streamSend(event string, payload any) bool {
	if s.stream == nil || !s.stream.Connected() {
		return false
	}
	if err := s.stream.Send(event, payload); err != nil {
		observability.SendErrors.WithLabelValues("stream").Inc()
		s.logger.Warn("stream send failed, falling back to http", "event", event, "err", err)
		return false
	}
	return true
}

func (s *Sender) post(path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := s.client.Post(s.serverURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post %s: status %d", path, resp.StatusCode)
	}
	return nil
}
