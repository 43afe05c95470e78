package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_frames_sent_total",
		Help: "Total de frames de telemetría enviados, por canal (stream/http)",
	}, []string{"channel"})
	FramesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_frames_skipped_total",
		Help: "Frames capturados que no salieron por el frame-skip",
	})
	StatusSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_status_sent_total",
		Help: "Total de device status enviados",
	})
	SendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edge_send_errors_total",
		Help: "Envíos fallidos por canal (stream/http)",
	}, []string{"channel"})
	DispatchEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_dispatch_enqueued_total",
		Help: "Detecciones encoladas para persistencia",
	})
	DispatchDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_dispatch_dropped_total",
		Help: "Detecciones descartadas por cola llena",
	})
	DispatchFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_dispatch_failed_total",
		Help: "Entregas de detección que fallaron (sin reintento)",
	})
	NMEAParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_nmea_parse_errors_total",
		Help: "Sentencias NMEA descartadas por formato",
	})
	LinkReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_link_reconnects_total",
		Help: "Conexiones establecidas del canal persistente",
	})
	RedisSetErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "edge_redis_set_errors_total",
		Help: "Errores al escribir estados en Redis",
	})
	CaptureFPS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edge_capture_fps",
		Help: "FPS estimado sobre ventana deslizante de 1s",
	})
	SendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "edge_send_latency_seconds",
		Help:    "Latencia de envío por frame",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveSendLatency(start time.Time) {
	SendLatency.Observe(time.Since(start).Seconds())
}

func StartMetricsServer(port string) {
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ok"))
	})
	_ = http.ListenAndServe(":"+port, nil)
}
