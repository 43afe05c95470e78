package main

import (
	"os"
	"os/signal"
	"syscall"

	"roadsense-edge/internal/config"
	"roadsense-edge/internal/dispatcher"
	"roadsense-edge/internal/edge"
	"roadsense-edge/internal/gps"
	"roadsense-edge/internal/health"
	"roadsense-edge/internal/link"
	"roadsense-edge/internal/observability"
	"roadsense-edge/internal/store"
	"roadsense-edge/internal/transport"
)

func main() {
	logger := observability.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Starting roadsense-edge...", "device", cfg.DeviceID, "server", cfg.ServerURL)

	// Espejo Redis local: opcional, el pipeline corre igual sin él
	if err := store.Init(cfg.RedisAddr, 0); err != nil {
		logger.Warn("redis mirror disabled", "error", err)
	}

	go observability.StartMetricsServer(cfg.MetricsPort)

	// Sólo la captura y el modelo son fatales al inicio
	capture, detector, err := newCollaborators(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	reader := gps.NewReader(gps.DeviceSource(cfg.GPSDevice), logger)
	reader.Start()

	stream := link.NewClient(cfg.StreamAddr, cfg.DeviceID, cfg.ReconnectMin, cfg.ReconnectMax, logger)
	stream.Start()

	sender := transport.NewSender(cfg.ServerURL, cfg.DeviceID, stream, cfg.HTTPTimeout, logger)

	queue := dispatcher.NewQueue(cfg.QueueCapacity, sender, logger)
	queue.Start()

	loop, err := edge.NewLoop(edge.Options{
		DeviceID:       cfg.DeviceID,
		FrameSkip:      cfg.FrameSkip,
		StatusPeriod:   cfg.StatusPeriod,
		HeartbeatEvery: cfg.HeartbeatEvery,
		GPSLive:        fileExists(cfg.GPSDevice),
	}, capture, detector, reader, health.NewMonitor(), sender, queue, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down...")
		loop.Stop()
		queue.Stop()
		reader.Stop()
		stream.Close()
		os.Exit(0)
	}()

	loop.Run()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
