package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerURL      string
	StreamAddr     string
	DeviceID       string
	GPSDevice      string
	MetricsPort    string
	RedisAddr      string
	FrameSkip      int
	QueueCapacity  int
	StatusPeriod   time.Duration
	HeartbeatEvery time.Duration
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration
	HTTPTimeout    time.Duration
}

// fileConfig es el esquema del yaml opcional; las duraciones van como string
// ("5s", "9m") y se parsean al aplicar.
type fileConfig struct {
	ServerURL      string `yaml:"server_url"`
	StreamAddr     string `yaml:"stream_addr"`
	DeviceID       string `yaml:"device_id"`
	GPSDevice      string `yaml:"gps_device"`
	MetricsPort    string `yaml:"metrics_port"`
	RedisAddr      string `yaml:"redis_addr"`
	FrameSkip      int    `yaml:"frame_skip"`
	QueueCapacity  int    `yaml:"queue_capacity"`
	StatusPeriod   string `yaml:"status_period"`
	HeartbeatEvery string `yaml:"heartbeat_every"`
	ReconnectMin   string `yaml:"reconnect_min"`
	ReconnectMax   string `yaml:"reconnect_max"`
	HTTPTimeout    string `yaml:"http_timeout"`
}

// Load arma la configuración: defaults, luego CONFIG_FILE (yaml) si está
// definido, y al final variables de entorno que pisan todo lo demás.
func Load() (Config, error) {
	cfg := Config{
		ServerURL:      "http://localhost:5000",
		StreamAddr:     "localhost:5001",
		GPSDevice:      "/dev/ttyUSB0",
		MetricsPort:    "9000",
		FrameSkip:      3,
		QueueCapacity:  100,
		StatusPeriod:   5 * time.Second,
		HeartbeatEvery: 9 * time.Minute,
		ReconnectMin:   1 * time.Second,
		ReconnectMax:   10 * time.Second,
		HTTPTimeout:    3 * time.Second,
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config file %s: %w", path, err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return cfg, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := applyFile(&cfg, fc); err != nil {
			return cfg, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	cfg.ServerURL = getEnv("SERVER_URL", cfg.ServerURL)
	cfg.StreamAddr = getEnv("STREAM_ADDR", cfg.StreamAddr)
	cfg.DeviceID = getEnv("DEVICE_ID", cfg.DeviceID)
	cfg.GPSDevice = getEnv("GPS_DEVICE", cfg.GPSDevice)
	cfg.MetricsPort = getEnv("METRICS_PORT", cfg.MetricsPort)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.FrameSkip = getEnvInt("FRAME_SKIP", cfg.FrameSkip)
	cfg.QueueCapacity = getEnvInt("QUEUE_CAPACITY", cfg.QueueCapacity)
	cfg.StatusPeriod = getEnvDuration("STATUS_PERIOD", cfg.StatusPeriod)
	cfg.HeartbeatEvery = getEnvDuration("HEARTBEAT_EVERY", cfg.HeartbeatEvery)
	cfg.ReconnectMin = getEnvDuration("RECONNECT_MIN", cfg.ReconnectMin)
	cfg.ReconnectMax = getEnvDuration("RECONNECT_MAX", cfg.ReconnectMax)
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", cfg.HTTPTimeout)

	if cfg.DeviceID == "" {
		cfg.DeviceID = "EDGE-" + uuid.NewString()[:8]
	}
	if cfg.FrameSkip < 1 {
		cfg.FrameSkip = 1
	}
	if cfg.QueueCapacity < 1 {
		cfg.QueueCapacity = 100
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = cfg.ReconnectMin
	}
	return cfg, nil
}

func applyFile(cfg *Config, fc fileConfig) error {
	if fc.ServerURL != "" {
		cfg.ServerURL = fc.ServerURL
	}
	if fc.StreamAddr != "" {
		cfg.StreamAddr = fc.StreamAddr
	}
	if fc.DeviceID != "" {
		cfg.DeviceID = fc.DeviceID
	}
	if fc.GPSDevice != "" {
		cfg.GPSDevice = fc.GPSDevice
	}
	if fc.MetricsPort != "" {
		cfg.MetricsPort = fc.MetricsPort
	}
	if fc.RedisAddr != "" {
		cfg.RedisAddr = fc.RedisAddr
	}
	if fc.FrameSkip != 0 {
		cfg.FrameSkip = fc.FrameSkip
	}
	if fc.QueueCapacity != 0 {
		cfg.QueueCapacity = fc.QueueCapacity
	}
	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{
		{fc.StatusPeriod, &cfg.StatusPeriod},
		{fc.HeartbeatEvery, &cfg.HeartbeatEvery},
		{fc.ReconnectMin, &cfg.ReconnectMin},
		{fc.ReconnectMax, &cfg.ReconnectMax},
		{fc.HTTPTimeout, &cfg.HTTPTimeout},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return err
		}
		*d.dst = parsed
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
