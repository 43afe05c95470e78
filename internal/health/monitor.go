package health

import (
	"math"
	"os"
	"strconv"
	"strings"
)

// Constantes de degradación cuando el contador no se puede leer.
const (
	fallbackTemperature = 45.0
	fallbackCPUUsage    = 50.0
	fallbackMemUsage    = 40.0

	// Sin interfaz de módem especificada, se reporta un valor fijo.
	SignalStrength = 85.0
)

// Monitor lee vitals del dispositivo. Tres lecturas puras, cada una con su
// fallback: este componente nunca propaga errores ni frena el pipeline.
type Monitor struct {
	thermalPath string
	statPath    string
	meminfoPath string
}

func NewMonitor() *Monitor {
	return &Monitor{
		thermalPath: "/sys/devices/virtual/thermal/thermal_zone0/temp",
		statPath:    "/proc/stat",
		meminfoPath: "/proc/meminfo",
	}
}

// NewMonitorWithPaths permite inyectar archivos en tests.
func NewMonitorWithPaths(thermal, stat, meminfo string) *Monitor {
	return &Monitor{thermalPath: thermal, statPath: stat, meminfoPath: meminfo}
}

// Temperature devuelve °C desde el contador térmico (milligrados).
func (m *Monitor) Temperature() float64 {
	raw, err := os.ReadFile(m.thermalPath)
	if err != nil {
		return fallbackTemperature
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return fallbackTemperature
	}
	return float64(milli) / 1000.0
}

// CPUUsage calcula 1 - idle/total sobre una lectura puntual de /proc/stat.
func (m *Monitor) CPUUsage() float64 {
	raw, err := os.ReadFile(m.statPath)
	if err != nil {
		return fallbackCPUUsage
	}
	line, _, _ := strings.Cut(string(raw), "\n")
	parts := strings.Fields(line)
	if len(parts) < 5 || parts[0] != "cpu" {
		return fallbackCPUUsage
	}

	var total, idle float64
	for i, p := range parts[1:] {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return fallbackCPUUsage
		}
		total += v
		if i == 3 { // cuarto contador = idle
			idle = v
		}
	}
	if total == 0 {
		return fallbackCPUUsage
	}
	return clampPercent(round1((1 - idle/total) * 100))
}

// MemoryUsage calcula 1 - available/total desde /proc/meminfo.
func (m *Monitor) MemoryUsage() float64 {
	raw, err := os.ReadFile(m.meminfoPath)
	if err != nil {
		return fallbackMemUsage
	}

	var total, available float64
	found := 0
	for _, line := range strings.Split(string(raw), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total, _ = strconv.ParseFloat(fields[1], 64)
			found++
		case "MemAvailable:":
			available, _ = strconv.ParseFloat(fields[1], 64)
			found++
		}
	}
	if found != 2 || total == 0 {
		return fallbackMemUsage
	}
	return clampPercent(round1((1 - available/total) * 100))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
