package edge

import "time"

// fpsWindow estima frames por segundo sobre una ventana deslizante de 1s.
// Lo usa un solo goroutine (el loop de control), sin locks.
type fpsWindow struct {
	samples []time.Time
}

// Tick registra una muestra y devuelve el estimado actual.
func (w *fpsWindow) Tick(now time.Time) float64 {
	w.samples = append(w.samples, now)
	cutoff := now.Add(-time.Second)
	i := 0
	for i < len(w.samples) && w.samples[i].Before(cutoff) {
		i++
	}
	w.samples = w.samples[i:]
	return float64(len(w.samples))
}
