package edge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFPSWindowSlides(t *testing.T) {
	var w fpsWindow
	t0 := time.Now()

	for i := 0; i < 30; i++ {
		w.Tick(t0.Add(time.Duration(i) * 33 * time.Millisecond))
	}
	// 30 muestras en ~1s
	assert.InDelta(t, 30, w.Tick(t0.Add(990*time.Millisecond)), 3)

	// un segundo después sólo queda la muestra nueva
	assert.Equal(t, 1.0, w.Tick(t0.Add(3*time.Second)))
}

func TestFPSWindowEvictsOldSamples(t *testing.T) {
	var w fpsWindow
	t0 := time.Now()

	w.Tick(t0)
	w.Tick(t0.Add(100 * time.Millisecond))
	got := w.Tick(t0.Add(1200 * time.Millisecond))

	assert.Equal(t, 1.0, got)
}
