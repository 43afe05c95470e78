package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadsense-edge/internal/pipeline"
)

// Sin Redis configurado el espejo entero es no-op: nada falla, nada bloquea.
func TestDisabledMirrorIsNoop(t *testing.T) {
	require.NoError(t, Init("", 0))
	assert.False(t, Enabled())

	assert.NotPanics(t, func() {
		SaveStatusSafe("EDGE-T", pipeline.DeviceStatus{DeviceID: "EDGE-T"})
		SaveFixSafe("EDGE-T", pipeline.GPSPoint{Latitude: 1, Longitude: 2})
		IncrDetectionsSafe("EDGE-T", 3)
	})

	_, ok := GetStatus("EDGE-T")
	assert.False(t, ok)
	_, ok = GetDetectionCount("EDGE-T")
	assert.False(t, ok)
}

func TestInitFailureLeavesMirrorDisabled(t *testing.T) {
	err := Init("127.0.0.1:1", 0)
	assert.Error(t, err)
	assert.False(t, Enabled())
}
