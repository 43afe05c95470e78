package edge

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadsense-edge/internal/gps"
	"roadsense-edge/internal/health"
	"roadsense-edge/internal/pipeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeUplink struct {
	frames   []pipeline.TelemetryFrame
	statuses []pipeline.DeviceStatus
}

func (f *fakeUplink) SendFrame(frame pipeline.TelemetryFrame) { f.frames = append(f.frames, frame) }
func (f *fakeUplink) SendStatus(status pipeline.DeviceStatus) {
	f.statuses = append(f.statuses, status)
}
func (f *fakeUplink) Heartbeat() error { return nil }
func (f *fakeUplink) Ping() error      { return nil }

type fakeDispatch struct {
	records []pipeline.DetectionRecord
}

func (f *fakeDispatch) Enqueue(record pipeline.DetectionRecord) {
	f.records = append(f.records, record)
}

type fixedLocator struct{ fix gps.Fix }

func (f fixedLocator) GetLocation() gps.Fix { return f.fix }

type nopCapture struct{}

func (nopCapture) Read() (Frame, error) { return Frame{JPEG: []byte{1}, Width: 640, Height: 480}, nil }
func (nopCapture) Close() error         { return nil }

type nopDetector struct{}

func (nopDetector) Detect(Frame) ([]pipeline.RawDetection, error) { return nil, nil }

// brokenMonitor devuelve siempre los fallbacks, determinístico para tests.
func brokenMonitor() *health.Monitor {
	return health.NewMonitorWithPaths("/nonexistent", "/nonexistent", "/nonexistent")
}

func newTestLoop(t *testing.T, opts Options) (*Loop, *fakeUplink, *fakeDispatch) {
	t.Helper()
	uplink := &fakeUplink{}
	dispatch := &fakeDispatch{}
	locator := fixedLocator{fix: gps.Fix{Latitude: 28.6139, Longitude: 77.2090, Speed: 42, Valid: true}}

	loop, err := NewLoop(opts, nopCapture{}, nopDetector{}, locator, brokenMonitor(), uplink, dispatch, discardLogger())
	require.NoError(t, err)
	return loop, uplink, dispatch
}

func TestNewLoopRequiresCollaborators(t *testing.T) {
	_, err := NewLoop(Options{}, nil, nopDetector{}, fixedLocator{}, brokenMonitor(), &fakeUplink{}, &fakeDispatch{}, discardLogger())
	assert.Error(t, err)

	_, err = NewLoop(Options{}, nopCapture{}, nil, fixedLocator{}, brokenMonitor(), &fakeUplink{}, &fakeDispatch{}, discardLogger())
	assert.Error(t, err)
}

func TestFrameSkipSendsExactlyOneInN(t *testing.T) {
	loop, uplink, _ := newTestLoop(t, Options{
		DeviceID:     "EDGE-T",
		FrameSkip:    3,
		StatusPeriod: time.Hour, // fuera de juego para este test
	})

	now := time.Now()
	frame := Frame{JPEG: []byte("jpg"), Width: 640, Height: 480}
	for i := 0; i < 300; i++ {
		loop.HandleSample(frame, nil, now.Add(time.Duration(i)*33*time.Millisecond))
	}

	assert.Len(t, uplink.frames, 100)
}

func TestAllSamplesFeedFPSRegardlessOfThrottle(t *testing.T) {
	loop, uplink, _ := newTestLoop(t, Options{DeviceID: "EDGE-T", FrameSkip: 10, StatusPeriod: time.Hour})

	now := time.Now()
	frame := Frame{JPEG: []byte("jpg"), Width: 640, Height: 480}
	// 10 samples dentro de la misma ventana de 1s
	for i := 0; i < 10; i++ {
		loop.HandleSample(frame, nil, now.Add(time.Duration(i)*50*time.Millisecond))
	}

	require.Len(t, uplink.frames, 1)
	assert.Equal(t, 10.0, uplink.frames[0].Stats.FPS)
}

func TestStatusSentAtOwnPeriod(t *testing.T) {
	loop, uplink, _ := newTestLoop(t, Options{DeviceID: "EDGE-T", FrameSkip: 1, StatusPeriod: 5 * time.Second})

	now := time.Now()
	frame := Frame{JPEG: []byte("jpg"), Width: 640, Height: 480}
	for i := 0; i < 12; i++ {
		loop.HandleSample(frame, nil, now.Add(time.Duration(i)*time.Second))
	}

	// t=0 (primero), t=5, t=10
	require.Len(t, uplink.statuses, 3)
	st := uplink.statuses[0]
	assert.Equal(t, "EDGE-T", st.DeviceID)
	assert.Equal(t, 45.0, st.Temperature)
	assert.Equal(t, 50.0, st.CPUUsage)
	assert.Equal(t, 40.0, st.MemoryUsage)
	assert.Equal(t, 85.0, st.SignalStrength)
	assert.Equal(t, 42.0, st.VehicleSpeed)
	assert.InDelta(t, 28.6139, st.Latitude, 0.0001)
}

func TestDetectionsClassifiedAndEnqueued(t *testing.T) {
	loop, uplink, dispatch := newTestLoop(t, Options{DeviceID: "EDGE-T", FrameSkip: 1, StatusPeriod: time.Hour})

	raws := []pipeline.RawDetection{
		{ClassID: 0, Confidence: 0.9, Box: pipeline.PixelBox{X1: 0, Y1: 0, X2: 64, Y2: 48}},
		{ClassID: 2, Confidence: 0.6, Box: pipeline.PixelBox{X1: 10, Y1: 10, X2: 20, Y2: 20}},
	}
	frame := Frame{JPEG: []byte("jpg"), Width: 640, Height: 480}
	loop.HandleSample(frame, raws, time.Now())

	require.Len(t, dispatch.records, 2)
	assert.Equal(t, "Severe Pothole", dispatch.records[0].Type)
	assert.Equal(t, pipeline.SeverityHigh, dispatch.records[0].Severity)
	assert.Equal(t, "Asphalt Crack", dispatch.records[1].Type)
	assert.Equal(t, "GPS: 28.6139, 77.2090", dispatch.records[0].Location)

	require.Len(t, uplink.frames, 1)
	assert.Len(t, uplink.frames[0].Detections, 2)
	assert.Equal(t, 2, uplink.frames[0].Stats.DetectionCount)
}

func TestDetectionCountAccumulatesAcrossSamples(t *testing.T) {
	loop, uplink, _ := newTestLoop(t, Options{DeviceID: "EDGE-T", FrameSkip: 1, StatusPeriod: time.Hour})

	raw := []pipeline.RawDetection{{ClassID: 1, Confidence: 0.7, Box: pipeline.PixelBox{X2: 10, Y2: 10}}}
	frame := Frame{JPEG: []byte("jpg"), Width: 640, Height: 480}
	now := time.Now()
	loop.HandleSample(frame, raw, now)
	loop.HandleSample(frame, raw, now.Add(33*time.Millisecond))
	loop.HandleSample(frame, nil, now.Add(66*time.Millisecond))

	require.Len(t, uplink.frames, 3)
	assert.Equal(t, 2, uplink.frames[2].Stats.DetectionCount)
}

func TestFrameIsBase64Encoded(t *testing.T) {
	loop, uplink, _ := newTestLoop(t, Options{DeviceID: "EDGE-T", FrameSkip: 1, StatusPeriod: time.Hour})

	loop.HandleSample(Frame{JPEG: []byte("jpegdata"), Width: 640, Height: 480}, nil, time.Now())

	require.Len(t, uplink.frames, 1)
	assert.Equal(t, "anBlZ2RhdGE=", uplink.frames[0].Frame)
}

type busyDetector struct{}

func (busyDetector) Detect(Frame) ([]pipeline.RawDetection, error) {
	return []pipeline.RawDetection{{ClassID: 0, Confidence: 0.9, Box: pipeline.PixelBox{X2: 64, Y2: 48}}}, nil
}

// Stop desde otro goroutine mientras el loop sigue acumulando contadores:
// tiene que ser limpio bajo el race detector.
func TestStopWhileSamplesInFlight(t *testing.T) {
	uplink := &fakeUplink{}
	dispatch := &fakeDispatch{}
	locator := fixedLocator{fix: gps.Fix{Latitude: 28.6139, Longitude: 77.2090, Valid: true}}

	loop, err := NewLoop(Options{DeviceID: "EDGE-T", FrameSkip: 2, StatusPeriod: time.Hour},
		nopCapture{}, busyDetector{}, locator, brokenMonitor(), uplink, dispatch, discardLogger())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		loop.Run()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	loop.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRunAndStopAreCooperative(t *testing.T) {
	loop, _, _ := newTestLoop(t, Options{DeviceID: "EDGE-T", FrameSkip: 3, StatusPeriod: time.Second})

	done := make(chan struct{})
	go func() {
		loop.Run()
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	loop.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	// Stop repetido es no-op
	loop.Stop()
}
