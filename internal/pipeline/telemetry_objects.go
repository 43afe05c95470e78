package pipeline

// Objetos de wire que viajan al backend (stream NDJSON y fallback HTTP).

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// PixelBox es la caja cruda del modelo, en píxeles del frame original.
type PixelBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// BoundingBox va normalizada a porcentaje del frame, 1 decimal.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RawDetection es lo que entrega el colaborador de inferencia por frame.
type RawDetection struct {
	ClassID    int
	ClassName  string
	Confidence float64 // 0..1
	Box        PixelBox
}

type Detection struct {
	Type        string      `json:"type"`
	Confidence  float64     `json:"confidence"` // 0..100, 1 decimal, derivada una sola vez
	Severity    Severity    `json:"severity"`
	BoundingBox BoundingBox `json:"boundingBox"`
	Raw         *PixelBox   `json:"raw,omitempty"`
	DetectedAt  string      `json:"detectedAt,omitempty"`
}

type GPSPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
}

type FrameStats struct {
	FPS            float64 `json:"fps"`
	Temperature    float64 `json:"temperature"`
	CPUUsage       float64 `json:"cpuUsage"`
	MemoryUsage    float64 `json:"memoryUsage"`
	DetectionCount int     `json:"detectionCount"`
}

// TelemetryFrame se arma fresco en cada iteración y se envía fire-and-forget.
type TelemetryFrame struct {
	DeviceID   string      `json:"deviceId"`
	Timestamp  string      `json:"timestamp"`
	Frame      string      `json:"frame"` // JPEG base64
	Detections []Detection `json:"detections"`
	GPS        GPSPoint    `json:"gps"`
	Stats      FrameStats  `json:"stats"`
}

type DeviceStatus struct {
	DeviceID       string  `json:"deviceId"`
	Temperature    float64 `json:"temperature"`
	CPUUsage       float64 `json:"cpuUsage"`
	MemoryUsage    float64 `json:"memoryUsage"`
	SignalStrength float64 `json:"signalStrength"`
	MPUStatus      string  `json:"mpuStatus"`
	CameraStatus   string  `json:"cameraStatus"`
	GPSStatus      string  `json:"gpsStatus"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	VehicleSpeed   float64 `json:"vehicleSpeed"`
	InferenceRate  float64 `json:"inferenceRate"`
}

// DetectionRecord es la forma encolada para persistencia durable (POST /api/detections).
type DetectionRecord struct {
	DeviceID    string      `json:"deviceId"`
	Type        string      `json:"type"`
	Severity    Severity    `json:"severity"`
	Confidence  float64     `json:"confidence"`
	Location    string      `json:"location"`
	Latitude    float64     `json:"latitude"`
	Longitude   float64     `json:"longitude"`
	BoundingBox BoundingBox `json:"boundingBox"`
	Timestamp   string      `json:"timestamp"`
}
