package pipeline

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Tabla cerrada de categorías conocidas. Cualquier miss cae en fallbackLabel.
var labelByClassID = map[int]string{
	0: "Severe Pothole",
	1: "Minor Pothole",
	2: "Asphalt Crack",
	3: "Manhole Depression",
	4: "Road Edge Erosion",
	5: "Surface Damage",
	6: "Water Damage",
}

var labelByClassName = map[string]string{
	"pothole": "Severe Pothole",
	"crack":   "Asphalt Crack",
	"damage":  "Surface Damage",
}

const fallbackLabel = "Surface Damage"

// DetectionType resuelve la etiqueta: primero por id numérico, después por
// nombre en minúsculas, y si no hay match devuelve el fallback.
func DetectionType(classID int, className string) string {
	if label, ok := labelByClassID[classID]; ok {
		return label
	}
	if label, ok := labelByClassName[strings.ToLower(className)]; ok {
		return label
	}
	return fallbackLabel
}

// CalcSeverity clasifica por confianza (0..1) y área normalizada (0..1).
func CalcSeverity(confidence, area float64) Severity {
	switch {
	case confidence >= 0.85 || area > 0.10:
		return SeverityHigh
	case confidence >= 0.65 || area > 0.05:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Classify transforma una detección cruda del modelo en el registro tipado.
// La confianza se deriva acá una única vez y no se vuelve a tocar.
func Classify(raw RawDetection, frameWidth, frameHeight int, at time.Time) Detection {
	if frameWidth <= 0 {
		frameWidth = 1
	}
	if frameHeight <= 0 {
		frameHeight = 1
	}

	xNorm := float64(raw.Box.X1) / float64(frameWidth)
	yNorm := float64(raw.Box.Y1) / float64(frameHeight)
	wNorm := float64(raw.Box.X2-raw.Box.X1) / float64(frameWidth)
	hNorm := float64(raw.Box.Y2-raw.Box.Y1) / float64(frameHeight)
	area := wNorm * hNorm

	box := raw.Box
	return Detection{
		Type:       DetectionType(raw.ClassID, raw.ClassName),
		Confidence: round1(raw.Confidence * 100),
		Severity:   CalcSeverity(raw.Confidence, area),
		BoundingBox: BoundingBox{
			X:      round1(xNorm * 100),
			Y:      round1(yNorm * 100),
			Width:  round1(wNorm * 100),
			Height: round1(hNorm * 100),
		},
		Raw:        &box,
		DetectedAt: at.Format(time.RFC3339),
	}
}

// BuildRecord arma la entrada de despacho para persistencia durable.
func BuildRecord(deviceID string, det Detection, gps GPSPoint, at time.Time) DetectionRecord {
	return DetectionRecord{
		DeviceID:    deviceID,
		Type:        det.Type,
		Severity:    det.Severity,
		Confidence:  det.Confidence,
		Location:    fmt.Sprintf("GPS: %.4f, %.4f", gps.Latitude, gps.Longitude),
		Latitude:    gps.Latitude,
		Longitude:   gps.Longitude,
		BoundingBox: det.BoundingBox,
		Timestamp:   at.Format(time.RFC3339),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
