package gps

import (
	"strconv"
	"strings"
	"time"
)

const knotsToKmh = 1.852

// Fix es la última lectura válida de posición/velocidad. SampledAt queda en
// cero mientras no hubo ninguna sentencia válida (fix por defecto).
type Fix struct {
	Latitude  float64
	Longitude float64
	Speed     float64 // km/h
	Valid     bool
	SampledAt time.Time
}

// parseSentence intenta decodificar una sentencia RMC o GGA sobre el fix
// previo. Devuelve el fix actualizado y true sólo si la sentencia era
// estructuralmente válida; en cualquier otro caso el fix previo queda igual.
func parseSentence(line string, prev Fix) (Fix, bool) {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "$GPRMC"), strings.HasPrefix(line, "$GNRMC"):
		return parseRMC(line, prev)
	case strings.HasPrefix(line, "$GPGGA"), strings.HasPrefix(line, "$GNGGA"):
		return parseGGA(line, prev)
	}
	return prev, false
}

// RMC: $GPRMC,hhmmss,A,llll.ll,a,yyyyy.yy,a,spd,crs,...
// El campo 2 tiene que ser "A" (fix activo); "V" se descarta.
func parseRMC(line string, prev Fix) (Fix, bool) {
	parts := strings.Split(stripChecksum(line), ",")
	if len(parts) < 8 {
		return prev, false
	}
	if parts[2] != "A" {
		return prev, false
	}

	lat, err := parseCoord(parts[3], parts[4], 2)
	if err != nil {
		return prev, false
	}
	lon, err := parseCoord(parts[5], parts[6], 3)
	if err != nil {
		return prev, false
	}

	fix := Fix{Latitude: lat, Longitude: lon, Speed: prev.Speed, Valid: true}
	if parts[7] != "" {
		knots, err := strconv.ParseFloat(parts[7], 64)
		if err != nil {
			return prev, false
		}
		fix.Speed = knots * knotsToKmh
	}
	return fix, true
}

// GGA: $GPGGA,hhmmss,llll.ll,a,yyyyy.yy,a,q,... — q=0 significa sin fix.
// GGA no trae velocidad, se conserva la anterior.
func parseGGA(line string, prev Fix) (Fix, bool) {
	parts := strings.Split(stripChecksum(line), ",")
	if len(parts) < 7 {
		return prev, false
	}
	quality, err := strconv.Atoi(parts[6])
	if err != nil || quality == 0 {
		return prev, false
	}

	lat, err := parseCoord(parts[2], parts[3], 2)
	if err != nil {
		return prev, false
	}
	lon, err := parseCoord(parts[4], parts[5], 3)
	if err != nil {
		return prev, false
	}
	return Fix{Latitude: lat, Longitude: lon, Speed: prev.Speed, Valid: true}, true
}

// parseCoord convierte ddmm.mmmm (o dddmm.mmmm para longitud) a grados
// decimales, con el signo según hemisferio S/W.
func parseCoord(value, hemisphere string, degDigits int) (float64, error) {
	if len(value) <= degDigits {
		return 0, strconv.ErrSyntax
	}
	deg, err := strconv.ParseFloat(value[:degDigits], 64)
	if err != nil {
		return 0, err
	}
	min, err := strconv.ParseFloat(value[degDigits:], 64)
	if err != nil {
		return 0, err
	}
	out := deg + min/60
	if hemisphere == "S" || hemisphere == "W" {
		out = -out
	}
	return out, nil
}

func stripChecksum(line string) string {
	if i := strings.IndexByte(line, '*'); i >= 0 {
		return line[:i]
	}
	return line
}
