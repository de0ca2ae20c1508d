// Package polyline implements the encoded polyline algorithm used by directions
// providers to ship route geometry as a compact ASCII string.
// See https://developers.google.com/maps/documentation/utilities/polylinealgorithm.
package polyline

import (
	"errors"
	"math"
	"strings"
)

// DefaultPrecision is the number of decimal places used by Google and ORS.
const DefaultPrecision = 5

// ErrMalformed is returned when an encoded string ends in the middle of a value
// or contains an odd number of values.
var ErrMalformed = errors.New("malformed polyline")

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Encode encodes coordinates with DefaultPrecision.
func Encode(coords []Coordinate) string {
	return EncodePrecision(coords, DefaultPrecision)
}

// EncodePrecision encodes coordinates rounding to the given number of decimals.
func EncodePrecision(coords []Coordinate, precision int) string {
	if len(coords) == 0 {
		return ""
	}

	factor := math.Pow10(precision)
	var sb strings.Builder
	sb.Grow(len(coords) * 8)

	var prevLat, prevLon int64
	for _, c := range coords {
		lat := int64(math.Round(c.Lat * factor))
		lon := int64(math.Round(c.Lon * factor))
		writeValue(&sb, lat-prevLat)
		writeValue(&sb, lon-prevLon)
		prevLat, prevLon = lat, lon
	}

	return sb.String()
}

func writeValue(sb *strings.Builder, delta int64) {
	v := uint64(delta << 1)
	if delta < 0 {
		v = ^v
	}
	for v >= 0x20 {
		sb.WriteByte(byte((v&0x1f)|0x20) + 63)
		v >>= 5
	}
	sb.WriteByte(byte(v) + 63)
}

// Decode decodes a string produced with DefaultPrecision.
func Decode(encoded string) ([]Coordinate, error) {
	return DecodePrecision(encoded, DefaultPrecision)
}

// DecodePrecision decodes a string produced with the given precision.
// An empty string decodes to a nil slice.
func DecodePrecision(encoded string, precision int) ([]Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}

	factor := math.Pow10(precision)
	coords := make([]Coordinate, 0, len(encoded)/4)

	var lat, lon int64
	for i := 0; i < len(encoded); {
		dLat, next, err := readValue(encoded, i)
		if err != nil {
			return nil, err
		}
		if next >= len(encoded) {
			return nil, ErrMalformed
		}
		dLon, next, err := readValue(encoded, next)
		if err != nil {
			return nil, err
		}
		i = next

		lat += dLat
		lon += dLon
		coords = append(coords, Coordinate{
			Lat: float64(lat) / factor,
			Lon: float64(lon) / factor,
		})
	}

	return coords, nil
}

func readValue(encoded string, i int) (int64, int, error) {
	var result uint64
	var shift uint
	for {
		if i >= len(encoded) {
			return 0, i, ErrMalformed
		}
		b := int64(encoded[i]) - 63
		if b < 0 || b > 0x3f {
			return 0, i, ErrMalformed
		}
		i++
		result |= uint64(b&0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^int64(result >> 1), i, nil
	}
	return int64(result >> 1), i, nil
}

const earthRadiusMeters = 6371000.0

// Length returns the summed great-circle length of the line in meters.
func Length(coords []Coordinate) float64 {
	var total float64
	for i := 1; i < len(coords); i++ {
		total += haversine(coords[i-1], coords[i])
	}
	return total
}

func haversine(a, b Coordinate) float64 {
	const rad = math.Pi / 180
	dLat := (b.Lat - a.Lat) * rad
	dLon := (b.Lon - a.Lon) * rad
	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*rad)*math.Cos(b.Lat*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(s)))
}
