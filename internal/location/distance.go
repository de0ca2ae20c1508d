package location

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean earth radius.
const EarthRadiusMeters = 6371000.0

// Distance returns the great-circle (haversine) distance between a and b in meters.
func Distance(a, b Coordinate) float64 {
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lon)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lon)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// Bearing returns the initial bearing from a to b in degrees clockwise from north, in [0, 360).
func Bearing(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// Offset returns the point reached by travelling meters from origin along bearing (degrees).
func Offset(origin Coordinate, bearing, meters float64) Coordinate {
	p := s2.LatLngFromDegrees(origin.Lat, origin.Lon)
	theta := bearing * math.Pi / 180
	delta := meters / EarthRadiusMeters

	lat1 := p.Lat.Radians()
	lon1 := p.Lng.Radians()

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(theta))
	lon2 := lon1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)

	out := s2.LatLng{Lat: s1.Angle(lat2), Lng: s1.Angle(lon2)}.Normalized()
	return Coordinate{Lat: out.Lat.Degrees(), Lon: out.Lng.Degrees()}
}
