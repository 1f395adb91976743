package nmea

import (
	"math"
	"time"
)

const (
	earthRadiusKm = 6371.0
	knotsToKmh    = 1.852

	// Out of range on purpose, a cleared fix is never valid
	invalidCoordinate = 100.0
)

// Fix is the composite position assembled from GGA, RMC and VTG sentences
type Fix struct {
	Latitude  float64
	Longitude float64
	// Altitude above mean sea level in metres
	Altitude float64
	// Speed over ground in km/h
	Speed float64
	// Heading in degrees, true north
	Heading float64
	// HorizontalAccuracy is the HDOP reported in GGA
	HorizontalAccuracy float64
	Satellites         int
	// Epoch is the UTC time of the fix in seconds, zero until RMC was seen
	Epoch int64
}

func emptyFix() Fix {
	return Fix{
		Latitude:  invalidCoordinate,
		Longitude: invalidCoordinate,
	}
}

// Valid reports whether the position lies within the coordinate ranges
func (f Fix) Valid() bool {
	return f.Latitude >= -90 && f.Latitude <= 90 &&
		f.Longitude >= -180 && f.Longitude <= 180 &&
		f.HorizontalAccuracy >= 0
}

// Time returns the fix time, the zero time if no date was received yet
func (f Fix) Time() time.Time {
	if f.Epoch == 0 {
		return time.Time{}
	}

	return time.Unix(f.Epoch, 0).UTC()
}

// DistanceTo returns the great circle distance in metres using the haversine
// formula, -1 if either fix is invalid
func (f Fix) DistanceTo(other Fix) float64 {
	if !f.Valid() || !other.Valid() {
		return -1
	}

	lat1 := f.Latitude * math.Pi / 180
	lon1 := f.Longitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	lon2 := other.Longitude * math.Pi / 180

	a := math.Pow(math.Sin((lat2-lat1)/2), 2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin((lon2-lon1)/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c * 1000
}
