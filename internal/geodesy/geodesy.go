// Package geodesy converts between WGS84 geodetic coordinates, Earth-Centered
// Earth-Fixed (ECEF) coordinates and a local East-North-Up (ENU) tangent plane.
package geodesy

import (
	"math"

	"github.com/litescript/ls-tdoa/internal/geom"
)

// WGS84 ellipsoid parameters
const (
	// EquatorialRadius in meters
	EquatorialRadius = 6378137.0

	// Flattening of the reference ellipsoid
	Flattening = 1 / 298.257223563
)

var e2 = Flattening * (2 - Flattening)

// LLA is a geodetic position: latitude and longitude in degrees (north and
// east positive), altitude in meters above the ellipsoid.
type LLA struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
	Alt float64 `json:"alt" yaml:"alt"`
}

// FromVec interprets a 3-vector as {lat, lon, alt}.
func FromVec(v geom.Vec) LLA {
	return LLA{Lat: v[0], Lon: v[1], Alt: v[2]}
}

// Vec returns the position as a {lat, lon, alt} vector.
func (p LLA) Vec() geom.Vec {
	return geom.NewVec(p.Lat, p.Lon, p.Alt)
}

// ToECEF converts a geodetic position to ECEF meters.
func ToECEF(p LLA) geom.Vec {
	lat := degToRad(p.Lat)
	lon := degToRad(p.Lon)

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	// Prime vertical radius of curvature
	n := EquatorialRadius / math.Sqrt(1-e2*sinLat*sinLat)

	return geom.NewVec(
		(n+p.Alt)*cosLat*math.Cos(lon),
		(n+p.Alt)*cosLat*math.Sin(lon),
		(n*(1-e2)+p.Alt)*sinLat,
	)
}

// FromECEF converts ECEF meters to a geodetic position. The latitude is found
// by fixed-point iteration on the ellipsoidal height term.
func FromECEF(r geom.Vec) LLA {
	r2 := r[0]*r[0] + r[1]*r[1]

	v := EquatorialRadius
	z := r[2]
	for zk := 0.0; math.Abs(z-zk) >= 1e-6; {
		zk = z
		sinp := z / math.Sqrt(r2+z*z)
		v = EquatorialRadius / math.Sqrt(1-e2*sinp*sinp)
		z = r[2] + v*e2*sinp
	}

	var lat, lon float64
	switch {
	case r2 > 1e-12:
		lat = math.Atan(z / math.Sqrt(r2))
		lon = math.Atan2(r[1], r[0])
	case r[2] > 0:
		lat = math.Pi / 2
	default:
		lat = -math.Pi / 2
	}

	return LLA{
		Lat: radToDeg(lat),
		Lon: radToDeg(lon),
		Alt: math.Sqrt(r2+z*z) - v,
	}
}

// rotation returns the ECEF -> ENU rotation rows for a reference point.
func rotation(ref LLA) [3][3]float64 {
	lat := degToRad(ref.Lat)
	lon := degToRad(ref.Lon)
	sinp, cosp := math.Sin(lat), math.Cos(lat)
	sinl, cosl := math.Sin(lon), math.Cos(lon)

	return [3][3]float64{
		{-sinl, cosl, 0},
		{-sinp * cosl, -sinp * sinl, cosp},
		{cosp * cosl, cosp * sinl, sinp},
	}
}

// ECEFToENU rotates an ECEF displacement into the ENU frame at ref.
func ECEFToENU(d geom.Vec, ref LLA) geom.Vec {
	e := rotation(ref)
	out := geom.Zero(3)
	for i := 0; i < 3; i++ {
		out[i] = e[i][0]*d[0] + e[i][1]*d[1] + e[i][2]*d[2]
	}
	return out
}

// ENUToECEF rotates an ENU vector at ref back into an ECEF displacement.
func ENUToECEF(enu geom.Vec, ref LLA) geom.Vec {
	e := rotation(ref)
	out := geom.Zero(3)
	for i := 0; i < 3; i++ {
		out[i] = e[0][i]*enu[0] + e[1][i]*enu[1] + e[2][i]*enu[2]
	}
	return out
}

// GeodeticToENU returns the ENU position (meters) of p relative to ref.
func GeodeticToENU(p, ref LLA) geom.Vec {
	d := ToECEF(p).Sub(ToECEF(ref))
	return ECEFToENU(d, ref)
}

// ENUToGeodetic is the inverse of GeodeticToENU.
func ENUToGeodetic(enu geom.Vec, ref LLA) LLA {
	return FromECEF(ToECEF(ref).Add(ENUToECEF(enu, ref)))
}

func degToRad(d float64) float64 {
	return d * math.Pi / 180
}

func radToDeg(r float64) float64 {
	return r * 180 / math.Pi
}
