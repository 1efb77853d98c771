package geodesy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/litescript/ls-tdoa/internal/geom"
)

func TestToECEF(t *testing.T) {
	tests := []struct {
		name string
		p    LLA
		want geom.Vec
	}{
		{"equator prime meridian", LLA{0, 0, 0}, geom.NewVec(EquatorialRadius, 0, 0)},
		{"equator 90E", LLA{0, 90, 0}, geom.NewVec(0, EquatorialRadius, 0)},
		{"north pole", LLA{90, 0, 0}, geom.NewVec(0, 0, 6356752.314245)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToECEF(tt.p)
			if !got.Equal(tt.want, 1e-3) {
				t.Errorf("ToECEF(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestFromECEF(t *testing.T) {
	// Reference values from the RTKLIB coordinate unit test
	r := geom.NewVec(-3.5173197701e+06, 4.1316679161e+06, 3.3412651227e+06)
	got := FromECEF(r)

	assert.InDelta(t, 3.1796021375e+01, got.Lat, 1e-7)
	assert.InDelta(t, 1.3040799917e+02, got.Lon, 1e-7)
	assert.InDelta(t, 6.8863206206e+01, got.Alt, 1e-4)
}

func TestGeodeticENURoundTrip(t *testing.T) {
	ref := LLA{Lat: 40.7128, Lon: -74.0060, Alt: 10}
	points := []LLA{
		{40.7128, -74.0060, 10},
		{41.7128, -74.0060, 15},
		{42.7128, -74.0060, 20},
		{40.70, -73.99, 3000},
		{-33.86, 151.21, 50},
	}

	for _, p := range points {
		enu := GeodeticToENU(p, ref)
		back := ENUToGeodetic(enu, ref)

		assert.InDelta(t, p.Lat, back.Lat, 1e-9, "lat for %v", p)
		assert.InDelta(t, p.Lon, back.Lon, 1e-9, "lon for %v", p)
		assert.InDelta(t, p.Alt, back.Alt, 1e-5, "alt for %v", p)
	}
}

func TestGeodeticToENU_Axes(t *testing.T) {
	ref := LLA{Lat: 35.4267, Lon: -116.89, Alt: 0}

	// The reference point maps to the origin
	origin := GeodeticToENU(ref, ref)
	if origin.Norm() > 1e-6 {
		t.Errorf("reference maps to %v, want origin", origin)
	}

	// Raising altitude moves straight up
	up := GeodeticToENU(LLA{ref.Lat, ref.Lon, 100}, ref)
	assert.InDelta(t, 0, up[0], 1e-6)
	assert.InDelta(t, 0, up[1], 1e-6)
	assert.InDelta(t, 100, up[2], 1e-6)

	// A small step north is mostly +N
	north := GeodeticToENU(LLA{ref.Lat + 0.001, ref.Lon, 0}, ref)
	if north[1] < 100 || math.Abs(north[0]) > 1e-3 {
		t.Errorf("north step = %v, want ~ (0, 111, 0)", north)
	}
}

func TestENURotationIsOrthonormal(t *testing.T) {
	ref := LLA{Lat: -12.5, Lon: 77.1}
	v := geom.NewVec(123, -456, 789)
	back := ECEFToENU(ENUToECEF(v, ref), ref)
	if !back.Equal(v, 1e-9) {
		t.Errorf("rotation round trip = %v, want %v", back, v)
	}
	assert.InDelta(t, v.Norm(), ENUToECEF(v, ref).Norm(), 1e-9)
}
