package geom

import (
	"errors"
	"math"
	"testing"
)

func TestVecArithmetic(t *testing.T) {
	a := NewVec(1, 2, 3)
	b := NewVec(4, 6, 8)

	if got := b.Sub(a); !got.Equal(NewVec(3, 4, 5), 1e-12) {
		t.Errorf("Sub = %v, want [3 4 5]", got)
	}
	if got := a.Add(b); !got.Equal(NewVec(5, 8, 11), 1e-12) {
		t.Errorf("Add = %v, want [5 8 11]", got)
	}
	if got := a.Dot(b); got != 40 {
		t.Errorf("Dot = %v, want 40", got)
	}
	if got := NewVec(3, 4).Norm(); got != 5 {
		t.Errorf("Norm = %v, want 5", got)
	}
	if got := a.Distance(b); math.Abs(got-math.Sqrt(50)) > 1e-12 {
		t.Errorf("Distance = %v, want %v", got, math.Sqrt(50))
	}

	// Scale must not alias the receiver
	s := a.Scale(2)
	if a[0] != 1 || s[0] != 2 {
		t.Errorf("Scale aliased input: a=%v s=%v", a, s)
	}
}

func TestCentroid(t *testing.T) {
	pts := []Vec{
		NewVec(0, 0, 0),
		NewVec(100, 0, 0),
		NewVec(0, 100, 0),
		NewVec(0, 0, 100),
	}
	got := Centroid(pts)
	if !got.Equal(NewVec(25, 25, 25), 1e-12) {
		t.Errorf("Centroid = %v, want [25 25 25]", got)
	}
	if Centroid(nil) != nil {
		t.Error("Centroid(nil) should be nil")
	}
}

func TestCommonDim(t *testing.T) {
	tests := []struct {
		name    string
		vecs    []Vec
		want    int
		wantErr bool
	}{
		{"2d", []Vec{NewVec(0, 0), NewVec(1, 1)}, 2, false},
		{"3d", []Vec{NewVec(0, 0, 0), NewVec(1, 1, 1)}, 3, false},
		{"mixed", []Vec{NewVec(0, 0), NewVec(1, 1, 1)}, 0, true},
		{"1d", []Vec{NewVec(0)}, 0, true},
		{"empty", nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CommonDim(tt.vecs...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CommonDim() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrDimension) {
				t.Errorf("error %v should wrap ErrDimension", err)
			}
			if got != tt.want {
				t.Errorf("CommonDim() = %d, want %d", got, tt.want)
			}
		})
	}
}
