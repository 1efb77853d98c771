package signal

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litescript/ls-tdoa/internal/geom"
	"github.com/litescript/ls-tdoa/internal/validation"
)

func testEmitter(t *testing.T) Emitter {
	t.Helper()
	e, err := NewEmitter(1090e6, geom.NewVec(100, 100, 100), geom.NewVec(0, -70, 0))
	require.NoError(t, err)
	return e
}

func TestGenerateSignal(t *testing.T) {
	e := testEmitter(t)

	symbols, err := e.GenerateSignal("01")
	require.NoError(t, err)
	require.Len(t, symbols, len(Preamble)+2)

	// Preamble first, then the message
	for i, b := range Preamble {
		want := -1
		if b == '1' {
			want = 1
		}
		if symbols[i] != want {
			t.Errorf("symbol %d = %d, want %d", i, symbols[i], want)
		}
	}
	assert.Equal(t, -1, symbols[len(Preamble)])
	assert.Equal(t, 1, symbols[len(Preamble)+1])
}

func TestGenerateSignal_InvalidBit(t *testing.T) {
	e := testEmitter(t)
	_, err := e.GenerateSignal("01x1")
	if !errors.Is(err, ErrInvalidBit) {
		t.Fatalf("GenerateSignal error = %v, want ErrInvalidBit", err)
	}
	if !validation.Is(err) {
		t.Errorf("error %v should be a validation error", err)
	}
}

func TestNewEmitter_DimensionMismatch(t *testing.T) {
	_, err := NewEmitter(1e9, geom.NewVec(0, 0, 0), geom.NewVec(1, 1))
	if !errors.Is(err, geom.ErrDimension) {
		t.Errorf("NewEmitter error = %v, want ErrDimension", err)
	}
}

func TestSampleSignal(t *testing.T) {
	tests := []struct {
		name      string
		expansion Expansion
		symbols   []int
		want      []complex128
	}{
		{
			name:      "hold",
			expansion: HoldExpansion,
			symbols:   []int{1, -1},
			want:      []complex128{1, 1, 1, 1, -1, -1, -1, -1},
		},
		{
			name:      "ppm",
			expansion: PPMExpansion,
			symbols:   []int{1, -1},
			want:      []complex128{1, 1, 0, 0, 0, 0, 1, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// 4 MHz at 1 µs/bit -> 4 samples per bit
			r := Receiver{SampleRate: 4e6, BitDuration: 1e-6, Position: geom.NewVec(0, 0, 0), Expansion: tt.expansion}
			got := r.SampleSignal(tt.symbols)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSamplesPerBitRounds(t *testing.T) {
	r := Receiver{SampleRate: 21.8e6, BitDuration: 1e-6}
	if got := r.SamplesPerBit(); got != 22 {
		t.Errorf("SamplesPerBit() = %d, want 22", got)
	}
}

func TestDelayKernel(t *testing.T) {
	for _, frac := range []float64{0, 0.25, 0.5, 0.9} {
		h := DelayKernel(frac)
		require.Len(t, h, KernelTaps)

		var sum float64
		for _, v := range h {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-12, "DC gain for frac=%v", frac)
	}

	// Zero fractional delay collapses to a unit impulse at the center tap
	h := DelayKernel(0)
	for n, v := range h {
		want := 0.0
		if n == KernelTaps/2 {
			want = 1
		}
		assert.InDelta(t, want, v, 1e-12, "tap %d", n)
	}
}

func TestAddTimeDelay_WholeSamples(t *testing.T) {
	// One sample per meter of path: 10 m -> 10 samples
	r := Receiver{SampleRate: geom.SpeedOfLight, BitDuration: 1e-6, Position: geom.NewVec(0, 0, 0)}
	e := Emitter{Frequency: 1e9, Position: geom.NewVec(10, 0, 0), Velocity: geom.NewVec(0, 0, 0)}

	sig := make([]complex128, 64)
	for i := range sig {
		sig[i] = complex(float64(i+1), -float64(i))
	}

	delayed, delay := r.AddTimeDelay(sig, e)
	require.Len(t, delayed, len(sig))
	assert.InDelta(t, 10/geom.SpeedOfLight, delay, 1e-18)

	for i := 0; i < 10; i++ {
		if cmplx.Abs(delayed[i]) > 1e-6 {
			t.Fatalf("sample %d = %v, want leading zero", i, delayed[i])
		}
	}
	for i := 10; i < len(sig); i++ {
		if cmplx.Abs(delayed[i]-sig[i-10]) > 1e-6 {
			t.Errorf("sample %d = %v, want %v", i, delayed[i], sig[i-10])
		}
	}
}

func TestAddTimeDelay_BeyondSignal(t *testing.T) {
	r := Receiver{SampleRate: geom.SpeedOfLight, BitDuration: 1e-6, Position: geom.NewVec(0, 0)}
	e := Emitter{Frequency: 1e9, Position: geom.NewVec(1000, 0), Velocity: geom.NewVec(0, 0)}

	sig := []complex128{1, 1, 1, 1}
	delayed, _ := r.AddTimeDelay(sig, e)
	for i, v := range delayed {
		if v != 0 {
			t.Errorf("sample %d = %v, want 0", i, v)
		}
	}
}

func TestApplyDoppler(t *testing.T) {
	// Emitter closing on the receiver at 10 m/s along x
	r := Receiver{SampleRate: 1e6, BitDuration: 1e-6, Position: geom.NewVec(100, 0, 0)}
	e := Emitter{Frequency: 1090e6, Position: geom.NewVec(0, 0, 0), Velocity: geom.NewVec(10, 0, 0)}

	sig := make([]complex128, 32)
	for i := range sig {
		sig[i] = 1
	}

	shifted, f := r.ApplyDoppler(sig, e)
	wantF := 10 / geom.SpeedOfLight * 1090e6
	assert.InDelta(t, wantF, f, 1e-9)
	if f <= 0 {
		t.Errorf("approaching emitter should give positive Doppler, got %v", f)
	}

	for n, s := range shifted {
		want := cmplx.Exp(complex(0, 2*math.Pi*wantF*float64(n)/r.SampleRate))
		if cmplx.Abs(s-want) > 1e-9 {
			t.Errorf("sample %d = %v, want %v", n, s, want)
		}
	}
}

func TestDopplerShift_Perpendicular(t *testing.T) {
	e := Emitter{Frequency: 1e9, Position: geom.NewVec(0, 0), Velocity: geom.NewVec(0, 50)}
	if f := DopplerShift(e, geom.NewVec(100, 0)); math.Abs(f) > 1e-12 {
		t.Errorf("perpendicular motion Doppler = %v, want 0", f)
	}
	if f := DopplerShift(e, geom.NewVec(0, 0)); f != 0 {
		t.Errorf("co-located Doppler = %v, want 0", f)
	}
}

func TestSNRFromDistance(t *testing.T) {
	tests := []struct {
		d    float64
		want float64
	}{
		{0, 4},
		{200000, 2.5},
		{400000, 1},
		{1e7, 1},
		{-5, 4},
	}
	for _, tt := range tests {
		if got := SNRFromDistance(tt.d); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("SNRFromDistance(%v) = %v, want %v", tt.d, got, tt.want)
		}
	}
}

func TestAddNoise_SeededAndScaled(t *testing.T) {
	r := Receiver{SampleRate: 1e6, BitDuration: 1e-6, Position: geom.NewVec(0, 0, 0)}
	e := Emitter{Frequency: 1e9, Position: geom.NewVec(200000, 0, 0), Velocity: geom.NewVec(0, 0, 0)}

	sig := make([]complex128, 20000)
	for i := range sig {
		sig[i] = 1
	}

	a := r.AddNoise(sig, e, NewSource(7))
	b := r.AddNoise(sig, e, NewSource(7))
	assert.Equal(t, a, b, "same seed must give identical noise")

	c := r.AddNoise(sig, e, NewSource(8))
	assert.NotEqual(t, a, c, "different seeds should differ")

	// Unit power at SNR 2.5 -> total noise variance 0.4
	var v float64
	for i := range a {
		d := a[i] - sig[i]
		v += real(d)*real(d) + imag(d)*imag(d)
	}
	v /= float64(len(a))
	assert.InDelta(t, 0.4, v, 0.02)

	// Input is untouched
	assert.Equal(t, complex(1, 0), sig[0])
}

func TestReceive(t *testing.T) {
	e := testEmitter(t)
	r, err := NewReceiver(21.8e6, 1e-6, geom.NewVec(0, 0, 0))
	require.NoError(t, err)

	symbols, err := e.GenerateSignal("1011")
	require.NoError(t, err)

	rx := r.Receive(symbols, e, nil)
	assert.Len(t, rx.Signal, len(symbols)*22)
	assert.InDelta(t, e.Position.Distance(r.Position)/geom.SpeedOfLight, rx.Delay, 1e-18)
	assert.InDelta(t, DopplerShift(e, r.Position), rx.Doppler, 1e-12)

	noisy := r.Receive(symbols, e, NewSource(1))
	assert.Len(t, noisy.Signal, len(rx.Signal))
	assert.NotEqual(t, rx.Signal, noisy.Signal)
}

func TestNewReceiver_Validation(t *testing.T) {
	if _, err := NewReceiver(0, 1e-6, geom.NewVec(0, 0)); !validation.Is(err) {
		t.Errorf("zero sample rate: err = %v, want validation error", err)
	}
	if _, err := NewReceiver(1e6, 1e-6, geom.NewVec(0)); !errors.Is(err, geom.ErrDimension) {
		t.Errorf("1D position: err = %v, want ErrDimension", err)
	}
}

func TestRandomMessage(t *testing.T) {
	a := RandomMessage(64, NewSource(3))
	b := RandomMessage(64, NewSource(3))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	for _, c := range a {
		if c != '0' && c != '1' {
			t.Fatalf("unexpected character %q", c)
		}
	}
}
