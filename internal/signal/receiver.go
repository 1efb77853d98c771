package signal

import (
	"errors"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/litescript/ls-tdoa/internal/geom"
	"github.com/litescript/ls-tdoa/internal/validation"
)

// Expansion selects how a symbol is expanded into samples.
type Expansion int

const (
	// HoldExpansion repeats the symbol value for the whole bit (zero-order hold).
	HoldExpansion Expansion = iota

	// PPMExpansion is pulse-position: +1 fills the first half of the bit,
	// anything else fills the second half.
	PPMExpansion
)

// String returns the configuration name of the expansion.
func (x Expansion) String() string {
	switch x {
	case HoldExpansion:
		return "hold"
	case PPMExpansion:
		return "ppm"
	default:
		return "unknown"
	}
}

// ParseExpansion parses a configuration name. Unknown names select HoldExpansion.
func ParseExpansion(s string) Expansion {
	if s == "ppm" || s == "PPM" {
		return PPMExpansion
	}
	return HoldExpansion
}

// Fractional delay filter parameters
const (
	// KernelTaps is the windowed-sinc length. Odd, so "same" alignment adds
	// no half-sample bias.
	KernelTaps = 101

	// SNR model: linear in distance between these bounds
	snrNear      = 4.0
	snrFar       = 1.0
	snrMaxRangeM = 400000.0
)

var errBadRate = errors.New("sample rate and bit duration must be positive")

// Receiver samples the emitted signal at a fixed position.
type Receiver struct {
	SampleRate  float64  // samples/s
	BitDuration float64  // s/bit
	Position    geom.Vec // meters
	Expansion   Expansion
}

// NewReceiver validates and copies the receiver parameters.
func NewReceiver(sampleRate, bitDuration float64, position geom.Vec) (Receiver, error) {
	if sampleRate <= 0 || bitDuration <= 0 {
		return Receiver{}, validation.New("signal.NewReceiver", errBadRate)
	}
	if _, err := geom.CommonDim(position); err != nil {
		return Receiver{}, validation.New("signal.NewReceiver", err)
	}
	return Receiver{
		SampleRate:  sampleRate,
		BitDuration: bitDuration,
		Position:    position.Clone(),
	}, nil
}

// SamplesPerBit returns round(SampleRate * BitDuration).
func (r Receiver) SamplesPerBit() int {
	return int(math.Round(r.SampleRate * r.BitDuration))
}

// SampleSignal expands each symbol into SamplesPerBit samples.
func (r Receiver) SampleSignal(symbols []int) []complex128 {
	spb := r.SamplesPerBit()
	out := make([]complex128, 0, spb*len(symbols))

	switch r.Expansion {
	case PPMExpansion:
		half := spb / 2
		for _, sym := range symbols {
			first, second := complex(0, 0), complex(1, 0)
			if sym == 1 {
				first, second = second, first
			}
			for i := 0; i < spb; i++ {
				if i < half {
					out = append(out, first)
				} else {
					out = append(out, second)
				}
			}
		}
	default:
		for _, sym := range symbols {
			v := complex(float64(sym), 0)
			for i := 0; i < spb; i++ {
				out = append(out, v)
			}
		}
	}
	return out
}

// DelayKernel returns the Blackman-windowed sinc interpolator for a
// fractional delay in [0, 1) samples, normalized to unit DC gain.
func DelayKernel(frac float64) []float64 {
	h := make([]float64, KernelTaps)
	center := float64(KernelTaps-1) / 2
	for n := range h {
		h[n] = sinc(float64(n) - center - frac)
	}
	window.Blackman(h)
	floats.Scale(1/floats.Sum(h), h)
	return h
}

// AddTimeDelay delays the signal by the propagation time from the emitter.
// The whole-sample part is realized as leading zeros and the remainder with
// DelayKernel. The output keeps the input length. The true delay in seconds
// is returned for evaluation.
func (r Receiver) AddTimeDelay(sig []complex128, e Emitter) ([]complex128, float64) {
	delay := e.Position.Distance(r.Position) / geom.SpeedOfLight

	delaySamples := delay * r.SampleRate
	whole := int(math.Floor(delaySamples))
	frac := delaySamples - float64(whole)

	filtered := convolveSame(sig, DelayKernel(frac))

	out := make([]complex128, len(sig))
	if whole < len(sig) {
		copy(out[whole:], filtered)
	}
	return out, delay
}

// ApplyDoppler shifts the signal by the Doppler frequency seen at this
// receiver. An emitter closing on the receiver produces a positive shift.
func (r Receiver) ApplyDoppler(sig []complex128, e Emitter) ([]complex128, float64) {
	shift := DopplerShift(e, r.Position)

	out := make([]complex128, len(sig))
	w := 2 * math.Pi * shift / r.SampleRate
	for n, s := range sig {
		phase := w * float64(n)
		out[n] = s * complex(math.Cos(phase), math.Sin(phase))
	}
	return out, shift
}

// DopplerShift returns f0·v/c where v is the emitter velocity projected on the
// direction from emitter to receiver.
func DopplerShift(e Emitter, receiver geom.Vec) float64 {
	los := receiver.Sub(e.Position)
	dist := los.Norm()
	if dist == 0 {
		return 0
	}
	v := e.Velocity.Dot(los) / dist
	return v / geom.SpeedOfLight * e.Frequency
}

// SNRFromDistance is the linear distance model: 4 at the receiver falling to
// 1 at 400 km, clamped outside that range.
func SNRFromDistance(d float64) float64 {
	d = math.Max(0, math.Min(d, snrMaxRangeM))
	return snrNear + (snrFar-snrNear)/snrMaxRangeM*d
}

// NoiseVariance returns signal power / SNR for the given distance.
func NoiseVariance(sig []complex128, distance float64) float64 {
	if len(sig) == 0 {
		return 0
	}
	var power float64
	for _, s := range sig {
		power += real(s)*real(s) + imag(s)*imag(s)
	}
	power /= float64(len(sig))
	return power / SNRFromDistance(distance)
}

// AddNoise adds complex Gaussian noise whose total variance is
// NoiseVariance, split evenly between the real and imaginary parts.
func (r Receiver) AddNoise(sig []complex128, e Emitter, src rand.Source) []complex128 {
	variance := NoiseVariance(sig, e.Position.Distance(r.Position))
	dist := distuv.Normal{Mu: 0, Sigma: math.Sqrt(variance / 2), Src: src}

	out := make([]complex128, len(sig))
	for i, s := range sig {
		out[i] = s + complex(dist.Rand(), dist.Rand())
	}
	return out
}

// Reception is a received signal with the ground-truth propagation values
// used to produce it.
type Reception struct {
	Signal  []complex128
	Delay   float64 // seconds
	Doppler float64 // Hz
}

// Receive runs sample -> delay -> Doppler -> noise. A nil src disables the
// noise stage.
func (r Receiver) Receive(symbols []int, e Emitter, src rand.Source) Reception {
	sig := r.SampleSignal(symbols)
	sig, delay := r.AddTimeDelay(sig, e)
	sig, doppler := r.ApplyDoppler(sig, e)
	if src != nil {
		sig = r.AddNoise(sig, e, src)
	}
	return Reception{Signal: sig, Delay: delay, Doppler: doppler}
}

// convolveSame returns the centered len(x) part of the full convolution of x
// with an odd-length real kernel h.
func convolveSame(x []complex128, h []float64) []complex128 {
	out := make([]complex128, len(x))
	half := (len(h) - 1) / 2
	for k := range out {
		var acc complex128
		for j, hj := range h {
			idx := k + half - j
			if idx < 0 || idx >= len(x) {
				continue
			}
			acc += x[idx] * complex(hj, 0)
		}
		out[k] = acc
	}
	return out
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}
