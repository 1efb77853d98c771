// Package signal models an emitter's transmission and its reception at a
// receiver: symbol generation, sampling, propagation delay, Doppler shift and
// distance-dependent noise. Every stage returns a fresh sample slice.
package signal

import (
	"errors"
	"math/rand/v2"
	"strings"

	"github.com/litescript/ls-tdoa/internal/geom"
	"github.com/litescript/ls-tdoa/internal/validation"
)

// Preamble is prepended to every transmitted message.
const Preamble = "101000010100000"

// ErrInvalidBit is returned for message characters other than '0' and '1'.
var ErrInvalidBit = errors.New("message bit must be '0' or '1'")

// bpsk maps message bits to binary phase-shift keyed symbols.
var bpsk = map[rune]int{
	'0': -1,
	'1': 1,
}

// Emitter is the transmitter being located.
type Emitter struct {
	Frequency float64  // Carrier frequency in Hz
	Position  geom.Vec // meters
	Velocity  geom.Vec // m/s, same dimensionality as Position
}

// NewEmitter validates and copies the emitter state.
func NewEmitter(frequency float64, position, velocity geom.Vec) (Emitter, error) {
	if _, err := geom.CommonDim(position, velocity); err != nil {
		return Emitter{}, validation.New("signal.NewEmitter", err)
	}
	return Emitter{
		Frequency: frequency,
		Position:  position.Clone(),
		Velocity:  velocity.Clone(),
	}, nil
}

// GenerateSignal prepends the preamble to bits and maps each bit to a symbol.
func (e Emitter) GenerateSignal(bits string) ([]int, error) {
	full := Preamble + bits
	symbols := make([]int, 0, len(full))
	for i, b := range full {
		sym, ok := bpsk[b]
		if !ok {
			return nil, validation.Errorf("signal.GenerateSignal", ErrInvalidBit,
				"got %q at message offset %d", b, i-len(Preamble))
		}
		symbols = append(symbols, sym)
	}
	return symbols, nil
}

// RandomMessage returns n uniformly random bits drawn from src.
func RandomMessage(n int, src rand.Source) string {
	rng := rand.New(src)
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		if rng.IntN(2) == 1 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// NewSource returns a deterministic random source for seed. Noise and message
// generation never touch process-wide random state.
func NewSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}
