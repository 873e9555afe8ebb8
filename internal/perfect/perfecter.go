// Package perfect rescales raw counter deltas to the configured sampling
// period. A Perfecter holds the expected and the measured elapsed time of one
// tick and multiplies values by their exact ratio.
package perfect

import (
	"math"
	"math/big"
	"time"
	"unsafe"
)

// floatPrec is the mantissa precision used for float rescaling.
const floatPrec = 128

// Integer is the set of integer kinds a Perfecter can rescale.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Float is the set of floating point kinds a Perfecter can rescale.
type Float interface {
	~float32 | ~float64
}

// Perfecter is an immutable (expected, actual) duration pair.
type Perfecter struct {
	expected time.Duration
	actual   time.Duration
}

// New returns a Perfecter scaling by expected/actual.
func New(expected, actual time.Duration) Perfecter {
	return Perfecter{expected: expected, actual: actual}
}

func (p Perfecter) Expected() time.Duration {
	return p.expected
}

func (p Perfecter) Actual() time.Duration {
	return p.actual
}

// Valid reports whether the ratio is defined. Values passed through an
// invalid Perfecter are returned unchanged.
func (p Perfecter) Valid() bool {
	return p.expected >= 0 && p.actual > 0
}

// Rat returns expected/actual in nanoseconds as an exact rational, or 1 when
// the ratio is undefined.
func (p Perfecter) Rat() *big.Rat {
	if !p.Valid() {
		return big.NewRat(1, 1)
	}

	return big.NewRat(int64(p.expected), int64(p.actual))
}

// Uint64 rescales a uint64 value.
func (p Perfecter) Uint64(v uint64) uint64 {
	return Int(p, v)
}

// Int64 rescales an int64 value.
func (p Perfecter) Int64(v int64) int64 {
	return Int(p, v)
}

// Float64 rescales a float64 value.
func (p Perfecter) Float64(v float64) float64 {
	return FloatOf(p, v)
}

// Int multiplies v by the exact ratio of p, rounds half away from zero and
// saturates at the bounds of T.
func Int[T Integer](p Perfecter, v T) T {
	if !p.Valid() {
		return v
	}

	signed, bits := kind[T]()

	x := new(big.Int)
	if signed {
		x.SetInt64(int64(v))
	} else {
		x.SetUint64(uint64(v))
	}

	r := p.Rat()
	num := x.Mul(x, r.Num())
	den := r.Denom()

	q, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	// round half away from zero: |2*rem| >= den
	if rem.Sign() != 0 && new(big.Int).Lsh(new(big.Int).Abs(rem), 1).Cmp(den) >= 0 {
		if num.Sign() < 0 {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}

	lo, hi := bounds(signed, bits)
	switch {
	case q.Cmp(hi) > 0:
		q = hi
	case q.Cmp(lo) < 0:
		q = lo
	}

	if signed {
		return T(q.Int64())
	}
	return T(q.Uint64())
}

// FloatOf multiplies v by the ratio of p at extended precision and narrows
// the result once.
func FloatOf[T Float](p Perfecter, v T) T {
	f := float64(v)
	if !p.Valid() || math.IsNaN(f) || math.IsInf(f, 0) {
		return v
	}

	x := new(big.Float).SetPrec(floatPrec).SetFloat64(f)
	r := new(big.Float).SetPrec(floatPrec).SetRat(p.Rat())
	out, _ := x.Mul(x, r).Float64()

	return T(out)
}

func kind[T Integer]() (signed bool, bits uint) {
	var zero T
	signed = ^zero < zero
	bits = uint(unsafe.Sizeof(zero)) * 8

	return signed, bits
}

func bounds(signed bool, bits uint) (lo, hi *big.Int) {
	one := big.NewInt(1)
	if signed {
		hi = new(big.Int).Sub(new(big.Int).Lsh(one, bits-1), one)
		lo = new(big.Int).Neg(new(big.Int).Lsh(one, bits-1))
		return lo, hi
	}

	return new(big.Int), new(big.Int).Sub(new(big.Int).Lsh(one, bits), one)
}
