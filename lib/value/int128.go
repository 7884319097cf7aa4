package value

import (
	"math/big"
	"math/bits"
)

// Int128 is a two's complement 128-bit signed integer.
type Int128 struct {
	Hi int64
	Lo uint64
}

var (
	big2to64  = new(big.Int).Lsh(big.NewInt(1), 64)
	maxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

func Int128From64(v int64) Int128 {
	if v < 0 {
		return Int128{Hi: -1, Lo: uint64(v)}
	}
	return Int128{Hi: 0, Lo: uint64(v)}
}

// Int128FromBig converts b, reporting false if it does not fit in 128 bits.
func Int128FromBig(b *big.Int) (Int128, bool) {
	if b.Cmp(maxInt128) > 0 || b.Cmp(minInt128) < 0 {
		return Int128{}, false
	}
	// Euclidean mod keeps the low word non-negative for negative inputs.
	lo := new(big.Int).Mod(b, big2to64)
	hi := new(big.Int).Sub(b, lo)
	hi.Rsh(hi, 64)
	return Int128{Hi: hi.Int64(), Lo: lo.Uint64()}, true
}

func (a Int128) Big() *big.Int {
	ret := big.NewInt(a.Hi)
	ret.Lsh(ret, 64)
	return ret.Add(ret, new(big.Int).SetUint64(a.Lo))
}

func (a Int128) IsNeg() bool {
	return a.Hi < 0
}

func (a Int128) Cmp(b Int128) int {
	switch {
	case a.Hi < b.Hi:
		return -1
	case a.Hi > b.Hi:
		return 1
	case a.Lo < b.Lo:
		return -1
	case a.Lo > b.Lo:
		return 1
	}
	return 0
}

// Add returns a+b, wrapping on overflow.
func (a Int128) Add(b Int128) Int128 {
	lo, carry := bits.Add64(a.Lo, b.Lo, 0)
	hi, _ := bits.Add64(uint64(a.Hi), uint64(b.Hi), carry)
	return Int128{Hi: int64(hi), Lo: lo}
}

func (a Int128) Neg() Int128 {
	lo, borrow := bits.Sub64(0, a.Lo, 0)
	hi, _ := bits.Sub64(0, uint64(a.Hi), borrow)
	return Int128{Hi: int64(hi), Lo: lo}
}

func (a Int128) Float64() float64 {
	f, _ := new(big.Float).SetInt(a.Big()).Float64()
	return f
}
