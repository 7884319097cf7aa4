package value

import (
	"bytes"
	"math"
	"strings"
)

// FloatOrderBits maps a float to an unsigned integer whose natural order is
// the IEEE-754 total order: negatives are complemented, non-negatives get the
// sign bit flipped.
func FloatOrderBits(f float64) uint64 {
	b := math.Float64bits(f)
	if b&(1<<63) != 0 {
		return ^b
	}
	return b ^ (1 << 63)
}

// Compare orders two values. NULL sorts before every other value. Values of
// different kinds, decimals of different scales, and placeholders are
// incomparable, reported by ok=false.
func Compare(a, b Value) (int, bool) {
	an, bn := IsNull(a), IsNull(b)
	switch {
	case an && bn:
		return 0, true
	case an:
		return -1, true
	case bn:
		return 1, true
	}
	switch x := a.(type) {
	case TinyInt:
		if y, ok := b.(TinyInt); ok {
			return cmpOrdered(x, y), true
		}
	case SmallInt:
		if y, ok := b.(SmallInt); ok {
			return cmpOrdered(x, y), true
		}
	case Integer:
		if y, ok := b.(Integer); ok {
			return cmpOrdered(x, y), true
		}
	case BigInt:
		if y, ok := b.(BigInt); ok {
			return cmpOrdered(x, y), true
		}
	case Real:
		if y, ok := b.(Real); ok {
			return cmpOrdered(FloatOrderBits(float64(x)), FloatOrderBits(float64(y))), true
		}
	case Decimal:
		if y, ok := b.(Decimal); ok && x.Scale == y.Scale {
			return x.Mantissa.Cmp(y.Mantissa), true
		}
	case Text:
		if y, ok := b.(Text); ok {
			return strings.Compare(string(x), string(y)), true
		}
	case Bytes:
		if y, ok := b.(Bytes); ok {
			return bytes.Compare(x, y), true
		}
	case Boolean:
		if y, ok := b.(Boolean); ok {
			return cmpOrdered(boolToInt(bool(x)), boolToInt(bool(y))), true
		}
	case Date:
		if y, ok := b.(Date); ok {
			return cmpOrdered(x, y), true
		}
	case Time:
		if y, ok := b.(Time); ok {
			return cmpOrdered(x, y), true
		}
	case Timestamp:
		if y, ok := b.(Timestamp); ok {
			return cmpOrdered(x, y), true
		}
	case Uuid:
		if y, ok := b.(Uuid); ok {
			return bytes.Compare(x[:], y[:]), true
		}
	case Json:
		if y, ok := b.(Json); ok {
			return strings.Compare(string(x), string(y)), true
		}
	}
	return 0, false
}

// Equal reports structural equality. Reals compare by bit pattern and
// decimals compare mantissa and scale.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch x := a.(type) {
	case Real:
		y, ok := b.(Real)
		return ok && math.Float64bits(float64(x)) == math.Float64bits(float64(y))
	case Bytes:
		y, ok := b.(Bytes)
		return ok && bytes.Equal(x, y)
	default:
		return a == b
	}
}

// EqualRows compares two rows element by element.
func EqualRows(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// AsInt64 widens any signed integer kind to int64.
func AsInt64(v Value) (int64, bool) {
	switch x := v.(type) {
	case TinyInt:
		return int64(x), true
	case SmallInt:
		return int64(x), true
	case Integer:
		return int64(x), true
	case BigInt:
		return int64(x), true
	}
	return 0, false
}

type ordered interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint64 | ~int
}

func cmpOrdered[T ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
