package value

import (
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
)

// Value is a single SQL scalar. The set of implementations is closed: every
// concrete type lives in this file and the executor switches over all of them.
type Value interface {
	isValue()
	Kind() Kind
	String() string
}

var _ Value = Null{}
var _ Value = TinyInt(0)
var _ Value = SmallInt(0)
var _ Value = Integer(0)
var _ Value = BigInt(0)
var _ Value = Real(0)
var _ Value = Decimal{}
var _ Value = Text("")
var _ Value = Bytes(nil)
var _ Value = Boolean(false)
var _ Value = Date(0)
var _ Value = Time(0)
var _ Value = Timestamp(0)
var _ Value = Uuid{}
var _ Value = Json("")
var _ Value = Placeholder(0)

// Nil is the canonical NULL value.
var Nil = Null{}

type Null struct{}

func (Null) isValue()       {}
func (Null) Kind() Kind     { return KindNull }
func (Null) String() string { return "NULL" }

type TinyInt int8

func (TinyInt) isValue()         {}
func (TinyInt) Kind() Kind       { return KindTinyInt }
func (v TinyInt) String() string { return strconv.FormatInt(int64(v), 10) }

type SmallInt int16

func (SmallInt) isValue()         {}
func (SmallInt) Kind() Kind       { return KindSmallInt }
func (v SmallInt) String() string { return strconv.FormatInt(int64(v), 10) }

type Integer int32

func (Integer) isValue()         {}
func (Integer) Kind() Kind       { return KindInteger }
func (v Integer) String() string { return strconv.FormatInt(int64(v), 10) }

type BigInt int64

func (BigInt) isValue()         {}
func (BigInt) Kind() Kind       { return KindBigInt }
func (v BigInt) String() string { return strconv.FormatInt(int64(v), 10) }

type Real float64

func (Real) isValue()   {}
func (Real) Kind() Kind { return KindReal }
func (v Real) String() string {
	return strconv.FormatFloat(float64(v), 'g', -1, 64)
}

// Decimal is a fixed-point number: Mantissa / 10^Scale. Two decimals with the
// same numeric value but different scales are distinct values.
type Decimal struct {
	Mantissa Int128
	Scale    uint8
}

func NewDecimal(mantissa int64, scale uint8) Decimal {
	return Decimal{Mantissa: Int128From64(mantissa), Scale: scale}
}

func (Decimal) isValue()   {}
func (Decimal) Kind() Kind { return KindDecimal }
func (d Decimal) String() string {
	digits := d.Mantissa.Big().String()
	neg := false
	if digits[0] == '-' {
		neg = true
		digits = digits[1:]
	}
	scale := int(d.Scale)
	if scale > 0 {
		for len(digits) <= scale {
			digits = "0" + digits
		}
		digits = digits[:len(digits)-scale] + "." + digits[len(digits)-scale:]
	}
	if neg {
		return "-" + digits
	}
	return digits
}

// Float64 converts the decimal to the nearest float.
func (d Decimal) Float64() float64 {
	return d.Mantissa.Float64() / math.Pow10(int(d.Scale))
}

type Text string

func (Text) isValue()         {}
func (Text) Kind() Kind       { return KindText }
func (v Text) String() string { return "'" + string(v) + "'" }

type Bytes []byte

func (Bytes) isValue()         {}
func (Bytes) Kind() Kind       { return KindBytes }
func (v Bytes) String() string { return fmt.Sprintf("<%d bytes>", len(v)) }

type Boolean bool

func (Boolean) isValue()         {}
func (Boolean) Kind() Kind       { return KindBoolean }
func (v Boolean) String() string { return strconv.FormatBool(bool(v)) }

// Date is a day count relative to the unix epoch.
type Date int32

func (Date) isValue()         {}
func (Date) Kind() Kind       { return KindDate }
func (v Date) String() string { return fmt.Sprintf("DATE(%d)", int32(v)) }

// Time is nanoseconds since midnight, in [0, NanosPerDay).
type Time int64

const NanosPerDay = 86_400_000_000_000

func (Time) isValue()         {}
func (Time) Kind() Kind       { return KindTime }
func (v Time) String() string { return fmt.Sprintf("TIME(%d)", int64(v)) }

// Timestamp is nanoseconds since the unix epoch.
type Timestamp uint64

func (Timestamp) isValue()         {}
func (Timestamp) Kind() Kind       { return KindTimestamp }
func (v Timestamp) String() string { return fmt.Sprintf("TIMESTAMP(%d)", uint64(v)) }

type Uuid [16]byte

func (Uuid) isValue()         {}
func (Uuid) Kind() Kind       { return KindUuid }
func (v Uuid) String() string { return uuid.UUID(v).String() }

// Json holds the raw JSON text of a document. It has no total order and can
// never be part of a key.
type Json string

func (Json) isValue()         {}
func (Json) Kind() Kind       { return KindJson }
func (v Json) String() string { return string(v) }

// Placeholder is an unbound positional parameter ($1, $2, ...).
type Placeholder int

func (Placeholder) isValue()         {}
func (Placeholder) Kind() Kind       { return KindPlaceholder }
func (v Placeholder) String() string { return "$" + strconv.Itoa(int(v)) }

func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}
