package value

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"vellum/lib/queryerr"

	"github.com/buger/jsonparser"
	"github.com/google/uuid"
)

// ParseJson converts a standalone JSON document to a value of type dt.
func ParseJson(data []byte, dt DataType) (Value, error) {
	vdata, vtype, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, err
	}
	return FromJson(vdata, vtype, dt)
}

// FromJson converts one JSON field, as returned by jsonparser, into a value of
// the column type dt. JSON null is NULL for every type.
func FromJson(vdata []byte, vtype jsonparser.ValueType, dt DataType) (Value, error) {
	if vtype == jsonparser.Null {
		return Nil, nil
	}
	mismatch := func(expected string) error {
		return queryerr.TypeMismatch{Expected: expected, Actual: describeJson(vdata, vtype)}
	}
	switch dt.Kind {
	case KindTinyInt:
		v, ok := parseJsonInt(vdata, vtype, math.MinInt8, math.MaxInt8)
		if !ok {
			return nil, mismatch("tinyint (-128 to 127)")
		}
		return TinyInt(v), nil
	case KindSmallInt:
		v, ok := parseJsonInt(vdata, vtype, math.MinInt16, math.MaxInt16)
		if !ok {
			return nil, mismatch("smallint (-32768 to 32767)")
		}
		return SmallInt(v), nil
	case KindInteger:
		v, ok := parseJsonInt(vdata, vtype, math.MinInt32, math.MaxInt32)
		if !ok {
			return nil, mismatch("integer (-2^31 to 2^31-1)")
		}
		return Integer(v), nil
	case KindBigInt:
		v, ok := parseJsonInt(vdata, vtype, math.MinInt64, math.MaxInt64)
		if !ok {
			return nil, mismatch("bigint")
		}
		return BigInt(v), nil
	case KindDate:
		v, ok := parseJsonInt(vdata, vtype, math.MinInt32, math.MaxInt32)
		if !ok {
			return nil, mismatch("date (i32 days)")
		}
		return Date(v), nil
	case KindTime:
		v, ok := parseJsonInt(vdata, vtype, 0, NanosPerDay-1)
		if !ok {
			return nil, mismatch("time (nanoseconds of day)")
		}
		return Time(v), nil
	case KindTimestamp:
		if vtype != jsonparser.Number {
			return nil, mismatch("timestamp")
		}
		v, err := strconv.ParseUint(string(vdata), 10, 64)
		if err != nil {
			return nil, mismatch("timestamp")
		}
		return Timestamp(v), nil
	case KindReal:
		if vtype != jsonparser.Number {
			return nil, mismatch("real (f64)")
		}
		v, err := jsonparser.ParseFloat(vdata)
		if err != nil {
			return nil, mismatch("real (f64)")
		}
		return Real(v), nil
	case KindDecimal:
		if vtype != jsonparser.String {
			return nil, mismatch(fmt.Sprintf("decimal with scale %d", dt.Scale))
		}
		s, err := jsonparser.ParseString(vdata)
		if err != nil {
			return nil, err
		}
		return ParseDecimal(s, dt.Scale)
	case KindText:
		if vtype != jsonparser.String {
			return nil, mismatch("text")
		}
		s, err := jsonparser.ParseString(vdata)
		if err != nil {
			return nil, err
		}
		return Text(s), nil
	case KindBytes:
		if vtype != jsonparser.String {
			return nil, mismatch("base64 bytes")
		}
		s, err := jsonparser.ParseString(vdata)
		if err != nil {
			return nil, err
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, queryerr.TypeMismatch{Expected: "base64 bytes", Actual: err.Error()}
		}
		return Bytes(decoded), nil
	case KindBoolean:
		if vtype != jsonparser.Boolean {
			return nil, mismatch("boolean")
		}
		b, err := jsonparser.ParseBoolean(vdata)
		if err != nil {
			return nil, err
		}
		return Boolean(b), nil
	case KindUuid:
		if vtype != jsonparser.String {
			return nil, mismatch("UUID (32 hex digits)")
		}
		s, err := jsonparser.ParseString(vdata)
		if err != nil {
			return nil, err
		}
		return ParseUuid(s)
	case KindJson:
		if vtype == jsonparser.String {
			// jsonparser strips the quotes of string values.
			str, err := jsonparser.ParseString(vdata)
			if err != nil {
				return nil, err
			}
			quoted, err := json.Marshal(str)
			if err != nil {
				return nil, err
			}
			return Json(quoted), nil
		}
		return Json(vdata), nil
	}
	return nil, mismatch(dt.String())
}

// ParseDecimal parses "123.45" into a mantissa at the given scale, padding or
// truncating the fractional digits. The fraction of a negative number extends
// its magnitude, so "-0.5" at scale 1 is -5.
func ParseDecimal(s string, scale uint8) (Decimal, error) {
	mismatch := queryerr.TypeMismatch{Expected: fmt.Sprintf("decimal with scale %d", scale), Actual: s}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Decimal{}, mismatch
	}
	intPart, ok := new(big.Int).SetString(parts[0], 10)
	if !ok {
		return Decimal{}, mismatch
	}
	multiplier := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)
	mantissa := new(big.Int).Mul(intPart, multiplier)
	if len(parts) == 2 {
		frac := parts[1]
		if len(frac) > int(scale) {
			frac = frac[:scale]
		} else {
			frac += strings.Repeat("0", int(scale)-len(frac))
		}
		if frac != "" {
			if strings.ContainsAny(frac, "+-") {
				return Decimal{}, mismatch
			}
			fracVal, ok := new(big.Int).SetString(frac, 10)
			if !ok {
				return Decimal{}, mismatch
			}
			if strings.HasPrefix(s, "-") {
				mantissa.Sub(mantissa, fracVal)
			} else {
				mantissa.Add(mantissa, fracVal)
			}
		}
	}
	m, ok := Int128FromBig(mantissa)
	if !ok {
		return Decimal{}, mismatch
	}
	return Decimal{Mantissa: m, Scale: scale}, nil
}

// ParseUuid accepts 32 hex digits with or without hyphens.
func ParseUuid(s string) (Uuid, error) {
	hex := strings.ReplaceAll(s, "-", "")
	if len(hex) != 32 {
		return Uuid{}, queryerr.TypeMismatch{Expected: "UUID (32 hex digits)", Actual: s}
	}
	u, err := uuid.Parse(hex)
	if err != nil {
		return Uuid{}, queryerr.TypeMismatch{Expected: "UUID (valid hex)", Actual: s}
	}
	return Uuid(u), nil
}

// ToJson renders a value the way it is stored in a row document.
func ToJson(val Value) ([]byte, error) {
	switch v := val.(type) {
	case nil, Null, Placeholder:
		return []byte("null"), nil
	case TinyInt, SmallInt, Integer, BigInt, Date, Time, Timestamp, Boolean:
		return []byte(jsonScalar(v)), nil
	case Real:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return []byte("null"), nil
		}
		return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
	case Decimal:
		return json.Marshal(v.String())
	case Text:
		return json.Marshal(string(v))
	case Bytes:
		return json.Marshal(base64.StdEncoding.EncodeToString(v))
	case Uuid:
		return json.Marshal(v.String())
	case Json:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("json serialization for %T not implemented", val)
	}
}

// ToJsonRow renders a row as a JSON object keyed by column name.
func ToJsonRow(columns []string, row []Value) ([]byte, error) {
	if len(columns) != len(row) {
		return nil, fmt.Errorf("row has %d values for %d columns", len(row), len(columns))
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, col := range columns {
		if i > 0 {
			sb.WriteByte(',')
		}
		name, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		sb.Write(name)
		sb.WriteByte(':')
		data, err := ToJson(row[i])
		if err != nil {
			return nil, err
		}
		sb.Write(data)
	}
	sb.WriteByte('}')
	return []byte(sb.String()), nil
}

func jsonScalar(v Value) string {
	switch x := v.(type) {
	case Date:
		return strconv.FormatInt(int64(x), 10)
	case Time:
		return strconv.FormatInt(int64(x), 10)
	case Timestamp:
		return strconv.FormatUint(uint64(x), 10)
	}
	return v.String()
}

func parseJsonInt(vdata []byte, vtype jsonparser.ValueType, min, max int64) (int64, bool) {
	if vtype != jsonparser.Number {
		return 0, false
	}
	v, err := jsonparser.ParseInt(vdata)
	if err != nil || v < min || v > max {
		return 0, false
	}
	return v, true
}

func describeJson(vdata []byte, vtype jsonparser.ValueType) string {
	switch vtype {
	case jsonparser.String:
		return fmt.Sprintf("string %q", vdata)
	case jsonparser.Number:
		return fmt.Sprintf("number %s", vdata)
	}
	return fmt.Sprintf("%s %s", vtype, vdata)
}
