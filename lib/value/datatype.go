package value

import (
	"fmt"
	"strconv"
	"strings"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindTinyInt
	KindSmallInt
	KindInteger
	KindBigInt
	KindReal
	KindDecimal
	KindText
	KindBytes
	KindBoolean
	KindDate
	KindTime
	KindTimestamp
	KindUuid
	KindJson
	KindPlaceholder
)

var kindNames = map[Kind]string{
	KindNull:        "NULL",
	KindTinyInt:     "TINYINT",
	KindSmallInt:    "SMALLINT",
	KindInteger:     "INTEGER",
	KindBigInt:      "BIGINT",
	KindReal:        "REAL",
	KindDecimal:     "DECIMAL",
	KindText:        "TEXT",
	KindBytes:       "BYTES",
	KindBoolean:     "BOOLEAN",
	KindDate:        "DATE",
	KindTime:        "TIME",
	KindTimestamp:   "TIMESTAMP",
	KindUuid:        "UUID",
	KindJson:        "JSON",
	KindPlaceholder: "PLACEHOLDER",
}

var kindAliases = map[string]Kind{
	"INT":     KindInteger,
	"INT2":    KindSmallInt,
	"INT4":    KindInteger,
	"INT8":    KindBigInt,
	"FLOAT":   KindReal,
	"DOUBLE":  KindReal,
	"NUMERIC": KindDecimal,
	"VARCHAR": KindText,
	"STRING":  KindText,
	"BLOB":    KindBytes,
	"BYTEA":   KindBytes,
	"BOOL":    KindBoolean,
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// DataType is the declared type of a column. Precision and Scale are only
// meaningful for DECIMAL.
type DataType struct {
	Kind      Kind
	Precision uint8
	Scale     uint8
}

var (
	TinyIntType   = DataType{Kind: KindTinyInt}
	SmallIntType  = DataType{Kind: KindSmallInt}
	IntegerType   = DataType{Kind: KindInteger}
	BigIntType    = DataType{Kind: KindBigInt}
	RealType      = DataType{Kind: KindReal}
	TextType      = DataType{Kind: KindText}
	BytesType     = DataType{Kind: KindBytes}
	BooleanType   = DataType{Kind: KindBoolean}
	DateType      = DataType{Kind: KindDate}
	TimeType      = DataType{Kind: KindTime}
	TimestampType = DataType{Kind: KindTimestamp}
	UuidType      = DataType{Kind: KindUuid}
	JsonType      = DataType{Kind: KindJson}
)

func DecimalType(precision, scale uint8) DataType {
	return DataType{Kind: KindDecimal, Precision: precision, Scale: scale}
}

func (d DataType) String() string {
	if d.Kind == KindDecimal {
		return fmt.Sprintf("DECIMAL(%d,%d)", d.Precision, d.Scale)
	}
	return d.Kind.String()
}

// ParseDataType parses a SQL type name such as "BIGINT" or "DECIMAL(10,2)".
func ParseDataType(s string) (DataType, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	args := ""
	if i := strings.IndexByte(name, '('); i >= 0 {
		if !strings.HasSuffix(name, ")") {
			return DataType{}, fmt.Errorf("malformed type %q", s)
		}
		args = name[i+1 : len(name)-1]
		name = strings.TrimSpace(name[:i])
	}
	kind, ok := kindAliases[name]
	if !ok {
		found := false
		for k, n := range kindNames {
			if n == name && k != KindNull && k != KindPlaceholder {
				kind, found = k, true
				break
			}
		}
		if !found {
			return DataType{}, fmt.Errorf("unknown type %q", s)
		}
	}
	if kind != KindDecimal {
		if args != "" {
			return DataType{}, fmt.Errorf("type %s takes no arguments", name)
		}
		return DataType{Kind: kind}, nil
	}
	dt := DecimalType(38, 0)
	if args == "" {
		return dt, nil
	}
	parts := strings.Split(args, ",")
	if len(parts) > 2 {
		return DataType{}, fmt.Errorf("malformed type %q", s)
	}
	p, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 8)
	if err != nil {
		return DataType{}, fmt.Errorf("invalid decimal precision in %q: %w", s, err)
	}
	dt.Precision = uint8(p)
	if len(parts) == 2 {
		sc, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 8)
		if err != nil {
			return DataType{}, fmt.Errorf("invalid decimal scale in %q: %w", s, err)
		}
		dt.Scale = uint8(sc)
	}
	if dt.Scale > dt.Precision {
		return DataType{}, fmt.Errorf("decimal scale %d exceeds precision %d", dt.Scale, dt.Precision)
	}
	return dt, nil
}

func (d DataType) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *DataType) UnmarshalText(text []byte) error {
	parsed, err := ParseDataType(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
