// Package codex encodes sequences of values into keys whose unsigned byte
// order follows the values' order, column by column.
//
// Every value is written as a one byte type tag followed by its payload.
// Fixed-width integers use sign-flip encoding, reals use the IEEE total order
// transform, and text/bytes carry a 4 byte big-endian length prefix. Because
// of that prefix, variable-length values order by length before content.
package codex

import (
	"encoding/binary"
	"fmt"
	"math"

	"vellum/lib/value"
)

// Tag identifies the type of the value that follows it in a key.
type Tag uint8

const (
	TagNull      Tag = 0x00
	TagBigInt    Tag = 0x01
	TagText      Tag = 0x02
	TagBoolean   Tag = 0x03
	TagTimestamp Tag = 0x04
	TagBytes     Tag = 0x05
	TagInteger   Tag = 0x06
	TagSmallInt  Tag = 0x07
	TagTinyInt   Tag = 0x08
	TagReal      Tag = 0x09
	TagDecimal   Tag = 0x0A
	TagUuid      Tag = 0x0B
	TagJson      Tag = 0x0C
	TagDate      Tag = 0x0D
	TagTime      Tag = 0x0E
)

// Key is an encoded, opaque, ordered byte string.
type Key []byte

func (k Key) String() string {
	return fmt.Sprintf("%x", []byte(k))
}

// MinKey sorts before every encoded key.
func MinKey() Key {
	return Key{}
}

// MaxKey sorts after every encoded key: no type tag is 0xFF.
func MaxKey() Key {
	k := make(Key, 16)
	for i := range k {
		k[i] = 0xFF
	}
	return k
}

// Encode builds a composite key from values, in order. Json values and unbound
// placeholders cannot be keys; passing one panics.
func Encode(values []value.Value) Key {
	buf := make([]byte, 0, 64)
	for _, v := range values {
		buf = Append(buf, v)
	}
	return buf
}

// Append encodes a single value onto buf.
func Append(buf []byte, v value.Value) []byte {
	switch x := v.(type) {
	case nil, value.Null:
		return append(buf, byte(TagNull))
	case value.BigInt:
		buf = append(buf, byte(TagBigInt))
		return appendUint64(buf, uint64(x)^(1<<63))
	case value.Text:
		buf = append(buf, byte(TagText))
		buf = appendUint32(buf, uint32(len(x)))
		return append(buf, string(x)...)
	case value.Boolean:
		buf = append(buf, byte(TagBoolean))
		if x {
			return append(buf, 1)
		}
		return append(buf, 0)
	case value.Timestamp:
		buf = append(buf, byte(TagTimestamp))
		return appendUint64(buf, uint64(x))
	case value.Bytes:
		buf = append(buf, byte(TagBytes))
		buf = appendUint32(buf, uint32(len(x)))
		return append(buf, x...)
	case value.Integer:
		buf = append(buf, byte(TagInteger))
		return appendUint32(buf, uint32(x)^(1<<31))
	case value.SmallInt:
		buf = append(buf, byte(TagSmallInt))
		return appendUint16(buf, uint16(x)^(1<<15))
	case value.TinyInt:
		return append(buf, byte(TagTinyInt), uint8(x)^0x80)
	case value.Real:
		buf = append(buf, byte(TagReal))
		return appendUint64(buf, value.FloatOrderBits(float64(x)))
	case value.Decimal:
		buf = append(buf, byte(TagDecimal))
		buf = appendUint64(buf, uint64(x.Mantissa.Hi)^(1<<63))
		buf = appendUint64(buf, x.Mantissa.Lo)
		return append(buf, x.Scale)
	case value.Uuid:
		buf = append(buf, byte(TagUuid))
		return append(buf, x[:]...)
	case value.Date:
		buf = append(buf, byte(TagDate))
		return appendUint32(buf, uint32(x)^(1<<31))
	case value.Time:
		buf = append(buf, byte(TagTime))
		return appendUint64(buf, uint64(x))
	case value.Json:
		panic("codex: json values are not orderable and cannot be encoded into a key")
	case value.Placeholder:
		panic(fmt.Sprintf("codex: cannot encode unbound placeholder %s, bind parameters first", x))
	default:
		panic(fmt.Sprintf("codex: cannot encode %T", v))
	}
}

// Decode splits a key back into its values. Keys are only ever produced by
// Encode, so malformed input means corruption upstream and panics.
func Decode(key Key) []value.Value {
	var values []value.Value
	r := reader{buf: key}
	for r.pos < len(r.buf) {
		values = append(values, r.next())
	}
	return values
}

// Successor returns the key that immediately follows key in a half-open range:
// the last byte is incremented, carrying into earlier bytes. A key made only
// of 0xFF bytes gets a zero byte appended instead.
func Successor(key Key) Key {
	ret := make(Key, len(key), len(key)+1)
	copy(ret, key)
	for i := len(ret) - 1; i >= 0; i-- {
		if ret[i] < 0xFF {
			ret[i]++
			return ret
		}
		ret[i] = 0x00
	}
	copy(ret, key)
	return append(ret, 0x00)
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) take(n int, what string) []byte {
	if len(r.buf)-r.pos < n {
		panic(fmt.Sprintf("codex: truncated %s at offset %d: need %d bytes, have %d", what, r.pos, n, len(r.buf)-r.pos))
	}
	ret := r.buf[r.pos : r.pos+n]
	r.pos += n
	return ret
}

func (r *reader) next() value.Value {
	at := r.pos
	tag := Tag(r.take(1, "tag")[0])
	switch tag {
	case TagNull:
		return value.Nil
	case TagBigInt:
		return value.BigInt(binary.BigEndian.Uint64(r.take(8, "bigint")) ^ (1 << 63))
	case TagText:
		n := binary.BigEndian.Uint32(r.take(4, "text length"))
		return value.Text(r.take(int(n), "text"))
	case TagBoolean:
		return value.Boolean(r.take(1, "boolean")[0] != 0)
	case TagTimestamp:
		return value.Timestamp(binary.BigEndian.Uint64(r.take(8, "timestamp")))
	case TagBytes:
		n := binary.BigEndian.Uint32(r.take(4, "bytes length"))
		data := r.take(int(n), "bytes")
		out := make([]byte, len(data))
		copy(out, data)
		return value.Bytes(out)
	case TagInteger:
		return value.Integer(binary.BigEndian.Uint32(r.take(4, "integer")) ^ (1 << 31))
	case TagSmallInt:
		return value.SmallInt(binary.BigEndian.Uint16(r.take(2, "smallint")) ^ (1 << 15))
	case TagTinyInt:
		return value.TinyInt(r.take(1, "tinyint")[0] ^ 0x80)
	case TagReal:
		bits := binary.BigEndian.Uint64(r.take(8, "real"))
		if bits&(1<<63) != 0 {
			bits ^= 1 << 63
		} else {
			bits = ^bits
		}
		return value.Real(math.Float64frombits(bits))
	case TagDecimal:
		data := r.take(17, "decimal")
		return value.Decimal{
			Mantissa: value.Int128{
				Hi: int64(binary.BigEndian.Uint64(data[:8]) ^ (1 << 63)),
				Lo: binary.BigEndian.Uint64(data[8:16]),
			},
			Scale: data[16],
		}
	case TagUuid:
		var u value.Uuid
		copy(u[:], r.take(16, "uuid"))
		return u
	case TagJson:
		panic(fmt.Sprintf("codex: json tag at offset %d, json values are never encoded", at))
	case TagDate:
		return value.Date(binary.BigEndian.Uint32(r.take(4, "date")) ^ (1 << 31))
	case TagTime:
		return value.Time(binary.BigEndian.Uint64(r.take(8, "time")))
	default:
		panic(fmt.Sprintf("codex: unknown type tag %#02x at offset %d", uint8(tag), at))
	}
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}
