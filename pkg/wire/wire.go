// Package wire 提供基于 protowire 的轻量编解码辅助，用于 Redis 记录与向量字典文件。
package wire

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field 是解析出的一个字段。
type Field struct {
	Num     protowire.Number
	Type    protowire.Type
	Varint  uint64
	Fixed32 uint32
	Fixed64 uint64
	Bytes   []byte
}

// Int64 以 int64 解释 varint。
func (f Field) Int64() int64 { return int64(f.Varint) }

// Int32 以 int32 解释 varint。
func (f Field) Int32() int32 { return int32(f.Varint) }

// Float32 以 float 解释 fixed32。
func (f Field) Float32() float32 { return math.Float32frombits(f.Fixed32) }

// Parse 逐个解析 b 中的字段并回调 fn；未知 wire 类型（group）会被跳过。
func Parse(b []byte, fn func(f Field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			f.Varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			f.Fixed32, n = protowire.ConsumeFixed32(b)
		case protowire.Fixed64Type:
			f.Fixed64, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// Floats 解析 repeated float：packed（bytes）与非 packed（fixed32）两种形式都追加到 dst。
func Floats(dst []float32, f Field) ([]float32, error) {
	switch f.Type {
	case protowire.Fixed32Type:
		return append(dst, f.Float32()), nil
	case protowire.BytesType:
		b := f.Bytes
		for len(b) > 0 {
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return dst, protowire.ParseError(n)
			}
			dst = append(dst, math.Float32frombits(v))
			b = b[n:]
		}
		return dst, nil
	default:
		return dst, nil
	}
}

// Int32s 解析 repeated int32：packed 与非 packed 两种形式。
func Int32s(dst []int32, f Field) ([]int32, error) {
	switch f.Type {
	case protowire.VarintType:
		return append(dst, f.Int32()), nil
	case protowire.BytesType:
		b := f.Bytes
		for len(b) > 0 {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return dst, protowire.ParseError(n)
			}
			dst = append(dst, int32(v))
			b = b[n:]
		}
		return dst, nil
	default:
		return dst, nil
	}
}

// AppendVarint 写入 varint 字段，零值省略。
func AppendVarint(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

// AppendFloat 写入 float 字段，零值省略。
func AppendFloat(b []byte, num protowire.Number, v float32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}

// AppendString 写入 string 字段，空串省略。
func AppendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// AppendBytes 写入 bytes / 嵌套消息字段（总是写入，空消息也保留）。
func AppendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// AppendPackedFloats 写入 packed repeated float，按 IEEE-754 位原样保存。
func AppendPackedFloats(b []byte, num protowire.Number, vs []float32) []byte {
	if len(vs) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(4*len(vs)))
	for _, v := range vs {
		b = protowire.AppendFixed32(b, math.Float32bits(v))
	}
	return b
}

// AppendPackedInt32s 写入 packed repeated int32。
func AppendPackedInt32s(b []byte, num protowire.Number, vs []int32) []byte {
	if len(vs) == 0 {
		return b
	}
	var body []byte
	for _, v := range vs {
		body = protowire.AppendVarint(body, uint64(int64(v)))
	}
	return AppendBytes(b, num, body)
}
