package vector

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/pkg/wire"
)

// VectorEntry 是向量字典中的一条记录。
//
//	VectorEntry{1 key string, 2 item_id int64, 3 res_type int32, 4 pos int32, 5 repeated float vector}
//
// item_vector 文件使用 item_id/res_type/pos，keyname_vector 文件使用 key。
type VectorEntry struct {
	Key      string
	ItemID   int64
	Category int32
	Pos      int32
	Vector   []float32
}

// MarshalVectorEntry 编码一条记录，向量为 packed float。
func MarshalVectorEntry(e VectorEntry) []byte {
	var b []byte
	b = wire.AppendString(b, 1, e.Key)
	b = wire.AppendVarint(b, 2, e.ItemID)
	b = wire.AppendVarint(b, 3, int64(e.Category))
	b = wire.AppendVarint(b, 4, int64(e.Pos))
	b = wire.AppendPackedFloats(b, 5, e.Vector)
	return b
}

// UnmarshalVectorEntry 解码一条记录。
func UnmarshalVectorEntry(b []byte) (VectorEntry, error) {
	var e VectorEntry
	err := wire.Parse(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			e.Key = string(f.Bytes)
		case 2:
			e.ItemID = f.Int64()
		case 3:
			e.Category = f.Int32()
		case 4:
			e.Pos = f.Int32()
		case 5:
			e.Vector, err = wire.Floats(e.Vector, f)
		}
		return err
	})
	return e, err
}

// EncodeVectorFile 编码 FileData{1: repeated bytes protos}。
func EncodeVectorFile(entries []VectorEntry) []byte {
	var b []byte
	for _, e := range entries {
		b = wire.AppendBytes(b, 1, MarshalVectorEntry(e))
	}
	return b
}

// DecodeVectorFile 解码整个文件；外层结构损坏返回 DECODE_ERROR，单条损坏的记录被跳过。
func DecodeVectorFile(b []byte) (entries []VectorEntry, skipped int, err error) {
	err = wire.Parse(b, func(f wire.Field) error {
		if f.Num != 1 || f.Type != protowire.BytesType {
			return nil
		}
		e, err := UnmarshalVectorEntry(f.Bytes)
		if err != nil {
			skipped++
			return nil
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, skipped, core.DecodeError(core.ModuleANN, err, "vector file")
	}
	return entries, skipped, nil
}

// itemDict 是 item_vector 解析结果：索引位置 -> item key，item key -> 向量。
type itemDict struct {
	keys    map[int32]string
	vectors map[string][]float32
}

// parseItemVectors 维度不符的记录被跳过。
func parseItemVectors(b []byte, dim int) (itemDict, int, error) {
	entries, skipped, err := DecodeVectorFile(b)
	if err != nil {
		return itemDict{}, skipped, err
	}
	d := itemDict{keys: make(map[int32]string, len(entries)), vectors: make(map[string][]float32, len(entries))}
	for _, e := range entries {
		if len(e.Vector) != dim {
			skipped++
			continue
		}
		key := core.ItemKey(e.ItemID, e.Category)
		d.keys[e.Pos] = key
		d.vectors[key] = e.Vector
	}
	return d, skipped, nil
}

// parseKeynameVectors 解析 keyname_vector。
func parseKeynameVectors(b []byte, dim int) (map[string][]float32, int, error) {
	entries, skipped, err := DecodeVectorFile(b)
	if err != nil {
		return nil, skipped, err
	}
	out := make(map[string][]float32, len(entries))
	for _, e := range entries {
		if len(e.Vector) != dim || e.Key == "" {
			skipped++
			continue
		}
		out[e.Key] = e.Vector
	}
	return out, skipped, nil
}
