package feature

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/pkg/wire"
)

// 记录采用 protobuf wire 格式，字段号：
//
//	ItemRecall          {1: repeated RecallEntry{1 id, 2 res_type, 3 weight}}
//	IDWeightList        {1: repeated IDWeight{1 id, 2 weight}}
//	ItemFeatureIndex    {1 cf_item, 2 click_occur, 3 download_occur}
//	ItemFeatureBasic    {1 item_id, 2 res_type, 3 name, 4 tags}
//	ItemFeatureStatis   {1 click, 2 download, 3 exposure, 4 ctr}
//	UserFeatureIndex    {1 map<int32, IDWeightList> cf_item, 2 res_type_pref}
//	UserFeatureDownload {1 map<int32, IDTimeList> download_item}

// MarshalInvertIndex 编码倒排索引（ItemRecall）。
func MarshalInvertIndex(samples []core.SampleInfo) []byte {
	var b []byte
	for _, s := range samples {
		var e []byte
		e = wire.AppendVarint(e, 1, s.ID)
		e = wire.AppendVarint(e, 2, int64(s.Category))
		e = wire.AppendFloat(e, 3, s.Weight)
		b = wire.AppendBytes(b, 1, e)
	}
	return b
}

// UnmarshalInvertIndex 解码倒排索引，保持远端顺序。
func UnmarshalInvertIndex(b []byte) ([]core.SampleInfo, error) {
	var out []core.SampleInfo
	err := wire.Parse(b, func(f wire.Field) error {
		if f.Num != 1 || f.Type != protowire.BytesType {
			return nil
		}
		var s core.SampleInfo
		if err := wire.Parse(f.Bytes, func(f wire.Field) error {
			switch f.Num {
			case 1:
				s.ID = f.Int64()
			case 2:
				s.Category = f.Int32()
			case 3:
				s.Weight = f.Float32()
			}
			return nil
		}); err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	if err != nil {
		return nil, core.DecodeError(core.ModuleFeature, err, "invert index")
	}
	return out, nil
}

// idWeightList 编码 IDWeightList 消息体。
func idWeightList(list []core.IDWeight) []byte {
	var body []byte
	for _, iw := range list {
		var e []byte
		e = wire.AppendVarint(e, 1, iw.ID)
		e = wire.AppendFloat(e, 2, iw.Weight)
		body = wire.AppendBytes(body, 1, e)
	}
	return body
}

func appendIDWeights(b []byte, num protowire.Number, list []core.IDWeight) []byte {
	return wire.AppendBytes(b, num, idWeightList(list))
}

func parseIDWeights(b []byte) ([]core.IDWeight, error) {
	out := []core.IDWeight{}
	err := wire.Parse(b, func(f wire.Field) error {
		if f.Num != 1 || f.Type != protowire.BytesType {
			return nil
		}
		var iw core.IDWeight
		if err := wire.Parse(f.Bytes, func(f wire.Field) error {
			switch f.Num {
			case 1:
				iw.ID = f.Int64()
			case 2:
				iw.Weight = f.Float32()
			}
			return nil
		}); err != nil {
			return err
		}
		out = append(out, iw)
		return nil
	})
	return out, err
}

func idTimeList(list []IDTime) []byte {
	var body []byte
	for _, it := range list {
		var e []byte
		e = wire.AppendVarint(e, 1, it.ID)
		e = wire.AppendVarint(e, 2, it.Timestamp)
		body = wire.AppendBytes(body, 1, e)
	}
	return body
}

func parseIDTimes(b []byte) ([]IDTime, error) {
	var out []IDTime
	err := wire.Parse(b, func(f wire.Field) error {
		if f.Num != 1 || f.Type != protowire.BytesType {
			return nil
		}
		var it IDTime
		if err := wire.Parse(f.Bytes, func(f wire.Field) error {
			switch f.Num {
			case 1:
				it.ID = f.Int64()
			case 2:
				it.Timestamp = f.Int64()
			}
			return nil
		}); err != nil {
			return err
		}
		out = append(out, it)
		return nil
	})
	return out, err
}

// mapEntry 解析 map<int32, message> 的一个 entry。
func mapEntry(b []byte) (key int32, val []byte, err error) {
	err = wire.Parse(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			key = f.Int32()
		case 2:
			val = f.Bytes
		}
		return nil
	})
	return key, val, err
}

func appendMapEntry(b []byte, num protowire.Number, key int32, val []byte) []byte {
	var e []byte
	e = wire.AppendVarint(e, 1, int64(key))
	e = wire.AppendBytes(e, 2, val)
	return wire.AppendBytes(b, num, e)
}

// MarshalItemBasic 编码物品基础特征。
func MarshalItemBasic(v *ItemBasic) []byte {
	var b []byte
	b = wire.AppendVarint(b, 1, v.ItemID)
	b = wire.AppendVarint(b, 2, int64(v.Category))
	b = wire.AppendString(b, 3, v.Name)
	b = wire.AppendPackedInt32s(b, 4, v.Tags)
	return b
}

// UnmarshalItemBasic 解码物品基础特征。
func UnmarshalItemBasic(b []byte) (*ItemBasic, error) {
	v := &ItemBasic{}
	err := wire.Parse(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			v.ItemID = f.Int64()
		case 2:
			v.Category = f.Int32()
		case 3:
			v.Name = string(f.Bytes)
		case 4:
			v.Tags, err = wire.Int32s(v.Tags, f)
		}
		return err
	})
	if err != nil {
		return nil, core.DecodeError(core.ModuleFeature, err, "item basic")
	}
	return v, nil
}

// MarshalItemStatis 编码物品统计特征。
func MarshalItemStatis(v *ItemStatis) []byte {
	var b []byte
	b = wire.AppendVarint(b, 1, v.Click)
	b = wire.AppendVarint(b, 2, v.Download)
	b = wire.AppendVarint(b, 3, v.Exposure)
	b = wire.AppendFloat(b, 4, v.CTR)
	return b
}

// UnmarshalItemStatis 解码物品统计特征。
func UnmarshalItemStatis(b []byte) (*ItemStatis, error) {
	v := &ItemStatis{}
	err := wire.Parse(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			v.Click = f.Int64()
		case 2:
			v.Download = f.Int64()
		case 3:
			v.Exposure = f.Int64()
		case 4:
			v.CTR = f.Float32()
		}
		return nil
	})
	if err != nil {
		return nil, core.DecodeError(core.ModuleFeature, err, "item statis")
	}
	return v, nil
}

// MarshalItemIndex 编码物品索引特征。
func MarshalItemIndex(v *ItemIndex) []byte {
	var b []byte
	b = appendIDWeights(b, 1, v.CFItem)
	b = appendIDWeights(b, 2, v.ClickOccur)
	b = appendIDWeights(b, 3, v.DownloadOccur)
	return b
}

// UnmarshalItemIndex 解码物品索引特征。
func UnmarshalItemIndex(b []byte) (*ItemIndex, error) {
	v := &ItemIndex{}
	err := wire.Parse(b, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			v.CFItem, err = parseIDWeights(f.Bytes)
		case 2:
			v.ClickOccur, err = parseIDWeights(f.Bytes)
		case 3:
			v.DownloadOccur, err = parseIDWeights(f.Bytes)
		}
		return err
	})
	if err != nil {
		return nil, core.DecodeError(core.ModuleFeature, err, "item index")
	}
	return v, nil
}

// MarshalUserIndex 编码用户索引特征。
func MarshalUserIndex(v *UserIndex) []byte {
	var b []byte
	for cat, list := range v.CFItem {
		b = appendMapEntry(b, 1, cat, idWeightList(list))
	}
	b = appendIDWeights(b, 2, v.CategoryPref)
	return b
}

// UnmarshalUserIndex 解码用户索引特征。
func UnmarshalUserIndex(b []byte) (*UserIndex, error) {
	v := &UserIndex{CFItem: make(map[int32][]core.IDWeight)}
	err := wire.Parse(b, func(f wire.Field) error {
		switch f.Num {
		case 1:
			cat, val, err := mapEntry(f.Bytes)
			if err != nil {
				return err
			}
			list, err := parseIDWeights(val)
			if err != nil {
				return err
			}
			v.CFItem[cat] = list
		case 2:
			list, err := parseIDWeights(f.Bytes)
			if err != nil {
				return err
			}
			v.CategoryPref = list
		}
		return nil
	})
	if err != nil {
		return nil, core.DecodeError(core.ModuleFeature, err, "user index")
	}
	return v, nil
}

// MarshalUserDownload 编码用户下载记录。
func MarshalUserDownload(v *UserDownload) []byte {
	var b []byte
	for cat, list := range v.Items {
		b = appendMapEntry(b, 1, cat, idTimeList(list))
	}
	return b
}

// UnmarshalUserDownload 解码用户下载记录。
func UnmarshalUserDownload(b []byte) (*UserDownload, error) {
	v := &UserDownload{Items: make(map[int32][]IDTime)}
	err := wire.Parse(b, func(f wire.Field) error {
		if f.Num != 1 {
			return nil
		}
		cat, val, err := mapEntry(f.Bytes)
		if err != nil {
			return err
		}
		list, err := parseIDTimes(val)
		if err != nil {
			return err
		}
		v.Items[cat] = list
		return nil
	})
	if err != nil {
		return nil, core.DecodeError(core.ModuleFeature, err, "user download")
	}
	return v, nil
}
