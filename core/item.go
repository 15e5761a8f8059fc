package core

import (
	"strconv"
	"strings"

	"github.com/rushteam/recallkit/pkg/utils"
)

// Item 是推荐链路中的统一承载结构（召回 -> 融合 -> 排序 -> 打散）。
// 召回通道创建，按值在链路中传递；排序阶段只改写 Score / SecondaryScore。
// Labels 用于解释与观测。
type Item struct {
	ID             int64
	Category       int32
	ChannelID      int64
	Channel        string
	Score          float32
	SecondaryScore float32
	Labels         map[string]utils.Label
}

// Key 返回物品的缓存 key："<id>_<category>"。
func (it *Item) Key() string {
	return ItemKey(it.ID, it.Category)
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *Item) PutLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}

// SampleInfo 是召回通道从索引数据读出的一条样本，读出后不可变。
type SampleInfo struct {
	ID       int64
	Category int32
	Weight   float32
}

// Key 返回样本的 item key。
func (s SampleInfo) Key() string {
	return ItemKey(s.ID, s.Category)
}

// IDWeight 是按权重降序排列的 (id, weight) 对，用于配额分配。
// 有序是前置条件，不在内部校验。
type IDWeight struct {
	ID     int64
	Weight float32
}

// ItemKey 组装 "<id>_<category>"。
func ItemKey(id int64, category int32) string {
	return strconv.FormatInt(id, 10) + "_" + strconv.FormatInt(int64(category), 10)
}

// ParseItemKey 解析 "<id>_<category>"。
func ParseItemKey(key string) (int64, int32, error) {
	idStr, catStr, ok := strings.Cut(key, "_")
	if !ok {
		return 0, 0, NewDomainError(ModuleRecall, ErrorCodeInvalidInput, "malformed item key "+strconv.Quote(key))
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, 0, WrapDomainError(ModuleRecall, ErrorCodeInvalidInput, err, "malformed item id in %q", key)
	}
	cat, err := strconv.ParseInt(catStr, 10, 32)
	if err != nil {
		return 0, 0, WrapDomainError(ModuleRecall, ErrorCodeInvalidInput, err, "malformed category in %q", key)
	}
	return id, int32(cat), nil
}
