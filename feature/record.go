package feature

import "github.com/rushteam/recallkit/core"

// ItemBasic 物品基础特征。
type ItemBasic struct {
	ItemID   int64
	Category int32
	Name     string
	Tags     []int32
}

// ItemStatis 物品统计特征。
type ItemStatis struct {
	Click    int64
	Download int64
	Exposure int64
	CTR      float32
}

// ItemIndex 物品关联索引：协同过滤相似物品、点击共现、下载共现。
type ItemIndex struct {
	CFItem        []core.IDWeight
	ClickOccur    []core.IDWeight
	DownloadOccur []core.IDWeight
}

// ItemFeature 是物品特征缓存的值，三部分各自可能缺失。
type ItemFeature struct {
	Basic  *ItemBasic
	Statis *ItemStatis
	Index  *ItemIndex
}

// HasProfile 物品至少有基础或统计特征之一。
func (f *ItemFeature) HasProfile() bool {
	return f != nil && (f.Basic != nil || f.Statis != nil)
}

// UserIndex 用户索引特征。
type UserIndex struct {
	// CFItem 按类目划分的协同过滤物品列表
	CFItem map[int32][]core.IDWeight
	// CategoryPref 用户类目偏好，按权重降序
	CategoryPref []core.IDWeight
}

// IDTime 是物品 id 与行为时间戳（秒）。
type IDTime struct {
	ID        int64
	Timestamp int64
}

// UserDownload 用户按类目的下载记录。
type UserDownload struct {
	Items map[int32][]IDTime
}

// DownloadedAt 返回用户在 category 下对 itemID 最近一次下载的时间戳。
func (d *UserDownload) DownloadedAt(category int32, itemID int64) (int64, bool) {
	if d == nil {
		return 0, false
	}
	var (
		latest int64
		found  bool
	)
	for _, it := range d.Items[category] {
		if it.ID == itemID && (!found || it.Timestamp > latest) {
			latest, found = it.Timestamp, true
		}
	}
	return latest, found
}

// UserFeature 是用户特征缓存的值。
type UserFeature struct {
	Index    *UserIndex
	Download *UserDownload
}
