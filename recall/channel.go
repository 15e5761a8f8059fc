package recall

import (
	"strconv"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/feature"
)

// ChannelKind 是召回类型的数值 id，同时写入 Item.ChannelID。
type ChannelKind int64

const (
	KindNone ChannelKind = 0

	// 单索引：上下文类目的倒排索引
	KindHot     ChannelKind = 1
	KindQuality ChannelKind = 2
	KindSurge   ChannelKind = 3
	KindCTCVR   ChannelKind = 4
	KindDLR     ChannelKind = 5

	// 其他场景：用户 / 上下文物品的特征列表
	KindUserCF ChannelKind = 10
	KindItemCF ChannelKind = 11

	KindItemAnnoy ChannelKind = 20

	KindClickOccur    ChannelKind = 30
	KindDownloadOccur ChannelKind = 31

	// 多索引：按用户类目偏好分配配额
	KindUserHot     ChannelKind = 40
	KindUserQuality ChannelKind = 41
)

var kindByName = map[string]ChannelKind{
	"ResType_Hot":          KindHot,
	"ResType_Quality":      KindQuality,
	"ResType_Surge":        KindSurge,
	"ResType_CTCVR":        KindCTCVR,
	"ResType_DLR":          KindDLR,
	"ResType_User_CF":      KindUserCF,
	"Item_CF":              KindItemCF,
	"Item_Annoy":           KindItemAnnoy,
	"ClickOccur":           KindClickOccur,
	"DownloadOccur":        KindDownloadOccur,
	"User_ResType_Hot":     KindUserHot,
	"User_ResType_Quality": KindUserQuality,
}

// KindOf 按召回类型名查找 ChannelKind，未知名称返回 KindNone。
func KindOf(name string) ChannelKind {
	return kindByName[name]
}

func (k ChannelKind) String() string {
	for name, kind := range kindByName {
		if kind == k {
			return name
		}
	}
	return "ChannelKind(" + strconv.FormatInt(int64(k), 10) + ")"
}

// InvertIndex 返回单索引 / 多索引通道使用的倒排索引 basic key。
func (k ChannelKind) InvertIndex() (string, bool) {
	switch k {
	case KindHot, KindUserHot:
		return feature.InvertIndexHot, true
	case KindQuality, KindUserQuality:
		return feature.InvertIndexQuality, true
	case KindSurge:
		return feature.InvertIndexSurge, true
	case KindCTCVR:
		return feature.InvertIndexCTCVR, true
	case KindDLR:
		return feature.InvertIndexDLR, true
	}
	return "", false
}

func (k ChannelKind) isMultiIndex() bool {
	return k == KindUserHot || k == KindUserQuality
}

// ChannelParam 是单个召回通道的参数。
type ChannelParam struct {
	// Type 是召回类型名，如 ResType_Hot / Item_CF
	Type string `yaml:"type"`
	// Num 召回数量，必须 > 0
	Num int `yaml:"num"`
	// SampleFold 样本池倍数，0 表示使用整个样本池
	SampleFold int `yaml:"sample_fold"`
	// WeightPrecision > 0 时按权重抽样
	WeightPrecision int64 `yaml:"weight_precision"`

	// 多索引参数
	UseTopKIndex   int  `yaml:"use_top_k_index"`
	SingleMaxNum   int  `yaml:"single_max_num"`
	WeightAllocate bool `yaml:"weight_allocate"`

	// 融合配额
	MergeMin int `yaml:"merge_min"`
	MergeMax int `yaml:"merge_max"`

	// Condition 是可选的 CEL 表达式（变量 rctx），结果为 false 时跳过该通道
	Condition string `yaml:"condition"`
}

// Kind 返回通道类型。
func (p ChannelParam) Kind() ChannelKind { return KindOf(p.Type) }

// Validate 校验通道参数；未知类型返回 CHANNEL_UNSUPPORTED，其余为 CONFIG_ERROR。
func (p ChannelParam) Validate() error {
	kind := p.Kind()
	if kind == KindNone {
		return core.NewDomainError(core.ModuleRecall, core.ErrorCodeChannelUnsupported, "unsupported recall type "+strconv.Quote(p.Type))
	}
	if p.Num <= 0 {
		return core.ConfigError(core.ModuleRecall, "%s: num must be > 0, got %d", p.Type, p.Num)
	}
	if p.SampleFold < 0 {
		return core.ConfigError(core.ModuleRecall, "%s: sample_fold must be >= 0, got %d", p.Type, p.SampleFold)
	}
	if p.WeightPrecision < 0 {
		return core.ConfigError(core.ModuleRecall, "%s: weight_precision must be >= 0, got %d", p.Type, p.WeightPrecision)
	}
	if p.MergeMin < 0 || p.MergeMax < 0 {
		return core.ConfigError(core.ModuleRecall, "%s: merge quota must be >= 0", p.Type)
	}
	if kind.isMultiIndex() {
		if p.UseTopKIndex <= 0 {
			return core.ConfigError(core.ModuleRecall, "%s: use_top_k_index must be > 0, got %d", p.Type, p.UseTopKIndex)
		}
		if p.SingleMaxNum < 0 {
			return core.ConfigError(core.ModuleRecall, "%s: single_max_num must be >= 0, got %d", p.Type, p.SingleMaxNum)
		}
	}
	return nil
}

// Params 是一次召回的策略参数。
type Params struct {
	// MergeNum 是主结果融合上限，必须 > 0
	MergeNum int `yaml:"merge_num"`
	// SpareMergeNum 是备用结果融合上限
	SpareMergeNum int `yaml:"spare_merge_num"`

	Channels          []ChannelParam `yaml:"channels"`
	SpareChannels     []ChannelParam `yaml:"spare_channels"`
	ExclusiveChannels []ChannelParam `yaml:"exclusive_channels"`
}

// Validate 只校验策略级参数；单个通道的错误在执行时按通道隔离。
func (p *Params) Validate() error {
	if p == nil {
		return core.ConfigError(core.ModuleRecall, "nil recall params")
	}
	if p.MergeNum <= 0 {
		return core.ConfigError(core.ModuleRecall, "merge_num must be > 0, got %d", p.MergeNum)
	}
	if p.SpareMergeNum < 0 {
		return core.ConfigError(core.ModuleRecall, "spare_merge_num must be >= 0, got %d", p.SpareMergeNum)
	}
	for _, list := range [][]ChannelParam{p.Channels, p.SpareChannels, p.ExclusiveChannels} {
		seen := make(map[string]struct{}, len(list))
		for _, c := range list {
			if _, dup := seen[c.Type]; dup {
				return core.ConfigError(core.ModuleRecall, "duplicate channel %q", c.Type)
			}
			seen[c.Type] = struct{}{}
		}
	}
	return nil
}

// toItems 把抽样得到的 item key 转为 Item，格式错误的 key 被跳过。
func toItems(keys []string, p ChannelParam) []core.Item {
	items := make([]core.Item, 0, len(keys))
	kind := p.Kind()
	for _, key := range keys {
		id, cat, err := core.ParseItemKey(key)
		if err != nil {
			continue
		}
		items = append(items, core.Item{
			ID:        id,
			Category:  cat,
			Channel:   p.Type,
			ChannelID: int64(kind),
		})
	}
	return items
}
