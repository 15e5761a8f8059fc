package filter

import (
	"context"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/feature"
)

// UnfeaturedFilter 过滤没有基础特征也没有统计特征的物品。
type UnfeaturedFilter struct {
	Items *feature.ItemCache
}

func (f *UnfeaturedFilter) Name() string { return "filter.unfeatured" }

// ShouldFilter 单条判断，未命中本地缓存时同步回源。
func (f *UnfeaturedFilter) ShouldFilter(ctx context.Context, _ *core.RecommendContext, item *core.Item) (bool, error) {
	feat, _ := f.Items.Lookup(ctx, item.ID, item.Category)
	return !feat.HasProfile(), nil
}

// Prepare 批量预取候选集的物品特征。
// 回源失败时不做判断（跳过本过滤器），避免远端故障时清空候选。
func (f *UnfeaturedFilter) Prepare(ctx context.Context, _ *core.RecommendContext, set *core.CandidateSet) (Filter, error) {
	keys := set.Keys()
	feats, err := f.Items.BatchGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	drop := make(map[string]struct{})
	for _, k := range keys {
		if !feats[k].HasProfile() {
			drop[k] = struct{}{}
		}
	}
	return &keySet{name: f.Name(), keys: drop}, nil
}
