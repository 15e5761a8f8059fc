package recall

import (
	"context"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/feature"
	"github.com/rushteam/recallkit/vector"
)

// OtherScene 基于用户 / 上下文物品特征列表的召回：
//   - ResType_User_CF：用户在上下文类目下的 CF 列表
//   - Item_CF / ClickOccur / DownloadOccur：上下文物品的索引特征列表
//   - Item_Annoy：上下文物品在类目分片上的向量近邻
//
// 列表取头部 Num*SampleFold 条（SampleFold=0 时取全部）后与单索引一样抽样。
type OtherScene struct {
	Param ChannelParam
	Users *feature.UserCache
	Items *feature.ItemCache
	Ann   AnnRetriever
}

func (o *OtherScene) Name() string { return o.Param.Type }

func (o *OtherScene) Recall(ctx context.Context, rctx *core.RecommendContext) ([]core.Item, error) {
	samples, err := o.samples(ctx, rctx)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}
	keys := SampleKeys(samples, o.Param.SampleFold, o.Param.Num, o.Param.WeightPrecision)
	items := toItems(keys, o.Param)
	shuffleItems(items)
	return items, nil
}

func (o *OtherScene) samples(ctx context.Context, rctx *core.RecommendContext) ([]core.SampleInfo, error) {
	limit := o.Param.Num * o.Param.SampleFold
	switch kind := o.Param.Kind(); kind {
	case KindUserCF:
		if o.Users == nil {
			return nil, unavailable("user feature cache")
		}
		uf := o.Users.Lookup(ctx, rctx.UserID)
		if uf == nil || uf.Index == nil {
			return nil, nil
		}
		return listSamples(uf.Index.CFItem[rctx.ContextCategory], rctx.ContextCategory, limit), nil

	case KindItemCF, KindClickOccur, KindDownloadOccur:
		if o.Items == nil {
			return nil, unavailable("item feature cache")
		}
		f, ok := o.Items.Lookup(ctx, rctx.ContextItemID, rctx.ContextCategory)
		if !ok || f.Index == nil {
			return nil, nil
		}
		list := f.Index.CFItem
		switch kind {
		case KindClickOccur:
			list = f.Index.ClickOccur
		case KindDownloadOccur:
			list = f.Index.DownloadOccur
		}
		return listSamples(list, rctx.ContextCategory, limit), nil

	case KindItemAnnoy:
		if o.Ann == nil {
			return nil, unavailable("ann index")
		}
		topK := limit
		if topK == 0 {
			topK = o.Param.Num
		}
		keys, dists, err := o.Ann.Retrieve(vector.SliceName(rctx.ContextCategory), rctx.ContextItemKey(), rctx.AuxKeys, topK)
		if err != nil {
			return nil, err
		}
		samples := make([]core.SampleInfo, 0, len(keys))
		for i, key := range keys {
			id, cat, err := core.ParseItemKey(key)
			if err != nil {
				continue
			}
			samples = append(samples, core.SampleInfo{ID: id, Category: cat, Weight: dists[i]})
		}
		return samples, nil
	}
	return nil, core.NewDomainError(core.ModuleRecall, core.ErrorCodeChannelUnsupported, "unsupported recall type "+o.Param.Type)
}

// listSamples 截取列表头部 limit 条（limit=0 取全部），类目取上下文类目。
func listSamples(list []core.IDWeight, category int32, limit int) []core.SampleInfo {
	n := len(list)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]core.SampleInfo, n)
	for i := 0; i < n; i++ {
		out[i] = core.SampleInfo{ID: list[i].ID, Category: category, Weight: list[i].Weight}
	}
	return out
}

func unavailable(what string) error {
	return core.NewDomainError(core.ModuleRecall, core.ErrorCodeUnavailable, what+" not configured")
}
