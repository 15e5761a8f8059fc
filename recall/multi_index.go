package recall

import (
	"context"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/feature"
	"github.com/rushteam/recallkit/logging"
)

// MultiIndex 多索引召回：
//  1. 取用户的类目偏好（权重降序）
//  2. Allocate 把 Num 个配额分给前 UseTopKIndex 个类目
//  3. 每个类目在自己的倒排索引上抽 count 个，结果取并集后打乱
type MultiIndex struct {
	Param   ChannelParam
	Indexes *feature.InvertIndexes
	Users   *feature.UserCache
}

func (m *MultiIndex) Name() string { return m.Param.Type }

func (m *MultiIndex) Recall(ctx context.Context, rctx *core.RecommendContext) ([]core.Item, error) {
	idx, err := invertIndexCache(m.Indexes, m.Param.Kind())
	if err != nil {
		return nil, err
	}
	if m.Users == nil {
		return nil, core.NewDomainError(core.ModuleRecall, core.ErrorCodeUnavailable, "user feature cache not configured")
	}
	uf := m.Users.Lookup(ctx, rctx.UserID)
	if uf == nil || uf.Index == nil || len(uf.Index.CategoryPref) == 0 {
		return nil, nil
	}

	alloc := Allocate(uf.Index.CategoryPref, m.Param.UseTopKIndex, m.Param.Num, m.Param.SingleMaxNum, m.Param.WeightAllocate)
	if alloc.Total == 0 {
		return nil, nil
	}

	pools := make([][]core.SampleInfo, 0, len(alloc.IDs))
	counts := make([]int, 0, len(alloc.IDs))
	for i, cat := range alloc.IDs {
		if alloc.Counts[i] <= 0 {
			continue
		}
		samples := idx.Lookup(ctx, int32(cat))
		if limit := alloc.Counts[i] * m.Param.SampleFold; limit > 0 && len(samples) > limit {
			samples = samples[:limit]
		}
		pools = append(pools, samples)
		counts = append(counts, alloc.Counts[i])
	}

	keys := MultiSampleKeys(pools, counts, m.Param.SampleFold, m.Param.WeightPrecision)
	items := toItems(keys, m.Param)
	shuffleItems(items)

	if rctx.TraceLog {
		log := logging.Component("recall")
		log.Info().
			Str("channel", m.Param.Type).
			Int64("user_id", rctx.UserID).
			Ints64("categories", alloc.IDs).
			Ints("counts", alloc.Counts).
			Int("items", len(items)).
			Msg("multi index allocation")
	}
	return items, nil
}
