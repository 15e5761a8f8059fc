package recall

import (
	"context"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/feature"
)

// SingleIndex 单索引召回：从上下文类目的倒排索引中抽样。
//
// 样本池为索引头部 Num*SampleFold 条（SampleFold=0 时为整个索引），
// WeightPrecision>0 时按权重抽样，否则随机抽样；结果打乱后输出。
type SingleIndex struct {
	Param   ChannelParam
	Indexes *feature.InvertIndexes
}

func (s *SingleIndex) Name() string { return s.Param.Type }

func (s *SingleIndex) Recall(ctx context.Context, rctx *core.RecommendContext) ([]core.Item, error) {
	idx, err := invertIndexCache(s.Indexes, s.Param.Kind())
	if err != nil {
		return nil, err
	}
	samples := idx.Lookup(ctx, rctx.ContextCategory)
	if len(samples) == 0 {
		return nil, nil
	}
	keys := SampleKeys(samples, s.Param.SampleFold, s.Param.Num, s.Param.WeightPrecision)
	items := toItems(keys, s.Param)
	shuffleItems(items)
	return items, nil
}
