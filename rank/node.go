package rank

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/logging"
	"github.com/rushteam/recallkit/metrics"
	"github.com/rushteam/recallkit/pipeline"
	"github.com/rushteam/recallkit/pkg/utils"
)

// Node 是排序 Node：调用外部 Ranker 为 Primary 打分，再按分数降序稳定排序。
// Ranker 为空时只按已有分数排序；Ranker 失败或返回数量不一致时记录告警，
// 退回按已有分数排序，不中断请求。
//   - 写入 labels：rank_model
type Node struct {
	Ranker core.Ranker
	// Model 写入 rank_model label 的模型名
	Model string
}

func (n *Node) Name() string        { return "rank.model" }
func (n *Node) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *Node) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	set *core.CandidateSet,
) (*core.CandidateSet, error) {
	if len(set.Primary) == 0 {
		return set, nil
	}
	items := set.Primary
	if n.Ranker != nil {
		ranked, err := n.rank(ctx, rctx, items)
		if err != nil {
			log := logging.Component("rank")
			ev := log.Warn().Err(err).Str("model", n.Model).Int("items", len(items))
			if rctx != nil {
				ev = ev.Int64("user_id", rctx.UserID).Str("api_type", rctx.APIType)
			}
			ev.Msg("ranker failed, keep recall order")
			metrics.RankFallbacks.WithLabelValues(n.Model).Inc()
		} else {
			items = ranked
			if n.Model != "" {
				for i := range items {
					items[i].PutLabel("rank_model", utils.Label{Value: n.Model, Source: "rank"})
				}
			}
		}
	}
	SortByScore(items)
	set.Primary = items
	return set, nil
}

// rank 在副本上调用 Ranker，失败时原列表保持不变。
func (n *Node) rank(ctx context.Context, rctx *core.RecommendContext, items []core.Item) ([]core.Item, error) {
	ranked, err := n.Ranker.Rank(ctx, rctx, slices.Clone(items))
	if err != nil {
		return nil, err
	}
	if len(ranked) != len(items) {
		return nil, fmt.Errorf("ranker returned %d items, want %d", len(ranked), len(items))
	}
	return ranked, nil
}

// SortByScore 按 Score 降序、SecondaryScore 降序稳定排序。
func SortByScore(items []core.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].SecondaryScore > items[j].SecondaryScore
	})
}
