package filter

import (
	"context"
	"strings"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/logging"
	"github.com/rushteam/recallkit/metrics"
	"github.com/rushteam/recallkit/pipeline"
)

// FilterNode 是过滤 Node，可以组合多个过滤器进行过滤。
// 如果任何一个过滤器返回 true，该物品就会被过滤掉。
//
// 作用范围：Primary、Spare 以及每一路 Exclusive 列表，保持各列表内的相对顺序。
// 单个过滤器出错（准备失败或判断失败）只记录日志，不中断请求。
type FilterNode struct {
	Filters []Filter
}

// NewNode 用一组过滤器创建 FilterNode。
func NewNode(filters ...Filter) *FilterNode {
	return &FilterNode{Filters: filters}
}

func (n *FilterNode) Name() string {
	if len(n.Filters) == 1 {
		return n.Filters[0].Name()
	}
	names := make([]string, len(n.Filters))
	for i, f := range n.Filters {
		names[i] = f.Name()
	}
	return "filter.node(" + strings.Join(names, ",") + ")"
}

func (n *FilterNode) Kind() pipeline.Kind {
	return pipeline.KindFilter
}

func (n *FilterNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	set *core.CandidateSet,
) (*core.CandidateSet, error) {
	if len(n.Filters) == 0 || set.Len() == 0 {
		return set, nil
	}
	log := logging.Component("filter")

	active := make([]Filter, 0, len(n.Filters))
	for _, f := range n.Filters {
		p, ok := f.(Preparer)
		if !ok {
			active = append(active, f)
			continue
		}
		bound, err := p.Prepare(ctx, rctx, set)
		if err != nil {
			log.Warn().Err(err).Str("filter", f.Name()).Msg("prepare filter failed, skipped")
			continue
		}
		if bound != nil {
			active = append(active, bound)
		}
	}
	if len(active) == 0 {
		return set, nil
	}

	counts := make(map[string]int, len(active))
	apply := func(items []core.Item) []core.Item {
		out := items[:0]
		for i := range items {
			if reason, drop := n.check(ctx, rctx, active, &items[i]); drop {
				counts[reason]++
				continue
			}
			out = append(out, items[i])
		}
		return out
	}

	before := set.Len()
	set.Primary = apply(set.Primary)
	set.Spare = apply(set.Spare)
	for name, items := range set.Exclusive {
		set.Exclusive[name] = apply(items)
	}

	for reason, c := range counts {
		metrics.FilteredItems.WithLabelValues(reason).Add(float64(c))
	}
	if rctx != nil && rctx.TraceLog {
		log.Info().
			Str("node", n.Name()).
			Int64("user_id", rctx.UserID).
			Int("before", before).
			Int("after", set.Len()).
			Interface("filtered", counts).
			Msg("filter done")
	}
	return set, nil
}

// check 返回命中的过滤器名。
func (n *FilterNode) check(ctx context.Context, rctx *core.RecommendContext, filters []Filter, item *core.Item) (string, bool) {
	for _, f := range filters {
		ok, err := f.ShouldFilter(ctx, rctx, item)
		if err != nil {
			// 过滤器错误时记录但不中断流程
			continue
		}
		if ok {
			return f.Name(), true
		}
	}
	return "", false
}
