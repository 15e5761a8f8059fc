package rerank

import (
	"context"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/pipeline"
)

// TopNNode 是展示截断节点（top_n_display），在打散之后截取 Primary 的前 N 个物品。
//
// 示例：
//
//	p := &pipeline.Pipeline{
//	    Nodes: []pipeline.Node{
//	        &rank.Node{...},                       // 排序
//	        &rerank.Scatter{PageSize: 10, ...},    // 打散
//	        &rerank.TopNNode{N: 50},               // 截取 Top 50
//	    },
//	}
type TopNNode struct {
	// N 要保留的物品数量；N <= 0 时不截断
	N int
}

func (n *TopNNode) Name() string {
	return "rerank.topn"
}

func (n *TopNNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *TopNNode) Process(
	_ context.Context,
	_ *core.RecommendContext,
	set *core.CandidateSet,
) (*core.CandidateSet, error) {
	if set == nil || n.N <= 0 || len(set.Primary) <= n.N {
		return set, nil
	}
	set.Primary = set.Primary[:n.N]
	return set, nil
}
