package pipeline

import (
	"context"

	"github.com/rushteam/recallkit/core"
)

// Kind 用于标记 Node 类型，方便观测/治理/编排（例如按阶段打点）。
type Kind string

const (
	KindFilter   Kind = "filter"   // 过滤阶段：剔除不符合约束的候选
	KindRank     Kind = "rank"     // 排序阶段：对候选打分并排序
	KindReRank   Kind = "rerank"   // 展控阶段：打散、截断
	KindBackfill Kind = "backfill" // 补位阶段：用备用结果补足主结果
)

// Node 是 Pipeline 的最小可扩展单元。
// 统一采用"输入候选集 -> 输出候选集"的形态；Node 可以原地修改并返回同一个候选集。
type Node interface {
	Name() string
	Kind() Kind

	Process(
		ctx context.Context,
		rctx *core.RecommendContext,
		set *core.CandidateSet,
	) (*core.CandidateSet, error)
}
