package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/logging"
)

// Pipeline 把过滤 / 排序 / 展控逻辑拆成可组合的 Node 链。
type Pipeline struct {
	Name  string
	Nodes []Node
}

// Run 依次执行 Node；任一 Node 出错时中断并返回错误。
func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RecommendContext,
	set *core.CandidateSet,
) (*core.CandidateSet, error) {
	if p == nil {
		return set, nil
	}
	cur := set
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		next, err := node.Process(ctx, rctx, cur)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", node.Name(), err)
		}
		if rctx != nil && rctx.TraceLog {
			log := logging.Component("pipeline")
			log.Info().
				Str("pipeline", p.Name).
				Str("node", node.Name()).
				Str("kind", string(node.Kind())).
				Int("primary", len(next.Primary)).
				Int("spare", len(next.Spare)).
				Dur("took", time.Since(start)).
				Msg("node done")
		}
		cur = next
	}
	return cur, nil
}
