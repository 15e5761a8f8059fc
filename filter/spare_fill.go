package filter

import (
	"context"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/logging"
	"github.com/rushteam/recallkit/pipeline"
)

// SpareFillNode 在过滤后 Primary 数量不足 KeepItemNum 时，把 Spare 全部追加到 Primary 末尾。
// Spare 被消费后清空。
type SpareFillNode struct {
	KeepItemNum int
}

func (n *SpareFillNode) Name() string        { return "filter.spare_fill" }
func (n *SpareFillNode) Kind() pipeline.Kind { return pipeline.KindBackfill }

func (n *SpareFillNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	set *core.CandidateSet,
) (*core.CandidateSet, error) {
	before := len(set.Primary)
	if before >= n.KeepItemNum || len(set.Spare) == 0 {
		return set, nil
	}
	set.Primary = append(set.Primary, set.Spare...)
	set.Spare = nil

	log := logging.Component("filter")
	ev := log.Warn()
	if rctx != nil {
		ev = ev.Int64("user_id", rctx.UserID).Str("api_type", rctx.APIType).Str("filter_exp_id", rctx.FilterExpID)
	}
	ev.Int("before", before).Int("after", len(set.Primary)).Msg("data not enough after filter, spare items appended")
	return set, nil
}
