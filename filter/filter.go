package filter

import (
	"context"

	"github.com/rushteam/recallkit/core"
)

// Filter 是过滤器的抽象接口，用于判断一个 Item 是否应该被过滤掉。
// 返回 true 表示应该过滤（移除），false 表示保留。
type Filter interface {
	// Name 返回过滤器名称
	Name() string

	// ShouldFilter 判断 item 是否应该被过滤
	ShouldFilter(ctx context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error)
}

// Preparer 是可选接口：在逐个判断前对整个候选集做一次批量准备（预取特征、读取名单），
// 返回只在本次请求内使用的 Filter。过滤器实例在请求间共享，请求级状态只能放在返回值里。
type Preparer interface {
	Prepare(ctx context.Context, rctx *core.RecommendContext, set *core.CandidateSet) (Filter, error)
}

// keySet 按 item key 判断的请求级过滤器。
type keySet struct {
	name string
	keys map[string]struct{}
}

func (s *keySet) Name() string { return s.name }

func (s *keySet) ShouldFilter(_ context.Context, _ *core.RecommendContext, item *core.Item) (bool, error) {
	_, ok := s.keys[item.Key()]
	return ok, nil
}
