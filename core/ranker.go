package core

import "context"

// Ranker 是外部排序服务的边界：输入候选，返回同一集合并填好 Score / SecondaryScore。
type Ranker interface {
	Rank(ctx context.Context, rctx *RecommendContext, items []Item) ([]Item, error)
}

// RankerFunc 允许用函数实现 Ranker。
type RankerFunc func(ctx context.Context, rctx *RecommendContext, items []Item) ([]Item, error)

func (f RankerFunc) Rank(ctx context.Context, rctx *RecommendContext, items []Item) ([]Item, error) {
	return f(ctx, rctx, items)
}
