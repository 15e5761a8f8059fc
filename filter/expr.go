package filter

import (
	"context"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/pkg/dsl"
)

// ExprFilter 按 CEL 表达式过滤：表达式为 true 的物品被移除。
//
//	item.score < 0.1 || item.channel == "ResType_Hot" && rctx.api_type == "detail"
type ExprFilter struct {
	Expr string
	Eval *dsl.Evaluator
}

// NewExprFilter 创建表达式过滤器，表达式在创建时编译，错误为 CONFIG_ERROR。
func NewExprFilter(expr string, ev *dsl.Evaluator) (*ExprFilter, error) {
	if expr == "" {
		return nil, core.ConfigError(core.ModuleFilter, "empty filter expression")
	}
	if ev == nil {
		var err error
		if ev, err = dsl.Default(); err != nil {
			return nil, err
		}
	}
	if _, err := ev.Compile(expr); err != nil {
		return nil, err
	}
	return &ExprFilter{Expr: expr, Eval: ev}, nil
}

func (f *ExprFilter) Name() string { return "filter.expr" }

func (f *ExprFilter) ShouldFilter(_ context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error) {
	return f.Eval.EvalItem(f.Expr, item, rctx)
}
