package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rushteam/recallkit/core"
)

// DefaultProgramCacheSize 是编译结果缓存的默认容量。
const DefaultProgramCacheSize = 1024

var (
	defaultEval     *Evaluator
	defaultEvalErr  error
	defaultEvalOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("item", cel.DynType),
		cel.Variable("label", cel.DynType),
		cel.Variable("rctx", cel.DynType),
	)
}

// Evaluator 是 Label DSL 解释器，使用 CEL (Common Expression Language) 实现。
// 编译后的 Program 按表达式文本缓存在 LRU 中，线程安全，可在请求间复用。
//
// 表达式语法（CEL 标准语法）：
//   - 物品：item.category == 3 / item.channel == "Item_CF" / item.score > 0.7
//   - 标签：label.recall_source == "ResType_Hot"
//   - 请求：rctx.api_type == "detail" && "new_user" in rctx.user_groups
//   - 参数：rctx.params.page > 1
//
// 访问不存在的 key 会返回错误，用 `"key" in label` 判断存在性。
type Evaluator struct {
	env      *cel.Env
	programs *lru.Cache[string, cel.Program]
}

// NewEvaluator 创建解释器，cacheSize<=0 时使用默认容量。
func NewEvaluator(cacheSize int) (*Evaluator, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultProgramCacheSize
	}
	env, err := initCELEnv()
	if err != nil {
		return nil, fmt.Errorf("dsl: init cel env: %w", err)
	}
	programs, err := lru.New[string, cel.Program](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("dsl: init program cache: %w", err)
	}
	return &Evaluator{env: env, programs: programs}, nil
}

// Default 返回进程级共享的解释器。
func Default() (*Evaluator, error) {
	defaultEvalOnce.Do(func() {
		defaultEval, defaultEvalErr = NewEvaluator(DefaultProgramCacheSize)
	})
	return defaultEval, defaultEvalErr
}

// Compile 编译表达式（命中缓存时直接返回），编译失败为 CONFIG_ERROR。
// 配置加载阶段调用它可以提前发现错误表达式。
func (e *Evaluator) Compile(expr string) (cel.Program, error) {
	if prg, ok := e.programs.Get(expr); ok {
		return prg, nil
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, core.ConfigError(core.ModuleDSL, "compile %q: %v", expr, issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, core.ConfigError(core.ModuleDSL, "program %q: %v", expr, err)
	}
	e.programs.Add(expr, prg)
	return prg, nil
}

// EvalItem 对单个物品求值；空表达式恒为 true。
func (e *Evaluator) EvalItem(expr string, item *core.Item, rctx *core.RecommendContext) (bool, error) {
	if expr == "" {
		return true, nil
	}
	return e.eval(expr, buildInput(item, rctx))
}

// EvalContext 只对请求求值（召回通道的 Condition）；空表达式恒为 true。
func (e *Evaluator) EvalContext(expr string, rctx *core.RecommendContext) (bool, error) {
	if expr == "" {
		return true, nil
	}
	return e.eval(expr, buildInput(nil, rctx))
}

func (e *Evaluator) eval(expr string, input map[string]any) (bool, error) {
	prg, err := e.Compile(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("dsl: eval %q: %w", expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("dsl: expression %q must return boolean, got %T", expr, out.Value())
	}
	return result, nil
}

// buildInput 构建 CEL 表达式的输入数据
func buildInput(item *core.Item, rctx *core.RecommendContext) map[string]any {
	labels := make(map[string]any)
	itemMap := map[string]any{}
	if item != nil {
		for k, v := range item.Labels {
			labels[k] = v.Value
		}
		itemMap = map[string]any{
			"id":              item.ID,
			"category":        int64(item.Category),
			"channel":         item.Channel,
			"channel_id":      item.ChannelID,
			"score":           float64(item.Score),
			"secondary_score": float64(item.SecondaryScore),
			"key":             item.Key(),
		}
	}

	rctxMap := map[string]any{}
	if rctx != nil {
		userLabels := make(map[string]any, len(rctx.Labels))
		for k, v := range rctx.Labels {
			userLabels[k] = v.Value
		}
		params := rctx.Params
		if params == nil {
			params = map[string]any{}
		}
		rctxMap = map[string]any{
			"user_id":          rctx.UserID,
			"device_id":        rctx.DeviceID,
			"api_type":         rctx.APIType,
			"scene":            rctx.Scene,
			"context_item_id":  rctx.ContextItemID,
			"context_category": int64(rctx.ContextCategory),
			"aux_keys":         append([]string{}, rctx.AuxKeys...),
			"user_groups":      rctx.Groups(),
			"recall_exp_id":    rctx.RecallExpID,
			"labels":           userLabels,
			"params":           params,
		}
	}

	return map[string]any{
		"item":  itemMap,
		"label": labels,
		"rctx":  rctxMap,
	}
}
