package pipeline

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/logging"
	"github.com/rushteam/recallkit/recall"
)

// key: api_type -> exp_id -> user_group
type table[V any] map[string]map[string]map[string]V

func (t table[V]) put(api, exp, group string, v V) bool {
	if group == "" {
		group = core.DefaultUserGroup
	}
	if t[api] == nil {
		t[api] = make(map[string]map[string]V)
	}
	if t[api][exp] == nil {
		t[api][exp] = make(map[string]V)
	}
	if _, dup := t[api][exp][group]; dup {
		return false
	}
	t[api][exp][group] = v
	return true
}

// lookup 按人群优先级查找，最后回退到 def_group。
func (t table[V]) lookup(api, exp string, groups []string) (V, bool) {
	var zero V
	byGroup, ok := t[api][exp]
	if !ok {
		return zero, false
	}
	for _, g := range groups {
		if v, ok := byGroup[g]; ok {
			return v, true
		}
	}
	return zero, false
}

// Resolver 按 api_type + 实验 id + 人群 解析三个阶段的策略，构建后只读。
type Resolver struct {
	recall  table[*recall.Params]
	filter  table[*Pipeline]
	display table[*Pipeline]
}

// NewResolver 校验配置并预先构建所有 Pipeline；任何错误都是 CONFIG_ERROR。
func NewResolver(cfg *StrategyConfig, factory *NodeFactory) (*Resolver, error) {
	r := &Resolver{
		recall:  make(table[*recall.Params]),
		filter:  make(table[*Pipeline]),
		display: make(table[*Pipeline]),
	}
	if cfg == nil {
		return r, nil
	}
	for api, s := range cfg.APIs {
		for _, exp := range s.Recall {
			for _, g := range exp.Groups {
				params := g.Params
				if err := params.Validate(); err != nil {
					return nil, core.ConfigError(core.ModulePipeline, "api %s exp %s group %s: %v", api, exp.ExpID, g.UserGroup, err)
				}
				if !r.recall.put(api, exp.ExpID, g.UserGroup, &params) {
					return nil, core.ConfigError(core.ModulePipeline, "api %s exp %s: duplicate recall group %q", api, exp.ExpID, g.UserGroup)
				}
			}
		}
		if err := buildStage(r.filter, factory, api, "filter", s.Filter); err != nil {
			return nil, err
		}
		if err := buildStage(r.display, factory, api, "display", s.Display); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func buildStage(t table[*Pipeline], factory *NodeFactory, api, stage string, exps []StageExp) error {
	for _, exp := range exps {
		for _, g := range exp.Groups {
			name := api + "/" + stage + "/" + exp.ExpID
			p, err := factory.BuildPipeline(name, g.Nodes)
			if err != nil {
				return core.ConfigError(core.ModulePipeline, "%s group %s: %v", name, g.UserGroup, err)
			}
			if !t.put(api, exp.ExpID, g.UserGroup, p) {
				return core.ConfigError(core.ModulePipeline, "%s: duplicate group %q", name, g.UserGroup)
			}
		}
	}
	return nil
}

// Recall 返回召回参数；未配置时返回 NOT_FOUND。
func (r *Resolver) Recall(rctx *core.RecommendContext) (*recall.Params, error) {
	p, ok := r.recall.lookup(rctx.APIType, rctx.RecallExpID, rctx.Groups())
	if !ok {
		return nil, core.NewDomainError(core.ModulePipeline, core.ErrorCodeNotFound,
			"no recall strategy for api "+rctx.APIType+" exp "+rctx.RecallExpID)
	}
	return p, nil
}

// Filter 返回过滤 Pipeline；未配置时返回 false（不过滤）。
func (r *Resolver) Filter(rctx *core.RecommendContext) (*Pipeline, bool) {
	return r.filter.lookup(rctx.APIType, rctx.FilterExpID, rctx.Groups())
}

// Display 返回展控 Pipeline；未配置时返回 false。
func (r *Resolver) Display(rctx *core.RecommendContext) (*Pipeline, bool) {
	return r.display.lookup(rctx.APIType, rctx.DisplayExpID, rctx.Groups())
}

// StrategyLoader 从文件加载策略并在文件变化时重新加载（实现 cache.Refreshable）。
// 加载失败时保留上一份可用的 Resolver。
type StrategyLoader struct {
	path    string
	factory *NodeFactory

	current atomic.Pointer[Resolver]
	mu      sync.Mutex
	modTime time.Time
	log     zerolog.Logger
}

// NewStrategyLoader 创建并立即加载一次，首次加载失败返回错误。
func NewStrategyLoader(path string, factory *NodeFactory) (*StrategyLoader, error) {
	l := &StrategyLoader{path: path, factory: factory, log: logging.Component("strategy")}
	if err := l.Refresh(context.Background()); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *StrategyLoader) Name() string { return "strategy" }

// Resolver 返回当前生效的 Resolver。
func (l *StrategyLoader) Resolver() *Resolver { return l.current.Load() }

// Refresh 文件修改时间变化时重新加载。
func (l *StrategyLoader) Refresh(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, err := os.Stat(l.path)
	if err != nil {
		return core.RemoteError(core.ModulePipeline, err, "stat %s", l.path)
	}
	if l.current.Load() != nil && st.ModTime().Equal(l.modTime) {
		return nil
	}
	cfg, err := LoadStrategies(l.path)
	if err != nil {
		return err
	}
	r, err := NewResolver(cfg, l.factory)
	if err != nil {
		return err
	}
	l.current.Store(r)
	l.modTime = st.ModTime()
	l.log.Info().Str("path", l.path).Int("apis", len(cfg.APIs)).Msg("strategies loaded")
	return nil
}

// RefreshIncr 无增量刷新。
func (l *StrategyLoader) RefreshIncr(context.Context) error { return nil }
