package builders

import (
	"fmt"

	"github.com/rushteam/recallkit/config"
	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/feature"
	"github.com/rushteam/recallkit/filter"
	"github.com/rushteam/recallkit/pipeline"
	"github.com/rushteam/recallkit/pkg/conv"
	"github.com/rushteam/recallkit/pkg/dsl"
	"github.com/rushteam/recallkit/rank"
	"github.com/rushteam/recallkit/rerank"
)

func init() {
	config.Register("rerank.scatter", BuildScatterNode)
	config.Register("rerank.topn", BuildTopNNode)
	config.Register("filter.expr", BuildExprFilterNode)
	config.Register("filter.blacklist", func(cfg map[string]any) (pipeline.Node, error) { return BuildBlacklistNode(cfg, nil) })
	config.Register("filter.spare_fill", BuildSpareFillNode)
	config.Register("rank.http", BuildHTTPRankNode)
	config.Register("rank.sort", func(map[string]any) (pipeline.Node, error) { return &rank.Node{}, nil })
}

// Deps 是需要运行时依赖的 Node 所用的依赖。
type Deps struct {
	Items  *feature.ItemCache
	Users  *feature.UserCache
	Store  core.Store // 黑名单等名单数据
	Ranker core.Ranker
	Eval   *dsl.Evaluator
}

// NewRegistry 返回一个实例私有的注册表：全局无依赖构建器 + 依赖 deps 的构建器。
// 每个服务实例各用各的，互不覆盖。
func NewRegistry(deps Deps) *config.Registry {
	reg := config.DefaultRegistry()
	Register(reg, deps)
	return reg
}

// Register 向 reg 注册依赖缓存 / 外部服务的 Node，服务启动时在加载策略前调用。
func Register(reg *config.Registry, deps Deps) {
	reg.Register("filter.unfeatured", func(map[string]any) (pipeline.Node, error) {
		if deps.Items == nil {
			return nil, core.ConfigError(core.ModuleFilter, "filter.unfeatured requires an item feature cache")
		}
		return filter.NewNode(&filter.UnfeaturedFilter{Items: deps.Items}), nil
	})
	reg.Register("filter.download", func(cfg map[string]any) (pipeline.Node, error) {
		if deps.Users == nil {
			return nil, core.ConfigError(core.ModuleFilter, "filter.download requires a user feature cache")
		}
		f := &filter.DownloadFilter{
			ValidityTime: conv.ConfigGetInt64(cfg, "validity_time", 0),
			Users:        deps.Users,
		}
		if err := f.Validate(); err != nil {
			return nil, err
		}
		return filter.NewNode(f), nil
	})
	reg.Register("filter.blacklist", func(cfg map[string]any) (pipeline.Node, error) {
		return BuildBlacklistNode(cfg, deps.Store)
	})
	reg.Register("filter.expr", func(cfg map[string]any) (pipeline.Node, error) {
		return buildExpr(cfg, deps.Eval)
	})
	if deps.Ranker != nil {
		reg.Register("rank.model", func(cfg map[string]any) (pipeline.Node, error) {
			return &rank.Node{Ranker: deps.Ranker, Model: conv.ConfigGet(cfg, "model", "")}, nil
		})
	}
}

// BuildScatterNode 构建打散节点：
//
//	{page_size: 10, top_n_page: 3, match_field: category,
//	 constraints: [{elements: [1, 2], method: NotMoreThan, control_count: 3}]}
func BuildScatterNode(cfg map[string]any) (pipeline.Node, error) {
	raw, ok := cfg["constraints"].([]any)
	if !ok {
		return nil, core.ConfigError(core.ModuleDiversity, "constraints not found or invalid")
	}
	constraints := make([]rerank.Constraint, 0, len(raw))
	for i, rc := range raw {
		m, ok := rc.(map[string]any)
		if !ok {
			return nil, core.ConfigError(core.ModuleDiversity, "constraint %d: expected a map", i)
		}
		constraints = append(constraints, rerank.Constraint{
			Elements:     conv.SliceAnyToString(m["elements"]),
			Method:       conv.ConfigGet(m, "method", ""),
			ControlCount: int(conv.ConfigGetInt64(m, "control_count", 0)),
		})
	}
	n := &rerank.Scatter{
		PageSize:    int(conv.ConfigGetInt64(cfg, "page_size", 0)),
		TopNPage:    int(conv.ConfigGetInt64(cfg, "top_n_page", 0)),
		Constraints: constraints,
		MatchField:  conv.ConfigGet(cfg, "match_field", rerank.MatchCategory),
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

func BuildTopNNode(cfg map[string]any) (pipeline.Node, error) {
	n := conv.ConfigGetInt64(cfg, "n", 0)
	if n <= 0 {
		return nil, core.ConfigError(core.ModuleDiversity, "rerank.topn: n must be > 0, got %d", n)
	}
	return &rerank.TopNNode{N: int(n)}, nil
}

// BuildBlacklistNode 构建黑名单过滤：{entries: ["123", "456_2"], key: "recall_blacklist"}。
func BuildBlacklistNode(cfg map[string]any, store core.Store) (pipeline.Node, error) {
	f := &filter.BlacklistFilter{
		Entries: conv.SliceAnyToString(cfg["entries"]),
		Key:     conv.ConfigGet(cfg, "key", ""),
	}
	if f.Key != "" {
		if store == nil {
			return nil, core.ConfigError(core.ModuleFilter, "filter.blacklist: key %q set without a store", f.Key)
		}
		f.Store = store
	}
	return filter.NewNode(f), nil
}

func BuildExprFilterNode(cfg map[string]any) (pipeline.Node, error) {
	return buildExpr(cfg, nil)
}

func buildExpr(cfg map[string]any, ev *dsl.Evaluator) (pipeline.Node, error) {
	f, err := filter.NewExprFilter(conv.ConfigGet(cfg, "expr", ""), ev)
	if err != nil {
		return nil, err
	}
	return filter.NewNode(f), nil
}

func BuildSpareFillNode(cfg map[string]any) (pipeline.Node, error) {
	keep := conv.ConfigGetInt64(cfg, "keep_item_num", 0)
	if keep < 0 {
		return nil, core.ConfigError(core.ModuleFilter, "filter.spare_fill: keep_item_num must be >= 0, got %d", keep)
	}
	return &filter.SpareFillNode{KeepItemNum: int(keep)}, nil
}

// BuildHTTPRankNode 构建 HTTP 排序节点：{endpoint: "http://ranker:8080/rank", timeout: 200, model: "gbdt"}，
// timeout 单位毫秒。
func BuildHTTPRankNode(cfg map[string]any) (pipeline.Node, error) {
	endpoint := conv.ConfigGet(cfg, "endpoint", "")
	if endpoint == "" {
		return nil, core.ConfigError(core.ModuleService, "rank.http: endpoint not found")
	}
	timeout := conv.ConfigGetMillis(cfg, "timeout", 0)
	return &rank.Node{
		Ranker: rank.NewHTTPRanker(endpoint, timeout),
		Model:  conv.ConfigGet(cfg, "model", fmt.Sprintf("http:%s", endpoint)),
	}, nil
}
