package builders

import (
	"context"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/recallkit/cache"
	"github.com/rushteam/recallkit/config"
	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/feature"
	"github.com/rushteam/recallkit/filter"
	"github.com/rushteam/recallkit/pipeline"
	"github.com/rushteam/recallkit/rerank"
	"github.com/rushteam/recallkit/store"
)

func parse(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := yaml.Unmarshal([]byte(s), &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestBuildScatterNode(t *testing.T) {
	n, err := BuildScatterNode(parse(t, `
page_size: 10
top_n_page: 3
constraints:
  - {elements: [1, 2], method: NotMoreThan, control_count: 3}
  - {elements: ["Item_CF"], method: NotLessThan, control_count: 1}
match_field: channel
`))
	if err != nil {
		t.Fatal(err)
	}
	s := n.(*rerank.Scatter)
	if s.PageSize != 10 || s.TopNPage != 3 || s.MatchField != rerank.MatchChannel || len(s.Constraints) != 2 {
		t.Fatalf("scatter = %+v", s)
	}
	if c := s.Constraints[0]; len(c.Elements) != 2 || c.Elements[0] != "1" || c.ControlCount != 3 {
		t.Errorf("constraint = %+v", c)
	}

	bad := []string{
		`{page_size: 10, top_n_page: 3}`,
		`{page_size: 0, top_n_page: 3, constraints: [{elements: [1], method: NotMoreThan, control_count: 1}]}`,
		`{page_size: 10, top_n_page: 3, constraints: [{elements: [1], method: Sometimes, control_count: 1}]}`,
		`{page_size: 10, top_n_page: 3, constraints: [{elements: [1], method: NotMoreThan, control_count: 11}]}`,
		`{page_size: 10, top_n_page: 3, constraints: [3]}`,
	}
	for _, b := range bad {
		if _, err := BuildScatterNode(parse(t, b)); !core.IsConfigError(err) {
			t.Errorf("BuildScatterNode(%s) = %v, want CONFIG_ERROR", b, err)
		}
	}
}

func TestStaticBuilders(t *testing.T) {
	tests := []struct {
		name    string
		build   config.NodeBuilder
		cfg     string
		wantErr bool
	}{
		{"topn", BuildTopNNode, `{n: 20}`, false},
		{"topn zero", BuildTopNNode, `{n: 0}`, true},
		{"expr", BuildExprFilterNode, `{expr: "item.score < 0.1"}`, false},
		{"expr empty", BuildExprFilterNode, `{}`, true},
		{"spare fill", BuildSpareFillNode, `{keep_item_num: 30}`, false},
		{"spare fill negative", BuildSpareFillNode, `{keep_item_num: -1}`, true},
		{"http rank", BuildHTTPRankNode, `{endpoint: "http://127.0.0.1:1/rank", timeout: 100}`, false},
		{"http rank no endpoint", BuildHTTPRankNode, `{}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := tt.build(parse(t, tt.cfg))
			if tt.wantErr {
				if !core.IsConfigError(err) {
					t.Errorf("err = %v, want CONFIG_ERROR", err)
				}
				return
			}
			if err != nil || n == nil {
				t.Fatalf("build = %v, %v", n, err)
			}
		})
	}
}

func TestRegisterDeps(t *testing.T) {
	s := store.NewMemoryStore()
	reg := NewRegistry(Deps{
		Items: feature.NewItemCache(feature.NewItemSource(s), cache.WithBucketCount(4)),
		Users: feature.NewUserCache(feature.NewUserSource(s), cache.WithBucketCount(4)),
		Store: s,
		Ranker: core.RankerFunc(func(_ context.Context, _ *core.RecommendContext, items []core.Item) ([]core.Item, error) {
			return items, nil
		}),
	})

	cfg, err := pipeline.ParseStrategies([]byte(`
apis:
  detail:
    filter:
      - exp_id: "1"
        groups:
          - nodes:
              - {type: filter.unfeatured}
              - {type: filter.download, config: {validity_time: 86400}}
              - {type: filter.blacklist, config: {entries: [1, "2_3"], key: blacklist}}
              - {type: filter.spare_fill, config: {keep_item_num: 10}}
    display:
      - exp_id: "2"
        groups:
          - nodes:
              - {type: rank.model}
              - {type: rerank.scatter, config: {page_size: 5, top_n_page: 2, constraints: [{elements: [1], method: NotMoreThan, control_count: 2}]}}
              - {type: rerank.topn, config: {n: 10}}
`))
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.ValidateStrategies(cfg); err != nil {
		t.Fatal(err)
	}
	r, err := pipeline.NewResolver(cfg, reg.Factory())
	if err != nil {
		t.Fatal(err)
	}
	rctx := &core.RecommendContext{APIType: "detail", FilterExpID: "1", DisplayExpID: "2"}
	if p, ok := r.Filter(rctx); !ok || len(p.Nodes) != 4 {
		t.Errorf("filter pipeline = %+v", p)
	}
	if p, ok := r.Display(rctx); !ok || len(p.Nodes) != 3 {
		t.Errorf("display pipeline = %+v", p)
	}

	// download 缺少 validity_time 时配置错误
	f := reg.Factory()
	if _, err := f.Build("filter.download", map[string]any{}); !core.IsConfigError(err) {
		t.Errorf("filter.download without validity_time = %v", err)
	}

	cfg.APIs["detail"].Display[0].Groups[0].Nodes[0].Type = "rank.nope"
	if err := reg.ValidateStrategies(cfg); !core.IsConfigError(err) {
		t.Errorf("ValidateStrategies = %v, want CONFIG_ERROR", err)
	}
}

type stubFilter struct{ name string }

func (f stubFilter) Name() string { return f.name }
func (f stubFilter) ShouldFilter(context.Context, *core.RecommendContext, *core.Item) (bool, error) {
	return false, nil
}

func TestRegistriesAreIsolated(t *testing.T) {
	s := store.NewMemoryStore()
	itemsA := feature.NewItemCache(feature.NewItemSource(s), cache.WithBucketCount(4))
	itemsB := feature.NewItemCache(feature.NewItemSource(s), cache.WithBucketCount(4))
	regA := NewRegistry(Deps{Items: itemsA, Store: s})
	regB := NewRegistry(Deps{Items: itemsB, Store: s})

	unfeaturedItems := func(reg *config.Registry) *feature.ItemCache {
		t.Helper()
		n, err := reg.Factory().Build("filter.unfeatured", nil)
		if err != nil {
			t.Fatal(err)
		}
		return n.(*filter.FilterNode).Filters[0].(*filter.UnfeaturedFilter).Items
	}
	if unfeaturedItems(regA) != itemsA {
		t.Error("registry A rebound to another item cache")
	}
	if unfeaturedItems(regB) != itemsB {
		t.Error("registry B rebound to another item cache")
	}

	// 实例私有的构建器不进入全局注册表，全局的无依赖构建器对所有实例可见
	for _, typ := range []string{"filter.unfeatured", "filter.download"} {
		if _, err := config.DefaultFactory().Build(typ, nil); !core.IsConfigError(err) {
			t.Errorf("global registry builds %s: %v", typ, err)
		}
	}
	if _, err := regA.Factory().Build("rerank.topn", map[string]any{"n": 3}); err != nil {
		t.Errorf("instance registry lost static builder: %v", err)
	}

	// 在一个实例上覆盖不影响另一个
	regA.Register("filter.custom", func(map[string]any) (pipeline.Node, error) {
		return filter.NewNode(stubFilter{name: "custom"}), nil
	})
	if _, err := regB.Factory().Build("filter.custom", nil); !core.IsConfigError(err) {
		t.Errorf("registry B sees registry A's builder: %v", err)
	}
}
