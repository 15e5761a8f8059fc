package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rushteam/recallkit/core"
)

// truncNode 保留 Primary 前 n 个。
type truncNode struct{ n int }

func (t *truncNode) Name() string { return "test.trunc" }
func (t *truncNode) Kind() Kind   { return KindReRank }
func (t *truncNode) Process(_ context.Context, _ *core.RecommendContext, set *core.CandidateSet) (*core.CandidateSet, error) {
	if len(set.Primary) > t.n {
		set.Primary = set.Primary[:t.n]
	}
	return set, nil
}

type failNode struct{}

func (failNode) Name() string { return "test.fail" }
func (failNode) Kind() Kind   { return KindFilter }
func (failNode) Process(context.Context, *core.RecommendContext, *core.CandidateSet) (*core.CandidateSet, error) {
	return nil, errors.New("boom")
}

func testFactory() *NodeFactory {
	f := NewNodeFactory()
	f.Register("test.trunc", func(cfg map[string]any) (Node, error) {
		n, _ := cfg["n"].(int)
		return &truncNode{n: n}, nil
	})
	f.Register("test.fail", func(map[string]any) (Node, error) { return failNode{}, nil })
	return f
}

func TestPipelineRun(t *testing.T) {
	set := &core.CandidateSet{Primary: make([]core.Item, 10)}
	p := &Pipeline{Nodes: []Node{&truncNode{n: 5}, &truncNode{n: 3}}}
	out, err := p.Run(context.Background(), &core.RecommendContext{TraceLog: true}, set)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Primary) != 3 {
		t.Errorf("len = %d, want 3", len(out.Primary))
	}

	p = &Pipeline{Nodes: []Node{failNode{}, &truncNode{n: 1}}}
	if _, err := p.Run(context.Background(), &core.RecommendContext{}, set); err == nil {
		t.Error("expected node error")
	}

	var nilPipeline *Pipeline
	if out, err := nilPipeline.Run(context.Background(), nil, set); err != nil || out != set {
		t.Errorf("nil pipeline = %v, %v", out, err)
	}
}

const strategyYAML = `
apis:
  detail:
    recall:
      - exp_id: "1001"
        groups:
          - user_group: def_group
            merge_num: 50
            channels:
              - {type: ResType_Hot, num: 20, sample_fold: 2, merge_min: 5, merge_max: 20}
          - user_group: new_user
            merge_num: 30
            spare_merge_num: 10
            channels:
              - {type: Item_CF, num: 30, merge_max: 30}
    filter:
      - exp_id: "2001"
        groups:
          - user_group: def_group
            nodes:
              - type: test.trunc
                config: {n: 2}
    display:
      - exp_id: "3001"
        groups:
          - nodes:
              - type: test.trunc
                config: {n: 1}
`

func TestResolver(t *testing.T) {
	cfg, err := ParseStrategies([]byte(strategyYAML))
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewResolver(cfg, testFactory())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		rctx      core.RecommendContext
		mergeNum  int
		wantFound bool
	}{
		{"default group", core.RecommendContext{APIType: "detail", RecallExpID: "1001"}, 50, true},
		{"matched group", core.RecommendContext{APIType: "detail", RecallExpID: "1001", UserGroups: []string{"new_user"}}, 30, true},
		{"unknown group falls back", core.RecommendContext{APIType: "detail", RecallExpID: "1001", UserGroups: []string{"vip"}}, 50, true},
		{"unknown exp", core.RecommendContext{APIType: "detail", RecallExpID: "9"}, 0, false},
		{"unknown api", core.RecommendContext{APIType: "home", RecallExpID: "1001"}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := r.Recall(&tt.rctx)
			if !tt.wantFound {
				if !core.IsNotFound(err) {
					t.Errorf("err = %v, want NOT_FOUND", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if p.MergeNum != tt.mergeNum {
				t.Errorf("MergeNum = %d, want %d", p.MergeNum, tt.mergeNum)
			}
		})
	}

	rctx := &core.RecommendContext{APIType: "detail", RecallExpID: "1001", UserGroups: []string{"new_user"}}
	p, _ := r.Recall(rctx)
	if len(p.Channels) != 1 || p.Channels[0].Type != "Item_CF" || p.SpareMergeNum != 10 {
		t.Errorf("params = %+v", p)
	}

	rctx.FilterExpID, rctx.DisplayExpID = "2001", "3001"
	if fp, ok := r.Filter(rctx); !ok || len(fp.Nodes) != 1 {
		t.Errorf("Filter = %v, %v", fp, ok)
	}
	if dp, ok := r.Display(rctx); !ok || dp.Nodes[0].(*truncNode).n != 1 {
		t.Errorf("Display = %v, %v", dp, ok)
	}
	rctx.FilterExpID = "nope"
	if _, ok := r.Filter(rctx); ok {
		t.Error("unknown filter exp resolved")
	}
}

func TestResolverRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"merge num", `
apis:
  a:
    recall:
      - exp_id: "1"
        groups:
          - {user_group: def_group, merge_num: 0}
`},
		{"duplicate group", `
apis:
  a:
    recall:
      - exp_id: "1"
        groups:
          - {merge_num: 1}
          - {user_group: def_group, merge_num: 2}
`},
		{"unknown node", `
apis:
  a:
    display:
      - exp_id: "1"
        groups:
          - nodes: [{type: rerank.nope}]
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseStrategies([]byte(tt.yaml))
			if err != nil {
				t.Fatal(err)
			}
			if _, err := NewResolver(cfg, testFactory()); !core.IsConfigError(err) {
				t.Errorf("err = %v, want CONFIG_ERROR", err)
			}
		})
	}
}

func TestStrategyLoaderReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	if err := os.WriteFile(path, []byte(strategyYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	l, err := NewStrategyLoader(path, testFactory())
	if err != nil {
		t.Fatal(err)
	}
	first := l.Resolver()

	// 未修改：保持同一个 Resolver
	if err := l.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if l.Resolver() != first {
		t.Error("resolver replaced without file change")
	}

	// 写入错误配置：保留旧 Resolver
	if err := os.WriteFile(path, []byte("apis: {a: {recall: [{exp_id: '1', groups: [{merge_num: 0}]}]}}"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Minute)
	_ = os.Chtimes(path, future, future)
	if err := l.Refresh(context.Background()); !core.IsConfigError(err) {
		t.Errorf("Refresh(bad) = %v", err)
	}
	if l.Resolver() != first {
		t.Error("bad config replaced the resolver")
	}

	if _, err := NewStrategyLoader(filepath.Join(t.TempDir(), "missing.yaml"), testFactory()); err == nil {
		t.Error("expected error for missing file")
	}
}
