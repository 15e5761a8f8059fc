package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/feature"
	"github.com/rushteam/recallkit/filter"
	"github.com/rushteam/recallkit/store"
)

const testStrategy = `
apis:
  detail:
    recall:
      - exp_id: "r1"
        groups:
          - user_group: def_group
            merge_num: 10
            channels:
              - {type: ResType_Hot, num: 10, merge_max: 10}
    filter:
      - exp_id: "f1"
        groups:
          - nodes:
              - {type: filter.unfeatured}
              - {type: filter.spare_fill, config: {keep_item_num: 3}}
    display:
      - exp_id: "d1"
        groups:
          - nodes:
              - {type: rank.sort}
              - {type: rerank.topn, config: {n: 5}}
`

func seedStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	ctx := context.Background()
	samples := make([]core.SampleInfo, 0, 10)
	for id := int64(1); id <= 10; id++ {
		samples = append(samples, core.SampleInfo{ID: id, Category: 1, Weight: float32(11 - id)})
		if id <= 6 {
			_ = s.HSet(ctx, feature.ItemHashKey(id), feature.ItemField(id, feature.SuffixBasic, 1),
				feature.MarshalItemBasic(&feature.ItemBasic{ItemID: id, Category: 1}))
		}
	}
	_ = s.Set(ctx, feature.InvertIndexKey(feature.InvertIndexHot, 1), feature.MarshalInvertIndex(samples))
	_ = s.HSet(ctx, feature.InvertIndexVersionKey, feature.InvertIndexHot, []byte("1700000000"))
	return s
}

func testConfig(t *testing.T) Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	if err := os.WriteFile(path, []byte(testStrategy), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.Strategy.Path = path
	cfg.Cache.BucketCount = 16
	cfg.Cache.InvertBucketCount = 4
	cfg.Cache.RefreshIncrInterval = 10 * time.Millisecond
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func TestRecommend(t *testing.T) {
	app, err := New(context.Background(), testConfig(t), WithStore(seedStore(t)))
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()
	if err := app.Warmup(context.Background()); err != nil {
		t.Fatal(err)
	}

	rctx := &core.RecommendContext{
		UserID: 9, APIType: "detail", ContextCategory: 1,
		RecallExpID: "r1", FilterExpID: "f1", DisplayExpID: "d1", TraceLog: true,
	}
	set, err := app.Recommend(context.Background(), rctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Primary) != 5 {
		t.Fatalf("len(Primary) = %d, want 5: %+v", len(set.Primary), set.Primary)
	}
	seen := make(map[int64]bool)
	for i, it := range set.Primary {
		if it.ID > 6 {
			t.Errorf("unfeatured item %d survived", it.ID)
		}
		if seen[it.ID] {
			t.Errorf("duplicate item %d", it.ID)
		}
		seen[it.ID] = true
		if i > 0 && set.Primary[i-1].Score < it.Score {
			t.Errorf("not sorted by score at %d", i)
		}
	}

	rctx.RecallExpID = "missing"
	if _, err := app.Recommend(context.Background(), rctx); !core.IsNotFound(err) {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}

func TestAppsKeepOwnNodes(t *testing.T) {
	first, err := New(context.Background(), testConfig(t), WithStore(seedStore(t)))
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	second, err := New(context.Background(), testConfig(t), WithStore(seedStore(t)))
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	for _, app := range []*App{first, second} {
		n, err := app.Nodes.Factory().Build("filter.unfeatured", nil)
		if err != nil {
			t.Fatal(err)
		}
		if got := n.(*filter.FilterNode).Filters[0].(*filter.UnfeaturedFilter).Items; got != app.Items {
			t.Error("filter.unfeatured bound to another app's item cache")
		}
	}
}

func TestNewRejectsBadStrategy(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.Strategy.Path, []byte(`apis: {a: {display: [{exp_id: "1", groups: [{nodes: [{type: rank.nope}]}]}]}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(context.Background(), cfg, WithStore(store.NewMemoryStore())); !core.IsConfigError(err) {
		t.Errorf("err = %v, want CONFIG_ERROR", err)
	}

	cfg.Strategy.Path = ""
	if _, err := New(context.Background(), cfg, WithStore(store.NewMemoryStore())); !core.IsConfigError(err) {
		t.Errorf("err = %v, want CONFIG_ERROR", err)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	app, err := New(context.Background(), testConfig(t), WithStore(seedStore(t)))
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestHealthz(t *testing.T) {
	app, err := New(context.Background(), testConfig(t), WithStore(seedStore(t)))
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	rec := httptest.NewRecorder()
	app.healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recalld.yaml")
	yaml := `
redis:
  addr: redis:6379
cache:
  bucket_count: 128
  refresh_interval: 30s
strategy:
  path: /etc/recalld/strategy.yaml
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RECALLKIT_REDIS__PASSWORD", "secret")
	t.Setenv("RECALLKIT_RECALL__MAX_CONCURRENT", "4")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.Password != "secret" {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.Cache.BucketCount != 128 || cfg.Cache.RefreshInterval != 30*time.Second {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Recall.MaxConcurrent != 4 {
		t.Errorf("max_concurrent = %d", cfg.Recall.MaxConcurrent)
	}
	// 未覆盖的字段保持默认值
	if cfg.Recall.ChannelTimeout != 100*time.Millisecond || cfg.Cache.InvertBucketCount != 64 {
		t.Errorf("defaults lost: %+v", cfg.Recall)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err != nil {
		t.Errorf("missing file should fall back to defaults: %v", err)
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"RECALLKIT_REDIS__ADDR":             "redis.addr",
		"RECALLKIT_CACHE__REFRESH_INTERVAL": "cache.refresh_interval",
		"RECALLKIT_SHUTDOWN_TIMEOUT":        "shutdown_timeout",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}
