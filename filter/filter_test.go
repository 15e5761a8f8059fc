package filter

import (
	"context"
	"errors"
	"testing"

	"github.com/rushteam/recallkit/cache"
	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/feature"
	"github.com/rushteam/recallkit/store"
)

func items(keys ...[2]int64) []core.Item {
	out := make([]core.Item, len(keys))
	for i, k := range keys {
		out[i] = core.Item{ID: k[0], Category: int32(k[1])}
	}
	return out
}

func keysOf(list []core.Item) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = list[i].Key()
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestUnfeaturedFilter(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	for _, id := range []int64{1, 3, 5} {
		_ = s.HSet(ctx, feature.ItemHashKey(id), feature.ItemField(id, feature.SuffixBasic, 1),
			feature.MarshalItemBasic(&feature.ItemBasic{ItemID: id, Category: 1}))
	}
	// 只有索引特征的物品也算无特征
	_ = s.HSet(ctx, feature.ItemHashKey(2), feature.ItemField(2, feature.SuffixIndex, 1),
		feature.MarshalItemIndex(&feature.ItemIndex{CFItem: []core.IDWeight{{ID: 9, Weight: 1}}}))

	f := &UnfeaturedFilter{Items: feature.NewItemCache(feature.NewItemSource(s), cache.WithBucketCount(4))}
	set := &core.CandidateSet{
		Primary:   items([2]int64{1, 1}, [2]int64{2, 1}, [2]int64{3, 1}),
		Spare:     items([2]int64{4, 1}),
		Exclusive: map[string][]core.Item{"x": items([2]int64{5, 1}, [2]int64{2, 1})},
	}
	out, err := NewNode(f).Process(ctx, &core.RecommendContext{TraceLog: true}, set)
	if err != nil {
		t.Fatal(err)
	}
	if got := keysOf(out.Primary); !equal(got, []string{"1_1", "3_1"}) {
		t.Errorf("Primary = %v", got)
	}
	if len(out.Spare) != 0 {
		t.Errorf("Spare = %v", keysOf(out.Spare))
	}
	if got := keysOf(out.Exclusive["x"]); !equal(got, []string{"5_1"}) {
		t.Errorf("Exclusive = %v", got)
	}

	drop, _ := f.ShouldFilter(ctx, nil, &core.Item{ID: 4, Category: 1})
	keep, _ := f.ShouldFilter(ctx, nil, &core.Item{ID: 1, Category: 1})
	if !drop || keep {
		t.Errorf("ShouldFilter drop=%v keep=%v", drop, keep)
	}
}

func TestUnfeaturedFilterRemoteFailure(t *testing.T) {
	s := store.NewMemoryStore()
	s.SetFailure(errors.New("down"))
	f := &UnfeaturedFilter{Items: feature.NewItemCache(feature.NewItemSource(s), cache.WithBucketCount(4))}
	set := &core.CandidateSet{Primary: items([2]int64{1, 1}, [2]int64{2, 1})}
	out, err := NewNode(f).Process(context.Background(), &core.RecommendContext{}, set)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Primary) != 2 {
		t.Errorf("remote failure should skip the filter, got %v", keysOf(out.Primary))
	}
}

func newUsers(uid int64, d *feature.UserDownload) *feature.UserCache {
	c := feature.NewUserCache(nil, cache.WithBucketCount(4))
	c.Put(feature.UserKey(uid), &feature.UserFeature{Download: d})
	return c
}

func TestDownloadFilter(t *testing.T) {
	const now = 1_700_000_000
	users := newUsers(9, &feature.UserDownload{Items: map[int32][]feature.IDTime{
		1: {{ID: 10, Timestamp: now - 100}, {ID: 11, Timestamp: now - 5000}},
		2: {{ID: 20, Timestamp: now - 10}},
	}})
	f := &DownloadFilter{ValidityTime: 3600, Users: users, Now: func() int64 { return now }}
	rctx := &core.RecommendContext{UserID: 9, ContextCategory: 1}

	tests := []struct {
		name string
		rctx *core.RecommendContext
		want []string
	}{
		{"context category", rctx, []string{"11_1", "10_2", "12_1", "20_2"}},
		{"other context category", &core.RecommendContext{UserID: 9, ContextCategory: 2}, []string{"10_1", "11_1", "10_2", "12_1"}},
		{"no record for category", &core.RecommendContext{UserID: 9, ContextCategory: 3}, []string{"10_1", "11_1", "10_2", "12_1", "20_2"}},
		{"unknown user", &core.RecommendContext{UserID: 1, ContextCategory: 1}, []string{"10_1", "11_1", "10_2", "12_1", "20_2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := &core.CandidateSet{
				Primary: items([2]int64{10, 1}, [2]int64{11, 1}, [2]int64{10, 2}),
				Spare:   items([2]int64{12, 1}, [2]int64{20, 2}),
			}
			out, err := NewNode(f).Process(context.Background(), tt.rctx, set)
			if err != nil {
				t.Fatal(err)
			}
			got := append(keysOf(out.Primary), keysOf(out.Spare)...)
			if !equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if drop, _ := f.ShouldFilter(context.Background(), rctx, &core.Item{ID: 10, Category: 1}); !drop {
		t.Error("ShouldFilter(10_1) = false")
	}
	if drop, _ := f.ShouldFilter(context.Background(), rctx, &core.Item{ID: 11, Category: 1}); drop {
		t.Error("expired download filtered")
	}
}

func TestDownloadFilterValidity(t *testing.T) {
	f := &DownloadFilter{Users: newUsers(9, &feature.UserDownload{Items: map[int32][]feature.IDTime{1: {{ID: 10, Timestamp: 1}}}})}
	if err := f.Validate(); !core.IsConfigError(err) {
		t.Errorf("Validate = %v, want CONFIG_ERROR", err)
	}
	// 参数错误时跳过该过滤器，候选保持不变
	set := &core.CandidateSet{Primary: items([2]int64{10, 1})}
	out, err := NewNode(f).Process(context.Background(), &core.RecommendContext{UserID: 9, ContextCategory: 1}, set)
	if err != nil || len(out.Primary) != 1 {
		t.Errorf("Process = %v, %v", keysOf(out.Primary), err)
	}
}

func TestBlacklistFilter(t *testing.T) {
	s := store.NewMemoryStore()
	_ = s.Set(context.Background(), "blacklist", []byte(`["9"]`))

	tests := []struct {
		name string
		f    *BlacklistFilter
		want []string
	}{
		{"entries only", &BlacklistFilter{Entries: []string{"7", "8_2"}}, []string{"8_1", "9_3", "10_1"}},
		{"with store", &BlacklistFilter{Entries: []string{"7", "8_2"}, Store: s, Key: "blacklist"}, []string{"8_1", "10_1"}},
		{"missing store key", &BlacklistFilter{Entries: []string{"7"}, Store: s, Key: "nope"}, []string{"8_1", "8_2", "9_3", "10_1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := &core.CandidateSet{Primary: items([2]int64{7, 1}, [2]int64{8, 1}, [2]int64{8, 2}, [2]int64{9, 3}, [2]int64{10, 1})}
			out, err := NewNode(tt.f).Process(context.Background(), &core.RecommendContext{}, set)
			if err != nil {
				t.Fatal(err)
			}
			if got := keysOf(out.Primary); !equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	_ = s.Set(context.Background(), "broken", []byte(`{`))
	bad := &BlacklistFilter{Store: s, Key: "broken"}
	if _, err := bad.ShouldFilter(context.Background(), nil, &core.Item{ID: 1}); !core.IsDecodeError(err) {
		t.Errorf("err = %v, want DECODE_ERROR", err)
	}
}

func TestExprFilter(t *testing.T) {
	f, err := NewExprFilter(`item.score < 0.5 || item.channel == "Item_CF"`, nil)
	if err != nil {
		t.Fatal(err)
	}
	set := &core.CandidateSet{Primary: []core.Item{
		{ID: 1, Score: 0.9, Channel: "ResType_Hot"},
		{ID: 2, Score: 0.1, Channel: "ResType_Hot"},
		{ID: 3, Score: 0.9, Channel: "Item_CF"},
		{ID: 4, Score: 0.6, Channel: "ResType_Hot"},
	}}
	out, err := NewNode(f).Process(context.Background(), &core.RecommendContext{}, set)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Primary) != 2 || out.Primary[0].ID != 1 || out.Primary[1].ID != 4 {
		t.Errorf("Primary = %+v", out.Primary)
	}

	for _, expr := range []string{"", "item.score <"} {
		if _, err := NewExprFilter(expr, nil); !core.IsConfigError(err) {
			t.Errorf("NewExprFilter(%q) = %v, want CONFIG_ERROR", expr, err)
		}
	}
}

func TestSpareFill(t *testing.T) {
	tests := []struct {
		name string
		keep int
		want int
	}{
		{"not enough", 5, 5},
		{"enough", 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := &core.CandidateSet{
				Primary: items([2]int64{1, 1}, [2]int64{2, 1}),
				Spare:   items([2]int64{3, 1}, [2]int64{4, 1}, [2]int64{5, 1}),
			}
			out, err := (&SpareFillNode{KeepItemNum: tt.keep}).Process(context.Background(), &core.RecommendContext{}, set)
			if err != nil {
				t.Fatal(err)
			}
			if len(out.Primary) != tt.want {
				t.Errorf("len(Primary) = %d, want %d", len(out.Primary), tt.want)
			}
		})
	}
}

func TestNodeName(t *testing.T) {
	n := NewNode(&UnfeaturedFilter{}, &BlacklistFilter{})
	if got := n.Name(); got != "filter.node(filter.unfeatured,filter.blacklist)" {
		t.Errorf("Name = %q", got)
	}
	if got := NewNode(&DownloadFilter{}).Name(); got != "filter.download" {
		t.Errorf("Name = %q", got)
	}
}
