package feature

import (
	"context"
	"errors"
	"testing"

	"github.com/rushteam/recallkit/cache"
	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/feast"
	"github.com/rushteam/recallkit/store"
)

func seedItem(t *testing.T, s *store.MemoryStore, id int64, cat int32, basic *ItemBasic, statis *ItemStatis) {
	t.Helper()
	ctx := context.Background()
	if basic != nil {
		_ = s.HSet(ctx, ItemHashKey(id), ItemField(id, SuffixBasic, cat), MarshalItemBasic(basic))
	}
	if statis != nil {
		_ = s.HSet(ctx, ItemHashKey(id), ItemField(id, SuffixStatis, cat), MarshalItemStatis(statis))
	}
}

func TestItemCacheFromStore(t *testing.T) {
	s := store.NewMemoryStore()
	seedItem(t, s, 10001, 2, &ItemBasic{ItemID: 10001, Category: 2}, nil)
	seedItem(t, s, 20001, 2, nil, &ItemStatis{Click: 5})
	// 损坏记录被丢弃
	_ = s.HSet(context.Background(), ItemHashKey(30001), ItemField(30001, SuffixBasic, 2), []byte{0x0a, 0xff})

	c := NewItemCache(NewItemSource(s), cache.WithBucketCount(16))
	got, err := c.BatchGet(context.Background(), []string{"10001_2", "20001_2", "30001_2", "40001_2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2: %v", len(got), got)
	}
	if !got["10001_2"].HasProfile() || got["10001_2"].Basic == nil {
		t.Errorf("10001_2 = %+v", got["10001_2"])
	}
	if got["20001_2"].Statis == nil || got["20001_2"].Statis.Click != 5 {
		t.Errorf("20001_2 = %+v", got["20001_2"])
	}

	f, ok := c.Lookup(context.Background(), 10001, 2)
	if !ok || f.Basic.ItemID != 10001 {
		t.Errorf("Lookup = %+v, %v", f, ok)
	}
}

func TestUserCacheFromStore(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	_ = s.HSet(ctx, UserHashKey(9), UserField(9, SuffixIndex), MarshalUserIndex(&UserIndex{
		CategoryPref: []core.IDWeight{{ID: 1, Weight: 1}},
	}))

	c := NewUserCache(NewUserSource(s), cache.WithBucketCount(4))
	f := c.Lookup(ctx, 9)
	if f == nil || f.Index == nil || len(f.Index.CategoryPref) != 1 {
		t.Fatalf("Lookup(9) = %+v", f)
	}
	if f.Download != nil {
		t.Errorf("unexpected download record %+v", f.Download)
	}
	if c.Lookup(ctx, 10) != nil {
		t.Error("unknown user should be nil")
	}
}

func TestInvertIndexesRefresh(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	_ = s.Set(ctx, InvertIndexKey(InvertIndexHot, 1), MarshalInvertIndex([]core.SampleInfo{{ID: 1, Category: 1, Weight: 1}}))
	_ = s.Set(ctx, InvertIndexKey(InvertIndexHot, 2), MarshalInvertIndex([]core.SampleInfo{{ID: 2, Category: 2, Weight: 1}}))
	_ = s.Set(ctx, InvertIndexKey(InvertIndexSurge, 1), MarshalInvertIndex([]core.SampleInfo{{ID: 3, Category: 1, Weight: 1}}))
	_ = s.HSet(ctx, InvertIndexVersionKey, InvertIndexHot, []byte("1700000000"))

	idx := NewInvertIndexes(s, 8)
	hot, ok := idx.Get(InvertIndexHot)
	if !ok {
		t.Fatal("hot index missing")
	}
	if err := hot.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if hot.Version() != 1700000000 {
		t.Errorf("version = %d", hot.Version())
	}
	if hot.Len() != 2 {
		t.Errorf("hot entries = %d, want 2 (surge keys must not leak in)", hot.Len())
	}
	if got := hot.Lookup(ctx, 2); len(got) != 1 || got[0].ID != 2 {
		t.Errorf("Lookup(2) = %+v", got)
	}

	// 未全量加载的索引走回源
	surge, _ := idx.Get(InvertIndexSurge)
	if got := surge.Lookup(ctx, 1); len(got) != 1 || got[0].ID != 3 {
		t.Errorf("surge Lookup(1) = %+v", got)
	}
	if len(idx.All()) != len(InvertIndexBasicKeys()) {
		t.Errorf("All() = %d caches", len(idx.All()))
	}
}

func TestInvertIndexBadVersion(t *testing.T) {
	s := store.NewMemoryStore()
	_ = s.HSet(context.Background(), InvertIndexVersionKey, InvertIndexDLR, []byte("not-a-number"))
	_, err := NewInvertIndexSource(s, InvertIndexDLR).Version(context.Background())
	if !core.IsDecodeError(err) {
		t.Errorf("err = %v, want decode error", err)
	}
}

type fakeFeast struct {
	values map[int64]map[string]any
	err    error
}

func (f *fakeFeast) GetOnlineFeatures(_ context.Context, req *feast.GetOnlineFeaturesRequest) (*feast.GetOnlineFeaturesResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	resp := &feast.GetOnlineFeaturesResponse{}
	for _, row := range req.EntityRows {
		id := row["item_id"].(int64)
		resp.FeatureVectors = append(resp.FeatureVectors, feast.FeatureVector{Values: f.values[id], EntityRow: row})
	}
	return resp, nil
}

func (f *fakeFeast) Close() error { return nil }

func TestStatisFallbackSource(t *testing.T) {
	s := store.NewMemoryStore()
	seedItem(t, s, 1, 1, &ItemBasic{ItemID: 1}, nil)
	seedItem(t, s, 2, 1, &ItemBasic{ItemID: 2}, &ItemStatis{Click: 99})

	ff := &fakeFeast{values: map[int64]map[string]any{
		1: {"item_statis:click": float64(7), "item_statis:ctr": float64(0.5)},
		3: {"item_statis:download": float64(4)},
	}}
	src := NewStatisFallbackSource(NewItemSource(s), NewFeastStatisSource(ff, FeastStatisConfig{}))

	got, err := src.Fetch(context.Background(), 0, []string{"1_1", "2_1", "3_1"})
	if err != nil {
		t.Fatal(err)
	}
	if got["1_1"].Basic == nil || got["1_1"].Statis == nil || got["1_1"].Statis.Click != 7 || got["1_1"].Statis.CTR != 0.5 {
		t.Errorf("1_1 = %+v", got["1_1"])
	}
	if got["2_1"].Statis.Click != 99 {
		t.Errorf("primary statis overwritten: %+v", got["2_1"].Statis)
	}
	if got["3_1"] == nil || got["3_1"].Statis.Download != 4 {
		t.Errorf("3_1 = %+v", got["3_1"])
	}

	ff.err = errors.New("unavailable")
	got, err = src.Fetch(context.Background(), 0, []string{"1_1"})
	if err != nil || got["1_1"] == nil || got["1_1"].Statis != nil {
		t.Errorf("fallback failure should degrade to primary: %+v, %v", got, err)
	}
}
