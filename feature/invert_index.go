package feature

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rushteam/recallkit/cache"
	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/logging"
)

// 倒排索引的 basic key，实际 key 为 basic key + 类目。
const (
	InvertIndexHot     = "recall_res_type_hot_invert_index"
	InvertIndexQuality = "recall_res_type_quality_invert_index"
	InvertIndexSurge   = "recall_res_type_surge_invert_index"
	InvertIndexCTCVR   = "recall_res_type_ctcvr_invert_index"
	InvertIndexDLR     = "recall_res_type_dlr_invert_index"
)

// InvertIndexBasicKeys 返回所有倒排索引 basic key。
func InvertIndexBasicKeys() []string {
	return []string{InvertIndexHot, InvertIndexQuality, InvertIndexSurge, InvertIndexCTCVR, InvertIndexDLR}
}

const loadAllBatch = 500

// InvertIndexSource 读取一类倒排索引（cache.VersionedSource 实现）。
type InvertIndexSource struct {
	store    core.HashStore
	basicKey string
	log      zerolog.Logger
}

func NewInvertIndexSource(store core.HashStore, basicKey string) *InvertIndexSource {
	return &InvertIndexSource{
		store:    store,
		basicKey: basicKey,
		log:      logging.Component("feature").With().Str("index", basicKey).Logger(),
	}
}

func (s *InvertIndexSource) Fetch(ctx context.Context, _ int, keys []string) (map[string][]core.SampleInfo, error) {
	raw, err := s.store.BatchGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	return s.decodeAll(raw), nil
}

// Version 读取远端更新时间；远端没有记录时返回 0（总是全量刷新）。
func (s *InvertIndexSource) Version(ctx context.Context) (int64, error) {
	b, err := s.store.HGet(ctx, InvertIndexVersionKey, s.basicKey)
	if core.IsStoreNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, core.DecodeError(core.ModuleFeature, err, "version of %s", s.basicKey)
	}
	return v, nil
}

// LoadAll 扫描 basic key 前缀下的全部类目索引。
func (s *InvertIndexSource) LoadAll(ctx context.Context) (map[string][]core.SampleInfo, error) {
	keys, err := s.store.Scan(ctx, s.basicKey+"*")
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	out := make(map[string][]core.SampleInfo, len(keys))
	for start := 0; start < len(keys); start += loadAllBatch {
		end := min(start+loadAllBatch, len(keys))
		raw, err := s.store.BatchGet(ctx, keys[start:end])
		if err != nil {
			return nil, err
		}
		for k, v := range s.decodeAll(raw) {
			out[k] = v
		}
	}
	return out, nil
}

func (s *InvertIndexSource) decodeAll(raw map[string][]byte) map[string][]core.SampleInfo {
	out := make(map[string][]core.SampleInfo, len(raw))
	for k, b := range raw {
		samples, err := UnmarshalInvertIndex(b)
		if err != nil {
			s.log.Warn().Err(err).Str("key", k).Msg("skip corrupt invert index")
			continue
		}
		out[k] = samples
	}
	return out
}

// InvertIndexCache 一类倒排索引的本地缓存。
type InvertIndexCache struct {
	*cache.Bucketed[[]core.SampleInfo]
	basicKey string
}

// Lookup 返回某类目的倒排索引（远端顺序）。
func (c *InvertIndexCache) Lookup(ctx context.Context, category int32) []core.SampleInfo {
	key := InvertIndexKey(c.basicKey, category)
	v, _ := c.Bucketed.Lookup(ctx, key)
	return v
}

// InvertIndexes 按 basic key 管理所有倒排索引缓存。
type InvertIndexes struct {
	caches map[string]*InvertIndexCache
}

// NewInvertIndexes 为每个 basic key 创建一个缓存；索引条目少，分桶数取较小值。
func NewInvertIndexes(store core.HashStore, bucketCount int) *InvertIndexes {
	idx := &InvertIndexes{caches: make(map[string]*InvertIndexCache)}
	for _, bk := range InvertIndexBasicKeys() {
		idx.caches[bk] = &InvertIndexCache{
			Bucketed: cache.New[[]core.SampleInfo](bk, NewInvertIndexSource(store, bk), cache.WithBucketCount(bucketCount)),
			basicKey: bk,
		}
	}
	return idx
}

// Get 返回 basic key 对应的缓存。
func (x *InvertIndexes) Get(basicKey string) (*InvertIndexCache, bool) {
	c, ok := x.caches[basicKey]
	return c, ok
}

// All 返回所有缓存（按 basic key 排序）。
func (x *InvertIndexes) All() []*InvertIndexCache {
	out := make([]*InvertIndexCache, 0, len(x.caches))
	for _, bk := range InvertIndexBasicKeys() {
		if c, ok := x.caches[bk]; ok {
			out = append(out, c)
		}
	}
	return out
}
