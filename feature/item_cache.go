package feature

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/recallkit/cache"
	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/logging"
)

// itemSuffixes 是每个物品在 Hash 中的三条记录。
var itemSuffixes = [...]string{SuffixBasic, SuffixStatis, SuffixIndex}

// ItemSource 从 HashStore 读取物品特征（cache.Source 实现）。
// 同一远端 Hash 内的字段合并为一次 HMGET。
type ItemSource struct {
	store core.HashStore
	log   zerolog.Logger
}

func NewItemSource(store core.HashStore) *ItemSource {
	return &ItemSource{store: store, log: logging.Component("feature").With().Str("source", "item").Logger()}
}

type itemRef struct {
	key string
	id  int64
	cat int32
}

// Fetch 忽略本地桶号，按物品 id 计算远端 Hash 分组读取。
func (s *ItemSource) Fetch(ctx context.Context, _ int, keys []string) (map[string]*ItemFeature, error) {
	groups := make(map[string][]itemRef)
	for _, key := range keys {
		id, cat, err := core.ParseItemKey(key)
		if err != nil {
			s.log.Debug().Str("key", key).Msg("skip malformed item key")
			continue
		}
		hk := ItemHashKey(id)
		groups[hk] = append(groups[hk], itemRef{key: key, id: id, cat: cat})
	}

	out := make(map[string]*ItemFeature, len(keys))
	for hk, refs := range groups {
		fields := make([]string, 0, len(refs)*len(itemSuffixes))
		for _, r := range refs {
			for _, suffix := range itemSuffixes {
				fields = append(fields, ItemField(r.id, suffix, r.cat))
			}
		}
		vals, err := s.store.HMGet(ctx, hk, fields)
		if err != nil {
			return out, err
		}
		for i, r := range refs {
			f := s.decode(r.key, vals[i*3], vals[i*3+1], vals[i*3+2])
			if f != nil {
				out[r.key] = f
			}
		}
	}
	return out, nil
}

// decode 单条记录解码失败只丢弃该记录。
func (s *ItemSource) decode(key string, basic, statis, index []byte) *ItemFeature {
	f := &ItemFeature{}
	var err error
	if basic != nil {
		if f.Basic, err = UnmarshalItemBasic(basic); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("decode item basic")
		}
	}
	if statis != nil {
		if f.Statis, err = UnmarshalItemStatis(statis); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("decode item statis")
		}
	}
	if index != nil {
		if f.Index, err = UnmarshalItemIndex(index); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("decode item index")
		}
	}
	if f.Basic == nil && f.Statis == nil && f.Index == nil {
		return nil
	}
	return f
}

// ItemCache 物品特征缓存，key 为 "<id>_<category>"。
type ItemCache struct {
	*cache.Bucketed[*ItemFeature]
}

// NewItemCache 创建物品特征缓存。
func NewItemCache(source cache.Source[*ItemFeature], opts ...cache.Option) *ItemCache {
	return &ItemCache{Bucketed: cache.New[*ItemFeature]("item_feature", source, opts...)}
}

// Lookup 读取单个物品特征，未命中时同步回源。
func (c *ItemCache) Lookup(ctx context.Context, id int64, category int32) (*ItemFeature, bool) {
	key := core.ItemKey(id, category)
	return c.Bucketed.Lookup(ctx, key)
}
