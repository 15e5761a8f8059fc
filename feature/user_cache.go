package feature

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/rushteam/recallkit/cache"
	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/logging"
)

// UserSource 从 HashStore 读取用户索引与下载记录。
type UserSource struct {
	store core.HashStore
	log   zerolog.Logger
}

func NewUserSource(store core.HashStore) *UserSource {
	return &UserSource{store: store, log: logging.Component("feature").With().Str("source", "user").Logger()}
}

func (s *UserSource) Fetch(ctx context.Context, _ int, keys []string) (map[string]*UserFeature, error) {
	type ref struct {
		key string
		uid int64
	}
	groups := make(map[string][]ref)
	for _, key := range keys {
		uid, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		hk := UserHashKey(uid)
		groups[hk] = append(groups[hk], ref{key: key, uid: uid})
	}

	out := make(map[string]*UserFeature, len(keys))
	for hk, refs := range groups {
		fields := make([]string, 0, len(refs)*2)
		for _, r := range refs {
			fields = append(fields, UserField(r.uid, SuffixIndex), UserField(r.uid, SuffixDownload))
		}
		vals, err := s.store.HMGet(ctx, hk, fields)
		if err != nil {
			return out, err
		}
		for i, r := range refs {
			f := &UserFeature{}
			if b := vals[i*2]; b != nil {
				if f.Index, err = UnmarshalUserIndex(b); err != nil {
					s.log.Warn().Err(err).Int64("user_id", r.uid).Msg("decode user index")
				}
			}
			if b := vals[i*2+1]; b != nil {
				if f.Download, err = UnmarshalUserDownload(b); err != nil {
					s.log.Warn().Err(err).Int64("user_id", r.uid).Msg("decode user download")
				}
			}
			if f.Index != nil || f.Download != nil {
				out[r.key] = f
			}
		}
	}
	return out, nil
}

// UserCache 用户特征缓存，key 为用户 id。
type UserCache struct {
	*cache.Bucketed[*UserFeature]
}

func NewUserCache(source cache.Source[*UserFeature], opts ...cache.Option) *UserCache {
	return &UserCache{Bucketed: cache.New[*UserFeature]("user_feature", source, opts...)}
}

// Lookup 读取用户特征，未命中时同步回源；失败时返回 nil。
func (c *UserCache) Lookup(ctx context.Context, userID int64) *UserFeature {
	key := UserKey(userID)
	f, _ := c.Bucketed.Lookup(ctx, key)
	return f
}
