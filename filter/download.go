package filter

import (
	"context"
	"time"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/feature"
)

// DownloadFilter 过滤用户在有效期内下载过的、与上下文物品同类目的物品。
type DownloadFilter struct {
	// ValidityTime 有效期（秒），必须 > 0
	ValidityTime int64
	Users        *feature.UserCache

	// Now 返回当前 unix 秒，为空时使用 time.Now
	Now func() int64
}

func (f *DownloadFilter) Name() string { return "filter.download" }

// Validate 校验参数。
func (f *DownloadFilter) Validate() error {
	if f.ValidityTime <= 0 {
		return core.ConfigError(core.ModuleFilter, "validity_time must be > 0, got %d", f.ValidityTime)
	}
	return nil
}

func (f *DownloadFilter) now() int64 {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now().Unix()
}

func (f *DownloadFilter) ShouldFilter(ctx context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error) {
	if err := f.Validate(); err != nil {
		return false, err
	}
	if item.Category != rctx.ContextCategory {
		return false, nil
	}
	uf := f.Users.Lookup(ctx, rctx.UserID)
	if uf == nil {
		return false, nil
	}
	ts, ok := uf.Download.DownloadedAt(rctx.ContextCategory, item.ID)
	return ok && f.now()-ts < f.ValidityTime, nil
}

// Prepare 读取一次用户下载记录，生成本次请求要过滤的 item key 集合。
// 用户没有下载记录或上下文类目下没有记录时不过滤。
func (f *DownloadFilter) Prepare(ctx context.Context, rctx *core.RecommendContext, _ *core.CandidateSet) (Filter, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	uf := f.Users.Lookup(ctx, rctx.UserID)
	if uf == nil || uf.Download == nil {
		return nil, nil
	}
	list := uf.Download.Items[rctx.ContextCategory]
	if len(list) == 0 {
		return nil, nil
	}
	now := f.now()
	keys := make(map[string]struct{}, len(list))
	for _, it := range list {
		if now-it.Timestamp < f.ValidityTime {
			keys[core.ItemKey(it.ID, rctx.ContextCategory)] = struct{}{}
		}
	}
	return &keySet{name: f.Name(), keys: keys}, nil
}
