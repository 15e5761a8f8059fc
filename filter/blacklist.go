package filter

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/rushteam/recallkit/core"
)

// BlacklistFilter 是黑名单过滤器，过滤掉黑名单中的物品。
// 名单元素可以是物品 id（全类目生效）或 item key "<id>_<category>"。
type BlacklistFilter struct {
	// Entries 是内存中的黑名单
	Entries []string

	// Store 用于从存储中读取黑名单（可选），值为 JSON 字符串数组
	Store core.Store

	// Key 是 Store 中的黑名单 key（可选）
	Key string
}

func (f *BlacklistFilter) Name() string {
	return "filter.blacklist"
}

func (f *BlacklistFilter) ShouldFilter(
	ctx context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	bound, err := f.Prepare(ctx, rctx, nil)
	if err != nil {
		return false, err
	}
	return bound.ShouldFilter(ctx, rctx, item)
}

// Prepare 合并内存名单与 Store 名单；Store 中没有该 key 时只用内存名单。
func (f *BlacklistFilter) Prepare(ctx context.Context, _ *core.RecommendContext, _ *core.CandidateSet) (Filter, error) {
	entries := f.Entries
	if f.Store != nil && f.Key != "" {
		data, err := f.Store.Get(ctx, f.Key)
		switch {
		case err == nil:
			var ids []string
			if err := json.Unmarshal(data, &ids); err != nil {
				return nil, core.DecodeError(core.ModuleFilter, err, "blacklist %s", f.Key)
			}
			entries = append(append([]string(nil), entries...), ids...)
		case core.IsStoreNotFound(err):
		default:
			return nil, err
		}
	}
	b := &blacklist{keys: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		b.keys[e] = struct{}{}
	}
	return b, nil
}

type blacklist struct {
	keys map[string]struct{}
}

func (b *blacklist) Name() string { return "filter.blacklist" }

func (b *blacklist) ShouldFilter(_ context.Context, _ *core.RecommendContext, item *core.Item) (bool, error) {
	if _, ok := b.keys[item.Key()]; ok {
		return true, nil
	}
	_, ok := b.keys[strconv.FormatInt(item.ID, 10)]
	return ok, nil
}
