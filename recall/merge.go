package recall

import (
	"github.com/rushteam/recallkit/core"
)

// MergeSet 是融合去重集合（按物品 ID），主结果与备用结果共享同一个集合。
type MergeSet map[int64]struct{}

// Merge 按通道配置顺序把各通道结果融合进 out，返回追加后的切片。
//
// 两轮遍历共享 seen：
//   - 第一轮：每个通道最多放入 MergeMin 个新物品
//   - 第二轮：每个通道补到 MergeMax 个新物品
//
// 已在 seen 中的物品不计入通道配额。seen 的大小达到 limit 时立即停止：
// 备用结果与主结果共享 seen，因此备用结果最多只能补到 limit - len(seen)。
// 通道内保持原有顺序，输出为两轮的追加顺序。
func Merge(limit int, channels []ChannelParam, results map[string][]core.Item, seen MergeSet, out []core.Item) []core.Item {
	if limit <= 0 {
		return out
	}
	taken := make(map[string]int, len(channels))

	pass := func(quota func(ChannelParam) int) bool {
		for _, p := range channels {
			want := quota(p)
			for _, it := range results[p.Type] {
				if len(seen) >= limit {
					return false
				}
				if taken[p.Type] >= want {
					break
				}
				if _, dup := seen[it.ID]; dup {
					continue
				}
				seen[it.ID] = struct{}{}
				out = append(out, it)
				taken[p.Type]++
			}
		}
		return len(seen) < limit
	}

	if pass(func(p ChannelParam) int { return p.MergeMin }) {
		pass(func(p ChannelParam) int { return p.MergeMax })
	}
	return out
}

// MergeExclusive 对独立通道结果去重：按配置顺序，同一物品只保留第一次出现。
// 独立结果不与主结果 / 备用结果去重。
func MergeExclusive(channels []ChannelParam, results map[string][]core.Item) map[string][]core.Item {
	out := make(map[string][]core.Item, len(channels))
	seen := make(map[int64]struct{})
	for _, p := range channels {
		items, ok := results[p.Type]
		if !ok {
			continue
		}
		kept := make([]core.Item, 0, len(items))
		for _, it := range items {
			if _, dup := seen[it.ID]; dup {
				continue
			}
			seen[it.ID] = struct{}{}
			kept = append(kept, it)
		}
		out[p.Type] = kept
	}
	return out
}
