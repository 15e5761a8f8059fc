package rerank

import (
	"context"
	"strconv"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/logging"
	"github.com/rushteam/recallkit/pipeline"
)

// 打散约束的控制方式。
const (
	NotMoreThan = "NotMoreThan" // 每页命中元素的物品不超过 ControlCount 个
	NotLessThan = "NotLessThan" // 每页命中元素的物品不少于 ControlCount 个
)

// 打散匹配的物品字段。
const (
	MatchCategory = "category"
	MatchChannel  = "channel"
)

// Constraint 是一条打散约束。
type Constraint struct {
	// Elements 是元素集合：类目 id（十进制字符串）或召回通道名
	Elements     []string `yaml:"elements"`
	Method       string   `yaml:"method"`
	ControlCount int      `yaml:"control_count"`
}

// Scatter 是按页打散重排节点，作用于 Primary 列表。
//
// 逐页处理前 min(TopNPage, 总页数) 页：
//   - 按当前顺序遍历未放置的物品，满足所有约束的直接放入本页
//   - 不满足的放入等待队列；本页不足时从队首补齐（即使违反约束）
//   - 剩余物品保持相对顺序滚入下一页
//
// 处理完的页之后，剩余物品按原顺序追加。
type Scatter struct {
	PageSize    int
	TopNPage    int
	Constraints []Constraint
	// MatchField 为 category（默认）或 channel
	MatchField string
}

func (n *Scatter) Name() string        { return "rerank.scatter" }
func (n *Scatter) Kind() pipeline.Kind { return pipeline.KindReRank }

// Validate 校验打散参数，错误为 CONFIG_ERROR。
func (n *Scatter) Validate() error {
	if n.PageSize <= 0 {
		return core.ConfigError(core.ModuleDiversity, "page_size must be > 0, got %d", n.PageSize)
	}
	if n.TopNPage <= 0 {
		return core.ConfigError(core.ModuleDiversity, "top_n_page must be > 0, got %d", n.TopNPage)
	}
	if len(n.Constraints) == 0 {
		return core.ConfigError(core.ModuleDiversity, "no scatter constraints")
	}
	switch n.MatchField {
	case "", MatchCategory, MatchChannel:
	default:
		return core.ConfigError(core.ModuleDiversity, "unknown match_field %q", n.MatchField)
	}
	for i, c := range n.Constraints {
		if len(c.Elements) == 0 {
			return core.ConfigError(core.ModuleDiversity, "constraint %d: empty elements", i)
		}
		if c.Method != NotMoreThan && c.Method != NotLessThan {
			return core.ConfigError(core.ModuleDiversity, "constraint %d: unknown method %q", i, c.Method)
		}
		if c.ControlCount <= 0 || c.ControlCount > n.PageSize {
			return core.ConfigError(core.ModuleDiversity, "constraint %d: control_count %d out of (0, %d]", i, c.ControlCount, n.PageSize)
		}
	}
	return nil
}

func (n *Scatter) Process(_ context.Context, rctx *core.RecommendContext, set *core.CandidateSet) (*core.CandidateSet, error) {
	if set == nil || len(set.Primary) == 0 {
		return set, nil
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	set.Primary = n.Apply(set.Primary)

	if rctx != nil && rctx.TraceLog {
		log := logging.Component("rerank")
		log.Info().
			Int64("user_id", rctx.UserID).
			Str("display_exp_id", rctx.DisplayExpID).
			Strs("head", headKeys(set.Primary, 20)).
			Msg("after scatter")
	}
	return set, nil
}

type controlState struct {
	elements map[string]struct{}
	method   string
	control  int
	now      int
}

// Apply 对 items 做打散，返回新的切片；调用方需先 Validate。
func (n *Scatter) Apply(items []core.Item) []core.Item {
	total := len(items)
	if total == 0 {
		return items
	}
	pageSize := n.PageSize
	totalPage := (total + pageSize - 1) / pageSize

	base := make([]controlState, len(n.Constraints))
	for i, c := range n.Constraints {
		set := make(map[string]struct{}, len(c.Elements))
		for _, e := range c.Elements {
			set[e] = struct{}{}
		}
		base[i] = controlState{elements: set, method: c.Method, control: c.ControlCount}
	}

	out := make([]core.Item, 0, total)
	surplus := append([]core.Item(nil), items...)

	for page := 1; page <= n.TopNPage && page <= totalPage; page++ {
		target := page * pageSize
		if page == totalPage {
			target = total
		}
		states := append([]controlState(nil), base...)
		var held []core.Item

		processed := 0
		for _, it := range surplus {
			if len(out) >= target {
				break
			}
			processed++
			elem := n.element(it)
			if n.qualified(states, elem, target-(len(out)+1)) {
				out = append(out, it)
				continue
			}
			held = append(held, it)
		}

		// 不足时优先使用排名靠前的物品补齐，即使不满足约束
		for len(out) < target && len(held) > 0 {
			out = append(out, held[0])
			held = held[1:]
		}

		next := make([]core.Item, 0, len(held)+len(surplus)-processed)
		next = append(next, held...)
		next = append(next, surplus[processed:]...)
		surplus = next
	}
	return append(out, surplus...)
}

// qualified 计入 elem 后检查所有约束；不合格时回滚计数。
func (n *Scatter) qualified(states []controlState, elem string, slotsLeft int) bool {
	ok := true
	sumControl, sumNow := 0, 0
	for i := range states {
		s := &states[i]
		if _, hit := s.elements[elem]; hit {
			s.now++
		}
		switch s.method {
		case NotMoreThan:
			if s.now > s.control {
				ok = false
			}
		case NotLessThan:
			sumControl += s.control
			sumNow += min(s.now, s.control)
		}
	}
	// 剩余位置不足以满足所有 NotLessThan 约束
	if sumControl-sumNow > slotsLeft {
		ok = false
	}
	if !ok {
		for i := range states {
			if _, hit := states[i].elements[elem]; hit {
				states[i].now--
			}
		}
	}
	return ok
}

func (n *Scatter) element(it core.Item) string {
	if n.MatchField == MatchChannel {
		return it.Channel
	}
	return strconv.FormatInt(int64(it.Category), 10)
}

func headKeys(items []core.Item, n int) []string {
	n = min(n, len(items))
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = items[i].Key()
	}
	return keys
}
