package core

import "github.com/rushteam/recallkit/pkg/utils"

// DefaultUserGroup 是未命中任何人群时使用的默认分组。
const DefaultUserGroup = "def_group"

// RecommendContext 承载用户/场景/上下文物品信息，贯穿整个 Pipeline 透传。
type RecommendContext struct {
	UserID   int64
	DeviceID string
	APIType  string
	Scene    string

	// ContextItemID / ContextCategory 是请求所在的上下文物品（详情页、相关推荐）
	ContextItemID   int64
	ContextCategory int32

	// AuxKeys 是辅助 key（如关键词），ANN 召回在物品无向量时取其均值向量
	AuxKeys []string

	// UserGroups 是命中的人群，按优先级排列；为空时使用 DefaultUserGroup
	UserGroups []string

	// 实验 ID
	RecallExpID  string
	FilterExpID  string
	DisplayExpID string

	// TraceLog 打开时输出每个阶段的统计日志
	TraceLog bool

	// Labels 是用户级标签，可驱动整个 Pipeline 行为
	Labels map[string]utils.Label

	// Params 请求级上下文参数
	Params map[string]any
}

// Groups 返回用于匹配配置的人群列表，末尾总是 DefaultUserGroup。
func (rctx *RecommendContext) Groups() []string {
	out := make([]string, 0, len(rctx.UserGroups)+1)
	for _, g := range rctx.UserGroups {
		if g != "" && g != DefaultUserGroup {
			out = append(out, g)
		}
	}
	return append(out, DefaultUserGroup)
}

// ContextItemKey 返回上下文物品的 item key。
func (rctx *RecommendContext) ContextItemKey() string {
	return ItemKey(rctx.ContextItemID, rctx.ContextCategory)
}

// PutLabel 写入用户级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取用户级 Label。
func (rctx *RecommendContext) GetLabel(key string) (utils.Label, bool) {
	if rctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}
