package recall

import (
	"context"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/feature"
)

// Source 表示一个召回源（单索引 / 多索引 / 其他场景）。
// 每次请求按 ChannelParam 构建，可并发 fan-out。
type Source interface {
	Name() string
	Recall(ctx context.Context, rctx *core.RecommendContext) ([]core.Item, error)
}

// AnnRetriever 是向量近邻检索（vector.AnnIndexCache 实现）。
type AnnRetriever interface {
	Retrieve(slice, itemKey string, auxKeys []string, topK int) ([]string, []float32, error)
}

// Deps 是召回源读取的本地缓存，缺失的依赖会让对应通道失败而不影响其他通道。
type Deps struct {
	InvertIndexes *feature.InvertIndexes
	Users         *feature.UserCache
	Items         *feature.ItemCache
	Ann           AnnRetriever
}

// NewSource 按通道类型构建召回源；未知类型返回 CHANNEL_UNSUPPORTED。
func NewSource(p ChannelParam, deps Deps) (Source, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch kind := p.Kind(); kind {
	case KindHot, KindQuality, KindSurge, KindCTCVR, KindDLR:
		return &SingleIndex{Param: p, Indexes: deps.InvertIndexes}, nil
	case KindUserHot, KindUserQuality:
		return &MultiIndex{Param: p, Indexes: deps.InvertIndexes, Users: deps.Users}, nil
	case KindUserCF, KindItemCF, KindClickOccur, KindDownloadOccur, KindItemAnnoy:
		return &OtherScene{Param: p, Users: deps.Users, Items: deps.Items, Ann: deps.Ann}, nil
	default:
		return nil, core.NewDomainError(core.ModuleRecall, core.ErrorCodeChannelUnsupported, "unsupported recall type "+p.Type)
	}
}

func invertIndexCache(indexes *feature.InvertIndexes, kind ChannelKind) (*feature.InvertIndexCache, error) {
	basicKey, ok := kind.InvertIndex()
	if !ok {
		return nil, core.NewDomainError(core.ModuleRecall, core.ErrorCodeChannelUnsupported, "no invert index for "+kind.String())
	}
	if indexes == nil {
		return nil, core.NewDomainError(core.ModuleRecall, core.ErrorCodeUnavailable, "invert indexes not configured")
	}
	c, ok := indexes.Get(basicKey)
	if !ok {
		return nil, core.NewDomainError(core.ModuleRecall, core.ErrorCodeNotFound, "invert index not loaded: "+basicKey)
	}
	return c, nil
}
