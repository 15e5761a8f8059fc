package config

import (
	"sort"
	"sync"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/pipeline"
)

// 使用配置驱动时，需在 main 或入口处 import "github.com/rushteam/recallkit/config/builders"：
// init 向全局注册表注册无依赖的 Node（rerank.scatter、rerank.topn、filter.expr 等）。
// 依赖缓存 / 外部服务的 Node 只注册到每个服务实例自己的 Registry（builders.NewRegistry），
// 不写入全局注册表。

// NodeBuilder 与 pipeline.NodeBuilder 一致：根据 config 构建 Node。
type NodeBuilder = pipeline.NodeBuilder

// Registry 是 Node 类型到构建器的注册表，并发安全。
type Registry struct {
	mu       sync.RWMutex
	builders map[string]NodeBuilder
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]NodeBuilder)}
}

// Register 注册一种 Node 的构建逻辑；同名类型后注册的覆盖先注册的。
func (r *Registry) Register(typeName string, builder NodeBuilder) {
	if typeName == "" || builder == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[typeName] = builder
}

// Clone 复制当前注册表，之后两者互不影响。
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := NewRegistry()
	for t, b := range r.builders {
		out.builders[t] = b
	}
	return out
}

// SupportedTypes 返回已注册的 Node 类型列表（排序），用于错误提示与校验。
func (r *Registry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.builders))
	for t := range r.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Factory 返回基于当前注册内容的 NodeFactory。
func (r *Registry) Factory() *pipeline.NodeFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f := pipeline.NewNodeFactory()
	for typeName, builder := range r.builders {
		f.Register(typeName, builder)
	}
	return f
}

// ValidateStrategies 校验策略配置中所有 node 类型均已注册；若有未支持类型则返回 CONFIG_ERROR。
func (r *Registry) ValidateStrategies(cfg *pipeline.StrategyConfig) error {
	if cfg == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	check := func(api, stage string, exps []pipeline.StageExp) error {
		for _, exp := range exps {
			for _, g := range exp.Groups {
				for _, nc := range g.Nodes {
					if _, ok := r.builders[nc.Type]; !ok {
						return core.ConfigError(core.ModulePipeline, "%s/%s/%s: unsupported node type %q", api, stage, exp.ExpID, nc.Type)
					}
				}
			}
		}
		return nil
	}
	for api, s := range cfg.APIs {
		if err := check(api, "filter", s.Filter); err != nil {
			return err
		}
		if err := check(api, "display", s.Display); err != nil {
			return err
		}
	}
	return nil
}

// defaultRegistry 只保存无运行时依赖的构建器。
var defaultRegistry = NewRegistry()

// Register 向全局注册表注册无依赖的 Node 构建器（通常在 init 中调用）。
func Register(typeName string, builder NodeBuilder) {
	defaultRegistry.Register(typeName, builder)
}

// SupportedTypes 返回全局注册表中的 Node 类型。
func SupportedTypes() []string { return defaultRegistry.SupportedTypes() }

// DefaultRegistry 返回全局注册表的副本，可在其上注册实例私有的构建器。
func DefaultRegistry() *Registry { return defaultRegistry.Clone() }

// DefaultFactory 返回基于全局注册表的 NodeFactory。
func DefaultFactory() *pipeline.NodeFactory { return defaultRegistry.Factory() }

// ValidateStrategies 用全局注册表校验策略配置。
func ValidateStrategies(cfg *pipeline.StrategyConfig) error {
	return defaultRegistry.ValidateStrategies(cfg)
}
