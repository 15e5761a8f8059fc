package pipeline

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/recall"
)

// StrategyConfig 是策略配置文件（YAML）的结构：
//
//	apis:
//	  detail:
//	    recall:
//	      - exp_id: "1001"
//	        groups:
//	          - user_group: def_group
//	            merge_num: 200
//	            channels:
//	              - {type: ResType_Hot, num: 100, sample_fold: 2, merge_min: 20, merge_max: 100}
//	    filter:
//	      - exp_id: "2001"
//	        groups:
//	          - user_group: def_group
//	            nodes:
//	              - {type: filter.unfeatured}
//	    display:
//	      - exp_id: "3001"
//	        groups:
//	          - user_group: def_group
//	            nodes:
//	              - {type: rerank.scatter, config: {page_size: 10, top_n_page: 3, constraints: [...]}}
type StrategyConfig struct {
	APIs map[string]APIStrategy `yaml:"apis"`
}

// APIStrategy 是一个 api_type 下三个阶段的实验配置。
type APIStrategy struct {
	Recall  []RecallExp `yaml:"recall"`
	Filter  []StageExp  `yaml:"filter"`
	Display []StageExp  `yaml:"display"`
}

// RecallExp 是一个召回实验，按人群划分参数。
type RecallExp struct {
	ExpID  string        `yaml:"exp_id"`
	Groups []RecallGroup `yaml:"groups"`
}

// RecallGroup 是一个人群的召回参数。
type RecallGroup struct {
	UserGroup     string `yaml:"user_group"`
	recall.Params `yaml:",inline"`
}

// StageExp 是过滤 / 展控实验，按人群划分 Node 列表。
type StageExp struct {
	ExpID  string       `yaml:"exp_id"`
	Groups []StageGroup `yaml:"groups"`
}

// StageGroup 是一个人群的 Node 列表。
type StageGroup struct {
	UserGroup string       `yaml:"user_group"`
	Nodes     []NodeConfig `yaml:"nodes"`
}

// NodeConfig 是单个 Node 的配置。
type NodeConfig struct {
	Type   string         `yaml:"type"`   // filter.unfeatured / rerank.scatter 等
	Config map[string]any `yaml:"config"` // Node 特定配置
}

// LoadStrategies 从 YAML 文件加载策略配置。
func LoadStrategies(path string) (*StrategyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseStrategies(data)
}

// ParseStrategies 解析 YAML 策略配置。
func ParseStrategies(data []byte) (*StrategyConfig, error) {
	var cfg StrategyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, core.ConfigError(core.ModulePipeline, "parse yaml: %v", err)
	}
	return &cfg, nil
}

// NodeBuilder 根据 config 构建 Node。
type NodeBuilder func(config map[string]any) (Node, error)

// NodeFactory 用于根据配置构建 Node 实例。
type NodeFactory struct {
	builders map[string]NodeBuilder
}

func NewNodeFactory() *NodeFactory {
	return &NodeFactory{builders: make(map[string]NodeBuilder)}
}

// Register 注册 Node 构建器。
func (f *NodeFactory) Register(nodeType string, builder NodeBuilder) {
	f.builders[nodeType] = builder
}

// Types 返回已注册的 Node 类型（排序）。
func (f *NodeFactory) Types() []string {
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Build 根据类型和配置构建 Node。
func (f *NodeFactory) Build(nodeType string, config map[string]any) (Node, error) {
	builder, ok := f.builders[nodeType]
	if !ok {
		return nil, core.ConfigError(core.ModulePipeline, "unknown node type %q (supported: %v)", nodeType, f.Types())
	}
	return builder(config)
}

// BuildPipeline 根据 Node 配置列表构建 Pipeline。
func (f *NodeFactory) BuildPipeline(name string, nodes []NodeConfig) (*Pipeline, error) {
	p := &Pipeline{Name: name, Nodes: make([]Node, 0, len(nodes))}
	for _, nc := range nodes {
		node, err := f.Build(nc.Type, nc.Config)
		if err != nil {
			return nil, fmt.Errorf("build node %s: %w", nc.Type, err)
		}
		p.Nodes = append(p.Nodes, node)
	}
	return p, nil
}
