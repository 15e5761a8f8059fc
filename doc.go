// Package recallkit 是推荐服务的召回与展控核心（Recall Kit）。
//
// 设计要点：
// - 召回：多路加权索引抽样 + 配额分配，主 / 备用 / 独立三组通道并发执行后按配额融合去重
// - 缓存：分桶双缓冲本地缓存，后台刷新，请求线程只读快照，不阻塞在远端
// - Pipeline：过滤 / 排序 / 打散 Node 由策略配置按 api_type + 实验 + 人群组装
// - Labels-first: labels 全链路透传，支持 explain / 观测
package recallkit

import "github.com/rushteam/recallkit/pipeline"

// 轻量 facade：便于直接 import "recallkit" 使用核心抽象。
type Pipeline = pipeline.Pipeline
type Node = pipeline.Node
type Kind = pipeline.Kind

const (
	KindFilter   = pipeline.KindFilter
	KindRank     = pipeline.KindRank
	KindReRank   = pipeline.KindReRank
	KindBackfill = pipeline.KindBackfill
)
