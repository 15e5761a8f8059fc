package feast

import (
	"context"
	"time"
)

// Client 是 Feast Feature Store 的在线特征客户端接口。
//
// 召回服务只需要在线特征（Online Store），离线训练数据与物化不在这里处理。
//
// 参考：https://github.com/feast-dev/feast
type Client interface {
	// GetOnlineFeatures 获取在线特征
	//
	// 参数：
	//   - features: 特征名称列表，例如 ["item_statis:click", "item_statis:ctr"]
	//   - entityRows: 实体行，例如 [{"item_id": 1001}]
	GetOnlineFeatures(ctx context.Context, req *GetOnlineFeaturesRequest) (*GetOnlineFeaturesResponse, error)

	// Close 关闭客户端连接
	Close() error
}

// GetOnlineFeaturesRequest 获取在线特征请求
type GetOnlineFeaturesRequest struct {
	// Features 特征名称列表
	Features []string

	// EntityRows 实体行，例如 [{"item_id": 1001}, {"item_id": 1002}]
	EntityRows []map[string]any

	// Project 项目名称（可选，默认取客户端配置）
	Project string
}

// GetOnlineFeaturesResponse 获取在线特征响应
type GetOnlineFeaturesResponse struct {
	// FeatureVectors 特征向量列表，每个元素对应一个实体行
	FeatureVectors []FeatureVector
}

// FeatureVector 特征向量
type FeatureVector struct {
	// Values 特征值，数值统一转为 float64
	Values map[string]any

	// EntityRow 对应的实体行
	EntityRow map[string]any
}

// Config 是 Feast 连接配置。
type Config struct {
	// Endpoint 服务端点，例如 "localhost:6565" 或 "grpc://localhost:6565"
	Endpoint string `koanf:"endpoint"`
	Project  string `koanf:"project"`
	// Token 非空时使用静态 Token 认证
	Token   string        `koanf:"token"`
	TLS     bool          `koanf:"tls"`
	Timeout time.Duration `koanf:"timeout"`
}

// ClientOption Feast 客户端配置选项
type ClientOption func(*Config)

// WithTimeout 配置选项：设置超时时间
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Config) {
		c.Timeout = timeout
	}
}
