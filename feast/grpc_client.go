package feast

import (
	"context"
	"fmt"

	feastsdk "github.com/feast-dev/feast/sdk/go"

	"github.com/rushteam/recallkit/core"
)

// GrpcClient 是基于官方 Feast Go SDK 的 gRPC 客户端实现。
type GrpcClient struct {
	client *feastsdk.GrpcClient

	// Project 项目名称
	Project string

	// Endpoint 服务端点（用于日志）
	Endpoint string

	cfg Config
}

// NewGrpcClient 创建一个基于官方 SDK 的 Feast gRPC 客户端。
//
// port 为 0 时使用默认 gRPC 端口 6565。
func NewGrpcClient(host string, port int, project string, opts ...ClientOption) (*GrpcClient, error) {
	if port == 0 {
		port = 6565
	}

	cfg := Config{
		Endpoint: fmt.Sprintf("%s:%d", host, port),
		Project:  project,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var (
		client *feastsdk.GrpcClient
		err    error
	)
	if cfg.Token != "" {
		security := feastsdk.SecurityConfig{
			EnableTLS:  cfg.TLS,
			Credential: feastsdk.NewStaticCredential(cfg.Token),
		}
		client, err = feastsdk.NewSecureGrpcClient(host, port, security)
	} else {
		client, err = feastsdk.NewGrpcClient(host, port)
	}
	if err != nil {
		return nil, core.RemoteError(core.ModuleFeature, err, "create feast client %s", cfg.Endpoint)
	}

	return &GrpcClient{
		client:   client,
		Project:  project,
		Endpoint: cfg.Endpoint,
		cfg:      cfg,
	}, nil
}

// GetOnlineFeatures 获取在线特征（实现 Client 接口）
func (c *GrpcClient) GetOnlineFeatures(ctx context.Context, req *GetOnlineFeaturesRequest) (*GetOnlineFeaturesResponse, error) {
	if len(req.Features) == 0 {
		return nil, core.NewDomainError(core.ModuleFeature, core.ErrorCodeInvalidInput, "features are required")
	}
	if len(req.EntityRows) == 0 {
		return &GetOnlineFeaturesResponse{}, nil
	}
	project := req.Project
	if project == "" {
		project = c.Project
	}
	if project == "" {
		return nil, core.ConfigError(core.ModuleFeature, "feast project is required")
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	entityRows := make([]feastsdk.Row, len(req.EntityRows))
	for i, row := range req.EntityRows {
		entityRow := make(feastsdk.Row)
		for k, v := range row {
			setSDKValue(entityRow, k, v)
		}
		entityRows[i] = entityRow
	}

	sdkResp, err := c.client.GetOnlineFeatures(ctx, &feastsdk.OnlineFeaturesRequest{
		Features: req.Features,
		Entities: entityRows,
		Project:  project,
	})
	if err != nil {
		return nil, core.RemoteError(core.ModuleFeature, err, "feast get online features")
	}

	rows := sdkResp.Rows()
	if len(rows) != len(req.EntityRows) {
		return nil, core.DecodeError(core.ModuleFeature,
			fmt.Errorf("expected %d rows, got %d", len(req.EntityRows), len(rows)), "feast response")
	}

	vectors := make([]FeatureVector, len(rows))
	for i, row := range rows {
		values := make(map[string]any, len(req.Features))
		for _, name := range req.Features {
			if val, ok := row[name]; ok {
				if v := convertFromSDKValue(val); v != nil {
					values[name] = v
				}
			}
		}
		vectors[i] = FeatureVector{Values: values, EntityRow: req.EntityRows[i]}
	}
	return &GetOnlineFeaturesResponse{FeatureVectors: vectors}, nil
}

// Close 关闭客户端连接（实现 Client 接口）
func (c *GrpcClient) Close() error {
	// SDK 的连接由 gRPC 库管理
	c.client = nil
	return nil
}

// setSDKValue 按值类型使用 SDK 的辅助函数写入实体行。
func setSDKValue(row feastsdk.Row, k string, v any) {
	switch val := v.(type) {
	case string:
		row[k] = feastsdk.StrVal(val)
	case int:
		row[k] = feastsdk.Int64Val(int64(val))
	case int64:
		row[k] = feastsdk.Int64Val(val)
	case int32:
		row[k] = feastsdk.Int64Val(int64(val))
	case float64:
		row[k] = feastsdk.DoubleVal(val)
	case float32:
		row[k] = feastsdk.FloatVal(val)
	case bool:
		row[k] = feastsdk.BoolVal(val)
	case []byte:
		row[k] = feastsdk.BytesVal(val)
	default:
		row[k] = feastsdk.StrVal(fmt.Sprintf("%v", val))
	}
}

// 以下接口覆盖 SDK 中 *types.Value 的 getter，避免直接依赖生成代码的包路径。
type (
	int64Getter  interface{ GetInt64Val() int64 }
	int32Getter  interface{ GetInt32Val() int32 }
	floatGetter  interface{ GetFloatVal() float32 }
	doubleGetter interface{ GetDoubleVal() float64 }
	stringGetter interface{ GetStringVal() string }
)

// convertFromSDKValue 把 SDK 值转换为 float64（数值）或 string，未设置的值返回 nil。
func convertFromSDKValue(val any) any {
	if val == nil {
		return nil
	}
	switch v := val.(type) {
	case string:
		return v
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case float64:
		return v
	case float32:
		return float64(v)
	}
	// oneof 只会有一个 getter 返回非零值
	if v, ok := val.(int64Getter); ok && v.GetInt64Val() != 0 {
		return float64(v.GetInt64Val())
	}
	if v, ok := val.(int32Getter); ok && v.GetInt32Val() != 0 {
		return float64(v.GetInt32Val())
	}
	if v, ok := val.(doubleGetter); ok && v.GetDoubleVal() != 0 {
		return v.GetDoubleVal()
	}
	if v, ok := val.(floatGetter); ok && v.GetFloatVal() != 0 {
		return float64(v.GetFloatVal())
	}
	if v, ok := val.(stringGetter); ok && v.GetStringVal() != "" {
		return v.GetStringVal()
	}
	if _, ok := val.(int64Getter); ok {
		return float64(0)
	}
	return nil
}

var _ Client = (*GrpcClient)(nil)
