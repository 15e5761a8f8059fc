package feast

import (
	"context"
	"os"
	"testing"
)

// TestGrpcClient_GetOnlineFeatures 需要真实的 Feast 服务器，通过 FEAST_ENDPOINT 指定。
func TestGrpcClient_GetOnlineFeatures(t *testing.T) {
	endpoint := os.Getenv("FEAST_ENDPOINT")
	if endpoint == "" {
		t.Skip("需要连接真实的 Feast 服务器才能运行")
	}

	client, err := NewClient(Config{Endpoint: endpoint, Project: "recall"})
	if err != nil {
		t.Fatalf("创建客户端失败: %v", err)
	}
	defer client.Close()

	resp, err := client.GetOnlineFeatures(context.Background(), &GetOnlineFeaturesRequest{
		Features:   []string{"item_statis:click", "item_statis:ctr"},
		EntityRows: []map[string]any{{"item_id": int64(1001)}, {"item_id": int64(1002)}},
	})
	if err != nil {
		t.Fatalf("获取特征失败: %v", err)
	}
	if len(resp.FeatureVectors) != 2 {
		t.Errorf("期望 2 个特征向量，实际得到 %d 个", len(resp.FeatureVectors))
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		host string
		port int
	}{
		{"localhost:6565", "localhost", 6565},
		{"grpc://feast.svc:7000", "feast.svc", 7000},
		{"feast.svc", "feast.svc", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			host, port := parseEndpoint(tt.in)
			if host != tt.host || port != tt.port {
				t.Errorf("parseEndpoint(%q) = %q, %d", tt.in, host, port)
			}
		})
	}
}

type fakeValue struct {
	i64 int64
	f32 float32
}

func (v fakeValue) GetInt64Val() int64   { return v.i64 }
func (v fakeValue) GetInt32Val() int32   { return 0 }
func (v fakeValue) GetFloatVal() float32 { return v.f32 }
func (v fakeValue) GetDoubleVal() float64 {
	return 0
}
func (v fakeValue) GetStringVal() string { return "" }

func TestConvertFromSDKValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"int64", int64(3), float64(3)},
		{"string", "x", "x"},
		{"proto int64", fakeValue{i64: 7}, float64(7)},
		{"proto float", fakeValue{f32: 0.5}, float64(0.5)},
		{"proto zero", fakeValue{}, float64(0)},
		{"unknown", struct{}{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := convertFromSDKValue(tt.in); got != tt.want {
				t.Errorf("convertFromSDKValue(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
