package feast

import (
	"strconv"
	"strings"
)

// NewClient 按配置创建 gRPC 客户端。
//
//	client, err := feast.NewClient(feast.Config{Endpoint: "localhost:6565", Project: "recall"})
func NewClient(cfg Config) (Client, error) {
	host, port := parseEndpoint(cfg.Endpoint)
	return NewGrpcClient(host, port, cfg.Project, WithTimeout(cfg.Timeout), func(c *Config) {
		c.Token, c.TLS = cfg.Token, cfg.TLS
	})
}

// parseEndpoint 解析端点地址，返回 host 和 port
func parseEndpoint(endpoint string) (string, int) {
	endpoint = strings.TrimPrefix(endpoint, "grpc://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	if i := strings.LastIndex(endpoint, ":"); i >= 0 {
		if port, err := strconv.Atoi(endpoint[i+1:]); err == nil {
			return endpoint[:i], port
		}
	}
	return endpoint, 0
}
