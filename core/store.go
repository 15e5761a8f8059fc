package core

import "context"

// Store 是远端特征存储的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 所有调用都接收 ctx，截止时间到达时快速失败而不是阻塞
//
// 实现：
//   - store.RedisStore（go-redis）
//   - store.MemoryStore（测试 / 本地开发）
type Store interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// Get 读取单个 key 的值，不存在返回 ErrStoreNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// BatchGet 批量读取，不存在的 key 不出现在结果中
	BatchGet(ctx context.Context, keys []string) (map[string][]byte, error)

	// Close 关闭连接/释放资源
	Close() error
}

// HashStore 是 Store 的扩展接口，支持分桶 Hash 存储与全量扫描。
type HashStore interface {
	Store

	// HGet 读取 Hash 字段，不存在返回 ErrStoreNotFound
	HGet(ctx context.Context, key, field string) ([]byte, error)

	// HMGet 批量读取同一个 Hash 的多个字段，结果与 fields 等长，缺失字段为 nil
	HMGet(ctx context.Context, key string, fields []string) ([][]byte, error)

	// HSet 写入 Hash 字段
	HSet(ctx context.Context, key, field string, value []byte) error

	// Set 写入单个 key
	Set(ctx context.Context, key string, value []byte) error

	// Scan 返回所有匹配 pattern（glob）的 key
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// ErrStoreNotFound 表示 key 不存在
var ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "key not found")

// IsStoreNotFound 检查错误是否为 key 不存在
func IsStoreNotFound(err error) bool {
	domainErr := GetDomainError(err)
	return domainErr != nil && domainErr.Module == ModuleStore && domainErr.Code == ErrorCodeNotFound
}
