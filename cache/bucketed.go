// Package cache 提供分桶双缓冲本地缓存：请求线程无锁读取快照，后台刷新构建新快照后原子替换。
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/logging"
	"github.com/rushteam/recallkit/metrics"
)

// DefaultBucketCount 是默认分桶数。
const DefaultBucketCount = 10000

// Source 是缓存的远端数据源。
// Fetch 只返回远端存在的 key；不存在的 key 会在本地记为空值，避免反复穿透。
type Source[V any] interface {
	Fetch(ctx context.Context, bucket int, keys []string) (map[string]V, error)
}

// VersionedSource 支持全量刷新：Version 返回远端版本号，LoadAll 返回完整数据。
type VersionedSource[V any] interface {
	Source[V]
	Version(ctx context.Context) (int64, error)
	LoadAll(ctx context.Context) (map[string]V, error)
}

type entry[V any] struct {
	val     V
	present bool
}

// snapshot 是一个桶的一代数据。
// 未命中回填直接写入当前代（只增不改），刷新时整体替换为新一代。
type snapshot[V any] struct {
	entries sync.Map // string -> entry[V]
}

func (s *snapshot[V]) load(key string) (entry[V], bool) {
	v, ok := s.entries.Load(key)
	if !ok {
		return entry[V]{}, false
	}
	return v.(entry[V]), true
}

// Bucketed 是分桶双缓冲缓存。
//
// 每个桶持有一个 atomic.Pointer 指向当前快照：
//   - 读：Load 一次指针，在同一代数据上完成读取，不加锁
//   - 写：只有刷新方构建新快照并 Store 指针；读方不会看到半成品
type Bucketed[V any] struct {
	name     string
	source   Source[V]
	buckets  []atomic.Pointer[snapshot[V]]
	bucketFn func(key string) int

	cursor  atomic.Int64
	version atomic.Int64

	// refreshMu 保证同一时刻只有一个刷新方在替换快照
	refreshMu sync.Mutex
	log       zerolog.Logger
}

// Option 配置 Bucketed。
type Option func(*options)

type options struct {
	bucketCount int
	bucketFn    func(key string, n int) int
}

// WithBucketCount 设置分桶数（默认 10000）。
func WithBucketCount(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bucketCount = n
		}
	}
}

// WithBucketFunc 自定义 key -> 桶 的映射。
func WithBucketFunc(fn func(key string, n int) int) Option {
	return func(o *options) { o.bucketFn = fn }
}

// New 创建分桶缓存。
func New[V any](name string, source Source[V], opts ...Option) *Bucketed[V] {
	o := options{bucketCount: DefaultBucketCount, bucketFn: BucketOf}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Bucketed[V]{
		name:    name,
		source:  source,
		buckets: make([]atomic.Pointer[snapshot[V]], o.bucketCount),
		log:     logging.Component("cache").With().Str("cache", name).Logger(),
	}
	n := o.bucketCount
	fn := o.bucketFn
	c.bucketFn = func(key string) int { return fn(key, n) }
	for i := range c.buckets {
		c.buckets[i].Store(&snapshot[V]{})
	}
	return c
}

// BucketOf 默认分桶：key 以数字 id 开头时取 id % n（与远端分桶一致），否则取 xxhash。
func BucketOf(key string, n int) int {
	var id uint64
	digits := 0
	for ; digits < len(key); digits++ {
		ch := key[digits]
		if ch < '0' || ch > '9' {
			break
		}
		id = id*10 + uint64(ch-'0')
	}
	if digits == 0 {
		return int(xxhash.Sum64String(key) % uint64(n))
	}
	return int(id % uint64(n))
}

func (c *Bucketed[V]) Name() string { return c.name }

// BucketCount 返回分桶数。
func (c *Bucketed[V]) BucketCount() int { return len(c.buckets) }

// Bucket 返回 key 所在的桶。
func (c *Bucketed[V]) Bucket(key string) int { return c.bucketFn(key) }

// Version 返回最近一次全量刷新写入的远端版本号。
func (c *Bucketed[V]) Version() int64 { return c.version.Load() }

// Get 只读本地快照，不触发远端请求，永不阻塞在写方上。
func (c *Bucketed[V]) Get(key string) (V, bool) {
	e, found := c.buckets[c.bucketFn(key)].Load().load(key)
	switch {
	case !found:
		metrics.CacheLookups.WithLabelValues(c.name, "miss").Inc()
	case !e.present:
		metrics.CacheLookups.WithLabelValues(c.name, "negative").Inc()
	default:
		metrics.CacheLookups.WithLabelValues(c.name, "hit").Inc()
	}
	return e.val, found && e.present
}

// BatchGet 批量读取；未命中的 key 按桶分组同步回源，结果追加到各桶当前快照。
// 回源失败时返回已命中部分以及错误，调用方可降级使用。
func (c *Bucketed[V]) BatchGet(ctx context.Context, keys []string) (map[string]V, error) {
	out := make(map[string]V, len(keys))
	missing := make(map[int][]string)
	var hits, negatives, misses int
	for _, key := range keys {
		b := c.bucketFn(key)
		e, found := c.buckets[b].Load().load(key)
		if !found {
			missing[b] = append(missing[b], key)
			misses++
			continue
		}
		if e.present {
			out[key] = e.val
			hits++
		} else {
			negatives++
		}
	}
	metrics.CacheLookups.WithLabelValues(c.name, "hit").Add(float64(hits))
	metrics.CacheLookups.WithLabelValues(c.name, "negative").Add(float64(negatives))
	metrics.CacheLookups.WithLabelValues(c.name, "miss").Add(float64(misses))

	if len(missing) == 0 || c.source == nil {
		return out, nil
	}

	var firstErr error
	for b, bucketKeys := range missing {
		if err := ctx.Err(); err != nil {
			firstErr = core.RemoteError(core.ModuleCache, err, "fill %s", c.name)
			break
		}
		fetched, err := c.source.Fetch(ctx, b, bucketKeys)
		if err != nil {
			metrics.CacheFetchErrors.WithLabelValues(c.name, "fill").Inc()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		snap := c.buckets[b].Load()
		for _, key := range bucketKeys {
			v, ok := fetched[key]
			snap.entries.Store(key, entry[V]{val: v, present: ok})
			if ok {
				out[key] = v
			}
		}
	}
	return out, firstErr
}

// Lookup 读取单个 key，未命中时同步回源；每次调用只计一次 lookup。
func (c *Bucketed[V]) Lookup(ctx context.Context, key string) (V, bool) {
	got, _ := c.BatchGet(ctx, []string{key})
	v, ok := got[key]
	return v, ok
}

// Put 直接写入当前快照（预热 / 测试）。
func (c *Bucketed[V]) Put(key string, v V) {
	c.buckets[c.bucketFn(key)].Load().entries.Store(key, entry[V]{val: v, present: true})
}

// Keys 返回桶内当前已知的所有 key（包括空值）。
func (c *Bucketed[V]) Keys(bucket int) []string {
	var keys []string
	c.buckets[bucket].Load().entries.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	return keys
}

// Len 返回所有桶中存在值的 key 数量。
func (c *Bucketed[V]) Len() int {
	n := 0
	for i := range c.buckets {
		c.buckets[i].Load().entries.Range(func(_, v any) bool {
			if v.(entry[V]).present {
				n++
			}
			return true
		})
	}
	return n
}

// RefreshIncr 增量刷新：游标轮转，每次只刷新一个桶。
// 对该桶已知的 key 重新回源，构建新快照后原子替换。
func (c *Bucketed[V]) RefreshIncr(ctx context.Context) error {
	if c.source == nil {
		return nil
	}
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	n := int64(len(c.buckets))
	bucket := int(c.cursor.Load() % n)
	c.cursor.Store((int64(bucket) + 1) % n)

	keys := c.Keys(bucket)
	if len(keys) == 0 {
		return nil
	}

	start := time.Now()
	fetched, err := c.source.Fetch(ctx, bucket, keys)
	metrics.CacheRefreshDuration.WithLabelValues(c.name, "incr").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CacheFetchErrors.WithLabelValues(c.name, "incr").Inc()
		return err
	}

	next := &snapshot[V]{}
	for _, key := range keys {
		v, ok := fetched[key]
		next.entries.Store(key, entry[V]{val: v, present: ok})
	}
	c.buckets[bucket].Store(next)
	return nil
}

// Refresh 全量刷新，仅对 VersionedSource 生效。
// 远端版本与本地版本相等且都非零时跳过；否则 LoadAll，在旁路构建所有桶后逐桶替换，最后写入版本号。
func (c *Bucketed[V]) Refresh(ctx context.Context) error {
	vs, ok := c.source.(VersionedSource[V])
	if !ok {
		return nil
	}
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	remote, err := vs.Version(ctx)
	if err != nil {
		metrics.CacheFetchErrors.WithLabelValues(c.name, "version").Inc()
		return err
	}
	local := c.version.Load()
	if remote != 0 && local != 0 && remote == local {
		metrics.CacheRefreshSkipped.WithLabelValues(c.name).Inc()
		return nil
	}

	start := time.Now()
	data, err := vs.LoadAll(ctx)
	if err != nil {
		metrics.CacheFetchErrors.WithLabelValues(c.name, "full").Inc()
		return err
	}

	next := make([]*snapshot[V], len(c.buckets))
	for i := range next {
		next[i] = &snapshot[V]{}
	}
	for key, v := range data {
		next[c.bucketFn(key)].entries.Store(key, entry[V]{val: v, present: true})
	}
	for i := range next {
		c.buckets[i].Store(next[i])
	}
	c.version.Store(remote)

	metrics.CacheRefreshDuration.WithLabelValues(c.name, "full").Observe(time.Since(start).Seconds())
	metrics.CacheEntries.WithLabelValues(c.name).Set(float64(len(data)))
	c.log.Info().Int64("version", remote).Int("entries", len(data)).Dur("took", time.Since(start)).Msg("cache refreshed")
	return nil
}
