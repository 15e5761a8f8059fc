package vector

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/viterin/vek/vek32"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/logging"
	"github.com/rushteam/recallkit/metrics"
)

// 快照目录内的文件名
const (
	SlicePrefix       = "res_type_"
	IndexFileName     = "annoy_index"
	ItemVectorFile    = "item_vector"
	KeynameVectorFile = "keyname_vector"
)

// DefaultGrace 新快照目录至少存在这么久才会被加载，避免读到写了一半的数据。
const DefaultGrace = 600 * time.Second

// SliceConfig 单个分片的覆盖配置。
type SliceConfig struct {
	Dimension int `koanf:"dimension"`
	SearchK   int `koanf:"search_k"`
}

// AnnConfig 是 AnnIndexCache 的配置。
type AnnConfig struct {
	BasicPath string        `koanf:"basic_path"`
	Grace     time.Duration `koanf:"grace"`
	Dimension int           `koanf:"dimension"`
	// SearchK 是搜索节点数，-1 表示 topK * 树数量
	SearchK     int                    `koanf:"search_k"`
	Slices      map[string]SliceConfig `koanf:"slices"`
	Parallelism int                    `koanf:"parallelism"`
}

func (c AnnConfig) slice(name string) SliceConfig {
	sc := c.Slices[name]
	if sc.Dimension <= 0 {
		sc.Dimension = c.Dimension
	}
	if sc.SearchK == 0 {
		sc.SearchK = c.SearchK
	}
	return sc
}

// AnnSnapshot 是一个分片的一代数据，加载完成后只读。
type AnnSnapshot struct {
	Slice       string
	Version     int64
	Dimension   int
	SearchK     int
	Index       *AnnoyIndex
	Keys        map[int32]string
	ItemVectors map[string][]float32
	AuxVectors  map[string][]float32
}

// AnnIndexCache 按分片缓存 ANN 快照，后台定时从 basic path 热加载最新版本目录。
//
// 读方 Load 一次快照表并在其上完成查询；刷新方在旁路加载所有分片后整体替换。
// 加载失败的分片继续使用上一代快照。
type AnnIndexCache struct {
	cfg       AnnConfig
	snapshots atomic.Pointer[map[string]*AnnSnapshot]
	version   atomic.Int64
	refreshMu sync.Mutex
	now       func() time.Time
	log       zerolog.Logger
}

// NewAnnIndexCache 创建缓存（不做首次加载）。
func NewAnnIndexCache(cfg AnnConfig) (*AnnIndexCache, error) {
	if cfg.BasicPath == "" {
		return nil, core.ConfigError(core.ModuleANN, "basic_path is required")
	}
	if cfg.Dimension <= 0 {
		return nil, core.ConfigError(core.ModuleANN, "dimension must be > 0, got %d", cfg.Dimension)
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.SearchK == 0 {
		cfg.SearchK = -1
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	c := &AnnIndexCache{cfg: cfg, now: time.Now, log: logging.Component("ann")}
	empty := map[string]*AnnSnapshot{}
	c.snapshots.Store(&empty)
	return c, nil
}

func (c *AnnIndexCache) Name() string { return "ann" }

// Version 当前服务中的快照目录时间戳。
func (c *AnnIndexCache) Version() int64 { return c.version.Load() }

// Snapshot 返回分片当前快照。
func (c *AnnIndexCache) Snapshot(slice string) (*AnnSnapshot, bool) {
	s, ok := (*c.snapshots.Load())[slice]
	return s, ok
}

// Slices 返回已加载的分片名（排序）。
func (c *AnnIndexCache) Slices() []string {
	m := *c.snapshots.Load()
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RefreshIncr 无增量刷新。
func (c *AnnIndexCache) RefreshIncr(context.Context) error { return nil }

// Refresh 加载最新的合格版本目录；版本未变时跳过。
func (c *AnnIndexCache) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	latest, err := latestVersion(c.cfg.BasicPath, c.now(), c.cfg.Grace)
	if err != nil {
		return err
	}
	local := c.version.Load()
	if latest != 0 && local != 0 && latest == local {
		metrics.CacheRefreshSkipped.WithLabelValues(c.Name()).Inc()
		return nil
	}

	start := time.Now()
	versionPath := filepath.Join(c.cfg.BasicPath, strconv.FormatInt(latest, 10))
	slices, err := listSlices(versionPath)
	if err != nil {
		return err
	}

	var (
		mu     sync.Mutex
		loaded = make(map[string]*AnnSnapshot, len(slices))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Parallelism)
	for _, slice := range slices {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			snap, err := c.loadSlice(versionPath, slice, latest)
			if err != nil {
				metrics.AnnSlicesLoaded.WithLabelValues(slice, "failed").Inc()
				c.log.Warn().Err(err).Str("slice", slice).Int64("version", latest).Msg("slice load failed, keep previous snapshot")
				return nil
			}
			metrics.AnnSlicesLoaded.WithLabelValues(slice, "ok").Inc()
			mu.Lock()
			loaded[slice] = snap
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return core.RemoteError(core.ModuleANN, err, "refresh %s", versionPath)
	}
	if len(loaded) == 0 {
		return core.NewDomainError(core.ModuleANN, core.ErrorCodeDecode, "no slice loaded from "+versionPath)
	}

	prev := *c.snapshots.Load()
	next := make(map[string]*AnnSnapshot, len(prev)+len(loaded))
	for k, v := range prev {
		next[k] = v
	}
	for k, v := range loaded {
		next[k] = v
	}
	c.snapshots.Store(&next)
	c.version.Store(latest)

	metrics.AnnSnapshotTimestamp.Set(float64(latest))
	metrics.CacheRefreshDuration.WithLabelValues(c.Name(), "full").Observe(time.Since(start).Seconds())
	c.log.Info().Int64("version", latest).Int("slices", len(loaded)).Int("failed", len(slices)-len(loaded)).
		Dur("took", time.Since(start)).Msg("ann snapshot refreshed")
	return nil
}

func (c *AnnIndexCache) loadSlice(versionPath, slice string, version int64) (*AnnSnapshot, error) {
	sc := c.cfg.slice(slice)
	dir := filepath.Join(versionPath, slice)

	idx, err := LoadAnnoyFile(filepath.Join(dir, IndexFileName), sc.Dimension)
	if err != nil {
		return nil, core.DecodeError(core.ModuleANN, err, "%s/%s", slice, IndexFileName)
	}

	raw, err := os.ReadFile(filepath.Join(dir, ItemVectorFile))
	if err != nil {
		return nil, core.RemoteError(core.ModuleANN, err, "%s/%s", slice, ItemVectorFile)
	}
	items, skipped, err := parseItemVectors(raw, sc.Dimension)
	if err != nil {
		return nil, err
	}
	if len(items.vectors) == 0 {
		return nil, core.NewDomainError(core.ModuleANN, core.ErrorCodeDecode, slice+": item vector is empty")
	}

	raw, err = os.ReadFile(filepath.Join(dir, KeynameVectorFile))
	if err != nil {
		return nil, core.RemoteError(core.ModuleANN, err, "%s/%s", slice, KeynameVectorFile)
	}
	aux, auxSkipped, err := parseKeynameVectors(raw, sc.Dimension)
	if err != nil {
		return nil, err
	}
	if len(aux) == 0 {
		return nil, core.NewDomainError(core.ModuleANN, core.ErrorCodeDecode, slice+": keyname vector is empty")
	}
	if skipped+auxSkipped > 0 {
		c.log.Warn().Str("slice", slice).Int("skipped", skipped+auxSkipped).Msg("vectors with wrong dimension skipped")
	}

	return &AnnSnapshot{
		Slice:       slice,
		Version:     version,
		Dimension:   sc.Dimension,
		SearchK:     sc.SearchK,
		Index:       idx,
		Keys:        items.keys,
		ItemVectors: items.vectors,
		AuxVectors:  aux,
	}, nil
}

// Retrieve 查询分片中与 itemKey 最近的 topK 个物品。
//
// itemKey 有向量时直接查询；否则取 auxKeys 向量的均值查询；都没有时返回空结果（非错误）。
// 分片未加载返回 NOT_FOUND。
func (c *AnnIndexCache) Retrieve(slice, itemKey string, auxKeys []string, topK int) ([]string, []float32, error) {
	snap, ok := c.Snapshot(slice)
	if !ok {
		return nil, nil, core.NewDomainError(core.ModuleANN, core.ErrorCodeNotFound, "slice not loaded: "+slice)
	}
	if topK <= 0 {
		return nil, nil, nil
	}

	query, ok := snap.ItemVectors[itemKey]
	if !ok {
		query = meanVector(snap.AuxVectors, auxKeys, snap.Dimension)
		if query == nil {
			return nil, nil, nil
		}
	}

	ids, dists := snap.Index.GetNNsByVector(query, topK, snap.SearchK)
	keys := make([]string, 0, len(ids))
	distances := make([]float32, 0, len(ids))
	for i, id := range ids {
		key, ok := snap.Keys[int32(id)]
		if !ok {
			continue
		}
		keys = append(keys, key)
		distances = append(distances, dists[i])
	}
	return keys, distances, nil
}

// meanVector 对维度正确的向量求均值，没有可用向量时返回 nil。
func meanVector(vectors map[string][]float32, keys []string, dim int) []float32 {
	var (
		acc []float32
		n   int
	)
	for _, k := range keys {
		v, ok := vectors[k]
		if !ok || len(v) != dim {
			continue
		}
		if acc == nil {
			acc = make([]float32, dim)
		}
		vek32.Add_Inplace(acc, v)
		n++
	}
	if n == 0 {
		return nil
	}
	vek32.MulNumber_Inplace(acc, 1/float32(n))
	return acc
}

// latestVersion 返回 basicPath 下最大的、距今超过 grace 的数字目录名。
func latestVersion(basicPath string, now time.Time, grace time.Duration) (int64, error) {
	entries, err := os.ReadDir(basicPath)
	if err != nil {
		return 0, core.RemoteError(core.ModuleANN, err, "read %s", basicPath)
	}
	var (
		latest int64
		found  bool
	)
	cutoff := now.Add(-grace).Unix()
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ts, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil || ts < 0 {
			continue
		}
		if ts >= cutoff {
			continue
		}
		if !found || ts > latest {
			latest, found = ts, true
		}
	}
	if !found {
		return 0, core.NewDomainError(core.ModuleANN, core.ErrorCodeNotFound, "no eligible snapshot under "+basicPath)
	}
	return latest, nil
}

// listSlices 列出 res_type_ 开头的分片目录。
func listSlices(versionPath string) ([]string, error) {
	entries, err := os.ReadDir(versionPath)
	if err != nil {
		return nil, core.RemoteError(core.ModuleANN, err, "read %s", versionPath)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() && len(name) > len(SlicePrefix) && strings.HasPrefix(name, SlicePrefix) {
			out = append(out, name)
		}
	}
	return out, nil
}

// SliceName 类目对应的分片名。
func SliceName(category int32) string {
	return SlicePrefix + strconv.FormatInt(int64(category), 10)
}
