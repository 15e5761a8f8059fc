// Package server 组装召回服务：远端存储、本地缓存、召回、策略解析与后台刷新。
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/rushteam/recallkit/cache"
	"github.com/rushteam/recallkit/config"
	"github.com/rushteam/recallkit/config/builders"
	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/feast"
	"github.com/rushteam/recallkit/feature"
	"github.com/rushteam/recallkit/logging"
	"github.com/rushteam/recallkit/pipeline"
	"github.com/rushteam/recallkit/pkg/dsl"
	"github.com/rushteam/recallkit/rank"
	"github.com/rushteam/recallkit/recall"
	"github.com/rushteam/recallkit/store"
	"github.com/rushteam/recallkit/vector"
)

// App 持有进程内唯一的一组缓存与策略，请求之间只共享只读快照。
type App struct {
	cfg Config

	Store      core.HashStore
	Items      *feature.ItemCache
	Users      *feature.UserCache
	Indexes    *feature.InvertIndexes
	Ann        *vector.AnnIndexCache // 未配置 ann.basic_path 时为 nil
	Recaller   *recall.Recaller
	Strategies *pipeline.StrategyLoader
	Nodes      *config.Registry // 本实例的 Node 构建器

	sup     *suture.Supervisor
	closers []io.Closer
	log     zerolog.Logger
}

// Option 配置 App。
type Option func(*options)

type options struct {
	store  core.HashStore
	feast  feast.Client
	ranker core.Ranker
}

// WithStore 使用给定的存储替代 Redis（测试 / 本地开发）。
func WithStore(s core.HashStore) Option {
	return func(o *options) { o.store = s }
}

// WithFeast 使用给定的 Feast 客户端。
func WithFeast(c feast.Client) Option {
	return func(o *options) { o.feast = c }
}

// WithRanker 注册 rank.model 节点使用的排序服务。
func WithRanker(r core.Ranker) Option {
	return func(o *options) { o.ranker = r }
}

// New 按配置构建 App；策略文件首次加载失败时返回错误。
// 不做缓存预热，见 Warmup。
func New(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{cfg: cfg, log: logging.Component("server")}

	a.Store = o.store
	if a.Store == nil {
		rs, err := store.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.Store = rs
		a.closers = append(a.closers, rs)
	}

	var itemSource cache.Source[*feature.ItemFeature] = feature.NewItemSource(a.Store)
	fc := o.feast
	if fc == nil && cfg.Feast.Enabled {
		c, err := feast.NewClient(cfg.Feast.Client)
		if err != nil {
			a.Close()
			return nil, core.RemoteError(core.ModuleFeature, err, "feast client %s", cfg.Feast.Client.Endpoint)
		}
		fc = c
		a.closers = append(a.closers, c)
	}
	if fc != nil {
		itemSource = feature.NewStatisFallbackSource(itemSource, feature.NewFeastStatisSource(fc, cfg.Feast.Statis))
	}

	bucketOpt := cache.WithBucketCount(cfg.Cache.BucketCount)
	a.Items = feature.NewItemCache(itemSource, bucketOpt)
	a.Users = feature.NewUserCache(feature.NewUserSource(a.Store), bucketOpt)
	a.Indexes = feature.NewInvertIndexes(a.Store, cfg.Cache.InvertBucketCount)

	deps := recall.Deps{InvertIndexes: a.Indexes, Users: a.Users, Items: a.Items}
	if cfg.Ann.BasicPath != "" {
		ann, err := vector.NewAnnIndexCache(cfg.Ann)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Ann = ann
		deps.Ann = ann
	}

	ev, err := dsl.NewEvaluator(cfg.Recall.ExprCacheSize)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Recaller, err = recall.NewRecaller(deps,
		recall.WithTimeout(cfg.Recall.ChannelTimeout),
		recall.WithMaxConcurrent(cfg.Recall.MaxConcurrent),
		recall.WithEvaluator(ev),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	ranker := o.ranker
	if ranker == nil && cfg.Ranker.Endpoint != "" {
		ranker = rank.NewHTTPRanker(cfg.Ranker.Endpoint, cfg.Ranker.Timeout)
	}
	a.Nodes = builders.NewRegistry(builders.Deps{Items: a.Items, Users: a.Users, Store: a.Store, Ranker: ranker, Eval: ev})

	a.Strategies, err = pipeline.NewStrategyLoader(cfg.Strategy.Path, a.Nodes.Factory())
	if err != nil {
		a.Close()
		return nil, err
	}

	a.sup = suture.New("recallkit", suture.Spec{
		EventHook: a.supervisorEvent,
		Timeout:   cfg.ShutdownTimeout,
	})
	for _, r := range a.refreshers() {
		a.sup.Add(r)
	}
	return a, nil
}

// refreshers 为每个缓存创建后台刷新服务。
func (a *App) refreshers() []*cache.Refresher {
	c := a.cfg.Cache
	out := []*cache.Refresher{
		cache.NewRefresher(a.Items, 0, c.RefreshIncrInterval, c.RefreshTimeout),
		cache.NewRefresher(a.Users, 0, c.RefreshIncrInterval, c.RefreshTimeout),
		cache.NewRefresher(a.Strategies, a.cfg.Strategy.ReloadInterval, 0, c.RefreshTimeout),
	}
	for _, idx := range a.Indexes.All() {
		out = append(out, cache.NewRefresher(idx, c.RefreshInterval, c.RefreshIncrInterval, c.RefreshTimeout))
	}
	if a.Ann != nil {
		out = append(out, cache.NewRefresher(a.Ann, c.RefreshInterval, 0, c.RefreshTimeout))
	}
	return out
}

func (a *App) supervisorEvent(e suture.Event) {
	a.log.Warn().Str("event", e.String()).Fields(e.Map()).Msg("supervisor event")
}

// Warmup 同步做一次全量刷新（倒排索引与 ANN）；单个失败只记录日志，全部失败才返回错误。
func (a *App) Warmup(ctx context.Context) error {
	targets := make([]cache.Refreshable, 0, len(a.Indexes.All())+1)
	for _, idx := range a.Indexes.All() {
		targets = append(targets, idx)
	}
	if a.Ann != nil {
		targets = append(targets, a.Ann)
	}
	var errs []error
	for _, t := range targets {
		if err := t.Refresh(ctx); err != nil {
			a.log.Warn().Err(err).Str("cache", t.Name()).Msg("warmup failed")
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	if len(errs) == len(targets) && len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Add 把额外的服务（例如 HTTP 服务）挂到同一个 supervisor 下。
func (a *App) Add(svc suture.Service) suture.ServiceToken {
	return a.sup.Add(svc)
}

// Serve 运行后台刷新直到 ctx 取消。
func (a *App) Serve(ctx context.Context) error {
	a.log.Info().Msg("serving")
	err := a.sup.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Recommend 执行一次请求：策略解析 -> 召回融合 -> 过滤 -> 展控（排序、打散、截断）。
func (a *App) Recommend(ctx context.Context, rctx *core.RecommendContext) (*core.CandidateSet, error) {
	start := time.Now()
	resolver := a.Strategies.Resolver()
	params, err := resolver.Recall(rctx)
	if err != nil {
		return nil, err
	}
	set, err := a.Recaller.Recall(ctx, rctx, params)
	if err != nil {
		return nil, err
	}
	if p, ok := resolver.Filter(rctx); ok {
		if set, err = p.Run(ctx, rctx, set); err != nil {
			return nil, err
		}
	}
	if p, ok := resolver.Display(rctx); ok {
		if set, err = p.Run(ctx, rctx, set); err != nil {
			return nil, err
		}
	}
	if rctx.TraceLog {
		a.log.Info().
			Int64("user_id", rctx.UserID).
			Str("api_type", rctx.APIType).
			Int("primary", len(set.Primary)).
			Int("spare", len(set.Spare)).
			Int("exclusive", len(set.Exclusive)).
			Dur("took", time.Since(start)).
			Msg("recommend done")
	}
	return set, nil
}

// Close 释放远端连接。
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
