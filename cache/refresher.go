package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/recallkit/logging"
)

// Refreshable 是可被后台定时刷新的缓存。
type Refreshable interface {
	Name() string
	Refresh(ctx context.Context) error
	RefreshIncr(ctx context.Context) error
}

// Refresher 是一个定时刷新服务（实现 suture.Service）。
//
//   - Interval：全量刷新周期（<=0 表示不做全量刷新）
//   - IncrInterval：增量刷新周期（<=0 表示不做增量刷新）
//   - Timeout：单次刷新的超时，远端调用必须带截止时间
//
// ctx 取消后在一个周期内退出。
type Refresher struct {
	Target       Refreshable
	Interval     time.Duration
	IncrInterval time.Duration
	Timeout      time.Duration

	log zerolog.Logger
}

// NewRefresher 创建刷新服务。
func NewRefresher(target Refreshable, interval, incrInterval, timeout time.Duration) *Refresher {
	return &Refresher{
		Target:       target,
		Interval:     interval,
		IncrInterval: incrInterval,
		Timeout:      timeout,
		log:          logging.Component("refresher").With().Str("cache", target.Name()).Logger(),
	}
}

// String 用于 supervisor 日志。
func (r *Refresher) String() string { return "refresher/" + r.Target.Name() }

// Serve 运行刷新循环，直到 ctx 取消。
func (r *Refresher) Serve(ctx context.Context) error {
	var fullC, incrC <-chan time.Time
	if r.Interval > 0 {
		t := time.NewTicker(r.Interval)
		defer t.Stop()
		fullC = t.C
	}
	if r.IncrInterval > 0 {
		t := time.NewTicker(r.IncrInterval)
		defer t.Stop()
		incrC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-fullC:
			if err := r.run(ctx, r.Target.Refresh); err != nil {
				r.log.Warn().Err(err).Msg("full refresh failed")
			}
		case <-incrC:
			if err := r.run(ctx, r.Target.RefreshIncr); err != nil {
				r.log.Debug().Err(err).Msg("incremental refresh failed")
			}
		}
	}
}

func (r *Refresher) run(ctx context.Context, fn func(context.Context) error) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	return fn(ctx)
}
