package recall

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/logging"
	"github.com/rushteam/recallkit/metrics"
	"github.com/rushteam/recallkit/pkg/dsl"
	"github.com/rushteam/recallkit/pkg/utils"
)

// Recaller 并发执行主 / 备用 / 独立三组召回通道，并融合结果。
// 单个通道失败（超时、参数错误、未知类型）只记录日志，不影响其他通道。
type Recaller struct {
	Deps          Deps
	Timeout       time.Duration // 每个通道的超时时间
	MaxConcurrent int           // 最大并发数（0 表示无限制）
	Eval          *dsl.Evaluator

	log zerolog.Logger
}

// RecallerOption 配置 Recaller。
type RecallerOption func(*Recaller)

// WithTimeout 设置单通道超时。
func WithTimeout(d time.Duration) RecallerOption {
	return func(r *Recaller) { r.Timeout = d }
}

// WithMaxConcurrent 设置最大并发通道数。
func WithMaxConcurrent(n int) RecallerOption {
	return func(r *Recaller) { r.MaxConcurrent = n }
}

// WithEvaluator 设置通道 Condition 使用的 CEL 解释器。
func WithEvaluator(ev *dsl.Evaluator) RecallerOption {
	return func(r *Recaller) { r.Eval = ev }
}

// NewRecaller 创建 Recaller；未指定解释器时使用进程级共享的 CEL 解释器，
// CEL 环境初始化失败时返回错误。
func NewRecaller(deps Deps, opts ...RecallerOption) (*Recaller, error) {
	r := &Recaller{Deps: deps, log: logging.Component("recall")}
	for _, opt := range opts {
		opt(r)
	}
	if r.Eval == nil {
		ev, err := dsl.Default()
		if err != nil {
			return nil, err
		}
		r.Eval = ev
	}
	return r, nil
}

const (
	listPrimary = iota
	listSpare
	listExclusive
)

// Recall 执行一次召回：
//  1. 校验策略参数（MergeNum>0）
//  2. 所有通道并发执行
//  3. 主结果按 MergeNum 融合，备用结果按 SpareMergeNum 融合（共享去重集合），独立结果互相去重
func (r *Recaller) Recall(ctx context.Context, rctx *core.RecommendContext, params *Params) (*core.CandidateSet, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	lists := [3][]ChannelParam{params.Channels, params.SpareChannels, params.ExclusiveChannels}
	var results [3]map[string][]core.Item
	for i := range results {
		results[i] = make(map[string][]core.Item, len(lists[i]))
	}

	var (
		mu sync.Mutex
		eg errgroup.Group
	)

	// 限流：使用 semaphore 控制并发数
	var sem chan struct{}
	if r.MaxConcurrent > 0 {
		sem = make(chan struct{}, r.MaxConcurrent)
	}

	for li, list := range lists {
		for _, p := range list {
			eg.Go(func() error {
				if sem != nil {
					select {
					case sem <- struct{}{}:
						defer func() { <-sem }()
					case <-ctx.Done():
						r.channelFailed(rctx, p, ctx.Err())
						return nil
					}
				}

				items, err := r.runChannel(ctx, rctx, p)
				if err != nil {
					r.channelFailed(rctx, p, err)
					return nil
				}

				mu.Lock()
				results[li][p.Type] = items
				mu.Unlock()
				return nil
			})
		}
	}
	// 通道错误已在 goroutine 内记录并降级为空结果，Wait 不会返回错误
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := core.NewCandidateSet()
	seen := make(MergeSet, params.MergeNum+params.SpareMergeNum)
	out.Primary = Merge(params.MergeNum, params.Channels, results[listPrimary], seen, nil)
	out.Spare = Merge(params.SpareMergeNum, params.SpareChannels, results[listSpare], seen, nil)
	out.Exclusive = MergeExclusive(params.ExclusiveChannels, results[listExclusive])

	metrics.MergeOutputItems.WithLabelValues("primary").Observe(float64(len(out.Primary)))
	metrics.MergeOutputItems.WithLabelValues("spare").Observe(float64(len(out.Spare)))
	for _, items := range out.Exclusive {
		metrics.MergeOutputItems.WithLabelValues("exclusive").Observe(float64(len(items)))
	}

	if rctx.TraceLog {
		r.log.Info().
			Int64("user_id", rctx.UserID).
			Str("api_type", rctx.APIType).
			Str("recall_exp_id", rctx.RecallExpID).
			Int("primary", len(out.Primary)).
			Int("spare", len(out.Spare)).
			Int("exclusive", len(out.Exclusive)).
			Dur("took", time.Since(start)).
			Msg("after merge")
	}
	return out, nil
}

// runChannel 执行单个通道：Condition 为 false 时返回空结果。
func (r *Recaller) runChannel(ctx context.Context, rctx *core.RecommendContext, p ChannelParam) ([]core.Item, error) {
	if p.Condition != "" && r.Eval != nil {
		ok, err := r.Eval.EvalContext(p.Condition, rctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	}

	src, err := NewSource(p, r.Deps)
	if err != nil {
		return nil, err
	}

	// 超时控制
	recallCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		recallCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()
	items, err := src.Recall(recallCtx, rctx)
	took := time.Since(start)
	metrics.RecallChannelDuration.WithLabelValues(p.Type).Observe(took.Seconds())
	if err == nil {
		err = recallCtx.Err()
	}
	if err != nil {
		return nil, err
	}
	metrics.RecallChannelItems.WithLabelValues(p.Type).Observe(float64(len(items)))

	// 记录召回来源 label，方便 explain / 观测
	for i := range items {
		items[i].PutLabel("recall_source", utils.Label{Value: p.Type, Source: "recall"})
	}

	if rctx.TraceLog {
		keys := make([]string, len(items))
		for i := range items {
			keys[i] = items[i].Key()
		}
		r.log.Info().
			Str("channel", p.Type).
			Int64("user_id", rctx.UserID).
			Str("api_type", rctx.APIType).
			Strs("items", keys).
			Dur("took", took).
			Msg("channel recalled")
	}
	return items, nil
}

func (r *Recaller) channelFailed(rctx *core.RecommendContext, p ChannelParam, err error) {
	code := core.ErrorCodeInternalError
	if de := core.GetDomainError(err); de != nil {
		code = de.Code
	} else if errors.Is(err, context.DeadlineExceeded) {
		code = core.ErrorCodeTimeout
	}
	metrics.RecallChannelErrors.WithLabelValues(p.Type, code).Inc()
	r.log.Warn().
		Err(err).
		Str("channel", p.Type).
		Str("code", code).
		Int64("user_id", rctx.UserID).
		Str("recall_exp_id", rctx.RecallExpID).
		Msg("recall channel failed")
}
