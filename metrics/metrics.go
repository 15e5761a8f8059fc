// Package metrics 定义召回核心的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 本地缓存
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recallkit_cache_lookups_total",
			Help: "Local cache lookups by result (hit, miss, negative)",
		},
		[]string{"cache", "result"},
	)

	CacheFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recallkit_cache_fetch_errors_total",
			Help: "Remote fetch failures while filling or refreshing a cache",
		},
		[]string{"cache", "op"},
	)

	CacheRefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recallkit_cache_refresh_duration_seconds",
			Help:    "Duration of cache refresh operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"cache", "op"},
	)

	CacheRefreshSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recallkit_cache_refresh_skipped_total",
			Help: "Full refreshes skipped because the remote version did not change",
		},
		[]string{"cache"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recallkit_cache_entries",
			Help: "Entries held by a cache after its last full refresh",
		},
		[]string{"cache"},
	)

	// ANN 索引
	AnnSlicesLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recallkit_ann_slice_loads_total",
			Help: "ANN slice load attempts by result",
		},
		[]string{"slice", "result"},
	)

	AnnSnapshotTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recallkit_ann_snapshot_timestamp",
			Help: "Timestamp directory of the ANN snapshot currently served",
		},
	)

	// 召回 / 融合
	RecallChannelItems = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recallkit_recall_channel_items",
			Help:    "Items produced by a recall channel per request",
			Buckets: []float64{0, 5, 10, 20, 50, 100, 200, 500},
		},
		[]string{"channel"},
	)

	RecallChannelDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recallkit_recall_channel_duration_seconds",
			Help:    "Latency of a recall channel",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
		[]string{"channel"},
	)

	RecallChannelErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recallkit_recall_channel_errors_total",
			Help: "Recall channel failures by error code",
		},
		[]string{"channel", "code"},
	)

	MergeOutputItems = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recallkit_merge_output_items",
			Help:    "Items in each merged candidate list",
			Buckets: []float64{0, 10, 20, 50, 100, 200, 500, 1000},
		},
		[]string{"list"},
	)

	FilteredItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recallkit_filtered_items_total",
			Help: "Items removed by filters",
		},
		[]string{"filter"},
	)

	RankFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recallkit_rank_fallbacks_total",
			Help: "Rank calls that failed and kept the recall order",
		},
		[]string{"model"},
	)
)
