package feature

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/recallkit/cache"
	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/feast"
	"github.com/rushteam/recallkit/logging"
	"github.com/rushteam/recallkit/pkg/conv"
)

// FeastStatisConfig 是 Feast 中物品统计特征的命名。
type FeastStatisConfig struct {
	Entity   string `koanf:"entity"`
	Click    string `koanf:"click"`
	Download string `koanf:"download"`
	Exposure string `koanf:"exposure"`
	CTR      string `koanf:"ctr"`
}

// DefaultFeastStatisConfig 默认特征名。
func DefaultFeastStatisConfig() FeastStatisConfig {
	return FeastStatisConfig{
		Entity:   "item_id",
		Click:    "item_statis:click",
		Download: "item_statis:download",
		Exposure: "item_statis:exposure",
		CTR:      "item_statis:ctr",
	}
}

// FeastStatisSource 从 Feast 在线存储读取物品统计特征（cache.Source 实现）。
type FeastStatisSource struct {
	client feast.Client
	cfg    FeastStatisConfig
	log    zerolog.Logger
}

func NewFeastStatisSource(client feast.Client, cfg FeastStatisConfig) *FeastStatisSource {
	def := DefaultFeastStatisConfig()
	if cfg.Entity == "" {
		cfg.Entity = def.Entity
	}
	if cfg.Click == "" {
		cfg.Click = def.Click
	}
	if cfg.Download == "" {
		cfg.Download = def.Download
	}
	if cfg.Exposure == "" {
		cfg.Exposure = def.Exposure
	}
	if cfg.CTR == "" {
		cfg.CTR = def.CTR
	}
	return &FeastStatisSource{client: client, cfg: cfg, log: logging.Component("feature").With().Str("source", "feast").Logger()}
}

// Fetch 只返回 Statis 部分。
func (s *FeastStatisSource) Fetch(ctx context.Context, _ int, keys []string) (map[string]*ItemFeature, error) {
	out := make(map[string]*ItemFeature, len(keys))
	rows := make([]map[string]any, 0, len(keys))
	rowKeys := make([]string, 0, len(keys))
	for _, key := range keys {
		id, _, err := core.ParseItemKey(key)
		if err != nil {
			continue
		}
		rows = append(rows, map[string]any{s.cfg.Entity: id})
		rowKeys = append(rowKeys, key)
	}
	if len(rows) == 0 {
		return out, nil
	}

	resp, err := s.client.GetOnlineFeatures(ctx, &feast.GetOnlineFeaturesRequest{
		Features:   []string{s.cfg.Click, s.cfg.Download, s.cfg.Exposure, s.cfg.CTR},
		EntityRows: rows,
	})
	if err != nil {
		return out, err
	}
	for i, fv := range resp.FeatureVectors {
		if i >= len(rowKeys) || len(fv.Values) == 0 {
			continue
		}
		out[rowKeys[i]] = &ItemFeature{Statis: &ItemStatis{
			Click:    conv.ConfigGetInt64(fv.Values, s.cfg.Click, 0),
			Download: conv.ConfigGetInt64(fv.Values, s.cfg.Download, 0),
			Exposure: conv.ConfigGetInt64(fv.Values, s.cfg.Exposure, 0),
			CTR:      float32(conv.ConfigGet[float64](fv.Values, s.cfg.CTR, 0)),
		}}
	}
	return out, nil
}

// StatisFallbackSource 组合两个物品特征源：Primary 缺少统计特征时由 Statis 补齐。
// Statis 失败只记日志，不影响 Primary 的结果。
type StatisFallbackSource struct {
	Primary cache.Source[*ItemFeature]
	Statis  cache.Source[*ItemFeature]
	log     zerolog.Logger
}

func NewStatisFallbackSource(primary, statis cache.Source[*ItemFeature]) *StatisFallbackSource {
	return &StatisFallbackSource{Primary: primary, Statis: statis, log: logging.Component("feature")}
}

func (s *StatisFallbackSource) Fetch(ctx context.Context, bucket int, keys []string) (map[string]*ItemFeature, error) {
	out, err := s.Primary.Fetch(ctx, bucket, keys)
	if err != nil {
		return out, err
	}
	var lacking []string
	for _, k := range keys {
		if f, ok := out[k]; !ok || f.Statis == nil {
			lacking = append(lacking, k)
		}
	}
	if len(lacking) == 0 || s.Statis == nil {
		return out, nil
	}
	extra, err := s.Statis.Fetch(ctx, bucket, lacking)
	if err != nil {
		s.log.Warn().Err(err).Int("keys", len(lacking)).Msg("statis fallback failed")
		return out, nil
	}
	for k, f := range extra {
		if f == nil || f.Statis == nil {
			continue
		}
		if cur, ok := out[k]; ok {
			merged := *cur
			merged.Statis = f.Statis
			out[k] = &merged
		} else {
			out[k] = f
		}
	}
	return out, nil
}
