package rank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rushteam/recallkit/core"
)

// HTTPRanker 是通过 HTTP 调用外部排序服务的 core.Ranker 实现。
//
// 请求格式（JSON）：
//
//	{"user_id": 9, "api_type": "detail", "context_item_id": 500, "context_category": 1,
//	 "items": [{"id": 1, "category": 1, "channel": "ResType_Hot"}, ...]}
//
// 响应格式（JSON），与 items 等长：
//
//	{"scores": [0.85, 0.72, ...], "secondary_scores": [0.1, 0.2, ...]}
type HTTPRanker struct {
	Endpoint string // 例如 "http://localhost:8080/rank"
	Timeout  time.Duration
	Client   *http.Client
}

func NewHTTPRanker(endpoint string, timeout time.Duration) *HTTPRanker {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &HTTPRanker{
		Endpoint: endpoint,
		Timeout:  timeout,
		Client:   &http.Client{Timeout: timeout},
	}
}

type rankItem struct {
	ID       int64  `json:"id"`
	Category int32  `json:"category"`
	Channel  string `json:"channel"`
}

type rankRequest struct {
	UserID          int64      `json:"user_id"`
	APIType         string     `json:"api_type"`
	ContextItemID   int64      `json:"context_item_id"`
	ContextCategory int32      `json:"context_category"`
	Items           []rankItem `json:"items"`
}

type rankResponse struct {
	Scores          []float32 `json:"scores"`
	SecondaryScores []float32 `json:"secondary_scores"`
}

// Rank 批量打分，返回同一组物品（顺序不变）并填好 Score / SecondaryScore。
func (r *HTTPRanker) Rank(ctx context.Context, rctx *core.RecommendContext, items []core.Item) ([]core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}
	if r.Client == nil {
		r.Client = &http.Client{Timeout: r.Timeout}
	}

	body := rankRequest{Items: make([]rankItem, len(items))}
	if rctx != nil {
		body.UserID, body.APIType = rctx.UserID, rctx.APIType
		body.ContextItemID, body.ContextCategory = rctx.ContextItemID, rctx.ContextCategory
	}
	for i := range items {
		body.Items[i] = rankItem{ID: items[i].ID, Category: items[i].Category, Channel: items[i].Channel}
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, core.RemoteError(core.ModuleService, err, "rank %s", r.Endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, core.RemoteError(core.ModuleService, fmt.Errorf("status=%d, body=%s", resp.StatusCode, b), "rank %s", r.Endpoint)
	}

	var result rankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, core.DecodeError(core.ModuleService, err, "rank response")
	}
	if len(result.Scores) != len(items) {
		return nil, core.DecodeError(core.ModuleService,
			fmt.Errorf("expected %d scores, got %d", len(items), len(result.Scores)), "rank response")
	}

	out := make([]core.Item, len(items))
	copy(out, items)
	for i := range out {
		out[i].Score = result.Scores[i]
		if i < len(result.SecondaryScores) {
			out[i].SecondaryScore = result.SecondaryScores[i]
		}
	}
	return out, nil
}
