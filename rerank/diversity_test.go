package rerank

import (
	"context"
	"testing"

	"github.com/rushteam/recallkit/core"
)

func itemsByCategory(cats ...int32) []core.Item {
	out := make([]core.Item, len(cats))
	for i, c := range cats {
		out[i] = core.Item{ID: int64(i + 1), Category: c}
	}
	return out
}

func ids(items []core.Item) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestScatterNotMoreThan(t *testing.T) {
	s := &Scatter{
		PageSize:    3,
		TopNPage:    2,
		Constraints: []Constraint{{Elements: []string{"1"}, Method: NotMoreThan, ControlCount: 1}},
	}
	// 类目：1 1 1 2 2 2
	got := s.Apply(itemsByCategory(1, 1, 1, 2, 2, 2))
	// 第一页：1(id1) 2(id4) 2(id5)；第二页：等待队列 id2 id3 在前，id2 合格，id3 超限，id6 合格，
	// 页满前 id3 被补齐
	want := []int64{1, 4, 5, 2, 6, 3}
	if !equalIDs(ids(got), want) {
		t.Errorf("got %v, want %v", ids(got), want)
	}
}

func TestScatterNotLessThan(t *testing.T) {
	s := &Scatter{
		PageSize:    4,
		TopNPage:    1,
		Constraints: []Constraint{{Elements: []string{"9"}, Method: NotLessThan, ControlCount: 2}},
	}
	// 类目 9 的物品排在第 5、6 位
	got := s.Apply(itemsByCategory(1, 1, 1, 1, 9, 9, 1))
	first := got[:4]
	n9 := 0
	for _, it := range first {
		if it.Category == 9 {
			n9++
		}
	}
	if n9 != 2 {
		t.Errorf("first page has %d items of category 9, want 2: %v", n9, ids(got))
	}
	if !equalIDs(ids(got), []int64{1, 2, 5, 6, 3, 4, 7}) {
		t.Errorf("got %v", ids(got))
	}
}

func TestScatterPreservesItems(t *testing.T) {
	s := &Scatter{
		PageSize: 4,
		TopNPage: 3,
		Constraints: []Constraint{
			{Elements: []string{"1", "2"}, Method: NotMoreThan, ControlCount: 2},
			{Elements: []string{"3"}, Method: NotLessThan, ControlCount: 1},
		},
	}
	in := itemsByCategory(1, 2, 1, 2, 1, 2, 3, 1, 1, 3, 2, 2, 1, 3, 3, 1, 2)
	got := s.Apply(in)
	if len(got) != len(in) {
		t.Fatalf("len = %d, want %d", len(got), len(in))
	}
	seen := make(map[int64]bool)
	for _, it := range got {
		if seen[it.ID] {
			t.Fatalf("duplicate id %d", it.ID)
		}
		seen[it.ID] = true
	}
	// 超出 TopNPage 的尾部保持相对顺序
	tail := got[12:]
	for i := 1; i < len(tail); i++ {
		if tail[i].ID < tail[i-1].ID {
			t.Errorf("tail order changed: %v", ids(tail))
		}
	}
}

func TestScatterMatchChannel(t *testing.T) {
	s := &Scatter{
		PageSize:    2,
		TopNPage:    1,
		MatchField:  MatchChannel,
		Constraints: []Constraint{{Elements: []string{"Item_CF"}, Method: NotMoreThan, ControlCount: 1}},
	}
	in := []core.Item{
		{ID: 1, Channel: "Item_CF"},
		{ID: 2, Channel: "Item_CF"},
		{ID: 3, Channel: "ResType_Hot"},
	}
	got := s.Apply(in)
	if !equalIDs(ids(got), []int64{1, 3, 2}) {
		t.Errorf("got %v", ids(got))
	}
}

func TestScatterValidate(t *testing.T) {
	ok := Constraint{Elements: []string{"1"}, Method: NotMoreThan, ControlCount: 1}
	tests := []struct {
		name string
		s    Scatter
	}{
		{"page size", Scatter{PageSize: 0, TopNPage: 1, Constraints: []Constraint{ok}}},
		{"top n", Scatter{PageSize: 5, TopNPage: 0, Constraints: []Constraint{ok}}},
		{"no constraints", Scatter{PageSize: 5, TopNPage: 1}},
		{"empty elements", Scatter{PageSize: 5, TopNPage: 1, Constraints: []Constraint{{Method: NotMoreThan, ControlCount: 1}}}},
		{"bad method", Scatter{PageSize: 5, TopNPage: 1, Constraints: []Constraint{{Elements: []string{"1"}, Method: "AtMost", ControlCount: 1}}}},
		{"zero control", Scatter{PageSize: 5, TopNPage: 1, Constraints: []Constraint{{Elements: []string{"1"}, Method: NotLessThan}}}},
		{"control over page", Scatter{PageSize: 5, TopNPage: 1, Constraints: []Constraint{{Elements: []string{"1"}, Method: NotLessThan, ControlCount: 6}}}},
		{"match field", Scatter{PageSize: 5, TopNPage: 1, MatchField: "tag", Constraints: []Constraint{ok}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.s.Validate(); !core.IsConfigError(err) {
				t.Errorf("Validate() = %v, want CONFIG_ERROR", err)
			}
		})
	}

	// 参数错误时 Process 直接失败，不执行
	bad := &Scatter{PageSize: 0, TopNPage: 1, Constraints: []Constraint{ok}}
	set := &core.CandidateSet{Primary: itemsByCategory(1, 2)}
	if _, err := bad.Process(context.Background(), &core.RecommendContext{}, set); !core.IsConfigError(err) {
		t.Errorf("Process err = %v", err)
	}
}

func TestTopN(t *testing.T) {
	tests := []struct {
		n, in, want int
	}{
		{0, 5, 5},
		{3, 5, 3},
		{10, 5, 5},
	}
	for _, tt := range tests {
		set := &core.CandidateSet{Primary: itemsByCategory(make([]int32, tt.in)...)}
		out, err := (&TopNNode{N: tt.n}).Process(context.Background(), nil, set)
		if err != nil {
			t.Fatal(err)
		}
		if len(out.Primary) != tt.want {
			t.Errorf("TopN(%d) on %d = %d, want %d", tt.n, tt.in, len(out.Primary), tt.want)
		}
	}
}
