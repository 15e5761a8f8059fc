package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rushteam/recallkit/core"
)

func TestMemoryStoreHash(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.HSet(ctx, "{item_feature:proto:1}", "1:basic:3", []byte("a")); err != nil {
		t.Fatal(err)
	}

	v, err := s.HGet(ctx, "{item_feature:proto:1}", "1:basic:3")
	if err != nil || string(v) != "a" {
		t.Fatalf("HGet = %q, %v", v, err)
	}
	if _, err := s.HGet(ctx, "{item_feature:proto:1}", "1:statis:3"); !core.IsStoreNotFound(err) {
		t.Errorf("missing field err = %v, want not found", err)
	}

	vals, err := s.HMGet(ctx, "{item_feature:proto:1}", []string{"1:statis:3", "1:basic:3"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 2 || vals[0] != nil || string(vals[1]) != "a" {
		t.Errorf("HMGet = %q", vals)
	}
}

func TestMemoryStoreScan(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, k := range []string{
		"recall_res_type_hot_invert_index1",
		"recall_res_type_hot_invert_index2",
		"recall_res_type_surge_invert_index1",
		"other",
	} {
		_ = s.Set(ctx, k, []byte("x"))
	}

	tests := []struct {
		pattern string
		want    int
	}{
		{"recall_res_type_hot_invert_index*", 2},
		{"recall_res_type_*", 3},
		{"nothing*", 0},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			keys, err := s.Scan(ctx, tt.pattern)
			if err != nil {
				t.Fatal(err)
			}
			if len(keys) != tt.want {
				t.Errorf("Scan(%q) = %v, want %d keys", tt.pattern, keys, tt.want)
			}
		})
	}
}

func TestMemoryStoreFailure(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Set(ctx, "k", []byte("v"))

	s.SetFailure(errors.New("connection reset"))
	if _, err := s.Get(ctx, "k"); !core.IsRemoteUnavailable(err) {
		t.Errorf("err = %v, want remote unavailable", err)
	}
	s.SetFailure(nil)

	expired, cancel := context.WithDeadline(ctx, time.Now().Add(-time.Second))
	defer cancel()
	if _, err := s.BatchGet(expired, []string{"k"}); !core.IsTimeout(err) {
		t.Errorf("err = %v, want timeout", err)
	}

	got, err := s.BatchGet(ctx, []string{"k", "missing"})
	if err != nil || len(got) != 1 || string(got["k"]) != "v" {
		t.Errorf("BatchGet = %v, %v", got, err)
	}
}
