package vector

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/viterin/vek/vek32"
)

// AnnoyIndex 是只读的 Annoy 角距离（angular）索引，兼容 Annoy 的磁盘格式。
//
// 节点布局（小端）：int32 n_descendants, int32 children[2], float32 v[f]。
//   - n_descendants == 1：数据点，v 为向量
//   - 2 <= n_descendants <= K：子节点列表，children 起连续存放 n_descendants 个 id
//   - n_descendants > K：分裂节点，v 为超平面法向量
//
// 其中 K = f + 2。
type AnnoyIndex struct {
	f        int
	k        int32
	nodeSize int
	data     []byte
	nNodes   int32
	nItems   int32
	roots    []int32
}

// LoadAnnoyFile 从文件加载索引。
func LoadAnnoyFile(path string, f int) (*AnnoyIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadAnnoy(data, f)
}

// LoadAnnoy 从内存加载索引。
func LoadAnnoy(data []byte, f int) (*AnnoyIndex, error) {
	if f <= 0 {
		return nil, fmt.Errorf("annoy: invalid dimension %d", f)
	}
	idx := &AnnoyIndex{f: f, k: int32(f + 2), nodeSize: 12 + 4*f, data: data}
	if len(data) == 0 || len(data)%idx.nodeSize != 0 {
		return nil, fmt.Errorf("annoy: file size %d is not a multiple of node size %d", len(data), idx.nodeSize)
	}
	idx.nNodes = int32(len(data) / idx.nodeSize)

	// 根节点位于文件末尾，n_descendants 相同
	m := int32(-1)
	for i := idx.nNodes - 1; i >= 0; i-- {
		k := idx.nDesc(i)
		if m == -1 || k == m {
			idx.roots = append(idx.roots, i)
			m = k
			continue
		}
		break
	}
	// 最后一个根是末尾根副本之前的原始根节点
	if len(idx.roots) > 1 && idx.child(idx.roots[0], 0) == idx.child(idx.roots[len(idx.roots)-1], 0) {
		idx.roots = idx.roots[:len(idx.roots)-1]
	}
	idx.nItems = m
	if idx.nItems <= 0 {
		return nil, fmt.Errorf("annoy: index has no items")
	}
	return idx, nil
}

// Dimension 向量维度。
func (x *AnnoyIndex) Dimension() int { return x.f }

// NItems 数据点数量。
func (x *AnnoyIndex) NItems() int { return int(x.nItems) }

// NTrees 树数量。
func (x *AnnoyIndex) NTrees() int { return len(x.roots) }

func (x *AnnoyIndex) offset(i int32) int { return int(i) * x.nodeSize }

func (x *AnnoyIndex) nDesc(i int32) int32 {
	return int32(binary.LittleEndian.Uint32(x.data[x.offset(i):]))
}

func (x *AnnoyIndex) child(i int32, n int) int32 {
	return int32(binary.LittleEndian.Uint32(x.data[x.offset(i)+4+4*n:]))
}

// vector 解码节点向量。
func (x *AnnoyIndex) vector(i int32) []float32 {
	off := x.offset(i) + 12
	v := make([]float32, x.f)
	for j := range v {
		v[j] = math.Float32frombits(binary.LittleEndian.Uint32(x.data[off+4*j:]))
	}
	return v
}

// ItemVector 返回数据点向量。
func (x *AnnoyIndex) ItemVector(item int) ([]float32, bool) {
	if item < 0 || item >= int(x.nItems) {
		return nil, false
	}
	return x.vector(int32(item)), true
}

type pqEntry struct {
	d float32
	i int32
}

// maxQueue 按距离上界取最大值。
type maxQueue []pqEntry

func (q maxQueue) Len() int           { return len(q) }
func (q maxQueue) Less(a, b int) bool { return q[a].d > q[b].d }
func (q maxQueue) Swap(a, b int)      { q[a], q[b] = q[b], q[a] }
func (q *maxQueue) Push(v any)        { *q = append(*q, v.(pqEntry)) }
func (q *maxQueue) Pop() any {
	old := *q
	e := old[len(old)-1]
	*q = old[:len(old)-1]
	return e
}

// angularDistance 返回 2 - 2cos，零向量时为 2。
func angularDistance(a, b []float32) float32 {
	pp := vek32.Dot(a, a)
	qq := vek32.Dot(b, b)
	ppqq := pp * qq
	if ppqq <= 0 {
		return 2
	}
	return 2 - 2*vek32.Dot(a, b)/float32(math.Sqrt(float64(ppqq)))
}

// GetNNsByVector 返回与 v 最近的 n 个数据点及其角距离（sqrt(2-2cos)），按距离升序。
// searchK <= 0 时取 n * 树数量。
func (x *AnnoyIndex) GetNNsByVector(v []float32, n, searchK int) ([]int, []float32) {
	if n <= 0 || len(v) != x.f {
		return nil, nil
	}
	if searchK <= 0 {
		searchK = n * len(x.roots)
	}

	q := make(maxQueue, 0, len(x.roots)*2)
	for _, r := range x.roots {
		q = append(q, pqEntry{d: float32(math.Inf(1)), i: r})
	}
	heap.Init(&q)

	nns := make([]int32, 0, searchK)
	for len(nns) < searchK && q.Len() > 0 {
		top := heap.Pop(&q).(pqEntry)
		nd := x.nDesc(top.i)
		switch {
		case nd == 1 && top.i < x.nItems:
			nns = append(nns, top.i)
		case nd <= x.k:
			for c := 0; c < int(nd); c++ {
				nns = append(nns, x.child(top.i, c))
			}
		default:
			margin := vek32.Dot(x.vector(top.i), v)
			heap.Push(&q, pqEntry{d: min(top.d, margin), i: x.child(top.i, 1)})
			heap.Push(&q, pqEntry{d: min(top.d, -margin), i: x.child(top.i, 0)})
		}
	}

	sort.Slice(nns, func(a, b int) bool { return nns[a] < nns[b] })
	cands := make([]pqEntry, 0, len(nns))
	last := int32(-1)
	for _, j := range nns {
		if j == last {
			continue
		}
		last = j
		if j < 0 || j >= x.nItems || x.nDesc(j) != 1 {
			continue
		}
		cands = append(cands, pqEntry{d: angularDistance(v, x.vector(j)), i: j})
	}
	sort.Slice(cands, func(a, b int) bool {
		if cands[a].d != cands[b].d {
			return cands[a].d < cands[b].d
		}
		return cands[a].i < cands[b].i
	})

	p := min(n, len(cands))
	ids := make([]int, p)
	dists := make([]float32, p)
	for i := 0; i < p; i++ {
		ids[i] = int(cands[i].i)
		dists[i] = float32(math.Sqrt(float64(max(cands[i].d, 0))))
	}
	return ids, dists
}
