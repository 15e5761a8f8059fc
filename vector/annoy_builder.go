package vector

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"os"

	"github.com/viterin/vek/vek32"
)

// AnnoyBuilder 构建 Annoy 角距离索引并以 Annoy 磁盘格式输出（用于离线工具与测试）。
type AnnoyBuilder struct {
	f     int
	k     int
	items [][]float32
	rng   *rand.Rand
	nodes []annoyNode
}

type annoyNode struct {
	nDesc    int32
	children []int32
	v        []float32
	norm     float32
	leaf     bool
}

// NewAnnoyBuilder 创建构建器，seed 固定时结果可复现。
func NewAnnoyBuilder(f int, seed uint64) *AnnoyBuilder {
	return &AnnoyBuilder{f: f, k: f + 2, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// AddItem 添加数据点，id 即在索引中的位置。
func (b *AnnoyBuilder) AddItem(id int, v []float32) error {
	if len(v) != b.f {
		return fmt.Errorf("annoy: item %d has dimension %d, want %d", id, len(v), b.f)
	}
	if id < 0 {
		return fmt.Errorf("annoy: negative item id %d", id)
	}
	for len(b.items) <= id {
		b.items = append(b.items, nil)
	}
	b.items[id] = append([]float32(nil), v...)
	return nil
}

// Build 构建 nTrees 棵树并返回序列化结果。
func (b *AnnoyBuilder) Build(nTrees int) ([]byte, error) {
	if len(b.items) == 0 {
		return nil, fmt.Errorf("annoy: no items")
	}
	if nTrees <= 0 {
		nTrees = 1
	}
	b.nodes = b.nodes[:0]
	indices := make([]int32, 0, len(b.items))
	for i, v := range b.items {
		if v == nil {
			v = make([]float32, b.f)
			b.items[i] = v
		}
		b.nodes = append(b.nodes, annoyNode{nDesc: 1, v: v, norm: vek32.Dot(v, v), leaf: true})
		indices = append(indices, int32(i))
	}

	roots := make([]int32, 0, nTrees)
	for t := 0; t < nTrees; t++ {
		roots = append(roots, b.makeTree(indices, true))
	}
	// 根节点副本追加到末尾，加载时从尾部识别
	for _, r := range roots {
		b.nodes = append(b.nodes, b.nodes[r])
	}
	return b.encode(), nil
}

// Save 构建并写入文件。
func (b *AnnoyBuilder) Save(path string, nTrees int) error {
	data, err := b.Build(nTrees)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (b *AnnoyBuilder) makeTree(indices []int32, isRoot bool) int32 {
	nItems := len(b.items)
	if len(indices) == 1 && !isRoot {
		return indices[0]
	}
	if len(indices) <= b.k && (!isRoot || nItems <= b.k || len(indices) == 1) {
		n := int32(len(indices))
		if isRoot {
			n = int32(nItems)
		}
		b.nodes = append(b.nodes, annoyNode{nDesc: n, children: append([]int32(nil), indices...)})
		return int32(len(b.nodes) - 1)
	}

	normal := b.split(indices)
	var left, right []int32
	for _, i := range indices {
		m := vek32.Dot(normal, b.items[i])
		switch {
		case m > 0:
			right = append(right, i)
		case m < 0:
			left = append(left, i)
		default:
			if b.rng.IntN(2) == 0 {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		}
	}
	// 退化的分裂改为随机分裂
	if len(left) == 0 || len(right) == 0 {
		left, right = left[:0], right[:0]
		for _, i := range indices {
			if b.rng.IntN(2) == 0 {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		}
		if len(left) == 0 {
			left, right = right[:1], right[1:]
		} else if len(right) == 0 {
			left, right = left[1:], left[:1]
		}
		normal = make([]float32, b.f)
	}

	c0 := b.makeTree(left, false)
	c1 := b.makeTree(right, false)
	b.nodes = append(b.nodes, annoyNode{nDesc: int32(len(indices)), children: []int32{c0, c1}, v: normal})
	return int32(len(b.nodes) - 1)
}

// split 取两个随机点归一化后的差作为法向量。
func (b *AnnoyBuilder) split(indices []int32) []float32 {
	i := b.rng.IntN(len(indices))
	j := b.rng.IntN(len(indices) - 1)
	if j >= i {
		j++
	}
	p := unit(b.items[indices[i]])
	q := unit(b.items[indices[j]])
	vek32.Sub_Inplace(p, q)
	if n := vek32.Dot(p, p); n > 0 {
		vek32.MulNumber_Inplace(p, float32(1/math.Sqrt(float64(n))))
	}
	return p
}

func unit(v []float32) []float32 {
	out := append([]float32(nil), v...)
	if n := vek32.Dot(out, out); n > 0 {
		vek32.MulNumber_Inplace(out, float32(1/math.Sqrt(float64(n))))
	}
	return out
}

func (b *AnnoyBuilder) encode() []byte {
	size := 12 + 4*b.f
	out := make([]byte, size*len(b.nodes))
	for n, node := range b.nodes {
		off := n * size
		binary.LittleEndian.PutUint32(out[off:], uint32(node.nDesc))
		switch {
		case node.leaf:
			binary.LittleEndian.PutUint32(out[off+4:], math.Float32bits(node.norm))
			writeFloats(out[off+12:], node.v)
		case node.v != nil:
			binary.LittleEndian.PutUint32(out[off+4:], uint32(node.children[0]))
			binary.LittleEndian.PutUint32(out[off+8:], uint32(node.children[1]))
			writeFloats(out[off+12:], node.v)
		default:
			for c, id := range node.children {
				binary.LittleEndian.PutUint32(out[off+4+4*c:], uint32(id))
			}
		}
	}
	return out
}

func writeFloats(dst []byte, v []float32) {
	for i, f := range v {
		binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(f))
	}
}
