package recall

import (
	"math"
	"math/rand/v2"

	"github.com/rushteam/recallkit/core"
)

// SampleResult 是一次抽样的结果：item key -> 该物品在样本池中的下标。
type SampleResult map[string]int

// Keys 返回抽中的 item key（无序）。
func (r SampleResult) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	return keys
}

// samplePlan 计算有效池大小与有效抽样数；ok=false 表示不抽样。
//
//   - fold == 0：整个样本池，抽 min(count, len)
//   - fold > 0：池大小 min(count*fold, len)，抽 min(count, len/fold)
//   - len < fold：样本不足以满足倍数，返回空
func samplePlan(size, fold, count int) (poolSize, useNum int, ok bool) {
	if size == 0 || fold < 0 || count <= 0 {
		return 0, 0, false
	}
	if size < fold {
		return 0, 0, false
	}
	if fold == 0 {
		return size, min(count, size), true
	}
	return min(count*fold, size), min(count, size/fold), true
}

// RandomSample 从样本池尾部做无放回随机抽样。
//
// 每一步在 [0, idx] 中随机取位置；若该位置已被抽中，则退回取 idx 本身。
// 冲突时均匀性变弱，这是保留的兼容行为。
func RandomSample(samples []core.SampleInfo, fold, count int) SampleResult {
	poolSize, useNum, ok := samplePlan(len(samples), fold, count)
	if !ok {
		return SampleResult{}
	}

	result := make(SampleResult, useNum)
	for idx := max(0, poolSize-useNum); idx < poolSize; idx++ {
		pos := rand.IntN(idx + 1)
		key := samples[pos].Key()
		if _, exists := result[key]; exists {
			pos = idx
			key = samples[pos].Key()
		}
		result[key] = pos
	}
	return result
}

// WeightedSample 按权重做无放回抽样。
//
// calcWeight = round(weight * precision)，每次按剩余权重占比抽一个并移出池子；
// 总权重为 0 时停止。返回抽中结果及每个抽中物品的计算权重。
func WeightedSample(samples []core.SampleInfo, fold, count int, precision int64) (SampleResult, map[string]int64) {
	poolSize, useNum, ok := samplePlan(len(samples), fold, count)
	if !ok || precision <= 0 {
		return SampleResult{}, map[string]int64{}
	}

	type entry struct {
		key    string
		pos    int
		weight int64
	}
	pool := make([]entry, 0, poolSize)
	index := make(map[string]int, poolSize)
	var total int64
	for idx := 0; idx < poolSize; idx++ {
		s := samples[idx]
		w := int64(math.Round(float64(s.Weight) * float64(precision)))
		if w < 0 {
			w = 0
		}
		key := s.Key()
		// 重复 key 以最后一次为准
		if i, dup := index[key]; dup {
			total -= pool[i].weight
			pool[i] = entry{key: key, pos: idx, weight: w}
		} else {
			index[key] = len(pool)
			pool = append(pool, entry{key: key, pos: idx, weight: w})
		}
		total += w
	}

	result := make(SampleResult, useNum)
	weights := make(map[string]int64, useNum)
	for n := 0; n < useNum && total > 0; n++ {
		r := rand.Int64N(total)
		for i := range pool {
			e := &pool[i]
			if e.weight == 0 {
				continue
			}
			if r < e.weight {
				result[e.key] = e.pos
				weights[e.key] = e.weight
				total -= e.weight
				e.weight = 0
				break
			}
			r -= e.weight
		}
	}
	return result, weights
}

// SampleKeys 单索引抽样：precision > 0 时按权重抽样，否则随机抽样。
func SampleKeys(samples []core.SampleInfo, fold, count int, precision int64) []string {
	if precision > 0 {
		res, _ := WeightedSample(samples, fold, count, precision)
		return res.Keys()
	}
	return RandomSample(samples, fold, count).Keys()
}

// MultiSampleKeys 多索引抽样：第 i 个样本池抽 counts[i] 个，结果取并集。
func MultiSampleKeys(pools [][]core.SampleInfo, counts []int, fold int, precision int64) []string {
	if len(pools) != len(counts) {
		return nil
	}
	seen := make(map[string]struct{})
	keys := make([]string, 0)
	for i, pool := range pools {
		for _, k := range SampleKeys(pool, fold, counts[i], precision) {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

// shuffleItems 打乱通道输出顺序。
func shuffleItems(items []core.Item) {
	rand.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
}
