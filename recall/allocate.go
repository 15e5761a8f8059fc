package recall

import (
	"math"

	"github.com/rushteam/recallkit/core"
)

// Allocation 是 Allocate 的结果，IDs 与 Counts 等长且保持输入顺序。
type Allocation struct {
	Total  int
	IDs    []int64
	Counts []int
}

// Allocate 把 totalBudget 个配额分配给权重降序的 ID 列表的前 topK 个。
//
//   - perIDCap <= 0 时单个 ID 上限取 totalBudget
//   - 按权重分配（weighted 且总权重 > 1e-6）：round(w/sum*budget)，再依次受单 ID 上限和剩余配额约束
//   - 否则平均分配：前 budget%N 个得 budget/N+1，其余得 budget/N，均受单 ID 上限约束
//
// Total 为实际分配总数，可能因上限而小于 totalBudget。
func Allocate(idWeights []core.IDWeight, topK, totalBudget, perIDCap int, weighted bool) Allocation {
	if topK <= 0 {
		return Allocation{}
	}
	n := min(topK, len(idWeights))
	if n <= 0 {
		return Allocation{}
	}

	capPerID := perIDCap
	if capPerID <= 0 {
		capPerID = totalBudget
	}

	out := Allocation{
		IDs:    make([]int64, n),
		Counts: make([]int, n),
	}
	var sumWeight float64
	for i := 0; i < n; i++ {
		sumWeight += float64(idWeights[i].Weight)
		out.IDs[i] = idWeights[i].ID
	}

	if weighted && math.Abs(sumWeight) > 1e-6 {
		remaining := totalBudget
		unit := float64(totalBudget) / sumWeight
		for i := 0; i < n; i++ {
			share := int(math.Floor(float64(idWeights[i].Weight)*unit + 0.5))
			share = min(share, capPerID, remaining)
			if share < 0 {
				share = 0
			}
			remaining -= share
			out.Counts[i] = share
			out.Total += share
		}
		return out
	}

	quotient := totalBudget / n
	remainder := totalBudget % n
	for i := 0; i < n; i++ {
		count := quotient
		if i < remainder {
			count = quotient + 1
		}
		count = min(count, capPerID)
		out.Counts[i] = count
		out.Total += count
	}
	return out
}
