package core

// CandidateSet 是单次请求的候选集合，生命周期等于请求。
//
//   - Primary：主路径结果
//   - Spare：备用结果，主路径不足 KeepItemNum 时补位
//   - Exclusive：独立通道结果，仅在彼此之间去重，不并入 Primary/Spare
type CandidateSet struct {
	Primary   []Item
	Spare     []Item
	Exclusive map[string][]Item
}

// NewCandidateSet 创建空的候选集合。
func NewCandidateSet() *CandidateSet {
	return &CandidateSet{Exclusive: make(map[string][]Item)}
}

// Len 返回 Primary + Spare + Exclusive 的总数。
func (c *CandidateSet) Len() int {
	if c == nil {
		return 0
	}
	n := len(c.Primary) + len(c.Spare)
	for _, items := range c.Exclusive {
		n += len(items)
	}
	return n
}

// Keys 返回所有候选的 item key（去重），用于批量预取特征。
func (c *CandidateSet) Keys() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]struct{}, c.Len())
	keys := make([]string, 0, c.Len())
	add := func(items []Item) {
		for i := range items {
			k := items[i].Key()
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	add(c.Primary)
	add(c.Spare)
	for _, items := range c.Exclusive {
		add(items)
	}
	return keys
}
