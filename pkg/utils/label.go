package utils

import "strings"

// Label 是挂在物品 / 请求上的可解释标记，例如召回来源、排序模型。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"` // recall / filter / rank / rerank
}

// MergeLabel 合并同名 Label：Value 以 '|' 累积且去重（同一物品被多个通道召回时
// 只记录一次通道名），Source 以 ',' 累积且去重。
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" {
		return existing
	}
	return Label{
		Value:  appendUnique(existing.Value, incoming.Value, "|"),
		Source: appendUnique(existing.Source, incoming.Source, ","),
	}
}

func appendUnique(list, v, sep string) string {
	switch {
	case v == "":
		return list
	case list == "":
		return v
	}
	for _, s := range strings.Split(list, sep) {
		if s == v {
			return list
		}
	}
	return list + sep + v
}
