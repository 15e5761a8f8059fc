// Package store 提供 core.Store / core.HashStore 的实现。
//
// 注意：此包只包含实现，接口定义在 core 包。
//
//	var s core.HashStore = store.NewMemoryStore()
package store
