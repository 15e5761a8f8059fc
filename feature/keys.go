package feature

import (
	"strconv"
)

// RemoteBucketCount 是远端 Hash 的分桶数。
const RemoteBucketCount = 10000

// 记录类型后缀
const (
	SuffixBasic    = "basic"
	SuffixStatis   = "statis"
	SuffixIndex    = "index"
	SuffixDownload = "download"
)

// InvertIndexVersionKey 保存各倒排索引更新时间的 Hash，字段为索引的 basic key。
const InvertIndexVersionKey = "invert_index_update_time"

func remoteBucket(id int64) int64 {
	b := id % RemoteBucketCount
	if b < 0 {
		b = -b
	}
	return b
}

// ItemHashKey 物品特征所在的 Hash：{item_feature:proto:<id%10000>}。
func ItemHashKey(itemID int64) string {
	return "{item_feature:proto:" + strconv.FormatInt(remoteBucket(itemID), 10) + "}"
}

// ItemField 物品特征字段：<id>:<suffix>:<category>。
func ItemField(itemID int64, suffix string, category int32) string {
	return strconv.FormatInt(itemID, 10) + ":" + suffix + ":" + strconv.FormatInt(int64(category), 10)
}

// UserHashKey 用户特征所在的 Hash：{user_feature:proto:<uid%10000>}。
func UserHashKey(userID int64) string {
	return "{user_feature:proto:" + strconv.FormatInt(remoteBucket(userID), 10) + "}"
}

// UserField 用户特征字段：<uid>:<suffix>。
func UserField(userID int64, suffix string) string {
	return strconv.FormatInt(userID, 10) + ":" + suffix
}

// UserKey 是用户特征缓存的 key。
func UserKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// InvertIndexKey 倒排索引 key：<basic_key><category>。
func InvertIndexKey(basicKey string, category int32) string {
	return basicKey + strconv.FormatInt(int64(category), 10)
}
