// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XDao

import (
	"errors"
	"testing"

	"github.com/eframework-org/GO.UTIL/XPrefs"
	"github.com/stretchr/testify/assert"
)

// TestNewCacheStrategy 测试根据偏好设置创建缓存策略。
func TestNewCacheStrategy(t *testing.T) {
	tests := []struct {
		name   string
		prefs  XPrefs.IBase
		memory bool
		shards int
	}{
		{name: "NilPrefs", prefs: nil, memory: true, shards: defaultCacheShards},
		{name: "Default", prefs: XPrefs.New(), memory: true, shards: defaultCacheShards},
		{name: "Memory", prefs: XPrefs.New().Set(prefsCacheStrategy, "Memory").Set(prefsCacheShards, 8), memory: true, shards: 8},
		{name: "None", prefs: XPrefs.New().Set(prefsCacheStrategy, "none"), memory: false},
		{name: "Unknown", prefs: XPrefs.New().Set(prefsCacheStrategy, "redis"), memory: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy := NewCacheStrategy(tt.prefs)
			if tt.memory {
				cache, ok := strategy.(*MemoryCacheStrategy)
				assert.True(t, ok, "应当创建内存缓存策略。")
				assert.Len(t, cache.table.Load().shards, tt.shards, "分片数量应当与配置一致。")
			} else {
				_, ok := strategy.(NoneCacheStrategy)
				assert.True(t, ok, "应当创建禁用缓存的策略。")
			}
		})
	}
}

// TestNoneCacheStrategy 测试禁用缓存的策略。
func TestNoneCacheStrategy(t *testing.T) {
	user := testDao{table: "user"}
	cache := NewNoneCacheStrategy()

	cache.AfterGet(user, "Get", []any{1}, "user-1")
	cache.AfterFind(user, "Find", []any{1}, "user-1")
	cache.AfterSearch(user, "Search", []any{1}, "user-1")
	cache.AfterCreate(user, "Create", nil, nil)
	cache.AfterUpdate(user, "Update", nil, nil)
	cache.AfterBatchUpdate(user, "Wave", nil, 1)
	cache.AfterDelete(user, "Delete", nil)

	_, ok := cache.BeforeGet(user, "Get", []any{1})
	assert.False(t, ok, "禁用缓存时读取不应当命中。")
	_, ok = cache.BeforeFind(user, "Find", []any{1})
	assert.False(t, ok)
	_, ok = cache.BeforeSearch(user, "Search", []any{1})
	assert.False(t, ok)
}

// TestCachedGet 测试单行读取的钩子顺序。
func TestCachedGet(t *testing.T) {
	user := testDao{table: "user"}

	t.Run("FetchOnce", func(t *testing.T) {
		cache := NewMemoryCacheStrategy()
		fetches := 0
		fetch := func() (string, error) {
			fetches++
			return "user-1", nil
		}
		for i := 0; i < 3; i++ {
			value, err := CachedGet(cache, user, "Get", []any{1}, fetch)
			assert.Nil(t, err)
			assert.Equal(t, "user-1", value)
		}
		assert.Equal(t, 1, fetches, "命中后不应当再次读取。")
	})

	t.Run("CachedNil", func(t *testing.T) {
		cache := NewMemoryCacheStrategy()
		fetches := 0
		fetch := func() (*string, error) {
			fetches++
			return nil, nil
		}
		CachedGet(cache, user, "Get", []any{404}, fetch)
		value, err := CachedGet(cache, user, "Get", []any{404}, fetch)
		assert.Nil(t, err)
		assert.Nil(t, value, "应当返回缓存的空结果。")
		assert.Equal(t, 1, fetches, "空结果应当被缓存。")
	})

	t.Run("FailureIsNotCached", func(t *testing.T) {
		cache := NewMemoryCacheStrategy()
		cause := errors.New("timeout")

		_, err := CachedGet(cache, user, "Get", []any{1}, func() (string, error) { return "", cause })
		assert.Same(t, cause, err, "应当原样返回读取的错误。")
		assert.Equal(t, 0, cache.Len(), "失败的读取不应当被缓存。")
		assert.Empty(t, cache.pending, "失败的读取应当释放登记。")
	})

	t.Run("FailureWithPanic", func(t *testing.T) {
		cache := NewMemoryCacheStrategy()
		assert.Panics(t, func() {
			CachedGet(cache, user, "Get", []any{1}, func() (string, error) { panic("crashed") })
		})
		assert.Empty(t, cache.pending, "panic 时同样应当释放登记。")
	})

	t.Run("UnexpectedType", func(t *testing.T) {
		cache := NewMemoryCacheStrategy()
		cache.AfterGet(user, "Get", []any{1}, 100)
		value, err := CachedGet(cache, user, "Get", []any{1}, func() (string, error) { return "user-1", nil })
		assert.Nil(t, err)
		assert.Equal(t, "user-1", value, "类型不符时应当重新读取。")
	})

	t.Run("FindAndSearch", func(t *testing.T) {
		cache := NewMemoryCacheStrategy()
		fetches := 0
		fetch := func() ([]string, error) {
			fetches++
			return []string{"a", "b"}, nil
		}
		CachedFind(cache, user, "Find", []any{1}, fetch)
		CachedFind(cache, user, "Find", []any{1}, fetch)
		CachedSearch(cache, user, "Search", []any{1}, fetch)
		CachedSearch(cache, user, "Search", []any{1}, fetch)
		assert.Equal(t, 4, fetches, "多行查找及搜索不应当被缓存。")
	})
}

// TestCacheKey 测试缓存键的构造。
func TestCacheKey(t *testing.T) {
	user := testDao{table: "user"}

	key, ok := cacheKey(user, "Get", []any{1})
	assert.True(t, ok)
	assert.Equal(t, `dao:["user","Get",[1]]`, key, "缓存键应当包含数据表、方法及参数。")

	nilKey, _ := cacheKey(user, "Get", nil)
	emptyKey, _ := cacheKey(user, "Get", []any{})
	assert.Equal(t, emptyKey, nilKey, "空参数应当得到相同的键。")

	k1, _ := cacheKey(user, "GetBy", []any{map[string]any{"a": 1, "b": "x"}})
	k2, _ := cacheKey(user, "GetBy", []any{map[string]any{"b": "x", "a": 1}})
	assert.Equal(t, k1, k2, "相同的参数应当得到相同的键。")

	k3, _ := cacheKey(user, "Get", []any{"1"})
	assert.NotEqual(t, key, k3, "不同类型的参数不应当得到相同的键。")

	k4, _ := cacheKey(testDao{table: "a:b"}, "c", []any{1})
	k5, _ := cacheKey(testDao{table: "a"}, "b:c", []any{1})
	assert.NotEqual(t, k4, k5, "名称包含分隔符时不应当得到相同的键。")

	_, ok = cacheKey(user, "Get", []any{make(chan int)})
	assert.False(t, ok, "无法编码的参数不应当参与缓存。")

	cache := NewMemoryCacheStrategy()
	cache.AfterGet(user, "Get", []any{make(chan int)}, "x")
	assert.Equal(t, 0, cache.Len(), "无法编码的参数不应当被缓存。")
}
