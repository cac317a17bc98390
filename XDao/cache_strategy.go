// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XDao

import (
	"strings"

	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XPrefs"
)

const (
	// prefsCacheStrategy 定义了缓存策略的偏好设置键，可选值为 memory 和 none。
	prefsCacheStrategy = "Dao/Cache/Strategy"

	// prefsCacheShards 定义了内存缓存分片数量的偏好设置键。
	prefsCacheShards = "Dao/Cache/Shards"
)

// IDao 定义了数据访问对象的标识，数据表名称参与缓存键的构造。
type IDao interface {
	Table() string
}

// ICacheStrategy 定义了数据访问对象在各类操作前后调用的缓存钩子。
// 调用顺序固定为：Before* -> （未命中时）经由路由执行查询 -> After*。
// Before* 通过第二个返回值表示是否命中，命中的值可以是 nil、false 或空值。
type ICacheStrategy interface {
	// BeforeGet 在单行读取前调用。
	BeforeGet(dao IDao, method string, args []any) (any, bool)

	// AfterGet 在单行读取成功后调用，row 为读取到的行（可能为空）。
	AfterGet(dao IDao, method string, args []any, row any)

	// BeforeFind 在多行查找前调用。
	BeforeFind(dao IDao, method string, args []any) (any, bool)

	// AfterFind 在多行查找成功后调用。
	AfterFind(dao IDao, method string, args []any, rows any)

	// BeforeSearch 在搜索（条件列举）前调用。
	BeforeSearch(dao IDao, method string, args []any) (any, bool)

	// AfterSearch 在搜索成功后调用。
	AfterSearch(dao IDao, method string, args []any, rows any)

	// AfterCreate 在创建成功后调用。
	AfterCreate(dao IDao, method string, args []any, row any)

	// AfterUpdate 在更新成功后调用。
	AfterUpdate(dao IDao, method string, args []any, row any)

	// AfterBatchUpdate 在批量更新成功后调用，affected 为受影响的行数。
	AfterBatchUpdate(dao IDao, method string, args []any, affected int64)

	// AfterDelete 在删除成功后调用。
	AfterDelete(dao IDao, method string, args []any)
}

// ICacheAborter 为可选的接口，BeforeGet 未命中而读取失败时调用，用于释放未命中时登记的状态。
type ICacheAborter interface {
	AbortGet(dao IDao, method string, args []any)
}

// NoneCacheStrategy 为禁用缓存的策略，所有读取都不命中，所有回调都不做任何处理。
type NoneCacheStrategy struct{}

var _ ICacheStrategy = NoneCacheStrategy{}

// NewNoneCacheStrategy 创建禁用缓存的策略。
func NewNoneCacheStrategy() NoneCacheStrategy { return NoneCacheStrategy{} }

func (NoneCacheStrategy) BeforeGet(IDao, string, []any) (any, bool) { return nil, false }
func (NoneCacheStrategy) AfterGet(IDao, string, []any, any) {}
func (NoneCacheStrategy) BeforeFind(IDao, string, []any) (any, bool) { return nil, false }
func (NoneCacheStrategy) AfterFind(IDao, string, []any, any) {}
func (NoneCacheStrategy) BeforeSearch(IDao, string, []any) (any, bool) { return nil, false }
func (NoneCacheStrategy) AfterSearch(IDao, string, []any, any) {}
func (NoneCacheStrategy) AfterCreate(IDao, string, []any, any) {}
func (NoneCacheStrategy) AfterUpdate(IDao, string, []any, any) {}
func (NoneCacheStrategy) AfterBatchUpdate(IDao, string, []any, int64) {}
func (NoneCacheStrategy) AfterDelete(IDao, string, []any) {}

// NewCacheStrategy 根据偏好设置创建缓存策略，prefs 为空或未配置时使用内存缓存。
// 返回的实例应当注入到所有的数据访问对象中共享使用。
func NewCacheStrategy(prefs XPrefs.IBase) ICacheStrategy {
	if prefs == nil {
		return NewMemoryCacheStrategy()
	}
	name := strings.ToLower(prefs.GetString(prefsCacheStrategy))
	switch name {
	case "", "memory":
		return NewMemoryCacheStrategy(prefs.GetInt(prefsCacheShards, defaultCacheShards))
	case "none":
		return NewNoneCacheStrategy()
	default:
		XLog.Error("XDao.NewCacheStrategy: unknown strategy %v, caching is disabled.", name)
		return NewNoneCacheStrategy()
	}
}

// CachedGet 以固定的顺序驱动单行读取的缓存钩子：BeforeGet 命中时直接返回，否则调用 fetch，
// 成功后交由 AfterGet 缓存。fetch 失败的结果不会被缓存。所有钩子都在调用方的 goroutine 上执行。
func CachedGet[T any](strategy ICacheStrategy, dao IDao, method string, args []any, fetch func() (T, error)) (T, error) {
	if value, ok := strategy.BeforeGet(dao, method, args); ok {
		if value == nil {
			var zero T
			return zero, nil
		}
		if row, ok := value.(T); ok {
			return row, nil
		}
		XLog.Warn("XDao.CachedGet: cached value of %v.%v has unexpected type %T.", dao.Table(), method, value)
		return fetch()
	}

	done := false
	defer func() {
		if !done {
			if aborter, ok := strategy.(ICacheAborter); ok {
				aborter.AbortGet(dao, method, args)
			}
		}
	}()

	row, err := fetch()
	if err != nil {
		return row, err
	}
	strategy.AfterGet(dao, method, args, row)
	done = true
	return row, nil
}

// CachedFind 以固定的顺序驱动多行查找的缓存钩子。
func CachedFind[T any](strategy ICacheStrategy, dao IDao, method string, args []any, fetch func() (T, error)) (T, error) {
	if value, ok := strategy.BeforeFind(dao, method, args); ok {
		if rows, ok := value.(T); ok {
			return rows, nil
		}
	}
	rows, err := fetch()
	if err != nil {
		return rows, err
	}
	strategy.AfterFind(dao, method, args, rows)
	return rows, nil
}

// CachedSearch 以固定的顺序驱动搜索的缓存钩子。
func CachedSearch[T any](strategy ICacheStrategy, dao IDao, method string, args []any, fetch func() (T, error)) (T, error) {
	if value, ok := strategy.BeforeSearch(dao, method, args); ok {
		if rows, ok := value.(T); ok {
			return rows, nil
		}
	}
	rows, err := fetch()
	if err != nil {
		return rows, err
	}
	strategy.AfterSearch(dao, method, args, rows)
	return rows, nil
}
