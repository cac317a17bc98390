// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XDao

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XTime"
	"github.com/petermattis/goid"
)

const (
	// defaultCacheShards 定义了内存缓存默认的分片数量。
	defaultCacheShards = 32

	// pendingTimeout 定义了未命中登记的最长保留时间（微秒），超时的登记在清除时回收。
	pendingTimeout = 60 * 1000 * 1000
)

// MemoryCacheStrategy 为进程内的缓存策略，仅缓存单行读取的结果（包括空结果），
// 任何数据表的更新、批量更新或删除都会清除整个缓存。创建不会清除缓存。
//
// 条目按 xxhash 分片存储，整张表通过原子指针整体替换，读取方不会观察到清除了一半的缓存。
// 每次清除都会递增代数，在清除之前未命中、清除之后才回写的读取结果会被丢弃，避免缓存写入前的旧数据。
// 未命中按键及 goroutine 登记，每次读取只判断自身的登记，未回写的读取不会影响其他读取的回写。
type MemoryCacheStrategy struct {
	shards int
	table  atomic.Pointer[cacheTable]

	mutex      sync.Mutex              // 保护 generation、pending 以及回写和替换的原子性
	generation uint64                  // 缓存的代数，每次清除递增
	pending    map[pendingKey]inflight // 未命中且尚未回写的读取

	size atomic.Int64
}

var (
	_ ICacheStrategy = (*MemoryCacheStrategy)(nil)
	_ ICacheAborter  = (*MemoryCacheStrategy)(nil)
)

// pendingKey 标识一次未命中的读取，BeforeGet 与 AfterGet 在同一个 goroutine 上调用。
type pendingKey struct {
	key string
	gid int64
}

// inflight 记录未命中时的代数及登记时间。
type inflight struct {
	generation uint64
	since      int
}

type cacheShard struct {
	mutex   sync.RWMutex
	entries map[string]any
}

type cacheTable struct {
	shards []*cacheShard
}

func newCacheTable(shards int) *cacheTable {
	t := &cacheTable{shards: make([]*cacheShard, shards)}
	for i := range t.shards {
		t.shards[i] = &cacheShard{entries: make(map[string]any)}
	}
	return t
}

func (t *cacheTable) shard(key string) *cacheShard {
	return t.shards[xxhash.Sum64String(key)%uint64(len(t.shards))]
}

func (t *cacheTable) get(key string) (any, bool) {
	s := t.shard(key)
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	value, ok := s.entries[key]
	return value, ok
}

// set 写入条目并返回是否为新增的键。
func (t *cacheTable) set(key string, value any) bool {
	s := t.shard(key)
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, exist := s.entries[key]
	s.entries[key] = value
	return !exist
}

func (t *cacheTable) len() int {
	n := 0
	for _, s := range t.shards {
		s.mutex.RLock()
		n += len(s.entries)
		s.mutex.RUnlock()
	}
	return n
}

// NewMemoryCacheStrategy 创建内存缓存策略，shards 为可选的分片数量。
func NewMemoryCacheStrategy(shards ...int) *MemoryCacheStrategy {
	n := defaultCacheShards
	if len(shards) > 0 && shards[0] > 0 {
		n = shards[0]
	}
	c := &MemoryCacheStrategy{shards: n, pending: make(map[pendingKey]inflight)}
	c.table.Store(newCacheTable(n))
	return c
}

// Len 返回当前缓存的条目数量。
func (c *MemoryCacheStrategy) Len() int { return int(c.size.Load()) }

// Flush 清除整个缓存。
func (c *MemoryCacheStrategy) Flush() {
	c.mutex.Lock()
	c.generation++
	old := c.table.Swap(newCacheTable(c.shards))
	c.prune()
	c.mutex.Unlock()

	if n := int64(old.len()); n > 0 {
		c.size.Add(-n)
		cacheEntryGauge.Sub(float64(n))
	}
	cacheFlushCounter.Inc()
}

func (c *MemoryCacheStrategy) BeforeGet(dao IDao, method string, args []any) (any, bool) {
	key, ok := cacheKey(dao, method, args)
	if !ok {
		return nil, false
	}
	if value, ok := c.table.Load().get(key); ok {
		cacheHitCounter.Inc()
		return value, true
	}
	cacheMissCounter.Inc()

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.pending[pendingKey{key: key, gid: goid.Get()}] = inflight{generation: c.generation, since: XTime.GetMicrosecond()}
	return nil, false
}

// AfterGet 缓存读取到的行，空行同样会被缓存以避免重复查询已知不存在的数据。
// 若在同一 goroutine 上对应的 BeforeGet 未命中之后发生过清除，则丢弃此次结果。
func (c *MemoryCacheStrategy) AfterGet(dao IDao, method string, args []any, row any) {
	key, ok := cacheKey(dao, method, args)
	if !ok {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.release(key) {
		return
	}
	if c.table.Load().set(key, row) {
		c.size.Add(1)
		cacheEntryGauge.Inc()
	}
}

// AbortGet 释放 BeforeGet 未命中时登记的状态。
func (c *MemoryCacheStrategy) AbortGet(dao IDao, method string, args []any) {
	key, ok := cacheKey(dao, method, args)
	if !ok {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.release(key)
}

// release 释放当前 goroutine 在该键上的登记，返回其结果是否已过期。调用方需持有 mutex。
func (c *MemoryCacheStrategy) release(key string) bool {
	pk := pendingKey{key: key, gid: goid.Get()}
	p, ok := c.pending[pk]
	if !ok {
		return false
	}
	delete(c.pending, pk)
	return p.generation != c.generation
}

// prune 回收超时的登记，如读取方未调用 AfterGet 或 AbortGet。调用方需持有 mutex。
func (c *MemoryCacheStrategy) prune() {
	deadline := XTime.GetMicrosecond() - pendingTimeout
	for pk, p := range c.pending {
		if p.since < deadline {
			delete(c.pending, pk)
		}
	}
}

// BeforeFind 多行查找的结果不缓存。
func (c *MemoryCacheStrategy) BeforeFind(dao IDao, method string, args []any) (any, bool) {
	return nil, false
}

func (c *MemoryCacheStrategy) AfterFind(dao IDao, method string, args []any, rows any) {}

// BeforeSearch 搜索的结果不缓存。
func (c *MemoryCacheStrategy) BeforeSearch(dao IDao, method string, args []any) (any, bool) {
	return nil, false
}

func (c *MemoryCacheStrategy) AfterSearch(dao IDao, method string, args []any, rows any) {}

// AfterCreate 不清除缓存，已缓存的空结果在创建之后仍可能被返回，直至下一次更新或删除。
func (c *MemoryCacheStrategy) AfterCreate(dao IDao, method string, args []any, row any) {}

func (c *MemoryCacheStrategy) AfterUpdate(dao IDao, method string, args []any, row any) {
	c.flush(dao, method)
}

func (c *MemoryCacheStrategy) AfterBatchUpdate(dao IDao, method string, args []any, affected int64) {
	c.flush(dao, method)
}

func (c *MemoryCacheStrategy) AfterDelete(dao IDao, method string, args []any) {
	c.flush(dao, method)
}

func (c *MemoryCacheStrategy) flush(dao IDao, method string) {
	c.Flush()
	if XLog.Able(XLog.LevelInfo) {
		XLog.Info("XDao.MemoryCacheStrategy: cache has been flushed by %v.%v.", dao.Table(), method)
	}
}
