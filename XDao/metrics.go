// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XDao

import "github.com/prometheus/client_golang/prometheus"

var (
	// queryCounter 统计各角色执行的语句数量。
	queryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xdao_query_total",
		Help: "The total number of statements executed, partitioned by role.",
	}, []string{"role"})

	// queryErrorCounter 统计各角色执行失败的语句数量。
	queryErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xdao_query_error_total",
		Help: "The total number of failed statements, partitioned by role.",
	}, []string{"role"})

	// lockCounter 统计命名锁的操作，result 为 true、false 或 error。
	lockCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xdao_lock_total",
		Help: "The total number of named lock operations, partitioned by action and result.",
	}, []string{"action", "result"})

	// txCounter 统计事务的结束方式，result 为 commit、rollback 或 error。
	txCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xdao_tx_total",
		Help: "The total number of finished transactions, partitioned by result.",
	}, []string{"result"})

	// cacheHitCounter 统计缓存命中的次数。
	cacheHitCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xdao_cache_hit_total",
		Help: "The total number of point reads served from the memory cache.",
	})

	// cacheMissCounter 统计缓存未命中的次数。
	cacheMissCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xdao_cache_miss_total",
		Help: "The total number of point reads missed by the memory cache.",
	})

	// cacheFlushCounter 统计缓存被整体清除的次数。
	cacheFlushCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xdao_cache_flush_total",
		Help: "The total number of memory cache flushes.",
	})

	// cacheEntryGauge 记录所有内存缓存当前的条目数量。
	cacheEntryGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "xdao_cache_entries",
		Help: "The number of entries held by memory caches.",
	})
)

func init() {
	prometheus.MustRegister(
		queryCounter,
		queryErrorCounter,
		lockCounter,
		txCounter,
		cacheHitCounter,
		cacheMissCounter,
		cacheFlushCounter,
		cacheEntryGauge,
	)
}
