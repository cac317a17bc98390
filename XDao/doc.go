// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

/*
XDao 提供了主从分离的数据访问层，包括连接路由、命名锁、事务管理及可插拔的数据缓存策略。

功能特性

  - 多源配置：通过解析首选项中的配置自动创建主从连接路由
  - 连接路由：写入、锁及需要读取自身写入的查询使用主库，普通读取使用从库，连接按需建立
  - 命名锁：基于数据库原生的命名锁（MySQL GET_LOCK、PostgreSQL advisory lock）实现跨进程互斥
  - 事务管理：失败时回滚并原样返回原始错误，支持回滚回调及提交后回调
  - 缓存策略：数据访问对象在读写前后调用的缓存钩子，内置内存缓存及禁用缓存两种策略

使用手册

1. 多源配置

配置说明：
  - 配置键名：Dao/Source/<数据库类型>/<数据源名称>
  - 支持 MySQL、PostgreSQL、SQLite3 等（Beego ORM 支持的类型）
  - 配置参数：
  - Addr：数据源地址
  - Pool：连接池大小
  - Conn：最大连接数
  - Keepalive：存活检测的间隔秒数，0 表示不检测
  - Slave：从库配置，每个键为一个从库，参数同上

配置示例：

	{
	    "Dao/Source/MySQL/Main": {
	        "Addr": "root:123456@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&loc=Local",
	        "Pool": 2,
	        "Conn": 10,
	        "Keepalive": 30,
	        "Slave": {
	            "R1": {
	                "Addr": "root:123456@tcp(127.0.0.1:3307)/dbname?charset=utf8mb4&loc=Local",
	                "Pool": 2,
	                "Conn": 10
	            }
	        }
	    },
	    "Dao/Cache/Strategy": "memory",
	    "Dao/Cache/Shards": 32
	}

2. 连接路由

	router := XDao.Open("Main")

	// 主库查询：强制连接主库，可读取自身的写入。
	rows, err := router.ExecuteOnMaster(ctx, "SELECT * FROM user WHERE id = ?", 1)

	// 从库查询：数据可能存在复制延迟，未配置从库时使用主库。
	rows, err := router.ExecuteOnSlave(ctx, "SELECT * FROM user WHERE age > ?", 18)

	// 写入操作：字段名称在语句生成之前校验，仅允许字母、数字和下划线。
	ret, err := router.Insert(ctx, "user", map[string]any{"name": "test", "age": 18})
	ret, err := router.Update(ctx, "user", map[string]any{"age": 19}, map[string]any{"id": ret.LastInsertID})
	ret, err := router.Delete(ctx, "user", map[string]any{"id": 1})

	// 存活检测：任何错误都只会返回 false。
	alive := router.Ping(ctx)

也可以直接使用驱动创建路由：

	master := XDao.NewOrmDriver("main", "mysql", addr, 2, 10)
	slave := XDao.NewOrmDriver("main/r1", "mysql", slaveAddr, 2, 10)
	router := XDao.NewRouter(master, slave)

3. 命名锁

	if ok, err := router.AcquireLock(ctx, "order:1", 3*time.Second); ok {
	    defer router.ReleaseLock(ctx, "order:1")
	    // 临界区
	}

注意：
1. MySQL 的命名锁归属于会话，持有期间独占一个连接，必须由同一个路由释放
2. 等待时长传递给锁原语，本层不做超时及重试处理
3. SQLite 等不支持命名锁的数据库返回 ErrLockUnsupported

4. 事务管理

	ret, err := XDao.InTransaction(ctx, router, func(tx *XDao.Tx) (int64, error) {
	    ret, err := tx.Insert(ctx, "order", map[string]any{"user": 1})
	    if err != nil {
	        return 0, err
	    }
	    tx.AfterCommit(func() {
	        // 提交成功后执行
	    })
	    return ret.LastInsertID, nil
	}, func(tx *XDao.Tx) {
	    // 回滚后执行，失败仅记录日志
	})

注意：
1. work 返回错误时回滚事务，返回的错误即 work 的原始错误
2. 事务绑定了开启它的 goroutine，该 goroutine 上经由路由的调用（包括数据访问对象）都会加入此事务
3. 同一 goroutine 不支持嵌套事务，将返回 ErrNestedTransaction

5. 缓存策略

	cache := XDao.NewCacheStrategy(XPrefs.Asset())
	users := XDao.NewGeneralDao("user", router, cache)

	user, err := users.Get(ctx, 1)                                     // 单行读取，经由缓存
	list, err := users.Search(ctx, map[string]any{"age": 18}, []string{"-id"}, 0, 10) // 不缓存
	_, err = users.Update(ctx, 1, map[string]any{"age": 19})           // 清除缓存
	_, err = users.Wave(ctx, []any{1, 2}, map[string]int{"score": 10}) // 清除缓存

内存缓存策略：
  - 仅缓存单行读取（Get、GetBy）的结果，空结果同样会被缓存
  - 多行查找及搜索的结果不缓存
  - 任何数据表的更新、批量更新或删除都会清除整个缓存，创建不会清除缓存
  - 缓存键的格式为 dao:<[数据表, 方法, 参数] 的 JSON>

注意：缓存为进程内缓存，多个实例之间不会同步失效；从库存在复制延迟时，写入后立即读取可能缓存旧数据，
此时可使用 NewGeneralDao 的 masterReads 参数从主库读取。

更多信息请参考模块文档。
*/
package XDao
