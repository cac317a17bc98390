// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XDao

import (
	"context"
	"fmt"
	"strconv"

	"github.com/beego/beego/v2/client/orm"
)

// Role 定义了连接的角色。
type Role int

const (
	// RoleMaster 为唯一可写的权威连接。
	RoleMaster Role = iota

	// RoleSlave 为只读的副本连接，数据可能存在复制延迟。
	RoleSlave
)

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleSlave:
		return "slave"
	default:
		return "role(" + strconv.Itoa(int(r)) + ")"
	}
}

// Result 定义了写入语句的执行结果。
type Result struct {
	RowsAffected int64 // 受影响的行数
	LastInsertID int64 // 最后插入的自增 ID，驱动不支持时为 0
}

// IExecutor 定义了可执行语句的最小能力集，IDriver、IDriverTx 和 ISession 均实现了此接口。
type IExecutor interface {
	// Query 执行查询语句并返回所有的行。
	Query(ctx context.Context, statement string, args ...any) ([]orm.Params, error)

	// Exec 执行写入语句。
	Exec(ctx context.Context, statement string, args ...any) (Result, error)
}

// IDriverTx 定义了驱动层的事务。
type IDriverTx interface {
	IExecutor
	Commit() error
	Rollback() error
}

// ISession 定义了一个独占的连接会话，用于执行依赖会话状态的语句（如 MySQL 的命名锁）。
type ISession interface {
	IExecutor

	// Close 将会话归还给连接池。
	Close() error
}

// IDriver 定义了单个角色的驱动能力：建立连接、执行语句、开启事务。
type IDriver interface {
	IExecutor

	// Name 返回驱动的名称（通常为数据库别名）。
	Name() string

	// Type 返回数据库的类型，用于选择方言。
	Type() orm.DriverType

	// Connect 建立连接，重复调用应当是幂等的。
	Connect(ctx context.Context) error

	// Begin 开启事务。
	Begin(ctx context.Context) (IDriverTx, error)

	// Pin 获取一个独占的连接会话。
	Pin(ctx context.Context) (ISession, error)
}

// IPinger 定义了驱动原生的存活检测，未实现此接口的驱动将通过空查询检测。
type IPinger interface {
	Ping(ctx context.Context) error
}

// dialect 定义了不同数据库类型的平台语句。
type dialect struct {
	dummy   string // 空查询语句
	lock    string // 获取命名锁，结果列为 getLock
	release string // 释放命名锁，结果列为 releaseLock
	wait    bool   // 获取锁的语句是否接收等待秒数
}

var dialects = map[orm.DriverType]dialect{
	orm.DRMySQL: {
		dummy:   "SELECT 1",
		lock:    "SELECT GET_LOCK(?, ?) AS getLock",
		release: "SELECT RELEASE_LOCK(?) AS releaseLock",
		wait:    true,
	},
	orm.DRTiDB: {
		dummy:   "SELECT 1",
		lock:    "SELECT GET_LOCK(?, ?) AS getLock",
		release: "SELECT RELEASE_LOCK(?) AS releaseLock",
		wait:    true,
	},
	orm.DRPostgres: {
		dummy:   "SELECT 1",
		lock:    `SELECT pg_try_advisory_lock(hashtext($1)) AS "getLock"`,
		release: `SELECT pg_advisory_unlock(hashtext($1)) AS "releaseLock"`,
	},
	orm.DRSqlite: {
		dummy: "SELECT 1",
	},
	orm.DROracle: {
		dummy: "SELECT 1 FROM DUAL",
	},
}

// dialectOf 返回驱动类型对应的方言，未知类型使用 MySQL 方言。
func dialectOf(typ orm.DriverType) dialect {
	if d, ok := dialects[typ]; ok {
		return d
	}
	return dialects[orm.DRMySQL]
}

// toBool 将锁查询返回的列值转换为布尔值，NULL 视为 false。
func toBool(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case []byte:
		return toBool(string(v))
	case string:
		switch v {
		case "", "0", "f", "false", "FALSE":
			return false
		}
		return true
	default:
		return fmt.Sprint(v) != "0"
	}
}
