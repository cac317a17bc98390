// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XDao

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/beego/beego/v2/client/orm"
	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XTime"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// registerMutex 用于保证 Beego 数据库别名注册的原子性。
var registerMutex sync.Mutex

// OrmDriver 基于 Beego ORM 的别名注册表实现了 IDriver。
// 连接在首次 Connect 时才注册到 Beego，若别名已被注册（如由其他组件提前注册），则直接复用。
type OrmDriver struct {
	alias  string // 数据库别名
	driver string // 驱动名称，如 mysql、postgres、sqlite3
	addr   string // 数据源地址
	pool   int    // 最大空闲连接数
	conn   int    // 最大连接数

	mutex sync.RWMutex
	ormer orm.Ormer
	typ   orm.DriverType
}

// NewOrmDriver 创建基于 Beego ORM 的驱动。
// alias 为数据库别名，driver 为驱动名称，addr 为数据源地址，pool 和 conn 分别为最大空闲连接数和最大连接数（小于等于 0 时使用默认值）。
func NewOrmDriver(alias, driver, addr string, pool, conn int) *OrmDriver {
	return &OrmDriver{alias: alias, driver: strings.ToLower(driver), addr: addr, pool: pool, conn: conn}
}

func (d *OrmDriver) Name() string { return d.alias }

func (d *OrmDriver) Type() orm.DriverType {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.typ
}

// Connect 注册数据库别名并创建 Ormer，注册时 Beego 会检测连接是否可用。
func (d *OrmDriver) Connect(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.ormer != nil {
		return nil
	}

	registerMutex.Lock()
	if _, err := orm.GetDB(d.alias); err != nil {
		var opts []orm.DBOption
		if d.pool > 0 {
			opts = append(opts, orm.MaxIdleConnections(d.pool))
		}
		if d.conn > 0 {
			opts = append(opts, orm.MaxOpenConnections(d.conn))
		}
		if err := orm.RegisterDataBase(d.alias, d.driver, d.addr, opts...); err != nil {
			registerMutex.Unlock()
			return err
		}
		XLog.Notice("XDao.OrmDriver.Connect: database %v(%v) has been registered.", d.alias, d.driver)
	}
	registerMutex.Unlock()

	d.ormer = orm.NewOrmUsingDB(d.alias)
	d.typ = d.ormer.Driver().Type()
	return nil
}

func (d *OrmDriver) get() (orm.Ormer, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	if d.ormer == nil {
		return nil, ErrNotConnected
	}
	return d.ormer, nil
}

func (d *OrmDriver) Query(ctx context.Context, statement string, args ...any) ([]orm.Params, error) {
	o, err := d.get()
	if err != nil {
		return nil, err
	}
	return rawQuery(ctx, o, statement, args)
}

func (d *OrmDriver) Exec(ctx context.Context, statement string, args ...any) (Result, error) {
	o, err := d.get()
	if err != nil {
		return Result{}, err
	}
	return rawExec(ctx, o, statement, args)
}

func (d *OrmDriver) Begin(ctx context.Context) (IDriverTx, error) {
	o, err := d.get()
	if err != nil {
		return nil, err
	}
	tx, err := o.BeginWithCtx(ctx)
	if err != nil {
		return nil, err
	}
	return &ormTx{tx: tx}, nil
}

// Pin 从别名对应的连接池中取出一个独占连接。
func (d *OrmDriver) Pin(ctx context.Context) (ISession, error) {
	if _, err := d.get(); err != nil {
		return nil, err
	}
	db, err := orm.GetDB(d.alias)
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqlSession{conn: conn}, nil
}

// Ping 使用 database/sql 原生的存活检测。
func (d *OrmDriver) Ping(ctx context.Context) error {
	if _, err := d.get(); err != nil {
		return err
	}
	db, err := orm.GetDB(d.alias)
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// rawExecutor 为 Ormer 和 TxOrmer 共有的原生语句能力。
type rawExecutor interface {
	RawWithCtx(ctx context.Context, query string, args ...any) orm.RawSeter
}

func rawQuery(ctx context.Context, o rawExecutor, statement string, args []any) ([]orm.Params, error) {
	var rows []orm.Params
	t := XTime.GetMicrosecond()
	if _, err := o.RawWithCtx(ctx, statement, args...).Values(&rows); err != nil {
		return nil, err
	}
	if XLog.Able(XLog.LevelInfo) {
		XLog.Info("XDao.Query: [Cost:%.2fms] [Rows:%v] %v", float64(XTime.GetMicrosecond()-t)/1e3, len(rows), statement)
	}
	return rows, nil
}

func rawExec(ctx context.Context, o rawExecutor, statement string, args []any) (Result, error) {
	t := XTime.GetMicrosecond()
	ret, err := o.RawWithCtx(ctx, statement, args...).Exec()
	if err != nil {
		return Result{}, err
	}
	result := sqlResult(ret)
	if XLog.Able(XLog.LevelInfo) {
		XLog.Info("XDao.Exec: [Cost:%.2fms] [Affected:%v] %v", float64(XTime.GetMicrosecond()-t)/1e3, result.RowsAffected, statement)
	}
	return result, nil
}

// sqlResult 转换执行结果，驱动不支持的字段（如 PostgreSQL 的 LastInsertId）保持为 0。
func sqlResult(ret sql.Result) Result {
	var result Result
	if ret == nil {
		return result
	}
	if n, err := ret.RowsAffected(); err == nil {
		result.RowsAffected = n
	}
	if id, err := ret.LastInsertId(); err == nil {
		result.LastInsertID = id
	}
	return result
}

// ormTx 将 Beego 的 TxOrmer 适配为 IDriverTx。
type ormTx struct {
	tx orm.TxOrmer
}

func (t *ormTx) Query(ctx context.Context, statement string, args ...any) ([]orm.Params, error) {
	return rawQuery(ctx, t.tx, statement, args)
}

func (t *ormTx) Exec(ctx context.Context, statement string, args ...any) (Result, error) {
	return rawExec(ctx, t.tx, statement, args)
}

func (t *ormTx) Commit() error { return t.tx.Commit() }

func (t *ormTx) Rollback() error { return t.tx.Rollback() }

// sqlSession 为独占的 *sql.Conn 会话，Beego 的 Raw 只能作用于连接池，故此处直接使用 database/sql。
type sqlSession struct {
	conn *sql.Conn
}

func (s *sqlSession) Query(ctx context.Context, statement string, args ...any) ([]orm.Params, error) {
	rows, err := s.conn.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var rets []orm.Params
	for rows.Next() {
		values := make([]any, len(cols))
		refs := make([]any, len(cols))
		for i := range values {
			refs[i] = &values[i]
		}
		if err := rows.Scan(refs...); err != nil {
			return nil, err
		}
		row := make(orm.Params, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b) // 与 Beego Values 的返回保持一致
			} else {
				row[col] = values[i]
			}
		}
		rets = append(rets, row)
	}
	return rets, rows.Err()
}

func (s *sqlSession) Exec(ctx context.Context, statement string, args ...any) (Result, error) {
	ret, err := s.conn.ExecContext(ctx, statement, args...)
	if err != nil {
		return Result{}, err
	}
	return sqlResult(ret), nil
}

func (s *sqlSession) Close() error { return s.conn.Close() }
