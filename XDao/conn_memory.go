// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XDao

import (
	"context"
	"errors"
	"sync"

	"github.com/beego/beego/v2/client/orm"
)

// Statement 为内存驱动记录的一条语句。
type Statement struct {
	Driver    string // 执行语句的驱动名称
	Statement string // 语句内容，事务控制语句记为 BEGIN、COMMIT、ROLLBACK
	Args      []any  // 语句参数
}

// MemoryResponder 根据语句返回模拟的结果。
type MemoryResponder func(statement string, args []any) ([]orm.Params, Result, error)

// MemoryDriver 为不依赖数据库的 IDriver 实现，记录所有执行的语句，并通过 Responder 模拟结果。
// 通常用于测试路由、锁及事务的行为。
type MemoryDriver struct {
	name      string
	typ       orm.DriverType
	mutex     sync.Mutex
	log       []Statement
	connects  int
	closed    bool
	responder MemoryResponder
}

// NewMemoryDriver 创建内存驱动，默认为 MySQL 方言，执行任何语句都返回空结果。
func NewMemoryDriver(name string) *MemoryDriver {
	return &MemoryDriver{name: name, typ: orm.DRMySQL}
}

// WithType 设置驱动的方言类型。
func (d *MemoryDriver) WithType(typ orm.DriverType) *MemoryDriver {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.typ = typ
	return d
}

// WithResponder 设置语句的模拟结果。
func (d *MemoryDriver) WithResponder(responder MemoryResponder) *MemoryDriver {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.responder = responder
	return d
}

func (d *MemoryDriver) Name() string { return d.name }

func (d *MemoryDriver) Type() orm.DriverType {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.typ
}

func (d *MemoryDriver) Connect(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.closed {
		return ErrNotConnected
	}
	d.connects++
	return nil
}

// Close 模拟连接被关闭，此后所有的操作都会失败。
func (d *MemoryDriver) Close() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.closed = true
}

// Connects 返回 Connect 被调用的次数。
func (d *MemoryDriver) Connects() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.connects
}

// Log 返回已记录语句的拷贝。
func (d *MemoryDriver) Log() []Statement {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]Statement(nil), d.log...)
}

// Statements 返回已记录的语句内容。
func (d *MemoryDriver) Statements() []string {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	rets := make([]string, len(d.log))
	for i, s := range d.log {
		rets[i] = s.Statement
	}
	return rets
}

func (d *MemoryDriver) record(statement string, args []any) ([]orm.Params, Result, error) {
	d.mutex.Lock()
	if d.closed {
		d.mutex.Unlock()
		return nil, Result{}, ErrNotConnected
	}
	d.log = append(d.log, Statement{Driver: d.name, Statement: statement, Args: append([]any(nil), args...)})
	responder := d.responder
	d.mutex.Unlock()

	if responder == nil {
		return nil, Result{}, nil
	}
	return responder(statement, args)
}

func (d *MemoryDriver) Query(ctx context.Context, statement string, args ...any) ([]orm.Params, error) {
	rows, _, err := d.record(statement, args)
	return rows, err
}

func (d *MemoryDriver) Exec(ctx context.Context, statement string, args ...any) (Result, error) {
	_, ret, err := d.record(statement, args)
	return ret, err
}

func (d *MemoryDriver) Begin(ctx context.Context) (IDriverTx, error) {
	if _, _, err := d.record("BEGIN", nil); err != nil {
		return nil, err
	}
	return &memoryTx{driver: d}, nil
}

func (d *MemoryDriver) Pin(ctx context.Context) (ISession, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.closed {
		return nil, ErrNotConnected
	}
	return &memorySession{driver: d}, nil
}

// Pingable 返回提供原生存活检测的包装，MemoryDriver 本身不实现 IPinger。
func (d *MemoryDriver) Pingable() IDriver {
	return pingableMemoryDriver{d}
}

type pingableMemoryDriver struct {
	*MemoryDriver
}

func (d pingableMemoryDriver) Ping(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.closed {
		return ErrNotConnected
	}
	return nil
}

type memoryTx struct {
	driver *MemoryDriver
	done   bool
}

func (t *memoryTx) Query(ctx context.Context, statement string, args ...any) ([]orm.Params, error) {
	return t.driver.Query(ctx, statement, args...)
}

func (t *memoryTx) Exec(ctx context.Context, statement string, args ...any) (Result, error) {
	return t.driver.Exec(ctx, statement, args...)
}

func (t *memoryTx) Commit() error {
	if t.done {
		return errors.New("XDao.MemoryDriver: transaction has already been committed or rolled back")
	}
	t.done = true
	_, _, err := t.driver.record("COMMIT", nil)
	return err
}

func (t *memoryTx) Rollback() error {
	if t.done {
		return errors.New("XDao.MemoryDriver: transaction has already been committed or rolled back")
	}
	t.done = true
	_, _, err := t.driver.record("ROLLBACK", nil)
	return err
}

type memorySession struct {
	driver *MemoryDriver
}

func (s *memorySession) Query(ctx context.Context, statement string, args ...any) ([]orm.Params, error) {
	return s.driver.Query(ctx, statement, args...)
}

func (s *memorySession) Exec(ctx context.Context, statement string, args ...any) (Result, error) {
	return s.driver.Exec(ctx, statement, args...)
}

func (s *memorySession) Close() error { return nil }
