// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XDao

import (
	"context"
	"sync"

	"github.com/beego/beego/v2/client/orm"
	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/petermattis/goid"
)

// Tx 为主库上的事务，所有语句（包括读取）都在事务的连接上执行。
// 事务绑定了开启它的 goroutine，该 goroutine 上经由 Router 的调用也会加入此事务。
type Tx struct {
	raw     IDriverTx
	mutex   sync.Mutex
	commits []func()
}

// ExecuteOnMaster 在事务中执行查询。
func (tx *Tx) ExecuteOnMaster(ctx context.Context, statement string, args ...any) ([]orm.Params, error) {
	queryCounter.WithLabelValues(RoleMaster.String()).Inc()
	rows, err := tx.raw.Query(ctx, statement, args...)
	if err != nil {
		queryErrorCounter.WithLabelValues(RoleMaster.String()).Inc()
		XLog.Error("XDao.Tx.Query: execute failed, statement: %v, err: %v", statement, err)
		return nil, queryError(RoleMaster, statement, err)
	}
	return rows, nil
}

// ExecuteOnSlave 在事务中执行查询，事务内的读取必须能看到自身的写入，故同样使用主库。
func (tx *Tx) ExecuteOnSlave(ctx context.Context, statement string, args ...any) ([]orm.Params, error) {
	return tx.ExecuteOnMaster(ctx, statement, args...)
}

// Exec 在事务中执行写入语句。
func (tx *Tx) Exec(ctx context.Context, statement string, args ...any) (Result, error) {
	queryCounter.WithLabelValues(RoleMaster.String()).Inc()
	ret, err := tx.raw.Exec(ctx, statement, args...)
	if err != nil {
		queryErrorCounter.WithLabelValues(RoleMaster.String()).Inc()
		XLog.Error("XDao.Tx.Exec: execute failed, statement: %v, err: %v", statement, err)
		return Result{}, queryError(RoleMaster, statement, err)
	}
	return ret, nil
}

func (tx *Tx) Insert(ctx context.Context, table string, data map[string]any) (Result, error) {
	statement, args, err := buildInsert(table, data)
	if err != nil {
		return Result{}, err
	}
	return tx.Exec(ctx, statement, args...)
}

func (tx *Tx) Update(ctx context.Context, table string, data map[string]any, identifier map[string]any) (Result, error) {
	statement, args, err := buildUpdate(table, data, identifier)
	if err != nil {
		return Result{}, err
	}
	return tx.Exec(ctx, statement, args...)
}

func (tx *Tx) Delete(ctx context.Context, table string, identifier map[string]any) (Result, error) {
	statement, args, err := buildDelete(table, identifier)
	if err != nil {
		return Result{}, err
	}
	return tx.Exec(ctx, statement, args...)
}

// AfterCommit 注册提交成功后的回调，回滚时不会执行。
func (tx *Tx) AfterCommit(fn func()) {
	if fn == nil {
		return
	}
	tx.mutex.Lock()
	defer tx.mutex.Unlock()
	tx.commits = append(tx.commits, fn)
}

func (r *Router) AfterCommit(fn func()) bool {
	if tx := r.current(); tx != nil {
		tx.AfterCommit(fn)
		return true
	}
	return false
}

// RunInTransaction 在主库上开启事务并执行 work。
// work 成功时提交事务并返回其结果；work 返回错误时回滚事务，调用 onRollback（其失败仅记录日志），并原样返回 work 的错误。
// work 发生 panic 时同样回滚，然后重新抛出。同一 goroutine 不支持嵌套事务。
func (r *Router) RunInTransaction(ctx context.Context, work func(tx *Tx) (any, error), onRollback ...func(tx *Tx)) (any, error) {
	gid := goid.Get()
	if _, ok := r.txs.Load(gid); ok {
		XLog.Critical("XDao.Router.RunInTransaction: nested transaction was found: %v", XLog.Caller(1, false))
		return nil, ErrNestedTransaction
	}

	master, err := r.connect(ctx, RoleMaster)
	if err != nil {
		return nil, err
	}
	raw, err := master.Begin(ctx)
	if err != nil {
		XLog.Error("XDao.Router.RunInTransaction: begin failed: %v", err)
		return nil, queryError(RoleMaster, "BEGIN", err)
	}

	tx := &Tx{raw: raw}
	r.txs.Store(gid, tx)
	defer r.txs.Delete(gid)

	panicked := true
	defer func() {
		if panicked {
			r.rollback(gid, tx, onRollback)
		}
	}()

	result, err := work(tx)
	panicked = false
	if err != nil {
		r.rollback(gid, tx, onRollback)
		return nil, err
	}

	if err := raw.Commit(); err != nil {
		txCounter.WithLabelValues("error").Inc()
		XLog.Error("XDao.Router.RunInTransaction: commit failed: %v", err)
		return nil, queryError(RoleMaster, "COMMIT", err)
	}
	txCounter.WithLabelValues("commit").Inc()
	r.txs.Delete(gid)

	tx.mutex.Lock()
	commits := tx.commits
	tx.commits = nil
	tx.mutex.Unlock()
	for _, fn := range commits {
		fn()
	}
	return result, nil
}

// rollback 回滚事务并依次调用回滚回调，回滚或回调的失败仅记录日志，不会替换原始错误。
func (r *Router) rollback(gid int64, tx *Tx, onRollback []func(tx *Tx)) {
	txCounter.WithLabelValues("rollback").Inc()
	if err := tx.raw.Rollback(); err != nil {
		XLog.Warn("XDao.Router.RunInTransaction: rollback failed: %v", err)
	}
	r.txs.Delete(gid) // 回调中的调用不再加入已回滚的事务

	for _, fn := range onRollback {
		if fn == nil {
			continue
		}
		func() {
			defer func() {
				if err := recover(); err != nil {
					XLog.Warn("XDao.Router.RunInTransaction: rollback hook panic: %v", err)
				}
			}()
			fn(tx)
		}()
	}
}

// InTransaction 为 RunInTransaction 的泛型版本，返回类型化的结果。
func InTransaction[T any](ctx context.Context, r IRouter, work func(tx *Tx) (T, error), onRollback ...func(tx *Tx)) (T, error) {
	var zero T
	ret, err := r.RunInTransaction(ctx, func(tx *Tx) (any, error) {
		return work(tx)
	}, onRollback...)
	if err != nil {
		return zero, err
	}
	if v, ok := ret.(T); ok {
		return v, nil
	}
	return zero, nil
}
