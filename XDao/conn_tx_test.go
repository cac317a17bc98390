// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XDao

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/beego/beego/v2/client/orm"
	"github.com/stretchr/testify/assert"
)

// TestRunInTransaction 测试事务的提交及回滚。
func TestRunInTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		master := NewMemoryDriver("master")
		slave := NewMemoryDriver("slave")
		router := NewRouter(master, slave)

		ret, err := router.RunInTransaction(ctx, func(tx *Tx) (any, error) {
			if _, err := tx.Insert(ctx, "order", map[string]any{"user": 1}); err != nil {
				return nil, err
			}
			return "done", nil
		})
		assert.Nil(t, err, "事务不应当返回错误。")
		assert.Equal(t, "done", ret, "应当返回 work 的结果。")
		assert.Equal(t, []string{"BEGIN", "INSERT INTO order (user) VALUES (?)", "COMMIT"}, master.Statements())
		assert.Empty(t, slave.Statements())
		assert.False(t, router.Transacting(), "事务结束后不应当处于事务中。")
	})

	t.Run("RollbackReturnsOriginalError", func(t *testing.T) {
		master := NewMemoryDriver("master")
		router := NewRouter(master)
		workErr := errors.New("insufficient balance")

		var hooked *Tx
		ret, err := router.RunInTransaction(ctx, func(tx *Tx) (any, error) {
			tx.Exec(ctx, "UPDATE account SET balance = balance - 1")
			return "partial", workErr
		}, func(tx *Tx) {
			hooked = tx
		})
		assert.Same(t, workErr, err, "应当原样返回 work 的错误。")
		assert.Nil(t, ret, "回滚时不应当返回结果。")
		assert.NotNil(t, hooked, "回滚回调应当被调用。")
		assert.Equal(t, []string{"BEGIN", "UPDATE account SET balance = balance - 1", "ROLLBACK"}, master.Statements())
	})

	t.Run("RollbackHookPanic", func(t *testing.T) {
		router := NewRouter(NewMemoryDriver("master"))
		workErr := errors.New("work failed")

		called := false
		_, err := router.RunInTransaction(ctx, func(tx *Tx) (any, error) {
			return nil, workErr
		}, func(tx *Tx) {
			panic("hook failed")
		}, func(tx *Tx) {
			called = true
		})
		assert.Same(t, workErr, err, "回滚回调失败不应当替换原始错误。")
		assert.True(t, called, "后续的回滚回调仍应当被调用。")
	})

	t.Run("RollbackFailure", func(t *testing.T) {
		master := NewMemoryDriver("master").WithResponder(func(statement string, args []any) ([]orm.Params, Result, error) {
			if statement == "ROLLBACK" {
				return nil, Result{}, errors.New("connection lost")
			}
			return nil, Result{}, nil
		})
		router := NewRouter(master)
		workErr := errors.New("work failed")

		_, err := router.RunInTransaction(ctx, func(tx *Tx) (any, error) {
			return nil, workErr
		})
		assert.Same(t, workErr, err, "回滚失败不应当替换原始错误。")
	})

	t.Run("WorkPanic", func(t *testing.T) {
		master := NewMemoryDriver("master")
		router := NewRouter(master)

		hooked := false
		assert.Panics(t, func() {
			router.RunInTransaction(ctx, func(tx *Tx) (any, error) {
				panic("work crashed")
			}, func(tx *Tx) {
				hooked = true
			})
		}, "work 的 panic 应当被重新抛出。")
		assert.True(t, hooked, "panic 时应当调用回滚回调。")
		assert.Equal(t, []string{"BEGIN", "ROLLBACK"}, master.Statements())
		assert.False(t, router.Transacting())
	})

	t.Run("BeginFailure", func(t *testing.T) {
		master := NewMemoryDriver("master").WithResponder(func(statement string, args []any) ([]orm.Params, Result, error) {
			if statement == "BEGIN" {
				return nil, Result{}, errors.New("too many connections")
			}
			return nil, Result{}, nil
		})
		router := NewRouter(master)

		called := false
		_, err := router.RunInTransaction(ctx, func(tx *Tx) (any, error) {
			called = true
			return nil, nil
		})
		var qe *QueryError
		assert.True(t, errors.As(err, &qe), "开启失败应当返回 QueryError。")
		assert.Equal(t, "BEGIN", qe.Statement)
		assert.False(t, called, "开启失败时不应当执行 work。")
	})

	t.Run("CommitFailure", func(t *testing.T) {
		master := NewMemoryDriver("master").WithResponder(func(statement string, args []any) ([]orm.Params, Result, error) {
			if statement == "COMMIT" {
				return nil, Result{}, errors.New("deadlock")
			}
			return nil, Result{}, nil
		})
		router := NewRouter(master)

		committed := false
		_, err := router.RunInTransaction(ctx, func(tx *Tx) (any, error) {
			tx.AfterCommit(func() { committed = true })
			return nil, nil
		})
		var qe *QueryError
		assert.True(t, errors.As(err, &qe), "提交失败应当返回 QueryError。")
		assert.Equal(t, "COMMIT", qe.Statement)
		assert.False(t, committed, "提交失败时不应当调用提交回调。")
	})

	t.Run("Nested", func(t *testing.T) {
		router := NewRouter(NewMemoryDriver("master"))

		var nested error
		_, err := router.RunInTransaction(ctx, func(tx *Tx) (any, error) {
			_, nested = router.RunInTransaction(ctx, func(tx *Tx) (any, error) { return nil, nil })
			return nil, nil
		})
		assert.Nil(t, err)
		assert.ErrorIs(t, nested, ErrNestedTransaction, "嵌套事务应当返回 ErrNestedTransaction。")
	})

	t.Run("RouterCallsJoin", func(t *testing.T) {
		master := NewMemoryDriver("master")
		slave := NewMemoryDriver("slave")
		router := NewRouter(master, slave)

		router.RunInTransaction(ctx, func(tx *Tx) (any, error) {
			assert.True(t, router.Transacting(), "work 中应当处于事务中。")
			router.ExecuteOnSlave(ctx, "SELECT * FROM account")
			router.Insert(ctx, "log", map[string]any{"msg": "x"})
			return nil, nil
		})
		assert.Equal(t, []string{"BEGIN", "SELECT * FROM account", "INSERT INTO log (msg) VALUES (?)", "COMMIT"}, master.Statements(),
			"事务中经由路由的调用应当加入事务。")
		assert.Empty(t, slave.Statements(), "事务中的读取不应当使用从库。")
	})

	t.Run("OtherGoroutineDoesNotJoin", func(t *testing.T) {
		master := NewMemoryDriver("master")
		slave := NewMemoryDriver("slave")
		router := NewRouter(master, slave)

		router.RunInTransaction(ctx, func(tx *Tx) (any, error) {
			wg := sync.WaitGroup{}
			wg.Add(1)
			go func() {
				defer wg.Done()
				router.ExecuteOnSlave(ctx, "SELECT 1")
			}()
			wg.Wait()
			return nil, nil
		})
		assert.Equal(t, []string{"SELECT 1"}, slave.Statements(), "其他 goroutine 的调用不应当加入事务。")
	})

	t.Run("AfterCommit", func(t *testing.T) {
		router := NewRouter(NewMemoryDriver("master"))
		assert.False(t, router.AfterCommit(func() {}), "事务外注册应当返回 false。")

		var order []string
		router.RunInTransaction(ctx, func(tx *Tx) (any, error) {
			assert.True(t, router.AfterCommit(func() {
				order = append(order, "first")
				assert.False(t, router.Transacting(), "提交回调中不应当处于事务中。")
			}))
			tx.AfterCommit(func() { order = append(order, "second") })
			assert.Empty(t, order, "提交前不应当调用提交回调。")
			return nil, nil
		})
		assert.Equal(t, []string{"first", "second"}, order, "提交后应当按注册顺序调用回调。")

		called := false
		router.RunInTransaction(ctx, func(tx *Tx) (any, error) {
			tx.AfterCommit(func() { called = true })
			return nil, errors.New("abort")
		})
		assert.False(t, called, "回滚时不应当调用提交回调。")
	})

	t.Run("ConnectFailure", func(t *testing.T) {
		master := NewMemoryDriver("master")
		master.Close()
		router := NewRouter(master)

		_, err := router.RunInTransaction(ctx, func(tx *Tx) (any, error) { return nil, nil })
		var ce *ConnectError
		assert.True(t, errors.As(err, &ce), "连接失败应当返回 ConnectError。")
	})
}

// TestInTransaction 测试泛型的事务封装。
func TestInTransaction(t *testing.T) {
	ctx := context.Background()
	master := NewMemoryDriver("master").WithResponder(func(statement string, args []any) ([]orm.Params, Result, error) {
		return nil, Result{RowsAffected: 1, LastInsertID: 42}, nil
	})
	router := NewRouter(master)

	id, err := InTransaction(ctx, router, func(tx *Tx) (int64, error) {
		ret, err := tx.Insert(ctx, "order", map[string]any{"user": 1})
		return ret.LastInsertID, err
	})
	assert.Nil(t, err)
	assert.Equal(t, int64(42), id, "应当返回类型化的结果。")

	id, err = InTransaction(ctx, router, func(tx *Tx) (int64, error) {
		return 1, errors.New("abort")
	})
	assert.NotNil(t, err)
	assert.Equal(t, int64(0), id, "失败时应当返回零值。")
}
