// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XDao

import (
	"context"
	"time"

	"github.com/beego/beego/v2/client/orm"
	"github.com/eframework-org/GO.UTIL/XLog"
)

// AcquireLock 在主库上获取命名锁并返回是否获取成功。
// wait 为可选的等待时长，作为参数传递给锁原语（如 GET_LOCK 的超时秒数），本层不做超时及重试处理。
//
// MySQL 的命名锁归属于会话，故获取成功后会占用一个独占会话，直至 ReleaseLock 在同一会话上释放。
// 已持有的锁再次获取时在原会话上执行。
// 若当前 goroutine 处于事务中，则在事务的连接上执行。
func (r *Router) AcquireLock(ctx context.Context, name string, wait ...time.Duration) (bool, error) {
	seconds := 0
	if len(wait) > 0 && wait[0] > 0 {
		seconds = int(wait[0] / time.Second)
	}

	if tx := r.current(); tx != nil {
		d := dialectOf(r.master.Type())
		if d.lock == "" {
			return false, ErrLockUnsupported
		}
		rows, err := tx.ExecuteOnMaster(ctx, d.lock, lockArgs(d, name, seconds)...)
		return lockResult("acquire", rows, "getLock", err)
	}

	master, err := r.connect(ctx, RoleMaster)
	if err != nil {
		return false, err
	}
	d := dialectOf(master.Type())
	if d.lock == "" {
		return false, ErrLockUnsupported
	}

	r.lockMutex.Lock()
	held := r.locks[name]
	r.lockMutex.Unlock()
	if held != nil {
		// 重复获取在持有该锁的会话上执行，一次 ReleaseLock 即可释放
		queryCounter.WithLabelValues(RoleMaster.String()).Inc()
		rows, err := held.Query(ctx, d.lock, lockArgs(d, name, seconds)...)
		if err != nil {
			queryErrorCounter.WithLabelValues(RoleMaster.String()).Inc()
			XLog.Error("XDao.Router.AcquireLock: acquire lock %v failed: %v", name, err)
			return lockResult("acquire", nil, "getLock", queryError(RoleMaster, d.lock, err))
		}
		return lockResult("acquire", rows, "getLock", nil)
	}

	session, err := master.Pin(ctx)
	if err != nil {
		lockCounter.WithLabelValues("acquire", "error").Inc()
		return false, queryError(RoleMaster, d.lock, err)
	}
	queryCounter.WithLabelValues(RoleMaster.String()).Inc()
	rows, err := session.Query(ctx, d.lock, lockArgs(d, name, seconds)...)
	if err != nil {
		queryErrorCounter.WithLabelValues(RoleMaster.String()).Inc()
		XLog.Error("XDao.Router.AcquireLock: acquire lock %v failed: %v", name, err)
		closeLockSession(name, session)
		return lockResult("acquire", nil, "getLock", queryError(RoleMaster, d.lock, err))
	}
	ok, _ := lockResult("acquire", rows, "getLock", nil)
	if !ok {
		closeLockSession(name, session)
		return false, nil
	}

	r.lockMutex.Lock()
	defer r.lockMutex.Unlock()
	if old := r.locks[name]; old != nil {
		// 并发获取时仅保留一个会话
		closeLockSession(name, session)
		return true, nil
	}
	r.locks[name] = session
	return true, nil
}

// ReleaseLock 在主库上释放命名锁并返回是否释放成功。
// 若锁由本路由持有，则在获取时的会话上释放并归还会话；否则直接在主库上执行释放语句。
func (r *Router) ReleaseLock(ctx context.Context, name string) (bool, error) {
	if tx := r.current(); tx != nil {
		d := dialectOf(r.master.Type())
		if d.release == "" {
			return false, ErrLockUnsupported
		}
		rows, err := tx.ExecuteOnMaster(ctx, d.release, name)
		return lockResult("release", rows, "releaseLock", err)
	}

	master, err := r.connect(ctx, RoleMaster)
	if err != nil {
		return false, err
	}
	d := dialectOf(master.Type())
	if d.release == "" {
		return false, ErrLockUnsupported
	}

	r.lockMutex.Lock()
	session := r.locks[name]
	delete(r.locks, name)
	r.lockMutex.Unlock()

	if session == nil {
		rows, err := r.ExecuteOnMaster(ctx, d.release, name)
		return lockResult("release", rows, "releaseLock", err)
	}

	defer closeLockSession(name, session)
	queryCounter.WithLabelValues(RoleMaster.String()).Inc()
	rows, err := session.Query(ctx, d.release, name)
	if err != nil {
		queryErrorCounter.WithLabelValues(RoleMaster.String()).Inc()
		XLog.Error("XDao.Router.ReleaseLock: release lock %v failed: %v", name, err)
		return lockResult("release", nil, "releaseLock", queryError(RoleMaster, d.release, err))
	}
	return lockResult("release", rows, "releaseLock", nil)
}

// closeLockSession 归还锁会话，失败时仅记录日志。
func closeLockSession(name string, session ISession) {
	if err := session.Close(); err != nil {
		XLog.Warn("XDao.Router: close session of lock %v failed: %v", name, err)
	}
}

func lockArgs(d dialect, name string, seconds int) []any {
	if d.wait {
		return []any{name, seconds}
	}
	return []any{name}
}

// lockResult 读取锁语句返回的列值并记录统计。
func lockResult(action string, rows []orm.Params, column string, err error) (bool, error) {
	if err != nil {
		lockCounter.WithLabelValues(action, "error").Inc()
		return false, err
	}
	ok := false
	if len(rows) > 0 {
		ok = toBool(rows[0][column])
	}
	if ok {
		lockCounter.WithLabelValues(action, "true").Inc()
	} else {
		lockCounter.WithLabelValues(action, "false").Inc()
	}
	return ok, nil
}
