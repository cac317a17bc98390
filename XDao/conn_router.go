// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XDao

import (
	"context"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/beego/beego/v2/client/orm"
	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/petermattis/goid"
)

// IRouter 定义了主从连接的路由：写入、锁及需要读取自身写入的查询必须使用主库，普通读取可以使用从库。
type IRouter interface {
	// ExecuteOnMaster 在主库上执行查询，未连接时先连接主库。
	ExecuteOnMaster(ctx context.Context, statement string, args ...any) ([]orm.Params, error)

	// ExecuteOnSlave 在从库上执行查询，不会强制连接主库。
	ExecuteOnSlave(ctx context.Context, statement string, args ...any) ([]orm.Params, error)

	// Exec 在主库上执行写入语句。
	Exec(ctx context.Context, statement string, args ...any) (Result, error)

	// Insert 校验字段名称后在主库上插入一行数据。
	Insert(ctx context.Context, table string, data map[string]any) (Result, error)

	// Update 校验字段名称后在主库上更新符合 identifier 的数据。
	Update(ctx context.Context, table string, data map[string]any, identifier map[string]any) (Result, error)

	// Delete 校验字段名称后在主库上删除符合 identifier 的数据。
	Delete(ctx context.Context, table string, identifier map[string]any) (Result, error)

	// ValidateFieldNames 校验字段名称仅包含字母、数字和下划线。
	ValidateFieldNames(names []string) error

	// Ping 检测连接是否存活，任何错误都只会返回 false。
	Ping(ctx context.Context) bool

	// AcquireLock 在主库上获取命名锁，wait 为锁原语的等待时长。
	AcquireLock(ctx context.Context, name string, wait ...time.Duration) (bool, error)

	// ReleaseLock 在主库上释放命名锁。
	ReleaseLock(ctx context.Context, name string) (bool, error)

	// RunInTransaction 在主库的事务中执行 work，失败时回滚并返回 work 的原始错误。
	RunInTransaction(ctx context.Context, work func(tx *Tx) (any, error), onRollback ...func(tx *Tx)) (any, error)

	// AfterCommit 若当前 goroutine 处于事务中，则注册提交后的回调并返回 true。
	AfterCommit(fn func()) bool

	// Transacting 返回当前 goroutine 是否处于事务中。
	Transacting() bool
}

var _ IRouter = (*Router)(nil)

// Router 为 IRouter 的实现，持有一个主库驱动和一组从库驱动，按需懒连接。
type Router struct {
	master IDriver
	slaves []IDriver

	mutex     sync.Mutex
	connected bool          // 主库是否已连接
	slave     IDriver       // 已连接的从库，为空表示未连接
	stop      chan struct{} // 存活检测的停止信号

	txs sync.Map // 当前活跃的事务，键为 goroutine ID，值为 *Tx

	lockMutex sync.Mutex
	locks     map[string]ISession // 已持有的命名锁及其独占会话
}

// NewRouter 创建连接路由。slaves 为空时，从库路径将使用主库驱动。
func NewRouter(master IDriver, slaves ...IDriver) *Router {
	if master == nil {
		XLog.Panic("XDao.NewRouter: master driver is nil.")
		return nil
	}
	return &Router{master: master, slaves: slaves, locks: make(map[string]ISession)}
}

// Master 返回主库驱动。
func (r *Router) Master() IDriver { return r.master }

// Connected 返回指定角色是否已连接。
func (r *Router) Connected(role Role) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if role == RoleMaster {
		return r.connected
	}
	return r.slave != nil
}

// Reset 清除连接状态，下一次调用时将重新连接。
func (r *Router) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.connected = false
	r.slave = nil
}

// connect 按需连接指定角色并返回其驱动，每个角色仅连接一次。
func (r *Router) connect(ctx context.Context, role Role) (IDriver, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if role == RoleSlave && len(r.slaves) > 0 {
		if r.slave != nil {
			return r.slave, nil
		}
		slave := r.slaves[rand.IntN(len(r.slaves))]
		if err := slave.Connect(ctx); err != nil {
			XLog.Error("XDao.Router.Connect: connect to slave %v failed: %v", slave.Name(), err)
			return nil, &ConnectError{Role: RoleSlave, Err: err}
		}
		r.slave = slave
		XLog.Notice("XDao.Router.Connect: slave %v has been connected.", slave.Name())
		return slave, nil
	}

	if !r.connected {
		if err := r.master.Connect(ctx); err != nil {
			XLog.Error("XDao.Router.Connect: connect to master %v failed: %v", r.master.Name(), err)
			return nil, &ConnectError{Role: role, Err: err}
		}
		r.connected = true
		XLog.Notice("XDao.Router.Connect: master %v has been connected.", r.master.Name())
	}
	return r.master, nil
}

// current 返回当前 goroutine 绑定的事务。
func (r *Router) current() *Tx {
	if tmp, ok := r.txs.Load(goid.Get()); ok {
		return tmp.(*Tx)
	}
	return nil
}

func (r *Router) Transacting() bool { return r.current() != nil }

func (r *Router) query(ctx context.Context, role Role, statement string, args []any) ([]orm.Params, error) {
	if tx := r.current(); tx != nil {
		return tx.ExecuteOnMaster(ctx, statement, args...)
	}
	driver, err := r.connect(ctx, role)
	if err != nil {
		return nil, err
	}
	queryCounter.WithLabelValues(role.String()).Inc()
	rows, err := driver.Query(ctx, statement, args...)
	if err != nil {
		queryErrorCounter.WithLabelValues(role.String()).Inc()
		XLog.Error("XDao.Router.Query: execute on %v failed, statement: %v, err: %v", role, statement, err)
		return nil, queryError(role, statement, err)
	}
	return rows, nil
}

func (r *Router) ExecuteOnMaster(ctx context.Context, statement string, args ...any) ([]orm.Params, error) {
	return r.query(ctx, RoleMaster, statement, args)
}

func (r *Router) ExecuteOnSlave(ctx context.Context, statement string, args ...any) ([]orm.Params, error) {
	return r.query(ctx, RoleSlave, statement, args)
}

func (r *Router) Exec(ctx context.Context, statement string, args ...any) (Result, error) {
	if tx := r.current(); tx != nil {
		return tx.Exec(ctx, statement, args...)
	}
	driver, err := r.connect(ctx, RoleMaster)
	if err != nil {
		return Result{}, err
	}
	queryCounter.WithLabelValues(RoleMaster.String()).Inc()
	ret, err := driver.Exec(ctx, statement, args...)
	if err != nil {
		queryErrorCounter.WithLabelValues(RoleMaster.String()).Inc()
		XLog.Error("XDao.Router.Exec: execute on master failed, statement: %v, err: %v", statement, err)
		return Result{}, queryError(RoleMaster, statement, err)
	}
	return ret, nil
}

func (r *Router) Insert(ctx context.Context, table string, data map[string]any) (Result, error) {
	statement, args, err := buildInsert(table, data)
	if err != nil {
		return Result{}, err
	}
	return r.Exec(ctx, statement, args...)
}

func (r *Router) Update(ctx context.Context, table string, data map[string]any, identifier map[string]any) (Result, error) {
	statement, args, err := buildUpdate(table, data, identifier)
	if err != nil {
		return Result{}, err
	}
	return r.Exec(ctx, statement, args...)
}

func (r *Router) Delete(ctx context.Context, table string, identifier map[string]any) (Result, error) {
	statement, args, err := buildDelete(table, identifier)
	if err != nil {
		return Result{}, err
	}
	return r.Exec(ctx, statement, args...)
}

func (r *Router) ValidateFieldNames(names []string) error {
	return ValidateFieldNames(names)
}

// Ping 检测从库路径的连接是否存活。驱动实现了 IPinger 时使用原生检测，否则执行方言的空查询。
// 连接失败、执行失败甚至 panic 均只会返回 false。
func (r *Router) Ping(ctx context.Context) (alive bool) {
	defer func() {
		if err := recover(); err != nil {
			XLog.Warn("XDao.Router.Ping: recovered from %v.", err)
			alive = false
		}
	}()

	driver, err := r.connect(ctx, RoleSlave)
	if err != nil {
		return false
	}
	if pinger, ok := driver.(IPinger); ok {
		return pinger.Ping(ctx) == nil
	}
	_, err = driver.Query(ctx, dialectOf(driver.Type()).dummy)
	return err == nil
}

// Keepalive 启动后台存活检测，检测失败时清除连接状态，使下一次调用重新连接。
// 重复调用或 interval 小于等于 0 时不生效，调用 Close 停止检测。
func (r *Router) Keepalive(interval time.Duration) {
	if interval <= 0 {
		return
	}
	r.mutex.Lock()
	if r.stop != nil {
		r.mutex.Unlock()
		return
	}
	stop := make(chan struct{})
	r.stop = stop
	r.mutex.Unlock()

	runKeepalive(r, interval, stop)
}

// Close 停止存活检测，释放所有命名锁的会话并清除连接状态。
func (r *Router) Close() {
	r.mutex.Lock()
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
	r.mutex.Unlock()

	r.lockMutex.Lock()
	for name, session := range r.locks {
		closeLockSession(name, session)
		delete(r.locks, name)
	}
	r.lockMutex.Unlock()

	r.Reset()
}

// ValidateFieldNames 校验字段名称，去除下划线后必须是非空的字母和数字组合。
// 字段名称无法像值一样参数化，故必须在语句到达数据库之前拦截。
func ValidateFieldNames(names []string) error {
	for _, name := range names {
		if !validFieldName(name) {
			return &FieldNameError{Field: name}
		}
	}
	return nil
}

func validFieldName(name string) bool {
	alnum := 0
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			alnum++
		case c == '_':
		default:
			return false
		}
	}
	return alnum > 0
}

// sortedKeys 返回排序后的键，保证生成的语句是确定的。
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// buildWhere 构造 AND 连接的等值条件。
func buildWhere(identifier map[string]any) (string, []any, error) {
	if len(identifier) == 0 {
		return "", nil, ErrEmptyIdentifier
	}
	keys := sortedKeys(identifier)
	if err := ValidateFieldNames(keys); err != nil {
		return "", nil, err
	}
	conds := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		conds[i] = k + " = ?"
		args[i] = identifier[k]
	}
	return strings.Join(conds, " AND "), args, nil
}

func buildInsert(table string, data map[string]any) (string, []any, error) {
	if len(data) == 0 {
		return "", nil, ErrEmptyData
	}
	keys := sortedKeys(data)
	if err := ValidateFieldNames(keys); err != nil {
		return "", nil, err
	}
	marks := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		marks[i] = "?"
		args[i] = data[k]
	}
	statement := "INSERT INTO " + table + " (" + strings.Join(keys, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	return statement, args, nil
}

func buildUpdate(table string, data map[string]any, identifier map[string]any) (string, []any, error) {
	if len(data) == 0 {
		return "", nil, ErrEmptyData
	}
	keys := sortedKeys(data)
	if err := ValidateFieldNames(keys); err != nil {
		return "", nil, err
	}
	where, whereArgs, err := buildWhere(identifier)
	if err != nil {
		return "", nil, err
	}
	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys)+len(whereArgs))
	for i, k := range keys {
		sets[i] = k + " = ?"
		args = append(args, data[k])
	}
	args = append(args, whereArgs...)
	return "UPDATE " + table + " SET " + strings.Join(sets, ", ") + " WHERE " + where, args, nil
}

func buildDelete(table string, identifier map[string]any) (string, []any, error) {
	where, args, err := buildWhere(identifier)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + table + " WHERE " + where, args, nil
}
