// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XDao

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XPrefs"
)

const (
	prefsDaoSource    = "Dao/Source/"
	prefsDaoAddr      = "Addr"
	prefsDaoPool      = "Pool"
	prefsDaoConn      = "Conn"
	prefsDaoKeepalive = "Keepalive"
	prefsDaoSlave     = "Slave"
)

// routers 存储了根据偏好设置创建的连接路由，键为数据源名称。
var routers sync.Map

func init() {
	initDao(XPrefs.Asset())
}

// initDao 读取 Dao/Source/<类型>/<名称> 的配置并创建连接路由，连接在首次使用时才建立。
func initDao(prefs XPrefs.IBase) {
	if prefs == nil {
		XLog.Panic("XDao.Init: prefs is nil.")
		return
	}

	for _, key := range prefs.Keys() {
		if !strings.HasPrefix(key, prefsDaoSource) {
			continue
		}
		parts := strings.Split(key, "/")
		if len(parts) < 4 || parts[2] == "" || parts[3] == "" {
			XLog.Panic("XDao.Init: invalid prefs key %v.", key)
			return
		}

		daoType := strings.ToLower(parts[2])
		daoName := parts[3]

		base, ok := prefs.Get(key).(XPrefs.IBase)
		if !ok || base == nil {
			XLog.Error("XDao.Init: invalid config for %v", key)
			continue
		}

		master := newSourceDriver(daoName, daoType, base)
		var slaves []IDriver
		if sbase, ok := base.Get(prefsDaoSlave).(XPrefs.IBase); ok && sbase != nil {
			skeys := sbase.Keys()
			sort.Strings(skeys)
			for _, skey := range skeys {
				if rbase, ok := sbase.Get(skey).(XPrefs.IBase); ok && rbase != nil {
					slaves = append(slaves, newSourceDriver(daoName+"/"+skey, daoType, rbase))
				} else {
					XLog.Error("XDao.Init: invalid slave config for %v/%v", key, skey)
				}
			}
		}

		router := NewRouter(master, slaves...)
		if old, loaded := routers.Swap(daoName, router); loaded {
			old.(*Router).Close()
		}
		if keepalive := base.GetInt(prefsDaoKeepalive, 0); keepalive > 0 {
			router.Keepalive(time.Duration(keepalive) * time.Second)
		}
		XLog.Notice("XDao.Init: source %v(%v) has been loaded with %v slave(s).", daoName, daoType, len(slaves))
	}
}

func newSourceDriver(alias, typ string, base XPrefs.IBase) *OrmDriver {
	return NewOrmDriver(alias, sourceDriverName(typ), base.GetString(prefsDaoAddr),
		base.GetInt(prefsDaoPool, 0), base.GetInt(prefsDaoConn, 0))
}

// sourceDriverName 将偏好设置中的类型转换为 database/sql 注册的驱动名称。
func sourceDriverName(typ string) string {
	switch typ {
	case "postgresql", "pgsql":
		return "postgres"
	case "sqlite":
		return "sqlite3"
	default:
		return typ
	}
}

// Open 返回名称对应的连接路由，未配置时返回 nil。
func Open(name string) *Router {
	if tmp, ok := routers.Load(name); ok {
		return tmp.(*Router)
	}
	return nil
}
