// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XDao

import (
	"context"
	"testing"

	"github.com/eframework-org/GO.UTIL/XPrefs"
	"github.com/stretchr/testify/assert"
)

// TestDaoInit 测试根据偏好设置创建连接路由。
func TestDaoInit(t *testing.T) {
	t.Run("MasterAndSlaves", func(t *testing.T) {
		prefs := XPrefs.New().Set("Dao/Source/SQLite3/XDaoInit", XPrefs.New().
			Set(prefsDaoAddr, "file:xdao_init_test?mode=memory&cache=shared").
			Set(prefsDaoPool, 1).
			Set(prefsDaoConn, 2).
			Set(prefsDaoSlave, XPrefs.New().
				Set("R2", XPrefs.New().Set(prefsDaoAddr, "file:xdao_init_test?mode=memory&cache=shared")).
				Set("R1", XPrefs.New().Set(prefsDaoAddr, "file:xdao_init_test?mode=memory&cache=shared"))))
		initDao(prefs)

		router := Open("XDaoInit")
		assert.NotNil(t, router, "应当创建连接路由。")
		defer router.Close()

		assert.Equal(t, "XDaoInit", router.Master().Name(), "主库的别名应当为数据源名称。")
		assert.Len(t, router.slaves, 2, "应当创建两个从库。")
		assert.Equal(t, "XDaoInit/R1", router.slaves[0].Name(), "从库应当按名称排序。")
		assert.Equal(t, "XDaoInit/R2", router.slaves[1].Name())
		assert.False(t, router.Connected(RoleMaster), "初始化时不应当建立连接。")

		assert.True(t, router.Ping(context.Background()), "从库应当可以连接。")
		assert.False(t, router.Connected(RoleMaster), "存活检测不应当连接主库。")
		assert.True(t, router.Connected(RoleSlave))
	})

	t.Run("Reload", func(t *testing.T) {
		prefs := XPrefs.New().Set("Dao/Source/SQLite3/XDaoReload", XPrefs.New().
			Set(prefsDaoAddr, "file:xdao_reload_test?mode=memory&cache=shared"))
		initDao(prefs)
		first := Open("XDaoReload")
		initDao(prefs)
		second := Open("XDaoReload")
		assert.NotSame(t, first, second, "重复加载应当替换连接路由。")
		second.Close()
	})

	t.Run("IgnoreOtherKeys", func(t *testing.T) {
		initDao(XPrefs.New().Set("Orm/Source/MySQL/Other", XPrefs.New()).Set(prefsCacheStrategy, "memory"))
		assert.Nil(t, Open("Other"), "其他前缀的配置不应当被加载。")
	})

	t.Run("OpenUnknown", func(t *testing.T) {
		assert.Nil(t, Open("Unknown"), "未配置的数据源应当返回 nil。")
	})

	tests := []struct {
		name  string
		prefs XPrefs.IBase
	}{
		{name: "NilPrefs", prefs: nil},
		{name: "InvalidKey", prefs: XPrefs.New().Set("Dao/Source/MySQL", XPrefs.New())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, func() { initDao(tt.prefs) }, "非法的配置应当 panic。")
		})
	}
}

// TestSourceDriverName 测试数据库类型到驱动名称的转换。
func TestSourceDriverName(t *testing.T) {
	assert.Equal(t, "mysql", sourceDriverName("mysql"))
	assert.Equal(t, "postgres", sourceDriverName("postgresql"))
	assert.Equal(t, "sqlite3", sourceDriverName("sqlite"))
	assert.Equal(t, "sqlite3", sourceDriverName("sqlite3"))
}
