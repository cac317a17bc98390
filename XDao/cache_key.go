// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XDao

import (
	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XObject"
)

// cacheKey 构造缓存键，格式为 dao:<[数据表, 方法, 参数] 的 JSON>。
// 数据表及方法作为 JSON 字符串编码，名称中的分隔符不会与其他键混淆。
// JSON 编码对 map 的键排序，相同的参数总是得到相同的键。
// 参数无法编码（如包含函数或通道）时返回 false，此次调用将不参与缓存。
func cacheKey(dao IDao, method string, args []any) (string, bool) {
	if args == nil {
		args = []any{}
	}
	data, err := XObject.ToJson([]any{dao.Table(), method, args})
	if err != nil {
		XLog.Warn("XDao.cacheKey: encode arguments of %v.%v failed: %v", dao.Table(), method, err)
		return "", false
	}
	return "dao:" + data, true
}
