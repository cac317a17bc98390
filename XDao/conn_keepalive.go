// Copyright (c) 2025 EFramework Organization. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package XDao

import (
	"context"
	"sync"
	"time"

	"github.com/eframework-org/GO.UTIL/XLog"
	"github.com/eframework-org/GO.UTIL/XLoom"
	"github.com/illumitacit/gostd/quit"
)

// runKeepalive 启动存活检测线程，直至 stop 被关闭或进程退出。
func runKeepalive(r *Router, interval time.Duration, stop chan struct{}) {
	wg := sync.WaitGroup{}
	wg.Add(1)
	XLoom.RunAsyncT2(func(interval time.Duration, doneOnce *sync.Once) {
		quit.GetWaiter().Add(1)
		defer quit.GetWaiter().Done()
		doneOnce.Do(func() { wg.Done() }) // 确保线程启动完成

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		alive := true
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				ok := r.Ping(ctx)
				cancel()
				if ok != alive {
					if ok {
						XLog.Notice("XDao.Keepalive: %v is alive again.", r.master.Name())
					} else {
						XLog.Error("XDao.Keepalive: %v is not alive, connection state has been reset.", r.master.Name())
					}
				}
				if !ok {
					r.Reset()
				}
				alive = ok
			case <-stop:
				XLog.Notice("XDao.Keepalive: %v has been stopped.", r.master.Name())
				return
			case <-quit.GetQuitChannel():
				XLog.Notice("XDao.Keepalive: %v receive signal of QUIT.", r.master.Name())
				return
			}
		}
	}, interval, &sync.Once{}, false)
	wg.Wait()
}
