//go:build linux

package machine

import (
	"golang.org/x/sys/unix"

	"github.com/arloliu/go-seamctl/logger"
)

// raisePriority sets the nice value of the calling thread. The thread must be locked to its
// goroutine.
func raisePriority(prio int, l logger.Logger) {
	tid := unix.Gettid()
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, prio); err != nil {
		l.Warn("failed to raise sampler priority", "priority", prio, "tid", tid, "error", err)
		return
	}
	l.Debug("sampler priority set", "priority", prio, "tid", tid)
}
