//go:build !linux

package machine

import "github.com/arloliu/go-seamctl/logger"

func raisePriority(prio int, l logger.Logger) {
	l.Debug("thread priority not supported on this platform", "priority", prio)
}
