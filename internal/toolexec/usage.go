package toolexec

import (
	"os"
	"runtime"
	"syscall"
	"time"
)

// Usage is the resource accounting of a finished tool process.
type Usage struct {
	UserTime   time.Duration
	SystemTime time.Duration
	MaxRSSKB   int64
}

// CPU is user plus system time.
func (u Usage) CPU() time.Duration {
	return u.UserTime + u.SystemTime
}

func usageOf(ps *os.ProcessState) Usage {
	if ps == nil {
		return Usage{}
	}
	u := Usage{UserTime: ps.UserTime(), SystemTime: ps.SystemTime()}
	if ru, ok := ps.SysUsage().(*syscall.Rusage); ok && ru != nil {
		u.MaxRSSKB = ru.Maxrss
		if runtime.GOOS == "darwin" {
			u.MaxRSSKB /= 1024 // bytes on darwin
		}
	}
	return u
}
