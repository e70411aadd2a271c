package monitor

import "time"

// Timer is a handle to a scheduled one-shot callback.
type Timer interface {
	Stop() bool
}

// Clock 抽象定时器便于测试。
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// SystemClock schedules callbacks with time.AfterFunc.
var SystemClock Clock = realClock{}
