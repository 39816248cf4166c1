// Package sleeplock provides long-term locks: a caller that finds the
// lock held sleeps on that lock's condition variable until the holder
// releases it, so it is safe to hold one across device I/O.
package sleeplock

import (
	"sync"

	"github.com/mit-pdos/go-journal/util"
)

type SleepLock struct {
	mu     *sync.Mutex // protects locked and nwait
	cond   *sync.Cond
	locked bool
	nwait  uint64
	name   string
}

func MkSleepLock(name string) *SleepLock {
	mu := new(sync.Mutex)
	return &SleepLock{
		mu:   mu,
		cond: sync.NewCond(mu),
		name: name,
	}
}

func (lk *SleepLock) Acquire() {
	lk.mu.Lock()
	for lk.locked {
		lk.nwait = lk.nwait + 1
		lk.cond.Wait()
		lk.nwait = lk.nwait - 1
	}
	lk.locked = true
	lk.mu.Unlock()
}

func (lk *SleepLock) Release() {
	lk.mu.Lock()
	if !lk.locked {
		lk.mu.Unlock()
		util.DPrintf(0, "release %s: not held\n", lk.name)
		panic("releasesleep")
	}
	lk.locked = false
	if lk.nwait > 0 {
		lk.cond.Signal()
	}
	lk.mu.Unlock()
}

// Holding reports whether someone holds the lock; there is no notion
// of owner.
func (lk *SleepLock) Holding() bool {
	lk.mu.Lock()
	r := lk.locked
	lk.mu.Unlock()
	return r
}

func (lk *SleepLock) Name() string {
	return lk.name
}
