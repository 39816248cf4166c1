// Package wal implements the write-ahead log.  Operations bracket their
// writes with Begin and End and record every modified buffer with
// Write; the buffer is pinned in the cache until the group of
// operations it belongs to commits.  Commit copies the logged blocks
// into the log region, writes the header (the commit point), installs
// the blocks at their home locations, and clears the header.  After a
// crash, Recover replays the log if the header holds a non-zero count.
package wal

import (
	"io"
	"sync"
	"time"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-journal/util"

	"github.com/mit-pdos/go-xv6fs/bcache"
	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/util/stats"
)

type hdr struct {
	n     uint64
	addrs []common.Bnum
}

func decodeHdr(blk []byte) *hdr {
	dec := marshal.NewDec(blk)
	h := &hdr{}
	h.n = dec.GetInt()
	if h.n > common.HDRADDRS {
		// cannot have been written by a commit
		util.DPrintf(0, "decodeHdr: garbage count %d\n", h.n)
		h.n = 0
		return h
	}
	h.addrs = dec.GetInts(h.n)
	return h
}

func encodeHdr(h *hdr) []byte {
	enc := marshal.NewEnc(common.BSIZE)
	enc.PutInt(h.n)
	enc.PutInts(h.addrs[:h.n])
	return enc.Finish()
}

const (
	nBegin int = iota
	nWait
	nLogWrite
	nAbsorb
	nCommit
	nCommitBlks
)

var counterNames = []string{"log.begin", "log.wait", "log.write", "log.absorb",
	"log.commit", "log.commitBlocks"}

type Stats struct {
	Begins          uint64
	Waits           uint64 // times Begin had to sleep
	Writes          uint64
	Absorbed        uint64 // writes to a block already in the transaction
	Commits         uint64
	BlocksCommitted uint64
}

type Log struct {
	mu   *sync.Mutex // protects everything below
	cond *sync.Cond  // signaled when committing or outstanding changes

	bc    *bcache.Bcache
	dev   uint64
	start common.Bnum // header block; log body follows
	size  uint64      // # body blocks

	outstanding uint64 // # of operations between Begin and End
	committing  bool
	lh          hdr
	slots       map[common.Bnum]uint64 // home block -> index in lh.addrs

	counters   [6]uint64
	commitTime [1]stats.Op
}

// LogCapacity is the number of distinct blocks a log of nlog blocks
// (header included) can hold.
func LogCapacity(nlog uint64) uint64 {
	if nlog < 2 {
		return 0
	}
	return util.Min(nlog-1, common.HDRADDRS)
}

// NBuf is the number of buffers a cache needs under a log of nlog
// blocks: every log slot may be pinned, and commit and the running
// operations still need the slack the default layout leaves.
func NBuf(nlog uint64) uint64 {
	n := LogCapacity(nlog) + common.NBUF - (common.LOGBLOCKS - 1)
	if n < common.NBUF {
		return common.NBUF
	}
	return n
}

func mkLog(bc *bcache.Bcache, dev uint64, start common.Bnum, nlog uint64) *Log {
	size := LogCapacity(nlog)
	if size < common.MAXOPBLOCKS {
		panic("log: too small")
	}
	mu := new(sync.Mutex)
	l := &Log{
		mu:    mu,
		cond:  sync.NewCond(mu),
		bc:    bc,
		dev:   dev,
		start: start,
		size:  size,
		lh:    hdr{n: 0, addrs: make([]common.Bnum, size)},
		slots: make(map[common.Bnum]uint64),
	}
	return l
}

// MkLog opens the log stored in blocks [start, start+nlog) of dev and
// recovers it.
func MkLog(bc *bcache.Bcache, dev uint64, start common.Bnum, nlog uint64) *Log {
	l := mkLog(bc, dev, start, nlog)
	util.DPrintf(1, "MkLog: dev %d start %d size %d\n", dev, start, l.size)
	l.Recover()
	return l
}

// Capacity is the number of distinct blocks the log can hold.
func (l *Log) Capacity() uint64 {
	return l.size
}

func (l *Log) readHead() {
	buf := l.bc.Read(l.dev, l.start)
	h := decodeHdr(buf.Data)
	l.bc.Release(buf)
	if h.n > l.size {
		util.DPrintf(0, "readHead: count %d exceeds log size %d\n", h.n, l.size)
		h.n = 0
	}
	l.lh.n = h.n
	copy(l.lh.addrs, h.addrs[:h.n])
}

// writeHead writes the in-memory header to disk.  With a non-zero
// count this is the point at which the transaction commits.
func (l *Log) writeHead() {
	buf := l.bc.Read(l.dev, l.start)
	copy(buf.Data, encodeHdr(&l.lh))
	l.bc.Write(buf)
	l.bc.Release(buf)
}

// installTrans copies committed blocks from the log to their home
// locations.
func (l *Log) installTrans(recovering bool) {
	for tail := uint64(0); tail < l.lh.n; tail++ {
		lbuf := l.bc.Read(l.dev, l.start+tail+1)
		dbuf := l.bc.Read(l.dev, l.lh.addrs[tail])
		copy(dbuf.Data, lbuf.Data)
		l.bc.Write(dbuf)
		if !recovering {
			l.bc.Unpin(dbuf)
		}
		l.bc.Release(lbuf)
		l.bc.Release(dbuf)
	}
}

// Recover replays a committed but not yet installed transaction.
// Replaying twice has the same effect as once.
func (l *Log) Recover() {
	l.readHead()
	if l.lh.n > 0 {
		util.DPrintf(1, "Recover: replay %d blocks\n", l.lh.n)
	}
	l.installTrans(true)
	l.bc.Barrier(l.dev)
	l.lh.n = 0
	l.writeHead()
	l.bc.Barrier(l.dev)
}

// Begin starts an operation, waiting until the log is not committing
// and has room for this operation's worst case on top of the ones
// already admitted.
func (l *Log) Begin() {
	l.mu.Lock()
	for {
		if l.committing {
			l.counters[nWait]++
			l.cond.Wait()
		} else if l.lh.n+(l.outstanding+1)*common.MAXOPBLOCKS > l.size {
			l.counters[nWait]++
			l.cond.Wait()
		} else {
			l.outstanding = l.outstanding + 1
			l.counters[nBegin]++
			break
		}
	}
	l.mu.Unlock()
}

// End finishes an operation; the last one to finish commits everyone's
// writes.
func (l *Log) End() {
	var doCommit = false
	l.mu.Lock()
	if l.outstanding == 0 {
		l.mu.Unlock()
		panic("end_op: no operation")
	}
	l.outstanding = l.outstanding - 1
	if l.committing {
		l.mu.Unlock()
		panic("log.committing")
	}
	if l.outstanding == 0 {
		doCommit = true
		l.committing = true
	} else {
		// Begin may be waiting for log space, and decrementing
		// outstanding has decreased the amount of reserved space.
		l.cond.Broadcast()
	}
	l.mu.Unlock()

	if doCommit {
		// commit without holding l.mu, since the disk writes sleep
		l.commit()
		l.mu.Lock()
		l.committing = false
		l.cond.Broadcast()
		l.mu.Unlock()
	}
}

// writeLog copies modified blocks from the cache to the log body.
func (l *Log) writeLog() {
	for tail := uint64(0); tail < l.lh.n; tail++ {
		to := l.bc.Read(l.dev, l.start+tail+1)
		from := l.bc.Read(l.dev, l.lh.addrs[tail])
		copy(to.Data, from.Data)
		l.bc.Write(to)
		l.bc.Release(from)
		l.bc.Release(to)
	}
}

func (l *Log) commit() {
	if l.lh.n == 0 {
		return
	}
	defer l.commitTime[0].Record(time.Now())
	n := l.lh.n
	util.DPrintf(5, "commit: %d blocks\n", n)
	l.writeLog()
	l.bc.Barrier(l.dev)
	l.writeHead()
	l.bc.Barrier(l.dev)
	l.installTrans(false)
	l.bc.Barrier(l.dev)
	l.lh.n = 0
	l.writeHead()

	l.mu.Lock()
	for k := range l.slots {
		delete(l.slots, k)
	}
	l.counters[nCommit]++
	l.counters[nCommitBlks] += n
	l.mu.Unlock()
}

// Write records that b was modified by the current operation and pins
// it in the cache.  The caller has modified b.Data and still holds b;
// it releases b as usual.  Repeated writes of a block within one
// transaction occupy a single log slot.
func (l *Log) Write(b *bcache.Buf) {
	l.mu.Lock()
	if l.outstanding < 1 {
		l.mu.Unlock()
		panic("log_write outside of trans")
	}
	l.counters[nLogWrite]++
	bn := b.Blockno()
	if _, ok := l.slots[bn]; ok {
		l.counters[nAbsorb]++
		util.DPrintf(10, "log_write: absorb %d\n", bn)
		l.mu.Unlock()
		return
	}
	// only a new block can overflow the log
	if l.lh.n >= l.size {
		l.mu.Unlock()
		panic("too big a transaction")
	}
	l.slots[bn] = l.lh.n
	l.lh.addrs[l.lh.n] = bn
	l.lh.n = l.lh.n + 1
	l.bc.Pin(b)
	l.mu.Unlock()
}

func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Begins:          l.counters[nBegin],
		Waits:           l.counters[nWait],
		Writes:          l.counters[nLogWrite],
		Absorbed:        l.counters[nAbsorb],
		Commits:         l.counters[nCommit],
		BlocksCommitted: l.counters[nCommitBlks],
	}
}

func (l *Log) WriteStats(w io.Writer) {
	l.mu.Lock()
	counts := make([]uint64, len(l.counters))
	copy(counts, l.counters[:])
	l.mu.Unlock()
	stats.WriteCounters(counterNames, counts, w)
	stats.WriteTable([]string{"log.commit"}, l.commitTime[:], w)
}
