package fs

import (
	"io"
	"time"

	"github.com/mit-pdos/go-xv6fs/util/stats"
)

const (
	opAlloc int = iota
	opGet
	opPut
	opRead
	opWrite
	opAtomically
	nOps
)

var fsopNames = []string{
	"ALLOC",
	"GET",
	"PUT",
	"READ",
	"WRITE",
	"OP",
}

func (fs *Fs) recordOp(op int, start time.Time) {
	fs.stats[op].Record(start)
}

func (fs *Fs) WriteOpStats(w io.Writer) {
	stats.WriteTable(fsopNames, fs.stats[:], w)
}

func (fs *Fs) ResetOpStats() {
	for i := range fs.stats {
		fs.stats[i].Reset()
	}
}
