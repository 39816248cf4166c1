package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-journal/util"

	"github.com/mit-pdos/go-xv6fs/bcache"
	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/super"
	"github.com/mit-pdos/go-xv6fs/util/timed_disk"
	"github.com/mit-pdos/go-xv6fs/wal"
)

// NBLK blocks per operation, each client in its own range
const NBLK uint64 = 4

func testSequence(bc *bcache.Bcache, l *wal.Log, base common.Bnum, v byte) {
	l.Begin()
	for i := uint64(0); i < NBLK; i++ {
		b := bc.Read(common.ROOTDEV, base+i)
		b.Data[0] = v
		l.Write(b)
		bc.Release(b)
	}
	l.End()
}

func client(bc *bcache.Bcache, l *wal.Log, duration time.Duration, base common.Bnum) int {
	start := time.Now()
	i := 0
	for {
		testSequence(bc, l, base, byte(i))
		i++
		t := time.Now()
		elapsed := t.Sub(start)
		if elapsed >= duration {
			break
		}
	}
	return i
}

func run(bc *bcache.Bcache, l *wal.Log, dataStart common.Bnum, duration time.Duration, nt int) int {
	count := make(chan int)
	for i := 0; i < nt; i++ {
		go func(tid int) {
			count <- client(bc, l, duration, dataStart+uint64(tid)*NBLK)
		}(i)
	}
	n := 0
	for i := 0; i < nt; i++ {
		n += <-count
	}
	return n
}

func main() {
	var err error
	var duration time.Duration
	var nthread int
	var diskfile string
	var dumpStats bool
	flag.DurationVar(&duration, "benchtime", 10*time.Second, "time to run each iteration for")
	flag.IntVar(&nthread, "threads", 1, "number of threads to run till")
	flag.StringVar(&diskfile, "disk", "", "disk image (empty for MemDisk)")
	flag.BoolVar(&dumpStats, "stats", false, "dump stats to stderr at end")
	flag.Uint64Var(&util.Debug, "debug", 0, "debug level (higher is more verbose)")
	flag.Parse()
	if nthread < 1 {
		panic("invalid start")
	}

	diskBlocks := 500 + uint64(nthread)*NBLK
	var d disk.Disk
	if diskfile == "" {
		d = disk.NewMemDisk(diskBlocks)
	} else {
		d, err = disk.NewFileDisk(diskfile, diskBlocks)
		if err != nil {
			panic(fmt.Errorf("could not create disk: %w", err))
		}
	}
	td := timed_disk.New(d)
	sb := super.Mkfs(td, super.DefaultParams(diskBlocks))

	bc := bcache.MkBcache(wal.NBuf(sb.Nlog))
	bc.AddDevice(common.ROOTDEV, td)
	l := wal.MkLog(bc, common.ROOTDEV, sb.Logstart, sb.Nlog)

	// warmup (skip if running for very little time, for example when using a
	// duration of 0s to run just one iteration)
	if duration > 500*time.Millisecond {
		run(bc, l, sb.DataStart(), 500*time.Millisecond, nthread)
	}
	td.ResetStats()

	count := run(bc, l, sb.DataStart(), duration, nthread)
	fmt.Printf("txn-bench: %v %v txn/sec\n", nthread, float64(count)/duration.Seconds())
	if dumpStats {
		td.WriteStats(os.Stderr)
		l.WriteStats(os.Stderr)
	}
}
