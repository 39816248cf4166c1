package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"time"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-journal/util"

	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/fs"
	"github.com/mit-pdos/go-xv6fs/inode"
	"github.com/mit-pdos/go-xv6fs/super"
	"github.com/mit-pdos/go-xv6fs/util/imglock"
	"github.com/mit-pdos/go-xv6fs/util/timed_disk"
)

// smallfile represents one iteration of this benchmark: it creates a file,
// writes data to it, and deletes it.
func smallfile(fsys *fs.Fs, data []byte) {
	var ip *inode.Inode
	fsys.Atomically(func() {
		ip = fsys.Alloc(common.TFILE)
		ip.Lock()
		ip.Nlink = 1
		_, err := ip.Write(0, data)
		if err != nil {
			panic(err)
		}
		ip.Unlock()
	})
	fsys.Atomically(func() {
		ip.Lock()
		ip.Nlink = 0
		ip.Update()
		ip.UnlockPut()
	})
}

func mkdata(sz uint64) []byte {
	data := make([]byte, sz)
	for i := range data {
		data[i] = byte(i % 128)
	}
	return data
}

type result struct {
	iters int
	times []time.Duration
}

func client(fsys *fs.Fs, duration time.Duration, allTimes bool) result {
	data := mkdata(uint64(100))
	var times []time.Duration
	if allTimes {
		times = make([]time.Duration, 0, int(duration.Seconds()*1000))
	}
	start := time.Now()
	i := 0
	var elapsed time.Duration
	for {
		before := elapsed
		smallfile(fsys, data)
		i++
		elapsed = time.Since(start)
		if allTimes {
			times = append(times, (elapsed - before))
		}
		if elapsed >= duration {
			return result{iters: i, times: times}
		}
	}
}

type config struct {
	duration time.Duration
	allTimes bool // whether to record individual iteration timings
}

func run(fsys *fs.Fs, c config, nt int) (elapsed time.Duration, iters int, times []time.Duration) {
	start := time.Now()
	count := make(chan result)
	for i := 0; i < nt; i++ {
		allTimes := c.allTimes && i == 0
		go func() {
			count <- client(fsys, c.duration, allTimes)
		}()
	}
	for i := 0; i < nt; i++ {
		r := <-count
		iters += r.iters
		if r.times != nil {
			times = r.times
		}
	}
	elapsed = time.Since(start)
	return
}

func openDisk(diskfile string, diskBlocks uint64) disk.Disk {
	if diskfile == "" {
		return disk.NewMemDisk(diskBlocks)
	}
	d, err := disk.NewFileDisk(diskfile, diskBlocks)
	if err != nil {
		log.Fatal(fmt.Errorf("could not create disk: %w", err))
	}
	return d
}

func main() {
	var c config
	var start int
	var nthread int
	var timingFile string
	var diskfile string
	var diskBlocks uint64
	var dumpStats bool
	flag.DurationVar(&c.duration, "benchtime", 10*time.Second, "time to run each iteration for")
	flag.StringVar(&timingFile, "time-iters", "", "prefix for individual timing files")
	flag.IntVar(&start, "start", 1, "number of threads to start at")
	flag.IntVar(&nthread, "threads", 1, "number of threads to run till")
	flag.StringVar(&diskfile, "disk", "", "disk image (empty for MemDisk)")
	flag.Uint64Var(&diskBlocks, "size", 4000, "size of file system (in blocks)")
	flag.BoolVar(&dumpStats, "stats", false, "dump stats to stderr at end")
	flag.Uint64Var(&util.Debug, "debug", 0, "debug level (higher is more verbose)")

	cpuprofile := flag.String("cpuprofile", "", "write cpu profile to file")

	flag.Parse()
	if start < 1 {
		panic("invalid start")
	}

	if diskfile != "" {
		lk, err := imglock.Acquire(diskfile)
		if err != nil {
			log.Fatal(err)
		}
		defer lk.Release()
	}
	td := timed_disk.New(openDisk(diskfile, diskBlocks))
	super.Mkfs(td, super.DefaultParams(diskBlocks))
	fsys := fs.MountDisk(td)

	// warmup (skip if running for very little time, for example when using a
	// duration of 0s to run just one iteration)
	if c.duration > 500*time.Millisecond {
		run(fsys, config{duration: 500 * time.Millisecond}, nthread)
	}
	td.ResetStats()
	fsys.Bc.ResetStats()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			panic(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	for nt := start; nt <= nthread; nt++ {
		if timingFile != "" {
			c.allTimes = true
		}

		elapsed, count, times := run(fsys, c, nt)
		fmt.Printf("fs-smallfile: %v %0.4f file/sec\n", nt,
			float64(count)/elapsed.Seconds())
		if len(times) > 0 {
			f, err := os.Create(fmt.Sprintf("%s-%d.txt", timingFile, nt))
			if err != nil {
				panic(fmt.Errorf("could not create timing file: %v", err))
			}
			for _, t := range times {
				fmt.Fprintf(f, "%f\n", t.Seconds())
			}
			f.Close()
		}
	}

	if dumpStats {
		td.WriteStats(os.Stderr)
		fsys.WriteStats(os.Stderr)
	}
}
