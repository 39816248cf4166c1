package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-journal/util"

	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/fs"
	"github.com/mit-pdos/go-xv6fs/inode"
	"github.com/mit-pdos/go-xv6fs/super"
	"github.com/mit-pdos/go-xv6fs/util/timed_disk"
)

const (
	KB    uint64 = 1024
	WSIZE        = 16 * 4096
)

var FILESIZE uint64

func makefile(fsys *fs.Fs, data []byte) *inode.Inode {
	var ip *inode.Inode
	fsys.Atomically(func() {
		ip = fsys.Alloc(common.TFILE)
		ip.Lock()
		ip.Nlink = 1
		ip.Update()
		ip.Unlock()
	})
	for off := uint64(0); off < FILESIZE; off += WSIZE {
		n := util.Min(WSIZE, FILESIZE-off)
		_, err := fsys.WriteAt(ip, off, data[:n])
		if err != nil {
			panic(err)
		}
	}
	return ip
}

func remove(fsys *fs.Fs, ip *inode.Inode) {
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

func main() {
	sizeKB := flag.Uint64("size", 4096, "file size (in KB)")
	deleteAfter := flag.Bool("delete", false, "delete files after running benchmark")
	diskfile := flag.String("disk", "", "disk image (empty for MemDisk)")
	dumpStats := flag.Bool("stats", false, "dump stats to stderr at end")
	flag.Uint64Var(&util.Debug, "debug", 0, "debug level (higher is more verbose)")
	flag.Parse()

	FILESIZE = *sizeKB * KB
	if FILESIZE > common.MAXFILESZ {
		log.Fatalf("fs-largefile: size must be at most %d KB", common.MAXFILESZ/KB)
	}

	// two files plus metadata
	diskBlocks := 2*(FILESIZE/disk.BlockSize+2) + 500
	var d disk.Disk
	if *diskfile == "" {
		d = disk.NewMemDisk(diskBlocks)
	} else {
		fd, err := disk.NewFileDisk(*diskfile, diskBlocks)
		if err != nil {
			log.Fatal(fmt.Errorf("could not create disk: %w", err))
		}
		d = fd
	}
	td := timed_disk.New(d)
	super.Mkfs(td, super.DefaultParams(diskBlocks))
	fsys := fs.MountDisk(td)

	data := mkdata(WSIZE)
	warmup := makefile(fsys, data)
	td.ResetStats()
	start := time.Now()
	ip := makefile(fsys, data)
	elapsed := time.Since(start)
	tput := float64(FILESIZE) / float64(1024*KB) / elapsed.Seconds()
	fmt.Printf("fs-largefile: %v KB throughput %.2f MB/s\n", FILESIZE/KB, tput)

	if *dumpStats {
		td.WriteStats(os.Stderr)
		fsys.WriteStats(os.Stderr)
	}

	if *deleteAfter {
		remove(fsys, warmup)
		remove(fsys, ip)
	}
}
