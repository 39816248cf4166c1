package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-journal/util"

	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/fs"
	"github.com/mit-pdos/go-xv6fs/super"
	"github.com/mit-pdos/go-xv6fs/util/imglock"
)

// mkRoot creates the root directory inode.  The directory has no
// entries: directory contents belong to the layer above.
func mkRoot(fsys *fs.Fs) {
	fsys.Atomically(func() {
		ip := fsys.Alloc(common.TDIR)
		if ip.Inum() != common.ROOTINUM {
			panic("mkfs: root is not the first inode")
		}
		ip.Lock()
		ip.Nlink = 1
		ip.Update()
		ip.UnlockPut()
	})
}

func main() {
	var diskfile string
	flag.StringVar(&diskfile, "disk", "", "disk image to format")

	var nblocks uint64
	flag.Uint64Var(&nblocks, "size", 4000, "size of file system (in blocks)")

	var ninodes uint64
	flag.Uint64Var(&ninodes, "ninodes", 200, "number of inodes")

	var nlog uint64
	flag.Uint64Var(&nlog, "nlog", common.LOGBLOCKS, "number of log blocks, including the header")

	flag.Uint64Var(&util.Debug, "debug", 0, "debug level (higher is more verbose)")
	flag.Parse()

	if diskfile == "" {
		fmt.Fprintf(os.Stderr, "usage: mkfs -disk <image> [-size N] [-ninodes N] [-nlog N]\n")
		os.Exit(2)
	}
	if nlog < common.MAXOPBLOCKS+1 {
		log.Fatalf("mkfs: log needs at least %d blocks", common.MAXOPBLOCKS+1)
	}

	lk, err := imglock.Acquire(diskfile)
	if err != nil {
		log.Fatal(err)
	}
	defer lk.Release()

	d, err := disk.NewFileDisk(diskfile, nblocks)
	if err != nil {
		log.Fatal(fmt.Errorf("could not create disk: %w", err))
	}
	defer d.Close()

	sb := super.Mkfs(d, super.Params{Size: nblocks, Ninodes: ninodes, Nlog: nlog})
	mkRoot(fs.MountDisk(d))
	d.Barrier()
	fmt.Printf("mkfs: %s: %v\n", diskfile, sb)
}
