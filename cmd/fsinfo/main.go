package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/rodaine/table"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-journal/util"

	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/fs"
	"github.com/mit-pdos/go-xv6fs/util/imglock"
)

func printSuper(fsys *fs.Fs) {
	sb := fsys.Super
	tbl := table.New("region", "start", "blocks")
	tbl.AddRow("log", sb.Logstart, sb.Nlog)
	tbl.AddRow("inodes", sb.Inodestart, sb.NInodeBlk())
	tbl.AddRow("bitmap", sb.Bmapstart, sb.NBitmap())
	tbl.AddRow("data", sb.DataStart(), sb.Nblocks)
	tbl.WithWriter(os.Stdout)
	tbl.Print()
	free := fsys.Balloc.NumFree()
	fmt.Printf("\n%d blocks, %d data blocks free, %d inodes\n\n", sb.Size, free, sb.Ninodes-1)
}

// printInodes lists allocated inodes.  Inodes with no links are
// orphans left by a crash while the file was still open.
func printInodes(fsys *fs.Fs) {
	tbl := table.New("inum", "type", "nlink", "size", "")
	var norphan uint64
	for inum := common.Inum(1); inum < fsys.Super.Ninodes; inum++ {
		st, ok := fsys.Icache.PeekStat(fsys.Dev, inum)
		if !ok {
			continue
		}
		note := ""
		if st.Nlink == 0 {
			note = "orphan"
			norphan++
		}
		tbl.AddRow(st.Ino, st.Type, st.Nlink, st.Size, note)
	}
	tbl.WithWriter(os.Stdout)
	tbl.Print()
	if norphan > 0 {
		fmt.Printf("\n%d orphaned inodes\n", norphan)
	}
}

func main() {
	var diskfile string
	flag.StringVar(&diskfile, "disk", "", "disk image")
	flag.Uint64Var(&util.Debug, "debug", 0, "debug level (higher is more verbose)")
	flag.Parse()
	if diskfile == "" {
		fmt.Fprintf(os.Stderr, "usage: fsinfo -disk <image>\n")
		os.Exit(2)
	}

	fi, err := os.Stat(diskfile)
	if err != nil {
		log.Fatal(err)
	}
	lk, err := imglock.Acquire(diskfile)
	if err != nil {
		log.Fatal(err)
	}
	defer lk.Release()

	d, err := disk.NewFileDisk(diskfile, uint64(fi.Size())/disk.BlockSize)
	if err != nil {
		log.Fatal(fmt.Errorf("could not open disk: %w", err))
	}
	defer d.Close()

	// mounting replays the log if the last run crashed mid-commit
	fsys := fs.MountDisk(d)
	printSuper(fsys)
	printInodes(fsys)
}
