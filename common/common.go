package common

import (
	"github.com/tchajed/goose/machine/disk"
)

const (
	BSIZE uint64 = disk.BlockSize

	// max # of distinct blocks any single operation may record
	MAXOPBLOCKS uint64 = 10
	// default # of log blocks, including the header
	LOGBLOCKS        = MAXOPBLOCKS*3 + 1
	NBUF             = MAXOPBLOCKS * 6
	NINODE    uint64 = 50

	HDRMETA  = uint64(8) // space for the count
	HDRADDRS = (BSIZE - HDRMETA) / 8

	INODESZ uint64 = 128 // on-disk size
	IPB            = BSIZE / INODESZ
	BPB            = BSIZE * 8

	NDIRECT   uint64 = 12
	NINDIRECT        = BSIZE / 4
	MAXFILE          = NDIRECT + NINDIRECT
	MAXFILESZ        = MAXFILE * BSIZE

	// largest write that fits in a single operation: inode, indirect
	// and two bitmap blocks, with slack for unaligned writes
	MAXOPBYTES = ((MAXOPBLOCKS - 1 - 1 - 2) / 2) * BSIZE
)

type Inum = uint64
type Bnum = uint64

const (
	NULLINUM Inum = 0
	ROOTINUM Inum = 1
	NULLBNUM Bnum = 0

	ROOTDEV uint64 = 1
)

// Block 0 is never used by the file system; block 1 holds the
// superblock and the log starts right after.
const (
	SUPERBLK Bnum = 1
	LOGSTART Bnum = 2
)

type Itype uint32

const (
	TFREE   Itype = 0
	TDIR    Itype = 1
	TFILE   Itype = 2
	TDEVICE Itype = 3
)

func (t Itype) String() string {
	switch t {
	case TFREE:
		return "free"
	case TDIR:
		return "dir"
	case TFILE:
		return "file"
	case TDEVICE:
		return "device"
	}
	return "unknown"
}
