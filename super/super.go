package super

import (
	"fmt"

	"github.com/tchajed/goose/machine/disk"
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-journal/util"

	"github.com/mit-pdos/go-xv6fs/bcache"
	"github.com/mit-pdos/go-xv6fs/common"
)

const FSMAGIC uint64 = 0x10203040

// Disk layout:
// [ boot block | super block | log | inode blocks | free bit map | data blocks ]
type Superblock struct {
	Magic      uint64
	Size       uint64 // size of file system image (blocks)
	Nblocks    uint64 // number of data blocks
	Ninodes    uint64 // number of inode records, including the unused inum 0
	Nlog       uint64 // number of log blocks, including the header
	Logstart   common.Bnum
	Inodestart common.Bnum
	Bmapstart  common.Bnum
}

func (sb *Superblock) Encode() []byte {
	enc := marshal.NewEnc(common.BSIZE)
	enc.PutInt(sb.Magic)
	enc.PutInt(sb.Size)
	enc.PutInt(sb.Nblocks)
	enc.PutInt(sb.Ninodes)
	enc.PutInt(sb.Nlog)
	enc.PutInt(sb.Logstart)
	enc.PutInt(sb.Inodestart)
	enc.PutInt(sb.Bmapstart)
	return enc.Finish()
}

func Decode(blk []byte) *Superblock {
	dec := marshal.NewDec(blk)
	sb := &Superblock{}
	sb.Magic = dec.GetInt()
	sb.Size = dec.GetInt()
	sb.Nblocks = dec.GetInt()
	sb.Ninodes = dec.GetInt()
	sb.Nlog = dec.GetInt()
	sb.Logstart = dec.GetInt()
	sb.Inodestart = dec.GetInt()
	sb.Bmapstart = dec.GetInt()
	return sb
}

// ReadSuper reads the superblock of dev through the buffer cache.
func ReadSuper(bc *bcache.Bcache, dev uint64) *Superblock {
	b := bc.Read(dev, common.SUPERBLK)
	sb := Decode(b.Data)
	bc.Release(b)
	if sb.Magic != FSMAGIC {
		panic("invalid file system")
	}
	return sb
}

func (sb *Superblock) String() string {
	return fmt.Sprintf("size %d nblocks %d ninodes %d nlog %d logstart %d inodestart %d bmapstart %d",
		sb.Size, sb.Nblocks, sb.Ninodes, sb.Nlog, sb.Logstart, sb.Inodestart, sb.Bmapstart)
}

// IBlock is the block containing inode inum.
func (sb *Superblock) IBlock(inum common.Inum) common.Bnum {
	return inum/common.IPB + sb.Inodestart
}

// IOffset is the byte offset of inode inum within its block.
func (sb *Superblock) IOffset(inum common.Inum) uint64 {
	return (inum % common.IPB) * common.INODESZ
}

// BBlock is the bitmap block holding the bit for block b.
func (sb *Superblock) BBlock(b common.Bnum) common.Bnum {
	return b/common.BPB + sb.Bmapstart
}

func (sb *Superblock) NBitmap() uint64 {
	return sb.Size/common.BPB + 1
}

func (sb *Superblock) NInodeBlk() uint64 {
	return util.RoundUp(sb.Ninodes, common.IPB)
}

// DataStart is the first block past the metadata.
func (sb *Superblock) DataStart() common.Bnum {
	return sb.Bmapstart + sb.NBitmap()
}

type Params struct {
	Size    uint64 // total blocks
	Ninodes uint64 // usable inodes
	Nlog    uint64 // log blocks including the header
}

func DefaultParams(size uint64) Params {
	return Params{
		Size:    size,
		Ninodes: 200,
		Nlog:    common.LOGBLOCKS,
	}
}

func zeroBlocks(d disk.Disk, start common.Bnum, n uint64) {
	zero := make(disk.Block, disk.BlockSize)
	for i := uint64(0); i < n; i++ {
		d.Write(start+i, zero)
	}
}

// Mkfs formats d: it clears the metadata region, writes the
// superblock, and marks the metadata blocks in use.  The data region
// is left as is.
func Mkfs(d disk.Disk, p Params) *Superblock {
	if p.Size > d.Size() {
		panic("mkfs: disk too small")
	}
	sb := &Superblock{
		Magic:      FSMAGIC,
		Size:       p.Size,
		Ninodes:    p.Ninodes + 1,
		Nlog:       p.Nlog,
		Logstart:   common.LOGSTART,
		Inodestart: common.LOGSTART + p.Nlog,
	}
	sb.Bmapstart = sb.Inodestart + sb.NInodeBlk()
	nmeta := sb.DataStart()
	if nmeta >= p.Size {
		panic("mkfs: no room for data")
	}
	sb.Nblocks = p.Size - nmeta
	util.DPrintf(1, "mkfs: nmeta %d (boot, super, log %d, inode %d, bitmap %d) data %d total %d\n",
		nmeta, sb.Nlog, sb.NInodeBlk(), sb.NBitmap(), sb.Nblocks, sb.Size)

	zeroBlocks(d, 0, nmeta)
	d.Write(common.SUPERBLK, sb.Encode())

	// metadata blocks are allocated
	for bn := common.Bnum(0); bn < nmeta; bn += common.BPB {
		blk := make(disk.Block, disk.BlockSize)
		n := util.Min(nmeta-bn, common.BPB)
		for i := uint64(0); i < n; i++ {
			blk[i/8] = blk[i/8] | (1 << (i % 8))
		}
		d.Write(sb.BBlock(bn), blk)
	}
	d.Barrier()
	return sb
}
