package alloc

import (
	"github.com/mit-pdos/go-journal/util"

	"github.com/mit-pdos/go-xv6fs/bcache"
	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/super"
	"github.com/mit-pdos/go-xv6fs/wal"
)

// Alloc hands out data blocks using the on-disk bitmap.  Every bitmap
// and zeroing write goes through the log, so allocation must happen
// inside an operation.  Callers never share a bitmap block
// concurrently because the buffer cache locks it.
type Alloc struct {
	bc  *bcache.Bcache
	log *wal.Log
	sb  *super.Superblock
	dev uint64
}

func MkAlloc(bc *bcache.Bcache, log *wal.Log, sb *super.Superblock, dev uint64) *Alloc {
	return &Alloc{
		bc:  bc,
		log: log,
		sb:  sb,
		dev: dev,
	}
}

func isSet(blk []byte, bi uint64) bool {
	return blk[bi/8]&(1<<(bi%8)) != 0
}

func (a *Alloc) zeroBlock(bn common.Bnum) {
	b := a.bc.Read(a.dev, bn)
	for i := range b.Data {
		b.Data[i] = 0
	}
	a.log.Write(b)
	a.bc.Release(b)
}

// AllocBlock returns a zeroed block, the lowest-numbered free one.
func (a *Alloc) AllocBlock() common.Bnum {
	for b := uint64(0); b < a.sb.Size; b += common.BPB {
		buf := a.bc.Read(a.dev, a.sb.BBlock(b))
		for bi := uint64(0); bi < common.BPB && b+bi < a.sb.Size; bi++ {
			if !isSet(buf.Data, bi) {
				buf.Data[bi/8] = buf.Data[bi/8] | (1 << (bi % 8))
				a.log.Write(buf)
				a.bc.Release(buf)
				a.zeroBlock(b + bi)
				util.DPrintf(5, "AllocBlock: %d\n", b+bi)
				return b + bi
			}
		}
		a.bc.Release(buf)
	}
	panic("balloc: out of blocks")
}

func (a *Alloc) FreeBlock(bn common.Bnum) {
	if bn < a.sb.DataStart() || bn >= a.sb.Size {
		panic("bfree: invalid block")
	}
	util.DPrintf(5, "FreeBlock: %d\n", bn)
	buf := a.bc.Read(a.dev, a.sb.BBlock(bn))
	bi := bn % common.BPB
	if !isSet(buf.Data, bi) {
		a.bc.Release(buf)
		panic("freeing free block")
	}
	buf.Data[bi/8] = buf.Data[bi/8] & ^(1 << (bi % 8))
	a.log.Write(buf)
	a.bc.Release(buf)
}

func (a *Alloc) IsAllocated(bn common.Bnum) bool {
	buf := a.bc.Read(a.dev, a.sb.BBlock(bn))
	r := isSet(buf.Data, bn%common.BPB)
	a.bc.Release(buf)
	return r
}

// NumFree counts free blocks.  It reads the bitmap without the log, so
// it sees only what committed operations (or the current one) wrote
// to the cache.
func (a *Alloc) NumFree() uint64 {
	var n uint64
	for b := uint64(0); b < a.sb.Size; b += common.BPB {
		buf := a.bc.Read(a.dev, a.sb.BBlock(b))
		for bi := uint64(0); bi < common.BPB && b+bi < a.sb.Size; bi++ {
			if !isSet(buf.Data, bi) {
				n++
			}
		}
		a.bc.Release(buf)
	}
	return n
}
