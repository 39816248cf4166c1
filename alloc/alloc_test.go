package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-xv6fs/bcache"
	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/super"
	"github.com/mit-pdos/go-xv6fs/wal"
)

const dev = common.ROOTDEV

type fixture struct {
	d   disk.Disk
	sb  *super.Superblock
	log *wal.Log
	a   *Alloc
}

func mkFixture(size uint64) *fixture {
	d := disk.NewMemDisk(size)
	super.Mkfs(d, super.DefaultParams(size))
	bc := bcache.MkBcache(common.NBUF)
	bc.AddDevice(dev, d)
	sb := super.ReadSuper(bc, dev)
	log := wal.MkLog(bc, dev, sb.Logstart, sb.Nlog)
	return &fixture{d: d, sb: sb, log: log, a: MkAlloc(bc, log, sb, dev)}
}

func (f *fixture) alloc() common.Bnum {
	f.log.Begin()
	defer f.log.End()
	return f.a.AllocBlock()
}

func (f *fixture) free(bn common.Bnum) {
	f.log.Begin()
	defer f.log.End()
	f.a.FreeBlock(bn)
}

func TestAllocFirstData(t *testing.T) {
	f := mkFixture(500)
	assert.Equal(t, f.sb.DataStart(), f.alloc())
	assert.Equal(t, f.sb.DataStart()+1, f.alloc())
}

func TestAllocDistinct(t *testing.T) {
	assert := assert.New(t)
	f := mkFixture(500)
	seen := make(map[common.Bnum]bool)
	for i := 0; i < 50; i++ {
		bn := f.alloc()
		assert.False(seen[bn], "block %d allocated twice", bn)
		assert.GreaterOrEqual(bn, f.sb.DataStart())
		assert.True(f.a.IsAllocated(bn))
		seen[bn] = true
	}
	assert.Equal(f.sb.Nblocks-50, f.a.NumFree())
}

func TestAllocZeroes(t *testing.T) {
	f := mkFixture(500)
	garbage := make(disk.Block, disk.BlockSize)
	for i := range garbage {
		garbage[i] = 0xaa
	}
	f.d.Write(f.sb.DataStart(), garbage)

	bn := f.alloc()
	require.Equal(t, f.sb.DataStart(), bn)
	assert.Equal(t, make(disk.Block, disk.BlockSize), f.d.Read(bn))
}

func TestFreeThenAlloc(t *testing.T) {
	f := mkFixture(500)
	f.alloc()
	bn := f.alloc()
	f.alloc()
	f.free(bn)
	assert.False(t, f.a.IsAllocated(bn))
	assert.Equal(t, bn, f.alloc())
}

func TestDoubleFree(t *testing.T) {
	f := mkFixture(500)
	bn := f.alloc()
	f.free(bn)
	f.log.Begin()
	assert.PanicsWithValue(t, "freeing free block", func() {
		f.a.FreeBlock(bn)
	})
}

func TestFreeMetadata(t *testing.T) {
	f := mkFixture(500)
	f.log.Begin()
	assert.PanicsWithValue(t, "bfree: invalid block", func() {
		f.a.FreeBlock(f.sb.Bmapstart)
	})
	assert.PanicsWithValue(t, "bfree: invalid block", func() {
		f.a.FreeBlock(f.sb.Size)
	})
}

func TestOutOfBlocks(t *testing.T) {
	f := mkFixture(60)
	n := f.sb.Nblocks
	require.Less(t, n+1, f.log.Capacity())
	f.log.Begin()
	for i := uint64(0); i < n; i++ {
		f.a.AllocBlock()
	}
	assert.Equal(t, uint64(0), f.a.NumFree())
	assert.PanicsWithValue(t, "balloc: out of blocks", func() {
		f.a.AllocBlock()
	})
}

func TestAllocOutsideOp(t *testing.T) {
	f := mkFixture(500)
	assert.Panics(t, func() { f.a.AllocBlock() })
}

func TestAllocPersists(t *testing.T) {
	f := mkFixture(500)
	bn := f.alloc()
	bm := f.d.Read(f.sb.BBlock(bn))
	bi := bn % common.BPB
	assert.NotEqual(t, byte(0), bm[bi/8]&(1<<(bi%8)))
}
