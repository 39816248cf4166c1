package super

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-xv6fs/bcache"
	"github.com/mit-pdos/go-xv6fs/common"
)

func TestEncodeDecode(t *testing.T) {
	sb := &Superblock{Magic: FSMAGIC, Size: 1000, Nblocks: 900, Ninodes: 33,
		Nlog: 31, Logstart: 2, Inodestart: 33, Bmapstart: 35}
	assert.Equal(t, sb, Decode(sb.Encode()))
}

func TestLayout(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(1000)
	sb := Mkfs(d, Params{Size: 1000, Ninodes: 63, Nlog: common.LOGBLOCKS})

	assert.Equal(common.LOGSTART, sb.Logstart)
	assert.Equal(sb.Logstart+common.LOGBLOCKS, sb.Inodestart)
	assert.Equal(uint64(64), sb.Ninodes)
	assert.Equal(uint64(2), sb.NInodeBlk())
	assert.Equal(sb.Inodestart+2, sb.Bmapstart)
	assert.Equal(uint64(1), sb.NBitmap())
	assert.Equal(sb.Bmapstart+1, sb.DataStart())
	assert.Equal(uint64(1000)-sb.DataStart(), sb.Nblocks)

	assert.Equal(sb.Inodestart, sb.IBlock(31))
	assert.Equal(sb.Inodestart+1, sb.IBlock(32))
	assert.Equal(uint64(31*common.INODESZ), sb.IOffset(31))
	assert.Equal(sb.Bmapstart, sb.BBlock(999))
}

func TestMkfsBitmap(t *testing.T) {
	assert := assert.New(t)
	d := disk.NewMemDisk(500)
	sb := Mkfs(d, DefaultParams(500))
	bm := d.Read(sb.Bmapstart)
	for b := uint64(0); b < sb.Size; b++ {
		used := bm[b/8]&(1<<(b%8)) != 0
		assert.Equal(b < sb.DataStart(), used, "block %d", b)
	}
}

func TestReadSuper(t *testing.T) {
	d := disk.NewMemDisk(500)
	sb := Mkfs(d, DefaultParams(500))
	bc := bcache.MkBcache(4)
	bc.AddDevice(common.ROOTDEV, d)
	assert.Equal(t, sb, ReadSuper(bc, common.ROOTDEV))
}

func TestReadSuperBadMagic(t *testing.T) {
	bc := bcache.MkBcache(4)
	bc.AddDevice(common.ROOTDEV, disk.NewMemDisk(10))
	assert.PanicsWithValue(t, "invalid file system", func() {
		ReadSuper(bc, common.ROOTDEV)
	})
}

func TestMkfsTooSmall(t *testing.T) {
	d := disk.NewMemDisk(20)
	assert.Panics(t, func() { Mkfs(d, DefaultParams(20)) })
}
