package bcache

import (
	"io"
	"sync"
	"time"

	"github.com/tchajed/goose/machine/disk"
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-journal/util"

	"github.com/mit-pdos/go-xv6fs/cache"
	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/util/stats"
)

//
// Write-through buffer cache.  A buffer returned by Read is locked and
// holds a reference; at most one buffer exists per (dev, blockno).
//

type Buf struct {
	slot *cache.Cslot
	Data disk.Block
}

func (b *Buf) Dev() uint64 {
	return b.slot.Key().Dev
}

func (b *Buf) Blockno() common.Bnum {
	return b.slot.Key().Num
}

// BnumGet reads the 32-bit block number stored at entry i.
func (b *Buf) BnumGet(i uint64) common.Bnum {
	off := i * 4
	dec := marshal.NewDec(b.Data[off : off+4])
	return common.Bnum(dec.GetInt32())
}

func (b *Buf) BnumPut(i uint64, v common.Bnum) {
	off := i * 4
	enc := marshal.NewEnc(4)
	enc.PutInt32(uint32(v))
	copy(b.Data[off:off+4], enc.Finish())
}

const (
	readOp int = iota
	missOp
	writeOp
)

var ops = []string{"bcache.Read", "bcache.Miss", "bcache.Write"}

type Bcache struct {
	mu     *sync.Mutex // protects devs
	devs   map[uint64]disk.Disk
	bcache *cache.Cache
	ops    [3]stats.Op
}

func MkBcache(nbuf uint64) *Bcache {
	return &Bcache{
		mu:   new(sync.Mutex),
		devs: make(map[uint64]disk.Disk),
		bcache: cache.MkCache(nbuf, func(slot *cache.Cslot) interface{} {
			return &Buf{slot: slot, Data: make(disk.Block, disk.BlockSize)}
		}),
	}
}

func (bc *Bcache) AddDevice(dev uint64, d disk.Disk) {
	bc.mu.Lock()
	bc.devs[dev] = d
	bc.mu.Unlock()
}

func (bc *Bcache) disk(dev uint64) disk.Disk {
	bc.mu.Lock()
	d, ok := bc.devs[dev]
	bc.mu.Unlock()
	if !ok {
		panic("bcache: unknown device")
	}
	return d
}

// Read returns a locked buffer holding the contents of block blkno.
func (bc *Bcache) Read(dev uint64, blkno common.Bnum) *Buf {
	defer bc.ops[readOp].Record(time.Now())
	slot := bc.bcache.LookupSlot(cache.Key{Dev: dev, Num: blkno})
	if slot == nil {
		panic("bget: no buffers")
	}
	slot.Lock()
	b := slot.Obj.(*Buf)
	if !slot.Valid() {
		start := time.Now()
		util.DPrintf(10, "bread: miss %d %d\n", dev, blkno)
		bc.disk(dev).ReadTo(blkno, b.Data)
		slot.SetValid(true)
		bc.ops[missOp].Record(start)
	}
	return b
}

// Write writes b's contents to disk.  The caller must hold b.
func (bc *Bcache) Write(b *Buf) {
	if !b.slot.Holding() {
		panic("bwrite")
	}
	defer bc.ops[writeOp].Record(time.Now())
	bc.disk(b.Dev()).Write(b.Blockno(), b.Data)
}

// Release unlocks b and drops the caller's reference.
func (bc *Bcache) Release(b *Buf) {
	if !b.slot.Holding() {
		panic("brelse")
	}
	b.slot.Unlock()
	bc.bcache.FreeSlot(b.slot)
}

// Pin keeps b resident after its holder releases it.
func (bc *Bcache) Pin(b *Buf) {
	bc.bcache.Pin(b.slot)
}

func (bc *Bcache) Unpin(b *Buf) {
	bc.bcache.Unpin(b.slot)
}

func (bc *Bcache) Barrier(dev uint64) {
	bc.disk(dev).Barrier()
}

// NBuf is the number of buffers in the cache.
func (bc *Bcache) NBuf() uint64 {
	return bc.bcache.Size()
}

func (bc *Bcache) Size(dev uint64) uint64 {
	return bc.disk(dev).Size()
}

// Cached reports whether blkno currently occupies a buffer.
func (bc *Bcache) Cached(dev uint64, blkno common.Bnum) bool {
	return bc.bcache.Cached(cache.Key{Dev: dev, Num: blkno})
}

func (bc *Bcache) WriteStats(w io.Writer) {
	stats.WriteTable(ops, bc.ops[:], w)
}

func (bc *Bcache) ResetStats() {
	for i := range bc.ops {
		bc.ops[i].Reset()
	}
}
