package inode

import (
	"errors"
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-journal/util"

	"github.com/mit-pdos/go-xv6fs/alloc"
	"github.com/mit-pdos/go-xv6fs/bcache"
	"github.com/mit-pdos/go-xv6fs/cache"
	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/super"
	"github.com/mit-pdos/go-xv6fs/wal"
)

var (
	ErrTooBig  = errors.New("inode: write beyond maximum file size")
	ErrPastEOF = errors.New("inode: write starts past end of file")
)

// An Inode is an in-memory handle on an on-disk inode.  Handles are
// reference counted: Get and Alloc return a referenced handle and Put
// drops the reference.  The fields below the slot are a copy of the
// on-disk inode, valid only while the handle is locked.
type Inode struct {
	ic   *Icache
	slot *cache.Cslot

	Type  common.Itype
	Major uint32
	Minor uint32
	Nlink uint32
	Size  uint64
	addrs []common.Bnum // NDIRECT direct blocks, then the indirect block
}

type Stat struct {
	Dev   uint64
	Ino   common.Inum
	Type  common.Itype
	Nlink uint32
	Size  uint64
}

func (ip *Inode) Dev() uint64 {
	return ip.slot.Key().Dev
}

func (ip *Inode) Inum() common.Inum {
	return ip.slot.Key().Num
}

func (ip *Inode) String() string {
	return fmt.Sprintf("# %d t %v n %d sz %d %v", ip.Inum(), ip.Type, ip.Nlink, ip.Size, ip.addrs)
}

func (ip *Inode) Encode() []byte {
	enc := marshal.NewEnc(common.INODESZ)
	enc.PutInt32(uint32(ip.Type))
	enc.PutInt32(ip.Major)
	enc.PutInt32(ip.Minor)
	enc.PutInt32(ip.Nlink)
	enc.PutInt(ip.Size)
	for _, a := range ip.addrs {
		enc.PutInt32(uint32(a))
	}
	return enc.Finish()
}

func (ip *Inode) decode(b []byte) {
	dec := marshal.NewDec(b)
	ip.Type = common.Itype(dec.GetInt32())
	ip.Major = dec.GetInt32()
	ip.Minor = dec.GetInt32()
	ip.Nlink = dec.GetInt32()
	ip.Size = dec.GetInt()
	for i := range ip.addrs {
		ip.addrs[i] = common.Bnum(dec.GetInt32())
	}
}

// Icache holds the in-memory inodes: at most one per (dev, inum), so
// that the inode lock serializes all access to an inode.
type Icache struct {
	icache *cache.Cache
	bc     *bcache.Bcache
	log    *wal.Log
	balloc *alloc.Alloc
	sb     *super.Superblock
}

func MkIcache(sz uint64, bc *bcache.Bcache, log *wal.Log, balloc *alloc.Alloc,
	sb *super.Superblock) *Icache {
	ic := &Icache{
		bc:     bc,
		log:    log,
		balloc: balloc,
		sb:     sb,
	}
	ic.icache = cache.MkCache(sz, func(slot *cache.Cslot) interface{} {
		return &Inode{
			ic:    ic,
			slot:  slot,
			addrs: make([]common.Bnum, common.NDIRECT+1),
		}
	})
	return ic
}

// Alloc finds a free on-disk inode, marks it with typ, and returns a
// referenced, unlocked handle.  Must be called inside an operation.
func (ic *Icache) Alloc(dev uint64, typ common.Itype) *Inode {
	for inum := common.Inum(1); inum < ic.sb.Ninodes; inum++ {
		buf := ic.bc.Read(dev, ic.sb.IBlock(inum))
		off := ic.sb.IOffset(inum)
		dec := marshal.NewDec(buf.Data[off : off+common.INODESZ])
		if common.Itype(dec.GetInt32()) == common.TFREE {
			enc := marshal.NewEnc(common.INODESZ)
			enc.PutInt32(uint32(typ))
			copy(buf.Data[off:off+common.INODESZ], enc.Finish())
			ic.log.Write(buf)
			ic.bc.Release(buf)
			util.DPrintf(5, "ialloc: %d type %v\n", inum, typ)
			return ic.Get(dev, inum)
		}
		ic.bc.Release(buf)
	}
	panic("ialloc: no inodes")
}

// PeekStat reads inode inum straight from its disk block, bypassing
// the inode cache.  Returns false if the inode is free.  Meant for
// offline tools that run with no operations in progress.
func (ic *Icache) PeekStat(dev uint64, inum common.Inum) (Stat, bool) {
	buf := ic.bc.Read(dev, ic.sb.IBlock(inum))
	off := ic.sb.IOffset(inum)
	ip := &Inode{addrs: make([]common.Bnum, common.NDIRECT+1)}
	ip.decode(buf.Data[off : off+common.INODESZ])
	ic.bc.Release(buf)
	if ip.Type == common.TFREE {
		return Stat{}, false
	}
	return Stat{Dev: dev, Ino: inum, Type: ip.Type, Nlink: ip.Nlink, Size: ip.Size}, true
}

// Get returns a referenced handle for inode inum without reading it
// from disk; Lock does that.
func (ic *Icache) Get(dev uint64, inum common.Inum) *Inode {
	slot := ic.icache.LookupSlot(cache.Key{Dev: dev, Num: inum})
	if slot == nil {
		panic("iget: no inodes")
	}
	return slot.Obj.(*Inode)
}

// Dup takes another reference on ip.
func (ic *Icache) Dup(ip *Inode) *Inode {
	ic.icache.Pin(ip.slot)
	return ip
}

// Put drops a reference.  If it was the last one and the inode has no
// links, the inode and its content are freed, so Put must be called
// inside an operation.
func (ic *Icache) Put(ip *Inode) {
	ip.slot.Lock()
	if ip.slot.Valid() && ip.Nlink == 0 {
		r := ic.icache.Ref(ip.slot)
		if r == 1 {
			// nobody else can reach it, so it stays unreferenced
			util.DPrintf(5, "iput: free %d\n", ip.Inum())
			ip.truncate()
			ip.Type = common.TFREE
			ip.Update()
			ip.slot.SetValid(false)
		}
	}
	ip.slot.Unlock()
	ic.icache.FreeSlot(ip.slot)
}

func (ic *Icache) Ref(ip *Inode) uint32 {
	return ic.icache.Ref(ip.slot)
}

// Lock locks ip, reading it from disk if necessary.
func (ip *Inode) Lock() {
	if ip.ic.icache.Ref(ip.slot) < 1 {
		panic("ilock")
	}
	ip.slot.Lock()
	if !ip.slot.Valid() {
		buf := ip.ic.bc.Read(ip.Dev(), ip.ic.sb.IBlock(ip.Inum()))
		off := ip.ic.sb.IOffset(ip.Inum())
		ip.decode(buf.Data[off : off+common.INODESZ])
		ip.ic.bc.Release(buf)
		if ip.Type == common.TFREE {
			ip.slot.Unlock()
			panic("ilock: no type")
		}
		ip.slot.SetValid(true)
	}
}

func (ip *Inode) Unlock() {
	if !ip.slot.Holding() || ip.ic.icache.Ref(ip.slot) < 1 {
		panic("iunlock")
	}
	ip.slot.Unlock()
}

func (ip *Inode) UnlockPut() {
	ip.Unlock()
	ip.ic.Put(ip)
}

// Update copies the in-memory inode to its disk block through the log.
// The caller must hold ip's lock and be inside an operation.
func (ip *Inode) Update() {
	buf := ip.ic.bc.Read(ip.Dev(), ip.ic.sb.IBlock(ip.Inum()))
	off := ip.ic.sb.IOffset(ip.Inum())
	copy(buf.Data[off:off+common.INODESZ], ip.Encode())
	ip.ic.log.Write(buf)
	ip.ic.bc.Release(buf)
}

func (ip *Inode) Stat(st *Stat) {
	st.Dev = ip.Dev()
	st.Ino = ip.Inum()
	st.Type = ip.Type
	st.Nlink = ip.Nlink
	st.Size = ip.Size
}
