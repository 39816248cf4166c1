// Package fs ties the storage layers of one device together: buffer
// cache, log, block allocator and inode cache.  A mounted Fs is what
// the layers above (directories, file descriptors, system calls) use.
package fs

import (
	"io"
	"time"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-journal/util"

	"github.com/mit-pdos/go-xv6fs/alloc"
	"github.com/mit-pdos/go-xv6fs/bcache"
	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/inode"
	"github.com/mit-pdos/go-xv6fs/super"
	"github.com/mit-pdos/go-xv6fs/util/stats"
	"github.com/mit-pdos/go-xv6fs/wal"
)

type Fs struct {
	Dev    uint64
	Super  *super.Superblock
	Bc     *bcache.Bcache
	Log    *wal.Log
	Balloc *alloc.Alloc
	Icache *inode.Icache

	stats [nOps]stats.Op
}

// Mount reads dev's superblock and recovers its log.  dev must already
// be registered with bc, and bc must have room for a full log of
// pinned blocks (see wal.NBuf).
func Mount(bc *bcache.Bcache, dev uint64) *Fs {
	sb := super.ReadSuper(bc, dev)
	util.DPrintf(1, "Mount: dev %d %v\n", dev, sb)
	if bc.NBuf() < wal.NBuf(sb.Nlog) {
		panic("mount: buffer cache too small for log")
	}
	log := wal.MkLog(bc, dev, sb.Logstart, sb.Nlog)
	balloc := alloc.MkAlloc(bc, log, sb, dev)
	return &Fs{
		Dev:    dev,
		Super:  sb,
		Bc:     bc,
		Log:    log,
		Balloc: balloc,
		Icache: inode.MkIcache(common.NINODE, bc, log, balloc, sb),
	}
}

// MountDisk mounts d as the root device with a fresh buffer cache,
// sized for the log recorded in d's superblock.
func MountDisk(d disk.Disk) *Fs {
	nbuf := uint64(common.NBUF)
	if sb := super.Decode(d.Read(common.SUPERBLK)); sb.Magic == super.FSMAGIC {
		nbuf = wal.NBuf(sb.Nlog)
	}
	bc := bcache.MkBcache(nbuf)
	bc.AddDevice(common.ROOTDEV, d)
	return Mount(bc, common.ROOTDEV)
}

func (fs *Fs) Begin() {
	fs.Log.Begin()
}

func (fs *Fs) End() {
	fs.Log.End()
}

// Atomically runs f as one operation.
func (fs *Fs) Atomically(f func()) {
	defer fs.recordOp(opAtomically, time.Now())
	fs.Log.Begin()
	defer fs.Log.End()
	f()
}

func (fs *Fs) Alloc(typ common.Itype) *inode.Inode {
	defer fs.recordOp(opAlloc, time.Now())
	return fs.Icache.Alloc(fs.Dev, typ)
}

func (fs *Fs) Get(inum common.Inum) *inode.Inode {
	defer fs.recordOp(opGet, time.Now())
	return fs.Icache.Get(fs.Dev, inum)
}

// Put drops a reference in an operation of its own, so it must not be
// called inside Begin/End; use PutInOp there.
func (fs *Fs) Put(ip *inode.Inode) {
	defer fs.recordOp(opPut, time.Now())
	fs.Atomically(func() {
		fs.Icache.Put(ip)
	})
}

// PutInOp drops a reference from inside the caller's operation.
func (fs *Fs) PutInOp(ip *inode.Inode) {
	defer fs.recordOp(opPut, time.Now())
	fs.Icache.Put(ip)
}

// ReadAt reads from an unlocked inode.
func (fs *Fs) ReadAt(ip *inode.Inode, off uint64, n uint64) []byte {
	defer fs.recordOp(opRead, time.Now())
	ip.Lock()
	defer ip.Unlock()
	return ip.Read(off, n)
}

// WriteAt writes data to an unlocked inode, a few blocks per operation
// so that no operation overflows the log.  A crash may leave a prefix
// of data written.  Returns the number of bytes written.
func (fs *Fs) WriteAt(ip *inode.Inode, off uint64, data []byte) (uint64, error) {
	defer fs.recordOp(opWrite, time.Now())
	var tot uint64
	n := uint64(len(data))
	for tot < n {
		m := util.Min(n-tot, common.MAXOPBYTES)
		var err error
		fs.Atomically(func() {
			ip.Lock()
			defer ip.Unlock()
			_, err = ip.Write(off+tot, data[tot:tot+m])
		})
		if err != nil {
			return tot, err
		}
		tot = tot + m
	}
	return tot, nil
}

func (fs *Fs) Stat(ip *inode.Inode) inode.Stat {
	var st inode.Stat
	ip.Lock()
	ip.Stat(&st)
	ip.Unlock()
	return st
}

func (fs *Fs) WriteStats(w io.Writer) {
	fs.WriteOpStats(w)
	fs.Bc.WriteStats(w)
	fs.Log.WriteStats(w)
}
