package inode

import (
	"github.com/goose-lang/std"

	"github.com/mit-pdos/go-journal/util"

	"github.com/mit-pdos/go-xv6fs/common"
)

// Bmap returns the disk block holding the bn'th block of ip's content,
// allocating it (and the indirect block) if there is none yet.
func (ip *Inode) Bmap(bn uint64) common.Bnum {
	ic := ip.ic
	if bn < common.NDIRECT {
		addr := ip.addrs[bn]
		if addr == common.NULLBNUM {
			addr = ic.balloc.AllocBlock()
			ip.addrs[bn] = addr
		}
		return addr
	}
	bn = bn - common.NDIRECT

	if bn < common.NINDIRECT {
		ind := ip.addrs[common.NDIRECT]
		if ind == common.NULLBNUM {
			ind = ic.balloc.AllocBlock()
			ip.addrs[common.NDIRECT] = ind
		}
		buf := ic.bc.Read(ip.Dev(), ind)
		addr := buf.BnumGet(bn)
		if addr == common.NULLBNUM {
			addr = ic.balloc.AllocBlock()
			buf.BnumPut(bn, addr)
			ic.log.Write(buf)
		}
		ic.bc.Release(buf)
		return addr
	}
	panic("bmap: out of range")
}

// Truncate discards ip's content.  The caller must hold ip's lock and
// be inside an operation.
func (ip *Inode) Truncate() {
	if !ip.slot.Holding() {
		panic("itrunc")
	}
	ip.truncate()
}

func (ip *Inode) truncate() {
	ic := ip.ic
	for i := uint64(0); i < common.NDIRECT; i++ {
		if ip.addrs[i] != common.NULLBNUM {
			ic.balloc.FreeBlock(ip.addrs[i])
			ip.addrs[i] = common.NULLBNUM
		}
	}
	ind := ip.addrs[common.NDIRECT]
	if ind != common.NULLBNUM {
		buf := ic.bc.Read(ip.Dev(), ind)
		for j := uint64(0); j < common.NINDIRECT; j++ {
			a := buf.BnumGet(j)
			if a != common.NULLBNUM {
				ic.balloc.FreeBlock(a)
			}
		}
		ic.bc.Release(buf)
		ic.balloc.FreeBlock(ind)
		ip.addrs[common.NDIRECT] = common.NULLBNUM
	}
	util.DPrintf(5, "itrunc: %d\n", ip.Inum())
	ip.Size = 0
	ip.Update()
}

// Read returns up to n bytes starting at off; fewer if the file ends
// first, and none if off is at or past the end.  The caller must hold
// ip's lock.
func (ip *Inode) Read(off uint64, n uint64) []byte {
	if off >= ip.Size {
		return make([]byte, 0)
	}
	count := util.Min(n, ip.Size-off)
	data := make([]byte, 0, count)
	for uint64(len(data)) < count {
		buf := ip.ic.bc.Read(ip.Dev(), ip.Bmap(off/common.BSIZE))
		boff := off % common.BSIZE
		m := util.Min(count-uint64(len(data)), common.BSIZE-boff)
		data = append(data, buf.Data[boff:boff+m]...)
		ip.ic.bc.Release(buf)
		off = off + m
	}
	util.DPrintf(10, "readi: %d cnt %d\n", ip.Inum(), count)
	return data
}

// Write copies data into ip at off, growing the file if needed.  A
// write may not start past the end of the file or extend it beyond
// MAXFILESZ.  The caller must hold ip's lock and be inside an
// operation with room for the blocks this write touches.
func (ip *Inode) Write(off uint64, data []byte) (uint64, error) {
	n := uint64(len(data))
	if off > ip.Size {
		return 0, ErrPastEOF
	}
	if !std.SumNoOverflow(off, n) || off+n > common.MAXFILESZ {
		return 0, ErrTooBig
	}
	var tot uint64
	for tot < n {
		buf := ip.ic.bc.Read(ip.Dev(), ip.Bmap(off/common.BSIZE))
		boff := off % common.BSIZE
		m := util.Min(n-tot, common.BSIZE-boff)
		copy(buf.Data[boff:boff+m], data[tot:tot+m])
		ip.ic.log.Write(buf)
		ip.ic.bc.Release(buf)
		tot = tot + m
		off = off + m
	}
	if off > ip.Size {
		ip.Size = off
	}
	// write the inode back even if the size didn't change, since
	// Bmap may have added blocks
	ip.Update()
	return n, nil
}
