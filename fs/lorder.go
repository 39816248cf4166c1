package fs

import (
	"sort"

	"github.com/mit-pdos/go-journal/util"

	"github.com/mit-pdos/go-xv6fs/inode"
)

// LockInodes locks several inodes in inum order, so that two callers
// locking overlapping sets cannot deadlock.  Duplicates are locked
// once.
func LockInodes(ips []*inode.Inode) {
	for _, ip := range sortedUnique(ips) {
		ip.Lock()
	}
}

func UnlockInodes(ips []*inode.Inode) {
	for _, ip := range sortedUnique(ips) {
		ip.Unlock()
	}
}

func sortedUnique(ips []*inode.Inode) []*inode.Inode {
	sorted := make([]*inode.Inode, 0, len(ips))
	for _, ip := range ips {
		dup := false
		for _, s := range sorted {
			if s == ip {
				dup = true
				break
			}
		}
		if !dup {
			sorted = append(sorted, ip)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Inum() < sorted[j].Inum()
	})
	util.DPrintf(10, "lock order %v\n", sorted)
	return sorted
}
