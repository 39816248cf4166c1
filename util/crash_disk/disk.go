// Package crash_disk wraps a block device with a fail-stop switch:
// once armed, the device accepts a fixed number of further writes and
// silently drops everything after that, as if the machine had lost
// power.  Reads keep working so the running system can wind down.
package crash_disk

import (
	"sync"

	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-journal/util"
)

type Disk struct {
	d       disk.Disk
	mu      *sync.Mutex
	armed   bool
	left    uint64 // writes still allowed once armed
	crashed bool
	writes  uint64
}

var _ disk.Disk = &Disk{}

func New(d disk.Disk) *Disk {
	return &Disk{d: d, mu: new(sync.Mutex)}
}

// CrashAfter lets n more writes through and drops the rest.
func (d *Disk) CrashAfter(n uint64) {
	d.mu.Lock()
	d.armed = true
	d.left = n
	d.crashed = n == 0
	d.mu.Unlock()
}

func (d *Disk) Crashed() bool {
	d.mu.Lock()
	r := d.crashed
	d.mu.Unlock()
	return r
}

// Writes is the number of writes that reached the device.
func (d *Disk) Writes() uint64 {
	d.mu.Lock()
	r := d.writes
	d.mu.Unlock()
	return r
}

// Underlying returns the device holding what survived the crash.
func (d *Disk) Underlying() disk.Disk {
	return d.d
}

func (d *Disk) ReadTo(a uint64, b disk.Block) {
	d.d.ReadTo(a, b)
}

func (d *Disk) Read(a uint64) disk.Block {
	return d.d.Read(a)
}

func (d *Disk) Write(a uint64, b disk.Block) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.armed {
		if d.left == 0 {
			if !d.crashed {
				util.DPrintf(1, "crash_disk: crashed before write %d\n", a)
			}
			d.crashed = true
			return
		}
		d.left = d.left - 1
	}
	d.writes = d.writes + 1
	d.d.Write(a, b)
}

func (d *Disk) Barrier() {
	d.mu.Lock()
	crashed := d.crashed
	d.mu.Unlock()
	if !crashed {
		d.d.Barrier()
	}
}

func (d *Disk) Size() uint64 {
	return d.d.Size()
}

func (d *Disk) Close() {
	d.d.Close()
}
