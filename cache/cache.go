package cache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/mit-pdos/go-journal/util"

	"github.com/mit-pdos/go-xv6fs/sleeplock"
)

// A shared, fixed-size cache mapping a (device, number) key to a
// reference-counted slot.  The slots are allocated once, when the
// cache is made, and recycled for other keys.  A lookup for key
// increments the reference count for that slot; the caller must
// decrement it with FreeSlot when done with the object in the slot.
// A slot whose reference count is 0 may be recycled for another key,
// least recently used first.
//
// Each slot carries a sleep lock protecting its object and a valid
// flag telling the lock holder whether the object holds the contents
// for the slot's current key.

type Key struct {
	Dev uint64
	Num uint64
}

func (k Key) String() string {
	return fmt.Sprintf("(%d, %d)", k.Dev, k.Num)
}

type Cslot struct {
	mu  *sleeplock.SleepLock // protects Obj and valid
	Obj interface{}

	// protected by Cache.mu
	key    Key
	tagged bool
	ref    uint32
	elem   *list.Element

	valid bool
}

func (slot *Cslot) Lock() {
	slot.mu.Acquire()
}

func (slot *Cslot) Unlock() {
	slot.mu.Release()
}

func (slot *Cslot) Holding() bool {
	return slot.mu.Holding()
}

// Key returns the key the slot is tagged with.  Only meaningful while
// the caller holds a reference, since the key cannot change then.
func (slot *Cslot) Key() Key {
	return slot.key
}

// Valid and SetValid must be called with the slot locked.
func (slot *Cslot) Valid() bool {
	return slot.valid
}

func (slot *Cslot) SetValid(v bool) {
	slot.valid = v
}

type Cache struct {
	mu      *sync.Mutex
	slots   []*Cslot
	entries map[Key]*Cslot
	lru     *list.List // front is least recently used
}

// MkCache makes a cache with sz slots; mkObj is called once per slot
// to make the object stored in it.
func MkCache(sz uint64, mkObj func(slot *Cslot) interface{}) *Cache {
	c := &Cache{
		mu:      new(sync.Mutex),
		slots:   make([]*Cslot, sz),
		entries: make(map[Key]*Cslot, sz),
		lru:     list.New(),
	}
	for i := range c.slots {
		s := &Cslot{mu: sleeplock.MkSleepLock(fmt.Sprintf("slot %d", i))}
		s.Obj = mkObj(s)
		s.elem = c.lru.PushBack(s)
		c.slots[i] = s
	}
	return c
}

func (c *Cache) PrintCache() {
	for k, s := range c.entries {
		util.DPrintf(0, "Entry %v %v\n", k, s.ref)
	}
}

// evict finds the least recently used unreferenced slot and untags it.
// Called with c.mu held.
func (c *Cache) evict() *Cslot {
	for e := c.lru.Front(); e != nil; e = e.Next() {
		s := e.Value.(*Cslot)
		if s.ref == 0 {
			if s.tagged {
				util.DPrintf(10, "evict: %v\n", s.key)
				delete(c.entries, s.key)
				s.tagged = false
			}
			return s
		}
	}
	return nil
}

// LookupSlot returns the slot for key with its reference count
// incremented, recycling an unreferenced slot if key isn't cached.  A
// recycled slot is marked invalid; the caller is responsible for
// filling it.  Returns nil if every slot is in use.
func (c *Cache) LookupSlot(key Key) *Cslot {
	c.mu.Lock()
	s := c.entries[key]
	if s != nil {
		s.ref = s.ref + 1
		c.mu.Unlock()
		return s
	}
	s = c.evict()
	if s == nil {
		c.PrintCache()
		c.mu.Unlock()
		return nil
	}
	s.key = key
	s.tagged = true
	s.ref = 1
	s.valid = false
	c.entries[key] = s
	c.mu.Unlock()
	return s
}

// FreeSlot drops a reference and marks the slot most recently used.
func (c *Cache) FreeSlot(slot *Cslot) {
	c.mu.Lock()
	if slot.ref == 0 {
		c.mu.Unlock()
		panic("FreeSlot")
	}
	slot.ref = slot.ref - 1
	c.lru.MoveToBack(slot.elem)
	c.mu.Unlock()
}

// Pin takes an extra reference on a slot the caller already holds.
func (c *Cache) Pin(slot *Cslot) {
	c.mu.Lock()
	if slot.ref == 0 {
		c.mu.Unlock()
		panic("Pin")
	}
	slot.ref = slot.ref + 1
	c.mu.Unlock()
}

func (c *Cache) Unpin(slot *Cslot) {
	c.mu.Lock()
	if slot.ref == 0 {
		c.mu.Unlock()
		panic("Unpin")
	}
	slot.ref = slot.ref - 1
	c.mu.Unlock()
}

func (c *Cache) Ref(slot *Cslot) uint32 {
	c.mu.Lock()
	r := slot.ref
	c.mu.Unlock()
	return r
}

// Cached reports whether key currently has a slot.
func (c *Cache) Cached(key Key) bool {
	c.mu.Lock()
	_, ok := c.entries[key]
	c.mu.Unlock()
	return ok
}

func (c *Cache) Size() uint64 {
	return uint64(len(c.slots))
}
