package core

import "sync/atomic"

// IDAllocator hands out strictly increasing identifiers starting at 1.
// Identifiers are never recycled; 0 is reserved as "no id".
type IDAllocator struct {
	next atomic.Uint32
}

func NewIDAllocator() *IDAllocator {
	return &IDAllocator{}
}

func (a *IDAllocator) Next() uint32 {
	return a.next.Add(1)
}

// Last returns the most recently issued identifier, 0 if none.
func (a *IDAllocator) Last() uint32 {
	return a.next.Load()
}
