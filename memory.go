package jitlink

import (
	"sync"

	"github.com/pkg/errors"
)

type (
	// Region is one executable memory range owned by a single link
	// operation.
	Region interface {
		Base() uint64
		Bytes() []byte
		Size() int
	}
	// Allocator is the narrow platform capability behind loading: acquire a
	// region, make it executable (including any instruction-cache
	// synchronization the platform needs), release it. Implementations must
	// serialize concurrent calls, the allocator is the only shared mutable
	// resource between parallel link operations.
	Allocator interface {
		Allocate(size, align int) (Region, error)
		// MakeExecutable flips the region to its final permissions and
		// synchronizes caches. Until it returns nil the entry point is not
		// callable.
		MakeExecutable(r Region, perm Perm) error
		Release(r Region) error
	}
)

// fakeRegion lives on the Go heap and carries a synthetic base address, so
// the whole pipeline runs on hosts without executable-page permissions.
type fakeRegion struct {
	base  uint64
	bytes []byte
	exec  bool
}

func (r *fakeRegion) Base() uint64  { return r.base }
func (r *fakeRegion) Bytes() []byte { return r.bytes }
func (r *fakeRegion) Size() int     { return len(r.bytes) }

// FakeAllocator hands out heap-backed regions at increasing synthetic
// addresses. FailAllocate and FailExecutable inject the AllocationFailure
// and StaleCache paths for tests.
type FakeAllocator struct {
	mu   sync.Mutex
	next uint64
	live int

	FailAllocate   bool
	FailExecutable bool
}

// NewFakeAllocator starts handing out regions at base.
func NewFakeAllocator(base uint64) *FakeAllocator {
	return &FakeAllocator{next: base}
}

func (a *FakeAllocator) Allocate(size, align int) (Region, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.FailAllocate {
		return nil, errors.Wrap(ErrAllocation, "fake allocator exhausted")
	}
	if size <= 0 {
		return nil, errors.Wrap(ErrAllocation, "empty region")
	}
	a.next = uint64(alignUp(uint32(a.next), uint32(align)))
	r := &fakeRegion{base: a.next, bytes: make([]byte, size)}
	a.next += uint64(size)
	a.live++
	return r, nil
}

func (a *FakeAllocator) MakeExecutable(r Region, perm Perm) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.FailExecutable {
		return errors.Wrap(ErrStaleCache, "fake cache sync failed")
	}
	r.(*fakeRegion).exec = true
	return nil
}

func (a *FakeAllocator) Release(r Region) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live--
	r.(*fakeRegion).exec = false
	return nil
}

// Live reports the regions currently held, tests use it to prove every exit
// path releases.
func (a *FakeAllocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}
