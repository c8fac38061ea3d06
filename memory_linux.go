//go:build linux

package jitlink

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// mmapRegion is an anonymous private mapping. Base is the mapping address,
// so absolute RV32 relocations only succeed when the kernel happens to place
// the mapping below 4GiB; host-side execution of RV32 images is a
// development aid, the device flow goes through LinkAt.
type mmapRegion struct {
	bytes []byte
}

func (r *mmapRegion) Base() uint64  { return uint64(uintptr(unsafe.Pointer(&r.bytes[0]))) }
func (r *mmapRegion) Bytes() []byte { return r.bytes }
func (r *mmapRegion) Size() int     { return len(r.bytes) }

// MmapAllocator acquires executable regions with mmap/mprotect. Regions are
// mapped writable first and flipped to their final permissions by
// MakeExecutable, which on this architecture also covers the cache
// coherence requirement (x86 caches are coherent, mprotect serializes).
type MmapAllocator struct {
	mu sync.Mutex
}

func NewMmapAllocator() *MmapAllocator {
	return &MmapAllocator{}
}

func (a *MmapAllocator) Allocate(size, align int) (Region, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if size <= 0 {
		return nil, errors.Wrap(ErrAllocation, "empty region")
	}
	// page granularity satisfies any section alignment the engine accepts
	b, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errors.Wrap(ErrAllocation, err.Error())
	}
	return &mmapRegion{bytes: b}, nil
}

func (a *MmapAllocator) MakeExecutable(r Region, perm Perm) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	prot := unix.PROT_READ
	if perm&PermWrite != 0 {
		prot |= unix.PROT_WRITE
	}
	if perm&PermExec != 0 {
		prot |= unix.PROT_EXEC
	}
	if err := unix.Mprotect(r.(*mmapRegion).bytes, prot); err != nil {
		return errors.Wrap(ErrStaleCache, err.Error())
	}
	return nil
}

func (a *MmapAllocator) Release(r Region) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return unix.Munmap(r.(*mmapRegion).bytes)
}
