package jitlink

import "debug/elf"

// Perm is the permission set a section requires in the loaded region.
type Perm uint8

const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec
)

func (p Perm) String() string {
	b := []byte("---")
	if p&PermRead != 0 {
		b[0] = 'r'
	}
	if p&PermWrite != 0 {
		b[1] = 'w'
	}
	if p&PermExec != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// Section is one allocatable piece of the jit object. Bytes is nil for
// NOBITS sections, which occupy Size zero-filled bytes in the laid out
// image. Offset is the section's place in that image, assigned at parse.
type Section struct {
	Name   string
	Bytes  []byte
	Size   uint32
	Align  uint32
	Perm   Perm
	Offset uint32

	index   int
	relaIdx int // section header index of the SHT_RELA table targeting this section, -1 when none
}

func permOf(flags uint32) Perm {
	p := PermRead
	if flags&uint32(elf.SHF_WRITE) != 0 {
		p |= PermWrite
	}
	if flags&uint32(elf.SHF_EXECINSTR) != 0 {
		p |= PermExec
	}
	return p
}

func alignUp(v, align uint32) uint32 {
	if align < 2 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}
