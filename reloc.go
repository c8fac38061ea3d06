package jitlink

import (
	"debug/elf"
	"encoding/binary"
)

// RelocKind is the engine's closed relocation vocabulary. Anything outside
// it is rejected at parse time as an *UnsupportedRelocationError so support
// is added deliberately, never ignored.
type RelocKind uint8

const (
	RelocNone RelocKind = iota
	RelocRelax
	RelocAbs32
	RelocBranch
	RelocJAL
	RelocCall
	RelocPCRelHi20
	RelocPCRelLo12I
	RelocPCRelLo12S
	RelocHi20
	RelocLo12I
	RelocLo12S
)

func (k RelocKind) String() string {
	switch k {
	case RelocNone:
		return "NONE"
	case RelocRelax:
		return "RELAX"
	case RelocAbs32:
		return "32"
	case RelocBranch:
		return "BRANCH"
	case RelocJAL:
		return "JAL"
	case RelocCall:
		return "CALL"
	case RelocPCRelHi20:
		return "PCREL_HI20"
	case RelocPCRelLo12I:
		return "PCREL_LO12_I"
	case RelocPCRelLo12S:
		return "PCREL_LO12_S"
	case RelocHi20:
		return "HI20"
	case RelocLo12I:
		return "LO12_I"
	case RelocLo12S:
		return "LO12_S"
	}
	return "invalid"
}

func relocKindOf(t uint32) (RelocKind, bool) {
	switch elf.R_RISCV(t) {
	case elf.R_RISCV_NONE:
		return RelocNone, true
	case elf.R_RISCV_RELAX, elf.R_RISCV_ALIGN:
		return RelocRelax, true
	case elf.R_RISCV_32:
		return RelocAbs32, true
	case elf.R_RISCV_BRANCH:
		return RelocBranch, true
	case elf.R_RISCV_JAL:
		return RelocJAL, true
	case elf.R_RISCV_CALL, elf.R_RISCV_CALL_PLT:
		return RelocCall, true
	case elf.R_RISCV_PCREL_HI20:
		return RelocPCRelHi20, true
	case elf.R_RISCV_PCREL_LO12_I:
		return RelocPCRelLo12I, true
	case elf.R_RISCV_PCREL_LO12_S:
		return RelocPCRelLo12S, true
	case elf.R_RISCV_HI20:
		return RelocHi20, true
	case elf.R_RISCV_LO12_I:
		return RelocLo12I, true
	case elf.R_RISCV_LO12_S:
		return RelocLo12S, true
	}
	return RelocNone, false
}

// width reports how many instruction bytes the fixup touches.
func (k RelocKind) width() int {
	if k == RelocCall {
		return 8 // auipc+jalr pair
	}
	return 4
}

// expects reports the symbol kind a reference site implies, KindUnknown when
// the encoding says nothing about it. Control transfer encodings imply a
// function target.
func (k RelocKind) expects() SymbolKind {
	switch k {
	case RelocBranch, RelocJAL, RelocCall:
		return KindFunction
	}
	return KindUnknown
}

func bit(val uint32, pos int) uint32 {
	return (val >> pos) & 1
}

func bits(val uint32, hi, lo int) uint32 {
	return (val >> lo) & ((1 << (hi - lo + 1)) - 1)
}

func signExtend(val uint64, size int) uint64 {
	return uint64(int64(val<<(63-size)) >> (63 - size))
}

func fitsSigned(val int64, bits int) bool {
	limit := int64(1) << (bits - 1)
	return val >= -limit && val < limit
}

func readWord(loc []byte) uint32 {
	return binary.LittleEndian.Uint32(loc)
}

func writeWord(loc []byte, val uint32) {
	binary.LittleEndian.PutUint32(loc, val)
}

// Instruction field compositors. Masks keep every instruction bit the field
// does not own.

func itype(val uint32) uint32 {
	return val << 20
}

func stype(val uint32) uint32 {
	return bits(val, 11, 5)<<25 | bits(val, 4, 0)<<7
}

func btype(val uint32) uint32 {
	return bit(val, 12)<<31 | bits(val, 10, 5)<<25 |
		bits(val, 4, 1)<<8 | bit(val, 11)<<7
}

func utype(val uint32) uint32 {
	// the low 12 bits are carried by the paired I/S instruction and are
	// sign extended there, round the upper immediate to compensate
	return (val + 0x800) & 0xffff_f000
}

func jtype(val uint32) uint32 {
	return bit(val, 20)<<31 | bits(val, 10, 1)<<21 |
		bit(val, 11)<<20 | bits(val, 19, 12)<<12
}

func writeItype(loc []byte, val uint32) {
	mask := uint32(0b000000_00000_11111_111_11111_1111111)
	writeWord(loc, readWord(loc)&mask|itype(val))
}

func writeStype(loc []byte, val uint32) {
	mask := uint32(0b000000_11111_11111_111_00000_1111111)
	writeWord(loc, readWord(loc)&mask|stype(val))
}

func writeBtype(loc []byte, val uint32) {
	mask := uint32(0b000000_11111_11111_111_00000_1111111)
	writeWord(loc, readWord(loc)&mask|btype(val))
}

func writeUtype(loc []byte, val uint32) {
	mask := uint32(0b000000_00000_00000_000_11111_1111111)
	writeWord(loc, readWord(loc)&mask|utype(val))
}

func writeJtype(loc []byte, val uint32) {
	mask := uint32(0b000000_00000_00000_000_11111_1111111)
	writeWord(loc, readWord(loc)&mask|jtype(val))
}
