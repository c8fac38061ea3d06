package jitlink

import (
	"debug/elf"

	"github.com/pkg/errors"
)

// RelocationEntry describes one instruction-encoding fixup, never mutated
// after parse. Section indexes into JitObject.Sections, Symbol is the
// referenced name, Addend the constant folded into the target address.
type RelocationEntry struct {
	Section int
	Offset  uint32
	Symbol  string
	Kind    RelocKind
	Addend  int32
}

type localSym struct {
	section int // index into sections, -1 for SHN_ABS
	value   uint32
	size    uint32
	kind    SymbolKind
}

// JitObject is the parsed form of a freshly compiled relocatable unit:
// allocatable sections in layout order, the relocation list, the unit's own
// symbol definitions and the set of names only the firmware can satisfy.
type JitObject struct {
	sections   []*Section
	relocs     []RelocationEntry
	locals     map[string]localSym
	localDups  map[string]int
	unresolved []string
	imageSize  uint32
	maxAlign   uint32
}

// ParseObject parses a relocatable unit (ET_REL, EM_RISCV, ELF32). Sections
// keep their header order, PROGBITS first then the image is padded to 4
// bytes and NOBITS space is appended zero filled. A relocation type outside
// the engine's vocabulary fails with *UnsupportedRelocationError.
func ParseObject(object []byte) (*JitObject, error) {
	f, err := parseElf(object, uint16(elf.ET_REL), ErrMalformedObject)
	if err != nil {
		return nil, err
	}
	o := &JitObject{
		locals:    make(map[string]localSym),
		localDups: make(map[string]int),
		maxAlign:  4, // instruction fetch alignment floor
	}

	bySecHdr := make(map[int]int, len(f.shdrs)) // shndx -> sections index
	if err := o.parseSections(f, bySecHdr); err != nil {
		return nil, err
	}

	syms, strTab, err := f.symbols()
	if err != nil {
		return nil, errors.Wrap(ErrMalformedObject, err.Error())
	}
	names := o.parseSymbols(f, syms, strTab, bySecHdr)

	if err := o.parseRelocations(f, names, bySecHdr); err != nil {
		return nil, err
	}
	o.collectUnresolved()
	return o, nil
}

func (o *JitObject) parseSections(f *elfFile, bySecHdr map[int]int) error {
	place := func(sh *shdr, idx int, bytes []byte) {
		s := &Section{
			Name:    f.sectionName(sh),
			Bytes:   bytes,
			Size:    sh.Size,
			Align:   sh.AddrAlign,
			Perm:    permOf(sh.Flags),
			index:   len(o.sections),
			relaIdx: -1,
		}
		if s.Align > o.maxAlign {
			o.maxAlign = s.Align
		}
		o.imageSize = alignUp(o.imageSize, s.Align)
		s.Offset = o.imageSize
		o.imageSize += s.Size
		bySecHdr[idx] = s.index
		o.sections = append(o.sections, s)
	}

	for i := range f.shdrs {
		sh := &f.shdrs[i]
		if sh.Flags&uint32(elf.SHF_ALLOC) == 0 || elf.SectionType(sh.Type) != elf.SHT_PROGBITS {
			continue
		}
		bs, err := f.sectionBytes(i)
		if err != nil {
			return errors.Wrap(ErrMalformedObject, err.Error())
		}
		place(sh, i, bs)
	}
	// bss space follows the initialized image, zero filled at load
	o.imageSize = alignUp(o.imageSize, 4)
	for i := range f.shdrs {
		sh := &f.shdrs[i]
		if sh.Flags&uint32(elf.SHF_ALLOC) == 0 || elf.SectionType(sh.Type) != elf.SHT_NOBITS {
			continue
		}
		place(sh, i, nil)
	}
	return nil
}

// parseSymbols fills the local definition table and returns the per-index
// reference names used by the relocation parser. A section symbol carries no
// strtab name, it borrows the section's own name so data relocations against
// .rodata and friends resolve locally.
func (o *JitObject) parseSymbols(f *elfFile, syms []sym, strTab []byte, bySecHdr map[int]int) []string {
	names := make([]string, len(syms))
	for i := range syms {
		if i == 0 {
			continue // index zero is the null symbol
		}
		es := &syms[i]
		name := elfGetName(strTab, es.Name)
		if name == "" && es.typ() == elf.STT_SECTION && int(es.Shndx) < len(f.shdrs) {
			name = f.sectionName(&f.shdrs[es.Shndx])
		}
		names[i] = name
		if name == "" || es.isUndef() {
			continue
		}
		ls := localSym{section: -1, value: es.Value, size: es.Size, kind: kindOf(es.typ())}
		if !es.isAbs() {
			idx, ok := bySecHdr[int(es.Shndx)]
			if !ok {
				continue // defined in a non-allocatable section, not linkable
			}
			ls.section = idx
		}
		o.localDups[name]++
		if o.localDups[name] == 1 {
			o.locals[name] = ls
		}
	}
	return names
}

func (o *JitObject) parseRelocations(f *elfFile, names []string, bySecHdr map[int]int) error {
	for i := range f.shdrs {
		sh := &f.shdrs[i]
		if elf.SectionType(sh.Type) != elf.SHT_RELA {
			continue
		}
		target, ok := bySecHdr[int(sh.Info)]
		if !ok {
			continue // relocations for debug or metadata sections
		}
		bs, err := f.sectionBytes(i)
		if err != nil {
			return errors.Wrap(ErrMalformedObject, err.Error())
		}
		relas, err := readSlice[rela](bs, relaSize)
		if err != nil {
			return errors.Wrap(ErrMalformedObject, err.Error())
		}
		o.sections[target].relaIdx = i
		for j := range relas {
			r := &relas[j]
			kind, ok := relocKindOf(r.typ())
			if !ok {
				return &UnsupportedRelocationError{Type: r.typ()}
			}
			if kind == RelocNone || kind == RelocRelax {
				continue
			}
			if int(r.symIdx()) >= len(names) {
				return errors.Wrapf(ErrMalformedObject, "relocation symbol index %d out of range", r.symIdx())
			}
			sec := o.sections[target]
			if uint64(r.Offset)+uint64(kind.width()) > uint64(sec.Size) {
				return errors.Wrapf(ErrMalformedObject,
					"relocation offset %#x outside section %s", r.Offset, sec.Name)
			}
			o.relocs = append(o.relocs, RelocationEntry{
				Section: target,
				Offset:  r.Offset,
				Symbol:  names[r.symIdx()],
				Kind:    kind,
				Addend:  r.Addend,
			})
		}
	}
	return nil
}

func (o *JitObject) collectUnresolved() {
	seen := make(map[string]bool)
	for i := range o.relocs {
		name := o.relocs[i].Symbol
		if name == "" || seen[name] {
			continue
		}
		if _, ok := o.locals[name]; ok {
			continue
		}
		seen[name] = true
		o.unresolved = append(o.unresolved, name)
	}
}

// Sections in final layout order.
func (o *JitObject) Sections() []*Section { return o.sections }

// Relocations in parse order, which fixes the deterministic failure order of
// resolution.
func (o *JitObject) Relocations() []RelocationEntry { return o.relocs }

// Unresolved names in first-reference order, local definitions subtracted.
func (o *JitObject) Unresolved() []string { return o.unresolved }

// Locals dumps the unit's own definitions with image-relative addresses.
func (o *JitObject) Locals() []Symbol {
	v := make([]Symbol, 0, len(o.locals))
	for name, ls := range o.locals {
		v = append(v, Symbol{Name: name, Address: o.localAddr(ls), Size: uint64(ls.size), Kind: ls.kind})
	}
	return v
}

func (o *JitObject) localAddr(ls localSym) uint64 {
	if ls.section < 0 {
		return uint64(ls.value)
	}
	return uint64(o.sections[ls.section].Offset) + uint64(ls.value)
}

// ImageSize is the laid out size including the zero-filled bss tail.
func (o *JitObject) ImageSize() int { return int(o.imageSize) }

// MaxAlign is the strictest section alignment, at least the 4-byte
// instruction fetch alignment.
func (o *JitObject) MaxAlign() int { return int(o.maxAlign) }

// entry resolves the nominated entry symbol to its image-relative address.
func (o *JitObject) entry(name string) (uint64, error) {
	switch o.localDups[name] {
	case 0:
		return 0, errors.Wrapf(ErrNoEntryPoint, "symbol %q not defined in object", name)
	case 1:
	default:
		return 0, errors.Wrapf(ErrAmbiguousEntryPoint, "symbol %q defined %d times", name, o.localDups[name])
	}
	ls := o.locals[name]
	if ls.kind != KindFunction {
		return 0, errors.Wrapf(ErrNoEntryPoint, "symbol %q is not a function", name)
	}
	return o.localAddr(ls), nil
}
