package jitlink

import "github.com/pkg/errors"

// PatchedImage is the fully relocated byte image of one link operation,
// valid only for execution at Base. Bytes includes the zero-filled bss tail.
type PatchedImage struct {
	Base  uint64
	Bytes []byte

	obj      *JitObject
	bindings *Bindings
}

// Patch applies every relocation of the object using the resolved bindings,
// for an image that will execute at base. The work happens on a private copy
// so a failure leaves the parsed object untouched, patching is atomic at the
// object granularity. A value exceeding its immediate field is a
// *RelocationRangeError, never truncated.
func Patch(obj *JitObject, b *Bindings, base uint64) (*PatchedImage, error) {
	img := make([]byte, obj.ImageSize())
	for _, s := range obj.sections {
		copy(img[s.Offset:], s.Bytes)
	}
	for i := range obj.relocs {
		rel := &obj.relocs[i]
		if err := patchOne(obj, b, base, img, rel); err != nil {
			return nil, err
		}
	}
	return &PatchedImage{Base: base, Bytes: img, obj: obj, bindings: b}, nil
}

func patchOne(obj *JitObject, b *Bindings, base uint64, img []byte, rel *RelocationEntry) error {
	sec := obj.sections[rel.Section]
	loc := img[uint64(sec.Offset)+uint64(rel.Offset):]
	place := base + uint64(sec.Offset) + uint64(rel.Offset)

	target, ok := b.AddressOf(rel.Symbol, base)
	if !ok {
		return &UnresolvedSymbolError{Name: rel.Symbol}
	}
	abs := int64(target) + int64(rel.Addend)
	disp := abs - int64(place)

	switch rel.Kind {
	case RelocAbs32:
		if abs < 0 || abs > 0xffff_ffff {
			return &RelocationRangeError{Entry: *rel, Value: abs, Bits: 32}
		}
		writeWord(loc, uint32(abs))
	case RelocBranch:
		if !fitsSigned(disp, 13) || disp&1 != 0 {
			return &RelocationRangeError{Entry: *rel, Value: disp, Bits: 13}
		}
		writeBtype(loc, uint32(disp))
	case RelocJAL:
		if !fitsSigned(disp, 21) || disp&1 != 0 {
			return &RelocationRangeError{Entry: *rel, Value: disp, Bits: 21}
		}
		writeJtype(loc, uint32(disp))
	case RelocCall:
		if !fitsSigned(disp, 32) {
			return &RelocationRangeError{Entry: *rel, Value: disp, Bits: 32}
		}
		writeUtype(loc, uint32(disp))
		writeItype(loc[4:], uint32(disp))
	case RelocPCRelHi20:
		if !fitsSigned(disp, 32) {
			return &RelocationRangeError{Entry: *rel, Value: disp, Bits: 32}
		}
		writeUtype(loc, uint32(disp))
	case RelocPCRelLo12I, RelocPCRelLo12S:
		// the lo12 half names the auipc site, the real target sits on the
		// paired PCREL_HI20 relocation at that site
		val, err := pcrelPair(obj, b, base, rel, target)
		if err != nil {
			return err
		}
		if rel.Kind == RelocPCRelLo12I {
			writeItype(loc, uint32(val))
		} else {
			writeStype(loc, uint32(val))
		}
	case RelocHi20:
		if abs < 0 || abs > 0xffff_ffff {
			return &RelocationRangeError{Entry: *rel, Value: abs, Bits: 32}
		}
		writeUtype(loc, uint32(abs))
	case RelocLo12I, RelocLo12S:
		if abs < 0 || abs > 0xffff_ffff {
			return &RelocationRangeError{Entry: *rel, Value: abs, Bits: 32}
		}
		if rel.Kind == RelocLo12I {
			writeItype(loc, uint32(abs))
		} else {
			writeStype(loc, uint32(abs))
		}
	}
	return nil
}

// pcrelPair recomputes the displacement of the PCREL_HI20 relocation found
// at hiSite, the address the lo12 half's label symbol resolved to.
func pcrelPair(obj *JitObject, b *Bindings, base uint64, rel *RelocationEntry, hiSite uint64) (int64, error) {
	for i := range obj.relocs {
		hi := &obj.relocs[i]
		if hi.Kind != RelocPCRelHi20 {
			continue
		}
		place := base + uint64(obj.sections[hi.Section].Offset) + uint64(hi.Offset)
		if place != hiSite {
			continue
		}
		target, ok := b.AddressOf(hi.Symbol, base)
		if !ok {
			return 0, &UnresolvedSymbolError{Name: hi.Symbol}
		}
		return int64(target) + int64(hi.Addend) - int64(place), nil
	}
	return 0, errors.Wrapf(ErrMalformedObject,
		"%s at %s+%#x without a matching PCREL_HI20", rel.Kind, obj.sections[rel.Section].Name, rel.Offset)
}

// EntryAddress resolves the nominated entry symbol inside the patched image.
func (p *PatchedImage) EntryAddress(name string) (uint64, error) {
	off, err := p.obj.entry(name)
	if err != nil {
		return 0, err
	}
	return p.Base + off, nil
}

// Resolved is the diagnostic mapping of every bound name at this image's
// base address.
func (p *PatchedImage) Resolved() map[string]uint64 {
	return p.bindings.Resolved(p.Base)
}

// Perm is the union of the section permissions, what the loaded region must
// finally grant.
func (p *PatchedImage) Perm() Perm {
	var perm Perm
	for _, s := range p.obj.sections {
		perm |= s.Perm
	}
	return perm
}
