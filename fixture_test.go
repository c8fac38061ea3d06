package jitlink

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"
)

// In-memory ELF32 builders for firmware images and relocatable objects, so
// the suite runs without a cross toolchain.

type symDef struct {
	name  string
	value uint32
	size  uint32
	info  uint8
	shndx uint16
}

type relaDef struct {
	off    uint32
	sym    string
	typ    elf.R_RISCV
	addend int32
}

// fixed object section layout used by buildObject
const (
	secText = 1
	secData = 2
	secBss  = 3
)

func stInfo(bind elf.SymBind, typ elf.SymType) uint8 {
	return uint8(bind)<<4 | uint8(typ)&0xf
}

func fnSym(name string, value, size uint32, shndx uint16) symDef {
	return symDef{name: name, value: value, size: size, info: stInfo(elf.STB_GLOBAL, elf.STT_FUNC), shndx: shndx}
}

func objSym(name string, value, size uint32, shndx uint16) symDef {
	return symDef{name: name, value: value, size: size, info: stInfo(elf.STB_GLOBAL, elf.STT_OBJECT), shndx: shndx}
}

func undefSym(name string) symDef {
	return symDef{name: name, info: stInfo(elf.STB_GLOBAL, elf.STT_NOTYPE)}
}

type strtabBuilder struct {
	buf bytes.Buffer
}

func newStrtab() *strtabBuilder {
	b := &strtabBuilder{}
	b.buf.WriteByte(0)
	return b
}

func (b *strtabBuilder) add(name string) uint32 {
	if name == "" {
		return 0
	}
	off := uint32(b.buf.Len())
	b.buf.WriteString(name)
	b.buf.WriteByte(0)
	return off
}

func buildSymtab(defs []symDef) (symtab, strtab []byte, index map[string]uint32) {
	st := newStrtab()
	buf := new(bytes.Buffer)
	index = make(map[string]uint32, len(defs))
	must(binary.Write(buf, binary.LittleEndian, sym{})) // null symbol
	for i, d := range defs {
		index[d.name] = uint32(i + 1)
		must(binary.Write(buf, binary.LittleEndian, sym{
			Name:  st.add(d.name),
			Value: d.value,
			Size:  d.size,
			Info:  d.info,
			Shndx: d.shndx,
		}))
	}
	return buf.Bytes(), st.buf.Bytes(), index
}

func buildRelas(defs []relaDef, index map[string]uint32) []byte {
	buf := new(bytes.Buffer)
	for _, d := range defs {
		must(binary.Write(buf, binary.LittleEndian, rela{
			Offset: d.off,
			Info:   index[d.sym]<<8 | uint32(d.typ)&0xff,
			Addend: d.addend,
		}))
	}
	return buf.Bytes()
}

type bsec struct {
	name    string
	typ     elf.SectionType
	flags   uint32
	data    []byte
	size    uint32
	align   uint32
	link    uint32
	info    uint32
	entsize uint32
}

func buildELF(etype uint16, secs []bsec) []byte {
	st := newStrtab()
	all := append([]bsec{{}}, secs...)
	all = append(all, bsec{name: ".shstrtab", typ: elf.SHT_STRTAB, align: 1})
	shstrIdx := len(all) - 1

	hdrs := make([]shdr, len(all))
	off := uint32(ehdrSize)
	var emit func(i int)
	emit = func(i int) {
		s := &all[i]
		hdrs[i] = shdr{
			Name:      st.add(s.name),
			Type:      uint32(s.typ),
			Flags:     s.flags,
			Size:      s.size,
			Link:      s.link,
			Info:      s.info,
			AddrAlign: s.align,
			EntSize:   s.entsize,
		}
		if s.typ == elf.SHT_NULL || s.typ == elf.SHT_NOBITS {
			return
		}
		if s.size == 0 {
			hdrs[i].Size = uint32(len(s.data))
		}
		off = alignUp(off, 4)
		hdrs[i].Offset = off
		off += uint32(len(s.data))
	}
	for i := range all {
		if i != shstrIdx {
			emit(i)
		}
	}
	all[shstrIdx].data = st.buf.Bytes()
	emit(shstrIdx)

	shoff := alignUp(off, 4)
	buf := new(bytes.Buffer)
	must(binary.Write(buf, binary.LittleEndian, ehdr{
		Ident: [16]uint8{0x7f, 'E', 'L', 'F',
			uint8(elf.ELFCLASS32), uint8(elf.ELFDATA2LSB), 1},
		Type:      etype,
		Machine:   uint16(elf.EM_RISCV),
		Version:   1,
		ShOff:     shoff,
		EhSize:    ehdrSize,
		ShEntSize: shdrSize,
		ShNum:     uint16(len(all)),
		ShStrndx:  uint16(shstrIdx),
	}))
	for i := range all {
		s := &all[i]
		if s.typ == elf.SHT_NULL || s.typ == elf.SHT_NOBITS || len(s.data) == 0 {
			continue
		}
		pad(buf, int(hdrs[i].Offset))
		buf.Write(s.data)
	}
	pad(buf, int(shoff))
	must(binary.Write(buf, binary.LittleEndian, hdrs))
	return buf.Bytes()
}

func pad(buf *bytes.Buffer, to int) {
	for buf.Len() < to {
		buf.WriteByte(0)
	}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// buildFirmware assembles an ET_EXEC image exporting defs. Addresses live in
// the symbol values, shndx SHN_ABS keeps the parser away from section math.
func buildFirmware(tb testing.TB, defs ...symDef) []byte {
	tb.Helper()
	for i := range defs {
		if defs[i].shndx == 0 {
			defs[i].shndx = uint16(elf.SHN_ABS)
		}
	}
	symtab, strtab, _ := buildSymtab(defs)
	return buildELF(uint16(elf.ET_EXEC), []bsec{
		{name: ".text", typ: elf.SHT_PROGBITS,
			flags: uint32(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
			data:  make([]byte, 16), align: 4},
		{name: ".symtab", typ: elf.SHT_SYMTAB, data: symtab,
			link: 3, info: 1, align: 4, entsize: symSize},
		{name: ".strtab", typ: elf.SHT_STRTAB, data: strtab, align: 1},
	})
}

type objSpec struct {
	text      []byte
	data      []byte
	bss       uint32
	syms      []symDef
	relas     []relaDef // against .text
	dataRelas []relaDef // against .data
}

// buildObject assembles an ET_REL unit with the fixed layout
// null/.text/.data/.bss/.rela.text/.rela.data/.symtab/.strtab/.shstrtab.
func buildObject(tb testing.TB, spec objSpec) []byte {
	tb.Helper()
	symtab, strtab, index := buildSymtab(spec.syms)
	return buildELF(uint16(elf.ET_REL), []bsec{
		{name: ".text", typ: elf.SHT_PROGBITS,
			flags: uint32(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
			data:  spec.text, align: 4},
		{name: ".data", typ: elf.SHT_PROGBITS,
			flags: uint32(elf.SHF_ALLOC | elf.SHF_WRITE),
			data:  spec.data, align: 4},
		{name: ".bss", typ: elf.SHT_NOBITS,
			flags: uint32(elf.SHF_ALLOC | elf.SHF_WRITE),
			size:  spec.bss, align: 4},
		{name: ".rela.text", typ: elf.SHT_RELA,
			data: buildRelas(spec.relas, index),
			link: 6, info: secText, align: 4, entsize: relaSize},
		{name: ".rela.data", typ: elf.SHT_RELA,
			data: buildRelas(spec.dataRelas, index),
			link: 6, info: secData, align: 4, entsize: relaSize},
		{name: ".symtab", typ: elf.SHT_SYMTAB, data: symtab,
			link: 7, info: 1, align: 4, entsize: symSize},
		{name: ".strtab", typ: elf.SHT_STRTAB, data: strtab, align: 1},
	})
}

// Instruction operand decoders, the independent re-decoding half of the
// round-trip checks.

func decodeI(word uint32) int32 {
	return int32(word) >> 20
}

func decodeS(word uint32) int32 {
	v := bits(word, 31, 25)<<5 | bits(word, 11, 7)
	return int32(signExtend(uint64(v), 11))
}

func decodeB(word uint32) int32 {
	v := bit(word, 31)<<12 | bit(word, 7)<<11 |
		bits(word, 30, 25)<<5 | bits(word, 11, 8)<<1
	return int32(signExtend(uint64(v), 12))
}

func decodeU(word uint32) int32 {
	return int32(word & 0xffff_f000)
}

func decodeJ(word uint32) int32 {
	v := bit(word, 31)<<20 | bits(word, 19, 12)<<12 |
		bit(word, 20)<<11 | bits(word, 30, 21)<<1
	return int32(signExtend(uint64(v), 20))
}
