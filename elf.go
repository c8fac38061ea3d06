package jitlink

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/pkg/errors"
)

// ELF32 little endian, the on-wire convention of the RV32 toolchain.
const (
	ehdrSize = 52
	shdrSize = 40
	symSize  = 16
	relaSize = 12
)

type ehdr struct {
	Ident     [16]uint8
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	PhOff     uint32
	ShOff     uint32
	Flags     uint32
	EhSize    uint16
	PhEntSize uint16
	PhNum     uint16
	ShEntSize uint16
	ShNum     uint16
	ShStrndx  uint16
}

type shdr struct {
	Name      uint32
	Type      uint32
	Flags     uint32
	Addr      uint32
	Offset    uint32
	Size      uint32
	Link      uint32
	Info      uint32
	AddrAlign uint32
	EntSize   uint32
}

type sym struct {
	Name  uint32
	Value uint32
	Size  uint32
	Info  uint8
	Other uint8
	Shndx uint16
}

func (s *sym) bind() elf.SymBind { return elf.ST_BIND(s.Info) }
func (s *sym) typ() elf.SymType  { return elf.ST_TYPE(s.Info) }

func (s *sym) isUndef() bool { return s.Shndx == uint16(elf.SHN_UNDEF) }
func (s *sym) isAbs() bool   { return s.Shndx == uint16(elf.SHN_ABS) }

type rela struct {
	Offset uint32
	Info   uint32
	Addend int32
}

func (r *rela) symIdx() uint32 { return r.Info >> 8 }
func (r *rela) typ() uint32    { return r.Info & 0xff }

func readInto[T any](content []byte, v *T) error {
	if binary.Size(*v) > len(content) {
		return errors.New("truncated record")
	}
	return binary.Read(bytes.NewReader(content), binary.LittleEndian, v)
}

func readSlice[T any](content []byte, size int) ([]T, error) {
	if len(content)%size != 0 {
		return nil, errors.Errorf("table size %d not a multiple of entry size %d", len(content), size)
	}
	ret := make([]T, 0, len(content)/size)
	for len(content) > 0 {
		var ele T
		if err := readInto(content, &ele); err != nil {
			return nil, err
		}
		ret = append(ret, ele)
		content = content[size:]
	}
	return ret, nil
}

func hasElfMagic(content []byte) bool {
	return bytes.HasPrefix(content, []byte("\177ELF"))
}

// elfFile is the structural view shared by the firmware image and the jit
// object parser: header, section header table and the section name strtab.
type elfFile struct {
	ehdr     ehdr
	shdrs    []shdr
	shStrTab []byte
	content  []byte
}

// parseElf validates the structural header against the sentinel err
// (ErrMalformedImage or ErrMalformedObject) and the expected e_type.
func parseElf(content []byte, etype uint16, sentinel error) (*elfFile, error) {
	f := &elfFile{content: content}
	if len(content) < ehdrSize {
		return nil, errors.Wrap(sentinel, "shorter than ELF header")
	}
	if !hasElfMagic(content) {
		return nil, errors.Wrap(sentinel, "bad magic")
	}
	if err := readInto(content, &f.ehdr); err != nil {
		return nil, errors.Wrap(sentinel, err.Error())
	}
	if elf.Class(f.ehdr.Ident[4]) != elf.ELFCLASS32 {
		return nil, errors.Wrap(sentinel, "not ELFCLASS32")
	}
	if elf.Data(f.ehdr.Ident[5]) != elf.ELFDATA2LSB {
		return nil, errors.Wrap(sentinel, "not little endian")
	}
	if elf.Machine(f.ehdr.Machine) != elf.EM_RISCV {
		return nil, errors.Wrapf(sentinel, "machine %d is not RISC-V", f.ehdr.Machine)
	}
	if f.ehdr.Type != etype {
		return nil, errors.Wrapf(sentinel, "unexpected ELF type %d", f.ehdr.Type)
	}
	num := int(f.ehdr.ShNum)
	end := int(f.ehdr.ShOff) + num*shdrSize
	if num == 0 || end > len(content) {
		return nil, errors.Wrap(sentinel, "truncated section header table")
	}
	var err error
	f.shdrs, err = readSlice[shdr](content[f.ehdr.ShOff:end], shdrSize)
	if err != nil {
		return nil, errors.Wrap(sentinel, err.Error())
	}
	if int(f.ehdr.ShStrndx) >= len(f.shdrs) {
		return nil, errors.Wrap(sentinel, "section name strtab index out of range")
	}
	f.shStrTab, err = f.sectionBytes(int(f.ehdr.ShStrndx))
	if err != nil {
		return nil, errors.Wrap(sentinel, err.Error())
	}
	return f, nil
}

func (f *elfFile) sectionBytes(idx int) ([]byte, error) {
	if idx < 0 || idx >= len(f.shdrs) {
		return nil, errors.Errorf("section index %d out of range", idx)
	}
	s := &f.shdrs[idx]
	if elf.SectionType(s.Type) == elf.SHT_NOBITS {
		return nil, nil
	}
	end := uint64(s.Offset) + uint64(s.Size)
	if end > uint64(len(f.content)) {
		return nil, errors.Errorf("section %d exceeds file length", idx)
	}
	return f.content[s.Offset:end], nil
}

func (f *elfFile) sectionName(s *shdr) string {
	return elfGetName(f.shStrTab, s.Name)
}

func (f *elfFile) findSection(secType elf.SectionType) int {
	for i := range f.shdrs {
		if elf.SectionType(f.shdrs[i].Type) == secType {
			return i
		}
	}
	return -1
}

// symbols reads the symtab section and its strtab. Returns nil tables when
// the file carries no symtab.
func (f *elfFile) symbols() ([]sym, []byte, error) {
	idx := f.findSection(elf.SHT_SYMTAB)
	if idx < 0 {
		return nil, nil, nil
	}
	bs, err := f.sectionBytes(idx)
	if err != nil {
		return nil, nil, err
	}
	syms, err := readSlice[sym](bs, symSize)
	if err != nil {
		return nil, nil, err
	}
	strTab, err := f.sectionBytes(int(f.shdrs[idx].Link))
	if err != nil {
		return nil, nil, err
	}
	return syms, strTab, nil
}

func elfGetName(strTab []byte, offset uint32) string {
	if offset >= uint32(len(strTab)) {
		return ""
	}
	length := bytes.IndexByte(strTab[offset:], 0)
	if length < 0 {
		return string(strTab[offset:])
	}
	return string(strTab[offset : offset+uint32(length)])
}
