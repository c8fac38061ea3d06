package jitlink

import (
	"debug/elf"
	"encoding/gob"
	"io"
	"sort"

	"github.com/pkg/errors"
)

// FirmwareTable is the exported-symbol index of an already linked firmware
// image. It is immutable after LoadFirmware and may be shared by concurrent
// link operations without locking. The raw image bytes are not retained.
type FirmwareTable struct {
	byName map[string]Symbol
}

// LoadFirmware parses a linked firmware ELF (ET_EXEC, EM_RISCV, ELF32) into
// a queryable table. A name exported twice is a *DuplicateSymbolError, an
// ambiguous firmware build is rejected rather than silently overridden.
func LoadFirmware(image []byte) (*FirmwareTable, error) {
	f, err := parseElf(image, uint16(elf.ET_EXEC), ErrMalformedImage)
	if err != nil {
		return nil, err
	}
	syms, strTab, err := f.symbols()
	if err != nil {
		return nil, errors.Wrap(ErrMalformedImage, err.Error())
	}
	if syms == nil {
		return nil, errors.Wrap(ErrMalformedImage, "no symbol table")
	}
	t := &FirmwareTable{byName: make(map[string]Symbol, len(syms))}
	for i := range syms {
		es := &syms[i]
		if es.bind() != elf.STB_GLOBAL || es.isUndef() {
			continue
		}
		name := elfGetName(strTab, es.Name)
		if name == "" {
			continue
		}
		if _, ok := t.byName[name]; ok {
			return nil, &DuplicateSymbolError{Name: name}
		}
		t.byName[name] = Symbol{
			Name:    name,
			Address: uint64(es.Value),
			Size:    uint64(es.Size),
			Kind:    kindOf(es.typ()),
		}
	}
	return t, nil
}

// Lookup by exact name only. No demangling, no fuzzy matching.
func (t *FirmwareTable) Lookup(name string) (Symbol, bool) {
	s, ok := t.byName[name]
	return s, ok
}

// Len reports the number of exported symbols.
func (t *FirmwareTable) Len() int {
	return len(t.byName)
}

// Exports dumps the table sorted by name, for diagnostics and tooling.
func (t *FirmwareTable) Exports() []Symbol {
	v := make([]Symbol, 0, len(t.byName))
	for _, s := range t.byName {
		v = append(v, s)
	}
	sort.Slice(v, func(i, j int) bool { return v[i].Name < v[j].Name })
	return v
}

// Serialize writes the parsed table to an output binary format [gob] which
// may be loaded back by LoadFirmwareSerialized, skipping the ELF parse on
// later sessions against the same base image.
func (t *FirmwareTable) Serialize(out io.Writer) error {
	return gob.NewEncoder(out).Encode(t.byName)
}

// LoadFirmwareSerialized restores a table written by Serialize.
func LoadFirmwareSerialized(in io.Reader) (*FirmwareTable, error) {
	t := &FirmwareTable{}
	if err := gob.NewDecoder(in).Decode(&t.byName); err != nil {
		return nil, errors.Wrap(ErrMalformedImage, err.Error())
	}
	return t, nil
}
