package jitlink

import "debug/elf"

// SymbolKind classifies an exported symbol. Unknown covers everything the
// source table does not tag as code or data (notype, sections, files).
type SymbolKind uint8

const (
	KindUnknown SymbolKind = iota
	KindFunction
	KindObject
)

func (k SymbolKind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindObject:
		return "object"
	}
	return "unknown"
}

func kindOf(t elf.SymType) SymbolKind {
	switch t {
	case elf.STT_FUNC:
		return KindFunction
	case elf.STT_OBJECT:
		return KindObject
	}
	return KindUnknown
}

// Symbol is one exported name of a firmware image, immutable once loaded.
type Symbol struct {
	Name    string
	Address uint64
	Size    uint64
	Kind    SymbolKind
}
