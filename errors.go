package jitlink

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedImage occurs when the firmware image fails structural parse.
	ErrMalformedImage = errors.New("malformed firmware image")
	// ErrMalformedObject occurs when the jit object fails structural parse.
	ErrMalformedObject = errors.New("malformed jit object")
	// ErrStaleCache occurs when the instruction-cache synchronization step of a
	// freshly written executable region fails. The region is not callable.
	ErrStaleCache = errors.New("stale instruction cache")
	// ErrAllocation occurs when an executable region can not be acquired.
	ErrAllocation = errors.New("executable region allocation failed")
	// ErrNoEntryPoint occurs when the nominated entry symbol is not defined in the object.
	ErrNoEntryPoint = errors.New("no entry point")
	// ErrAmbiguousEntryPoint occurs when the nominated entry symbol is defined more than once.
	ErrAmbiguousEntryPoint = errors.New("ambiguous entry point")
	// ErrAlreadyInitialized occurs when a Linker is reinitializing.
	ErrAlreadyInitialized = errors.New("already initialized linker")
	// ErrUninitialized occurs when using a Linker before Initialize.
	ErrUninitialized = errors.New("linker not initialized")
	// ErrUnresolved occurs when linking before a successful Resolve.
	ErrUnresolved = errors.New("bindings not resolved")
	// ErrFreed occurs when touching a LinkedModule after Free.
	ErrFreed = errors.New("module already freed")
)

// DuplicateSymbolError reports an ambiguous exported name in a firmware
// image. The firmware build is rejected at table-load time rather than
// letting one definition silently override the other.
type DuplicateSymbolError struct {
	Name string
}

func (e *DuplicateSymbolError) Error() string {
	return fmt.Sprintf("duplicate firmware symbol %q", e.Name)
}

// UnsupportedRelocationError reports a relocation type outside the engine's
// closed vocabulary, surfaced with the raw ELF type so support can be added
// deliberately.
type UnsupportedRelocationError struct {
	Type uint32
}

func (e *UnsupportedRelocationError) Error() string {
	return fmt.Sprintf("unsupported relocation type %d", e.Type)
}

// UnresolvedSymbolError names the first reference satisfied by neither the
// object's own definitions nor the firmware table.
type UnresolvedSymbolError struct {
	Name string
}

func (e *UnresolvedSymbolError) Error() string {
	return fmt.Sprintf("unresolved symbol %q", e.Name)
}

// RelocationRangeError reports a computed value that does not fit the
// immediate field of the relocation's instruction encoding. Patching aborts
// instead of truncating, a truncated displacement corrupts control flow into
// an address that is wrong but plausible.
type RelocationRangeError struct {
	Entry RelocationEntry
	Value int64
	Bits  int
}

func (e *RelocationRangeError) Error() string {
	return fmt.Sprintf("relocation %s against %q: value %#x exceeds %d-bit field",
		e.Entry.Kind, e.Entry.Symbol, e.Value, e.Bits)
}

// Diagnostic is a non-fatal resolver finding, currently only kind mismatches
// between a reference site and the symbol it bound to.
type Diagnostic struct {
	Symbol string
	Want   SymbolKind
	Got    SymbolKind
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("symbol kind mismatch: %q referenced as %s but resolved to %s",
		d.Symbol, d.Want, d.Got)
}
