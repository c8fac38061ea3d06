package jitlink

import "log"

type (
	// Linker drives one link operation through its states: Parsed after
	// Initialize, Resolved after Resolve, Loaded after Link. Each state is
	// reached only if the prior step fully succeeded, and nothing partially
	// patched or partially loaded ever escapes. This interface can not be
	// implemented outside this package.
	//
	// Use Steps:
	//
	//	1. Initialize with the compiled object bytes.
	//	2. [Linker.Resolve] to bind every reference against the firmware table.
	//	3. [Linker.Link] to patch and load, or [Linker.LinkAt] for a remote base.
	//	4. Call [Linker.Free] to release the executable region.
	//
	// Note:
	//
	//	1. The firmware table is shared read-only, any number of Linkers may
	//	   use the same table concurrently.
	//	2. A Linker owns its intermediate state exclusively and is not
	//	   thread-safe itself.
	Linker interface {
		Initialize(object []byte) error                          // parse the relocatable unit
		Resolve() error                                          // bind references, local definitions first
		Link(entry string) (*LinkedModule, error)                // patch, load and nominate the entry symbol
		LinkAt(entry string, base uint64) (*PatchedImage, error) // patch for a remote base, no region acquired
		Object() *JitObject                                      // the parsed unit, nil before Initialize
		Bindings() *Bindings                                     // the resolved bindings, nil before Resolve
		MissingSymbols() []string                                // names the firmware table can not satisfy
		Free()                                                   // release the loaded module's region, if any
		internal()
	}
	linker struct {
		table    *FirmwareTable
		alloc    Allocator
		obj      *JitObject
		bindings *Bindings
		module   *LinkedModule
		debug    bool
	}
)

// NewLinker creates a linker over a shared firmware table and the platform's
// executable-memory capability. An optional debug parameter enables debug
// logging inside the pipeline.
func NewLinker(table *FirmwareTable, alloc Allocator, debug ...bool) Linker {
	x := new(linker)
	x.table = table
	x.alloc = alloc
	x.debug = len(debug) > 0 && debug[0]
	return x
}

func (s *linker) internal() {}

func (s *linker) Object() *JitObject { return s.obj }

func (s *linker) Bindings() *Bindings { return s.bindings }

func (s *linker) Initialize(object []byte) (err error) {
	if s.obj != nil {
		return ErrAlreadyInitialized
	}
	if s.obj, err = ParseObject(object); err != nil {
		return
	}
	if s.debug {
		log.Printf("parsed object: %d sections, %d relocations, %d unresolved",
			len(s.obj.Sections()), len(s.obj.Relocations()), len(s.obj.Unresolved()))
	}
	return
}

func (s *linker) Resolve() (err error) {
	if s.obj == nil {
		return ErrUninitialized
	}
	if s.bindings, err = Resolve(s.obj, s.table); err != nil {
		return
	}
	if s.debug {
		for _, d := range s.bindings.Diagnostics {
			log.Printf("diagnostic: %s", d)
		}
		log.Printf("resolved %d symbols", len(s.bindings.Names()))
	}
	return
}

func (s *linker) Link(entry string) (m *LinkedModule, err error) {
	if s.obj == nil {
		return nil, ErrUninitialized
	}
	if s.bindings == nil {
		return nil, ErrUnresolved
	}
	region, err := s.alloc.Allocate(s.obj.ImageSize(), s.obj.MaxAlign())
	if err != nil {
		return nil, err
	}
	// every failure below must give the region back before propagating
	img, err := Patch(s.obj, s.bindings, region.Base())
	if err != nil {
		_ = s.alloc.Release(region)
		return nil, err
	}
	entryAddr, err := img.EntryAddress(entry)
	if err != nil {
		_ = s.alloc.Release(region)
		return nil, err
	}
	copy(region.Bytes(), img.Bytes)
	if err = s.alloc.MakeExecutable(region, img.Perm()); err != nil {
		_ = s.alloc.Release(region)
		return nil, err
	}
	m = &LinkedModule{
		Entry:    entryAddr,
		Base:     region.Base(),
		Size:     len(img.Bytes),
		Resolved: img.Resolved(),
		region:   region,
		alloc:    s.alloc,
	}
	s.module = m
	if s.debug {
		log.Printf("loaded module: entry %#x, %d bytes at %#x", m.Entry, m.Size, m.Base)
	}
	return
}

// LinkAt patches for an image that will be copied to base by an external
// harness (the device flow). No region is acquired, the caller ships
// PatchedImage.Bytes.
func (s *linker) LinkAt(entry string, base uint64) (*PatchedImage, error) {
	if s.obj == nil {
		return nil, ErrUninitialized
	}
	if s.bindings == nil {
		return nil, ErrUnresolved
	}
	img, err := Patch(s.obj, s.bindings, base)
	if err != nil {
		return nil, err
	}
	if _, err = img.EntryAddress(entry); err != nil {
		return nil, err
	}
	if s.debug {
		log.Printf("patched image: %d bytes for base %#x", len(img.Bytes), base)
	}
	return img, nil
}

func (s *linker) MissingSymbols() []string {
	if s.obj == nil {
		return nil
	}
	var missing []string
	for _, name := range s.obj.Unresolved() {
		if _, ok := s.table.Lookup(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func (s *linker) Free() {
	if s.module != nil {
		_ = s.module.Free()
		s.module = nil
	}
	s.bindings = nil
	s.obj = nil
}

// Link is the one-shot convenience over the full pipeline.
func Link(table *FirmwareTable, alloc Allocator, object []byte, entry string) (*LinkedModule, error) {
	l := NewLinker(table, alloc)
	if err := l.Initialize(object); err != nil {
		return nil, err
	}
	if err := l.Resolve(); err != nil {
		return nil, err
	}
	return l.Link(entry)
}
