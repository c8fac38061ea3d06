package jitlink

// LinkedModule is the result of one successful link operation: an owned
// executable region, the entry point inside it and the resolved mapping for
// diagnostics. The caller owns it for the whole execution lifetime and must
// Free it on every exit path, executable regions are scarce on embedded
// targets.
type LinkedModule struct {
	Entry    uint64
	Base     uint64
	Size     int
	Resolved map[string]uint64

	// Signature describes the entry function for the execution harness,
	// attached by the driving tool.
	Signature *Signature

	region Region
	alloc  Allocator
}

// Bytes views the loaded image, read back for verification or shipping to a
// device. Nil after Free.
func (m *LinkedModule) Bytes() []byte {
	if m.region == nil {
		return nil
	}
	return m.region.Bytes()
}

// AttachSignature hangs the entry function's signature on the module.
func (m *LinkedModule) AttachSignature(s *Signature) {
	m.Signature = s
}

// Free releases the executable region. Safe to call twice.
func (m *LinkedModule) Free() error {
	if m.region == nil {
		return ErrFreed
	}
	err := m.alloc.Release(m.region)
	m.region = nil
	m.Resolved = nil
	return err
}
